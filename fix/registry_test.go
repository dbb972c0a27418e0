package fix_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/tradewire/gofix/config"
	"github.com/tradewire/gofix/fix"
)

func registryTestSession(t *testing.T) *fix.Session {
	t.Helper()
	ss := config.DefaultSessionSettings()
	ss.ConnectionType = "acceptor"
	ss.BeginString = "FIX.4.4"
	ss.SenderCompID = "EXEC"
	ss.TargetCompID = "BANZAI"
	f := fix.NewSessionFactory(&recordingApp{}, fix.NewMemoryStoreFactory())
	s, err := f.Create(ss)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}

func TestRegistryRegisterUnregister(t *testing.T) {
	t.Parallel()

	r := fix.NewRegistry()
	s := registryTestSession(t)

	if err := r.Register(s); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got, ok := r.Lookup(s.ID()); !ok || got != s {
		t.Error("Lookup must return the registered session")
	}
	if err := r.Register(s); !errors.Is(err, fix.ErrDuplicateSession) {
		t.Errorf("second Register err = %v, want ErrDuplicateSession", err)
	}

	r.Unregister(s.ID())
	if r.IsRegistered(s.ID()) {
		t.Error("Unregister must remove the session")
	}
	// Idempotent.
	r.Unregister(s.ID())

	if err := r.Register(s); err != nil {
		t.Errorf("re-Register after Unregister: %v", err)
	}
}

func TestRegistrySingleWriterInvariant(t *testing.T) {
	t.Parallel()

	r := fix.NewRegistry()
	s := registryTestSession(t)

	const attempts = 64
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- r.Register(s)
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("concurrent Register wins = %d, want exactly 1", wins)
	}
}

func TestRegistrySendToTarget(t *testing.T) {
	t.Parallel()

	r := fix.NewRegistry()
	m := fix.NewMessage()
	m.Header.SetString(fix.TagMsgType, "D")

	err := r.SendToTarget(m, fix.SessionID{BeginString: "FIX.4.4", SenderCompID: "A", TargetCompID: "B"})
	if !errors.Is(err, fix.ErrSessionNotFound) {
		t.Errorf("SendToTarget on empty registry err = %v, want ErrSessionNotFound", err)
	}
}
