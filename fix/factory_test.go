package fix_test

import (
	"testing"
	"time"

	"github.com/tradewire/gofix/config"
	"github.com/tradewire/gofix/fix"
)

func baseSettings(role string) config.SessionSettings {
	ss := config.DefaultSessionSettings()
	ss.ConnectionType = role
	ss.BeginString = "FIX.4.4"
	ss.SenderCompID = "EXEC"
	ss.TargetCompID = "BANZAI"
	ss.HeartBtInt = 30
	if role == "initiator" {
		ss.SocketConnectHost = "peer"
		ss.SocketConnectPort = 9876
	}
	return ss
}

func TestFactoryCreatesSession(t *testing.T) {
	t.Parallel()

	f := fix.NewSessionFactory(&recordingApp{}, fix.NewMemoryStoreFactory())
	s, err := f.Create(baseSettings("acceptor"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := fix.SessionID{BeginString: "FIX.4.4", SenderCompID: "EXEC", TargetCompID: "BANZAI"}
	if s.ID() != want {
		t.Errorf("ID = %v, want %v", s.ID(), want)
	}
	if s.State() != fix.StateDisconnected {
		t.Errorf("fresh session state = %v", s.State())
	}
}

func TestFactoryRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mod  func(*config.SessionSettings)
	}{
		{
			name: "invalid connection type",
			mod:  func(ss *config.SessionSettings) { ss.ConnectionType = "neither" },
		},
		{
			name: "qualifier on acceptor",
			mod:  func(ss *config.SessionSettings) { ss.SessionQualifier = "q1" },
		},
		{
			name: "initiator without heartbeat interval",
			mod: func(ss *config.SessionSettings) {
				ss.ConnectionType = "initiator"
				ss.SocketConnectHost = "peer"
				ss.SocketConnectPort = 9876
				ss.HeartBtInt = 0
			},
		},
		{
			name: "FIXT without DefaultApplVerID",
			mod:  func(ss *config.SessionSettings) { ss.BeginString = "FIXT.1.1" },
		},
		{
			name: "StartTime without EndTime",
			mod:  func(ss *config.SessionSettings) { ss.StartTime = "08:00:00" },
		},
		{
			name: "StartDay without EndDay",
			mod: func(ss *config.SessionSettings) {
				ss.StartTime = "08:00:00"
				ss.EndTime = "17:00:00"
				ss.StartDay = "Monday"
			},
		},
		{
			name: "LogonTime outside session window",
			mod: func(ss *config.SessionSettings) {
				ss.StartTime = "08:00:00"
				ss.EndTime = "17:00:00"
				ss.LogonTime = "07:00:00"
			},
		},
		{
			name: "LogoutTime outside session window",
			mod: func(ss *config.SessionSettings) {
				ss.StartTime = "08:00:00"
				ss.EndTime = "17:00:00"
				ss.LogoutTime = "18:00:00"
			},
		},
		{
			name: "dictionary path without loader",
			mod:  func(ss *config.SessionSettings) { ss.DataDictionary = "FIX44.xml" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ss := baseSettings("acceptor")
			tt.mod(&ss)
			f := fix.NewSessionFactory(&recordingApp{}, fix.NewMemoryStoreFactory())
			if _, err := f.Create(ss); err == nil {
				t.Error("Create accepted an invalid configuration")
			}
		})
	}
}

func TestFactoryFIXTSession(t *testing.T) {
	t.Parallel()

	ss := baseSettings("acceptor")
	ss.BeginString = "FIXT.1.1"
	ss.DefaultApplVerID = "FIX.5.0SP2"

	f := fix.NewSessionFactory(&recordingApp{}, fix.NewMemoryStoreFactory())
	s, err := f.Create(ss)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !s.ID().IsFIXT() {
		t.Error("session must be FIXT")
	}
}

func TestFactorySessionTimeWindow(t *testing.T) {
	t.Parallel()

	ss := baseSettings("acceptor")
	ss.StartTime = "08:00:00"
	ss.EndTime = "17:00:00"

	f := fix.NewSessionFactory(&recordingApp{}, fix.NewMemoryStoreFactory())
	s, err := f.Create(ss)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !s.InSessionTime(at(time.Monday, "12:00:00")) {
		t.Error("noon must be inside the configured window")
	}
	if s.InSessionTime(at(time.Monday, "03:00:00")) {
		t.Error("3am must be outside the configured window")
	}
}
