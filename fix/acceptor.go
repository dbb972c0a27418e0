package fix

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tradewire/gofix/config"
)

// Graceful-stop bounds shared by Acceptor and Initiator.
const (
	// stopLogoffWait is how long a non-forced Stop waits for logged-on
	// sessions to complete their logout handshakes.
	stopLogoffWait = 10 * time.Second

	// routeRegisterWait is how many one-second passes inbound routing
	// waits for a stale registration of the same SessionID to clear,
	// supporting reconnects of a still-draining peer.
	routeRegisterWait = 5
)

// -------------------------------------------------------------------------
// Acceptor
// -------------------------------------------------------------------------

// Acceptor owns the configured acceptor-role sessions, listens for
// inbound connections, and binds each connection to its session on the
// first inbound Logon by swapping the frame's CompIDs.
type Acceptor struct {
	factory  *SessionFactory
	registry *Registry
	log      Log

	sessions map[SessionID]*Session
	addrs    []string

	mu        sync.Mutex
	listeners []net.Listener
	conns     map[*connection]struct{}
	wg        sync.WaitGroup
	started   bool
	stopped   atomic.Bool
}

// NewAcceptor builds the acceptor-role sessions out of the settings and
// prepares the listen addresses. Settings records with other connection
// types are ignored; having none left is a configuration error.
func NewAcceptor(
	app Application,
	storeFactory MessageStoreFactory,
	sessions []config.SessionSettings,
	registry *Registry,
	opts ...FactoryOption,
) (*Acceptor, error) {
	factory := NewSessionFactory(app, storeFactory, opts...)
	log, err := factory.logFactory.Create()
	if err != nil {
		return nil, fmt.Errorf("create engine log: %w", err)
	}

	a := &Acceptor{
		factory:  factory,
		registry: registry,
		log:      log,
		sessions: make(map[SessionID]*Session),
		conns:    make(map[*connection]struct{}),
	}

	seen := make(map[string]struct{})
	for _, ss := range sessions {
		if !ss.IsAcceptor() {
			continue
		}
		s, err := factory.Create(ss)
		if err != nil {
			return nil, err
		}
		if _, dup := a.sessions[s.ID()]; dup {
			return nil, ConfigError{Reason: fmt.Sprintf("duplicate session %s", s.ID())}
		}
		a.sessions[s.ID()] = s

		addr := net.JoinHostPort(ss.SocketAcceptHost, fmt.Sprintf("%d", ss.SocketAcceptPort))
		if _, ok := seen[addr]; !ok {
			seen[addr] = struct{}{}
			a.addrs = append(a.addrs, addr)
		}
	}
	if len(a.sessions) == 0 {
		return nil, ConfigError{Reason: "no sessions defined for acceptor"}
	}
	return a, nil
}

// Session returns the configured session for id.
func (a *Acceptor) Session(id SessionID) (*Session, bool) {
	s, ok := a.sessions[id]
	return s, ok
}

// Addrs returns the bound listen addresses once started. Useful when a
// session is configured with port 0.
func (a *Acceptor) Addrs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.listeners))
	for _, l := range a.listeners {
		out = append(out, l.Addr().String())
	}
	return out
}

// Start opens the listen sockets and launches the accept workers.
func (a *Acceptor) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	lc := net.ListenConfig{Control: reuseAddr}
	for _, addr := range a.addrs {
		l, err := lc.Listen(context.Background(), "tcp", addr)
		if err != nil {
			for _, open := range a.listeners {
				_ = open.Close()
			}
			a.listeners = nil
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		a.listeners = append(a.listeners, l)
		a.wg.Add(1)
		go a.acceptLoop(l)
		a.log.OnEvent("Listening on " + l.Addr().String())
	}
	a.started = true
	return nil
}

// reuseAddr sets SO_REUSEADDR so restarts do not trip over sockets in
// TIME_WAIT.
func reuseAddr(_, _ string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return serr
}

// Block starts the acceptor and runs until Stop is called.
func (a *Acceptor) Block() error {
	if err := a.Start(); err != nil {
		return err
	}
	a.wg.Wait()
	return nil
}

// Poll drives the acceptor for embedding into a caller-owned loop: the
// first call starts the workers, every call sleeps for timeout, and the
// return value reports whether the acceptor is still running.
func (a *Acceptor) Poll(timeout time.Duration) (bool, error) {
	if err := a.Start(); err != nil {
		return false, err
	}
	time.Sleep(timeout)
	return !a.stopped.Load(), nil
}

// Stop shuts the acceptor down. When force is false the enabled sessions
// are logged out first and the acceptor waits up to ten seconds for the
// handshakes to finish. Stop is terminal; sessions are not re-enabled.
func (a *Acceptor) Stop(force bool) {
	if a.stopped.Swap(true) {
		return
	}

	for _, s := range a.sessions {
		if s.IsEnabled() {
			s.Logout()
		}
	}
	if !force {
		waitLoggedOff(a.sessions, stopLogoffWait)
	}

	a.mu.Lock()
	for _, l := range a.listeners {
		_ = l.Close()
	}
	for c := range a.conns {
		c.Disconnect()
	}
	a.mu.Unlock()

	a.wg.Wait()
	for _, s := range a.sessions {
		a.registry.Unregister(s.ID())
	}
	a.log.OnEvent("Acceptor stopped")
}

// IsLoggedOn reports whether any session is currently logged on.
func (a *Acceptor) IsLoggedOn() bool {
	for _, s := range a.sessions {
		if s.IsLoggedOn() {
			return true
		}
	}
	return false
}

// waitLoggedOff polls until every session has logged off or the deadline
// passes.
func waitLoggedOff(sessions map[SessionID]*Session, limit time.Duration) {
	deadline := time.Now().Add(limit)
	for time.Now().Before(deadline) {
		anyOn := false
		for _, s := range sessions {
			if s.IsLoggedOn() {
				anyOn = true
				break
			}
		}
		if !anyOn {
			return
		}
		time.Sleep(time.Second)
	}
}

// acceptLoop accepts connections on one listener until it closes.
func (a *Acceptor) acceptLoop(l net.Listener) {
	defer a.wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			if !a.stopped.Load() && !errors.Is(err, net.ErrClosed) {
				a.log.OnEvent("Accept failed: " + err.Error())
			}
			return
		}
		c := newConnection(conn, nil, a, a.registry, a.log)
		a.track(c)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			defer a.untrack(c)
			c.run()
		}()
	}
}

func (a *Acceptor) track(c *connection) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conns[c] = struct{}{}
}

func (a *Acceptor) untrack(c *connection) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.conns, c)
}

// -------------------------------------------------------------------------
// Inbound routing
// -------------------------------------------------------------------------

// route implements sessionRouter: the first frame of an inbound
// connection must be a Logon whose swapped CompIDs name a configured
// session. Routing waits up to five seconds for a stale registration of
// the same SessionID to clear before giving up.
func (a *Acceptor) route(frame []byte, resp Responder) (*Session, bool) {
	msg, err := ParseMessage(frame)
	if err != nil {
		a.log.OnEvent("Dropping connection, unparseable first message: " + err.Error())
		return nil, false
	}
	msgType, err := msg.MsgType()
	if err != nil || msgType != MsgTypeLogon {
		a.log.OnEvent("Dropping connection, first message is not a Logon")
		return nil, false
	}

	bs, _ := msg.Header.GetString(TagBeginString)
	sender, _ := msg.Header.GetString(TagSenderCompID)
	target, _ := msg.Header.GetString(TagTargetCompID)
	id := SessionID{BeginString: bs, SenderCompID: target, TargetCompID: sender}

	s, ok := a.sessions[id]
	if !ok {
		a.log.OnEvent("Dropping connection, no session configured for " + id.String())
		return nil, false
	}
	if !s.IsEnabled() || !s.InSessionTime(time.Now()) {
		a.log.OnEvent("Dropping connection, session disabled or outside session time: " + id.String())
		return nil, false
	}

	registered := false
	for i := 0; i < routeRegisterWait; i++ {
		if err := a.registry.Register(s); err == nil {
			registered = true
			break
		}
		time.Sleep(time.Second)
	}
	if !registered {
		a.log.OnEvent("Dropping connection, session already bound: " + id.String())
		return nil, false
	}

	s.Bind(resp)
	return s, true
}
