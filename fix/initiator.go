package fix

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tradewire/gofix/config"
)

// -------------------------------------------------------------------------
// Initiator
// -------------------------------------------------------------------------

// initiatorTarget carries the dialing parameters of one initiator-role
// session.
type initiatorTarget struct {
	session   *Session
	addr      string
	source    string
	reconnect time.Duration
}

// Initiator owns the configured initiator-role sessions and opens one
// outbound connection per session while it is enabled and inside its
// session-time window, retrying with the configured reconnect interval.
type Initiator struct {
	factory  *SessionFactory
	registry *Registry
	log      Log

	targets map[SessionID]*initiatorTarget

	mu      sync.Mutex
	conns   map[*connection]struct{}
	wg      sync.WaitGroup
	started bool
	stop    chan struct{}
	stopped atomic.Bool
}

// NewInitiator builds the initiator-role sessions out of the settings.
// Settings records with other connection types are ignored; having none
// left is a configuration error.
func NewInitiator(
	app Application,
	storeFactory MessageStoreFactory,
	sessions []config.SessionSettings,
	registry *Registry,
	opts ...FactoryOption,
) (*Initiator, error) {
	factory := NewSessionFactory(app, storeFactory, opts...)
	log, err := factory.logFactory.Create()
	if err != nil {
		return nil, fmt.Errorf("create engine log: %w", err)
	}

	ini := &Initiator{
		factory:  factory,
		registry: registry,
		log:      log,
		targets:  make(map[SessionID]*initiatorTarget),
		conns:    make(map[*connection]struct{}),
		stop:     make(chan struct{}),
	}

	for _, ss := range sessions {
		if !ss.IsInitiator() {
			continue
		}
		s, err := factory.Create(ss)
		if err != nil {
			return nil, err
		}
		if _, dup := ini.targets[s.ID()]; dup {
			return nil, ConfigError{Reason: fmt.Sprintf("duplicate session %s", s.ID())}
		}

		target := &initiatorTarget{
			session:   s,
			addr:      net.JoinHostPort(ss.SocketConnectHost, fmt.Sprintf("%d", ss.SocketConnectPort)),
			reconnect: time.Duration(ss.ReconnectInterval) * time.Second,
		}
		if ss.SocketConnectSourceHost != "" || ss.SocketConnectSourcePort != 0 {
			target.source = net.JoinHostPort(ss.SocketConnectSourceHost, fmt.Sprintf("%d", ss.SocketConnectSourcePort))
		}
		ini.targets[s.ID()] = target
	}
	if len(ini.targets) == 0 {
		return nil, ConfigError{Reason: "no sessions defined for initiator"}
	}
	return ini, nil
}

// Session returns the configured session for id.
func (i *Initiator) Session(id SessionID) (*Session, bool) {
	t, ok := i.targets[id]
	if !ok {
		return nil, false
	}
	return t.session, true
}

// Start launches one dialing worker per session.
func (i *Initiator) Start() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.started {
		return nil
	}
	i.started = true
	for _, t := range i.targets {
		i.wg.Add(1)
		go i.dialLoop(t)
	}
	return nil
}

// Block starts the initiator and runs until Stop is called.
func (i *Initiator) Block() error {
	if err := i.Start(); err != nil {
		return err
	}
	i.wg.Wait()
	return nil
}

// Poll drives the initiator for embedding into a caller-owned loop; see
// Acceptor.Poll.
func (i *Initiator) Poll(timeout time.Duration) (bool, error) {
	if err := i.Start(); err != nil {
		return false, err
	}
	time.Sleep(timeout)
	return !i.stopped.Load(), nil
}

// Stop shuts the initiator down; see Acceptor.Stop for the force
// semantics. Stop is terminal.
func (i *Initiator) Stop(force bool) {
	if i.stopped.Swap(true) {
		return
	}
	close(i.stop)

	sessions := make(map[SessionID]*Session, len(i.targets))
	for id, t := range i.targets {
		sessions[id] = t.session
		if t.session.IsEnabled() {
			t.session.Logout()
		}
	}
	if !force {
		waitLoggedOff(sessions, stopLogoffWait)
	}

	i.mu.Lock()
	for c := range i.conns {
		c.Disconnect()
	}
	i.mu.Unlock()

	i.wg.Wait()
	for id := range i.targets {
		i.registry.Unregister(id)
	}
	i.log.OnEvent("Initiator stopped")
}

// IsLoggedOn reports whether any session is currently logged on.
func (i *Initiator) IsLoggedOn() bool {
	for _, t := range i.targets {
		if t.session.IsLoggedOn() {
			return true
		}
	}
	return false
}

// dialLoop keeps one session connected: dial, register, drive the
// connection until it drops, then back off and retry while the session
// remains enabled.
func (i *Initiator) dialLoop(t *initiatorTarget) {
	defer i.wg.Done()
	s := t.session

	for {
		if i.stopped.Load() {
			return
		}
		if !s.IsEnabled() || !s.InSessionTime(time.Now()) {
			if i.sleep(time.Second) {
				return
			}
			continue
		}

		conn, err := i.dial(t)
		if err != nil {
			i.log.OnEvent(fmt.Sprintf("Connect to %s failed: %s", t.addr, err))
			if i.sleep(t.reconnect) {
				return
			}
			continue
		}

		if err := i.registry.Register(s); err != nil {
			_ = conn.Close()
			i.log.OnEvent("Session already registered: " + s.ID().String())
			if i.sleep(t.reconnect) {
				return
			}
			continue
		}

		c := newConnection(conn, s, nil, i.registry, i.log)
		i.track(c)
		s.Bind(c)
		s.InitiateLogon()
		c.run()
		i.untrack(c)

		if i.sleep(t.reconnect) {
			return
		}
	}
}

// dial opens the outbound TCP connection, binding the configured source
// address when present.
func (i *Initiator) dial(t *initiatorTarget) (net.Conn, error) {
	d := net.Dialer{Timeout: 10 * time.Second}
	if t.source != "" {
		laddr, err := net.ResolveTCPAddr("tcp", t.source)
		if err != nil {
			return nil, fmt.Errorf("resolve source %s: %w", t.source, err)
		}
		d.LocalAddr = laddr
	}
	return d.Dial("tcp", t.addr)
}

// sleep waits d or until Stop, reporting whether to exit.
func (i *Initiator) sleep(d time.Duration) bool {
	select {
	case <-i.stop:
		return true
	case <-time.After(d):
		return false
	}
}

func (i *Initiator) track(c *connection) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.conns[c] = struct{}{}
}

func (i *Initiator) untrack(c *connection) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.conns, c)
}
