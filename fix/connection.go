package fix

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// connReadTimeout is the poll interval of a connection reader. Session
// timers are driven from these timeouts; there are no per-event timers.
const connReadTimeout = time.Second

// sessionRouter locates the session for the first inbound frame of an
// unbound connection and binds the responder to it. Implemented by the
// Acceptor.
type sessionRouter interface {
	route(frame []byte, resp Responder) (*Session, bool)
}

// -------------------------------------------------------------------------
// connection — one socket reader
// -------------------------------------------------------------------------

// connection pumps one socket into the parser and the bound session, and
// serves as the session's Responder. Inbound (acceptor-side) connections
// start with no session; the first parsed frame routes them.
type connection struct {
	conn     net.Conn
	parser   *Parser
	session  *Session
	router   sessionRouter
	registry *Registry
	log      Log

	writeMu sync.Mutex
	closed  atomic.Bool
}

func newConnection(conn net.Conn, session *Session, router sessionRouter, registry *Registry, log Log) *connection {
	return &connection{
		conn:     conn,
		parser:   NewParser(),
		session:  session,
		router:   router,
		registry: registry,
		log:      log,
	}
}

// Send implements Responder.
func (c *connection) Send(b []byte) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(b)
	return err == nil
}

// Disconnect implements Responder.
func (c *connection) Disconnect() {
	c.closed.Store(true)
	_ = c.conn.Close()
}

// RemoteAddr implements Responder.
func (c *connection) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// LocalAddr implements Responder.
func (c *connection) LocalAddr() string { return c.conn.LocalAddr().String() }

// run is the reader loop. Each pass polls the socket with a one-second
// timeout (preceded by PollSpin zero-timeout polls when configured),
// feeds new bytes to the parser, and hands the session an idle tick on
// every timeout. It returns when the connection drops or Disconnect is
// requested.
func (c *connection) run() {
	defer func() {
		_ = c.conn.Close()
		if c.session != nil {
			c.session.Unbind()
			c.registry.Unregister(c.session.ID())
		}
	}()

	spin := 0
	for {
		if c.closed.Load() {
			return
		}

		timeout := connReadTimeout
		if spin > 0 {
			timeout = 0
			spin--
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

		n, err := c.conn.Read(c.parser.Buffer())
		if n > 0 {
			c.parser.Advance(n)
			if !c.drainParser() {
				return
			}
			if c.session != nil {
				spin = c.session.PollSpin()
			}
			continue
		}

		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			if timeout == 0 {
				continue
			}
			if c.session != nil {
				c.session.Tick(time.Now())
			}
			if c.session != nil {
				spin = c.session.PollSpin()
			}
			continue
		}

		if c.closed.Load() {
			return
		}
		if err != nil {
			c.log.OnEvent("Connection read failed: " + err.Error())
		}
		return
	}
}

// drainParser extracts every complete frame from the parser. Garbled
// framing is logged and skipped; the connection survives. It reports
// false when an unroutable first frame requires dropping the connection.
func (c *connection) drainParser() bool {
	for {
		frame, err := c.parser.Parse()
		if errors.Is(err, ErrNeedMore) {
			return true
		}
		if err != nil {
			c.log.OnEvent("Discarding garbled data: " + err.Error())
			continue
		}

		if c.session == nil {
			s, ok := c.router.route(frame, c)
			if !ok {
				return false
			}
			c.session = s
		}
		c.session.Next(frame)
	}
}
