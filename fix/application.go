package fix

// Application is the upward port of the engine. The session invokes these
// callbacks synchronously while holding its own lock; implementations
// must not call back into the same session from inside a callback.
//
// An error returned from FromApp is mapped to a reject response:
// a RejectError becomes a session-level Reject (35=3), a
// BusinessRejectError becomes a BusinessMessageReject (35=j). The inbound
// sequence number is committed only after the callback returns, so a
// panic-free failure never desynchronizes the session.
type Application interface {
	// OnCreate is invoked once when the session is materialized by the
	// factory, before any connection exists.
	OnCreate(id SessionID)

	// OnLogon is invoked when the logon handshake completes.
	OnLogon(id SessionID)

	// OnLogout is invoked when the session logs out or the connection
	// drops while logged on.
	OnLogout(id SessionID)

	// ToAdmin is invoked on every outbound administrative message before
	// it is encoded; the application may decorate it (e.g. credentials
	// on a Logon).
	ToAdmin(msg *Message, id SessionID)

	// FromAdmin is invoked on every validated inbound administrative
	// message. Returning ErrRejectLogon from an inbound Logon refuses
	// the handshake: the session sends a Logout and disconnects.
	FromAdmin(msg *Message, id SessionID) error

	// ToApp is invoked on every outbound application message before it
	// is encoded. Returning ErrDoNotSend suppresses the message without
	// consuming a sequence number.
	ToApp(msg *Message, id SessionID) error

	// FromApp is invoked on every validated inbound application message.
	FromApp(msg *Message, id SessionID) error
}

// Responder is the outbound byte sink of a bound session, typically a
// socket write wrapper. All of a session's outbound traffic is serialized
// through its responder; rebinding is explicit.
type Responder interface {
	// Send writes one encoded message. It reports false when the
	// transport is no longer usable.
	Send(b []byte) bool

	// Disconnect closes the transport.
	Disconnect()

	// RemoteAddr returns the peer address, for logging.
	RemoteAddr() string

	// LocalAddr returns the local address, for logging.
	LocalAddr() string
}
