package fix

import "time"

// -------------------------------------------------------------------------
// Session State
// -------------------------------------------------------------------------

// SessionState is the coarse position of a session in its lifecycle. The
// fine-grained handshake bookkeeping (which side has sent or received its
// Logon) lives in the session's flags; the state exists for observation
// and for gating what traffic is legal.
type SessionState uint8

const (
	// StateDisconnected means no transport is bound.
	StateDisconnected SessionState = iota

	// StateLogonSent means the initiator has sent Logon and awaits the
	// acceptor's reply.
	StateLogonSent

	// StateLogonReceived means the acceptor has received a Logon and is
	// completing the handshake.
	StateLogonReceived

	// StateLoggedOn means the handshake is complete in both directions.
	StateLoggedOn

	// StateLogoutSent means a Logout is outstanding; the session waits
	// for the peer's response before dropping the transport.
	StateLogoutSent

	// StateResendRequested means the session is logged on with an
	// outstanding resend range; inbound messages above the gap are
	// queued until the range fills.
	StateResendRequested
)

// String returns the human-readable name of the state.
func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateLogonSent:
		return "LogonSent"
	case StateLogonReceived:
		return "LogonReceived"
	case StateLoggedOn:
		return "LoggedOn"
	case StateLogoutSent:
		return "LogoutSent"
	case StateResendRequested:
		return "ResendRequested"
	default:
		return "Unknown"
	}
}

// Role determines whether the session dials out or waits for the peer.
type Role uint8

const (
	// RoleAcceptor waits passively for inbound connections and logons.
	RoleAcceptor Role = iota + 1

	// RoleInitiator opens the connection and sends the first Logon.
	RoleInitiator
)

// String returns the human-readable name of the role.
func (r Role) String() string {
	switch r {
	case RoleAcceptor:
		return "acceptor"
	case RoleInitiator:
		return "initiator"
	default:
		return "Unknown"
	}
}

// -------------------------------------------------------------------------
// Observability and time ports
// -------------------------------------------------------------------------

// MetricsReporter receives engine events for export. The metrics package
// provides a Prometheus-backed implementation; the default is a no-op.
type MetricsReporter interface {
	SessionStateChanged(id SessionID, state SessionState)
	IncMessagesSent(id SessionID)
	IncMessagesReceived(id SessionID)
	IncRejects(id SessionID)
	IncResendRequests(id SessionID)
	IncDisconnects(id SessionID)
}

type noopMetrics struct{}

func (noopMetrics) SessionStateChanged(SessionID, SessionState) {}
func (noopMetrics) IncMessagesSent(SessionID)                   {}
func (noopMetrics) IncMessagesReceived(SessionID)               {}
func (noopMetrics) IncRejects(SessionID)                        {}
func (noopMetrics) IncResendRequests(SessionID)                 {}
func (noopMetrics) IncDisconnects(SessionID)                    {}

// Clock abstracts the wall clock so session timing rules are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }
