package fix

import "strings"

// SessionID uniquely identifies a FIX session: the protocol version and
// the two counterparty identifiers, optionally qualified to distinguish
// multiple initiator sessions against the same counterparty.
type SessionID struct {
	BeginString  string
	SenderCompID string
	TargetCompID string

	// Qualifier disambiguates otherwise identical initiator sessions.
	// Never set on acceptors.
	Qualifier string
}

// String renders the canonical form, e.g. "FIX.4.4:SENDER->TARGET".
func (id SessionID) String() string {
	var b strings.Builder
	b.WriteString(id.BeginString)
	b.WriteByte(':')
	b.WriteString(id.SenderCompID)
	b.WriteString("->")
	b.WriteString(id.TargetCompID)
	if id.Qualifier != "" {
		b.WriteByte(':')
		b.WriteString(id.Qualifier)
	}
	return b.String()
}

// IsFIXT reports whether the session runs the FIXT transport, which
// splits session-layer versioning from application-layer versioning.
func (id SessionID) IsFIXT() bool {
	return strings.HasPrefix(id.BeginString, "FIXT")
}

// Reversed returns the counterparty's view of the session: the same
// version with Sender and Target swapped. The qualifier does not survive
// the swap; inbound routing matches on the unqualified triple.
func (id SessionID) Reversed() SessionID {
	return SessionID{
		BeginString:  id.BeginString,
		SenderCompID: id.TargetCompID,
		TargetCompID: id.SenderCompID,
	}
}
