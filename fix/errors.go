package fix

import (
	"errors"
	"fmt"
)

// -------------------------------------------------------------------------
// Sentinel Errors
// -------------------------------------------------------------------------

var (
	// ErrFieldNotFound indicates a requested tag is absent from a message
	// section.
	ErrFieldNotFound = errors.New("field not found")

	// ErrNeedMore indicates the framer does not yet hold a complete message.
	ErrNeedMore = errors.New("incomplete message in buffer")

	// ErrGarbled indicates bytes that cannot be framed as a FIX message.
	// The framer discards the offending prefix before returning this.
	ErrGarbled = errors.New("garbled message")

	// ErrSessionNotFound indicates no session is configured or registered
	// for the given SessionID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDuplicateSession indicates a session is already registered under
	// the given SessionID.
	ErrDuplicateSession = errors.New("session already registered")

	// ErrNotLoggedOn indicates an operation that requires an established
	// session was attempted while logged off.
	ErrNotLoggedOn = errors.New("session not logged on")

	// ErrNoResponder indicates the session has no bound transport to
	// write to.
	ErrNoResponder = errors.New("session has no responder")

	// ErrDoNotSend is returned from Application.ToApp to abort sending an
	// outbound application message. The message consumes no sequence number.
	ErrDoNotSend = errors.New("do not send")

	// ErrRejectLogon is returned from Application.FromAdmin on an inbound
	// Logon to refuse the logon. The session responds with a Logout and
	// disconnects.
	ErrRejectLogon = errors.New("logon rejected by application")
)

// ConfigError reports an invalid engine or session configuration detected
// at factory time. Configuration errors abort engine startup.
type ConfigError struct {
	Setting string
	Reason  string
}

func (e ConfigError) Error() string {
	if e.Setting == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Setting, e.Reason)
}

// -------------------------------------------------------------------------
// Session Reject Reasons — tag 373
// -------------------------------------------------------------------------

// SessionRejectReason is the enumerated value carried in tag 373 of a
// session-level Reject (35=3).
type SessionRejectReason int

const (
	RejectInvalidTagNumber           SessionRejectReason = 0
	RejectRequiredTagMissing         SessionRejectReason = 1
	RejectTagNotDefinedForMessage    SessionRejectReason = 2
	RejectUndefinedTag               SessionRejectReason = 3
	RejectTagSpecifiedWithoutValue   SessionRejectReason = 4
	RejectValueOutOfRange            SessionRejectReason = 5
	RejectIncorrectDataFormat        SessionRejectReason = 6
	RejectCompIDProblem              SessionRejectReason = 9
	RejectSendingTimeAccuracyProblem SessionRejectReason = 10
	RejectInvalidMsgType             SessionRejectReason = 11
	RejectTagAppearsMoreThanOnce     SessionRejectReason = 13
	RejectTagOutOfOrder              SessionRejectReason = 14
	RejectIncorrectNumInGroupCount   SessionRejectReason = 16
)

// BusinessRejectReason is the enumerated value carried in tag 380 of a
// BusinessMessageReject (35=j).
type BusinessRejectReason int

const (
	BusinessRejectUnsupportedMessageType            BusinessRejectReason = 3
	BusinessRejectApplicationNotAvailable           BusinessRejectReason = 4
	BusinessRejectConditionallyRequiredFieldMissing BusinessRejectReason = 5
)

// RejectError describes a protocol-level violation in an inbound message.
// The session answers it with a Reject (35=3) carrying the reason in tag
// 373 and, when known, the offending tag in 371; the inbound sequence
// number still advances, except for a frame that fails the BodyLength or
// CheckSum check, which is rejected without advancing.
type RejectError struct {
	Reason SessionRejectReason
	RefTag Tag
	Text   string
}

func (e RejectError) Error() string {
	if e.RefTag != 0 {
		return fmt.Sprintf("%s (tag %d)", e.Text, e.RefTag)
	}
	return e.Text
}

func rejectRequiredTagMissing(t Tag) RejectError {
	return RejectError{Reason: RejectRequiredTagMissing, RefTag: t, Text: "required tag missing"}
}

func rejectUndefinedTag(t Tag) RejectError {
	return RejectError{Reason: RejectUndefinedTag, RefTag: t, Text: "tag not defined for this FIX version"}
}

func rejectTagNotDefinedForMessage(t Tag) RejectError {
	return RejectError{Reason: RejectTagNotDefinedForMessage, RefTag: t, Text: "tag not defined for this message type"}
}

func rejectTagWithoutValue(t Tag) RejectError {
	return RejectError{Reason: RejectTagSpecifiedWithoutValue, RefTag: t, Text: "tag specified without a value"}
}

func rejectValueOutOfRange(t Tag) RejectError {
	return RejectError{Reason: RejectValueOutOfRange, RefTag: t, Text: "value is incorrect (out of range) for this tag"}
}

func rejectIncorrectDataFormat(t Tag) RejectError {
	return RejectError{Reason: RejectIncorrectDataFormat, RefTag: t, Text: "incorrect data format for value"}
}

func rejectCompIDProblem() RejectError {
	return RejectError{Reason: RejectCompIDProblem, Text: "CompID problem"}
}

func rejectSendingTimeAccuracy() RejectError {
	return RejectError{Reason: RejectSendingTimeAccuracyProblem, Text: "SendingTime accuracy problem"}
}

func rejectInvalidMsgType() RejectError {
	return RejectError{Reason: RejectInvalidMsgType, Text: "invalid MsgType"}
}

func rejectTagOutOfOrder(t Tag) RejectError {
	return RejectError{Reason: RejectTagOutOfOrder, RefTag: t, Text: "tag specified out of required order"}
}

func rejectGroupCount(t Tag) RejectError {
	return RejectError{Reason: RejectIncorrectNumInGroupCount, RefTag: t, Text: "incorrect NumInGroup count for repeating group"}
}

// BusinessRejectError describes an application-level failure raised from
// Application.FromApp. The session answers it with a BusinessMessageReject
// (35=j) and the inbound sequence number advances.
type BusinessRejectError struct {
	Reason     BusinessRejectReason
	RefMsgType string
	Text       string
}

func (e BusinessRejectError) Error() string { return e.Text }

// UnsupportedMessageType is raised from Application.FromApp when the
// application does not handle the inbound message type.
func UnsupportedMessageType(msgType string) BusinessRejectError {
	return BusinessRejectError{
		Reason:     BusinessRejectUnsupportedMessageType,
		RefMsgType: msgType,
		Text:       "unsupported message type",
	}
}
