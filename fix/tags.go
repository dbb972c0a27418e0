// Package fix implements the core of a FIX session engine: the tag-value
// message model, the streaming framer, the session state machine with
// sequence tracking and gap recovery, and the acceptor/initiator wiring
// that binds network connections to configured sessions.
package fix

// Tag identifies a FIX field by its numeric wire tag.
type Tag int

// Standard header, trailer and session-layer tags used by the engine.
const (
	TagBeginSeqNo             Tag = 7
	TagBeginString            Tag = 8
	TagBodyLength             Tag = 9
	TagCheckSum               Tag = 10
	TagEndSeqNo               Tag = 16
	TagMsgSeqNum              Tag = 34
	TagMsgType                Tag = 35
	TagNewSeqNo               Tag = 36
	TagPossDupFlag            Tag = 43
	TagRefSeqNum              Tag = 45
	TagSenderCompID           Tag = 49
	TagSenderSubID            Tag = 50
	TagSendingTime            Tag = 52
	TagTargetCompID           Tag = 56
	TagTargetSubID            Tag = 57
	TagText                   Tag = 58
	TagSignature              Tag = 89
	TagSignatureLength        Tag = 93
	TagPossResend             Tag = 97
	TagEncryptMethod          Tag = 98
	TagHeartBtInt             Tag = 108
	TagTestReqID              Tag = 112
	TagOnBehalfOfCompID       Tag = 115
	TagOnBehalfOfSubID        Tag = 116
	TagOrigSendingTime        Tag = 122
	TagGapFillFlag            Tag = 123
	TagDeliverToCompID        Tag = 128
	TagDeliverToSubID         Tag = 129
	TagResetSeqNumFlag        Tag = 141
	TagSenderLocationID       Tag = 142
	TagTargetLocationID       Tag = 143
	TagXMLDataLen             Tag = 212
	TagXMLData                Tag = 213
	TagMessageEncoding        Tag = 347
	TagLastMsgSeqNumProcessed Tag = 369
	TagRefTagID               Tag = 371
	TagRefMsgType             Tag = 372
	TagSessionRejectReason    Tag = 373
	TagBusinessRejectRefID    Tag = 379
	TagBusinessRejectReason   Tag = 380
	TagApplVerID              Tag = 1128
	TagCstmApplVerID          Tag = 1129
	TagDefaultApplVerID       Tag = 1137
)

// userDefinedTagMin is the first tag number of the user-defined range.
const userDefinedTagMin = 5000

// MsgType values for the session-layer (administrative) messages the
// engine originates and consumes.
const (
	MsgTypeHeartbeat             = "0"
	MsgTypeTestRequest           = "1"
	MsgTypeResendRequest         = "2"
	MsgTypeReject                = "3"
	MsgTypeSequenceReset         = "4"
	MsgTypeLogout                = "5"
	MsgTypeLogon                 = "A"
	MsgTypeBusinessMessageReject = "j"
)

// BeginString literals for the protocol versions the engine speaks.
const (
	BeginStringFIX40  = "FIX.4.0"
	BeginStringFIX41  = "FIX.4.1"
	BeginStringFIX42  = "FIX.4.2"
	BeginStringFIX43  = "FIX.4.3"
	BeginStringFIX44  = "FIX.4.4"
	BeginStringFIXT11 = "FIXT.1.1"
)

// ApplVerID enumeration values carried in tag 1128 under FIXT.
const (
	ApplVerIDFIX27    = "0"
	ApplVerIDFIX30    = "1"
	ApplVerIDFIX40    = "2"
	ApplVerIDFIX41    = "3"
	ApplVerIDFIX42    = "4"
	ApplVerIDFIX43    = "5"
	ApplVerIDFIX44    = "6"
	ApplVerIDFIX50    = "7"
	ApplVerIDFIX50SP1 = "8"
	ApplVerIDFIX50SP2 = "9"
)

// applVerIDByBeginString maps pre-FIXT BeginString literals to the
// equivalent ApplVerID enumeration value. Under FIXT the application
// version arrives explicitly in tag 1128 or via DefaultApplVerID.
var applVerIDByBeginString = map[string]string{
	BeginStringFIX40: ApplVerIDFIX40,
	BeginStringFIX41: ApplVerIDFIX41,
	BeginStringFIX42: ApplVerIDFIX42,
	BeginStringFIX43: ApplVerIDFIX43,
	BeginStringFIX44: ApplVerIDFIX44,
	"FIX.5.0":        ApplVerIDFIX50,
	"FIX.5.0SP1":     ApplVerIDFIX50SP1,
	"FIX.5.0SP2":     ApplVerIDFIX50SP2,
}

// ApplVerIDFor returns the ApplVerID enumeration equivalent to the given
// version string. Both BeginString-style literals ("FIX.4.4") and already
// enumerated values ("6") are accepted; unrecognized input is returned
// unchanged so user-defined application versions pass through.
func ApplVerIDFor(version string) string {
	if v, ok := applVerIDByBeginString[version]; ok {
		return v
	}
	return version
}

// headerTags is the set of standard header tags for field classification
// during message parsing. Tags 8, 9 and 35 always lead the header on the
// wire; the remainder may appear in any order.
var headerTags = map[Tag]struct{}{
	TagBeginString: {}, TagBodyLength: {}, TagMsgType: {},
	TagSenderCompID: {}, TagTargetCompID: {}, TagMsgSeqNum: {},
	TagSenderSubID: {}, TagTargetSubID: {},
	TagSenderLocationID: {}, TagTargetLocationID: {},
	TagOnBehalfOfCompID: {}, TagOnBehalfOfSubID: {},
	TagDeliverToCompID: {}, TagDeliverToSubID: {},
	TagPossDupFlag: {}, TagPossResend: {},
	TagSendingTime: {}, TagOrigSendingTime: {},
	TagXMLDataLen: {}, TagXMLData: {},
	TagMessageEncoding: {}, TagLastMsgSeqNumProcessed: {},
	TagApplVerID: {}, TagCstmApplVerID: {},
}

// trailerTags is the set of standard trailer tags.
var trailerTags = map[Tag]struct{}{
	TagCheckSum: {}, TagSignature: {}, TagSignatureLength: {},
}

// IsHeaderTag reports whether t belongs to the standard message header.
func IsHeaderTag(t Tag) bool {
	_, ok := headerTags[t]
	return ok
}

// IsTrailerTag reports whether t belongs to the standard message trailer.
func IsTrailerTag(t Tag) bool {
	_, ok := trailerTags[t]
	return ok
}

// IsAdminMsgType reports whether the message type is session-layer
// administrative traffic (handled by the engine, not the application).
func IsAdminMsgType(msgType string) bool {
	switch msgType {
	case MsgTypeHeartbeat, MsgTypeTestRequest, MsgTypeResendRequest,
		MsgTypeReject, MsgTypeSequenceReset, MsgTypeLogout, MsgTypeLogon:
		return true
	}
	return false
}
