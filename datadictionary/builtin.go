package datadictionary

// Session-layer tags referenced by the built-in catalogue.
const (
	tagBeginSeqNo       = 7
	tagBeginString      = 8
	tagBodyLength       = 9
	tagCheckSum         = 10
	tagEndSeqNo         = 16
	tagMsgSeqNum        = 34
	tagMsgType          = 35
	tagNewSeqNo         = 36
	tagPossDupFlag      = 43
	tagRefSeqNum        = 45
	tagSenderCompID     = 49
	tagSenderSubID      = 50
	tagSendingTime      = 52
	tagTargetCompID     = 56
	tagTargetSubID      = 57
	tagText             = 58
	tagPossResend       = 97
	tagEncryptMethod    = 98
	tagHeartBtInt       = 108
	tagTestReqID        = 112
	tagOrigSendingTime  = 122
	tagGapFillFlag      = 123
	tagResetSeqNumFlag  = 141
	tagRefTagID         = 371
	tagRefMsgType       = 372
	tagSessionReject    = 373
	tagApplVerID        = 1128
	tagDefaultApplVerID = 1137
)

// SessionDefinitions builds the session-layer catalogue shared by every
// FIX version the engine speaks: the standard header and trailer plus the
// seven administrative message types. It is the dictionary of record when
// a session enables validation without configuring a repository file.
func SessionDefinitions(version string) *DataDictionary {
	d := New(version)
	d.SessionLayerOnly = true

	d.AddField(tagBeginString, "BeginString", TypeString).
		AddField(tagBodyLength, "BodyLength", TypeLength).
		AddField(tagCheckSum, "CheckSum", TypeString).
		AddField(tagMsgSeqNum, "MsgSeqNum", TypeSeqNum).
		AddField(tagMsgType, "MsgType", TypeString).
		AddField(tagSenderCompID, "SenderCompID", TypeString).
		AddField(tagSenderSubID, "SenderSubID", TypeString).
		AddField(tagTargetCompID, "TargetCompID", TypeString).
		AddField(tagTargetSubID, "TargetSubID", TypeString).
		AddField(tagSendingTime, "SendingTime", TypeUTCTimestamp).
		AddField(tagOrigSendingTime, "OrigSendingTime", TypeUTCTimestamp).
		AddField(tagPossDupFlag, "PossDupFlag", TypeBoolean).
		AddField(tagPossResend, "PossResend", TypeBoolean).
		AddField(tagBeginSeqNo, "BeginSeqNo", TypeSeqNum).
		AddField(tagEndSeqNo, "EndSeqNo", TypeSeqNum).
		AddField(tagNewSeqNo, "NewSeqNo", TypeSeqNum).
		AddField(tagGapFillFlag, "GapFillFlag", TypeBoolean).
		AddField(tagRefSeqNum, "RefSeqNum", TypeSeqNum).
		AddField(tagRefTagID, "RefTagID", TypeInt).
		AddField(tagRefMsgType, "RefMsgType", TypeString).
		AddField(tagSessionReject, "SessionRejectReason", TypeInt).
		AddField(tagText, "Text", TypeString).
		AddField(tagEncryptMethod, "EncryptMethod", TypeInt).
		AddField(tagHeartBtInt, "HeartBtInt", TypeInt).
		AddField(tagTestReqID, "TestReqID", TypeString).
		AddField(tagResetSeqNumFlag, "ResetSeqNumFlag", TypeBoolean).
		AddField(tagApplVerID, "ApplVerID", TypeString).
		AddField(tagDefaultApplVerID, "DefaultApplVerID", TypeString)

	d.AddHeaderField(tagBeginString, true).
		AddHeaderField(tagBodyLength, true).
		AddHeaderField(tagMsgType, true).
		AddHeaderField(tagSenderCompID, true).
		AddHeaderField(tagTargetCompID, true).
		AddHeaderField(tagMsgSeqNum, true).
		AddHeaderField(tagSendingTime, true).
		AddHeaderField(tagSenderSubID, false).
		AddHeaderField(tagTargetSubID, false).
		AddHeaderField(tagPossDupFlag, false).
		AddHeaderField(tagPossResend, false).
		AddHeaderField(tagOrigSendingTime, false).
		AddHeaderField(tagApplVerID, false)

	d.AddTrailerField(tagCheckSum, true)

	d.AddMessage("0", "Heartbeat").
		AddMessageField("0", tagTestReqID, false)

	d.AddMessage("1", "TestRequest").
		AddMessageField("1", tagTestReqID, true)

	d.AddMessage("2", "ResendRequest").
		AddMessageField("2", tagBeginSeqNo, true).
		AddMessageField("2", tagEndSeqNo, true)

	d.AddMessage("3", "Reject").
		AddMessageField("3", tagRefSeqNum, true).
		AddMessageField("3", tagRefTagID, false).
		AddMessageField("3", tagRefMsgType, false).
		AddMessageField("3", tagSessionReject, false).
		AddMessageField("3", tagText, false)

	d.AddMessage("4", "SequenceReset").
		AddMessageField("4", tagNewSeqNo, true).
		AddMessageField("4", tagGapFillFlag, false)

	d.AddMessage("5", "Logout").
		AddMessageField("5", tagText, false)

	d.AddMessage("A", "Logon").
		AddMessageField("A", tagEncryptMethod, true).
		AddMessageField("A", tagHeartBtInt, true).
		AddMessageField("A", tagResetSeqNumFlag, false).
		AddMessageField("A", tagDefaultApplVerID, false)
	d.AddEnum(tagEncryptMethod, "0", "1", "2", "3", "4", "5", "6")

	return d
}
