package fix

import (
	"errors"
	"fmt"
	"time"

	"github.com/tradewire/gofix/datadictionary"
)

// This file is the inbound half of the session state machine: framing
// checks, sequence-number enforcement, gap recovery and the per-message-
// type handlers. The outbound half and the timers live in session.go.

// Next processes one framed inbound message and then drains any queued
// post-gap messages whose turn has come.
func (s *Session) Next(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next(frame)
	s.drainQueue()
}

// next processes a single frame. Callers hold mu.
func (s *Session) next(frame []byte) {
	s.lastRecv = s.clock.Now()
	s.log.OnIncoming(frame)
	s.metrics.IncMessagesReceived(s.id)

	msg, err := ParseMessage(frame)
	if err != nil {
		s.log.OnEvent("Discarding unparseable message: " + err.Error())
		return
	}
	msg.ReceiveTime = s.lastRecv

	// A frame that fails the declared length or checksum cannot be
	// trusted for sequencing: reject it without advancing the inbound
	// sequence number.
	if s.cfg.validateLengthAndChecksum {
		if err := checkFrame(frame); err != nil {
			var rej RejectError
			if errors.As(err, &rej) {
				s.sendReject(msg, rej)
			}
			return
		}
	}

	if bs, err := msg.Header.GetString(TagBeginString); err != nil || bs != s.id.BeginString {
		s.log.OnEvent(fmt.Sprintf("Incorrect BeginString %q, disconnecting", bs))
		s.disconnect()
		return
	}

	msgType, err := msg.MsgType()
	if err != nil {
		s.rejectAndAdvance(msg, rejectRequiredTagMissing(TagMsgType))
		return
	}

	if s.cfg.checkCompID && !s.compIDsMatch(msg) {
		s.rejectAndAdvance(msg, rejectCompIDProblem())
		if !s.sentLogout {
			s.initiateLogout("CompID problem")
		}
		return
	}

	if msgType == MsgTypeLogon {
		s.nextLogon(msg)
		return
	}
	if !s.isLoggedOn() {
		s.log.OnEvent("First message is not a Logon, disconnecting")
		s.disconnect()
		return
	}

	// SequenceReset-Reset rewrites the expected sequence number outright
	// and is honored regardless of its own MsgSeqNum.
	if msgType == MsgTypeSequenceReset {
		if gapFill, err := msg.Body.GetBool(TagGapFillFlag); err != nil || !gapFill {
			s.nextSequenceResetReset(msg)
			return
		}
	}

	seq, err := msg.SeqNum()
	if err != nil {
		s.log.OnEvent("Discarding message without MsgSeqNum")
		return
	}
	expected := s.store.NextTargetMsgSeqNum()
	switch {
	case seq > expected:
		// An out-of-sequence ResendRequest is still answered: holding
		// it back while asking for our own gap would deadlock two
		// mutually gapped sessions. Its slot is consumed from the
		// queue once the replay catches up.
		if msgType == MsgTypeResendRequest {
			s.answerResendRequest(msg)
		}
		s.targetTooHigh(frame, seq, expected)
		return
	case seq < expected:
		s.targetTooLow(msg, seq, expected)
		return
	}

	if rej, ok := s.checkSendingTime(msg); !ok {
		s.rejectAndAdvance(msg, rej)
		return
	}

	transport, app := s.dictionariesFor(msg)
	if err := Validate(transport, app, msg); err != nil {
		var rej RejectError
		if errors.As(err, &rej) {
			s.rejectAndAdvance(msg, rej)
		}
		return
	}

	s.dispatch(msg, msgType)
}

// dispatch routes an in-sequence, validated message to its handler. Every
// path below commits the inbound sequence number only after the relevant
// application callback has returned.
func (s *Session) dispatch(msg *Message, msgType string) {
	switch msgType {
	case MsgTypeHeartbeat:
		s.nextHeartbeat(msg)
	case MsgTypeTestRequest:
		s.nextTestRequest(msg)
	case MsgTypeResendRequest:
		s.nextResendRequest(msg)
	case MsgTypeSequenceReset:
		s.nextSequenceResetGapFill(msg)
	case MsgTypeLogout:
		s.nextLogout(msg)
	case MsgTypeReject:
		if err := s.fromAdmin(msg); err != nil {
			return
		}
		s.advanceTarget()
	default:
		s.nextApplication(msg, msgType)
	}
}

// fromAdmin runs the FromAdmin callback, mapping a RejectError result to
// a session-level Reject (with sequence advance).
func (s *Session) fromAdmin(msg *Message) error {
	err := s.app.FromAdmin(msg, s.id)
	if err == nil {
		return nil
	}
	var rej RejectError
	if errors.As(err, &rej) {
		s.rejectAndAdvance(msg, rej)
		return err
	}
	s.log.OnEvent("FromAdmin failed: " + err.Error())
	return err
}

// rejectAndAdvance answers a protocol violation and commits the inbound
// sequence number, per the session-layer rules for non-garbled messages.
func (s *Session) rejectAndAdvance(msg *Message, rej RejectError) {
	s.sendReject(msg, rej)
	s.advanceTarget()
}

func (s *Session) advanceTarget() {
	if err := s.store.IncrNextTargetMsgSeqNum(); err != nil {
		s.log.OnEvent("advance target seqnum: " + err.Error())
	}
}

// compIDsMatch verifies the inbound identity against the configured
// session: their sender is our target and vice versa.
func (s *Session) compIDsMatch(msg *Message) bool {
	sender, _ := msg.Header.GetString(TagSenderCompID)
	target, _ := msg.Header.GetString(TagTargetCompID)
	return sender == s.id.TargetCompID && target == s.id.SenderCompID
}

// checkSendingTime enforces the latency tolerance on tag 52.
func (s *Session) checkSendingTime(msg *Message) (RejectError, bool) {
	if !s.cfg.checkLatency {
		return RejectError{}, true
	}
	st, err := msg.Header.GetUTCTimestamp(TagSendingTime)
	if err != nil {
		// Missing or malformed SendingTime is the validator's concern.
		return RejectError{}, true
	}
	delta := s.clock.Now().Sub(st)
	if delta < 0 {
		delta = -delta
	}
	if delta > s.cfg.maxLatency {
		return rejectSendingTimeAccuracy(), false
	}
	return RejectError{}, true
}

// dictionariesFor resolves the transport and application dictionaries for
// one message. Classic FIX sessions use one dictionary for both roles;
// FIXT selects the application dictionary by tag 1128, falling back to
// the session default.
func (s *Session) dictionariesFor(msg *Message) (transport, app *datadictionary.DataDictionary) {
	transport = s.transportDict
	applVerID := s.cfg.defaultApplVerID
	if s.id.IsFIXT() {
		if v, err := msg.Header.GetString(TagApplVerID); err == nil {
			applVerID = v
		}
	} else {
		applVerID = s.id.BeginString
	}
	d, err := s.provider.ApplicationDictionary(ApplVerIDFor(applVerID))
	if err != nil {
		return transport, datadictionary.Empty
	}
	return transport, d
}

// -------------------------------------------------------------------------
// Sequence gap handling
// -------------------------------------------------------------------------

// targetTooHigh queues the early frame and requests the missing range
// [expected, seq-1] from the peer.
func (s *Session) targetTooHigh(frame []byte, seq, expected int) {
	s.log.OnEvent(fmt.Sprintf("MsgSeqNum too high, expecting %d but received %d", expected, seq))
	if _, queued := s.queue[seq]; !queued {
		s.queue[seq] = append([]byte(nil), frame...)
	}

	if s.resendHigh > 0 && !s.cfg.sendRedundantResendRequests {
		// A resend covering the gap is already outstanding.
		return
	}
	s.sendResendRequest(expected, seq-1)
}

func (s *Session) sendResendRequest(begin, end int) {
	rr := NewMessage()
	rr.Header.SetString(TagMsgType, MsgTypeResendRequest)
	rr.Body.SetInt(TagBeginSeqNo, begin)
	rr.Body.SetInt(TagEndSeqNo, end)
	if err := s.sendAdmin(rr); err != nil {
		s.log.OnEvent("ResendRequest send failed: " + err.Error())
		return
	}
	s.resendLow, s.resendHigh = begin, end
	s.setState(StateResendRequested)
	s.metrics.IncResendRequests(s.id)
	s.log.OnEvent(fmt.Sprintf("Sent ResendRequest for %d..%d", begin, end))
}

// targetTooLow tolerates possible duplicates and drops the connection on
// anything else: a sequence number below the expected one without
// PossDupFlag means the two sides have diverged irrecoverably.
func (s *Session) targetTooLow(msg *Message, seq, expected int) {
	if !msg.PossDup() {
		text := fmt.Sprintf("MsgSeqNum too low, expecting %d but received %d", expected, seq)
		s.log.OnEvent(text)
		s.initiateLogout(text)
		s.disconnect()
		return
	}

	// Duplicate of an already processed message: verify the resend
	// stamping and discard. No sequence movement.
	orig, err := msg.Header.GetUTCTimestamp(TagOrigSendingTime)
	if err == nil {
		if st, err2 := msg.Header.GetUTCTimestamp(TagSendingTime); err2 == nil && orig.After(st) {
			s.sendReject(msg, rejectSendingTimeAccuracy())
			return
		}
	}
	s.log.OnEvent(fmt.Sprintf("Discarding possible duplicate %d", seq))
}

// drainQueue replays queued post-gap frames once the expected sequence
// number reaches them, and retires a satisfied resend range.
func (s *Session) drainQueue() {
	for {
		expected := s.store.NextTargetMsgSeqNum()
		if s.resendHigh > 0 && expected > s.resendHigh {
			s.resendLow, s.resendHigh = 0, 0
			if s.isLoggedOn() && !s.sentLogout {
				s.setState(StateLoggedOn)
			}
			s.log.OnEvent("ResendRequest satisfied")
		}
		frame, ok := s.queue[expected]
		if !ok {
			return
		}
		delete(s.queue, expected)

		// Queued Logons and ResendRequests were already answered when
		// they arrived; their slot is consumed without reprocessing.
		if m, err := ParseMessage(frame); err == nil {
			if mt, err := m.MsgType(); err == nil && (mt == MsgTypeLogon || mt == MsgTypeResendRequest) {
				s.advanceTarget()
				continue
			}
		}
		s.log.OnEvent(fmt.Sprintf("Processing queued message %d", expected))
		s.next(frame)
	}
}

// -------------------------------------------------------------------------
// Admin message handlers
// -------------------------------------------------------------------------

// nextLogon completes the handshake. The acceptor side adopts the peer's
// heartbeat interval and answers with its own Logon; both sides honor
// ResetSeqNumFlag and the configured reset policies.
func (s *Session) nextLogon(msg *Message) {
	seq, err := msg.SeqNum()
	if err != nil {
		s.rejectAndAdvance(msg, rejectRequiredTagMissing(TagMsgSeqNum))
		return
	}

	if now := s.clock.Now(); !s.cfg.logonTime.Contains(now) || !s.cfg.sessionTime.Contains(now) {
		s.log.OnEvent("Logon received outside session time, disconnecting")
		s.initiateLogout("Logon outside of session time")
		s.disconnect()
		return
	}

	if s.cfg.role == RoleAcceptor {
		s.setState(StateLogonReceived)
		if s.cfg.resetOnLogon {
			s.resetStore()
		}
		if s.cfg.refreshOnLogon {
			if err := s.store.Refresh(); err != nil {
				s.log.OnEvent("Store refresh failed: " + err.Error())
			}
		}
	}

	if reset, err := msg.Body.GetBool(TagResetSeqNumFlag); err == nil && reset {
		s.log.OnEvent("Logon carries ResetSeqNumFlag, resetting sequence numbers")
		if err := s.store.SetNextTargetMsgSeqNum(1); err != nil {
			s.log.OnEvent("reset target seqnum: " + err.Error())
		}
		if !s.sentLogon {
			if err := s.store.SetNextSenderMsgSeqNum(1); err != nil {
				s.log.OnEvent("reset sender seqnum: " + err.Error())
			}
		}
	}

	if err := s.app.FromAdmin(msg, s.id); err != nil {
		if errors.Is(err, ErrRejectLogon) {
			s.log.OnEvent("Logon refused by application")
			s.initiateLogout("Logon rejected")
			s.disconnect()
			return
		}
		var rej RejectError
		if errors.As(err, &rej) {
			s.rejectAndAdvance(msg, rej)
			return
		}
	}

	expected := s.store.NextTargetMsgSeqNum()
	if seq < expected {
		text := fmt.Sprintf("MsgSeqNum too low on Logon, expecting %d but received %d", expected, seq)
		s.log.OnEvent(text)
		s.initiateLogout(text)
		s.disconnect()
		return
	}

	if s.cfg.role == RoleAcceptor {
		if hb, err := msg.Body.GetInt(TagHeartBtInt); err == nil && hb > 0 {
			s.heartBtInt = time.Duration(hb) * time.Second
		} else {
			s.heartBtInt = s.cfg.heartBtInt
		}
		if err := s.sendLogonReply(msg); err != nil {
			s.log.OnEvent("Logon reply failed: " + err.Error())
			s.disconnect()
			return
		}
		s.sentLogon = true
	}

	s.recvLogon = true
	s.setState(StateLoggedOn)
	s.log.OnEvent("Logon accepted")
	s.app.OnLogon(s.id)

	switch {
	case seq == expected:
		s.advanceTarget()
	case seq > expected:
		// Respond first, then recover the gap. The Logon frame is
		// queued so its slot is consumed when the replay catches up,
		// but it is never reprocessed.
		s.queue[seq] = append([]byte(nil), msg.Raw()...)
		s.sendResendRequest(expected, seq-1)
	}
}

// sendLogonReply answers an accepted inbound Logon.
func (s *Session) sendLogonReply(inbound *Message) error {
	reply := NewMessage()
	reply.Header.SetString(TagMsgType, MsgTypeLogon)
	reply.Body.SetInt(TagEncryptMethod, 0)
	reply.Body.SetInt(TagHeartBtInt, int(s.heartBtInt/time.Second))
	if reset, err := inbound.Body.GetBool(TagResetSeqNumFlag); err == nil && reset {
		reply.Body.SetBool(TagResetSeqNumFlag, true)
	}
	if s.id.IsFIXT() {
		reply.Body.SetString(TagDefaultApplVerID, s.cfg.defaultApplVerID)
	}
	return s.sendAdmin(reply)
}

func (s *Session) nextHeartbeat(msg *Message) {
	if err := s.fromAdmin(msg); err != nil {
		return
	}
	if s.pendingTestReqID != "" {
		if token, err := msg.Body.GetString(TagTestReqID); err == nil && token == s.pendingTestReqID {
			s.pendingTestReqID = ""
		}
	}
	s.advanceTarget()
}

func (s *Session) nextTestRequest(msg *Message) {
	if err := s.fromAdmin(msg); err != nil {
		return
	}
	token, _ := msg.Body.Get(TagTestReqID)
	s.sendHeartbeat(token)
	s.advanceTarget()
}

func (s *Session) nextResendRequest(msg *Message) {
	if err := s.fromAdmin(msg); err != nil {
		return
	}
	if !s.answerResendRequest(msg) {
		s.rejectAndAdvance(msg, rejectRequiredTagMissing(TagBeginSeqNo))
		return
	}
	s.advanceTarget()
}

// answerResendRequest replays the range named by an inbound
// ResendRequest. It reports false when the range fields are unusable.
func (s *Session) answerResendRequest(msg *Message) bool {
	begin, errB := msg.Body.GetInt(TagBeginSeqNo)
	end, errE := msg.Body.GetInt(TagEndSeqNo)
	if errB != nil || errE != nil {
		return false
	}
	s.resendMessages(begin, end)
	return true
}

// nextSequenceResetGapFill handles an in-sequence SequenceReset-GapFill:
// the peer declares the range up to NewSeqNo unreplayable.
func (s *Session) nextSequenceResetGapFill(msg *Message) {
	if err := s.fromAdmin(msg); err != nil {
		return
	}
	newSeq, err := msg.Body.GetInt(TagNewSeqNo)
	if err != nil {
		s.rejectAndAdvance(msg, rejectRequiredTagMissing(TagNewSeqNo))
		return
	}
	expected := s.store.NextTargetMsgSeqNum()
	if newSeq < expected {
		s.rejectAndAdvance(msg, rejectValueOutOfRange(TagNewSeqNo))
		return
	}
	s.log.OnEvent(fmt.Sprintf("GapFill advances expected sequence to %d", newSeq))
	if err := s.store.SetNextTargetMsgSeqNum(newSeq); err != nil {
		s.log.OnEvent("set target seqnum: " + err.Error())
	}
}

// nextSequenceResetReset handles SequenceReset-Reset, which rewrites the
// expected sequence number unconditionally.
func (s *Session) nextSequenceResetReset(msg *Message) {
	if err := s.fromAdmin(msg); err != nil {
		return
	}
	newSeq, err := msg.Body.GetInt(TagNewSeqNo)
	if err != nil {
		s.rejectAndAdvance(msg, rejectRequiredTagMissing(TagNewSeqNo))
		return
	}
	s.log.OnEvent(fmt.Sprintf("SequenceReset-Reset sets expected sequence to %d", newSeq))
	if err := s.store.SetNextTargetMsgSeqNum(newSeq); err != nil {
		s.log.OnEvent("set target seqnum: " + err.Error())
	}
	s.clearResendState()
	if s.isLoggedOn() && !s.sentLogout {
		s.setState(StateLoggedOn)
	}
}

func (s *Session) nextLogout(msg *Message) {
	if err := s.fromAdmin(msg); err != nil {
		return
	}
	s.advanceTarget()

	if s.sentLogout {
		s.log.OnEvent("Received logout response")
	} else {
		s.log.OnEvent("Received logout request, responding")
		s.initiateLogout("")
	}
	if s.cfg.resetOnLogout {
		s.resetStore()
	}
	s.disconnect()
}

// nextApplication validates delivery to the application and maps callback
// failures to the corresponding reject.
func (s *Session) nextApplication(msg *Message, msgType string) {
	err := s.app.FromApp(msg, s.id)
	if err == nil {
		s.advanceTarget()
		return
	}

	var rej RejectError
	if errors.As(err, &rej) {
		s.rejectAndAdvance(msg, rej)
		return
	}
	var brej BusinessRejectError
	if errors.As(err, &brej) {
		s.sendBusinessReject(msg, brej)
		s.advanceTarget()
		return
	}
	s.log.OnEvent(fmt.Sprintf("FromApp failed for %s: %s", msgType, err))
	s.advanceTarget()
}

// -------------------------------------------------------------------------
// Resend
// -------------------------------------------------------------------------

// resendMessages replays the requested range. Stored application
// messages go out re-stamped with PossDupFlag and OrigSendingTime;
// everything else — administrative traffic and unpersisted messages — is
// collapsed into SequenceReset-GapFill.
func (s *Session) resendMessages(begin, end int) {
	next := s.store.NextSenderMsgSeqNum()
	if end == 0 || end >= next {
		end = next - 1
	}
	if begin < 1 {
		begin = 1
	}
	if begin > end {
		s.sendGapFill(begin, next)
		return
	}

	var stored [][]byte
	if s.cfg.persistMessages {
		var err error
		stored, err = s.store.Get(begin, end)
		if err != nil {
			s.log.OnEvent("Store read failed, gap filling resend range: " + err.Error())
			stored = nil
		}
	}

	cur := begin
	for _, raw := range stored {
		m, err := ParseMessage(raw)
		if err != nil {
			continue
		}
		seq, err := m.SeqNum()
		if err != nil || seq < cur {
			continue
		}
		if m.IsAdmin() {
			continue
		}
		if seq > cur {
			s.sendGapFill(cur, seq)
		}
		s.resendOne(m)
		cur = seq + 1
	}
	if cur <= end {
		s.sendGapFill(cur, end+1)
	}
}

// resendOne re-stamps and retransmits a stored application message.
func (s *Session) resendOne(m *Message) {
	if orig, err := m.Header.Get(TagSendingTime); err == nil {
		m.Header.Set(TagOrigSendingTime, append([]byte(nil), orig...))
	}
	m.Header.SetBool(TagPossDupFlag, true)
	m.Header.SetUTCTimestamp(TagSendingTime, s.clock.Now(), s.cfg.millisecondsInTimestamp)
	raw := m.Build()
	if s.responder == nil || !s.responder.Send(raw) {
		s.log.OnEvent("Resend write failed")
		return
	}
	s.log.OnOutgoing(raw)
	s.metrics.IncMessagesSent(s.id)
	s.lastSent = s.clock.Now()
}

// sendGapFill emits SequenceReset-GapFill occupying seq and pointing the
// peer's expectation at newSeqNo. The message reuses seq rather than
// consuming a fresh sequence number.
func (s *Session) sendGapFill(seq, newSeqNo int) {
	gf := NewMessage()
	gf.Header.SetString(TagMsgType, MsgTypeSequenceReset)
	gf.Header.SetBool(TagPossDupFlag, true)
	gf.Body.SetBool(TagGapFillFlag, true)
	gf.Body.SetInt(TagNewSeqNo, newSeqNo)
	s.fillHeader(gf, seq)
	raw := gf.Build()
	if s.responder == nil || !s.responder.Send(raw) {
		s.log.OnEvent("GapFill write failed")
		return
	}
	s.log.OnOutgoing(raw)
	s.metrics.IncMessagesSent(s.id)
	s.lastSent = s.clock.Now()
	s.log.OnEvent(fmt.Sprintf("Sent GapFill %d -> %d", seq, newSeqNo))
}
