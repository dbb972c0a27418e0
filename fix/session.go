package fix

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tradewire/gofix/datadictionary"
)

// -------------------------------------------------------------------------
// Session Configuration
// -------------------------------------------------------------------------

// Default tolerances applied when the settings leave them unset.
const (
	defaultLogonTimeout  = 10 * time.Second
	defaultLogoutTimeout = 2 * time.Second
	defaultMaxLatency    = 120 * time.Second
)

// sessionConfig is the factory-assembled, immutable behavior of one
// session.
type sessionConfig struct {
	role Role

	heartBtInt    time.Duration
	logonTimeout  time.Duration
	logoutTimeout time.Duration
	maxLatency    time.Duration

	checkCompID               bool
	checkLatency              bool
	validateLengthAndChecksum bool

	resetOnLogon      bool
	resetOnLogout     bool
	resetOnDisconnect bool
	refreshOnLogon    bool

	persistMessages             bool
	millisecondsInTimestamp     bool
	sendRedundantResendRequests bool

	defaultApplVerID string

	sessionTime TimeRange
	logonTime   TimeRange

	pollSpin int
}

// -------------------------------------------------------------------------
// Session
// -------------------------------------------------------------------------

// Session is one FIX session: the sequence-number bookkeeping, the logon
// and logout handshakes, heartbeat and test-request liveness, gap
// recovery, and the dictionary validation of every inbound message.
//
// All mutable state is guarded by mu. The bound connection goroutine
// drives Next and Tick; Bind and Unbind are the only cross-thread
// mutations, and the coarse state is additionally kept in an atomic for
// lock-free external reads.
type Session struct {
	id  SessionID
	cfg sessionConfig

	app     Application
	store   MessageStore
	log     Log
	metrics MetricsReporter
	clock   Clock

	provider      *datadictionary.Provider
	transportDict *datadictionary.DataDictionary

	state atomic.Uint32

	mu        sync.Mutex
	responder Responder
	bound     bool

	enabled    bool
	sentLogon  bool
	recvLogon  bool
	sentLogout bool

	sentLogoutAt time.Time
	connectedAt  time.Time
	lastRecv     time.Time
	lastSent     time.Time

	heartBtInt time.Duration // effective; acceptors adopt the peer's

	pendingTestReqID string
	testReqSentAt    time.Time
	testReqCounter   uint64

	// Outstanding resend range (resendLow..resendHigh, inclusive) and
	// the frames queued above the gap, keyed by sequence number.
	resendLow  int
	resendHigh int
	queue      map[int][]byte
}

// ID returns the session's identity.
func (s *Session) ID() SessionID { return s.id }

// State returns the session's coarse state (atomic read).
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// IsLoggedOn reports whether the logon handshake is complete in both
// directions.
func (s *Session) IsLoggedOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isLoggedOn()
}

func (s *Session) isLoggedOn() bool { return s.sentLogon && s.recvLogon }

// NextSenderMsgSeqNum returns the sequence number the next outbound
// message will carry.
func (s *Session) NextSenderMsgSeqNum() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.NextSenderMsgSeqNum()
}

// NextTargetMsgSeqNum returns the next expected inbound sequence number.
func (s *Session) NextTargetMsgSeqNum() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.NextTargetMsgSeqNum()
}

// IsEnabled reports whether the session wants to be logged on.
func (s *Session) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// PollSpin returns the configured zero-timeout poll count for the
// session's connection reader.
func (s *Session) PollSpin() int { return s.cfg.pollSpin }

// setState updates the coarse state and reports the change.
func (s *Session) setState(st SessionState) {
	if SessionState(s.state.Swap(uint32(st))) != st {
		s.metrics.SessionStateChanged(s.id, st)
	}
}

// -------------------------------------------------------------------------
// Enable / Disable
// -------------------------------------------------------------------------

// Logon marks the session as wanting to be logged on. Initiators dial on
// the next scheduler pass; acceptors accept the next inbound logon.
func (s *Session) Logon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = true
}

// Logout disables the session. A logged-on session initiates the logout
// handshake immediately.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	if s.isLoggedOn() && !s.sentLogout {
		s.initiateLogout("")
	}
}

// -------------------------------------------------------------------------
// Responder binding
// -------------------------------------------------------------------------

// Bind attaches the transport. The session's outbound traffic flows
// through r until Unbind or disconnect.
func (s *Session) Bind(r Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.responder = r
	s.bound = true
	s.connectedAt = now
	s.lastRecv = now
	s.lastSent = now
	s.log.OnEvent(fmt.Sprintf("Connection bound (%s -> %s)", r.LocalAddr(), r.RemoteAddr()))
}

// Unbind detaches the transport after a connection loss, applying the
// disconnect bookkeeping. Idempotent.
func (s *Session) Unbind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.afterDisconnect()
}

// InitiateLogon starts the handshake on a freshly bound initiator
// connection.
func (s *Session) InitiateLogon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.role != RoleInitiator || !s.bound {
		return
	}
	if s.cfg.resetOnLogon {
		s.resetStore()
	}
	if s.cfg.refreshOnLogon {
		if err := s.store.Refresh(); err != nil {
			s.log.OnEvent("Store refresh failed: " + err.Error())
		}
	}
	s.heartBtInt = s.cfg.heartBtInt

	logon := NewMessage()
	logon.Header.SetString(TagMsgType, MsgTypeLogon)
	logon.Body.SetInt(TagEncryptMethod, 0)
	logon.Body.SetInt(TagHeartBtInt, int(s.heartBtInt/time.Second))
	if s.cfg.resetOnLogon {
		logon.Body.SetBool(TagResetSeqNumFlag, true)
	}
	if s.id.IsFIXT() {
		logon.Body.SetString(TagDefaultApplVerID, s.cfg.defaultApplVerID)
	}
	if err := s.sendAdmin(logon); err != nil {
		s.log.OnEvent("Logon send failed: " + err.Error())
		return
	}
	s.sentLogon = true
	s.setState(StateLogonSent)
	s.log.OnEvent("Initiated logon request")
}

// Disconnect drops the transport immediately.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnect()
}

// disconnect closes the responder and applies disconnect bookkeeping.
// Callers hold mu.
func (s *Session) disconnect() {
	if s.responder != nil {
		s.responder.Disconnect()
	}
	s.afterDisconnect()
}

// afterDisconnect resets per-connection state. Callers hold mu.
func (s *Session) afterDisconnect() {
	if !s.bound {
		return
	}
	s.bound = false
	s.responder = nil

	if s.isLoggedOn() {
		s.app.OnLogout(s.id)
		s.log.OnEvent("Disconnected while logged on")
	}
	s.sentLogon = false
	s.recvLogon = false
	s.sentLogout = false
	s.pendingTestReqID = ""
	s.clearResendState()
	s.setState(StateDisconnected)
	s.metrics.IncDisconnects(s.id)

	if s.cfg.resetOnDisconnect {
		s.resetStore()
	}
}

func (s *Session) clearResendState() {
	s.resendLow, s.resendHigh = 0, 0
	for k := range s.queue {
		delete(s.queue, k)
	}
}

// resetStore rewinds both sequence counters and drops the message log.
func (s *Session) resetStore() {
	if err := s.store.Reset(); err != nil {
		s.log.OnEvent("Store reset failed: " + err.Error())
		return
	}
	s.log.OnEvent("Sequence numbers reset to 1")
}

// -------------------------------------------------------------------------
// Outbound path
// -------------------------------------------------------------------------

// Send encodes and transmits an application message on this session. The
// header identity and sequencing fields are filled here; the caller
// supplies MsgType and the body. Returning nil after ErrDoNotSend from
// the application means the message was deliberately suppressed.
func (s *Session) Send(msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.bound {
		return ErrNoResponder
	}
	if !s.isLoggedOn() {
		return ErrNotLoggedOn
	}

	if err := s.app.ToApp(msg, s.id); err != nil {
		if err == ErrDoNotSend {
			s.log.OnEvent("Application suppressed outbound message")
			return nil
		}
		return err
	}
	return s.sendMessage(msg, false)
}

// sendAdmin encodes and transmits a session-layer message. Callers hold mu.
func (s *Session) sendAdmin(msg *Message) error {
	s.app.ToAdmin(msg, s.id)
	return s.sendMessage(msg, true)
}

// sendMessage fills the header, encodes, persists application traffic and
// writes to the responder. Callers hold mu.
func (s *Session) sendMessage(msg *Message, admin bool) error {
	if s.responder == nil {
		return ErrNoResponder
	}
	seq := s.store.NextSenderMsgSeqNum()
	s.fillHeader(msg, seq)
	raw := msg.Build()

	// The sequence number commits only after the store accepts the
	// message, so a persistence failure cannot desynchronize the wire.
	if !admin && s.cfg.persistMessages {
		if err := s.store.Set(seq, raw); err != nil {
			return fmt.Errorf("persist outbound %d: %w", seq, err)
		}
	}
	if err := s.store.IncrNextSenderMsgSeqNum(); err != nil {
		return fmt.Errorf("advance sender seqnum: %w", err)
	}

	if !s.responder.Send(raw) {
		s.log.OnEvent("Send failed, disconnecting")
		s.disconnect()
		return ErrNoResponder
	}
	s.log.OnOutgoing(raw)
	s.metrics.IncMessagesSent(s.id)
	s.lastSent = s.clock.Now()
	return nil
}

// fillHeader stamps the identity, sequence and time fields.
func (s *Session) fillHeader(msg *Message, seq int) {
	msg.Header.SetString(TagBeginString, s.id.BeginString)
	msg.Header.SetString(TagSenderCompID, s.id.SenderCompID)
	msg.Header.SetString(TagTargetCompID, s.id.TargetCompID)
	msg.Header.SetInt(TagMsgSeqNum, seq)
	msg.Header.SetUTCTimestamp(TagSendingTime, s.clock.Now(), s.cfg.millisecondsInTimestamp)
}

// sendHeartbeat emits a Heartbeat, echoing a TestReqID when answering a
// TestRequest. Callers hold mu.
func (s *Session) sendHeartbeat(testReqID []byte) {
	hb := NewMessage()
	hb.Header.SetString(TagMsgType, MsgTypeHeartbeat)
	if len(testReqID) > 0 {
		hb.Body.Set(TagTestReqID, append([]byte(nil), testReqID...))
	}
	if err := s.sendAdmin(hb); err != nil {
		s.log.OnEvent("Heartbeat send failed: " + err.Error())
	}
}

// sendTestRequest emits a TestRequest with a fresh token. Callers hold mu.
func (s *Session) sendTestRequest(now time.Time) {
	s.testReqCounter++
	token := fmt.Sprintf("TEST-%d", s.testReqCounter)
	tr := NewMessage()
	tr.Header.SetString(TagMsgType, MsgTypeTestRequest)
	tr.Body.SetString(TagTestReqID, token)
	if err := s.sendAdmin(tr); err != nil {
		s.log.OnEvent("TestRequest send failed: " + err.Error())
		return
	}
	s.pendingTestReqID = token
	s.testReqSentAt = now
}

// initiateLogout sends a Logout and starts the logout timer. Callers
// hold mu.
func (s *Session) initiateLogout(text string) {
	lo := NewMessage()
	lo.Header.SetString(TagMsgType, MsgTypeLogout)
	if text != "" {
		lo.Body.SetString(TagText, text)
	}
	if err := s.sendAdmin(lo); err != nil {
		s.log.OnEvent("Logout send failed: " + err.Error())
		s.disconnect()
		return
	}
	s.sentLogout = true
	s.sentLogoutAt = s.clock.Now()
	s.setState(StateLogoutSent)
	s.log.OnEvent("Initiated logout request")
}

// supportsTag373 reports whether the session's FIX version carries
// SessionRejectReason and RefTagID on Rejects (4.2 onward, and FIXT).
func (s *Session) supportsTag373() bool {
	return s.id.BeginString >= BeginStringFIX42
}

// sendReject answers msg with a session-level Reject (35=3).
func (s *Session) sendReject(msg *Message, rej RejectError) {
	out := NewMessage()
	out.Header.SetString(TagMsgType, MsgTypeReject)
	if seq, err := msg.SeqNum(); err == nil {
		out.Body.SetInt(TagRefSeqNum, seq)
	}
	if s.supportsTag373() {
		out.Body.SetInt(TagSessionRejectReason, int(rej.Reason))
		if rej.RefTag != 0 {
			out.Body.SetInt(TagRefTagID, int(rej.RefTag))
		}
		if mt, err := msg.MsgType(); err == nil {
			out.Body.SetString(TagRefMsgType, mt)
		}
	}
	if rej.Text != "" {
		out.Body.SetString(TagText, rej.Text)
	}
	s.metrics.IncRejects(s.id)
	s.log.OnEvent("Message rejected: " + rej.Error())
	if err := s.sendAdmin(out); err != nil {
		s.log.OnEvent("Reject send failed: " + err.Error())
	}
}

// sendBusinessReject answers msg with a BusinessMessageReject (35=j).
func (s *Session) sendBusinessReject(msg *Message, rej BusinessRejectError) {
	out := NewMessage()
	out.Header.SetString(TagMsgType, MsgTypeBusinessMessageReject)
	if seq, err := msg.SeqNum(); err == nil {
		out.Body.SetInt(TagRefSeqNum, seq)
	}
	if rej.RefMsgType != "" {
		out.Body.SetString(TagRefMsgType, rej.RefMsgType)
	} else if mt, err := msg.MsgType(); err == nil {
		out.Body.SetString(TagRefMsgType, mt)
	}
	out.Body.SetInt(TagBusinessRejectReason, int(rej.Reason))
	if rej.Text != "" {
		out.Body.SetString(TagText, rej.Text)
	}
	s.metrics.IncRejects(s.id)
	if err := s.sendAdmin(out); err != nil {
		s.log.OnEvent("BusinessMessageReject send failed: " + err.Error())
	}
}

// -------------------------------------------------------------------------
// Idle tick
// -------------------------------------------------------------------------

// Tick drives the session's timers. The connection reader calls it on
// every poll timeout (roughly once per second); there are no per-event
// timers.
func (s *Session) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.bound {
		return
	}

	if !s.isLoggedOn() {
		if s.sentLogout {
			// Logout sent before the handshake completed.
			if now.Sub(s.sentLogoutAt) >= s.cfg.logoutTimeout {
				s.disconnect()
			}
			return
		}
		if now.Sub(s.connectedAt) >= s.cfg.logonTimeout {
			s.log.OnEvent("Timed out waiting for logon")
			s.disconnect()
		}
		return
	}

	if !s.cfg.sessionTime.Contains(now) {
		if !s.sentLogout {
			s.log.OnEvent("Session time ended, logging out")
			s.initiateLogout("Session close time")
		}
	}

	if s.sentLogout {
		if now.Sub(s.sentLogoutAt) >= s.cfg.logoutTimeout {
			s.log.OnEvent("Timed out waiting for logout response")
			s.disconnect()
		}
		return
	}

	// Liveness ladder: heartbeat on send silence, test request on
	// receive silence, disconnect when the test request goes unanswered.
	if s.pendingTestReqID != "" {
		if now.Sub(s.testReqSentAt) >= s.heartBtInt {
			s.log.OnEvent("Timed out waiting for test request response")
			s.disconnect()
			return
		}
	} else if s.heartBtInt > 0 && now.Sub(s.lastRecv) >= s.heartBtInt+s.cfg.maxLatency {
		s.sendTestRequest(now)
		return
	}

	if s.heartBtInt > 0 && now.Sub(s.lastSent) >= s.heartBtInt {
		s.sendHeartbeat(nil)
	}
}

// InSessionTime reports whether now falls inside the configured session
// window. Acceptors refuse connections outside it.
func (s *Session) InSessionTime(now time.Time) bool {
	return s.cfg.sessionTime.Contains(now)
}
