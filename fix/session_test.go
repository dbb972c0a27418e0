package fix_test

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/tradewire/gofix/config"
	"github.com/tradewire/gofix/fix"
)

// -------------------------------------------------------------------------
// Test doubles
// -------------------------------------------------------------------------

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubResponder records every frame the session writes.
type stubResponder struct {
	mu           sync.Mutex
	frames       [][]byte
	disconnected bool
}

func (r *stubResponder) Send(b []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, append([]byte(nil), b...))
	return true
}

func (r *stubResponder) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = true
}

func (r *stubResponder) RemoteAddr() string { return "peer:0" }
func (r *stubResponder) LocalAddr() string  { return "local:0" }

func (r *stubResponder) isDisconnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnected
}

// sent returns the i-th recorded frame, parsed.
func (r *stubResponder) sent(t *testing.T, i int) *fix.Message {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if i >= len(r.frames) {
		t.Fatalf("want sent frame %d, only %d recorded", i, len(r.frames))
	}
	m, err := fix.ParseMessage(r.frames[i])
	if err != nil {
		t.Fatalf("parse sent frame %d: %v", i, err)
	}
	return m
}

func (r *stubResponder) sentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// lastSent returns the most recent recorded frame, parsed.
func (r *stubResponder) lastSent(t *testing.T) *fix.Message {
	t.Helper()
	return r.sent(t, r.sentCount()-1)
}

// recordingApp counts callbacks and optionally refuses logons.
type recordingApp struct {
	mu          sync.Mutex
	logons      int
	logouts     int
	fromApp     []string
	rejectLogon bool
}

func (a *recordingApp) OnCreate(fix.SessionID) {}

func (a *recordingApp) OnLogon(fix.SessionID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logons++
}

func (a *recordingApp) OnLogout(fix.SessionID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logouts++
}

func (a *recordingApp) ToAdmin(*fix.Message, fix.SessionID) {}

func (a *recordingApp) FromAdmin(msg *fix.Message, _ fix.SessionID) error {
	if a.rejectLogon {
		if mt, _ := msg.MsgType(); mt == fix.MsgTypeLogon {
			return fix.ErrRejectLogon
		}
	}
	return nil
}

func (a *recordingApp) ToApp(*fix.Message, fix.SessionID) error { return nil }

func (a *recordingApp) FromApp(msg *fix.Message, _ fix.SessionID) error {
	mt, _ := msg.MsgType()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fromApp = append(a.fromApp, mt)
	return nil
}

func (a *recordingApp) logonCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logons
}

func (a *recordingApp) logoutCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logouts
}

func (a *recordingApp) fromAppTypes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.fromApp...)
}

// sharedStoreFactory hands every session the same store so tests can
// preset sequence numbers.
type sharedStoreFactory struct{ store fix.MessageStore }

func (f sharedStoreFactory) Create(fix.SessionID) (fix.MessageStore, error) {
	return f.store, nil
}

// -------------------------------------------------------------------------
// Harness
// -------------------------------------------------------------------------

type sessionHarness struct {
	session *fix.Session
	resp    *stubResponder
	app     *recordingApp
	clock   *fakeClock
	store   *fix.MemoryStore
}

// newSessionHarness builds a bound session against stub collaborators.
func newSessionHarness(t *testing.T, role string, mod func(*config.SessionSettings)) *sessionHarness {
	t.Helper()

	ss := config.DefaultSessionSettings()
	ss.ConnectionType = role
	ss.BeginString = "FIX.4.4"
	ss.SenderCompID = "EXEC"
	ss.TargetCompID = "BANZAI"
	ss.HeartBtInt = 30
	if mod != nil {
		mod(&ss)
	}

	h := &sessionHarness{
		resp:  &stubResponder{},
		app:   &recordingApp{},
		clock: newFakeClock(),
		store: fix.NewMemoryStore(),
	}
	factory := fix.NewSessionFactory(h.app, sharedStoreFactory{store: h.store}, fix.WithClock(h.clock))
	s, err := factory.Create(ss)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	h.session = s
	s.Bind(h.resp)
	return h
}

// peer builds a checksum-correct inbound frame from the counterparty.
func (h *sessionHarness) peer(msgType string, seq int, mod func(*fix.Message)) []byte {
	m := fix.NewMessage()
	m.Header.SetString(fix.TagBeginString, "FIX.4.4")
	m.Header.SetString(fix.TagMsgType, msgType)
	m.Header.SetString(fix.TagSenderCompID, "BANZAI")
	m.Header.SetString(fix.TagTargetCompID, "EXEC")
	m.Header.SetInt(fix.TagMsgSeqNum, seq)
	m.Header.SetUTCTimestamp(fix.TagSendingTime, h.clock.Now(), true)
	if mod != nil {
		mod(m)
	}
	return m.Build()
}

// peerLogon is a well-formed inbound Logon.
func (h *sessionHarness) peerLogon(seq int, mod func(*fix.Message)) []byte {
	return h.peer(fix.MsgTypeLogon, seq, func(m *fix.Message) {
		m.Body.SetInt(fix.TagEncryptMethod, 0)
		m.Body.SetInt(fix.TagHeartBtInt, 30)
		if mod != nil {
			mod(m)
		}
	})
}

// logOn drives the acceptor-side handshake to completion.
func (h *sessionHarness) logOn(t *testing.T) {
	t.Helper()
	h.session.Next(h.peerLogon(1, nil))
	if !h.session.IsLoggedOn() {
		t.Fatal("handshake did not complete")
	}
}

func bodyString(t *testing.T, m *fix.Message, tag fix.Tag) string {
	t.Helper()
	v, err := m.Body.GetString(tag)
	if err != nil {
		t.Fatalf("body tag %d missing", tag)
	}
	return v
}

// -------------------------------------------------------------------------
// Scenarios
// -------------------------------------------------------------------------

func TestCleanLogonAcceptor(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", nil)
	h.session.Next(h.peerLogon(1, nil))

	if !h.session.IsLoggedOn() {
		t.Fatal("session must be logged on after the handshake")
	}
	if h.app.logonCount() != 1 {
		t.Errorf("OnLogon calls = %d", h.app.logonCount())
	}

	reply := h.resp.sent(t, 0)
	if mt, _ := reply.MsgType(); mt != fix.MsgTypeLogon {
		t.Fatalf("reply type = %q, want Logon", mt)
	}
	if seq, _ := reply.SeqNum(); seq != 1 {
		t.Errorf("reply seq = %d, want 1", seq)
	}
	if hb := bodyString(t, reply, fix.TagHeartBtInt); hb != "30" {
		t.Errorf("reply HeartBtInt = %s, want 30 (adopted from peer)", hb)
	}
	if em := bodyString(t, reply, fix.TagEncryptMethod); em != "0" {
		t.Errorf("reply EncryptMethod = %s", em)
	}

	if h.session.NextTargetMsgSeqNum() != 2 || h.session.NextSenderMsgSeqNum() != 2 {
		t.Errorf("sequence numbers after handshake = %d/%d, want 2/2",
			h.session.NextTargetMsgSeqNum(), h.session.NextSenderMsgSeqNum())
	}
	if h.session.State() != fix.StateLoggedOn {
		t.Errorf("state = %v", h.session.State())
	}
}

func TestCleanLogonInitiator(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "initiator", func(ss *config.SessionSettings) {
		ss.SocketConnectHost = "peer"
		ss.SocketConnectPort = 9876
	})
	h.session.InitiateLogon()

	if h.session.State() != fix.StateLogonSent {
		t.Fatalf("state after InitiateLogon = %v", h.session.State())
	}
	logon := h.resp.sent(t, 0)
	if mt, _ := logon.MsgType(); mt != fix.MsgTypeLogon {
		t.Fatalf("first frame = %q, want Logon", mt)
	}

	h.session.Next(h.peerLogon(1, nil))
	if !h.session.IsLoggedOn() || h.app.logonCount() != 1 {
		t.Fatal("initiator did not complete the handshake")
	}
}

func TestGapFillScenario(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", nil)
	h.logOn(t)

	// Fast-forward the expectation to 5 to mirror an established
	// session with history.
	if err := h.store.SetNextTargetMsgSeqNum(5); err != nil {
		t.Fatal(err)
	}

	// Application message arrives early at seq 8.
	h.session.Next(h.peer("D", 8, func(m *fix.Message) {
		m.Body.SetString(fix.Tag(11), "order-1")
	}))

	rr := h.resp.lastSent(t)
	if mt, _ := rr.MsgType(); mt != fix.MsgTypeResendRequest {
		t.Fatalf("expected ResendRequest, got %q", mt)
	}
	if bodyString(t, rr, fix.TagBeginSeqNo) != "5" || bodyString(t, rr, fix.TagEndSeqNo) != "7" {
		t.Errorf("resend range = %s..%s, want 5..7",
			bodyString(t, rr, fix.TagBeginSeqNo), bodyString(t, rr, fix.TagEndSeqNo))
	}
	if h.session.State() != fix.StateResendRequested {
		t.Errorf("state = %v, want ResendRequested", h.session.State())
	}
	if len(h.app.fromAppTypes()) != 0 {
		t.Error("queued message must not reach the application yet")
	}

	// Peer gap-fills 5..7.
	h.session.Next(h.peer(fix.MsgTypeSequenceReset, 5, func(m *fix.Message) {
		m.Header.SetBool(fix.TagPossDupFlag, true)
		m.Body.SetBool(fix.TagGapFillFlag, true)
		m.Body.SetInt(fix.TagNewSeqNo, 8)
	}))

	if got := h.app.fromAppTypes(); len(got) != 1 || got[0] != "D" {
		t.Fatalf("queued message not delivered after gap fill: %v", got)
	}
	if h.session.NextTargetMsgSeqNum() != 9 {
		t.Errorf("expected inbound = %d, want 9", h.session.NextTargetMsgSeqNum())
	}
	if h.session.State() != fix.StateLoggedOn {
		t.Errorf("state = %v, want LoggedOn after recovery", h.session.State())
	}
}

func TestTestRequestLadder(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", nil)
	h.logOn(t)
	sentBefore := h.resp.sentCount()

	// Silence past HeartBtInt+MaxLatency provokes a TestRequest.
	h.clock.Advance(31*time.Second + 120*time.Second)
	h.session.Tick(h.clock.Now())

	tr := h.resp.sent(t, sentBefore)
	if mt, _ := tr.MsgType(); mt != fix.MsgTypeTestRequest {
		t.Fatalf("expected TestRequest, got %q", mt)
	}
	token := bodyString(t, tr, fix.TagTestReqID)

	// The matching Heartbeat keeps the session alive.
	h.session.Next(h.peer(fix.MsgTypeHeartbeat, 2, func(m *fix.Message) {
		m.Body.SetString(fix.TagTestReqID, token)
	}))
	h.clock.Advance(29 * time.Second)
	h.session.Tick(h.clock.Now())

	if h.resp.isDisconnected() {
		t.Fatal("session disconnected despite a matching heartbeat")
	}
	if !h.session.IsLoggedOn() {
		t.Fatal("session must remain logged on")
	}
}

func TestTestRequestTimeoutDisconnects(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", nil)
	h.logOn(t)

	h.clock.Advance(31*time.Second + 120*time.Second)
	h.session.Tick(h.clock.Now()) // TestRequest goes out

	h.clock.Advance(31 * time.Second)
	h.session.Tick(h.clock.Now()) // no answer within HeartBtInt

	if !h.resp.isDisconnected() {
		t.Fatal("session must disconnect after an unanswered TestRequest")
	}
	if h.app.logoutCount() != 1 {
		t.Errorf("OnLogout calls = %d", h.app.logoutCount())
	}
}

func TestInboundTestRequestAnswered(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", nil)
	h.logOn(t)

	h.session.Next(h.peer(fix.MsgTypeTestRequest, 2, func(m *fix.Message) {
		m.Body.SetString(fix.TagTestReqID, "PING-7")
	}))

	hb := h.resp.lastSent(t)
	if mt, _ := hb.MsgType(); mt != fix.MsgTypeHeartbeat {
		t.Fatalf("expected Heartbeat answer, got %q", mt)
	}
	if bodyString(t, hb, fix.TagTestReqID) != "PING-7" {
		t.Error("Heartbeat must echo the TestReqID")
	}
}

func TestHeartbeatOnSendSilence(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", nil)
	h.logOn(t)
	sentBefore := h.resp.sentCount()

	// Keep inbound traffic flowing so only the outbound side is idle.
	h.clock.Advance(30 * time.Second)
	h.session.Next(h.peer(fix.MsgTypeHeartbeat, 2, nil))
	h.session.Tick(h.clock.Now())

	found := false
	for i := sentBefore; i < h.resp.sentCount(); i++ {
		if mt, _ := h.resp.sent(t, i).MsgType(); mt == fix.MsgTypeHeartbeat {
			found = true
		}
	}
	if !found {
		t.Fatal("session must emit a Heartbeat after HeartBtInt of send silence")
	}
}

func TestBadChecksumRejectedWithoutAdvance(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", nil)
	h.logOn(t)

	frame := h.peer(fix.MsgTypeHeartbeat, 2, func(m *fix.Message) {
		m.Body.SetString(fix.TagTestReqID, "AAAA")
	})
	// Corrupt one value byte; length is unchanged, checksum no longer
	// matches.
	bad := append([]byte(nil), frame...)
	i := bytes.Index(bad, []byte("AAAA"))
	bad[i] = 'B'

	h.session.Next(bad)

	rej := h.resp.lastSent(t)
	if mt, _ := rej.MsgType(); mt != fix.MsgTypeReject {
		t.Fatalf("expected Reject, got %q", mt)
	}
	if bodyString(t, rej, fix.TagSessionRejectReason) != "5" {
		t.Errorf("reject reason = %s, want 5", bodyString(t, rej, fix.TagSessionRejectReason))
	}
	if bodyString(t, rej, fix.TagRefSeqNum) != "2" {
		t.Errorf("RefSeqNum = %s, want 2", bodyString(t, rej, fix.TagRefSeqNum))
	}
	if h.session.NextTargetMsgSeqNum() != 2 {
		t.Errorf("expected inbound advanced to %d on a garbled frame", h.session.NextTargetMsgSeqNum())
	}
}

func TestCompIDMismatch(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", nil)
	h.logOn(t)

	h.session.Next(h.peer(fix.MsgTypeHeartbeat, 2, func(m *fix.Message) {
		m.Header.SetString(fix.TagSenderCompID, "X")
		m.Header.SetString(fix.TagTargetCompID, "Y")
	}))

	var sawReject, sawLogout bool
	for i := 0; i < h.resp.sentCount(); i++ {
		m := h.resp.sent(t, i)
		switch mt, _ := m.MsgType(); mt {
		case fix.MsgTypeReject:
			sawReject = true
			if v, err := m.Body.GetString(fix.TagSessionRejectReason); err != nil || v != "9" {
				t.Errorf("reject reason = %q, want 9", v)
			}
		case fix.MsgTypeLogout:
			sawLogout = true
		}
	}
	if !sawReject || !sawLogout {
		t.Errorf("CompID mismatch must produce Reject and Logout (reject=%v logout=%v)", sawReject, sawLogout)
	}
}

func TestResetOnLogon(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", func(ss *config.SessionSettings) {
		ss.ResetOnLogon = true
	})
	// Pretend a previous run left stale sequence numbers behind.
	if err := h.store.SetNextTargetMsgSeqNum(40); err != nil {
		t.Fatal(err)
	}
	if err := h.store.SetNextSenderMsgSeqNum(40); err != nil {
		t.Fatal(err)
	}

	h.session.Next(h.peerLogon(1, func(m *fix.Message) {
		m.Body.SetBool(fix.TagResetSeqNumFlag, true)
	}))

	if !h.session.IsLoggedOn() {
		t.Fatal("handshake failed")
	}
	reply := h.resp.sent(t, 0)
	if v, err := reply.Body.GetBool(fix.TagResetSeqNumFlag); err != nil || !v {
		t.Error("reply must echo ResetSeqNumFlag")
	}
	if h.session.NextTargetMsgSeqNum() != 2 || h.session.NextSenderMsgSeqNum() != 2 {
		t.Errorf("sequence numbers = %d/%d, want 2/2 after reset handshake",
			h.session.NextTargetMsgSeqNum(), h.session.NextSenderMsgSeqNum())
	}
}

func TestSeqNumTooLowDisconnects(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", nil)
	h.logOn(t)
	if err := h.store.SetNextTargetMsgSeqNum(5); err != nil {
		t.Fatal(err)
	}

	h.session.Next(h.peer(fix.MsgTypeHeartbeat, 2, nil))

	lo := h.resp.lastSent(t)
	if mt, _ := lo.MsgType(); mt != fix.MsgTypeLogout {
		t.Fatalf("expected Logout, got %q", mt)
	}
	if !h.resp.isDisconnected() {
		t.Fatal("session must disconnect on a low sequence number without PossDup")
	}
}

func TestPossDupTooLowDiscarded(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", nil)
	h.logOn(t)
	if err := h.store.SetNextTargetMsgSeqNum(5); err != nil {
		t.Fatal(err)
	}

	h.session.Next(h.peer("D", 2, func(m *fix.Message) {
		m.Header.SetBool(fix.TagPossDupFlag, true)
		m.Header.SetUTCTimestamp(fix.TagOrigSendingTime, h.clock.Now().Add(-time.Minute), true)
	}))

	if len(h.app.fromAppTypes()) != 0 {
		t.Error("possible duplicate must not reach the application")
	}
	if h.resp.isDisconnected() {
		t.Error("possible duplicate must not disconnect the session")
	}
	if h.session.NextTargetMsgSeqNum() != 5 {
		t.Error("possible duplicate must not move the expected sequence")
	}
}

func TestResendReplaysWithPossDupAndGapFills(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", nil)
	h.logOn(t)

	// Two application messages after the Logon: seqs 2 and 3.
	for _, id := range []string{"order-1", "order-2"} {
		m := fix.NewMessage()
		m.Header.SetString(fix.TagMsgType, "D")
		m.Body.SetString(fix.Tag(11), id)
		if err := h.session.Send(m); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	sentBefore := h.resp.sentCount()

	// Peer asks for everything.
	h.session.Next(h.peer(fix.MsgTypeResendRequest, 2, func(m *fix.Message) {
		m.Body.SetInt(fix.TagBeginSeqNo, 1)
		m.Body.SetInt(fix.TagEndSeqNo, 0)
	}))

	// Expected replay: GapFill over the Logon slot, then both orders
	// re-stamped as possible duplicates.
	gf := h.resp.sent(t, sentBefore)
	if mt, _ := gf.MsgType(); mt != fix.MsgTypeSequenceReset {
		t.Fatalf("first replay frame = %q, want SequenceReset", mt)
	}
	if seq, _ := gf.SeqNum(); seq != 1 {
		t.Errorf("gap fill seq = %d, want 1", seq)
	}
	if bodyString(t, gf, fix.TagNewSeqNo) != "2" {
		t.Errorf("gap fill NewSeqNo = %s, want 2", bodyString(t, gf, fix.TagNewSeqNo))
	}

	for i := 0; i < 2; i++ {
		m := h.resp.sent(t, sentBefore+1+i)
		if mt, _ := m.MsgType(); mt != "D" {
			t.Fatalf("replay frame %d = %q, want D", i, mt)
		}
		if !m.PossDup() {
			t.Error("replayed message must carry PossDupFlag=Y")
		}
		if !m.Header.Has(fix.TagOrigSendingTime) {
			t.Error("replayed message must carry OrigSendingTime")
		}
		if seq, _ := m.SeqNum(); seq != 2+i {
			t.Errorf("replay seq = %d, want %d", seq, 2+i)
		}
	}
}

func TestResendWithoutPersistenceGapFillsEverything(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", func(ss *config.SessionSettings) {
		ss.PersistMessages = false
	})
	h.logOn(t)

	m := fix.NewMessage()
	m.Header.SetString(fix.TagMsgType, "D")
	m.Body.SetString(fix.Tag(11), "order-1")
	if err := h.session.Send(m); err != nil {
		t.Fatal(err)
	}
	sentBefore := h.resp.sentCount()

	h.session.Next(h.peer(fix.MsgTypeResendRequest, 2, func(m *fix.Message) {
		m.Body.SetInt(fix.TagBeginSeqNo, 1)
		m.Body.SetInt(fix.TagEndSeqNo, 0)
	}))

	gf := h.resp.sent(t, sentBefore)
	if mt, _ := gf.MsgType(); mt != fix.MsgTypeSequenceReset {
		t.Fatalf("expected pure GapFill replay, got %q", mt)
	}
	if bodyString(t, gf, fix.TagNewSeqNo) != "3" {
		t.Errorf("GapFill NewSeqNo = %s, want 3 (next sender seq)", bodyString(t, gf, fix.TagNewSeqNo))
	}
	if h.resp.sentCount() != sentBefore+1 {
		t.Error("unpersisted application messages must not be replayed")
	}
}

func TestLogoutHandshake(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", nil)
	h.logOn(t)

	h.session.Logout()
	lo := h.resp.lastSent(t)
	if mt, _ := lo.MsgType(); mt != fix.MsgTypeLogout {
		t.Fatalf("expected Logout, got %q", mt)
	}
	if h.session.State() != fix.StateLogoutSent {
		t.Errorf("state = %v, want LogoutSent", h.session.State())
	}

	h.session.Next(h.peer(fix.MsgTypeLogout, 2, nil))
	if !h.resp.isDisconnected() {
		t.Fatal("session must disconnect after the logout response")
	}
	if h.app.logoutCount() != 1 {
		t.Errorf("OnLogout calls = %d", h.app.logoutCount())
	}
}

func TestInboundLogoutAnswered(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", nil)
	h.logOn(t)

	h.session.Next(h.peer(fix.MsgTypeLogout, 2, nil))

	lo := h.resp.lastSent(t)
	if mt, _ := lo.MsgType(); mt != fix.MsgTypeLogout {
		t.Fatalf("inbound Logout must be answered, got %q", mt)
	}
	if !h.resp.isDisconnected() {
		t.Fatal("session must disconnect after answering a Logout")
	}
}

func TestRejectLogonCallback(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", nil)
	h.app.rejectLogon = true

	h.session.Next(h.peerLogon(1, nil))

	if h.session.IsLoggedOn() {
		t.Fatal("refused logon must not complete")
	}
	lo := h.resp.sent(t, 0)
	if mt, _ := lo.MsgType(); mt != fix.MsgTypeLogout {
		t.Fatalf("expected Logout on refusal, got %q", mt)
	}
	if !h.resp.isDisconnected() {
		t.Fatal("refused logon must disconnect")
	}
	if h.app.logonCount() != 0 {
		t.Error("OnLogon must not fire for a refused logon")
	}
}

func TestValidationRejectAdvancesSequence(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", nil)
	h.logOn(t)

	// TestRequest without its required TestReqID.
	h.session.Next(h.peer(fix.MsgTypeTestRequest, 2, nil))

	rej := h.resp.lastSent(t)
	if mt, _ := rej.MsgType(); mt != fix.MsgTypeReject {
		t.Fatalf("expected Reject, got %q", mt)
	}
	if bodyString(t, rej, fix.TagSessionRejectReason) != "1" {
		t.Errorf("reason = %s, want 1 (required tag missing)", bodyString(t, rej, fix.TagSessionRejectReason))
	}
	if bodyString(t, rej, fix.TagRefTagID) != "112" {
		t.Errorf("RefTagID = %s, want 112", bodyString(t, rej, fix.TagRefTagID))
	}
	if h.session.NextTargetMsgSeqNum() != 3 {
		t.Errorf("protocol reject must advance the sequence, got %d", h.session.NextTargetMsgSeqNum())
	}
}

func TestLatencyReject(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", func(ss *config.SessionSettings) {
		ss.MaxLatency = 2
	})
	h.logOn(t)

	stale := h.clock.Now().Add(-time.Minute)
	h.session.Next(h.peer(fix.MsgTypeHeartbeat, 2, func(m *fix.Message) {
		m.Header.SetUTCTimestamp(fix.TagSendingTime, stale, true)
	}))

	rej := h.resp.lastSent(t)
	if mt, _ := rej.MsgType(); mt != fix.MsgTypeReject {
		t.Fatalf("expected Reject, got %q", mt)
	}
	if bodyString(t, rej, fix.TagSessionRejectReason) != "10" {
		t.Errorf("reason = %s, want 10", bodyString(t, rej, fix.TagSessionRejectReason))
	}
}

func TestSequenceResetResetOverridesSeqCheck(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", nil)
	h.logOn(t)

	// Reset arrives with a wild sequence number of its own.
	h.session.Next(h.peer(fix.MsgTypeSequenceReset, 99, func(m *fix.Message) {
		m.Body.SetInt(fix.TagNewSeqNo, 20)
	}))

	if h.session.NextTargetMsgSeqNum() != 20 {
		t.Errorf("expected inbound = %d, want 20", h.session.NextTargetMsgSeqNum())
	}
	if h.resp.isDisconnected() {
		t.Error("SequenceReset-Reset must not disconnect")
	}
}

func TestResetOnDisconnect(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", func(ss *config.SessionSettings) {
		ss.ResetOnDisconnect = true
	})
	h.logOn(t)
	if h.session.NextSenderMsgSeqNum() != 2 {
		t.Fatal("handshake must consume a sender sequence number")
	}

	h.session.Disconnect()

	if h.session.NextSenderMsgSeqNum() != 1 || h.session.NextTargetMsgSeqNum() != 1 {
		t.Error("ResetOnDisconnect must rewind both sequence numbers")
	}
	if h.app.logoutCount() != 1 {
		t.Errorf("OnLogout calls = %d", h.app.logoutCount())
	}
}

func TestFirstMessageMustBeLogon(t *testing.T) {
	t.Parallel()

	h := newSessionHarness(t, "acceptor", nil)
	h.session.Next(h.peer(fix.MsgTypeHeartbeat, 1, nil))

	if !h.resp.isDisconnected() {
		t.Fatal("non-Logon first message must disconnect")
	}
}
