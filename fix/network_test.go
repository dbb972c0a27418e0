package fix_test

import (
	"net"
	"strconv"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/tradewire/gofix/config"
	"github.com/tradewire/gofix/fix"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal(msg)
}

// TestAcceptorInitiatorHandshake drives a complete engine-to-engine
// logon over a loopback TCP connection and shuts both sides down
// gracefully.
func TestAcceptorInitiatorHandshake(t *testing.T) {
	defer goleak.VerifyNone(t)

	accApp := &recordingApp{}
	accSettings := baseSettings("acceptor")
	accSettings.SocketAcceptHost = "127.0.0.1"
	accSettings.SocketAcceptPort = 0 // ephemeral

	acceptor, err := fix.NewAcceptor(
		accApp,
		fix.NewMemoryStoreFactory(),
		[]config.SessionSettings{accSettings},
		fix.NewRegistry(),
	)
	if err != nil {
		t.Fatalf("NewAcceptor: %v", err)
	}
	if err := acceptor.Start(); err != nil {
		t.Fatalf("acceptor start: %v", err)
	}
	defer acceptor.Stop(true)

	_, portStr, err := net.SplitHostPort(acceptor.Addrs()[0])
	if err != nil {
		t.Fatalf("listen addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	iniApp := &recordingApp{}
	iniSettings := config.DefaultSessionSettings()
	iniSettings.ConnectionType = "initiator"
	iniSettings.BeginString = "FIX.4.4"
	iniSettings.SenderCompID = "BANZAI"
	iniSettings.TargetCompID = "EXEC"
	iniSettings.HeartBtInt = 1
	iniSettings.SocketConnectHost = "127.0.0.1"
	iniSettings.SocketConnectPort = port
	iniSettings.ReconnectInterval = 1

	initiator, err := fix.NewInitiator(
		iniApp,
		fix.NewMemoryStoreFactory(),
		[]config.SessionSettings{iniSettings},
		fix.NewRegistry(),
	)
	if err != nil {
		t.Fatalf("NewInitiator: %v", err)
	}
	if err := initiator.Start(); err != nil {
		t.Fatalf("initiator start: %v", err)
	}
	defer initiator.Stop(true)

	waitFor(t, 5*time.Second, func() bool {
		return acceptor.IsLoggedOn() && initiator.IsLoggedOn()
	}, "logon handshake did not complete over loopback")

	if accApp.logonCount() != 1 || iniApp.logonCount() != 1 {
		t.Errorf("OnLogon calls = %d/%d, want 1/1", accApp.logonCount(), iniApp.logonCount())
	}

	// Graceful shutdown completes the logout handshake on both sides.
	initiator.Stop(false)
	waitFor(t, 5*time.Second, func() bool {
		return !acceptor.IsLoggedOn() && !initiator.IsLoggedOn()
	}, "logout handshake did not complete")
	acceptor.Stop(false)

	if iniApp.logoutCount() == 0 || accApp.logoutCount() == 0 {
		t.Errorf("OnLogout calls = %d/%d, want at least 1/1", accApp.logoutCount(), iniApp.logoutCount())
	}
}

// TestAcceptorDropsUnknownCompIDs verifies that a connection whose first
// logon names no configured session is dropped.
func TestAcceptorDropsUnknownCompIDs(t *testing.T) {
	defer goleak.VerifyNone(t)

	accSettings := baseSettings("acceptor")
	accSettings.SocketAcceptHost = "127.0.0.1"
	accSettings.SocketAcceptPort = 0

	acceptor, err := fix.NewAcceptor(
		&recordingApp{},
		fix.NewMemoryStoreFactory(),
		[]config.SessionSettings{accSettings},
		fix.NewRegistry(),
	)
	if err != nil {
		t.Fatalf("NewAcceptor: %v", err)
	}
	if err := acceptor.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer acceptor.Stop(true)

	conn, err := net.Dial("tcp", acceptor.Addrs()[0])
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	logon := fix.NewMessage()
	logon.Header.SetString(fix.TagBeginString, "FIX.4.4")
	logon.Header.SetString(fix.TagMsgType, fix.MsgTypeLogon)
	logon.Header.SetString(fix.TagSenderCompID, "NOBODY")
	logon.Header.SetString(fix.TagTargetCompID, "EXEC")
	logon.Header.SetInt(fix.TagMsgSeqNum, 1)
	logon.Header.SetUTCTimestamp(fix.TagSendingTime, time.Now(), true)
	logon.Body.SetInt(fix.TagEncryptMethod, 0)
	logon.Body.SetInt(fix.TagHeartBtInt, 30)
	if _, err := conn.Write(logon.Build()); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The acceptor must close the connection without answering.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err == nil || n > 0 {
		t.Errorf("expected the connection to be dropped, read %d bytes (err=%v)", n, err)
	}
}
