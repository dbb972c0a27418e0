package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tradewire/gofix/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleConfig = `
log:
  level: debug
  format: text
metrics:
  addr: ":9090"
storage:
  backend: memory
defaults:
  BeginString: FIX.4.4
  HeartBtInt: 30
  SenderCompID: EXEC
sessions:
  - ConnectionType: acceptor
    TargetCompID: BANZAI
    SocketAcceptPort: 9876
  - ConnectionType: initiator
    TargetCompID: MARKET
    HeartBtInt: 10
    SocketConnectHost: market.example.com
    SocketConnectPort: 5001
`

func TestLoadMergesDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("log section = %+v", cfg.Log)
	}
	if cfg.Metrics.Addr != ":9090" || cfg.Metrics.Path != "/metrics" {
		t.Errorf("metrics section = %+v (path must keep its default)", cfg.Metrics)
	}
	if len(cfg.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(cfg.Sessions))
	}

	acc := cfg.Sessions[0]
	if acc.BeginString != "FIX.4.4" || acc.SenderCompID != "EXEC" {
		t.Errorf("defaults not merged into session: %+v", acc)
	}
	if acc.HeartBtInt != 30 {
		t.Errorf("acceptor HeartBtInt = %d, want inherited 30", acc.HeartBtInt)
	}

	ini := cfg.Sessions[1]
	if ini.HeartBtInt != 10 {
		t.Errorf("initiator HeartBtInt = %d, want overridden 10", ini.HeartBtInt)
	}
	if ini.SocketConnectHost != "market.example.com" || ini.SocketConnectPort != 5001 {
		t.Errorf("initiator connect target = %s:%d", ini.SocketConnectHost, ini.SocketConnectPort)
	}
}

func TestSessionDefaultsApplied(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ss := cfg.Sessions[0]

	// Engine defaults that the file does not mention.
	if !ss.CheckCompID || !ss.CheckLatency {
		t.Error("CompID/latency checks must default on")
	}
	if !ss.PersistMessages || !ss.MillisecondsInTimeStamp {
		t.Error("persistence and millisecond timestamps must default on")
	}
	if !ss.ValidateLengthAndChecksum || !ss.ValidateRequiredFields {
		t.Error("validation flags must default on")
	}
	if ss.LogonTimeout != 10 || ss.LogoutTimeout != 2 || ss.MaxLatency != 120 {
		t.Errorf("tolerances = %d/%d/%d, want 10/2/120",
			ss.LogonTimeout, ss.LogoutTimeout, ss.MaxLatency)
	}
	if ss.ReconnectInterval != 30 {
		t.Errorf("ReconnectInterval = %d, want 30", ss.ReconnectInterval)
	}
}

func TestAppDataDictionaryKeys(t *testing.T) {
	body := `
sessions:
  - ConnectionType: acceptor
    BeginString: FIXT.1.1
    SenderCompID: EXEC
    TargetCompID: BANZAI
    SocketAcceptPort: 9876
    DefaultApplVerID: FIX.5.0SP2
    TransportDataDictionary: FIXT11.xml
    AppDataDictionary: FIX50SP2.xml
    AppDataDictionary.FIX.4.4: FIX44.xml
`
	cfg, err := config.Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	dicts := cfg.Sessions[0].AppDataDictionaries
	if dicts[""] != "FIX50SP2.xml" {
		t.Errorf("unqualified AppDataDictionary = %q", dicts[""])
	}
	if dicts["FIX.4.4"] != "FIX44.xml" {
		t.Errorf("qualified AppDataDictionary = %q", dicts["FIX.4.4"])
	}
}

func TestValidationAggregatesErrors(t *testing.T) {
	body := `
storage:
  backend: badger
sessions:
  - ConnectionType: sideways
    BeginString: FIX.4.4
    SenderCompID: EXEC
  - ConnectionType: initiator
    BeginString: FIX.4.2
    SenderCompID: A
    TargetCompID: B
`
	_, err := config.Load(writeConfig(t, body))
	if err == nil {
		t.Fatal("Load accepted an invalid configuration")
	}

	msg := err.Error()
	for _, want := range []string{
		"badger backend requires dir",
		"invalid ConnectionType",
		"TargetCompID is required",
		"SocketConnectHost",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("aggregated error missing %q:\n%s", want, msg)
		}
	}
}

func TestNoSessionsIsAnError(t *testing.T) {
	_, err := config.Load(writeConfig(t, "log:\n  level: info\n"))
	if err == nil || !strings.Contains(err.Error(), "no sessions defined") {
		t.Errorf("err = %v, want missing-sessions error", err)
	}
}
