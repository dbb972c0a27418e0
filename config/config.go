// Package config loads engine and session configuration using koanf/v2.
//
// Engine-level sections (log, metrics, storage) use lower-case keys and
// can be overridden from the environment with the FIX_ prefix. Session
// sections use the canonical FIX engine setting names (ConnectionType,
// SenderCompID, HeartBtInt, ...); a top-level defaults section merges
// under every session entry.
//
// The koanf delimiter is "/" rather than the usual "." because several
// canonical session keys (AppDataDictionary.FIX.5.0SP2) contain dots.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// delim is the koanf key path delimiter.
const delim = "/"

// envPrefix selects the environment variables considered for overrides.
const envPrefix = "FIX_"

// -------------------------------------------------------------------------
// Engine configuration
// -------------------------------------------------------------------------

// Config holds the complete engine configuration.
type Config struct {
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
	Storage StorageConfig `koanf:"storage"`

	// Sessions holds one fully merged settings record per configured
	// session. Assembled by Load, not unmarshaled directly.
	Sessions []SessionSettings `koanf:"-"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint.
	// Empty disables the endpoint.
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint.
	Path string `koanf:"path"`
}

// StorageConfig selects the MessageStore backend.
type StorageConfig struct {
	// Backend is "memory" or "badger".
	Backend string `koanf:"backend"`
	// Dir is the badger database directory.
	Dir string `koanf:"dir"`
}

// Default returns a Config populated with production defaults.
func Default() *Config {
	return &Config{
		Log:     LogConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Addr: "", Path: "/metrics"},
		Storage: StorageConfig{Backend: "memory"},
	}
}

// -------------------------------------------------------------------------
// Session settings
// -------------------------------------------------------------------------

// SessionSettings is one session's configuration under its canonical
// setting names. Zero values carry the engine defaults where the FIX
// convention defines one.
type SessionSettings struct {
	ConnectionType   string `koanf:"ConnectionType"`
	BeginString      string `koanf:"BeginString"`
	SenderCompID     string `koanf:"SenderCompID"`
	TargetCompID     string `koanf:"TargetCompID"`
	SessionQualifier string `koanf:"SessionQualifier"`

	StartTime    string `koanf:"StartTime"`
	EndTime      string `koanf:"EndTime"`
	StartDay     string `koanf:"StartDay"`
	EndDay       string `koanf:"EndDay"`
	LogonTime    string `koanf:"LogonTime"`
	LogoutTime   string `koanf:"LogoutTime"`
	LogonDay     string `koanf:"LogonDay"`
	LogoutDay    string `koanf:"LogoutDay"`
	UseLocalTime bool   `koanf:"UseLocalTime"`

	HeartBtInt    int `koanf:"HeartBtInt"`
	LogonTimeout  int `koanf:"LogonTimeout"`
	LogoutTimeout int `koanf:"LogoutTimeout"`
	MaxLatency    int `koanf:"MaxLatency"`

	CheckLatency bool `koanf:"CheckLatency"`
	CheckCompID  bool `koanf:"CheckCompID"`

	ResetOnLogon      bool `koanf:"ResetOnLogon"`
	ResetOnLogout     bool `koanf:"ResetOnLogout"`
	ResetOnDisconnect bool `koanf:"ResetOnDisconnect"`
	RefreshOnLogon    bool `koanf:"RefreshOnLogon"`

	PersistMessages             bool `koanf:"PersistMessages"`
	MillisecondsInTimeStamp     bool `koanf:"MillisecondsInTimeStamp"`
	SendRedundantResendRequests bool `koanf:"SendRedundantResendRequests"`

	UseDataDictionary       bool   `koanf:"UseDataDictionary"`
	DataDictionary          string `koanf:"DataDictionary"`
	TransportDataDictionary string `koanf:"TransportDataDictionary"`
	DefaultApplVerID        string `koanf:"DefaultApplVerID"`

	// AppDataDictionaries maps ApplVerID to dictionary path for FIXT
	// sessions. The unqualified AppDataDictionary key lands under "".
	AppDataDictionaries map[string]string `koanf:"-"`

	ValidateFieldsOutOfOrder  bool `koanf:"ValidateFieldsOutOfOrder"`
	ValidateFieldsHaveValues  bool `koanf:"ValidateFieldsHaveValues"`
	ValidateUserDefinedFields bool `koanf:"ValidateUserDefinedFields"`
	ValidateRequiredFields    bool `koanf:"ValidateRequiredFields"`
	ValidateUnknownFields     bool `koanf:"ValidateUnknownFields"`
	ValidateUnknownMsgType    bool `koanf:"ValidateUnknownMsgType"`
	ValidateLengthAndChecksum bool `koanf:"ValidateLengthAndChecksum"`

	SocketAcceptHost        string `koanf:"SocketAcceptHost"`
	SocketAcceptPort        int    `koanf:"SocketAcceptPort"`
	SocketConnectHost       string `koanf:"SocketConnectHost"`
	SocketConnectPort       int    `koanf:"SocketConnectPort"`
	SocketConnectSourceHost string `koanf:"SocketConnectSourceHost"`
	SocketConnectSourcePort int    `koanf:"SocketConnectSourcePort"`

	ReconnectInterval int `koanf:"ReconnectInterval"`
	PollSpin          int `koanf:"PollSpin"`
}

// DefaultSessionSettings returns the engine defaults every session
// starts from before its file section is merged in.
func DefaultSessionSettings() SessionSettings {
	return SessionSettings{
		LogonTimeout:  10,
		LogoutTimeout: 2,
		MaxLatency:    120,

		CheckLatency: true,
		CheckCompID:  true,

		PersistMessages:         true,
		MillisecondsInTimeStamp: true,

		UseDataDictionary: true,

		ValidateFieldsOutOfOrder:  true,
		ValidateFieldsHaveValues:  true,
		ValidateUserDefinedFields: true,
		ValidateRequiredFields:    true,
		ValidateUnknownFields:     true,
		ValidateUnknownMsgType:    true,
		ValidateLengthAndChecksum: true,

		ReconnectInterval: 30,

		AppDataDictionaries: make(map[string]string),
	}
}

// IsAcceptor reports whether the session is configured as an acceptor.
func (s SessionSettings) IsAcceptor() bool { return s.ConnectionType == "acceptor" }

// IsInitiator reports whether the session is configured as an initiator.
func (s SessionSettings) IsInitiator() bool { return s.ConnectionType == "initiator" }

// -------------------------------------------------------------------------
// Loading
// -------------------------------------------------------------------------

// Load reads the YAML configuration file, applies FIX_ environment
// overrides to the engine-level sections, and assembles the per-session
// settings with the defaults section merged under each entry.
func Load(path string) (*Config, error) {
	k := koanf.New(delim)
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := k.Load(env.Provider(envPrefix, delim, envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	return Parse(k)
}

// envKey maps FIX_LOG_LEVEL to log/level.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", delim)
}

// Parse assembles a Config from an already populated koanf tree.
func Parse(k *koanf.Koanf) (*Config, error) {
	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	defaults := k.Cut("defaults")
	for i, item := range k.Slices("sessions") {
		merged := koanf.New(delim)
		if err := merged.Merge(defaults); err != nil {
			return nil, fmt.Errorf("merge defaults: %w", err)
		}
		if err := merged.Merge(item); err != nil {
			return nil, fmt.Errorf("merge session %d: %w", i, err)
		}

		ss := DefaultSessionSettings()
		if err := merged.Unmarshal("", &ss); err != nil {
			return nil, fmt.Errorf("unmarshal session %d: %w", i, err)
		}
		collectAppDictionaries(merged, &ss)
		cfg.Sessions = append(cfg.Sessions, ss)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// collectAppDictionaries gathers AppDataDictionary and its qualified
// AppDataDictionary.<ApplVerID> variants, whose keys cannot carry a
// struct tag.
func collectAppDictionaries(k *koanf.Koanf, ss *SessionSettings) {
	for _, key := range k.Keys() {
		switch {
		case key == "AppDataDictionary":
			ss.AppDataDictionaries[""] = k.String(key)
		case strings.HasPrefix(key, "AppDataDictionary."):
			ss.AppDataDictionaries[strings.TrimPrefix(key, "AppDataDictionary.")] = k.String(key)
		}
	}
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validate checks the assembled configuration, aggregating every problem
// so a broken file reports all of them at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	switch c.Storage.Backend {
	case "memory":
	case "badger":
		if c.Storage.Dir == "" {
			result = multierror.Append(result, fmt.Errorf("storage: badger backend requires dir"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("storage: unknown backend %q", c.Storage.Backend))
	}

	if len(c.Sessions) == 0 {
		result = multierror.Append(result, fmt.Errorf("no sessions defined"))
	}
	for i, ss := range c.Sessions {
		if err := ss.validate(); err != nil {
			result = multierror.Append(result, fmt.Errorf("session %d: %w", i, err))
		}
	}
	return result.ErrorOrNil()
}

func (s SessionSettings) validate() error {
	var result *multierror.Error

	if s.ConnectionType != "acceptor" && s.ConnectionType != "initiator" {
		result = multierror.Append(result, fmt.Errorf("invalid ConnectionType %q", s.ConnectionType))
	}
	if s.BeginString == "" {
		result = multierror.Append(result, fmt.Errorf("BeginString is required"))
	}
	if s.SenderCompID == "" {
		result = multierror.Append(result, fmt.Errorf("SenderCompID is required"))
	}
	if s.TargetCompID == "" {
		result = multierror.Append(result, fmt.Errorf("TargetCompID is required"))
	}
	if s.IsInitiator() {
		if s.SocketConnectHost == "" || s.SocketConnectPort == 0 {
			result = multierror.Append(result, fmt.Errorf("initiator requires SocketConnectHost and SocketConnectPort"))
		}
	}
	if s.IsAcceptor() && s.SocketAcceptPort == 0 {
		result = multierror.Append(result, fmt.Errorf("acceptor requires SocketAcceptPort"))
	}
	return result.ErrorOrNil()
}

// ParseLogLevel maps a configured level name to its slog level; unknown
// names fall back to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
