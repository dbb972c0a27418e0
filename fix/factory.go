package fix

import (
	"fmt"
	"time"

	"github.com/tradewire/gofix/config"
	"github.com/tradewire/gofix/datadictionary"
)

// -------------------------------------------------------------------------
// SessionFactory
// -------------------------------------------------------------------------

// SessionFactory validates settings records and materializes sessions.
// Loaded dictionaries are cached by path; every session receives a
// private clone carrying its own validation flags, so strictness differs
// per session without contaminating the shared cache.
type SessionFactory struct {
	app          Application
	storeFactory MessageStoreFactory
	logFactory   LogFactory
	loader       datadictionary.Loader
	metrics      MetricsReporter
	clock        Clock

	dictCache map[string]*datadictionary.DataDictionary
}

// FactoryOption configures optional SessionFactory collaborators.
type FactoryOption func(*SessionFactory)

// WithLogFactory installs the log port. Without it sessions log nowhere.
func WithLogFactory(lf LogFactory) FactoryOption {
	return func(f *SessionFactory) {
		if lf != nil {
			f.logFactory = lf
		}
	}
}

// WithDictionaryLoader installs the external dictionary loader used to
// resolve DataDictionary paths from the settings.
func WithDictionaryLoader(l datadictionary.Loader) FactoryOption {
	return func(f *SessionFactory) { f.loader = l }
}

// WithMetrics installs a MetricsReporter on every created session.
func WithMetrics(mr MetricsReporter) FactoryOption {
	return func(f *SessionFactory) {
		if mr != nil {
			f.metrics = mr
		}
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(c Clock) FactoryOption {
	return func(f *SessionFactory) {
		if c != nil {
			f.clock = c
		}
	}
}

// NewSessionFactory returns a factory building sessions for the given
// application and store port.
func NewSessionFactory(app Application, storeFactory MessageStoreFactory, opts ...FactoryOption) *SessionFactory {
	f := &SessionFactory{
		app:          app,
		storeFactory: storeFactory,
		logFactory:   nullLogFactory{},
		metrics:      noopMetrics{},
		clock:        systemClock{},
		dictCache:    make(map[string]*datadictionary.DataDictionary),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type nullLogFactory struct{}

func (nullLogFactory) Create() (Log, error)                 { return nullLog{}, nil }
func (nullLogFactory) CreateSessionLog(SessionID) (Log, error) { return nullLog{}, nil }

// Create validates one settings record and materializes its session.
func (f *SessionFactory) Create(settings config.SessionSettings) (*Session, error) {
	var role Role
	switch settings.ConnectionType {
	case "acceptor":
		role = RoleAcceptor
	case "initiator":
		role = RoleInitiator
	default:
		return nil, ConfigError{Setting: "ConnectionType", Reason: fmt.Sprintf("invalid value %q", settings.ConnectionType)}
	}

	if role == RoleAcceptor && settings.SessionQualifier != "" {
		return nil, ConfigError{Setting: "SessionQualifier", Reason: "cannot be used with acceptor"}
	}

	id := SessionID{
		BeginString:  settings.BeginString,
		SenderCompID: settings.SenderCompID,
		TargetCompID: settings.TargetCompID,
		Qualifier:    settings.SessionQualifier,
	}

	defaultApplVerID := ""
	if id.IsFIXT() {
		if settings.DefaultApplVerID == "" {
			return nil, ConfigError{Setting: "DefaultApplVerID", Reason: "required for FIXT transport"}
		}
		defaultApplVerID = ApplVerIDFor(settings.DefaultApplVerID)
	}

	provider, err := f.resolveDictionaries(id, settings, defaultApplVerID)
	if err != nil {
		return nil, err
	}
	transportDict, err := provider.SessionDictionary(id.BeginString)
	if err != nil {
		return nil, ConfigError{Setting: "DataDictionary", Reason: err.Error()}
	}

	sessionTime, logonTime, err := sessionTimeRanges(settings)
	if err != nil {
		return nil, err
	}

	if role == RoleInitiator && settings.HeartBtInt <= 0 {
		return nil, ConfigError{Setting: "HeartBtInt", Reason: "must be greater than zero"}
	}

	cfg := sessionConfig{
		role:          role,
		heartBtInt:    time.Duration(settings.HeartBtInt) * time.Second,
		logonTimeout:  secondsOr(settings.LogonTimeout, defaultLogonTimeout),
		logoutTimeout: secondsOr(settings.LogoutTimeout, defaultLogoutTimeout),
		maxLatency:    secondsOr(settings.MaxLatency, defaultMaxLatency),

		checkCompID:               settings.CheckCompID,
		checkLatency:              settings.CheckLatency,
		validateLengthAndChecksum: settings.ValidateLengthAndChecksum,

		resetOnLogon:      settings.ResetOnLogon,
		resetOnLogout:     settings.ResetOnLogout,
		resetOnDisconnect: settings.ResetOnDisconnect,
		refreshOnLogon:    settings.RefreshOnLogon,

		persistMessages:             settings.PersistMessages,
		millisecondsInTimestamp:     settings.MillisecondsInTimeStamp,
		sendRedundantResendRequests: settings.SendRedundantResendRequests,

		defaultApplVerID: defaultApplVerID,
		sessionTime:      sessionTime,
		logonTime:        logonTime,
		pollSpin:         settings.PollSpin,
	}

	store, err := f.storeFactory.Create(id)
	if err != nil {
		return nil, fmt.Errorf("create message store for %s: %w", id, err)
	}
	log, err := f.logFactory.CreateSessionLog(id)
	if err != nil {
		return nil, fmt.Errorf("create session log for %s: %w", id, err)
	}

	s := &Session{
		id:            id,
		cfg:           cfg,
		app:           f.app,
		store:         store,
		log:           log,
		metrics:       f.metrics,
		clock:         f.clock,
		provider:      provider,
		transportDict: transportDict,
		enabled:       true,
		heartBtInt:    cfg.heartBtInt,
		queue:         make(map[int][]byte),
	}
	s.setState(StateDisconnected)
	f.app.OnCreate(id)
	return s, nil
}

func secondsOr(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Second
}

// -------------------------------------------------------------------------
// Dictionary resolution
// -------------------------------------------------------------------------

// resolveDictionaries populates a per-session provider: the transport
// dictionary under the session's BeginString and the application
// dictionaries under their ApplVerIDs. For non-FIXT sessions the same
// catalogue serves both roles.
func (f *SessionFactory) resolveDictionaries(
	id SessionID,
	settings config.SessionSettings,
	defaultApplVerID string,
) (*datadictionary.Provider, error) {
	provider := datadictionary.NewProvider()

	if !settings.UseDataDictionary {
		provider.AddTransportDictionary(id.BeginString, nil)
		provider.AddApplicationDictionary(ApplVerIDFor(id.BeginString), nil)
		return provider, nil
	}

	if !id.IsFIXT() {
		d, err := f.loadDictionary(id.BeginString, settings.DataDictionary)
		if err != nil {
			return nil, err
		}
		private := applyValidationFlags(d, settings)
		provider.AddTransportDictionary(id.BeginString, private)
		provider.AddApplicationDictionary(ApplVerIDFor(id.BeginString), relaxForBusiness(private))
		return provider, nil
	}

	transport, err := f.loadDictionary(id.BeginString, settings.TransportDataDictionary)
	if err != nil {
		return nil, err
	}
	provider.AddTransportDictionary(id.BeginString, applyValidationFlags(transport, settings))
	for applVerID, path := range settings.AppDataDictionaries {
		d, err := f.loadDictionary(id.BeginString, path)
		if err != nil {
			return nil, err
		}
		key := defaultApplVerID
		if applVerID != "" {
			key = ApplVerIDFor(applVerID)
		}
		provider.AddApplicationDictionary(key, applyValidationFlags(d, settings))
	}
	return provider, nil
}

// loadDictionary resolves one dictionary: from the path cache via the
// configured loader, or the built-in session-layer catalogue when no
// path is set.
func (f *SessionFactory) loadDictionary(beginString, path string) (*datadictionary.DataDictionary, error) {
	if path == "" {
		return datadictionary.SessionDefinitions(beginString), nil
	}
	if d, ok := f.dictCache[path]; ok {
		return d, nil
	}
	if f.loader == nil {
		return nil, ConfigError{Setting: "DataDictionary", Reason: fmt.Sprintf("no dictionary loader configured for %s", path)}
	}
	d, err := f.loader.Load(path)
	if err != nil {
		return nil, ConfigError{Setting: "DataDictionary", Reason: err.Error()}
	}
	f.dictCache[path] = d
	return d, nil
}

// relaxForBusiness disarms the unknown-message, unknown-field and
// required-field checks when the catalogue only describes the session layer: business traffic
// cannot be validated against definitions that are not there.
func relaxForBusiness(d *datadictionary.DataDictionary) *datadictionary.DataDictionary {
	if !d.SessionLayerOnly {
		return d
	}
	r := d.Clone()
	r.CheckUnknownMsgType = false
	r.CheckUnknownFields = false
	r.CheckRequiredFields = false
	return r
}

// applyValidationFlags clones the shared dictionary and applies the
// session's strictness flags to the clone.
func applyValidationFlags(d *datadictionary.DataDictionary, s config.SessionSettings) *datadictionary.DataDictionary {
	c := d.Clone()
	c.CheckFieldsOutOfOrder = s.ValidateFieldsOutOfOrder
	c.CheckFieldsHaveValues = s.ValidateFieldsHaveValues
	c.CheckUserDefinedFields = s.ValidateUserDefinedFields
	c.CheckRequiredFields = s.ValidateRequiredFields
	c.CheckUnknownFields = s.ValidateUnknownFields
	c.CheckUnknownMsgType = s.ValidateUnknownMsgType
	return c
}

// -------------------------------------------------------------------------
// Session-time windows
// -------------------------------------------------------------------------

// sessionTimeRanges builds the session window and logon window from the
// settings, enforcing the pairing and containment rules.
func sessionTimeRanges(settings config.SessionSettings) (sessionTime, logonTime TimeRange, err error) {
	if settings.StartTime == "" && settings.EndTime == "" {
		return TimeRange{}, TimeRange{}, nil
	}
	if settings.StartTime == "" || settings.EndTime == "" {
		return TimeRange{}, TimeRange{}, ConfigError{Setting: "StartTime", Reason: "StartTime and EndTime must both be set"}
	}

	start, err := ParseTimeOfDay(settings.StartTime)
	if err != nil {
		return TimeRange{}, TimeRange{}, ConfigError{Setting: "StartTime", Reason: err.Error()}
	}
	end, err := ParseTimeOfDay(settings.EndTime)
	if err != nil {
		return TimeRange{}, TimeRange{}, ConfigError{Setting: "EndTime", Reason: err.Error()}
	}

	if (settings.StartDay == "") != (settings.EndDay == "") {
		return TimeRange{}, TimeRange{}, ConfigError{Setting: "StartDay", Reason: "StartDay and EndDay must both be set"}
	}

	loc := time.UTC
	if settings.UseLocalTime {
		loc = time.Local
	}

	if settings.StartDay != "" {
		startDay, derr := ParseDay(settings.StartDay)
		if derr != nil {
			return TimeRange{}, TimeRange{}, ConfigError{Setting: "StartDay", Reason: derr.Error()}
		}
		endDay, derr := ParseDay(settings.EndDay)
		if derr != nil {
			return TimeRange{}, TimeRange{}, ConfigError{Setting: "EndDay", Reason: derr.Error()}
		}
		sessionTime = NewWeekRange(start, end, startDay, endDay, loc)
	} else {
		sessionTime = NewTimeRange(start, end, loc)
	}

	logonTime, err = logonTimeRange(settings, sessionTime, start, end, loc)
	if err != nil {
		return TimeRange{}, TimeRange{}, err
	}
	return sessionTime, logonTime, nil
}

// logonTimeRange derives the logon window, defaulting each bound to the
// session window's and requiring containment.
func logonTimeRange(
	settings config.SessionSettings,
	sessionTime TimeRange,
	start, end time.Duration,
	loc *time.Location,
) (TimeRange, error) {
	logonStart, logoutEnd := start, end
	var err error

	if settings.LogonTime != "" {
		if logonStart, err = ParseTimeOfDay(settings.LogonTime); err != nil {
			return TimeRange{}, ConfigError{Setting: "LogonTime", Reason: err.Error()}
		}
		if !containsTimeOfDay(start, end, logonStart) {
			return TimeRange{}, ConfigError{Setting: "LogonTime", Reason: "must be between StartTime and EndTime"}
		}
	}
	if settings.LogoutTime != "" {
		if logoutEnd, err = ParseTimeOfDay(settings.LogoutTime); err != nil {
			return TimeRange{}, ConfigError{Setting: "LogoutTime", Reason: err.Error()}
		}
		if !containsTimeOfDay(start, end, logoutEnd) {
			return TimeRange{}, ConfigError{Setting: "LogoutTime", Reason: "must be between StartTime and EndTime"}
		}
	}

	if settings.LogonDay != "" || settings.LogoutDay != "" {
		logonDay, derr := ParseDay(settings.LogonDay)
		if derr != nil {
			return TimeRange{}, ConfigError{Setting: "LogonDay", Reason: derr.Error()}
		}
		logoutDay, derr := ParseDay(settings.LogoutDay)
		if derr != nil {
			return TimeRange{}, ConfigError{Setting: "LogoutDay", Reason: derr.Error()}
		}
		return NewWeekRange(logonStart, logoutEnd, logonDay, logoutDay, loc), nil
	}

	if sessionTime.useDays {
		return NewWeekRange(logonStart, logoutEnd, sessionTime.startDay, sessionTime.endDay, loc), nil
	}
	return NewTimeRange(logonStart, logoutEnd, loc), nil
}

// containsTimeOfDay reports whether tod falls inside the daily window
// [start, end], accounting for windows that wrap midnight.
func containsTimeOfDay(start, end, tod time.Duration) bool {
	if start <= end {
		return tod >= start && tod <= end
	}
	return tod >= start || tod <= end
}
