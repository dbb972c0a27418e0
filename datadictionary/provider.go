package datadictionary

import (
	"errors"
	"fmt"
)

// ErrDictionaryNotFound indicates no dictionary is registered for the
// requested version.
var ErrDictionaryNotFound = errors.New("data dictionary not found")

// Loader resolves a dictionary definition from an external source,
// typically the standard FIX XML repository files. The engine core does
// not implement one; the session factory accepts any Loader and caches
// its results by path.
type Loader interface {
	Load(path string) (*DataDictionary, error)
}

// Provider resolves dictionaries per session. It keeps two independent
// name spaces: transport dictionaries keyed by BeginString, used for the
// header, trailer and session-layer messages, and application
// dictionaries keyed by ApplVerID, used for business messages. For
// non-FIXT sessions both spaces hold the same dictionary under the two
// equivalent keys.
type Provider struct {
	transport   map[string]*DataDictionary
	application map[string]*DataDictionary
}

// NewProvider returns an empty provider.
func NewProvider() *Provider {
	return &Provider{
		transport:   make(map[string]*DataDictionary),
		application: make(map[string]*DataDictionary),
	}
}

// AddTransportDictionary registers d for session-layer validation of the
// given BeginString. A nil d registers the shared Empty dictionary so
// later lookups stay monomorphic.
func (p *Provider) AddTransportDictionary(beginString string, d *DataDictionary) {
	if d == nil {
		d = Empty
	}
	p.transport[beginString] = d
}

// AddApplicationDictionary registers d for business-message validation of
// the given ApplVerID. A nil d registers the shared Empty dictionary.
func (p *Provider) AddApplicationDictionary(applVerID string, d *DataDictionary) {
	if d == nil {
		d = Empty
	}
	p.application[applVerID] = d
}

// SessionDictionary returns the transport dictionary for beginString.
func (p *Provider) SessionDictionary(beginString string) (*DataDictionary, error) {
	d, ok := p.transport[beginString]
	if !ok {
		return nil, fmt.Errorf("transport dictionary for %q: %w", beginString, ErrDictionaryNotFound)
	}
	return d, nil
}

// ApplicationDictionary returns the application dictionary for applVerID.
func (p *Provider) ApplicationDictionary(applVerID string) (*DataDictionary, error) {
	d, ok := p.application[applVerID]
	if !ok {
		return nil, fmt.Errorf("application dictionary for %q: %w", applVerID, ErrDictionaryNotFound)
	}
	return d, nil
}
