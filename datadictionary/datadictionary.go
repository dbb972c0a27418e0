// Package datadictionary models the static message catalogue of one FIX
// version: which fields exist, their types and enumerations, which
// messages exist, and which fields (and repeating groups) each message
// carries. Dictionaries are built programmatically or by an external
// loader; validation against a dictionary lives with the session engine.
package datadictionary

import "strconv"

// FieldType is the FIX data type of a field, e.g. "INT", "STRING",
// "PRICE", "UTCTIMESTAMP", "BOOLEAN", "CHAR", "NUMINGROUP".
type FieldType string

const (
	TypeInt          FieldType = "INT"
	TypeLength       FieldType = "LENGTH"
	TypeSeqNum       FieldType = "SEQNUM"
	TypeNumInGroup   FieldType = "NUMINGROUP"
	TypeFloat        FieldType = "FLOAT"
	TypePrice        FieldType = "PRICE"
	TypeQty          FieldType = "QTY"
	TypeString       FieldType = "STRING"
	TypeChar         FieldType = "CHAR"
	TypeBoolean      FieldType = "BOOLEAN"
	TypeUTCTimestamp FieldType = "UTCTIMESTAMP"
	TypeData         FieldType = "DATA"
)

// FieldDef describes one field of the catalogue.
type FieldDef struct {
	Tag  int
	Name string
	Type FieldType

	// Enums holds the permitted wire values; empty means unrestricted.
	Enums map[string]struct{}
}

// GroupDef describes one repeating group: the count field, the delimiter
// field opening each entry, and the member fields in declaration order.
type GroupDef struct {
	CountTag     int
	DelimiterTag int
	MemberTags   []int

	members map[int]struct{}
}

// IsMember reports whether tag belongs to the group.
func (g *GroupDef) IsMember(tag int) bool {
	_, ok := g.members[tag]
	return ok
}

// MessageDef describes one message type: its fields with their
// required/optional flag, and its repeating groups keyed by count tag.
type MessageDef struct {
	MsgType string
	Name    string

	fields   map[int]bool // tag -> required
	required []int
	groups   map[int]*GroupDef
}

// Has reports whether the message carries the tag (group members count).
func (m *MessageDef) Has(tag int) bool {
	if _, ok := m.fields[tag]; ok {
		return true
	}
	for _, g := range m.groups {
		if g.IsMember(tag) {
			return true
		}
	}
	return false
}

// IsRequired reports whether the tag is required in this message.
func (m *MessageDef) IsRequired(tag int) bool {
	return m.fields[tag]
}

// RequiredTags returns the message's required tags.
func (m *MessageDef) RequiredTags() []int { return m.required }

// Group returns the group definition keyed by its count tag.
func (m *MessageDef) Group(countTag int) (*GroupDef, bool) {
	g, ok := m.groups[countTag]
	return g, ok
}

// -------------------------------------------------------------------------
// DataDictionary
// -------------------------------------------------------------------------

// DataDictionary is the complete catalogue for one FIX version plus the
// validation posture applied against it. The catalogue maps are shared
// between clones; the boolean flags are per-clone, so sessions can differ
// in strictness without contaminating the shared cache.
type DataDictionary struct {
	// Version is the catalogue's version literal (BeginString or
	// ApplVerID form). Empty on the shared Empty dictionary.
	Version string

	fields   map[int]*FieldDef
	messages map[string]*MessageDef
	header   *MessageDef
	trailer  *MessageDef

	// SessionLayerOnly marks a catalogue that describes only the
	// session layer (header, trailer, administrative messages), like
	// the built-in one and FIXT transport dictionaries. Engines relax
	// unknown-message, unknown-field and required-field checks for
	// business traffic validated against such a catalogue.
	SessionLayerOnly bool

	// Validation flags. All default to true on a built dictionary.
	CheckFieldsOutOfOrder  bool
	CheckFieldsHaveValues  bool
	CheckUserDefinedFields bool
	CheckRequiredFields    bool
	CheckUnknownFields     bool
	CheckUnknownMsgType    bool
}

// New returns an empty catalogue for the given version with all checks
// enabled.
func New(version string) *DataDictionary {
	return &DataDictionary{
		Version:  version,
		fields:   make(map[int]*FieldDef),
		messages: make(map[string]*MessageDef),
		header:   &MessageDef{Name: "header", fields: make(map[int]bool), groups: make(map[int]*GroupDef)},
		trailer:  &MessageDef{Name: "trailer", fields: make(map[int]bool), groups: make(map[int]*GroupDef)},

		CheckFieldsOutOfOrder:  true,
		CheckFieldsHaveValues:  true,
		CheckUserDefinedFields: true,
		CheckRequiredFields:    true,
		CheckUnknownFields:     true,
		CheckUnknownMsgType:    true,
	}
}

// Empty is the shared immutable dictionary used where no catalogue is
// configured. It defines nothing and all its checks are off, so
// validation against it accepts every well-framed message.
var Empty = func() *DataDictionary {
	d := New("")
	d.CheckFieldsOutOfOrder = false
	d.CheckFieldsHaveValues = false
	d.CheckUserDefinedFields = false
	d.CheckRequiredFields = false
	d.CheckUnknownFields = false
	d.CheckUnknownMsgType = false
	return d
}()

// IsEmpty reports whether the dictionary defines no catalogue at all.
func (d *DataDictionary) IsEmpty() bool {
	return len(d.fields) == 0 && len(d.messages) == 0
}

// Clone returns a copy sharing the catalogue maps but carrying its own
// validation flags.
func (d *DataDictionary) Clone() *DataDictionary {
	c := *d
	return &c
}

// -------------------------------------------------------------------------
// Builder API
// -------------------------------------------------------------------------

// AddField declares a field in the catalogue.
func (d *DataDictionary) AddField(tag int, name string, typ FieldType) *DataDictionary {
	d.fields[tag] = &FieldDef{Tag: tag, Name: name, Type: typ}
	return d
}

// AddEnum restricts a declared field to the given wire values.
func (d *DataDictionary) AddEnum(tag int, values ...string) *DataDictionary {
	f := d.fields[tag]
	if f == nil {
		return d
	}
	if f.Enums == nil {
		f.Enums = make(map[string]struct{}, len(values))
	}
	for _, v := range values {
		f.Enums[v] = struct{}{}
	}
	return d
}

// AddHeaderField declares a standard header field.
func (d *DataDictionary) AddHeaderField(tag int, required bool) *DataDictionary {
	addMessageField(d.header, tag, required)
	return d
}

// AddTrailerField declares a standard trailer field.
func (d *DataDictionary) AddTrailerField(tag int, required bool) *DataDictionary {
	addMessageField(d.trailer, tag, required)
	return d
}

// AddMessage declares a message type.
func (d *DataDictionary) AddMessage(msgType, name string) *DataDictionary {
	d.messages[msgType] = &MessageDef{
		MsgType: msgType,
		Name:    name,
		fields:  make(map[int]bool),
		groups:  make(map[int]*GroupDef),
	}
	return d
}

// AddMessageField declares a field of a previously declared message.
func (d *DataDictionary) AddMessageField(msgType string, tag int, required bool) *DataDictionary {
	if m, ok := d.messages[msgType]; ok {
		addMessageField(m, tag, required)
	}
	return d
}

// AddGroup declares a repeating group of a previously declared message.
// The delimiter tag must be the first member.
func (d *DataDictionary) AddGroup(msgType string, countTag, delimiterTag int, memberTags ...int) *DataDictionary {
	m, ok := d.messages[msgType]
	if !ok {
		return d
	}
	members := make(map[int]struct{}, len(memberTags)+1)
	members[delimiterTag] = struct{}{}
	for _, t := range memberTags {
		members[t] = struct{}{}
	}
	m.groups[countTag] = &GroupDef{
		CountTag:     countTag,
		DelimiterTag: delimiterTag,
		MemberTags:   append([]int{delimiterTag}, memberTags...),
		members:      members,
	}
	addMessageField(m, countTag, false)
	return d
}

func addMessageField(m *MessageDef, tag int, required bool) {
	m.fields[tag] = required
	if required {
		m.required = append(m.required, tag)
	}
}

// -------------------------------------------------------------------------
// Queries
// -------------------------------------------------------------------------

// IsField reports whether the tag is declared anywhere in the catalogue.
func (d *DataDictionary) IsField(tag int) bool {
	_, ok := d.fields[tag]
	return ok
}

// Field returns the declaration of the tag.
func (d *DataDictionary) Field(tag int) (*FieldDef, bool) {
	f, ok := d.fields[tag]
	return f, ok
}

// IsMsgType reports whether the message type is declared.
func (d *DataDictionary) IsMsgType(msgType string) bool {
	_, ok := d.messages[msgType]
	return ok
}

// Message returns the declaration of the message type.
func (d *DataDictionary) Message(msgType string) (*MessageDef, bool) {
	m, ok := d.messages[msgType]
	return m, ok
}

// Header returns the standard header declaration.
func (d *DataDictionary) Header() *MessageDef { return d.header }

// Trailer returns the standard trailer declaration.
func (d *DataDictionary) Trailer() *MessageDef { return d.trailer }

// ValueIsValid reports whether value is permitted for the tag: members of
// a declared enumeration must match exactly; unenumerated fields accept
// anything.
func (d *DataDictionary) ValueIsValid(tag int, value []byte) bool {
	f, ok := d.fields[tag]
	if !ok || len(f.Enums) == 0 {
		return true
	}
	_, ok = f.Enums[string(value)]
	return ok
}

// FieldName returns the declared name of the tag, or its number when
// undeclared.
func (d *DataDictionary) FieldName(tag int) string {
	if f, ok := d.fields[tag]; ok {
		return f.Name
	}
	return strconv.Itoa(tag)
}
