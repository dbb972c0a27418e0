package fix

import (
	"sort"
	"strconv"
	"time"
)

// SOH is the FIX field delimiter byte.
const SOH byte = 0x01

// TagValue is a single tag=value field as it appears on the wire. Value
// aliases the parsed frame for inbound messages; callers must copy before
// retaining it past the next parser cycle.
type TagValue struct {
	Tag   Tag
	Value []byte
}

// total returns the wire length of the field including '=' and the SOH.
func (tv TagValue) total() int {
	return len(strconv.Itoa(int(tv.Tag))) + 1 + len(tv.Value) + 1
}

func (tv TagValue) append(b []byte) []byte {
	b = strconv.AppendInt(b, int64(tv.Tag), 10)
	b = append(b, '=')
	b = append(b, tv.Value...)
	return append(b, SOH)
}

// -------------------------------------------------------------------------
// FieldMap — one message section (header, body or trailer)
// -------------------------------------------------------------------------

// fieldOrder ranks tags for encoding. Header leads with 8, 9, 35; the
// trailer puts 10 last; everything else encodes in ascending tag order.
type fieldOrder func(a, b Tag) bool

func orderNormal(a, b Tag) bool { return a < b }

func orderHeader(a, b Tag) bool {
	return headerRank(a) < headerRank(b) || (headerRank(a) == headerRank(b) && a < b)
}

func headerRank(t Tag) int {
	switch t {
	case TagBeginString:
		return 0
	case TagBodyLength:
		return 1
	case TagMsgType:
		return 2
	}
	return 3
}

func orderTrailer(a, b Tag) bool {
	if a == TagCheckSum {
		return false
	}
	if b == TagCheckSum {
		return true
	}
	return a < b
}

// FieldMap holds the fields of one message section. Lookup is by tag;
// encoding order is canonical for the section, not insertion order.
// Repeating groups are stored against their count tag and encoded
// immediately after it.
type FieldMap struct {
	fields map[Tag][]byte
	groups map[Tag][]Group
	order  fieldOrder
}

func newFieldMap(order fieldOrder) FieldMap {
	return FieldMap{
		fields: make(map[Tag][]byte),
		groups: make(map[Tag][]Group),
		order:  order,
	}
}

// NewHeader returns an empty header section.
func NewHeader() FieldMap { return newFieldMap(orderHeader) }

// NewBody returns an empty body section.
func NewBody() FieldMap { return newFieldMap(orderNormal) }

// NewTrailer returns an empty trailer section.
func NewTrailer() FieldMap { return newFieldMap(orderTrailer) }

// Has reports whether the section contains the tag.
func (m *FieldMap) Has(t Tag) bool {
	_, ok := m.fields[t]
	return ok
}

// Get returns the raw bytes of the tag's value.
func (m *FieldMap) Get(t Tag) ([]byte, error) {
	v, ok := m.fields[t]
	if !ok {
		return nil, ErrFieldNotFound
	}
	return v, nil
}

// GetString returns the tag's value as a string.
func (m *FieldMap) GetString(t Tag) (string, error) {
	v, err := m.Get(t)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// GetInt returns the tag's value parsed as a FIX integer.
func (m *FieldMap) GetInt(t Tag) (int, error) {
	v, err := m.Get(t)
	if err != nil {
		return 0, err
	}
	n, err := ParseInt(v)
	if err != nil {
		return 0, rejectIncorrectDataFormat(t)
	}
	return n, nil
}

// GetBool returns the tag's value parsed as a FIX boolean (Y/N).
func (m *FieldMap) GetBool(t Tag) (bool, error) {
	v, err := m.Get(t)
	if err != nil {
		return false, err
	}
	b, err := ParseBool(v)
	if err != nil {
		return false, rejectIncorrectDataFormat(t)
	}
	return b, nil
}

// GetUTCTimestamp returns the tag's value parsed as a UTC timestamp.
func (m *FieldMap) GetUTCTimestamp(t Tag) (time.Time, error) {
	v, err := m.Get(t)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := ParseUTCTimestamp(v)
	if err != nil {
		return time.Time{}, rejectIncorrectDataFormat(t)
	}
	return ts, nil
}

// Set stores raw bytes under the tag, replacing any previous value.
func (m *FieldMap) Set(t Tag, v []byte) {
	m.fields[t] = v
}

// SetString stores a string value under the tag.
func (m *FieldMap) SetString(t Tag, v string) {
	m.Set(t, []byte(v))
}

// SetInt stores an integer value under the tag.
func (m *FieldMap) SetInt(t Tag, v int) {
	m.Set(t, FormatInt(v))
}

// SetBool stores a boolean value under the tag as Y/N.
func (m *FieldMap) SetBool(t Tag, v bool) {
	m.Set(t, FormatBool(v))
}

// SetUTCTimestamp stores a timestamp under the tag, with or without
// millisecond precision.
func (m *FieldMap) SetUTCTimestamp(t Tag, ts time.Time, millis bool) {
	m.Set(t, FormatUTCTimestamp(ts, millis))
}

// Remove deletes the tag from the section.
func (m *FieldMap) Remove(t Tag) {
	delete(m.fields, t)
	delete(m.groups, t)
}

// Clear drops all fields and groups.
func (m *FieldMap) Clear() {
	for t := range m.fields {
		delete(m.fields, t)
	}
	for t := range m.groups {
		delete(m.groups, t)
	}
}

// sortedTags returns the section's tags in canonical encoding order.
func (m *FieldMap) sortedTags() []Tag {
	tags := make([]Tag, 0, len(m.fields))
	for t := range m.fields {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return m.order(tags[i], tags[j]) })
	return tags
}

// write appends the section's wire form to b.
func (m *FieldMap) write(b []byte) []byte {
	for _, t := range m.sortedTags() {
		b = TagValue{Tag: t, Value: m.fields[t]}.append(b)
		for _, g := range m.groups[t] {
			b = g.write(b)
		}
	}
	return b
}

// length returns the wire length of the section, excluding tags 8, 9 and
// 10 which do not count toward BodyLength.
func (m *FieldMap) length() int {
	n := 0
	for t, v := range m.fields {
		switch t {
		case TagBeginString, TagBodyLength, TagCheckSum:
			continue
		}
		n += TagValue{Tag: t, Value: v}.total()
		for _, g := range m.groups[t] {
			n += g.length()
		}
	}
	return n
}

// -------------------------------------------------------------------------
// Repeating Groups
// -------------------------------------------------------------------------

// Group is one entry of a repeating group: an ordered field list whose
// first field carries the group's delimiter tag.
type Group struct {
	fields []TagValue
}

// Add appends a field to the group entry.
func (g *Group) Add(t Tag, v []byte) {
	g.fields = append(g.fields, TagValue{Tag: t, Value: v})
}

// AddString appends a string field to the group entry.
func (g *Group) AddString(t Tag, v string) {
	g.Add(t, []byte(v))
}

// Get returns the first occurrence of the tag within the entry.
func (g *Group) Get(t Tag) ([]byte, error) {
	for _, tv := range g.fields {
		if tv.Tag == t {
			return tv.Value, nil
		}
	}
	return nil, ErrFieldNotFound
}

func (g Group) write(b []byte) []byte {
	for _, tv := range g.fields {
		b = tv.append(b)
	}
	return b
}

func (g Group) length() int {
	n := 0
	for _, tv := range g.fields {
		n += tv.total()
	}
	return n
}

// SetGroups stores repeating group entries under their count tag. The
// count field itself is set to the entry count; entries encode in order
// directly after it.
func (m *FieldMap) SetGroups(countTag Tag, entries []Group) {
	m.SetInt(countTag, len(entries))
	m.groups[countTag] = entries
}

// Groups returns the repeating group entries stored under the count tag.
func (m *FieldMap) Groups(countTag Tag) []Group {
	return m.groups[countTag]
}
