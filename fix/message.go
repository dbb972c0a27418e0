package fix

import (
	"bytes"
	"fmt"
	"time"
)

// -------------------------------------------------------------------------
// Message — one framed FIX message
// -------------------------------------------------------------------------

// Message is a parsed or under-construction FIX message: three ordered
// sections plus, for inbound messages, the raw frame and the flat field
// sequence in wire order (the validator walks the latter).
type Message struct {
	Header  FieldMap
	Body    FieldMap
	Trailer FieldMap

	// ReceiveTime is when the frame was read off the socket.
	ReceiveTime time.Time

	// raw is the wire frame this message was parsed from; nil for
	// messages under construction.
	raw []byte

	// fields is every field of the frame in wire order, duplicates
	// included. Section lookups hold the first occurrence only.
	fields []TagValue
}

// NewMessage returns an empty message ready for construction.
func NewMessage() *Message {
	return &Message{
		Header:  NewHeader(),
		Body:    NewBody(),
		Trailer: NewTrailer(),
	}
}

// ParseMessage splits one framed FIX message into fields. The frame must
// start with tag 8 followed by tag 9 (the framer guarantees this); all
// other structural problems are left for validation so the session can
// answer them with a Reject instead of dropping the connection.
//
// Field values alias raw.
func ParseMessage(raw []byte) (*Message, error) {
	m := NewMessage()
	m.raw = raw
	m.fields = make([]TagValue, 0, 16)

	rest := raw
	inBody := false
	for len(rest) > 0 {
		tv, n, err := extractField(rest)
		if err != nil {
			return nil, err
		}
		rest = rest[n:]

		m.fields = append(m.fields, tv)
		switch {
		case IsTrailerTag(tv.Tag):
			if !m.Trailer.Has(tv.Tag) {
				m.Trailer.Set(tv.Tag, tv.Value)
			}
		case !inBody && IsHeaderTag(tv.Tag):
			if !m.Header.Has(tv.Tag) {
				m.Header.Set(tv.Tag, tv.Value)
			}
		default:
			inBody = true
			if !m.Body.Has(tv.Tag) {
				m.Body.Set(tv.Tag, tv.Value)
			}
		}
	}

	if len(m.fields) < 2 || m.fields[0].Tag != TagBeginString || m.fields[1].Tag != TagBodyLength {
		return nil, fmt.Errorf("%w: message must begin with tags 8 and 9", ErrGarbled)
	}
	return m, nil
}

// extractField reads one tag=value<SOH> field from the front of b and
// returns it with the number of bytes consumed.
func extractField(b []byte) (TagValue, int, error) {
	eq := bytes.IndexByte(b, '=')
	if eq <= 0 {
		return TagValue{}, 0, fmt.Errorf("%w: field without tag", ErrGarbled)
	}
	tag, err := ParseInt(b[:eq])
	if err != nil || tag <= 0 {
		return TagValue{}, 0, fmt.Errorf("%w: invalid tag %q", ErrGarbled, b[:eq])
	}
	soh := bytes.IndexByte(b[eq+1:], SOH)
	if soh < 0 {
		return TagValue{}, 0, fmt.Errorf("%w: field without SOH terminator", ErrGarbled)
	}
	return TagValue{Tag: Tag(tag), Value: b[eq+1 : eq+1+soh]}, eq + 1 + soh + 1, nil
}

// Raw returns the wire frame the message was parsed from, or nil.
func (m *Message) Raw() []byte { return m.raw }

// Fields returns every field of the frame in wire order.
func (m *Message) Fields() []TagValue { return m.fields }

// MsgType returns the value of tag 35.
func (m *Message) MsgType() (string, error) {
	return m.Header.GetString(TagMsgType)
}

// SeqNum returns the value of tag 34.
func (m *Message) SeqNum() (int, error) {
	return m.Header.GetInt(TagMsgSeqNum)
}

// IsAdmin reports whether the message is session-layer traffic.
func (m *Message) IsAdmin() bool {
	t, err := m.MsgType()
	return err == nil && IsAdminMsgType(t)
}

// PossDup reports whether the PossDupFlag (43) is set to Y.
func (m *Message) PossDup() bool {
	v, err := m.Header.GetBool(TagPossDupFlag)
	return err == nil && v
}

// -------------------------------------------------------------------------
// Encoding
// -------------------------------------------------------------------------

// Build encodes the message to its wire form, recomputing BodyLength (9)
// and CheckSum (10). BeginString (8) and MsgType (35) must already be in
// the header.
func (m *Message) Build() []byte {
	bodyLen := m.Header.length() + m.Body.length() + m.Trailer.length()
	m.Header.SetInt(TagBodyLength, bodyLen)

	b := make([]byte, 0, bodyLen+64)
	b = m.Header.write(b)
	b = m.Body.write(b)

	m.Trailer.Remove(TagCheckSum)
	b = m.Trailer.write(b)
	m.Trailer.Set(TagCheckSum, formatCheckSum(checkSum(b)))
	b = TagValue{Tag: TagCheckSum, Value: m.Trailer.fields[TagCheckSum]}.append(b)

	m.raw = b
	return b
}

// checkSum is the modulo-256 sum of b.
func checkSum(b []byte) int {
	sum := 0
	for _, c := range b {
		sum += int(c)
	}
	return sum % 256
}

// formatCheckSum renders a checksum as exactly three decimal digits.
func formatCheckSum(v int) []byte {
	b := []byte{'0', '0', '0'}
	b[0] = byte('0' + v/100)
	b[1] = byte('0' + (v/10)%10)
	b[2] = byte('0' + v%10)
	return b
}

// checkFrame verifies the declared BodyLength and CheckSum of a raw
// frame. Returns a RejectError with reason 5 on mismatch, per the
// ValidateLengthAndChecksum session flag.
func checkFrame(raw []byte) error {
	// Locate the trailing checksum field: "10=nnn<SOH>".
	if len(raw) < 7 {
		return RejectError{Reason: RejectValueOutOfRange, RefTag: TagCheckSum, Text: "message too short"}
	}
	ckStart := len(raw) - 7
	if !bytes.HasPrefix(raw[ckStart:], []byte("10=")) {
		return RejectError{Reason: RejectValueOutOfRange, RefTag: TagCheckSum, Text: "checksum field misplaced"}
	}

	declared, err := ParseInt(raw[ckStart+3 : len(raw)-1])
	if err != nil || checkSum(raw[:ckStart]) != declared {
		return RejectError{Reason: RejectValueOutOfRange, RefTag: TagCheckSum, Text: "invalid checksum"}
	}

	// BodyLength runs from the byte after tag 9's SOH up to the
	// checksum tag.
	i := bytes.Index(raw, []byte{SOH, '9', '='})
	if i < 0 {
		return RejectError{Reason: RejectRequiredTagMissing, RefTag: TagBodyLength, Text: "BodyLength missing"}
	}
	end := bytes.IndexByte(raw[i+1:], SOH)
	if end < 0 {
		return RejectError{Reason: RejectValueOutOfRange, RefTag: TagBodyLength, Text: "BodyLength unterminated"}
	}
	bodyStart := i + 1 + end + 1
	declaredLen, err := ParseInt(raw[i+3 : i+1+end])
	if err != nil || ckStart-bodyStart != declaredLen {
		return RejectError{Reason: RejectValueOutOfRange, RefTag: TagBodyLength, Text: "invalid BodyLength"}
	}
	return nil
}

// ReverseRoute returns a reply skeleton whose routing header fields are
// the inbound message's, swapped: sender becomes target, on-behalf-of
// becomes deliver-to, and so on.
func (m *Message) ReverseRoute() *Message {
	out := NewMessage()
	cp := func(src, dst Tag) {
		if v, err := m.Header.Get(src); err == nil && len(v) > 0 {
			out.Header.Set(dst, append([]byte(nil), v...))
		}
	}
	cp(TagSenderCompID, TagTargetCompID)
	cp(TagTargetCompID, TagSenderCompID)
	cp(TagSenderSubID, TagTargetSubID)
	cp(TagTargetSubID, TagSenderSubID)
	cp(TagSenderLocationID, TagTargetLocationID)
	cp(TagTargetLocationID, TagSenderLocationID)
	cp(TagOnBehalfOfCompID, TagDeliverToCompID)
	cp(TagDeliverToCompID, TagOnBehalfOfCompID)
	cp(TagOnBehalfOfSubID, TagDeliverToSubID)
	cp(TagDeliverToSubID, TagOnBehalfOfSubID)
	return out
}
