package fix

import (
	"bytes"
	"fmt"
)

// -------------------------------------------------------------------------
// Parser — streaming frame extractor
// -------------------------------------------------------------------------

// parserReadSize is the minimum writable span Buffer hands to the
// transport per read.
const parserReadSize = 4096

var (
	beginStringPrefix = []byte("8=")
	bodyLengthMarker  = []byte{SOH, '9', '='}
	checkSumMarker    = []byte{SOH, '1', '0', '='}
)

// Parser extracts complete FIX messages from a byte stream. The transport
// appends into the span returned by Buffer, declares the count with
// Advance, and drains frames with Parse. A successful Parse consumes
// exactly the returned frame; garbage ahead of the next "8=" candidate is
// discarded.
//
// The returned frame aliases the internal buffer and is valid until the
// next call to Parse, Buffer or Reset.
type Parser struct {
	buf  []byte // buffered unconsumed bytes
	free []byte // spare capacity handed out by Buffer
}

// NewParser returns an empty Parser.
func NewParser() *Parser {
	return &Parser{free: make([]byte, parserReadSize)}
}

// Buffer returns a writable span for the transport to read into. Call
// Advance with the number of bytes actually written.
func (p *Parser) Buffer() []byte {
	if len(p.free) < parserReadSize {
		p.free = make([]byte, parserReadSize)
	}
	return p.free
}

// Advance declares that n bytes of the span returned by Buffer now hold
// data.
func (p *Parser) Advance(n int) {
	p.buf = append(p.buf, p.free[:n]...)
	p.free = p.free[n:]
}

// Pending returns the number of buffered, unconsumed bytes.
func (p *Parser) Pending() int { return len(p.buf) }

// Reset drops all buffered partial state.
func (p *Parser) Reset() {
	p.buf = p.buf[:0]
	p.free = p.free[:0]
}

// Parse attempts to extract one complete message from the buffer.
//
// On success the frame spans BeginString through the SOH terminating the
// CheckSum field. ErrNeedMore means the buffer holds no complete message
// yet; ErrGarbled means the leading candidate was malformed and has been
// discarded, so the caller may simply try again.
func (p *Parser) Parse() ([]byte, error) {
	// Discard garbage ahead of the first "8=" candidate.
	start := bytes.Index(p.buf, beginStringPrefix)
	if start < 0 {
		// Keep a trailing '8' in case '=' is still in flight.
		if n := len(p.buf); n > 0 && p.buf[n-1] == '8' {
			p.buf = p.buf[n-1:]
		} else {
			p.buf = p.buf[:0]
		}
		return nil, ErrNeedMore
	}
	if start > 0 {
		p.buf = p.buf[start:]
	}

	// BeginString value ends at the first SOH.
	bsEnd := bytes.IndexByte(p.buf, SOH)
	if bsEnd < 0 {
		return nil, ErrNeedMore
	}

	// BodyLength tag must follow immediately.
	if !bytes.HasPrefix(p.buf[bsEnd:], bodyLengthMarker) {
		if len(p.buf[bsEnd:]) < len(bodyLengthMarker) {
			return nil, ErrNeedMore
		}
		return nil, p.discard(1, "BeginString not followed by BodyLength")
	}

	lenStart := bsEnd + len(bodyLengthMarker)
	lenEnd := bytes.IndexByte(p.buf[lenStart:], SOH)
	if lenEnd < 0 {
		return nil, ErrNeedMore
	}
	bodyLen, err := ParseInt(p.buf[lenStart : lenStart+lenEnd])
	if err != nil || bodyLen < 0 {
		return nil, p.discard(1, "BodyLength is not a number")
	}

	// The body runs for exactly bodyLen bytes after BodyLength's SOH,
	// and must be followed by the CheckSum field: SOH already consumed
	// as the last body byte, then "10=" plus three digits and SOH.
	bodyStart := lenStart + lenEnd + 1
	ckStart := bodyStart + bodyLen
	frameEnd := ckStart + 7
	if frameEnd > len(p.buf) {
		return nil, ErrNeedMore
	}
	if !bytes.HasPrefix(p.buf[ckStart-1:], checkSumMarker) {
		return nil, p.discard(1, "BodyLength does not point at CheckSum")
	}
	for _, c := range p.buf[ckStart+3 : ckStart+6] {
		if c < '0' || c > '9' {
			return nil, p.discard(1, "CheckSum is not three digits")
		}
	}
	if p.buf[frameEnd-1] != SOH {
		return nil, p.discard(1, "CheckSum field unterminated")
	}

	frame := p.buf[:frameEnd]
	p.buf = p.buf[frameEnd:]
	return frame, nil
}

// discard drops n leading bytes so the next Parse resynchronizes on the
// following "8=" candidate, and reports the malformation.
func (p *Parser) discard(n int, reason string) error {
	p.buf = p.buf[n:]
	return fmt.Errorf("%w: %s", ErrGarbled, reason)
}
