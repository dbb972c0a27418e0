package fix

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// This file holds the wire codecs for the primitive FIX field kinds:
// int, float (fixed decimal), boolean, char and UTC timestamp. All of
// them are bit-exact: encode(decode(x)) reproduces the wire bytes for
// any value the engine itself produces.

// ErrConvert indicates a value that cannot be decoded as the requested
// field kind.
var ErrConvert = errors.New("value conversion failed")

// -------------------------------------------------------------------------
// Integer
// -------------------------------------------------------------------------

// FormatInt renders v in base 10 with no leading zeros.
func FormatInt(v int) []byte {
	return strconv.AppendInt(nil, int64(v), 10)
}

// ParseInt decodes a FIX integer: an optional leading '-' followed by
// ASCII digits only. Leading zeros are accepted on decode.
func ParseInt(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, ErrConvert
	}
	i := 0
	if b[0] == '-' {
		i = 1
		if len(b) == 1 {
			return 0, ErrConvert
		}
	}
	n := 0
	for ; i < len(b); i++ {
		if b[i] < '0' || b[i] > '9' {
			return 0, ErrConvert
		}
		n = n*10 + int(b[i]-'0')
	}
	if b[0] == '-' {
		n = -n
	}
	return n, nil
}

// -------------------------------------------------------------------------
// Boolean and Char
// -------------------------------------------------------------------------

// FormatBool renders a FIX boolean as Y or N.
func FormatBool(v bool) []byte {
	if v {
		return []byte{'Y'}
	}
	return []byte{'N'}
}

// ParseBool decodes a FIX boolean. Only the single bytes Y and N are valid.
func ParseBool(b []byte) (bool, error) {
	if len(b) != 1 {
		return false, ErrConvert
	}
	switch b[0] {
	case 'Y':
		return true, nil
	case 'N':
		return false, nil
	}
	return false, ErrConvert
}

// FormatChar renders a single-character field.
func FormatChar(c byte) []byte { return []byte{c} }

// ParseChar decodes a single-character field.
func ParseChar(b []byte) (byte, error) {
	if len(b) != 1 {
		return 0, ErrConvert
	}
	return b[0], nil
}

// -------------------------------------------------------------------------
// Fixed Decimal
// -------------------------------------------------------------------------

// maxFloatPrecision bounds the significant decimal digits produced for a
// float64; beyond it the binary representation carries no information.
const maxFloatPrecision = 15

// floatDigitThreshold is 10^16. At or above it a float64 has no
// representable fractional part, so rendering pads with trailing zeros
// instead of fabricating digits.
const floatDigitThreshold = 1e16

// FormatFloat renders v in fixed decimal notation (never exponent form).
//
// padding > 0 forces exactly that many fractional digits, right-padded
// with zeros; padding == 0 strips trailing zeros and drops the decimal
// point when the fraction is empty. When rounded is set, v is rounded
// half-to-even at padding digits before rendering; otherwise the natural
// digits are produced and only padded.
//
// NaN renders as the literal "nan". Infinities are the caller's bug.
// A negative zero renders as "0".
func FormatFloat(v float64, padding int, rounded bool) []byte {
	if math.IsNaN(v) {
		return []byte("nan")
	}

	neg := math.Signbit(v)
	abs := math.Abs(v)

	var s string
	switch {
	case abs >= floatDigitThreshold:
		s = strconv.FormatFloat(abs, 'f', 0, 64)
		if padding > 0 {
			s += "." + strings.Repeat("0", padding)
		}
	case rounded:
		// strconv rounds the exact binary value half-to-even, which is
		// the banker's rule the wire format requires.
		s = strconv.FormatFloat(abs, 'f', padding, 64)
	default:
		s = formatNatural(abs)
		if padding > 0 {
			s = padFraction(s, padding)
		}
	}

	if neg && !isZeroDecimal(s) {
		s = "-" + s
	}
	return []byte(s)
}

// formatNatural renders abs with its natural decimal digits, capped at
// maxFloatPrecision significant digits, trailing zeros stripped.
func formatNatural(abs float64) string {
	whole := int(abs)
	wholeDigits := 1
	for w := whole; w >= 10; w /= 10 {
		wholeDigits++
	}
	prec := maxFloatPrecision - wholeDigits
	if prec < 0 {
		prec = 0
	}
	s := strconv.FormatFloat(abs, 'f', prec, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

// padFraction right-pads the fractional part of s with zeros to exactly
// width digits.
func padFraction(s string, width int) string {
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return s + "." + strings.Repeat("0", width)
	}
	frac := len(s) - dot - 1
	if frac < width {
		return s + strings.Repeat("0", width-frac)
	}
	return s
}

// isZeroDecimal reports whether s renders the value zero.
func isZeroDecimal(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '0' && s[i] != '.' {
			return false
		}
	}
	return true
}

// ParseFloat decodes a FIX decimal: an optional '-', digits, and at most
// one '.'. Exponent notation and non-ASCII digits are invalid.
func ParseFloat(b []byte) (float64, error) {
	if len(b) == 0 {
		return 0, ErrConvert
	}
	sawDigit, sawDot := false, false
	for i, c := range b {
		switch {
		case c >= '0' && c <= '9':
			sawDigit = true
		case c == '-' && i == 0:
		case c == '.' && !sawDot:
			sawDot = true
		default:
			return 0, ErrConvert
		}
	}
	if !sawDigit {
		return 0, ErrConvert
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return 0, ErrConvert
	}
	return v, nil
}

// -------------------------------------------------------------------------
// UTC Timestamp
// -------------------------------------------------------------------------

const (
	utcTimestampLayout       = "20060102-15:04:05"
	utcTimestampMillisLayout = "20060102-15:04:05.000"
	utcTimeOnlyLayout        = "15:04:05"
)

// FormatUTCTimestamp renders t as YYYYMMDD-HH:MM:SS, with .sss appended
// when millis is set. The rendering is always in UTC.
func FormatUTCTimestamp(t time.Time, millis bool) []byte {
	layout := utcTimestampLayout
	if millis {
		layout = utcTimestampMillisLayout
	}
	return []byte(t.UTC().Format(layout))
}

// ParseUTCTimestamp decodes YYYYMMDD-HH:MM:SS with an optional .sss
// millisecond suffix.
func ParseUTCTimestamp(b []byte) (time.Time, error) {
	layout := utcTimestampLayout
	if len(b) == len(utcTimestampMillisLayout) {
		layout = utcTimestampMillisLayout
	}
	t, err := time.ParseInLocation(layout, string(b), time.UTC)
	if err != nil {
		return time.Time{}, ErrConvert
	}
	return t, nil
}

// ParseTimeOfDay decodes HH:MM:SS as an offset from midnight.
func ParseTimeOfDay(s string) (time.Duration, error) {
	t, err := time.Parse(utcTimeOnlyLayout, s)
	if err != nil {
		return 0, ErrConvert
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}
