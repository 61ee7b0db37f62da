package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Terminator ends every terminated field on the wire.
const Terminator byte = 0x00

// ErrFieldCount is returned by Decode when the buffer does not split into
// the expected number of fields.
var ErrFieldCount = errors.New("wire: unexpected field count")

// ErrTerminatorInText is returned by CheckText for text holding a NUL byte.
var ErrTerminatorInText = errors.New("wire: text contains a field terminator")

type fieldKind uint8

const (
	kindInt fieldKind = iota
	kindStr
	kindJoin
	kindRaw
)

// Field is one element of a variable-field packet.
type Field struct {
	kind fieldKind
	num  int64
	str  string
	raw  []byte
}

// Int renders v as decimal ASCII followed by a terminator.
func Int(v int64) Field { return Field{kind: kindInt, num: v} }

// Uint is Int for unsigned ids.
func Uint(v uint32) Field { return Field{kind: kindInt, num: int64(v)} }

// Str writes s followed by a terminator. s must not contain a NUL byte;
// callers accepting user text run it through CheckText first.
func Str(s string) Field { return Field{kind: kindStr, str: s} }

// Join writes s with its terminator suppressed, so it runs straight into
// the next field. Like Str, s must not contain a NUL byte.
func Join(s string) Field { return Field{kind: kindJoin, str: s} }

// Raw writes b verbatim. Used for fixed framing bytes.
func Raw(b ...byte) Field { return Field{kind: kindRaw, raw: b} }

// CheckText returns ErrTerminatorInText if any of text would split into
// extra fields when written with Str or Join.
func CheckText(text ...string) error {
	for _, t := range text {
		if strings.IndexByte(t, Terminator) >= 0 {
			return ErrTerminatorInText
		}
	}
	return nil
}

// Len is the number of bytes f occupies in an encoded buffer.
func (f Field) Len() int {
	switch f.kind {
	case kindInt:
		return intLen(f.num) + 1
	case kindStr:
		return len(f.str) + 1
	case kindJoin:
		return len(f.str)
	default:
		return len(f.raw)
	}
}

func intLen(v int64) int {
	n := 1
	if v < 0 {
		n++
		if v == -v { // math.MinInt64
			return 20
		}
		v = -v
	}
	for v >= 10 {
		v /= 10
		n++
	}
	return n
}

// Size returns the exact encoded length of fields.
func Size(fields ...Field) int {
	n := 0
	for _, f := range fields {
		n += f.Len()
	}
	return n
}

// Encode serializes fields in order into a buffer sized up front.
func Encode(fields ...Field) []byte {
	buf := make([]byte, 0, Size(fields...))
	for _, f := range fields {
		switch f.kind {
		case kindInt:
			buf = strconv.AppendInt(buf, f.num, 10)
			buf = append(buf, Terminator)
		case kindStr:
			buf = append(buf, f.str...)
			buf = append(buf, Terminator)
		case kindJoin:
			buf = append(buf, f.str...)
		case kindRaw:
			buf = append(buf, f.raw...)
		}
	}
	return buf
}

// Decode splits buf on terminators into exactly n fields. The buffer must
// end with a terminator.
func Decode(buf []byte, n int) ([]string, error) {
	if len(buf) == 0 || buf[len(buf)-1] != Terminator {
		return nil, fmt.Errorf("%w: missing final terminator", ErrFieldCount)
	}
	parts := bytes.Split(buf[:len(buf)-1], []byte{Terminator})
	if len(parts) != n {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFieldCount, len(parts), n)
	}
	out := make([]string, n)
	for i, p := range parts {
		out[i] = string(p)
	}
	return out, nil
}

// DecodeInt parses a decimal field produced by Int.
func DecodeInt(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
