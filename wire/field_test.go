package wire

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_IntAndStr(t *testing.T) {
	buf := Encode(Int(1), Str("Alice"), Int(-42))
	assert.Equal(t, []byte("1\x00Alice\x00-42\x00"), buf)
}

func TestEncode_LengthMatchesSize(t *testing.T) {
	fields := []Field{
		Int(0), Int(25015275), Int(math.MaxInt64), Int(math.MinInt64),
		Str(""), Str("subject line"), Join("SOE.EQ.Test."), Str("Bob"),
		Raw(0x00, 0x0a),
	}
	buf := Encode(fields...)
	assert.Len(t, buf, Size(fields...))
	assert.Equal(t, len(buf), cap(buf), "buffer must be allocated at its exact size")
}

func TestIntLen_Extremes(t *testing.T) {
	assert.Equal(t, len("9223372036854775807")+1, Int(math.MaxInt64).Len())
	assert.Equal(t, len("-9223372036854775808")+1, Int(math.MinInt64).Len())
	assert.Equal(t, 2, Int(0).Len())
	assert.Equal(t, 3, Int(-1).Len())
}

func TestEncode_JoinSuppressesTerminator(t *testing.T) {
	buf := Encode(Int(3), Join("SOE.EQ.Test."), Str("Alice"), Str("Hi"))
	assert.Equal(t, []byte("3\x00SOE.EQ.Test.Alice\x00Hi\x00"), buf)
}

func TestEncode_RawHasNoTerminator(t *testing.T) {
	buf := Encode(Str("1"), Raw(0x00, 0x0a), Join("TO:"), Join("Bob"), Raw(0x0a))
	assert.Equal(t, []byte("1\x00\x00\nTO:Bob\n"), buf)
}

func TestDecode_RoundTrip(t *testing.T) {
	cases := [][]Field{
		{Int(1)},
		{Int(0), Int(25015275), Int(1), Int(17)},
		{Str(""), Str("a"), Int(-5), Str("hello world")},
		{Uint(math.MaxUint32), Str("x")},
	}
	want := [][]string{
		{"1"},
		{"0", "25015275", "1", "17"},
		{"", "a", "-5", "hello world"},
		{"4294967295", "x"},
	}
	for i, fields := range cases {
		got, err := Decode(Encode(fields...), len(fields))
		require.NoError(t, err)
		assert.Equal(t, want[i], got)
	}
}

func TestDecode_JoinedFieldsDecodeTogether(t *testing.T) {
	buf := Encode(Int(0), Join("SOE.EQ.Test."), Str("Alice"), Str("Subject"))
	got, err := Decode(buf, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "SOE.EQ.Test.Alice", "Subject"}, got)
}

func TestDecode_WrongFieldCount(t *testing.T) {
	buf := Encode(Int(1), Str("a"))
	_, err := Decode(buf, 3)
	assert.ErrorIs(t, err, ErrFieldCount)
}

func TestDecode_MissingTerminator(t *testing.T) {
	_, err := Decode([]byte("abc"), 1)
	assert.ErrorIs(t, err, ErrFieldCount)

	_, err = Decode(nil, 1)
	assert.ErrorIs(t, err, ErrFieldCount)
}

func TestDecodeInt(t *testing.T) {
	got, err := Decode(Encode(Int(-123)), 1)
	require.NoError(t, err)
	v, err := DecodeInt(got[0])
	require.NoError(t, err)
	assert.Equal(t, int64(-123), v)
}

func TestCheckText(t *testing.T) {
	assert.NoError(t, CheckText())
	assert.NoError(t, CheckText("Alice", "", "multi\nline body"))
	assert.ErrorIs(t, CheckText("Alice", "H\x00i"), ErrTerminatorInText)
	assert.ErrorIs(t, CheckText("\x00"), ErrTerminatorInText)
}

func TestDecode_NulInTextBreaksFieldCount(t *testing.T) {
	subject := "H\x00i"
	buf := Encode(Int(0), Join("SOE.EQ.Test."), Str("Alice"), Str(subject))

	_, err := Decode(buf, 3)
	assert.ErrorIs(t, err, ErrFieldCount, "unchecked NUL adds a field")
	require.ErrorIs(t, CheckText(subject), ErrTerminatorInText)

	clean := Encode(Int(0), Join("SOE.EQ.Test."), Str("Alice"), Str("Hi"))
	fields, err := Decode(clean, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "SOE.EQ.Test.Alice", "Hi"}, fields)
}
