package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacket_MarshalUnmarshal(t *testing.T) {
	p := Packet{Opcode: OpMailHeader, Payload: Encode(Int(0), Str("x"))}
	frame := p.Marshal()
	require.Len(t, frame, 2+len(p.Payload))
	assert.Equal(t, byte(0x03), frame[0])
	assert.Equal(t, byte(0x00), frame[1])

	got, err := Unmarshal(frame)
	require.NoError(t, err)
	assert.Equal(t, p.Opcode, got.Opcode)
	assert.Equal(t, p.Payload, got.Payload)
}

func TestUnmarshal_Short(t *testing.T) {
	_, err := Unmarshal([]byte{0x01})
	assert.ErrorIs(t, err, ErrShortPacket)
}

func TestOpcode_String(t *testing.T) {
	assert.Equal(t, "MailSendBody", OpMailSendBody.String())
	assert.Equal(t, "Opcode(0x00ff)", Opcode(0xff).String())
}

func TestRecorder(t *testing.T) {
	var r Recorder
	var s Sender = &r
	s.SendPacket(OpMailNew, []byte("a\x00"))
	require.Len(t, r.Packets, 1)
	assert.Equal(t, OpMailNew, r.Packets[0].Opcode)
}
