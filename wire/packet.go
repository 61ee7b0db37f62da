package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Opcode identifies an application packet on the mail connection.
type Opcode uint16

const (
	OpMailLogin          Opcode = 0x0001
	OpMailHeaderCount    Opcode = 0x0002
	OpMailHeader         Opcode = 0x0003
	OpMailSendBody       Opcode = 0x0004
	OpMailNew            Opcode = 0x0005
	OpMailDeliveryStatus Opcode = 0x0006
	OpBuddyList          Opcode = 0x0007
	OpError              Opcode = 0x0008
)

var opcodeNames = map[Opcode]string{
	OpMailLogin:          "MailLogin",
	OpMailHeaderCount:    "MailHeaderCount",
	OpMailHeader:         "MailHeader",
	OpMailSendBody:       "MailSendBody",
	OpMailNew:            "MailNew",
	OpMailDeliveryStatus: "MailDeliveryStatus",
	OpBuddyList:          "BuddyList",
	OpError:              "Error",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(0x%04x)", uint16(op))
}

// headerLen is the opcode prefix written in front of every payload.
const headerLen = 2

// ErrShortPacket is returned when a frame is too small to carry an opcode.
var ErrShortPacket = errors.New("wire: packet shorter than opcode header")

// Packet is an opcode plus its encoded payload.
type Packet struct {
	Opcode  Opcode
	Payload []byte
}

// Marshal frames the packet as a little-endian opcode followed by the payload.
func (p Packet) Marshal() []byte {
	buf := make([]byte, headerLen+len(p.Payload))
	binary.LittleEndian.PutUint16(buf, uint16(p.Opcode))
	copy(buf[headerLen:], p.Payload)
	return buf
}

// Unmarshal is the inverse of Packet.Marshal.
func Unmarshal(frame []byte) (Packet, error) {
	if len(frame) < headerLen {
		return Packet{}, ErrShortPacket
	}
	return Packet{
		Opcode:  Opcode(binary.LittleEndian.Uint16(frame)),
		Payload: frame[headerLen:],
	}, nil
}

// Sender delivers encoded packets to one connected client.
type Sender interface {
	SendPacket(op Opcode, payload []byte)
}

// Recorder is a Sender that keeps every packet in memory.
type Recorder struct {
	Packets []Packet
}

// SendPacket implements Sender.
func (r *Recorder) SendPacket(op Opcode, payload []byte) {
	r.Packets = append(r.Packets, Packet{Opcode: op, Payload: payload})
}
