package mail

import (
	"strings"

	"github.com/kasuganosora/ucsmail/model"
	"github.com/kasuganosora/ucsmail/wire"
)

// headerSource is a fixed value the client expects in every header packet.
const headerSource = 25015275

// HeaderCountPacket announces how many header packets follow.
func HeaderCountPacket(slot, count int) []byte {
	return wire.Encode(
		wire.Int(int64(slot)),
		wire.Int(headerSource),
		wire.Int(1),
		wire.Int(int64(count)),
	)
}

// HeaderPacket describes one message in a mailbox listing. The sender is
// shown fully qualified: prefix and from are written as one field.
func HeaderPacket(slot, index int, prefix string, rec model.MailRecord) []byte {
	return wire.Encode(
		wire.Int(int64(slot)),
		wire.Int(headerSource),
		wire.Int(int64(index)),
		wire.Uint(rec.MsgID),
		wire.Int(rec.Timestamp),
		wire.Int(int64(rec.Status)),
		wire.Join(prefix),
		wire.Str(rec.From),
		wire.Str(rec.Subject),
	)
}

// BodyPacket carries a message body. The trailer after the "1" marker is
// fixed client framing: 0x00 0x0A, then "TO:" and the recipients with no
// terminator, closed by a single 0x0A.
func BodyPacket(slot int, rec model.MailRecord) []byte {
	return wire.Encode(
		wire.Int(int64(slot)),
		wire.Uint(rec.MsgID),
		wire.Str(rec.Body),
		wire.Str("1"),
		wire.Raw(0x00, 0x0a),
		wire.Join("TO:"),
		wire.Join(rec.To),
		wire.Raw(0x0a),
	)
}

// NewMailPacket notifies an online character that mail arrived.
func NewMailPacket(slot int, msgID uint32, timestamp int64, from, subject string) []byte {
	return wire.Encode(
		wire.Int(int64(slot)),
		wire.Uint(msgID),
		wire.Int(timestamp),
		wire.Str("1"),
		wire.Str(from),
		wire.Str(subject),
	)
}

// DeliveryStatusPacket reports the outcome of a send to the sender.
// failed lists recipients that could not be resolved.
func DeliveryStatusPacket(slot int, failed []string) []byte {
	delivered := int64(1)
	if len(failed) > 0 {
		delivered = 0
	}
	return wire.Encode(
		wire.Int(int64(slot)),
		wire.Int(delivered),
		wire.Str(strings.Join(failed, ", ")),
	)
}
