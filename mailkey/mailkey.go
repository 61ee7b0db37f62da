// Package mailkey checks the mailbox key a client presents at login against
// the key the world server stored for the character.
//
// The world server hands the client an 8 hex digit token and stores
// hex8(client IP) + token (or just the token when IP binding is off).
package mailkey

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/kasuganosora/ucsmail/config"
	"go.uber.org/zap"
)

// Expected builds the key a client with the given address and token must
// match.
func Expected(clientIP uint32, token string, ipCheck bool) string {
	if !ipCheck {
		return token
	}
	return fmt.Sprintf("%08X", clientIP) + token
}

// Verify reports whether storedKey is byte-equal to the expected key.
// An empty stored key never matches.
func Verify(storedKey string, clientIP uint32, token string, ipCheck bool) bool {
	if storedKey == "" {
		return false
	}
	return storedKey == Expected(clientIP, token, ipCheck)
}

// IPv4ToUint32 packs a.b.c.d as 0xAABBCCDD. Non-IPv4 addresses give 0.
func IPv4ToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(v4)
}

// KeyStore looks up the stored mailbox key of a character by name.
type KeyStore interface {
	MailKey(ctx context.Context, name string) (string, error)
}

// Verifier checks login keys against the character table.
type Verifier struct {
	store  KeyStore
	cfg    *config.MailConfig
	logger *zap.Logger
}

// NewVerifier creates a Verifier. cfg is read on every call so a reloaded
// config takes effect without a restart.
func NewVerifier(store KeyStore, cfg *config.MailConfig, logger *zap.Logger) *Verifier {
	return &Verifier{store: store, cfg: cfg, logger: logger}
}

// VerifyCharacter loads the key stored for name and checks the client's
// address and token against it. Lookup failures deny access.
func (v *Verifier) VerifyCharacter(ctx context.Context, name string, clientIP uint32, token string) bool {
	stored, err := v.store.MailKey(ctx, name)
	if err != nil {
		v.logger.Info("mail key lookup failed",
			zap.String("character", name),
			zap.Error(err))
		return false
	}
	ok := Verify(stored, clientIP, token, v.cfg.KeyIPVerification)
	if !ok {
		v.logger.Info("mail key mismatch",
			zap.String("character", name),
			zap.Bool("ip_check", v.cfg.KeyIPVerification))
	}
	return ok
}
