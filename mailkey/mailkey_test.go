package mailkey

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/kasuganosora/ucsmail/config"
	"github.com/kasuganosora/ucsmail/store"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func nop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func TestExpected(t *testing.T) {
	assert.Equal(t, "7F000001ABCD1234", Expected(0x7F000001, "ABCD1234", true))
	assert.Equal(t, "0000000Aabc", Expected(10, "abc", true))
	assert.Equal(t, "ABCD1234", Expected(0x7F000001, "ABCD1234", false))
}

func TestVerify_IPCheck(t *testing.T) {
	assert.True(t, Verify("C0A80105DEADBEEF", 0xC0A80105, "DEADBEEF", true))
	assert.False(t, Verify("c0a80105DEADBEEF", 0xC0A80105, "DEADBEEF", true), "hex must be upper case")
	assert.False(t, Verify("DEADBEEF", 0xC0A80105, "DEADBEEF", true))
	assert.False(t, Verify("C0A80106DEADBEEF", 0xC0A80105, "DEADBEEF", true))
}

func TestVerify_NoIPCheck(t *testing.T) {
	assert.True(t, Verify("DEADBEEF", 0xC0A80105, "DEADBEEF", false))
	assert.False(t, Verify("C0A80105DEADBEEF", 0xC0A80105, "DEADBEEF", false))
	assert.False(t, Verify("DEADBEE", 0, "DEADBEEF", false), "no prefix match")
}

func TestVerify_EmptyStoredKeyFailsClosed(t *testing.T) {
	assert.False(t, Verify("", 0, "", false))
	assert.False(t, Verify("", 0, "", true))
}

func TestVerify_SingleByteMutation(t *testing.T) {
	const ip, token = uint32(0x0A000001), "0F0F0F0F"
	for _, ipCheck := range []bool{true, false} {
		key := Expected(ip, token, ipCheck)
		assert.True(t, Verify(key, ip, token, ipCheck))
		for i := 0; i < len(key); i++ {
			b := []byte(key)
			b[i] ^= 0x01
			assert.False(t, Verify(string(b), ip, token, ipCheck), "mutated byte %d", i)
		}
	}
}

func TestIPv4ToUint32(t *testing.T) {
	assert.Equal(t, uint32(0x7F000001), IPv4ToUint32(net.ParseIP("127.0.0.1")))
	assert.Equal(t, uint32(0xC0A80105), IPv4ToUint32(net.ParseIP("192.168.1.5")))
	assert.Equal(t, uint32(0), IPv4ToUint32(net.ParseIP("::1")))
	assert.Equal(t, uint32(0), IPv4ToUint32(nil))
}

type fakeKeys map[string]string

func (f fakeKeys) MailKey(_ context.Context, name string) (string, error) {
	k, ok := f[name]
	if !ok {
		return "", store.ErrNotFound
	}
	return k, nil
}

type failingKeys struct{}

func (failingKeys) MailKey(context.Context, string) (string, error) {
	return "", errors.New("db down")
}

func TestVerifier_VerifyCharacter(t *testing.T) {
	cfg := &config.MailConfig{KeyIPVerification: true}
	v := NewVerifier(fakeKeys{"Bob": "7F000001CAFEBABE"}, cfg, nop())
	ctx := context.Background()

	assert.True(t, v.VerifyCharacter(ctx, "Bob", 0x7F000001, "CAFEBABE"))
	assert.False(t, v.VerifyCharacter(ctx, "Bob", 0x7F000002, "CAFEBABE"))
	assert.False(t, v.VerifyCharacter(ctx, "Nobody", 0x7F000001, "CAFEBABE"))

	// Toggle is read per call.
	cfg.KeyIPVerification = false
	assert.False(t, v.VerifyCharacter(ctx, "Bob", 0x7F000001, "CAFEBABE"))
	assert.True(t, v.VerifyCharacter(ctx, "Bob", 0, "7F000001CAFEBABE"))
}

func TestVerifier_StoreErrorDenies(t *testing.T) {
	v := NewVerifier(failingKeys{}, &config.MailConfig{}, nop())
	assert.False(t, v.VerifyCharacter(context.Background(), "Bob", 0, ""))
}
