package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCache_Unreachable(t *testing.T) {
	start := time.Now()
	_, err := NewCache(Config{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestKeyPrefix(t *testing.T) {
	r := &RedisCache{prefix: "ucs:"}
	assert.Equal(t, "ucs:lock:mail_expire", r.key("lock:mail_expire"))
	assert.Equal(t, "session:x", (&RedisCache{}).key("session:x"))
}
