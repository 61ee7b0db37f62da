package mysql

import (
	"testing"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDSN_Defaults(t *testing.T) {
	dsn, err := NormalizeDSN("ucs:secret@tcp(db:3306)/peq")
	require.NoError(t, err)

	c, err := gomysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, c.ParseTime)
	assert.Equal(t, "utf8mb4", c.Params["charset"])
	assert.Equal(t, "peq", c.DBName)
	assert.Equal(t, "db:3306", c.Addr)
}

func TestNormalizeDSN_KeepsCharset(t *testing.T) {
	dsn, err := NormalizeDSN("ucs@tcp(db:3306)/peq?charset=latin1")
	require.NoError(t, err)
	c, err := gomysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "latin1", c.Params["charset"])
}

func TestNormalizeDSN_Invalid(t *testing.T) {
	_, err := NormalizeDSN("not a dsn")
	assert.Error(t, err)
}
