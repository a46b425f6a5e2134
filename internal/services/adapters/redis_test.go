package adapters

import (
	"testing"

	"github.com/adaptive-sql/querygate/internal/models"
	"github.com/adaptive-sql/querygate/internal/services/credentials"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func credentialsBundle() credentials.Bundle {
	return credentials.Bundle{}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected []string
	}{
		{"simple", "GET user:1", []string{"GET", "user:1"}},
		{"multiple args", "MGET a b c", []string{"MGET", "a", "b", "c"}},
		{"double quoted", `GET "user one"`, []string{"GET", "user one"}},
		{"single quoted", "GET 'user one'", []string{"GET", "user one"}},
		{"empty quoted arg", `SCAN 0 MATCH ""`, []string{"SCAN", "0", "MATCH", ""}},
		{"extra whitespace", "  GET \t user:1  ", []string{"GET", "user:1"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := splitCommand(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, args)
		})
	}

	_, err := splitCommand(`GET "unterminated`)
	require.Error(t, err)
}

func TestRenderRedisValue(t *testing.T) {
	single := renderRedisValue("hello", 0)
	assert.Equal(t, []string{"value"}, single.Columns)
	require.Equal(t, 1, single.RowCount)
	assert.Equal(t, "hello", single.Rows[0][0])

	list := renderRedisValue([]any{"a", "b", "c"}, 0)
	assert.Equal(t, 3, list.RowCount)
	assert.False(t, list.Truncated)

	truncated := renderRedisValue([]any{"a", "b", "c"}, 2)
	assert.Equal(t, 2, truncated.RowCount)
	assert.True(t, truncated.Truncated)

	hash := renderRedisValue(map[string]string{"name": "alice"}, 0)
	assert.Equal(t, []string{"field", "value"}, hash.Columns)
	assert.Equal(t, 1, hash.RowCount)
}

func TestValidateReadCommand(t *testing.T) {
	for _, cmd := range []string{
		"GET user:1",
		"get user:1",
		"MGET a b c",
		`HGET "user one" name`,
		"SCAN 0 MATCH user:*",
		"TTL session:42",
	} {
		assert.NoError(t, ValidateReadCommand(cmd), cmd)
	}

	for _, cmd := range []string{
		"DEL user:1",
		"SET user:1 x",
		"FLUSHALL",
		"EVAL \"return 1\" 0",
		"",
		`GET "unterminated`,
	} {
		err := ValidateReadCommand(cmd)
		require.Error(t, err, cmd)
		assert.Equal(t, models.ErrorKindRejectedOperation, models.KindOf(err), cmd)
	}
}

func TestRedisCommandWhitelist(t *testing.T) {
	for _, cmd := range []string{"GET", "MGET", "HGETALL", "LRANGE", "SMEMBERS", "ZRANGE", "SCAN", "TTL", "TYPE", "EXISTS", "KEYS"} {
		assert.True(t, readCommands[cmd], cmd)
	}
	for _, cmd := range []string{"SET", "DEL", "FLUSHALL", "FLUSHDB", "HSET", "LPUSH", "EXPIRE", "CONFIG", "EVAL", "SHUTDOWN"} {
		assert.False(t, readCommands[cmd], cmd)
	}
}
