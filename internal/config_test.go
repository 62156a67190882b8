package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("BADGER_FILEPATH", "/tmp/badger")
	t.Setenv("BLUGE_FILEPATH", "/tmp/bluge")
	t.Setenv("AUTH_TOKEN_SECRET", "0123456789abcdef")

	config, err := LoadConfig()
	req.NoError(err)
	req.Equal("INFO", config.LogLevel)
	req.Equal(720*time.Hour, config.AuthTokenDuration)
	req.Equal(200*time.Millisecond, config.RestartInterval)
	req.Equal(5, config.WriteRetries)
	req.True(config.ConversationPairGuard)
	req.Equal("recency", config.ConversationOrder)
	req.Equal(20, config.SearchLimit)
}

func TestLoadConfig_Overrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("BADGER_FILEPATH", "/tmp/badger")
	t.Setenv("BLUGE_FILEPATH", "/tmp/bluge")
	t.Setenv("AUTH_TOKEN_SECRET", "0123456789abcdef")
	t.Setenv("CONVERSATION_PAIR_GUARD", "false")
	t.Setenv("WRITE_RETRIES", "2")

	config, err := LoadConfig()
	req.NoError(err)
	req.False(config.ConversationPairGuard)
	req.Equal(2, config.WriteRetries)
}

func TestLoadConfig_Rejects_Short_Secret(t *testing.T) {
	req := require.New(t)
	t.Setenv("BADGER_FILEPATH", "/tmp/badger")
	t.Setenv("BLUGE_FILEPATH", "/tmp/bluge")
	t.Setenv("AUTH_TOKEN_SECRET", "short")

	_, err := LoadConfig()
	req.Error(err)
}
