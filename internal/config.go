package internal

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	BadgerFilepath        string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath         string        `env:"BLUGE_FILEPATH,required=true"`
	LogLevel              string        `env:"LOG_LEVEL,default=INFO"`
	AuthTokenSecret       string        `env:"AUTH_TOKEN_SECRET,required=true"`
	AuthTokenDuration     time.Duration `env:"AUTH_TOKEN_DURATION,default=720h"`
	SessionFilepath       string        `env:"SESSION_FILEPATH,default=.chat-sync-session"`
	RestartInterval       time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	WriteRetries          int           `env:"WRITE_RETRIES,default=5"`
	ConversationPairGuard bool          `env:"CONVERSATION_PAIR_GUARD,default=true"`
	ConversationOrder     string        `env:"CONVERSATION_ORDER,default=recency"`
	MetricInterval        time.Duration `env:"METRIC_INTERVAL,default=30s"`
	SearchLimit           int           `env:"SEARCH_LIMIT,default=20"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) validate() error {
	if len(c.AuthTokenSecret) < 16 {
		return fmt.Errorf("AUTH_TOKEN_SECRET must be at least 16 characters long")
	}
	if c.WriteRetries < 1 {
		return fmt.Errorf("WRITE_RETRIES must be positive, got %d", c.WriteRetries)
	}
	if c.SearchLimit < 1 {
		return fmt.Errorf("SEARCH_LIMIT must be positive, got %d", c.SearchLimit)
	}
	if c.RestartInterval <= 0 || c.MetricInterval <= 0 {
		return fmt.Errorf("RESTART_INTERVAL and METRIC_INTERVAL must be positive")
	}
	return nil
}
