package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken        string        `envconfig:"BOT_TOKEN"`                            // empty: notifications go to the log
	ChatID          int64         `envconfig:"CHAT_ID"`                              // 0: bound by /start
	DBPath          string        `envconfig:"DB_PATH" default:"./data/parallel.db"`
	DefaultTZ       string        `envconfig:"DEFAULT_TZ" default:"UTC"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`             // debug|info|warn|error
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`            // healthz + metrics
	PollInterval    time.Duration `envconfig:"POLL_INTERVAL" default:"30s"`
	DeliveryTimeout time.Duration `envconfig:"DELIVERY_TIMEOUT" default:"10s"`
}

// Load reads environment variables into Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
