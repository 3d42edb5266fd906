package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Core
	BotToken    string `env:"BOT_TOKEN,required"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Admin
	AdminIDs []int64 `env:"ADMIN_IDS" envSeparator:","`

	// Audit mirror: engine events (terminal delivery failures, giveaway
	// winners) are posted to this chat so silent failures stay observable.
	AuditChatID        int64 `env:"AUDIT_CHAT_ID"`
	AuditTopicDelivery int   `env:"AUDIT_TOPIC_DELIVERY"`
	AuditTopicGiveaway int   `env:"AUDIT_TOPIC_GIVEAWAY"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}
