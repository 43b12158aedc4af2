package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Environment string `env:"ENV" env-default:"development"`
	LogLevel    string `env:"LOG_LEVEL" env-default:""`
	HTTPAddr    string `env:"HTTP_ADDR" env-default:":8080"`

	Storage      string        `env:"STORAGE" env-default:"memory"`
	DBDSN        string        `env:"DB_DSN"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" env-default:"5s"`
	AutoMigrate  bool          `env:"DB_AUTO_MIGRATE" env-default:"true"`

	RedisAddr          string        `env:"REDIS_ADDR"`
	RedisPassword      string        `env:"REDIS_PASSWORD"`
	RedisChannelPrefix string        `env:"REDIS_CHANNEL_PREFIX" env-default:"conversation:"`
	AccessCacheTTL     time.Duration `env:"ACCESS_CACHE_TTL" env-default:"1m"`

	KafkaBrokers     []string `env:"KAFKA_BROKERS" env-separator:","`
	KafkaEventsTopic string   `env:"KAFKA_EVENTS_TOPIC" env-default:"engagement-events"`

	TelegramToken       string `env:"TELEGRAM_TOKEN"`
	TelegramAdminChatID int64  `env:"TELEGRAM_ADMIN_CHAT_ID"`

	BillingCron     string `env:"BILLING_CRON" env-default:"0 * * * *"`
	GrantExpiryCron string `env:"GRANT_EXPIRY_CRON" env-default:"*/15 * * * *"`

	SnapshotSize int `env:"STREAM_SNAPSHOT_SIZE" env-default:"50"`
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("⚠️  Failed to parse .env file: %v", err)
	}

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет сочетания параметров, которые cleanenv не проверяет
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required when STORAGE=%s", StoragePostgres)
		}
	default:
		return fmt.Errorf("STORAGE must be %q or %q, got %q", StorageMemory, StoragePostgres, c.Storage)
	}

	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	if c.TelegramToken != "" && c.TelegramAdminChatID == 0 {
		return fmt.Errorf("TELEGRAM_ADMIN_CHAT_ID is required with TELEGRAM_TOKEN")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
