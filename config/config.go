package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/Dosada05/fractal-system/models"
	"github.com/Dosada05/fractal-system/storage"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string `envconfig:"DATABASE_URL" required:"true"`
	JWTSecretKey string `envconfig:"JWT_SECRET_KEY" required:"true"`
	ServerPort   int    `envconfig:"SERVER_PORT" default:"8080"`

	// Как часто планировщик ищет просроченные раунды.
	CloseCheckInterval time.Duration `envconfig:"CLOSE_CHECK_INTERVAL" default:"30s"`

	TelegramToken string `envconfig:"TELEGRAM_TOKEN"`

	R2AccountID       string `envconfig:"R2_ACCOUNT_ID"`
	R2AccessKeyID     string `envconfig:"R2_ACCESS_KEY_ID"`
	R2SecretAccessKey string `envconfig:"R2_SECRET_ACCESS_KEY"`
	R2BucketName      string `envconfig:"R2_BUCKET_NAME"`
	R2PublicBaseURL   string `envconfig:"R2_PUBLIC_BASE_URL"`

	// Настройки новых фракталов по умолчанию.
	DefaultGroupSize        int           `envconfig:"DEFAULT_GROUP_SIZE" default:"6"`
	DefaultProposalsPerUser int           `envconfig:"DEFAULT_PROPOSALS_PER_USER" default:"1"`
	DefaultRoundDuration    time.Duration `envconfig:"DEFAULT_ROUND_DURATION" default:"24h"`
	DefaultCarryOver        int           `envconfig:"DEFAULT_CARRY_OVER" default:"2"`
	DefaultRepresentatives  int           `envconfig:"DEFAULT_REPRESENTATIVES" default:"1"`

	TreeCacheSize int `envconfig:"TREE_CACHE_SIZE" default:"256"`
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	// Ошибку не считаем фатальной: .env есть только локально
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	if c.JWTSecretKey == "" {
		return fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.ServerPort)
	}
	if c.CloseCheckInterval <= 0 {
		return fmt.Errorf("CLOSE_CHECK_INTERVAL must be positive, got %s", c.CloseCheckInterval)
	}
	if c.DefaultGroupSize <= 0 {
		return fmt.Errorf("DEFAULT_GROUP_SIZE must be positive, got %d", c.DefaultGroupSize)
	}
	if c.DefaultRepresentatives < 1 || c.DefaultRepresentatives > 3 {
		return fmt.Errorf("DEFAULT_REPRESENTATIVES must be between 1 and 3, got %d", c.DefaultRepresentatives)
	}
	if c.TreeCacheSize < 0 {
		return fmt.Errorf("TREE_CACHE_SIZE must not be negative, got %d", c.TreeCacheSize)
	}
	// R2 либо настроен полностью, либо выключен
	if r2 := c.R2(); r2.Enabled() {
		if err := r2.Validate(); err != nil {
			return fmt.Errorf("R2_* variables: %w", err)
		}
	}
	return nil
}

func (c *Config) R2() storage.R2Config {
	return storage.R2Config{
		AccountID:       c.R2AccountID,
		AccessKeyID:     c.R2AccessKeyID,
		SecretAccessKey: c.R2SecretAccessKey,
		BucketName:      c.R2BucketName,
		PublicBaseURL:   c.R2PublicBaseURL,
	}
}

// FractalDefaults are applied to fractals created without explicit settings.
func (c *Config) FractalDefaults() models.FractalSettings {
	return models.FractalSettings{
		GroupSize:               c.DefaultGroupSize,
		ProposalsPerUser:        c.DefaultProposalsPerUser,
		RoundDuration:           models.Duration(c.DefaultRoundDuration),
		CarryOverProposals:      c.DefaultCarryOver,
		RepresentativesPerGroup: c.DefaultRepresentatives,
	}
}
