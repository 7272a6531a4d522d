package config

import (
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type StateBackend string

const (
	StateBackendMemory StateBackend = "memory"
	StateBackendRedis  StateBackend = "redis"
)

type Config struct {
	TelegramToken    string        `mapstructure:"telegram_token"`
	BotHandleTimeout time.Duration `mapstructure:"bot_handle_timeout"`
	JobTimeout       time.Duration `mapstructure:"job_timeout"`
	TypingDelay      time.Duration `mapstructure:"typing_delay"`

	AdminIDs      []int64 `mapstructure:"admin_ids"`
	AdminUsername string  `mapstructure:"admin_username"`

	Timezone         string `mapstructure:"timezone"`
	PromoCodePattern string `mapstructure:"promo_code_pattern"`
	ReconcileFrom    string `mapstructure:"reconcile_from"`
	ReconcileTo      string `mapstructure:"reconcile_to"`

	StateBackend      StateBackend  `mapstructure:"state_backend"`
	StateTTL          time.Duration `mapstructure:"state_ttl"`
	RedisURL          string        `mapstructure:"redis_url"`
	BroadcastInterval time.Duration `mapstructure:"broadcast_interval"`

	APIListen string `mapstructure:"api_listen"`
	APIToken  string `mapstructure:"api_token"`

	PostgresDSN string `mapstructure:"postgres_dsn"`
}

func New() *Config {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		logrus.Fatalf("unmarshalling config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("validating config: %v", err)
	}
	return cfg
}

func (c *Config) Validate() error {
	switch c.StateBackend {
	case StateBackendMemory:
	case StateBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("state_backend %q requires redis_url", c.StateBackend)
		}
	default:
		return fmt.Errorf("unknown state_backend %q", c.StateBackend)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.PromoPattern(); err != nil {
		return err
	}
	return nil
}

func (c *Config) IsAdmin(telegramID int64) bool {
	return slices.Contains(c.AdminIDs, telegramID)
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) PromoPattern() (*regexp.Regexp, error) {
	re, err := regexp.Compile(c.PromoCodePattern)
	if err != nil {
		return nil, fmt.Errorf("compiling promo_code_pattern: %w", err)
	}
	return re, nil
}

// SetupCommon registers defaults and env bindings shared by all binaries.
// Values from a local .env file are loaded first, real env wins.
func SetupCommon() {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env loaded: %v", err)
	}

	viper.SetDefault("timezone", "Asia/Tashkent")
	viper.SetDefault("promo_code_pattern", `^[A-Z0-9-]{4,32}$`)
	viper.SetDefault("reconcile_from", "2025-01-01")
	viper.SetDefault("reconcile_to", "2025-12-31")
	viper.SetDefault("job_timeout", "5m")
	viper.SetDefault("state_backend", string(StateBackendMemory))
	viper.SetDefault("state_ttl", "24h")
	viper.SetEnvPrefix("PROMOBOT")

	viper.MustBindEnv("telegram_token")
	viper.MustBindEnv("postgres_dsn")
	viper.MustBindEnv("admin_ids")
	viper.MustBindEnv("admin_username")
	viper.MustBindEnv("redis_url")
	viper.MustBindEnv("api_token")
	viper.AutomaticEnv()
}
