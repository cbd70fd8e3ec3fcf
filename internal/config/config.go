// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the process configuration shared by the server, the worker and
// the migrate command.
type Config struct {
	Store       string `yaml:"store" validate:"oneof=postgres memory"`
	DatabaseURL string `yaml:"databaseUrl" validate:"required_if=Store postgres"`

	HTTPAddr   string `yaml:"httpAddr" validate:"required"`
	CronSecret string `yaml:"cronSecret"`

	RedisURL string `yaml:"redisUrl"`
	AMQPURL  string `yaml:"amqpUrl"`

	GatewayURL   string `yaml:"gatewayUrl" validate:"omitempty,url"`
	GatewayToken string `yaml:"gatewayToken"`

	DispatchSchedule string `yaml:"dispatchSchedule" validate:"required"`
	SyncSchedule     string `yaml:"syncSchedule" validate:"required"`

	Worker Worker `yaml:"worker"`
}

// Worker holds the dispatch and sync tunables.
type Worker struct {
	BatchSize        int           `yaml:"batchSize" validate:"min=1,max=500"`
	SendTimeout      time.Duration `yaml:"sendTimeout" validate:"min=1s"`
	ClaimTTL         time.Duration `yaml:"claimTtl" validate:"gtfield=SendTimeout"`
	MinSendDelay     time.Duration `yaml:"minSendDelay" validate:"min=0"`
	MaxSendDelay     time.Duration `yaml:"maxSendDelay" validate:"gtefield=MinSendDelay"`
	SyncMessageDelay time.Duration `yaml:"syncMessageDelay" validate:"min=0"`
	Parallelism      int           `yaml:"parallelism" validate:"min=1,max=64"`
}

func defaults() *Config {
	return &Config{
		Store:            StorePostgres,
		HTTPAddr:         ":8080",
		DispatchSchedule: "*/5 * * * *",
		SyncSchedule:     "*/10 * * * *",
		Worker: Worker{
			BatchSize:        50,
			SendTimeout:      30 * time.Second,
			ClaimTTL:         5 * time.Minute,
			MinSendDelay:     30 * time.Second,
			MaxSendDelay:     90 * time.Second,
			SyncMessageDelay: 50 * time.Millisecond,
			Parallelism:      4,
		},
	}
}

// Load reads .env, the environment and the optional CONFIG_FILE overlay,
// then validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from a lookup function. Values of the
// YAML overlay win over the environment.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := defaults()
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if path := getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	// Leases and the dispatch lock are renewed once per row.
	if w := cfg.Worker; w.ClaimTTL <= w.MaxSendDelay+w.SendTimeout {
		return nil, fmt.Errorf("invalid configuration: CLAIM_TTL %s must exceed MAX_SEND_DELAY + SEND_TIMEOUT (%s)", w.ClaimTTL, w.MaxSendDelay+w.SendTimeout)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("STORE", &c.Store)
	str("HTTP_ADDR", &c.HTTPAddr)
	str("CRON_SECRET", &c.CronSecret)
	str("REDIS_URL", &c.RedisURL)
	str("AMQP_URL", &c.AMQPURL)
	str("GMAIL_GATEWAY_URL", &c.GatewayURL)
	str("GMAIL_GATEWAY_TOKEN", &c.GatewayToken)
	str("DISPATCH_SCHEDULE", &c.DispatchSchedule)
	str("SYNC_SCHEDULE", &c.SyncSchedule)

	c.DatabaseURL = getenv("DATABASE_URL")
	if c.DatabaseURL == "" && getenv("DB_HOST") != "" {
		port := getenv("DB_PORT")
		if port == "" {
			port = "5432"
		}
		c.DatabaseURL = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			getenv("DB_USER"), getenv("DB_PASSWORD"), getenv("DB_HOST"), port, getenv("DB_NAME"),
		)
	}

	ints := map[string]*int{
		"DISPATCH_BATCH_SIZE": &c.Worker.BatchSize,
		"WORKER_PARALLELISM":  &c.Worker.Parallelism,
	}
	for key, dst := range ints {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"SEND_TIMEOUT":       &c.Worker.SendTimeout,
		"CLAIM_TTL":          &c.Worker.ClaimTTL,
		"MIN_SEND_DELAY":     &c.Worker.MinSendDelay,
		"MAX_SEND_DELAY":     &c.Worker.MaxSendDelay,
		"SYNC_MESSAGE_DELAY": &c.Worker.SyncMessageDelay,
	}
	for key, dst := range durations {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	log.Println("✅ Loaded config overlay from", path)
	return nil
}
