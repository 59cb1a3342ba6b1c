package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	SlotFile     string        // lease table file shared by every participant
	Slots        int           // number of lock words in the table
	LeaseTimeout time.Duration // default lease for hold/stress
	LogLevel     string
	LogFormat    string
	HTTPAddr     string
	GRPCAddr     string
}

// reads an optional .env file then the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	slots, err := getEnvInt("TSLOCK_SLOTS", 64)
	if err != nil {
		return nil, err
	}
	lease, err := getEnvDuration("TSLOCK_LEASE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		SlotFile:     getEnv("TSLOCK_SLOT_FILE", "./tslock.slots"),
		Slots:        slots,
		LeaseTimeout: lease,
		LogLevel:     getEnv("TSLOCK_LOG_LEVEL", "info"),
		LogFormat:    getEnv("TSLOCK_LOG_FORMAT", "console"),
		HTTPAddr:     getEnv("TSLOCK_HTTP_ADDR", ":8080"),
		GRPCAddr:     getEnv("TSLOCK_GRPC_ADDR", ":9000"),
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Slots <= 0 {
		return fmt.Errorf("slots must be greater than 0, got %d", c.Slots)
	}
	if c.LeaseTimeout < time.Second {
		return fmt.Errorf("lease timeout must be at least 1s, got %s", c.LeaseTimeout)
	}
	if c.SlotFile == "" {
		return fmt.Errorf("slot file required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
