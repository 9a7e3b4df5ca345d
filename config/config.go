// Package config loads relay settings from the environment. An optional
// .env file in the working directory is read first; variables already set in
// the process environment win over it.
package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrInvalidPort       = errors.New("config: port must be within 0..65535")
	ErrInvalidReadBuffer = errors.New("config: read buffer size must be positive")
)

// BindHost is the only interface the relay listens on.
const BindHost = "127.0.0.1"

type Config struct {
	Port            int32         `env:"RELAY_PORT" envDefault:"6969"`
	ReadBufferSize  int           `env:"RELAY_READ_BUFFER" envDefault:"64"`
	LogLevel        string        `env:"RELAY_LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"RELAY_LOG_FORMAT" envDefault:"text"`
	Announce        bool          `env:"RELAY_ANNOUNCE" envDefault:"false"`
	AnnounceName    string        `env:"RELAY_ANNOUNCE_NAME"`
	MetricsInterval time.Duration `env:"RELAY_METRICS_INTERVAL" envDefault:"10s"`
}

// Load reads .env (when present) and the process environment, then validates
// the result.
func Load() (Config, error) {
	cfg, err := Parse()
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Parse is Load without validation, for callers that still apply overrides.
func Parse() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("error load .env file. %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("error parse environment. %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port < 0 || c.Port > math.MaxUint16 {
		return fmt.Errorf("%w, got %d", ErrInvalidPort, c.Port)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("%w, got %d", ErrInvalidReadBuffer, c.ReadBufferSize)
	}
	return nil
}

// Addr is the listen address, always on BindHost.
func (c Config) Addr() string {
	return net.JoinHostPort(BindHost, strconv.Itoa(int(c.Port)))
}
