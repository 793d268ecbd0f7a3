// Package config loads the runtime configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config is the process configuration.
type Config struct {
	ListenAddress string `env:"JORMUN_LISTEN_ADDRESS" envDefault:"127.0.0.1"`
	ListenPort    int    `env:"JORMUN_LISTEN_PORT" envDefault:"9100"`
	Workers       int    `env:"JORMUN_WORKERS" envDefault:"10"`

	// Book behaviour.
	CrossedBookTolerance uint32 `env:"JORMUN_CROSSED_BOOK_TOLERANCE" envDefault:"1"`
	AcceptedBufferNs     uint64 `env:"JORMUN_ACCEPTED_BUFFER_NS" envDefault:"0"`
	ValidateSequence     bool   `env:"JORMUN_VALIDATE_SEQUENCE" envDefault:"false"`
	BufferDeltas         bool   `env:"JORMUN_BUFFER_DELTAS" envDefault:"false"`
	Lenient              bool   `env:"JORMUN_LENIENT" envDefault:"true"`
}

// Load reads the configuration from the environment. A missing .env
// file is not an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}
