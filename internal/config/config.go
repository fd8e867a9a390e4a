package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the server's environment configuration.
type Config struct {
	Addr            string        `env:"PROBSIM_ADDR" envDefault:":8080"`
	DBPath          string        `env:"PROBSIM_DB" envDefault:"probsim.db"`
	TablesPath      string        `env:"PROBSIM_TABLES" envDefault:""`
	HeartbeatWindow time.Duration `env:"PROBSIM_HEARTBEAT_WINDOW" envDefault:"8s"`
	SweepInterval   time.Duration `env:"PROBSIM_SWEEP_INTERVAL" envDefault:"2s"`
	InitialBalance  int64         `env:"PROBSIM_INITIAL_BALANCE" envDefault:"10000"`
}

// FromEnv loads configuration from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
