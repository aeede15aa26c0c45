package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	SpotifyClientID     string `envconfig:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `envconfig:"SPOTIFY_CLIENT_SECRET"`

	MLServiceURL string `envconfig:"ML_SERVICE_URL"`
	MLAPIKey     string `envconfig:"ML_API_KEY"`

	SweepInterval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
	IdleTimeout    time.Duration `envconfig:"IDLE_TIMEOUT" default:"30m"`
	DebounceWindow time.Duration `envconfig:"DEBOUNCE_WINDOW" default:"500ms"`

	HistoryCapacity int `envconfig:"HISTORY_CAPACITY" default:"100"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("MELODEX", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasSpotify() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}

func (c *Config) HasML() bool {
	return c.MLServiceURL != ""
}
