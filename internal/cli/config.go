package cli

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
)

// Config rxmarble的环境变量配置
type Config struct {
	Format    string     `env:"RXMARBLE_FORMAT"     envDefault:"text"`
	MaxFrames int        `env:"RXMARBLE_MAX_FRAMES" envDefault:"0"`
	Parallel  int        `env:"RXMARBLE_PARALLEL"   envDefault:"4"`
	LogLevel  slog.Level `env:"RXMARBLE_LOG_LEVEL"  envDefault:"warn"`
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Parallel < 1 {
		return Config{}, fmt.Errorf("RXMARBLE_PARALLEL must be at least 1, got %d", cfg.Parallel)
	}
	if cfg.MaxFrames < 0 {
		return Config{}, fmt.Errorf("RXMARBLE_MAX_FRAMES must not be negative, got %d", cfg.MaxFrames)
	}
	return cfg, nil
}
