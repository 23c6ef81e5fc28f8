// Package config loads server settings from defaults, an optional TOML file,
// a .env file and the process environment, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Config holds the server settings.
type Config struct {
	Port   string `env:"PORT"`
	DBPath string `env:"DB_PATH"`

	JWTSecret string `env:"JWT_SECRET"`

	HeartbeatTimeout       time.Duration `env:"HEARTBEAT_TIMEOUT"`
	KeepAliveInterval      time.Duration `env:"KEEPALIVE_INTERVAL"`
	MaxSessionsPerIdentity int           `env:"MAX_SESSIONS_PER_IDENTITY"`
	SendBuffer             int           `env:"SEND_BUFFER"`

	OpenRate  float64 `env:"OPEN_RATE"`
	OpenBurst int     `env:"OPEN_BURST"`

	CORSOrigins string `env:"CORS_ORIGINS"`

	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`
}

// Default returns the built-in settings. JWTSecret has no default.
func Default() Config {
	return Config{
		Port:                   "8080",
		DBPath:                 "data/users.db",
		HeartbeatTimeout:       60 * time.Second,
		KeepAliveInterval:      25 * time.Second,
		MaxSessionsPerIdentity: 10,
		SendBuffer:             64,
		OpenRate:               2,
		OpenBurst:              5,
		CORSOrigins:            "*",
		LogLevel:               "info",
		LogFormat:              "console",
	}
}

type fileConfig struct {
	Port                   string  `toml:"port"`
	DBPath                 string  `toml:"db_path"`
	JWTSecret              string  `toml:"jwt_secret"`
	HeartbeatTimeout       string  `toml:"heartbeat_timeout"`
	KeepAliveInterval      string  `toml:"keepalive_interval"`
	MaxSessionsPerIdentity int     `toml:"max_sessions_per_identity"`
	SendBuffer             int     `toml:"send_buffer"`
	OpenRate               float64 `toml:"open_rate"`
	OpenBurst              int     `toml:"open_burst"`
	CORSOrigins            string  `toml:"cors_origins"`
	LogLevel               string  `toml:"log_level"`
	LogFormat              string  `toml:"log_format"`
}

// Load builds the configuration. path names an optional TOML file; envFile
// names an optional dotenv file, skipped when missing.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if envFile != "" {
		// Variables already in the environment win over the file.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := env.Load(&cfg, nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("db_path") {
		cfg.DBPath = strings.TrimSpace(raw.DBPath)
	}
	if meta.IsDefined("jwt_secret") {
		cfg.JWTSecret = raw.JWTSecret
	}
	if meta.IsDefined("heartbeat_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HeartbeatTimeout))
		if err != nil {
			return fmt.Errorf("parse heartbeat_timeout: %w", err)
		}
		cfg.HeartbeatTimeout = d
	}
	if meta.IsDefined("keepalive_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.KeepAliveInterval))
		if err != nil {
			return fmt.Errorf("parse keepalive_interval: %w", err)
		}
		cfg.KeepAliveInterval = d
	}
	if meta.IsDefined("max_sessions_per_identity") {
		cfg.MaxSessionsPerIdentity = raw.MaxSessionsPerIdentity
	}
	if meta.IsDefined("send_buffer") {
		cfg.SendBuffer = raw.SendBuffer
	}
	if meta.IsDefined("open_rate") {
		cfg.OpenRate = raw.OpenRate
	}
	if meta.IsDefined("open_burst") {
		cfg.OpenBurst = raw.OpenBurst
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
	}

	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.HeartbeatTimeout <= 0 {
		return fmt.Errorf("HEARTBEAT_TIMEOUT must be positive, got %s", c.HeartbeatTimeout)
	}
	if c.KeepAliveInterval < 0 {
		return fmt.Errorf("KEEPALIVE_INTERVAL must not be negative, got %s", c.KeepAliveInterval)
	}
	if c.MaxSessionsPerIdentity < 0 {
		return fmt.Errorf("MAX_SESSIONS_PER_IDENTITY must not be negative, got %d", c.MaxSessionsPerIdentity)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("SEND_BUFFER must be positive, got %d", c.SendBuffer)
	}
	if c.OpenRate < 0 || c.OpenBurst < 0 {
		return errors.New("OPEN_RATE and OPEN_BURST must not be negative")
	}
	if c.OpenRate > 0 && c.OpenBurst == 0 {
		return errors.New("OPEN_BURST must be at least 1 when OPEN_RATE is set")
	}
	return nil
}

// Origins splits CORSOrigins on commas.
func (c Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// AllowAllOrigins reports whether CORS is open to any origin.
func (c Config) AllowAllOrigins() bool {
	origins := c.Origins()
	return len(origins) == 0 || (len(origins) == 1 && origins[0] == "*")
}
