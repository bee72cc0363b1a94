// Package config loads runtime configuration from the environment.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the binary needs at startup.
type Config struct {
	ListenAddr  string
	DatabaseURL string
	RedisURL    string

	LogLevel  string
	LogFormat string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	// DevSeed inserts a demo user and accounts on startup.
	DevSeed bool

	// ForecastHorizonDays is the default horizon when a request omits one.
	ForecastHorizonDays int

	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults.
func Load() Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("FORECAST_HORIZON_DAYS", 30)
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	return Config{
		ListenAddr:          v.GetString("LISTEN_ADDR"),
		DatabaseURL:         strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisURL:            strings.TrimSpace(v.GetString("REDIS_URL")),
		LogLevel:            v.GetString("LOG_LEVEL"),
		LogFormat:           strings.ToLower(v.GetString("LOG_FORMAT")),
		JWTSecret:           strings.TrimSpace(v.GetString("JWT_HS256_SECRET")),
		JWTIssuer:           strings.TrimSpace(v.GetString("JWT_ISSUER")),
		JWTAudience:         strings.TrimSpace(v.GetString("JWT_AUDIENCE")),
		DevSeed:             v.GetBool("DEV_SEED"),
		ForecastHorizonDays: v.GetInt("FORECAST_HORIZON_DAYS"),
		ShutdownTimeout:     v.GetDuration("SHUTDOWN_TIMEOUT"),
	}
}
