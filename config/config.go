// Package config loads application configuration with Viper: environment
// variables first, with an optional local .env-style file for development.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config groups the runtime configuration of the ledger service.
type Config struct {
	App  AppConfig
	DB   DBConfig
	HTTP HTTPConfig
	Log  LogConfig
}

// AppConfig is general application configuration.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// DBConfig points at the SQLite database file (":memory:" for ephemeral).
type DBConfig struct {
	Path string
}

// HTTPConfig is the listen address configuration.
type HTTPConfig struct {
	Host string
	Port int

	// CORS origins allowed to call the API (UI hosts of sibling modules).
	AllowedOrigins []string
}

// Addr returns the host:port listen address.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig controls the zerolog setup.
type LogConfig struct {
	Level string // trace, debug, info, warn, error
}

// Load reads configuration from environment variables and, if present, a
// local .env file. Environment variables win. Expected names: APP_ENV,
// DB_PATH, HTTP_PORT, LOG_LEVEL, etc.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file; absence is fine

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "stock-ledger")
	v.SetDefault("DB_PATH", "ledger.db")
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("HTTP_ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		App: AppConfig{
			Env:  v.GetString("APP_ENV"),
			Name: v.GetString("APP_NAME"),
		},
		DB: DBConfig{
			Path: v.GetString("DB_PATH"),
		},
		HTTP: HTTPConfig{
			Host:           v.GetString("HTTP_HOST"),
			Port:           v.GetInt("HTTP_PORT"),
			AllowedOrigins: splitOrigins(v.GetString("HTTP_ALLOWED_ORIGINS")),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}
	return cfg, nil
}

func splitOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
