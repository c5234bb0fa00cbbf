package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "stock-ledger", cfg.App.Name)
	assert.Equal(t, "ledger.db", cfg.DB.Path)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.HTTP.AllowedOrigins)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_PATH", ":memory:")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "http://a.example, http://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":memory:", cfg.DB.Path)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.HTTP.AllowedOrigins)
}
