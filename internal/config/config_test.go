package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.GetServerAddr())
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 25, cfg.Database.MaxConns)
	assert.Equal(t, "eur", cfg.Stripe.Currency)
	assert.Equal(t, 5*time.Minute, cfg.App.SweepInterval)
	assert.True(t, cfg.App.IsDevelopment())
	assert.Equal(t, "Europe/Madrid", cfg.App.Location().String())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"SERVER_PORT":     "9090",
		"DB_DRIVER":       "sqlite",
		"DB_PATH":         "/tmp/p.db",
		"APP_ENVIRONMENT": "production",
		"RATE_ISSUE_RPS":  "0.5",
		"SMS_TIMEOUT":     "2s",
	}))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.GetServerAddr())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/p.db", cfg.Database.Path)
	assert.True(t, cfg.App.IsProduction())
	assert.InDelta(t, 0.5, cfg.Rate.IssueRPS, 1e-9)
	assert.Equal(t, 2*time.Second, cfg.SMS.Timeout)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	_, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"DB_DRIVER": "mysql",
	}))
	require.Error(t, err)
}

func TestLoadRejectsBadTimezone(t *testing.T) {
	_, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"APP_TIMEZONE": "Mars/Olympus",
	}))
	require.Error(t, err)
}
