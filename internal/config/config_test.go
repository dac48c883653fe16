package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv sets the settings without which Load refuses to start.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GUARD_GEODB_PATH", "/data/GeoLite2-City.mmdb")
	t.Setenv("GUARD_STORAGE_PATH", "/data/rules")
	t.Setenv("GUARD_ACCESS_LOG_DIR", "/data/logs")
	t.Setenv("GUARD_SECRET_TOKEN", "s3cret")
}

func TestLoad(t *testing.T) {
	t.Run("Defaults with required environment", func(t *testing.T) {
		// Arrange
		setRequiredEnv(t)

		// Act
		cfg, err := Load("")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "guardpost", cfg.App.Name)
		assert.Equal(t, 8000, cfg.Server.Port)
		assert.Equal(t, "remote-addr", cfg.Guard.IPSource)
		assert.Equal(t, 10*time.Minute, cfg.Guard.PurgeInterval)
		assert.Equal(t, "/data/GeoLite2-City.mmdb", cfg.Guard.GeoDBPath)
		assert.Equal(t, "s3cret", cfg.Guard.SecretToken)
	})

	t.Run("YAML file then environment override", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("SERVER_PORT", "9100")

		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
server:
  port: 9000
  host: 127.0.0.1
guard:
  ip_source: leftmost-x-forwarded-for
  geo_cache_size: 128
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := Load(path)

		require.NoError(t, err)
		assert.Equal(t, 9100, cfg.Server.Port, "Environment must beat the file")
		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, "leftmost-x-forwarded-for", cfg.Guard.IPSource)
		assert.Equal(t, 128, cfg.Guard.GeoCacheSize)
	})

	t.Run("Duration from environment", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("GUARD_PURGE_INTERVAL", "90s")

		cfg, err := Load("")

		require.NoError(t, err)
		assert.Equal(t, 90*time.Second, cfg.Guard.PurgeInterval)
	})

	t.Run("Missing secret token", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("GUARD_SECRET_TOKEN", "")

		_, err := Load("")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "GUARD_SECRET_TOKEN")
	})

	t.Run("Missing geo database path", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("GUARD_GEODB_PATH", "")

		_, err := Load("")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "GUARD_GEODB_PATH")
	})

	t.Run("Invalid IP source policy", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("GUARD_IP_SOURCE", "x-forwarded-for")

		_, err := Load("")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "GUARD_IP_SOURCE")
	})

	t.Run("Invalid port", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("SERVER_PORT", "70000")

		_, err := Load("")

		require.Error(t, err)
	})
}

func TestServerAddress(t *testing.T) {
	settings := ServerSettings{Host: "0.0.0.0", Port: 8000}
	assert.Equal(t, "0.0.0.0:8000", settings.ServerAddress())
}

func TestEnvironmentChecks(t *testing.T) {
	dev := AppSettings{Environment: "Development"}
	prod := AppSettings{Environment: "production"}

	assert.True(t, dev.IsDevelopment())
	assert.False(t, dev.IsProduction())
	assert.True(t, prod.IsProduction())
}
