// ABOUTME: Tests for configuration loading
// ABOUTME: Covers env expansion, duration parsing, defaults, validation failures

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "/tmp/pulse.db"
auth:
  jwt_secret: "super-secret"
socket:
  ping_interval: "5s"
  ping_timeout: "8s"
  write_timeout: "3s"
sweep:
  enabled: true
  interval: "30s"
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "/tmp/pulse.db", cfg.Database.Path)
	assert.Equal(t, "super-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 5*time.Second, cfg.Socket.PingInterval)
	assert.Equal(t, 8*time.Second, cfg.Socket.PingTimeout)
	assert.Equal(t, 3*time.Second, cfg.Socket.WriteTimeout)
	assert.True(t, cfg.Sweep.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Sweep.Interval)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "pulse.db"
auth:
  jwt_secret: "secret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultPingInterval, cfg.Socket.PingInterval)
	assert.Equal(t, DefaultPingTimeout, cfg.Socket.PingTimeout)
	assert.Equal(t, DefaultWriteTimeout, cfg.Socket.WriteTimeout)
	assert.Equal(t, DefaultSweepEvery, cfg.Sweep.Interval)
	assert.False(t, cfg.Sweep.Enabled)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("PULSE_TEST_SECRET", "from-env")

	path := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "pulse.db"
auth:
  jwt_secret: "${PULSE_TEST_SECRET}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing http addr",
			content: `
database:
  path: "pulse.db"
auth:
  jwt_secret: "secret"
`,
			wantErr: "http_addr",
		},
		{
			name: "missing database path",
			content: `
server:
  http_addr: ":8080"
auth:
  jwt_secret: "secret"
`,
			wantErr: "database.path",
		},
		{
			name: "missing secret",
			content: `
server:
  http_addr: ":8080"
database:
  path: "pulse.db"
`,
			wantErr: "jwt_secret",
		},
		{
			name: "ping timeout not above interval",
			content: `
server:
  http_addr: ":8080"
database:
  path: "pulse.db"
auth:
  jwt_secret: "secret"
socket:
  ping_interval: "10s"
  ping_timeout: "10s"
`,
			wantErr: "ping_timeout",
		},
		{
			name: "bad duration",
			content: `
server:
  http_addr: ":8080"
database:
  path: "pulse.db"
auth:
  jwt_secret: "secret"
sweep:
  interval: "soon"
`,
			wantErr: "parsing durations",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
