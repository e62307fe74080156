package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pingpong/internal/shared"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PINGPONG_CONFIG", "")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "127.0.0.1:4433", cfg.Addr())
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pingpong.yaml")
	yamlBody := `
host: 10.0.0.1
port: 9000
mode: datagram
ping_count: 0
retry_interval: 250ms
pong_text: Pong from yaml
server_rate: 50
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	t.Setenv("PINGPONG_PORT", "9443")
	t.Setenv("PINGPONG_MAX_RETRIES", "7")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1", cfg.Host)
	assert.Equal(t, 9443, cfg.Port, "env overrides the file")
	assert.Equal(t, shared.Datagram, cfg.Mode)
	assert.Equal(t, uint32(0), cfg.PingCount)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryInterval)
	assert.Equal(t, "Pong from yaml", cfg.PongText)
	assert.Equal(t, 50.0, cfg.ServerRate)
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "Ping!", cfg.PingText, "unset keys keep defaults")
}

func TestLoadConfig_PathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: uni\n"), 0o600))
	t.Setenv("PINGPONG_CONFIG", path)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, shared.Unidirectional, cfg.Mode)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port", "PINGPONG_PORT", "not-a-port"},
		{"mode", "PINGPONG_MODE", "carrier-pigeon"},
		{"ping count", "PINGPONG_PING_COUNT", "-1"},
		{"duration", "PINGPONG_RETRY_INTERVAL", "soon"},
		{"bool", "PROMETHEUS_ENABLED", "maybe"},
		{"rate", "PINGPONG_SERVER_RATE", "fast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)

			_, err := LoadConfig("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	cfg.MaxRetries = -1
	cfg.DatagramPollInterval = 0
	cfg.LogLevel = "verbose"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"PINGPONG_PORT", "PINGPONG_MAX_RETRIES", "PINGPONG_DATAGRAM_POLL_INTERVAL", "LOG_LEVEL"} {
		assert.Contains(t, err.Error(), want)
	}
}
