package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/navlink/limits"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "navlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadWithEnv("", "NAVLINK_TEST_UNSET_")
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Limiter.Capacity)
	assert.Equal(t, 10*time.Millisecond, cfg.Limiter.RefillInterval)
	assert.False(t, cfg.Security.RequireEncryption)
	assert.True(t, cfg.Security.ReplayProtection)
	assert.Equal(t, 500*time.Millisecond, cfg.Supervisor.SignalLossThreshold)
	assert.Equal(t, 2*time.Second, cfg.Supervisor.EmergencyThreshold)
	assert.Equal(t, 5*time.Second, cfg.Handshake.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestYAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
limiter:
  capacity: 50
  refill_interval: 20ms
  channels:
    - id: 3
      rate: 10
security:
  require_encryption: true
supervisor:
  signal_loss_threshold: 250ms
  emergency_threshold: 1s
`)

	cfg, err := LoadWithEnv(path, "NAVLINK_TEST_UNSET_")
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Limiter.Capacity)
	assert.Equal(t, 20*time.Millisecond, cfg.Limiter.RefillInterval)
	require.Len(t, cfg.Limiter.Channels, 1)
	assert.Equal(t, uint8(3), cfg.Limiter.Channels[0].ID)
	assert.Equal(t, 10, cfg.Limiter.Channels[0].Rate)
	assert.True(t, cfg.Security.RequireEncryption)
	assert.Equal(t, 250*time.Millisecond, cfg.Supervisor.SignalLossThreshold)

	// Untouched sections keep defaults.
	assert.Equal(t, 5*time.Second, cfg.Handshake.Timeout)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "limiter:\n  capacity: 50\n")

	t.Setenv("NAVLINKTEST_LIMITER_CAPACITY", "75")
	cfg, err := LoadWithEnv(path, "NAVLINKTEST_")
	require.NoError(t, err)

	assert.Equal(t, 75, cfg.Limiter.Capacity)
}

func TestMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestPreSharedKeys(t *testing.T) {
	cipherKey := make([]byte, limits.KeySize)
	macKey := make([]byte, limits.KeySize)
	cipherKey[0], macKey[0] = 1, 2

	path := writeConfig(t, "security:\n  cipher_key: "+hex.EncodeToString(cipherKey)+
		"\n  mac_key: "+hex.EncodeToString(macKey)+"\n")

	cfg, err := LoadWithEnv(path, "NAVLINK_TEST_UNSET_")
	require.NoError(t, err)

	key, ok, err := cfg.Security.CipherKeyBytes()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte(1), key[0])

	key, ok, err = cfg.Security.MACKeyBytes()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte(2), key[0])
}

func TestNoKeysConfigured(t *testing.T) {
	cfg := DefaultConfig()
	_, ok, err := cfg.Security.CipherKeyBytes()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"zero capacity", func(c *Config) { c.Limiter.Capacity = 0 }, ErrInvalidCapacity},
		{"zero refill", func(c *Config) { c.Limiter.RefillInterval = 0 }, ErrInvalidRefillInterval},
		{"channel rate zero", func(c *Config) {
			c.Limiter.Channels = []ChannelLimit{{ID: 1, Rate: 0}}
		}, ErrInvalidChannelRate},
		{"channel rate above hard max", func(c *Config) {
			c.Limiter.Channels = []ChannelLimit{{ID: 1, Rate: 1001}}
		}, ErrInvalidChannelRate},
		{"duplicate channel", func(c *Config) {
			c.Limiter.Channels = []ChannelLimit{{ID: 1, Rate: 10}, {ID: 1, Rate: 20}}
		}, ErrDuplicateChannel},
		{"inverted thresholds", func(c *Config) {
			c.Supervisor.SignalLossThreshold = 2 * time.Second
			c.Supervisor.EmergencyThreshold = time.Second
		}, ErrInvalidThresholds},
		{"zero handshake timeout", func(c *Config) { c.Handshake.Timeout = 0 }, ErrInvalidHandshakeTimeout},
		{"cipher key without mac key", func(c *Config) {
			c.Security.CipherKey = "ab"
		}, ErrIncompleteKeyPair},
		{"bad hex key", func(c *Config) {
			c.Security.CipherKey = "zz"
			c.Security.MACKey = "zz"
		}, ErrInvalidKeyEncoding},
		{"short key", func(c *Config) {
			c.Security.CipherKey = "abcd"
			c.Security.MACKey = "abcd"
		}, ErrInvalidKeyLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, Validate(cfg), tt.wantErr)
		})
	}

	assert.NoError(t, Validate(DefaultConfig()))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, ParseLogLevel("WARN"))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel("unknown"))
}
