// Package config manages secure-link configuration using koanf/v2.
//
// Configuration merges three layers: built-in defaults mirroring the
// firmware constants, a YAML file, and environment variable overrides.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/navlink/limits"
	"github.com/opd-ai/navlink/ratelimit"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete secure-link configuration.
type Config struct {
	Limiter    LimiterConfig    `koanf:"limiter"`
	Security   SecurityConfig   `koanf:"security"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Handshake  HandshakeConfig  `koanf:"handshake"`
	Log        LogConfig        `koanf:"log"`
}

// LimiterConfig holds the token-bucket rate limiter parameters.
type LimiterConfig struct {
	// Capacity is the maximum token count of the global bucket.
	Capacity int `koanf:"capacity"`

	// RefillInterval is the time to accrue one token (e.g., "10ms" for
	// 100 tokens/second sustained).
	RefillInterval time.Duration `koanf:"refill_interval"`

	// Channels lists per-channel rate caps layered under the global
	// bucket.
	Channels []ChannelLimit `koanf:"channels"`
}

// ChannelLimit caps one command channel below the global rate.
type ChannelLimit struct {
	// ID is the channel identifier carried by inbound commands.
	ID uint8 `koanf:"id"`

	// Rate is the per-second cap for this channel. Must not exceed the
	// limiter's hard maximum.
	Rate int `koanf:"rate"`
}

// SecurityConfig holds key material and encryption policy.
type SecurityConfig struct {
	// RequireEncryption rejects plaintext commands when true.
	RequireEncryption bool `koanf:"require_encryption"`

	// CipherKey is the hex-encoded 32-byte pre-shared cipher key.
	// Empty means no pre-shared key; a handshake must establish one.
	CipherKey string `koanf:"cipher_key"`

	// MACKey is the hex-encoded 32-byte pre-shared MAC key. Set together
	// with CipherKey or not at all.
	MACKey string `koanf:"mac_key"`

	// ReplayProtection drops commands whose sequence number does not
	// advance. Disable only for peers that reuse sequence numbers.
	ReplayProtection bool `koanf:"replay_protection"`
}

// SupervisorConfig holds the link-freshness thresholds.
type SupervisorConfig struct {
	// SignalLossThreshold is the quiet time before the link degrades to
	// signal loss.
	SignalLossThreshold time.Duration `koanf:"signal_loss_threshold"`

	// EmergencyThreshold is the quiet time before the link degrades to
	// emergency. Must exceed SignalLossThreshold.
	EmergencyThreshold time.Duration `koanf:"emergency_threshold"`
}

// HandshakeConfig holds key-exchange parameters.
type HandshakeConfig struct {
	// Timeout bounds how long a started exchange waits for the peer's
	// public key before it is torn down.
	Timeout time.Duration `koanf:"timeout"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`

	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// CipherKeyBytes decodes the pre-shared cipher key. ok is false when no key
// is configured.
func (sc SecurityConfig) CipherKeyBytes() (key [limits.KeySize]byte, ok bool, err error) {
	return decodeKey(sc.CipherKey, "security.cipher_key")
}

// MACKeyBytes decodes the pre-shared MAC key. ok is false when no key is
// configured.
func (sc SecurityConfig) MACKeyBytes() (key [limits.KeySize]byte, ok bool, err error) {
	return decodeKey(sc.MACKey, "security.mac_key")
}

func decodeKey(encoded, field string) (key [limits.KeySize]byte, ok bool, err error) {
	if encoded == "" {
		return key, false, nil
	}
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return key, false, fmt.Errorf("%s: %w: %w", field, ErrInvalidKeyEncoding, err)
	}
	if len(raw) != limits.KeySize {
		return key, false, fmt.Errorf("%s: %w: got %d bytes, want %d",
			field, ErrInvalidKeyLength, len(raw), limits.KeySize)
	}
	copy(key[:], raw)
	return key, true, nil
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with the firmware defaults:
// 100-token bucket refilling every 10 ms, 500 ms / 2 s link thresholds, and
// a 5 s handshake timeout. Replay protection is on; no keys are pre-shared.
func DefaultConfig() *Config {
	return &Config{
		Limiter: LimiterConfig{
			Capacity:       ratelimit.DefaultCapacity,
			RefillInterval: ratelimit.DefaultRefillInterval,
		},
		Security: SecurityConfig{
			RequireEncryption: false,
			ReplayProtection:  true,
		},
		Supervisor: SupervisorConfig{
			SignalLossThreshold: 500 * time.Millisecond,
			EmergencyThreshold:  2 * time.Second,
		},
		Handshake: HandshakeConfig{
			Timeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// DefaultEnvPrefix is the environment variable prefix for configuration
// overrides. Variables are named NAVLINK_<section>_<key>, e.g.,
// NAVLINK_LIMITER_CAPACITY.
const DefaultEnvPrefix = "NAVLINK_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides with the default prefix, and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, DefaultEnvPrefix)
}

// LoadWithEnv is Load with an explicit environment variable prefix. An
// empty path skips the file layer and loads defaults plus environment
// overrides only.
func LoadWithEnv(path, prefix string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	// NAVLINK_LIMITER_CAPACITY -> limiter.capacity (strip prefix,
	// lowercase, _ -> .).
	if err := k.Load(env.Provider(prefix, ".", envKeyMapper(prefix)), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// envKeyMapper builds the transform from NAVLINK_LIMITER_CAPACITY to
// limiter.capacity for a given prefix.
func envKeyMapper(prefix string) func(string) string {
	return func(s string) string {
		s = strings.TrimPrefix(s, prefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "_", ".")
	}
}

// loadDefaults sets the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf) error {
	defaults := DefaultConfig()
	defaultMap := map[string]any{
		"limiter.capacity":                 defaults.Limiter.Capacity,
		"limiter.refill_interval":          defaults.Limiter.RefillInterval.String(),
		"security.require_encryption":      defaults.Security.RequireEncryption,
		"security.replay_protection":       defaults.Security.ReplayProtection,
		"supervisor.signal_loss_threshold": defaults.Supervisor.SignalLossThreshold.String(),
		"supervisor.emergency_threshold":   defaults.Supervisor.EmergencyThreshold.String(),
		"handshake.timeout":                defaults.Handshake.Timeout.String(),
		"log.level":                        defaults.Log.Level,
		"log.format":                       defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrInvalidCapacity indicates a non-positive limiter capacity.
	ErrInvalidCapacity = errors.New("limiter.capacity must be >= 1")

	// ErrInvalidRefillInterval indicates a non-positive refill interval.
	ErrInvalidRefillInterval = errors.New("limiter.refill_interval must be > 0")

	// ErrInvalidChannelRate indicates a per-channel rate outside 1..1000.
	ErrInvalidChannelRate = errors.New("channel rate must be between 1 and the hard maximum")

	// ErrDuplicateChannel indicates two channel entries share an ID.
	ErrDuplicateChannel = errors.New("duplicate channel id")

	// ErrInvalidThresholds indicates the supervisor thresholds are
	// non-positive or inverted.
	ErrInvalidThresholds = errors.New("supervisor thresholds must satisfy 0 < signal_loss < emergency")

	// ErrInvalidHandshakeTimeout indicates a non-positive handshake
	// timeout.
	ErrInvalidHandshakeTimeout = errors.New("handshake.timeout must be > 0")

	// ErrInvalidKeyEncoding indicates a pre-shared key is not valid hex.
	ErrInvalidKeyEncoding = errors.New("key is not valid hex")

	// ErrInvalidKeyLength indicates a pre-shared key decodes to the wrong
	// length.
	ErrInvalidKeyLength = errors.New("key has wrong length")

	// ErrIncompleteKeyPair indicates only one of the cipher/MAC keys is
	// configured.
	ErrIncompleteKeyPair = errors.New("cipher_key and mac_key must be set together")
)

// Validate checks the configuration for logical errors. Returns the first
// validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Limiter.Capacity < 1 {
		return ErrInvalidCapacity
	}
	if cfg.Limiter.RefillInterval <= 0 {
		return ErrInvalidRefillInterval
	}

	seen := make(map[uint8]struct{}, len(cfg.Limiter.Channels))
	for i, ch := range cfg.Limiter.Channels {
		if ch.Rate < 1 || ch.Rate > ratelimit.MaxChannelRate {
			return fmt.Errorf("limiter.channels[%d]: %w", i, ErrInvalidChannelRate)
		}
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("limiter.channels[%d] id %d: %w", i, ch.ID, ErrDuplicateChannel)
		}
		seen[ch.ID] = struct{}{}
	}

	if cfg.Supervisor.SignalLossThreshold <= 0 ||
		cfg.Supervisor.EmergencyThreshold <= cfg.Supervisor.SignalLossThreshold {
		return ErrInvalidThresholds
	}

	if cfg.Handshake.Timeout <= 0 {
		return ErrInvalidHandshakeTimeout
	}

	if (cfg.Security.CipherKey == "") != (cfg.Security.MACKey == "") {
		return ErrIncompleteKeyPair
	}
	if _, _, err := cfg.Security.CipherKeyBytes(); err != nil {
		return err
	}
	if _, _, err := cfg.Security.MACKeyBytes(); err != nil {
		return err
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// logrus.Level. Unknown values default to logrus.InfoLevel.
func ParseLogLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
