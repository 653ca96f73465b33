// Package config provides TOML configuration file loading and parsing for
// the trusted node. The configuration file lives at ~/.dexhub/config.toml by
// default, but can be overridden with the --config flag. CLI flags always
// take precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the node configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML
// files via struct tags.
type Config struct {
	// Addr is the host:port the HTTP API listens on.
	// Default: 0.0.0.0:5000 (LAN-reachable; the auth gate protects it)
	Addr string `toml:"addr"`

	// Registry is the path to the SQLite device registry.
	// Default: ~/.dexhub/registry.db
	Registry string `toml:"registry"`

	// TTSMode selects the synthesis backend: "local" or "cloud".
	// Default: local
	TTSMode string `toml:"tts_mode"`

	// TTSCommand is the local synthesis command. It must accept
	// "-o <file> <text>" like macOS `say`.
	// Default: say
	TTSCommand string `toml:"tts_command"`

	// STTCommand is the transcription command. It is invoked with the
	// audio file path as its last argument and must print the transcript
	// to stdout.
	// Default: whisper-transcribe
	STTCommand string `toml:"stt_command"`

	// CloudTTSURL is the cloud synthesis endpoint used when tts_mode is
	// "cloud". The API key is appended as a query parameter.
	CloudTTSURL string `toml:"cloud_tts_url"`

	// CloudTTSKeyEnv names the environment variable holding the cloud
	// API key. Keeping the key out of the config file keeps the file
	// shareable. Default: DEXHUB_TTS_API_KEY
	CloudTTSKeyEnv string `toml:"cloud_tts_key_env"`

	// PairCodeExpirySecs is how long a pairing code stays valid.
	// Default: 300
	PairCodeExpirySecs int `toml:"pair_code_expiry_secs"`

	// RecognitionCapacity is the token bucket size for the speech
	// recognition endpoint. Default: 5
	RecognitionCapacity int `toml:"recognition_capacity"`

	// RecognitionPerMinute is the recognition bucket refill rate in
	// tokens per minute. Default: 20
	RecognitionPerMinute float64 `toml:"recognition_per_minute"`

	// DefaultCapacity is the token bucket size for all other protected
	// endpoints. Default: 10
	DefaultCapacity int `toml:"default_capacity"`

	// DefaultPerMinute is the default bucket refill rate in tokens per
	// minute. Default: 60
	DefaultPerMinute float64 `toml:"default_per_minute"`

	// MdnsEnabled enables mDNS/Bonjour service advertisement.
	// When true, the node advertises itself on the local network so
	// devices can discover it without manual IP entry. Discovery only
	// reveals presence; pairing still requires a code and key proof.
	// Default: false (disabled for security - must be explicitly enabled)
	MdnsEnabled bool `toml:"mdns_enabled"`
}

// DefaultConfigPath returns the default config file location: ~/.dexhub/config.toml.
// Returns an error only if the user's home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".dexhub", "config.toml"), nil
}

// DefaultRegistryPath returns the default device registry location:
// ~/.dexhub/registry.db.
func DefaultRegistryPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".dexhub", "registry.db"), nil
}

// Load reads a TOML config file from the given path and returns a Config
// with defaults applied.
//
// Behavior:
//   - If path is empty, attempts to load from the default location
//     (~/.dexhub/config.toml). Returns a default Config without error if
//     the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		// No explicit path: try default location, but don't error if missing.
		// This allows the node to start without any config file.
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			cfg.applyDefaults()
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		path = defaultPath
	} else {
		// Explicit path provided: error if file doesn't exist.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	// Any parse error is fatal since the user expects the config to be applied.
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills zero-valued fields with their documented defaults.
func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.TTSMode == "" {
		c.TTSMode = DefaultTTSMode
	}
	if c.TTSCommand == "" {
		c.TTSCommand = DefaultTTSCommand
	}
	if c.STTCommand == "" {
		c.STTCommand = DefaultSTTCommand
	}
	if c.CloudTTSKeyEnv == "" {
		c.CloudTTSKeyEnv = DefaultCloudTTSKeyEnv
	}
	if c.PairCodeExpirySecs == 0 {
		c.PairCodeExpirySecs = DefaultPairCodeExpirySecs
	}
	if c.RecognitionCapacity == 0 {
		c.RecognitionCapacity = DefaultRecognitionCapacity
	}
	if c.RecognitionPerMinute == 0 {
		c.RecognitionPerMinute = DefaultRecognitionPerMinute
	}
	if c.DefaultCapacity == 0 {
		c.DefaultCapacity = DefaultDefaultCapacity
	}
	if c.DefaultPerMinute == 0 {
		c.DefaultPerMinute = DefaultDefaultPerMinute
	}
}
