// Package config holds the daemon's durable configuration: the fields
// enumerated in spec.md §4.1, loaded from and saved to a YAML file under
// the user's home directory.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
)

// DownloadPolicy bounds what the downloader (C3) will accept.
type DownloadPolicy struct {
	AllowedContentTypes []string `yaml:"allowed_content_types"`
	MaxBodyKB           int      `yaml:"max_body_kb"`
	MaxAttempts         int      `yaml:"max_attempts"`
	TimeoutSeconds      int      `yaml:"timeout_seconds"`
}

// Config is the full set of durable daemon settings.
type Config struct {
	BaseDir         string         `yaml:"base_dir"`
	Port            int            `yaml:"port"`
	HMACKey         string         `yaml:"hmac_key"`
	Concurrency     int            `yaml:"concurrency"`
	RetryBackoff    float64        `yaml:"retry_backoff"`
	EnableHardlinks bool           `yaml:"enable_hardlinks"`
	LogDir          string         `yaml:"log_dir"`
	Download        DownloadPolicy `yaml:"download"`
}

// defaultDirName is the directory under the user's home that holds the config
// file and, by default, the log directory.
const defaultDirName = ".sia"

// DefaultPath returns the canonical config file location, ~/.sia/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, defaultDirName, "config.yaml"), nil
}

// Default returns a Config populated with the defaults materialized on
// first run.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		BaseDir:         filepath.Join(home, "SIA-Gallery"),
		Port:            18080,
		HMACKey:         "change-me",
		Concurrency:     2,
		RetryBackoff:    0.5,
		EnableHardlinks: false,
		LogDir:          filepath.Join(home, defaultDirName, "logs"),
		Download: DownloadPolicy{
			AllowedContentTypes: []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
			MaxBodyKB:           64,
			MaxAttempts:         4,
			TimeoutSeconds:      30,
		},
	}
}

// Signature returns a stable content hash of the canonical JSON encoding
// of cfg (fields in struct declaration order), so callers can cheaply detect whether a config has
// changed without a deep comparison.
func (cfg Config) Signature() string {
	// encoding/json already sorts map keys; Config has no maps, and its
	// field order is fixed by the struct declaration, so a plain Marshal
	// is already canonical here.
	payload, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
