// ABOUTME: Typed config loaded from environment variables with optional YAML overlay
// ABOUTME: Scaled down from the teacher pack's multi-section YAML config to beatsync's handful of fields
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds everything the process needs to start. Most fields can be
// overridden by an environment variable of the same name (upper-cased,
// underscored), applied after the YAML file; see applyEnv.
// BackupIntervalSeconds and RoomCleanupGraceSeconds have no environment
// variable and come only from the defaults or the YAML file.
type Config struct {
	ListenAddr              string `yaml:"listenAddr"`
	ProviderURL             string `yaml:"providerUrl"`
	BackupPath              string `yaml:"backupPath"`
	BackupIntervalSeconds   int    `yaml:"backupIntervalSeconds"`
	RoomCleanupGraceSeconds int    `yaml:"roomCleanupGraceSeconds"`
	EnableMDNS              bool   `yaml:"enableMdns"`
	EnableTUI               bool   `yaml:"enableTui"`
	Debug                   bool   `yaml:"debug"`

	// BlobStorePath, if set, enables the built-in local-disk BlobStore at
	// this directory instead of the no-op store. Leave empty when an
	// external object-storage collaborator is used instead.
	BlobStorePath string `yaml:"blobStorePath"`
	BlobPublicURL string `yaml:"blobPublicUrl"`
}

// Default returns the baseline config before environment/file overlay.
func Default() Config {
	return Config{
		ListenAddr:              ":8080",
		ProviderURL:             "",
		BackupPath:              "./beatsync-backup.db",
		BackupIntervalSeconds:   60,
		RoomCleanupGraceSeconds: 60,
		EnableMDNS:              false,
		EnableTUI:               false,
		Debug:                   false,
		BlobStorePath:           "./beatsync-blobs",
		BlobPublicURL:           "",
	}
}

// Load starts from Default, applies a YAML file at path if it exists, then
// applies environment variable overrides, then validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("PROVIDER_URL"); v != "" {
		cfg.ProviderURL = v
	}
	if v := os.Getenv("BACKUP_PATH"); v != "" {
		cfg.BackupPath = v
	}
	if v := os.Getenv("ENABLE_MDNS"); v == "true" {
		cfg.EnableMDNS = true
	}
	if v := os.Getenv("ENABLE_TUI"); v == "true" {
		cfg.EnableTUI = true
	}
	if v := os.Getenv("DEBUG"); v == "true" {
		cfg.Debug = true
	}
	if v, ok := os.LookupEnv("BLOB_STORE_PATH"); ok {
		cfg.BlobStorePath = v
	}
	if v := os.Getenv("BLOB_PUBLIC_URL"); v != "" {
		cfg.BlobPublicURL = v
	}
}

// Validate enforces the fatal-startup-error taxonomy from spec.md §7.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listenAddr must not be empty")
	}
	if c.BackupIntervalSeconds < 60 {
		return fmt.Errorf("backupIntervalSeconds must be >= 60, got %d", c.BackupIntervalSeconds)
	}
	if c.RoomCleanupGraceSeconds < 1 {
		return fmt.Errorf("roomCleanupGraceSeconds must be >= 1, got %d", c.RoomCleanupGraceSeconds)
	}
	return nil
}
