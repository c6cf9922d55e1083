package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// AppName names the default data directory and log files.
const AppName = "oauth-cli-kit"

// Mirror types accepted by MirrorConfig.Type.
const (
	MirrorNone     = ""
	MirrorObject   = "object"
	MirrorPostgres = "postgres"
	MirrorKeyring  = "keyring"
)

// Config is the complete runtime configuration.
type Config struct {
	SDKConfig `yaml:",inline"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" json:"debug" env:"OAUTHKIT_DEBUG"`

	// LoggingToFile writes logs to rotating files under LogDir instead of stderr.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file" env:"OAUTHKIT_LOGGING_TO_FILE"`

	// LogDir overrides the log directory. Defaults to <data-dir>/logs.
	LogDir string `yaml:"log-dir" json:"log-dir" env:"OAUTHKIT_LOG_DIR"`

	// LogsMaxBackups is the number of rotated log files kept. 0 keeps all.
	LogsMaxBackups int `yaml:"logs-max-backups" json:"logs-max-backups" env:"OAUTHKIT_LOGS_MAX_BACKUPS"`

	// LogsMaxAgeDays removes rotated files older than this many days. 0 disables.
	LogsMaxAgeDays int `yaml:"logs-max-age-days" json:"logs-max-age-days" env:"OAUTHKIT_LOGS_MAX_AGE_DAYS"`

	// DataDir is the application data directory. The token cache lives in <data-dir>/auth.
	DataDir string `yaml:"data-dir" json:"data-dir" env:"OAUTHKIT_DATA_DIR"`

	// ImportCodexCLI allows a one-time import from the Codex CLI auth file when no cache exists.
	ImportCodexCLI bool `yaml:"import-codex-cli" json:"import-codex-cli" env:"OAUTHKIT_IMPORT_CODEX_CLI"`

	// CallbackTimeout bounds how long login waits on the browser callback.
	CallbackTimeout time.Duration `yaml:"callback-timeout" json:"callback-timeout" env:"OAUTHKIT_CALLBACK_TIMEOUT"`

	// MetricsAddr serves Prometheus metrics on this address during long-running commands.
	MetricsAddr string `yaml:"metrics-addr" json:"metrics-addr" env:"OAUTHKIT_METRICS_ADDR"`

	// Provider overrides individual fields of the default provider.
	Provider ProviderOverrides `yaml:"provider" json:"provider" envPrefix:"OAUTHKIT_PROVIDER_"`

	// Mirror configures an optional remote copy of the token cache.
	Mirror MirrorConfig `yaml:"mirror" json:"mirror" envPrefix:"OAUTHKIT_MIRROR_"`
}

// ProviderOverrides replaces fields of the built-in provider when non-empty.
type ProviderOverrides struct {
	ClientID      string `yaml:"client-id" json:"client-id" env:"CLIENT_ID"`
	AuthorizeURL  string `yaml:"authorize-url" json:"authorize-url" env:"AUTHORIZE_URL"`
	TokenURL      string `yaml:"token-url" json:"token-url" env:"TOKEN_URL"`
	RedirectURI   string `yaml:"redirect-uri" json:"redirect-uri" env:"REDIRECT_URI"`
	Scope         string `yaml:"scope" json:"scope" env:"SCOPE"`
	Originator    string `yaml:"originator" json:"originator" env:"ORIGINATOR"`
	TokenFileName string `yaml:"token-file-name" json:"token-file-name" env:"TOKEN_FILE_NAME"`
}

// MirrorConfig selects and configures the remote token mirror.
type MirrorConfig struct {
	// Type is one of "", "object", "postgres" or "keyring".
	Type     string               `yaml:"type" json:"type" env:"TYPE"`
	Object   ObjectMirrorConfig   `yaml:"object" json:"object" envPrefix:"OBJECT_"`
	Postgres PostgresMirrorConfig `yaml:"postgres" json:"postgres" envPrefix:"POSTGRES_"`
	Keyring  KeyringMirrorConfig  `yaml:"keyring" json:"keyring" envPrefix:"KEYRING_"`
}

// ObjectMirrorConfig describes an S3-compatible bucket.
type ObjectMirrorConfig struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint" env:"ENDPOINT"`
	Bucket    string `yaml:"bucket" json:"bucket" env:"BUCKET"`
	AccessKey string `yaml:"access-key" json:"access-key" env:"ACCESS_KEY"`
	SecretKey string `yaml:"secret-key" json:"-" env:"SECRET_KEY"`
	Region    string `yaml:"region" json:"region" env:"REGION"`
	Prefix    string `yaml:"prefix" json:"prefix" env:"PREFIX"`
	UseSSL    bool   `yaml:"use-ssl" json:"use-ssl" env:"USE_SSL"`
}

// PostgresMirrorConfig describes the mirror table.
type PostgresMirrorConfig struct {
	DSN    string `yaml:"dsn" json:"-" env:"DSN"`
	Schema string `yaml:"schema" json:"schema" env:"SCHEMA"`
	Table  string `yaml:"table" json:"table" env:"TABLE"`
}

// KeyringMirrorConfig names the OS keychain service entry.
type KeyringMirrorConfig struct {
	Service string `yaml:"service" json:"service" env:"SERVICE"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ImportCodexCLI:  true,
		CallbackTimeout: 120 * time.Second,
		LogsMaxBackups:  3,
		LogsMaxAgeDays:  14,
	}
}

// LoadConfig reads the YAML file at configFile and applies environment overrides.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigOptional(configFile, false)
}

// LoadConfigOptional behaves like LoadConfig but tolerates a missing or empty
// file when optional is true, returning defaults plus environment overrides.
func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		switch {
		case err == nil:
			if len(strings.TrimSpace(string(data))) > 0 {
				if err = yaml.Unmarshal(data, cfg); err != nil {
					return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
				}
			}
		case errors.Is(err, os.ErrNotExist) && optional:
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() error {
	dataDir, err := ResolvePath(cfg.DataDir)
	if err != nil {
		return err
	}
	if dataDir == "" {
		base, errDir := os.UserConfigDir()
		if errDir != nil {
			return fmt.Errorf("resolve data dir: %w", errDir)
		}
		dataDir = filepath.Join(base, AppName)
	}
	cfg.DataDir = dataDir

	if cfg.LogDir, err = ResolvePath(cfg.LogDir); err != nil {
		return err
	}
	if cfg.CallbackTimeout <= 0 {
		cfg.CallbackTimeout = 120 * time.Second
	}

	cfg.Mirror.Type = strings.ToLower(strings.TrimSpace(cfg.Mirror.Type))
	switch cfg.Mirror.Type {
	case MirrorNone, MirrorObject, MirrorPostgres, MirrorKeyring:
	default:
		return fmt.Errorf("unsupported mirror type %q", cfg.Mirror.Type)
	}
	return nil
}

// ResolvePath expands a leading ~ to the user's home directory and cleans the path.
// Empty input stays empty.
func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve path %q: %w", path, err)
		}
		remainder := strings.TrimLeft(strings.TrimPrefix(path, "~"), "/\\")
		if remainder == "" {
			return filepath.Clean(home), nil
		}
		normalized := strings.ReplaceAll(remainder, "\\", "/")
		return filepath.Clean(filepath.Join(home, filepath.FromSlash(normalized))), nil
	}
	return filepath.Clean(path), nil
}
