// Package util provides small helpers shared by the CLI and the SDK: log level
// handling, proxy-aware HTTP clients and remote login hints.
package util

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/router-for-me/oauth-cli-kit/internal/config"
	log "github.com/sirupsen/logrus"
)

// SetLogLevel configures the logrus log level based on the configuration.
// It sets the log level to DebugLevel if debug mode is enabled, otherwise to InfoLevel.
func SetLogLevel(cfg *config.Config) {
	currentLevel := log.GetLevel()
	newLevel := log.InfoLevel
	if cfg != nil && cfg.Debug {
		newLevel = log.DebugLevel
	}

	if currentLevel != newLevel {
		log.SetLevel(newLevel)
		log.Debugf("log level changed from %s to %s", currentLevel, newLevel)
	}
}

// WritablePath returns the cleaned WRITABLE_PATH environment variable when it is set.
// It accepts both uppercase and lowercase variants for compatibility with existing conventions.
func WritablePath() string {
	for _, key := range []string{"WRITABLE_PATH", "writable_path"} {
		if value, ok := os.LookupEnv(key); ok {
			trimmed := strings.TrimSpace(value)
			if trimmed != "" {
				return filepath.Clean(trimmed)
			}
		}
	}
	return ""
}

// MaskSensitiveQuery hides the values of OAuth parameters in a raw query string
// so callback URLs can be logged.
func MaskSensitiveQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	parts := strings.Split(rawQuery, "&")
	for i, part := range parts {
		key, value, found := strings.Cut(part, "=")
		if !found || value == "" {
			continue
		}
		switch strings.ToLower(key) {
		case "code", "state", "access_token", "refresh_token", "code_verifier", "id_token":
			parts[i] = key + "=" + maskValue(value)
		}
	}
	return strings.Join(parts, "&")
}

func maskValue(value string) string {
	if len(value) <= 8 {
		return "***"
	}
	return value[:4] + "***" + value[len(value)-2:]
}
