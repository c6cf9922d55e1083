// Package config provides the public SDK configuration API.
//
// It re-exports the kit's configuration types and helpers so external projects
// can embed the token cache without importing internal packages.
package config

import (
	"github.com/router-for-me/oauth-cli-kit/internal/auth/codex"
	"github.com/router-for-me/oauth-cli-kit/internal/auth/oauth"
	internalconfig "github.com/router-for-me/oauth-cli-kit/internal/config"
)

type SDKConfig = internalconfig.SDKConfig

type Config = internalconfig.Config

type ProviderOverrides = internalconfig.ProviderOverrides
type MirrorConfig = internalconfig.MirrorConfig
type ObjectMirrorConfig = internalconfig.ObjectMirrorConfig
type PostgresMirrorConfig = internalconfig.PostgresMirrorConfig
type KeyringMirrorConfig = internalconfig.KeyringMirrorConfig

const (
	MirrorNone     = internalconfig.MirrorNone
	MirrorObject   = internalconfig.MirrorObject
	MirrorPostgres = internalconfig.MirrorPostgres
	MirrorKeyring  = internalconfig.MirrorKeyring
)

func Default() *Config { return internalconfig.Default() }

func LoadConfig(configFile string) (*Config, error) { return internalconfig.LoadConfig(configFile) }

func LoadConfigOptional(configFile string, optional bool) (*Config, error) {
	return internalconfig.LoadConfigOptional(configFile, optional)
}

// Provider returns the built-in provider with the overrides from cfg applied.
func Provider(cfg *Config) (oauth.ProviderConfig, error) {
	return codex.ProviderFromConfig(cfg)
}
