// Package config loads oauth-cli-kit settings from a YAML file, an optional
// .env file and OAUTHKIT_* environment variables, in that order of precedence.
package config

// SDKConfig holds the settings shared by every embedding of the kit.
type SDKConfig struct {
	// ProxyURL is the URL of an optional proxy server used for token endpoint requests.
	// socks5://, http:// and https:// schemes are supported.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url" env:"OAUTHKIT_PROXY_URL"`
}
