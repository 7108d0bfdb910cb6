// Package config loads coachd and liftctl settings from the environment,
// optionally layered over a TOML file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration. Environment variables win over
// the TOML file; zero values left after both get defaults.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" toml:"environment"`
	LogLevel    string `envconfig:"LOG_LEVEL" toml:"log_level"`

	// HTTP API
	ListenAddr     string        `envconfig:"LISTEN_ADDR" toml:"listen_addr"`
	AuthMode       string        `envconfig:"AUTH_MODE" toml:"auth_mode"` // "api-key" or "none"
	APIKey         string        `envconfig:"API_KEY" toml:"api_key"`
	ReadOnlyKeys   string        `envconfig:"READONLY_API_KEYS" toml:"readonly_api_keys"` // comma-separated
	RateLimitRPS   int           `envconfig:"RATE_LIMIT_RPS" toml:"rate_limit_rps"`
	RateLimitBurst int           `envconfig:"RATE_LIMIT_BURST" toml:"rate_limit_burst"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" toml:"request_timeout"`

	// GitHub data repository
	GitHubOwner          string `envconfig:"GITHUB_OWNER" toml:"github_owner"`
	GitHubRepo           string `envconfig:"GITHUB_REPO" toml:"github_repo"`
	GitHubBaseBranch     string `envconfig:"GITHUB_BASE_BRANCH" toml:"github_base_branch"`
	GitHubAPIURL         string `envconfig:"GITHUB_API_URL" toml:"github_api_url"` // empty for github.com
	GitHubToken          string `envconfig:"GITHUB_TOKEN" toml:"github_token"`
	GitHubAppID          int64  `envconfig:"GITHUB_APP_ID" toml:"github_app_id"`
	GitHubInstallationID int64  `envconfig:"GITHUB_INSTALLATION_ID" toml:"github_installation_id"`
	GitHubPrivateKeyPath string `envconfig:"GITHUB_PRIVATE_KEY_PATH" toml:"github_private_key_path"`

	// Local mirror
	MirrorDir       string `envconfig:"MIRROR_DIR" toml:"mirror_dir"`
	MirrorRemoteURL string `envconfig:"MIRROR_REMOTE_URL" toml:"mirror_remote_url"` // derived from owner/repo when empty
	GitBinary       string `envconfig:"GIT_BINARY" toml:"git_binary"`
	GitAuthorName   string `envconfig:"GIT_AUTHOR_NAME" toml:"git_author_name"`
	GitAuthorEmail  string `envconfig:"GIT_AUTHOR_EMAIL" toml:"git_author_email"`

	// Analytics
	E1RMWindow       int `envconfig:"E1RM_WINDOW" toml:"e1rm_window"`
	HistoryCacheSize int `envconfig:"HISTORY_CACHE_SIZE" toml:"history_cache_size"`
	RPEWindowDays    int `envconfig:"RPE_WINDOW_DAYS" toml:"rpe_window_days"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return LoadWithPrefix("")
}

// LoadWithPrefix reads configuration with a prefix, e.g. "LIFTLOG" for
// LIFTLOG_GITHUB_OWNER.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %q: %w", prefix, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadFile reads a TOML file and then applies environment overrides. Keys
// the file does not know are an error.
func LoadFile(path, prefix string) (*Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: environment overrides: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills in zero-value fields.
func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.AuthMode == "" {
		cfg.AuthMode = "api-key"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 20
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 40
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.GitHubBaseBranch == "" {
		cfg.GitHubBaseBranch = "main"
	}
	if cfg.MirrorDir == "" {
		cfg.MirrorDir = "/var/lib/liftlog/repo"
	}
	if cfg.MirrorRemoteURL == "" && cfg.GitHubOwner != "" && cfg.GitHubRepo != "" {
		cfg.MirrorRemoteURL = fmt.Sprintf("https://github.com/%s/%s.git", cfg.GitHubOwner, cfg.GitHubRepo)
	}
	if cfg.GitBinary == "" {
		cfg.GitBinary = "git"
	}
	if cfg.E1RMWindow == 0 {
		cfg.E1RMWindow = 50
	}
	if cfg.HistoryCacheSize == 0 {
		cfg.HistoryCacheSize = 512
	}
	if cfg.RPEWindowDays == 0 {
		cfg.RPEWindowDays = 90
	}
}

// GitHubAppEnabled returns true if GitHub App credentials are configured.
func (c *Config) GitHubAppEnabled() bool {
	return c.GitHubAppID > 0 && c.GitHubInstallationID > 0 && c.GitHubPrivateKeyPath != ""
}

// ReadOnlyKeyList returns the parsed list of read-only API keys.
func (c *Config) ReadOnlyKeyList() []string {
	if c.ReadOnlyKeys == "" {
		return nil
	}
	parts := strings.Split(c.ReadOnlyKeys, ",")
	keys := make([]string, 0, len(parts))
	for _, k := range parts {
		k = strings.TrimSpace(k)
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Validate checks that the settings needed to reach the data repository are
// present.
func (c *Config) Validate() error {
	var problems []string
	if c.GitHubOwner == "" || c.GitHubRepo == "" {
		problems = append(problems, "GITHUB_OWNER and GITHUB_REPO are required")
	}
	if c.GitHubToken == "" && !c.GitHubAppEnabled() {
		problems = append(problems, "set GITHUB_TOKEN or GITHUB_APP_ID, GITHUB_INSTALLATION_ID and GITHUB_PRIVATE_KEY_PATH")
	}
	switch c.AuthMode {
	case "none":
	case "api-key":
		if c.APIKey == "" {
			problems = append(problems, "API_KEY is required when AUTH_MODE=api-key")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown AUTH_MODE %q", c.AuthMode))
	}
	if c.E1RMWindow < 1 {
		problems = append(problems, "E1RM_WINDOW must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
