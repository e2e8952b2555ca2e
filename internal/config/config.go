// Package config provides configuration loading and management for the connector service.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mooring-labs/searchlink/internal/telemetry"
)

// EnvPrefix is the prefix for environment variables consumed by the service.
const EnvPrefix = "SLK"

const (
	// RecordKindRepositories selects repository records for synchronization
	RecordKindRepositories = "repositories"

	// RecordKindIssues selects issue records for synchronization
	RecordKindIssues = "issues"
)

const (
	// KeyRefreshOnFailure refreshes the signing-key cache only after a
	// verification failure against the cached keys
	KeyRefreshOnFailure = "on-failure"

	// KeyRefreshAlways refreshes the signing-key cache on every validation call
	KeyRefreshAlways = "always"
)

const (
	// DefaultPollInterval is the delay between operation status checks
	DefaultPollInterval = 10 * time.Second

	// DefaultPollDeadline caps the total duration of one operation poll loop
	DefaultPollDeadline = 25 * time.Minute

	// DefaultRetryBudget is the number of rate-limit retries per fetch call
	DefaultRetryBudget = 3

	// DefaultKeyRefreshMinInterval throttles forced signing-key refreshes
	DefaultKeyRefreshMinInterval = 5 * time.Minute

	// DefaultWebhookPath is the lifecycle notification endpoint path
	DefaultWebhookPath = "/webhook/lifecycle"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// ConnectorName identifies this connector instance; it is used as the
	// display name of the index connection it provisions.
	// Defaults to "searchlink" if not specified.
	ConnectorName string `yaml:"connectorName,omitempty"`

	IndexService IndexServiceConfig `yaml:"indexService"`
	Source       SourceConfig       `yaml:"source"`
	Sync         *SyncConfig        `yaml:"sync,omitempty"`
	Webhook      *WebhookConfig     `yaml:"webhook,omitempty"`
	Telemetry    *telemetry.Config  `yaml:"telemetry,omitempty"`
}

// IndexServiceConfig defines how to reach the remote search-index service
type IndexServiceConfig struct {
	// Endpoint is the base API URL of the index service, without a trailing path
	Endpoint string `yaml:"endpoint"`

	// TokenFile is the path to a file containing the index service bearer token.
	// This is the recommended approach for production deployments.
	TokenFile string `yaml:"tokenFile,omitempty"`

	// PollInterval is the delay between status checks of an asynchronous
	// operation (e.g. "10s"). Defaults to 10s.
	PollInterval string `yaml:"pollInterval,omitempty"`

	// PollDeadline caps the total time spent polling one asynchronous
	// operation (e.g. "25m"). Defaults to 25m.
	PollDeadline string `yaml:"pollDeadline,omitempty"`
}

// SourceConfig defines the upstream data source
type SourceConfig struct {
	GitHub *GitHubConfig `yaml:"github"`
}

// GitHubConfig defines GitHub source settings
type GitHubConfig struct {
	// Owner is the user or organization whose repositories are synchronized
	Owner string `yaml:"owner"`

	// TokenFile is the path to a file containing the GitHub access token
	TokenFile string `yaml:"tokenFile,omitempty"`

	// APIBaseURL overrides the GitHub API endpoint (GitHub Enterprise)
	APIBaseURL string `yaml:"apiBaseURL,omitempty"`
}

// SyncConfig defines synchronization settings
type SyncConfig struct {
	// Kinds lists the record kinds to synchronize. Defaults to both
	// repositories and issues.
	Kinds []string `yaml:"kinds,omitempty"`

	// RetryBudget is the number of rate-limit retries per upstream fetch.
	// Defaults to 3. Zero means a single attempt.
	RetryBudget *int `yaml:"retryBudget,omitempty"`

	// SkipContent disables best-effort fetching of record content
	// (repository READMEs, issue event trails).
	SkipContent bool `yaml:"skipContent,omitempty"`
}

// WebhookConfig defines the inbound lifecycle notification endpoint
type WebhookConfig struct {
	// Path is the HTTP path of the lifecycle endpoint. Defaults to
	// /webhook/lifecycle.
	Path string `yaml:"path,omitempty"`

	// Auth configures validation of notification proof tokens
	Auth WebhookAuthConfig `yaml:"auth"`
}

// WebhookAuthConfig defines how lifecycle notification tokens are validated
type WebhookAuthConfig struct {
	// Issuer is the trusted issuer of notification proof tokens. Its OIDC
	// discovery document locates the signing keys.
	Issuer string `yaml:"issuer"`

	// Audience is the audience claim expected in proof tokens
	Audience string `yaml:"audience"`

	// KeyRefresh controls the signing-key cache refresh policy
	KeyRefresh *KeyRefreshConfig `yaml:"keyRefresh,omitempty"`
}

// KeyRefreshConfig controls the signing-key cache lifetime
type KeyRefreshConfig struct {
	// Policy is one of "on-failure" (default) or "always". With "on-failure"
	// the cached key set is refreshed only when a signature check fails
	// against it; "always" refetches before every validation.
	Policy string `yaml:"policy,omitempty"`

	// MinInterval throttles forced refreshes (e.g. "5m"). Defaults to 5m.
	MinInterval string `yaml:"minInterval,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetConnectorName returns the connector name, using "searchlink" if not specified
func (c *Config) GetConnectorName() string {
	if c.ConnectorName == "" {
		return "searchlink"
	}
	return c.ConnectorName
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := c.IndexService.validate(); err != nil {
		return err
	}

	if c.Source.GitHub == nil {
		return fmt.Errorf("source.github is required")
	}
	if c.Source.GitHub.Owner == "" {
		return fmt.Errorf("source.github.owner is required")
	}
	if c.Source.GitHub.APIBaseURL != "" {
		if _, err := url.Parse(c.Source.GitHub.APIBaseURL); err != nil {
			return fmt.Errorf("source.github.apiBaseURL is not a valid URL: %w", err)
		}
	}

	if err := c.Sync.validate(); err != nil {
		return err
	}

	if err := c.Webhook.validate(); err != nil {
		return err
	}

	if c.Telemetry != nil {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}

	return nil
}

func (i *IndexServiceConfig) validate() error {
	if i.Endpoint == "" {
		return fmt.Errorf("indexService.endpoint is required")
	}
	u, err := url.Parse(i.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("indexService.endpoint must be an absolute URL, got %q", i.Endpoint)
	}
	if err := validateDuration(i.PollInterval, "indexService.pollInterval"); err != nil {
		return err
	}
	return validateDuration(i.PollDeadline, "indexService.pollDeadline")
}

func (s *SyncConfig) validate() error {
	if s == nil {
		return nil
	}
	for _, kind := range s.Kinds {
		if kind != RecordKindRepositories && kind != RecordKindIssues {
			return fmt.Errorf("sync.kinds: unknown record kind %q (expected %s or %s)",
				kind, RecordKindRepositories, RecordKindIssues)
		}
	}
	if s.RetryBudget != nil && *s.RetryBudget < 0 {
		return fmt.Errorf("sync.retryBudget must not be negative, got %d", *s.RetryBudget)
	}
	return nil
}

func (w *WebhookConfig) validate() error {
	if w == nil {
		return nil
	}
	if w.Path != "" && !strings.HasPrefix(w.Path, "/") {
		return fmt.Errorf("webhook.path must start with '/', got %q", w.Path)
	}
	if w.Auth.Issuer == "" {
		return fmt.Errorf("webhook.auth.issuer is required")
	}
	u, err := url.Parse(w.Auth.Issuer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("webhook.auth.issuer must be an absolute URL, got %q", w.Auth.Issuer)
	}
	if w.Auth.Audience == "" {
		return fmt.Errorf("webhook.auth.audience is required")
	}
	if kr := w.Auth.KeyRefresh; kr != nil {
		if kr.Policy != "" && kr.Policy != KeyRefreshOnFailure && kr.Policy != KeyRefreshAlways {
			return fmt.Errorf("webhook.auth.keyRefresh.policy must be %q or %q, got %q",
				KeyRefreshOnFailure, KeyRefreshAlways, kr.Policy)
		}
		if err := validateDuration(kr.MinInterval, "webhook.auth.keyRefresh.minInterval"); err != nil {
			return err
		}
	}
	return nil
}

func validateDuration(value, field string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g. '30s', '5m'): %w", field, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative, got %s", field, value)
	}
	return nil
}

// GetToken returns the index service bearer token using the following priority:
// 1. Read from TokenFile if specified
// 2. Read from SLK_INDEX_TOKEN environment variable
//
// The token from file will have leading/trailing whitespace trimmed.
func (i *IndexServiceConfig) GetToken() (string, error) {
	return resolveToken(i.TokenFile, "SLK_INDEX_TOKEN", "index service")
}

// GetPollInterval returns the operation poll interval, using the default if unset
func (i *IndexServiceConfig) GetPollInterval() time.Duration {
	return durationOrDefault(i.PollInterval, DefaultPollInterval)
}

// GetPollDeadline returns the operation poll deadline, using the default if unset
func (i *IndexServiceConfig) GetPollDeadline() time.Duration {
	return durationOrDefault(i.PollDeadline, DefaultPollDeadline)
}

// GetToken returns the GitHub access token using the following priority:
// 1. Read from TokenFile if specified
// 2. Read from SLK_GITHUB_TOKEN environment variable
func (g *GitHubConfig) GetToken() (string, error) {
	return resolveToken(g.TokenFile, "SLK_GITHUB_TOKEN", "github")
}

// GetKinds returns the record kinds to synchronize, defaulting to all kinds
func (s *SyncConfig) GetKinds() []string {
	if s == nil || len(s.Kinds) == 0 {
		return []string{RecordKindRepositories, RecordKindIssues}
	}
	return s.Kinds
}

// GetRetryBudget returns the rate-limit retry budget, using the default if unset
func (s *SyncConfig) GetRetryBudget() int {
	if s == nil || s.RetryBudget == nil {
		return DefaultRetryBudget
	}
	return *s.RetryBudget
}

// FetchContent reports whether record content should be fetched
func (s *SyncConfig) FetchContent() bool {
	return s == nil || !s.SkipContent
}

// GetPath returns the webhook endpoint path, using the default if unset
func (w *WebhookConfig) GetPath() string {
	if w == nil || w.Path == "" {
		return DefaultWebhookPath
	}
	return w.Path
}

// GetPolicy returns the key refresh policy, using on-failure if unset
func (k *KeyRefreshConfig) GetPolicy() string {
	if k == nil || k.Policy == "" {
		return KeyRefreshOnFailure
	}
	return k.Policy
}

// GetMinInterval returns the minimum forced-refresh interval, using the default if unset
func (k *KeyRefreshConfig) GetMinInterval() time.Duration {
	if k == nil {
		return DefaultKeyRefreshMinInterval
	}
	return durationOrDefault(k.MinInterval, DefaultKeyRefreshMinInterval)
}

func durationOrDefault(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

func resolveToken(tokenFile, envVar, what string) (string, error) {
	if tokenFile != "" {
		// Use filepath.Clean to prevent path traversal attacks
		cleanPath := filepath.Clean(tokenFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read %s token from file %s: %w", what, tokenFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	if envToken := os.Getenv(envVar); envToken != "" {
		return envToken, nil
	}

	return "", fmt.Errorf("no %s token configured: set tokenFile or the %s environment variable", what, envVar)
}
