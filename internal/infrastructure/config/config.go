// Package config loads prnotify settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/prnotify/internal/infrastructure/jira"
	"github.com/felixgeelhaar/prnotify/pkg/domain/events"
	"github.com/felixgeelhaar/prnotify/pkg/domain/messaging"
	"github.com/felixgeelhaar/prnotify/pkg/domain/notify"
	"github.com/felixgeelhaar/prnotify/pkg/storage"
	"gopkg.in/yaml.v3"
)

const configFile = "config.yaml"

// DefaultPath is where Load looks when no path is given.
var DefaultPath = filepath.Join(storage.StateDir, configFile)

// Storage backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config is the complete prnotify configuration.
type Config struct {
	// IntegratorID is the account that posts "Pushed as commit" comments.
	IntegratorID    string          `yaml:"integrator_id"`
	IntegratedLabel string          `yaml:"integrated_label,omitempty"`
	Repositories    []string        `yaml:"repositories"`
	PollInterval    time.Duration   `yaml:"poll_interval,omitempty"`
	Storage         StorageConfig   `yaml:"storage"`
	GitHub          GitHubConfig    `yaml:"github"`
	Scheduler       SchedulerConfig `yaml:"scheduler"`
	Server          ServerConfig    `yaml:"server,omitempty"`

	Messaging messaging.MessagingConfig `yaml:"messaging,omitempty"`
	Webhooks  []events.WebhookEndpoint  `yaml:"webhooks,omitempty"`
	Jira      jira.Config               `yaml:"jira,omitempty"`
}

// StorageConfig selects and configures the snapshot backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	// Dir holds file backend state, the event log and dead letters.
	Dir        string      `yaml:"dir,omitempty"`
	Collection string      `yaml:"collection,omitempty"`
	Redis      RedisConfig `yaml:"redis,omitempty"`
	SQLitePath string      `yaml:"sqlite_path,omitempty"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`
}

// GitHubConfig configures the live pull request source.
type GitHubConfig struct {
	// TokenEnv names the environment variable holding the API token.
	TokenEnv  string `yaml:"token_env,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	PageLimit int    `yaml:"page_limit,omitempty"`
	PerPage   int    `yaml:"per_page,omitempty"`
}

// Token reads the API token from the configured environment variable.
func (c GitHubConfig) Token() string {
	if c.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.TokenEnv)
}

// SchedulerConfig bounds how work items run.
type SchedulerConfig struct {
	Workers     int           `yaml:"workers,omitempty"`
	MaxAttempts int           `yaml:"max_attempts,omitempty"`
	RetryDelay  time.Duration `yaml:"retry_delay,omitempty"`
	PassTimeout time.Duration `yaml:"pass_timeout,omitempty"`
}

// ServerConfig configures the webhook receiver and event stream.
type ServerConfig struct {
	// Listen is the address to serve on. Empty disables the server.
	Listen string `yaml:"listen,omitempty"`
	// SecretEnv names the environment variable holding the GitHub webhook
	// secret.
	SecretEnv string `yaml:"secret_env,omitempty"`
}

// Secret reads the webhook secret from the configured environment variable.
func (c ServerConfig) Secret() string {
	if c.SecretEnv == "" {
		return ""
	}
	return os.Getenv(c.SecretEnv)
}

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the configuration at path and applies defaults. A missing file
// yields the defaults. An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes cfg to path, creating the parent directory.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if path == "" {
		path = DefaultPath
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) applyDefaults() {
	if c.IntegratedLabel == "" {
		c.IntegratedLabel = notify.DefaultIntegratedLabel
	}
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Minute
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendFile
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = storage.StateDir
	}
	if c.Storage.Collection == "" {
		c.Storage.Collection = storage.HistoryFile
	}
	if c.Storage.Redis.Namespace == "" {
		c.Storage.Redis.Namespace = "default"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(c.Storage.Dir, "prnotify.db")
	}
	if c.GitHub.TokenEnv == "" {
		c.GitHub.TokenEnv = "GITHUB_TOKEN"
	}
	if c.GitHub.PageLimit == 0 {
		c.GitHub.PageLimit = 3
	}
	if c.GitHub.PerPage == 0 {
		c.GitHub.PerPage = 50
	}
	if c.Server.SecretEnv == "" {
		c.Server.SecretEnv = "PRNOTIFY_WEBHOOK_SECRET"
	}
	if c.Scheduler.Workers == 0 {
		c.Scheduler.Workers = 4
	}
	if c.Scheduler.MaxAttempts == 0 {
		c.Scheduler.MaxAttempts = 3
	}
	if c.Scheduler.RetryDelay == 0 {
		c.Scheduler.RetryDelay = 500 * time.Millisecond
	}
}

// Validate checks the settings a reconciliation pass depends on.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.IntegratorID) == "" {
		problems = append(problems, "integrator_id is required")
	}
	for _, repo := range c.Repositories {
		owner, name, ok := strings.Cut(repo, "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			problems = append(problems, fmt.Sprintf("repository %q must be owner/name", repo))
		}
	}
	if c.PollInterval < 0 {
		problems = append(problems, "poll_interval must be positive")
	}

	switch c.Storage.Backend {
	case BackendFile:
		if _, err := storage.ResolvePath(c.Storage.Dir, c.Storage.Collection); err != nil {
			problems = append(problems, fmt.Sprintf("storage collection: %v", err))
		}
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			problems = append(problems, "storage.redis.addr is required for the redis backend")
		}
	case BackendSQLite:
	default:
		problems = append(problems, fmt.Sprintf("unknown storage backend %q", c.Storage.Backend))
	}

	if c.Scheduler.Workers < 0 || c.Scheduler.MaxAttempts < 0 {
		problems = append(problems, "scheduler workers and max_attempts must not be negative")
	}

	for _, a := range c.Messaging.Adapters {
		if a.Enabled && a.URL == "" {
			problems = append(problems, fmt.Sprintf("messaging adapter %q has no url", a.Name))
		}
	}
	for _, ep := range c.Webhooks {
		if ep.Enabled && ep.URL == "" {
			problems = append(problems, fmt.Sprintf("webhook %q has no url", ep.Name))
		}
	}
	if c.Jira.Enabled && (c.Jira.Domain == "" || c.Jira.Email == "" || c.Jira.APIToken == "") {
		problems = append(problems, "jira requires domain, email and api_token when enabled")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Extractor returns the state extractor these settings describe.
func (c *Config) Extractor() notify.Extractor {
	return notify.NewExtractor(c.IntegratorID, c.IntegratedLabel)
}
