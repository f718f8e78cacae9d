package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "WEIBOHARVEST_"

// Config holds all configuration options for the Weibo harvester
type Config struct {
	// API endpoint and credential
	Weibo WeiboConfig `yaml:"weibo" json:"weibo"`

	// Client-side request pacing
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Bounded transport retries for 404 and 5xx responses
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Waits applied after the API reports a rate limit
	Backoff BackoffConfig `yaml:"backoff" json:"backoff"`

	// Paging, state and archive settings
	Harvest HarvestConfig `yaml:"harvest" json:"harvest"`

	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Harvest requests run by the harvest and watch commands
	Harvests []HarvestRequest `yaml:"harvests" json:"harvests"`
}

// WeiboConfig holds API-specific configuration
type WeiboConfig struct {
	AccessToken string        `yaml:"access_token" json:"access_token"`
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent   string        `yaml:"user_agent" json:"user_agent"`
}

// RateLimitConfig holds the request pacer configuration
type RateLimitConfig struct {
	RequestsPerHour int `yaml:"requests_per_hour" json:"requests_per_hour"`
	Burst           int `yaml:"burst" json:"burst"`
}

// RetryConfig bounds the transport retries
type RetryConfig struct {
	NotFoundRetries    int           `yaml:"not_found_retries" json:"not_found_retries"`
	NotFoundDelay      time.Duration `yaml:"not_found_delay" json:"not_found_delay"`
	ServerErrorRetries int           `yaml:"server_error_retries" json:"server_error_retries"`
	ServerErrorDelay   time.Duration `yaml:"server_error_delay" json:"server_error_delay"`
}

// BackoffConfig holds the rate-limit wait parameters
type BackoffConfig struct {
	ShortWait    time.Duration `yaml:"short_wait" json:"short_wait"`
	ResetMargin  time.Duration `yaml:"reset_margin" json:"reset_margin"`
	WindowMargin time.Duration `yaml:"window_margin" json:"window_margin"`
}

// HarvestConfig holds paging and persistence settings
type HarvestConfig struct {
	TimelinePageSize    int           `yaml:"timeline_page_size" json:"timeline_page_size"`
	SearchPageSize      int           `yaml:"search_page_size" json:"search_page_size"`
	SearchResultCeiling int           `yaml:"search_result_ceiling" json:"search_result_ceiling"`
	StateBackend        string        `yaml:"state_backend" json:"state_backend"`
	StatePath           string        `yaml:"state_path" json:"state_path"`
	ArchiveDir          string        `yaml:"archive_dir" json:"archive_dir"`
	Concurrency         int           `yaml:"concurrency" json:"concurrency"`
	Interval            time.Duration `yaml:"interval" json:"interval"`
}

// MetricsConfig holds the prometheus listener settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	File   string `yaml:"file" json:"file"`
	Format string `yaml:"format" json:"format"`
}

// HarvestRequest describes one harvest: its type, the query for topic
// search and the collection the results and state belong to.
type HarvestRequest struct {
	Type         string `yaml:"type" json:"type"`
	Query        string `yaml:"query,omitempty" json:"query,omitempty"`
	CollectionID string `yaml:"collection_id,omitempty" json:"collection_id,omitempty"`
	Incremental  bool   `yaml:"incremental" json:"incremental"`
}

// Key identifies the request for deduplication
func (r HarvestRequest) Key() string {
	return r.Type + "|" + r.CollectionID + "|" + r.Query
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Weibo: WeiboConfig{
			BaseURL:   "https://api.weibo.com/2/",
			Timeout:   30 * time.Second,
			UserAgent: "weiboharvest/1.0",
		},
		RateLimit: RateLimitConfig{
			RequestsPerHour: 150,
			Burst:           5,
		},
		Retry: RetryConfig{
			NotFoundRetries:    3,
			NotFoundDelay:      2 * time.Second,
			ServerErrorRetries: 5,
			ServerErrorDelay:   5 * time.Second,
		},
		Backoff: BackoffConfig{
			ShortWait:    time.Second,
			ResetMargin:  time.Second,
			WindowMargin: 10 * time.Second,
		},
		Harvest: HarvestConfig{
			TimelinePageSize:    100,
			SearchPageSize:      50,
			SearchResultCeiling: 200,
			StateBackend:        "file",
			StatePath:           "./state/weibo_state.json",
			ArchiveDir:          "./archive",
			Concurrency:         2,
			Interval:            1200 * time.Second,
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv loads configuration from WEIBOHARVEST_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	envString("ACCESS_TOKEN", &c.Weibo.AccessToken)
	envString("BASE_URL", &c.Weibo.BaseURL)
	envString("STATE_BACKEND", &c.Harvest.StateBackend)
	envString("STATE_PATH", &c.Harvest.StatePath)
	envString("ARCHIVE_DIR", &c.Harvest.ArchiveDir)
	envString("METRICS_ADDRESS", &c.Metrics.Address)
	envString("LOG_LEVEL", &c.Logging.Level)
	envString("LOG_FILE", &c.Logging.File)

	errs = append(errs,
		envInt("REQUESTS_PER_HOUR", &c.RateLimit.RequestsPerHour),
		envInt("CONCURRENCY", &c.Harvest.Concurrency),
		envDuration("TIMEOUT", &c.Weibo.Timeout),
		envDuration("INTERVAL", &c.Harvest.Interval),
	)

	if v := os.Getenv(EnvPrefix + "METRICS_ENABLED"); v != "" {
		c.Metrics.Enabled = strings.EqualFold(v, "true")
	}

	return errors.Join(errs...)
}

func envString(name string, dst *string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) error {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = n
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = d
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".weiboharvest.yaml",
		".weiboharvest.yml",
		filepath.Join(home, ".config", "weiboharvest", "config.yaml"),
		filepath.Join(home, ".weiboharvest.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Weibo.BaseURL == "" {
		errs = append(errs, errors.New("weibo base url is required"))
	}
	if c.Weibo.Timeout <= 0 {
		errs = append(errs, errors.New("weibo timeout must be positive"))
	}

	if c.RateLimit.RequestsPerHour <= 0 {
		errs = append(errs, errors.New("requests per hour must be positive"))
	}
	if c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("burst must be positive"))
	}

	if c.Retry.NotFoundRetries < 0 || c.Retry.ServerErrorRetries < 0 {
		errs = append(errs, errors.New("retry counts cannot be negative"))
	}

	if c.Harvest.TimelinePageSize <= 0 || c.Harvest.TimelinePageSize > 100 {
		errs = append(errs, errors.New("timeline page size must be between 1 and 100"))
	}
	if c.Harvest.SearchPageSize <= 0 || c.Harvest.SearchPageSize > 50 {
		errs = append(errs, errors.New("search page size must be between 1 and 50"))
	}
	if c.Harvest.SearchResultCeiling < c.Harvest.SearchPageSize {
		errs = append(errs, errors.New("search result ceiling must be at least one page"))
	}
	if !lo.Contains([]string{"file", "sqlite", "memory"}, c.Harvest.StateBackend) {
		errs = append(errs, fmt.Errorf("unknown state backend %q", c.Harvest.StateBackend))
	}
	if c.Harvest.StateBackend != "memory" && c.Harvest.StatePath == "" {
		errs = append(errs, errors.New("state path is required"))
	}
	if c.Harvest.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}
	if c.Harvest.Interval <= 0 {
		errs = append(errs, errors.New("harvest interval must be positive"))
	}

	if !lo.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Logging.Level)) {
		errs = append(errs, errors.New("invalid log level"))
	}
	if c.Logging.Format != "" && c.Logging.Format != "console" && c.Logging.Format != "json" {
		errs = append(errs, errors.New("log format must be console or json"))
	}

	for i, h := range c.Harvests {
		if h.Type == "" {
			errs = append(errs, fmt.Errorf("harvests[%d]: type is required", i))
		}
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// 0600: the file may hold the access token
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if token, ok := flags["token"].(string); ok && token != "" {
		c.Weibo.AccessToken = token
	}
	if baseURL, ok := flags["base-url"].(string); ok && baseURL != "" {
		c.Weibo.BaseURL = baseURL
	}
	if backend, ok := flags["state-backend"].(string); ok && backend != "" {
		c.Harvest.StateBackend = backend
	}
	if path, ok := flags["state-path"].(string); ok && path != "" {
		c.Harvest.StatePath = path
	}
	if dir, ok := flags["archive-dir"].(string); ok && dir != "" {
		c.Harvest.ArchiveDir = dir
	}
	if concurrency, ok := flags["concurrency"].(int); ok && concurrency > 0 {
		c.Harvest.Concurrency = concurrency
	}
	if interval, ok := flags["interval"].(time.Duration); ok && interval > 0 {
		c.Harvest.Interval = interval
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if req, ok := flags["harvest"].(HarvestRequest); ok && req.Type != "" {
		c.Harvests = append(c.Harvests, req)
	}
}

// dedupeHarvests drops repeated requests, keeping the first occurrence
func (c *Config) dedupeHarvests() {
	c.Harvests = lo.UniqBy(c.Harvests, HarvestRequest.Key)
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".weiboharvest.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)
	config.dedupeHarvests()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
