package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/artpar/bluegreen/internal/core/slot"
	"github.com/artpar/bluegreen/internal/shell/awsapi"
	"github.com/artpar/bluegreen/internal/shell/bluegreen"
	"github.com/artpar/bluegreen/internal/shell/health"
)

// ErrInvalidConfig is returned when required settings are missing or out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	ServiceName              string `mapstructure:"service_name"`
	ListenerPort             int    `mapstructure:"listener_port"`
	Region                   string `mapstructure:"region"`
	Cluster                  string `mapstructure:"cluster"`
	ProductionURL            string `mapstructure:"production_url"`
	StagingURL               string `mapstructure:"staging_url"`
	ProductionHealthCheckURL string `mapstructure:"production_health_check_url"`

	AWS    AWSConfig    `mapstructure:"aws"`
	Deploy DeployConfig `mapstructure:"deploy"`
	Search SearchConfig `mapstructure:"search"`
	Health HealthConfig `mapstructure:"health"`
	Log    LogConfig    `mapstructure:"log"`
}

// AWSConfig holds optional credential overrides. Empty values fall back to
// the SDK's default credential chain.
type AWSConfig struct {
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
}

// DeployConfig holds rollout polling and swap retry settings.
type DeployConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	SearchDepth      int           `mapstructure:"search_depth"`
	SwapRetries      int           `mapstructure:"swap_retries"`
	SwapRetryBackoff time.Duration `mapstructure:"swap_retry_backoff"`
}

// SearchConfig holds version-search settings.
type SearchConfig struct {
	Depth int `mapstructure:"depth"`
}

// HealthConfig holds production health probe settings.
type HealthConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// requiredKeys must be set by file or environment.
var requiredKeys = []string{
	"service_name",
	"listener_port",
	"region",
	"cluster",
	"production_url",
	"staging_url",
	"production_health_check_url",
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment. Environment
// variables use the AC_ prefix, e.g. AC_SERVICE_NAME or AC_DEPLOY_POLL_INTERVAL.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("deploy.poll_interval", "5s")
	v.SetDefault("deploy.max_attempts", 60)
	v.SetDefault("deploy.search_depth", 5)
	v.SetDefault("deploy.swap_retries", 3)
	v.SetDefault("deploy.swap_retry_backoff", "1s")
	v.SetDefault("search.depth", 10)
	v.SetDefault("health.timeout", "10s")
	v.SetDefault("health.retries", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, the environment may carry everything
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("AC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults are invisible to Unmarshal unless bound
	for _, key := range requiredKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	for _, key := range []string{"aws.profile", "aws.access_key_id", "aws.secret_access_key", "aws.session_token"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var missing []string
	values := map[string]bool{
		"service_name":                c.ServiceName != "",
		"listener_port":               c.ListenerPort != 0,
		"region":                      c.Region != "",
		"cluster":                     c.Cluster != "",
		"production_url":              c.ProductionURL != "",
		"staging_url":                 c.StagingURL != "",
		"production_health_check_url": c.ProductionHealthCheckURL != "",
	}
	for _, key := range requiredKeys {
		if !values[key] {
			missing = append(missing, "AC_"+strings.ToUpper(key))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}

	if c.ListenerPort < 1 || c.ListenerPort > 65535 {
		return fmt.Errorf("%w: listener_port %d out of range", ErrInvalidConfig, c.ListenerPort)
	}
	if c.ProductionURL == c.StagingURL {
		return fmt.Errorf("%w: production_url and staging_url are both %q", ErrInvalidConfig, c.ProductionURL)
	}
	if c.Deploy.MaxAttempts < 1 {
		return fmt.Errorf("%w: deploy.max_attempts must be positive", ErrInvalidConfig)
	}
	if c.Deploy.PollInterval <= 0 {
		return fmt.Errorf("%w: deploy.poll_interval must be positive", ErrInvalidConfig)
	}
	if c.Deploy.SwapRetries < 1 {
		return fmt.Errorf("%w: deploy.swap_retries must be at least 1", ErrInvalidConfig)
	}
	if c.Deploy.SwapRetryBackoff < 0 {
		return fmt.Errorf("%w: deploy.swap_retry_backoff must not be negative", ErrInvalidConfig)
	}
	if c.Search.Depth < 1 || c.Deploy.SearchDepth < 1 {
		return fmt.Errorf("%w: search depths must be positive", ErrInvalidConfig)
	}
	return nil
}

// =============================================================================
// Component Config
// =============================================================================

// BlueGreen returns the engine configuration.
func (c *Config) BlueGreen() bluegreen.Config {
	return bluegreen.Config{
		ServiceName:  c.ServiceName,
		Cluster:      c.Cluster,
		ListenerPort: int32(c.ListenerPort),
		Hosts: slot.Hosts{
			Production: c.ProductionURL,
			Staging:    c.StagingURL,
		},
		PollInterval:      c.Deploy.PollInterval,
		MaxAttempts:       c.Deploy.MaxAttempts,
		DeploySearchDepth: int32(c.Deploy.SearchDepth),
		SwapRetries:       c.Deploy.SwapRetries,
		SwapRetryBackoff:  c.Deploy.SwapRetryBackoff,
	}
}

// AWSOptions returns the client options for the configured region.
func (c *Config) AWSOptions() awsapi.Options {
	return awsapi.Options{
		Region:          c.Region,
		Profile:         c.AWS.Profile,
		AccessKeyID:     c.AWS.AccessKeyID,
		SecretAccessKey: c.AWS.SecretAccessKey,
		SessionToken:    c.AWS.SessionToken,
	}
}

// HealthProbe returns the production probe configuration.
func (c *Config) HealthProbe() health.Config {
	return health.Config{
		URL:     c.ProductionHealthCheckURL,
		Timeout: c.Health.Timeout,
		Retries: c.Health.Retries,
	}
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format. Logs
// go to w, which is standard error so standard output stays parseable.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
