package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"flowgate/internal/domain"
)

// Env variable names kept compatible with the deployment this service
// fronts.
const (
	envBaseURL       = "N8N_BASE_URL"
	envAPIKey        = "N8N_API_KEY"
	envDiscoveryTTL  = "DISCOVERY_TTL"
	envOverridesJSON = "TOOL_REGISTRY_JSON"
)

// Config is the validated runtime configuration.
type Config struct {
	Discovery DiscoveryConfig
	Dispatch  DispatchConfig
	Telemetry TelemetryConfig
	// Overrides holds the raw override table; entry values are either a
	// URL string or {url, headers}.
	Overrides map[string]any
	LogLevel  string
}

type DiscoveryConfig struct {
	BaseURL        string
	APIKey         string
	TTL            time.Duration
	RequestTimeout time.Duration
}

type DispatchConfig struct {
	CallTimeout  time.Duration
	BatchTimeout time.Duration
}

type TelemetryConfig struct {
	ListenAddress string
	EnableMetrics bool
}

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger.Named("config")}
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("discovery.baseURL", domain.DefaultDiscoveryBaseURL)
	v.SetDefault("discovery.ttlSeconds", domain.DefaultDiscoveryTTLSeconds)
	v.SetDefault("discovery.requestTimeoutSeconds", domain.DefaultDiscoveryTimeoutSeconds)
	v.SetDefault("dispatch.callTimeoutSeconds", domain.DefaultCallTimeoutSeconds)
	v.SetDefault("dispatch.batchTimeoutSeconds", domain.DefaultBatchTimeoutSeconds)
	v.SetDefault("telemetry.listenAddress", domain.DefaultTelemetryListenAddress)
	v.SetDefault("telemetry.enableMetrics", true)
	v.SetDefault("logLevel", domain.DefaultLogLevel)
}

type rawConfig struct {
	Discovery rawDiscoveryConfig `mapstructure:"discovery"`
	Dispatch  rawDispatchConfig  `mapstructure:"dispatch"`
	Telemetry rawTelemetryConfig `mapstructure:"telemetry"`
	Overrides map[string]any     `mapstructure:"overrides"`
	LogLevel  string             `mapstructure:"logLevel"`
}

type rawDiscoveryConfig struct {
	BaseURL               string `mapstructure:"baseURL"`
	APIKey                string `mapstructure:"apiKey"`
	TTLSeconds            int    `mapstructure:"ttlSeconds"`
	RequestTimeoutSeconds int    `mapstructure:"requestTimeoutSeconds"`
}

type rawDispatchConfig struct {
	CallTimeoutSeconds  int `mapstructure:"callTimeoutSeconds"`
	BatchTimeoutSeconds int `mapstructure:"batchTimeoutSeconds"`
}

type rawTelemetryConfig struct {
	ListenAddress string `mapstructure:"listenAddress"`
	EnableMetrics bool   `mapstructure:"enableMetrics"`
}

// Load reads the optional YAML file at path, layers the deployment env
// variables on top, and validates the result. An empty path means
// env-and-defaults only.
func (l *Loader) Load(path string) (*Config, error) {
	v := newConfigViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, domain.E(domain.CodeInvalidArgument, "config.load", fmt.Sprintf("read %s", path), err)
		}
	}

	bindEnv(v, "discovery.baseURL", envBaseURL)
	bindEnv(v, "discovery.apiKey", envAPIKey)
	bindEnv(v, "discovery.ttlSeconds", envDiscoveryTTL)

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, domain.E(domain.CodeInvalidArgument, "config.load", "decode config", err)
	}

	overrides := raw.Overrides
	if envOverrides, err := overridesFromEnv(); err != nil {
		return nil, err
	} else if envOverrides != nil {
		overrides = envOverrides
	}

	cfg := &Config{
		Discovery: DiscoveryConfig{
			BaseURL:        raw.Discovery.BaseURL,
			APIKey:         raw.Discovery.APIKey,
			TTL:            time.Duration(raw.Discovery.TTLSeconds) * time.Second,
			RequestTimeout: time.Duration(raw.Discovery.RequestTimeoutSeconds) * time.Second,
		},
		Dispatch: DispatchConfig{
			CallTimeout:  time.Duration(raw.Dispatch.CallTimeoutSeconds) * time.Second,
			BatchTimeout: time.Duration(raw.Dispatch.BatchTimeoutSeconds) * time.Second,
		},
		Telemetry: TelemetryConfig{
			ListenAddress: raw.Telemetry.ListenAddress,
			EnableMetrics: raw.Telemetry.EnableMetrics,
		},
		Overrides: overrides,
		LogLevel:  raw.LogLevel,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	l.logger.Info("configuration loaded",
		zap.String("base_url", cfg.Discovery.BaseURL),
		zap.Duration("ttl", cfg.Discovery.TTL),
		zap.Int("overrides", len(cfg.Overrides)),
	)
	return cfg, nil
}

func bindEnv(v *viper.Viper, key, envName string) {
	if value, ok := os.LookupEnv(envName); ok && value != "" {
		v.Set(key, value)
	}
}

// overridesFromEnv reads the JSON override table from the environment,
// preserving tool-name case exactly as written.
func overridesFromEnv() (map[string]any, error) {
	raw, ok := os.LookupEnv(envOverridesJSON)
	if !ok || raw == "" {
		return nil, nil
	}
	var overrides map[string]any
	if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
		return nil, domain.E(domain.CodeInvalidArgument, "config.load",
			fmt.Sprintf("decode %s", envOverridesJSON), err)
	}
	return overrides, nil
}

func (c *Config) validate() error {
	parsed, err := url.Parse(c.Discovery.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return domain.E(domain.CodeInvalidArgument, "config.validate",
			fmt.Sprintf("discovery.baseURL %q is not a valid URL", c.Discovery.BaseURL), nil)
	}
	if c.Discovery.TTL <= 0 {
		return domain.E(domain.CodeInvalidArgument, "config.validate", "discovery.ttlSeconds must be positive", nil)
	}
	if c.Dispatch.CallTimeout <= 0 {
		return domain.E(domain.CodeInvalidArgument, "config.validate", "dispatch.callTimeoutSeconds must be positive", nil)
	}
	if c.Dispatch.BatchTimeout < c.Dispatch.CallTimeout {
		return domain.E(domain.CodeInvalidArgument, "config.validate",
			"dispatch.batchTimeoutSeconds must be at least the call timeout", nil)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return domain.E(domain.CodeInvalidArgument, "config.validate",
			fmt.Sprintf("logLevel %q is not a valid level", c.LogLevel), nil)
	}
	return nil
}
