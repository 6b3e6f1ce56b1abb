package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/comp-pricer/internal/resilience"
	"github.com/sells-group/comp-pricer/internal/taxonomy"
)

// Config holds the full application configuration.
type Config struct {
	Store           StoreConfig         `yaml:"store" mapstructure:"store"`
	Log             LogConfig           `yaml:"log" mapstructure:"log"`
	Server          ServerConfig        `yaml:"server" mapstructure:"server"`
	Pricing         PricingConfig       `yaml:"pricing" mapstructure:"pricing"`
	AggregationFile string              `yaml:"aggregation_file" mapstructure:"aggregation_file"`
	Sources         []SourceConfig      `yaml:"sources" mapstructure:"sources"`
	Resilience      resilience.Settings `yaml:"resilience" mapstructure:"resilience"`
	Taxonomy        TaxonomyConfig      `yaml:"taxonomy" mapstructure:"taxonomy"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// PricingConfig holds caching and aggregation policy.
type PricingConfig struct {
	Retention                int     `yaml:"retention" mapstructure:"retention"`
	DefaultTTLHours          int     `yaml:"default_ttl_hours" mapstructure:"default_ttl_hours"`
	TargetPercentile         float64 `yaml:"target_percentile" mapstructure:"target_percentile"`
	FullConfidenceSampleSize int     `yaml:"full_confidence_sample_size" mapstructure:"full_confidence_sample_size"`
	DeadlineMs               int     `yaml:"deadline_ms" mapstructure:"deadline_ms"`
	NonBlocking              bool    `yaml:"non_blocking" mapstructure:"non_blocking"`
}

// Deadline is the default source retrieval deadline.
func (p PricingConfig) Deadline() time.Duration {
	return time.Duration(p.DeadlineMs) * time.Millisecond
}

// Source kinds.
const (
	SourceKindHTTP = "http"
	SourceKindFile = "file"
)

// SourceConfig declares one compensation data provider.
type SourceConfig struct {
	Name       string  `yaml:"name" mapstructure:"name"`
	Kind       string  `yaml:"kind" mapstructure:"kind"`
	Type       string  `yaml:"type" mapstructure:"type"`
	URL        string  `yaml:"url" mapstructure:"url"`
	File       string  `yaml:"file" mapstructure:"file"`
	BaseWeight float64 `yaml:"base_weight" mapstructure:"base_weight"`
	TTLHours   int     `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst      int     `yaml:"burst" mapstructure:"burst"`
	TimeoutMs  int     `yaml:"timeout_ms" mapstructure:"timeout_ms"`
}

// TaxonomyConfig configures job-family filtering. No families disables it.
type TaxonomyConfig struct {
	MinScore float64           `yaml:"min_score" mapstructure:"min_score"`
	Families []taxonomy.Family `yaml:"families" mapstructure:"families"`
}

// Load reads configuration from .env, config.yaml and PRICER_* variables,
// in increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		zap.L().Debug("config: no .env file loaded", zap.Error(err))
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PRICER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "comp-pricer.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("pricing.retention", 5)
	v.SetDefault("pricing.default_ttl_hours", 24)
	v.SetDefault("pricing.target_percentile", 0.5)
	v.SetDefault("pricing.full_confidence_sample_size", 100)
	v.SetDefault("pricing.deadline_ms", 10000)
	v.SetDefault("pricing.non_blocking", false)
	v.SetDefault("aggregation_file", "")
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 200)
	v.SetDefault("resilience.max_backoff_ms", 5000)
	v.SetDefault("resilience.multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("taxonomy.min_score", 0.5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Validate checks the settings a mode depends on. Modes: "price", "serve",
// "migrate".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "migrate":
	case "price", "serve":
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Pricing.TargetPercentile < 0 || c.Pricing.TargetPercentile >= 1 {
			errs = append(errs, "pricing.target_percentile must be in [0, 1)")
		}
		if c.Pricing.Retention < 1 {
			errs = append(errs, "pricing.retention must be >= 1")
		}
		if len(c.Sources) == 0 {
			errs = append(errs, "at least one source is required")
		}
		errs = append(errs, c.validateSources()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateSources() []string {
	var errs []string
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("sources[%d].name is required", i))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Sprintf("source %q is declared twice", s.Name))
		}
		seen[s.Name] = true
		switch s.Kind {
		case SourceKindHTTP:
			if s.URL == "" {
				errs = append(errs, fmt.Sprintf("source %q: url is required", s.Name))
			}
		case SourceKindFile:
			if s.File == "" {
				errs = append(errs, fmt.Sprintf("source %q: file is required", s.Name))
			}
		default:
			errs = append(errs, fmt.Sprintf("source %q: kind %q must be http or file", s.Name, s.Kind))
		}
		if s.BaseWeight < 0 {
			errs = append(errs, fmt.Sprintf("source %q: base_weight must be >= 0", s.Name))
		}
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
