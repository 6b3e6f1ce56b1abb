package aggregate

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/comp-pricer/internal/model"
)

// DefaultTTL applies to a source with no configured TTL.
const DefaultTTL = 24 * time.Hour

// Config holds source priors and aggregation policy.
type Config struct {
	Defaults    DefaultConfig                     `yaml:"defaults"`
	SourceTypes map[model.SourceType]SourceConfig `yaml:"source_types"`
	Sources     map[string]SourceConfig           `yaml:"sources"`
}

// DefaultConfig holds global aggregation defaults.
type DefaultConfig struct {
	// BaseWeight is the prior for sources with no specific entry. 0 means 1.0.
	BaseWeight float64 `yaml:"base_weight"`
	// TTLHours is the cache lifetime of a source with no TTL of its own.
	TTLHours int `yaml:"ttl_hours"`
	// FullConfidenceSampleSize is the combined sample size at which the
	// size component of the confidence score saturates.
	FullConfidenceSampleSize int `yaml:"full_confidence_sample_size"`
	// TargetPercentile shifts the target salary away from the median
	// (e.g. 0.6 for competitive offers). 0 means 0.5.
	TargetPercentile float64 `yaml:"target_percentile"`
}

// SourceConfig configures one source name or source type.
type SourceConfig struct {
	BaseWeight *float64 `yaml:"base_weight,omitempty"`
	TTLHours   int      `yaml:"ttl_hours,omitempty"`
}

// NewDefaultConfig returns a configuration with neutral priors.
func NewDefaultConfig() *Config {
	return &Config{
		Defaults: DefaultConfig{
			BaseWeight:               1.0,
			TTLHours:                 int(DefaultTTL / time.Hour),
			FullConfidenceSampleSize: 100,
			TargetPercentile:         0.5,
		},
		SourceTypes: map[model.SourceType]SourceConfig{},
		Sources:     map[string]SourceConfig{},
	}
}

// LoadConfig reads aggregation config from a YAML file with a top-level
// "aggregation" key. Unset defaults fall back to NewDefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "aggregate: read config %s", path)
	}

	var wrapper struct {
		Aggregation Config `yaml:"aggregation"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "aggregate: parse config")
	}

	cfg := &wrapper.Aggregation
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := NewDefaultConfig().Defaults
	if c.Defaults.BaseWeight <= 0 {
		c.Defaults.BaseWeight = def.BaseWeight
	}
	if c.Defaults.TTLHours <= 0 {
		c.Defaults.TTLHours = def.TTLHours
	}
	if c.Defaults.FullConfidenceSampleSize <= 0 {
		c.Defaults.FullConfidenceSampleSize = def.FullConfidenceSampleSize
	}
	if c.Defaults.TargetPercentile <= 0 || c.Defaults.TargetPercentile >= 1 {
		c.Defaults.TargetPercentile = def.TargetPercentile
	}
	if c.SourceTypes == nil {
		c.SourceTypes = map[model.SourceType]SourceConfig{}
	}
	if c.Sources == nil {
		c.Sources = map[string]SourceConfig{}
	}
}

// SetSource registers or overrides the prior and TTL for a named source.
func (c *Config) SetSource(name string, baseWeight float64, ttl time.Duration) {
	if c.Sources == nil {
		c.Sources = map[string]SourceConfig{}
	}
	w := baseWeight
	c.Sources[name] = SourceConfig{BaseWeight: &w, TTLHours: int(ttl / time.Hour)}
}

// BaseWeight resolves the prior for a source: by name, then by type, then
// the global default.
func (c *Config) BaseWeight(name string, typ model.SourceType) float64 {
	if sc, ok := c.Sources[name]; ok && sc.BaseWeight != nil {
		return *sc.BaseWeight
	}
	if sc, ok := c.SourceTypes[typ]; ok && sc.BaseWeight != nil {
		return *sc.BaseWeight
	}
	if c.Defaults.BaseWeight > 0 {
		return c.Defaults.BaseWeight
	}
	return 1.0
}

// TTL resolves the configured cache lifetime of a source. The boolean is
// false when neither the source nor its type has one.
func (c *Config) TTL(name string, typ model.SourceType) (time.Duration, bool) {
	if sc, ok := c.Sources[name]; ok && sc.TTLHours > 0 {
		return time.Duration(sc.TTLHours) * time.Hour, true
	}
	if sc, ok := c.SourceTypes[typ]; ok && sc.TTLHours > 0 {
		return time.Duration(sc.TTLHours) * time.Hour, true
	}
	return 0, false
}

// FallbackTTL is the lifetime of a source with no configured TTL.
func (c *Config) FallbackTTL() time.Duration {
	if c.Defaults.TTLHours > 0 {
		return time.Duration(c.Defaults.TTLHours) * time.Hour
	}
	return DefaultTTL
}
