// Package config defines the agent's YAML configuration: which broadcasters
// to mine, their betting strategies, and watch behavior.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/Graze/Graze/internal/strategy"
)

// PredictionConfig binds a strategy to its entry filters.
type PredictionConfig struct {
	Strategy strategy.Strategy `yaml:"strategy" json:"strategy"`
	Filters  []strategy.Filter `yaml:"filters" json:"filters"`
}

// StreamerConfig is the per-broadcaster behavior.
type StreamerConfig struct {
	FollowRaid bool             `yaml:"follow_raid" json:"follow_raid"`
	Prediction PredictionConfig `yaml:"prediction" json:"prediction"`
}

// Validate checks percent ranges and filter shapes (pre-normalization).
func (s *StreamerConfig) Validate() error {
	if err := s.Prediction.Strategy.Validate(); err != nil {
		return err
	}
	for i, f := range s.Prediction.Filters {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("filters[%d]: %w", i, err)
		}
	}
	return nil
}

// Normalize converts percent-unit strategy fields to fractions, once.
func (s *StreamerConfig) Normalize() {
	s.Prediction.Strategy.Normalize()
}

// ConfigType selects between a named preset and an inline config.
// Wire form is a single-key mapping: {"Preset": "small"} or {"Specific": {...}}.
type ConfigType struct {
	Preset   string
	Specific *StreamerConfig
}

func (c ConfigType) variant() (string, any, error) {
	switch {
	case c.Preset != "" && c.Specific == nil:
		return "Preset", c.Preset, nil
	case c.Preset == "" && c.Specific != nil:
		return "Specific", c.Specific, nil
	}
	return "", nil, fmt.Errorf("config type must be exactly one of Preset or Specific")
}

func (c *ConfigType) setVariant(key string, decode func(out any) error) error {
	*c = ConfigType{}
	switch key {
	case "Preset":
		return decode(&c.Preset)
	case "Specific":
		c.Specific = &StreamerConfig{}
		return decode(c.Specific)
	}
	return fmt.Errorf("unknown config type variant %q", key)
}

func (c ConfigType) MarshalJSON() ([]byte, error) {
	key, value, err := c.variant()
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{key: value})
}

func (c *ConfigType) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("config type must be a single-variant mapping, got %d keys", len(raw))
	}
	for key, value := range raw {
		return c.setVariant(key, func(out any) error { return json.Unmarshal(value, out) })
	}
	return nil
}

func (c ConfigType) MarshalYAML() (any, error) {
	key, value, err := c.variant()
	if err != nil {
		return nil, err
	}
	return map[string]any{key: value}, nil
}

func (c *ConfigType) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("config type must be a single-variant mapping, got %d keys", len(raw))
	}
	for key, value := range raw {
		return c.setVariant(key, func(out any) error { return value.Decode(out) })
	}
	return nil
}

// Config is the whole config file.
type Config struct {
	WatchPriority []string                  `yaml:"watch_priority,omitempty" json:"watch_priority,omitempty"`
	Streamers     *Ordered[ConfigType]      `yaml:"streamers" json:"streamers"`
	Presets       *Ordered[StreamerConfig]  `yaml:"presets,omitempty" json:"presets,omitempty"`
	WatchStreak   *bool                     `yaml:"watch_streak,omitempty" json:"watch_streak,omitempty"`
	AnalyticsDB   string                    `yaml:"analytics_db,omitempty" json:"analytics_db,omitempty"`
}

// WatchStreakEnabled defaults to true when unset.
func (c *Config) WatchStreakEnabled() bool {
	return c.WatchStreak == nil || *c.WatchStreak
}

// ParseAndValidate checks cross-references and normalizes every strategy in
// place. Call exactly once after loading or constructing a Config.
func (c *Config) ParseAndValidate() error {
	if c.Streamers == nil || c.Streamers.Len() == 0 {
		return fmt.Errorf("no streamers configured")
	}
	for _, name := range c.Streamers.Keys() {
		ct, _ := c.Streamers.Get(name)
		switch {
		case ct.Preset != "":
			if c.Presets == nil {
				return fmt.Errorf("no presets given, so %q cannot be used by %q", ct.Preset, name)
			}
			if _, ok := c.Presets.Get(ct.Preset); !ok {
				return fmt.Errorf("preset %q used by %q not found", ct.Preset, name)
			}
		case ct.Specific != nil:
			if err := ct.Specific.Validate(); err != nil {
				return fmt.Errorf("streamer %q: %w", name, err)
			}
			ct.Specific.Normalize()
			c.Streamers.Set(name, ct)
		default:
			return fmt.Errorf("streamer %q has neither preset nor specific config", name)
		}
	}
	if c.Presets != nil {
		for _, name := range c.Presets.Keys() {
			if _, clash := c.Streamers.Get(name); clash {
				return fmt.Errorf("preset %q already in use as a streamer; preset names cannot collide with streamer names", name)
			}
			preset, _ := c.Presets.Get(name)
			if err := preset.Validate(); err != nil {
				return fmt.Errorf("preset %q: %w", name, err)
			}
			preset.Normalize()
			c.Presets.Set(name, preset)
		}
	}
	for _, name := range c.WatchPriority {
		if !slices.Contains(c.Streamers.Keys(), name) {
			return fmt.Errorf("watch_priority entry %q is not a configured streamer", name)
		}
	}
	return nil
}

// Load reads and decodes the config file without validating it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Streamers == nil {
		cfg.Streamers = NewOrdered[ConfigType]()
	}
	return &cfg, nil
}
