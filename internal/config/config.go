package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models trailhead.yml.
type Config struct {
	User struct {
		ID string `yaml:"id"`
	} `yaml:"user"`
	Generation struct {
		Model string `yaml:"model"`
	} `yaml:"generation"`
	Tuning   Tuning          `yaml:"tuning"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

// WebhookConfig describes one outbound event subscriber. An empty
// Events list subscribes to everything.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
}

// Tuning holds every dial the turn engine reads. It is built once at
// startup and passed by value; nothing mutates it afterwards.
type Tuning struct {
	Withering  WitheringTuning  `yaml:"withering"`
	Resistance ResistanceTuning `yaml:"resistance"`
	XP         XPTuning         `yaml:"xp"`
	Selector   SelectorTuning   `yaml:"selector"`
	Deadlines  DeadlineTuning   `yaml:"deadlines"`
	Reflection ReflectionTuning `yaml:"reflection"`
	Magnitude  MagnitudeTuning  `yaml:"magnitude"`
	DevIndex   DevIndexTuning   `yaml:"dev_index"`
	History    HistoryTuning    `yaml:"history"`
	Harmonic   HarmonicTuning   `yaml:"harmonic"`
	Narrative  NarrativeTuning  `yaml:"narrative"`
}

type WitheringTuning struct {
	IdleCoeff        map[string]float64 `yaml:"idle_coeff"`
	OverdueCoeff     map[string]float64 `yaml:"overdue_coeff"`
	DecayFactor      float64            `yaml:"decay_factor"`
	CompletionRelief float64            `yaml:"completion_relief"`
}

type ResistanceTuning struct {
	Base            float64 `yaml:"base"`
	ShadowWeight    float64 `yaml:"shadow_weight"`
	CapacityWeight  float64 `yaml:"capacity_weight"`
	MomentumWeight  float64 `yaml:"momentum_weight"`
	MagnitudeWeight float64 `yaml:"magnitude_weight"`
	MagnitudePivot  float64 `yaml:"magnitude_pivot"`
}

type XPTuning struct {
	TierBase           map[string]int `yaml:"tier_base"`
	ShadowBonus        int            `yaml:"shadow_bonus"`
	ShadowThreshold    float64        `yaml:"shadow_threshold"`
	ProximityThreshold int            `yaml:"proximity_threshold"`
	Stages             []StageTuning  `yaml:"stages"`
}

type StageTuning struct {
	Name      string  `yaml:"name"`
	MinXP     int     `yaml:"min_xp"`
	MaxXP     int     `yaml:"max_xp"` // 0 means unbounded
	Challenge string  `yaml:"challenge"`
	Momentum  float64 `yaml:"momentum,omitempty"`
}

type SelectorTuning struct {
	DevWeight         float64            `yaml:"dev_weight"`
	PatternWeight     float64            `yaml:"pattern_weight"`
	ReflectionWeight  float64            `yaml:"reflection_weight"`
	ResourceLevels    map[string]float64 `yaml:"resource_levels"`
	TierBaseMagnitude map[string]float64 `yaml:"tier_base_magnitude"`
	DepthWeight       float64            `yaml:"depth_weight"`
	MaxDepth          int                `yaml:"max_depth"`
	DefaultMagnitude  float64            `yaml:"default_magnitude"`
}

type DeadlineTuning struct {
	JitterFraction      float64 `yaml:"jitter_fraction"`
	FallbackHorizonDays int     `yaml:"fallback_horizon_days"`
}

type ReflectionTuning struct {
	Nudge float64 `yaml:"nudge"`
}

type MagnitudeTuning struct {
	SmoothingAlpha float64 `yaml:"smoothing_alpha"`
	HighThreshold  float64 `yaml:"high_threshold"`
	HighBoost      float64 `yaml:"high_boost"`
	MomentumAlpha  float64 `yaml:"momentum_alpha"`
}

type DevIndexTuning struct {
	BaseBoost     float64            `yaml:"base_boost"`
	TierMult      map[string]float64 `yaml:"tier_mult"`
	BaselineNudge float64            `yaml:"baseline_nudge"`
}

type HistoryTuning struct {
	Cap          int `yaml:"cap"`
	PromptWindow int `yaml:"prompt_window"`
}

type HarmonicTuning struct {
	XPWeight        float64   `yaml:"xp_weight"`
	ShadowWeight    float64   `yaml:"shadow_weight"`
	CapacityWeight  float64   `yaml:"capacity_weight"`
	MagnitudeWeight float64   `yaml:"magnitude_weight"`
	XPNorm          float64   `yaml:"xp_norm"`
	ThemeBounds     []float64 `yaml:"theme_bounds"`
}

type NarrativeTuning struct {
	LowCapacity float64 `yaml:"low_capacity"`
	HighShadow  float64 `yaml:"high_shadow"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with th init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "trailhead.yml")
}

// Default returns the built-in config.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template invalid: %v", err))
	}
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes. Values the
// file omits fall back to the built-in defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.User.ID == "" {
		return fmt.Errorf("config.user.id is required")
	}
	t := c.Tuning
	if t.Withering.DecayFactor <= 0 || t.Withering.DecayFactor > 1 {
		return fmt.Errorf("tuning.withering.decay_factor must be in (0,1]")
	}
	for _, path := range []string{"structured", "blended", "open"} {
		if _, ok := t.Withering.IdleCoeff[path]; !ok {
			return fmt.Errorf("tuning.withering.idle_coeff missing path %s", path)
		}
	}
	for _, level := range []string{"low", "medium", "high"} {
		if _, ok := t.Selector.ResourceLevels[level]; !ok {
			return fmt.Errorf("tuning.selector.resource_levels missing level %s", level)
		}
	}
	for _, tier := range []string{"Bud", "Bloom", "Blossom"} {
		if _, ok := t.XP.TierBase[tier]; !ok {
			return fmt.Errorf("tuning.xp.tier_base missing tier %s", tier)
		}
		if _, ok := t.Selector.TierBaseMagnitude[tier]; !ok {
			return fmt.Errorf("tuning.selector.tier_base_magnitude missing tier %s", tier)
		}
		if _, ok := t.DevIndex.TierMult[tier]; !ok {
			return fmt.Errorf("tuning.dev_index.tier_mult missing tier %s", tier)
		}
	}
	if len(t.XP.Stages) == 0 {
		return fmt.Errorf("tuning.xp.stages is required")
	}
	prev := -1
	for i, s := range t.XP.Stages {
		if s.Name == "" {
			return fmt.Errorf("tuning.xp.stages[%d] has empty name", i)
		}
		if s.MinXP <= prev {
			return fmt.Errorf("tuning.xp.stages must have ascending min_xp")
		}
		if s.MaxXP != 0 && s.MaxXP <= s.MinXP {
			return fmt.Errorf("stage %s has max_xp <= min_xp", s.Name)
		}
		prev = s.MinXP
	}
	last := t.XP.Stages[len(t.XP.Stages)-1]
	if last.MaxXP != 0 {
		return fmt.Errorf("final xp stage %s must be unbounded", last.Name)
	}
	if t.History.Cap <= 0 {
		return fmt.Errorf("tuning.history.cap must be positive")
	}
	if t.History.PromptWindow <= 0 || t.History.PromptWindow > t.History.Cap {
		return fmt.Errorf("tuning.history.prompt_window must be in [1,cap]")
	}
	if t.Deadlines.JitterFraction < 0 || t.Deadlines.JitterFraction >= 1 {
		return fmt.Errorf("tuning.deadlines.jitter_fraction must be in [0,1)")
	}
	if t.Deadlines.FallbackHorizonDays <= 0 {
		return fmt.Errorf("tuning.deadlines.fallback_horizon_days must be positive")
	}
	if len(t.Harmonic.ThemeBounds) != 3 {
		return fmt.Errorf("tuning.harmonic.theme_bounds must have exactly 3 entries")
	}
	for i := 1; i < len(t.Harmonic.ThemeBounds); i++ {
		if t.Harmonic.ThemeBounds[i] <= t.Harmonic.ThemeBounds[i-1] {
			return fmt.Errorf("tuning.harmonic.theme_bounds must be ascending")
		}
	}
	if t.Harmonic.XPNorm <= 0 {
		return fmt.Errorf("tuning.harmonic.xp_norm must be positive")
	}
	if t.Magnitude.SmoothingAlpha < 0 || t.Magnitude.SmoothingAlpha > 1 {
		return fmt.Errorf("tuning.magnitude.smoothing_alpha must be in [0,1]")
	}
	if t.Magnitude.MomentumAlpha < 0 || t.Magnitude.MomentumAlpha > 1 {
		return fmt.Errorf("tuning.magnitude.momentum_alpha must be in [0,1]")
	}
	return nil
}

const defaultTemplate = `user:
  id: local-user

generation:
  model: gemini-2.0-flash

tuning:
  withering:
    idle_coeff:
      structured: 0.025
      blended: 0.015
      open: 0.0
    overdue_coeff:
      structured: 0.012
      blended: 0.005
      open: 0.0
    decay_factor: 0.98
    completion_relief: 0.15

  resistance:
    base: 0.4
    shadow_weight: 0.5
    capacity_weight: 0.3
    momentum_weight: 0.2
    magnitude_weight: 0.05
    magnitude_pivot: 5.0

  xp:
    tier_base:
      Bud: 10
      Bloom: 20
      Blossom: 30
    shadow_bonus: 5
    shadow_threshold: 0.7
    proximity_threshold: 10
    stages:
      - name: Awakening
        min_xp: 0
        max_xp: 150
        challenge: Naming Desire
      - name: Committing
        min_xp: 150
        max_xp: 300
        challenge: Showing Up
      - name: Deepening
        min_xp: 300
        max_xp: 450
        challenge: Softening Shadow
      - name: Harmonizing
        min_xp: 450
        max_xp: 600
        challenge: Harmonizing Seeds
      - name: Becoming
        min_xp: 600
        max_xp: 0
        challenge: Integration Prompt

  selector:
    dev_weight: 0.1
    pattern_weight: 0.1
    reflection_weight: 0.05
    resource_levels:
      low: 0.3
      medium: 0.6
      high: 0.9
    tier_base_magnitude:
      Bud: 2.0
      Bloom: 5.0
      Blossom: 9.0
    depth_weight: 1.0
    max_depth: 5
    default_magnitude: 5.0

  deadlines:
    jitter_fraction: 0.2
    fallback_horizon_days: 7

  reflection:
    nudge: 0.05

  magnitude:
    smoothing_alpha: 0.3
    high_threshold: 9.0
    high_boost: 0.5
    momentum_alpha: 0.3

  dev_index:
    base_boost: 0.02
    tier_mult:
      Bud: 1.0
      Bloom: 1.5
      Blossom: 2.0
    baseline_nudge: 0.01

  history:
    cap: 20
    prompt_window: 6

  harmonic:
    xp_weight: 0.2
    shadow_weight: 0.3
    capacity_weight: 0.2
    magnitude_weight: 0.3
    xp_norm: 600
    theme_bounds: [0.3, 0.6, 0.8]

  narrative:
    low_capacity: 0.2
    high_shadow: 0.8
`
