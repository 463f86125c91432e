package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/geowatch/internal/model"
	"github.com/ppiankov/geowatch/internal/ratelimit"
)

// Mode selects which accuracy limit applies to an evaluation.
type Mode string

const (
	// ModeStartup is the one-shot host check before the page is shown.
	ModeStartup Mode = "startup"
	// ModeFirstPass is the page-side one-shot position request made before
	// continuous monitoring begins. It uses the tighter accuracy limit.
	ModeFirstPass Mode = "first_pass"
	// ModeContinuous is every periodic monitor tick.
	ModeContinuous Mode = "continuous"
)

// ParseMode maps a string to a Mode. Unknown values resolve to ModeContinuous.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeStartup:
		return ModeStartup
	case ModeFirstPass:
		return ModeFirstPass
	default:
		return ModeContinuous
	}
}

// Thresholds holds the numeric limits used by Evaluate.
type Thresholds struct {
	AccuracyMax          float64  `yaml:"accuracy_max_m" json:"accuracy_max_m"`
	FirstPassAccuracyMax float64  `yaml:"first_pass_accuracy_max_m" json:"first_pass_accuracy_max_m"`
	SpeedMax             float64  `yaml:"speed_max_mps" json:"speed_max_mps"`
	AltitudeMin          float64  `yaml:"altitude_min_m" json:"altitude_min_m"`
	AltitudeMax          float64  `yaml:"altitude_max_m" json:"altitude_max_m"`
	MovementSpeedMax     float64  `yaml:"movement_speed_max_mps" json:"movement_speed_max_mps"`
	SuspectProviders     []string `yaml:"suspect_providers" json:"suspect_providers"`
}

// DefaultThresholds returns the limits used when no policy file overrides them.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AccuracyMax:          50,
		FirstPassAccuracyMax: 20,
		SpeedMax:             50,
		AltitudeMin:          -500,
		AltitudeMax:          5000,
		MovementSpeedMax:     50,
		SuspectProviders:     []string{"network"},
	}
}

// MonitorConfig controls the continuous monitor.
type MonitorConfig struct {
	Interval     time.Duration        `yaml:"interval"`
	InitialDelay time.Duration        `yaml:"initial_delay"`
	Acquire      model.AcquireOptions `yaml:"acquire"`
}

// DevOptsConfig controls the developer-options guard.
type DevOptsConfig struct {
	Interval     time.Duration `yaml:"interval"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

// GateConfig controls the startup gate. MaxAttempts 0 means unlimited retries.
type GateConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// BridgeConfig controls how the host accepts page messages.
type BridgeConfig struct {
	RateLimits ratelimit.Config `yaml:"rate_limits"`
}

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["invalid", "unavailable", "devopts", "spoofer_apps", "binary_tamper"], "*" for all
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// PolicyConfig holds all configurable validation parameters.
type PolicyConfig struct {
	Thresholds  Thresholds    `yaml:"thresholds"`
	Monitor     MonitorConfig `yaml:"monitor"`
	DevOpts     DevOptsConfig `yaml:"devopts"`
	Gate        GateConfig    `yaml:"gate"`
	Bridge      BridgeConfig  `yaml:"bridge"`
	Alerts      []AlertConfig `yaml:"alerts"`
	SpooferApps []string      `yaml:"spoofer_apps"`
}

// DefaultSpooferApps lists package names of common location spoofing apps.
var DefaultSpooferApps = []string{
	"com.lexa.fakegps",
	"com.evezzon.fakegps",
	"com.incorporateapps.fakegps",
	"com.dummy.fakegps",
	"com.fakegps.mock",
	"com.theappninjas.fakegpsjoystick",
	"com.blogspot.newapphorizons.fakegps",
}

// DefaultConfig returns the built-in policy config.
func DefaultConfig() *PolicyConfig {
	return &PolicyConfig{
		Thresholds: DefaultThresholds(),
		Monitor: MonitorConfig{
			Interval:     15 * time.Second,
			InitialDelay: 3 * time.Second,
			Acquire:      model.DefaultAcquireOptions(),
		},
		DevOpts: DevOptsConfig{
			Interval:     10 * time.Second,
			InitialDelay: time.Second,
		},
		Bridge: BridgeConfig{
			RateLimits: ratelimit.Config{
				"*": {MaxRequests: 30, Window: time.Minute},
			},
		},
		SpooferApps: append([]string(nil), DefaultSpooferApps...),
	}
}

// ThresholdsFor returns the thresholds with the accuracy limit resolved for mode.
func (c *PolicyConfig) ThresholdsFor(mode Mode) Thresholds {
	th := c.Thresholds
	th.SuspectProviders = append([]string(nil), c.Thresholds.SuspectProviders...)
	if mode == ModeFirstPass {
		th.AccuracyMax = c.Thresholds.FirstPassAccuracyMax
	}
	return th
}

// Validate rejects configs that would make every sample fail or the
// monitor spin.
func (c *PolicyConfig) Validate() error {
	var errs []error
	th := c.Thresholds
	if th.AccuracyMax <= 0 {
		errs = append(errs, fmt.Errorf("thresholds.accuracy_max_m must be > 0, got %v", th.AccuracyMax))
	}
	if th.FirstPassAccuracyMax <= 0 {
		errs = append(errs, fmt.Errorf("thresholds.first_pass_accuracy_max_m must be > 0, got %v", th.FirstPassAccuracyMax))
	}
	if th.SpeedMax <= 0 {
		errs = append(errs, fmt.Errorf("thresholds.speed_max_mps must be > 0, got %v", th.SpeedMax))
	}
	if th.MovementSpeedMax <= 0 {
		errs = append(errs, fmt.Errorf("thresholds.movement_speed_max_mps must be > 0, got %v", th.MovementSpeedMax))
	}
	if th.AltitudeMin > th.AltitudeMax {
		errs = append(errs, fmt.Errorf("thresholds.altitude_min_m (%v) exceeds altitude_max_m (%v)", th.AltitudeMin, th.AltitudeMax))
	}
	if c.Monitor.Interval <= 0 {
		errs = append(errs, fmt.Errorf("monitor.interval must be > 0, got %s", c.Monitor.Interval))
	}
	if c.Monitor.InitialDelay < 0 {
		errs = append(errs, fmt.Errorf("monitor.initial_delay must not be negative, got %s", c.Monitor.InitialDelay))
	}
	if c.DevOpts.Interval <= 0 {
		errs = append(errs, fmt.Errorf("devopts.interval must be > 0, got %s", c.DevOpts.Interval))
	}
	if c.Gate.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("gate.max_attempts must not be negative, got %d", c.Gate.MaxAttempts))
	}
	return errors.Join(errs...)
}

// DefaultPath returns ~/.geowatch/policy.yaml, or "" when the home
// directory cannot be resolved.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".geowatch", "policy.yaml")
}

// LoadConfig loads policy configuration from a YAML file.
// Empty path falls back to ~/.geowatch/policy.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func LoadConfig(path string) (*PolicyConfig, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads policy configuration and returns its SHA-256 hash.
// The hash is computed over the raw YAML bytes on disk.
// When no file exists (defaults used), the hash is the SHA-256 of empty input.
func LoadConfigWithHash(path string) (*PolicyConfig, string, error) {
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return DefaultConfig(), hashOf(nil), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), hashOf(nil), nil
		}
		return nil, "", fmt.Errorf("failed to read policy config: %w", err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, "", err
	}
	return cfg, hashOf(data), nil
}

// ParseConfig decodes YAML over the defaults and validates the result.
func ParseConfig(data []byte) (*PolicyConfig, error) {
	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy config: %w", err)
	}
	return cfg, nil
}

func hashOf(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// DefaultConfigYAML returns a commented YAML string for init-policy.
func DefaultConfigYAML() string {
	return `# geowatch policy configuration
# Generated by: geowatch init-policy
#
# Rule order (cannot be changed, every rule is checked):
#   1. Accuracy      accuracy > limit          -> low_accuracy
#   2. Speed         speed > speed_max_mps     -> unrealistic_speed
#   3. Altitude      outside [min, max]        -> unusual_altitude
#   4. Provider      contains suspect provider -> network_provider
#   5. Mock flag     mocked = true             -> mock_location
#   6. Movement      implied speed > limit     -> unrealistic_movement

thresholds:
  # Accuracy limit for the host startup check and continuous monitoring.
  accuracy_max_m: 50
  # Accuracy limit for the page's first one-shot position request.
  first_pass_accuracy_max_m: 20
  # Reported speed limit (50 m/s is 180 km/h).
  speed_max_mps: 50
  altitude_min_m: -500
  altitude_max_m: 5000
  # Speed implied by the distance between two consecutive samples.
  movement_speed_max_mps: 50
  # Case-insensitive substrings of the provider name.
  suspect_providers:
    - network

monitor:
  interval: 15s
  initial_delay: 3s
  acquire:
    high_accuracy: true
    timeout: 10s
    max_age: 5s

devopts:
  interval: 10s
  initial_delay: 1s

gate:
  # 0 = retry until the user chooses Exit.
  max_attempts: 0

# Page messages accepted per type and window. "*" covers unlisted types;
# messages over the limit are dropped.
bridge:
  rate_limits:
    "*":
      max_requests: 30
      window: 1m

# Webhook alerts for invalid verdicts (optional).
# alerts:
#   - url: https://hooks.slack.com/services/XXX
#     format: slack
#     events: [invalid, unavailable]

# Package names announced by the page in CHECK_FAKE_GPS_APPS.
spoofer_apps:
  - com.lexa.fakegps
  - com.evezzon.fakegps
  - com.incorporateapps.fakegps
  - com.dummy.fakegps
  - com.fakegps.mock
  - com.theappninjas.fakegpsjoystick
  - com.blogspot.newapphorizons.fakegps
`
}
