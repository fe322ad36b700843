// Package config loads fieldtrust settings from defaults, an optional YAML
// file and FIELDTRUST_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hed1ad/fieldtrust/internal/logging"
	"github.com/hed1ad/fieldtrust/pkg/detectors"
	"github.com/hed1ad/fieldtrust/pkg/detectors/ensemble"
	"github.com/hed1ad/fieldtrust/pkg/detectors/iforest"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FIELDTRUST"

// ErrInvalid marks a configuration that fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Anomaly detection methods.
const (
	MethodNone      = "none"
	MethodIQR       = "iqr"
	MethodZScore    = "zscore"
	MethodIsolation = "isolation"
	MethodEnsemble  = "ensemble"
)

// Config is the effective configuration.
type Config struct {
	Anomaly  Anomaly  `mapstructure:"anomaly" yaml:"anomaly"`
	Ensemble Ensemble `mapstructure:"ensemble" yaml:"ensemble"`
	Trust    Trust    `mapstructure:"trust" yaml:"trust"`
	Store    Store    `mapstructure:"store" yaml:"store"`
	Logging  Logging  `mapstructure:"logging" yaml:"logging"`
}

// Anomaly configures the outlier detectors.
type Anomaly struct {
	Method           string  `mapstructure:"method" yaml:"method"`
	IQRMultiplier    float64 `mapstructure:"iqr_multiplier" yaml:"iqr_multiplier"`
	ZScoreThreshold  float64 `mapstructure:"zscore_threshold" yaml:"zscore_threshold"`
	Contamination    float64 `mapstructure:"contamination" yaml:"contamination"`
	Trees            int     `mapstructure:"trees" yaml:"trees"`
	SampleSize       int     `mapstructure:"sample_size" yaml:"sample_size"`
	Seed             int64   `mapstructure:"seed" yaml:"seed"`
	IsolationEnabled bool    `mapstructure:"isolation_enabled" yaml:"isolation_enabled"`
}

// Ensemble configures the voter.
type Ensemble struct {
	Detectors []string `mapstructure:"detectors" yaml:"detectors"`
	Voting    string   `mapstructure:"voting" yaml:"voting"`
}

// Trust configures the calculator.
type Trust struct {
	FreshnessThresholdDays float64 `mapstructure:"freshness_threshold_days" yaml:"freshness_threshold_days"`
}

// Store configures score persistence.
type Store struct {
	Path        string `mapstructure:"path" yaml:"path"`
	HistoryDays int    `mapstructure:"history_days" yaml:"history_days"`
}

// Logging configures the process logger.
type Logging struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Dir returns ~/.fieldtrust.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".fieldtrust"), nil
}

// DefaultStorePath returns ~/.fieldtrust/trust_scores.db, or a path under
// the working directory when there is no home directory.
func DefaultStorePath() string {
	dir, err := Dir()
	if err != nil {
		dir = ".fieldtrust"
	}
	return filepath.Join(dir, "trust_scores.db")
}

// ExpandPath expands a leading ~ and environment variables in path.
func ExpandPath(path string) string {
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	d := detectors.DefaultConfig()

	v.SetDefault("anomaly.method", MethodIQR)
	v.SetDefault("anomaly.iqr_multiplier", d.IQRMultiplier)
	v.SetDefault("anomaly.zscore_threshold", d.ZThreshold)
	v.SetDefault("anomaly.contamination", d.Contamination)
	v.SetDefault("anomaly.trees", d.Trees)
	v.SetDefault("anomaly.sample_size", d.SampleSize)
	v.SetDefault("anomaly.seed", d.RandomSeed)
	v.SetDefault("anomaly.isolation_enabled", true)

	v.SetDefault("ensemble.detectors", []string{MethodIQR, MethodZScore})
	v.SetDefault("ensemble.voting", ensemble.Majority.String())

	v.SetDefault("trust.freshness_threshold_days", 7.0)

	v.SetDefault("store.path", "")
	v.SetDefault("store.history_days", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// New returns a viper instance with defaults, env binding and the optional
// config file set up. A missing file is not an error.
func New(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(cfgFile != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath()
	}
	c.Store.Path = ExpandPath(c.Store.Path)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads configuration from defaults, cfgFile (or ~/.fieldtrust/config.yaml)
// and the environment, in increasing precedence.
func Load(cfgFile string) (*Config, error) {
	v, err := New(cfgFile)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// Default returns the configuration with every key at its default.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	c, err := FromViper(v)
	if err != nil {
		panic(err)
	}
	return c
}

// Save writes c as YAML to path, creating the directory when needed.
func Save(c *Config, path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects out-of-range values and unknown names.
func (c *Config) Validate() error {
	var errs []error

	switch c.Anomaly.Method {
	case MethodNone, MethodIQR, MethodZScore, MethodIsolation, MethodEnsemble:
	default:
		errs = append(errs, fmt.Errorf("anomaly.method %q: %w", c.Anomaly.Method, detectors.ErrUnknownDetector))
	}
	if c.Anomaly.Method == MethodIsolation && !c.Anomaly.IsolationEnabled {
		errs = append(errs, errors.New("anomaly.method is isolation but anomaly.isolation_enabled is false"))
	}
	if c.Anomaly.IQRMultiplier <= 0 {
		errs = append(errs, fmt.Errorf("anomaly.iqr_multiplier must be positive, got %v", c.Anomaly.IQRMultiplier))
	}
	if c.Anomaly.ZScoreThreshold <= 0 {
		errs = append(errs, fmt.Errorf("anomaly.zscore_threshold must be positive, got %v", c.Anomaly.ZScoreThreshold))
	}
	if c.Anomaly.Contamination <= 0 || c.Anomaly.Contamination > 0.5 {
		errs = append(errs, fmt.Errorf("anomaly.contamination must be in (0, 0.5], got %v", c.Anomaly.Contamination))
	}
	if c.Anomaly.Trees <= 0 {
		errs = append(errs, fmt.Errorf("anomaly.trees must be positive, got %d", c.Anomaly.Trees))
	}
	if c.Anomaly.SampleSize <= 0 {
		errs = append(errs, fmt.Errorf("anomaly.sample_size must be positive, got %d", c.Anomaly.SampleSize))
	}

	if c.Anomaly.Method == MethodEnsemble || len(c.Ensemble.Detectors) > 0 {
		if _, err := c.Kinds(); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := ensemble.ParseVoting(c.Ensemble.Voting); err != nil {
		errs = append(errs, fmt.Errorf("ensemble.voting %q: %w", c.Ensemble.Voting, err))
	}

	if d := c.Trust.FreshnessThresholdDays; d < 1 || d >= 30 {
		errs = append(errs, fmt.Errorf("trust.freshness_threshold_days must be in [1, 30), got %v", d))
	}
	if c.Store.HistoryDays <= 0 {
		errs = append(errs, fmt.Errorf("store.history_days must be positive, got %d", c.Store.HistoryDays))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q: want console or json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Detectors returns the detector settings.
func (c *Config) Detectors() detectors.Config {
	return detectors.Config{
		IQRMultiplier: c.Anomaly.IQRMultiplier,
		ZThreshold:    c.Anomaly.ZScoreThreshold,
		Contamination: c.Anomaly.Contamination,
		Trees:         c.Anomaly.Trees,
		SampleSize:    c.Anomaly.SampleSize,
		RandomSeed:    c.Anomaly.Seed,
	}
}

// Kinds parses the ensemble detector names. An empty list is an error.
func (c *Config) Kinds() ([]detectors.Kind, error) {
	if len(c.Ensemble.Detectors) == 0 {
		return nil, fmt.Errorf("ensemble.detectors: %w", detectors.ErrEmptyDetectorSet)
	}
	kinds := make([]detectors.Kind, 0, len(c.Ensemble.Detectors))
	for _, name := range c.Ensemble.Detectors {
		k, err := detectors.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("ensemble.detectors: %w", err)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// Voting returns the parsed voting rule.
func (c *Config) Voting() ensemble.Voting {
	v, _ := ensemble.ParseVoting(c.Ensemble.Voting)
	return v
}

// Detector builds the configured detector. Method "none" yields nil.
func (c *Config) Detector(opts ...ensemble.Option) (detectors.Detector, error) {
	cfg := c.Detectors()
	switch c.Anomaly.Method {
	case MethodNone:
		return nil, nil
	case MethodIQR:
		return detectors.NewIQR(cfg.IQRMultiplier), nil
	case MethodZScore:
		return detectors.NewZScore(cfg.ZThreshold), nil
	case MethodIsolation:
		if !c.Anomaly.IsolationEnabled {
			return nil, fmt.Errorf("%w: isolation detector is disabled", ErrInvalid)
		}
		return iforest.NewDetector(cfg), nil
	case MethodEnsemble:
		kinds, err := c.Kinds()
		if err != nil {
			return nil, err
		}
		opts = append([]ensemble.Option{ensemble.WithIsolationAvailable(c.Anomaly.IsolationEnabled)}, opts...)
		e, err := ensemble.New(kinds, c.Voting(), cfg, opts...)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, fmt.Errorf("anomaly.method %q: %w", c.Anomaly.Method, detectors.ErrUnknownDetector)
}
