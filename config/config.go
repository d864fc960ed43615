// Package config loads sonido-pulso settings from defaults, an optional
// pulso.yaml and PULSO_ environment variables
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/RyanBlaney/sonido-pulso/analysis"
	"github.com/RyanBlaney/sonido-pulso/ingest"
	"github.com/RyanBlaney/sonido-pulso/logging"
	"github.com/RyanBlaney/sonido-pulso/separation"
	"github.com/RyanBlaney/sonido-pulso/tempo"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PULSO_LOG_LEVEL
const EnvPrefix = "PULSO"

// FileName is the config file searched for in the working and base
// directories
const FileName = "pulso"

// Config holds the full application configuration
type Config struct {
	Directories ingest.Dirs             `json:"directories" mapstructure:"directories"`
	Log         LogConfig               `json:"log" mapstructure:"log"`
	Tempo       tempo.Config            `json:"tempo" mapstructure:"tempo"`
	Separation  separation.Config       `json:"separation" mapstructure:"separation"`
	Analysis    analysis.PipelineConfig `json:"analysis" mapstructure:"analysis"`
	Progress    bool                    `json:"progress" mapstructure:"progress"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Directories: ingest.DefaultDirs(ingest.DefaultBaseDir()),
		Log:         LogConfig{Level: "info"},
		Tempo:       tempo.DefaultConfig(),
		Separation:  separation.DefaultConfig(),
		Analysis:    *analysis.DefaultPipelineConfig(),
		Progress:    true,
	}
}

// Load reads the configuration. An explicit path must exist; otherwise
// pulso.yaml is looked up in the working directory and then the base
// directory, and its absence is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(v.GetString("directories.base"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logging.Debug("No config file found, using defaults and environment")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("directories.base", d.Directories.Base)
	v.SetDefault("directories.uploads", "")
	v.SetDefault("directories.results", "")
	v.SetDefault("directories.separated", "")

	v.SetDefault("log.level", d.Log.Level)

	v.SetDefault("tempo.strategy", string(d.Tempo.Strategy))
	v.SetDefault("tempo.model_path", d.Tempo.ModelPath)
	v.SetDefault("tempo.library_path", d.Tempo.LibraryPath)

	v.SetDefault("separation.engine", string(d.Separation.Engine))
	v.SetDefault("separation.binary", d.Separation.Binary)
	v.SetDefault("separation.model", d.Separation.Model)
	v.SetDefault("separation.output_dir", "")
	v.SetDefault("separation.timeout", d.Separation.Timeout)

	v.SetDefault("analysis.analysis_rate", d.Analysis.AnalysisRate)
	v.SetDefault("analysis.parallel", d.Analysis.Parallel)

	v.SetDefault("progress", d.Progress)
}

// resolve derives unset directories from the base directory
func (c *Config) resolve() {
	defaults := ingest.DefaultDirs(c.Directories.Base)
	if c.Directories.Uploads == "" {
		c.Directories.Uploads = defaults.Uploads
	}
	if c.Directories.Results == "" {
		c.Directories.Results = defaults.Results
	}
	if c.Directories.Separated == "" {
		c.Directories.Separated = defaults.Separated
	}
	if c.Separation.OutputDir == "" {
		c.Separation.OutputDir = c.Directories.Separated
	}
}

// Validate checks enumerated values and numeric ranges
func (c *Config) Validate() error {
	if c.Directories.Base == "" {
		return fmt.Errorf("directories.base must not be empty")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}

	switch c.Tempo.Strategy {
	case tempo.StrategyAuto, tempo.StrategyNeural, tempo.StrategySignal:
	default:
		return fmt.Errorf("unknown tempo strategy %q", c.Tempo.Strategy)
	}

	switch c.Separation.Engine {
	case separation.EngineAuto, separation.EngineDemucs, separation.EngineNone:
	default:
		return fmt.Errorf("unknown separation engine %q", c.Separation.Engine)
	}

	if c.Separation.Timeout < 0 {
		return fmt.Errorf("separation.timeout must not be negative")
	}

	if c.Analysis.AnalysisRate <= 0 {
		return fmt.Errorf("analysis.analysis_rate must be positive, got %d", c.Analysis.AnalysisRate)
	}

	return nil
}

// LogLevel returns the parsed log level
func (c *Config) LogLevel() logging.Level {
	level, _ := logging.ParseLevel(c.Log.Level)
	return level
}
