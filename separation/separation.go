// Package separation splits a mix into vocal and drum stems
package separation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-pulso/logging"
)

// ErrUnavailable is returned when a requested separator cannot run here
var ErrUnavailable = errors.New("source separation unavailable")

// Stems holds paths to the separated stem files
type Stems struct {
	Vocals string `json:"vocals"`
	Drums  string `json:"drums"`
}

// Separator produces vocal and drum stems for an audio file
type Separator interface {
	Name() string
	Separate(ctx context.Context, path string) (Stems, error)
}

// Engine names a separator choice
type Engine string

const (
	EngineAuto   Engine = "auto"
	EngineDemucs Engine = "demucs"
	EngineNone   Engine = "none"
)

// Config selects and configures a separator
type Config struct {
	Engine    Engine        `json:"engine" mapstructure:"engine"`
	Binary    string        `json:"binary" mapstructure:"binary"`
	Model     string        `json:"model" mapstructure:"model"`
	OutputDir string        `json:"output_dir" mapstructure:"output_dir"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
}

// DefaultConfig uses demucs' htdemucs model when the binary is installed
func DefaultConfig() Config {
	return Config{
		Engine:  EngineAuto,
		Binary:  "demucs",
		Model:   "htdemucs",
		Timeout: 0, // separation of a full song can take minutes
	}
}

// IdentitySeparator returns the input file as both stems
type IdentitySeparator struct{}

// NewIdentitySeparator creates a separator that performs no separation
func NewIdentitySeparator() *IdentitySeparator {
	return &IdentitySeparator{}
}

// Name implements Separator
func (s *IdentitySeparator) Name() string {
	return string(EngineNone)
}

// Separate implements Separator
func (s *IdentitySeparator) Separate(ctx context.Context, path string) (Stems, error) {
	return Identity(path), nil
}

// Identity is the fallback stem pair: the mix stands in for both stems
func Identity(path string) Stems {
	return Stems{Vocals: path, Drums: path}
}

// Select resolves the configured engine once. "auto" uses demucs when its
// binary is on PATH and the identity separator otherwise.
func Select(cfg Config) (Separator, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "separation",
		"function":  "Select",
		"engine":    string(cfg.Engine),
	})

	switch cfg.Engine {
	case EngineNone:
		return NewIdentitySeparator(), nil

	case EngineDemucs:
		return NewDemucsSeparator(cfg)

	case EngineAuto, "":
		demucs, err := NewDemucsSeparator(cfg)
		if err == nil {
			logger.Info("Using demucs source separation", logging.Fields{
				"binary": demucs.binaryPath,
				"model":  demucs.config.Model,
			})
			return demucs, nil
		}
		logger.Warn("Demucs not available, using the original file for both stems", logging.Fields{
			"reason": err.Error(),
		})
		return NewIdentitySeparator(), nil

	default:
		return nil, fmt.Errorf("unknown separation engine %q", cfg.Engine)
	}
}
