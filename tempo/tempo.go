// Package tempo provides interchangeable global tempo estimators
package tempo

import (
	"errors"
	"fmt"

	"github.com/RyanBlaney/sonido-pulso/algorithms/temporal"
	"github.com/RyanBlaney/sonido-pulso/logging"
	"github.com/RyanBlaney/sonido-pulso/transcode"
)

// ErrUnavailable is returned when a requested estimator cannot run here
var ErrUnavailable = errors.New("tempo estimator unavailable")

// Strategy names an estimator choice
type Strategy string

const (
	StrategyAuto   Strategy = "auto"
	StrategyNeural Strategy = "neural"
	StrategySignal Strategy = "signal"
)

// Estimator returns a single tempo estimate (BPM) for a waveform
type Estimator interface {
	Name() string
	Estimate(w *transcode.Waveform) (float64, error)
}

// Config selects and configures an estimator
type Config struct {
	Strategy    Strategy `json:"strategy" mapstructure:"strategy"`
	ModelPath   string   `json:"model_path" mapstructure:"model_path"`
	LibraryPath string   `json:"library_path" mapstructure:"library_path"`
}

// DefaultConfig prefers the neural model and falls back to signal analysis
func DefaultConfig() Config {
	return Config{
		Strategy:  StrategyAuto,
		ModelPath: "models/tempo.onnx",
	}
}

// SignalEstimator estimates tempo from the onset autocorrelation tempogram
type SignalEstimator struct {
	tempo *temporal.TempoEstimation
}

// NewSignalEstimator creates a new signal-processing tempo estimator
func NewSignalEstimator() *SignalEstimator {
	return &SignalEstimator{
		tempo: temporal.NewTempoEstimation(),
	}
}

// Name implements Estimator
func (s *SignalEstimator) Name() string {
	return string(StrategySignal)
}

// Estimate implements Estimator. Silence yields 0.
func (s *SignalEstimator) Estimate(w *transcode.Waveform) (float64, error) {
	if w == nil {
		return 0.0, fmt.Errorf("nil waveform")
	}
	return s.tempo.EstimateTempo(w.Samples, w.SampleRate)
}

// Select resolves the configured strategy once. "auto" uses the neural
// estimator when its model and runtime load, and the signal estimator
// otherwise; "neural" fails with ErrUnavailable instead of falling back.
func Select(cfg Config) (Estimator, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "tempo",
		"function":  "Select",
		"strategy":  string(cfg.Strategy),
	})

	switch cfg.Strategy {
	case StrategySignal:
		return NewSignalEstimator(), nil

	case StrategyNeural:
		return NewNeuralEstimator(cfg.ModelPath, cfg.LibraryPath)

	case StrategyAuto, "":
		neural, err := NewNeuralEstimator(cfg.ModelPath, cfg.LibraryPath)
		if err == nil {
			logger.Info("Using neural tempo estimator")
			return neural, nil
		}
		logger.Warn("Neural tempo estimator not available, using signal analysis", logging.Fields{
			"reason": err.Error(),
		})
		return NewSignalEstimator(), nil

	default:
		return nil, fmt.Errorf("unknown tempo strategy %q", cfg.Strategy)
	}
}
