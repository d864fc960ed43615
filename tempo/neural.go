package tempo

import (
	"fmt"
	"os"
	"sync"

	"github.com/RyanBlaney/sonido-pulso/transcode"
	ort "github.com/yalue/onnxruntime_go"
)

// Neural model contract: mono float32 audio at 22050 Hz in, one logit per
// integer tempo class out, class k meaning minBPM+k
const (
	neuralSampleRate = 22050
	neuralInputName  = "audio"
	neuralMinBPM     = 30.0
)

// ortInitOnce ensures ONNX Runtime is initialized only once
var ortInitOnce sync.Once
var ortInitErr error

// NeuralEstimator classifies tempo with an ONNX model
type NeuralEstimator struct {
	session    *ort.DynamicAdvancedSession
	outputName string
	mu         sync.Mutex
}

// NewNeuralEstimator loads the model at modelPath. libraryPath overrides
// the ONNX Runtime shared library location. Missing files or a runtime that
// fails to load are reported as ErrUnavailable.
func NewNeuralEstimator(modelPath, libraryPath string) (*NeuralEstimator, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("%w: no model configured", ErrUnavailable)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: model not found at %s", ErrUnavailable, modelPath)
	}

	lib := onnxLibPath(libraryPath)
	if lib == "" {
		return nil, fmt.Errorf("%w: onnxruntime shared library not found", ErrUnavailable)
	}

	ortInitOnce.Do(func() {
		ort.SetSharedLibraryPath(lib)
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("%w: failed to initialize ONNX Runtime: %v", ErrUnavailable, ortInitErr)
	}

	_, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read model info: %v", ErrUnavailable, err)
	}
	if len(outputs) < 1 {
		return nil, fmt.Errorf("%w: model has no outputs", ErrUnavailable)
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{neuralInputName},
		[]string{outputs[0].Name},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create session: %v", ErrUnavailable, err)
	}

	return &NeuralEstimator{
		session:    session,
		outputName: outputs[0].Name,
	}, nil
}

// Name implements Estimator
func (n *NeuralEstimator) Name() string {
	return string(StrategyNeural)
}

// Estimate implements Estimator
func (n *NeuralEstimator) Estimate(w *transcode.Waveform) (float64, error) {
	if w == nil || len(w.Samples) == 0 {
		return 0.0, nil
	}

	if w.SampleRate != neuralSampleRate {
		resampled, err := transcode.Resample(w, neuralSampleRate, 6)
		if err != nil {
			return 0.0, err
		}
		w = resampled
	}

	audio := make([]float32, len(w.Samples))
	for i, v := range w.Samples {
		audio[i] = float32(v)
	}

	input, err := ort.NewTensor(ort.NewShape(1, int64(len(audio))), audio)
	if err != nil {
		return 0.0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}

	n.mu.Lock()
	err = n.session.Run([]ort.Value{input}, outputs)
	n.mu.Unlock()
	if err != nil {
		return 0.0, fmt.Errorf("tempo inference failed: %w", err)
	}
	if outputs[0] == nil {
		return 0.0, fmt.Errorf("tempo output was nil")
	}
	defer outputs[0].Destroy()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return 0.0, fmt.Errorf("unexpected output tensor type")
	}

	return classToBPM(logits.GetData())
}

// Close releases ONNX Runtime resources
func (n *NeuralEstimator) Close() error {
	if n.session != nil {
		return n.session.Destroy()
	}
	return nil
}

func classToBPM(logits []float32) (float64, error) {
	if len(logits) == 0 {
		return 0.0, fmt.Errorf("empty tempo logits")
	}

	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}

	return neuralMinBPM + float64(best), nil
}

// onnxLibPath returns the ONNX Runtime shared library to load, or "" when
// none can be found
func onnxLibPath(override string) string {
	if override != "" {
		return override
	}

	if path := os.Getenv("ONNXRUNTIME_LIB_PATH"); path != "" {
		return path
	}

	candidates := []string{
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"C:\\Program Files\\onnxruntime\\onnxruntime.dll",
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
