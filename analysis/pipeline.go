// Package analysis runs the beat-synchronized feature pipeline and persists
// its result
package analysis

import (
	"context"
	"fmt"
	"sync"

	"github.com/RyanBlaney/sonido-pulso/algorithms/common"
	"github.com/RyanBlaney/sonido-pulso/algorithms/spectral"
	"github.com/RyanBlaney/sonido-pulso/algorithms/temporal"
	"github.com/RyanBlaney/sonido-pulso/ingest"
	"github.com/RyanBlaney/sonido-pulso/logging"
	"github.com/RyanBlaney/sonido-pulso/separation"
	"github.com/RyanBlaney/sonido-pulso/tempo"
	"github.com/RyanBlaney/sonido-pulso/transcode"
)

// DefaultAnalysisRate is the rate tempo and onset analysis run at
const DefaultAnalysisRate = 22050

// PipelineConfig holds pipeline configuration
type PipelineConfig struct {
	AnalysisRate int  `json:"analysis_rate" mapstructure:"analysis_rate"`
	Parallel     bool `json:"parallel" mapstructure:"parallel"`
}

// DefaultPipelineConfig returns the default sequential configuration
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		AnalysisRate: DefaultAnalysisRate,
		Parallel:     false,
	}
}

// Pipeline analyses one recording per call. It holds no per-run state, so a
// single Pipeline may serve several runs.
type Pipeline struct {
	config    *PipelineConfig
	dirs      ingest.Dirs
	ingestor  *ingest.Ingestor
	estimator tempo.Estimator
	separator separation.Separator
	onStage   func(Stage, Outcome)
}

// Report describes a finished run
type Report struct {
	Run        *ingest.RunContext
	Result     *Result
	Outcomes   map[Stage]Outcome
	OutputPath string

	mu sync.Mutex
}

// NewPipeline creates a pipeline with the resolved collaborators
func NewPipeline(config *PipelineConfig, dirs ingest.Dirs, estimator tempo.Estimator, separator separation.Separator) *Pipeline {
	if config == nil {
		config = DefaultPipelineConfig()
	}
	if config.AnalysisRate <= 0 {
		config.AnalysisRate = DefaultAnalysisRate
	}
	if separator == nil {
		separator = separation.NewIdentitySeparator()
	}
	if estimator == nil {
		estimator = tempo.NewSignalEstimator()
	}

	return &Pipeline{
		config:    config,
		dirs:      dirs,
		ingestor:  ingest.NewIngestor(dirs),
		estimator: estimator,
		separator: separator,
	}
}

// OnStage registers fn to be called as each stage finishes. In parallel mode
// fn is called from several goroutines.
func (p *Pipeline) OnStage(fn func(Stage, Outcome)) {
	p.onStage = fn
}

// AnalyzeFile runs the pipeline on path and returns the result file path
func (p *Pipeline) AnalyzeFile(ctx context.Context, path string) (string, error) {
	report, err := p.Run(ctx, path)
	if err != nil {
		return "", err
	}
	return report.OutputPath, nil
}

// Run executes every stage. Acquisition, decoding of the input and writing
// the result are fatal; every other stage degrades to an empty (or zero)
// value and the run continues.
func (p *Pipeline) Run(ctx context.Context, path string) (*Report, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "pipeline",
		"function":  "Run",
		"path":      path,
	})

	rc, err := p.ingestor.Acquire(path)
	if err != nil {
		logger.Error(err, "Failed to process audio file")
		return nil, fmt.Errorf("acquire input: %w", err)
	}

	ctx = logging.ContextWithFields(ctx, logging.Fields{"file": rc.DisplayName})
	logger = logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "pipeline",
		"function":  "Run",
		"path":      path,
	})
	logger.Info("Starting analysis", logging.Fields{"working_path": rc.WorkingPath})

	report := &Report{Run: rc, Outcomes: make(map[Stage]Outcome)}

	mix, err := transcode.LoadFile(rc.WorkingPath, p.config.AnalysisRate)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", rc.DisplayName, err)
	}
	p.record(report, StageLoad, Succeeded(nil))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tempoOutcome := p.estimateTempo(mix, logger)
	p.record(report, StageTempo, tempoOutcome)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stems, separationOutcome := p.separate(ctx, rc, logger)
	p.record(report, StageSeparation, separationOutcome)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputs := p.loadStems(stems, rc, mix)

	tasks := []stageTask{
		{StageOnsets, func() Outcome { return p.detectOnsets(inputs.drumsAnalysis) }},
		{StageFrequencies, func() Outcome { return p.frequencies(inputs.vocals) }},
		{StageEnergyVocals, func() Outcome { return p.energy(inputs.vocals) }},
		{StageEnergyDrums, func() Outcome { return p.energy(inputs.drums) }},
	}
	p.runTasks(ctx, report, tasks)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, task := range tasks {
		if o := report.Outcomes[task.stage]; o.Degraded {
			logger.Warn("Stage degraded", logging.Fields{"stage": string(task.stage), "reason": o.Reason})
		}
	}

	result := &Result{
		FileName:     rc.DisplayName,
		Tempo:        tempoOutcome.Scalar(),
		OnsetTimes:   report.Outcomes[StageOnsets].Values,
		Frequencies:  report.Outcomes[StageFrequencies].Values,
		EnergyVocals: report.Outcomes[StageEnergyVocals].Values,
		EnergyDrums:  report.Outcomes[StageEnergyDrums].Values,
	}

	logger.Info(fmt.Sprintf("Detected %d onsets", len(result.OnsetTimes)))
	logger.Info(fmt.Sprintf("Analyzed %d frequency segments", len(result.Frequencies)))
	logger.Info(fmt.Sprintf("Analyzed %d vocal energy points and %d drum energy points",
		len(result.EnergyVocals), len(result.EnergyDrums)))

	outputPath, err := WriteResult(p.dirs.Results, result)
	if err != nil {
		logger.Error(err, "Failed to write analysis result")
		return nil, err
	}
	p.record(report, StageWrite, Succeeded(nil))

	report.Result = result
	report.OutputPath = outputPath

	logger.Info("Analysis complete", logging.Fields{"output": outputPath})

	return report, nil
}

type stageTask struct {
	stage Stage
	run   func() Outcome
}

// runTasks runs the independent feature stages, concurrently when configured.
// Each task writes only its own stage's outcome.
func (p *Pipeline) runTasks(ctx context.Context, report *Report, tasks []stageTask) {
	exec := func(task stageTask) {
		if err := ctx.Err(); err != nil {
			p.record(report, task.stage, Degraded(err))
			return
		}
		p.record(report, task.stage, task.run())
	}

	if !p.config.Parallel {
		for _, task := range tasks {
			exec(task)
		}
		return
	}

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task stageTask) {
			defer wg.Done()
			exec(task)
		}(task)
	}
	wg.Wait()
}

func (p *Pipeline) record(report *Report, stage Stage, outcome Outcome) {
	report.mu.Lock()
	report.Outcomes[stage] = outcome
	report.mu.Unlock()

	if p.onStage != nil {
		p.onStage(stage, outcome)
	}
}

func (p *Pipeline) estimateTempo(mix *transcode.Waveform, logger logging.Logger) Outcome {
	bpm, err := p.estimator.Estimate(mix)
	if err != nil {
		logger.Error(err, "Tempo estimation failed, using 0", logging.Fields{"estimator": p.estimator.Name()})
		return Degraded(err)
	}

	logger.Info("Detected tempo", logging.Fields{"bpm": bpm, "estimator": p.estimator.Name()})
	return Succeeded([]float64{bpm})
}

func (p *Pipeline) separate(ctx context.Context, rc *ingest.RunContext, logger logging.Logger) (separation.Stems, Outcome) {
	stems, err := p.separator.Separate(ctx, rc.WorkingPath)
	if err != nil {
		logger.Error(err, "Source separation failed, using the original file for both stems")
		return separation.Identity(rc.WorkingPath), Degraded(err)
	}
	return stems, Succeeded(nil)
}

// stemInputs are the decoded stems. A nil waveform carries its load error.
type stemInputs struct {
	vocals        loaded
	drums         loaded
	drumsAnalysis loaded
}

type loaded struct {
	waveform *transcode.Waveform
	err      error
}

func (p *Pipeline) loadStems(stems separation.Stems, rc *ingest.RunContext, mix *transcode.Waveform) stemInputs {
	load := func(path string, rate int) loaded {
		w, err := transcode.LoadFile(path, rate)
		return loaded{waveform: w, err: err}
	}

	var in stemInputs
	in.vocals = load(stems.Vocals, 0)

	if stems.Drums == stems.Vocals {
		in.drums = in.vocals
	} else {
		in.drums = load(stems.Drums, 0)
	}

	if stems.Drums == rc.WorkingPath {
		in.drumsAnalysis = loaded{waveform: mix}
	} else {
		in.drumsAnalysis = load(stems.Drums, p.config.AnalysisRate)
	}

	return in
}

func (p *Pipeline) detectOnsets(drums loaded) Outcome {
	if drums.err != nil {
		return Degraded(drums.err)
	}

	onsets, err := temporal.DetectOnsets(drums.waveform.Samples, drums.waveform.SampleRate)
	if err != nil {
		return Degraded(err)
	}
	return Succeeded(onsets)
}

// frequencies detects beats on the normalized vocals and measures the
// dominant frequency of the raw vocals between consecutive beats
func (p *Pipeline) frequencies(vocals loaded) Outcome {
	if vocals.err != nil {
		return Degraded(vocals.err)
	}

	w := vocals.waveform
	_, beats, err := temporal.DetectBeats(common.PeakNormalize(w.Samples), w.SampleRate)
	if err != nil {
		return Degraded(err)
	}

	return Succeeded(spectral.DominantFrequencies(w.Samples, w.SampleRate, beats))
}

func (p *Pipeline) energy(stem loaded) Outcome {
	if stem.err != nil {
		return Degraded(stem.err)
	}

	energies, err := temporal.EnergyAtBeats(stem.waveform.Samples, stem.waveform.SampleRate)
	if err != nil {
		return Degraded(err)
	}
	return Succeeded(energies)
}
