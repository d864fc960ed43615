// Command pulso analyses a song for the rhythm game: tempo, drum onsets,
// per-beat vocal frequency and per-beat stem energy.
//
// Usage:
//
//	pulso [flags ignored] <song.wav|song.mp3>
//
// With a file argument the result path is printed alone on stdout. Without
// one the user is prompted for a path.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/RyanBlaney/sonido-pulso/analysis"
	"github.com/RyanBlaney/sonido-pulso/config"
	"github.com/RyanBlaney/sonido-pulso/ingest"
	"github.com/RyanBlaney/sonido-pulso/logging"
	"github.com/RyanBlaney/sonido-pulso/separation"
	"github.com/RyanBlaney/sonido-pulso/tempo"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// configEnv names an explicit config file
const configEnv = "PULSO_CONFIG"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.Load(os.Getenv(configEnv))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if stderr == io.Writer(os.Stderr) {
		logging.SetGlobalLogger(logging.NewDefaultLogger())
	} else {
		logging.SetGlobalLogger(logging.NewWriterLogger(stderr, cfg.LogLevel()))
	}
	logging.SetLevel(cfg.LogLevel())

	logger := logging.WithFields(logging.Fields{
		"component": "cli",
		"function":  "run",
	})

	if err := cfg.Directories.Ensure(); err != nil {
		logger.Error(err, "Failed to create data directories")
		return 1
	}

	input, skipped := selectInput(args)
	for _, arg := range skipped {
		logger.Debug("Skipping argument", logging.Fields{"argument": arg})
	}

	pipeline, closer, err := buildPipeline(cfg)
	if err != nil {
		logger.Error(err, "Failed to initialize analysis")
		return 1
	}
	defer closer()

	if input != "" {
		return runHeadless(ctx, pipeline, input, stdout, logger)
	}
	return runInteractive(ctx, pipeline, cfg.Progress, stdin, stdout, stderr, logger)
}

// selectInput returns the first argument naming an existing regular file,
// and every argument before it that was passed over. Arguments starting with
// "-" are never inputs, even when a file of that name exists.
func selectInput(args []string) (string, []string) {
	var skipped []string
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			skipped = append(skipped, arg)
			continue
		}
		if info, err := os.Stat(arg); err == nil && info.Mode().IsRegular() {
			return arg, skipped
		}
		skipped = append(skipped, arg)
	}
	return "", skipped
}

func buildPipeline(cfg *config.Config) (*analysis.Pipeline, func(), error) {
	estimator, err := tempo.Select(cfg.Tempo)
	if err != nil {
		return nil, nil, fmt.Errorf("tempo estimator: %w", err)
	}

	closer := func() {}
	if c, ok := estimator.(io.Closer); ok {
		closer = func() { c.Close() }
	}

	separator, err := separation.Select(cfg.Separation)
	if err != nil {
		closer()
		return nil, nil, fmt.Errorf("source separator: %w", err)
	}

	analysisConfig := cfg.Analysis
	return analysis.NewPipeline(&analysisConfig, cfg.Directories, estimator, separator), closer, nil
}

func runHeadless(ctx context.Context, pipeline *analysis.Pipeline, input string, stdout io.Writer, logger logging.Logger) int {
	outputPath, err := pipeline.AnalyzeFile(ctx, input)
	if err != nil {
		logger.Error(err, "Analysis failed", logging.Fields{"input": input})
		return 1
	}

	fmt.Fprintln(stdout, outputPath)
	return 0
}

func runInteractive(ctx context.Context, pipeline *analysis.Pipeline, progress bool, stdin io.Reader, stdout, stderr io.Writer, logger logging.Logger) int {
	fmt.Fprint(stdout, "Enter the path to a WAV or MP3 file: ")

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		logger.Error(err, "Failed to read input path")
		return 1
	}

	input := strings.Trim(strings.TrimSpace(line), `"'`)
	if input == "" {
		fmt.Fprintf(stdout, "Error: %v\n", ingest.ErrNoInput)
		return 1
	}

	var (
		p   *mpb.Progress
		bar *mpb.Bar
	)
	if progress {
		p = mpb.New(mpb.WithOutput(stderr), mpb.WithWidth(64))
		bar = p.AddBar(int64(len(analysis.Stages)),
			mpb.PrependDecorators(
				decor.Name("Analyzing: "),
				decor.CountersNoUnit("%d / %d"),
			),
			mpb.AppendDecorators(
				decor.Percentage(),
				decor.Elapsed(decor.ET_STYLE_GO),
			),
		)
		pipeline.OnStage(func(analysis.Stage, analysis.Outcome) {
			bar.Increment()
		})
	}

	outputPath, err := pipeline.AnalyzeFile(ctx, input)

	if p != nil {
		if err != nil {
			bar.Abort(false)
		}
		p.Wait()
	}

	if err != nil {
		fmt.Fprintf(stdout, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Analysis complete. Results saved to: %s\n", outputPath)
	return 0
}
