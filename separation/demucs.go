package separation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/RyanBlaney/sonido-pulso/logging"
)

// DemucsSeparator runs the demucs command line tool
type DemucsSeparator struct {
	config     Config
	binaryPath string
}

// NewDemucsSeparator resolves the demucs binary. A binary that cannot be
// found is reported as ErrUnavailable.
func NewDemucsSeparator(cfg Config) (*DemucsSeparator, error) {
	defaults := DefaultConfig()
	if cfg.Binary == "" {
		cfg.Binary = defaults.Binary
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}

	binaryPath, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &DemucsSeparator{
		config:     cfg,
		binaryPath: binaryPath,
	}, nil
}

// Name implements Separator
func (d *DemucsSeparator) Name() string {
	return string(EngineDemucs)
}

// StemDir returns where demucs writes the stems of path:
// <output>/<model>/<base name without extension>
func (d *DemucsSeparator) StemDir(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(d.outputDir(path), d.config.Model, base)
}

// Separate implements Separator. It runs
// `demucs -o <output> -n <model> <path>` and returns the vocals.wav and
// drums.wav it produced.
func (d *DemucsSeparator) Separate(ctx context.Context, path string) (Stems, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "separation",
		"function":  "Separate",
		"path":      path,
	})

	if _, err := os.Stat(path); err != nil {
		return Stems{}, fmt.Errorf("audio file not found: %w", err)
	}

	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	args := []string{"-o", d.outputDir(path), "-n", d.config.Model, path}
	cmd := exec.CommandContext(ctx, d.binaryPath, args...)

	logger.Info("Starting source separation", logging.Fields{
		"args": strings.Join(args, " "),
	})

	if output, err := cmd.CombinedOutput(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.Error(err, "Demucs separation failed", logging.Fields{
				"output": lastLines(string(output), 5),
			})
		}
		return Stems{}, fmt.Errorf("demucs failed: %w", err)
	}

	dir := d.StemDir(path)
	stems := Stems{
		Vocals: filepath.Join(dir, "vocals.wav"),
		Drums:  filepath.Join(dir, "drums.wav"),
	}

	for _, stem := range []string{stems.Vocals, stems.Drums} {
		if _, err := os.Stat(stem); err != nil {
			return Stems{}, fmt.Errorf("demucs did not produce %s: %w", filepath.Base(stem), err)
		}
	}

	logger.Info("Source separation complete", logging.Fields{
		"vocals": stems.Vocals,
		"drums":  stems.Drums,
	})

	return stems, nil
}

func (d *DemucsSeparator) outputDir(path string) string {
	if d.config.OutputDir != "" {
		return d.config.OutputDir
	}
	return filepath.Join(filepath.Dir(path), "separated")
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
