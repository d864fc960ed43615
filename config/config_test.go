package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-pulso/logging"
	"github.com/RyanBlaney/sonido-pulso/separation"
	"github.com/RyanBlaney/sonido-pulso/tempo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, tempo.StrategyAuto, cfg.Tempo.Strategy)
	assert.Equal(t, separation.EngineAuto, cfg.Separation.Engine)
	assert.Equal(t, "htdemucs", cfg.Separation.Model)
	assert.Equal(t, 22050, cfg.Analysis.AnalysisRate)
	assert.False(t, cfg.Analysis.Parallel)
	assert.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	base := t.TempDir()
	t.Setenv("PULSO_DIRECTORIES_BASE", base)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, base, cfg.Directories.Base)
	assert.Equal(t, filepath.Join(base, "uploaded_audio"), cfg.Directories.Uploads)
	assert.Equal(t, filepath.Join(base, "analysis_results"), cfg.Directories.Results)
	assert.Equal(t, filepath.Join(base, "separated"), cfg.Directories.Separated)
	assert.Equal(t, cfg.Directories.Separated, cfg.Separation.OutputDir)
	assert.Equal(t, tempo.StrategyAuto, cfg.Tempo.Strategy)
	assert.Equal(t, logging.InfoLevel, cfg.LogLevel())
	assert.True(t, cfg.Progress)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("PULSO_DIRECTORIES_BASE", t.TempDir())
	t.Setenv("PULSO_LOG_LEVEL", "debug")
	t.Setenv("PULSO_TEMPO_STRATEGY", "signal")
	t.Setenv("PULSO_SEPARATION_ENGINE", "none")
	t.Setenv("PULSO_ANALYSIS_PARALLEL", "true")
	t.Setenv("PULSO_ANALYSIS_ANALYSIS_RATE", "16000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, logging.DebugLevel, cfg.LogLevel())
	assert.Equal(t, tempo.StrategySignal, cfg.Tempo.Strategy)
	assert.Equal(t, separation.EngineNone, cfg.Separation.Engine)
	assert.True(t, cfg.Analysis.Parallel)
	assert.Equal(t, 16000, cfg.Analysis.AnalysisRate)
}

func TestLoadFile(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(t.TempDir(), "custom.yaml")
	content := "directories:\n" +
		"  base: " + base + "\n" +
		"  results: " + filepath.Join(base, "out") + "\n" +
		"tempo:\n" +
		"  strategy: neural\n" +
		"  model_path: /opt/models/tempo.onnx\n" +
		"separation:\n" +
		"  engine: demucs\n" +
		"  model: mdx_extra\n" +
		"  timeout: 5m\n" +
		"progress: false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "out"), cfg.Directories.Results)
	assert.Equal(t, filepath.Join(base, "uploaded_audio"), cfg.Directories.Uploads)
	assert.Equal(t, tempo.StrategyNeural, cfg.Tempo.Strategy)
	assert.Equal(t, "/opt/models/tempo.onnx", cfg.Tempo.ModelPath)
	assert.Equal(t, separation.EngineDemucs, cfg.Separation.Engine)
	assert.Equal(t, "mdx_extra", cfg.Separation.Model)
	assert.Equal(t, 5*time.Minute, cfg.Separation.Timeout)
	assert.False(t, cfg.Progress)
}

func TestLoadFindsFileInBaseDir(t *testing.T) {
	base := t.TempDir()
	t.Setenv("PULSO_DIRECTORIES_BASE", base)
	require.NoError(t, os.WriteFile(filepath.Join(base, "pulso.yaml"), []byte("log:\n  level: warn\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, logging.WarnLevel, cfg.LogLevel())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tempo.Strategy = "guess"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Separation.Engine = "spleeter"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Log.Level = "loud"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Analysis.AnalysisRate = 0
	assert.Error(t, cfg.Validate())
}
