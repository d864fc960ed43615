// Package ingest validates an input recording and stages it for analysis
package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/RyanBlaney/sonido-pulso/logging"
	"github.com/RyanBlaney/sonido-pulso/transcode"
)

var (
	// ErrUnsupportedFormat is returned for anything other than .wav or .mp3
	ErrUnsupportedFormat = transcode.ErrUnsupportedFormat

	// ErrNotFound is returned when the input path is not a regular file
	ErrNotFound = errors.New("audio file not found")

	// ErrNoInput is returned when no input path was given
	ErrNoInput = errors.New("no input file selected")
)

// SupportedExtensions lists accepted input extensions (lower case)
var SupportedExtensions = []string{".wav", ".mp3"}

// Dirs is the on-disk layout used by a run
type Dirs struct {
	Base      string `json:"base" mapstructure:"base"`
	Uploads   string `json:"uploads" mapstructure:"uploads"`
	Results   string `json:"results" mapstructure:"results"`
	Separated string `json:"separated" mapstructure:"separated"`
}

// DefaultDirs lays out the working directories under base
func DefaultDirs(base string) Dirs {
	return Dirs{
		Base:      base,
		Uploads:   filepath.Join(base, "uploaded_audio"),
		Results:   filepath.Join(base, "analysis_results"),
		Separated: filepath.Join(base, "separated"),
	}
}

// DefaultBaseDir returns ~/AudioAnalysisData, or a relative directory of the
// same name when the home directory is unknown
func DefaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "AudioAnalysisData"
	}
	return filepath.Join(home, "AudioAnalysisData")
}

// Ensure creates every directory of the layout
func (d Dirs) Ensure() error {
	for _, dir := range []string{d.Base, d.Uploads, d.Results, d.Separated} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// RunContext is the per-run state of one analysis
type RunContext struct {
	SourcePath  string `json:"source_path"`  // path the user supplied
	DisplayName string `json:"display_name"` // base name of the source, with extension
	OriginalExt string `json:"original_ext"` // lower-cased extension including the dot
	WorkingPath string `json:"working_path"` // WAV file the analysis reads
}

// BaseName returns the display name without its extension
func (rc *RunContext) BaseName() string {
	return strings.TrimSuffix(rc.DisplayName, filepath.Ext(rc.DisplayName))
}

// CheckExtension returns the lower-cased extension of path, or
// ErrUnsupportedFormat
func CheckExtension(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(SupportedExtensions, ext) {
		return ext, fmt.Errorf("%w: %q (only WAV and MP3 files are allowed)", ErrUnsupportedFormat, filepath.Ext(path))
	}
	return ext, nil
}

// Ingestor copies inputs into the uploads directory
type Ingestor struct {
	dirs Dirs
}

// NewIngestor creates a new ingestor for the given layout
func NewIngestor(dirs Dirs) *Ingestor {
	return &Ingestor{dirs: dirs}
}

// Acquire validates path, copies it into the uploads directory and, for MP3
// input, converts the copy to WAV. Nothing is written when validation fails.
func (i *Ingestor) Acquire(path string) (*RunContext, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "ingest",
		"function":  "Acquire",
		"path":      path,
	})

	if path == "" {
		return nil, ErrNoInput
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	ext, err := CheckExtension(path)
	if err != nil {
		return nil, err
	}

	logger.Debug("Detected file extension", logging.Fields{"extension": ext})

	if err := i.dirs.Ensure(); err != nil {
		return nil, err
	}

	name := filepath.Base(path)
	destination := filepath.Join(i.dirs.Uploads, name)
	if err := copyFile(path, destination); err != nil {
		return nil, fmt.Errorf("failed to copy input: %w", err)
	}

	logger.Info("File copied", logging.Fields{"destination": destination})

	rc := &RunContext{
		SourcePath:  path,
		DisplayName: name,
		OriginalExt: ext,
		WorkingPath: destination,
	}

	if ext == ".mp3" {
		wavPath, err := transcode.ConvertToWAV(destination)
		if err != nil {
			return nil, fmt.Errorf("failed to convert MP3 to WAV: %w", err)
		}
		rc.WorkingPath = wavPath
	}

	return rc, nil
}

// copyFile copies src to dst, leaving dst alone when both name the same file
func copyFile(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if dstInfo, err := os.Stat(dst); err == nil && os.SameFile(srcInfo, dstInfo) {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}
