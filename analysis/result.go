package analysis

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Result file keys, in output order
const (
	keyFileName    = "uploaded_file_name"
	keyTempo       = "tempo"
	keyOnsets      = "onset_times"
	keyFrequencies = "mean_frequenciesV"
	keyEnergyVocal = "energy_vocals"
	keyEnergyDrums = "energy_drums"

	resultSuffix = "_analysis.txt"
)

// Result is the persisted analysis summary
type Result struct {
	FileName     string    `json:"uploaded_file_name"`
	Tempo        float64   `json:"tempo"`
	OnsetTimes   []float64 `json:"onset_times"`
	Frequencies  []float64 `json:"mean_frequencies_v"`
	EnergyVocals []float64 `json:"energy_vocals"`
	EnergyDrums  []float64 `json:"energy_drums"`
}

// ResultPath returns <dir>/<file name without extension>_analysis.txt
func ResultPath(dir, fileName string) string {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	return filepath.Join(dir, base+resultSuffix)
}

// EncodeResult writes r as six "key: value" lines. Floats are written in
// their shortest round-trip form, lists as [a, b, c].
func EncodeResult(w io.Writer, r *Result) error {
	lines := []string{
		keyFileName + ": " + r.FileName,
		keyTempo + ": " + FormatFloat(r.Tempo),
		keyOnsets + ": " + FormatList(r.OnsetTimes),
		keyFrequencies + ": " + FormatList(r.Frequencies),
		keyEnergyVocal + ": " + FormatList(r.EnergyVocals),
		keyEnergyDrums + ": " + FormatList(r.EnergyDrums),
	}

	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// WriteResult writes r into dir and returns the file path. The file is
// replaced atomically, so a reader never sees a partial result.
func WriteResult(dir string, r *Result) (string, error) {
	path := ResultPath(dir, r.FileName)

	tmp, err := os.CreateTemp(dir, ".analysis-*")
	if err != nil {
		return "", fmt.Errorf("failed to create result file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to create result file: %w", err)
	}

	if err := EncodeResult(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write result: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write result: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to store result: %w", err)
	}

	return path, nil
}

// ParseResult reads a result written by EncodeResult
func ParseResult(r io.Reader) (*Result, error) {
	result := &Result{}
	seen := map[string]bool{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			return nil, fmt.Errorf("malformed result line %q", line)
		}

		var err error
		switch key {
		case keyFileName:
			result.FileName = value
		case keyTempo:
			result.Tempo, err = strconv.ParseFloat(value, 64)
		case keyOnsets:
			result.OnsetTimes, err = ParseList(value)
		case keyFrequencies:
			result.Frequencies, err = ParseList(value)
		case keyEnergyVocal:
			result.EnergyVocals, err = ParseList(value)
		case keyEnergyDrums:
			result.EnergyDrums, err = ParseList(value)
		default:
			return nil, fmt.Errorf("unknown result key %q", key)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		seen[key] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for _, key := range []string{keyFileName, keyTempo, keyOnsets, keyFrequencies, keyEnergyVocal, keyEnergyDrums} {
		if !seen[key] {
			return nil, fmt.Errorf("result is missing %s", key)
		}
	}

	return result, nil
}

// ReadResultFile parses the result file at path
func ReadResultFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseResult(f)
}

// FormatFloat renders v the way the game's loader expects: shortest
// round-trip digits, fixed notation with a trailing ".0" for integral values
// when the decimal exponent is in [-4, 16), exponent notation ("1e-05",
// "1.5e+16") otherwise.
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	sci := strconv.FormatFloat(v, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return sci
	}

	fixed := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(fixed, '.') {
		fixed += ".0"
	}
	return fixed
}

// FormatList renders values as [a, b, c]
func FormatList(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = FormatFloat(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ParseList parses the output of FormatList
func ParseList(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("list %q is not bracketed", s)
	}

	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []float64{}, nil
	}

	parts := strings.Split(body, ",")
	values := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}
