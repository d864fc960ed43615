package transcode

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/RyanBlaney/sonido-pulso/logging"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth   = 16
	wavPCMFormat  = 1
	wavMonoLayout = 1
)

// EncodeWAV writes w as mono 16-bit PCM. Samples are clipped to [-1, 1].
func EncodeWAV(out io.WriteSeeker, w *Waveform) error {
	if w == nil || w.SampleRate <= 0 {
		return fmt.Errorf("cannot encode waveform without a sample rate")
	}

	enc := wav.NewEncoder(out, w.SampleRate, wavBitDepth, wavMonoLayout, wavPCMFormat)

	data := make([]int, len(w.Samples))
	for i, v := range w.Samples {
		v = math.Max(-1, math.Min(1, v))
		data[i] = int(math.Round(v * math.MaxInt16))
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: wavMonoLayout,
			SampleRate:  w.SampleRate,
		},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write wav data: %w", err)
	}

	return enc.Close()
}

// WriteWAVFile encodes w into a new file at path
func WriteWAVFile(path string, w *Waveform) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}

	if err := EncodeWAV(f, w); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// ConvertToWAV decodes src at its native rate and writes it next to itself
// as a mono 16-bit WAV with the same base name. It returns the WAV path.
func ConvertToWAV(src string) (string, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_transcoder",
		"function":  "ConvertToWAV",
		"source":    src,
	})

	waveform, err := NewDecoder(DefaultDecoderConfig()).DecodeFile(src)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", filepath.Base(src), err)
	}

	dst := src[:len(src)-len(filepath.Ext(src))] + ".wav"
	if err := WriteWAVFile(dst, waveform); err != nil {
		return "", err
	}

	logger.Info("Converted audio to WAV", logging.Fields{
		"destination": dst,
		"sample_rate": waveform.SampleRate,
		"duration":    waveform.Duration.Seconds(),
	})

	return dst, nil
}
