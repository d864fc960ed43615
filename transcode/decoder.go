package transcode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-pulso/logging"
	"github.com/go-audio/riff"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

var (
	// ErrUnsupportedFormat is returned for file extensions the decoder cannot read
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrInvalidWAV is returned when a file is not a readable PCM WAV
	ErrInvalidWAV = errors.New("invalid wav file")
)

// WAV format tags
const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// Waveform is decoded mono audio
type Waveform struct {
	Samples    []float64     `json:"-"`
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"` // channel count of the source before mixdown
	Duration   time.Duration `json:"duration"`
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate"` // 0 keeps the native rate
	ResampleQuality  int           `json:"resample_quality"`   // beep resampler quality, 1..64
	MaxDuration      time.Duration `json:"max_duration"`       // 0 means no limit
}

// DefaultDecoderConfig returns default decoder configuration: native rate, no limit
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 0,
		ResampleQuality:  6,
		MaxDuration:      0,
	}
}

// AnalysisDecoderConfig returns a configuration that resamples to sampleRate
func AnalysisDecoderConfig(sampleRate int) *DecoderConfig {
	config := DefaultDecoderConfig()
	config.TargetSampleRate = sampleRate
	return config
}

// Decoder reads WAV and MP3 files into mono float64 waveforms
type Decoder struct {
	config *DecoderConfig
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config}
}

// DecodeFile decodes an audio file, choosing the codec by extension
func (d *Decoder) DecodeFile(filename string) (*Waveform, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeFile",
		"filename":  filename,
	})

	logger.Debug("Starting audio file decode", d.GetConfig())

	if err := d.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("invalid decoder config: %w", err)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !slices.Contains(d.GetSupportedFormats(), ext) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	var waveform *Waveform
	switch ext {
	case "mp3":
		waveform, err = d.DecodeMP3(f)
	default:
		waveform, err = d.DecodeWAV(f)
	}
	if err != nil {
		logger.Error(err, "Failed to decode audio file")
		return nil, err
	}

	logger.Debug("Audio file decoded", logging.Fields{
		"sample_rate": waveform.SampleRate,
		"channels":    waveform.Channels,
		"samples":     len(waveform.Samples),
		"duration":    waveform.Duration.Seconds(),
	})

	return waveform, nil
}

// DecodeWAV decodes PCM or IEEE float WAV data, including
// WAVE_FORMAT_EXTENSIBLE files. Integer samples are scaled to [-1, 1) by the
// source bit depth and channels are averaged to mono.
func (d *Decoder) DecodeWAV(r io.ReadSeeker) (*Waveform, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}

	format := dec.WavAudioFormat
	if format == wavFormatExtensible {
		sub, err := extensibleSubFormat(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		format = sub
	}

	switch format {
	case wavFormatPCM, wavFormatFloat:
	default:
		return nil, fmt.Errorf("%w: unsupported format tag %d", ErrInvalidWAV, format)
	}

	// header parsing above consumed the reader
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind wav data: %w", err)
	}
	dec = wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}

	if format == wavFormatFloat {
		return d.decodeFloatWAV(dec)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, ErrInvalidWAV
	}

	bitDepth := int(dec.BitDepth)
	if buf.SourceBitDepth > 0 {
		bitDepth = buf.SourceBitDepth
	}
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, bitDepth)
	}

	// FullPCMBuffer reads to EOF, past any chunks trailing the data chunk
	bytesPerSample := (bitDepth-1)/8 + 1
	if limit := int(dec.PCMLen()) / bytesPerSample; len(buf.Data) > limit {
		buf.Data = buf.Data[:limit]
	}

	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	samples := make([]float64, frames)

	scale := float64(int64(1) << (bitDepth - 1))
	for i := range frames {
		sum := 0.0
		for c := range channels {
			v := buf.Data[i*channels+c]
			if bitDepth == 8 {
				// 8-bit WAV is unsigned
				v -= 128
			}
			sum += float64(v)
		}
		samples[i] = sum / float64(channels) / scale
	}

	return d.finish(samples, buf.Format.SampleRate, channels)
}

// decodeFloatWAV reads 32 or 64-bit little-endian float samples straight from
// the data chunk, since go-audio's PCM buffers only carry integers
func (d *Decoder) decodeFloatWAV(dec *wav.Decoder) (*Waveform, error) {
	channels := int(dec.NumChans)
	bytesPerSample := int(dec.BitDepth) / 8
	if channels < 1 || (bytesPerSample != 4 && bytesPerSample != 8) {
		return nil, fmt.Errorf("%w: unsupported float layout (%d channels, %d bits)", ErrInvalidWAV, channels, dec.BitDepth)
	}

	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to find PCM data: %w", err)
	}

	// the chunk reader is not bounded by the chunk size
	data, err := io.ReadAll(io.LimitReader(dec.PCMChunk, dec.PCMLen()))
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}

	frameSize := channels * bytesPerSample
	frames := len(data) / frameSize
	samples := make([]float64, frames)

	for i := range frames {
		sum := 0.0
		for c := range channels {
			offset := i*frameSize + c*bytesPerSample
			if bytesPerSample == 4 {
				sum += float64(math.Float32frombits(binary.LittleEndian.Uint32(data[offset:])))
			} else {
				sum += math.Float64frombits(binary.LittleEndian.Uint64(data[offset:]))
			}
		}
		samples[i] = sum / float64(channels)
	}

	return d.finish(samples, int(dec.SampleRate), channels)
}

// extensibleSubFormat returns the format tag held in the first two bytes of
// a WAVE_FORMAT_EXTENSIBLE sub-format GUID
func extensibleSubFormat(r io.ReadSeeker) (uint16, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	parser := riff.New(r)
	if err := parser.ParseHeaders(); err != nil {
		return 0, err
	}

	for {
		chunk, err := parser.NextChunk()
		if err != nil {
			return 0, fmt.Errorf("fmt chunk not found: %w", err)
		}

		if chunk.ID != riff.FmtID {
			chunk.Drain()
			continue
		}

		// cbSize, valid bits and channel mask precede the GUID
		const subFormatOffset = 24
		fmtData := make([]byte, chunk.Size)
		if _, err := io.ReadFull(chunk, fmtData); err != nil {
			return 0, err
		}
		if len(fmtData) < subFormatOffset+2 {
			return 0, fmt.Errorf("extensible fmt chunk too short: %d bytes", len(fmtData))
		}
		return binary.LittleEndian.Uint16(fmtData[subFormatOffset:]), nil
	}
}

// DecodeMP3 decodes MP3 data. go-mp3 always yields 16-bit little-endian
// stereo, which is averaged to mono.
func (d *Decoder) DecodeMP3(r io.Reader) (*Waveform, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open mp3 stream: %w", err)
	}

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode mp3 stream: %w", err)
	}

	const bytesPerFrame = 4
	frames := len(data) / bytesPerFrame
	samples := make([]float64, frames)
	for i := range frames {
		left := int16(binary.LittleEndian.Uint16(data[i*bytesPerFrame:]))
		right := int16(binary.LittleEndian.Uint16(data[i*bytesPerFrame+2:]))
		samples[i] = (float64(left) + float64(right)) / 2 / 32768.0
	}

	return d.finish(samples, dec.SampleRate(), 2)
}

// finish applies the duration limit and target rate
func (d *Decoder) finish(samples []float64, sampleRate, channels int) (*Waveform, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidWAV, sampleRate)
	}

	if d.config.MaxDuration > 0 {
		limit := int(d.config.MaxDuration.Seconds() * float64(sampleRate))
		if len(samples) > limit {
			samples = samples[:limit]
		}
	}

	waveform := &Waveform{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
		Duration:   samplesDuration(len(samples), sampleRate),
	}

	if d.config.TargetSampleRate > 0 && d.config.TargetSampleRate != sampleRate {
		resampled, err := Resample(waveform, d.config.TargetSampleRate, d.config.ResampleQuality)
		if err != nil {
			return nil, err
		}
		resampled.Channels = channels
		return resampled, nil
	}

	return waveform, nil
}

// GetConfig returns decoder configuration as log fields
func (d *Decoder) GetConfig() logging.Fields {
	return logging.Fields{
		"target_sample_rate": d.config.TargetSampleRate,
		"resample_quality":   d.config.ResampleQuality,
		"max_duration":       d.config.MaxDuration,
	}
}

// ValidateConfig validates the decoder configuration
func (d *Decoder) ValidateConfig() error {
	if d.config.TargetSampleRate < 0 {
		return fmt.Errorf("target sample rate must not be negative: %d", d.config.TargetSampleRate)
	}

	if d.config.ResampleQuality < 1 || d.config.ResampleQuality > 64 {
		return fmt.Errorf("resample quality must be between 1 and 64: %d", d.config.ResampleQuality)
	}

	if d.config.MaxDuration < 0 {
		return fmt.Errorf("max duration must not be negative: %v", d.config.MaxDuration)
	}

	return nil
}

// GetSupportedFormats returns the file extensions (without dot) this decoder reads
func (d *Decoder) GetSupportedFormats() []string {
	return []string{"wav", "mp3"}
}

// LoadFile decodes filename at sampleRate (0 keeps the native rate)
func LoadFile(filename string, sampleRate int) (*Waveform, error) {
	return NewDecoder(AnalysisDecoderConfig(sampleRate)).DecodeFile(filename)
}

func samplesDuration(n, sampleRate int) time.Duration {
	return time.Duration(float64(n) / float64(sampleRate) * float64(time.Second))
}
