package transcode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/RyanBlaney/sonido-pulso/algorithms/spectral"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineWaveform(freq float64, sampleRate int, seconds float64) *Waveform {
	samples := make([]float64, int(seconds*float64(sampleRate)))
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return &Waveform{Samples: samples, SampleRate: sampleRate, Channels: 1}
}

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	original := sineWaveform(440, 8000, 0.5)
	require.NoError(t, WriteWAVFile(path, original))

	decoded, err := NewDecoder(nil).DecodeFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8000, decoded.SampleRate)
	assert.Equal(t, 1, decoded.Channels)
	require.Len(t, decoded.Samples, len(original.Samples))
	for i := range original.Samples {
		assert.InDelta(t, original.Samples[i], decoded.Samples[i], 1.0/16384)
	}
	assert.InDelta(t, 0.5, decoded.Duration.Seconds(), 1e-6)
}

func TestDecodeStereoMixesToMono(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, 16000, 16, 2, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 16000},
		Data:           []int{1000, 3000, -2000, 0, 0, 0, 16384, 16384},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	decoded, err := NewDecoder(nil).DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, decoded.Channels)
	assert.Equal(t, []float64{2000.0 / 32768, -1000.0 / 32768, 0, 0.5}, decoded.Samples)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.wav")
	require.NoError(t, os.WriteFile(bad, []byte("definitely not a riff header"), 0o644))
	_, err := NewDecoder(nil).DecodeFile(bad)
	assert.True(t, errors.Is(err, ErrInvalidWAV), "got %v", err)

	other := filepath.Join(dir, "notes.xyz")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	_, err = NewDecoder(nil).DecodeFile(other)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat), "got %v", err)

	_, err = ConvertToWAV(filepath.Join(dir, "missing.mp3"))
	assert.Error(t, err)
}

func TestDecodeFileExtensionIsCaseInsensitive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LOUD.WAV")
	require.NoError(t, WriteWAVFile(path, sineWaveform(220, 8000, 0.1)))

	decoded, err := NewDecoder(nil).DecodeFile(path)
	require.NoError(t, err)
	assert.Len(t, decoded.Samples, 800)
}

func TestResampleKeepsPitch(t *testing.T) {
	src := sineWaveform(440, 44100, 1)
	before := make([]float64, len(src.Samples))
	copy(before, src.Samples)

	out, err := Resample(src, 22050, 6)
	require.NoError(t, err)

	assert.Equal(t, 22050, out.SampleRate)
	assert.InDelta(t, 22050, len(out.Samples), 64)
	assert.Equal(t, before, src.Samples, "input must not be modified")

	freq := spectral.NewDominantFrequency().Compute(out.Samples[5000:15000], out.SampleRate)
	assert.InDelta(t, 440.0, freq, 3.0)
}

func TestResampleSameRateCopies(t *testing.T) {
	src := sineWaveform(100, 8000, 0.1)
	out, err := Resample(src, 8000, 6)
	require.NoError(t, err)
	assert.Equal(t, src.Samples, out.Samples)

	out.Samples[0] = 42
	assert.NotEqual(t, 42.0, src.Samples[0])

	_, err = Resample(src, 0, 6)
	assert.Error(t, err)
}

func TestLoadFileResamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	require.NoError(t, WriteWAVFile(path, sineWaveform(440, 44100, 1)))

	w, err := LoadFile(path, 22050)
	require.NoError(t, err)
	assert.Equal(t, 22050, w.SampleRate)
	assert.InDelta(t, 22050, len(w.Samples), 64)
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, NewDecoder(nil).ValidateConfig())
	assert.Error(t, NewDecoder(&DecoderConfig{ResampleQuality: 0}).ValidateConfig())
	assert.Error(t, NewDecoder(&DecoderConfig{TargetSampleRate: -1, ResampleQuality: 6}).ValidateConfig())
}

type wavSpec struct {
	formatTag  uint16 // 1 PCM, 3 float
	extensible bool
	channels   int
	sampleRate int
	bits       int
	trailer    bool // append a LIST chunk after the data
}

// buildWAV lays out a RIFF/WAVE file by hand so formats the encoder cannot
// produce (IEEE float, WAVE_FORMAT_EXTENSIBLE) can be decoded
func buildWAV(t *testing.T, spec wavSpec, interleaved []float64) []byte {
	t.Helper()

	le := binary.LittleEndian
	bytesPerSample := spec.bits / 8

	var data bytes.Buffer
	for _, v := range interleaved {
		switch {
		case spec.formatTag == 3 && spec.bits == 32:
			require.NoError(t, binary.Write(&data, le, float32(v)))
		case spec.formatTag == 3 && spec.bits == 64:
			require.NoError(t, binary.Write(&data, le, v))
		case spec.formatTag == 1 && spec.bits == 16:
			require.NoError(t, binary.Write(&data, le, int16(math.Round(v*32767))))
		default:
			t.Fatalf("unsupported test layout %+v", spec)
		}
	}

	var fmtChunk bytes.Buffer
	tag := spec.formatTag
	if spec.extensible {
		tag = 0xFFFE
	}
	blockAlign := spec.channels * bytesPerSample
	fields := []any{
		tag,
		uint16(spec.channels),
		uint32(spec.sampleRate),
		uint32(spec.sampleRate * blockAlign),
		uint16(blockAlign),
		uint16(spec.bits),
	}
	if spec.extensible {
		guidTail := []byte{0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71}
		fields = append(fields, uint16(22), uint16(spec.bits), uint32(0), spec.formatTag, guidTail)
	}
	for _, f := range fields {
		require.NoError(t, binary.Write(&fmtChunk, le, f))
	}

	var body bytes.Buffer
	body.WriteString("WAVE")
	writeChunk := func(id string, payload []byte) {
		body.WriteString(id)
		require.NoError(t, binary.Write(&body, le, uint32(len(payload))))
		body.Write(payload)
	}
	writeChunk("fmt ", fmtChunk.Bytes())
	writeChunk("data", data.Bytes())
	if spec.trailer {
		writeChunk("LIST", []byte("INFOISFT\x06\x00\x00\x00pulso\x00"))
	}

	var out bytes.Buffer
	out.WriteString("RIFF")
	require.NoError(t, binary.Write(&out, le, uint32(body.Len())))
	out.Write(body.Bytes())
	return out.Bytes()
}

func writeBuiltWAV(t *testing.T, name string, spec wavSpec, interleaved []float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, buildWAV(t, spec, interleaved), 0o644))
	return path
}

func TestDecodeFloat32WAV(t *testing.T) {
	samples := []float64{0, 0.25, -0.5, 1.0, -1.0, 0.125}
	path := writeBuiltWAV(t, "float.wav", wavSpec{formatTag: 3, channels: 1, sampleRate: 22050, bits: 32, trailer: true}, samples)

	w, err := LoadFile(path, 0)
	require.NoError(t, err)

	assert.Equal(t, 22050, w.SampleRate)
	assert.Equal(t, 1, w.Channels)
	assert.Equal(t, samples, w.Samples, "trailing chunks are not read as samples")
}

func TestDecodeFloat64StereoWAV(t *testing.T) {
	interleaved := []float64{0.5, -0.5, 0.25, 0.75, -1.0, -0.5}
	path := writeBuiltWAV(t, "float64.wav", wavSpec{formatTag: 3, channels: 2, sampleRate: 8000, bits: 64}, interleaved)

	w, err := NewDecoder(nil).DecodeFile(path)
	require.NoError(t, err)

	assert.Equal(t, 2, w.Channels)
	assert.Equal(t, []float64{0, 0.5, -0.75}, w.Samples)
}

func TestDecodeExtensibleFloatWAV(t *testing.T) {
	samples := []float64{0.5, -0.25, 0.75, 0}
	path := writeBuiltWAV(t, "ext-float.wav", wavSpec{formatTag: 3, extensible: true, channels: 1, sampleRate: 44100, bits: 32}, samples)

	w, err := LoadFile(path, 0)
	require.NoError(t, err)
	assert.Equal(t, samples, w.Samples, "float sub-format must not be read as integers")
}

func TestDecodeExtensiblePCMWAV(t *testing.T) {
	samples := []float64{0.5, -0.5, 0.25, 0}
	path := writeBuiltWAV(t, "ext-pcm.wav", wavSpec{formatTag: 1, extensible: true, channels: 1, sampleRate: 16000, bits: 16, trailer: true}, samples)

	w, err := LoadFile(path, 0)
	require.NoError(t, err)
	require.Len(t, w.Samples, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], w.Samples[i], 1.0/16384)
	}
}

func TestDecodeRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	require.NoError(t, WriteWAVFile(path, sineWaveform(440, 8000, 0.1)))

	_, err := NewDecoder(&DecoderConfig{ResampleQuality: 0}).DecodeFile(path)
	assert.Error(t, err)
}
