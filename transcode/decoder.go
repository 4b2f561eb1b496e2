package transcode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/mdobak/go-xerrors"

	"github.com/echoshield/echoshield/logging"
)

// AudioData represents decoded audio, one sample slice per channel.
type AudioData struct {
	Samples    [][]float64   `json:"-"` // [channel][sample], normalized to [-1, 1]
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	Duration   time.Duration `json:"duration"`
	Source     string        `json:"source,omitempty"`
}

// Stereo reports whether the clip has at least two channels.
func (a *AudioData) Stereo() bool {
	return a.Channels >= 2
}

// NumSamples returns the per-channel sample count.
func (a *AudioData) NumSamples() int {
	if len(a.Samples) == 0 {
		return 0
	}
	return len(a.Samples[0])
}

// DecoderConfig holds decode and validation limits.
type DecoderConfig struct {
	MaxFileSizeMB  float64  `json:"max_file_size_mb"`
	MaxDurationSec float64  `json:"max_duration_sec"`
	SupportedExts  []string `json:"supported_exts"`

	// RawSampleRate and RawChannels describe headerless PCM input for the
	// fallback strategy.
	RawSampleRate int `json:"raw_sample_rate"`
	RawChannels   int `json:"raw_channels"`
}

// DefaultDecoderConfig returns the stock upload limits.
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		MaxFileSizeMB:  50,
		MaxDurationSec: 300,
		SupportedExts:  []string{".wav", ".pcm", ".raw"},
		RawSampleRate:  44100,
		RawChannels:    1,
	}
}

// Decoder loads audio clips for the detection pipeline. Decode strategies
// are attempted in order; only total failure across all strategies is a
// fatal decode error.
type Decoder struct {
	config *DecoderConfig
	logger logging.Logger
}

// NewDecoder creates a decoder with the given config, or defaults when nil.
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}

	return &Decoder{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "audio_decoder",
		}),
	}
}

// ValidateFile rejects oversized or unsupported files before any decoding.
func (d *Decoder) ValidateFile(path string, size int64) error {
	ext := strings.ToLower(filepath.Ext(path))

	supported := false
	for _, s := range d.config.SupportedExts {
		if ext == s {
			supported = true
			break
		}
	}
	if !supported {
		return xerrors.New(fmt.Sprintf("unsupported format %s, supported: %s",
			ext, strings.Join(d.config.SupportedExts, ", ")))
	}

	sizeMB := float64(size) / (1024 * 1024)
	if sizeMB > d.config.MaxFileSizeMB {
		return xerrors.New(fmt.Sprintf("file too large (%.1f MB), max %.0f MB",
			sizeMB, d.config.MaxFileSizeMB))
	}

	return nil
}

// DecodeFile loads and validates an audio file.
func (d *Decoder) DecodeFile(path string) (*AudioData, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, xerrors.New("stat audio file", err)
	}

	if err := d.ValidateFile(path, info.Size()); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.New("read audio file", err)
	}

	audio, err := d.Decode(raw)
	if err != nil {
		return nil, err
	}

	audio.Source = filepath.Base(path)
	return audio, nil
}

// Decode runs the ordered decode strategies over raw bytes: RIFF/WAV first,
// then headerless 16-bit PCM. Each failed attempt is collected; the caller
// sees one error only when every strategy fails.
func (d *Decoder) Decode(raw []byte) (*AudioData, error) {
	var attempts []error

	audio, err := d.decodeWAV(raw)
	if err == nil {
		return d.checkDuration(audio)
	}
	attempts = append(attempts, xerrors.New("wav decode", err))
	d.logger.Debug("wav decode failed, trying raw pcm", logging.Fields{
		"error": err.Error(),
	})

	audio, err = d.decodeRawPCM(raw)
	if err == nil {
		return d.checkDuration(audio)
	}
	attempts = append(attempts, xerrors.New("raw pcm decode", err))

	return nil, xerrors.New("all decode strategies failed", xerrors.Append(nil, attempts...))
}

func (d *Decoder) checkDuration(audio *AudioData) (*AudioData, error) {
	if audio.Duration.Seconds() > d.config.MaxDurationSec {
		return nil, xerrors.New(fmt.Sprintf("audio too long (%.1f s), max %.0f s",
			audio.Duration.Seconds(), d.config.MaxDurationSec))
	}

	d.logger.Info("audio decoded", logging.Fields{
		"sample_rate": audio.SampleRate,
		"channels":    audio.Channels,
		"duration":    audio.Duration.String(),
	})

	return audio, nil
}

// decodeWAV decodes RIFF/WAV via go-audio.
func (d *Decoder) decodeWAV(raw []byte) (*AudioData, error) {
	decoder := wav.NewDecoder(bytes.NewReader(raw))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("not a valid RIFF/WAV file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading PCM buffer: %w", err)
	}

	channels := buf.Format.NumChannels
	sampleRate := buf.Format.SampleRate
	if channels <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid format: %d channels at %d Hz", channels, sampleRate)
	}

	// Interleaved ints to per-channel normalized floats.
	scale := math.Pow(2, float64(decoder.BitDepth-1))
	nSamples := len(buf.Data) / channels

	samples := make([][]float64, channels)
	for c := range channels {
		samples[c] = make([]float64, nSamples)
	}
	for i := range nSamples {
		for c := range channels {
			samples[c][i] = float64(buf.Data[i*channels+c]) / scale
		}
	}

	return &AudioData{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
		Duration:   time.Duration(float64(nSamples) / float64(sampleRate) * float64(time.Second)),
	}, nil
}

// decodeRawPCM interprets the bytes as headerless little-endian 16-bit PCM
// at the configured rate and channel count.
func (d *Decoder) decodeRawPCM(raw []byte) (*AudioData, error) {
	if len(raw) < 2 || len(raw)%2 != 0 {
		return nil, fmt.Errorf("byte count %d is not a whole number of 16-bit samples", len(raw))
	}

	channels := d.config.RawChannels
	sampleRate := d.config.RawSampleRate
	totalSamples := len(raw) / 2
	if totalSamples%channels != 0 {
		return nil, fmt.Errorf("sample count %d is not divisible by %d channels", totalSamples, channels)
	}

	nSamples := totalSamples / channels
	samples := make([][]float64, channels)
	for c := range channels {
		samples[c] = make([]float64, nSamples)
	}

	for i := range nSamples {
		for c := range channels {
			offset := (i*channels + c) * 2
			v := int16(binary.LittleEndian.Uint16(raw[offset:]))
			samples[c][i] = float64(v) / 32768.0
		}
	}

	return &AudioData{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
		Duration:   time.Duration(float64(nSamples) / float64(sampleRate) * float64(time.Second)),
	}, nil
}
