package spectral

import (
	"fmt"
	"math"

	"github.com/echoshield/echoshield/algorithms/windowing"
)

// Framer slices a signal into fixed-length overlapping frames and applies
// a taper window. Frame and hop lengths are configured in milliseconds and
// converted to samples per clip, so one Framer can serve clips at any rate.
type Framer struct {
	frameLengthMs float64
	hopLengthMs   float64
	windowType    windowing.Type
}

// FrameResult holds framed mono audio.
type FrameResult struct {
	Frames      [][]float64 `json:"-"`            // Frame x Sample matrix, windowed
	Times       []float64   `json:"times"`        // Frame center times (seconds)
	FrameLength int         `json:"frame_length"` // Samples per frame
	HopLength   int         `json:"hop_length"`   // Samples between frame starts
	SampleRate  float64     `json:"sample_rate"`
}

// MultiFrameResult holds framed multi-channel audio, indexed [frame][channel][sample].
type MultiFrameResult struct {
	Frames      [][][]float64 `json:"-"`
	Times       []float64     `json:"times"`
	FrameLength int           `json:"frame_length"`
	HopLength   int           `json:"hop_length"`
	Channels    int           `json:"channels"`
	SampleRate  float64       `json:"sample_rate"`
}

// NewFramer creates a framer with the given frame/hop lengths in milliseconds.
func NewFramer(frameLengthMs, hopLengthMs float64, windowType windowing.Type) (*Framer, error) {
	if frameLengthMs <= 0 {
		return nil, fmt.Errorf("frame length must be positive, got %.2f ms", frameLengthMs)
	}
	if hopLengthMs <= 0 {
		return nil, fmt.Errorf("hop length must be positive, got %.2f ms", hopLengthMs)
	}

	return &Framer{
		frameLengthMs: frameLengthMs,
		hopLengthMs:   hopLengthMs,
		windowType:    windowType,
	}, nil
}

// frameGeometry converts the millisecond configuration to sample counts and
// the resulting frame count for a clip of n samples. A clip shorter than one
// frame yields zero frames, which is valid.
func (fr *Framer) frameGeometry(nSamples int, sampleRate float64) (frameLength, hopLength, numFrames int) {
	frameLength = int(math.Round(sampleRate * fr.frameLengthMs / 1000.0))
	hopLength = int(math.Round(sampleRate * fr.hopLengthMs / 1000.0))

	if frameLength <= 0 || hopLength <= 0 || nSamples < frameLength {
		return frameLength, hopLength, 0
	}

	numFrames = 1 + (nSamples-frameLength)/hopLength
	return frameLength, hopLength, numFrames
}

// Frame slices a mono signal into windowed overlapping frames.
func (fr *Framer) Frame(signal []float64, sampleRate float64) (*FrameResult, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %.2f", sampleRate)
	}

	frameLength, hopLength, numFrames := fr.frameGeometry(len(signal), sampleRate)

	result := &FrameResult{
		Frames:      make([][]float64, numFrames),
		Times:       make([]float64, numFrames),
		FrameLength: frameLength,
		HopLength:   hopLength,
		SampleRate:  sampleRate,
	}

	if numFrames == 0 {
		return result, nil
	}

	window, err := windowing.New(fr.windowType, frameLength)
	if err != nil {
		return nil, err
	}

	for i := range numFrames {
		start := i * hopLength
		frame := make([]float64, frameLength)
		copy(frame, signal[start:start+frameLength])

		if err := window.ApplyInPlace(frame); err != nil {
			return nil, err
		}

		result.Frames[i] = frame
		result.Times[i] = (float64(start) + float64(frameLength)/2.0) / sampleRate
	}

	return result, nil
}

// FrameMultichannel slices a multi-channel signal (one slice per channel, all
// equal length) into windowed overlapping frames. Used for DOA estimation
// where channel pairs must be framed coherently.
func (fr *Framer) FrameMultichannel(channels [][]float64, sampleRate float64) (*MultiFrameResult, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %.2f", sampleRate)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("at least one channel required")
	}

	nSamples := len(channels[0])
	for c, ch := range channels {
		if len(ch) != nSamples {
			return nil, fmt.Errorf("channel %d length (%d) doesn't match channel 0 (%d)", c, len(ch), nSamples)
		}
	}

	frameLength, hopLength, numFrames := fr.frameGeometry(nSamples, sampleRate)

	result := &MultiFrameResult{
		Frames:      make([][][]float64, numFrames),
		Times:       make([]float64, numFrames),
		FrameLength: frameLength,
		HopLength:   hopLength,
		Channels:    len(channels),
		SampleRate:  sampleRate,
	}

	if numFrames == 0 {
		return result, nil
	}

	window, err := windowing.New(fr.windowType, frameLength)
	if err != nil {
		return nil, err
	}

	for i := range numFrames {
		start := i * hopLength
		frame := make([][]float64, len(channels))

		for c, ch := range channels {
			chFrame := make([]float64, frameLength)
			copy(chFrame, ch[start:start+frameLength])

			if err := window.ApplyInPlace(chFrame); err != nil {
				return nil, err
			}

			frame[c] = chFrame
		}

		result.Frames[i] = frame
		result.Times[i] = (float64(start) + float64(frameLength)/2.0) / sampleRate
	}

	return result, nil
}

// MixdownFrames averages the channels of multi-channel frames into mono
// frames, preserving geometry. The detector scores the mixdown while the
// DOA estimator consumes the per-channel frames.
func MixdownFrames(multi *MultiFrameResult) *FrameResult {
	result := &FrameResult{
		Frames:      make([][]float64, len(multi.Frames)),
		Times:       multi.Times,
		FrameLength: multi.FrameLength,
		HopLength:   multi.HopLength,
		SampleRate:  multi.SampleRate,
	}

	for i, frame := range multi.Frames {
		mono := make([]float64, multi.FrameLength)
		for _, ch := range frame {
			for s, v := range ch {
				mono[s] += v
			}
		}
		for s := range mono {
			mono[s] /= float64(len(frame))
		}
		result.Frames[i] = mono
	}

	return result
}
