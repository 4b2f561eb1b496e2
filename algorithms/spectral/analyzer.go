package spectral

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/stat"
)

// dbEpsilon keeps the dB conversion away from -Inf on silent bins.
const dbEpsilon = 1e-10

// Analyzer computes fixed-size magnitude spectra for framed audio.
type Analyzer struct {
	nfft     int
	removeDC bool
	fft      *FFT
}

// SpectrumResult holds the per-frame magnitude spectra of one clip.
type SpectrumResult struct {
	Freqs       []float64   `json:"freqs"`     // Bin center frequencies (Hz), ascending
	Magnitude   [][]float64 `json:"-"`         // Frame x Bin linear magnitude
	MagnitudeDB [][]float64 `json:"-"`         // Frame x Bin dB magnitude
	FreqBins    int         `json:"freq_bins"` // Positive-frequency bin count (nfft/2 + 1)
	NFFT        int         `json:"nfft"`
	SampleRate  float64     `json:"sample_rate"`
}

// NewAnalyzer creates a spectral analyzer with the given transform size.
// removeDC subtracts each frame's mean before transforming.
func NewAnalyzer(nfft int, removeDC bool) (*Analyzer, error) {
	if nfft <= 0 {
		return nil, fmt.Errorf("nfft must be positive, got %d", nfft)
	}

	return &Analyzer{
		nfft:     nfft,
		removeDC: removeDC,
		fft:      NewFFT(),
	}, nil
}

// Compute computes linear and dB magnitude spectra for every frame.
// Zero frames in, zero rows out; not an error.
func (a *Analyzer) Compute(frames *FrameResult) (*SpectrumResult, error) {
	if frames == nil {
		return nil, fmt.Errorf("nil frame result")
	}

	freqBins := a.nfft/2 + 1
	result := &SpectrumResult{
		Freqs:       make([]float64, freqBins),
		Magnitude:   make([][]float64, len(frames.Frames)),
		MagnitudeDB: make([][]float64, len(frames.Frames)),
		FreqBins:    freqBins,
		NFFT:        a.nfft,
		SampleRate:  frames.SampleRate,
	}

	for k := range freqBins {
		result.Freqs[k] = float64(k) * frames.SampleRate / float64(a.nfft)
	}

	buf := make([]float64, 0, frames.FrameLength)

	for i, frame := range frames.Frames {
		buf = buf[:0]
		buf = append(buf, frame...)

		if a.removeDC && len(buf) > 0 {
			mean := stat.Mean(buf, nil)
			for s := range buf {
				buf[s] -= mean
			}
		}

		spectrum := a.fft.ComputeN(buf, a.nfft)

		magnitude := make([]float64, freqBins)
		magnitudeDB := make([]float64, freqBins)
		for k := range freqBins {
			magnitude[k] = cmplx.Abs(spectrum[k])
			magnitudeDB[k] = 20 * math.Log10(magnitude[k]+dbEpsilon)
		}

		result.Magnitude[i] = magnitude
		result.MagnitudeDB[i] = magnitudeDB
	}

	return result, nil
}

// NFFT returns the transform size.
func (a *Analyzer) NFFT() int {
	return a.nfft
}
