package harmonic

import (
	"fmt"
)

// Mask marks the spectrum bins that fall inside a harmonic comb anchored at a
// fundamental frequency. Computed once per configuration and reused across
// frames.
type Mask struct {
	Bins         []bool  `json:"-"`             // True for bins inside any harmonic band
	F0           float64 `json:"f0"`            // Fundamental frequency (Hz)
	NumHarmonics int     `json:"num_harmonics"` // Harmonics k = 1..NumHarmonics
	BandwidthHz  float64 `json:"bandwidth_hz"`  // Full width of each harmonic band
}

// NewMask builds a harmonic comb mask over the given bin center frequencies.
// A bin is in-band when it lies within [k*f0 - bw/2, k*f0 + bw/2] for any
// harmonic k.
func NewMask(freqs []float64, f0 float64, numHarmonics int, bandwidthHz float64) (*Mask, error) {
	if f0 <= 0 {
		return nil, fmt.Errorf("fundamental frequency must be positive, got %.2f", f0)
	}
	if numHarmonics <= 0 {
		return nil, fmt.Errorf("harmonic count must be positive, got %d", numHarmonics)
	}
	if bandwidthHz <= 0 {
		return nil, fmt.Errorf("harmonic bandwidth must be positive, got %.2f", bandwidthHz)
	}

	bins := make([]bool, len(freqs))
	halfBW := bandwidthHz / 2.0

	for k := 1; k <= numHarmonics; k++ {
		center := float64(k) * f0
		low := center - halfBW
		high := center + halfBW

		for i, f := range freqs {
			if f >= low && f <= high {
				bins[i] = true
			}
		}
	}

	return &Mask{
		Bins:         bins,
		F0:           f0,
		NumHarmonics: numHarmonics,
		BandwidthHz:  bandwidthHz,
	}, nil
}

// Apply zeroes magnitude outside the harmonic bands, returning a new slice.
func (m *Mask) Apply(magnitude []float64) ([]float64, error) {
	if len(magnitude) != len(m.Bins) {
		return nil, fmt.Errorf("magnitude length (%d) doesn't match mask length (%d)", len(magnitude), len(m.Bins))
	}

	filtered := make([]float64, len(magnitude))
	for i, inBand := range m.Bins {
		if inBand {
			filtered[i] = magnitude[i]
		}
	}

	return filtered, nil
}

// ApplyFrames filters every frame of a magnitude spectrogram.
func (m *Mask) ApplyFrames(magnitude [][]float64) ([][]float64, error) {
	filtered := make([][]float64, len(magnitude))

	for t, frame := range magnitude {
		out, err := m.Apply(frame)
		if err != nil {
			return nil, err
		}
		filtered[t] = out
	}

	return filtered, nil
}

// InBandCount returns the number of bins inside the comb.
func (m *Mask) InBandCount() int {
	count := 0
	for _, b := range m.Bins {
		if b {
			count++
		}
	}
	return count
}
