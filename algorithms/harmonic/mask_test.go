package harmonic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func binFreqs(n int, spacing float64) []float64 {
	freqs := make([]float64, n)
	for i := range freqs {
		freqs[i] = float64(i) * spacing
	}
	return freqs
}

func TestNewMaskMembership(t *testing.T) {
	// Bins every 10 Hz, f0 = 150 Hz, 3 harmonics, 40 Hz bands:
	// in-band ranges are [130,170], [280,320], [430,470].
	freqs := binFreqs(60, 10)

	mask, err := NewMask(freqs, 150, 3, 40)
	require.NoError(t, err)

	assert.True(t, mask.Bins[15])  // 150 Hz
	assert.True(t, mask.Bins[13])  // 130 Hz, band edge
	assert.True(t, mask.Bins[17])  // 170 Hz, band edge
	assert.False(t, mask.Bins[12]) // 120 Hz
	assert.False(t, mask.Bins[18]) // 180 Hz
	assert.True(t, mask.Bins[30])  // 300 Hz, 2nd harmonic
	assert.True(t, mask.Bins[45])  // 450 Hz, 3rd harmonic
	assert.False(t, mask.Bins[0])  // DC
	assert.False(t, mask.Bins[59]) // 590 Hz, past the last harmonic

	assert.Equal(t, 15, mask.InBandCount())
}

func TestNewMaskInvalid(t *testing.T) {
	freqs := binFreqs(10, 10)

	_, err := NewMask(freqs, 0, 3, 40)
	assert.Error(t, err)

	_, err = NewMask(freqs, 150, 0, 40)
	assert.Error(t, err)

	_, err = NewMask(freqs, 150, 3, 0)
	assert.Error(t, err)
}

func TestApplyZeroesOutOfBand(t *testing.T) {
	freqs := binFreqs(60, 10)
	mask, err := NewMask(freqs, 150, 3, 40)
	require.NoError(t, err)

	magnitude := make([]float64, 60)
	for i := range magnitude {
		magnitude[i] = 1.0
	}

	filtered, err := mask.Apply(magnitude)
	require.NoError(t, err)

	for i, inBand := range mask.Bins {
		if inBand {
			assert.Equal(t, 1.0, filtered[i])
		} else {
			assert.Zero(t, filtered[i])
		}
	}

	// The input is untouched.
	assert.Equal(t, 1.0, magnitude[0])
}

func TestApplyLengthMismatch(t *testing.T) {
	mask, err := NewMask(binFreqs(60, 10), 150, 3, 40)
	require.NoError(t, err)

	_, err = mask.Apply(make([]float64, 10))
	assert.Error(t, err)
}

func TestApplyFrames(t *testing.T) {
	mask, err := NewMask(binFreqs(60, 10), 150, 3, 40)
	require.NoError(t, err)

	frames := [][]float64{
		make([]float64, 60),
		make([]float64, 60),
	}
	frames[0][15] = 2.0 // In-band
	frames[1][0] = 5.0  // Out-of-band

	filtered, err := mask.ApplyFrames(frames)
	require.NoError(t, err)

	assert.Equal(t, 2.0, filtered[0][15])
	assert.Zero(t, filtered[1][0])
}
