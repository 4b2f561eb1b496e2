package windowing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUnknownType(t *testing.T) {
	_, err := New(Type("kaiser"), 64)
	assert.Error(t, err)
}

func TestNewInvalidSize(t *testing.T) {
	_, err := New(TypeHann, 0)
	assert.Error(t, err)
}

func TestHannEndpoints(t *testing.T) {
	w, err := New(TypeHann, 8)
	require.NoError(t, err)

	coeffs := w.Coefficients()
	require.Len(t, coeffs, 8)

	// Periodic form: zero at the first sample, peak mid-frame.
	assert.InDelta(t, 0.0, coeffs[0], 1e-12)
	assert.InDelta(t, 1.0, coeffs[4], 1e-12)
}

func TestHammingNeverZero(t *testing.T) {
	w, err := New(TypeHamming, 32)
	require.NoError(t, err)

	for _, c := range w.Coefficients() {
		assert.Greater(t, c, 0.0)
	}
}

func TestRectangularIsIdentity(t *testing.T) {
	w, err := New(TypeRectangular, 4)
	require.NoError(t, err)

	signal := []float64{1, -2, 3, -4}
	out, err := w.Apply(signal)
	require.NoError(t, err)
	assert.Equal(t, signal, out)
}

func TestApplySizeMismatch(t *testing.T) {
	w := NewHann(16)

	_, err := w.Apply(make([]float64, 8))
	assert.Error(t, err)

	err = w.ApplyInPlace(make([]float64, 32))
	assert.Error(t, err)
}

func TestApplyInPlaceMatchesApply(t *testing.T) {
	w, err := New(TypeBlackman, 16)
	require.NoError(t, err)

	signal := make([]float64, 16)
	for i := range signal {
		signal[i] = float64(i) - 8.0
	}

	expected, err := w.Apply(signal)
	require.NoError(t, err)

	require.NoError(t, w.ApplyInPlace(signal))
	assert.InDeltaSlice(t, expected, signal, 1e-12)
}
