package detect

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echoshield/echoshield/algorithms/spectral"
	"github.com/echoshield/echoshield/algorithms/stats"
)

const testSampleRate = 8000.0

// delayedPair returns two broadband signals of length n where the second is
// the first delayed by the given number of samples.
func delayedPair(n, delay int, seed int64) (x1, x2 []float64) {
	rng := rand.New(rand.NewSource(seed))
	base := make([]float64, n+delay)
	for i := range base {
		base[i] = rng.NormFloat64()
	}

	return base[delay:], base[:n]
}

func newTestEstimator(t *testing.T) *DOAEstimator {
	t.Helper()
	e, err := NewDOAEstimator(0.14, 16)
	require.NoError(t, err)
	return e
}

func TestNewDOAEstimatorInvalid(t *testing.T) {
	_, err := NewDOAEstimator(0, 16)
	assert.Error(t, err)

	_, err = NewDOAEstimator(0.14, 0)
	assert.Error(t, err)
}

func TestGCCPhatRecoversDelay(t *testing.T) {
	e := newTestEstimator(t)

	for _, delay := range []int{0, 1, 2, 3} {
		x1, x2 := delayedPair(512, delay, 42)

		tau, ok := e.GCCPhat(x1, x2, testSampleRate)
		require.True(t, ok, "delay=%d", delay)
		assert.InDelta(t, float64(delay)/testSampleRate, tau, 0.5/testSampleRate, "delay=%d", delay)
	}
}

func TestGCCPhatSilence(t *testing.T) {
	e := newTestEstimator(t)

	_, ok := e.GCCPhat(make([]float64, 512), make([]float64, 512), testSampleRate)
	assert.False(t, ok)
}

func TestGCCPhatBadInput(t *testing.T) {
	e := newTestEstimator(t)

	_, ok := e.GCCPhat(nil, nil, testSampleRate)
	assert.False(t, ok)

	_, ok = e.GCCPhat(make([]float64, 10), make([]float64, 20), testSampleRate)
	assert.False(t, ok)

	x1, x2 := delayedPair(128, 1, 7)
	_, ok = e.GCCPhat(x1, x2, 0)
	assert.False(t, ok)
}

func TestTDOAToAngle(t *testing.T) {
	e := newTestEstimator(t)

	assert.InDelta(t, 0.0, e.TDOAToAngle(0), 1e-9)

	// Lag of one full mic spacing maps to broadside limits.
	maxTau := 0.14 / 343.0
	assert.InDelta(t, 90.0, e.TDOAToAngle(maxTau), 1e-9)
	assert.InDelta(t, -90.0, e.TDOAToAngle(-maxTau), 1e-9)

	// Out-of-domain ratios clamp instead of producing NaN.
	assert.InDelta(t, 90.0, e.TDOAToAngle(maxTau*10), 1e-9)
}

func TestEstimateFromFramesRecoversAngle(t *testing.T) {
	e := newTestEstimator(t)

	const delay = 2
	expected := math.Asin(delay / testSampleRate * 343.0 / 0.14 / 1.0)
	expectedDeg := stats.NormalizeBearing(expected * 180.0 / math.Pi)

	frames := &spectral.MultiFrameResult{
		FrameLength: 256,
		Channels:    2,
		SampleRate:  testSampleRate,
	}
	for i := range 6 {
		x1, x2 := delayedPair(256, delay, int64(i+1))
		frames.Frames = append(frames.Frames, [][]float64{x1, x2})
	}

	result, err := e.EstimateFromFrames(frames)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 6, result.FramesUsed)
	assert.InDelta(t, 0.0, stats.AngularDiff(result.AngleDeg, expectedDeg), 2.0)
	assert.Less(t, result.StdDeg, 5.0)
}

func TestEstimateFromFramesSilence(t *testing.T) {
	e := newTestEstimator(t)

	frames := &spectral.MultiFrameResult{
		FrameLength: 256,
		Channels:    2,
		SampleRate:  testSampleRate,
	}
	for range 3 {
		frames.Frames = append(frames.Frames, [][]float64{
			make([]float64, 256),
			make([]float64, 256),
		})
	}

	// Degenerate correlation yields no estimate, not an error.
	result, err := e.EstimateFromFrames(frames)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestEstimateFromFramesMono(t *testing.T) {
	e := newTestEstimator(t)

	frames := &spectral.MultiFrameResult{
		FrameLength: 256,
		Channels:    1,
		SampleRate:  testSampleRate,
	}

	_, err := e.EstimateFromFrames(frames)
	assert.Error(t, err)
}
