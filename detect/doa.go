package detect

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/echoshield/echoshield/algorithms/spectral"
	"github.com/echoshield/echoshield/algorithms/stats"
	"github.com/echoshield/echoshield/logging"
)

const (
	// speedOfSound is the propagation speed used for lag-to-angle conversion,
	// m/s at 20 C.
	speedOfSound = 343.0

	// correlationFloor is the minimum PHAT correlation peak accepted as a
	// real TDOA. Silence and clipped input correlate below this.
	correlationFloor = 1e-6

	// doaTrimProportion is the fraction of per-frame bearings discarded by
	// the robust aggregate.
	doaTrimProportion = 0.2
)

// DOAResult is the aggregated direction-of-arrival estimate for one clip.
type DOAResult struct {
	AngleDeg    float64   `json:"angle_deg"` // Aggregate bearing, [0, 360)
	StdDeg      float64   `json:"std_deg"`   // Circular dispersion of per-frame bearings
	PerFrameDeg []float64 `json:"-"`
	FramesUsed  int       `json:"frames_used"`
}

// DOAEstimator estimates per-frame direction of arrival for a co-located
// stereo microphone pair via GCC-PHAT, then aggregates with an
// outlier-robust circular mean.
type DOAEstimator struct {
	micSpacingM  float64
	interpFactor int
	fft          *spectral.FFT
	logger       logging.Logger
}

// NewDOAEstimator creates an estimator for the given microphone spacing.
// interpFactor zero-pads the inverse transform for sub-sample peak
// resolution; 16 is the stock value.
func NewDOAEstimator(micSpacingM float64, interpFactor int) (*DOAEstimator, error) {
	if micSpacingM <= 0 {
		return nil, fmt.Errorf("mic spacing must be positive, got %.3f", micSpacingM)
	}
	if interpFactor <= 0 {
		return nil, fmt.Errorf("interpolation factor must be positive, got %d", interpFactor)
	}

	return &DOAEstimator{
		micSpacingM:  micSpacingM,
		interpFactor: interpFactor,
		fft:          spectral.NewFFT(),
		logger: logging.WithFields(logging.Fields{
			"component": "doa_estimator",
		}),
	}, nil
}

// GCCPhat computes the phase-transform cross-correlation lag between two
// equal-length signals. Returns the delay of x2 relative to x1 in seconds.
// ok is false when the correlation is degenerate (silence, clipped input);
// callers treat that as missing DOA, not an error.
func (e *DOAEstimator) GCCPhat(x1, x2 []float64, sampleRate float64) (tau float64, ok bool) {
	if len(x1) == 0 || len(x1) != len(x2) || sampleRate <= 0 {
		return 0, false
	}

	// Linear (not circular) correlation needs at least 2n points.
	n := nextPowerOfTwo(2 * len(x1))

	spec1 := e.fft.ComputeN(x1, n)
	spec2 := e.fft.ComputeN(x2, n)

	// Cross-power spectrum with phase transform: keep phase, drop magnitude.
	cross := make([]complex128, n)
	for k := range n {
		g := spec1[k] * cmplx.Conj(spec2[k])
		mag := cmplx.Abs(g)
		if mag > correlationFloor {
			cross[k] = g / complex(mag, 0)
		}
	}

	// Zero-pad the spectrum hermitian-symmetrically to interpFactor*n points
	// so the correlation peak can resolve below one sample.
	m := n * e.interpFactor
	padded := make([]complex128, m)
	half := n / 2
	copy(padded[:half+1], cross[:half+1])
	copy(padded[m-(half-1):], cross[half+1:])

	cc := e.fft.ComputeInverseReal(padded)

	// Physically possible lags are bounded by the mic spacing.
	maxTau := e.micSpacingM / speedOfSound
	maxShift := int(float64(e.interpFactor) * sampleRate * maxTau)
	maxShift = min(maxShift, m/2-1)
	if maxShift < 1 {
		return 0, false
	}

	bestShift, bestVal := 0, math.Inf(-1)
	for shift := -maxShift; shift <= maxShift; shift++ {
		idx := shift
		if idx < 0 {
			idx += m
		}
		if v := math.Abs(cc[idx]); v > bestVal {
			bestVal = v
			bestShift = shift
		}
	}

	if bestVal < correlationFloor {
		return 0, false
	}

	// With the cross spectrum X1*conj(X2), x2 lagging x1 by d puts the peak
	// at shift -d; negate so tau > 0 means x2 arrives later.
	return -float64(bestShift) / (float64(e.interpFactor) * sampleRate), true
}

// TDOAToAngle converts a lag to a bearing via the linear near-field
// approximation arcsin(tau*c / spacing), clamped into the valid domain.
// The result is in degrees, [-90, 90].
func (e *DOAEstimator) TDOAToAngle(tau float64) float64 {
	ratio := tau * speedOfSound / e.micSpacingM
	ratio = math.Max(-1, math.Min(1, ratio))
	return math.Asin(ratio) * 180.0 / math.Pi
}

// EstimateFromFrames runs GCC-PHAT over every stereo frame and aggregates
// the per-frame bearings. A nil result (with nil error) means no estimate
// could be formed.
func (e *DOAEstimator) EstimateFromFrames(frames *spectral.MultiFrameResult) (*DOAResult, error) {
	if frames == nil {
		return nil, fmt.Errorf("nil frame result")
	}
	if frames.Channels < 2 {
		return nil, fmt.Errorf("DOA estimation requires at least 2 channels, got %d", frames.Channels)
	}

	angles := make([]float64, 0, len(frames.Frames))
	for _, frame := range frames.Frames {
		tau, ok := e.GCCPhat(frame[0], frame[1], frames.SampleRate)
		if !ok {
			continue
		}
		angles = append(angles, e.TDOAToAngle(tau))
	}

	if len(angles) == 0 {
		e.logger.Debug("no usable correlation peaks, skipping DOA", logging.Fields{
			"frames": len(frames.Frames),
		})
		return nil, nil
	}

	mean, err := stats.TrimmedCircularMean(angles, doaTrimProportion)
	if err != nil {
		return nil, err
	}

	std, err := stats.CircularStd(angles)
	if err != nil {
		return nil, err
	}

	return &DOAResult{
		AngleDeg:    stats.NormalizeBearing(mean),
		StdDeg:      std,
		PerFrameDeg: angles,
		FramesUsed:  len(angles),
	}, nil
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
