package windowing

import (
	"fmt"
	"math"
)

// Type identifies a taper window shape.
type Type string

const (
	TypeHann        Type = "hann"
	TypeHamming     Type = "hamming"
	TypeBlackman    Type = "blackman"
	TypeRectangular Type = "rectangular"
)

// Window holds precomputed taper coefficients for a fixed frame length.
// Coefficients are generated once at construction and reused for every frame.
type Window struct {
	typ          Type
	size         int
	coefficients []float64
}

// New creates a window of the given type and size.
func New(typ Type, size int) (*Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", size)
	}

	w := &Window{typ: typ, size: size}

	switch typ {
	case TypeHann:
		w.coefficients = generateCosineSum(size, 0.5, 0.5, 0)
	case TypeHamming:
		w.coefficients = generateCosineSum(size, 0.54, 0.46, 0)
	case TypeBlackman:
		w.coefficients = generateCosineSum(size, 0.42, 0.5, 0.08)
	case TypeRectangular:
		w.coefficients = make([]float64, size)
		for i := range w.coefficients {
			w.coefficients[i] = 1.0
		}
	default:
		return nil, fmt.Errorf("unknown window type %q", typ)
	}

	return w, nil
}

// NewHann creates a Hann window, the pipeline default.
func NewHann(size int) *Window {
	w, _ := New(TypeHann, size)
	return w
}

// generateCosineSum generates generalized cosine-sum window coefficients
// a0 - a1*cos(2*pi*n/N) + a2*cos(4*pi*n/N), periodic form.
func generateCosineSum(size int, a0, a1, a2 float64) []float64 {
	coeffs := make([]float64, size)
	denom := float64(size)

	for i := range size {
		phase := 2 * math.Pi * float64(i) / denom
		coeffs[i] = a0 - a1*math.Cos(phase) + a2*math.Cos(2*phase)
	}

	return coeffs
}

// Apply applies the window to a signal, returning a new slice.
func (w *Window) Apply(signal []float64) ([]float64, error) {
	if len(signal) != w.size {
		return nil, fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), w.size)
	}

	windowed := make([]float64, w.size)
	for i := range signal {
		windowed[i] = signal[i] * w.coefficients[i]
	}

	return windowed, nil
}

// ApplyInPlace applies the window to a signal in-place.
func (w *Window) ApplyInPlace(signal []float64) error {
	if len(signal) != w.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), w.size)
	}

	for i := range signal {
		signal[i] *= w.coefficients[i]
	}

	return nil
}

// Coefficients returns a copy of the window coefficients.
func (w *Window) Coefficients() []float64 {
	coeffs := make([]float64, len(w.coefficients))
	copy(coeffs, w.coefficients)
	return coeffs
}

// Size returns the window size.
func (w *Window) Size() int {
	return w.size
}

// Type returns the window type.
func (w *Window) Type() Type {
	return w.typ
}
