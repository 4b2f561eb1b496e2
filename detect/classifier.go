package detect

import "errors"

// ErrClassifierUnavailable is returned by classifier implementations that
// could not load their model.
var ErrClassifierUnavailable = errors.New("classifier unavailable")

// Classifier is the external machine-learned detector. The pipeline only
// needs a scalar detection confidence for a spectral feature vector; loading
// and inference live outside this module. A load or inference failure
// surfaces as the explicit ml_model_error method, never as a silent
// substitution of another detector.
type Classifier interface {
	// Predict returns a detection confidence in [0, 1] for the mean
	// dB-magnitude spectrum of a clip.
	Predict(features []float64) (float64, error)
}

// ClassifierFunc adapts a plain function to the Classifier interface.
type ClassifierFunc func(features []float64) (float64, error)

// Predict implements Classifier.
func (f ClassifierFunc) Predict(features []float64) (float64, error) {
	return f(features)
}
