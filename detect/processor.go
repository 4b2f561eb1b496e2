package detect

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/echoshield/echoshield/algorithms/harmonic"
	"github.com/echoshield/echoshield/algorithms/spectral"
	"github.com/echoshield/echoshield/algorithms/windowing"
	"github.com/echoshield/echoshield/detect/config"
	"github.com/echoshield/echoshield/logging"
	"github.com/echoshield/echoshield/transcode"
)

const (
	// doaStabilitySpanDeg maps angular spread to confidence for the DOA-only
	// method: confidence = 1 - std/span, clamped.
	doaStabilitySpanDeg = 45.0

	// harmonicEnergyNorm scales mean squared filtered magnitude into [0, 1]
	// for the harmonic-filter method.
	harmonicEnergyNorm = 10.0
)

// ErrStereoRequired is returned when a DOA-only method is configured for a
// mono clip.
var ErrStereoRequired = errors.New("gcc_phat_doa method requires at least 2 channels")

// DetectionResult is the terminal output of processing one clip. Immutable
// after construction.
type DetectionResult struct {
	Detected   bool          `json:"detected"`
	Confidence float64       `json:"confidence"` // In [0, 1]
	Method     config.Method `json:"method"`

	// Evidence metrics, present for evidence-based methods
	SNRDb         *float64 `json:"snr_db,omitempty"`
	HarmonicScore *float64 `json:"harmonic_score,omitempty"`
	TemporalScore *float64 `json:"temporal_score,omitempty"`

	// Direction of arrival, present whenever stereo input allowed estimation
	DOAAngleDeg *float64 `json:"doa_angle_deg,omitempty"` // In [0, 360)
	DOAStdDeg   *float64 `json:"doa_std_deg,omitempty"`   // >= 0

	ProcessingTime time.Duration `json:"processing_time"`
	FrameCount     int           `json:"frame_count"`
}

// Processor runs the per-clip detection pipeline for one configuration.
// Processing is strictly sequential per clip: framing, transforming,
// optional filtering, scoring, aggregation. A clip either completes or
// fails as one DetectionResult.
type Processor struct {
	cfg        *config.DetectionConfig
	framer     *spectral.Framer
	analyzer   *spectral.Analyzer
	detector   *EnergyLikelihoodDetector
	doa        *DOAEstimator
	classifier Classifier
	logger     logging.Logger
}

// NewProcessor builds a processor from a validated configuration. classifier
// may be nil unless the configuration selects the ml_model method, in which
// case every clip resolves to the explicit ml_model_error method.
func NewProcessor(cfg *config.DetectionConfig, classifier Classifier) (*Processor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil detection config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	framer, err := spectral.NewFramer(cfg.FrameLengthMs, cfg.HopLengthMs, windowing.Type(cfg.WindowType))
	if err != nil {
		return nil, err
	}

	analyzer, err := spectral.NewAnalyzer(cfg.NFFT, true)
	if err != nil {
		return nil, err
	}

	detector, err := NewEnergyLikelihoodDetector(cfg)
	if err != nil {
		return nil, err
	}

	doa, err := NewDOAEstimator(cfg.MicSpacingM, cfg.InterpFactor)
	if err != nil {
		return nil, err
	}

	return &Processor{
		cfg:        cfg,
		framer:     framer,
		analyzer:   analyzer,
		detector:   detector,
		doa:        doa,
		classifier: classifier,
		logger: logging.WithFields(logging.Fields{
			"component": "detection_processor",
			"method":    string(cfg.Method),
		}),
	}, nil
}

// ProcessAudio runs the configured detection strategy over one clip and
// returns its DetectionResult.
func (p *Processor) ProcessAudio(audio *transcode.AudioData) (*DetectionResult, error) {
	if audio == nil || len(audio.Samples) == 0 {
		return nil, fmt.Errorf("empty audio clip")
	}

	start := time.Now()

	p.logger.Info("processing audio clip", logging.Fields{
		"samples":     audio.NumSamples(),
		"sample_rate": audio.SampleRate,
		"channels":    audio.Channels,
	})

	useML := p.cfg.UseMLModel || p.cfg.Method == config.MethodMLModel
	if useML {
		return p.processWithClassifier(audio, start)
	}

	if p.cfg.Method == config.MethodGCCPhatDOA && !audio.Stereo() {
		return nil, ErrStereoRequired
	}

	// Framing. Stereo clips are framed per channel so the DOA estimator can
	// correlate pairs; the detector scores the mixdown.
	sampleRate := float64(audio.SampleRate)
	var (
		frames    *spectral.FrameResult
		doaResult *DOAResult
	)

	if audio.Stereo() {
		multi, err := p.framer.FrameMultichannel(audio.Samples, sampleRate)
		if err != nil {
			return nil, err
		}

		if p.cfg.Method == config.MethodGCCPhatDOA || p.cfg.Method == config.MethodCombined {
			doaResult, err = p.doa.EstimateFromFrames(multi)
			if err != nil {
				// Non-fatal: detection continues on remaining evidence.
				p.logger.Warn("DOA estimation failed", logging.Fields{
					"error": err.Error(),
				})
				doaResult = nil
			}
		}

		frames = spectral.MixdownFrames(multi)
	} else {
		var err error
		frames, err = p.framer.Frame(audio.Samples[0], sampleRate)
		if err != nil {
			return nil, err
		}
	}

	// Transforming
	spec, err := p.analyzer.Compute(frames)
	if err != nil {
		return nil, err
	}

	// Filtering
	magnitude := spec.Magnitude
	if p.cfg.Method == config.MethodHarmonicFilter || p.cfg.Method == config.MethodCombined {
		mask, err := harmonic.NewMask(spec.Freqs, p.cfg.FundamentalFreqHz, p.cfg.NumHarmonics, p.cfg.HarmonicBandwidthHz)
		if err != nil {
			return nil, err
		}

		magnitude, err = mask.ApplyFrames(magnitude)
		if err != nil {
			return nil, err
		}
	}

	// Scoring and aggregation
	result, err := p.score(spec.Freqs, magnitude, doaResult)
	if err != nil {
		return nil, err
	}

	result.ProcessingTime = time.Since(start)
	result.FrameCount = len(frames.Frames)

	p.logger.Info("detection complete", logging.Fields{
		"detected":   result.Detected,
		"confidence": result.Confidence,
		"method":     string(result.Method),
		"frames":     result.FrameCount,
	})

	return result, nil
}

// score dispatches on the configured method. The switch is exhaustive over
// the runnable methods; an unknown method is a configuration bug surfaced as
// an error rather than a silent no-detection.
func (p *Processor) score(freqs []float64, magnitude [][]float64, doaResult *DOAResult) (*DetectionResult, error) {
	var result *DetectionResult

	switch p.cfg.Method {
	case config.MethodEnergyLikelihood, config.MethodCombined:
		clipResult, err := p.scoreEnergyLikelihood(freqs, magnitude)
		if err != nil {
			return nil, err
		}
		result = clipResult

	case config.MethodGCCPhatDOA:
		result = p.scoreDOA(doaResult)

	case config.MethodHarmonicFilter:
		result = p.scoreHarmonicEnergy(magnitude)

	case config.MethodMLModel:
		// Handled before framing; reaching here is a dispatch bug.
		return nil, fmt.Errorf("ml_model method dispatched to signal scoring")

	default:
		return nil, fmt.Errorf("unknown detection method %q", p.cfg.Method)
	}

	// DOA fields attach to any method when stereo input made estimation
	// possible, independent of which score drove detection.
	if doaResult != nil {
		result.DOAAngleDeg = floatPtr(doaResult.AngleDeg)
		result.DOAStdDeg = floatPtr(doaResult.StdDeg)
	}

	return result, nil
}

func (p *Processor) scoreEnergyLikelihood(freqs []float64, magnitude [][]float64) (*DetectionResult, error) {
	p.detector.Reset()

	scores := make([]*EvidenceScore, 0, len(magnitude))
	for _, frame := range magnitude {
		score, err := p.detector.ScoreFrame(freqs, frame)
		if err != nil {
			return nil, err
		}
		scores = append(scores, score)
	}

	clip := AggregateClip(scores)

	result := &DetectionResult{
		Detected:   clip.Detected,
		Confidence: clip.MeanConfidence,
		Method:     p.cfg.Method,
	}
	if len(scores) > 0 {
		result.SNRDb = floatPtr(clip.MeanSNRDb)
		result.HarmonicScore = floatPtr(clip.MeanHarmonicScore)
		result.TemporalScore = floatPtr(clip.MeanTemporalScore)
	}

	return result, nil
}

// scoreDOA derives detection from angular stability: a source holding a
// steady bearing across frames is more likely real than scattered peaks.
func (p *Processor) scoreDOA(doaResult *DOAResult) *DetectionResult {
	if doaResult == nil {
		return &DetectionResult{
			Detected:   false,
			Confidence: 0,
			Method:     config.MethodGCCPhatDOA,
		}
	}

	confidence := 1.0 - doaResult.StdDeg/doaStabilitySpanDeg
	confidence = math.Max(0, math.Min(1, confidence))

	return &DetectionResult{
		Detected:   confidence >= p.cfg.ConfidenceThreshold,
		Confidence: confidence,
		Method:     config.MethodGCCPhatDOA,
	}
}

// scoreHarmonicEnergy thresholds the residual energy after harmonic
// filtering, scaled by a fixed normalization constant.
func (p *Processor) scoreHarmonicEnergy(magnitude [][]float64) *DetectionResult {
	var sum float64
	var count int
	for _, frame := range magnitude {
		for _, m := range frame {
			sum += m * m
			count++
		}
	}

	confidence := 0.0
	if count > 0 {
		confidence = math.Max(0, math.Min(1, (sum/float64(count))/harmonicEnergyNorm))
	}

	return &DetectionResult{
		Detected:   confidence >= p.cfg.ConfidenceThreshold,
		Confidence: confidence,
		Method:     config.MethodHarmonicFilter,
	}
}

// processWithClassifier extracts the mean dB-magnitude spectrum and
// delegates to the external classifier. Any failure resolves to the
// explicit ml_model_error method with zero confidence.
func (p *Processor) processWithClassifier(audio *transcode.AudioData, start time.Time) (*DetectionResult, error) {
	errorResult := func() *DetectionResult {
		return &DetectionResult{
			Detected:       false,
			Confidence:     0,
			Method:         config.MethodMLModelError,
			ProcessingTime: time.Since(start),
		}
	}

	sampleRate := float64(audio.SampleRate)

	var (
		frames    *spectral.FrameResult
		multi     *spectral.MultiFrameResult
		doaResult *DOAResult
		err       error
	)

	if audio.Stereo() {
		multi, err = p.framer.FrameMultichannel(audio.Samples, sampleRate)
		if err != nil {
			return nil, err
		}
		frames = spectral.MixdownFrames(multi)
	} else {
		frames, err = p.framer.Frame(audio.Samples[0], sampleRate)
		if err != nil {
			return nil, err
		}
	}

	spec, err := p.analyzer.Compute(frames)
	if err != nil {
		return nil, err
	}

	if len(spec.MagnitudeDB) == 0 {
		return &DetectionResult{
			Detected:       false,
			Confidence:     0,
			Method:         config.MethodMLModel,
			ProcessingTime: time.Since(start),
		}, nil
	}

	if p.classifier == nil {
		p.logger.Warn("no classifier wired, reporting ml_model_error")
		return errorResult(), nil
	}

	// Feature vector: mean dB magnitude per bin across frames.
	features := make([]float64, spec.FreqBins)
	column := make([]float64, len(spec.MagnitudeDB))
	for k := range spec.FreqBins {
		for t, frame := range spec.MagnitudeDB {
			column[t] = frame[k]
		}
		features[k] = stat.Mean(column, nil)
	}

	confidence, err := p.classifier.Predict(features)
	if err != nil {
		p.logger.Error(err, "classifier inference failed")
		return errorResult(), nil
	}

	// DOA still attaches when stereo allowed estimation.
	if multi != nil {
		if doaResult, err = p.doa.EstimateFromFrames(multi); err != nil {
			p.logger.Warn("DOA estimation failed", logging.Fields{"error": err.Error()})
			doaResult = nil
		}
	}

	result := &DetectionResult{
		Detected:       confidence >= p.cfg.ConfidenceThreshold,
		Confidence:     confidence,
		Method:         config.MethodMLModel,
		ProcessingTime: time.Since(start),
		FrameCount:     len(frames.Frames),
	}
	if doaResult != nil {
		result.DOAAngleDeg = floatPtr(doaResult.AngleDeg)
		result.DOAStdDeg = floatPtr(doaResult.StdDeg)
	}

	return result, nil
}

func floatPtr(v float64) *float64 {
	return &v
}
