package detect

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/echoshield/echoshield/algorithms/harmonic"
	"github.com/echoshield/echoshield/algorithms/stats"
	"github.com/echoshield/echoshield/detect/config"
	"github.com/echoshield/echoshield/logging"
)

const (
	powerEpsilon = 1e-12

	// Fraction of frames that must individually detect for the clip to count
	// as a detection.
	clipDetectionRate = 0.3
)

// EvidenceScore is the per-frame output of the energy-likelihood detector.
type EvidenceScore struct {
	SNRDb         float64 `json:"snr_db"`
	HarmonicScore float64 `json:"harmonic_score"` // In [0, 1]
	TemporalScore float64 `json:"temporal_score"` // In [0, 1]
	Confidence    float64 `json:"confidence"`     // In [0, 1]
	Detected      bool    `json:"detected"`
}

// EnergyLikelihoodDetector scores frames for drone-likeness by fusing three
// evidence channels: band SNR, harmonic integrity, and temporal stability.
// It carries smoothing state across the frames of one clip; Reset clears the
// state between clips.
type EnergyLikelihoodDetector struct {
	cfg    *config.DetectionConfig
	logger logging.Logger

	mask     *harmonic.Mask
	maskFor  []float64 // Bin freqs the cached mask was built over
	snrHist  []float64
	harmHist []float64
}

// NewEnergyLikelihoodDetector creates a detector from a validated configuration.
func NewEnergyLikelihoodDetector(cfg *config.DetectionConfig) (*EnergyLikelihoodDetector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil detection config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &EnergyLikelihoodDetector{
		cfg: cfg,
		logger: logging.WithFields(logging.Fields{
			"component": "energy_likelihood_detector",
		}),
	}, nil
}

// Reset clears the temporal smoothing state. Call between clips.
func (d *EnergyLikelihoodDetector) Reset() {
	d.snrHist = d.snrHist[:0]
	d.harmHist = d.harmHist[:0]
}

// ScoreFrame scores one magnitude-spectrum frame. freqs must be the bin
// center frequencies matching magnitude.
func (d *EnergyLikelihoodDetector) ScoreFrame(freqs, magnitude []float64) (*EvidenceScore, error) {
	if len(freqs) != len(magnitude) {
		return nil, fmt.Errorf("freqs length (%d) doesn't match magnitude length (%d)", len(freqs), len(magnitude))
	}

	if err := d.ensureMask(freqs); err != nil {
		return nil, err
	}

	power := make([]float64, len(magnitude))
	for i, m := range magnitude {
		power[i] = m * m
	}

	snrDB, snrEvidence := d.snrEvidence(freqs, power)
	harmEvidence := d.harmonicEvidence(freqs, power)

	d.pushHistory(snrEvidence, harmEvidence)
	tempEvidence := d.temporalEvidence()

	confidence := d.cfg.WeightSNR*snrEvidence +
		d.cfg.WeightHarmonic*harmEvidence +
		d.cfg.WeightTemporal*tempEvidence
	confidence = math.Max(0, math.Min(1, confidence))

	return &EvidenceScore{
		SNRDb:         snrDB,
		HarmonicScore: harmEvidence,
		TemporalScore: tempEvidence,
		Confidence:    confidence,
		Detected:      confidence >= d.cfg.ConfidenceThreshold,
	}, nil
}

// ClipScore aggregates per-frame scores into the clip-level decision:
// mean confidence over frames, detection when at least clipDetectionRate of
// frames individually detect. Zero frames means no detection, confidence 0.
type ClipScore struct {
	Detected          bool    `json:"detected"`
	MeanConfidence    float64 `json:"mean_confidence"`
	DetectionRate     float64 `json:"detection_rate"`
	MeanSNRDb         float64 `json:"mean_snr_db"`
	MeanHarmonicScore float64 `json:"mean_harmonic_score"`
	MeanTemporalScore float64 `json:"mean_temporal_score"`
}

// AggregateClip folds per-frame evidence scores into a ClipScore.
func AggregateClip(scores []*EvidenceScore) *ClipScore {
	clip := &ClipScore{}
	if len(scores) == 0 {
		return clip
	}

	detected := 0
	for _, s := range scores {
		clip.MeanConfidence += s.Confidence
		clip.MeanSNRDb += s.SNRDb
		clip.MeanHarmonicScore += s.HarmonicScore
		clip.MeanTemporalScore += s.TemporalScore
		if s.Detected {
			detected++
		}
	}

	n := float64(len(scores))
	clip.MeanConfidence /= n
	clip.MeanSNRDb /= n
	clip.MeanHarmonicScore /= n
	clip.MeanTemporalScore /= n
	clip.DetectionRate = float64(detected) / n
	clip.Detected = clip.DetectionRate >= clipDetectionRate

	return clip
}

// ensureMask rebuilds the harmonic mask when the bin layout changes.
func (d *EnergyLikelihoodDetector) ensureMask(freqs []float64) error {
	if d.mask != nil && len(d.maskFor) == len(freqs) &&
		(len(freqs) == 0 || (d.maskFor[0] == freqs[0] && d.maskFor[len(freqs)-1] == freqs[len(freqs)-1])) {
		return nil
	}

	mask, err := harmonic.NewMask(freqs, d.cfg.FundamentalFreqHz, d.cfg.NumHarmonics, d.cfg.HarmonicBandwidthHz)
	if err != nil {
		return err
	}

	d.mask = mask
	d.maskFor = append(d.maskFor[:0], freqs...)
	return nil
}

// snrEvidence estimates band SNR as mean power over the median noise floor
// inside the coarse band, then normalizes the dB value into [0, 1] by the
// configured SNR range.
func (d *EnergyLikelihoodDetector) snrEvidence(freqs, power []float64) (snrDB, evidence float64) {
	band := make([]float64, 0, len(power))
	for i, f := range freqs {
		if f >= d.cfg.FreqBandLowHz && f <= d.cfg.FreqBandHighHz {
			band = append(band, power[i])
		}
	}

	if len(band) == 0 {
		return 0, 0
	}

	meanPower := stat.Mean(band, nil)
	noiseFloor := stats.Median(band)

	snrDB = 10 * math.Log10((meanPower+powerEpsilon)/(noiseFloor+powerEpsilon))

	evidence = (snrDB - d.cfg.SNRMinDB) / (d.cfg.SNRMaxDB - d.cfg.SNRMinDB)
	evidence = math.Max(0, math.Min(1, evidence))

	return snrDB, evidence
}

// harmonicEvidence measures the fraction of in-comb energy that clears the
// per-bin SNR gate, relative to total in-comb energy.
func (d *EnergyLikelihoodDetector) harmonicEvidence(freqs, power []float64) float64 {
	band := make([]float64, 0, len(power))
	for i, f := range freqs {
		if f >= d.cfg.FreqBandLowHz && f <= d.cfg.FreqBandHighHz {
			band = append(band, power[i])
		}
	}
	if len(band) == 0 {
		return 0
	}
	noiseFloor := stats.Median(band)

	var totalEnergy, strongEnergy float64
	for i, inBand := range d.mask.Bins {
		if !inBand || freqs[i] < d.cfg.FreqBandLowHz || freqs[i] > d.cfg.FreqBandHighHz {
			continue
		}

		totalEnergy += power[i]

		binSNR := 10 * math.Log10((power[i]+powerEpsilon)/(noiseFloor+powerEpsilon))
		if binSNR >= d.cfg.HarmonicMinSNRDB {
			strongEnergy += power[i]
		}
	}

	if totalEnergy <= 0 {
		return 0
	}

	return strongEnergy / totalEnergy
}

func (d *EnergyLikelihoodDetector) pushHistory(snrEv, harmEv float64) {
	d.snrHist = append(d.snrHist, snrEv)
	d.harmHist = append(d.harmHist, harmEv)

	if len(d.snrHist) > d.cfg.TemporalWindow {
		d.snrHist = d.snrHist[len(d.snrHist)-d.cfg.TemporalWindow:]
		d.harmHist = d.harmHist[len(d.harmHist)-d.cfg.TemporalWindow:]
	}
}

// temporalEvidence maps the recent variance of the other two evidence
// channels to [0, 1]: steady evidence scores high, erratic evidence decays
// toward zero. A single frame has no variance yet and scores neutral.
func (d *EnergyLikelihoodDetector) temporalEvidence() float64 {
	if len(d.snrHist) < 2 {
		return 0.5
	}

	variance := (stat.Variance(d.snrHist, nil) + stat.Variance(d.harmHist, nil)) / 2.0

	return 1.0 / (1.0 + 10.0*variance)
}
