package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Method selects the detection strategy a processor runs.
type Method string

const (
	MethodEnergyLikelihood Method = "energy_likelihood"
	MethodGCCPhatDOA       Method = "gcc_phat_doa"
	MethodHarmonicFilter   Method = "harmonic_filter"
	MethodCombined         Method = "combined"
	MethodMLModel          Method = "ml_model"

	// MethodMLModelError marks results where the external classifier could
	// not be loaded or failed at inference. Never substituted silently.
	MethodMLModelError Method = "ml_model_error"

	// MethodNone marks results produced without any detection strategy.
	MethodNone Method = "none"
)

// Valid reports whether the method is one a processor can be configured with.
// The error variants are result-only.
func (m Method) Valid() bool {
	switch m {
	case MethodEnergyLikelihood, MethodGCCPhatDOA, MethodHarmonicFilter,
		MethodCombined, MethodMLModel:
		return true
	default:
		return false
	}
}

// DetectionConfig holds every tunable of the per-clip detection pipeline.
type DetectionConfig struct {
	ID     int    `json:"id" mapstructure:"id"`
	Name   string `json:"name" mapstructure:"name"`
	Method Method `json:"method" mapstructure:"method"`
	Active bool   `json:"active" mapstructure:"active"`

	// Harmonic structure
	FundamentalFreqHz   float64 `json:"fundamental_freq_hz" mapstructure:"fundamental_freq_hz"`
	NumHarmonics        int     `json:"n_harmonics" mapstructure:"n_harmonics"`
	HarmonicBandwidthHz float64 `json:"harmonic_bandwidth_hz" mapstructure:"harmonic_bandwidth_hz"`

	// Scoring band and evidence calibration
	FreqBandLowHz       float64 `json:"freq_band_low_hz" mapstructure:"freq_band_low_hz"`
	FreqBandHighHz      float64 `json:"freq_band_high_hz" mapstructure:"freq_band_high_hz"`
	SNRMinDB            float64 `json:"snr_min_db" mapstructure:"snr_min_db"`
	SNRMaxDB            float64 `json:"snr_max_db" mapstructure:"snr_max_db"`
	HarmonicMinSNRDB    float64 `json:"harmonic_min_snr_db" mapstructure:"harmonic_min_snr_db"`
	TemporalWindow      int     `json:"temporal_window" mapstructure:"temporal_window"`
	WeightSNR           float64 `json:"weight_snr" mapstructure:"weight_snr"`
	WeightHarmonic      float64 `json:"weight_harmonic" mapstructure:"weight_harmonic"`
	WeightTemporal      float64 `json:"weight_temporal" mapstructure:"weight_temporal"`
	ConfidenceThreshold float64 `json:"confidence_threshold" mapstructure:"confidence_threshold"`

	// Framing
	FrameLengthMs float64 `json:"frame_length_ms" mapstructure:"frame_length_ms"`
	HopLengthMs   float64 `json:"hop_length_ms" mapstructure:"hop_length_ms"`
	NFFT          int     `json:"nfft" mapstructure:"nfft"`
	WindowType    string  `json:"window_type" mapstructure:"window_type"`

	// DOA estimation
	MicSpacingM  float64 `json:"mic_spacing_m" mapstructure:"mic_spacing_m"`
	InterpFactor int     `json:"interp_factor" mapstructure:"interp_factor"`

	// External classifier
	UseMLModel  bool   `json:"use_ml_model" mapstructure:"use_ml_model"`
	MLModelPath string `json:"ml_model_path" mapstructure:"ml_model_path"`
}

// Default returns the stock combined-method configuration.
func Default() *DetectionConfig {
	return &DetectionConfig{
		Name:                "Default Combined",
		Method:              MethodCombined,
		FundamentalFreqHz:   150.0,
		NumHarmonics:        7,
		HarmonicBandwidthHz: 40.0,
		FreqBandLowHz:       100.0,
		FreqBandHighHz:      5000.0,
		SNRMinDB:            0.0,
		SNRMaxDB:            30.0,
		HarmonicMinSNRDB:    3.0,
		TemporalWindow:      5,
		WeightSNR:           0.4,
		WeightHarmonic:      0.3,
		WeightTemporal:      0.3,
		ConfidenceThreshold: 0.75,
		FrameLengthMs:       64.0,
		HopLengthMs:         32.0,
		NFFT:                1024,
		WindowType:          "hann",
		MicSpacingM:         0.14,
		InterpFactor:        16,
	}
}

// Presets returns the configurations seeded on first run.
func Presets() []*DetectionConfig {
	combined := Default()
	combined.Active = true

	energy := Default()
	energy.Name = "Energy Likelihood Only"
	energy.Method = MethodEnergyLikelihood
	energy.ConfidenceThreshold = 0.80
	energy.FreqBandHighHz = 2000.0
	energy.TemporalWindow = 7

	doa := Default()
	doa.Name = "GCC-PHAT DOA"
	doa.Method = MethodGCCPhatDOA
	doa.ConfidenceThreshold = 0.70

	return []*DetectionConfig{combined, energy, doa}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *DetectionConfig) Validate() error {
	if !c.Method.Valid() {
		return fmt.Errorf("unknown detection method %q", c.Method)
	}
	if c.FundamentalFreqHz <= 0 {
		return fmt.Errorf("fundamental frequency must be positive, got %.2f", c.FundamentalFreqHz)
	}
	if c.NumHarmonics <= 0 {
		return fmt.Errorf("harmonic count must be positive, got %d", c.NumHarmonics)
	}
	if c.HarmonicBandwidthHz <= 0 {
		return fmt.Errorf("harmonic bandwidth must be positive, got %.2f", c.HarmonicBandwidthHz)
	}
	if c.FreqBandLowHz < 0 || c.FreqBandHighHz <= c.FreqBandLowHz {
		return fmt.Errorf("invalid frequency band [%.2f, %.2f]", c.FreqBandLowHz, c.FreqBandHighHz)
	}
	if c.SNRMaxDB <= c.SNRMinDB {
		return fmt.Errorf("invalid SNR range [%.2f, %.2f]", c.SNRMinDB, c.SNRMaxDB)
	}
	if c.TemporalWindow <= 0 {
		return fmt.Errorf("temporal window must be positive, got %d", c.TemporalWindow)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be in [0, 1], got %.2f", c.ConfidenceThreshold)
	}
	if c.FrameLengthMs <= 0 || c.HopLengthMs <= 0 {
		return fmt.Errorf("frame/hop lengths must be positive, got %.2f/%.2f ms", c.FrameLengthMs, c.HopLengthMs)
	}
	if c.NFFT <= 0 {
		return fmt.Errorf("nfft must be positive, got %d", c.NFFT)
	}
	if c.MicSpacingM <= 0 {
		return fmt.Errorf("mic spacing must be positive, got %.3f", c.MicSpacingM)
	}
	if c.InterpFactor <= 0 {
		return fmt.Errorf("interpolation factor must be positive, got %d", c.InterpFactor)
	}
	return nil
}

// LoadFile reads a detection configuration from a YAML/JSON/TOML file,
// applying defaults for unset keys.
func LoadFile(path string) (*DetectionConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := Default()
	v.SetDefault("method", string(defaults.Method))
	v.SetDefault("fundamental_freq_hz", defaults.FundamentalFreqHz)
	v.SetDefault("n_harmonics", defaults.NumHarmonics)
	v.SetDefault("harmonic_bandwidth_hz", defaults.HarmonicBandwidthHz)
	v.SetDefault("freq_band_low_hz", defaults.FreqBandLowHz)
	v.SetDefault("freq_band_high_hz", defaults.FreqBandHighHz)
	v.SetDefault("snr_min_db", defaults.SNRMinDB)
	v.SetDefault("snr_max_db", defaults.SNRMaxDB)
	v.SetDefault("harmonic_min_snr_db", defaults.HarmonicMinSNRDB)
	v.SetDefault("temporal_window", defaults.TemporalWindow)
	v.SetDefault("weight_snr", defaults.WeightSNR)
	v.SetDefault("weight_harmonic", defaults.WeightHarmonic)
	v.SetDefault("weight_temporal", defaults.WeightTemporal)
	v.SetDefault("confidence_threshold", defaults.ConfidenceThreshold)
	v.SetDefault("frame_length_ms", defaults.FrameLengthMs)
	v.SetDefault("hop_length_ms", defaults.HopLengthMs)
	v.SetDefault("nfft", defaults.NFFT)
	v.SetDefault("window_type", defaults.WindowType)
	v.SetDefault("mic_spacing_m", defaults.MicSpacingM)
	v.SetDefault("interp_factor", defaults.InterpFactor)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &DetectionConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
