package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestMethodValid(t *testing.T) {
	for _, m := range []Method{MethodEnergyLikelihood, MethodGCCPhatDOA,
		MethodHarmonicFilter, MethodCombined, MethodMLModel} {
		assert.True(t, m.Valid(), string(m))
	}

	assert.False(t, MethodMLModelError.Valid())
	assert.False(t, MethodNone.Valid())
	assert.False(t, Method("fft_magic").Valid())
}

func TestValidateRejects(t *testing.T) {
	mutations := map[string]func(*DetectionConfig){
		"unknown method":    func(c *DetectionConfig) { c.Method = "bogus" },
		"zero f0":           func(c *DetectionConfig) { c.FundamentalFreqHz = 0 },
		"zero harmonics":    func(c *DetectionConfig) { c.NumHarmonics = 0 },
		"zero bandwidth":    func(c *DetectionConfig) { c.HarmonicBandwidthHz = 0 },
		"inverted band":     func(c *DetectionConfig) { c.FreqBandHighHz = c.FreqBandLowHz - 1 },
		"inverted snr":      func(c *DetectionConfig) { c.SNRMaxDB = c.SNRMinDB },
		"zero window":       func(c *DetectionConfig) { c.TemporalWindow = 0 },
		"threshold over 1":  func(c *DetectionConfig) { c.ConfidenceThreshold = 1.5 },
		"zero frame length": func(c *DetectionConfig) { c.FrameLengthMs = 0 },
		"zero nfft":         func(c *DetectionConfig) { c.NFFT = 0 },
		"zero spacing":      func(c *DetectionConfig) { c.MicSpacingM = 0 },
		"zero interp":       func(c *DetectionConfig) { c.InterpFactor = 0 },
	}

	for name, mutate := range mutations {
		cfg := Default()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestPresets(t *testing.T) {
	presets := Presets()
	require.Len(t, presets, 3)

	active := 0
	for _, p := range presets {
		require.NoError(t, p.Validate(), p.Name)
		if p.Active {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detect.yaml")
	content := []byte("method: energy_likelihood\nconfidence_threshold: 0.9\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, MethodEnergyLikelihood, cfg.Method)
	assert.Equal(t, 0.9, cfg.ConfidenceThreshold)

	// Unset keys come from the defaults.
	assert.Equal(t, 150.0, cfg.FundamentalFreqHz)
	assert.Equal(t, 1024, cfg.NFFT)
}

func TestLoadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detect.yaml")
	require.NoError(t, os.WriteFile(path, []byte("method: bogus\n"), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestStoreSingleActive(t *testing.T) {
	store := NewSeededStore()

	active, err := store.Active()
	require.NoError(t, err)
	assert.Equal(t, "Default Combined", active.Name)

	// Activating another config atomically deactivates the rest.
	var doaID int
	for _, cfg := range store.List() {
		if cfg.Method == MethodGCCPhatDOA {
			doaID = cfg.ID
		}
	}
	require.NotZero(t, doaID)
	require.NoError(t, store.Activate(doaID))

	active, err = store.Active()
	require.NoError(t, err)
	assert.Equal(t, doaID, active.ID)

	activeCount := 0
	for _, cfg := range store.List() {
		if cfg.Active {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestStoreActiveMissing(t *testing.T) {
	store := NewStore()

	_, err := store.Active()
	assert.ErrorIs(t, err, ErrNoActiveConfig)

	id, err := store.Create(Default())
	require.NoError(t, err)

	// Created inactive: still no active config.
	_, err = store.Active()
	assert.ErrorIs(t, err, ErrNoActiveConfig)

	require.NoError(t, store.Activate(id))
	_, err = store.Active()
	assert.NoError(t, err)

	// Deleting the active config empties the active slot again.
	require.NoError(t, store.Delete(id))
	_, err = store.Active()
	assert.ErrorIs(t, err, ErrNoActiveConfig)
}

func TestStoreUpdatePreservesActiveFlag(t *testing.T) {
	store := NewStore()

	id, err := store.Create(Default())
	require.NoError(t, err)
	require.NoError(t, store.Activate(id))

	updated := Default()
	updated.ConfidenceThreshold = 0.6
	updated.Active = false
	require.NoError(t, store.Update(id, updated))

	got, err := store.Get(id)
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, 0.6, got.ConfidenceThreshold)
}

func TestStoreGetUnknown(t *testing.T) {
	store := NewStore()
	_, err := store.Get(99)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}
