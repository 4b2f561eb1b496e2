package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPacket() *WirePacket {
	bearing := int64(4578) // 45.78 degrees
	return &WirePacket{
		EventID:      "evt-1",
		SensorType:   SensorTypeAcoustic,
		TsNs:         1_000_000_000_000,
		SensorNodeID: "NODE_01",
		Location: WireLocation{
			LatInt:       5251630, // 52.5163
			LonInt:       1337770, // 13.3777
			ErrorRadiusM: 15,
		},
		BearingDeg:        &bearing,
		BearingConfidence: 87,
		NObjectsDetected:  1,
		EventCode:         EventCodeDrone,
		LocationMethod:    LocBearingOnly,
		PacketVersion:     PacketVersion,
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validPacket().Validate())

	mutations := map[string]func(*WirePacket){
		"missing event id":   func(p *WirePacket) { p.EventID = "" },
		"missing node id":    func(p *WirePacket) { p.SensorNodeID = "" },
		"missing timestamp":  func(p *WirePacket) { p.TsNs = 0 },
		"unknown sensor":     func(p *WirePacket) { p.SensorType = "seismic" },
		"confidence too big": func(p *WirePacket) { p.BearingConfidence = 101 },
		"negative conf":      func(p *WirePacket) { p.BearingConfidence = -1 },
		"negative objects":   func(p *WirePacket) { p.NObjectsDetected = -1 },
		"unknown loc method": func(p *WirePacket) { p.LocationMethod = "LOC_PSYCHIC" },
	}

	for name, mutate := range mutations {
		p := validPacket()
		mutate(p)
		assert.Error(t, p.Validate(), name)
	}
}

func TestToCanonical(t *testing.T) {
	p := validPacket()
	rx := p.TsNs + 100_000_000 // 100 ms later

	event, err := p.ToCanonical(rx)
	require.NoError(t, err)

	assert.Equal(t, "evt-1", event.EventID)
	assert.InDelta(t, 52.5163, event.Lat, 1e-9)
	assert.InDelta(t, 13.3777, event.Lon, 1e-9)
	require.NotNil(t, event.BearingDeg)
	assert.InDelta(t, 45.78, *event.BearingDeg, 1e-9)
	assert.InDelta(t, 0.87, event.BearingConf, 1e-9)
	assert.Equal(t, int64(100_000_000), event.LatencyNs)
	assert.Equal(t, LatencyNormal, event.LatencyStatus)
	assert.Equal(t, ValidityUnknown, event.ValidityStatus)
	assert.False(t, event.DuplicateFlag)
}

func TestToCanonicalRejectsInvalid(t *testing.T) {
	p := validPacket()
	p.BearingConfidence = 200

	_, err := p.ToCanonical(1)
	assert.Error(t, err)
}

func TestToCanonicalClockSkew(t *testing.T) {
	p := validPacket()

	// Receipt before source timestamp: latency floors at zero.
	event, err := p.ToCanonical(p.TsNs - 5_000_000_000)
	require.NoError(t, err)
	assert.Zero(t, event.LatencyNs)
	assert.Equal(t, LatencyNormal, event.LatencyStatus)
}

func TestLatencyStatusThresholds(t *testing.T) {
	assert.Equal(t, LatencyNormal, LatencyStatusFor(0))
	assert.Equal(t, LatencyNormal, LatencyStatusFor(int64(500*time.Millisecond)))
	assert.Equal(t, LatencyDelayed, LatencyStatusFor(int64(500*time.Millisecond)+1))
	assert.Equal(t, LatencyDelayed, LatencyStatusFor(int64(2*time.Second)))
	assert.Equal(t, LatencyObsolete, LatencyStatusFor(int64(2*time.Second)+1))
}

func TestRoundTripPrecision(t *testing.T) {
	p := validPacket()

	event, err := p.ToCanonical(p.TsNs + 1)
	require.NoError(t, err)

	back := event.ToWire()
	event2, err := back.ToCanonical(event.RxNs)
	require.NoError(t, err)

	// Fixed-point round trip: bearing within 0.01 degrees, confidence
	// within 0.01, not exact float equality.
	require.NotNil(t, event2.BearingDeg)
	assert.InDelta(t, *event.BearingDeg, *event2.BearingDeg, 0.01)
	assert.InDelta(t, event.BearingConf, event2.BearingConf, 0.01)
	assert.InDelta(t, event.Lat, event2.Lat, 1e-5)
	assert.InDelta(t, event.Lon, event2.Lon, 1e-5)
	assert.Equal(t, event.EventID, event2.EventID)
	assert.Equal(t, event.EventCode, event2.EventCode)
}

func TestRoundTripNilBearing(t *testing.T) {
	p := validPacket()
	p.BearingDeg = nil

	event, err := p.ToCanonical(p.TsNs + 1)
	require.NoError(t, err)
	assert.Nil(t, event.BearingDeg)

	back := event.ToWire()
	assert.Nil(t, back.BearingDeg)
}
