package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() ActivityConfig {
	return ActivityConfig{
		ActivationDB:      -34,
		DeactivationDB:    -40,
		ActivateSamples:   2,
		DeactivateSamples: 3,
	}
}

func TestActivityDetectorStartsInactive(t *testing.T) {
	d := NewActivityDetector(testConfig())
	assert.False(t, d.Active())
	assert.Equal(t, MinDB, d.LastLevelDB())
}

func TestActivityDetectorActivatesAfterDebounce(t *testing.T) {
	d := NewActivityDetector(testConfig())

	changed, active := d.Update(-30)
	assert.False(t, changed, "one loud sample must not activate")
	assert.False(t, active)

	changed, active = d.Update(-30)
	assert.True(t, changed)
	assert.True(t, active)
	assert.True(t, d.Active())
}

func TestActivityDetectorTransientDoesNotActivate(t *testing.T) {
	d := NewActivityDetector(testConfig())

	d.Update(-30)
	d.Update(-50) // dip resets the activation count
	changed, active := d.Update(-30)
	assert.False(t, changed)
	assert.False(t, active)
}

func TestActivityDetectorDeactivatesAfterDebounce(t *testing.T) {
	d := NewActivityDetector(testConfig())
	d.Update(-30)
	d.Update(-30)
	require.True(t, d.Active())

	// Two quiet samples are not enough with DeactivateSamples=3.
	d.Update(-50)
	changed, active := d.Update(-50)
	assert.False(t, changed)
	assert.True(t, active)

	changed, active = d.Update(-50)
	assert.True(t, changed)
	assert.False(t, active)
}

func TestActivityDetectorHysteresisBand(t *testing.T) {
	d := NewActivityDetector(testConfig())
	d.Update(-30)
	d.Update(-30)
	require.True(t, d.Active())

	// Levels between deactivation and activation keep the current state
	// and reset the silence count.
	d.Update(-50)
	d.Update(-50)
	d.Update(-37) // inside the band, resets belowCount
	d.Update(-50)
	changed, active := d.Update(-50)
	assert.False(t, changed)
	assert.True(t, active)
}

func TestActivityDetectorBandDoesNotActivate(t *testing.T) {
	d := NewActivityDetector(testConfig())

	// -37 is above deactivation but below activation: never counts as speech.
	for range 10 {
		changed, active := d.Update(-37)
		assert.False(t, changed)
		assert.False(t, active)
	}
}

func TestActivityDetectorForceInactive(t *testing.T) {
	d := NewActivityDetector(testConfig())
	d.Update(-30)
	d.Update(-30)
	require.True(t, d.Active())

	assert.True(t, d.ForceInactive())
	assert.False(t, d.Active())
	assert.Equal(t, MinDB, d.LastLevelDB())

	// Idempotent when already inactive.
	assert.False(t, d.ForceInactive())
}

func TestActivityDetectorSetConfigResetsCounters(t *testing.T) {
	cfg := testConfig()
	cfg.ActivateSamples = 3
	d := NewActivityDetector(cfg)

	d.Update(-30)
	d.Update(-30)
	d.SetConfig(cfg) // half-accumulated debounce must not carry over

	changed, _ := d.Update(-30)
	assert.False(t, changed)
	d.Update(-30)
	changed, active := d.Update(-30)
	assert.True(t, changed)
	assert.True(t, active)
}

func TestActivityDetectorTracksLastLevel(t *testing.T) {
	d := NewActivityDetector(testConfig())
	d.Update(-42.5)
	assert.Equal(t, -42.5, d.LastLevelDB())
}
