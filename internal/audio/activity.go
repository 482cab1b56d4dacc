package audio

// ActivityConfig holds the thresholds and debounce counts for voice
// activity detection. Separate activation and deactivation thresholds give
// the detector hysteresis in level as well as in time.
type ActivityConfig struct {
	ActivationDB      float64 // level at or above which a sample counts as speech
	DeactivationDB    float64 // level below which a sample counts as silence
	ActivateSamples   int     // consecutive speech samples before going active
	DeactivateSamples int     // consecutive silence samples before going inactive
}

// ActivityDetector turns a stream of periodic level samples into a debounced
// binary voice-activity signal. A single transient sample never flips the
// state. The detector is not safe for concurrent use; the engine calls it
// from its dispatch goroutine only.
type ActivityDetector struct {
	cfg         ActivityConfig
	active      bool
	aboveCount  int
	belowCount  int
	lastLevelDB float64
}

// NewActivityDetector creates a detector that starts inactive.
func NewActivityDetector(cfg ActivityConfig) *ActivityDetector {
	return &ActivityDetector{cfg: cfg, lastLevelDB: MinDB}
}

// Update feeds one level sample and reports whether the activity state
// flipped. The returned active value is the state after the sample.
func (d *ActivityDetector) Update(levelDB float64) (changed, active bool) {
	d.lastLevelDB = levelDB

	if d.active {
		if levelDB < d.cfg.DeactivationDB {
			d.belowCount++
			if d.belowCount >= d.cfg.DeactivateSamples {
				d.active = false
				d.belowCount = 0
				d.aboveCount = 0
				return true, false
			}
		} else {
			d.belowCount = 0
		}
		return false, true
	}

	if levelDB >= d.cfg.ActivationDB {
		d.aboveCount++
		if d.aboveCount >= d.cfg.ActivateSamples {
			d.active = true
			d.aboveCount = 0
			d.belowCount = 0
			return true, true
		}
	} else {
		d.aboveCount = 0
	}
	return false, false
}

// ForceInactive clears the activity state unconditionally, used when the
// voice source disappears. Reports whether the state flipped.
func (d *ActivityDetector) ForceInactive() (changed bool) {
	changed = d.active
	d.active = false
	d.aboveCount = 0
	d.belowCount = 0
	d.lastLevelDB = MinDB
	return changed
}

// Active returns the current activity state.
func (d *ActivityDetector) Active() bool {
	return d.active
}

// LastLevelDB returns the most recent level sample.
func (d *ActivityDetector) LastLevelDB() float64 {
	return d.lastLevelDB
}

// SetConfig replaces the thresholds and debounce counts. Counters reset so
// a half-accumulated debounce never carries over to new settings.
func (d *ActivityDetector) SetConfig(cfg ActivityConfig) {
	d.cfg = cfg
	d.aboveCount = 0
	d.belowCount = 0
}
