// Package audio provides PCM level metering and voice activity detection.
package audio

import (
	"encoding/binary"
	"math"
)

const (
	// MinDB is the minimum dB level (silence).
	MinDB = -60.0
	// MaxSampleValue is the maximum absolute value for 16-bit signed audio.
	MaxSampleValue = 32768.0
)

// LevelData holds raw sample accumulator data for level calculation.
type LevelData struct {
	SumSquares  float64
	Peak        float64
	SampleCount int
}

// ProcessSamples processes S16LE stereo PCM data and accumulates level data.
// Channels are averaged into a single mono level, which is what the voice
// activity decision operates on.
func ProcessSamples(buf []byte, n int, data *LevelData) {
	for i := 0; i+3 < n; i += 4 {
		left := float64(int16(binary.LittleEndian.Uint16(buf[i:])))
		right := float64(int16(binary.LittleEndian.Uint16(buf[i+2:])))
		mono := (left + right) / 2

		data.SumSquares += mono * mono

		if abs := math.Abs(mono); abs > data.Peak {
			data.Peak = abs
		}

		data.SampleCount++
	}
}

// Levels contains calculated audio levels in dB full scale.
type Levels struct {
	RMSDB  float64
	PeakDB float64
}

// CalculateLevels computes RMS and peak levels from accumulated sample data.
func CalculateLevels(data *LevelData) Levels {
	if data.SampleCount == 0 {
		return Levels{RMSDB: MinDB, PeakDB: MinDB}
	}

	rms := math.Sqrt(data.SumSquares / float64(data.SampleCount))

	db := 20 * math.Log10(rms/MaxSampleValue)
	peakDB := 20 * math.Log10(data.Peak/MaxSampleValue)

	return Levels{
		RMSDB:  max(db, MinDB),
		PeakDB: max(peakDB, MinDB),
	}
}

// Reset resets accumulators for the next measurement period.
func (d *LevelData) Reset() {
	d.SampleCount = 0
	d.SumSquares = 0
	d.Peak = 0
}
