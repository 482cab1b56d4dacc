package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// stereoFrames builds S16LE stereo PCM with the same value on both channels.
func stereoFrames(value int16, frames int) []byte {
	buf := make([]byte, frames*4)
	for i := 0; i < len(buf); i += 4 {
		binary.LittleEndian.PutUint16(buf[i:], uint16(value))
		binary.LittleEndian.PutUint16(buf[i+2:], uint16(value))
	}
	return buf
}

func TestCalculateLevelsSilence(t *testing.T) {
	var data LevelData
	buf := stereoFrames(0, 100)
	ProcessSamples(buf, len(buf), &data)

	levels := CalculateLevels(&data)
	assert.Equal(t, MinDB, levels.RMSDB)
	assert.Equal(t, MinDB, levels.PeakDB)
}

func TestCalculateLevelsEmpty(t *testing.T) {
	var data LevelData
	levels := CalculateLevels(&data)
	assert.Equal(t, MinDB, levels.RMSDB)
	assert.Equal(t, MinDB, levels.PeakDB)
}

func TestCalculateLevelsFullScale(t *testing.T) {
	var data LevelData
	buf := stereoFrames(32767, 100)
	ProcessSamples(buf, len(buf), &data)

	levels := CalculateLevels(&data)
	assert.InDelta(t, 0, levels.RMSDB, 0.01)
	assert.InDelta(t, 0, levels.PeakDB, 0.01)
}

func TestCalculateLevelsHalfScale(t *testing.T) {
	var data LevelData
	buf := stereoFrames(16384, 100)
	ProcessSamples(buf, len(buf), &data)

	levels := CalculateLevels(&data)
	expected := 20 * math.Log10(16384.0/MaxSampleValue) // about -6.02 dB
	assert.InDelta(t, expected, levels.RMSDB, 0.01)
	assert.InDelta(t, expected, levels.PeakDB, 0.01)
}

func TestProcessSamplesAveragesChannels(t *testing.T) {
	// Left at full scale, right silent: mono is half scale.
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:], uint16(int16(32766)))
	binary.LittleEndian.PutUint16(buf[2:], 0)

	var data LevelData
	ProcessSamples(buf, len(buf), &data)

	assert.Equal(t, 1, data.SampleCount)
	assert.InDelta(t, 16383, data.Peak, 0.5)
}

func TestProcessSamplesIgnoresPartialFrame(t *testing.T) {
	buf := stereoFrames(1000, 2)
	var data LevelData
	// Pass a length that cuts the second frame short.
	ProcessSamples(buf, 6, &data)
	assert.Equal(t, 1, data.SampleCount)
}

func TestLevelDataReset(t *testing.T) {
	var data LevelData
	buf := stereoFrames(1000, 10)
	ProcessSamples(buf, len(buf), &data)
	assert.NotZero(t, data.SampleCount)

	data.Reset()
	assert.Zero(t, data.SampleCount)
	assert.Zero(t, data.SumSquares)
	assert.Zero(t, data.Peak)
}
