package server

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-ducker/internal/config"
	"github.com/oszuidwest/zwfm-ducker/internal/notify"
	"github.com/oszuidwest/zwfm-ducker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineSettingsConversion(t *testing.T) {
	d := config.DuckingConfig{
		AttenuationFactor: 0.45,
		ActivationDB:      -34,
		DeactivationDB:    -40,
		ActivateSamples:   2,
		DeactivateSamples: 18,
		RampMs:            150,
	}

	s := EngineSettings(&d)
	assert.Equal(t, 0.45, s.AttenuationFactor)
	assert.Equal(t, -34.0, s.ActivationDB)
	assert.Equal(t, 150*time.Millisecond, s.RampDuration)
	assert.Equal(t, 18, s.DeactivateSamples)
}

func TestEnginePolicyConversion(t *testing.T) {
	d := config.DuckingConfig{
		VoiceAppMatch:     "discord",
		ExcludePatterns:   []string{"notification"},
		VoiceSourcePolicy: "newest",
	}

	p := EnginePolicy(&d)
	assert.Equal(t, "discord", p.VoiceMatch)
	assert.Equal(t, []string{"notification"}, p.ExcludePatterns)
	assert.Equal(t, types.PolicyNewestWins, p.VoiceSourcePolicy)
}

func TestDuckingUpdateRequestValidation(t *testing.T) {
	attenuation := 0.5
	valid := DuckingUpdateRequest{AttenuationFactor: &attenuation}
	assert.NoError(t, ValidateStruct(&valid))

	bad := 1.5
	invalid := DuckingUpdateRequest{AttenuationFactor: &bad}
	assert.Error(t, ValidateStruct(&invalid))

	policy := "loudest"
	invalidPolicy := DuckingUpdateRequest{VoiceSourcePolicy: &policy}
	assert.Error(t, ValidateStruct(&invalidPolicy))

	// Omitted pointer fields pass untouched.
	assert.NoError(t, ValidateStruct(&DuckingUpdateRequest{}))
}

func TestSelectVoiceRequestValidation(t *testing.T) {
	assert.NoError(t, ValidateStruct(&SelectVoiceRequest{NodeID: 42}))
	assert.Error(t, ValidateStruct(&SelectVoiceRequest{}))
}

func TestS3TestRequestValidation(t *testing.T) {
	valid := S3TestRequest{
		Bucket:    "journals",
		AccessKey: "key",
		SecretKey: "secret",
	}
	assert.NoError(t, ValidateStruct(&valid))

	assert.Error(t, ValidateStruct(&S3TestRequest{Bucket: "journals"}))
}

func TestReadAlertLogNewestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.log")
	entries := []notify.AlertLogEntry{
		{Timestamp: "2026-08-23T10:00:00Z", Event: "session_lost", Error: "pipewire gone"},
		{Timestamp: "2026-08-23T10:05:00Z", Event: "session_restored"},
		{Timestamp: "2026-08-23T11:00:00Z", Event: "voice_source_selected", NodeID: 42},
	}

	var data []byte
	for _, e := range entries {
		line, err := json.Marshal(e)
		require.NoError(t, err)
		data = append(data, line...)
		data = append(data, '\n')
	}
	require.NoError(t, os.WriteFile(path, data, 0o600))

	got, err := ReadAlertLog(path, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "voice_source_selected", got[0].Event)
	assert.Equal(t, "session_lost", got[2].Event)
}

func TestReadAlertLogHonorsLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.log")
	var data []byte
	for range 5 {
		data = append(data, []byte(`{"event":"session_lost"}`+"\n")...)
	}
	require.NoError(t, os.WriteFile(path, data, 0o600))

	got, err := ReadAlertLog(path, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestReadAlertLogMissingFile(t *testing.T) {
	got, err := ReadAlertLog(filepath.Join(t.TempDir(), "absent.log"), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadAlertLogSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.log")
	data := `{"event":"session_lost"}
not json
{"event":"session_restored"}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	got, err := ReadAlertLog(path, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "session_restored", got[0].Event)
}
