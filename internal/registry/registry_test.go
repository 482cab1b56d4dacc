package registry

import (
	"testing"

	"github.com/oszuidwest/zwfm-ducker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() Policy {
	return Policy{
		VoiceMatch:        "discord",
		ExcludePatterns:   []string{"notification"},
		VoiceSourcePolicy: types.PolicyFirstWins,
	}
}

func playbackMeta(app string) types.NodeMeta {
	return types.NodeMeta{
		MediaClass: "Stream/Output/Audio",
		AppName:    app,
	}
}

func TestClassifyVoiceByAppName(t *testing.T) {
	r := New(testPolicy())
	meta := playbackMeta("Discord")
	assert.Equal(t, types.RoleVoiceSource, r.Classify(meta))
}

func TestClassifyVoiceCaseInsensitive(t *testing.T) {
	r := New(testPolicy())
	meta := types.NodeMeta{
		MediaClass: "Stream/Output/Audio",
		Binary:     "DiScOrD",
	}
	assert.Equal(t, types.RoleVoiceSource, r.Classify(meta))
}

func TestClassifyVoiceByMediaRole(t *testing.T) {
	r := New(Policy{})
	meta := types.NodeMeta{
		MediaClass: "Stream/Output/Audio",
		MediaRole:  "Communication",
		AppName:    "WEBRTC VoiceEngine",
	}
	assert.Equal(t, types.RoleVoiceSource, r.Classify(meta))
}

func TestClassifyPlaybackIsDuckTarget(t *testing.T) {
	r := New(testPolicy())
	assert.Equal(t, types.RoleDuckTarget, r.Classify(playbackMeta("Spotify")))
}

func TestClassifyExcludedIsIgnored(t *testing.T) {
	r := New(testPolicy())
	assert.Equal(t, types.RoleIgnored, r.Classify(playbackMeta("Notification Daemon")))
}

func TestClassifyNonPlaybackIsIgnored(t *testing.T) {
	r := New(testPolicy())
	meta := types.NodeMeta{
		MediaClass: "Audio/Sink",
		AppName:    "Spotify",
	}
	assert.Equal(t, types.RoleIgnored, r.Classify(meta))
}

func TestClassifyCaptureVoiceMatchWins(t *testing.T) {
	// A voice app's capture stream still identifies the voice source even
	// though it is not a playback stream.
	r := New(testPolicy())
	meta := types.NodeMeta{
		MediaClass: "Stream/Input/Audio",
		AppName:    "Discord",
	}
	assert.Equal(t, types.RoleVoiceSource, r.Classify(meta))
}

func TestRegisterDefaults(t *testing.T) {
	r := New(testPolicy())
	stream, displaced := r.Register(42, types.RoleDuckTarget, playbackMeta("Spotify"))
	require.NotNil(t, stream)
	assert.Nil(t, displaced)

	assert.Equal(t, uint32(42), stream.ID)
	assert.Equal(t, 1.0, stream.Baseline)
	assert.Equal(t, types.MaxGain, stream.CurrentGain)
	assert.Equal(t, types.MaxGain, stream.TargetGain)
	assert.Equal(t, types.DuckUnducked, stream.State)
	assert.Equal(t, float64(-1), stream.LastWritten)
	assert.Equal(t, 1, r.Len())
}

func TestFirstWinsDemotesSecondVoice(t *testing.T) {
	r := New(testPolicy())
	r.Register(1, types.RoleVoiceSource, playbackMeta("Discord"))

	second, displaced := r.Register(2, types.RoleVoiceSource, playbackMeta("Discord Canary"))
	assert.Nil(t, displaced)
	assert.Equal(t, types.RoleIgnored, second.Role)

	voice, ok := r.VoiceSource()
	require.True(t, ok)
	assert.Equal(t, uint32(1), voice.ID)
}

func TestNewestWinsDisplacesCurrentVoice(t *testing.T) {
	policy := testPolicy()
	policy.VoiceSourcePolicy = types.PolicyNewestWins
	r := New(policy)

	first, _ := r.Register(1, types.RoleVoiceSource, playbackMeta("Discord"))
	second, displaced := r.Register(2, types.RoleVoiceSource, playbackMeta("Discord Canary"))

	require.NotNil(t, displaced)
	assert.Equal(t, first.ID, displaced.ID)
	assert.Equal(t, types.RoleIgnored, displaced.Role)
	assert.Equal(t, types.RoleVoiceSource, second.Role)

	voice, ok := r.VoiceSource()
	require.True(t, ok)
	assert.Equal(t, uint32(2), voice.ID)
}

func TestHigherScoreDisplacesUnderFirstWins(t *testing.T) {
	r := New(testPolicy())

	// A notification node that merely contains the matcher substring.
	weak := types.NodeMeta{
		MediaClass: "Stream/Output/Audio",
		NodeName:   "discord-notify",
	}
	first, _ := r.Register(1, types.RoleVoiceSource, weak)

	// The real client: app-name match, communication role, full metadata.
	strong := types.NodeMeta{
		MediaClass: "Stream/Output/Audio",
		AppName:    "Discord",
		Binary:     "Discord",
		NodeName:   "WEBRTC VoiceEngine",
		MediaRole:  "communication",
	}
	second, displaced := r.Register(2, types.RoleVoiceSource, strong)

	require.NotNil(t, displaced)
	assert.Equal(t, first.ID, displaced.ID)
	assert.Equal(t, types.RoleVoiceSource, second.Role)
	assert.Greater(t, second.VoiceScore, first.VoiceScore)
}

func TestLowerScoreIsDemotedUnderNewestWins(t *testing.T) {
	policy := testPolicy()
	policy.VoiceSourcePolicy = types.PolicyNewestWins
	r := New(policy)

	strong := types.NodeMeta{
		MediaClass: "Stream/Output/Audio",
		AppName:    "Discord",
		MediaRole:  "communication",
	}
	r.Register(1, types.RoleVoiceSource, strong)

	weak := types.NodeMeta{
		MediaClass: "Stream/Output/Audio",
		NodeName:   "discord-notify",
	}
	second, displaced := r.Register(2, types.RoleVoiceSource, weak)

	// Newest-wins only breaks ties; a weaker candidate never takes over.
	assert.Nil(t, displaced)
	assert.Equal(t, types.RoleIgnored, second.Role)
}

func TestPromotePinsAgainstDisplacement(t *testing.T) {
	r := New(testPolicy())
	r.Register(1, types.RoleVoiceSource, playbackMeta("Discord"))
	r.Register(2, types.RoleDuckTarget, playbackMeta("Spotify"))

	stream, demoted, ok := r.Promote(2)
	require.True(t, ok)
	assert.Equal(t, types.RoleVoiceSource, stream.Role)
	assert.True(t, stream.Pinned)
	require.NotNil(t, demoted)
	// The old voice source becomes an ordinary playback stream again.
	assert.Equal(t, types.RoleDuckTarget, demoted.Role)

	// A strong automatic candidate cannot displace a pinned selection.
	second, displaced := r.Register(3, types.RoleVoiceSource, playbackMeta("Discord"))
	assert.Nil(t, displaced)
	assert.Equal(t, types.RoleIgnored, second.Role)

	voice, hasVoice := r.VoiceSource()
	require.True(t, hasVoice)
	assert.Equal(t, uint32(2), voice.ID)
}

func TestPromoteRejectsUnknownAndCurrent(t *testing.T) {
	r := New(testPolicy())
	r.Register(1, types.RoleVoiceSource, playbackMeta("Discord"))

	_, _, ok := r.Promote(99)
	assert.False(t, ok)

	_, _, ok = r.Promote(1)
	assert.False(t, ok)
}

func TestUnregisterVoiceSource(t *testing.T) {
	r := New(testPolicy())
	r.Register(1, types.RoleVoiceSource, playbackMeta("Discord"))

	stream, wasVoice := r.Unregister(1)
	require.NotNil(t, stream)
	assert.True(t, wasVoice)

	_, ok := r.VoiceSource()
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestUnregisterUnknownID(t *testing.T) {
	r := New(testPolicy())
	stream, wasVoice := r.Unregister(99)
	assert.Nil(t, stream)
	assert.False(t, wasVoice)
}

func TestIDReuseGetsFreshState(t *testing.T) {
	r := New(testPolicy())
	old, _ := r.Register(7, types.RoleDuckTarget, playbackMeta("Spotify"))
	old.CurrentGain = 0.45
	old.LastWritten = 0.45

	r.Unregister(7)
	fresh, _ := r.Register(7, types.RoleDuckTarget, playbackMeta("Firefox"))

	assert.Equal(t, types.MaxGain, fresh.CurrentGain)
	assert.Equal(t, float64(-1), fresh.LastWritten)
	assert.Equal(t, "Firefox", fresh.Meta.AppName)
}

func TestTargetsVisitsOnlyDuckTargets(t *testing.T) {
	r := New(testPolicy())
	r.Register(1, types.RoleVoiceSource, playbackMeta("Discord"))
	r.Register(2, types.RoleDuckTarget, playbackMeta("Spotify"))
	r.Register(3, types.RoleDuckTarget, playbackMeta("Firefox"))

	var ids []uint32
	r.Targets(func(s *TrackedStream) { ids = append(ids, s.ID) })
	assert.ElementsMatch(t, []uint32{2, 3}, ids)
}

func TestClearDropsEverything(t *testing.T) {
	r := New(testPolicy())
	r.Register(1, types.RoleVoiceSource, playbackMeta("Discord"))
	r.Register(2, types.RoleDuckTarget, playbackMeta("Spotify"))

	r.Clear()
	assert.Zero(t, r.Len())
	_, ok := r.VoiceSource()
	assert.False(t, ok)
}

func TestSetPolicyAffectsFutureClassification(t *testing.T) {
	r := New(testPolicy())
	assert.Equal(t, types.RoleDuckTarget, r.Classify(playbackMeta("Mumble")))

	r.SetPolicy(Policy{VoiceMatch: "mumble"})
	assert.Equal(t, types.RoleVoiceSource, r.Classify(playbackMeta("Mumble")))
}

func TestEmptyPolicyDefaultsToFirstWins(t *testing.T) {
	r := New(Policy{})
	r.Register(1, types.RoleVoiceSource, playbackMeta("a"))
	second, displaced := r.Register(2, types.RoleVoiceSource, playbackMeta("b"))
	assert.Nil(t, displaced)
	assert.Equal(t, types.RoleIgnored, second.Role)
}
