package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVolume(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want float64
		ok   bool
	}{
		{"plain", "Volume: 0.65\n", 0.65, true},
		{"muted", "Volume: 0.65 [MUTED]\n", 0.65, true},
		{"unity", "Volume: 1.00\n", 1.0, true},
		{"boosted", "Volume: 1.25\n", 1.25, true},
		{"integer", "Volume: 1\n", 1.0, true},
		{"garbage", "no volume here\n", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseVolume(tt.out)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSweepDroppedClearsAfterDrain(t *testing.T) {
	s := NewPWSession(ToolPaths{PWDump: "pw-dump", PWCat: "pw-cat", WpCtl: "wpctl"})
	s.running = true

	s.DropPending(7)
	s.SetStreamVolume(9, 0.5)

	// A queued request keeps the flag alive.
	s.sweepDropped()
	s.mu.Lock()
	kept := s.dropped[7]
	s.mu.Unlock()
	assert.True(t, kept)

	<-s.writes
	s.sweepDropped()
	s.mu.Lock()
	remaining := len(s.dropped)
	s.mu.Unlock()
	assert.Zero(t, remaining)
}

func TestEnqueueRevivesDroppedID(t *testing.T) {
	s := NewPWSession(ToolPaths{PWDump: "pw-dump", PWCat: "pw-cat", WpCtl: "wpctl"})
	s.running = true

	s.DropPending(7)
	s.SetStreamVolume(7, 0.5)

	s.mu.Lock()
	dropped := s.dropped[7]
	s.mu.Unlock()
	assert.False(t, dropped)
}

func TestResolveToolsHonorsOverrides(t *testing.T) {
	// Configured paths are trusted verbatim; exec reports a missing binary
	// at use time.
	tools, err := ResolveTools("/opt/pw/pw-dump", "/opt/pw/pw-cat", "/opt/pw/wpctl")
	assert.NoError(t, err)
	assert.Equal(t, "/opt/pw/pw-dump", tools.PWDump)
	assert.Equal(t, "/opt/pw/pw-cat", tools.PWCat)
	assert.Equal(t, "/opt/pw/wpctl", tools.WpCtl)
}
