package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect drains all buffered events from the channel.
func collect(events chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func newTestMonitor() (*monitor, chan Event) {
	events := make(chan Event, 64)
	stopCh := make(chan struct{})
	return newMonitor("pw-dump", events, stopCh), events
}

const dumpBatch = `[
  {
    "id": 42,
    "type": "PipeWire:Interface:Node",
    "info": {
      "props": {
        "media.class": "Stream/Output/Audio",
        "media.name": "playStream",
        "application.name": "Spotify",
        "application.process.binary": "spotify",
        "node.name": "spotify",
        "object.serial": 1205
      }
    }
  },
  {
    "id": 43,
    "type": "PipeWire:Interface:Port",
    "info": { "props": {} }
  },
  {
    "id": 44,
    "type": "PipeWire:Interface:Node",
    "info": {
      "props": {
        "media.class": "Audio/Sink",
        "node.name": "alsa_output"
      }
    }
  }
]`

func TestDecodeSurfacesOnlyAudioStreams(t *testing.T) {
	m, events := newTestMonitor()

	m.decode(strings.NewReader(dumpBatch))

	got := collect(events)
	require.Len(t, got, 1)

	added, ok := got[0].(NodeAdded)
	require.True(t, ok)
	assert.Equal(t, uint32(42), added.ID)
	assert.Equal(t, "Stream/Output/Audio", added.Meta.MediaClass)
	assert.Equal(t, "Spotify", added.Meta.AppName)
	assert.Equal(t, "spotify", added.Meta.Binary)
	assert.Equal(t, "playStream", added.Meta.MediaName)
	// Numeric serials are rendered as wpctl prints them.
	assert.Equal(t, "1205", added.Meta.Serial)
}

func TestDecodePropertyChangeIsNotReAnnounced(t *testing.T) {
	m, events := newTestMonitor()

	m.decode(strings.NewReader(dumpBatch))
	collect(events)

	// pw-dump re-emits the node on any property change.
	m.decode(strings.NewReader(dumpBatch))
	assert.Empty(t, collect(events))
}

func TestDecodeRemovalOfKnownNode(t *testing.T) {
	m, events := newTestMonitor()

	m.decode(strings.NewReader(dumpBatch))
	collect(events)

	m.decode(strings.NewReader(`[{"id": 42, "type": "PipeWire:Interface:Node", "info": null}]`))

	got := collect(events)
	require.Len(t, got, 1)
	removed, ok := got[0].(NodeRemoved)
	require.True(t, ok)
	assert.Equal(t, uint32(42), removed.ID)
}

func TestDecodeRemovalOfUnknownObjectIsSilent(t *testing.T) {
	m, events := newTestMonitor()

	// Ports, links and never-seen nodes vanish without events.
	m.decode(strings.NewReader(`[{"id": 99, "info": null}]`))
	assert.Empty(t, collect(events))
}

func TestDecodeStreamOfBatches(t *testing.T) {
	m, events := newTestMonitor()

	// pw-dump --monitor emits one JSON array per graph change,
	// concatenated on stdout.
	input := dumpBatch + "\n" + `[{"id": 42, "type": "PipeWire:Interface:Node", "info": null}]`
	m.decode(strings.NewReader(input))

	got := collect(events)
	require.Len(t, got, 2)
	assert.IsType(t, NodeAdded{}, got[0])
	assert.IsType(t, NodeRemoved{}, got[1])
}

func TestDecodeMalformedInputStops(t *testing.T) {
	m, events := newTestMonitor()
	m.decode(strings.NewReader(`not json`))
	assert.Empty(t, collect(events))
}

func TestDecodeHoldsRestoredUntilFirstBatch(t *testing.T) {
	m, events := newTestMonitor()
	m.resync = true

	// A replacement process that produces no output proves nothing.
	m.decode(strings.NewReader(""))
	assert.Empty(t, collect(events))
	assert.True(t, m.resync)

	m.decode(strings.NewReader(dumpBatch))

	got := collect(events)
	require.Len(t, got, 2)
	assert.IsType(t, SessionRestored{}, got[0])
	assert.IsType(t, NodeAdded{}, got[1])
	assert.False(t, m.resync)
}

func TestIsAudioStream(t *testing.T) {
	assert.True(t, isAudioStream("Stream/Output/Audio"))
	assert.True(t, isAudioStream("Stream/Input/Audio"))
	assert.False(t, isAudioStream("Audio/Sink"))
	assert.False(t, isAudioStream("Stream/Output/Video"))
	assert.False(t, isAudioStream(""))
}

func TestMetaFromPropsMissingKeys(t *testing.T) {
	meta := metaFromProps(map[string]any{"media.class": "Stream/Output/Audio"})
	assert.Equal(t, "Stream/Output/Audio", meta.MediaClass)
	assert.Empty(t, meta.AppName)
	assert.Empty(t, meta.Serial)
}
