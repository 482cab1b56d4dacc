package events

import (
	"log/slog"

	"github.com/oszuidwest/zwfm-ducker/internal/registry"
	"github.com/oszuidwest/zwfm-ducker/internal/types"
)

// Recorder translates engine callbacks into journal entries. Appends are
// a single buffered write, fast enough for the engine's dispatch
// goroutine; a failed append is logged and never propagated.
type Recorder struct {
	logger *Logger
}

// NewRecorder creates a Recorder writing through the given logger.
func NewRecorder(logger *Logger) *Recorder {
	return &Recorder{logger: logger}
}

func (r *Recorder) record(event *Event) {
	if err := r.logger.Log(event); err != nil {
		slog.Warn("event journal write failed", "type", event.Type, "error", err)
	}
}

func (r *Recorder) ActivityChanged(active bool, levelDB float64) {
	eventType := VoiceInactive
	if active {
		eventType = VoiceActive
	}
	r.record(&Event{
		Type:    eventType,
		Details: &ActivityDetails{LevelDB: levelDB},
	})
}

func (r *Recorder) DuckEngaged(targets int) {
	r.record(&Event{Type: DuckEngaged, Details: &DuckDetails{Targets: targets}})
}

func (r *Recorder) DuckReleased(targets int) {
	r.record(&Event{Type: DuckReleased, Details: &DuckDetails{Targets: targets}})
}

func (r *Recorder) StreamAdded(s *registry.TrackedStream) {
	r.record(&Event{Type: StreamAdded, Details: streamDetails(s.ID, string(s.Role), s.Meta)})
}

func (r *Recorder) StreamRemoved(s *registry.TrackedStream) {
	r.record(&Event{Type: StreamRemoved, Details: streamDetails(s.ID, string(s.Role), s.Meta)})
}

func (r *Recorder) VoiceSourceSelected(id uint32, meta types.NodeMeta) {
	r.record(&Event{Type: VoiceSourceSelected, Details: streamDetails(id, "", meta)})
}

func (r *Recorder) VoiceSourceLost(id uint32, meta types.NodeMeta) {
	r.record(&Event{Type: VoiceSourceLost, Details: streamDetails(id, "", meta)})
}

func (r *Recorder) SessionLost(err error) {
	details := &SessionDetails{}
	if err != nil {
		details.Error = err.Error()
	}
	r.record(&Event{Type: SessionLost, Details: details})
}

func (r *Recorder) SessionRestored() {
	r.record(&Event{Type: SessionRestored})
}

func streamDetails(id uint32, role string, meta types.NodeMeta) *StreamDetails {
	return &StreamDetails{
		NodeID:    id,
		Role:      role,
		AppName:   meta.AppName,
		MediaName: meta.MediaName,
	}
}
