package ducking

import (
	"github.com/oszuidwest/zwfm-ducker/internal/registry"
	"github.com/oszuidwest/zwfm-ducker/internal/types"
)

// Observer receives engine lifecycle callbacks. All methods are invoked on
// the engine's dispatch goroutine and must not block; implementations that
// do slow work (webhooks, email) hand it off themselves.
type Observer interface {
	ActivityChanged(active bool, levelDB float64)
	DuckEngaged(targets int)
	DuckReleased(targets int)
	StreamAdded(s *registry.TrackedStream)
	StreamRemoved(s *registry.TrackedStream)
	VoiceSourceSelected(id uint32, meta types.NodeMeta)
	VoiceSourceLost(id uint32, meta types.NodeMeta)
	SessionLost(err error)
	SessionRestored()
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) ActivityChanged(bool, float64)              {}
func (NopObserver) DuckEngaged(int)                            {}
func (NopObserver) DuckReleased(int)                           {}
func (NopObserver) StreamAdded(*registry.TrackedStream)        {}
func (NopObserver) StreamRemoved(*registry.TrackedStream)      {}
func (NopObserver) VoiceSourceSelected(uint32, types.NodeMeta) {}
func (NopObserver) VoiceSourceLost(uint32, types.NodeMeta)     {}
func (NopObserver) SessionLost(error)                          {}
func (NopObserver) SessionRestored()                           {}

var _ Observer = NopObserver{}
