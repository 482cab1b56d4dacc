package server

import (
	"time"

	"github.com/oszuidwest/zwfm-ducker/internal/config"
	"github.com/oszuidwest/zwfm-ducker/internal/ducking"
	"github.com/oszuidwest/zwfm-ducker/internal/registry"
	"github.com/oszuidwest/zwfm-ducker/internal/types"
)

// --- Ducking handlers ---

// handleDuckingUpdate processes a ducking/update command: the merged
// settings are validated, persisted, and pushed into the running engine.
func (h *CommandHandler) handleDuckingUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *DuckingUpdateRequest) error {
		merged := h.cfg.DuckingSettings()

		if req.VoiceAppMatch != nil {
			merged.VoiceAppMatch = *req.VoiceAppMatch
		}
		if req.ExcludePatterns != nil {
			merged.ExcludePatterns = *req.ExcludePatterns
		}
		if req.VoiceSourcePolicy != nil {
			merged.VoiceSourcePolicy = *req.VoiceSourcePolicy
		}
		if req.AttenuationFactor != nil {
			merged.AttenuationFactor = *req.AttenuationFactor
		}
		if req.ActivationDB != nil {
			merged.ActivationDB = *req.ActivationDB
		}
		if req.DeactivationDB != nil {
			merged.DeactivationDB = *req.DeactivationDB
		}
		if req.ActivateSamples != nil {
			merged.ActivateSamples = *req.ActivateSamples
		}
		if req.DeactivateSamples != nil {
			merged.DeactivateSamples = *req.DeactivateSamples
		}
		if req.RampMs != nil {
			merged.RampMs = *req.RampMs
		}

		if err := h.cfg.SetDucking(merged); err != nil {
			return err
		}

		h.engine.UpdateSettings(EngineSettings(&merged))
		h.engine.UpdatePolicy(EnginePolicy(&merged))
		return nil
	})
}

// handleDuckingGet processes a ducking/get command.
func (h *CommandHandler) handleDuckingGet(send chan<- any) {
	SendSuccess(send, "ducking/get", h.cfg.DuckingSettings())
}

// handleSelectVoice processes a ducking/select_voice command, pinning a
// tracked stream as the voice source.
func (h *CommandHandler) handleSelectVoice(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *SelectVoiceRequest) error {
		h.engine.SelectVoiceSource(req.NodeID)
		return nil
	})
}

// EngineSettings converts a ducking config into engine settings.
func EngineSettings(d *config.DuckingConfig) ducking.Settings {
	return ducking.Settings{
		AttenuationFactor: d.AttenuationFactor,
		ActivationDB:      d.ActivationDB,
		DeactivationDB:    d.DeactivationDB,
		ActivateSamples:   d.ActivateSamples,
		DeactivateSamples: d.DeactivateSamples,
		RampDuration:      time.Duration(d.RampMs) * time.Millisecond,
	}
}

// EnginePolicy converts a ducking config into a classification policy.
func EnginePolicy(d *config.DuckingConfig) registry.Policy {
	return registry.Policy{
		VoiceMatch:        d.VoiceAppMatch,
		ExcludePatterns:   d.ExcludePatterns,
		VoiceSourcePolicy: types.VoiceSourcePolicy(d.VoiceSourcePolicy),
	}
}
