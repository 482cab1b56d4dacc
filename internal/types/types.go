// Package types provides shared type definitions used across the ducker.
package types

import (
	"time"
)

// EngineState represents the current state of the ducking engine.
type EngineState string

const (
	// StateStopped indicates the engine is not running.
	StateStopped EngineState = "stopped"
	// StateStarting indicates the engine is initializing.
	StateStarting EngineState = "starting"
	// StateRunning indicates the engine is actively processing graph events.
	StateRunning EngineState = "running"
	// StateStopping indicates the engine is shutting down.
	StateStopping EngineState = "stopping"
)

// StreamRole classifies a graph node at discovery time.
type StreamRole string

const (
	// RoleVoiceSource marks the stream whose activity drives ducking.
	RoleVoiceSource StreamRole = "voice_source"
	// RoleDuckTarget marks a playback stream that gets attenuated.
	RoleDuckTarget StreamRole = "duck_target"
	// RoleIgnored marks streams the ducker never touches.
	RoleIgnored StreamRole = "ignored"
)

// DuckState is the per-target ducking state. The two ramp states are
// distinct from the settled states because an in-progress ramp can be
// reversed before it ever reaches its target.
type DuckState string

const (
	// DuckUnducked means the stream plays at its baseline volume.
	DuckUnducked DuckState = "unducked"
	// DuckDucking means the stream is ramping down toward the attenuated gain.
	DuckDucking DuckState = "ducking"
	// DuckDucked means the stream sits at the attenuated gain.
	DuckDucked DuckState = "ducked"
	// DuckUnducking means the stream is ramping back up toward baseline.
	DuckUnducking DuckState = "unducking"
)

// VoiceSourcePolicy decides which node wins when several match the voice pattern.
type VoiceSourcePolicy string

const (
	// PolicyFirstWins keeps the first registered voice source until it is removed.
	PolicyFirstWins VoiceSourcePolicy = "first"
	// PolicyNewestWins replaces the voice source whenever a new match appears.
	PolicyNewestWins VoiceSourcePolicy = "newest"
)

// NodeMeta holds the PipeWire node properties relevant for classification.
type NodeMeta struct {
	MediaClass string `json:"media_class"` // e.g. "Stream/Output/Audio"
	MediaRole  string `json:"media_role"`  // e.g. "Communication"
	MediaName  string `json:"media_name"`  // e.g. "playStream"
	AppName    string `json:"app_name"`    // e.g. "WEBRTC VoiceEngine"
	Binary     string `json:"binary"`      // e.g. "discord"
	NodeName   string `json:"node_name"`   // e.g. "WEBRTC VoiceEngine"
	Serial     string `json:"serial"`      // object.serial, used as capture target
}

// StreamStatus is the per-stream view exposed to the web interface.
type StreamStatus struct {
	ID          uint32     `json:"id"`
	Role        StreamRole `json:"role"`
	AppName     string     `json:"app_name"`
	MediaName   string     `json:"media_name"`
	DuckState   DuckState  `json:"duck_state"`
	CurrentGain float64    `json:"current_gain"`
	TargetGain  float64    `json:"target_gain"`
	Baseline    float64    `json:"baseline"`
	Pinned      bool       `json:"pinned,omitempty"`
}

// EngineStatus is the engine view exposed to the web interface.
type EngineStatus struct {
	State          EngineState    `json:"state"`
	Uptime         string         `json:"uptime,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	VoiceSourceID  uint32         `json:"voice_source_id,omitempty"`
	VoiceSourceApp string         `json:"voice_source_app,omitempty"`
	VoiceActive    bool           `json:"voice_active"`
	VoiceLevelDB   float64        `json:"voice_level_db"`
	Streams        []StreamStatus `json:"streams"`
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}

// WSStatusResponse is the periodic status message pushed to WebSocket clients.
type WSStatusResponse struct {
	Type   string       `json:"type"` // always "status"
	Engine EngineStatus `json:"engine"`

	// Ducking settings as currently applied
	VoiceAppMatch     string   `json:"voice_app_match"`
	ExcludePatterns   []string `json:"exclude_patterns"`
	VoiceSourcePolicy string   `json:"voice_source_policy"`
	AttenuationFactor float64  `json:"attenuation_factor"`
	ActivationDB      float64  `json:"activation_db"`
	DeactivationDB    float64  `json:"deactivation_db"`
	ActivateSamples   int      `json:"activate_samples"`
	DeactivateSamples int      `json:"deactivate_samples"`
	RampMs            int64    `json:"ramp_ms"`

	// Notification settings (secrets omitted)
	WebhookURL       string `json:"webhook_url"`
	AlertLogPath     string `json:"alert_log_path"`
	GraphTenantID    string `json:"graph_tenant_id"`
	GraphClientID    string `json:"graph_client_id"`
	GraphFromAddress string `json:"graph_from_address"`
	GraphRecipients  string `json:"graph_recipients"`

	Version VersionInfo `json:"version"`
}

// WSLevelsResponse carries the voice level for UI meters.
type WSLevelsResponse struct {
	Type        string  `json:"type"` // always "levels"
	VoiceActive bool    `json:"voice_active"`
	LevelDB     float64 `json:"level_db"`
}

// WSTestResult is the response to a notification test command.
type WSTestResult struct {
	Type     string `json:"type"` // always "test_result"
	TestType string `json:"test_type"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// GraphConfig holds Microsoft Graph API credentials for email alerts.
type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	FromAddress  string
	Recipients   string
}

const (
	// InitialRetryDelay is the starting delay between session restart attempts.
	InitialRetryDelay = 3000 * time.Millisecond
	// MaxRetryDelay is the maximum delay between session restart attempts.
	MaxRetryDelay = 60000 * time.Millisecond
	// SuccessThreshold is the run duration after which the retry count resets.
	SuccessThreshold = 30000 * time.Millisecond
)

const (
	// ShutdownTimeout is the duration to wait for graceful subprocess shutdown.
	ShutdownTimeout = 3000 * time.Millisecond
	// TickInterval is the bridge dispatch cadence driving gain ramps.
	TickInterval = 20 * time.Millisecond
)

// Audio format constants for the voice level tap.
const (
	// SampleRate is the tap sample rate in Hz.
	SampleRate = 48000
	// Channels is the number of tap channels (stereo).
	Channels = 2
)

// Gain limits. Volumes are written as baseline*gain, clamped to MaxVolume
// so a baseline above 1.0 is preserved on restore.
const (
	// MinGain is the lowest permitted ducking gain.
	MinGain = 0.0
	// MaxGain is the highest permitted ducking gain (baseline, unducked).
	MaxGain = 1.0
	// MaxVolume is the highest volume ever written to the server.
	MaxVolume = 1.5
)
