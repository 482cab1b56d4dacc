package server

// Request types for WebSocket commands with validation tags.
// These types define the expected input for each command and use
// go-playground/validator struct tags for automatic validation.

// --- Ducking settings ---

// DuckingUpdateRequest is the request body for ducking/update. Omitted
// fields keep their current values.
type DuckingUpdateRequest struct {
	VoiceAppMatch     *string   `json:"voice_app_match" validate:"omitempty,max=256"`
	ExcludePatterns   *[]string `json:"exclude_patterns" validate:"omitempty,max=32,dive,max=256"`
	VoiceSourcePolicy *string   `json:"voice_source_policy" validate:"omitempty,oneof=first newest"`
	AttenuationFactor *float64  `json:"attenuation_factor" validate:"omitempty,gt=0,lt=1"`
	ActivationDB      *float64  `json:"activation_db" validate:"omitempty,gte=-60,lte=0"`
	DeactivationDB    *float64  `json:"deactivation_db" validate:"omitempty,gte=-60,lte=0"`
	ActivateSamples   *int      `json:"activate_samples" validate:"omitempty,gte=1,lte=500"`
	DeactivateSamples *int      `json:"deactivate_samples" validate:"omitempty,gte=1,lte=500"`
	RampMs            *int64    `json:"ramp_ms" validate:"omitempty,gte=0,lte=10000"`
}

// SelectVoiceRequest is the request body for ducking/select_voice.
type SelectVoiceRequest struct {
	NodeID uint32 `json:"node_id" validate:"required"`
}

// --- Notification settings ---

// WebhookUpdateRequest is the request body for notifications/webhook/update.
type WebhookUpdateRequest struct {
	URL string `json:"url" validate:"omitempty,max=2048"`
}

// LogUpdateRequest is the request body for notifications/log/update.
type LogUpdateRequest struct {
	Path string `json:"path" validate:"omitempty,max=4096"`
}

// EmailUpdateRequest is the request body for notifications/email/update.
type EmailUpdateRequest struct {
	TenantID     string `json:"tenant_id" validate:"omitempty,max=100"`
	ClientID     string `json:"client_id" validate:"omitempty,max=100"`
	ClientSecret string `json:"client_secret" validate:"omitempty,max=500"`
	FromAddress  string `json:"from_address" validate:"omitempty,max=254"`
	Recipients   string `json:"recipients" validate:"omitempty,max=1000"`
}

// --- S3 test ---

// S3TestRequest is the request body for events/test-s3.
type S3TestRequest struct {
	Endpoint  string `json:"endpoint" validate:"omitempty,max=2048"`
	Bucket    string `json:"bucket" validate:"required,max=63"`
	AccessKey string `json:"access_key_id" validate:"required,max=128"`
	SecretKey string `json:"secret_access_key" validate:"required,max=256"`
}
