// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-ducker/internal/events"
	"github.com/oszuidwest/zwfm-ducker/internal/types"
	"github.com/oszuidwest/zwfm-ducker/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort     = 8080
	DefaultWebUsername = "admin"
	DefaultWebPassword = "ducker"
	DefaultStationName = "ZuidWest FM"
	DefaultColorLight  = "#E6007E"
	DefaultColorDark   = "#E6007E"

	DefaultAttenuationFactor = 0.45
	DefaultActivationDB      = -34.0
	DefaultDeactivationDB    = -40.0
	DefaultActivateSamples   = 2
	DefaultDeactivateSamples = 18
	DefaultRampMs            = 150
)

// Validation patterns define regular expressions for configuration value validation.
var (
	// Station name: any printable characters except control chars (blocks CRLF injection in emails)
	stationNamePattern  = regexp.MustCompile(`^[^\x00-\x1F\x7F]+$`)
	stationColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	PWDumpPath string `json:"pw_dump_path"` // Path to pw-dump binary (empty = use PATH)
	PWCatPath  string `json:"pw_cat_path"`  // Path to pw-cat binary (empty = use PATH)
	WpCtlPath  string `json:"wpctl_path"`   // Path to wpctl binary (empty = use PATH)
	Port       int    `json:"port"`         // HTTP server port
	Username   string `json:"username"`     // Login username
	Password   string `json:"password"`     // Login password
}

// WebConfig holds station branding settings.
type WebConfig struct {
	StationName string `json:"station_name"` // Station display name
	ColorLight  string `json:"color_light"`  // Theme color for light mode (#RRGGBB)
	ColorDark   string `json:"color_dark"`   // Theme color for dark mode (#RRGGBB)
}

// DuckingConfig holds classification and ducking behavior settings.
type DuckingConfig struct {
	VoiceAppMatch     string   `json:"voice_app_match"`    // Substring matched against voice app/node/binary names
	ExcludePatterns   []string `json:"exclude_patterns"`   // Playback streams matching these are never ducked
	VoiceSourcePolicy string   `json:"voice_source_policy"` // "first" or "newest"

	AttenuationFactor float64 `json:"attenuation_factor"` // Ducked gain in (0,1)
	ActivationDB      float64 `json:"activation_db"`      // Voice level above which activation counting starts
	DeactivationDB    float64 `json:"deactivation_db"`    // Voice level below which deactivation counting starts
	ActivateSamples   int     `json:"activate_samples"`   // Consecutive loud samples before voice goes active
	DeactivateSamples int     `json:"deactivate_samples"` // Consecutive quiet samples before voice goes inactive
	RampMs            int64   `json:"ramp_ms"`            // Full-scale gain ramp duration
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url"` // Webhook URL for ducker alerts
}

// LogConfig holds alert log file settings.
type LogConfig struct {
	Path string `json:"path"` // Log file path for ducker alerts
}

// EmailConfig holds Microsoft Graph email notification settings.
type EmailConfig struct {
	TenantID     string `json:"tenant_id"`     // Azure AD tenant ID
	ClientID     string `json:"client_id"`     // App registration client ID
	ClientSecret string `json:"client_secret"` // App registration client secret
	FromAddress  string `json:"from_address"`  // Shared mailbox sender address
	Recipients   string `json:"recipients"`    // Comma-separated recipient addresses
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig `json:"webhook"` // Webhook settings
	Log     LogConfig     `json:"log"`     // Alert log settings
	Email   EmailConfig   `json:"email"`   // Email settings
}

// EventsConfig holds event journal settings.
type EventsConfig struct {
	Path string          `json:"path"` // Journal file path (empty = no journal)
	S3   events.S3Config `json:"s3"`   // Optional S3 archival
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System        SystemConfig        `json:"system"`
	Web           WebConfig           `json:"web"`
	Ducking       DuckingConfig       `json:"ducking"`
	Notifications NotificationsConfig `json:"notifications"`
	Events        EventsConfig        `json:"events"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port:     DefaultWebPort,
			Username: DefaultWebUsername,
			Password: DefaultWebPassword,
		},
		Web: WebConfig{
			StationName: DefaultStationName,
			ColorLight:  DefaultColorLight,
			ColorDark:   DefaultColorDark,
		},
		Ducking: DuckingConfig{
			VoiceSourcePolicy: string(types.PolicyFirstWins),
			ExcludePatterns:   []string{},
			AttenuationFactor: DefaultAttenuationFactor,
			ActivationDB:      DefaultActivationDB,
			DeactivationDB:    DefaultDeactivationDB,
			ActivateSamples:   DefaultActivateSamples,
			DeactivateSamples: DefaultDeactivateSamples,
			RampMs:            DefaultRampMs,
		},
		Notifications: NotificationsConfig{},
		Events:        EventsConfig{},
		filePath:      filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	return c.validate()
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	name := c.Web.StationName
	if name == "" || len(name) > 30 || !stationNamePattern.MatchString(name) {
		return fmt.Errorf("invalid station_name %q: must be 1-30 printable characters", name)
	}
	if !stationColorPattern.MatchString(c.Web.ColorLight) {
		return fmt.Errorf("invalid color_light %q: must be hex format (#RRGGBB)", c.Web.ColorLight)
	}
	if !stationColorPattern.MatchString(c.Web.ColorDark) {
		return fmt.Errorf("invalid color_dark %q: must be hex format (#RRGGBB)", c.Web.ColorDark)
	}
	return ValidateDucking(&c.Ducking)
}

// ValidateDucking checks the ducking parameters for correctness. Shared
// with the live-settings API so invalid values are rejected the same way
// at load time and at runtime.
func ValidateDucking(d *DuckingConfig) error {
	if d.AttenuationFactor <= 0 || d.AttenuationFactor >= 1 {
		return fmt.Errorf("invalid attenuation_factor %v: must be in (0,1)", d.AttenuationFactor)
	}
	if d.DeactivationDB > d.ActivationDB {
		return fmt.Errorf("invalid thresholds: deactivation_db (%v) must not exceed activation_db (%v)",
			d.DeactivationDB, d.ActivationDB)
	}
	if d.ActivateSamples < 1 {
		return fmt.Errorf("invalid activate_samples %d: must be at least 1", d.ActivateSamples)
	}
	if d.DeactivateSamples < 1 {
		return fmt.Errorf("invalid deactivate_samples %d: must be at least 1", d.DeactivateSamples)
	}
	if d.RampMs < 0 {
		return fmt.Errorf("invalid ramp_ms %d: must not be negative", d.RampMs)
	}
	switch types.VoiceSourcePolicy(d.VoiceSourcePolicy) {
	case types.PolicyFirstWins, types.PolicyNewestWins:
	default:
		return fmt.Errorf("invalid voice_source_policy %q: must be %q or %q",
			d.VoiceSourcePolicy, types.PolicyFirstWins, types.PolicyNewestWins)
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	// System defaults
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	if c.System.Username == "" {
		c.System.Username = DefaultWebUsername
	}
	if c.System.Password == "" {
		c.System.Password = DefaultWebPassword
	}
	// Web defaults
	if c.Web.StationName == "" {
		c.Web.StationName = DefaultStationName
	}
	if c.Web.ColorLight == "" {
		c.Web.ColorLight = DefaultColorLight
	}
	if c.Web.ColorDark == "" {
		c.Web.ColorDark = DefaultColorDark
	}
	// Ducking defaults. Load unmarshals over the defaults set by New, so
	// absent keys already carry them; only fields whose zero value is
	// invalid anyway are backfilled here. 0 dBFS thresholds and a 0 ms
	// ramp are legitimate settings and must survive a reload.
	if c.Ducking.ExcludePatterns == nil {
		c.Ducking.ExcludePatterns = []string{}
	}
	if c.Ducking.VoiceSourcePolicy == "" {
		c.Ducking.VoiceSourcePolicy = string(types.PolicyFirstWins)
	}
	if c.Ducking.AttenuationFactor == 0 {
		c.Ducking.AttenuationFactor = DefaultAttenuationFactor
	}
	if c.Ducking.ActivateSamples == 0 {
		c.Ducking.ActivateSamples = DefaultActivateSamples
	}
	if c.Ducking.DeactivateSamples == 0 {
		c.Ducking.DeactivateSamples = DefaultDeactivateSamples
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Getters for individual settings ---

// DuckingSettings returns a copy of the ducking configuration.
func (c *Config) DuckingSettings() DuckingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d := c.Ducking
	d.ExcludePatterns = slices.Clone(c.Ducking.ExcludePatterns)
	return d
}

// RampDuration returns the configured ramp duration.
func (c *Config) RampDuration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Ducking.RampMs) * time.Millisecond
}

// EventsPath returns the configured event journal path.
func (c *Config) EventsPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Events.Path
}

// EventsS3 returns a copy of the S3 archival settings.
func (c *Config) EventsS3() events.S3Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Events.S3
}

// GraphConfig returns a copy of the current Graph/Email configuration.
func (c *Config) GraphConfig() types.GraphConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.GraphConfig{
		TenantID:     c.Notifications.Email.TenantID,
		ClientID:     c.Notifications.Email.ClientID,
		ClientSecret: c.Notifications.Email.ClientSecret,
		FromAddress:  c.Notifications.Email.FromAddress,
		Recipients:   c.Notifications.Email.Recipients,
	}
}

// --- Setters for individual settings ---

// SetDucking replaces the ducking configuration and saves. The new values
// are validated first; the stored config never holds invalid parameters.
func (c *Config) SetDucking(d DuckingConfig) error {
	if err := ValidateDucking(&d); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if d.ExcludePatterns == nil {
		d.ExcludePatterns = []string{}
	}
	c.Ducking = d
	return c.saveLocked()
}

// SetWebhookURL updates the webhook URL and saves the configuration.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Webhook.URL = url
	return c.saveLocked()
}

// SetAlertLogPath updates the alert log path and saves the configuration.
func (c *Config) SetAlertLogPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Log.Path = path
	return c.saveLocked()
}

// SetGraphConfig updates all Microsoft Graph/Email configuration fields and saves.
func (c *Config) SetGraphConfig(tenantID, clientID, clientSecret, fromAddress, recipients string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Email.TenantID = tenantID
	c.Notifications.Email.ClientID = clientID
	c.Notifications.Email.ClientSecret = clientSecret
	c.Notifications.Email.FromAddress = fromAddress
	c.Notifications.Email.Recipients = recipients
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	WebPort     int
	WebUser     string
	WebPassword string

	// Web/Branding
	StationName       string
	StationColorLight string
	StationColorDark  string

	// Ducking
	VoiceAppMatch     string
	ExcludePatterns   []string
	VoiceSourcePolicy string
	AttenuationFactor float64
	ActivationDB      float64
	DeactivationDB    float64
	ActivateSamples   int
	DeactivateSamples int
	RampMs            int64

	// Notifications
	WebhookURL        string
	AlertLogPath      string
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphFromAddress  string
	GraphRecipients   string

	// Events
	EventsPath string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		// System
		WebPort:     c.System.Port,
		WebUser:     c.System.Username,
		WebPassword: c.System.Password,

		// Web/Branding
		StationName:       c.Web.StationName,
		StationColorLight: c.Web.ColorLight,
		StationColorDark:  c.Web.ColorDark,

		// Ducking. Thresholds and ramp are taken as stored: 0 is a valid
		// value for all three, not an absence marker.
		VoiceAppMatch:     c.Ducking.VoiceAppMatch,
		ExcludePatterns:   slices.Clone(c.Ducking.ExcludePatterns),
		VoiceSourcePolicy: cmp.Or(c.Ducking.VoiceSourcePolicy, string(types.PolicyFirstWins)),
		AttenuationFactor: cmp.Or(c.Ducking.AttenuationFactor, DefaultAttenuationFactor),
		ActivationDB:      c.Ducking.ActivationDB,
		DeactivationDB:    c.Ducking.DeactivationDB,
		ActivateSamples:   cmp.Or(c.Ducking.ActivateSamples, DefaultActivateSamples),
		DeactivateSamples: cmp.Or(c.Ducking.DeactivateSamples, DefaultDeactivateSamples),
		RampMs:            c.Ducking.RampMs,

		// Notifications
		WebhookURL:        c.Notifications.Webhook.URL,
		AlertLogPath:      c.Notifications.Log.Path,
		GraphTenantID:     c.Notifications.Email.TenantID,
		GraphClientID:     c.Notifications.Email.ClientID,
		GraphClientSecret: c.Notifications.Email.ClientSecret,
		GraphFromAddress:  c.Notifications.Email.FromAddress,
		GraphRecipients:   c.Notifications.Email.Recipients,

		// Events
		EventsPath: c.Events.Path,
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasGraph reports whether Microsoft Graph email notifications are configured.
func (s *Snapshot) HasGraph() bool {
	return s.GraphTenantID != "" && s.GraphClientID != "" && s.GraphClientSecret != "" &&
		s.GraphFromAddress != "" && s.GraphRecipients != ""
}

// HasAlertLog reports whether an alert log path is configured.
func (s *Snapshot) HasAlertLog() bool {
	return s.AlertLogPath != ""
}
