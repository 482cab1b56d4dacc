package notify

import (
	"fmt"
	"sync"

	"github.com/oszuidwest/zwfm-ducker/internal/config"
	"github.com/oszuidwest/zwfm-ducker/internal/types"
	"github.com/oszuidwest/zwfm-ducker/internal/util"
)

// AlertNotifier fans ducker alerts out to the configured channels:
// webhook, email via Microsoft Graph, and the plain alert log. All sends
// run on their own goroutine so callers never block on the network.
type AlertNotifier struct {
	cfg *config.Config

	// mu protects the notification state fields below
	mu sync.Mutex

	// Track which channels announced the current outage, so recovery
	// notifications only go where the loss notification went.
	webhookSent bool
	emailSent   bool
	logSent     bool

	// Cached Graph client for email notifications
	graphClient *GraphClient
}

// NewAlertNotifier returns an AlertNotifier backed by the given config.
func NewAlertNotifier(cfg *config.Config) *AlertNotifier {
	return &AlertNotifier{cfg: cfg}
}

// InvalidateGraphClient clears the cached Graph client.
// Call this when Graph configuration changes.
func (n *AlertNotifier) InvalidateGraphClient() {
	n.mu.Lock()
	n.graphClient = nil
	n.mu.Unlock()
}

// getOrCreateGraphClient returns the cached Graph client, creating it if needed.
func (n *AlertNotifier) getOrCreateGraphClient(cfg *types.GraphConfig) (*GraphClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graphClient != nil {
		return n.graphClient, nil
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return nil, err
	}
	n.graphClient = client
	return client, nil
}

// HandleSessionLost triggers outage notifications. Repeated losses during
// one outage (monitor restart attempts) notify each channel only once.
func (n *AlertNotifier) HandleSessionLost(err error) {
	cfg := n.cfg.Snapshot()
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}

	n.trySend(&n.webhookSent, cfg.HasWebhook(), func() {
		util.LogNotifyResult(
			func() error { return SendSessionLostWebhook(cfg.WebhookURL, errMsg) },
			"Session-lost webhook",
		)
	})
	n.trySend(&n.emailSent, cfg.HasGraph(), func() {
		util.LogNotifyResult(
			func() error { return n.sendSessionLostEmail(cfg, errMsg) },
			"Session-lost email",
		)
	})
	n.trySend(&n.logSent, cfg.HasAlertLog(), func() {
		util.LogNotifyResult(
			func() error { return LogSessionLost(cfg.AlertLogPath, errMsg) },
			"Session-lost log",
		)
	})
}

// HandleSessionRestored triggers recovery notifications on the channels
// that announced the outage, then resets the outage state.
func (n *AlertNotifier) HandleSessionRestored() {
	cfg := n.cfg.Snapshot()

	n.mu.Lock()
	sendWebhook := n.webhookSent
	sendEmail := n.emailSent
	sendLog := n.logSent
	n.webhookSent = false
	n.emailSent = false
	n.logSent = false
	n.mu.Unlock()

	if sendWebhook {
		go util.LogNotifyResult(
			func() error { return SendSessionRestoredWebhook(cfg.WebhookURL) },
			"Session-restored webhook",
		)
	}
	if sendEmail {
		go util.LogNotifyResult(
			func() error { return n.sendSessionRestoredEmail(cfg) },
			"Session-restored email",
		)
	}
	if sendLog {
		go util.LogNotifyResult(
			func() error { return LogSessionRestored(cfg.AlertLogPath) },
			"Session-restored log",
		)
	}
}

// HandleVoiceSource reports a voice-source change. Event is
// "voice_source_selected" or "voice_source_lost". Email is reserved for
// outages; voice-source churn goes to webhook and alert log only.
func (n *AlertNotifier) HandleVoiceSource(event string, nodeID uint32, meta types.NodeMeta) {
	cfg := n.cfg.Snapshot()

	if cfg.HasWebhook() {
		go util.LogNotifyResult(
			func() error {
				return SendVoiceSourceWebhook(cfg.WebhookURL, event, nodeID, meta.AppName, meta.MediaName)
			},
			"Voice-source webhook",
		)
	}
	if cfg.HasAlertLog() {
		go util.LogNotifyResult(
			func() error { return LogVoiceSource(cfg.AlertLogPath, event, nodeID, meta.AppName) },
			"Voice-source log",
		)
	}
}

// Reset clears the outage notification state.
func (n *AlertNotifier) Reset() {
	n.mu.Lock()
	n.webhookSent = false
	n.emailSent = false
	n.logSent = false
	n.mu.Unlock()
}

// trySend sends a notification if the condition is met and not already sent.
func (n *AlertNotifier) trySend(sent *bool, condition bool, sender func()) {
	n.mu.Lock()
	shouldSend := !*sent && condition
	if shouldSend {
		*sent = true
	}
	n.mu.Unlock()
	if shouldSend {
		go sender()
	}
}

// BuildGraphConfig creates a GraphConfig from the config snapshot.
//
//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func BuildGraphConfig(cfg config.Snapshot) *types.GraphConfig {
	return &types.GraphConfig{
		TenantID:     cfg.GraphTenantID,
		ClientID:     cfg.GraphClientID,
		ClientSecret: cfg.GraphClientSecret,
		FromAddress:  cfg.GraphFromAddress,
		Recipients:   cfg.GraphRecipients,
	}
}

// sendEmail handles the common email sending infrastructure.
func (n *AlertNotifier) sendEmail(cfg *types.GraphConfig, subject, body string) error {
	if !IsConfigured(cfg) {
		return nil
	}

	client, err := n.getOrCreateGraphClient(cfg)
	if err != nil {
		return util.WrapError("create Graph client", err)
	}

	recipients := ParseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	if err := client.SendMail(recipients, subject, body); err != nil {
		return util.WrapError("send email via Graph", err)
	}

	return nil
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *AlertNotifier) sendSessionLostEmail(cfg config.Snapshot, errMsg string) error {
	subject := "[ALERT] PipeWire Connection Lost - " + cfg.StationName
	body := fmt.Sprintf(
		"The audio ducker lost its PipeWire connection.\n\n"+
			"Error: %s\n"+
			"Time:  %s\n\n"+
			"Playback volumes were left as-is; the ducker is retrying.",
		errMsg, util.HumanTime(),
	)
	return n.sendEmail(BuildGraphConfig(cfg), subject, body)
}

//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func (n *AlertNotifier) sendSessionRestoredEmail(cfg config.Snapshot) error {
	subject := "[OK] PipeWire Connection Restored - " + cfg.StationName
	body := fmt.Sprintf(
		"The audio ducker reconnected to PipeWire and rebuilt its stream map.\n\n"+
			"Time: %s",
		util.HumanTime(),
	)
	return n.sendEmail(BuildGraphConfig(cfg), subject, body)
}
