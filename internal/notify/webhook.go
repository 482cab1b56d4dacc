package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-ducker/internal/util"
)

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event     string `json:"event"`
	NodeID    uint32 `json:"node_id,omitempty"`
	AppName   string `json:"app_name,omitempty"`
	MediaName string `json:"media_name,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// SendSessionLostWebhook notifies the configured webhook that the PipeWire
// connection was lost.
func SendSessionLostWebhook(webhookURL, errMsg string) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "session_lost",
		Error:     errMsg,
		Timestamp: timestampUTC(),
	})
}

// SendSessionRestoredWebhook notifies the configured webhook that the
// PipeWire connection is back.
func SendSessionRestoredWebhook(webhookURL string) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "session_restored",
		Timestamp: timestampUTC(),
	})
}

// SendVoiceSourceWebhook notifies the configured webhook of a voice-source
// change. Event is "voice_source_selected" or "voice_source_lost".
func SendVoiceSourceWebhook(webhookURL, event string, nodeID uint32, appName, mediaName string) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     event,
		NodeID:    nodeID,
		AppName:   appName,
		MediaName: mediaName,
		Timestamp: timestampUTC(),
	})
}

// SendTestWebhook sends a test webhook notification.
func SendTestWebhook(webhookURL, stationName string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "test",
		Message:   "This is a test notification from " + stationName,
		Timestamp: timestampUTC(),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint.
func sendWebhook(webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: 10000 * time.Millisecond}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
