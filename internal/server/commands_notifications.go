package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/oszuidwest/zwfm-ducker/internal/notify"
	"github.com/oszuidwest/zwfm-ducker/internal/types"
)

// --- Notification settings handlers ---

// handleWebhookUpdate processes a notifications/webhook/update command.
func (h *CommandHandler) handleWebhookUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *WebhookUpdateRequest) error {
		return h.cfg.SetWebhookURL(req.URL)
	})
}

// handleLogUpdate processes a notifications/log/update command.
func (h *CommandHandler) handleLogUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *LogUpdateRequest) error {
		return h.cfg.SetAlertLogPath(req.Path)
	})
}

// handleEmailUpdate processes a notifications/email/update command.
func (h *CommandHandler) handleEmailUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *EmailUpdateRequest) error {
		if err := h.cfg.SetGraphConfig(
			req.TenantID,
			req.ClientID,
			req.ClientSecret,
			req.FromAddress,
			req.Recipients,
		); err != nil {
			return err
		}
		h.notifier.InvalidateGraphClient()
		return nil
	})
}

// --- Notification test handlers ---

// runTest dispatches to the appropriate notification test.
func (h *CommandHandler) runTest(testType string) error {
	cfg := h.cfg.Snapshot()
	switch testType {
	case "webhook":
		return notify.SendTestWebhook(cfg.WebhookURL, cfg.StationName)
	case "log":
		return notify.WriteTestLog(cfg.AlertLogPath)
	case "email":
		graphCfg := notify.BuildGraphConfig(cfg)
		client, err := notify.NewGraphClient(graphCfg)
		if err != nil {
			return err
		}
		subject := "[TEST] Ducker Notification Test - " + cfg.StationName
		body := "This is a test notification from " + notify.AppName + "."
		return client.SendMail(notify.ParseRecipients(graphCfg.Recipients), subject, body)
	default:
		return fmt.Errorf("unknown test type: %s", testType)
	}
}

// handleTest executes a notification test and sends the result to the client.
// testCmd should be in format "test_<type>" (e.g., "test_email", "test_webhook").
func (h *CommandHandler) handleTest(send chan<- any, testCmd string) {
	testType := strings.TrimPrefix(testCmd, "test_")

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in test handler", "command", testCmd, "panic", r)
			}
		}()

		result := types.WSTestResult{
			Type:     "test_result",
			TestType: testType,
			Success:  true,
		}

		if err := h.runTest(testType); err != nil {
			slog.Error("test failed", "command", testCmd, "error", err)
			result.Success = false
			result.Error = err.Error()
		} else {
			slog.Info("test succeeded", "command", testCmd)
		}

		// Non-blocking send to prevent goroutine leak if channel is closed
		select {
		case send <- result:
		default:
			slog.Warn("failed to send test response: channel full or closed", "command", testCmd)
		}
	}()
}

// --- Alert log viewing ---

// wsAlertLogResult is the response to a notifications/log/view command.
type wsAlertLogResult struct {
	Type    string                 `json:"type"` // always "alert_log_result"
	Success bool                   `json:"success"`
	Error   string                 `json:"error,omitempty"`
	Path    string                 `json:"path,omitempty"`
	Entries []notify.AlertLogEntry `json:"entries,omitempty"`
}

// handleViewAlertLog reads and returns the alert log file contents.
func (h *CommandHandler) handleViewAlertLog(send chan<- any) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in alert log handler", "panic", r)
			}
		}()

		result := wsAlertLogResult{
			Type:    "alert_log_result",
			Success: true,
		}

		logPath := h.cfg.Snapshot().AlertLogPath
		if logPath == "" {
			result.Success = false
			result.Error = "Log file path not configured"
		} else {
			entries, err := ReadAlertLog(logPath, MaxLogEntries)
			if err != nil {
				result.Success = false
				result.Error = err.Error()
			} else {
				result.Entries = entries
				result.Path = logPath
			}
		}

		select {
		case send <- result:
		default:
			slog.Warn("failed to send alert log response: channel full or closed")
		}
	}()
}

// ReadAlertLog reads the last N entries from the alert log file, newest first.
func ReadAlertLog(logPath string, maxEntries int) ([]notify.AlertLogEntry, error) {
	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return []notify.AlertLogEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) == 0 || (len(lines) == 1 && lines[0] == "") {
		return []notify.AlertLogEntry{}, nil
	}

	start := max(0, len(lines)-maxEntries)
	lines = lines[start:]

	entries := make([]notify.AlertLogEntry, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		var entry notify.AlertLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // Skip malformed entries
		}
		entries = append(entries, entry)
	}

	slices.Reverse(entries)

	return entries, nil
}
