package notify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/oszuidwest/zwfm-ducker/internal/util"
)

// AlertLogEntry is one line in the plain alert log. The alert log is a
// low-tech notification channel for hosts without webhook or email access;
// the full event journal lives elsewhere.
type AlertLogEntry struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	NodeID    uint32 `json:"node_id,omitempty"`
	AppName   string `json:"app_name,omitempty"`
	Error     string `json:"error,omitempty"`
}

// LogSessionLost records a lost PipeWire connection.
func LogSessionLost(logPath, errMsg string) error {
	return appendLogEntry(logPath, &AlertLogEntry{
		Timestamp: timestampUTC(),
		Event:     "session_lost",
		Error:     errMsg,
	})
}

// LogSessionRestored records a restored PipeWire connection.
func LogSessionRestored(logPath string) error {
	return appendLogEntry(logPath, &AlertLogEntry{
		Timestamp: timestampUTC(),
		Event:     "session_restored",
	})
}

// LogVoiceSource records a voice-source change.
func LogVoiceSource(logPath, event string, nodeID uint32, appName string) error {
	return appendLogEntry(logPath, &AlertLogEntry{
		Timestamp: timestampUTC(),
		Event:     event,
		NodeID:    nodeID,
		AppName:   appName,
	})
}

// WriteTestLog writes a test log entry.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return fmt.Errorf("log file path not configured")
	}

	return appendLogEntry(logPath, &AlertLogEntry{
		Timestamp: timestampUTC(),
		Event:     "test",
	})
}

// appendLogEntry appends a log entry to the file.
func appendLogEntry(logPath string, entry *AlertLogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	if _, err := f.Write(jsonData); err != nil {
		return util.WrapError("write log entry", err)
	}
	if _, err := f.WriteString("\n"); err != nil {
		return util.WrapError("write newline", err)
	}

	return nil
}
