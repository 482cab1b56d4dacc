// Package events provides the ducker's event journal. Every notable
// transition (voice activity edges, duck engage/release, stream arrivals
// and departures, session loss) is appended to a JSON lines file that the
// web UI and the HTTP API read back, and that can optionally be archived
// to S3.
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of ducker event.
type EventType string

// Voice activity event types.
const (
	VoiceActive   EventType = "voice_active"
	VoiceInactive EventType = "voice_inactive"
)

// Ducking event types.
const (
	DuckEngaged  EventType = "duck_engaged"
	DuckReleased EventType = "duck_released"
)

// Stream lifecycle event types.
const (
	StreamAdded         EventType = "stream_added"
	StreamRemoved       EventType = "stream_removed"
	VoiceSourceSelected EventType = "voice_source_selected"
	VoiceSourceLost     EventType = "voice_source_lost"
)

// Session event types.
const (
	SessionLost     EventType = "session_lost"
	SessionRestored EventType = "session_restored"
)

// Event represents a single journal entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// ActivityDetails contains voice-activity event details.
type ActivityDetails struct {
	LevelDB float64 `json:"level_db"`
}

// DuckDetails contains duck engage/release details.
type DuckDetails struct {
	Targets int `json:"targets"`
}

// StreamDetails contains stream lifecycle details.
type StreamDetails struct {
	NodeID    uint32 `json:"node_id"`
	Role      string `json:"role,omitempty"`
	AppName   string `json:"app_name,omitempty"`
	MediaName string `json:"media_name,omitempty"`
}

// SessionDetails contains session loss details.
type SessionDetails struct {
	Error string `json:"error,omitempty"`
}

// Logger writes events to a JSON lines file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file.
func (l *Logger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	return l.encoder.Encode(event)
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	return l.filePath
}

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll      TypeFilter = ""
	FilterActivity TypeFilter = "activity"
	FilterDucking  TypeFilter = "ducking"
	FilterStreams  TypeFilter = "streams"
	FilterSession  TypeFilter = "session"
)

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// ReadLast reads events from the log file with pagination support.
// Returns up to n events starting from offset, filtered by type, in
// reverse chronological order (newest first). The second return value
// reports whether more events remain beyond the returned page.
func ReadLast(filePath string, n, offset int, filter TypeFilter) ([]Event, bool, error) {
	if n > MaxReadLimit {
		n = MaxReadLimit
	}
	if n <= 0 {
		return []Event{}, false, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	events := make([]Event, 0, n)
	skipped := 0
	hasMore := false
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}
		if !matchesFilter(event.Type, filter) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(events) >= n {
			hasMore = true
			break
		}
		events = append(events, event)
	}

	return events, hasMore, nil
}

func matchesFilter(t EventType, filter TypeFilter) bool {
	switch filter {
	case FilterAll:
		return true
	case FilterActivity:
		return t == VoiceActive || t == VoiceInactive
	case FilterDucking:
		return t == DuckEngaged || t == DuckReleased
	case FilterStreams:
		return t == StreamAdded || t == StreamRemoved ||
			t == VoiceSourceSelected || t == VoiceSourceLost
	case FilterSession:
		return t == SessionLost || t == SessionRestored
	default:
		return false
	}
}
