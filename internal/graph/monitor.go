package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/oszuidwest/zwfm-ducker/internal/types"
	"github.com/oszuidwest/zwfm-ducker/internal/util"
)

// nodeType is the PipeWire object type for stream nodes.
const nodeType = "PipeWire:Interface:Node"

// monitor supervises a pw-dump --monitor subprocess and translates its JSON
// output into NodeAdded/NodeRemoved events. pw-dump re-announces the whole
// graph on startup, so a restart after a crash resynchronizes the engine
// through a SessionRestored event followed by fresh NodeAdded events.
type monitor struct {
	pwDumpPath string
	events     chan<- Event
	stopCh     <-chan struct{}

	// known tracks node ids announced to the engine, so removals of
	// unrelated objects (ports, links, clients) are never surfaced.
	known map[uint32]bool

	// resync is set after a session loss. The restored event is held back
	// until the replacement process delivers its first dump batch, so a
	// server that stays down never flaps restored/lost on each retry.
	resync bool
}

func newMonitor(pwDumpPath string, events chan<- Event, stopCh <-chan struct{}) *monitor {
	return &monitor{
		pwDumpPath: pwDumpPath,
		events:     events,
		stopCh:     stopCh,
		known:      make(map[uint32]bool),
	}
}

// probe verifies the audio server is reachable before the session starts.
func (m *monitor) probe() error {
	ctx, cancel := context.WithTimeout(context.Background(), types.ShutdownTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.pwDumpPath, "0")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrGraphConnection, err)
	}
	return nil
}

// run supervises the monitor subprocess, restarting with backoff until the
// session stops. A loss is reported once; recovery is reported when a
// replacement process proves healthy, so the engine can rebuild state.
func (m *monitor) run() {
	backoff := util.NewBackoff(types.InitialRetryDelay, types.MaxRetryDelay)

	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		startTime := time.Now()
		stderr, err := m.runOnce()
		runDuration := time.Since(startTime)

		select {
		case <-m.stopCh:
			return
		default:
		}

		if runDuration >= types.SuccessThreshold {
			backoff.Reset()
		}

		lost := fmt.Errorf("%w: %s", types.ErrGraphConnection, firstNonEmpty(stderr, errString(err)))
		slog.Error("graph monitor lost", "error", lost)
		// A dead process during resync means the session was never actually
		// restored; only the first loss is reported.
		if !m.resync {
			emitBlocking(m.events, m.stopCh, SessionLost{Err: lost})
		}
		m.resync = true
		m.known = make(map[uint32]bool)

		delay := backoff.Next()
		slog.Info("graph monitor restarting", "delay", delay, "attempt", backoff.Attempts())
		select {
		case <-m.stopCh:
			return
		case <-time.After(delay):
		}
	}
}

// runOnce runs one pw-dump --monitor process until it exits.
func (m *monitor) runOnce() (string, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, m.pwDumpPath, "--monitor", "--no-colors")
	cmd.Cancel = func() error {
		return util.GracefulSignal(cmd.Process)
	}
	cmd.WaitDelay = types.ShutdownTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return "", err
	}

	// Kill the process when the session stops, unblocking the decoder.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-m.stopCh:
			cancel()
		case <-done:
		}
	}()

	m.decode(stdout)

	err = cmd.Wait()
	return util.ExtractLastError(stderrBuf.String()), err
}

// dumpObject is one element of the pw-dump JSON output. A null info field
// marks a removed object.
type dumpObject struct {
	ID   uint32          `json:"id"`
	Type string          `json:"type"`
	Info json.RawMessage `json:"info"`
}

// dumpInfo carries the subset of node info the ducker reads.
type dumpInfo struct {
	Props map[string]any `json:"props"`
}

// decode reads the stream of JSON arrays pw-dump emits, one array per
// graph change, and surfaces audio stream nodes.
func (m *monitor) decode(r io.Reader) {
	dec := json.NewDecoder(r)
	for {
		var batch []dumpObject
		if err := dec.Decode(&batch); err != nil {
			if err != io.EOF {
				slog.Debug("graph dump decode ended", "error", err)
			}
			return
		}
		if m.resync {
			m.resync = false
			emitBlocking(m.events, m.stopCh, SessionRestored{})
		}
		for i := range batch {
			m.handleObject(&batch[i])
		}
	}
}

// handleObject translates one dump object into an event, if relevant.
func (m *monitor) handleObject(obj *dumpObject) {
	removed := len(obj.Info) == 0 || bytes.Equal(obj.Info, []byte("null"))
	if removed {
		if m.known[obj.ID] {
			delete(m.known, obj.ID)
			emitBlocking(m.events, m.stopCh, NodeRemoved{ID: obj.ID})
		}
		return
	}

	if obj.Type != nodeType {
		return
	}

	var info dumpInfo
	if err := json.Unmarshal(obj.Info, &info); err != nil {
		slog.Debug("unparseable node info", "id", obj.ID, "error", err)
		return
	}

	meta := metaFromProps(info.Props)
	if !isAudioStream(meta.MediaClass) {
		return
	}

	// pw-dump re-emits a node on every property change; the first sighting
	// wins because roles are immutable for the node's lifetime.
	if m.known[obj.ID] {
		return
	}
	m.known[obj.ID] = true
	emitBlocking(m.events, m.stopCh, NodeAdded{ID: obj.ID, Meta: meta})
}

// isAudioStream reports whether a media class belongs to an application
// audio stream (as opposed to devices, ports or midi).
func isAudioStream(mediaClass string) bool {
	return mediaClass == "Stream/Output/Audio" || mediaClass == "Stream/Input/Audio"
}

// metaFromProps extracts the classification-relevant node properties.
func metaFromProps(props map[string]any) types.NodeMeta {
	return types.NodeMeta{
		MediaClass: propString(props, "media.class"),
		MediaRole:  propString(props, "media.role"),
		MediaName:  propString(props, "media.name"),
		AppName:    propString(props, "application.name"),
		Binary:     propString(props, "application.process.binary"),
		NodeName:   propString(props, "node.name"),
		Serial:     propString(props, "object.serial"),
	}
}

// propString reads a property as a string, rendering numbers the way
// pw-dump prints them.
func propString(props map[string]any, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func errString(err error) string {
	if err == nil {
		return "process exited"
	}
	return err.Error()
}
