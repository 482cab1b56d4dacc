package graph

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/oszuidwest/zwfm-ducker/internal/types"
)

// volumePattern extracts the volume figure from wpctl get-volume output
// ("Volume: 0.65" or "Volume: 0.65 [MUTED]").
var volumePattern = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)`)

// writeRequest is one queued wpctl operation. Baseline queries share the
// writer queue so reads and writes for a node stay ordered.
type writeRequest struct {
	id       uint32
	volume   float64
	baseline bool
}

// SetStreamVolume queues a volume write. The single writer goroutine
// serializes requests, so writes per node are applied in issue order.
func (s *PWSession) SetStreamVolume(id uint32, volume float64) {
	s.enqueue(writeRequest{id: id, volume: volume})
}

// RequestBaseline queues a volume read whose result is delivered as a
// BaselineRead event.
func (s *PWSession) RequestBaseline(id uint32) {
	s.enqueue(writeRequest{id: id, baseline: true})
}

// DropPending marks a node so its queued requests are discarded. Called on
// unregistration; the flag is cleared if the id is ever reused.
func (s *PWSession) DropPending(id uint32) {
	s.mu.Lock()
	s.dropped[id] = true
	s.mu.Unlock()
}

// sweepDropped clears the dropped set once the queue is empty. Everything
// enqueued before a DropPending call has been drained by then, so ids of
// removed nodes do not accumulate for the life of the session.
func (s *PWSession) sweepDropped() {
	if len(s.writes) != 0 {
		return
	}
	s.mu.Lock()
	clear(s.dropped)
	s.mu.Unlock()
}

func (s *PWSession) enqueue(req writeRequest) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	delete(s.dropped, req.id) // a fresh request revives the id
	s.mu.Unlock()

	select {
	case s.writes <- req:
	default:
		// A full queue means the server is not keeping up; dropping an
		// intermediate gain step is inaudible, the next tick writes again.
		slog.Debug("volume queue full, dropping request", "id", req.id)
	}
}

// runWriter drains the request queue. Failures on vanished nodes are
// expected races with removal notifications and are logged at debug only.
// On shutdown the remaining queue is flushed first so the engine's final
// baseline-restore writes still reach the server.
func (s *PWSession) runWriter() {
	for {
		select {
		case <-s.stopCh:
			s.flushWrites()
			return
		case req := <-s.writes:
			s.mu.Lock()
			skip := s.dropped[req.id]
			s.mu.Unlock()

			switch {
			case skip:
			case req.baseline:
				s.readBaseline(req.id)
			default:
				if err := s.writeVolume(req.id, req.volume); err != nil {
					slog.Debug("volume write dropped", "id", req.id, "error", err)
				}
			}

			s.sweepDropped()
		}
	}
}

// flushWrites applies whatever is still queued without blocking for more.
// Baseline reads are skipped: nobody consumes their events anymore.
func (s *PWSession) flushWrites() {
	for {
		select {
		case req := <-s.writes:
			s.mu.Lock()
			skip := s.dropped[req.id]
			s.mu.Unlock()
			if skip || req.baseline {
				continue
			}
			if err := s.writeVolume(req.id, req.volume); err != nil {
				slog.Debug("volume write dropped", "id", req.id, "error", err)
			}
		default:
			return
		}
	}
}

// writeVolume issues one wpctl set-volume call.
func (s *PWSession) writeVolume(id uint32, volume float64) error {
	volume = min(max(volume, 0), types.MaxVolume)

	ctx, cancel := context.WithTimeout(context.Background(), types.ShutdownTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.tools.WpCtl,
		"set-volume",
		strconv.FormatUint(uint64(id), 10),
		strconv.FormatFloat(volume, 'f', 4, 64),
	)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: node %d: %v", types.ErrGraphWrite, id, err)
	}
	return nil
}

// readBaseline issues one wpctl get-volume call and emits the result.
// A node that vanished before the read simply produces no event; the
// registry keeps its default baseline.
func (s *PWSession) readBaseline(id uint32) {
	ctx, cancel := context.WithTimeout(context.Background(), types.ShutdownTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.tools.WpCtl,
		"get-volume",
		strconv.FormatUint(uint64(id), 10),
	)
	out, err := cmd.Output()
	if err != nil {
		slog.Debug("baseline read failed", "id", id, "error", err)
		return
	}

	volume, ok := ParseVolume(string(out))
	if !ok {
		slog.Debug("baseline read unparseable", "id", id, "output", string(out))
		return
	}

	select {
	case s.events <- BaselineRead{ID: id, Volume: volume}:
	case <-s.stopCh:
	}
}

// ParseVolume extracts the volume figure from wpctl get-volume output.
func ParseVolume(out string) (float64, bool) {
	match := volumePattern.FindStringSubmatch(out)
	if match == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
