// Package graph owns the single session to the PipeWire audio server.
// It drives the server through its command-line tooling: pw-dump --monitor
// for graph topology, pw-cat for the voice level tap, and wpctl for volume
// writes. Raw tool output is translated into typed events consumed by the
// ducking engine.
package graph

import (
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-ducker/internal/types"
)

// eventBufferSize is the capacity of the typed event channel. Node events
// are delivered with backpressure; ticks and level samples are dropped when
// the engine is behind so the queue never grows stale.
const eventBufferSize = 256

// ToolPaths holds the resolved paths of the PipeWire command-line tools.
type ToolPaths struct {
	PWDump string
	PWCat  string
	WpCtl  string
}

// ResolveTools locates the PipeWire tooling on PATH, honoring overrides.
func ResolveTools(pwDump, pwCat, wpctl string) (ToolPaths, error) {
	paths := ToolPaths{}
	var err error
	if paths.PWDump, err = resolveTool(pwDump, "pw-dump"); err != nil {
		return paths, err
	}
	if paths.PWCat, err = resolveTool(pwCat, "pw-cat"); err != nil {
		return paths, err
	}
	if paths.WpCtl, err = resolveTool(wpctl, "wpctl"); err != nil {
		return paths, err
	}
	return paths, nil
}

func resolveTool(configured, name string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s not found", types.ErrGraphConnection, name)
	}
	return path, nil
}

// PWSession is the PipeWire implementation of Session. It supervises the
// monitor, tap and writer subprocesses and serializes all volume requests
// through a single writer goroutine.
type PWSession struct {
	tools ToolPaths

	events chan Event
	writes chan writeRequest

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	monitor *monitor
	tap     *levelTap

	// dropped tracks node ids whose queued writes must be discarded.
	dropped map[uint32]bool
}

// NewPWSession creates a session using the given tool paths.
func NewPWSession(tools ToolPaths) *PWSession {
	return &PWSession{
		tools:   tools,
		events:  make(chan Event, eventBufferSize),
		writes:  make(chan writeRequest, eventBufferSize),
		dropped: make(map[uint32]bool),
	}
}

// Start launches the graph monitor, the volume writer and the tick loop.
func (s *PWSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.stopCh = make(chan struct{})
	s.monitor = newMonitor(s.tools.PWDump, s.events, s.stopCh)

	if err := s.monitor.probe(); err != nil {
		return err
	}

	s.running = true

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.monitor.run()
	}()
	go func() {
		defer s.wg.Done()
		s.runWriter()
	}()
	go func() {
		defer s.wg.Done()
		s.runTicker()
	}()

	slog.Info("graph session started",
		"pw_dump", s.tools.PWDump, "pw_cat", s.tools.PWCat, "wpctl", s.tools.WpCtl)
	return nil
}

// Stop tears down all subprocesses and closes the event channel. No graph
// calls are issued after Stop returns.
func (s *PWSession) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	tap := s.tap
	s.tap = nil
	s.mu.Unlock()

	if tap != nil {
		tap.close()
	}

	s.wg.Wait()
	close(s.events)

	slog.Info("graph session stopped")
	return nil
}

// Events returns the typed event stream.
func (s *PWSession) Events() <-chan Event {
	return s.events
}

// OpenTap starts a level tap on the given node, replacing any existing tap.
func (s *PWSession) OpenTap(id uint32, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	if s.tap != nil {
		s.tap.close()
	}
	s.tap = newLevelTap(s.tools.PWCat, id, target, s.events, s.stopCh)
	go s.tap.run()
}

// CloseTap stops the level tap, if one is open.
func (s *PWSession) CloseTap() {
	s.mu.Lock()
	tap := s.tap
	s.tap = nil
	s.mu.Unlock()

	if tap != nil {
		tap.close()
	}
}

// runTicker emits Tick events on the session dispatch cadence. A tick is
// skipped rather than queued when the engine has not drained the previous
// one, so ramps never burst to catch up.
func (s *PWSession) runTicker() {
	ticker := time.NewTicker(types.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			select {
			case s.events <- Tick{Time: now}:
			default:
			}
		}
	}
}

// emitBlocking delivers an event with backpressure, used for node lifecycle
// events whose ordering must be preserved.
func emitBlocking(events chan<- Event, stopCh <-chan struct{}, ev Event) {
	select {
	case events <- ev:
	case <-stopCh:
	}
}

var _ Session = (*PWSession)(nil)
