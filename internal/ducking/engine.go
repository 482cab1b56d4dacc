// Package ducking provides the gain-control engine: it consumes typed graph
// events, derives the voice-activity signal, runs the per-stream ducking
// state machine and drives smooth volume ramps back through the graph
// session. All state lives on a single dispatch goroutine; events are
// processed strictly in arrival order, so there are no locks in the core
// path and duck decisions can never race.
package ducking

import (
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-ducker/internal/audio"
	"github.com/oszuidwest/zwfm-ducker/internal/graph"
	"github.com/oszuidwest/zwfm-ducker/internal/registry"
	"github.com/oszuidwest/zwfm-ducker/internal/types"
	"github.com/oszuidwest/zwfm-ducker/internal/util"
)

// staleLevelTimeout forces the activity signal inactive when the level tap
// stops delivering samples, so a dead tap can never leave targets ducked.
const staleLevelTimeout = 1000 * time.Millisecond

// tapIdleTimeout is how long a freshly opened tap may stay silent before a
// warning; a tap that never delivers usually means the node is not linked.
const tapIdleTimeout = 3 * time.Second

// heartbeatInterval is the cadence of the periodic capture heartbeat log.
const heartbeatInterval = 10 * time.Second

// Sentinel errors for engine operations.
var (
	ErrAlreadyRunning = errors.New("engine already running")
	ErrNotRunning     = errors.New("engine not running")
)

// Settings are the resolved ducking parameters. The engine receives them at
// start and accepts live updates through UpdateSettings.
type Settings struct {
	AttenuationFactor float64       // gain applied to targets while voice is active, in (0,1)
	ActivationDB      float64       // level at or above which a sample counts as speech
	DeactivationDB    float64       // level below which a sample counts as silence
	ActivateSamples   int           // consecutive speech samples before ducking
	DeactivateSamples int           // consecutive silence samples before releasing
	RampDuration      time.Duration // full-scale gain ramp duration
}

// Engine is the ducking core. It owns the registry, the activity detector
// and the per-stream state machines, and is the only writer of gain state.
type Engine struct {
	session  graph.Session
	observer Observer

	// Dispatch-goroutine state. Only e.run touches these.
	reg      *registry.Registry
	detector *audio.ActivityDetector
	settings Settings
	lastSampleAt time.Time

	// Tap health bookkeeping for the heartbeat and idle-tap logs.
	sampleCount   uint64
	tapSeen       bool
	tapIdleWarned bool
	tapOpenedAt   time.Time
	lastHeartbeat time.Time

	// ctrl carries closures executed on the dispatch goroutine, keeping
	// live settings updates inside the single-threaded model.
	ctrl chan func()

	mu        sync.RWMutex
	state     types.EngineState
	startTime time.Time
	lastError string
	status    types.EngineStatus

	stopCh chan struct{}
	done   chan struct{}
}

// New creates an engine bound to the given session.
func New(session graph.Session, policy registry.Policy, settings Settings, observer Observer) *Engine {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Engine{
		session:  session,
		observer: observer,
		reg:      registry.New(policy),
		detector: audio.NewActivityDetector(detectorConfig(settings)),
		settings: settings,
		ctrl:     make(chan func(), 8),
		state:    types.StateStopped,
	}
}

func detectorConfig(s Settings) audio.ActivityConfig {
	return audio.ActivityConfig{
		ActivationDB:      s.ActivationDB,
		DeactivationDB:    s.DeactivationDB,
		ActivateSamples:   s.ActivateSamples,
		DeactivateSamples: s.DeactivateSamples,
	}
}

// Start establishes the graph session and begins dispatching.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.state == types.StateRunning || e.state == types.StateStarting {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	// The lifecycle channels must exist before the state is observable as
	// starting, so a concurrent Stop always has a real channel to close.
	e.state = types.StateStarting
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()

	err := e.session.Start()

	e.mu.Lock()
	if e.state == types.StateStopping {
		// Stop raced the session startup and is waiting on done; it owns
		// the teardown from here.
		e.mu.Unlock()
		close(done)
		return ErrNotRunning
	}
	if err != nil {
		e.state = types.StateStopped
		e.lastError = err.Error()
		e.mu.Unlock()
		close(done)
		return util.WrapError("start graph session", err)
	}
	e.state = types.StateRunning
	e.startTime = time.Now()
	e.lastError = ""
	e.mu.Unlock()

	go e.run()

	slog.Info("ducking engine started")
	return nil
}

// Stop restores every target to its baseline volume, tears the session down
// and waits for the dispatch goroutine to exit.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != types.StateRunning && e.state != types.StateStarting {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.state = types.StateStopping
	stopCh := e.stopCh
	done := e.done
	e.mu.Unlock()

	close(stopCh)
	<-done

	err := e.session.Stop()

	e.mu.Lock()
	e.state = types.StateStopped
	e.mu.Unlock()

	slog.Info("ducking engine stopped")
	return err
}

// State returns the current engine state.
func (e *Engine) State() types.EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Status returns the last published engine status.
func (e *Engine) Status() types.EngineStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	status := e.status
	status.State = e.state
	status.LastError = e.lastError
	if e.state == types.StateRunning {
		status.Uptime = time.Since(e.startTime).Truncate(time.Second).String()
	}
	return status
}

// UpdateSettings applies new ducking parameters on the dispatch goroutine.
// Debounce counters reset; ramps in flight adopt the new rate on the next
// tick. The new attenuation is applied immediately to ducked targets.
func (e *Engine) UpdateSettings(settings Settings) {
	e.control(func() {
		e.settings = settings
		e.detector.SetConfig(detectorConfig(settings))
		e.reg.Targets(func(s *registry.TrackedStream) {
			if s.State == types.DuckDucking || s.State == types.DuckDucked {
				s.TargetGain = settings.AttenuationFactor
				if s.State == types.DuckDucked {
					s.State = types.DuckDucking
				}
			}
		})
	})
}

// UpdatePolicy applies a new classification policy. Roles already assigned
// stay fixed; only future discoveries use the new policy.
func (e *Engine) UpdatePolicy(policy registry.Policy) {
	e.control(func() {
		e.reg.SetPolicy(policy)
	})
}

// SelectVoiceSource pins a tracked stream as the voice source, overriding
// the automatic candidate scoring. The previous voice source goes back to
// being an ordinary playback stream. Unknown ids are ignored.
func (e *Engine) SelectVoiceSource(id uint32) {
	e.control(func() {
		e.handleSelectVoice(id)
	})
}

// control schedules fn on the dispatch goroutine, dropping it if the
// engine is not running.
func (e *Engine) control(fn func()) {
	select {
	case e.ctrl <- fn:
	case <-e.stopChOrNil():
	}
}

func (e *Engine) stopChOrNil() <-chan struct{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopCh != nil {
		return e.stopCh
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// run is the dispatch loop: the only goroutine that mutates core state.
func (e *Engine) run() {
	defer close(e.done)

	e.lastHeartbeat = time.Now()
	events := e.session.Events()
	for {
		select {
		case <-e.stopCh:
			e.restoreAll()
			return
		case fn := <-e.ctrl:
			fn()
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.dispatch(ev)
		}
	}
}

// dispatch handles one graph event. Errors on individual events are handled
// here and never stop the loop.
func (e *Engine) dispatch(ev graph.Event) {
	switch ev := ev.(type) {
	case graph.NodeAdded:
		e.handleNodeAdded(ev)
	case graph.NodeRemoved:
		e.handleNodeRemoved(ev)
	case graph.LevelSample:
		e.handleLevelSample(ev)
	case graph.BaselineRead:
		e.handleBaselineRead(ev)
	case graph.Tick:
		e.handleTick(ev)
	case graph.SessionLost:
		e.handleSessionLost(ev)
	case graph.SessionRestored:
		e.observer.SessionRestored()
		e.setLastError("")
	}
}

func (e *Engine) handleNodeAdded(ev graph.NodeAdded) {
	role := e.reg.Classify(ev.Meta)
	if role == types.RoleIgnored {
		slog.Debug("ignoring stream", "id", ev.ID, "app", ev.Meta.AppName, "class", ev.Meta.MediaClass)
		return
	}

	stream, displaced := e.reg.Register(ev.ID, role, ev.Meta)
	if displaced != nil {
		slog.Info("voice source replaced", "old_id", displaced.ID, "new_id", ev.ID)
		e.session.CloseTap()
		e.forceInactive()
		e.observer.VoiceSourceLost(displaced.ID, displaced.Meta)
	}

	e.observer.StreamAdded(stream)
	slog.Info("stream registered",
		"id", stream.ID, "role", stream.Role, "app", stream.Meta.AppName, "media", stream.Meta.MediaName)

	switch stream.Role {
	case types.RoleVoiceSource:
		e.observer.VoiceSourceSelected(stream.ID, stream.Meta)
		e.openVoiceTap(stream)
	case types.RoleDuckTarget:
		e.session.RequestBaseline(stream.ID)
		// A target appearing mid-speech joins the duck immediately.
		if e.detector.Active() {
			stream.State = types.DuckDucking
			stream.TargetGain = e.settings.AttenuationFactor
		}
	}

	e.publishStatus()
}

// handleSelectVoice pins a stream as the voice source on user request. The
// pinned stream's volume is restored instantly; the demoted stream rejoins
// the duck targets on its next activity edge.
func (e *Engine) handleSelectVoice(id uint32) {
	stream, demoted, ok := e.reg.Promote(id)
	if !ok {
		slog.Warn("voice source selection ignored", "id", id)
		return
	}

	e.session.CloseTap()
	e.forceInactive()

	if demoted != nil {
		e.observer.VoiceSourceLost(demoted.ID, demoted.Meta)
		if demoted.Role == types.RoleDuckTarget {
			e.session.RequestBaseline(demoted.ID)
		}
	}

	// The promoted stream stops being a duck target; put its volume back.
	if stream.LastWritten >= 0 {
		e.session.SetStreamVolume(stream.ID, stream.Baseline)
	}
	stream.State = types.DuckUnducked
	stream.CurrentGain = types.MaxGain
	stream.TargetGain = types.MaxGain
	stream.LastWritten = -1

	slog.Info("voice source pinned", "id", stream.ID, "app", stream.Meta.AppName)
	e.observer.VoiceSourceSelected(stream.ID, stream.Meta)
	e.openVoiceTap(stream)
	e.publishStatus()
}

// openVoiceTap starts the level tap and resets its health bookkeeping.
func (e *Engine) openVoiceTap(s *registry.TrackedStream) {
	e.tapSeen = false
	e.tapIdleWarned = false
	e.tapOpenedAt = time.Now()
	e.session.OpenTap(s.ID, tapTarget(s))
}

func (e *Engine) handleNodeRemoved(ev graph.NodeRemoved) {
	stream, wasVoice := e.reg.Unregister(ev.ID)
	if stream == nil {
		return
	}

	e.session.DropPending(ev.ID)
	e.observer.StreamRemoved(stream)
	slog.Info("stream removed", "id", stream.ID, "role", stream.Role, "app", stream.Meta.AppName)

	if wasVoice {
		e.session.CloseTap()
		e.observer.VoiceSourceLost(stream.ID, stream.Meta)
		e.forceInactive()
	}

	e.publishStatus()
}

func (e *Engine) handleLevelSample(ev graph.LevelSample) {
	voice, ok := e.reg.VoiceSource()
	if !ok || voice.ID != ev.ID {
		return // sample from a stale tap racing a voice-source change
	}

	e.lastSampleAt = ev.Time
	e.sampleCount++
	if !e.tapSeen {
		e.tapSeen = true
		slog.Info("voice level tap delivering samples", "id", ev.ID)
	}

	changed, active := e.detector.Update(ev.RMSDB)
	if changed {
		e.applyActivity(active)
	}
}

func (e *Engine) handleBaselineRead(ev graph.BaselineRead) {
	stream, ok := e.reg.Get(ev.ID)
	if !ok {
		return
	}
	stream.Baseline = ev.Volume
	slog.Debug("baseline captured", "id", ev.ID, "volume", ev.Volume)
}

// handleTick advances every in-flight gain ramp and flushes audible changes.
func (e *Engine) handleTick(ev graph.Tick) {
	// A silent tap must not hold targets ducked forever.
	if e.detector.Active() && !e.lastSampleAt.IsZero() &&
		ev.Time.Sub(e.lastSampleAt) > staleLevelTimeout {
		slog.Warn("voice level tap stale, forcing inactive")
		e.forceInactive()
	}

	if _, ok := e.reg.VoiceSource(); ok && !e.tapSeen && !e.tapIdleWarned &&
		ev.Time.Sub(e.tapOpenedAt) > tapIdleTimeout {
		slog.Warn("voice level tap idle, node may not be linked")
		e.tapIdleWarned = true
	}

	if ev.Time.Sub(e.lastHeartbeat) >= heartbeatInterval {
		slog.Debug("capture heartbeat",
			"samples", e.sampleCount,
			"voice_active", e.detector.Active(),
			"level_db", e.detector.LastLevelDB())
		e.lastHeartbeat = ev.Time
	}

	step := rampStep(types.TickInterval, e.settings.RampDuration)
	e.reg.Targets(func(s *registry.TrackedStream) {
		if advanceStream(s, step) {
			e.session.SetStreamVolume(s.ID, s.Baseline*s.CurrentGain)
			s.LastWritten = s.CurrentGain
		}
	})

	e.publishStatus()
}

func (e *Engine) handleSessionLost(ev graph.SessionLost) {
	slog.Error("graph session lost", "error", ev.Err)
	e.setLastError(ev.Err.Error())
	e.observer.SessionLost(ev.Err)

	// The monitor re-announces the whole graph after reconnecting, so all
	// tracked state is rebuilt from scratch.
	e.session.CloseTap()
	e.detector.ForceInactive()
	e.reg.Clear()
	e.publishStatus()
}

// applyActivity fans one voice-activity transition out to every registered
// duck target in the same dispatch cycle.
func (e *Engine) applyActivity(active bool) {
	e.observer.ActivityChanged(active, e.detector.LastLevelDB())

	targets := 0
	if active {
		e.reg.Targets(func(s *registry.TrackedStream) {
			targets++
			// Activation always wins: a stream mid-unduck reverses its
			// ramp immediately instead of finishing the ramp-up first.
			if s.State != types.DuckDucked {
				s.State = types.DuckDucking
			}
			s.TargetGain = e.settings.AttenuationFactor
		})
		slog.Info("voice active, ducking", "targets", targets, "level_db", e.detector.LastLevelDB())
		e.observer.DuckEngaged(targets)
	} else {
		e.reg.Targets(func(s *registry.TrackedStream) {
			targets++
			if s.State != types.DuckUnducked {
				s.State = types.DuckUnducking
			}
			s.TargetGain = types.MaxGain
		})
		slog.Info("voice inactive, releasing", "targets", targets)
		e.observer.DuckReleased(targets)
	}

	e.publishStatus()
}

// forceInactive clears the activity signal outside of normal debouncing,
// used when the voice source disappears or its tap goes stale.
func (e *Engine) forceInactive() {
	if e.detector.ForceInactive() {
		e.applyActivity(false)
	}
}

// restoreAll puts every target back at its exact baseline in one write
// before the session closes. Shutdown does not ramp.
func (e *Engine) restoreAll() {
	e.reg.Targets(func(s *registry.TrackedStream) {
		if s.CurrentGain != types.MaxGain || s.LastWritten >= 0 {
			e.session.SetStreamVolume(s.ID, s.Baseline)
		}
	})
}

// publishStatus snapshots engine state for concurrent readers (web UI).
func (e *Engine) publishStatus() {
	status := types.EngineStatus{
		VoiceActive:  e.detector.Active(),
		VoiceLevelDB: e.detector.LastLevelDB(),
	}

	if voice, ok := e.reg.VoiceSource(); ok {
		status.VoiceSourceID = voice.ID
		status.VoiceSourceApp = voice.Meta.AppName
	}

	status.Streams = make([]types.StreamStatus, 0, e.reg.Len())
	e.reg.All(func(s *registry.TrackedStream) {
		status.Streams = append(status.Streams, types.StreamStatus{
			ID:          s.ID,
			Role:        s.Role,
			AppName:     s.Meta.AppName,
			MediaName:   s.Meta.MediaName,
			DuckState:   s.State,
			CurrentGain: s.CurrentGain,
			TargetGain:  s.TargetGain,
			Baseline:    s.Baseline,
			Pinned:      s.Pinned,
		})
	})
	slices.SortFunc(status.Streams, func(a, b types.StreamStatus) int {
		return int(a.ID) - int(b.ID)
	})

	e.mu.Lock()
	e.status = status
	e.mu.Unlock()
}

func (e *Engine) setLastError(msg string) {
	e.mu.Lock()
	e.lastError = msg
	e.mu.Unlock()
}

// tapTarget picks the capture target identifier for the voice node: the
// object serial when present, falling back to the node name or raw id.
func tapTarget(s *registry.TrackedStream) string {
	if s.Meta.Serial != "" {
		return s.Meta.Serial
	}
	if s.Meta.NodeName != "" {
		return s.Meta.NodeName
	}
	return strconv.FormatUint(uint64(s.ID), 10)
}
