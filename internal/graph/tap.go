package graph

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-ducker/internal/audio"
	"github.com/oszuidwest/zwfm-ducker/internal/types"
	"github.com/oszuidwest/zwfm-ducker/internal/util"
)

// tapFrameBytes is one metering frame: 20 ms of S16LE stereo at 48 kHz.
const tapFrameBytes = types.SampleRate / 50 * types.Channels * 2

// levelTap runs a pw-cat --record process against the voice node's monitor
// and meters its PCM output into LevelSample events. The tap restarts with
// backoff until closed; while it is down the engine simply receives no
// samples and falls back to its stale-level guard.
type levelTap struct {
	pwCatPath string
	nodeID    uint32
	target    string
	events    chan<- Event
	stopCh    <-chan struct{}

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
}

func newLevelTap(pwCatPath string, nodeID uint32, target string, events chan<- Event, stopCh <-chan struct{}) *levelTap {
	return &levelTap{
		pwCatPath: pwCatPath,
		nodeID:    nodeID,
		target:    target,
		events:    events,
		stopCh:    stopCh,
	}
}

// run supervises the tap process until close.
func (t *levelTap) run() {
	backoff := util.NewBackoff(types.InitialRetryDelay, types.MaxRetryDelay)

	for {
		if t.isClosed() {
			return
		}

		startTime := time.Now()
		stderr, err := t.runOnce()
		runDuration := time.Since(startTime)

		if t.isClosed() {
			return
		}

		if runDuration >= types.SuccessThreshold {
			backoff.Reset()
		}

		slog.Warn("voice level tap stopped",
			"node", t.nodeID, "error", firstNonEmpty(stderr, errString(err)))

		select {
		case <-t.stopCh:
			return
		case <-time.After(backoff.Next()):
		}
	}
}

// runOnce runs a single pw-cat process until it exits or the tap closes.
func (t *levelTap) runOnce() (string, error) {
	ctx, cancel := context.WithCancel(context.Background())

	cmd := exec.CommandContext(ctx, t.pwCatPath,
		"--record",
		"--target", t.target,
		"--format", "s16",
		"--rate", strconv.Itoa(types.SampleRate),
		"--channels", strconv.Itoa(types.Channels),
		"--latency", "20ms",
		"-",
	)
	cmd.Cancel = func() error {
		return util.GracefulSignal(cmd.Process)
	}
	cmd.WaitDelay = types.ShutdownTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return "", err
	}

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		cancel()
		return "", err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		cancel()
		_ = cmd.Wait()
		return "", nil
	}
	t.cancel = cancel
	t.mu.Unlock()

	t.meter(stdout)

	err = cmd.Wait()
	t.mu.Lock()
	t.cancel = nil
	t.mu.Unlock()
	cancel()

	return util.ExtractLastError(stderrBuf.String()), err
}

// meter reads PCM frames and emits one level sample per frame. Samples are
// dropped rather than queued when the engine lags; the next frame carries
// fresher data anyway.
func (t *levelTap) meter(r io.Reader) {
	buf := make([]byte, tapFrameBytes)
	var data audio.LevelData

	for {
		n, err := io.ReadFull(r, buf)
		if err != nil {
			return
		}

		data.Reset()
		audio.ProcessSamples(buf, n, &data)
		levels := audio.CalculateLevels(&data)

		select {
		case t.events <- LevelSample{ID: t.nodeID, RMSDB: levels.RMSDB, Time: time.Now()}:
		default:
		}
	}
}

func (t *levelTap) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// close stops the tap permanently.
func (t *levelTap) close() {
	t.mu.Lock()
	t.closed = true
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
