// Package main provides a voice-activated audio ducker for PipeWire that
// attenuates playback streams while a voice source is speaking.
//
// Usage:
//
//	ducker [-config path/to/config.json]
//
// If -config is not specified, the ducker looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/oszuidwest/zwfm-ducker/internal/config"
	"github.com/oszuidwest/zwfm-ducker/internal/ducking"
	"github.com/oszuidwest/zwfm-ducker/internal/events"
	"github.com/oszuidwest/zwfm-ducker/internal/graph"
	"github.com/oszuidwest/zwfm-ducker/internal/notify"
	"github.com/oszuidwest/zwfm-ducker/internal/registry"
	"github.com/oszuidwest/zwfm-ducker/internal/server"
	"github.com/oszuidwest/zwfm-ducker/internal/types"
	"github.com/oszuidwest/zwfm-ducker/internal/util"
)

// duckObserver fans engine callbacks out to the event journal and the
// alert notifier. The recorder may be nil when no journal is configured.
type duckObserver struct {
	recorder *events.Recorder
	notifier *notify.AlertNotifier
}

func (o *duckObserver) ActivityChanged(active bool, levelDB float64) {
	if o.recorder != nil {
		o.recorder.ActivityChanged(active, levelDB)
	}
}

func (o *duckObserver) DuckEngaged(targets int) {
	if o.recorder != nil {
		o.recorder.DuckEngaged(targets)
	}
}

func (o *duckObserver) DuckReleased(targets int) {
	if o.recorder != nil {
		o.recorder.DuckReleased(targets)
	}
}

func (o *duckObserver) StreamAdded(s *registry.TrackedStream) {
	if o.recorder != nil {
		o.recorder.StreamAdded(s)
	}
}

func (o *duckObserver) StreamRemoved(s *registry.TrackedStream) {
	if o.recorder != nil {
		o.recorder.StreamRemoved(s)
	}
}

func (o *duckObserver) VoiceSourceSelected(id uint32, meta types.NodeMeta) {
	if o.recorder != nil {
		o.recorder.VoiceSourceSelected(id, meta)
	}
	o.notifier.HandleVoiceSource("voice_source_selected", id, meta)
}

func (o *duckObserver) VoiceSourceLost(id uint32, meta types.NodeMeta) {
	if o.recorder != nil {
		o.recorder.VoiceSourceLost(id, meta)
	}
	o.notifier.HandleVoiceSource("voice_source_lost", id, meta)
}

func (o *duckObserver) SessionLost(err error) {
	if o.recorder != nil {
		o.recorder.SessionLost(err)
	}
	o.notifier.HandleSessionLost(err)
}

func (o *duckObserver) SessionRestored() {
	if o.recorder != nil {
		o.recorder.SessionRestored()
	}
	o.notifier.HandleSessionRestored()
}

var _ ducking.Observer = (*duckObserver)(nil)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Resolve the PipeWire CLI tools the ducker drives.
	tools, err := graph.ResolveTools(cfg.System.PWDumpPath, cfg.System.PWCatPath, cfg.System.WpCtlPath)
	if err != nil {
		slog.Error("PipeWire tools not found", "error", err)
		os.Exit(1)
	}
	slog.Info("PipeWire tools found",
		"pw_dump", tools.PWDump, "pw_cat", tools.PWCat, "wpctl", tools.WpCtl)

	// Event journal is optional; without a path the ducker runs without one.
	var journal *events.Logger
	var recorder *events.Recorder
	var archiver *events.Archiver
	if journalPath := cfg.EventsPath(); journalPath != "" {
		journal, err = events.NewLogger(journalPath)
		if err != nil {
			slog.Error("failed to open event journal", "path", journalPath, "error", err)
			os.Exit(1)
		}
		recorder = events.NewRecorder(journal)
		slog.Info("event journal enabled", "path", journalPath)

		if s3cfg := cfg.EventsS3(); s3cfg.IsConfigured() {
			archiver = events.NewArchiver(s3cfg, journalPath)
			archiver.Start()
			slog.Info("journal S3 archival enabled", "bucket", s3cfg.Bucket)
		}
	}

	notifier := notify.NewAlertNotifier(cfg)
	observer := &duckObserver{recorder: recorder, notifier: notifier}

	session := graph.NewPWSession(tools)
	duckCfg := cfg.DuckingSettings()
	engine := ducking.New(session, server.EnginePolicy(&duckCfg), server.EngineSettings(&duckCfg), observer)

	srv := NewServer(cfg, engine, notifier)

	slog.Info("starting ducking engine")
	if err := engine.Start(); err != nil {
		slog.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	// Start web server.
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	// Stop version checker goroutine
	srv.version.Stop()

	// Shut down HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := engine.Stop(); err != nil {
		slog.Error("error stopping engine", "error", err)
	}

	if archiver != nil {
		archiver.Stop()
	}
	if journal != nil {
		if err := journal.Close(); err != nil {
			slog.Error("error closing event journal", "error", err)
		}
	}

	slog.Info("shutdown complete")
}
