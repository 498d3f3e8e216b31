package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/conveyorci/conveyor/pkg/telemetry"
)

// Watcher re-runs a mode on a fixed interval and, when paths are
// configured, on filesystem changes. Cycles run on their own goroutine;
// a tick or change arriving while a cycle is still in flight is skipped
// rather than queued, so runs never overlap.
type Watcher struct {
	orch     *Orchestrator
	mode     Mode
	target   string
	interval time.Duration
	debounce time.Duration
	paths    []string
	log      zerolog.Logger
	busy     atomic.Bool

	// OnResult, when set, receives every completed cycle's result.
	OnResult func(*Result)
}

// NewWatcher builds a watcher from the orchestrator's watch config.
func NewWatcher(orch *Orchestrator, mode Mode, target string) *Watcher {
	return &Watcher{
		orch:     orch,
		mode:     mode,
		target:   target,
		interval: orch.cfg.Watch.Interval.Std(),
		debounce: orch.cfg.Watch.Debounce.Std(),
		paths:    orch.cfg.Watch.Paths,
		log:      telemetry.ComponentLogger(orch.log, "watch"),
	}
}

// Run cycles until the context is cancelled. The first cycle starts
// immediately. Returns the context's error on shutdown.
func (w *Watcher) Run(ctx context.Context) error {
	trigger := make(chan struct{}, 1)
	if len(w.paths) > 0 {
		fw, err := w.watchPaths(ctx, trigger)
		if err != nil {
			return err
		}
		defer fw.Close()
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info().
		Str("mode", string(w.mode)).
		Dur("interval", w.interval).
		Strs("paths", w.paths).
		Msg("watch started")
	go w.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("watch stopped")
			return ctx.Err()
		case <-ticker.C:
			go w.cycle(ctx)
		case <-trigger:
			go w.cycle(ctx)
		}
	}
}

// cycle runs one orchestration unless a previous cycle is still busy.
func (w *Watcher) cycle(ctx context.Context) {
	if !w.busy.CompareAndSwap(false, true) {
		w.log.Warn().Msg("previous cycle still running, skipping")
		w.orch.metrics.WatchCycle("skipped")
		w.orch.events.Publish(telemetry.Event{
			Type:    telemetry.EventTypeWatchSkipped,
			Message: "cycle skipped: previous run still in progress",
			Level:   telemetry.EventLevelWarning,
		})
		return
	}
	defer w.busy.Store(false)

	res, err := w.orch.Orchestrate(ctx, w.mode, w.target)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.log.Error().Err(err).Msg("cycle failed")
		}
		w.orch.metrics.WatchCycle("error")
		return
	}
	w.orch.metrics.WatchCycle("run")
	if w.OnResult != nil {
		w.OnResult(res)
	}
}

// watchPaths wires fsnotify on the configured paths, debouncing bursts
// of events into a single trigger.
func (w *Watcher) watchPaths(ctx context.Context, trigger chan<- struct{}) (*fsnotify.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range w.paths {
		abs := p
		if !filepath.IsAbs(p) {
			abs = filepath.Join(w.target, p)
		}
		if err := fw.Add(abs); err != nil {
			if os.IsNotExist(err) {
				w.log.Warn().Str("path", abs).Msg("watch path does not exist, ignoring")
				continue
			}
			fw.Close()
			return nil, err
		}
	}

	go func() {
		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename) {
					continue
				}
				w.log.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("change detected")
				if debounce == nil {
					debounce = time.AfterFunc(w.debounce, func() {
						select {
						case trigger <- struct{}{}:
						default:
						}
					})
				} else {
					debounce.Reset(w.debounce)
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				w.log.Warn().Err(err).Msg("watch error")
			}
		}
	}()
	return fw, nil
}
