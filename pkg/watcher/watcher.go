// classifier/pkg/watcher/watcher.go

// Package watcher reloads a rule store whenever its source reports a change.
package watcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"rgehrsitz/classifier/pkg/logging"
	"rgehrsitz/classifier/pkg/store"
)

// DefaultSettleInterval is how long the watcher waits after a change for
// further changes before reloading.
const DefaultSettleInterval = 25 * time.Millisecond

var ErrAlreadyStarted = errors.New("watcher already started")

// Reloader is the part of store.RuleStore the watcher drives.
type Reloader interface {
	Reload(ctx context.Context) error
}

// ConfigWatcher turns change signals from a store.Notifier into reloads.
// One watcher belongs to one store.
type ConfigWatcher struct {
	reloader Reloader
	notifier store.Notifier
	settle   time.Duration

	started  atomic.Bool
	inert    atomic.Bool
	reloads  atomic.Uint64
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a watcher. A non-positive settle uses DefaultSettleInterval.
func New(reloader Reloader, notifier store.Notifier, settle time.Duration) *ConfigWatcher {
	if settle <= 0 {
		settle = DefaultSettleInterval
	}
	return &ConfigWatcher{
		reloader: reloader,
		notifier: notifier,
		settle:   settle,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start sets up the change feed and runs the watch loop in its own
// goroutine. If the feed cannot be set up the watcher stays inert, the
// error is returned, and the store can still be reloaded by hand.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	watchCtx, cancel := context.WithCancel(ctx)
	feed, err := w.notifier.Watch(watchCtx)
	if err != nil {
		cancel()
		w.inert.Store(true)
		close(w.done)
		werr := logging.NewError(logging.ErrorTypeWatchSetup, "Change notification unavailable, rules will only reload on request", err, map[string]interface{}{
			"source": w.notifier.Name(),
		})
		logging.LogError(logging.Logger, werr)
		return werr
	}

	go w.run(watchCtx, cancel, feed)
	logging.Logger.Info().Str("source", w.notifier.Name()).Dur("settle", w.settle).Msg("Config watcher started")
	return nil
}

// Stop ends the watch loop and waits until it has released the change
// feed. It is safe to call more than once and before Start.
func (w *ConfigWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.started.Load() {
		<-w.done
	}
}

// Inert reports whether the watcher failed to set up change notification.
func (w *ConfigWatcher) Inert() bool {
	return w.inert.Load()
}

// Done is closed once the watch loop has exited.
func (w *ConfigWatcher) Done() <-chan struct{} {
	return w.done
}

// Reloads counts the reloads the watcher has triggered, failed ones included.
func (w *ConfigWatcher) Reloads() uint64 {
	return w.reloads.Load()
}

func (w *ConfigWatcher) run(ctx context.Context, cancel context.CancelFunc, feed store.ChangeFeed) {
	defer close(w.done)
	defer func() {
		if err := feed.Close(); err != nil {
			logging.Logger.Warn().Err(err).Str("source", w.notifier.Name()).Msg("Failed to release change feed")
		}
	}()
	defer cancel()

	for {
		select {
		case <-w.stop:
			logging.Logger.Info().Str("source", w.notifier.Name()).Msg("Config watcher stopped")
			return
		case <-ctx.Done():
			return
		case err := <-feed.Errors():
			logging.Logger.Warn().Err(err).Str("source", w.notifier.Name()).Msg("Change feed reported an error")
		case <-feed.Changes():
			if !w.settleChanges(ctx, feed) {
				return
			}
			w.reload(ctx)
		}
	}
}

// settleChanges absorbs the burst of signals a single save tends to produce.
// It returns false if the watcher is stopping.
func (w *ConfigWatcher) settleChanges(ctx context.Context, feed store.ChangeFeed) bool {
	timer := time.NewTimer(w.settle)
	defer timer.Stop()
	for {
		select {
		case <-w.stop:
			return false
		case <-ctx.Done():
			return false
		case <-feed.Changes():
		case <-timer.C:
			return true
		}
	}
}

func (w *ConfigWatcher) reload(ctx context.Context) {
	w.reloads.Add(1)
	logging.Logger.Info().Str("source", w.notifier.Name()).Msg("Detected change in rule source, reloading")
	if err := w.reloader.Reload(ctx); err != nil {
		logging.Logger.Error().Err(err).Str("source", w.notifier.Name()).Msg("Reload after change failed, keeping previous rule set")
	}
}
