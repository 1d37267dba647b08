package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/tribal-hazard-overlays/internal/observability"
)

// Retry delays between attempts within a single refresh tick.
const (
	DefaultInitialBackoff = 2 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
)

// Tick outcomes recorded in metrics.
const (
	OutcomeApplied = "applied"
	OutcomeStale   = "stale"
	OutcomeFailed  = "failed"
)

// FetchFunc loads fresh data for one tick.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// ApplyFunc installs fetched data. It runs under the guard lock.
type ApplyFunc[T any] func(v T, generation uint64)

// Options configures a Loop.
type Options struct {
	Name           string // overlay name used in logs and metrics
	Interval       time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Clock          clockwork.Clock
	Logger         *slog.Logger
	Metrics        *observability.Metrics
}

// Loop re-fetches data on a fixed interval and applies successful results
// through a Guard. A failed tick leaves the previously applied data in place.
type Loop[T any] struct {
	opts  Options
	guard *Guard
	fetch FetchFunc[T]
	apply ApplyFunc[T]

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	ticks  sync.WaitGroup
}

// NewLoop creates a stopped loop. Zero-valued options fall back to defaults.
func NewLoop[T any](guard *Guard, fetch FetchFunc[T], apply ApplyFunc[T], opts Options) *Loop[T] {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	return &Loop[T]{opts: opts, guard: guard, fetch: fetch, apply: apply}
}

// Start begins ticking, stopping any loop already running first. A
// non-positive interval leaves the loop stopped.
func (l *Loop[T]) Start(ctx context.Context) {
	l.Stop()

	if l.opts.Interval <= 0 {
		l.opts.Logger.Debug("refresh disabled", "overlay", l.opts.Name)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	ticker := l.opts.Clock.NewTicker(l.opts.Interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				l.ticks.Add(1)
				go func() {
					defer l.ticks.Done()
					_ = l.RunOnce(ctx)
				}()
			}
		}
	}()

	l.opts.Logger.Info("refresh started", "overlay", l.opts.Name, "interval", l.opts.Interval)
}

// Stop halts the loop and waits for in-flight ticks to finish, so no tick
// applies data after Stop returns. Stop is idempotent.
func (l *Loop[T]) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	l.ticks.Wait()
	l.opts.Logger.Info("refresh stopped", "overlay", l.opts.Name)
}

// Running reports whether the loop is ticking.
func (l *Loop[T]) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// RunOnce performs a single tick: fetch with bounded retry of transient
// failures, then apply through the guard. A result superseded by a newer one
// is discarded without error.
func (l *Loop[T]) RunOnce(ctx context.Context) error {
	tickCtx, ticket := l.guard.Begin(ctx)
	defer l.guard.End(ticket)

	v, err := l.fetchWithRetry(tickCtx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if tickCtx.Err() != nil {
			l.opts.Metrics.RefreshTicks.WithLabelValues(l.opts.Name, OutcomeStale).Inc()
			l.opts.Logger.Debug("refresh superseded", "overlay", l.opts.Name, "generation", ticket.gen)
			return nil
		}
		l.opts.Metrics.RefreshTicks.WithLabelValues(l.opts.Name, OutcomeFailed).Inc()
		l.opts.Logger.Warn("refresh failed, keeping previous data", "overlay", l.opts.Name, "error", err)
		return err
	}

	if !l.guard.Commit(ticket, func() { l.apply(v, ticket.gen) }) {
		l.opts.Metrics.RefreshTicks.WithLabelValues(l.opts.Name, OutcomeStale).Inc()
		l.opts.Logger.Debug("stale refresh discarded", "overlay", l.opts.Name, "generation", ticket.gen)
		return nil
	}
	l.opts.Metrics.RefreshTicks.WithLabelValues(l.opts.Name, OutcomeApplied).Inc()
	return nil
}

func (l *Loop[T]) fetchWithRetry(ctx context.Context) (T, error) {
	var result T
	op := func() error {
		v, err := l.fetch(ctx)
		if err != nil {
			if !Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = v
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = l.opts.InitialBackoff
	eb.MaxInterval = l.opts.MaxBackoff
	eb.MaxElapsedTime = 0
	eb.Clock = l.opts.Clock

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(max(l.opts.MaxRetries, 0))), ctx)

	notify := func(err error, wait time.Duration) {
		l.opts.Logger.Debug("refresh attempt failed, retrying", "overlay", l.opts.Name, "error", err, "wait", wait)
	}
	err := backoff.RetryNotifyWithTimer(op, b, notify, &clockTimer{clock: l.opts.Clock})
	return result, err
}

// Retryable reports whether err is a transient failure worth retrying.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}

// clockTimer adapts a clockwork clock to the backoff timer interface.
type clockTimer struct {
	clock clockwork.Clock
	timer clockwork.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.Chan()
}
