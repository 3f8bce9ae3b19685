package enrichment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"NewsDigest/internal/ports"
)

const (
	rateWindow    = time.Minute
	defaultMargin = time.Second
)

// Governor owns the state shared by every enrichment call in the process:
// the rolling request window and the credential pool with its active handle.
// One mutex guards both.
type Governor struct {
	mu      sync.Mutex
	maxRPM  int
	margin  time.Duration
	stamps  []time.Time
	keys    []string
	active  int
	handle  ports.TextGenerator
	factory func(apiKey string) ports.TextGenerator

	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
	recorder ports.Recorder
}

// GovernorOption customises a Governor.
type GovernorOption func(*Governor)

// WithClock replaces the wall clock and the blocking sleep, mainly for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) GovernorOption {
	return func(g *Governor) {
		if now != nil {
			g.now = now
		}
		if sleep != nil {
			g.sleep = sleep
		}
	}
}

// WithMargin sets the extra delay added after the oldest request leaves the window.
func WithMargin(d time.Duration) GovernorOption {
	return func(g *Governor) { g.margin = d }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) GovernorOption {
	return func(g *Governor) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r ports.Recorder) GovernorOption {
	return func(g *Governor) {
		if r != nil {
			g.recorder = r
		}
	}
}

// NewGovernor validates the budget and credentials and builds the handle for the first key.
func NewGovernor(maxRPM int, keys []string, factory func(apiKey string) ports.TextGenerator, opts ...GovernorOption) (*Governor, error) {
	if maxRPM <= 0 {
		return nil, errors.New("max requests per minute must be positive")
	}
	if len(keys) == 0 {
		return nil, errors.New("at least one credential is required")
	}
	if factory == nil {
		return nil, errors.New("generator factory is nil")
	}

	g := &Governor{
		maxRPM:   maxRPM,
		margin:   defaultMargin,
		keys:     append([]string(nil), keys...),
		factory:  factory,
		now:      time.Now,
		sleep:    sleepContext,
		logger:   slog.New(slog.DiscardHandler),
		recorder: ports.NopRecorder{},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.handle = factory(g.keys[0])
	return g, nil
}

// Acquire blocks until a request slot is free in the trailing minute and records it.
func (g *Governor) Acquire(ctx context.Context) error {
	for {
		g.mu.Lock()
		now := g.now()
		g.prune(now)
		if len(g.stamps) < g.maxRPM {
			g.stamps = append(g.stamps, now)
			g.mu.Unlock()
			return nil
		}
		wait := g.stamps[0].Add(rateWindow + g.margin).Sub(now)
		g.mu.Unlock()

		g.logger.Info("rate limit reached, waiting", "wait", wait, "max_rpm", g.maxRPM)
		g.recorder.RateLimitWait(wait)
		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (g *Governor) prune(now time.Time) {
	cut := 0
	for cut < len(g.stamps) && now.Sub(g.stamps[cut]) >= rateWindow {
		cut++
	}
	if cut > 0 {
		g.stamps = append(g.stamps[:0], g.stamps[cut:]...)
	}
}

// Active returns the active credential slot and its handle.
func (g *Governor) Active() (int, ports.TextGenerator) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active, g.handle
}

// RotateFrom moves to the next credential, wrapping, if slot is still the active one.
// It reports whether a rotation happened.
func (g *Governor) RotateFrom(slot int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if slot != g.active {
		return false
	}
	g.active = (g.active + 1) % len(g.keys)
	g.handle = g.factory(g.keys[g.active])
	g.logger.Info("switched credential", "slot", g.active+1, "pool", len(g.keys))
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
