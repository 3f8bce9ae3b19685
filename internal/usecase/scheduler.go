package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// Window is a local time-of-day range. Start is inclusive and End exclusive;
// a Start after End wraps midnight and equal bounds cover the whole day.
type Window struct {
	Start    time.Duration
	End      time.Duration
	Location *time.Location
}

// Contains reports whether t falls inside the window in the window's location.
func (w Window) Contains(t time.Time) bool {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	offset := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())

	switch {
	case w.Start == w.End:
		return true
	case w.Start < w.End:
		return offset >= w.Start && offset < w.End
	default:
		return offset >= w.Start || offset < w.End
	}
}

// FireOutcome describes what a scheduler fire did.
type FireOutcome string

const (
	FireRan                  FireOutcome = "ran"
	FireSkippedOutsideWindow FireOutcome = "outside_window"
	FireSkippedBusy          FireOutcome = "busy"
)

// PassRunner executes one ingestion pass.
type PassRunner interface {
	Run(ctx context.Context) (domain.PassReport, error)
}

// Scheduler gates the recurring driver by the active window and lets at most
// one pass run at a time.
type Scheduler struct {
	driver   ports.Scheduler
	runner   PassRunner
	window   Window
	logger   *slog.Logger
	recorder ports.Recorder

	running sync.Mutex
}

// NewScheduler returns a helper to start/stop recurring passes.
func NewScheduler(driver ports.Scheduler, runner PassRunner, window Window, logger *slog.Logger, recorder ports.Recorder) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	return &Scheduler{
		driver:   driver,
		runner:   runner,
		window:   window,
		logger:   logger,
		recorder: recorder,
	}
}

// Start registers the pass with the driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.runner == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.Fire(ctx, trigger)
	}

	return s.driver.Start(ctx, job)
}

// Fire runs a pass for a trigger at the given instant, unless the instant is
// outside the window or another pass is still running.
func (s *Scheduler) Fire(ctx context.Context, at time.Time) FireOutcome {
	if !s.window.Contains(at) {
		s.logger.Info("outside active window, skipping pass",
			"local_time", at.In(s.location()).Format("15:04"))
		s.recorder.FireSkipped(string(FireSkippedOutsideWindow))
		return FireSkippedOutsideWindow
	}

	if !s.running.TryLock() {
		s.logger.Warn("previous pass still running, skipping fire")
		s.recorder.FireSkipped(string(FireSkippedBusy))
		return FireSkippedBusy
	}
	defer s.running.Unlock()

	// Run logs its own outcome.
	_, _ = s.runner.Run(ctx)
	return FireRan
}

// Stop gracefully tears down the underlying driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

func (s *Scheduler) location() *time.Location {
	if s.window.Location == nil {
		return time.UTC
	}
	return s.window.Location
}
