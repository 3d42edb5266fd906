package scheduler

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"
)

// ReminderDispatcher is the reminder-side surface the sweep drives.
type ReminderDispatcher interface {
	// Resume re-arms short-horizon timers and dispatches anything overdue.
	// Called once, synchronously, at startup.
	Resume(ctx context.Context) error
	// DispatchDue dispatches every due reminder and returns how many were
	// picked up.
	DispatchDue(ctx context.Context) (int, error)
	// CollectGarbage drops terminal reminders past their retention window.
	CollectGarbage(ctx context.Context) error
}

// GiveawayFinisher is the giveaway-side surface the sweep drives.
type GiveawayFinisher interface {
	// Resume restarts refresh loops for active giveaways and finishes any
	// that expired while the process was down.
	Resume(ctx context.Context) error
	// FinishDue ends every expired giveaway and returns how many.
	FinishDue(ctx context.Context) (int, error)
}

// Sweep is the periodic reconciliation pass. It only ever loads the due
// subset from the stores, so an idle tick is a single cheap query, and one
// task's failure never stops the loop.
type Sweep struct {
	reminders ReminderDispatcher
	giveaways GiveawayFinisher

	reminderEvery time.Duration
	giveawayEvery time.Duration
}

func NewSweep(reminders ReminderDispatcher, giveaways GiveawayFinisher, reminderEvery, giveawayEvery time.Duration) *Sweep {
	return &Sweep{
		reminders:     reminders,
		giveaways:     giveaways,
		reminderEvery: reminderEvery,
		giveawayEvery: giveawayEvery,
	}
}

// Startup runs the one-shot recovery pass. Errors are logged, not fatal:
// whatever could not be recovered now is picked up by the first tick.
func (s *Sweep) Startup(ctx context.Context) {
	if err := s.reminders.Resume(ctx); err != nil {
		slog.Error("resume reminders", "error", err)
	}
	if err := s.giveaways.Resume(ctx); err != nil {
		slog.Error("resume giveaways", "error", err)
	}
}

// Run polls until ctx is cancelled. Meant to be launched as a goroutine
// after Startup.
func (s *Sweep) Run(ctx context.Context) {
	reminderTicker := time.NewTicker(s.reminderEvery)
	defer reminderTicker.Stop()
	giveawayTicker := time.NewTicker(s.giveawayEvery)
	defer giveawayTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reminderTicker.C:
			s.sweepReminders(ctx)
		case <-giveawayTicker.C:
			s.sweepGiveaways(ctx)
		}
	}
}

// A panic in one pass must not kill the loop: the ticker keeps running and
// the next tick retries whatever was left behind.
func (s *Sweep) sweepReminders(ctx context.Context) {
	defer recoverPass("reminder sweep")
	if n, err := s.reminders.DispatchDue(ctx); err != nil {
		slog.Error("reminder sweep", "error", err)
	} else if n > 0 {
		slog.Debug("reminder sweep dispatched", "count", n)
	}
	if err := s.reminders.CollectGarbage(ctx); err != nil {
		slog.Error("reminder gc", "error", err)
	}
}

func (s *Sweep) sweepGiveaways(ctx context.Context) {
	defer recoverPass("giveaway sweep")
	if n, err := s.giveaways.FinishDue(ctx); err != nil {
		slog.Error("giveaway sweep", "error", err)
	} else if n > 0 {
		slog.Debug("giveaway sweep finished", "count", n)
	}
}

func recoverPass(name string) {
	if r := recover(); r != nil {
		slog.Error("panic in sweep pass",
			"pass", name, "panic", r, "stack", string(debug.Stack()))
	}
}
