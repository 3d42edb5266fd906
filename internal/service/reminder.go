package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/cadence-bot/cadence/internal/config"
	"github.com/cadence-bot/cadence/internal/domain"
	"github.com/cadence-bot/cadence/internal/duration"
)

// ReminderStore is the persistence surface the delivery pipeline needs.
// Implemented by repository.ReminderRepo.
type ReminderStore interface {
	Create(ctx context.Context, r *domain.Reminder) error
	GetByID(ctx context.Context, id string) (*domain.Reminder, error)
	ListDue(ctx context.Context, now, reclaimBefore time.Time) ([]*domain.Reminder, error)
	ListPendingUntil(ctx context.Context, horizon time.Time) ([]*domain.Reminder, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*domain.Reminder, error)
	TryClaim(ctx context.Context, id string, now, reclaimBefore time.Time) (bool, error)
	MarkDelivered(ctx context.Context, id string) error
	MarkFailedAttempt(ctx context.Context, id, reason string, nextRetryAt time.Time) error
	MarkTerminalFailure(ctx context.Context, id, reason string) error
	Delete(ctx context.Context, id string, ownerID int64) error
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Messenger delivers reminder payloads. Implemented by telegram.Notifier.
type Messenger interface {
	// ResolveRecipient confirms the owner is reachable at all. A
	// domain.ErrRecipientUnresolvable result is terminal: there is no one
	// to retry for.
	ResolveRecipient(ctx context.Context, ownerID int64) error
	SendDirect(ctx context.Context, ownerID int64, payload string) error
	SendFallback(ctx context.Context, chatID, ownerID int64, payload string) error
}

// TimerArm is the in-process timer surface. Implemented by scheduler.Timers.
type TimerArm interface {
	Arm(id string, at time.Time, fn func()) bool
	Cancel(id string)
}

// Audit mirrors notable engine events to an observability sink.
type Audit interface {
	DeliveryFailed(r *domain.Reminder, reason string)
	WinnerChosen(g *domain.Giveaway, entrants int)
}

// ReminderService owns the reminder lifecycle: creation, cancellation and
// the delivery pipeline. Dispatch is the single handler both the armed
// timer and the recovery sweep converge on; it claims the row first, so a
// reminder is processed by at most one path at a time.
type ReminderService struct {
	store  ReminderStore
	msgr   Messenger
	timers TimerArm
	audit  Audit

	maxAttempts int
	retryDelay  time.Duration
	now         func() time.Time
}

type ReminderDeps struct {
	Store  ReminderStore
	Msgr   Messenger
	Timers TimerArm
	Audit  Audit

	// Optional overrides; zero values fall back to config defaults.
	MaxAttempts int
	RetryDelay  time.Duration
	Now         func() time.Time
}

func NewReminderService(deps ReminderDeps) *ReminderService {
	s := &ReminderService{
		store:       deps.Store,
		msgr:        deps.Msgr,
		timers:      deps.Timers,
		audit:       deps.Audit,
		maxAttempts: deps.MaxAttempts,
		retryDelay:  deps.RetryDelay,
		now:         deps.Now,
	}
	if s.maxAttempts == 0 {
		s.maxAttempts = config.MaxDeliveryAttempts
	}
	if s.retryDelay == 0 {
		s.retryDelay = config.RetryDelay
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.audit == nil {
		s.audit = NopAudit{}
	}
	return s
}

// Create parses the duration token, persists the reminder and arms a
// short-horizon timer. Parsing errors surface verbatim to the caller; the
// sweep alone covers triggers beyond the timer horizon.
func (s *ReminderService) Create(ctx context.Context, ownerID int64, token, payload string, fallbackChatID *int64) (*domain.Reminder, error) {
	d, err := duration.Parse(token, duration.ReminderBounds)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rem := &domain.Reminder{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		Payload:        payload,
		CreatedAt:      now,
		TriggerAt:      now.Add(d),
		FallbackChatID: fallbackChatID,
		State:          domain.ReminderPending,
	}
	if err := s.store.Create(ctx, rem); err != nil {
		return nil, err
	}
	s.arm(rem)
	return rem, nil
}

// Cancel deletes an owner's pending reminder and disarms its timer.
func (s *ReminderService) Cancel(ctx context.Context, id string, ownerID int64) error {
	if err := s.store.Delete(ctx, id, ownerID); err != nil {
		return err
	}
	s.timers.Cancel(id)
	return nil
}

// List returns the owner's pending reminders, soonest first.
func (s *ReminderService) List(ctx context.Context, ownerID int64) ([]*domain.Reminder, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// Dispatch runs one delivery attempt for the reminder. Safe to call from
// either dispatch path and at any time: it claims the row before any I/O
// and silently no-ops when another path already took it, the task is
// terminal, or the id no longer exists.
//
// Every attempt's bookkeeping is persisted before returning. A crash
// between a successful send and MarkDelivered re-delivers after the reclaim
// window: at-least-once, by design of the durability contract.
func (s *ReminderService) Dispatch(ctx context.Context, id string) error {
	now := s.now()
	claimed, err := s.store.TryClaim(ctx, id, now, now.Add(-config.ClaimReclaimAfter))
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	if !claimed {
		return nil
	}

	rem, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrReminderNotFound) {
			return nil
		}
		return err
	}

	if err := s.msgr.ResolveRecipient(ctx, rem.OwnerID); err != nil {
		// No recipient, no point retrying. Intentionally produces no
		// user-visible message; the audit sink is the only trace.
		reason := err.Error()
		if markErr := s.store.MarkTerminalFailure(ctx, id, reason); markErr != nil {
			return fmt.Errorf("mark unresolvable: %w", markErr)
		}
		slog.Warn("reminder recipient unresolvable", "reminder_id", id, "owner_id", rem.OwnerID, "error", err)
		s.audit.DeliveryFailed(rem, reason)
		return nil
	}

	sendErr := s.msgr.SendDirect(ctx, rem.OwnerID, rem.Payload)
	if sendErr == nil {
		if err := s.store.MarkDelivered(ctx, id); err != nil {
			return fmt.Errorf("mark delivered: %w", err)
		}
		slog.Info("reminder delivered", "reminder_id", id, "owner_id", rem.OwnerID, "attempt", rem.Attempts+1)
		return nil
	}

	reason := sendErr.Error()
	attempts := rem.Attempts + 1
	if attempts < s.maxAttempts {
		retryAt := now.Add(s.retryDelay)
		if err := s.store.MarkFailedAttempt(ctx, id, reason, retryAt); err != nil {
			return fmt.Errorf("mark failed attempt: %w", err)
		}
		slog.Warn("reminder delivery failed, will retry",
			"reminder_id", id, "attempt", attempts, "retry_at", retryAt, "error", sendErr)
		return nil
	}

	if err := s.store.MarkTerminalFailure(ctx, id, reason); err != nil {
		return fmt.Errorf("mark terminal: %w", err)
	}
	slog.Error("reminder delivery exhausted",
		"reminder_id", id, "attempts", attempts, "error", sendErr)
	s.audit.DeliveryFailed(rem, reason)

	// Best-effort fallback: failure is logged and changes nothing.
	if rem.FallbackChatID != nil {
		if err := s.msgr.SendFallback(ctx, *rem.FallbackChatID, rem.OwnerID, rem.Payload); err != nil {
			slog.Error("reminder fallback failed", "reminder_id", id, "chat_id", *rem.FallbackChatID, "error", err)
		}
	}
	return nil
}

// DispatchDue dispatches every currently due reminder. Failures are
// isolated per task so the pass always finishes.
func (s *ReminderService) DispatchDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.store.ListDue(ctx, now, now.Add(-config.ClaimReclaimAfter))
	if err != nil {
		return 0, err
	}
	for _, rem := range due {
		if err := s.Dispatch(ctx, rem.ID); err != nil {
			slog.Error("dispatch reminder", "reminder_id", rem.ID, "error", err)
		}
	}
	return len(due), nil
}

// Resume is the startup pass: dispatch everything overdue and re-arm
// in-process timers for reminders inside the horizon. Armed timers did not
// survive the restart; this rebuilds them from the store.
func (s *ReminderService) Resume(ctx context.Context) error {
	now := s.now()
	pending, err := s.store.ListPendingUntil(ctx, now.Add(config.TimerHorizon))
	if err != nil {
		return err
	}
	for _, rem := range pending {
		if rem.Due(now) {
			if err := s.Dispatch(ctx, rem.ID); err != nil {
				slog.Error("dispatch overdue reminder", "reminder_id", rem.ID, "error", err)
			}
			continue
		}
		s.arm(rem)
	}
	if len(pending) > 0 {
		slog.Info("reminders resumed", "count", len(pending))
	}
	return nil
}

// CollectGarbage drops terminal reminders past the retention window.
func (s *ReminderService) CollectGarbage(ctx context.Context) error {
	n, err := s.store.DeleteTerminalBefore(ctx, s.now().Add(-config.TerminalRetention))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Debug("terminal reminders collected", "count", n)
	}
	return nil
}

func (s *ReminderService) arm(rem *domain.Reminder) {
	id := rem.ID
	s.timers.Arm(id, rem.TriggerAt, func() {
		// Timer callbacks outlive the creating request and run on their own
		// goroutine: a panic here must not take the process down. The task
		// stays claimed and returns to the sweep after the reclaim window.
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in timer dispatch",
					"reminder_id", id, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		if err := s.Dispatch(context.Background(), id); err != nil {
			slog.Error("timer dispatch", "reminder_id", id, "error", err)
		}
	})
}

// NopAudit discards audit events.
type NopAudit struct{}

func (NopAudit) DeliveryFailed(*domain.Reminder, string) {}
func (NopAudit) WinnerChosen(*domain.Giveaway, int)      {}
