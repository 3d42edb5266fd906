package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cadence-bot/cadence/internal/domain"
)

// ReminderRepo is the durable store for scheduled reminders. State mutations
// are single-statement and guarded on the current state, so transitions are
// atomic and monotonic: a delivered or failed row is never written again.
type ReminderRepo struct {
	db DBTX
}

func NewReminderRepo(db DBTX) *ReminderRepo {
	return &ReminderRepo{db: db}
}

const reminderCols = `id, owner_id, payload, created_at, trigger_at, fallback_chat_id,
	state, attempts, next_retry_at, claimed_at, last_failure_reason, last_failure_at`

func (r *ReminderRepo) Create(ctx context.Context, rem *domain.Reminder) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO reminders (id, owner_id, payload, created_at, trigger_at, fallback_chat_id, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rem.ID, rem.OwnerID, rem.Payload, rem.CreatedAt, rem.TriggerAt, rem.FallbackChatID, rem.State,
	)
	if err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	return nil
}

func (r *ReminderRepo) GetByID(ctx context.Context, id string) (*domain.Reminder, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE id = $1`, id)
	rem, err := scanReminder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReminderNotFound
		}
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return rem, nil
}

// ListDue returns every non-terminal reminder that should be dispatched now:
// pending rows whose trigger has passed and whose retry delay (if any) has
// elapsed, plus claimed rows older than reclaimBefore, which a crashed
// dispatcher never finished.
func (r *ReminderRepo) ListDue(ctx context.Context, now, reclaimBefore time.Time) ([]*domain.Reminder, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+reminderCols+` FROM reminders
		 WHERE (state = 'pending' AND trigger_at <= $1
		        AND (next_retry_at IS NULL OR next_retry_at <= $1))
		    OR (state = 'claimed' AND claimed_at <= $2)
		 ORDER BY trigger_at`,
		now, reclaimBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// ListPendingUntil returns pending reminders with a trigger at or before the
// given horizon, due or not. Used at startup to re-arm in-process timers.
func (r *ReminderRepo) ListPendingUntil(ctx context.Context, horizon time.Time) ([]*domain.Reminder, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+reminderCols+` FROM reminders
		 WHERE state = 'pending' AND trigger_at <= $1
		 ORDER BY trigger_at`,
		horizon,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (r *ReminderRepo) ListByOwner(ctx context.Context, ownerID int64) ([]*domain.Reminder, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+reminderCols+` FROM reminders
		 WHERE owner_id = $1 AND state = 'pending'
		 ORDER BY trigger_at`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reminders by owner: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// TryClaim atomically flips a reminder to claimed and reports whether this
// caller won. Both the armed timer callback and the sweep call this before
// any delivery I/O, which closes the double-delivery window between the two
// dispatch paths. A stale claim (older than reclaimBefore) can be re-claimed.
func (r *ReminderRepo) TryClaim(ctx context.Context, id string, now, reclaimBefore time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE reminders SET state = 'claimed', claimed_at = $2
		 WHERE id = $1
		   AND (state = 'pending' OR (state = 'claimed' AND claimed_at <= $3))`,
		id, now, reclaimBefore,
	)
	if err != nil {
		return false, fmt.Errorf("claim reminder: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ReminderRepo) MarkDelivered(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE reminders SET state = 'delivered', attempts = attempts + 1
		 WHERE id = $1 AND state IN ('pending', 'claimed')`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// MarkFailedAttempt records a failed delivery attempt and returns the
// reminder to pending with a retry deadline.
func (r *ReminderRepo) MarkFailedAttempt(ctx context.Context, id, reason string, nextRetryAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE reminders
		 SET state = 'pending', claimed_at = NULL, attempts = attempts + 1,
		     next_retry_at = $2, last_failure_reason = $3, last_failure_at = NOW()
		 WHERE id = $1 AND state IN ('pending', 'claimed')`,
		id, nextRetryAt, reason,
	)
	if err != nil {
		return fmt.Errorf("mark failed attempt: %w", err)
	}
	return nil
}

func (r *ReminderRepo) MarkTerminalFailure(ctx context.Context, id, reason string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE reminders
		 SET state = 'failed', attempts = attempts + 1,
		     last_failure_reason = $2, last_failure_at = NOW()
		 WHERE id = $1 AND state IN ('pending', 'claimed')`,
		id, reason,
	)
	if err != nil {
		return fmt.Errorf("mark terminal failure: %w", err)
	}
	return nil
}

// Delete removes a reminder owned by ownerID. Used by cancellation; an
// already-armed timer re-checks the store on fire and no-ops on absence.
func (r *ReminderRepo) Delete(ctx context.Context, id string, ownerID int64) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM reminders WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReminderNotFound
	}
	return nil
}

// DeleteTerminalBefore garbage-collects delivered and failed reminders whose
// trigger passed before the cutoff.
func (r *ReminderRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM reminders
		 WHERE state IN ('delivered', 'failed') AND trigger_at <= $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("delete terminal reminders: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanReminder(row pgx.Row) (*domain.Reminder, error) {
	var rem domain.Reminder
	err := row.Scan(
		&rem.ID, &rem.OwnerID, &rem.Payload, &rem.CreatedAt, &rem.TriggerAt,
		&rem.FallbackChatID, &rem.State, &rem.Attempts, &rem.NextRetryAt,
		&rem.ClaimedAt, &rem.LastFailureReason, &rem.LastFailureAt,
	)
	if err != nil {
		return nil, err
	}
	return &rem, nil
}

func scanReminders(rows pgx.Rows) ([]*domain.Reminder, error) {
	var out []*domain.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		out = append(out, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminders: %w", err)
	}
	return out, nil
}
