package domain

import "time"

// ReminderState is the lifecycle state of a reminder. Transitions are
// monotonic: pending -> claimed -> delivered|failed, with claimed falling
// back to pending only when a delivery attempt fails with retries left.
type ReminderState string

const (
	ReminderPending   ReminderState = "pending"
	ReminderClaimed   ReminderState = "claimed"
	ReminderDelivered ReminderState = "delivered"
	ReminderFailed    ReminderState = "failed"
)

// Terminal reports whether no further transition can occur from s.
func (s ReminderState) Terminal() bool {
	return s == ReminderDelivered || s == ReminderFailed
}

// Reminder is a persisted unit of scheduled future work: deliver Payload to
// OwnerID at TriggerAt. Immutable after creation except for State, Attempts
// and the failure bookkeeping fields.
type Reminder struct {
	ID             string
	OwnerID        int64
	Payload        string
	CreatedAt      time.Time
	TriggerAt      time.Time
	FallbackChatID *int64

	State             ReminderState
	Attempts          int
	NextRetryAt       *time.Time
	ClaimedAt         *time.Time
	LastFailureReason *string
	LastFailureAt     *time.Time
}

// Due reports whether the reminder should fire at or before now.
func (r *Reminder) Due(now time.Time) bool {
	return !r.TriggerAt.After(now)
}
