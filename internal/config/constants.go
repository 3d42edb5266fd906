package config

import "time"

const (
	// Reminder delivery
	MaxDeliveryAttempts = 3
	RetryDelay          = 5 * time.Minute

	// Recovery sweep intervals
	ReminderSweepInterval = 30 * time.Second
	GiveawaySweepInterval = 10 * time.Second

	// In-process timers are a latency optimization only; anything beyond
	// this horizon waits for the sweep.
	TimerHorizon = 24 * time.Hour

	// Claimed rows older than this are treated as orphaned by a crash and
	// returned to the due set.
	ClaimReclaimAfter = 5 * time.Minute

	// Giveaway status refresh interval clamps: min(RefreshMax, max(RefreshMin, duration/10))
	RefreshMin = 5 * time.Second
	RefreshMax = 30 * time.Second

	// Terminal reminders are kept this long for auditability before GC.
	TerminalRetention = 24 * time.Hour

	// Rate limits (messages per window per chat)
	RateLimitWindow    = time.Minute
	RateLimitPerWindow = 10
)
