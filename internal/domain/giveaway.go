package domain

import "time"

// Giveaway is a timed group promotion: entrants join while it is active, and
// a winner is chosen uniformly at random when it ends. WinnerID stays nil
// when the giveaway ends with no entrants.
type Giveaway struct {
	ID        int64
	HostID    int64
	Prize     string
	ChatID    int64
	MessageID *int
	CreatedAt time.Time
	EndAt     time.Time
	Ended     bool
	WinnerID  *int64
}

// Remaining returns the time left until the giveaway closes, never negative.
func (g *Giveaway) Remaining(now time.Time) time.Duration {
	if d := g.EndAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Entrant is a participant recorded against a giveaway, unique per
// (giveaway, participant) pair.
type Entrant struct {
	GiveawayID    int64
	ParticipantID int64
	EnteredAt     time.Time
}
