package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cadence-bot/cadence/internal/domain"
)

// GiveawayRepo is the durable store for giveaways and their entrants.
// Entrant inserts are gated on the giveaway being active in SQL, so the
// entrant set is effectively frozen the moment MarkEnded commits.
type GiveawayRepo struct {
	db DBTX
}

func NewGiveawayRepo(db DBTX) *GiveawayRepo {
	return &GiveawayRepo{db: db}
}

const giveawayCols = `id, host_id, prize, chat_id, message_id, created_at, end_at, ended, winner_id`

// Create inserts the giveaway and fills in the generated ID and CreatedAt.
func (r *GiveawayRepo) Create(ctx context.Context, g *domain.Giveaway) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO giveaways (host_id, prize, chat_id, end_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		g.HostID, g.Prize, g.ChatID, g.EndAt,
	)
	if err := row.Scan(&g.ID, &g.CreatedAt); err != nil {
		return fmt.Errorf("create giveaway: %w", err)
	}
	return nil
}

func (r *GiveawayRepo) GetByID(ctx context.Context, id int64) (*domain.Giveaway, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+giveawayCols+` FROM giveaways WHERE id = $1`, id)
	g, err := scanGiveaway(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrGiveawayNotFound
		}
		return nil, fmt.Errorf("get giveaway: %w", err)
	}
	return g, nil
}

// ListDue returns active giveaways whose end time has passed.
func (r *GiveawayRepo) ListDue(ctx context.Context, now time.Time) ([]*domain.Giveaway, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+giveawayCols+` FROM giveaways
		 WHERE NOT ended AND end_at <= $1
		 ORDER BY end_at`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("list due giveaways: %w", err)
	}
	defer rows.Close()
	return scanGiveaways(rows)
}

// ListActive returns every running giveaway. Used at startup to rebuild
// refresh loops from the store.
func (r *GiveawayRepo) ListActive(ctx context.Context) ([]*domain.Giveaway, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+giveawayCols+` FROM giveaways WHERE NOT ended ORDER BY end_at`)
	if err != nil {
		return nil, fmt.Errorf("list active giveaways: %w", err)
	}
	defer rows.Close()
	return scanGiveaways(rows)
}

func (r *GiveawayRepo) SetMessageID(ctx context.Context, id int64, messageID int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE giveaways SET message_id = $2 WHERE id = $1`, id, messageID)
	if err != nil {
		return fmt.Errorf("set giveaway message: %w", err)
	}
	return nil
}

// AddEntrant records a participant and reports whether a new row was
// inserted. The gate on NOT ended plus the unique pair constraint give the
// append-only, set-semantics contract: joining twice or joining after close
// both no-op.
func (r *GiveawayRepo) AddEntrant(ctx context.Context, giveawayID, participantID int64) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO giveaway_entrants (giveaway_id, participant_id)
		 SELECT id, $2 FROM giveaways WHERE id = $1 AND NOT ended
		 ON CONFLICT (giveaway_id, participant_id) DO NOTHING`,
		giveawayID, participantID,
	)
	if err != nil {
		return false, fmt.Errorf("add entrant: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *GiveawayRepo) CountEntrants(ctx context.Context, giveawayID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM giveaway_entrants WHERE giveaway_id = $1`,
		giveawayID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count entrants: %w", err)
	}
	return n, nil
}

func (r *GiveawayRepo) ListEntrants(ctx context.Context, giveawayID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT participant_id FROM giveaway_entrants
		 WHERE giveaway_id = $1 ORDER BY entered_at`,
		giveawayID,
	)
	if err != nil {
		return nil, fmt.Errorf("list entrants: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan entrant: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entrants: %w", err)
	}
	return out, nil
}

// MarkEnded atomically flips an active giveaway to ended and reports whether
// this caller won the flip. This is the claim that keeps the refresh loop,
// the sweep and an explicit early-end command from finishing the same
// giveaway twice.
func (r *GiveawayRepo) MarkEnded(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE giveaways SET ended = TRUE WHERE id = $1 AND NOT ended`, id)
	if err != nil {
		return false, fmt.Errorf("mark giveaway ended: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetWinner records the chosen winner (nil clears it, e.g. no entrants).
// Only valid on ended giveaways; used by both end and reroll.
func (r *GiveawayRepo) SetWinner(ctx context.Context, id int64, winnerID *int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE giveaways SET winner_id = $2 WHERE id = $1 AND ended`, id, winnerID)
	if err != nil {
		return fmt.Errorf("set giveaway winner: %w", err)
	}
	return nil
}

// ExtendEnd pushes the close time forward while the giveaway is active.
func (r *GiveawayRepo) ExtendEnd(ctx context.Context, id int64, extra time.Duration) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE giveaways
		 SET end_at = end_at + ($2 * INTERVAL '1 second')
		 WHERE id = $1 AND NOT ended`,
		id, int64(extra.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("extend giveaway: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGiveawayNotActive
	}
	return nil
}

func scanGiveaway(row pgx.Row) (*domain.Giveaway, error) {
	var g domain.Giveaway
	err := row.Scan(
		&g.ID, &g.HostID, &g.Prize, &g.ChatID, &g.MessageID,
		&g.CreatedAt, &g.EndAt, &g.Ended, &g.WinnerID,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func scanGiveaways(rows pgx.Rows) ([]*domain.Giveaway, error) {
	var out []*domain.Giveaway
	for rows.Next() {
		g, err := scanGiveaway(rows)
		if err != nil {
			return nil, fmt.Errorf("scan giveaway: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate giveaways: %w", err)
	}
	return out, nil
}
