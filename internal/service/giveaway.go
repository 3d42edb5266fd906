package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cadence-bot/cadence/internal/config"
	"github.com/cadence-bot/cadence/internal/domain"
	"github.com/cadence-bot/cadence/internal/duration"
)

// GiveawayStore is the persistence surface the lifecycle controller needs.
// Implemented by repository.GiveawayRepo.
type GiveawayStore interface {
	Create(ctx context.Context, g *domain.Giveaway) error
	GetByID(ctx context.Context, id int64) (*domain.Giveaway, error)
	ListDue(ctx context.Context, now time.Time) ([]*domain.Giveaway, error)
	ListActive(ctx context.Context) ([]*domain.Giveaway, error)
	SetMessageID(ctx context.Context, id int64, messageID int) error
	AddEntrant(ctx context.Context, giveawayID, participantID int64) (bool, error)
	CountEntrants(ctx context.Context, giveawayID int64) (int, error)
	ListEntrants(ctx context.Context, giveawayID int64) ([]int64, error)
	MarkEnded(ctx context.Context, id int64) (bool, error)
	SetWinner(ctx context.Context, id int64, winnerID *int64) error
	ExtendEnd(ctx context.Context, id int64, extra time.Duration) error
}

// Announcer publishes giveaway messages. Implemented by telegram.Notifier.
type Announcer interface {
	AnnounceGiveaway(ctx context.Context, g *domain.Giveaway) (messageID int, err error)
	RefreshGiveaway(ctx context.Context, g *domain.Giveaway, entrants int) error
	AnnounceWinner(ctx context.Context, g *domain.Giveaway, entrants int) error
}

// GiveawayService manages the giveaway lifecycle. The store is the single
// source of truth; the service only holds short-lived loop handles keyed by
// giveaway id, rebuilt from the store at startup. Each refresh tick re-reads
// the row, so an extend takes effect without touching the loop's ticker.
type GiveawayService struct {
	store GiveawayStore
	ann   Announcer
	audit Audit

	now  func() time.Time
	pick func(entrants []int64) (int64, error)

	mu    sync.Mutex
	loops map[int64]context.CancelFunc
}

type GiveawayDeps struct {
	Store GiveawayStore
	Ann   Announcer
	Audit Audit
	Now   func() time.Time
}

func NewGiveawayService(deps GiveawayDeps) *GiveawayService {
	s := &GiveawayService{
		store: deps.Store,
		ann:   deps.Ann,
		audit: deps.Audit,
		now:   deps.Now,
		pick:  pickUniform,
		loops: make(map[int64]context.CancelFunc),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.audit == nil {
		s.audit = NopAudit{}
	}
	return s
}

// Start parses the duration token, persists the giveaway, posts the
// announcement with a join button and begins the periodic status refresh.
func (s *GiveawayService) Start(ctx context.Context, hostID, chatID int64, token, prize string) (*domain.Giveaway, error) {
	d, err := duration.Parse(token, duration.GiveawayBounds)
	if err != nil {
		return nil, err
	}

	g := &domain.Giveaway{
		HostID: hostID,
		ChatID: chatID,
		Prize:  prize,
		EndAt:  s.now().Add(d),
	}
	if err := s.store.Create(ctx, g); err != nil {
		return nil, err
	}

	// Announcement failure is not fatal: the giveaway is persisted and the
	// sweep will still end it on time.
	msgID, err := s.ann.AnnounceGiveaway(ctx, g)
	if err != nil {
		slog.Error("announce giveaway", "giveaway_id", g.ID, "error", err)
	} else {
		if err := s.store.SetMessageID(ctx, g.ID, msgID); err != nil {
			slog.Error("store giveaway message", "giveaway_id", g.ID, "error", err)
		}
		g.MessageID = &msgID
	}

	s.watch(g.ID, d)
	return g, nil
}

// Join records an entrant. Set semantics: duplicates and joins after close
// are silent no-ops. Bots never count as entrants. Returns true when the
// participant was newly recorded.
func (s *GiveawayService) Join(ctx context.Context, id, participantID int64, isBot bool) (bool, error) {
	if isBot {
		return false, nil
	}
	added, err := s.store.AddEntrant(ctx, id, participantID)
	if err != nil {
		return false, err
	}
	if !added {
		// Distinguish "ended or duplicate" (no-op) from an unknown id.
		if _, err := s.store.GetByID(ctx, id); err != nil {
			return false, err
		}
	}
	return added, nil
}

// EndNow closes a giveaway early on behalf of its host or an admin.
func (s *GiveawayService) EndNow(ctx context.Context, id, requesterID int64, isAdmin bool) error {
	g, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if g.Ended {
		return domain.ErrGiveawayNotActive
	}
	if g.HostID != requesterID && !isAdmin {
		return domain.ErrNotGiveawayHost
	}
	return s.finish(ctx, id)
}

// Extend pushes the close time forward while the giveaway is active. The
// running refresh loop reads end_at fresh each tick, so no timer restarts.
func (s *GiveawayService) Extend(ctx context.Context, id int64, token string) (*domain.Giveaway, error) {
	extra, err := duration.Parse(token, duration.GiveawayBounds)
	if err != nil {
		return nil, err
	}
	g, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.Ended {
		return nil, domain.ErrGiveawayNotActive
	}
	if err := s.store.ExtendEnd(ctx, id, extra); err != nil {
		return nil, err
	}
	return s.store.GetByID(ctx, id)
}

// Reroll re-runs winner selection on an ended giveaway. It operates over the
// recorded entrant set, which is frozen in effect: AddEntrant is gated on
// the giveaway being active, so the set cannot grow after close.
func (s *GiveawayService) Reroll(ctx context.Context, id int64) (*int64, error) {
	g, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !g.Ended {
		return nil, domain.ErrGiveawayNotEnded
	}

	entrants, err := s.store.ListEntrants(ctx, id)
	if err != nil {
		return nil, err
	}
	var winner *int64
	if len(entrants) > 0 {
		w, err := s.pick(entrants)
		if err != nil {
			return nil, fmt.Errorf("pick winner: %w", err)
		}
		winner = &w
	}
	if err := s.store.SetWinner(ctx, id, winner); err != nil {
		return nil, err
	}
	g.WinnerID = winner

	if err := s.ann.AnnounceWinner(ctx, g, len(entrants)); err != nil {
		slog.Error("announce reroll winner", "giveaway_id", id, "error", err)
	}
	s.audit.WinnerChosen(g, len(entrants))
	return winner, nil
}

// FinishDue ends every expired giveaway. Called by the sweep.
func (s *GiveawayService) FinishDue(ctx context.Context) (int, error) {
	due, err := s.store.ListDue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	for _, g := range due {
		if err := s.finish(ctx, g.ID); err != nil {
			slog.Error("finish giveaway", "giveaway_id", g.ID, "error", err)
		}
	}
	return len(due), nil
}

// Resume rebuilds loop handles for active giveaways from the store and
// finishes any that expired while the process was down.
func (s *GiveawayService) Resume(ctx context.Context) error {
	active, err := s.store.ListActive(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	for _, g := range active {
		if !g.EndAt.After(now) {
			if err := s.finish(ctx, g.ID); err != nil {
				slog.Error("finish overdue giveaway", "giveaway_id", g.ID, "error", err)
			}
			continue
		}
		s.watch(g.ID, g.EndAt.Sub(now))
	}
	if len(active) > 0 {
		slog.Info("giveaways resumed", "count", len(active))
	}
	return nil
}

// StopAll cancels every refresh loop. Used on shutdown; state lives in the
// store and Resume rebuilds the loops next boot.
func (s *GiveawayService) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.loops {
		cancel()
		delete(s.loops, id)
	}
}

// finish closes the giveaway exactly once: MarkEnded is the claim, and only
// the caller that wins the flip selects and announces the winner. The
// entrant snapshot is taken after the flip, when the set can no longer grow.
func (s *GiveawayService) finish(ctx context.Context, id int64) error {
	ended, err := s.store.MarkEnded(ctx, id)
	if err != nil {
		return err
	}
	if !ended {
		return nil
	}
	s.stopWatch(id)

	entrants, err := s.store.ListEntrants(ctx, id)
	if err != nil {
		return fmt.Errorf("snapshot entrants: %w", err)
	}
	var winner *int64
	if len(entrants) > 0 {
		w, err := s.pick(entrants)
		if err != nil {
			return fmt.Errorf("pick winner: %w", err)
		}
		winner = &w
	}
	if err := s.store.SetWinner(ctx, id, winner); err != nil {
		return err
	}

	g, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.ann.AnnounceWinner(ctx, g, len(entrants)); err != nil {
		slog.Error("announce winner", "giveaway_id", id, "error", err)
	}
	s.audit.WinnerChosen(g, len(entrants))
	slog.Info("giveaway ended", "giveaway_id", id, "entrants", len(entrants), "winner", winner != nil)
	return nil
}

// watch runs the periodic status refresh for one giveaway. The interval
// adapts to the runtime: short giveaways refresh often, long ones settle at
// the ceiling.
func (s *GiveawayService) watch(id int64, remaining time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if old, ok := s.loops[id]; ok {
		old()
	}
	s.loops[id] = cancel
	s.mu.Unlock()

	interval := refreshInterval(remaining)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.safeTick(id) {
					s.stopWatch(id)
					return
				}
			}
		}
	}()
}

// safeTick runs one tick, absorbing errors and panics so the loop survives
// to the next interval. Reports done when the loop should stop.
func (s *GiveawayService) safeTick(id int64) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in giveaway tick",
				"giveaway_id", id, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	done, err := s.tick(context.Background(), id)
	if err != nil {
		slog.Error("giveaway tick", "giveaway_id", id, "error", err)
		return false
	}
	return done
}

// tick re-reads the giveaway and either finishes it or refreshes its status
// message. Reports done when the loop should stop.
func (s *GiveawayService) tick(ctx context.Context, id int64) (bool, error) {
	g, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrGiveawayNotFound) {
			return true, nil
		}
		return false, err
	}
	if g.Ended {
		return true, nil
	}
	if !g.EndAt.After(s.now()) {
		return true, s.finish(ctx, id)
	}

	count, err := s.store.CountEntrants(ctx, id)
	if err != nil {
		return false, err
	}
	if err := s.ann.RefreshGiveaway(ctx, g, count); err != nil {
		// Display only; next tick retries.
		slog.Warn("refresh giveaway status", "giveaway_id", id, "error", err)
	}
	return false, nil
}

func (s *GiveawayService) stopWatch(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.loops[id]; ok {
		cancel()
		delete(s.loops, id)
	}
}

func refreshInterval(remaining time.Duration) time.Duration {
	interval := remaining / 10
	if interval < config.RefreshMin {
		return config.RefreshMin
	}
	if interval > config.RefreshMax {
		return config.RefreshMax
	}
	return interval
}

// pickUniform selects one entrant uniformly at random.
func pickUniform(entrants []int64) (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(entrants))))
	if err != nil {
		return 0, err
	}
	return entrants[n.Int64()], nil
}
