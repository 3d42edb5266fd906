package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cadence-bot/cadence/internal/domain"
)

// fakeClock is a manually advanced clock for deterministic scheduling tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeReminderStore mirrors the SQL semantics of repository.ReminderRepo in
// memory, including the state guards that make transitions monotonic.
type fakeReminderStore struct {
	mu   sync.Mutex
	rows map[string]*domain.Reminder
}

func newFakeReminderStore() *fakeReminderStore {
	return &fakeReminderStore{rows: make(map[string]*domain.Reminder)}
}

func (s *fakeReminderStore) Create(_ context.Context, r *domain.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[r.ID]; ok {
		return fmt.Errorf("duplicate id %s", r.ID)
	}
	cp := *r
	s.rows[r.ID] = &cp
	return nil
}

func (s *fakeReminderStore) GetByID(_ context.Context, id string) (*domain.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrReminderNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeReminderStore) ListDue(_ context.Context, now, reclaimBefore time.Time) ([]*domain.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Reminder
	for _, r := range s.rows {
		due := r.State == domain.ReminderPending && !r.TriggerAt.After(now) &&
			(r.NextRetryAt == nil || !r.NextRetryAt.After(now))
		stale := r.State == domain.ReminderClaimed && r.ClaimedAt != nil && !r.ClaimedAt.After(reclaimBefore)
		if due || stale {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeReminderStore) ListPendingUntil(_ context.Context, horizon time.Time) ([]*domain.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Reminder
	for _, r := range s.rows {
		if r.State == domain.ReminderPending && !r.TriggerAt.After(horizon) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeReminderStore) ListByOwner(_ context.Context, ownerID int64) ([]*domain.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Reminder
	for _, r := range s.rows {
		if r.OwnerID == ownerID && r.State == domain.ReminderPending {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeReminderStore) TryClaim(_ context.Context, id string, now, reclaimBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return false, nil
	}
	claimable := r.State == domain.ReminderPending ||
		(r.State == domain.ReminderClaimed && r.ClaimedAt != nil && !r.ClaimedAt.After(reclaimBefore))
	if !claimable {
		return false, nil
	}
	r.State = domain.ReminderClaimed
	t := now
	r.ClaimedAt = &t
	return true, nil
}

func (s *fakeReminderStore) MarkDelivered(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok || r.State.Terminal() {
		return nil
	}
	r.State = domain.ReminderDelivered
	r.Attempts++
	return nil
}

func (s *fakeReminderStore) MarkFailedAttempt(_ context.Context, id, reason string, nextRetryAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok || r.State.Terminal() {
		return nil
	}
	r.State = domain.ReminderPending
	r.ClaimedAt = nil
	r.Attempts++
	retry := nextRetryAt
	r.NextRetryAt = &retry
	r.LastFailureReason = &reason
	return nil
}

func (s *fakeReminderStore) MarkTerminalFailure(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok || r.State.Terminal() {
		return nil
	}
	r.State = domain.ReminderFailed
	r.Attempts++
	r.LastFailureReason = &reason
	return nil
}

func (s *fakeReminderStore) Delete(_ context.Context, id string, ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok || r.OwnerID != ownerID {
		return domain.ErrReminderNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *fakeReminderStore) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.rows {
		if r.State.Terminal() && !r.TriggerAt.After(cutoff) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

// fakeMessenger scripts delivery outcomes and records every call.
type fakeMessenger struct {
	mu          sync.Mutex
	resolveErr  error
	sendErr     error
	directSends []string
	fallbacks   []int64
	fallbackErr error
}

func (m *fakeMessenger) ResolveRecipient(context.Context, int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveErr
}

func (m *fakeMessenger) SendDirect(_ context.Context, _ int64, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.directSends = append(m.directSends, payload)
	return nil
}

func (m *fakeMessenger) SendFallback(_ context.Context, chatID, _ int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks = append(m.fallbacks, chatID)
	return m.fallbackErr
}

func (m *fakeMessenger) directCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.directSends)
}

func (m *fakeMessenger) fallbackCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fallbacks)
}

// fakeTimers records arm/cancel calls without running anything. Captured
// callbacks can be fired by hand.
type fakeTimers struct {
	mu        sync.Mutex
	armed     map[string]time.Time
	fns       map[string]func()
	cancelled []string
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{
		armed: make(map[string]time.Time),
		fns:   make(map[string]func()),
	}
}

func (t *fakeTimers) Arm(id string, at time.Time, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed[id] = at
	t.fns[id] = fn
	return true
}

func (t *fakeTimers) fire(id string) {
	t.mu.Lock()
	fn := t.fns[id]
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *fakeTimers) Cancel(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.armed, id)
	t.cancelled = append(t.cancelled, id)
}

// fakeGiveawayStore mirrors repository.GiveawayRepo in memory, including the
// active-only gate on entrant inserts.
type fakeGiveawayStore struct {
	mu       sync.Mutex
	nextID   int64
	rows     map[int64]*domain.Giveaway
	entrants map[int64][]int64
}

func newFakeGiveawayStore() *fakeGiveawayStore {
	return &fakeGiveawayStore{
		nextID:   1,
		rows:     make(map[int64]*domain.Giveaway),
		entrants: make(map[int64][]int64),
	}
}

func (s *fakeGiveawayStore) Create(_ context.Context, g *domain.Giveaway) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.ID = s.nextID
	s.nextID++
	cp := *g
	s.rows[g.ID] = &cp
	return nil
}

func (s *fakeGiveawayStore) GetByID(_ context.Context, id int64) (*domain.Giveaway, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrGiveawayNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *fakeGiveawayStore) ListDue(_ context.Context, now time.Time) ([]*domain.Giveaway, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Giveaway
	for _, g := range s.rows {
		if !g.Ended && !g.EndAt.After(now) {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeGiveawayStore) ListActive(context.Context) ([]*domain.Giveaway, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Giveaway
	for _, g := range s.rows {
		if !g.Ended {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeGiveawayStore) SetMessageID(_ context.Context, id int64, messageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.rows[id]; ok {
		g.MessageID = &messageID
	}
	return nil
}

func (s *fakeGiveawayStore) AddEntrant(_ context.Context, giveawayID, participantID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.rows[giveawayID]
	if !ok || g.Ended {
		return false, nil
	}
	for _, p := range s.entrants[giveawayID] {
		if p == participantID {
			return false, nil
		}
	}
	s.entrants[giveawayID] = append(s.entrants[giveawayID], participantID)
	return true, nil
}

func (s *fakeGiveawayStore) CountEntrants(_ context.Context, giveawayID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entrants[giveawayID]), nil
}

func (s *fakeGiveawayStore) ListEntrants(_ context.Context, giveawayID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.entrants[giveawayID]))
	copy(out, s.entrants[giveawayID])
	return out, nil
}

func (s *fakeGiveawayStore) MarkEnded(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.rows[id]
	if !ok || g.Ended {
		return false, nil
	}
	g.Ended = true
	return true, nil
}

func (s *fakeGiveawayStore) SetWinner(_ context.Context, id int64, winnerID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.rows[id]
	if !ok || !g.Ended {
		return nil
	}
	g.WinnerID = winnerID
	return nil
}

func (s *fakeGiveawayStore) ExtendEnd(_ context.Context, id int64, extra time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.rows[id]
	if !ok || g.Ended {
		return domain.ErrGiveawayNotActive
	}
	g.EndAt = g.EndAt.Add(extra)
	return nil
}

// fakeAnnouncer records announcements.
type fakeAnnouncer struct {
	mu          sync.Mutex
	announceErr error
	announced   []int64
	refreshes   []int
	winners     []*domain.Giveaway
}

func (a *fakeAnnouncer) AnnounceGiveaway(_ context.Context, g *domain.Giveaway) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.announceErr != nil {
		return 0, a.announceErr
	}
	a.announced = append(a.announced, g.ID)
	return 100 + len(a.announced), nil
}

func (a *fakeAnnouncer) RefreshGiveaway(_ context.Context, _ *domain.Giveaway, entrants int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshes = append(a.refreshes, entrants)
	return nil
}

func (a *fakeAnnouncer) AnnounceWinner(_ context.Context, g *domain.Giveaway, _ int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := *g
	a.winners = append(a.winners, &cp)
	return nil
}

func (a *fakeAnnouncer) winnerCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.winners)
}

var errSendBoom = errors.New("telegram: forbidden, bot was blocked")
