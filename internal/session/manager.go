package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"creton.game/internal/persistence/indexdb"
	persistlog "creton.game/internal/persistence/log"
	"creton.game/internal/persistence/snapshot"
	"creton.game/internal/sim/clock"
	"creton.game/internal/sim/game"
	"creton.game/internal/sim/tuning"
)

// Ledger is the external record sessions hydrate from and sync out to.
// *indexdb.Ledger satisfies it.
type Ledger interface {
	Credit(ctx context.Context, userID string, amount float64) (float64, error)
	SavePlayer(ctx context.Context, p snapshot.PlayerV1) error
	LoadPlayer(ctx context.Context, userID string) (snapshot.PlayerV1, error)
}

type Config struct {
	Tuning tuning.Tuning
	Clock  clock.Clock
	Ledger Ledger

	// Journal, when set, receives every store transition.
	Journal *persistlog.JSONLZstdWriter
	Logger  *log.Logger
}

type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &Manager{
		cfg:      cfg,
		sessions: map[string]*Session{},
	}
}

// Open returns the live session for userID, hydrating it from the ledger on
// first use, and settles idle time up to now. Every Open must be paired with
// a Release.
func (m *Manager) Open(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, errors.New("empty user id")
	}
	if s := m.acquire(userID); s != nil {
		return s, nil
	}

	// The ledger round trip happens without m.mu so other users are not
	// blocked on it. A concurrent Open for the same user may win the insert.
	p, err := m.cfg.Ledger.LoadPlayer(ctx, userID)
	found := true
	switch {
	case errors.Is(err, indexdb.ErrNotFound):
		found = false
	case err != nil:
		return nil, fmt.Errorf("load player %s: %w", userID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.cfg.Clock.Now()
	if s, ok := m.sessions[userID]; ok {
		s.refs++
		s.Settle(now)
		return s, nil
	}
	s := m.hydrate(userID, p, found, now)
	s.refs = 1
	m.sessions[userID] = s
	s.Settle(now)
	return s, nil
}

// acquire takes a reference on an already live session, or returns nil.
func (m *Manager) acquire(userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil
	}
	s.refs++
	s.Settle(m.cfg.Clock.Now())
	return s
}

func (m *Manager) hydrate(userID string, p snapshot.PlayerV1, found bool, now time.Time) *Session {
	var opts []game.Option
	if m.cfg.Journal != nil {
		opts = append(opts, game.WithRecorder(persistlog.NewTransitionLogger(m.cfg.Journal, userID)))
	}
	if m.cfg.Logger != nil {
		opts = append(opts, game.WithLogger(m.cfg.Logger))
	}
	s := &Session{
		UserID:    userID,
		store:     game.NewStore(m.cfg.Tuning, m.cfg.Clock, opts...),
		clk:       m.cfg.Clock,
		ledger:    m.cfg.Ledger,
		settledAt: now,
	}
	if !found {
		m.logf("session %s: new player", userID)
		return s
	}

	s.store.InitializeState(p.Partial())
	// The snapshot may have been saved under different tuning.
	s.store.Reconcile()
	if at := p.AccruedUntil(); !at.IsZero() && at.Before(now) {
		s.settledAt = at
	}
	if dayOf(p.Header.SavedAt).Before(dayOf(now)) {
		s.store.ResetDailyRefills()
	}
	m.logf("session %s: hydrated (saved_at=%s)", userID, p.Header.SavedAt.Format(time.RFC3339))
	return s
}

// Release drops one reference. The last release syncs the session and
// forgets it; if that sync fails the session stays until RunSync succeeds.
func (m *Manager) Release(ctx context.Context, s *Session) error {
	m.mu.Lock()
	if s.refs > 0 {
		s.refs--
	}
	last := s.refs == 0
	m.mu.Unlock()
	if !last {
		return nil
	}

	if err := s.Sync(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	if s.refs == 0 && m.sessions[s.UserID] == s {
		delete(m.sessions, s.UserID)
	}
	m.mu.Unlock()
	return nil
}

// Sessions returns the live sessions ordered by user id.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// SyncAll syncs every live session, dropping released ones that synced.
func (m *Manager) SyncAll(ctx context.Context) error {
	var errs []error
	for _, s := range m.Sessions() {
		if err := s.Sync(ctx); err != nil {
			errs = append(errs, err)
			continue
		}
		m.mu.Lock()
		if s.refs == 0 && m.sessions[s.UserID] == s {
			delete(m.sessions, s.UserID)
		}
		m.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (m *Manager) RunSync(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := m.SyncAll(ctx); err != nil {
				m.logf("sync: %v", err)
			}
		}
	}
}

// ResetDailyRefills restores the refill quota on every live session.
func (m *Manager) ResetDailyRefills() int {
	sessions := m.Sessions()
	for _, s := range sessions {
		s.store.ResetDailyRefills()
	}
	return len(sessions)
}

// RunDailyReset calls ResetDailyRefills at every UTC midnight until ctx ends.
// Offline players are reset when they are next hydrated.
func (m *Manager) RunDailyReset(ctx context.Context) {
	for {
		now := m.cfg.Clock.Now()
		t := time.NewTimer(NextDailyReset(now).Sub(now))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
			n := m.ResetDailyRefills()
			m.logf("daily reset: %d sessions", n)
		}
	}
}

// Close syncs every live session one last time.
func (m *Manager) Close(ctx context.Context) error {
	return m.SyncAll(ctx)
}

// NextDailyReset is the first UTC midnight strictly after now.
func NextDailyReset(now time.Time) time.Time {
	return dayOf(now).AddDate(0, 0, 1)
}

func dayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func (m *Manager) logf(format string, args ...any) {
	if m.cfg.Logger != nil {
		m.cfg.Logger.Printf(format, args...)
	}
}
