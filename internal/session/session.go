package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"creton.game/internal/persistence/snapshot"
	"creton.game/internal/sim/clock"
	"creton.game/internal/sim/game"
)

// Session is one player's live store plus the bookkeeping that moves it
// through time and out to the ledger.
type Session struct {
	UserID string

	store  *game.Store
	clk    clock.Clock
	ledger Ledger

	mu        sync.Mutex // guards settledAt
	settledAt time.Time

	syncMu sync.Mutex // one sync in flight at a time

	refs int // guarded by Manager.mu
}

func (s *Session) Store() *game.Store { return s.store }

// SettledAt is the instant idle accrual has been applied up to.
func (s *Session) SettledAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settledAt
}

// Settle credits idle mining and energy regeneration for the whole seconds
// elapsed since the last settle. The remainder carries over to the next call.
func (s *Session) Settle(now time.Time) (mined, restored float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	whole := now.Sub(s.settledAt).Truncate(time.Second)
	if whole <= 0 {
		return 0, 0
	}
	from := s.settledAt
	to := from.Add(whole)

	st := s.store.State()
	calc := s.store.Calculator()
	mined = calc.MinedPoints(st.MineLevelIndex, from, to)
	restored = calc.RestoredEnergy(st.MultitapLevelIndex, from, to)
	if mined > 0 {
		s.store.IncrementPoints(mined)
	}
	if restored > 0 && st.Energy < st.MaxEnergy {
		s.store.IncrementEnergy(restored)
	}
	s.settledAt = to
	return mined, restored
}

// Sync pushes unsynchronized points to the ledger, clears whatever it
// confirmed, and saves the session. On failure the unconfirmed remainder
// stays put for the next attempt.
func (s *Session) Sync(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	pending := s.store.State().UnsynchronizedPoints
	if pending > 0 {
		confirmed, err := s.ledger.Credit(ctx, s.UserID, pending)
		if confirmed > 0 {
			s.store.ResetUnsynchronizedPoints(confirmed)
		}
		if err != nil {
			return fmt.Errorf("credit %s: %w", s.UserID, err)
		}
	}

	snap := snapshot.FromState(s.UserID, s.store.State(), s.clk.Now())
	snap.Header.SettledAt = s.SettledAt().UTC()
	if err := s.ledger.SavePlayer(ctx, snap); err != nil {
		return fmt.Errorf("save %s: %w", s.UserID, err)
	}
	return nil
}

// SettleNow settles up to the session clock's current time.
func (s *Session) SettleNow() (mined, restored float64) {
	return s.Settle(s.clk.Now())
}
