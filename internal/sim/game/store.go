package game

import (
	"log"
	"math"
	"sync"
	"time"

	"creton.game/internal/sim/clock"
	"creton.game/internal/sim/progression"
	"creton.game/internal/sim/tuning"
)

// Transition op names, as they appear in the journal.
const (
	OpInitialize                = "INITIALIZE"
	OpReconcile                 = "RECONCILE"
	OpClick                     = "CLICK"
	OpIncrementPoints           = "INCREMENT_POINTS"
	OpDecrementPointsBalance    = "DECREMENT_POINTS_BALANCE"
	OpResetUnsynchronizedPoints = "RESET_UNSYNCHRONIZED_POINTS"
	OpUpgradeMultitap           = "UPGRADE_MULTITAP"
	OpUpgradeEnergyLimit        = "UPGRADE_ENERGY_LIMIT"
	OpUpgradeMine               = "UPGRADE_MINE"
	OpRefillEnergy              = "REFILL_ENERGY"
	OpResetDailyRefills         = "RESET_DAILY_REFILLS"
	OpIncrementEnergy           = "INCREMENT_ENERGY"
	OpSetPoints                 = "SET_POINTS"
	OpSetPointsBalance          = "SET_POINTS_BALANCE"
	OpSetEnergy                 = "SET_ENERGY"
	OpSetMineLevelIndex         = "SET_MINE_LEVEL_INDEX"
	OpSetTonWalletAddress       = "SET_TON_WALLET_ADDRESS"
	OpUpdateLastClickTimestamp  = "UPDATE_LAST_CLICK_TIMESTAMP"
)

// Transition is one applied or rejected store operation.
type Transition struct {
	Seq     uint64      `json:"seq"`
	At      time.Time   `json:"at"`
	Op      string      `json:"op"`
	Amount  float64     `json:"amount,omitempty"`
	Applied bool        `json:"applied"`
	State   PlayerState `json:"state"`
}

// Recorder receives every transition in seq order. It is called with the
// store lock held and must not call back into the store.
type Recorder interface {
	RecordTransition(Transition) error
}

type Option func(*Store)

func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.rec = r }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Store serialises all mutations of one PlayerState behind a single-writer
// lock. Every operation either replaces the state wholesale or leaves it
// untouched, and reports which.
type Store struct {
	mu    sync.Mutex
	calc  progression.Calculator
	clk   clock.Clock
	quota int
	st    PlayerState
	seq   uint64

	rec Recorder
	log *log.Logger
}

func NewStore(t tuning.Tuning, clk clock.Clock, opts ...Option) *Store {
	calc := progression.New(t)
	s := &Store{
		calc:  calc,
		clk:   clk,
		quota: t.DailyEnergyRefills,
		st:    InitialState(t, calc, clk.Now()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitialState is the snapshot a fresh session starts from: level 0 on every
// track, full energy and the full daily refill quota.
func InitialState(t tuning.Tuning, calc progression.Calculator, now time.Time) PlayerState {
	maxEnergy := calc.EnergyLimit(0)
	return PlayerState{
		Points:                    t.Initial.Points,
		PointsBalance:             t.Initial.PointsBalance,
		GameLevelIndex:            calc.LevelIndex(t.Initial.Points),
		PointsPerClick:            calc.PointsPerClick(0),
		Energy:                    maxEnergy,
		MaxEnergy:                 maxEnergy,
		ProfitPerHour:             calc.ProfitPerHour(0),
		EnergyRefillsLeft:         t.DailyEnergyRefills,
		LastEnergyRefillTimestamp: now,
	}
}

func (s *Store) Calculator() progression.Calculator { return s.calc }

// State returns a copy of the current aggregate.
func (s *Store) State() PlayerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.clone()
}

func (s *Store) apply(op string, amount float64, fn func(st *PlayerState, now time.Time) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clk.Now()
	next := s.st.clone()
	applied := fn(&next, now)
	if applied {
		s.st = next
	}
	s.seq++
	if s.rec != nil {
		tr := Transition{Seq: s.seq, At: now, Op: op, Amount: amount, Applied: applied, State: s.st.clone()}
		if err := s.rec.RecordTransition(tr); err != nil && s.log != nil {
			s.log.Printf("record %s seq=%d: %v", op, tr.Seq, err)
		}
	}
	return applied
}

// InitializeState shallow-merges p into the aggregate. Derived fields are
// taken as given.
func (s *Store) InitializeState(p Partial) {
	s.apply(OpInitialize, 0, func(st *PlayerState, _ time.Time) bool {
		p.mergeInto(st)
		return true
	})
}

// Reconcile recomputes the derived fields from the level indices and points
// under the current tuning and clamps energy into [0, MaxEnergy]. Call it
// after InitializeState when the merged snapshot may predate a tuning change.
func (s *Store) Reconcile() bool {
	return s.apply(OpReconcile, 0, func(st *PlayerState, _ time.Time) bool {
		st.MultitapLevelIndex = max(0, st.MultitapLevelIndex)
		st.EnergyLimitLevelIndex = max(0, st.EnergyLimitLevelIndex)
		st.MineLevelIndex = max(0, st.MineLevelIndex)
		st.Points = math.Max(0, st.Points)
		st.PointsBalance = math.Max(0, st.PointsBalance)
		st.UnsynchronizedPoints = math.Max(0, st.UnsynchronizedPoints)
		st.GameLevelIndex = s.calc.LevelIndex(st.Points)
		st.PointsPerClick = s.calc.PointsPerClick(st.MultitapLevelIndex)
		st.MaxEnergy = s.calc.EnergyLimit(st.EnergyLimitLevelIndex)
		st.ProfitPerHour = s.calc.ProfitPerHour(st.MineLevelIndex)
		st.Energy = clamp(st.Energy, 0, st.MaxEnergy)
		return true
	})
}

// Click spends one click of energy for the same amount of points. It is a
// no-op when energy is below the click power.
func (s *Store) Click() bool {
	return s.apply(OpClick, 0, func(st *PlayerState, now time.Time) bool {
		ppc := st.PointsPerClick
		if st.Energy < ppc {
			return false
		}
		st.Points += ppc
		st.PointsBalance += ppc
		st.UnsynchronizedPoints += ppc
		st.Energy -= ppc
		st.GameLevelIndex = s.calc.LevelIndex(st.Points)
		st.LastClickTimestamp = now
		return true
	})
}

// IncrementPoints credits idle or mined points. Unsynchronized points are
// not touched.
func (s *Store) IncrementPoints(amount float64) bool {
	return s.apply(OpIncrementPoints, amount, func(st *PlayerState, _ time.Time) bool {
		st.Points = math.Max(0, st.Points+amount)
		st.PointsBalance = math.Max(0, st.PointsBalance+amount)
		st.GameLevelIndex = s.calc.LevelIndex(st.Points)
		return true
	})
}

func (s *Store) DecrementPointsBalance(amount float64) bool {
	return s.apply(OpDecrementPointsBalance, amount, func(st *PlayerState, _ time.Time) bool {
		st.PointsBalance = math.Max(0, st.PointsBalance-amount)
		return true
	})
}

// ResetUnsynchronizedPoints clears the amount a ledger confirmed.
func (s *Store) ResetUnsynchronizedPoints(synced float64) bool {
	return s.apply(OpResetUnsynchronizedPoints, synced, func(st *PlayerState, _ time.Time) bool {
		st.UnsynchronizedPoints = math.Max(0, st.UnsynchronizedPoints-synced)
		return true
	})
}

func (s *Store) UpgradeMultitap() bool {
	return s.apply(OpUpgradeMultitap, 0, func(st *PlayerState, _ time.Time) bool {
		if !debit(st, s.calc.MultitapUpgradeCost(st.MultitapLevelIndex)) {
			return false
		}
		st.MultitapLevelIndex++
		st.PointsPerClick = s.calc.PointsPerClick(st.MultitapLevelIndex)
		return true
	})
}

func (s *Store) UpgradeEnergyLimit() bool {
	return s.apply(OpUpgradeEnergyLimit, 0, func(st *PlayerState, _ time.Time) bool {
		if !debit(st, s.calc.EnergyLimitUpgradeCost(st.EnergyLimitLevelIndex)) {
			return false
		}
		st.EnergyLimitLevelIndex++
		st.MaxEnergy = s.calc.EnergyLimit(st.EnergyLimitLevelIndex)
		return true
	})
}

func (s *Store) UpgradeMine() bool {
	return s.apply(OpUpgradeMine, 0, func(st *PlayerState, _ time.Time) bool {
		if !debit(st, s.calc.MineUpgradeCost(st.MineLevelIndex)) {
			return false
		}
		st.MineLevelIndex++
		st.ProfitPerHour = s.calc.ProfitPerHour(st.MineLevelIndex)
		return true
	})
}

func debit(st *PlayerState, cost float64) bool {
	if st.PointsBalance < cost {
		return false
	}
	st.PointsBalance = math.Max(0, st.PointsBalance-cost)
	return true
}

// RefillEnergy tops energy up to max, consuming one of the daily refills.
func (s *Store) RefillEnergy() bool {
	return s.apply(OpRefillEnergy, 0, func(st *PlayerState, now time.Time) bool {
		if st.EnergyRefillsLeft <= 0 {
			return false
		}
		st.Energy = st.MaxEnergy
		st.EnergyRefillsLeft--
		st.LastEnergyRefillTimestamp = now
		return true
	})
}

func (s *Store) ResetDailyRefills() bool {
	return s.apply(OpResetDailyRefills, 0, func(st *PlayerState, _ time.Time) bool {
		st.EnergyRefillsLeft = s.quota
		return true
	})
}

func (s *Store) IncrementEnergy(amount float64) bool {
	return s.apply(OpIncrementEnergy, amount, func(st *PlayerState, _ time.Time) bool {
		st.Energy = clamp(st.Energy+amount, 0, st.MaxEnergy)
		return true
	})
}

func (s *Store) SetPoints(points float64) bool {
	return s.apply(OpSetPoints, points, func(st *PlayerState, _ time.Time) bool {
		st.Points = math.Max(0, points)
		st.GameLevelIndex = s.calc.LevelIndex(st.Points)
		return true
	})
}

func (s *Store) SetPointsBalance(balance float64) bool {
	return s.apply(OpSetPointsBalance, balance, func(st *PlayerState, _ time.Time) bool {
		st.PointsBalance = math.Max(0, balance)
		return true
	})
}

func (s *Store) SetEnergy(energy float64) bool {
	return s.apply(OpSetEnergy, energy, func(st *PlayerState, _ time.Time) bool {
		st.Energy = clamp(energy, 0, st.MaxEnergy)
		return true
	})
}

func (s *Store) SetMineLevelIndex(level int) bool {
	if level < 0 {
		level = 0
	}
	return s.apply(OpSetMineLevelIndex, float64(level), func(st *PlayerState, _ time.Time) bool {
		st.MineLevelIndex = level
		st.ProfitPerHour = s.calc.ProfitPerHour(level)
		return true
	})
}

// SetTonWalletAddress stores addr verbatim; nil clears it.
func (s *Store) SetTonWalletAddress(addr *string) bool {
	return s.apply(OpSetTonWalletAddress, 0, func(st *PlayerState, _ time.Time) bool {
		if addr == nil {
			st.TonWalletAddress = nil
			return true
		}
		v := *addr
		st.TonWalletAddress = &v
		return true
	})
}

func (s *Store) UpdateLastClickTimestamp() bool {
	return s.apply(OpUpdateLastClickTimestamp, 0, func(st *PlayerState, now time.Time) bool {
		st.LastClickTimestamp = now
		return true
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
