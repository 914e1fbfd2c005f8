package game

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"creton.game/internal/sim/clock"
	"creton.game/internal/sim/tuning"
)

var start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts ...Option) (*Store, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(start)
	return NewStore(tuning.Defaults(), clk, opts...), clk
}

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

func checkInvariants(t *testing.T, s *Store) {
	t.Helper()
	st := s.State()
	calc := s.Calculator()
	if st.PointsBalance < 0 {
		t.Fatalf("negative balance: %v", st.PointsBalance)
	}
	if st.Energy < 0 || st.Energy > st.MaxEnergy {
		t.Fatalf("energy %v outside [0,%v]", st.Energy, st.MaxEnergy)
	}
	if st.GameLevelIndex != calc.LevelIndex(st.Points) {
		t.Fatalf("level %d inconsistent with points %v", st.GameLevelIndex, st.Points)
	}
	if st.PointsPerClick != calc.PointsPerClick(st.MultitapLevelIndex) {
		t.Fatalf("points per click %v off curve", st.PointsPerClick)
	}
	if st.MaxEnergy != calc.EnergyLimit(st.EnergyLimitLevelIndex) {
		t.Fatalf("max energy %v off curve", st.MaxEnergy)
	}
	if st.ProfitPerHour != calc.ProfitPerHour(st.MineLevelIndex) {
		t.Fatalf("profit per hour %v off curve", st.ProfitPerHour)
	}
}

func TestNewStoreInitialState(t *testing.T) {
	s, _ := newTestStore(t)
	st := s.State()
	if st.Points != 10000 || st.PointsBalance != 10000 {
		t.Fatalf("unexpected starting points: %+v", st)
	}
	if st.MultitapLevelIndex != 0 || st.EnergyLimitLevelIndex != 0 || st.MineLevelIndex != 0 {
		t.Fatalf("expected level 0 on every track: %+v", st)
	}
	if st.Energy != 500 || st.MaxEnergy != 500 {
		t.Fatalf("expected full energy 500: %+v", st)
	}
	if st.EnergyRefillsLeft != 6 {
		t.Fatalf("expected 6 refills got %d", st.EnergyRefillsLeft)
	}
	if st.GameLevelIndex != 1 {
		t.Fatalf("10000 points should be Silver, got level %d", st.GameLevelIndex)
	}
	checkInvariants(t, s)
}

func TestClickTransfersEnergyToPoints(t *testing.T) {
	s, clk := newTestStore(t)
	clk.Advance(time.Minute)

	before := s.State()
	if !s.Click() {
		t.Fatalf("expected click to apply")
	}
	after := s.State()
	ppc := before.PointsPerClick
	if after.Points != before.Points+ppc || after.PointsBalance != before.PointsBalance+ppc {
		t.Fatalf("points not credited: before=%+v after=%+v", before, after)
	}
	if after.UnsynchronizedPoints != before.UnsynchronizedPoints+ppc {
		t.Fatalf("unsynchronized not credited")
	}
	if after.Energy != before.Energy-ppc {
		t.Fatalf("energy not spent: %v -> %v", before.Energy, after.Energy)
	}
	if !after.LastClickTimestamp.Equal(start.Add(time.Minute)) {
		t.Fatalf("last click timestamp = %v", after.LastClickTimestamp)
	}
	checkInvariants(t, s)
}

func TestClickRejectedWithoutEnergy(t *testing.T) {
	s, _ := newTestStore(t)
	s.InitializeState(Partial{Energy: f64(0), PointsPerClick: f64(5)})

	before := s.State()
	if s.Click() {
		t.Fatalf("expected click to be rejected")
	}
	if !reflect.DeepEqual(before, s.State()) {
		t.Fatalf("rejected click changed state")
	}

	s.InitializeState(Partial{Energy: f64(4.5)})
	if s.Click() {
		t.Fatalf("expected click with 4.5 energy and 5 ppc to be rejected")
	}
	s.InitializeState(Partial{Energy: f64(5)})
	if !s.Click() {
		t.Fatalf("expected click with exactly ppc energy to apply")
	}
	if got := s.State().Energy; got != 0 {
		t.Fatalf("expected energy 0 got %v", got)
	}
}

func TestClickRecomputesLevel(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetPoints(4999)
	if got := s.State().GameLevelIndex; got != 0 {
		t.Fatalf("expected level 0 got %d", got)
	}
	s.Click()
	if got := s.State().GameLevelIndex; got != 1 {
		t.Fatalf("expected level 1 after crossing 5000, got %d", got)
	}
}

func TestIncrementPointsLevelRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetPoints(0)
	levels := tuning.Defaults().Levels
	for i := 1; i < len(levels); i++ {
		cur := s.State().Points
		s.IncrementPoints(levels[i].MinPoints - 1 - cur)
		if got := s.State().GameLevelIndex; got != i-1 {
			t.Fatalf("one below %v: expected %d got %d", levels[i].MinPoints, i-1, got)
		}
		s.IncrementPoints(1)
		if got := s.State().GameLevelIndex; got != i {
			t.Fatalf("at %v: expected %d got %d", levels[i].MinPoints, i, got)
		}
	}
	checkInvariants(t, s)
}

func TestIncrementPointsLeavesUnsynchronized(t *testing.T) {
	s, _ := newTestStore(t)
	s.IncrementPoints(250)
	st := s.State()
	if st.Points != 10250 || st.PointsBalance != 10250 {
		t.Fatalf("unexpected points: %+v", st)
	}
	if st.UnsynchronizedPoints != 0 {
		t.Fatalf("expected unsynchronized untouched, got %v", st.UnsynchronizedPoints)
	}
}

func TestDecrementPointsBalanceClamps(t *testing.T) {
	s, _ := newTestStore(t)
	s.DecrementPointsBalance(400)
	if got := s.State().PointsBalance; got != 9600 {
		t.Fatalf("expected 9600 got %v", got)
	}
	s.DecrementPointsBalance(1e12)
	if got := s.State().PointsBalance; got != 0 {
		t.Fatalf("expected 0 got %v", got)
	}
	s.DecrementPointsBalance(1)
	if got := s.State().PointsBalance; got != 0 {
		t.Fatalf("expected 0 to stay 0, got %v", got)
	}
	if got := s.State().Points; got != 10000 {
		t.Fatalf("lifetime points must not move, got %v", got)
	}
}

func TestResetUnsynchronizedPoints(t *testing.T) {
	s, _ := newTestStore(t)
	s.InitializeState(Partial{UnsynchronizedPoints: f64(120)})

	s.ResetUnsynchronizedPoints(50)
	if got := s.State().UnsynchronizedPoints; got != 70 {
		t.Fatalf("expected 70 got %v", got)
	}
	s.ResetUnsynchronizedPoints(200)
	if got := s.State().UnsynchronizedPoints; got != 0 {
		t.Fatalf("expected 0 got %v", got)
	}
}

func TestUpgradeMultitapScenario(t *testing.T) {
	s, _ := newTestStore(t)
	calc := s.Calculator()
	if calc.MultitapUpgradeCost(0) != 1000 {
		t.Fatalf("expected level 0 cost 1000")
	}
	if !s.UpgradeMultitap() {
		t.Fatalf("expected upgrade to apply")
	}
	st := s.State()
	if st.PointsBalance != 9000 {
		t.Fatalf("expected 9000 balance got %v", st.PointsBalance)
	}
	if st.MultitapLevelIndex != 1 {
		t.Fatalf("expected level 1 got %d", st.MultitapLevelIndex)
	}
	if st.PointsPerClick != calc.PointsPerClick(1) {
		t.Fatalf("expected ppc %v got %v", calc.PointsPerClick(1), st.PointsPerClick)
	}
	if st.Points != 10000 {
		t.Fatalf("purchase must not touch lifetime points")
	}
	checkInvariants(t, s)
}

func TestUpgradesRejectedOnInsufficientBalance(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetPointsBalance(999)
	before := s.State()
	if s.UpgradeMultitap() || s.UpgradeEnergyLimit() || s.UpgradeMine() {
		t.Fatalf("expected every upgrade to be rejected")
	}
	if !reflect.DeepEqual(before, s.State()) {
		t.Fatalf("rejected upgrade changed state")
	}
}

func TestUpgradeEnergyLimitAndMine(t *testing.T) {
	s, _ := newTestStore(t)
	calc := s.Calculator()

	if !s.UpgradeEnergyLimit() {
		t.Fatalf("expected energy limit upgrade")
	}
	st := s.State()
	if st.EnergyLimitLevelIndex != 1 || st.MaxEnergy != calc.EnergyLimit(1) {
		t.Fatalf("unexpected energy track: %+v", st)
	}
	if st.Energy != 500 {
		t.Fatalf("upgrade should not refill energy, got %v", st.Energy)
	}

	if !s.UpgradeMine() {
		t.Fatalf("expected mine upgrade")
	}
	st = s.State()
	if st.MineLevelIndex != 1 || st.ProfitPerHour != calc.ProfitPerHour(1) {
		t.Fatalf("unexpected mine track: %+v", st)
	}
	if st.PointsBalance != 8000 {
		t.Fatalf("expected 8000 after two 1000 purchases, got %v", st.PointsBalance)
	}

	// Second mine level costs 1500.
	s.SetPointsBalance(1499)
	if s.UpgradeMine() {
		t.Fatalf("expected 1499 to be short of 1500")
	}
	s.SetPointsBalance(1500)
	if !s.UpgradeMine() {
		t.Fatalf("expected exact balance to buy the upgrade")
	}
	if got := s.State().PointsBalance; got != 0 {
		t.Fatalf("expected 0 balance got %v", got)
	}
	checkInvariants(t, s)
}

func TestRefillEnergyQuota(t *testing.T) {
	s, clk := newTestStore(t)
	s.SetEnergy(0)

	clk.Advance(time.Hour)
	if !s.RefillEnergy() {
		t.Fatalf("expected refill")
	}
	st := s.State()
	if st.Energy != st.MaxEnergy || st.EnergyRefillsLeft != 5 {
		t.Fatalf("unexpected state after refill: %+v", st)
	}
	if !st.LastEnergyRefillTimestamp.Equal(start.Add(time.Hour)) {
		t.Fatalf("refill timestamp = %v", st.LastEnergyRefillTimestamp)
	}

	s.InitializeState(Partial{EnergyRefillsLeft: intp(0), Energy: f64(10)})
	before := s.State()
	if s.RefillEnergy() {
		t.Fatalf("expected exhausted quota to reject")
	}
	if !reflect.DeepEqual(before, s.State()) {
		t.Fatalf("rejected refill changed state")
	}

	s.ResetDailyRefills()
	if got := s.State().EnergyRefillsLeft; got != 6 {
		t.Fatalf("expected 6 got %d", got)
	}
	s.InitializeState(Partial{EnergyRefillsLeft: intp(3)})
	s.ResetDailyRefills()
	if got := s.State().EnergyRefillsLeft; got != 6 {
		t.Fatalf("expected 6 regardless of prior value, got %d", got)
	}
}

func TestIncrementEnergyClamps(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetEnergy(100)
	s.IncrementEnergy(50)
	if got := s.State().Energy; got != 150 {
		t.Fatalf("expected 150 got %v", got)
	}
	s.IncrementEnergy(1e9)
	if got := s.State().Energy; got != 500 {
		t.Fatalf("expected cap 500 got %v", got)
	}
	s.IncrementEnergy(-1e9)
	if got := s.State().Energy; got != 0 {
		t.Fatalf("expected floor 0 got %v", got)
	}
}

func TestSetters(t *testing.T) {
	s, clk := newTestStore(t)
	calc := s.Calculator()

	s.SetEnergy(9999)
	if got := s.State().Energy; got != 500 {
		t.Fatalf("SetEnergy should clamp to max, got %v", got)
	}
	s.SetPointsBalance(-5)
	if got := s.State().PointsBalance; got != 0 {
		t.Fatalf("SetPointsBalance should floor, got %v", got)
	}
	s.SetMineLevelIndex(4)
	if st := s.State(); st.MineLevelIndex != 4 || st.ProfitPerHour != calc.ProfitPerHour(4) {
		t.Fatalf("SetMineLevelIndex: %+v", st)
	}

	addr := "UQBvW8Z5huBkMJYdnfAEM5JqTNkuWX3diqYENkWsIL0XggGG"
	s.SetTonWalletAddress(&addr)
	addr = "mutated"
	if got := s.State().TonWalletAddress; got == nil || *got == "mutated" {
		t.Fatalf("wallet address should be copied in, got %v", got)
	}
	s.SetTonWalletAddress(nil)
	if s.State().TonWalletAddress != nil {
		t.Fatalf("expected wallet cleared")
	}

	clk.Advance(3 * time.Second)
	s.UpdateLastClickTimestamp()
	if got := s.State().LastClickTimestamp; !got.Equal(start.Add(3 * time.Second)) {
		t.Fatalf("last click = %v", got)
	}
	checkInvariants(t, s)
}

func TestInitializeStateMergesOnlyGivenFields(t *testing.T) {
	s, _ := newTestStore(t)
	s.InitializeState(Partial{Points: f64(42), MultitapLevelIndex: intp(3)})
	st := s.State()
	if st.Points != 42 || st.MultitapLevelIndex != 3 {
		t.Fatalf("fields not merged: %+v", st)
	}
	if st.PointsBalance != 10000 || st.Energy != 500 {
		t.Fatalf("untouched fields changed: %+v", st)
	}
	// Derived fields are the caller's responsibility.
	if st.PointsPerClick != 1 {
		t.Fatalf("expected ppc untouched, got %v", st.PointsPerClick)
	}

	full := PartialOf(st)
	other, _ := newTestStore(t)
	other.InitializeState(full)
	if !reflect.DeepEqual(other.State(), st) {
		t.Fatalf("PartialOf round trip mismatch")
	}
}

func TestStateReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t)
	addr := "addr"
	s.SetTonWalletAddress(&addr)

	snap := s.State()
	snap.Points = 1
	*snap.TonWalletAddress = "changed"

	st := s.State()
	if st.Points != 10000 || *st.TonWalletAddress != "addr" {
		t.Fatalf("snapshot aliased internal state: %+v", st)
	}
}

type memRecorder struct {
	mu  sync.Mutex
	trs []Transition
	err error
}

func (m *memRecorder) RecordTransition(tr Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trs = append(m.trs, tr)
	return m.err
}

func TestRecorderSeesAppliedAndRejected(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	s, _ := newTestStore(t, WithRecorder(rec))

	s.SetEnergy(0)
	s.Click()
	s.IncrementPoints(7)

	if len(rec.trs) != 3 {
		t.Fatalf("expected 3 transitions got %d", len(rec.trs))
	}
	if rec.trs[1].Op != OpClick || rec.trs[1].Applied {
		t.Fatalf("expected rejected click, got %+v", rec.trs[1])
	}
	if rec.trs[2].Op != OpIncrementPoints || !rec.trs[2].Applied || rec.trs[2].Amount != 7 {
		t.Fatalf("unexpected increment record: %+v", rec.trs[2])
	}
	if rec.trs[2].State.Points != 10007 {
		t.Fatalf("record should carry state after the op, got %v", rec.trs[2].State.Points)
	}
	for i, tr := range rec.trs {
		if tr.Seq != uint64(i+1) {
			t.Fatalf("seq %d at %d", tr.Seq, i)
		}
	}
}

func TestConcurrentClicksKeepInvariants(t *testing.T) {
	s, _ := newTestStore(t)

	var wg sync.WaitGroup
	const workers = 20
	const iterations = 50
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				s.Click()
				s.IncrementEnergy(0.5)
				_ = s.State()
			}
		}()
	}
	wg.Wait()

	st := s.State()
	spent := st.Points - 10000
	if st.UnsynchronizedPoints != spent {
		t.Fatalf("unsynchronized %v != earned %v", st.UnsynchronizedPoints, spent)
	}
	checkInvariants(t, s)
}

func TestConcurrentTransitionsRecordedInSeqOrder(t *testing.T) {
	rec := &memRecorder{}
	s, _ := newTestStore(t, WithRecorder(rec))

	var wg sync.WaitGroup
	const workers = 16
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 40; j++ {
				s.Click()
				s.IncrementEnergy(1)
			}
		}()
	}
	wg.Wait()

	if len(rec.trs) != workers*80 {
		t.Fatalf("recorded %d transitions", len(rec.trs))
	}
	for i, tr := range rec.trs {
		if tr.Seq != uint64(i+1) {
			t.Fatalf("transition %d recorded with seq %d", i, tr.Seq)
		}
	}
}

func TestReconcileRederivesUnderCurrentTuning(t *testing.T) {
	tun := tuning.Defaults()
	tun.EnergyLimit.BaseBenefit = 200
	tun.Multitap.BaseBenefit = 3
	s := NewStore(tun, clock.NewManual(start))

	// Snapshot taken under default tuning with one energy limit upgrade.
	s.InitializeState(Partial{
		Points:                f64(120),
		GameLevelIndex:        intp(4),
		EnergyLimitLevelIndex: intp(1),
		MaxEnergy:             f64(750),
		Energy:                f64(700),
		PointsPerClick:        f64(1),
		ProfitPerHour:         f64(0),
	})
	if !s.Reconcile() {
		t.Fatalf("expected reconcile to apply")
	}
	st := s.State()
	if st.MaxEnergy != 300 || st.Energy != 300 {
		t.Fatalf("energy=%v maxEnergy=%v want 300/300", st.Energy, st.MaxEnergy)
	}
	if st.PointsPerClick != 3 {
		t.Fatalf("ppc=%v want 3", st.PointsPerClick)
	}
	if st.GameLevelIndex != 0 {
		t.Fatalf("level=%d want 0 for 120 points", st.GameLevelIndex)
	}
	checkInvariants(t, s)
}
