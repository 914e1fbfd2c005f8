package progression

import (
	"math"
	"testing"
	"time"

	"creton.game/internal/sim/tuning"
)

func TestUpgradeCostStrictlyIncreasing(t *testing.T) {
	calc := New(tuning.Defaults())
	tracks := map[string]func(int) float64{
		"multitap":     calc.MultitapUpgradeCost,
		"energy_limit": calc.EnergyLimitUpgradeCost,
		"mine":         calc.MineUpgradeCost,
	}
	for name, cost := range tracks {
		if cost(0) != 1000 {
			t.Fatalf("%s: level 0 should cost base price, got %v", name, cost(0))
		}
		for lvl := 0; lvl < 40; lvl++ {
			if !(cost(lvl+1) > cost(lvl)) {
				t.Fatalf("%s: cost(%d)=%v not above cost(%d)=%v", name, lvl+1, cost(lvl+1), lvl, cost(lvl))
			}
		}
	}
}

func TestUpgradeBenefitNonDecreasing(t *testing.T) {
	for _, coef := range []float64{1, 1.2, 2} {
		for lvl := 0; lvl < 40; lvl++ {
			a := UpgradeBenefit(lvl, 3, coef)
			b := UpgradeBenefit(lvl+1, 3, coef)
			if b < a {
				t.Fatalf("coef=%v: benefit(%d)=%v below benefit(%d)=%v", coef, lvl+1, b, lvl, a)
			}
		}
	}
	if got := UpgradeBenefit(0, 500, 1.5); got != 500 {
		t.Fatalf("benefit(0): expected base 500 got %v", got)
	}
}

func TestLevelIndexThresholds(t *testing.T) {
	levels := tuning.Defaults().Levels
	for i, lvl := range levels {
		if got := LevelIndex(levels, lvl.MinPoints); got != i {
			t.Fatalf("at %v: expected %d got %d", lvl.MinPoints, i, got)
		}
		if i == 0 {
			continue
		}
		if got := LevelIndex(levels, lvl.MinPoints-1); got != i-1 {
			t.Fatalf("below %v: expected %d got %d", lvl.MinPoints, i-1, got)
		}
	}
}

func TestLevelIndexBelowFirstThreshold(t *testing.T) {
	levels := []tuning.Level{{Name: "A", MinPoints: 100}, {Name: "B", MinPoints: 200}}
	if got := LevelIndex(levels, 5); got != 0 {
		t.Fatalf("expected 0 got %d", got)
	}
	if got := LevelIndex(nil, 5); got != 0 {
		t.Fatalf("expected 0 for empty table got %d", got)
	}
}

func TestProfitPerHour(t *testing.T) {
	calc := New(tuning.Defaults())
	if got := calc.ProfitPerHour(0); got != 0 {
		t.Fatalf("level 0: expected 0 got %v", got)
	}
	if got := calc.ProfitPerHour(1); math.Abs(got-20) > 1e-9 {
		t.Fatalf("level 1: expected 20 got %v", got)
	}
}

func TestMinedPoints(t *testing.T) {
	calc := New(tuning.Defaults())
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if got := calc.MinedPoints(3, t0, t0); got != 0 {
		t.Fatalf("zero elapsed: expected 0 got %v", got)
	}
	if got := calc.MinedPoints(3, t0, t0.Add(-time.Hour)); got != 0 {
		t.Fatalf("negative elapsed: expected 0 got %v", got)
	}

	oneHour := calc.MinedPoints(1, t0, t0.Add(time.Hour))
	if math.Abs(oneHour-20) > 1e-9 {
		t.Fatalf("one hour at level 1: expected 20 got %v", oneHour)
	}

	capped := calc.MinedPoints(1, t0, t0.Add(3*time.Hour))
	beyond := calc.MinedPoints(1, t0, t0.Add(72*time.Hour))
	if beyond != capped {
		t.Fatalf("expected cap at window: 3h=%v 72h=%v", capped, beyond)
	}
	if math.Abs(capped-60) > 1e-9 {
		t.Fatalf("expected 60 at the cap got %v", capped)
	}

	if got := calc.MinedPoints(0, t0, t0.Add(time.Hour)); got != 0 {
		t.Fatalf("level 0 mine: expected 0 got %v", got)
	}
}

func TestRestoredEnergy(t *testing.T) {
	calc := New(tuning.Defaults())
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if got := calc.RestoredEnergy(0, t0, t0.Add(999*time.Millisecond)); got != 0 {
		t.Fatalf("sub-second: expected 0 got %v", got)
	}
	if got := calc.RestoredEnergy(0, t0, t0.Add(2500*time.Millisecond)); got != 2 {
		t.Fatalf("2.5s at level 0: expected 2 got %v", got)
	}
	if got := calc.RestoredEnergy(2, t0, t0.Add(10*time.Second)); got != 40 {
		t.Fatalf("10s at level 2: expected 40 got %v", got)
	}
	if got := calc.RestoredEnergy(2, t0, t0.Add(-10*time.Second)); got != 0 {
		t.Fatalf("negative elapsed: expected 0 got %v", got)
	}
	// Uncapped: a day away restores far more than any max energy.
	if got := calc.RestoredEnergy(0, t0, t0.Add(24*time.Hour)); got != 86400 {
		t.Fatalf("one day: expected 86400 got %v", got)
	}
}

func TestCalculatorLevelLookup(t *testing.T) {
	calc := New(tuning.Defaults())
	if lvl, ok := calc.Level(1); !ok || lvl.Name != "Silver" {
		t.Fatalf("expected Silver got %+v ok=%v", lvl, ok)
	}
	if _, ok := calc.Level(99); ok {
		t.Fatalf("expected out of range lookup to fail")
	}
	if got := calc.LevelIndex(30000); got != 2 {
		t.Fatalf("expected Gold index 2 got %d", got)
	}
}
