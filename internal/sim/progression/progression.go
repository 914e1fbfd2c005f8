// Package progression holds the pure cost, benefit and accrual curves of the
// game. Nothing here keeps state; the game store calls into it.
package progression

import (
	"math"
	"time"

	"creton.game/internal/sim/tuning"
)

const msPerHour = 3_600_000

// UpgradeCost is basePrice * costCoefficient^level.
func UpgradeCost(level int, basePrice, costCoefficient float64) float64 {
	return basePrice * math.Pow(costCoefficient, float64(level))
}

// UpgradeBenefit is baseBenefit * benefitCoefficient^level.
func UpgradeBenefit(level int, baseBenefit, benefitCoefficient float64) float64 {
	return baseBenefit * math.Pow(benefitCoefficient, float64(level))
}

// LevelIndex returns the greatest index whose MinPoints is met by points,
// or 0 when none is.
func LevelIndex(levels []tuning.Level, points float64) int {
	for i := len(levels) - 1; i >= 0; i-- {
		if points >= levels[i].MinPoints {
			return i
		}
	}
	return 0
}

// Calculator binds the curves to one tuning table.
type Calculator struct {
	levels      []tuning.Level
	multitap    tuning.Curve
	energyLimit tuning.Curve
	mine        tuning.Curve
	maxInactive time.Duration
}

func New(t tuning.Tuning) Calculator {
	levels := make([]tuning.Level, len(t.Levels))
	copy(levels, t.Levels)
	return Calculator{
		levels:      levels,
		multitap:    t.Multitap,
		energyLimit: t.EnergyLimit,
		mine:        t.Mine,
		maxInactive: t.MaxInactive(),
	}
}

func (c Calculator) LevelIndex(points float64) int {
	return LevelIndex(c.levels, points)
}

// Level returns the table row at i; ok is false outside the table.
func (c Calculator) Level(i int) (tuning.Level, bool) {
	if i < 0 || i >= len(c.levels) {
		return tuning.Level{}, false
	}
	return c.levels[i], true
}

func (c Calculator) MultitapUpgradeCost(level int) float64 {
	return UpgradeCost(level, c.multitap.BasePrice, c.multitap.CostCoefficient)
}

func (c Calculator) PointsPerClick(level int) float64 {
	return UpgradeBenefit(level, c.multitap.BaseBenefit, c.multitap.BenefitCoefficient)
}

func (c Calculator) EnergyLimitUpgradeCost(level int) float64 {
	return UpgradeCost(level, c.energyLimit.BasePrice, c.energyLimit.CostCoefficient)
}

func (c Calculator) EnergyLimit(level int) float64 {
	return UpgradeBenefit(level, c.energyLimit.BaseBenefit, c.energyLimit.BenefitCoefficient)
}

func (c Calculator) MineUpgradeCost(level int) float64 {
	return UpgradeCost(level, c.mine.BasePrice, c.mine.CostCoefficient)
}

// ProfitPerHour is the mine benefit above the base level; level 0 earns nothing.
func (c Calculator) ProfitPerHour(level int) float64 {
	return math.Max(0, UpgradeBenefit(level, c.mine.BaseBenefit, c.mine.BenefitCoefficient)-c.mine.BaseBenefit)
}

// MinedPoints is the idle yield between from and to, with the elapsed time
// capped at the max inactive window.
func (c Calculator) MinedPoints(mineLevel int, from, to time.Time) float64 {
	if !to.After(from) {
		return 0
	}
	elapsed := to.Sub(from)
	if elapsed > c.maxInactive {
		elapsed = c.maxInactive
	}
	ms := float64(elapsed) / float64(time.Millisecond)
	return math.Max(0, c.ProfitPerHour(mineLevel)/msPerHour*ms)
}

// RestoredEnergy regenerates one click's worth of energy per whole second.
// The result is not capped; callers clamp against max energy.
func (c Calculator) RestoredEnergy(multitapLevel int, from, to time.Time) float64 {
	seconds := int64(to.Sub(from) / time.Second)
	return math.Max(0, c.PointsPerClick(multitapLevel)*float64(seconds))
}
