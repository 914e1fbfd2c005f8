package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Levels []Level `yaml:"levels" json:"levels"`

	Multitap    Curve `yaml:"multitap" json:"multitap"`
	EnergyLimit Curve `yaml:"energy_limit" json:"energy_limit"`
	Mine        Curve `yaml:"mine" json:"mine"`

	DailyEnergyRefills int   `yaml:"daily_energy_refills" json:"daily_energy_refills"`
	MaxInactiveMs      int64 `yaml:"max_inactive_ms" json:"max_inactive_ms"`

	Initial Initial `yaml:"initial" json:"initial"`
}

// Level is one row of the ascending game level table.
type Level struct {
	Name      string  `yaml:"name" json:"name"`
	MinPoints float64 `yaml:"min_points" json:"min_points"`
}

// Curve holds the cost and benefit coefficients of one upgrade track.
type Curve struct {
	BasePrice          float64 `yaml:"base_price" json:"base_price"`
	CostCoefficient    float64 `yaml:"cost_coefficient" json:"cost_coefficient"`
	BaseBenefit        float64 `yaml:"base_benefit" json:"base_benefit"`
	BenefitCoefficient float64 `yaml:"benefit_coefficient" json:"benefit_coefficient"`
}

// Initial is the snapshot a fresh session starts from.
type Initial struct {
	Points        float64 `yaml:"points" json:"points"`
	PointsBalance float64 `yaml:"points_balance" json:"points_balance"`
}

func Defaults() Tuning {
	return Tuning{
		Levels: []Level{
			{Name: "Bronze", MinPoints: 0},
			{Name: "Silver", MinPoints: 5000},
			{Name: "Gold", MinPoints: 25000},
			{Name: "Platinum", MinPoints: 100000},
			{Name: "Diamond", MinPoints: 1000000},
			{Name: "Epic", MinPoints: 2000000},
			{Name: "Legendary", MinPoints: 10000000},
			{Name: "Master", MinPoints: 50000000},
			{Name: "GrandMaster", MinPoints: 100000000},
			{Name: "Lord", MinPoints: 1000000000},
		},
		Multitap: Curve{
			BasePrice:          1000,
			CostCoefficient:    2,
			BaseBenefit:        1,
			BenefitCoefficient: 2,
		},
		EnergyLimit: Curve{
			BasePrice:          1000,
			CostCoefficient:    2,
			BaseBenefit:        500,
			BenefitCoefficient: 1.5,
		},
		Mine: Curve{
			BasePrice:          1000,
			CostCoefficient:    1.5,
			BaseBenefit:        100,
			BenefitCoefficient: 1.2,
		},
		DailyEnergyRefills: 6,
		MaxInactiveMs:      3 * 60 * 60 * 1000,
		Initial: Initial{
			Points:        10000,
			PointsBalance: 10000,
		},
	}
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Validate rejects tables and curves that would break the progression
// invariants (strict cost growth, non-decreasing benefit, positive click power
// and energy cap).
func (t Tuning) Validate() error {
	if len(t.Levels) == 0 {
		return errors.New("levels: empty")
	}
	for i := 1; i < len(t.Levels); i++ {
		if t.Levels[i].MinPoints <= t.Levels[i-1].MinPoints {
			return fmt.Errorf("levels[%d]: min_points %v not above levels[%d]", i, t.Levels[i].MinPoints, i-1)
		}
	}
	tracks := []struct {
		name string
		c    Curve
	}{
		{"multitap", t.Multitap},
		{"energy_limit", t.EnergyLimit},
		{"mine", t.Mine},
	}
	for _, tr := range tracks {
		if err := tr.c.validate(); err != nil {
			return fmt.Errorf("%s: %w", tr.name, err)
		}
	}
	if t.Multitap.BaseBenefit <= 0 {
		return errors.New("multitap: base_benefit must be positive")
	}
	if t.EnergyLimit.BaseBenefit <= 0 {
		return errors.New("energy_limit: base_benefit must be positive")
	}
	if t.DailyEnergyRefills <= 0 {
		return errors.New("daily_energy_refills must be positive")
	}
	if t.MaxInactiveMs < 0 {
		return errors.New("max_inactive_ms must not be negative")
	}
	if t.Initial.Points < 0 || t.Initial.PointsBalance < 0 {
		return errors.New("initial: points must not be negative")
	}
	return nil
}

func (c Curve) validate() error {
	if c.BasePrice <= 0 {
		return errors.New("base_price must be positive")
	}
	if c.CostCoefficient <= 1 {
		return errors.New("cost_coefficient must be above 1")
	}
	if c.BaseBenefit < 0 {
		return errors.New("base_benefit must not be negative")
	}
	if c.BenefitCoefficient < 1 {
		return errors.New("benefit_coefficient must be at least 1")
	}
	return nil
}

func (t Tuning) MaxInactive() time.Duration {
	return time.Duration(t.MaxInactiveMs) * time.Millisecond
}

// Digest is a sha256 over the canonical JSON of the applied values.
func (t Tuning) Digest() string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
