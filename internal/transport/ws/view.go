package ws

import (
	"time"

	"creton.game/internal/protocol"
	"creton.game/internal/sim/game"
	"creton.game/internal/sim/progression"
)

// View renders st for clients, pricing the next level on every track.
func View(st game.PlayerState, calc progression.Calculator) protocol.StateView {
	v := protocol.StateView{
		Points:               st.Points,
		PointsBalance:        st.PointsBalance,
		UnsynchronizedPoints: st.UnsynchronizedPoints,
		GameLevelIndex:       st.GameLevelIndex,

		MultitapLevelIndex:    st.MultitapLevelIndex,
		EnergyLimitLevelIndex: st.EnergyLimitLevelIndex,
		MineLevelIndex:        st.MineLevelIndex,

		PointsPerClick: st.PointsPerClick,
		Energy:         st.Energy,
		MaxEnergy:      st.MaxEnergy,
		ProfitPerHour:  st.ProfitPerHour,

		EnergyRefillsLeft: st.EnergyRefillsLeft,

		MultitapUpgradeCost:    calc.MultitapUpgradeCost(st.MultitapLevelIndex),
		EnergyLimitUpgradeCost: calc.EnergyLimitUpgradeCost(st.EnergyLimitLevelIndex),
		MineUpgradeCost:        calc.MineUpgradeCost(st.MineLevelIndex),

		LastClickMs:        unixMs(st.LastClickTimestamp),
		LastEnergyRefillMs: unixMs(st.LastEnergyRefillTimestamp),
		TonWalletAddress:   st.TonWalletAddress,
	}
	if lvl, ok := calc.Level(st.GameLevelIndex); ok {
		v.GameLevelName = lvl.Name
	}
	return v
}

func Levels(calc progression.Calculator) []protocol.LevelRef {
	var out []protocol.LevelRef
	for i := 0; ; i++ {
		lvl, ok := calc.Level(i)
		if !ok {
			return out
		}
		out = append(out, protocol.LevelRef{Name: lvl.Name, MinPoints: lvl.MinPoints})
	}
}

func unixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
