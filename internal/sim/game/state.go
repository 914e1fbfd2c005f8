package game

import "time"

// PlayerState is one player's session aggregate. The store owns it; callers
// only ever see copies.
type PlayerState struct {
	Points               float64 `json:"points"`
	PointsBalance        float64 `json:"points_balance"`
	UnsynchronizedPoints float64 `json:"unsynchronized_points"`
	GameLevelIndex       int     `json:"game_level_index"`

	MultitapLevelIndex    int `json:"multitap_level_index"`
	EnergyLimitLevelIndex int `json:"energy_limit_level_index"`
	MineLevelIndex        int `json:"mine_level_index"`

	PointsPerClick float64 `json:"points_per_click"`
	Energy         float64 `json:"energy"`
	MaxEnergy      float64 `json:"max_energy"`
	ProfitPerHour  float64 `json:"profit_per_hour"`

	EnergyRefillsLeft int `json:"energy_refills_left"`

	LastClickTimestamp        time.Time `json:"last_click_timestamp"`
	LastEnergyRefillTimestamp time.Time `json:"last_energy_refill_timestamp"`

	TonWalletAddress *string `json:"ton_wallet_address,omitempty"`
}

func (st PlayerState) clone() PlayerState {
	out := st
	if st.TonWalletAddress != nil {
		addr := *st.TonWalletAddress
		out.TonWalletAddress = &addr
	}
	return out
}

// Partial is a sparse snapshot merged by InitializeState. Nil fields are left
// untouched.
type Partial struct {
	Points               *float64 `json:"points,omitempty"`
	PointsBalance        *float64 `json:"points_balance,omitempty"`
	UnsynchronizedPoints *float64 `json:"unsynchronized_points,omitempty"`
	GameLevelIndex       *int     `json:"game_level_index,omitempty"`

	MultitapLevelIndex    *int `json:"multitap_level_index,omitempty"`
	EnergyLimitLevelIndex *int `json:"energy_limit_level_index,omitempty"`
	MineLevelIndex        *int `json:"mine_level_index,omitempty"`

	PointsPerClick *float64 `json:"points_per_click,omitempty"`
	Energy         *float64 `json:"energy,omitempty"`
	MaxEnergy      *float64 `json:"max_energy,omitempty"`
	ProfitPerHour  *float64 `json:"profit_per_hour,omitempty"`

	EnergyRefillsLeft *int `json:"energy_refills_left,omitempty"`

	LastClickTimestamp        *time.Time `json:"last_click_timestamp,omitempty"`
	LastEnergyRefillTimestamp *time.Time `json:"last_energy_refill_timestamp,omitempty"`

	TonWalletAddress *string `json:"ton_wallet_address,omitempty"`
}

func (p Partial) mergeInto(st *PlayerState) {
	if p.Points != nil {
		st.Points = *p.Points
	}
	if p.PointsBalance != nil {
		st.PointsBalance = *p.PointsBalance
	}
	if p.UnsynchronizedPoints != nil {
		st.UnsynchronizedPoints = *p.UnsynchronizedPoints
	}
	if p.GameLevelIndex != nil {
		st.GameLevelIndex = *p.GameLevelIndex
	}
	if p.MultitapLevelIndex != nil {
		st.MultitapLevelIndex = *p.MultitapLevelIndex
	}
	if p.EnergyLimitLevelIndex != nil {
		st.EnergyLimitLevelIndex = *p.EnergyLimitLevelIndex
	}
	if p.MineLevelIndex != nil {
		st.MineLevelIndex = *p.MineLevelIndex
	}
	if p.PointsPerClick != nil {
		st.PointsPerClick = *p.PointsPerClick
	}
	if p.Energy != nil {
		st.Energy = *p.Energy
	}
	if p.MaxEnergy != nil {
		st.MaxEnergy = *p.MaxEnergy
	}
	if p.ProfitPerHour != nil {
		st.ProfitPerHour = *p.ProfitPerHour
	}
	if p.EnergyRefillsLeft != nil {
		st.EnergyRefillsLeft = *p.EnergyRefillsLeft
	}
	if p.LastClickTimestamp != nil {
		st.LastClickTimestamp = *p.LastClickTimestamp
	}
	if p.LastEnergyRefillTimestamp != nil {
		st.LastEnergyRefillTimestamp = *p.LastEnergyRefillTimestamp
	}
	if p.TonWalletAddress != nil {
		addr := *p.TonWalletAddress
		st.TonWalletAddress = &addr
	}
}

// PartialOf returns a Partial carrying every field of st.
func PartialOf(st PlayerState) Partial {
	st = st.clone()
	return Partial{
		Points:                    &st.Points,
		PointsBalance:             &st.PointsBalance,
		UnsynchronizedPoints:      &st.UnsynchronizedPoints,
		GameLevelIndex:            &st.GameLevelIndex,
		MultitapLevelIndex:        &st.MultitapLevelIndex,
		EnergyLimitLevelIndex:     &st.EnergyLimitLevelIndex,
		MineLevelIndex:            &st.MineLevelIndex,
		PointsPerClick:            &st.PointsPerClick,
		Energy:                    &st.Energy,
		MaxEnergy:                 &st.MaxEnergy,
		ProfitPerHour:             &st.ProfitPerHour,
		EnergyRefillsLeft:         &st.EnergyRefillsLeft,
		LastClickTimestamp:        &st.LastClickTimestamp,
		LastEnergyRefillTimestamp: &st.LastEnergyRefillTimestamp,
		TonWalletAddress:          st.TonWalletAddress,
	}
}
