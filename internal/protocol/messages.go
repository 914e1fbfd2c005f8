package protocol

// Player actions carried by ACT.
const (
	ActionClick              = "CLICK"
	ActionUpgradeMultitap    = "UPGRADE_MULTITAP"
	ActionUpgradeEnergyLimit = "UPGRADE_ENERGY_LIMIT"
	ActionUpgradeMine        = "UPGRADE_MINE"
	ActionRefillEnergy       = "REFILL_ENERGY"
	ActionSetTonWallet       = "SET_TON_WALLET"
	ActionSync               = "SYNC"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	UserID          string `json:"user_id"`
	UserName        string `json:"user_name,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	UserID          string     `json:"user_id"`
	TuningDigest    string     `json:"tuning_digest"`
	Levels          []LevelRef `json:"levels"`
	State           StateView  `json:"state"`
}

type LevelRef struct {
	Name      string  `json:"name"`
	MinPoints float64 `json:"min_points"`
}

// ACT (client -> server)
type ActMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ActID           string  `json:"act_id"`
	Action          string  `json:"action"`
	Address         *string `json:"address,omitempty"`
}

// ACK (server -> client)
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// STATE (server -> client)
type StateMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	State           StateView `json:"state"`
}

// StateView is the player state as shown to clients, with the prices of the
// next level on every track.
type StateView struct {
	Points               float64 `json:"points"`
	PointsBalance        float64 `json:"points_balance"`
	UnsynchronizedPoints float64 `json:"unsynchronized_points"`
	GameLevelIndex       int     `json:"game_level_index"`
	GameLevelName        string  `json:"game_level_name"`

	MultitapLevelIndex    int `json:"multitap_level_index"`
	EnergyLimitLevelIndex int `json:"energy_limit_level_index"`
	MineLevelIndex        int `json:"mine_level_index"`

	PointsPerClick float64 `json:"points_per_click"`
	Energy         float64 `json:"energy"`
	MaxEnergy      float64 `json:"max_energy"`
	ProfitPerHour  float64 `json:"profit_per_hour"`

	EnergyRefillsLeft int `json:"energy_refills_left"`

	MultitapUpgradeCost    float64 `json:"multitap_upgrade_cost"`
	EnergyLimitUpgradeCost float64 `json:"energy_limit_upgrade_cost"`
	MineUpgradeCost        float64 `json:"mine_upgrade_cost"`

	LastClickMs        int64   `json:"last_click_ms"`
	LastEnergyRefillMs int64   `json:"last_energy_refill_ms"`
	TonWalletAddress   *string `json:"ton_wallet_address,omitempty"`
}
