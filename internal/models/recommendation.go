package models

// Action is what the user should do with an existing position.
type Action string

const (
	ActionMaintain Action = "MAINTAIN"
	ActionClose    Action = "CLOSE"
	ActionRoll     Action = "ROLL"
)

// Priority levels, 1 is most urgent.
const (
	PriorityUrgent = 1
	PriorityMedium = 2
	PriorityLow    = 3
)

// RollType labels how a roll moves the position.
type RollType string

const (
	RollOut      RollType = "roll_out"
	RollDownOut  RollType = "roll_down_and_out"
	RollUpOut    RollType = "roll_up_and_out"
	RollDown     RollType = "roll_down"
	RollLEAPSOut RollType = "leaps_roll_out"
)

// RollParameters describes the target contract of a roll.
// ExpectedCredit is positive for a net credit to the user, negative for a net debit.
type RollParameters struct {
	NewStrike      float64  `json:"new_strike"`
	NewExpiration  Date     `json:"new_expiration"`
	NewDTE         int      `json:"new_dte"`
	NewPremium     float64  `json:"new_premium"`
	CloseCost      float64  `json:"close_cost"`
	ExpectedCredit float64  `json:"expected_credit"`
	RollType       RollType `json:"roll_type"`
}

// PositionRecommendation is the derived advice for one position.
type PositionRecommendation struct {
	PositionID string          `json:"position_id"`
	Action     Action          `json:"action"`
	Priority   int             `json:"priority"`
	Reasoning  []string        `json:"reasoning"`
	Roll       *RollParameters `json:"roll,omitempty"`
}
