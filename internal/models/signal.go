package models

import "time"

// Score is the traffic-light rating of a signal.
type Score string

const (
	ScoreGreen  Score = "GREEN"
	ScoreYellow Score = "YELLOW"
	ScoreRed    Score = "RED"
)

// Strategy identifies which options strategy a signal evaluates.
type Strategy string

const (
	StrategyCSP         Strategy = "CSP"
	StrategyCoveredCall Strategy = "COVERED_CALL"
	StrategyLEAPS       Strategy = "LEAPS"
	StrategyPMCC        Strategy = "PMCC"
)

// RecommendedStrike is one candidate contract for a strategy.
type RecommendedStrike struct {
	Ticker           string     `json:"ticker"`
	Type             OptionType `json:"type"`
	Strike           float64    `json:"strike"`
	Expiration       Date       `json:"expiration"`
	DaysToExpiration int        `json:"dte"`
	Premium          float64    `json:"premium"`
	Delta            float64    `json:"delta"`
	BreakEven        float64    `json:"break_even"`
	ReturnOnCapital  float64    `json:"return_on_capital,omitempty"`
	AnnualizedReturn float64    `json:"annualized_return,omitempty"`
	LeverageRatio    float64    `json:"leverage_ratio,omitempty"`
	ExtrinsicValue   float64    `json:"extrinsic_value,omitempty"`
}

// Signal is the scored outcome of one strategy's rule set.
type Signal struct {
	Strategy    Strategy            `json:"strategy"`
	Ticker      string              `json:"ticker"`
	Score       Score               `json:"score"`
	Reasoning   []string            `json:"reasoning"`
	Strikes     []RecommendedStrike `json:"recommended_strikes"`
	GeneratedAt time.Time           `json:"generated_at"`
}
