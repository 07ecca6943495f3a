// Package domain contains the core types shared across the scan pipeline.
// The domain layer is pure: no infrastructure dependencies.
package domain

import "math"

// OptionType identifies the side of an option contract.
type OptionType string

const (
	OptionTypeCall OptionType = "call"
	OptionTypePut  OptionType = "put"
)

// Greeks holds the per-contract risk sensitivities. After normalization
// every field is a finite number - missing values are synthesized from a
// closed-form pricing fallback, never left as zero-value placeholders.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// IsComplete returns true when all four sensitivities are finite numbers.
func (g Greeks) IsComplete() bool {
	for _, v := range []float64{g.Delta, g.Gamma, g.Theta, g.Vega} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// MoveScenario is a projected return at a fixed underlying-move threshold.
// ReturnPercent is on the 0-100 scale after normalization.
type MoveScenario struct {
	MovePercent   float64 `json:"movePercent"`
	ReturnPercent float64 `json:"returnPercent"`
}

// PositionSizing is the optional per-opportunity sizing recommendation.
// It is either passed through from the analysis engine or synthesized from
// the caller's portfolio hints.
type PositionSizing struct {
	Contracts       int     `json:"contracts"`
	CapitalRequired float64 `json:"capitalRequired"`
	MaxRiskPercent  float64 `json:"maxRiskPercent"`
	Source          string  `json:"source"` // "engine" or "derived"
}

// Opportunity is one scored tradable contract candidate.
//
// Invariants after normalization:
//   - every percentage-bearing field is on the 0-100 scale, never 0-1
//   - Greeks are finite numbers, never missing
//   - ProbabilityOfProfit, when present, is strictly positive
//
// Opportunities are shaped by the normalizer; the only later mutation is
// filling a missing PositionSizing from caller-supplied hints.
type Opportunity struct {
	Symbol          string     `json:"symbol"`
	OptionType      OptionType `json:"optionType"`
	Strike          float64    `json:"strike"`
	Expiration      string     `json:"expiration"`
	Bid             float64    `json:"bid"`
	Ask             float64    `json:"ask"`
	LastPrice       float64    `json:"lastPrice"`
	Volume          int64      `json:"volume"`
	OpenInterest    int64      `json:"openInterest"`
	ImpliedVol      float64    `json:"impliedVolatility"`
	UnderlyingPrice float64    `json:"underlyingPrice"`

	Greeks Greeks `json:"greeks"`

	Score                 float64  `json:"score"`
	RiskAdjustedScore     *float64 `json:"riskAdjustedScore,omitempty"`
	EnhancedExpectedValue *float64 `json:"enhancedExpectedValue,omitempty"`
	ProbabilityOfProfit   *float64 `json:"probabilityOfProfit,omitempty"`
	BreakevenMovePercent  *float64 `json:"breakevenMovePercent,omitempty"`
	PotentialReturn       *float64 `json:"potentialReturn,omitempty"`
	MaxReturn             *float64 `json:"maxReturn,omitempty"`
	MaxLossPercent        float64  `json:"maxLossPercent"`
	ExpectedMoveReturn    *float64 `json:"expectedMoveReturn,omitempty"`

	ReturnsByMove []MoveScenario `json:"returnsByMove,omitempty"`

	Reasoning string   `json:"reasoning,omitempty"`
	Catalysts []string `json:"catalysts,omitempty"`
	Patterns  []string `json:"patterns,omitempty"`

	PositionSizing *PositionSizing `json:"positionSizing,omitempty"`
}
