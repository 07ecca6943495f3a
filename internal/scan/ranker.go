package scan

import (
	"sort"

	"github.com/aristath/optionscout/internal/domain"
)

// MaxRankedResults bounds the response size.
const MaxRankedResults = 20

// Scoring blend weights. When a positive enhanced expected value is
// available it carries real signal and gets the heavier secondary weight.
const (
	eevScoreWeight  = 0.6
	eevValueWeight  = 0.4
	probScoreWeight = 0.7
	probValueWeight = 0.3
)

// RankOpportunities sorts a normalized batch descending by composite key
// and truncates it to MaxRankedResults. The sort is stable: equal-key
// entries keep their relative input order. The input slice is not mutated.
func RankOpportunities(batch []domain.Opportunity) []domain.Opportunity {
	ranked := make([]domain.Opportunity, len(batch))
	copy(ranked, batch)

	sort.SliceStable(ranked, func(i, j int) bool {
		return CompositeKey(ranked[i]) > CompositeKey(ranked[j])
	})

	if len(ranked) > MaxRankedResults {
		ranked = ranked[:MaxRankedResults]
	}
	return ranked
}

// CompositeKey computes the "most promising" ordering key:
//
//   - base: risk-adjusted score when present, raw score otherwise
//   - with a positive enhanced expected value: 0.6*base + 0.4*eev
//   - otherwise: 0.7*base + 0.3*probability-weighted expected return,
//     where the expected return is the expected-move return or, absent
//     that, the potential return
//
// Missing numeric inputs default to 0 so incomplete records sort last
// instead of erroring.
func CompositeKey(o domain.Opportunity) float64 {
	base := o.Score
	if o.RiskAdjustedScore != nil {
		base = *o.RiskAdjustedScore
	}

	if o.EnhancedExpectedValue != nil && *o.EnhancedExpectedValue > 0 {
		return eevScoreWeight*base + eevValueWeight*(*o.EnhancedExpectedValue)
	}

	prob := 0.0
	if o.ProbabilityOfProfit != nil {
		prob = *o.ProbabilityOfProfit / 100
	}
	expectedReturn := 0.0
	if o.ExpectedMoveReturn != nil {
		expectedReturn = *o.ExpectedMoveReturn
	} else if o.PotentialReturn != nil {
		expectedReturn = *o.PotentialReturn
	}

	return probScoreWeight*base + probValueWeight*prob*expectedReturn
}
