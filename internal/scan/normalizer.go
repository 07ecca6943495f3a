package scan

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/optionscout/internal/domain"
)

// percentThreshold is the fraction-vs-percent cutoff. A value whose
// magnitude exceeds it is assumed to already be a percentage. The boundary
// is inherited from the engine contract and deliberately not "fixed": a
// genuine 1.4 (140%) return is indistinguishable from a 1.4 fraction
// without an upstream contract change.
const percentThreshold = 1.5

// defaultMaxLossPercent represents "can lose the full premium".
const defaultMaxLossPercent = 100.0

// NormalizePercent coerces a fraction-or-percent value onto the 0-100
// scale: |v| > 1.5 is treated as already a percentage, everything else is
// multiplied by 100. Idempotent for already-normalized values.
func NormalizePercent(v float64) float64 {
	if math.Abs(v) > percentThreshold {
		return v
	}
	return v * 100
}

// DecodeOpportunities unpacks the extracted payload into raw records plus
// the engine-reported evaluated count. The payload may be a bare array of
// records or an object carrying an "opportunities" array.
func DecodeOpportunities(payload json.RawMessage) ([]map[string]any, int, bool) {
	var records []map[string]any

	if err := json.Unmarshal(payload, &records); err == nil {
		return records, len(records), true
	}

	var doc struct {
		Opportunities  []map[string]any `json:"opportunities"`
		TotalEvaluated *int             `json:"totalEvaluated"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil || doc.Opportunities == nil {
		return nil, 0, false
	}

	total := len(doc.Opportunities)
	if doc.TotalEvaluated != nil && *doc.TotalEvaluated > 0 {
		total = *doc.TotalEvaluated
	}
	return doc.Opportunities, total, true
}

// NormalizeOpportunity coerces one raw engine record into a canonical
// Opportunity. Returns ok=false when the record is rejected: missing
// symbol, or a probability of profit that normalizes to <= 0 (a degenerate
// candidate, dropped by design rather than erroring the batch).
func NormalizeOpportunity(raw map[string]any, now time.Time) (*domain.Opportunity, bool) {
	symbol := stringField(raw, "symbol", "ticker")
	if symbol == "" {
		return nil, false
	}

	opp := &domain.Opportunity{
		Symbol:          strings.ToUpper(symbol),
		OptionType:      optionTypeField(raw),
		Strike:          floatOr(raw, 0, "strike", "strikePrice", "strike_price"),
		Expiration:      stringField(raw, "expiration", "expirationDate", "expiry"),
		Bid:             floatOr(raw, 0, "bid"),
		Ask:             floatOr(raw, 0, "ask"),
		LastPrice:       floatOr(raw, 0, "lastPrice", "last", "premium"),
		Volume:          int64(floatOr(raw, 0, "volume")),
		OpenInterest:    int64(floatOr(raw, 0, "openInterest", "open_interest")),
		ImpliedVol:      floatOr(raw, 0, "impliedVolatility", "iv"),
		UnderlyingPrice: floatOr(raw, 0, "underlyingPrice", "stockPrice", "underlying_price"),
		Score:           floatOr(raw, 0, "score", "compositeScore"),
		Reasoning:       stringField(raw, "reasoning", "rationale"),
		Catalysts:       stringListField(raw, "catalysts"),
		Patterns:        stringListField(raw, "patterns"),
	}

	// Percent-bearing fields arrive as either fractions or percentages.
	opp.ProbabilityOfProfit = percentPtr(raw, "probabilityOfProfit", "pop", "probability_of_profit")
	if opp.ProbabilityOfProfit != nil && *opp.ProbabilityOfProfit <= 0 {
		return nil, false
	}
	opp.BreakevenMovePercent = percentPtr(raw, "breakevenMovePercent", "breakeven_move_percent")
	opp.PotentialReturn = percentPtr(raw, "potentialReturn", "potential_return")
	opp.MaxReturn = percentPtr(raw, "maxReturn", "max_return")
	opp.ExpectedMoveReturn = percentPtr(raw, "expectedMoveReturn", "expected_move_return")

	if maxLoss := percentPtr(raw, "maxLossPercent", "maxLoss", "max_loss_percent"); maxLoss != nil {
		opp.MaxLossPercent = *maxLoss
	} else {
		opp.MaxLossPercent = defaultMaxLossPercent
	}

	// Unit-less scoring inputs pass through without percent coercion.
	opp.RiskAdjustedScore = floatPtr(raw, "riskAdjustedScore", "risk_adjusted_score")
	opp.EnhancedExpectedValue = floatPtr(raw, "enhancedExpectedValue", "enhanced_expected_value")

	opp.Greeks = normalizeGreeks(raw, opp, now)
	opp.ReturnsByMove = normalizeMoveScenarios(raw)
	opp.PositionSizing = positionSizingField(raw)

	return opp, true
}

// NormalizeBatch applies NormalizeOpportunity to every record, silently
// dropping rejects.
func NormalizeBatch(records []map[string]any, now time.Time) []domain.Opportunity {
	out := make([]domain.Opportunity, 0, len(records))
	for _, raw := range records {
		if opp, ok := NormalizeOpportunity(raw, now); ok {
			out = append(out, *opp)
		}
	}
	return out
}

// normalizeGreeks passes well-formed engine Greeks through unchanged and
// synthesizes the rest. Synthesis is a gap-filler, not an override.
func normalizeGreeks(raw map[string]any, opp *domain.Opportunity, now time.Time) domain.Greeks {
	source := raw
	if nested, ok := raw["greeks"].(map[string]any); ok {
		source = nested
	}

	delta := floatPtr(source, "delta")
	gamma := floatPtr(source, "gamma")
	theta := floatPtr(source, "theta")
	vega := floatPtr(source, "vega")

	if delta != nil && gamma != nil && theta != nil && vega != nil {
		g := domain.Greeks{Delta: *delta, Gamma: *gamma, Theta: *theta, Vega: *vega}
		if g.IsComplete() {
			return g
		}
	}

	return SynthesizeGreeks(opp.OptionType, opp.UnderlyingPrice, opp.Strike, opp.ImpliedVol, opp.Expiration, now)
}

// normalizeMoveScenarios re-applies percent normalization to each
// per-scenario return. Malformed entries are dropped individually.
func normalizeMoveScenarios(raw map[string]any) []domain.MoveScenario {
	list, ok := raw["returnsByMove"].([]any)
	if !ok {
		if list, ok = raw["returns_by_move"].([]any); !ok {
			return nil
		}
	}

	out := make([]domain.MoveScenario, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		move, moveOK := coerceFloat(firstValue(m, "movePercent", "move", "move_percent"))
		ret, retOK := coerceFloat(firstValue(m, "returnPercent", "return", "return_percent"))
		if !moveOK || !retOK {
			continue
		}
		out = append(out, domain.MoveScenario{
			MovePercent:   NormalizePercent(move),
			ReturnPercent: NormalizePercent(ret),
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func positionSizingField(raw map[string]any) *domain.PositionSizing {
	m, ok := raw["positionSizing"].(map[string]any)
	if !ok {
		if m, ok = raw["position_sizing"].(map[string]any); !ok {
			return nil
		}
	}

	contracts, ok := coerceFloat(firstValue(m, "contracts", "quantity"))
	if !ok || contracts <= 0 {
		return nil
	}
	capital, _ := coerceFloat(firstValue(m, "capitalRequired", "capital_required"))
	maxRisk, _ := coerceFloat(firstValue(m, "maxRiskPercent", "max_risk_percent"))

	return &domain.PositionSizing{
		Contracts:       int(contracts),
		CapitalRequired: capital,
		MaxRiskPercent:  NormalizePercent(maxRisk),
		Source:          "engine",
	}
}

func optionTypeField(raw map[string]any) domain.OptionType {
	s := strings.ToLower(stringField(raw, "optionType", "option_type", "type", "right"))
	switch s {
	case "put", "p":
		return domain.OptionTypePut
	default:
		return domain.OptionTypeCall
	}
}

// --- loosely-typed field coercion helpers ---

func firstValue(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			return v
		}
	}
	return nil
}

// coerceFloat accepts the numeric shapes a JS-emitting engine produces:
// JSON numbers and numeric strings. Non-finite values are rejected.
func coerceFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, false
		}
		return val, true
	case int:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func floatOr(raw map[string]any, fallback float64, keys ...string) float64 {
	for _, k := range keys {
		if f, ok := coerceFloat(raw[k]); ok {
			return f
		}
	}
	return fallback
}

func floatPtr(raw map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		if f, ok := coerceFloat(raw[k]); ok {
			return &f
		}
	}
	return nil
}

func percentPtr(raw map[string]any, keys ...string) *float64 {
	f := floatPtr(raw, keys...)
	if f == nil {
		return nil
	}
	normalized := NormalizePercent(*f)
	return &normalized
}

func stringField(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func stringListField(raw map[string]any, key string) []string {
	list, ok := raw[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
