package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/optionscout/internal/domain"
)

var greeksNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestSynthesizeGreeks_ATMCall(t *testing.T) {
	// ATM call, 90 days out, 30% vol: delta a bit above 0.5, positive
	// gamma/vega, negative theta.
	g := SynthesizeGreeks(domain.OptionTypeCall, 100, 100, 0.30, "2025-08-30", greeksNow)

	assert.True(t, g.IsComplete())
	assert.InDelta(t, 0.55, g.Delta, 0.05)
	assert.Greater(t, g.Gamma, 0.0)
	assert.Less(t, g.Theta, 0.0)
	assert.Greater(t, g.Vega, 0.0)
}

func TestSynthesizeGreeks_ATMPut(t *testing.T) {
	g := SynthesizeGreeks(domain.OptionTypePut, 100, 100, 0.30, "2025-08-30", greeksNow)

	assert.True(t, g.IsComplete())
	assert.InDelta(t, -0.45, g.Delta, 0.05)
	assert.Greater(t, g.Gamma, 0.0)
	assert.Greater(t, g.Vega, 0.0)
}

func TestSynthesizeGreeks_DeepITMCallDeltaNearOne(t *testing.T) {
	g := SynthesizeGreeks(domain.OptionTypeCall, 200, 100, 0.25, "2025-07-01", greeksNow)

	assert.True(t, g.IsComplete())
	assert.Greater(t, g.Delta, 0.95)
}

func TestSynthesizeGreeks_DegenerateInputsStayFinite(t *testing.T) {
	cases := []struct {
		name                            string
		underlying, strike, iv          float64
		expiration                      string
	}{
		{"zero underlying", 0, 100, 0.3, "2025-08-30"},
		{"zero strike", 100, 0, 0.3, "2025-08-30"},
		{"zero vol", 100, 100, 0, "2025-08-30"},
		{"negative vol", 100, 100, -0.2, "2025-08-30"},
		{"expired", 100, 100, 0.3, "2024-01-01"},
		{"unparseable expiration", 100, 100, 0.3, "soon"},
		{"empty expiration", 100, 100, 0.3, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, optType := range []domain.OptionType{domain.OptionTypeCall, domain.OptionTypePut} {
				g := SynthesizeGreeks(optType, tc.underlying, tc.strike, tc.iv, tc.expiration, greeksNow)
				assert.True(t, g.IsComplete(), "greeks must always be finite")
			}
		})
	}
}

func TestSynthesizeGreeks_PutDefaultDeltaIsNegative(t *testing.T) {
	g := SynthesizeGreeks(domain.OptionTypePut, 0, 0, 0, "", greeksNow)
	assert.Equal(t, -0.5, g.Delta)

	g = SynthesizeGreeks(domain.OptionTypeCall, 0, 0, 0, "", greeksNow)
	assert.Equal(t, 0.5, g.Delta)
}

func TestYearsToExpiry(t *testing.T) {
	assert.InDelta(t, 90.0/365.0, yearsToExpiry("2025-08-30", greeksNow), 0.001)
	assert.Equal(t, 0.0, yearsToExpiry("2025-05-01", greeksNow), "past date")
	assert.Equal(t, 0.0, yearsToExpiry("garbage", greeksNow))
}
