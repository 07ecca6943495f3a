package scan

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/optionscout/internal/domain"
)

// riskFreeRate is the annualized rate used by the closed-form fallback.
const riskFreeRate = 0.045

// daysPerYear converts the time-to-expiry into year fractions.
const daysPerYear = 365.0

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// SynthesizeGreeks derives delta/gamma/theta/vega from the Black-Scholes
// closed form using the contract's strike, expiration, implied volatility,
// underlying price and option type. It is a gap-filler for records the
// engine emitted without sensitivities; downstream consumers must never
// observe missing Greeks.
//
// Degenerate inputs (expired contract, zero vol, non-positive prices) fall
// back to conservative finite defaults instead of producing NaN/Inf.
func SynthesizeGreeks(optionType domain.OptionType, underlying, strike, impliedVol float64, expiration string, now time.Time) domain.Greeks {
	t := yearsToExpiry(expiration, now)

	if underlying <= 0 || strike <= 0 || impliedVol <= 0 || t <= 0 {
		return defaultGreeks(optionType)
	}

	sqrtT := math.Sqrt(t)
	d1 := (math.Log(underlying/strike) + (riskFreeRate+impliedVol*impliedVol/2)*t) / (impliedVol * sqrtT)
	d2 := d1 - impliedVol*sqrtT

	pdfD1 := stdNormal.Prob(d1)
	discount := math.Exp(-riskFreeRate * t)

	var delta, theta float64
	if optionType == domain.OptionTypePut {
		delta = stdNormal.CDF(d1) - 1
		theta = (-underlying*pdfD1*impliedVol/(2*sqrtT) + riskFreeRate*strike*discount*stdNormal.CDF(-d2)) / daysPerYear
	} else {
		delta = stdNormal.CDF(d1)
		theta = (-underlying*pdfD1*impliedVol/(2*sqrtT) - riskFreeRate*strike*discount*stdNormal.CDF(d2)) / daysPerYear
	}

	gamma := pdfD1 / (underlying * impliedVol * sqrtT)
	vega := underlying * pdfD1 * sqrtT / 100 // per 1% vol move

	g := domain.Greeks{Delta: delta, Gamma: gamma, Theta: theta, Vega: vega}
	if !g.IsComplete() {
		return defaultGreeks(optionType)
	}
	return g
}

// defaultGreeks is the last-resort finite placeholder: an at-the-money-ish
// delta with flat second-order sensitivities.
func defaultGreeks(optionType domain.OptionType) domain.Greeks {
	delta := 0.5
	if optionType == domain.OptionTypePut {
		delta = -0.5
	}
	return domain.Greeks{Delta: delta, Gamma: 0, Theta: 0, Vega: 0}
}

// yearsToExpiry parses the contract expiration date and returns the year
// fraction from now. Unparseable or past dates return 0.
func yearsToExpiry(expiration string, now time.Time) float64 {
	if expiration == "" {
		return 0
	}

	var exp time.Time
	var err error
	for _, layout := range []string{"2006-01-02", time.RFC3339, "01/02/2006"} {
		exp, err = time.Parse(layout, expiration)
		if err == nil {
			break
		}
	}
	if err != nil {
		return 0
	}

	days := exp.Sub(now).Hours() / 24
	if days <= 0 {
		return 0
	}
	return days / daysPerYear
}
