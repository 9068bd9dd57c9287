package stats

import (
	"fmt"
	"math"
)

// PValueMode selects how per-variant p-values are computed.
type PValueMode string

const (
	// ModeHeuristic keeps the lenient proxy the dashboard was built on:
	// 0.5 below the minimum sample, otherwise max(0.01, 1-confidence). It
	// ignores the observed difference between variants.
	ModeHeuristic PValueMode = "heuristic"
	// ModeZTest runs a pooled two-proportion z-test against the closest
	// competing variant.
	ModeZTest PValueMode = "ztest"
)

func ParsePValueMode(s string) (PValueMode, error) {
	switch PValueMode(s) {
	case "", ModeHeuristic:
		return ModeHeuristic, nil
	case ModeZTest:
		return ModeZTest, nil
	}
	return "", fmt.Errorf("unknown p-value mode %q (want heuristic or ztest)", s)
}

// DefaultConfidenceLevel is used when an experiment does not set one.
const DefaultConfidenceLevel = 0.95

// minSessionsForSignificance is the sample below which no variant is
// considered significant.
const minSessionsForSignificance = 30

// ZScore returns the two-sided critical value for the supported confidence
// levels. Anything other than 0.90 or 0.99 uses the 95% value.
func ZScore(confidence float64) float64 {
	switch {
	case approxEqual(confidence, 0.90):
		return 1.645
	case approxEqual(confidence, 0.99):
		return 2.58
	default:
		return 1.96
	}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// ConfidenceInterval bounds a completion rate, in percent.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// NormalInterval computes r ± z·sqrt(r(1-r)/n) for the conversion rate of
// successes out of trials, returned in percent and clamped to [0, 100].
func NormalInterval(successes, trials int, confidence float64) ConfidenceInterval {
	if trials <= 0 {
		return ConfidenceInterval{}
	}
	r := float64(successes) / float64(trials)
	se := math.Sqrt(r * (1 - r) / float64(trials))
	margin := ZScore(confidence) * se

	return ConfidenceInterval{
		Lower: math.Max(0, r-margin) * 100,
		Upper: math.Min(1, r+margin) * 100,
	}
}

// HeuristicPValue is the placeholder significance proxy. It does not look
// at the data beyond the sample size.
func HeuristicPValue(sessions int, confidence float64) float64 {
	if sessions < minSessionsForSignificance {
		return 0.5
	}
	return math.Max(0.01, 1-confidence)
}

// TwoProportionPValue performs a pooled two-proportion z-test and returns
// the two-sided p-value for the difference between A and B.
func TwoProportionPValue(aConv, aViews, bConv, bViews int) float64 {
	if aViews == 0 || bViews == 0 {
		return 1
	}

	pA := float64(aConv) / float64(aViews)
	pB := float64(bConv) / float64(bViews)

	// Pooled proportion under the null hypothesis pA = pB
	pooled := float64(aConv+bConv) / float64(aViews+bViews)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(aViews) + 1/float64(bViews)))

	if se == 0 {
		if pA == pB {
			return 1
		}
		return 0
	}

	z := (pA - pB) / se
	return 2 * (1 - normalCDF(math.Abs(z)))
}

// normalCDF approximates the standard normal CDF
// (Abramowitz and Stegun, formula 7.1.26).
func normalCDF(x float64) float64 {
	a1 := 0.254829592
	a2 := -0.284496736
	a3 := 1.421413741
	a4 := -1.453152027
	a5 := 1.061405429
	p := 0.3275911

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt(2)

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}
