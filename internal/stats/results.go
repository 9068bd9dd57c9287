package stats

import (
	"github.com/shopspring/decimal"

	"github.com/adflow/adflow/internal/flow"
)

// SessionOutcome is the slice of a recorded A/B session the engine needs.
type SessionOutcome struct {
	FlowType          flow.Type
	QuestionsAnswered int
	AdsShown          int
	AdsClicked        int
	CompletedFlow     bool
	Abandoned         bool
	ConversionValue   decimal.Decimal
	TimeSpent         int
}

// FlowResult aggregates every session of one flow variant. Rates are
// percentages.
type FlowResult struct {
	FlowType             flow.Type          `json:"flowType"`
	Sessions             int                `json:"sessions"`
	Completions          int                `json:"completions"`
	CompletionRate       float64            `json:"completionRate"`
	AvgQuestionsAnswered float64            `json:"avgQuestionsAnswered"`
	AvgAdsShown          float64            `json:"avgAdsShown"`
	TotalAdsClicked      int                `json:"totalAdsClicked"`
	ClickThroughRate     float64            `json:"clickThroughRate"`
	TotalRevenue         decimal.Decimal    `json:"totalRevenue"`
	RevenuePerSession    decimal.Decimal    `json:"revenuePerSession"`
	AvgTimeSpent         float64            `json:"avgTimeSpent"`
	Abandonments         int                `json:"abandonments"`
	ConfidenceInterval   ConfidenceInterval `json:"confidenceInterval"`
	PValue               float64            `json:"pValue"`
	IsSignificant        bool               `json:"isSignificant"`
}

type totals struct {
	questions int
	ads       int
	seconds   int
}

// Aggregate groups sessions by flow type. The result always holds the three
// flow types in bucket order, zero-filled when a variant has no sessions.
func Aggregate(sessions []SessionOutcome, confidence float64, mode PValueMode) ([]FlowResult, int) {
	if confidence <= 0 || confidence >= 1 {
		confidence = DefaultConfidenceLevel
	}

	results := make([]FlowResult, len(flow.Types))
	sums := make([]totals, len(flow.Types))
	index := make(map[flow.Type]int, len(flow.Types))
	for i, t := range flow.Types {
		results[i] = FlowResult{FlowType: t, TotalRevenue: decimal.Zero, RevenuePerSession: decimal.Zero, PValue: 1}
		index[t] = i
	}

	total := 0
	for _, s := range sessions {
		i, ok := index[s.FlowType]
		if !ok {
			continue
		}
		total++
		r := &results[i]
		r.Sessions++
		if s.CompletedFlow {
			r.Completions++
		}
		if s.Abandoned {
			r.Abandonments++
		}
		sums[i].questions += s.QuestionsAnswered
		sums[i].ads += s.AdsShown
		sums[i].seconds += s.TimeSpent
		r.TotalAdsClicked += s.AdsClicked
		r.TotalRevenue = r.TotalRevenue.Add(s.ConversionValue)
	}

	for i := range results {
		r := &results[i]
		if r.Sessions == 0 {
			continue
		}
		n := float64(r.Sessions)
		r.CompletionRate = 100 * float64(r.Completions) / n
		r.AvgQuestionsAnswered = float64(sums[i].questions) / n
		r.AvgAdsShown = float64(sums[i].ads) / n
		r.AvgTimeSpent = float64(sums[i].seconds) / n
		if sums[i].ads > 0 {
			r.ClickThroughRate = 100 * float64(r.TotalAdsClicked) / float64(sums[i].ads)
		}
		r.RevenuePerSession = r.TotalRevenue.Div(decimal.NewFromInt(int64(r.Sessions)))
		r.ConfidenceInterval = NormalInterval(r.Completions, r.Sessions, confidence)
	}

	assignPValues(results, confidence, mode)
	return results, total
}

func assignPValues(results []FlowResult, confidence float64, mode PValueMode) {
	alpha := 1 - confidence

	leader := -1
	for i, r := range results {
		if r.Sessions > 0 && (leader < 0 || r.CompletionRate > results[leader].CompletionRate) {
			leader = i
		}
	}

	for i := range results {
		r := &results[i]
		if r.Sessions == 0 {
			continue
		}

		switch {
		case r.Sessions < minSessionsForSignificance:
			r.PValue = HeuristicPValue(r.Sessions, confidence)
		case mode == ModeZTest:
			rival := leader
			if i == leader {
				rival = runnerUp(results, leader)
			}
			r.PValue = 1
			if rival >= 0 {
				o := results[rival]
				r.PValue = TwoProportionPValue(r.Completions, r.Sessions, o.Completions, o.Sessions)
			}
		default:
			r.PValue = HeuristicPValue(r.Sessions, confidence)
		}
		r.IsSignificant = r.PValue < alpha
	}
}

// runnerUp is the variant with sessions and the highest completion rate
// other than skip, or -1.
func runnerUp(results []FlowResult, skip int) int {
	best := -1
	for i, r := range results {
		if i == skip || r.Sessions == 0 {
			continue
		}
		if best < 0 || r.CompletionRate > results[best].CompletionRate {
			best = i
		}
	}
	return best
}

// Score ranks variants for the recommendation: completion weighs 60% and
// revenue per session (scaled by 10) 40%.
func (r FlowResult) Score() float64 {
	return 0.6*r.CompletionRate + 0.4*(r.RevenuePerSession.InexactFloat64()*10)
}
