package stats

import (
	"fmt"
	"sort"

	"github.com/adflow/adflow/internal/flow"
)

const (
	leadingConfidence  = 70
	tooCloseConfidence = 30
	// leadMargin is the completion-rate lead, in percentage points, needed
	// to call a variant "leading" without significance.
	leadMargin = 5.0
)

// Recommendation is the engine's verdict on an experiment. WinningFlow is
// set when a variant wins or leads.
type Recommendation struct {
	WinningFlow    *flow.Type `json:"winningFlow"`
	Confidence     float64    `json:"confidence"`
	Recommendation string     `json:"recommendation"`
	SessionsNeeded int        `json:"sessionsNeeded"`
}

// Recommend synthesizes a recommendation from aggregated results. No
// winner is declared until totalSessions reaches minSampleSize.
func Recommend(results []FlowResult, totalSessions, minSampleSize int, confidence float64) Recommendation {
	if confidence <= 0 || confidence >= 1 {
		confidence = DefaultConfidenceLevel
	}

	if totalSessions < minSampleSize || len(results) == 0 {
		needed := minSampleSize - totalSessions
		if needed < 0 {
			needed = 0
		}
		return Recommendation{
			Recommendation: fmt.Sprintf("Need %d more sessions to reach the minimum sample size of %d", needed, minSampleSize),
			SessionsNeeded: needed,
		}
	}

	byCompletion := append([]FlowResult(nil), results...)
	sort.SliceStable(byCompletion, func(i, j int) bool {
		return byCompletion[i].CompletionRate > byCompletion[j].CompletionRate
	})
	best := byCompletion[0]

	byScore := append([]FlowResult(nil), results...)
	sort.SliceStable(byScore, func(i, j int) bool {
		return byScore[i].Score() > byScore[j].Score()
	})
	top := byScore[0]

	if best.PValue < 1-confidence {
		winner := top.FlowType
		conf := (1 - best.PValue) * 100
		return Recommendation{
			WinningFlow:    &winner,
			Confidence:     conf,
			Recommendation: fmt.Sprintf("%s flow is the winner with %.1f%% confidence", winner, conf),
		}
	}

	var lead float64
	if len(byCompletion) > 1 {
		lead = best.CompletionRate - byCompletion[1].CompletionRate
	} else {
		lead = best.CompletionRate
	}

	if lead > leadMargin {
		leading := best.FlowType
		return Recommendation{
			WinningFlow: &leading,
			Confidence:  leadingConfidence,
			Recommendation: fmt.Sprintf("%s flow is leading by %.1f points but is not yet statistically significant; keep the experiment running",
				leading, lead),
		}
	}

	return Recommendation{
		Confidence:     tooCloseConfidence,
		Recommendation: "Results are too close to call; keep the experiment running",
	}
}
