package stats_test

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/adflow/adflow/internal/flow"
	"github.com/adflow/adflow/internal/stats"
)

// outcomes builds n sessions of one flow type, the first completed of
// which finished the flow, each earning value.
func outcomes(typ flow.Type, n, completed int, value string) []stats.SessionOutcome {
	out := make([]stats.SessionOutcome, n)
	for i := range out {
		out[i] = stats.SessionOutcome{
			FlowType:          typ,
			QuestionsAnswered: 4,
			AdsShown:          2,
			CompletedFlow:     i < completed,
			ConversionValue:   decimal.RequireFromString(value),
			TimeSpent:         60,
		}
	}
	return out
}

func TestAggregate_ZeroFillsVariants(t *testing.T) {
	results, total := stats.Aggregate(outcomes(flow.TypeMinimal, 10, 5, "0"), 0.95, stats.ModeHeuristic)

	if total != 10 {
		t.Errorf("got total %d, want 10", total)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, want := range flow.Types {
		if results[i].FlowType != want {
			t.Errorf("result %d: got %s, want %s", i, results[i].FlowType, want)
		}
	}
	if results[0].Sessions != 0 || results[2].Sessions != 0 {
		t.Errorf("expected empty progressive and front_loaded, got %+v", results)
	}

	m := results[1]
	if m.CompletionRate != 50 {
		t.Errorf("got completion rate %f, want 50", m.CompletionRate)
	}
	if m.AvgQuestionsAnswered != 4 || m.AvgAdsShown != 2 || m.AvgTimeSpent != 60 {
		t.Errorf("unexpected averages: %+v", m)
	}
	if m.PValue != 0.5 || m.IsSignificant {
		t.Errorf("small sample should have p=0.5 and no significance, got %f %v", m.PValue, m.IsSignificant)
	}
}

func TestAggregate_RevenueIsExact(t *testing.T) {
	var sessions []stats.SessionOutcome
	for i := 0; i < 3; i++ {
		sessions = append(sessions, stats.SessionOutcome{FlowType: flow.TypeProgressive, ConversionValue: decimal.RequireFromString("0.10")})
	}
	results, _ := stats.Aggregate(sessions, 0.95, stats.ModeHeuristic)

	if !results[0].TotalRevenue.Equal(decimal.RequireFromString("0.30")) {
		t.Errorf("got total revenue %s, want 0.30", results[0].TotalRevenue)
	}
	if !results[0].RevenuePerSession.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("got revenue per session %s, want 0.1", results[0].RevenuePerSession)
	}
}

func TestAggregate_ZTestFlagsRealDifference(t *testing.T) {
	var sessions []stats.SessionOutcome
	sessions = append(sessions, outcomes(flow.TypeProgressive, 1000, 600, "0")...)
	sessions = append(sessions, outcomes(flow.TypeMinimal, 1000, 400, "0")...)

	heuristic, _ := stats.Aggregate(sessions, 0.95, stats.ModeHeuristic)
	if heuristic[0].IsSignificant {
		t.Error("heuristic p-value should never clear its own threshold")
	}

	ztest, _ := stats.Aggregate(sessions, 0.95, stats.ModeZTest)
	if !ztest[0].IsSignificant || ztest[0].PValue > 0.001 {
		t.Errorf("expected progressive to be significant, got p=%f", ztest[0].PValue)
	}
	if ztest[2].PValue != 1 || ztest[2].IsSignificant {
		t.Errorf("empty variant should keep p=1, got %+v", ztest[2])
	}
}

func TestRecommend_InsufficientData(t *testing.T) {
	results, total := stats.Aggregate(outcomes(flow.TypeMinimal, 40, 20, "0"), 0.95, stats.ModeHeuristic)
	rec := stats.Recommend(results, total, 100, 0.95)

	if rec.WinningFlow != nil {
		t.Errorf("expected no winner, got %s", *rec.WinningFlow)
	}
	if rec.SessionsNeeded != 60 {
		t.Errorf("got sessions needed %d, want 60", rec.SessionsNeeded)
	}
	if !strings.Contains(rec.Recommendation, "60 more sessions") {
		t.Errorf("unexpected message %q", rec.Recommendation)
	}
}

func TestRecommend_LeadingNotSignificant(t *testing.T) {
	var sessions []stats.SessionOutcome
	sessions = append(sessions, outcomes(flow.TypeProgressive, 100, 70, "0")...)
	sessions = append(sessions, outcomes(flow.TypeMinimal, 100, 60, "0")...)
	sessions = append(sessions, outcomes(flow.TypeFrontLoaded, 100, 50, "0")...)

	results, total := stats.Aggregate(sessions, 0.95, stats.ModeHeuristic)
	rec := stats.Recommend(results, total, 100, 0.95)

	if rec.Confidence != 70 {
		t.Errorf("got confidence %f, want 70", rec.Confidence)
	}
	if rec.WinningFlow == nil || *rec.WinningFlow != flow.TypeProgressive {
		t.Errorf("expected progressive to lead, got %v", rec.WinningFlow)
	}
}

func TestRecommend_TooClose(t *testing.T) {
	var sessions []stats.SessionOutcome
	sessions = append(sessions, outcomes(flow.TypeProgressive, 100, 62, "0")...)
	sessions = append(sessions, outcomes(flow.TypeMinimal, 100, 60, "0")...)

	results, total := stats.Aggregate(sessions, 0.95, stats.ModeHeuristic)
	rec := stats.Recommend(results, total, 100, 0.95)

	if rec.Confidence != 30 {
		t.Errorf("got confidence %f, want 30", rec.Confidence)
	}
	if rec.WinningFlow != nil {
		t.Errorf("expected no winner, got %s", *rec.WinningFlow)
	}
}

func TestRecommend_SignificantWinnerUsesWeightedScore(t *testing.T) {
	var sessions []stats.SessionOutcome
	// Progressive completes more often; minimal earns far more per session.
	sessions = append(sessions, outcomes(flow.TypeProgressive, 1000, 700, "0.10")...)
	sessions = append(sessions, outcomes(flow.TypeMinimal, 1000, 500, "10.00")...)

	results, total := stats.Aggregate(sessions, 0.95, stats.ModeZTest)
	rec := stats.Recommend(results, total, 100, 0.95)

	if rec.WinningFlow == nil || *rec.WinningFlow != flow.TypeMinimal {
		t.Fatalf("expected minimal to win on score, got %v", rec.WinningFlow)
	}
	if rec.Confidence < 99 {
		t.Errorf("got confidence %f, want >= 99", rec.Confidence)
	}
}
