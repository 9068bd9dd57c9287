package stats_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/adflow/adflow/internal/flow"
	"github.com/adflow/adflow/internal/stats"
)

func intPtr(v int) *int { return &v }

func TestHashSessionID_KnownValues(t *testing.T) {
	tests := []struct {
		id   string
		want int
	}{
		{id: "", want: 0},
		{id: "abc", want: 54},
		{id: "session-123456789", want: 42},
		{id: "ñandú-😀", want: 28},
	}
	for _, tt := range tests {
		if got := stats.HashSessionID(tt.id); got != tt.want {
			t.Errorf("HashSessionID(%q) = %d, want %d", tt.id, got, tt.want)
		}
	}
}

func TestAssign_Stable(t *testing.T) {
	split := flow.TrafficSplit{Progressive: intPtr(40), Minimal: intPtr(40)}
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("visitor-%d", i)
		first := stats.Assign(id, split)
		for j := 0; j < 3; j++ {
			if got := stats.Assign(id, split); got != first {
				t.Fatalf("Assign(%q) changed from %s to %s", id, first, got)
			}
		}
	}
}

func TestAssign_BucketBoundaries(t *testing.T) {
	// "abc" hashes to bucket 54.
	tests := []struct {
		split flow.TrafficSplit
		want  flow.Type
	}{
		{split: flow.TrafficSplit{}, want: flow.TypeMinimal},
		{split: flow.TrafficSplit{Progressive: intPtr(55)}, want: flow.TypeProgressive},
		{split: flow.TrafficSplit{Progressive: intPtr(54), Minimal: intPtr(0)}, want: flow.TypeFrontLoaded},
		{split: flow.TrafficSplit{Progressive: intPtr(0), Minimal: intPtr(55)}, want: flow.TypeMinimal},
		{split: flow.TrafficSplit{Progressive: intPtr(100)}, want: flow.TypeProgressive},
	}
	for _, tt := range tests {
		if got := stats.Assign("abc", tt.split); got != tt.want {
			t.Errorf("split %+v: got %s, want %s", tt.split, got, tt.want)
		}
	}
}

func TestAssign_DistributionMatchesSplit(t *testing.T) {
	tests := []struct {
		name  string
		split flow.TrafficSplit
		want  map[flow.Type]float64
	}{
		{
			name:  "default",
			split: flow.TrafficSplit{},
			want:  map[flow.Type]float64{flow.TypeProgressive: 33, flow.TypeMinimal: 33, flow.TypeFrontLoaded: 34},
		},
		{
			name:  "50/25/25",
			split: flow.TrafficSplit{Progressive: intPtr(50), Minimal: intPtr(25), FrontLoaded: intPtr(25)},
			want:  map[flow.Type]float64{flow.TypeProgressive: 50, flow.TypeMinimal: 25, flow.TypeFrontLoaded: 25},
		},
	}

	const n = 10000
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counts := make(map[flow.Type]int)
			for i := 0; i < n; i++ {
				counts[stats.Assign(fmt.Sprintf("session-%d", i), tt.split)]++
			}
			for typ, pct := range tt.want {
				got := 100 * float64(counts[typ]) / n
				if math.Abs(got-pct) > 2 {
					t.Errorf("%s: got %.2f%%, want %.0f%% ± 2", typ, got, pct)
				}
			}
		})
	}
}
