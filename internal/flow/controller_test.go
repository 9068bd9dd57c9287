package flow_test

import (
	"reflect"
	"testing"

	"github.com/adflow/adflow/internal/flow"
)

func makeQuestions(n int) []flow.Question {
	qs := make([]flow.Question, n)
	for i := range qs {
		qs[i] = flow.Question{ID: string(rune('a' + i)), Text: "Question", Type: "text"}
	}
	return qs
}

// drive runs the controller the way the UI does: ask for an action, then
// report it as completed, until the flow completes.
func drive(t *testing.T, c *flow.Controller) []flow.Action {
	t.Helper()
	var actions []flow.Action
	for i := 0; i < 100; i++ {
		a := c.NextAction()
		actions = append(actions, a)
		switch a {
		case flow.ActionEmailCapture:
			c.CompleteEmailCapture()
		case flow.ActionPersonalInfo:
			c.CompletePersonalInfo()
		case flow.ActionQuestion:
			c.CompleteQuestion()
		case flow.ActionAd:
			c.CompleteAd()
		case flow.ActionComplete:
			return actions
		}
	}
	t.Fatalf("flow did not complete: %v", actions)
	return nil
}

func TestController_MinimalInterleave(t *testing.T) {
	cfg := flow.Config{Type: flow.TypeMinimal, QuestionsPerAd: 1, MaxQuestions: 4, MaxAds: 4}
	c := flow.NewController(cfg, makeQuestions(4), nil)

	got := drive(t, c)
	want := []flow.Action{
		flow.ActionQuestion, flow.ActionAd,
		flow.ActionQuestion, flow.ActionAd,
		flow.ActionQuestion, flow.ActionAd,
		flow.ActionQuestion, flow.ActionAd,
		flow.ActionComplete,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestController_ProgressiveBatching(t *testing.T) {
	cfg := flow.Config{Type: flow.TypeProgressive, QuestionsPerAd: 2, MaxQuestions: 6, MaxAds: 3}
	c := flow.NewController(cfg, makeQuestions(8), nil)

	got := drive(t, c)
	want := []flow.Action{
		flow.ActionQuestion, flow.ActionQuestion, flow.ActionAd,
		flow.ActionQuestion, flow.ActionQuestion, flow.ActionAd,
		flow.ActionQuestion, flow.ActionQuestion, flow.ActionAd,
		flow.ActionComplete,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestController_FrontLoaded(t *testing.T) {
	cfg := flow.Config{Type: flow.TypeFrontLoaded, QuestionsPerAd: 2, MaxQuestions: 3, MaxAds: 2}
	c := flow.NewController(cfg, makeQuestions(5), nil)

	got := drive(t, c)
	want := []flow.Action{
		flow.ActionQuestion, flow.ActionQuestion, flow.ActionQuestion,
		flow.ActionAd, flow.ActionAd,
		flow.ActionComplete,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestController_EmailCaptureFirst(t *testing.T) {
	cfg := flow.DefaultConfig()
	c := flow.NewController(cfg, makeQuestions(2), nil)

	if got := c.NextAction(); got != flow.ActionEmailCapture {
		t.Fatalf("got %s, want email_capture", got)
	}
	// Asking again without completing does not advance.
	if got := c.NextAction(); got != flow.ActionEmailCapture {
		t.Fatalf("got %s, want email_capture", got)
	}
	// Completing the wrong step is a no-op.
	c.CompletePersonalInfo()
	if got := c.State().CurrentPhase; got != flow.PhaseEmailCapture {
		t.Errorf("got phase %s, want email_capture", got)
	}

	c.CompleteEmailCapture()
	if got := c.NextAction(); got != flow.ActionPersonalInfo {
		t.Fatalf("got %s, want personal_info", got)
	}
	c.CompletePersonalInfo()
	if got := c.NextAction(); got != flow.ActionQuestion {
		t.Fatalf("got %s, want question", got)
	}
}

func TestController_TerminalStability(t *testing.T) {
	cfg := flow.Config{Type: flow.TypeFrontLoaded, MaxQuestions: 1, MaxAds: 0}
	c := flow.NewController(cfg, makeQuestions(1), nil)
	drive(t, c)

	if !c.State().IsComplete {
		t.Fatal("expected session to be complete")
	}
	for i := 0; i < 5; i++ {
		c.CompleteQuestion()
		c.CompleteAd()
		if got := c.NextAction(); got != flow.ActionComplete {
			t.Fatalf("call %d: got %s, want complete", i, got)
		}
	}
	if got := c.State().QuestionsAnswered; got != 1 {
		t.Errorf("completions after the end changed state: questionsAnswered=%d", got)
	}
}

func TestController_DegenerateInput(t *testing.T) {
	tests := []struct {
		name string
		cfg  flow.Config
		n    int
		want []flow.Action
	}{
		{
			name: "no questions offers ads then completes",
			cfg:  flow.Config{Type: flow.TypeProgressive, QuestionsPerAd: 2, MaxQuestions: 6, MaxAds: 2},
			n:    0,
			want: []flow.Action{flow.ActionAd, flow.ActionAd, flow.ActionComplete},
		},
		{
			name: "max questions zero",
			cfg:  flow.Config{Type: flow.TypeMinimal, MaxQuestions: 0, MaxAds: 1},
			n:    3,
			want: []flow.Action{flow.ActionAd, flow.ActionComplete},
		},
		{
			name: "everything zero",
			cfg:  flow.Config{Type: flow.TypeFrontLoaded},
			n:    0,
			want: []flow.Action{flow.ActionComplete},
		},
		{
			name: "questions per ad zero behaves like front loaded",
			cfg:  flow.Config{Type: flow.TypeProgressive, QuestionsPerAd: 0, MaxQuestions: 2, MaxAds: 1},
			n:    2,
			want: []flow.Action{flow.ActionQuestion, flow.ActionQuestion, flow.ActionAd, flow.ActionComplete},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := flow.NewController(tt.cfg, makeQuestions(tt.n), nil)
			got := drive(t, c)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestController_EndToEndMinimalSite(t *testing.T) {
	cfg, err := flow.ParseConfig([]byte(`{"type":"minimal","questionsPerAd":1,"maxQuestions":2,"maxAds":2,"requireEmail":false}`))
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	c := flow.NewController(cfg, makeQuestions(2), nil)

	got := drive(t, c)
	want := []flow.Action{flow.ActionQuestion, flow.ActionAd, flow.ActionQuestion, flow.ActionAd, flow.ActionComplete}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	wantProgress := flow.Progress{
		QuestionsCompleted: 2,
		TotalQuestions:     2,
		AdsShown:           2,
		TotalAds:           2,
		CompletionRate:     100,
		Phase:              flow.PhaseAds,
	}
	if p := c.Progress(); p != wantProgress {
		t.Errorf("got progress %+v, want %+v", p, wantProgress)
	}
}

func TestController_ProgressMonotonic(t *testing.T) {
	for _, typ := range flow.Types {
		t.Run(string(typ), func(t *testing.T) {
			cfg := flow.Config{Type: typ, QuestionsPerAd: 2, MaxQuestions: 5, MaxAds: 3, RequireEmail: true}
			c := flow.NewController(cfg, makeQuestions(7), nil)

			last := c.Progress().CompletionRate
			for i := 0; i < 100; i++ {
				a := c.NextAction()
				switch a {
				case flow.ActionEmailCapture:
					c.CompleteEmailCapture()
				case flow.ActionPersonalInfo:
					c.CompletePersonalInfo()
				case flow.ActionQuestion:
					c.CompleteQuestion()
				case flow.ActionAd:
					c.CompleteAd()
				}
				rate := c.Progress().CompletionRate
				if rate < last {
					t.Fatalf("completion rate decreased from %d to %d after %s", last, rate, a)
				}
				last = rate
				if a == flow.ActionComplete {
					break
				}
			}
			if last != 100 {
				t.Errorf("got final completion rate %d, want 100", last)
			}
		})
	}
}

func TestController_CurrentQuestionFollowsOrder(t *testing.T) {
	qs := makeQuestions(3)
	cfg := flow.Config{Type: flow.TypeFrontLoaded, MaxQuestions: 2, MaxAds: 0}
	c := flow.NewController(cfg, qs, nil)

	q, ok := c.CurrentQuestion()
	if !ok || q.ID != "a" {
		t.Fatalf("got %v %v, want question a", q, ok)
	}
	c.CompleteQuestion()
	q, ok = c.CurrentQuestion()
	if !ok || q.ID != "b" {
		t.Fatalf("got %v %v, want question b", q, ok)
	}
	c.CompleteQuestion()
	if _, ok := c.CurrentQuestion(); ok {
		t.Error("expected no current question past maxQuestions")
	}
}

func TestController_SetStateRestoresSession(t *testing.T) {
	cfg := flow.Config{Type: flow.TypeProgressive, QuestionsPerAd: 2, MaxQuestions: 6, MaxAds: 3}
	first := flow.NewController(cfg, makeQuestions(6), nil)
	first.NextAction()
	first.CompleteQuestion()
	first.NextAction()
	first.CompleteQuestion()

	second := flow.NewController(cfg, makeQuestions(6), nil)
	second.SetState(first.State())
	if got := second.NextAction(); got != flow.ActionAd {
		t.Errorf("got %s, want ad after restoring a finished batch", got)
	}
}

func TestController_ResumeKeepsSnapshotOrder(t *testing.T) {
	cfg := flow.Config{Type: flow.TypeFrontLoaded, MaxQuestions: 3, MaxAds: 1}
	ordered := []flow.Question{{ID: "c"}, {ID: "a"}, {ID: "b"}}

	c := flow.ResumeController(cfg, ordered, flow.State{QuestionsAnswered: 1, CurrentPhase: flow.PhaseQuestions})
	if q, ok := c.CurrentQuestion(); !ok || q.ID != "a" {
		t.Errorf("got %+v, want question a", q)
	}
	if c.NextAction() != flow.ActionQuestion {
		t.Fatal("expected a question")
	}

	got := drive(t, c)
	want := []flow.Action{flow.ActionQuestion, flow.ActionQuestion, flow.ActionAd, flow.ActionComplete}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
