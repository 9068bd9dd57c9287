package flow_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/adflow/adflow/internal/flow"
)

func campaign(id int64, name, bid string, active bool, questionIDs ...string) flow.Campaign {
	targets := make([]flow.QuestionTarget, len(questionIDs))
	for i, id := range questionIDs {
		targets[i] = flow.QuestionTarget{QuestionID: id}
	}
	return flow.Campaign{
		ID:        id,
		Name:      name,
		Active:    active,
		CPCBid:    decimal.RequireFromString(bid),
		Targeting: flow.Targeting{Questions: targets},
	}
}

func questionIDs(qs []flow.Question) []string {
	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids
}

func TestGroupQuestions_NoCampaignsKeepsInputOrder(t *testing.T) {
	groups := flow.GroupQuestions(makeQuestions(4), nil)

	if len(groups) != 4 {
		t.Fatalf("got %d groups, want 4", len(groups))
	}
	for i, g := range groups {
		if g.CampaignID != 0 || g.CampaignName != "General" {
			t.Errorf("group %d: got campaign %d %q, want general", i, g.CampaignID, g.CampaignName)
		}
		if !g.Priority.Equal(decimal.NewFromInt(1)) {
			t.Errorf("group %d: got priority %s, want 1", i, g.Priority)
		}
	}

	got := questionIDs(flow.Flatten(groups, 10))
	want := []string{"a", "b", "c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got order %v, want %v", got, want)
	}
}

func TestGroupQuestions_HigherBidClaimsFirst(t *testing.T) {
	questions := makeQuestions(5) // a b c d e
	campaigns := []flow.Campaign{
		campaign(1, "Low", "0.50", true, "b", "c"),
		campaign(2, "High", "1.25", true, "c", "e"),
		campaign(3, "Inactive", "9.00", true),
		campaign(4, "Paused", "5.00", false, "a"),
	}

	groups := flow.GroupQuestions(questions, campaigns)

	if groups[0].CampaignID != 2 {
		t.Fatalf("got first group campaign %d, want 2", groups[0].CampaignID)
	}
	if got := questionIDs(groups[0].Questions); !reflect.DeepEqual(got, []string{"c", "e"}) {
		t.Errorf("high bid group got %v, want [c e]", got)
	}
	if !groups[0].Priority.Equal(decimal.NewFromInt(125)) {
		t.Errorf("got priority %s, want 125", groups[0].Priority)
	}

	if groups[1].CampaignID != 1 {
		t.Fatalf("got second group campaign %d, want 1", groups[1].CampaignID)
	}
	if got := questionIDs(groups[1].Questions); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("low bid group got %v, want [b] (c already claimed)", got)
	}

	got := questionIDs(flow.Flatten(groups, 10))
	want := []string{"c", "e", "b", "a", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got order %v, want %v", got, want)
	}
}

func TestGroupQuestions_FullyClaimedCampaignEmitsNoGroup(t *testing.T) {
	questions := makeQuestions(2)
	campaigns := []flow.Campaign{
		campaign(1, "High", "2", true, "a"),
		campaign(2, "Low", "1", true, "a"),
	}

	for _, g := range flow.GroupQuestions(questions, campaigns) {
		if g.CampaignID == 2 {
			t.Errorf("campaign 2 should not get a group, got %+v", g)
		}
	}
}

func TestGroupQuestions_Invariants(t *testing.T) {
	questions := makeQuestions(8)
	campaigns := []flow.Campaign{
		campaign(1, "One", "0.10", true, "a", "h", "zz"),
		campaign(2, "Two", "0.10", true, "b", "a"),
		campaign(3, "Three", "3.00", true, "g"),
		campaign(4, "Four", "0.005", true, "c"),
	}

	groups := flow.GroupQuestions(questions, campaigns)

	seen := make(map[string]int)
	for _, g := range groups {
		for _, q := range g.Questions {
			seen[q.ID]++
		}
	}
	for _, q := range questions {
		if seen[q.ID] != 1 {
			t.Errorf("question %s appears in %d groups, want 1", q.ID, seen[q.ID])
		}
	}
	if _, ok := seen["zz"]; ok {
		t.Error("targeted question missing from input must not be grouped")
	}

	for i := 0; i+1 < len(groups); i++ {
		if groups[i].Priority.LessThan(groups[i+1].Priority) {
			t.Errorf("groups %d and %d out of priority order: %s < %s", i, i+1, groups[i].Priority, groups[i+1].Priority)
		}
	}

	// Equal bids keep campaign order; the 0.005 bid ranks below general questions.
	got := questionIDs(flow.Flatten(groups, 100))
	want := []string{"g", "a", "h", "b", "d", "e", "f", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got order %v, want %v", got, want)
	}

	again := flow.GroupQuestions(questions, campaigns)
	if !reflect.DeepEqual(groups, again) {
		t.Error("grouping is not deterministic")
	}
}

func TestOrderQuestions_Truncates(t *testing.T) {
	tests := []struct {
		max  int
		n    int
		want int
	}{
		{max: 3, n: 5, want: 3},
		{max: 10, n: 5, want: 5},
		{max: 0, n: 5, want: 0},
	}
	for _, tt := range tests {
		got := flow.OrderQuestions(makeQuestions(tt.n), nil, tt.max)
		if len(got) != tt.want {
			t.Errorf("max=%d n=%d: got %d questions, want %d", tt.max, tt.n, len(got), tt.want)
		}
	}
}

func TestTargeting_RuleRoundTrip(t *testing.T) {
	raw := `{"questions":[{"questionId":"a"}],"rules":[
		{"type":"question","value":{"questionId":"b"}},
		{"type":"demographic","value":{"field":"age","values":["18-24"]}},
		{"type":"behavioral","value":{"event":"visit","minCount":3}},
		{"type":"custom","value":{"key":"segment","value":"vip"}}
	]}`

	var tg flow.Targeting
	if err := json.Unmarshal([]byte(raw), &tg); err != nil {
		t.Fatalf("failed to decode targeting: %v", err)
	}
	if len(tg.Rules) != 4 {
		t.Fatalf("got %d rules, want 4", len(tg.Rules))
	}
	if tg.Rules[1].Demographic == nil || tg.Rules[1].Demographic.Field != "age" {
		t.Errorf("demographic rule not decoded: %+v", tg.Rules[1])
	}
	if tg.Rules[2].Behavioral == nil || tg.Rules[2].Behavioral.MinCount != 3 {
		t.Errorf("behavioral rule not decoded: %+v", tg.Rules[2])
	}
	if got := tg.QuestionIDs(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("got question ids %v, want [a]", got)
	}
	if got := tg.ReferencedQuestionIDs(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("got referenced ids %v, want [a b]", got)
	}

	out, err := json.Marshal(tg)
	if err != nil {
		t.Fatalf("failed to encode targeting: %v", err)
	}
	var back flow.Targeting
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("failed to decode re-encoded targeting: %v", err)
	}
	if !reflect.DeepEqual(tg, back) {
		t.Errorf("targeting changed across encode/decode:\n%+v\n%+v", tg, back)
	}
}

func TestTargeting_UnknownRuleType(t *testing.T) {
	var tg flow.Targeting
	err := json.Unmarshal([]byte(`{"rules":[{"type":"astrology","value":{}}]}`), &tg)
	if err == nil {
		t.Error("expected error for unknown rule type")
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := flow.ParseConfig(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != flow.DefaultConfig() {
		t.Errorf("got %+v, want defaults", cfg)
	}

	cfg, err = flow.ParseConfig([]byte(`{"maxAds":1,"requireEmail":false}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := flow.Config{Type: flow.TypeProgressive, QuestionsPerAd: 2, MaxQuestions: 6, MaxAds: 1}
	if cfg != want {
		t.Errorf("got %+v, want %+v", cfg, want)
	}

	if _, err := flow.ParseConfig([]byte(`{"type":"sideways"}`)); err == nil {
		t.Error("expected error for unknown flow type")
	}
}

func TestGroupQuestions_QuestionRulesDoNotClaim(t *testing.T) {
	rulesOnly := flow.Campaign{
		ID:     1,
		Name:   "Rules",
		Active: true,
		CPCBid: decimal.RequireFromString("9.00"),
		Targeting: flow.Targeting{Rules: []flow.Rule{
			{Type: flow.RuleQuestion, Question: &flow.QuestionRule{QuestionID: "b"}},
		}},
	}
	groups := flow.GroupQuestions(makeQuestions(3), []flow.Campaign{rulesOnly})

	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	for i, g := range groups {
		if g.CampaignID != 0 || !g.Priority.Equal(decimal.NewFromInt(1)) {
			t.Errorf("group %d: got campaign %d priority %s, want general priority 1", i, g.CampaignID, g.Priority)
		}
	}
	if got := questionIDs(flow.Flatten(groups, 10)); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("got order %v, want [a b c]", got)
	}
}

func TestGroupQuestions_DuplicateIDsOutsideCampaignsAreKept(t *testing.T) {
	questions := []flow.Question{
		{ID: "a", Text: "first"},
		{ID: "x", Text: "sponsored"},
		{ID: "a", Text: "second"},
	}
	groups := flow.GroupQuestions(questions, []flow.Campaign{campaign(1, "Sponsor", "2.00", true, "x")})

	got := flow.Flatten(groups, 10)
	if len(got) != 3 {
		t.Fatalf("got %d questions, want 3: %+v", len(got), got)
	}
	if got[0].ID != "x" || got[1].Text != "first" || got[2].Text != "second" {
		t.Errorf("got %+v", got)
	}
}
