package flow

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Question is an opaque input to the flow. Type only affects rendering.
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Type    string   `json:"type"`
	Options []string `json:"options,omitempty"`
}

// Campaign is the targeting input used to group questions.
type Campaign struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Active    bool            `json:"active"`
	CPCBid    decimal.Decimal `json:"cpcBid"`
	Targeting Targeting       `json:"targeting"`
}

// QuestionGroup is a derived, never persisted set of questions shown
// together. CampaignID 0 marks an ungrouped question.
type QuestionGroup struct {
	CampaignID   int64           `json:"campaignId"`
	CampaignName string          `json:"campaignName"`
	Questions    []Question      `json:"questions"`
	Priority     decimal.Decimal `json:"priority"`
}

const generalGroupName = "General"

var (
	bidPriorityFactor = decimal.NewFromInt(100)
	generalPriority   = decimal.NewFromInt(1)
)

// GroupQuestions assigns every question to exactly one group. Campaigns
// claim questions through their explicit question targets, in descending
// bid order, so the highest bidder wins a contested question. A claimed ID
// is taken once; unclaimed questions, duplicates included, become
// singleton groups with priority 1. The result is sorted by descending priority, ties keeping
// their construction order.
func GroupQuestions(questions []Question, campaigns []Campaign) []QuestionGroup {
	eligible := make([]Campaign, 0, len(campaigns))
	for _, c := range campaigns {
		if c.Active && len(c.Targeting.QuestionIDs()) > 0 {
			eligible = append(eligible, c)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].CPCBid.GreaterThan(eligible[j].CPCBid)
	})

	claimed := make(map[string]bool, len(questions))
	var groups []QuestionGroup

	for _, c := range eligible {
		targeted := make(map[string]bool)
		for _, id := range c.Targeting.QuestionIDs() {
			targeted[id] = true
		}

		var members []Question
		for _, q := range questions {
			if targeted[q.ID] && !claimed[q.ID] {
				members = append(members, q)
				claimed[q.ID] = true
			}
		}
		if len(members) == 0 {
			continue
		}

		groups = append(groups, QuestionGroup{
			CampaignID:   c.ID,
			CampaignName: c.Name,
			Questions:    members,
			Priority:     c.CPCBid.Mul(bidPriorityFactor),
		})
	}

	for _, q := range questions {
		if claimed[q.ID] {
			continue
		}
		groups = append(groups, QuestionGroup{
			CampaignName: generalGroupName,
			Questions:    []Question{q},
			Priority:     generalPriority,
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Priority.GreaterThan(groups[j].Priority)
	})

	return groups
}

// Flatten concatenates the groups' questions in order, keeping at most max.
func Flatten(groups []QuestionGroup, max int) []Question {
	ordered := make([]Question, 0)
	for _, g := range groups {
		for _, q := range g.Questions {
			if len(ordered) >= max {
				return ordered
			}
			ordered = append(ordered, q)
		}
	}
	return ordered
}

// OrderQuestions groups and flattens in one step.
func OrderQuestions(questions []Question, campaigns []Campaign, max int) []Question {
	return Flatten(GroupQuestions(questions, campaigns), max)
}
