package flow

import (
	"encoding/json"
	"fmt"
)

// RuleType discriminates the targeting rule variants.
type RuleType string

const (
	RuleQuestion    RuleType = "question"
	RuleDemographic RuleType = "demographic"
	RuleBehavioral  RuleType = "behavioral"
	RuleCustom      RuleType = "custom"
)

type QuestionRule struct {
	QuestionID string `json:"questionId"`
}

type DemographicRule struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

type BehavioralRule struct {
	Event    string `json:"event"`
	MinCount int    `json:"minCount"`
}

type CustomRule struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Rule is a tagged union: exactly one of the typed values is set, matching
// Type. On the wire it is {"type": "...", "value": {...}}.
type Rule struct {
	Type        RuleType
	Question    *QuestionRule
	Demographic *DemographicRule
	Behavioral  *BehavioralRule
	Custom      *CustomRule
}

type ruleEnvelope struct {
	Type  RuleType        `json:"type"`
	Value json.RawMessage `json:"value"`
}

func (r Rule) MarshalJSON() ([]byte, error) {
	var value any
	switch r.Type {
	case RuleQuestion:
		value = r.Question
	case RuleDemographic:
		value = r.Demographic
	case RuleBehavioral:
		value = r.Behavioral
	case RuleCustom:
		value = r.Custom
	default:
		return nil, fmt.Errorf("unknown targeting rule type %q", r.Type)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ruleEnvelope{Type: r.Type, Value: raw})
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	var env ruleEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	*r = Rule{Type: env.Type}
	var target any
	switch env.Type {
	case RuleQuestion:
		r.Question = &QuestionRule{}
		target = r.Question
	case RuleDemographic:
		r.Demographic = &DemographicRule{}
		target = r.Demographic
	case RuleBehavioral:
		r.Behavioral = &BehavioralRule{}
		target = r.Behavioral
	case RuleCustom:
		r.Custom = &CustomRule{}
		target = r.Custom
	default:
		return fmt.Errorf("unknown targeting rule type %q", env.Type)
	}
	if len(env.Value) == 0 {
		return fmt.Errorf("targeting rule %q has no value", env.Type)
	}
	return json.Unmarshal(env.Value, target)
}

// QuestionTarget names a question a campaign wants to sponsor.
type QuestionTarget struct {
	QuestionID string `json:"questionId"`
}

// Targeting describes what a campaign targets. Only question targets take
// part in question grouping.
type Targeting struct {
	Questions []QuestionTarget `json:"questions"`
	Rules     []Rule           `json:"rules,omitempty"`
}

// QuestionIDs returns the explicitly targeted question IDs without
// duplicates. These are the questions a campaign can claim when grouping.
func (t Targeting) QuestionIDs() []string {
	return t.collectIDs(false)
}

// ReferencedQuestionIDs also includes question rules, explicit targets
// first. Rules never claim questions.
func (t Targeting) ReferencedQuestionIDs() []string {
	return t.collectIDs(true)
}

func (t Targeting) collectIDs(withRules bool) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}
	for _, q := range t.Questions {
		add(q.QuestionID)
	}
	if !withRules {
		return ids
	}
	for _, r := range t.Rules {
		if r.Type == RuleQuestion && r.Question != nil {
			add(r.Question.QuestionID)
		}
	}
	return ids
}
