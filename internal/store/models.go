package store

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/adflow/adflow/internal/flow"
)

type ExperimentStatus string

const (
	StatusDraft     ExperimentStatus = "draft"
	StatusRunning   ExperimentStatus = "running"
	StatusPaused    ExperimentStatus = "paused"
	StatusCompleted ExperimentStatus = "completed"
)

type Site struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name"`
	Domain     string       `json:"domain"`
	FlowConfig *flow.Config `json:"flowConfig,omitempty"` // nil means defaults
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// EffectiveFlowConfig returns the site's config or the defaults.
func (s *Site) EffectiveFlowConfig() flow.Config {
	if s.FlowConfig == nil {
		return flow.DefaultConfig()
	}
	return *s.FlowConfig
}

type Question struct {
	flow.Question
	SiteID    int64     `json:"siteId"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
}

// Experiment is a flow A/B test on one site.
type Experiment struct {
	ID              int64             `json:"id"`
	SiteID          int64             `json:"siteId"`
	Name            string            `json:"name"`
	TrafficSplit    flow.TrafficSplit `json:"trafficSplit"`
	Status          ExperimentStatus  `json:"status"`
	MinSampleSize   int               `json:"minSampleSize"`
	ConfidenceLevel float64           `json:"confidenceLevel"`
	StartDate       *time.Time        `json:"startDate,omitempty"`
	EndDate         *time.Time        `json:"endDate,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// ABSession is one session's record within an experiment. Rows are never
// deleted.
type ABSession struct {
	ID                int64           `json:"id"`
	ExperimentID      int64           `json:"experimentId"`
	SessionID         string          `json:"sessionId"`
	FlowType          flow.Type       `json:"flowType"`
	DeviceType        string          `json:"deviceType,omitempty"`
	UserAgent         string          `json:"userAgent,omitempty"`
	QuestionsAnswered int             `json:"questionsAnswered"`
	AdsShown          int             `json:"adsShown"`
	AdsClicked        int             `json:"adsClicked"`
	CompletedFlow     bool            `json:"completedFlow"`
	AbandonedAt       *string         `json:"abandonedAt,omitempty"`
	ConversionValue   decimal.Decimal `json:"conversionValue"`
	TimeSpent         int             `json:"timeSpent"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// SessionUpdate is a partial update; nil fields are left untouched.
type SessionUpdate struct {
	QuestionsAnswered *int
	AdsShown          *int
	AdsClicked        *int
	CompletedFlow     *bool
	AbandonedAt       *string
	ConversionValue   *decimal.Decimal
	TimeSpent         *int
}

func (u SessionUpdate) empty() bool {
	return u.QuestionsAnswered == nil && u.AdsShown == nil && u.AdsClicked == nil &&
		u.CompletedFlow == nil && u.AbandonedAt == nil && u.ConversionValue == nil && u.TimeSpent == nil
}

// FlowSession holds the externalized controller state of a live session.
// Config and Questions are fixed when the session starts, so later catalogue
// edits never reach it.
type FlowSession struct {
	SessionID    string          `json:"sessionId"`
	SiteID       int64           `json:"siteId"`
	ExperimentID *int64          `json:"experimentId,omitempty"`
	FlowType     flow.Type       `json:"flowType"`
	Config       flow.Config     `json:"config"`
	Questions    []flow.Question `json:"questions"`
	State        flow.State      `json:"state"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}
