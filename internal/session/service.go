package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adflow/adflow/internal/experiment"
	"github.com/adflow/adflow/internal/flow"
	"github.com/adflow/adflow/internal/store"
)

var ErrUnknownStep = errors.New("unknown flow step")

// Step names the UI step a client reports as completed.
type Step string

const (
	StepEmailCapture Step = "email_capture"
	StepPersonalInfo Step = "personal_info"
	StepQuestion     Step = "question"
	StepAd           Step = "ad"
)

func (s Step) valid() bool {
	switch s {
	case StepEmailCapture, StepPersonalInfo, StepQuestion, StepAd:
		return true
	}
	return false
}

// Catalog reads the site content a flow is built from.
type Catalog interface {
	GetSite(ctx context.Context, id int64) (*store.Site, error)
	ListQuestions(ctx context.Context, siteID int64) ([]*store.Question, error)
	ListActiveCampaigns(ctx context.Context) ([]flow.Campaign, error)
}

// StateRepository persists flow state between requests.
type StateRepository interface {
	SaveFlowSession(ctx context.Context, fs *store.FlowSession) error
	GetFlowSession(ctx context.Context, sessionID string) (*store.FlowSession, error)
}

// Experiments is the part of the experiment service a session touches.
type Experiments interface {
	ActiveExperiment(ctx context.Context, siteID int64) (*store.Experiment, error)
	AssignFlowType(e *store.Experiment, sessionID string) flow.Type
	RecordSessionStart(ctx context.Context, p experiment.SessionStart) (*store.ABSession, error)
	GetSession(ctx context.Context, experimentID int64, sessionID string) (*store.ABSession, error)
	UpdateSessionProgress(ctx context.Context, experimentID int64, sessionID string, u store.SessionUpdate) error
}

// Directive tells the client what to render next.
type Directive struct {
	SessionID string         `json:"sessionId"`
	FlowType  flow.Type      `json:"flowType"`
	Action    flow.Action    `json:"action"`
	Question  *flow.Question `json:"question,omitempty"`
	Progress  flow.Progress  `json:"progress"`
	State     flow.State     `json:"state"`
}

// Service runs flows statelessly: every call rebuilds the controller from
// the session's snapshot and persisted state, applies at most one
// completion and computes one action.
type Service struct {
	catalog     Catalog
	states      StateRepository
	experiments Experiments
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(catalog Catalog, states StateRepository, experiments Experiments, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		catalog:     catalog,
		states:      states,
		experiments: experiments,
		logger:      logger,
		now:         time.Now,
	}
}

// StartParams opens a session on a site. An empty SessionID gets a
// generated one.
type StartParams struct {
	SiteID     int64  `json:"siteId"`
	SessionID  string `json:"sessionId,omitempty"`
	UserAgent  string `json:"userAgent,omitempty"`
	DeviceType string `json:"deviceType,omitempty"`
}

// Start begins a session, or resumes it when the session ID is known. A
// running experiment on the site decides the flow type; otherwise the
// site's configured type is used.
func (s *Service) Start(ctx context.Context, p StartParams) (*Directive, error) {
	if p.SessionID == "" {
		p.SessionID = uuid.NewString()
	}

	existing, err := s.states.GetFlowSession(ctx, p.SessionID)
	if err == nil {
		return s.Next(ctx, existing.SessionID)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	site, err := s.catalog.GetSite(ctx, p.SiteID)
	if err != nil {
		return nil, err
	}

	fs := &store.FlowSession{
		SessionID: p.SessionID,
		SiteID:    site.ID,
		FlowType:  site.EffectiveFlowConfig().Type,
	}

	exp, err := s.experiments.ActiveExperiment(ctx, site.ID)
	switch {
	case err == nil:
		fs.FlowType = s.experiments.AssignFlowType(exp, p.SessionID)
		fs.ExperimentID = &exp.ID
		_, err = s.experiments.RecordSessionStart(ctx, experiment.SessionStart{
			ExperimentID: exp.ID,
			SessionID:    p.SessionID,
			FlowType:     fs.FlowType,
			DeviceType:   p.DeviceType,
			UserAgent:    p.UserAgent,
		})
		if err != nil {
			return nil, err
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	ctrl, err := s.snapshot(ctx, site, fs)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("flow session started", "session_id", fs.SessionID, "site_id", fs.SiteID, "flow_type", fs.FlowType)
	return s.advance(ctx, fs, ctrl, nil)
}

// Next returns the current directive without completing anything.
func (s *Service) Next(ctx context.Context, sessionID string) (*Directive, error) {
	fs, ctrl, err := s.restore(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.advance(ctx, fs, ctrl, nil)
}

// Completion reports a finished step. Clicked, ConversionValue and
// TimeSpent feed the experiment metrics.
type Completion struct {
	Step            Step            `json:"step"`
	Clicked         bool            `json:"clicked,omitempty"`
	ConversionValue decimal.Decimal `json:"conversionValue"`
	TimeSpent       *int            `json:"timeSpent,omitempty"`
}

// Complete applies one completion and returns the next directive.
func (s *Service) Complete(ctx context.Context, sessionID string, c Completion) (*Directive, error) {
	if !c.Step.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStep, c.Step)
	}

	fs, ctrl, err := s.restore(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch c.Step {
	case StepEmailCapture:
		ctrl.CompleteEmailCapture()
	case StepPersonalInfo:
		ctrl.CompletePersonalInfo()
	case StepQuestion:
		ctrl.CompleteQuestion()
	case StepAd:
		ctrl.CompleteAd()
	}

	s.logger.Debug("flow step completed", "session_id", sessionID, "step", c.Step)
	return s.advance(ctx, fs, ctrl, &c)
}

// Abandon marks the session's experiment row abandoned. An empty at is
// stamped with the current time.
func (s *Service) Abandon(ctx context.Context, sessionID, at string) error {
	fs, err := s.states.GetFlowSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if fs.ExperimentID == nil {
		return nil
	}
	if at == "" {
		at = s.now().UTC().Format(time.RFC3339)
	}
	s.logger.Debug("flow session abandoned", "session_id", sessionID, "at", at)
	return s.experiments.UpdateSessionProgress(ctx, *fs.ExperimentID, sessionID, store.SessionUpdate{AbandonedAt: &at})
}

// restore rebuilds the controller from the session's own snapshot, so
// catalogue and campaign edits made after Start do not affect it.
func (s *Service) restore(ctx context.Context, sessionID string) (*store.FlowSession, *flow.Controller, error) {
	fs, err := s.states.GetFlowSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	if !fs.Config.Type.Valid() {
		// Saved before sessions carried a snapshot; take it now.
		site, err := s.catalog.GetSite(ctx, fs.SiteID)
		if err != nil {
			return nil, nil, err
		}
		if _, err := s.snapshot(ctx, site, fs); err != nil {
			return nil, nil, err
		}
		if err := s.states.SaveFlowSession(ctx, fs); err != nil {
			return nil, nil, err
		}
	}

	return fs, flow.ResumeController(fs.Config, fs.Questions, fs.State), nil
}

// snapshot builds a controller from the site's current catalogue and
// records its config and question order on fs.
func (s *Service) snapshot(ctx context.Context, site *store.Site, fs *store.FlowSession) (*flow.Controller, error) {
	rows, err := s.catalog.ListQuestions(ctx, site.ID)
	if err != nil {
		return nil, err
	}
	questions := make([]flow.Question, len(rows))
	for i, q := range rows {
		questions[i] = q.Question
	}

	campaigns, err := s.catalog.ListActiveCampaigns(ctx)
	if err != nil {
		return nil, err
	}

	ctrl := flow.NewController(site.EffectiveFlowConfig().WithType(fs.FlowType), questions, campaigns)
	if !fs.CreatedAt.IsZero() {
		ctrl.SetState(fs.State)
	}
	fs.Config = ctrl.Config()
	fs.Questions = ctrl.Questions()
	return ctrl, nil
}

// advance computes the next action, persists the resulting state and
// mirrors progress into the experiment row.
func (s *Service) advance(ctx context.Context, fs *store.FlowSession, ctrl *flow.Controller, c *Completion) (*Directive, error) {
	before := fs.State
	action := ctrl.NextAction()
	fs.State = ctrl.State()

	if c != nil || fs.State != before || fs.CreatedAt.IsZero() {
		if err := s.states.SaveFlowSession(ctx, fs); err != nil {
			return nil, err
		}
	}

	if fs.ExperimentID != nil && (c != nil || fs.State.IsComplete != before.IsComplete) {
		if err := s.recordProgress(ctx, *fs.ExperimentID, fs.SessionID, fs.State, c); err != nil {
			return nil, err
		}
	}

	d := &Directive{
		SessionID: fs.SessionID,
		FlowType:  fs.FlowType,
		Action:    action,
		Progress:  ctrl.Progress(),
		State:     fs.State,
	}
	if action == flow.ActionQuestion {
		if q, ok := ctrl.CurrentQuestion(); ok {
			d.Question = &q
		}
	}
	return d, nil
}

func (s *Service) recordProgress(ctx context.Context, experimentID int64, sessionID string, st flow.State, c *Completion) error {
	u := store.SessionUpdate{
		QuestionsAnswered: &st.QuestionsAnswered,
		AdsShown:          &st.AdsShown,
	}
	if st.IsComplete {
		done := true
		u.CompletedFlow = &done
	}

	if c != nil {
		u.TimeSpent = c.TimeSpent
		clicked := c.Clicked && c.Step == StepAd
		if clicked || !c.ConversionValue.IsZero() {
			row, err := s.experiments.GetSession(ctx, experimentID, sessionID)
			if err != nil {
				return err
			}
			if clicked {
				n := row.AdsClicked + 1
				u.AdsClicked = &n
			}
			if !c.ConversionValue.IsZero() {
				v := row.ConversionValue.Add(c.ConversionValue)
				u.ConversionValue = &v
			}
		}
	}

	return s.experiments.UpdateSessionProgress(ctx, experimentID, sessionID, u)
}
