package experiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/adflow/adflow/internal/flow"
	"github.com/adflow/adflow/internal/stats"
	"github.com/adflow/adflow/internal/store"
)

const DefaultMinSampleSize = 100

var (
	ErrAlreadyRunning    = errors.New("site already has a running experiment")
	ErrInvalidTransition = errors.New("invalid experiment status transition")
	ErrInvalidSplit      = errors.New("invalid traffic split")
)

// Repository is the slice of the store the experiment service needs.
type Repository interface {
	CreateExperiment(ctx context.Context, e *store.Experiment) error
	GetExperiment(ctx context.Context, id int64) (*store.Experiment, error)
	ListExperiments(ctx context.Context, siteID int64) ([]*store.Experiment, error)
	GetRunningExperiment(ctx context.Context, siteID int64) (*store.Experiment, error)
	UpdateExperiment(ctx context.Context, e *store.Experiment) error

	InsertSession(ctx context.Context, s *store.ABSession) error
	GetSession(ctx context.Context, experimentID int64, sessionID string) (*store.ABSession, error)
	UpdateSession(ctx context.Context, experimentID int64, sessionID string, u store.SessionUpdate) error
	ListSessions(ctx context.Context, experimentID int64) ([]*store.ABSession, error)
}

// Service runs flow A/B tests: lifecycle, variant assignment, per-session
// metrics and result analysis.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
	mode   stats.PValueMode
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithPValueMode(mode stats.PValueMode) Option {
	return func(s *Service) { s.mode = mode }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
		mode:   stats.ModeHeuristic,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateParams describes a new experiment. Zero MinSampleSize and
// ConfidenceLevel take the defaults.
type CreateParams struct {
	SiteID          int64             `json:"siteId"`
	Name            string            `json:"name"`
	TrafficSplit    flow.TrafficSplit `json:"trafficSplit"`
	MinSampleSize   int               `json:"minSampleSize"`
	ConfidenceLevel float64           `json:"confidenceLevel"`
}

// Create stores a new experiment in draft.
func (s *Service) Create(ctx context.Context, p CreateParams) (*store.Experiment, error) {
	if p.Name == "" {
		return nil, errors.New("experiment name is required")
	}
	if err := p.TrafficSplit.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSplit, err)
	}
	if p.MinSampleSize <= 0 {
		p.MinSampleSize = DefaultMinSampleSize
	}
	if p.ConfidenceLevel <= 0 || p.ConfidenceLevel >= 1 {
		p.ConfidenceLevel = stats.DefaultConfidenceLevel
	}

	e := &store.Experiment{
		SiteID:          p.SiteID,
		Name:            p.Name,
		TrafficSplit:    p.TrafficSplit,
		Status:          store.StatusDraft,
		MinSampleSize:   p.MinSampleSize,
		ConfidenceLevel: p.ConfidenceLevel,
	}
	if err := s.repo.CreateExperiment(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to create experiment: %w", err)
	}

	s.logger.Info("experiment created", "experiment_id", e.ID, "site_id", e.SiteID, "name", e.Name)
	return e, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*store.Experiment, error) {
	return s.repo.GetExperiment(ctx, id)
}

// List returns a site's experiments, or all of them when siteID is 0.
func (s *Service) List(ctx context.Context, siteID int64) ([]*store.Experiment, error) {
	return s.repo.ListExperiments(ctx, siteID)
}

// ActiveExperiment returns the running experiment of a site, or
// store.ErrNotFound.
func (s *Service) ActiveExperiment(ctx context.Context, siteID int64) (*store.Experiment, error) {
	return s.repo.GetRunningExperiment(ctx, siteID)
}

// Start moves a draft or paused experiment to running. The first start
// stamps StartDate; resuming keeps it.
func (s *Service) Start(ctx context.Context, id int64) (*store.Experiment, error) {
	e, err := s.repo.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}

	switch e.Status {
	case store.StatusRunning:
		return e, nil
	case store.StatusCompleted:
		return nil, fmt.Errorf("%w: experiment %d is completed", ErrInvalidTransition, id)
	}

	running, err := s.repo.GetRunningExperiment(ctx, e.SiteID)
	switch {
	case err == nil && running.ID != e.ID:
		return nil, fmt.Errorf("%w: experiment %d (%s)", ErrAlreadyRunning, running.ID, running.Name)
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	if e.StartDate == nil {
		now := s.now()
		e.StartDate = &now
	}
	return s.transition(ctx, e, store.StatusRunning)
}

// Pause stops assigning new sessions to a running experiment.
func (s *Service) Pause(ctx context.Context, id int64) (*store.Experiment, error) {
	e, err := s.repo.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != store.StatusRunning {
		return nil, fmt.Errorf("%w: cannot pause a %s experiment", ErrInvalidTransition, e.Status)
	}
	return s.transition(ctx, e, store.StatusPaused)
}

// Stop completes an experiment and stamps EndDate. Completed is terminal.
func (s *Service) Stop(ctx context.Context, id int64) (*store.Experiment, error) {
	e, err := s.repo.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status == store.StatusCompleted {
		return nil, fmt.Errorf("%w: experiment %d is already completed", ErrInvalidTransition, id)
	}
	now := s.now()
	e.EndDate = &now
	return s.transition(ctx, e, store.StatusCompleted)
}

func (s *Service) transition(ctx context.Context, e *store.Experiment, to store.ExperimentStatus) (*store.Experiment, error) {
	from := e.Status
	e.Status = to
	if err := s.repo.UpdateExperiment(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to update experiment: %w", err)
	}
	s.logger.Info("experiment status changed", "experiment_id", e.ID, "from", from, "to", to)
	return e, nil
}

// AssignFlowType returns the variant a session belongs to. It is a pure
// function of the session ID and the experiment's split.
func (s *Service) AssignFlowType(e *store.Experiment, sessionID string) flow.Type {
	return stats.Assign(sessionID, e.TrafficSplit)
}

// SessionStart describes a session entering an experiment. An empty
// DeviceType is derived from UserAgent.
type SessionStart struct {
	ExperimentID int64
	SessionID    string
	FlowType     flow.Type
	DeviceType   string
	UserAgent    string
}

// RecordSessionStart creates the zeroed session row. Recording the same
// session twice returns the row from the first call.
func (s *Service) RecordSessionStart(ctx context.Context, p SessionStart) (*store.ABSession, error) {
	if p.DeviceType == "" {
		p.DeviceType = DeviceType(p.UserAgent)
	}

	sess := &store.ABSession{
		ExperimentID: p.ExperimentID,
		SessionID:    p.SessionID,
		FlowType:     p.FlowType,
		DeviceType:   p.DeviceType,
		UserAgent:    p.UserAgent,
	}
	err := s.repo.InsertSession(ctx, sess)
	if errors.Is(err, store.ErrAlreadyExists) {
		return s.repo.GetSession(ctx, p.ExperimentID, p.SessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record session start: %w", err)
	}

	s.logger.Debug("session recorded", "experiment_id", p.ExperimentID, "session_id", p.SessionID, "flow_type", p.FlowType)
	return sess, nil
}

// UpdateSessionProgress applies a partial update to a session row.
func (s *Service) UpdateSessionProgress(ctx context.Context, experimentID int64, sessionID string, u store.SessionUpdate) error {
	return s.repo.UpdateSession(ctx, experimentID, sessionID, u)
}

func (s *Service) GetSession(ctx context.Context, experimentID int64, sessionID string) (*store.ABSession, error) {
	return s.repo.GetSession(ctx, experimentID, sessionID)
}

func (s *Service) ListSessions(ctx context.Context, experimentID int64) ([]*store.ABSession, error) {
	return s.repo.ListSessions(ctx, experimentID)
}

// Results is the analysis of one experiment as rendered by dashboards.
type Results struct {
	ExperimentID   int64                `json:"experimentId"`
	TotalSessions  int                  `json:"totalSessions"`
	Results        []stats.FlowResult   `json:"results"`
	Recommendation stats.Recommendation `json:"recommendation"`
}

// CalculateResults aggregates every recorded session of an experiment.
func (s *Service) CalculateResults(ctx context.Context, id int64) (*Results, error) {
	e, err := s.repo.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	sessions, err := s.repo.ListSessions(ctx, id)
	if err != nil {
		return nil, err
	}

	outcomes := make([]stats.SessionOutcome, len(sessions))
	for i, sess := range sessions {
		outcomes[i] = stats.SessionOutcome{
			FlowType:          sess.FlowType,
			QuestionsAnswered: sess.QuestionsAnswered,
			AdsShown:          sess.AdsShown,
			AdsClicked:        sess.AdsClicked,
			CompletedFlow:     sess.CompletedFlow,
			Abandoned:         sess.AbandonedAt != nil,
			ConversionValue:   sess.ConversionValue,
			TimeSpent:         sess.TimeSpent,
		}
	}

	results, total := stats.Aggregate(outcomes, e.ConfidenceLevel, s.mode)
	return &Results{
		ExperimentID:   e.ID,
		TotalSessions:  total,
		Results:        results,
		Recommendation: stats.Recommend(results, total, e.MinSampleSize, e.ConfidenceLevel),
	}, nil
}
