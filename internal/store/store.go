package store

import (
	"context"

	"github.com/adflow/adflow/internal/flow"
)

// Store defines the interface for catalogue and experiment storage
type Store interface {
	// Site catalogue
	CreateSite(ctx context.Context, name, domain string, cfg *flow.Config) (*Site, error)
	GetSite(ctx context.Context, id int64) (*Site, error)
	ListSites(ctx context.Context) ([]*Site, error)
	SetSiteFlowConfig(ctx context.Context, id int64, cfg flow.Config) error

	CreateQuestion(ctx context.Context, q *Question) error
	ListQuestions(ctx context.Context, siteID int64) ([]*Question, error)

	CreateCampaign(ctx context.Context, c *flow.Campaign) error
	ListCampaigns(ctx context.Context) ([]flow.Campaign, error)
	ListActiveCampaigns(ctx context.Context) ([]flow.Campaign, error)

	// Experiment operations
	CreateExperiment(ctx context.Context, e *Experiment) error
	GetExperiment(ctx context.Context, id int64) (*Experiment, error)
	ListExperiments(ctx context.Context, siteID int64) ([]*Experiment, error)
	GetRunningExperiment(ctx context.Context, siteID int64) (*Experiment, error)
	UpdateExperiment(ctx context.Context, e *Experiment) error

	// A/B session operations
	InsertSession(ctx context.Context, s *ABSession) error
	GetSession(ctx context.Context, experimentID int64, sessionID string) (*ABSession, error)
	UpdateSession(ctx context.Context, experimentID int64, sessionID string, u SessionUpdate) error
	ListSessions(ctx context.Context, experimentID int64) ([]*ABSession, error)

	// Live flow state
	SaveFlowSession(ctx context.Context, fs *FlowSession) error
	GetFlowSession(ctx context.Context, sessionID string) (*FlowSession, error)

	// Lifecycle
	Close() error
}
