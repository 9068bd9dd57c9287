package testutil

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/adflow/adflow/internal/flow"
	"github.com/adflow/adflow/internal/store"
)

// SetupTestStore creates a test database and returns the store.
// Uses t.TempDir() for automatic cleanup on test completion.
func SetupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// SeedSite creates a site with n questions (q1..qn) and returns it.
func SeedSite(t *testing.T, s *store.SQLiteStore, cfg *flow.Config, n int) *store.Site {
	t.Helper()
	ctx := context.Background()

	site, err := s.CreateSite(ctx, "Example", "example.com", cfg)
	if err != nil {
		t.Fatalf("failed to create site: %v", err)
	}

	for i := 1; i <= n; i++ {
		q := &store.Question{
			Question: flow.Question{ID: questionID(i), Text: "Question " + questionID(i), Type: "text"},
			SiteID:   site.ID,
			Position: i,
		}
		if err := s.CreateQuestion(ctx, q); err != nil {
			t.Fatalf("failed to create question: %v", err)
		}
	}
	return site
}

// SeedCampaign creates an active campaign targeting the given questions.
func SeedCampaign(t *testing.T, s *store.SQLiteStore, name, bid string, questionIDs ...string) flow.Campaign {
	t.Helper()

	targets := make([]flow.QuestionTarget, len(questionIDs))
	for i, id := range questionIDs {
		targets[i] = flow.QuestionTarget{QuestionID: id}
	}
	c := flow.Campaign{
		Name:      name,
		Active:    true,
		CPCBid:    decimal.RequireFromString(bid),
		Targeting: flow.Targeting{Questions: targets},
	}
	if err := s.CreateCampaign(context.Background(), &c); err != nil {
		t.Fatalf("failed to create campaign: %v", err)
	}
	return c
}

func questionID(i int) string {
	return "q" + strconv.Itoa(i)
}
