package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/adflow/adflow/internal/cache"
	"github.com/adflow/adflow/internal/flow"
	"github.com/adflow/adflow/internal/store"
	"github.com/adflow/adflow/internal/testutil"
)

type countingRepo struct {
	cache.FlowSessionRepository
	gets int
}

func (r *countingRepo) GetFlowSession(ctx context.Context, sessionID string) (*store.FlowSession, error) {
	r.gets++
	return r.FlowSessionRepository.GetFlowSession(ctx, sessionID)
}

func setup(t *testing.T) (*miniredis.Miniredis, *countingRepo, cache.FlowSessionRepository) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := &countingRepo{FlowSessionRepository: testutil.SetupTestStore(t)}
	return mr, repo, cache.NewFlowSessionCache(client, repo, time.Hour, nil)
}

func sampleSession() *store.FlowSession {
	return &store.FlowSession{
		SessionID: "s-1",
		SiteID:    1,
		FlowType:  flow.TypeMinimal,
		Config:    flow.Config{Type: flow.TypeMinimal, MaxQuestions: 2, MaxAds: 1},
		Questions: []flow.Question{{ID: "q2", Text: "Two"}, {ID: "q1", Text: "One"}},
		State:    flow.State{CurrentPhase: flow.PhaseQuestions, QuestionsAnswered: 1, ShouldShowAd: true},
	}
}

func TestFlowSessionCache_WriteThrough(t *testing.T) {
	mr, repo, c := setup(t)
	ctx := context.Background()

	if err := c.SaveFlowSession(ctx, sampleSession()); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	if !mr.Exists("flow:session:s-1") {
		t.Fatal("expected state to be cached")
	}
	if ttl := mr.TTL("flow:session:s-1"); ttl != time.Hour {
		t.Errorf("got ttl %v, want 1h", ttl)
	}

	got, err := c.GetFlowSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if got.State != sampleSession().State {
		t.Errorf("got state %+v", got.State)
	}
	if got.Config.MaxQuestions != 2 || len(got.Questions) != 2 || got.Questions[0].ID != "q2" {
		t.Errorf("snapshot lost in cache: config %+v, questions %+v", got.Config, got.Questions)
	}
	if repo.gets != 0 {
		t.Errorf("cache hit should not reach the store, got %d reads", repo.gets)
	}
}

func TestFlowSessionCache_ReadThroughOnMiss(t *testing.T) {
	mr, repo, c := setup(t)
	ctx := context.Background()

	if err := c.SaveFlowSession(ctx, sampleSession()); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	mr.FlushAll()

	if _, err := c.GetFlowSession(ctx, "s-1"); err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if repo.gets != 1 {
		t.Errorf("got %d store reads, want 1", repo.gets)
	}
	if !mr.Exists("flow:session:s-1") {
		t.Error("expected miss to repopulate the cache")
	}

	if _, err := c.GetFlowSession(ctx, "s-1"); err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if repo.gets != 1 {
		t.Errorf("got %d store reads after repopulation, want 1", repo.gets)
	}
}

func TestFlowSessionCache_NotFound(t *testing.T) {
	_, _, c := setup(t)

	if _, err := c.GetFlowSession(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFlowSessionCache_CorruptEntryFallsBack(t *testing.T) {
	mr, repo, c := setup(t)
	ctx := context.Background()

	if err := c.SaveFlowSession(ctx, sampleSession()); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	mr.Set("flow:session:s-1", "{not json")

	got, err := c.GetFlowSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if got.FlowType != flow.TypeMinimal || repo.gets != 1 {
		t.Errorf("expected fallback to store, got %+v after %d reads", got, repo.gets)
	}
}

func TestFlowSessionCache_RedisDownFallsBack(t *testing.T) {
	mr, repo, c := setup(t)
	ctx := context.Background()
	mr.Close()

	if err := c.SaveFlowSession(ctx, sampleSession()); err != nil {
		t.Fatalf("save should succeed without redis: %v", err)
	}
	got, err := c.GetFlowSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("get should succeed without redis: %v", err)
	}
	if got.SessionID != "s-1" || repo.gets != 1 {
		t.Errorf("unexpected result %+v after %d reads", got, repo.gets)
	}
}
