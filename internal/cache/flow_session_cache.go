package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adflow/adflow/internal/store"
)

// DefaultStateTTL is how long a cached flow session survives without writes.
const DefaultStateTTL = 24 * time.Hour

// FlowSessionRepository is the durable home of live flow state.
type FlowSessionRepository interface {
	SaveFlowSession(ctx context.Context, fs *store.FlowSession) error
	GetFlowSession(ctx context.Context, sessionID string) (*store.FlowSession, error)
}

type flowSessionCache struct {
	client  *redis.Client
	backing FlowSessionRepository
	ttl     time.Duration
	logger  *slog.Logger
}

// NewFlowSessionCache returns a read-through, write-through cache in front of
// backing. Redis failures are logged and fall back to the backing store.
func NewFlowSessionCache(client *redis.Client, backing FlowSessionRepository, ttl time.Duration, logger *slog.Logger) FlowSessionRepository {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &flowSessionCache{
		client:  client,
		backing: backing,
		ttl:     ttl,
		logger:  logger,
	}
}

func key(sessionID string) string {
	return fmt.Sprintf("flow:session:%s", sessionID)
}

func (c *flowSessionCache) SaveFlowSession(ctx context.Context, fs *store.FlowSession) error {
	if err := c.backing.SaveFlowSession(ctx, fs); err != nil {
		return err
	}
	c.set(ctx, fs)
	return nil
}

func (c *flowSessionCache) GetFlowSession(ctx context.Context, sessionID string) (*store.FlowSession, error) {
	data, err := c.client.Get(ctx, key(sessionID)).Bytes()
	switch {
	case err == nil:
		var fs store.FlowSession
		if err := json.Unmarshal(data, &fs); err == nil {
			return &fs, nil
		}
		c.logger.Warn("discarding corrupt cached flow session", "session_id", sessionID)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("flow session cache read failed", "session_id", sessionID, "error", err)
	}

	fs, err := c.backing.GetFlowSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, fs)
	return fs, nil
}

func (c *flowSessionCache) set(ctx context.Context, fs *store.FlowSession) {
	data, err := json.Marshal(fs)
	if err != nil {
		c.logger.Warn("failed to encode flow session", "session_id", fs.SessionID, "error", err)
		return
	}
	if err := c.client.Set(ctx, key(fs.SessionID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("flow session cache write failed", "session_id", fs.SessionID, "error", err)
	}
}
