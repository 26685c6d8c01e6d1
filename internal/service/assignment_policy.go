package service

import (
	"context"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// AssignmentPolicy picks the agent a new ticket starts with.
type AssignmentPolicy interface {
	SelectAgent(ctx context.Context, agents []domain.UserSummary) (domain.UserSummary, error)
}

// Cursor yields a monotonically increasing position for round-robin selection.
type Cursor interface {
	Next(ctx context.Context) (uint64, error)
}

// LocalCursor is a Cursor private to this process.
type LocalCursor struct {
	n atomic.Uint64
}

// Next implements Cursor.
func (c *LocalCursor) Next(context.Context) (uint64, error) {
	return c.n.Add(1) - 1, nil
}

// RedisCursor shares the round-robin position between instances through INCR.
type RedisCursor struct {
	client *redis.Client
	key    string
}

// NewRedisCursor builds a Redis-backed cursor stored under key.
func NewRedisCursor(client *redis.Client, key string) *RedisCursor {
	return &RedisCursor{client: client, key: key}
}

// Next implements Cursor.
func (c *RedisCursor) Next(ctx context.Context) (uint64, error) {
	n, err := c.client.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, err
	}
	return uint64(n - 1), nil
}

// RoundRobinPolicy walks the agent list in directory order. When the primary cursor fails the
// local fallback keeps tickets flowing.
type RoundRobinPolicy struct {
	cursor   Cursor
	fallback Cursor
	logger   *zap.Logger
}

// NewRoundRobinPolicy constructs the policy. A nil cursor means process-local rotation.
func NewRoundRobinPolicy(cursor Cursor, logger *zap.Logger) *RoundRobinPolicy {
	fallback := &LocalCursor{}
	if cursor == nil {
		cursor = fallback
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoundRobinPolicy{cursor: cursor, fallback: fallback, logger: logger}
}

// SelectAgent implements AssignmentPolicy.
func (p *RoundRobinPolicy) SelectAgent(ctx context.Context, agents []domain.UserSummary) (domain.UserSummary, error) {
	if len(agents) == 0 {
		return domain.UserSummary{}, apperrors.NewNoAgentsAvailable()
	}
	pos, err := p.cursor.Next(ctx)
	if err != nil {
		p.logger.Warn("assignment cursor unavailable; using local rotation", zap.Error(err))
		pos, _ = p.fallback.Next(ctx)
	}
	return agents[pos%uint64(len(agents))], nil
}
