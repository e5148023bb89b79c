package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisHasher es el subconjunto de go-redis usado por el espejo de progreso.
type redisHasher interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// redisProgress replica el avance en un hash migration:users:<run_id> para otros operadores.
// Los errores de Redis solo se loguean: el espejo nunca frena la migracion.
type redisProgress struct {
	client redisHasher
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisProgress(client *redis.Client, runID string, logger *zap.Logger) Progress {
	if client == nil {
		return NopProgress{}
	}
	return newRedisProgress(client, runID, logger)
}

func newRedisProgress(client redisHasher, runID string, logger *zap.Logger) *redisProgress {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisProgress{
		client: client,
		key:    "migration:users:" + runID,
		ttl:    7 * 24 * time.Hour,
		logger: logger,
	}
}

func (p *redisProgress) Start(ctx context.Context, total int) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := p.client.HSet(ctx, p.key,
		"status", StatusRunning,
		"total", total,
		"processed", 0,
		"failed", 0,
		"started_at", time.Now().UTC().Format(time.RFC3339),
	).Err(); err != nil {
		p.logger.Warn("redis progress start failed", zap.Error(err))
		return
	}
	if err := p.client.Expire(ctx, p.key, p.ttl).Err(); err != nil {
		p.logger.Warn("redis progress expire failed", zap.Error(err))
	}
}

func (p *redisProgress) Advance(ctx context.Context, results []RecordResult) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := p.client.HIncrBy(ctx, p.key, "processed", int64(len(results))).Err(); err != nil {
		p.logger.Warn("redis progress advance failed", zap.Error(err))
		return
	}
	var failures int64
	for _, r := range results {
		if r.Outcome == OutcomeFailed {
			failures++
		}
	}
	if failures == 0 {
		return
	}
	if err := p.client.HIncrBy(ctx, p.key, "failed", failures).Err(); err != nil {
		p.logger.Warn("redis progress advance failed", zap.Error(err))
	}
}

func (p *redisProgress) Finish(ctx context.Context, summary Summary) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 500*time.Millisecond)
	defer cancel()
	if err := p.client.HSet(ctx, p.key,
		"status", StatusFinished,
		"created", summary.Created,
		"updated", summary.Updated,
		"unchanged", summary.Unchanged,
		"not_found", summary.NotFound,
		"finished_at", time.Now().UTC().Format(time.RFC3339),
	).Err(); err != nil {
		p.logger.Warn("redis progress finish failed", zap.Error(err))
	}
}
