package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"speech-ai-subscription/internal/domain/model"
	"speech-ai-subscription/internal/usecase"
)

var _ usecase.PeriodCache = (*PeriodCache)(nil)

// PeriodCache keeps the "current period" display read off the database.
// Entries carry a short TTL; mutating use cases invalidate eagerly but a
// one-transaction-stale read is acceptable for display purposes.
type PeriodCache struct {
	cli RedisClient
	ttl time.Duration
	log *zerolog.Logger
}

func NewPeriodCache(cli RedisClient, ttl time.Duration, logger *zerolog.Logger) *PeriodCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	l := logger.With().Str("component", "PeriodCache").Logger()
	return &PeriodCache{cli: cli, ttl: ttl, log: &l}
}

func periodKey(teacherID string) string { return "period:current:" + teacherID }

func (c *PeriodCache) Get(ctx context.Context, teacherID string) (*model.SubscriptionPeriod, bool) {
	raw, err := c.cli.Get(ctx, periodKey(teacherID))
	if err != nil {
		if !IsNil(err) {
			c.log.Warn().Err(err).Str("teacher_id", teacherID).Msg("cache get failed")
		}
		return nil, false
	}
	var p model.SubscriptionPeriod
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		c.log.Warn().Err(err).Str("teacher_id", teacherID).Msg("cache entry corrupt, dropping")
		_ = c.cli.Del(ctx, periodKey(teacherID))
		return nil, false
	}
	return &p, true
}

func (c *PeriodCache) Set(ctx context.Context, teacherID string, p *model.SubscriptionPeriod) {
	b, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.cli.Set(ctx, periodKey(teacherID), string(b), c.ttl); err != nil {
		c.log.Warn().Err(err).Str("teacher_id", teacherID).Msg("cache set failed")
	}
}

func (c *PeriodCache) Invalidate(ctx context.Context, teacherID string) {
	if err := c.cli.Del(ctx, periodKey(teacherID)); err != nil {
		c.log.Warn().Err(err).Str("teacher_id", teacherID).Msg("cache invalidate failed")
	}
}
