package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "interviewer:spend"

// RedisLedger shares spend between processes. Each tier and period is one key
// incremented with INCRBYFLOAT.
type RedisLedger struct {
	client redis.Cmdable
	prefix string
	period time.Duration
	now    func() time.Time
}

func NewRedisLedger(client redis.Cmdable, prefix string, period time.Duration) *RedisLedger {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisLedger{client: client, prefix: prefix, period: period, now: time.Now}
}

func (l *RedisLedger) Spent(ctx context.Context, tier string) (float64, error) {
	val, err := l.client.Get(ctx, l.key(tier)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read spend for %s: %w", tier, err)
	}
	spent, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("parse spend for %s: %w", tier, err)
	}
	return spent, nil
}

func (l *RedisLedger) Add(ctx context.Context, tier string, amount float64) (float64, error) {
	key := l.key(tier)
	var incr *redis.FloatCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.IncrByFloat(ctx, key, amount)
		if l.period > 0 {
			pipe.Expire(ctx, key, 2*l.period)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("add spend for %s: %w", tier, err)
	}
	return incr.Val(), nil
}

func (l *RedisLedger) key(tier string) string {
	return fmt.Sprintf("%s:%s:%d", l.prefix, tier, periodStart(l.now(), l.period))
}
