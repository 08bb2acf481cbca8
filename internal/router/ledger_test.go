package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedgerConcurrentAdds(t *testing.T) {
	ledger := NewMemoryLedger(0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = ledger.Add(ctx, "standard", 0.01)
		}()
	}
	wg.Wait()

	spent, err := ledger.Spent(ctx, "standard")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, spent, 1e-9)

	other, err := ledger.Spent(ctx, "premium")
	require.NoError(t, err)
	assert.Zero(t, other)
}

func TestMemoryLedgerResetsPerPeriod(t *testing.T) {
	ledger := NewMemoryLedger(time.Hour)
	now := time.Date(2026, 1, 1, 10, 15, 0, 0, time.UTC)
	ledger.now = func() time.Time { return now }

	_, err := ledger.Add(context.Background(), "premium", 2.5)
	require.NoError(t, err)

	now = now.Add(30 * time.Minute)
	spent, _ := ledger.Spent(context.Background(), "premium")
	assert.InDelta(t, 2.5, spent, 1e-9)

	now = now.Add(time.Hour)
	spent, _ = ledger.Spent(context.Background(), "premium")
	assert.Zero(t, spent)
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLedger(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()

	ledger := NewRedisLedger(client, "", time.Hour)
	fixed := time.Date(2026, 1, 1, 10, 15, 0, 0, time.UTC)
	ledger.now = func() time.Time { return fixed }

	spent, err := ledger.Spent(ctx, "premium")
	require.NoError(t, err)
	assert.Zero(t, spent)

	total, err := ledger.Add(ctx, "premium", 0.25)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, total, 1e-9)

	total, err = ledger.Add(ctx, "premium", 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, total, 1e-9)

	spent, err = ledger.Spent(ctx, "premium")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, spent, 1e-9)

	key := ledger.key("premium")
	assert.Equal(t, "interviewer:spend:premium:1767261600", key)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 2*time.Hour, mr.TTL(key))
}

func TestRedisLedgerSharedAcrossRouters(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()

	first, err := New(threeTiers(0.15), NewRedisLedger(client, "test", time.Hour), nil)
	require.NoError(t, err)
	second, err := New(threeTiers(0.15), NewRedisLedger(client, "test", time.Hour), nil)
	require.NoError(t, err)

	h, err := first.Select(ctx, ComplexityNormal, true)
	require.NoError(t, err)
	first.Charge(ctx, h, 200)

	h, err = second.Select(ctx, ComplexityNormal, true)
	require.NoError(t, err)
	assert.Equal(t, "standard", h.Name)
}

func TestRedisLedgerUnavailable(t *testing.T) {
	mr, client := setupRedis(t)
	mr.Close()

	ledger := NewRedisLedger(client, "", 0)
	_, err := ledger.Spent(context.Background(), "economy")
	assert.Error(t, err)
	_, err = ledger.Add(context.Background(), "economy", 1)
	assert.Error(t, err)
}
