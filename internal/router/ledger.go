package router

import (
	"context"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Ledger accumulates spend per tier for the current period. Implementations
// must be safe for concurrent use across sessions.
type Ledger interface {
	Spent(ctx context.Context, tier string) (float64, error)
	Add(ctx context.Context, tier string, amount float64) (float64, error)
}

const microUnits = 1_000_000

// MemoryLedger keeps spend in process using atomic counters of micro-units.
type MemoryLedger struct {
	period  time.Duration
	now     func() time.Time
	buckets sync.Map // key -> *atomic.Int64
}

// NewMemoryLedger creates a ledger whose buckets reset every period. A zero
// period never resets.
func NewMemoryLedger(period time.Duration) *MemoryLedger {
	return &MemoryLedger{period: period, now: time.Now}
}

func (l *MemoryLedger) Spent(_ context.Context, tier string) (float64, error) {
	v, ok := l.buckets.Load(l.key(tier))
	if !ok {
		return 0, nil
	}
	return float64(v.(*atomic.Int64).Load()) / microUnits, nil
}

func (l *MemoryLedger) Add(_ context.Context, tier string, amount float64) (float64, error) {
	v, _ := l.buckets.LoadOrStore(l.key(tier), new(atomic.Int64))
	total := v.(*atomic.Int64).Add(int64(math.Round(amount * microUnits)))
	return float64(total) / microUnits, nil
}

func (l *MemoryLedger) key(tier string) string {
	return tier + "|" + strconv.FormatInt(periodStart(l.now(), l.period), 10)
}

func periodStart(now time.Time, period time.Duration) int64 {
	if period <= 0 {
		return 0
	}
	return now.UTC().Truncate(period).Unix()
}
