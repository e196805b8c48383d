package marketdata

import (
	"context"
	"sync"
	"time"
)

// Budget enforces sliding per-minute and per-hour request limits.
// Requests are reserved before the fetch, so the budget bounds what is
// actually sent, not what succeeded.
type Budget struct {
	mu        sync.Mutex
	perMinute int
	perHour   int
	stamps    []time.Time
	now       func() time.Time
}

func NewBudget(perMinute, perHour int) *Budget {
	return &Budget{perMinute: perMinute, perHour: perHour, now: time.Now}
}

// TryReserve reserves n requests if both windows allow it.
func (b *Budget) TryReserve(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.prune(now)

	minuteCount := 0
	minuteAgo := now.Add(-time.Minute)
	for _, ts := range b.stamps {
		if ts.After(minuteAgo) {
			minuteCount++
		}
	}
	if minuteCount+n > b.perMinute || len(b.stamps)+n > b.perHour {
		return false
	}
	for i := 0; i < n; i++ {
		b.stamps = append(b.stamps, now)
	}
	return true
}

// Wait blocks until n requests can be reserved or the context ends.
func (b *Budget) Wait(ctx context.Context, n int) error {
	for {
		if b.TryReserve(n) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// Remaining returns how many requests are left in the tighter window.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.prune(now)

	minuteCount := 0
	minuteAgo := now.Add(-time.Minute)
	for _, ts := range b.stamps {
		if ts.After(minuteAgo) {
			minuteCount++
		}
	}
	minuteLeft := b.perMinute - minuteCount
	hourLeft := b.perHour - len(b.stamps)
	if hourLeft < minuteLeft {
		return hourLeft
	}
	return minuteLeft
}

// prune drops stamps older than the hour window. Callers hold the lock.
func (b *Budget) prune(now time.Time) {
	hourAgo := now.Add(-time.Hour)
	i := 0
	for ; i < len(b.stamps); i++ {
		if b.stamps[i].After(hourAgo) {
			break
		}
	}
	b.stamps = b.stamps[i:]
}
