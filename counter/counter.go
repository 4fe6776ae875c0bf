// Package counter keeps the per-day submission count shown on the kiosk.
package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/mbolis/survey-kiosk/store"
)

const keyPrefix = "count:"

// Counter stores one entry per calendar day in the meta collection. Entries
// never expire.
type Counter struct {
	store store.Store
	loc   *time.Location
	now   func() time.Time
}

func New(s store.Store, loc *time.Location) *Counter {
	if loc == nil {
		loc = time.UTC
	}
	return &Counter{store: s, loc: loc, now: time.Now}
}

func (c *Counter) WithClock(now func() time.Time) *Counter {
	c.now = now
	return c
}

// Key is the meta key of the day containing t.
func (c *Counter) Key(t time.Time) store.Key {
	return store.Key(keyPrefix + t.In(c.loc).Format("2006-01-02"))
}

// Increment adds one to today's count within tx and returns the new value.
// Concurrent increments are serialized by the store transaction.
func (c *Counter) Increment(ctx context.Context, tx store.Tx) (int, error) {
	key := c.Key(c.now())
	var n int
	if _, err := tx.Get(ctx, store.Meta, key, &n); err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	n++
	if _, err := tx.Put(ctx, store.Meta, key, n); err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return n, nil
}

// Today returns today's count, 0 when nothing was submitted yet.
func (c *Counter) Today(ctx context.Context) (int, error) {
	return c.Get(ctx, c.now())
}

func (c *Counter) Get(ctx context.Context, day time.Time) (int, error) {
	key := c.Key(day)
	var n int
	if _, err := c.store.Get(ctx, store.Meta, key, &n); err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	return n, nil
}
