package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type WindowStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	WindowState(ctx context.Context, key string) (int64, time.Duration, error)
	DecrementWindow(ctx context.Context, key string) error
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// DailyQuota caps an action per user per UTC day. A nil store or a
// non-positive limit disables the cap.
type DailyQuota struct {
	store WindowStore
	name  string
	limit int
	now   func() time.Time
}

func NewDailyQuota(store WindowStore, name string, limit int) *DailyQuota {
	return &DailyQuota{store: store, name: name, limit: limit, now: time.Now}
}

func (q *DailyQuota) Enabled() bool {
	return q != nil && q.store != nil && q.limit > 0
}

// Consume counts one use and reports whether it fits the quota.
func (q *DailyQuota) Consume(ctx context.Context, userID uuid.UUID) (Decision, error) {
	if !q.Enabled() {
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	key, window := q.key(userID)
	count, ttl, err := q.store.IncrementWindow(ctx, key, window)
	if err != nil {
		return Decision{}, err
	}
	if count > int64(q.limit) {
		return Decision{Allowed: false, RetryAfter: ttl}, nil
	}
	return Decision{Allowed: true, Remaining: q.limit - int(count)}, nil
}

// Refund gives back one use counted by Consume today.
func (q *DailyQuota) Refund(ctx context.Context, userID uuid.UUID) error {
	if !q.Enabled() {
		return nil
	}
	key, _ := q.key(userID)
	return q.store.DecrementWindow(ctx, key)
}

// Remaining reports the uses left today without consuming one.
func (q *DailyQuota) Remaining(ctx context.Context, userID uuid.UUID) (int, error) {
	if !q.Enabled() {
		return -1, nil
	}
	key, _ := q.key(userID)
	count, _, err := q.store.WindowState(ctx, key)
	if err != nil {
		return 0, err
	}
	left := q.limit - int(count)
	if left < 0 {
		left = 0
	}
	return left, nil
}

func (q *DailyQuota) key(userID uuid.UUID) (string, time.Duration) {
	now := q.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return "quota:" + q.name + ":" + now.Format("20060102") + ":" + userID.String(), midnight.Sub(now)
}
