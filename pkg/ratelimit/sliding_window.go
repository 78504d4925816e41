package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const bucketSize = time.Minute

// BucketStore persists per-minute request counters keyed by (key, bucket).
type BucketStore interface {
	Incr(ctx context.Context, key string, bucket int64, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string, bucket int64) (int64, error)
}

// Limiter is a sliding-window admission controller. The current-window
// estimate weighs the previous minute's bucket by the fraction of the
// current minute that has not yet elapsed.
type Limiter struct {
	store      BucketStore
	maxAllowed int64
	now        func() time.Time
}

// NewLimiter creates a Limiter admitting at most maxAllowed requests per
// sliding minute for each key.
func NewLimiter(store BucketStore, maxAllowed int64) *Limiter {
	return &Limiter{store: store, maxAllowed: maxAllowed, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow admits or rejects one request for the (actor, endpoint) key. On
// admission the current bucket is incremented.
func (l *Limiter) Allow(ctx context.Context, actor, endpoint string) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", actor, endpoint)
	now := l.now()

	bucket := now.Unix() / int64(bucketSize.Seconds())
	elapsed := float64(now.Unix()%int64(bucketSize.Seconds())) / bucketSize.Seconds()

	prev, err := l.store.Get(ctx, key, bucket-1)
	if err != nil {
		return false, err
	}
	cur, err := l.store.Get(ctx, key, bucket)
	if err != nil {
		return false, err
	}

	estimate := float64(prev)*(1-elapsed) + float64(cur)
	if estimate+1 > float64(l.maxAllowed) {
		return false, nil
	}

	// Two buckets must outlive the window they participate in.
	if _, err := l.store.Incr(ctx, key, bucket, 2*bucketSize); err != nil {
		return false, err
	}
	return true, nil
}

// RedisBucketStore keeps counters in Redis so all api-service replicas share
// one window.
type RedisBucketStore struct {
	client *redis.Client
}

// NewRedisBucketStore creates a RedisBucketStore.
func NewRedisBucketStore(client *redis.Client) *RedisBucketStore {
	return &RedisBucketStore{client: client}
}

func bucketKey(key string, bucket int64) string {
	return fmt.Sprintf("%s:%d", key, bucket)
}

// Incr increments the counter for (key, bucket) and refreshes its TTL.
func (s *RedisBucketStore) Incr(ctx context.Context, key string, bucket int64, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, bucketKey(key, bucket))
	pipe.Expire(ctx, bucketKey(key, bucket), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Get returns the counter for (key, bucket), 0 when absent.
func (s *RedisBucketStore) Get(ctx context.Context, key string, bucket int64) (int64, error) {
	val, err := s.client.Get(ctx, bucketKey(key, bucket)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}
