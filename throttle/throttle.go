// Package throttle enforces fixed-window request limits on Redis
// counters. A bucket key combines the caller-supplied identifier with
// the current window number; the backing entry expires after one window
// width, so buckets clean themselves up.
//
// The limiter is deliberately fail-open: when the counter store is
// unavailable the request is allowed and the failure is logged, because
// product availability outranks strict throttling during an
// infrastructure outage.
package throttle

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/retailops/authcore/resilience"
)

// Limiter counts actions per identifier per time bucket. Safe for
// concurrent use; the read-then-increment is a single atomic INCR at
// the storage layer so concurrent bursts are never undercounted.
type Limiter struct {
	redis   redis.UniversalClient
	breaker *resilience.Breaker
	prefix  string
	now     func() time.Time

	// OnFailOpen is invoked whenever a counter-store failure causes a
	// request to be allowed unchecked. Optional.
	OnFailOpen func()
}

// New returns a Limiter writing keys under prefix. The breaker guards
// the counter store and may be shared with other cache users; it is
// optional.
func New(client redis.UniversalClient, prefix string, breaker *resilience.Breaker) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}

	return &Limiter{
		redis:   client,
		breaker: breaker,
		prefix:  prefix,
		now:     time.Now,
	}
}

// Allow records one action for identifier and reports whether it stays
// within limit for the current window. The first increment in a window
// stamps the bucket with a TTL of one window width.
//
// A nil limiter, a nonpositive limit, or a counter-store failure all
// allow the request.
func (l *Limiter) Allow(ctx context.Context, identifier string, limit int, window time.Duration) bool {
	if l == nil || limit <= 0 || window <= 0 {
		return true
	}

	key := l.bucketKey(identifier, window)

	var count int64
	op := func(ctx context.Context) error {
		var err error
		count, err = l.incrementWithTTL(ctx, key, window)
		return err
	}

	var err error
	if l.breaker != nil {
		err = l.breaker.Do(ctx, op)
	} else {
		err = op(ctx)
	}
	if err != nil {
		log.Printf("authcore: throttle check failed open for %q: %v", identifier, err)
		if l.OnFailOpen != nil {
			l.OnFailOpen()
		}
		return true
	}

	return count <= int64(limit)
}

func (l *Limiter) bucketKey(identifier string, window time.Duration) string {
	bucket := l.now().Unix() / int64(window/time.Second)
	return l.prefix + ":" + identifier + ":" + strconv.FormatInt(bucket, 10)
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("counter increment: %w", err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("counter expire: %w", err)
		}
	}

	return count, nil
}
