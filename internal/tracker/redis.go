package tracker

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces tracker keys in Redis.
const DefaultKeyPrefix = "leadcrawler:tracker:"

// Redis is a Tracker backed by a Redis server. Counters are plain integer
// keys and the blacklist is a set, so SADD tells exactly one caller that it
// blacklisted the domain.
type Redis struct {
	client    redis.Cmdable
	threshold int
	prefix    string
	ttl       time.Duration
}

// RedisOption configures a Redis tracker.
type RedisOption func(*Redis)

// WithKeyPrefix sets the key namespace, e.g. per run.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// WithTTL expires counters and the blacklist set after ttl of inactivity.
// Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

// NewRedis returns a Tracker using client. A threshold below 1 falls back
// to DefaultThreshold.
func NewRedis(client redis.Cmdable, threshold int, opts ...RedisOption) *Redis {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	r := &Redis{
		client:    client,
		threshold: threshold,
		prefix:    DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Threshold returns the configured failure threshold.
func (r *Redis) Threshold() int {
	return r.threshold
}

func (r *Redis) counterKey(domain string) string {
	return r.prefix + "failures:" + domain
}

func (r *Redis) blacklistKey() string {
	return r.prefix + "blacklist"
}

// RecordFailure implements Tracker.
func (r *Redis) RecordFailure(ctx context.Context, domain string) (Status, error) {
	key := r.counterKey(domain)
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return Status{}, fmt.Errorf("redis incr %s: %w", key, err)
	}
	if r.ttl > 0 {
		if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
			return Status{}, fmt.Errorf("redis expire %s: %w", key, err)
		}
	}

	st := Status{Failures: int(n)}
	if st.Failures < r.threshold {
		blacklisted, err := r.IsBlacklisted(ctx, domain)
		if err != nil {
			return Status{}, err
		}
		st.Blacklisted = blacklisted
		return st, nil
	}

	added, err := r.client.SAdd(ctx, r.blacklistKey(), domain).Result()
	if err != nil {
		return Status{}, fmt.Errorf("redis sadd %s: %w", r.blacklistKey(), err)
	}
	if r.ttl > 0 {
		if err := r.client.Expire(ctx, r.blacklistKey(), r.ttl).Err(); err != nil {
			return Status{}, fmt.Errorf("redis expire %s: %w", r.blacklistKey(), err)
		}
	}
	st.Blacklisted = true
	st.Transitioned = added == 1
	return st, nil
}

// RecordSuccess implements Tracker.
func (r *Redis) RecordSuccess(ctx context.Context, domain string) error {
	if err := r.client.Del(ctx, r.counterKey(domain)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", r.counterKey(domain), err)
	}
	return nil
}

// IsBlacklisted implements Tracker.
func (r *Redis) IsBlacklisted(ctx context.Context, domain string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.blacklistKey(), domain).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember %s: %w", r.blacklistKey(), err)
	}
	return ok, nil
}

// Reset implements Tracker.
func (r *Redis) Reset(ctx context.Context, domain string) error {
	if err := r.client.Del(ctx, r.counterKey(domain)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", r.counterKey(domain), err)
	}
	if err := r.client.SRem(ctx, r.blacklistKey(), domain).Err(); err != nil {
		return fmt.Errorf("redis srem %s: %w", r.blacklistKey(), err)
	}
	return nil
}

// Blacklisted implements Tracker.
func (r *Redis) Blacklisted(ctx context.Context) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.blacklistKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", r.blacklistKey(), err)
	}
	slices.Sort(members)
	return members, nil
}
