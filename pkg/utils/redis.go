package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig controls redis client behavior.
type RedisConfig struct {
	Addr string

	// Basic timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	PingTimeout time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 3 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 2 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 2 * time.Second
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 10
	}
	if out.MinIdleConns < 0 {
		out.MinIdleConns = 0
	}
	if out.PoolTimeout <= 0 {
		out.PoolTimeout = 4 * time.Second
	}
	if out.ConnMaxIdleTime <= 0 {
		out.ConnMaxIdleTime = 5 * time.Minute
	}
	if out.ConnMaxLifetime <= 0 {
		out.ConnMaxLifetime = 30 * time.Minute
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// OpenRedis initializes a Redis client and validates connectivity via PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		PoolTimeout:     cfg.PoolTimeout,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// Line cap: a Redis counter bounding how many calls are in flight across every
// dialer process sharing the same outbound numbers.
var lineAcquireScript = redis.NewScript(`
-- KEYS[1] = counter key
-- ARGV[1] = limit
-- ARGV[2] = ttl_ms
-- returns 1 when a line was taken, 0 when all lines are busy
local current = redis.call('INCR', KEYS[1])
if current == 1 or redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return 0
end
return 1
`)

var lineReleaseScript = redis.NewScript(`
-- KEYS[1] = counter key
local current = redis.call('DECR', KEYS[1])
if current <= 0 then
  redis.call('DEL', KEYS[1])
end
return current
`)

// ErrLinesBusy is returned by LineCap.Wait when no line freed up in time.
var ErrLinesBusy = errors.New("all outbound lines busy")

// LineCap is a cross-process concurrency cap.
//
// The TTL bounds how long a crashed holder can keep a line.
type LineCap struct {
	rdb   redis.Cmdable
	key   string
	limit int
	ttl   time.Duration
	poll  time.Duration
}

func NewLineCap(rdb redis.Cmdable, key string, limit int, ttl time.Duration) (*LineCap, error) {
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	if key == "" {
		return nil, errors.New("key is required")
	}
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be > 0")
	}
	return &LineCap{rdb: rdb, key: key, limit: limit, ttl: ttl, poll: 100 * time.Millisecond}, nil
}

// TryAcquire takes a line if one is free.
func (l *LineCap) TryAcquire(ctx context.Context) (bool, error) {
	res, err := lineAcquireScript.Run(ctx, l.rdb, []string{l.key}, l.limit, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("line cap acquire: %w", err)
	}
	return res == 1, nil
}

// Wait polls until a line is taken or ctx ends. A ctx that ends while every
// line is busy yields ErrLinesBusy.
func (l *LineCap) Wait(ctx context.Context) error {
	t := time.NewTicker(l.poll)
	defer t.Stop()
	for {
		ok, err := l.TryAcquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrLinesBusy, ctx.Err())
			}
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrLinesBusy, ctx.Err())
		case <-t.C:
		}
	}
}

// Release returns a line.
func (l *LineCap) Release(ctx context.Context) error {
	if _, err := lineReleaseScript.Run(ctx, l.rdb, []string{l.key}).Result(); err != nil {
		return fmt.Errorf("line cap release: %w", err)
	}
	return nil
}

// InUse reports the current counter value.
func (l *LineCap) InUse(ctx context.Context) (int, error) {
	n, err := l.rdb.Get(ctx, l.key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
