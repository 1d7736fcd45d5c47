package kvstore

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/config"
	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/errors"
)

// deleteBatchSize bounds how many keys a single DEL carries during
// pattern deletion.
const deleteBatchSize = 100

// RedisStore implements Store on top of a Redis client.
//
// Every call is bounded by the configured operation timeout and wrapped in
// a circuit breaker. When Redis is unreachable or the breaker is open, the
// returned errors are classified so callers can fail open: reads degrade
// to misses, writes to no-ops.
type RedisStore struct {
	client     *redis.Client
	serializer *Serializer
	breaker    *gobreaker.CircuitBreaker
	opTimeout  time.Duration
	observer   Observer
	tracer     trace.Tracer
	logger     *zap.Logger
}

// NewRedisStore creates a Store backed by Redis.
func NewRedisStore(cfg config.Redis, serializer *Serializer, observer Observer, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Store circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &RedisStore{
		client:     client,
		serializer: serializer,
		breaker:    breaker,
		opTimeout:  cfg.OpTimeout,
		observer:   observer,
		tracer:     otel.Tracer("kvstore"),
		logger:     logger,
	}
}

// do runs a store call under the operation timeout, the circuit breaker,
// and a trace span. fn must map redis.Nil to a successful miss before
// returning so that misses never count as breaker failures.
func (s *RedisStore) do(ctx context.Context, op, key string, fn func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	spanCtx, span := s.tracer.Start(opCtx, "kvstore."+op, trace.WithAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("cache.key", key),
	))
	defer span.End()

	_, err := s.breaker.Execute(func() (any, error) {
		return nil, fn(spanCtx)
	})
	if err != nil {
		err = s.classify(op, err)
		span.RecordError(err)
		s.logger.Warn("Store operation failed",
			zap.String("operation", op),
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return err
}

func (s *RedisStore) classify(op string, err error) error {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewTimeout("kvstore."+op, err)
	case stderrors.Is(err, gobreaker.ErrOpenState), stderrors.Is(err, gobreaker.ErrTooManyRequests):
		return errors.NewUnavailable("kvstore."+op, err)
	default:
		return errors.NewUnavailable("kvstore."+op, err)
	}
}

func (s *RedisStore) observe(op, key string, hit bool, start time.Time, err error) {
	if s.observer != nil {
		s.observer.Observe(op, key, hit, time.Since(start), err)
	}
}

// ============================================================================
// STRING / COUNTER OPERATIONS
// ============================================================================

func (s *RedisStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, found, err := s.GetRaw(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := s.serializer.Decode(raw, dest); err != nil {
		// Corrupt payload: treated as a miss, superseded on next write.
		s.logger.Warn("Cached payload failed to decode, treating as miss",
			zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (s *RedisStore) GetRaw(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	var raw string
	found := false
	err := s.do(ctx, "get", key, func(ctx context.Context) error {
		val, err := s.client.Get(ctx, key).Result()
		if stderrors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		raw = val
		found = true
		return nil
	})
	s.observe("get", key, found, start, err)
	if err != nil {
		return "", false, err
	}
	return raw, found, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	start := time.Now()
	encoded, err := s.serializer.Encode(value)
	if err != nil {
		return err
	}
	err = s.do(ctx, "set", key, func(ctx context.Context) error {
		return s.client.Set(ctx, key, encoded, ttl).Err()
	})
	s.observe("set", key, err == nil, start, err)
	return err
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	start := time.Now()
	var deleted int64
	err := s.do(ctx, "delete", keys[0], func(ctx context.Context) error {
		n, err := s.client.Del(ctx, keys...).Result()
		deleted = n
		return err
	})
	s.observe("delete", keys[0], err == nil, start, err)
	return deleted, err
}

func (s *RedisStore) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	start := time.Now()
	var deleted int64
	err := s.do(ctx, "delete_pattern", pattern, func(ctx context.Context) error {
		iter := s.client.Scan(ctx, 0, pattern, 200).Iterator()
		batch := make([]string, 0, deleteBatchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			n, err := s.client.Del(ctx, batch...).Result()
			if err != nil {
				return err
			}
			deleted += n
			batch = batch[:0]
			return nil
		}
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) >= deleteBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := iter.Err(); err != nil {
			return err
		}
		return flush()
	})
	s.observe("delete_pattern", pattern, err == nil, start, err)
	return deleted, err
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	var exists bool
	err := s.do(ctx, "exists", key, func(ctx context.Context) error {
		n, err := s.client.Exists(ctx, key).Result()
		exists = n > 0
		return err
	})
	s.observe("exists", key, exists, start, err)
	return exists, err
}

func (s *RedisStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	start := time.Now()
	var val int64
	err := s.do(ctx, "increment", key, func(ctx context.Context) error {
		n, err := s.client.IncrBy(ctx, key, delta).Result()
		val = n
		return err
	})
	s.observe("increment", key, err == nil, start, err)
	return val, err
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	start := time.Now()
	err := s.do(ctx, "expire", key, func(ctx context.Context) error {
		return s.client.Expire(ctx, key, ttl).Err()
	})
	s.observe("expire", key, err == nil, start, err)
	return err
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	start := time.Now()
	var ttl time.Duration
	err := s.do(ctx, "ttl", key, func(ctx context.Context) error {
		d, err := s.client.TTL(ctx, key).Result()
		ttl = d
		return err
	})
	s.observe("ttl", key, err == nil, start, err)
	return ttl, err
}

func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	start := time.Now()
	var keys []string
	err := s.do(ctx, "keys", pattern, func(ctx context.Context) error {
		iter := s.client.Scan(ctx, 0, pattern, 200).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		return iter.Err()
	})
	s.observe("keys", pattern, err == nil, start, err)
	return keys, err
}

func (s *RedisStore) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	start := time.Now()
	results := make([]*string, len(keys))
	anyHit := false
	err := s.do(ctx, "mget", keys[0], func(ctx context.Context) error {
		vals, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		for i, v := range vals {
			if str, ok := v.(string); ok {
				results[i] = &str
				anyHit = true
			}
		}
		return nil
	})
	s.observe("mget", keys[0], anyHit, start, err)
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *RedisStore) MSet(ctx context.Context, values map[string]any, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}
	start := time.Now()
	encoded := make(map[string]string, len(values))
	for k, v := range values {
		e, err := s.serializer.Encode(v)
		if err != nil {
			return err
		}
		encoded[k] = e
	}
	err := s.do(ctx, "mset", "", func(ctx context.Context) error {
		pipe := s.client.TxPipeline()
		for k, v := range encoded {
			pipe.Set(ctx, k, v, ttl)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	s.observe("mset", "", err == nil, start, err)
	return err
}

// ============================================================================
// SORTED-SET OPERATIONS
// ============================================================================

func (s *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	start := time.Now()
	err := s.do(ctx, "zadd", key, func(ctx context.Context) error {
		return s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
	})
	s.observe("zadd", key, err == nil, start, err)
	return err
}

func (s *RedisStore) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	start := time.Now()
	var removed int64
	err := s.do(ctx, "zrem", key, func(ctx context.Context) error {
		n, err := s.client.ZRem(ctx, key, toAnySlice(members)...).Result()
		removed = n
		return err
	})
	s.observe("zrem", key, err == nil, start, err)
	return removed, err
}

func (s *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	var card int64
	err := s.do(ctx, "zcard", key, func(ctx context.Context) error {
		n, err := s.client.ZCard(ctx, key).Result()
		card = n
		return err
	})
	s.observe("zcard", key, err == nil, start, err)
	return card, err
}

func (s *RedisStore) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	start := time.Now()
	var score float64
	found := false
	err := s.do(ctx, "zscore", key, func(ctx context.Context) error {
		v, err := s.client.ZScore(ctx, key, member).Result()
		if stderrors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		score = v
		found = true
		return nil
	})
	s.observe("zscore", key, found, start, err)
	return score, found, err
}

func (s *RedisStore) ZRange(ctx context.Context, key string, startIdx, stop int64) ([]string, error) {
	start := time.Now()
	var members []string
	err := s.do(ctx, "zrange", key, func(ctx context.Context) error {
		vals, err := s.client.ZRange(ctx, key, startIdx, stop).Result()
		members = vals
		return err
	})
	s.observe("zrange", key, err == nil, start, err)
	return members, err
}

func (s *RedisStore) ZRevRange(ctx context.Context, key string, startIdx, stop int64) ([]string, error) {
	start := time.Now()
	var members []string
	err := s.do(ctx, "zrevrange", key, func(ctx context.Context) error {
		vals, err := s.client.ZRevRange(ctx, key, startIdx, stop).Result()
		members = vals
		return err
	})
	s.observe("zrevrange", key, err == nil, start, err)
	return members, err
}

func (s *RedisStore) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	start := time.Now()
	var members []string
	err := s.do(ctx, "zrangebyscore", key, func(ctx context.Context) error {
		vals, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
			Min: formatScore(min),
			Max: formatScore(max),
		}).Result()
		members = vals
		return err
	})
	s.observe("zrangebyscore", key, err == nil, start, err)
	return members, err
}

func (s *RedisStore) ZRangeByScoreWithScores(ctx context.Context, key string, min, max float64) ([]ZMember, error) {
	start := time.Now()
	var members []ZMember
	err := s.do(ctx, "zrangebyscore", key, func(ctx context.Context) error {
		zs, err := s.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
			Min: formatScore(min),
			Max: formatScore(max),
		}).Result()
		if err != nil {
			return err
		}
		members = make([]ZMember, 0, len(zs))
		for _, z := range zs {
			if m, ok := z.Member.(string); ok {
				members = append(members, ZMember{Member: m, Score: z.Score})
			}
		}
		return nil
	})
	s.observe("zrangebyscore", key, err == nil, start, err)
	return members, err
}

func (s *RedisStore) ZIncrBy(ctx context.Context, key string, incr float64, member string) (float64, error) {
	start := time.Now()
	var score float64
	err := s.do(ctx, "zincrby", key, func(ctx context.Context) error {
		v, err := s.client.ZIncrBy(ctx, key, incr, member).Result()
		score = v
		return err
	})
	s.observe("zincrby", key, err == nil, start, err)
	return score, err
}

// ============================================================================
// SET OPERATIONS
// ============================================================================

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	start := time.Now()
	var added int64
	err := s.do(ctx, "sadd", key, func(ctx context.Context) error {
		n, err := s.client.SAdd(ctx, key, toAnySlice(members)...).Result()
		added = n
		return err
	})
	s.observe("sadd", key, err == nil, start, err)
	return added, err
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	start := time.Now()
	var removed int64
	err := s.do(ctx, "srem", key, func(ctx context.Context) error {
		n, err := s.client.SRem(ctx, key, toAnySlice(members)...).Result()
		removed = n
		return err
	})
	s.observe("srem", key, err == nil, start, err)
	return removed, err
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	start := time.Now()
	var members []string
	err := s.do(ctx, "smembers", key, func(ctx context.Context) error {
		vals, err := s.client.SMembers(ctx, key).Result()
		members = vals
		return err
	})
	s.observe("smembers", key, err == nil, start, err)
	return members, err
}

func (s *RedisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	start := time.Now()
	var isMember bool
	err := s.do(ctx, "sismember", key, func(ctx context.Context) error {
		v, err := s.client.SIsMember(ctx, key, member).Result()
		isMember = v
		return err
	})
	s.observe("sismember", key, isMember, start, err)
	return isMember, err
}

func (s *RedisStore) SCard(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	var card int64
	err := s.do(ctx, "scard", key, func(ctx context.Context) error {
		n, err := s.client.SCard(ctx, key).Result()
		card = n
		return err
	})
	s.observe("scard", key, err == nil, start, err)
	return card, err
}

// ============================================================================
// LIFECYCLE
// ============================================================================

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errors.NewUnavailable("kvstore.ping", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func toAnySlice(members []string) []any {
	out := make([]any, len(members))
	for i, m := range members {
		out[i] = m
	}
	return out
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
