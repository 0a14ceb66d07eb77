package xpersist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/omeyang/xgrid/pkg/grid/xentry"
)

const (
	defaultKeyPrefix       = "xgrid:"
	defaultPurgeBatch      = 512
	defaultBreakerFailures = 5
	defaultBreakerOpenTime = 30 * time.Second
	defaultPurgeLockExpiry = 30 * time.Second
	fieldValue             = "v"
	fieldLifespan          = "ls"
	fieldMaxIdle           = "mi"
	fieldCreated           = "c"
	fieldLastUsed          = "lu"
)

// RedisStoreOption 定义 RedisStore 可选配置。
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix 设置 Redis key 前缀，默认 "xgrid:"。
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRedisShared 将存储标记为共享存储。
func WithRedisShared(shared bool) RedisStoreOption {
	return func(s *RedisStore) {
		s.chars.Shared = shared
	}
}

// WithPurgeValues 清理时先读出整行，回调中携带 value 与元数据。
// 默认只给出 key。
func WithPurgeValues(enabled bool) RedisStoreOption {
	return func(s *RedisStore) {
		s.purgeValues = enabled
	}
}

// WithPurgeBatch 设置单次清理最多处理的行数，默认 512。
func WithPurgeBatch(n int64) RedisStoreOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.purgeBatch = n
		}
	}
}

// WithPurgeLock 启用清理锁：同一时刻只有一个节点清理该存储。
// 仅对共享存储有意义。expiry 为锁的最长持有时间。
func WithPurgeLock(expiry time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		if expiry <= 0 {
			expiry = defaultPurgeLockExpiry
		}
		s.purgeLockExpiry = expiry
	}
}

// WithPurgeRate 限制所有节点合计每秒清理的行数。超出配额时本轮清理提前结束，
// 剩余的行留给下一轮。
func WithPurgeRate(perSecond int) RedisStoreOption {
	return func(s *RedisStore) {
		s.purgeRate = perSecond
	}
}

// WithBreaker 设置熔断参数：连续失败 failures 次打开，openTimeout 后进入半开。
func WithBreaker(failures uint32, openTimeout time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		if failures > 0 {
			s.breakerFailures = failures
		}
		if openTimeout > 0 {
			s.breakerOpenTime = openTimeout
		}
	}
}

// WithRedisLogger 设置日志记录器，nil 时忽略。
func WithRedisLogger(l *slog.Logger) RedisStoreOption {
	return func(s *RedisStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// RedisStore 是基于 Redis 的存储。
//
// 每行保存为 hash（prefix+"row:"+key），可过期的行同时登记在 ZSET 过期索引
// （prefix+"expiry"，score 为过期时刻的 Unix 微秒）中。
// 清理时按索引取出到期的 key，在 WATCH 行 key 的事务中复核后删除，
// 期间被重写的行会使事务失败并被跳过。
type RedisStore struct {
	name   string
	client redis.UniversalClient
	chars  Characteristics
	logger *slog.Logger

	prefix          string
	purgeValues     bool
	purgeBatch      int64
	purgeLockExpiry time.Duration
	purgeRate       int
	breakerFailures uint32
	breakerOpenTime time.Duration

	cb      *gobreaker.CircuitBreaker[any]
	rs      *redsync.Redsync
	limiter *redis_rate.Limiter
}

// NewRedisStore 创建 Redis 存储。client 由调用方管理生命周期。
func NewRedisStore(name string, client redis.UniversalClient, opts ...RedisStoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	s := &RedisStore{
		name:            name,
		client:          client,
		logger:          slog.Default(),
		prefix:          defaultKeyPrefix,
		purgeBatch:      defaultPurgeBatch,
		breakerFailures: defaultBreakerFailures,
		breakerOpenTime: defaultBreakerOpenTime,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "xpersist:" + name,
		MaxRequests: 1,
		Timeout:     s.breakerOpenTime,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.breakerFailures
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("xpersist: store breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	if s.purgeLockExpiry > 0 {
		s.rs = redsync.New(goredis.NewPool(client))
	}
	if s.purgeRate > 0 {
		s.limiter = redis_rate.NewLimiter(client)
	}
	return s, nil
}

// isBreakerSuccess 报告 err 是否不应计入熔断失败。
// 缺失、乐观事务冲突和调用方取消都不代表存储故障。
func isBreakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, redis.Nil) ||
		errors.Is(err, redis.TxFailedErr) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (s *RedisStore) Name() string { return s.name }

func (s *RedisStore) Characteristics() Characteristics { return s.chars }

func (s *RedisStore) rowKey(key string) string { return s.prefix + "row:" + key }

func (s *RedisStore) indexKey() string { return s.prefix + "expiry" }

// exec 在熔断器保护下执行 fn。
func (s *RedisStore) exec(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, s.name, err)
	}
	return err
}

func (s *RedisStore) Load(ctx context.Context, key string) (*Row, error) {
	var row *Row
	err := s.exec(ctx, func() error {
		fields, err := s.client.HGetAll(ctx, s.rowKey(key)).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return nil
		}
		row, err = decodeRow(key, fields)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("xpersist: load %q from %s: %w", key, s.name, err)
	}
	return row, nil
}

func (s *RedisStore) Write(ctx context.Context, row Row) error {
	err := s.exec(ctx, func() error {
		_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			md := row.Metadata
			p.HSet(ctx, s.rowKey(row.Key),
				fieldValue, row.Value,
				fieldLifespan, int64(md.Lifespan),
				fieldMaxIdle, int64(md.MaxIdle),
				fieldCreated, md.Created.UnixNano(),
				fieldLastUsed, md.LastUsed.UnixNano(),
			)
			if at := md.ExpiresAt(); !at.IsZero() {
				p.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(expiryScore(at)), Member: row.Key})
			} else {
				p.ZRem(ctx, s.indexKey(), row.Key)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("xpersist: write %q to %s: %w", row.Key, s.name, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	var deleted bool
	err := s.exec(ctx, func() error {
		var del *redis.IntCmd
		_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			del = p.Del(ctx, s.rowKey(key))
			p.ZRem(ctx, s.indexKey(), key)
			return nil
		})
		if err != nil {
			return err
		}
		deleted = del.Val() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("xpersist: delete %q from %s: %w", key, s.name, err)
	}
	return deleted, nil
}

// PurgeExpired 删除在 now 时刻到期的行。
func (s *RedisStore) PurgeExpired(ctx context.Context, now time.Time, fn func(PurgedRow)) error {
	if s.rs != nil {
		mu := s.rs.NewMutex(s.prefix+"purge-lock",
			redsync.WithExpiry(s.purgeLockExpiry),
			redsync.WithTries(1))
		if err := mu.TryLockContext(ctx); err != nil {
			var taken *redsync.ErrTaken
			if errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed) {
				s.logger.LogAttrs(ctx, slog.LevelDebug, "xpersist: purge lock held elsewhere, skipping",
					slog.String("store", s.name))
				return nil
			}
			return fmt.Errorf("xpersist: acquire purge lock on %s: %w", s.name, err)
		}
		defer func() {
			if _, err := mu.UnlockContext(context.WithoutCancel(ctx)); err != nil {
				s.logger.LogAttrs(ctx, slog.LevelWarn, "xpersist: release purge lock",
					slog.String("store", s.name), slog.Any("error", err))
			}
		}()
	}

	upper := strconv.FormatInt(now.UnixMicro(), 10)
	var keys []string
	err := s.exec(ctx, func() error {
		var err error
		keys, err = s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   upper,
			Count: s.purgeBatch,
		}).Result()
		return err
	})
	if err != nil {
		return fmt.Errorf("xpersist: scan expiry index of %s: %w", s.name, err)
	}

	nowScore := float64(now.UnixMicro())
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.allowPurge(ctx) {
			s.logger.LogAttrs(ctx, slog.LevelDebug, "xpersist: purge rate exceeded, deferring remaining rows",
				slog.String("store", s.name))
			return nil
		}
		row, ok, err := s.purgeOne(ctx, key, nowScore)
		if err != nil {
			return fmt.Errorf("xpersist: purge %q from %s: %w", key, s.name, err)
		}
		if ok {
			fn(row)
		}
	}
	return nil
}

func (s *RedisStore) allowPurge(ctx context.Context) bool {
	if s.limiter == nil {
		return true
	}
	res, err := s.limiter.Allow(ctx, s.prefix+"purge-rate", redis_rate.PerSecond(s.purgeRate))
	if err != nil {
		// 限速器故障不阻止清理
		s.logger.LogAttrs(ctx, slog.LevelWarn, "xpersist: purge rate limiter",
			slog.String("store", s.name), slog.Any("error", err))
		return true
	}
	return res.Allowed > 0
}

// purgeOne 在 WATCH 行 key 的事务中复核并删除一行。
// 行在复核后被改写时事务失败，返回 ok=false。
func (s *RedisStore) purgeOne(ctx context.Context, key string, nowScore float64) (PurgedRow, bool, error) {
	out := PurgedRow{Key: key}
	var purged bool
	rowKey := s.rowKey(key)
	err := s.exec(ctx, func() error {
		return s.client.Watch(ctx, func(tx *redis.Tx) error {
			score, err := tx.ZScore(ctx, s.indexKey(), key).Result()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}
			if score > nowScore {
				return nil
			}
			if s.purgeValues {
				fields, err := tx.HGetAll(ctx, rowKey).Result()
				if err != nil {
					return err
				}
				if len(fields) > 0 {
					row, err := decodeRow(key, fields)
					if err != nil {
						return err
					}
					out.Value = row.Value
					out.Metadata = &row.Metadata
				}
			}
			var del *redis.IntCmd
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				del = p.Del(ctx, rowKey)
				p.ZRem(ctx, s.indexKey(), key)
				return nil
			})
			if err != nil {
				return err
			}
			purged = del.Val() > 0
			return nil
		}, rowKey)
	})
	if errors.Is(err, redis.TxFailedErr) {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "xpersist: row rewritten during purge, skipping",
			slog.String("store", s.name), slog.String("key", key))
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	return out, purged, nil
}

// Clear 删除本存储前缀下的全部行与过期索引。
// 对 Redis Cluster 只扫描客户端路由到的节点。
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.exec(ctx, func() error {
		iter := s.client.Scan(ctx, 0, s.prefix+"row:*", 256).Iterator()
		batch := make([]string, 0, 256)
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == cap(batch) {
				if err := s.client.Del(ctx, batch...).Err(); err != nil {
					return err
				}
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return err
		}
		batch = append(batch, s.indexKey())
		return s.client.Del(ctx, batch...).Err()
	})
}

// expiryScore 返回过期时刻的 Unix 微秒，不足一微秒的部分向上取整，
// 保证索引不会早于真实过期时刻。
func expiryScore(at time.Time) int64 {
	us := at.UnixMicro()
	if at.Nanosecond()%int(time.Microsecond) != 0 {
		us++
	}
	return us
}

func decodeRow(key string, fields map[string]string) (*Row, error) {
	parse := func(f string) (int64, error) {
		v, err := strconv.ParseInt(fields[f], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q field %s: %w", ErrCorruptRow, key, f, err)
		}
		return v, nil
	}
	ls, err := parse(fieldLifespan)
	if err != nil {
		return nil, err
	}
	mi, err := parse(fieldMaxIdle)
	if err != nil {
		return nil, err
	}
	c, err := parse(fieldCreated)
	if err != nil {
		return nil, err
	}
	lu, err := parse(fieldLastUsed)
	if err != nil {
		return nil, err
	}
	return &Row{
		Key:   key,
		Value: []byte(fields[fieldValue]),
		Metadata: xentry.Metadata{
			Lifespan: time.Duration(ls),
			MaxIdle:  time.Duration(mi),
			Created:  time.Unix(0, c),
			LastUsed: time.Unix(0, lu),
		},
	}, nil
}
