package timer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/fleetalert/pkg/database/redis"
)

const claimScript = `
local s = redis.call("ZSCORE", KEYS[1], ARGV[1])
if s and tonumber(s) <= tonumber(ARGV[2]) then
	return redis.call("ZREM", KEYS[1], ARGV[1])
end
return 0`

const addNXScript = `return redis.call("ZADD", KEYS[1], "NX", ARGV[2], ARGV[1])`

// RedisStore 基于有序集合的定时器存储，score 为触发时间（毫秒）
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore 创建存储，name 会加上客户端的键前缀
func NewRedisStore(client *redis.Client, name string) *RedisStore {
	if name == "" {
		name = "alert:timers"
	}
	return &RedisStore{client: client, key: client.Key(name)}
}

func (s *RedisStore) Schedule(ctx context.Context, t Timer) error {
	if err := s.client.ZAdd(ctx, s.key, redis.Z{Member: t.member(), Score: score(t.FireAt)}); err != nil {
		return fmt.Errorf("failed to schedule %s timer for %s: %w", t.Kind, t.AlertID, err)
	}
	return nil
}

func (s *RedisStore) ScheduleIfAbsent(ctx context.Context, t Timer) (bool, error) {
	res, err := s.client.Eval(ctx, addNXScript, []string{s.key}, t.member(), score(t.FireAt))
	if err != nil {
		return false, fmt.Errorf("failed to schedule %s timer for %s: %w", t.Kind, t.AlertID, err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func (s *RedisStore) Cancel(ctx context.Context, alertID string, kinds ...Kind) error {
	members := make([]string, 0, len(Kinds))
	for _, k := range kindsOrAll(kinds) {
		members = append(members, Timer{AlertID: alertID, Kind: k}.member())
	}
	if _, err := s.client.ZRem(ctx, s.key, members...); err != nil {
		return fmt.Errorf("failed to cancel timers for %s: %w", alertID, err)
	}
	return nil
}

func (s *RedisStore) Due(ctx context.Context, now time.Time, limit int) ([]Timer, error) {
	zs, err := s.client.ZRangeByScore(ctx, s.key, math.Inf(-1), score(now), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read due timers: %w", err)
	}
	out := make([]Timer, 0, len(zs))
	for _, z := range zs {
		t, err := parseMember(z.Member, z.Score)
		if err != nil {
			// 无法解析的成员直接移除，避免每轮都读到
			_, _ = s.client.ZRem(ctx, s.key, z.Member)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *RedisStore) Claim(ctx context.Context, t Timer, now time.Time) (bool, error) {
	res, err := s.client.Eval(ctx, claimScript, []string{s.key}, t.member(), score(now))
	if err != nil {
		return false, fmt.Errorf("failed to claim %s timer for %s: %w", t.Kind, t.AlertID, err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func (s *RedisStore) Get(ctx context.Context, alertID string, kind Kind) (Timer, bool, error) {
	t := Timer{AlertID: alertID, Kind: kind}
	v, err := s.client.ZScore(ctx, s.key, t.member())
	if errors.Is(err, redis.ErrNil) {
		return Timer{}, false, nil
	}
	if err != nil {
		return Timer{}, false, fmt.Errorf("failed to read timer: %w", err)
	}
	t.FireAt = time.UnixMilli(int64(v)).UTC()
	return t, true, nil
}

func (s *RedisStore) Len(ctx context.Context) (int64, error) {
	return s.client.ZCard(ctx, s.key)
}
