package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lk2023060901/fleetalert/pkg/config"
	goredis "github.com/redis/go-redis/v9"
)

// Z 有序集合成员
type Z struct {
	Member string
	Score  float64
}

// Client Redis 客户端，对外隐藏 go-redis 类型
type Client struct {
	rdb    goredis.UniversalClient
	prefix string
}

// NewClient 创建 Redis 客户端
func NewClient(cfg *Config) (*Client, error) {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	p := merged.Pool
	var rdb goredis.UniversalClient
	if merged.Standalone != nil {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:            merged.Standalone.Addr,
			Password:        merged.Standalone.Password,
			DB:              merged.Standalone.DB,
			PoolSize:        p.PoolSize,
			MinIdleConns:    p.MinIdleConns,
			ConnMaxIdleTime: p.ConnMaxIdleTime,
			DialTimeout:     p.DialTimeout,
			ReadTimeout:     p.ReadTimeout,
			WriteTimeout:    p.WriteTimeout,
		})
	} else {
		rdb = goredis.NewClusterClient(&goredis.ClusterOptions{
			Addrs:           merged.Cluster.Addrs,
			Password:        merged.Cluster.Password,
			PoolSize:        p.PoolSize,
			MinIdleConns:    p.MinIdleConns,
			ConnMaxIdleTime: p.ConnMaxIdleTime,
			DialTimeout:     p.DialTimeout,
			ReadTimeout:     p.ReadTimeout,
			WriteTimeout:    p.WriteTimeout,
		})
	}
	return &Client{rdb: rdb, prefix: merged.KeyPrefix}, nil
}

// Key 为业务键加上统一前缀
func (c *Client) Key(name string) string {
	return c.prefix + name
}

func translate(err error) error {
	if errors.Is(err, goredis.Nil) {
		return ErrNil
	}
	return err
}

// Ping 检查连接
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Get 读取字符串，键不存在返回 ErrNil
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	return v, translate(err)
}

// Set 写入字符串
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// SetNX 仅在键不存在时写入
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

// Del 删除键
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	return c.rdb.Del(ctx, keys...).Result()
}

// ZAdd 写入有序集合成员，已存在时覆盖分数
func (c *Client) ZAdd(ctx context.Context, key string, members ...Z) error {
	zs := make([]goredis.Z, len(members))
	for i, m := range members {
		zs[i] = goredis.Z{Score: m.Score, Member: m.Member}
	}
	return c.rdb.ZAdd(ctx, key, zs...).Err()
}

// ZRem 删除有序集合成员，返回实际删除数量
func (c *Client) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.rdb.ZRem(ctx, key, args...).Result()
}

// ZRangeByScore 按分数区间读取成员 (含分数)，limit<=0 表示不限制
func (c *Client) ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]Z, error) {
	opt := &goredis.ZRangeBy{
		Min: strconv.FormatFloat(min, 'f', -1, 64),
		Max: strconv.FormatFloat(max, 'f', -1, 64),
	}
	if limit > 0 {
		opt.Count = limit
	}
	res, err := c.rdb.ZRangeByScoreWithScores(ctx, key, opt).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Z, 0, len(res))
	for _, z := range res {
		member, _ := z.Member.(string)
		out = append(out, Z{Member: member, Score: z.Score})
	}
	return out, nil
}

// ZScore 读取成员分数，不存在返回 ErrNil
func (c *Client) ZScore(ctx context.Context, key, member string) (float64, error) {
	v, err := c.rdb.ZScore(ctx, key, member).Result()
	return v, translate(err)
}

// ZCard 有序集合大小
func (c *Client) ZCard(ctx context.Context, key string) (int64, error) {
	return c.rdb.ZCard(ctx, key).Result()
}

// Eval 执行 Lua 脚本
func (c *Client) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	v, err := c.rdb.Eval(ctx, script, keys, args...).Result()
	return v, translate(err)
}
