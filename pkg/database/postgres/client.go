package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lk2023060901/fleetalert/pkg/config"
	"github.com/lk2023060901/fleetalert/pkg/logger"
)

// Querier 连接池与事务共同实现的查询接口
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Client PostgreSQL 客户端
type Client struct {
	cfg      *Config
	primary  *pgxpool.Pool
	replicas []*pgxpool.Pool
	next     atomic.Uint64
	logger   logger.Logger
}

// New 创建客户端并验证连通性，只读副本不可用时降级为只用主库
func New(cfg *Config, l logger.Logger) (*Client, error) {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	if l == nil {
		l = logger.NewNoop()
	}

	c := &Client{cfg: merged, logger: l.Named("postgres")}
	if c.primary, err = c.openPool(&merged.Primary); err != nil {
		return nil, fmt.Errorf("failed to open primary: %w", err)
	}
	for i := range merged.Replicas {
		pool, err := c.openPool(&merged.Replicas[i])
		if err != nil {
			c.logger.Warn("replica unavailable, reads fall back to primary", "index", i, "error", err)
			continue
		}
		c.replicas = append(c.replicas, pool)
	}
	return c, nil
}

func (c *Client) openPool(db *DBConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(db.DSN(c.cfg.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}
	pc.MaxConns = c.cfg.Pool.MaxConns
	pc.MinConns = c.cfg.Pool.MinConns
	pc.MaxConnLifetime = c.cfg.Pool.MaxConnLifetime
	pc.MaxConnIdleTime = c.cfg.Pool.MaxConnIdleTime
	pc.HealthCheckPeriod = c.cfg.Pool.HealthCheckPeriod

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Primary 返回主库 Querier
func (c *Client) Primary() Querier {
	return c.primary
}

// Reader 返回读库 Querier，多个副本间轮询
func (c *Client) Reader() Querier {
	if len(c.replicas) == 0 {
		return c.primary
	}
	return c.replicas[c.next.Add(1)%uint64(len(c.replicas))]
}

// WithTimeout 为查询附加配置的超时
func (c *Client) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.QueryTimeout)
}

// Ping 检查主库连接
func (c *Client) Ping(ctx context.Context) error {
	if err := c.primary.Ping(ctx); err != nil {
		return fmt.Errorf("primary ping failed: %w", err)
	}
	return nil
}

// Close 关闭所有连接池
func (c *Client) Close() error {
	c.primary.Close()
	for _, r := range c.replicas {
		r.Close()
	}
	return nil
}

// TranslateError 将 pgx 错误映射为包内哨兵错误
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoRows
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.ConstraintName)
	}
	return err
}
