package postgres

import (
	"fmt"
	"net/url"
	"time"
)

// DBConfig 单个数据库实例配置
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
	SSLMode  string `mapstructure:"ssl_mode"` // disable, require, verify-ca, verify-full
}

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// Config PostgreSQL 配置
// Primary 承担全部写入，Replicas 为空时读请求也走 Primary
type Config struct {
	Primary  DBConfig   `mapstructure:"primary"`
	Replicas []DBConfig `mapstructure:"replicas"`

	Pool PoolConfig `mapstructure:"pool"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Primary: DBConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			DBName:  "fleetalert",
			SSLMode: "disable",
		},
		Pool: PoolConfig{
			MaxConns:          25,
			MinConns:          2,
			MaxConnLifetime:   time.Hour,
			MaxConnIdleTime:   30 * time.Minute,
			HealthCheckPeriod: time.Minute,
		},
		ConnectTimeout: 10 * time.Second,
		QueryTimeout:   5 * time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := c.Primary.validate(); err != nil {
		return fmt.Errorf("primary: %w", err)
	}
	for i := range c.Replicas {
		if err := c.Replicas[i].validate(); err != nil {
			return fmt.Errorf("replica %d: %w", i, err)
		}
	}
	if c.Pool.MaxConns <= 0 {
		return fmt.Errorf("%w: max_conns must be positive", ErrInvalidConfig)
	}
	if c.Pool.MinConns < 0 || c.Pool.MinConns > c.Pool.MaxConns {
		return fmt.Errorf("%w: min_conns must be within [0, max_conns]", ErrInvalidConfig)
	}
	return nil
}

func (d *DBConfig) validate() error {
	switch {
	case d.Host == "":
		return fmt.Errorf("%w: host is empty", ErrInvalidConfig)
	case d.Port <= 0 || d.Port > 65535:
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, d.Port)
	case d.User == "":
		return fmt.Errorf("%w: user is empty", ErrInvalidConfig)
	case d.DBName == "":
		return fmt.Errorf("%w: db_name is empty", ErrInvalidConfig)
	}
	return nil
}

// DSN 构建 pgx 连接串
func (d *DBConfig) DSN(connectTimeout time.Duration) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.DBName,
	}
	q := u.Query()
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	if connectTimeout > 0 {
		q.Set("connect_timeout", fmt.Sprintf("%d", int(connectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
