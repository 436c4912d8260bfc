package redis

import "errors"

var (
	// ErrNilConfig 配置为空
	ErrNilConfig = errors.New("redis: config is nil")

	// ErrInvalidConfig 必须且只能配置 standalone 或 cluster 之一
	ErrInvalidConfig = errors.New("redis: invalid config, exactly one of standalone or cluster is required")

	// ErrNil 键不存在
	ErrNil = errors.New("redis: nil")

	// ErrLockFailed 获取锁失败
	ErrLockFailed = errors.New("redis: failed to acquire lock")

	// ErrLockNotHeld 锁已过期或被其他持有者占用
	ErrLockNotHeld = errors.New("redis: lock not held")
)
