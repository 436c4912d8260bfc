package logger

import (
	"os"
	"sync"
)

var (
	defaultLogger   Logger
	defaultLoggerMu sync.RWMutex
)

// SetDefault 设置进程级默认 logger
func SetDefault(l Logger) {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = l
}

// Default 获取默认 logger，未设置时按环境变量懒加载一个控制台 logger
// 环境变量: FLEETALERT_LOG_LEVEL / FLEETALERT_LOG_FORMAT
func Default() Logger {
	defaultLoggerMu.RLock()
	l := defaultLogger
	defaultLoggerMu.RUnlock()
	if l != nil {
		return l
	}

	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	if defaultLogger != nil {
		return defaultLogger
	}
	cfg := &Config{}
	if level := os.Getenv("FLEETALERT_LOG_LEVEL"); level != "" {
		cfg.Level = Level(level)
	}
	if format := os.Getenv("FLEETALERT_LOG_FORMAT"); format != "" {
		cfg.Format = Format(format)
	}
	bl, err := New(cfg)
	if err != nil {
		defaultLogger = NewNoop()
	} else {
		defaultLogger = bl
	}
	return defaultLogger
}
