package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Manager 基于 viper 的配置管理器
type Manager struct {
	v         *viper.Viper
	mu        sync.RWMutex
	callbacks []func(path string)
	watching  bool
}

// Option 配置选项
type Option func(*Manager)

// WithViper 使用外部构造的 viper 实例（例如已绑定命令行参数）
func WithViper(v *viper.Viper) Option {
	return func(m *Manager) {
		if v != nil {
			m.v = v
		}
	}
}

// WithDefaults 设置默认配置值
func WithDefaults(defaults map[string]any) Option {
	return func(m *Manager) {
		for k, v := range defaults {
			m.v.SetDefault(k, v)
		}
	}
}

// NewManager 创建配置管理器
func NewManager(opts ...Option) *Manager {
	m := &Manager{v: viper.New()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadFile 加载配置文件，格式由扩展名决定
func (m *Manager) LoadFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.v.SetConfigFile(path)
	if err := m.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// BindEnv 绑定环境变量，prefix=FLEETALERT 时 FLEETALERT_HTTP_ADDR 对应 http.addr
func (m *Manager) BindEnv(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prefix != "" {
		m.v.SetEnvPrefix(prefix)
	}
	m.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	m.v.AutomaticEnv()
}

// Unmarshal 解析整个配置
func (m *Manager) Unmarshal(v any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.v.Unmarshal(v); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// UnmarshalKey 解析指定路径的配置
func (m *Manager) UnmarshalKey(key string, v any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.v.UnmarshalKey(key, v); err != nil {
		return fmt.Errorf("failed to unmarshal key %s: %w", key, err)
	}
	return nil
}

// GetString 获取字符串配置
func (m *Manager) GetString(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.GetString(key)
}

// IsSet 检查配置项是否存在
func (m *Manager) IsSet(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.IsSet(key)
}

// Watch 监听文件变化，回调在文件写入后触发，参数为变化的文件路径
func (m *Manager) Watch(callback func(path string)) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, callback)
	start := !m.watching
	m.watching = true
	m.mu.Unlock()

	if !start {
		return
	}
	m.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		m.mu.RLock()
		callbacks := append([]func(string){}, m.callbacks...)
		m.mu.RUnlock()
		for _, cb := range callbacks {
			cb(e.Name)
		}
	})
	m.v.WatchConfig()
}

// Set 以最高优先级覆盖配置项
func (m *Manager) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v.Set(key, value)
}
