package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lk2023060901/fleetalert/pkg/config"
	"github.com/spf13/pflag"
)

// EnvPrefix 环境变量前缀，FLEETALERT_HTTP_PORT 对应 http.port
const EnvPrefix = "FLEETALERT"

var (
	configPath string
	logPath    string
)

// LoadConfig 加载配置到 target 并返回 Manager 供后续 Watch。
// 优先级: 命令行参数 > 环境变量 > 配置文件 > 默认值
func LoadConfig(target any, opts ...config.Option) (*config.Manager, error) {
	execDir, err := GetExecDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable directory: %w", err)
	}
	defaultConfig := filepath.Join(execDir, "config.yaml")
	defaultLog := filepath.Join(execDir, "logs", "alerting.log")

	if pflag.Lookup("config") == nil {
		pflag.StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	}
	if pflag.Lookup("log.path") == nil {
		pflag.StringVar(&logPath, "log.path", defaultLog, "output path for logs")
	}
	if !pflag.Parsed() {
		pflag.Parse()
	}

	// --config > FLEETALERT_CONFIG > <exec dir>/config.yaml
	path := configPath
	if !pflag.CommandLine.Changed("config") {
		if env := os.Getenv(EnvPrefix + "_CONFIG"); env != "" {
			path = env
		}
	}
	configPath = path

	mgr := config.NewManager(append([]config.Option{config.WithDefaults(map[string]any{
		"log.output_path": defaultLog,
	})}, opts...)...)
	mgr.BindEnv(EnvPrefix)
	if err := mgr.LoadFile(path); err != nil {
		return nil, err
	}
	if pflag.CommandLine.Changed("log.path") {
		mgr.Set("log.output_path", logPath)
	}

	if err := mgr.Unmarshal(target); err != nil {
		return nil, err
	}

	logPath = mgr.GetString("log.output_path")
	if dir := filepath.Dir(logPath); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	return mgr, nil
}

// GetExecDir 可执行文件所在目录（解析符号链接）
func GetExecDir() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", err
	}
	realPath, err := filepath.EvalSymlinks(execPath)
	if err != nil {
		return filepath.Dir(execPath), nil
	}
	return filepath.Dir(realPath), nil
}

// GetConfigPath 最终使用的配置文件路径
func GetConfigPath() string {
	return configPath
}
