package main

import (
	"os"

	"github.com/lk2023060901/fleetalert/pkg/app"
	"github.com/lk2023060901/fleetalert/pkg/logger"
)

func main() {
	var cfg Config

	// 1. 加载配置
	if _, err := app.LoadConfig(&cfg); err != nil {
		panic(err)
	}

	// 2. 初始化主日志
	l, err := logger.New(&cfg.Log)
	if err != nil {
		panic(err)
	}
	logger.SetDefault(l)

	// 3. 通过 Wire 组装应用
	application, err := InitApp(&cfg, l)
	if err != nil {
		l.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	// 4. 运行直到收到退出信号
	if err := application.Run(); err != nil {
		l.Error("application exited with error", "error", err)
		os.Exit(1)
	}
}
