package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/fleetalert/pkg/logger"
	"github.com/lk2023060901/fleetalert/pkg/util/conc"
	"github.com/lk2023060901/fleetalert/pkg/web/middleware"
	"github.com/lk2023060901/fleetalert/pkg/web/validator"
)

// Server 基于 gin 的 HTTP 服务，实现 app.Server
type Server struct {
	engine  *gin.Engine
	config  *Config
	logger  logger.Logger
	server  *http.Server
	started atomic.Bool
}

type serverOptions struct {
	middlewares []gin.HandlerFunc
	reporters   []middleware.PanicReporter
}

// ServerOption 服务选项
type ServerOption func(*serverOptions)

// WithMiddleware 追加全局中间件，位于内置中间件之后
func WithMiddleware(mws ...gin.HandlerFunc) ServerOption {
	return func(o *serverOptions) {
		o.middlewares = append(o.middlewares, mws...)
	}
}

// WithPanicReporter 处理器 panic 时额外上报，例如 sentry
func WithPanicReporter(r middleware.PanicReporter) ServerOption {
	return func(o *serverOptions) {
		o.reporters = append(o.reporters, r)
	}
}

// NewServer 创建 Web 服务
func NewServer(cfg *Config, l logger.Logger, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if l == nil {
		l = logger.Default()
	}
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	gin.SetMode(cfg.Mode)
	validator.Init()

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger(l.Named("web.access")))
	engine.Use(middleware.Recovery(l.Named("web.recovery"), o.reporters...))
	engine.Use(middleware.CORS(&cfg.CORS))
	engine.Use(o.middlewares...)

	return &Server{
		engine: engine,
		config: cfg,
		logger: l.Named("web.server"),
	}, nil
}

// Router 返回 gin 引擎，用于注册路由
func (s *Server) Router() *gin.Engine {
	return s.engine
}

// Handler 返回 http.Handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start 监听端口并在后台提供服务
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrServerAlreadyStarted
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.started.Store(false)
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.server = &http.Server{
		Handler:        s.engine,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	s.logger.Info("starting http server", "addr", addr)
	conc.Go(func() (struct{}, error) {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	return nil
}

// Stop 优雅关闭
func (s *Server) Stop() error {
	if !s.started.Load() || s.server == nil {
		return ErrServerNotStarted
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.logger.Info("http server exited")
	return nil
}
