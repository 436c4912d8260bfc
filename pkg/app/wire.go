package app

import "github.com/google/wire"

// Components wire 注入收集到的服务与资源
type Components struct {
	Servers []Server
	Closers []Closer
}

// ProviderSet 导出给 wire 使用
var ProviderSet = wire.NewSet(NewBaseApp, Assemble)

// Assemble 将 wire 收集的组件挂到 BaseApp 上
func Assemble(a *BaseApp, comps Components) *BaseApp {
	a.AppendServer(comps.Servers...)
	a.AppendCloser(comps.Closers...)
	return a
}

// CloserFunc 函数适配为 Closer
type CloserFunc func() error

func (f CloserFunc) Close() error { return f() }

// ServerFuncs 由一对函数组成的 Server
type ServerFuncs struct {
	StartFunc func() error
	StopFunc  func() error
}

func (s ServerFuncs) Start() error {
	if s.StartFunc == nil {
		return nil
	}
	return s.StartFunc()
}

func (s ServerFuncs) Stop() error {
	if s.StopFunc == nil {
		return nil
	}
	return s.StopFunc()
}
