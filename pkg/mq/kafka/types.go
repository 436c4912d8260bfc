package kafka

import (
	"context"
	"time"
)

// Message 消息
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
}

// Handler 消息处理器
type Handler func(ctx context.Context, msg *Message) error

// Middleware 消费者中间件
type Middleware func(Handler) Handler

// Publisher 消息发布接口，业务侧依赖此接口而不是 *Producer
type Publisher interface {
	Publish(ctx context.Context, msgs ...*Message) error
}

// Chain 按声明顺序组合中间件，第一个在最外层
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
