// Package ingest 接收领域协作方上报的事实：Kafka 消费与 HTTP 投递两条入口
package ingest

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/service"
)

var (
	// ErrMalformedPayload 消息体不是合法的事实 JSON
	ErrMalformedPayload = errors.New("malformed fact payload")
	// ErrOverloaded 投递队列已满
	ErrOverloaded = errors.New("fact intake overloaded")
	// ErrClosed 入口已关闭
	ErrClosed = errors.New("fact intake closed")
)

// Processor 事实处理方，通常是 *service.Service
type Processor interface {
	ProcessFacts(ctx context.Context, facts []*model.Fact) (service.BatchStats, error)
}

// Decode 解析单个事实对象或事实数组
func Decode(data []byte) ([]*model.Fact, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.Wrap(ErrMalformedPayload, "empty body")
	}
	var facts []*model.Fact
	if data[0] == '[' {
		if err := json.Unmarshal(data, &facts); err != nil {
			return nil, errors.Wrapf(ErrMalformedPayload, "%v", err)
		}
	} else {
		var f model.Fact
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, errors.Wrapf(ErrMalformedPayload, "%v", err)
		}
		facts = append(facts, &f)
	}
	out := facts[:0]
	for _, f := range facts {
		if f != nil {
			out = append(out, f)
		}
	}
	return out, nil
}
