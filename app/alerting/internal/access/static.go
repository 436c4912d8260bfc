package access

import (
	"context"

	"github.com/cockroachdb/errors"
)

// StaticProvider 从配置加载的固定授权表
type StaticProvider struct {
	grants map[string]Grant
}

// NewStaticProvider 校验并索引授权，重复的调用方视为配置错误
func NewStaticProvider(grants []Grant) (*StaticProvider, error) {
	p := &StaticProvider{grants: make(map[string]Grant, len(grants))}
	for _, g := range grants {
		if err := g.Validate(); err != nil {
			return nil, err
		}
		if _, dup := p.grants[g.CallerID]; dup {
			return nil, errors.Wrapf(ErrInvalidGrant, "duplicate caller %s", g.CallerID)
		}
		p.grants[g.CallerID] = g
	}
	return p, nil
}

func (p *StaticProvider) Grant(_ context.Context, callerID string) (*Grant, error) {
	g, ok := p.grants[callerID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCaller, "%q", callerID)
	}
	return &g, nil
}
