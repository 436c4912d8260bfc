package rule

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Archive 规则表历史版本的持久化存储。
// 进程重启后已有告警仍需按创建时的版本查回策略
type Archive interface {
	SaveTable(ctx context.Context, version string, source []byte) error
	LoadTables(ctx context.Context) ([][]byte, error)
}

// Save 存档一张规则表，没有原文的表跳过
func Save(ctx context.Context, a Archive, t *Table) error {
	if a == nil || len(t.Source) == 0 {
		return nil
	}
	return errors.Wrapf(a.SaveTable(ctx, t.Version, t.Source), "archive rule table %s", t.Version)
}

// Restore 把存档中的历史版本补录进注册表，再存档当前最新版本。
// 返回补录的版本数；存档里无法解析的表视为错误，避免老告警静默改用新策略
func Restore(ctx context.Context, r *Registry, a Archive) (int, error) {
	sources, err := a.LoadTables(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "load archived rule tables")
	}
	added := 0
	for i, src := range sources {
		t, err := Parse(src)
		if err != nil {
			return added, errors.Wrapf(err, "archived rule table #%d", i)
		}
		ok, err := r.Add(t)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, Save(ctx, a, r.Latest())
}
