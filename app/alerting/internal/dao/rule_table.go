package dao

import (
	"context"
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
)

const ruleTable = "rule_tables"

// SaveTable 存档规则表原文，同一版本只保留第一次写入的内容
func (d *AlertDAO) SaveTable(ctx context.Context, version string, source []byte) (err error) {
	defer d.track("insert")(&err)

	query, args, err := psql.Insert(ruleTable).
		Columns("version", "source").
		Values(version, source).
		Suffix("ON CONFLICT (version) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	ctx, cancel := d.db.WithTimeout(ctx)
	defer cancel()
	if _, err = d.db.Primary().Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save rule table %s: %w", version, err)
	}
	return nil
}

// LoadTables 按登记顺序读取全部存档
func (d *AlertDAO) LoadTables(ctx context.Context) (out [][]byte, err error) {
	defer d.track("select")(&err)

	query, args, err := psql.Select("source").From(ruleTable).OrderBy("registered_at ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	ctx, cancel := d.db.WithTimeout(ctx)
	defer cancel()
	rows, err := d.db.Primary().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule tables: %w", err)
	}
	out, err = pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, errors.Wrap(err, "scan rule tables")
	}
	return out, nil
}

// SaveTable 见 AlertDAO.SaveTable
func (s *MemoryStore) SaveTable(_ context.Context, version string, source []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ruleTables == nil {
		s.ruleTables = make(map[string]ruleTableRow)
	}
	if _, ok := s.ruleTables[version]; !ok {
		s.ruleTables[version] = ruleTableRow{seq: len(s.ruleTables), source: append([]byte(nil), source...)}
	}
	return nil
}

// LoadTables 见 AlertDAO.LoadTables
func (s *MemoryStore) LoadTables(context.Context) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]ruleTableRow, 0, len(s.ruleTables))
	for _, r := range s.ruleTables {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([][]byte, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.source)
	}
	return out, nil
}

type ruleTableRow struct {
	seq    int
	source []byte
}
