package dao

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/metrics"
	"github.com/lk2023060901/fleetalert/app/alerting/internal/model"
	"github.com/lk2023060901/fleetalert/pkg/database/postgres"
	"github.com/lk2023060901/fleetalert/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

const table = "alerts"

var columns = []string{
	"id", "category", "severity", "status", "company_id", "vessel_id",
	"source_module", "related_entity_type", "related_entity_id",
	"title", "message", "rule_version",
	"created_at", "updated_at", "due_at",
	"acknowledged_at", "acknowledged_by",
	"snoozed_until", "snooze_reason", "snooze_count",
	"resolved_at", "resolved_by",
	"escalated_at", "auto_dismissed_at",
	"escalation_target_roles", "version",
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

func terminalStatuses() []string {
	out := make([]string, 0, len(model.TerminalStatuses))
	for _, s := range model.TerminalStatuses {
		out = append(out, string(s))
	}
	return out
}

// AlertDAO 基于 PostgreSQL 的告警存储
type AlertDAO struct {
	db      *postgres.Client
	logger  logger.Logger
	metrics *metrics.AlertMetrics
}

// NewAlertDAO 创建告警 DAO
func NewAlertDAO(db *postgres.Client, l logger.Logger, m *metrics.AlertMetrics) *AlertDAO {
	return &AlertDAO{
		db:      db,
		logger:  l.Named("dao.alert"),
		metrics: m,
	}
}

// 迁移期间持有的事务级 advisory lock
const migrateLockID int64 = 0x666c656574616c

// Migrate 建表与索引，可重复执行。多副本同时启动时在同一事务内串行执行
func (d *AlertDAO) Migrate(ctx context.Context) error {
	if err := d.db.WithTx(ctx, migrate); err != nil {
		return fmt.Errorf("failed to migrate alerts schema: %w", err)
	}
	return nil
}

func migrate(ctx context.Context, tx postgres.Querier) error {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	_, err := tx.Exec(ctx, schemaSQL)
	return err
}

// track 在 defer 中记录查询耗时与结果
func (d *AlertDAO) track(op string) func(*error) {
	start := time.Now()
	return func(err *error) {
		ok := *err == nil || errors.Is(*err, ErrNotFound) || errors.Is(*err, ErrDuplicate)
		d.metrics.RecordDBQuery(op, ok, time.Since(start).Seconds())
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(row scanner) (*model.Alert, error) {
	var (
		a                          model.Alert
		category, severity, status string
	)
	if err := row.Scan(
		&a.ID, &category, &severity, &status, &a.CompanyID, &a.VesselID,
		&a.SourceModule, &a.RelatedEntityType, &a.RelatedEntityID,
		&a.Title, &a.Message, &a.RuleVersion,
		&a.CreatedAt, &a.UpdatedAt, &a.DueAt,
		&a.AcknowledgedAt, &a.AcknowledgedBy,
		&a.SnoozedUntil, &a.SnoozeReason, &a.SnoozeCount,
		&a.ResolvedAt, &a.ResolvedBy,
		&a.EscalatedAt, &a.AutoDismissedAt,
		&a.EscalationTargetRoles, &a.Version,
	); err != nil {
		return nil, err
	}
	a.Category = model.Category(category)
	a.Severity = model.Severity(severity)
	a.Status = model.Status(status)
	return &a, nil
}

func roles(a *model.Alert) []string {
	if a.EscalationTargetRoles == nil {
		return []string{}
	}
	return a.EscalationTargetRoles
}

// Create 写入新告警，去重索引冲突返回 ErrDuplicate
func (d *AlertDAO) Create(ctx context.Context, a *model.Alert) (err error) {
	defer d.track("insert")(&err)

	a.Version = 1
	query, args, err := psql.
		Insert(table).
		Columns(columns...).
		Values(
			a.ID, string(a.Category), string(a.Severity), string(a.Status), a.CompanyID, a.VesselID,
			a.SourceModule, a.RelatedEntityType, a.RelatedEntityID,
			a.Title, a.Message, a.RuleVersion,
			a.CreatedAt, a.UpdatedAt, a.DueAt,
			a.AcknowledgedAt, a.AcknowledgedBy,
			a.SnoozedUntil, a.SnoozeReason, a.SnoozeCount,
			a.ResolvedAt, a.ResolvedBy,
			a.EscalatedAt, a.AutoDismissedAt,
			roles(a), a.Version,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	ctx, cancel := d.db.WithTimeout(ctx)
	defer cancel()
	if _, err = d.db.Primary().Exec(ctx, query, args...); err != nil {
		err = postgres.TranslateError(err)
		if errors.Is(err, postgres.ErrUniqueViolation) {
			return errors.Wrapf(ErrDuplicate, "%s", a.Key())
		}
		d.logger.Error("failed to create alert", "alert_id", a.ID, "error", err)
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// Get 按 id 读取，读主库保证读到自己刚写入的版本
func (d *AlertDAO) Get(ctx context.Context, id string) (a *model.Alert, err error) {
	defer d.track("select")(&err)

	query, args, err := psql.Select(columns...).From(table).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	ctx, cancel := d.db.WithTimeout(ctx)
	defer cancel()
	a, err = scanAlert(d.db.Primary().QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(postgres.TranslateError(err), postgres.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "%s", id)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// Update 乐观锁写入
func (d *AlertDAO) Update(ctx context.Context, a *model.Alert) (err error) {
	defer d.track("update")(&err)

	query, args, err := psql.
		Update(table).
		Set("status", string(a.Status)).
		Set("updated_at", a.UpdatedAt).
		Set("acknowledged_at", a.AcknowledgedAt).
		Set("acknowledged_by", a.AcknowledgedBy).
		Set("snoozed_until", a.SnoozedUntil).
		Set("snooze_reason", a.SnoozeReason).
		Set("snooze_count", a.SnoozeCount).
		Set("resolved_at", a.ResolvedAt).
		Set("resolved_by", a.ResolvedBy).
		Set("escalated_at", a.EscalatedAt).
		Set("auto_dismissed_at", a.AutoDismissedAt).
		Set("escalation_target_roles", roles(a)).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": a.ID, "version": a.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	ctx, cancel := d.db.WithTimeout(ctx)
	defer cancel()
	tag, err := d.db.Primary().Exec(ctx, query, args...)
	if err != nil {
		d.logger.Error("failed to update alert", "alert_id", a.ID, "error", err)
		return fmt.Errorf("failed to update alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := d.Get(ctx, a.ID); getErr != nil {
			return getErr
		}
		return errors.Wrapf(ErrVersionConflict, "%s@%d", a.ID, a.Version)
	}
	a.Version++
	return nil
}

func (d *AlertDAO) queryAlerts(ctx context.Context, q squirrel.SelectBuilder, primary bool) ([]*model.Alert, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	ctx, cancel := d.db.WithTimeout(ctx)
	defer cancel()
	db := d.db.Reader()
	if primary {
		db = d.db.Primary()
	}
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []*model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// FindActive 评估前查询现存告警，走主库
func (d *AlertDAO) FindActive(ctx context.Context, companyID string, category model.Category, entityID string) (out []*model.Alert, err error) {
	defer d.track("select")(&err)
	return d.queryAlerts(ctx, psql.Select(columns...).From(table).Where(squirrel.And{
		squirrel.Eq{"company_id": companyID, "category": string(category), "related_entity_id": entityID},
		squirrel.NotEq{"status": terminalStatuses()},
	}).OrderBy("created_at ASC"), true)
}

// ListNonTerminal 恢复扫描使用
func (d *AlertDAO) ListNonTerminal(ctx context.Context, afterID string, limit int) (out []*model.Alert, err error) {
	defer d.track("select")(&err)
	return d.queryAlerts(ctx, psql.Select(columns...).From(table).Where(squirrel.And{
		squirrel.NotEq{"status": terminalStatuses()},
		squirrel.Gt{"id": afterID},
	}).OrderBy("id ASC").Limit(uint64(clampLimit(limit))), true)
}

// List 带范围与过滤条件的列表
func (d *AlertDAO) List(ctx context.Context, scope Scope, f model.Filter, now time.Time) (out []*model.Alert, err error) {
	defer d.track("select")(&err)
	return d.queryAlerts(ctx, buildList(scope, f, now), false)
}

// CountRows 分组计数
func (d *AlertDAO) CountRows(ctx context.Context, scope Scope, now time.Time) (out []model.CountRow, err error) {
	defer d.track("count")(&err)

	query, args, err := buildCounts(scope, now).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	ctx, cancel := d.db.WithTimeout(ctx)
	defer cancel()
	rows, err := d.db.Reader().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r                  model.CountRow
			severity, category string
		)
		if err := rows.Scan(&r.VesselID, &severity, &category, &r.Count, &r.Overdue); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		r.Severity = model.Severity(severity)
		r.Category = model.Category(category)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// Ping 检查数据库
func (d *AlertDAO) Ping(ctx context.Context) error {
	return d.db.Ping(ctx)
}

func scopeWhere(scope Scope) squirrel.And {
	where := squirrel.And{}
	if scope.CompanyID != "" {
		where = append(where, squirrel.Eq{"company_id": scope.CompanyID})
	}
	if scope.VesselID != nil {
		where = append(where, squirrel.Eq{"vessel_id": *scope.VesselID})
	}
	return where
}

func buildList(scope Scope, f model.Filter, now time.Time) squirrel.SelectBuilder {
	where := scopeWhere(scope)
	if len(f.Severities) > 0 {
		where = append(where, squirrel.Eq{"severity": toStrings(f.Severities)})
	}
	if len(f.Categories) > 0 {
		where = append(where, squirrel.Eq{"category": toStrings(f.Categories)})
	}
	if len(f.Statuses) > 0 {
		where = append(where, squirrel.Eq{"status": toStrings(f.Statuses)})
	}
	if f.VesselID != nil {
		where = append(where, squirrel.Eq{"vessel_id": *f.VesselID})
	}
	if f.Overdue {
		where = append(where,
			squirrel.Lt{"due_at": now},
			squirrel.NotEq{"status": terminalStatuses()},
		)
	}

	q := psql.Select(columns...).From(table).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(clampLimit(f.Limit)))
	if len(where) > 0 {
		q = q.Where(where)
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}

func buildCounts(scope Scope, now time.Time) squirrel.SelectBuilder {
	where := append(scopeWhere(scope), squirrel.NotEq{"status": terminalStatuses()})
	return psql.
		Select("vessel_id", "severity", "category", "COUNT(*)").
		Column(squirrel.Expr("COUNT(*) FILTER (WHERE due_at < ?)", now)).
		From(table).
		Where(where).
		GroupBy("vessel_id", "severity", "category")
}

func toStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}
