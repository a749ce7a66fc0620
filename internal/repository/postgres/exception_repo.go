package postgres

/*
Файл exception_repo.go — персистентный реестр исключений (ledger.Store).

Инвариант "не более одного open на ключ" держит частичный уникальный индекс
integrity_exceptions_open_key, поэтому Upsert — это INSERT ... ON CONFLICT
по этому индексу, а sweep — один условный UPDATE.
*/

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/estate-integrity/internal/domain"
)

const exceptionColumns = `id, tenant_id, rule_code, entity_key, severity, status, title, description,
	details, first_seen_at, last_seen_at, resolved_at, COALESCE(last_run_id, '')`

func (r *IntegrityRepo) ListOpen(ctx context.Context, tenantID string) ([]domain.Exception, error) {
	return r.ListExceptions(ctx, domain.ExceptionFilter{TenantID: tenantID, Status: domain.ExceptionOpen})
}

// Upsert вставляет исключение или обновляет открытую запись по натуральному ключу.
// id и first_seen_at возвращаются из базы (у существующей записи они не меняются).
func (r *IntegrityRepo) Upsert(ctx context.Context, ex *domain.Exception) error {
	query := `
		INSERT INTO integrity_exceptions
			(id, tenant_id, rule_code, entity_key, severity, status, title, description,
			 details, first_seen_at, last_seen_at, last_run_id)
		VALUES ($1, $2, $3, $4, $5, 'open', $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, rule_code, entity_key) WHERE status = 'open'
		DO UPDATE SET
			severity     = EXCLUDED.severity,
			title        = EXCLUDED.title,
			description  = EXCLUDED.description,
			details      = EXCLUDED.details,
			last_seen_at = EXCLUDED.last_seen_at,
			last_run_id  = EXCLUDED.last_run_id
		RETURNING id, first_seen_at`

	details := ex.Details
	if details == nil {
		details = map[string]any{}
	}

	err := r.pool.QueryRow(ctx, query,
		ex.ID, ex.TenantID, ex.Rule, ex.EntityKey, ex.Severity, ex.Title, ex.Description,
		details, ex.FirstSeenAt, ex.LastSeenAt, ex.LastRunID,
	).Scan(&ex.ID, &ex.FirstSeenAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert exception %s: %w", ex.Key(), err)
	}
	ex.Status = domain.ExceptionOpen
	return nil
}

// ResolveStale — sweep: закрывает открытые исключения хозяйства, не подтвержденные прогоном runID
func (r *IntegrityRepo) ResolveStale(ctx context.Context, tenantID, runID string, at time.Time) (int64, error) {
	query := `
		UPDATE integrity_exceptions
		SET status = 'resolved', resolved_at = $3
		WHERE tenant_id = $1
		  AND status = 'open'
		  AND last_run_id IS DISTINCT FROM $2`

	tag, err := r.pool.Exec(ctx, query, tenantID, runID, at)
	if err != nil {
		return 0, fmt.Errorf("postgres: resolve stale exceptions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListExceptions — выборка для консоли и CLI
func (r *IntegrityRepo) ListExceptions(ctx context.Context, f domain.ExceptionFilter) ([]domain.Exception, error) {
	where, args := exceptionWhere(f)
	query := `SELECT ` + exceptionColumns + ` FROM integrity_exceptions` + where +
		` ORDER BY first_seen_at, tenant_id, rule_code, entity_key`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list exceptions: %w", err)
	}
	defer rows.Close()

	out, err := pgx.CollectRows(rows, scanException)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan exceptions: %w", err)
	}
	return out, nil
}

// exceptionWhere собирает WHERE из непустых полей фильтра
func exceptionWhere(f domain.ExceptionFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.TenantID != "" {
		add("tenant_id", f.TenantID)
	}
	if f.Status != "" {
		add("status", string(f.Status))
	}
	if f.Rule != "" {
		add("rule_code", string(f.Rule))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanException(row pgx.CollectableRow) (domain.Exception, error) {
	var ex domain.Exception
	err := row.Scan(
		&ex.ID,
		&ex.TenantID,
		&ex.Rule,
		&ex.EntityKey,
		&ex.Severity,
		&ex.Status,
		&ex.Title,
		&ex.Description,
		&ex.Details,
		&ex.FirstSeenAt,
		&ex.LastSeenAt,
		&ex.ResolvedAt,
		&ex.LastRunID,
	)
	return ex, err
}
