package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/xela07ax/estate-integrity/internal/domain"
)

// Колонки agent_findings в порядке VALUES
const findingFields = 10

// WriteBatch — пакетная вставка журнала сработок одним INSERT (audit.BatchWriter)
func (r *IntegrityRepo) WriteBatch(ctx context.Context, rows []domain.AgentFinding) error {
	if len(rows) == 0 {
		return nil
	}

	vals := make([]any, 0, len(rows)*findingFields)
	for _, f := range rows {
		details := f.Details
		if details == nil {
			details = map[string]any{}
		}
		vals = append(vals,
			f.ID, f.RunID, f.TenantID, f.Rule, f.EntityKey,
			f.Severity, f.Title, f.Description, details, f.ObservedAt,
		)
	}

	query := "INSERT INTO agent_findings (id, run_id, tenant_id, rule_code, entity_key, severity, title, description, details, observed_at) VALUES " +
		valuesPlaceholders(len(rows), findingFields)

	if _, err := r.pool.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: write %d findings: %w", len(rows), err)
	}
	return nil
}

// valuesPlaceholders строит "($1, $2), ($3, $4)" для rows строк по fields колонок
func valuesPlaceholders(rows, fields int) string {
	var b strings.Builder
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := 0; j < fields; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*fields+j+1)
		}
		b.WriteString(")")
	}
	return b.String()
}
