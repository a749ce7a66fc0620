package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/estate-integrity/internal/domain"
)

const tenantColumns = `id, name, COALESCE(bag_weight_kg, 0)`

// ListTenants — все хозяйства в стабильном порядке
func (r *IntegrityRepo) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tenants: %w", err)
	}
	defer rows.Close()

	var out []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.BagWeightKg); err != nil {
			return nil, fmt.Errorf("postgres: scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *IntegrityRepo) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	var t domain.Tenant
	err := r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.BagWeightKg)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Tenant{}, fmt.Errorf("postgres: tenant %s: %w", id, domain.ErrTenantNotFound)
		}
		return domain.Tenant{}, fmt.Errorf("postgres: get tenant: %w", err)
	}
	return t, nil
}
