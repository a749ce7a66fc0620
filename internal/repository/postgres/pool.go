package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/estate-integrity/internal/infra"
)

// NewPool открывает пул и проверяет доступность базы
func NewPool(ctx context.Context, cfg infra.DatabaseConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	pcfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: database unreachable: %w", err)
	}
	return pool, nil
}

// IntegrityRepo — единый репозиторий движка: источники данных хозяйств (read-only),
// реестр исключений, прогоны и журнал сработок.
type IntegrityRepo struct {
	pool *pgxpool.Pool
}

func NewIntegrityRepo(pool *pgxpool.Pool) *IntegrityRepo {
	return &IntegrityRepo{pool: pool}
}

// Ping проверяет доступность базы (health-check)
func (r *IntegrityRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
