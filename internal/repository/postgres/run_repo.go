package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/estate-integrity/internal/domain"
)

const runColumns = `id, agent_name, trigger_source, tenant_scope, status, summary,
	COALESCE(error, ''), started_at, finished_at`

// StartRun создает запись прогона без статуса
func (r *IntegrityRepo) StartRun(ctx context.Context, run *domain.AgentRun) error {
	query := `
		INSERT INTO agent_runs (id, agent_name, trigger_source, tenant_scope, started_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query, run.ID, run.AgentName, run.TriggerSource, run.TenantScope, run.StartedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert run: %w", err)
	}
	return nil
}

// FinishRun финализирует прогон ровно один раз: обновляются только строки без статуса
func (r *IntegrityRepo) FinishRun(ctx context.Context, runID string, status domain.RunStatus, summary *domain.RunSummary, errMsg string, finishedAt time.Time) error {
	var payload []byte
	if summary != nil {
		var err error
		if payload, err = json.Marshal(summary); err != nil {
			return fmt.Errorf("postgres: marshal run summary: %w", err)
		}
	}

	query := `
		UPDATE agent_runs
		SET status = $2, summary = $3::jsonb, error = NULLIF($4, ''), finished_at = $5
		WHERE id = $1 AND status IS NULL`

	tag, err := r.pool.Exec(ctx, query, runID, status, payload, errMsg, finishedAt)
	if err != nil {
		return fmt.Errorf("postgres: finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: run %s not found or already finalized", runID)
	}
	return nil
}

func (r *IntegrityRepo) ListRuns(ctx context.Context, limit int) ([]domain.AgentRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+runColumns+` FROM agent_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	out, err := pgx.CollectRows(rows, scanRun)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan runs: %w", err)
	}
	return out, nil
}

func (r *IntegrityRepo) GetRun(ctx context.Context, id string) (*domain.AgentRun, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+runColumns+` FROM agent_runs WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: get run: %w", err)
	}
	run, err := pgx.CollectExactlyOneRow(rows, scanRun)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: run %s: %w", id, domain.ErrRunNotFound)
		}
		return nil, fmt.Errorf("postgres: scan run: %w", err)
	}
	return &run, nil
}

func scanRun(row pgx.CollectableRow) (domain.AgentRun, error) {
	var (
		run     domain.AgentRun
		status  *string
		summary []byte
	)
	err := row.Scan(
		&run.ID,
		&run.AgentName,
		&run.TriggerSource,
		&run.TenantScope,
		&status,
		&summary,
		&run.Error,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return run, err
	}
	if status != nil {
		s := domain.RunStatus(*status)
		run.Status = &s
	}
	if len(summary) > 0 {
		run.Summary = &domain.RunSummary{}
		if err := json.Unmarshal(summary, run.Summary); err != nil {
			return run, fmt.Errorf("decode summary of run %s: %w", run.ID, err)
		}
	}
	return run, nil
}
