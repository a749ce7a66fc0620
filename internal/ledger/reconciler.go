// Package ledger ведет реестр исключений: дедупликация по натуральному ключу,
// детекция эскалаций и mark-and-sweep закрытие устаревших записей.
package ledger

/*
Машина состояний для ключа (tenant, rule, entity):

	absent   -> open      первая сработка, вставка
	open     -> open      повторная сработка: обновляем last_seen/last_run_id/severity,
	                      рост ранга серьезности помечаем как эскалацию
	open     -> resolved  ключ не подтвержден текущим прогоном (sweep)
	resolved -> open      новая вставка, закрытая запись остается историей

"Mark" — штамп last_run_id на каждом затронутом исключении, "sweep" — закрытие
всех открытых исключений хозяйства, которые текущий прогон не проштамповал.
Sweep всегда ограничен одним хозяйством.
*/

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/estate-integrity/internal/domain"
	"go.uber.org/zap"
)

// Store — персистентный реестр. Реализации: postgres.IntegrityRepo, MemoryStore.
type Store interface {
	// ListOpen возвращает все открытые исключения хозяйства
	ListOpen(ctx context.Context, tenantID string) ([]domain.Exception, error)
	// Upsert вставляет исключение, если по ключу нет открытой записи,
	// иначе обновляет severity/title/description/details/last_seen_at/last_run_id
	Upsert(ctx context.Context, ex *domain.Exception) error
	// ResolveStale: status=open AND last_run_id != runID -> resolved, resolved_at=at
	ResolveStale(ctx context.Context, tenantID, runID string, at time.Time) (int64, error)
}

// Plan — результат чистого сравнения "что было открыто" и "что сработало сейчас".
type Plan struct {
	Upserts   []domain.Exception // Все затронутые ключи (новые и подтвержденные)
	Arising   []domain.Arising   // Только new и escalated
	Unchanged int                // Подтверждения без роста серьезности
	Resolve   []domain.Exception // Открытые, но не затронутые прогоном
}

// BuildPlan строит mark-and-sweep диф в памяти по карте натуральных ключей.
// Дубли одного ключа внутри прогона схлопываются в сработку с максимальной серьезностью.
func BuildPlan(open []domain.Exception, findings []domain.Finding, runID string, now time.Time) Plan {
	before := make(map[domain.ExceptionKey]domain.Exception, len(open))
	for _, ex := range open {
		before[ex.Key()] = ex
	}

	// 1. Схлопываем дубли, сохраняя порядок первого появления
	order := make([]domain.ExceptionKey, 0, len(findings))
	touched := make(map[domain.ExceptionKey]domain.Finding, len(findings))
	for _, f := range findings {
		k := f.Key()
		prev, seen := touched[k]
		if !seen {
			order = append(order, k)
			touched[k] = f
			continue
		}
		if f.Severity.Rank() > prev.Severity.Rank() {
			touched[k] = f
		}
	}

	var p Plan

	// 2. Mark: каждый затронутый ключ — вставка или обновление
	for _, k := range order {
		f := touched[k]
		ex, existed := before[k]

		if !existed {
			ex = domain.Exception{
				ID:          uuid.New().String(),
				TenantID:    f.TenantID,
				Rule:        f.Rule,
				EntityKey:   f.EntityKey,
				Status:      domain.ExceptionOpen,
				FirstSeenAt: now,
			}
			p.Arising = append(p.Arising, domain.Arising{Finding: f, Change: domain.ChangeNew})
		} else if f.Severity.Rank() > ex.Severity.Rank() {
			p.Arising = append(p.Arising, domain.Arising{
				Finding:          f,
				Change:           domain.ChangeEscalated,
				PreviousSeverity: ex.Severity,
			})
		} else {
			p.Unchanged++
		}

		ex.Severity = f.Severity
		ex.Title = f.Title
		ex.Description = f.Description
		ex.Details = f.Details
		ex.LastSeenAt = now
		ex.LastRunID = runID
		ex.ResolvedAt = nil
		p.Upserts = append(p.Upserts, ex)
	}

	// 3. Sweep: открытые до прогона, но не затронутые им
	for k, ex := range before {
		if _, ok := touched[k]; ok {
			continue
		}
		resolvedAt := now
		ex.Status = domain.ExceptionResolved
		ex.ResolvedAt = &resolvedAt
		p.Resolve = append(p.Resolve, ex)
	}
	sort.Slice(p.Resolve, func(i, j int) bool {
		return p.Resolve[i].Key().String() < p.Resolve[j].Key().String()
	})

	return p
}

// Outcome — итог сверки одного хозяйства
type Outcome struct {
	Arising   []domain.Arising
	Unchanged int
	Resolved  int
}

type Reconciler struct {
	store  Store
	logger *zap.Logger
}

func NewReconciler(store Store, logger *zap.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger.Named("ledger")}
}

// Reconcile применяет сработки хозяйства к реестру: upsert каждого ключа, затем sweep.
func (r *Reconciler) Reconcile(ctx context.Context, tenantID, runID string, findings []domain.Finding, now time.Time) (Outcome, error) {
	open, err := r.store.ListOpen(ctx, tenantID)
	if err != nil {
		return Outcome{}, fmt.Errorf("ledger: list open exceptions: %w", err)
	}

	plan := BuildPlan(open, findings, runID, now)

	for i := range plan.Upserts {
		if err := r.store.Upsert(ctx, &plan.Upserts[i]); err != nil {
			return Outcome{}, fmt.Errorf("ledger: upsert %s: %w", plan.Upserts[i].Key(), err)
		}
	}

	resolved, err := r.store.ResolveStale(ctx, tenantID, runID, now)
	if err != nil {
		return Outcome{}, fmt.Errorf("ledger: resolve stale exceptions: %w", err)
	}

	// Расхождение возможно, если реестр менялся параллельно (например, второй инстанс без лока)
	if int(resolved) != len(plan.Resolve) {
		r.logger.Warn("sweep count differs from plan",
			zap.String("tenant_id", tenantID),
			zap.String("run_id", runID),
			zap.Int("planned", len(plan.Resolve)),
			zap.Int64("resolved", resolved))
	}

	r.logger.Debug("tenant reconciled",
		zap.String("tenant_id", tenantID),
		zap.String("run_id", runID),
		zap.Int("arising", len(plan.Arising)),
		zap.Int("unchanged", plan.Unchanged),
		zap.Int64("resolved", resolved))

	return Outcome{Arising: plan.Arising, Unchanged: plan.Unchanged, Resolved: int(resolved)}, nil
}

// Preview считает тот же план без записи (dry-run)
func (r *Reconciler) Preview(ctx context.Context, tenantID string, findings []domain.Finding, now time.Time) (Outcome, error) {
	open, err := r.store.ListOpen(ctx, tenantID)
	if err != nil {
		return Outcome{}, fmt.Errorf("ledger: list open exceptions: %w", err)
	}
	plan := BuildPlan(open, findings, "", now)
	return Outcome{Arising: plan.Arising, Unchanged: plan.Unchanged, Resolved: len(plan.Resolve)}, nil
}
