package engine

/*
Координатор прогона: одна синхронная задача по всем хозяйствам (или по одному).

Для каждого хозяйства последовательно:
  collect (параллельные чтения) -> rules -> reconcile (mark-and-sweep) -> журнал.
Потом дайджест new/escalated в каналы и финализация AgentRun ровно один раз.

Dry-run считает то же самое, но ничего не пишет: ни лока, ни AgentRun,
ни реестра, ни журнала. Уведомления получают причину "dry-run".
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/estate-integrity/internal/alert"
	"github.com/xela07ax/estate-integrity/internal/domain"
	"github.com/xela07ax/estate-integrity/internal/extract"
	"github.com/xela07ax/estate-integrity/internal/infra"
	"github.com/xela07ax/estate-integrity/internal/ledger"
	"github.com/xela07ax/estate-integrity/internal/rules"
	"go.uber.org/zap"
)

// ErrRunInProgress — скоуп или хозяйство уже обрабатывает другой прогон
var ErrRunInProgress = errors.New("engine: run already in progress")

const finalizeTimeout = 10 * time.Second

type TenantDirectory interface {
	ListTenants(ctx context.Context) ([]domain.Tenant, error)
	GetTenant(ctx context.Context, id string) (domain.Tenant, error)
}

type Extractor interface {
	Collect(ctx context.Context, tenant domain.Tenant, now time.Time) (*extract.Snapshot, error)
}

type Ledger interface {
	Reconcile(ctx context.Context, tenantID, runID string, findings []domain.Finding, now time.Time) (ledger.Outcome, error)
	Preview(ctx context.Context, tenantID string, findings []domain.Finding, now time.Time) (ledger.Outcome, error)
}

// RunRecorder — таблица agent_runs
type RunRecorder interface {
	StartRun(ctx context.Context, run *domain.AgentRun) error
	// FinishRun проставляет терминальный статус; повторная финализация — ошибка
	FinishRun(ctx context.Context, runID string, status domain.RunStatus, summary *domain.RunSummary, errMsg string, finishedAt time.Time) error
}

// FindingJournal — append-only строки agent_findings; ошибка валит прогон
type FindingJournal interface {
	Record(ctx context.Context, rows []domain.AgentFinding) error
}

// RunLock — распределенный лок по ключу (infra.GetRunLockKey / GetTenantLockKey)
type RunLock interface {
	Acquire(ctx context.Context, key, owner string) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

type RunEvents interface {
	RunCompleted(ctx context.Context, ev RunEvent) error
}

type Notifier interface {
	Notify(ctx context.Context, items []domain.Arising, findingCount int, dryRun bool) alert.Report
}

// Deps — коллабораторы координатора. Lock и Events опциональны.
type Deps struct {
	Tenants   TenantDirectory
	Extractor Extractor
	Ledger    Ledger
	Runs      RunRecorder
	Journal   FindingJournal
	Notifier  Notifier
	Lock      RunLock
	Events    RunEvents
	Metrics   *Metrics
}

type Options struct {
	AgentName     string
	TenantTimeout time.Duration
	TopAlerts     int
}

// ScanRequest — один вызов runScan. Пустой TenantID означает все хозяйства.
type ScanRequest struct {
	TriggerSource domain.TriggerSource
	DryRun        bool
	TenantID      string
}

type Coordinator struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

func NewCoordinator(deps Deps, opts Options, logger *zap.Logger) *Coordinator {
	if opts.AgentName == "" {
		opts.AgentName = "integrity-agent"
	}
	if opts.TenantTimeout <= 0 {
		opts.TenantTimeout = 2 * time.Minute
	}
	if opts.TopAlerts <= 0 {
		opts.TopAlerts = alert.DefaultTopN
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	return &Coordinator{
		deps:   deps,
		opts:   opts,
		logger: logger.Named("engine"),
		now:    time.Now,
	}
}

// RunScan выполняет прогон. Вызывающий получает либо полный RunResult,
// либо ошибку, которая уже записана в agent_runs.
func (c *Coordinator) RunScan(ctx context.Context, req ScanRequest) (*domain.RunResult, error) {
	start := c.now().UTC()
	if req.TriggerSource == "" {
		req.TriggerSource = domain.TriggerManual
	}
	scope := req.TenantID
	if scope == "" {
		scope = domain.TenantScopeAll
	}
	runID := uuid.New().String()
	log := c.logger.With(
		zap.String("run_id", runID),
		zap.String("scope", scope),
		zap.Bool("dry_run", req.DryRun))

	// Dry-run: id свежий, но нигде не сохраняется
	if req.DryRun {
		res, err := c.scan(ctx, runID, req, start, log)
		status := domain.RunSuccess
		if err != nil {
			status = domain.RunFailed
		}
		c.deps.Metrics.observeRun(status, true, time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		log.Info("dry run finished", zap.Int("findings", res.Summary.FindingCount))
		return res, nil
	}

	// 1. Распределенный лок по скоупу: повторный запуск того же скоупа сразу получает отказ
	release, err := c.lock(ctx, infra.GetRunLockKey(scope), runID)
	if err != nil {
		return nil, err
	}
	defer release(log)

	// 2. AgentRun без статуса ("идет")
	run := domain.AgentRun{
		ID:            runID,
		AgentName:     c.opts.AgentName,
		TriggerSource: req.TriggerSource,
		TenantScope:   scope,
		StartedAt:     start,
	}
	if err := c.deps.Runs.StartRun(ctx, &run); err != nil {
		return nil, fmt.Errorf("engine: start run: %w", err)
	}
	log.Info("run started", zap.String("trigger", string(req.TriggerSource)))

	// 3. Сам прогон
	res, scanErr := c.scan(ctx, runID, req, start, log)

	// 4. Финализация ровно один раз. Background: ctx вызывающего мог уже истечь.
	fctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	finished := c.now().UTC()

	ev := RunEvent{RunID: runID, TenantScope: scope, FinishedAt: finished}
	if scanErr != nil {
		ev.Status, ev.Error = domain.RunFailed, scanErr.Error()
		var summary *domain.RunSummary
		if res != nil {
			summary = &res.Summary
			ev.FindingCount, ev.ArisingCount = res.Summary.FindingCount, res.Summary.ArisingFindingCount
		}
		if err := c.deps.Runs.FinishRun(fctx, runID, domain.RunFailed, summary, scanErr.Error(), finished); err != nil {
			log.Error("failed to finalize failed run", zap.Error(err))
		}
		c.publish(fctx, ev, log)
		c.deps.Metrics.observeRun(domain.RunFailed, false, finished.Sub(start).Seconds())
		log.Error("run failed", zap.Error(scanErr))
		return nil, scanErr
	}

	if err := c.deps.Runs.FinishRun(fctx, runID, domain.RunSuccess, &res.Summary, "", finished); err != nil {
		c.deps.Metrics.observeRun(domain.RunFailed, false, finished.Sub(start).Seconds())
		return nil, fmt.Errorf("engine: finish run: %w", err)
	}
	ev.Status = domain.RunSuccess
	ev.FindingCount, ev.ArisingCount = res.Summary.FindingCount, res.Summary.ArisingFindingCount
	c.publish(fctx, ev, log)
	c.deps.Metrics.observeRun(domain.RunSuccess, false, finished.Sub(start).Seconds())

	log.Info("run finished",
		zap.Int("tenants", res.Summary.TenantCount),
		zap.Int("findings", res.Summary.FindingCount),
		zap.Int("arising", res.Summary.ArisingFindingCount),
		zap.Int("resolved", res.Summary.ResolvedCount),
		zap.Duration("took", finished.Sub(start)))
	return res, nil
}

// lock берет ключ или возвращает ErrRunInProgress. Без Lock — no-op.
func (c *Coordinator) lock(ctx context.Context, key, owner string) (func(*zap.Logger), error) {
	if c.deps.Lock == nil {
		return func(*zap.Logger) {}, nil
	}
	ok, err := c.deps.Lock.Acquire(ctx, key, owner)
	if err != nil {
		return nil, fmt.Errorf("engine: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, key)
	}
	return func(log *zap.Logger) {
		// Background: ctx прогона мог уже истечь
		rctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
		defer cancel()
		if err := c.deps.Lock.Release(rctx, key, owner); err != nil {
			log.Warn("lock release failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (c *Coordinator) publish(ctx context.Context, ev RunEvent, log *zap.Logger) {
	if c.deps.Events == nil {
		return
	}
	if err := c.deps.Events.RunCompleted(ctx, ev); err != nil {
		log.Warn("run event not published", zap.Error(err))
	}
}

// scan обходит хозяйства последовательно и собирает итог.
// При ошибке возвращает частичный результат (для записи в упавший прогон) и ошибку.
func (c *Coordinator) scan(ctx context.Context, runID string, req ScanRequest, now time.Time, log *zap.Logger) (*domain.RunResult, error) {
	tenants, err := c.tenants(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	res := &domain.RunResult{
		RunID:    runID,
		Summary:  domain.RunSummary{DryRun: req.DryRun, TenantCount: len(tenants), Tenants: make([]domain.TenantReport, 0, len(tenants))},
		Findings: make([]domain.Finding, 0),
	}
	var arising []domain.Arising

	var scanErr error
	for _, t := range tenants {
		out, err := c.scanTenant(ctx, runID, t, req.DryRun, now)
		res.Summary.Tenants = append(res.Summary.Tenants, out.report)
		if err != nil {
			scanErr = fmt.Errorf("engine: tenant %s: %w", t.ID, err)
			break
		}

		res.Findings = append(res.Findings, out.findings...)
		arising = append(arising, out.arising...)
		res.Summary.FindingCount += len(out.findings)
		res.Summary.ArisingFindingCount += len(out.arising)
		res.Summary.ResolvedCount += out.report.ResolvedCount
		for _, f := range out.findings {
			res.Summary.BySeverity.Add(f.Severity)
		}

		log.Debug("tenant scanned",
			zap.String("tenant_id", t.ID),
			zap.String("status", string(out.report.Status)),
			zap.Strings("missing", out.report.Missing),
			zap.Int("findings", out.report.FindingCount),
			zap.Int("arising", out.report.ArisingCount))
	}

	res.Summary.TopArising = alert.Select(arising, c.opts.TopAlerts)

	// Уже записанные в реестр new/escalated не должны потеряться и при упавшем прогоне:
	// следующий прогон увидит их как unchanged и промолчит.
	if scanErr != nil && len(arising) == 0 {
		return res, scanErr
	}

	report := c.deps.Notifier.Notify(ctx, arising, res.Summary.FindingCount, req.DryRun)
	res.Summary.EmailNotification = report.For(domain.ChannelEmail)
	res.Summary.WhatsAppNotification = report.For(domain.ChannelWhatsApp)
	c.deps.Metrics.observeNotifications(report)

	return res, scanErr
}

func (c *Coordinator) tenants(ctx context.Context, tenantID string) ([]domain.Tenant, error) {
	if tenantID != "" {
		t, err := c.deps.Tenants.GetTenant(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("engine: get tenant %s: %w", tenantID, err)
		}
		return []domain.Tenant{t}, nil
	}
	list, err := c.deps.Tenants.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: list tenants: %w", err)
	}
	return list, nil
}

type tenantOutcome struct {
	report   domain.TenantReport
	findings []domain.Finding
	arising  []domain.Arising
}

func (c *Coordinator) scanTenant(ctx context.Context, runID string, t domain.Tenant, dryRun bool, now time.Time) (out tenantOutcome, err error) {
	started := time.Now()
	out.report = domain.TenantReport{TenantID: t.ID, TenantName: t.Name}
	defer func() {
		if err != nil {
			out.report.Status = domain.TenantFailed
			out.report.Error = err.Error()
		}
		c.deps.Metrics.TenantScanDuration.WithLabelValues(string(out.report.Status)).Observe(time.Since(started).Seconds())
	}()

	// 0. Лок хозяйства: прогон "all" и прогон одного хозяйства не должны
	// чередовать upsert и sweep по одним и тем же исключениям
	if !dryRun {
		release, err := c.lock(ctx, infra.GetTenantLockKey(t.ID), runID)
		if err != nil {
			return out, err
		}
		defer release(c.logger)
	}

	// 1. Чтения с дедлайном на хозяйство
	tctx, cancel := context.WithTimeout(ctx, c.opts.TenantTimeout)
	snap, err := c.deps.Extractor.Collect(tctx, t, now)
	cancel()
	if err != nil {
		return out, err
	}
	out.report.Missing = snap.Missing

	if !snap.Provisioned() {
		out.report.Status = domain.TenantSkipped
		return out, nil
	}

	// 2. Правила
	out.findings = rules.Evaluate(snap)
	out.report.FindingCount = len(out.findings)

	// 3. Журнал до реестра: не дописанный журнал валит хозяйство, реестр не тронут
	if !dryRun {
		if err := c.deps.Journal.Record(ctx, journalRows(runID, out.findings, now)); err != nil {
			return out, err
		}
	}

	// 4. Реестр
	var outcome ledger.Outcome
	if dryRun {
		outcome, err = c.deps.Ledger.Preview(ctx, t.ID, out.findings, now)
	} else {
		outcome, err = c.deps.Ledger.Reconcile(ctx, t.ID, runID, out.findings, now)
	}
	if err != nil {
		return out, err
	}
	out.arising = outcome.Arising
	out.report.ArisingCount = len(outcome.Arising)
	out.report.ResolvedCount = outcome.Resolved
	out.report.Status = domain.TenantScanned

	if dryRun {
		return out, nil
	}

	// 5. Метрики только для настоящих прогонов
	for _, f := range out.findings {
		c.deps.Metrics.FindingsTotal.WithLabelValues(string(f.Rule), string(f.Severity)).Inc()
	}
	for _, a := range outcome.Arising {
		c.deps.Metrics.ExceptionChanges.WithLabelValues(string(a.Change)).Inc()
	}
	c.deps.Metrics.ExceptionsResolved.Add(float64(outcome.Resolved))

	return out, nil
}

func journalRows(runID string, findings []domain.Finding, now time.Time) []domain.AgentFinding {
	rows := make([]domain.AgentFinding, 0, len(findings))
	for _, f := range findings {
		rows = append(rows, domain.AgentFinding{
			ID:          uuid.New().String(),
			RunID:       runID,
			TenantID:    f.TenantID,
			Rule:        f.Rule,
			EntityKey:   f.EntityKey,
			Severity:    f.Severity,
			Title:       f.Title,
			Description: f.Description,
			Details:     f.Details,
			ObservedAt:  now,
		})
	}
	return rows
}
