package app

/*
Сборка движка из конфигурации. Общая для демона (integrityd) и CLI (integrityctl):
Postgres -> источники/реестр/прогоны/журнал, Redis -> лок и события,
каналы уведомлений под Guard, координатор поверх всего этого.
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/estate-integrity/internal/alert"
	"github.com/xela07ax/estate-integrity/internal/audit"
	"github.com/xela07ax/estate-integrity/internal/domain"
	"github.com/xela07ax/estate-integrity/internal/engine"
	"github.com/xela07ax/estate-integrity/internal/extract"
	"github.com/xela07ax/estate-integrity/internal/infra"
	"github.com/xela07ax/estate-integrity/internal/ledger"
	"github.com/xela07ax/estate-integrity/internal/repository/postgres"
	"go.uber.org/zap"
)

type Options struct {
	// MemoryLedger: реестр в памяти процесса, без записи прогонов, журнала и уведомлений.
	// Источники все равно читаются из Postgres.
	MemoryLedger bool
}

type App struct {
	Config      *infra.Config
	Logger      *zap.Logger
	Pool        *pgxpool.Pool
	Repo        *postgres.IntegrityRepo
	Redis       *redis.Client
	Metrics     *engine.Metrics
	Journal     *audit.Journal
	Coordinator *engine.Coordinator
}

// New поднимает ресурсы и собирает координатор. reg может быть nil.
func New(ctx context.Context, cfg *infra.Config, logger *zap.Logger, reg prometheus.Registerer, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: engine.NewMetrics(reg)}

	// 1. Postgres
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	a.Repo = postgres.NewIntegrityRepo(pool)

	if cfg.Database.EnsureSchema && !opts.MemoryLedger {
		if err := a.Repo.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("engine schema ensured")
	}

	deps := engine.Deps{
		Tenants:   a.Repo,
		Extractor: extract.NewCollector(a.Repo),
		Metrics:   a.Metrics,
	}

	if opts.MemoryLedger {
		deps.Ledger = ledger.NewReconciler(ledger.NewMemoryStore(), logger)
		deps.Runs = discardRuns{}
		deps.Journal = discardJournal{}
		deps.Notifier = alert.NewDispatcher(logger, cfg.Engine.TopAlerts, cfg.Engine.DescriptionLimit)
	} else {
		// 2. Redis: лок прогона и событие завершения
		if cfg.Redis.Addr != "" {
			a.Redis = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err := a.Redis.Ping(ctx).Err(); err != nil {
				a.Close()
				return nil, fmt.Errorf("redis: ping %s: %w", cfg.Redis.Addr, err)
			}
			deps.Lock = engine.NewRedisRunLock(a.Redis, cfg.Engine.RunLockTTL)
			deps.Events = engine.NewRedisRunEvents(a.Redis)
		}

		// 3. Журнал сработок
		a.Journal = audit.NewJournal(a.Repo, cfg.Engine.AuditBatchSize, a.Metrics.JournalRowsWritten, logger)

		deps.Ledger = ledger.NewReconciler(a.Repo, logger)
		deps.Runs = a.Repo
		deps.Journal = a.Journal
		deps.Notifier = alert.NewDispatcher(logger, cfg.Engine.TopAlerts, cfg.Engine.DescriptionLimit, a.channels()...)
	}

	a.Coordinator = engine.NewCoordinator(deps, engine.Options{
		AgentName:     cfg.Engine.AgentName,
		TenantTimeout: cfg.Engine.TenantTimeout,
		TopAlerts:     cfg.Engine.TopAlerts,
	}, logger)
	return a, nil
}

// channels — email и WhatsApp, каждый под своим Guard
func (a *App) channels() []alert.Channel {
	guard := func(name string) *alert.Guard {
		return alert.NewGuard(alert.GuardSettings{
			Name:           name,
			MaxRequests:    a.Config.Engine.CBMaxRequests,
			Interval:       a.Config.Engine.CBInterval,
			Timeout:        a.Config.Engine.CBTimeout,
			Rate:           a.Config.Engine.NotifyRate,
			Burst:          1,
			Attempts:       a.Config.Engine.NotifyAttempts,
			AttemptTimeout: a.Config.Engine.SendTimeout,
			OnStateChange: func(name string, from, to gobreaker.State) {
				a.Logger.Warn("notification circuit breaker state changed",
					zap.String("channel", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
				a.Metrics.ObserveBreaker(name, from, to)
			},
		})
	}

	return []alert.Channel{
		alert.NewEmailChannel(a.Config.Notify.Email, guard(string(domain.ChannelEmail))),
		alert.NewWhatsAppChannel(a.Config.Notify.WhatsApp, guard(string(domain.ChannelWhatsApp)), a.Logger),
	}
}

// Close закрывает соединения. Журнал синхронный, дозаписывать нечего
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

type discardRuns struct{}

func (discardRuns) StartRun(context.Context, *domain.AgentRun) error { return nil }

func (discardRuns) FinishRun(context.Context, string, domain.RunStatus, *domain.RunSummary, string, time.Time) error {
	return nil
}

type discardJournal struct{}

func (discardJournal) Record(context.Context, []domain.AgentFinding) error { return nil }
