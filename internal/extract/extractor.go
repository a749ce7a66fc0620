package extract

/*
Файл extractor.go содержит экстракторы метрик: read-only запросы по одному хозяйству,
которые возвращают минимальные агрегаты для правил.

- Окна фиксированы движком (30 дней для баланса, 84 дня недельных корзин для базовых линий).
- Независимые чтения идут параллельно (fan-out/fan-in через errgroup),
  правила запускаются только после завершения всех чтений.
- Отсутствие таблицы у хозяйства — это не ошибка, а "нет данных" (ErrNotProvisioned).
*/

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/estate-integrity/internal/domain"
	"golang.org/x/sync/errgroup"
)

// ErrNotProvisioned — у хозяйства еще нет нужной таблицы/колонки.
// Источник оборачивает эту ошибку, Collect превращает ее в пустые данные.
var ErrNotProvisioned = errors.New("extract: record type not provisioned for tenant")

// Имена источников (попадают в Snapshot.Missing и в отчет по хозяйству)
const (
	SourceStock      = "current_stock"
	SourceProcessing = "processing_records"
	SourceDispatch   = "dispatch_records"
	SourceSales      = "sales_records"
	SourceWeekly     = "processing_weekly"

	sourceCount = 5
)

// Source описывает read-only доступ к операционным таблицам.
// Реализация — postgres.IntegrityRepo.
type Source interface {
	CurrentStock(ctx context.Context, tenantID string) ([]StockLevel, error)
	ProcessedOutput(ctx context.Context, tenantID string, from, to time.Time) (float64, error)
	DispatchRecords(ctx context.Context, tenantID string, from, to time.Time) ([]DispatchRecord, error)
	SalesRecords(ctx context.Context, tenantID string, from, to time.Time) ([]SaleRecord, error)
	WeeklyProcessing(ctx context.Context, tenantID string, from, to time.Time) ([]WeeklyProcessing, error)
}

// Snapshot — все, что правилам нужно знать об одном хозяйстве на момент прогона.
type Snapshot struct {
	Tenant     domain.Tenant
	Now        time.Time
	Window     Window
	Stock      []StockLevel
	Supply     SupplyTotals
	Dispatches []DispatchRecord
	Weekly     []WeeklyProcessing
	Missing    []string
}

// Provisioned сообщает, есть ли у хозяйства хотя бы один источник
func (s *Snapshot) Provisioned() bool {
	return len(s.Missing) < sourceCount
}

type Collector struct {
	source Source
}

func NewCollector(source Source) *Collector {
	return &Collector{source: source}
}

// Collect параллельно выполняет все чтения по хозяйству и ждет их завершения.
// Первая "настоящая" ошибка отменяет остальные чтения и возвращается наверх.
func (c *Collector) Collect(ctx context.Context, tenant domain.Tenant, now time.Time) (*Snapshot, error) {
	w := Windows(now)
	snap := &Snapshot{Tenant: tenant, Now: now, Window: w}

	var (
		mu         sync.Mutex
		dispatches []DispatchRecord
		sales      []SaleRecord
	)

	// absent фиксирует отсутствующий источник, остальные ошибки пробрасывает
	absent := func(source string, err error) error {
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotProvisioned) {
			mu.Lock()
			snap.Missing = append(snap.Missing, source)
			mu.Unlock()
			return nil
		}
		return fmt.Errorf("extract: %s for tenant %s: %w", source, tenant.ID, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := c.source.CurrentStock(gctx, tenant.ID)
		snap.Stock = rows
		return absent(SourceStock, err)
	})
	g.Go(func() error {
		kg, err := c.source.ProcessedOutput(gctx, tenant.ID, w.SupplyFrom, w.SupplyTo)
		snap.Supply.ProcessedKg = kg
		return absent(SourceProcessing, err)
	})
	g.Go(func() error {
		rows, err := c.source.DispatchRecords(gctx, tenant.ID, w.SupplyFrom, w.SupplyTo)
		dispatches = rows
		return absent(SourceDispatch, err)
	})
	g.Go(func() error {
		rows, err := c.source.SalesRecords(gctx, tenant.ID, w.SupplyFrom, w.SupplyTo)
		sales = rows
		return absent(SourceSales, err)
	})
	g.Go(func() error {
		rows, err := c.source.WeeklyProcessing(gctx, tenant.ID, w.BaselineFrom, w.WeekEnd)
		snap.Weekly = rows
		return absent(SourceWeekly, err)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(snap.Missing)

	unit := tenant.UnitWeightKg()
	snap.Dispatches = dispatches
	snap.Supply.DispatchedKg = TotalDispatchedKg(dispatches, unit)
	snap.Supply.SoldKg = TotalSoldKg(sales, unit)

	return snap, nil
}
