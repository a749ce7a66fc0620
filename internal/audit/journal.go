package audit

/*
Журнал сработок (agent_findings) — append-only след каждого прогона.

- Record пишет строки хозяйства синхронно, пачками по batchSize:
  один INSERT на пачку, а не на строку.
- Ошибка записи возвращается вызывающему: прогон, у которого журнал
  не дописан, финализируется как failed. Молча терять строки нельзя.
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xela07ax/estate-integrity/internal/domain"
	"go.uber.org/zap"
)

// DefaultBatchSize — строк на один INSERT
const DefaultBatchSize = 100

// BatchWriter — куда физически пишутся строки журнала
type BatchWriter interface {
	// WriteBatch сохраняет пачку сработок за один раз
	WriteBatch(ctx context.Context, rows []domain.AgentFinding) error
}

type Journal struct {
	repo      BatchWriter
	batchSize int
	written   prometheus.Counter
	logger    *zap.Logger
}

// NewJournal: written может быть nil, тогда счетчик строк не экспортируется
func NewJournal(repo BatchWriter, batchSize int, written prometheus.Counter, logger *zap.Logger) *Journal {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Journal{
		repo:      repo,
		batchSize: batchSize,
		written:   written,
		logger:    logger.With(zap.String("mod", "journal")),
	}
}

// Record сохраняет все строки или возвращает ошибку первой упавшей пачки.
// Пустой ObservedAt проставляется текущим временем.
func (j *Journal) Record(ctx context.Context, rows []domain.AgentFinding) error {
	if len(rows) == 0 {
		return nil
	}

	now := time.Now().UTC()
	for i := range rows {
		if rows[i].ObservedAt.IsZero() {
			rows[i].ObservedAt = now
		}
	}

	for start := 0; start < len(rows); start += j.batchSize {
		end := min(start+j.batchSize, len(rows))
		if err := j.repo.WriteBatch(ctx, rows[start:end]); err != nil {
			j.logger.Error("journal write failed",
				zap.String("run_id", rows[start].RunID),
				zap.String("tenant_id", rows[start].TenantID),
				zap.Int("offset", start),
				zap.Int("rows", len(rows)),
				zap.Error(err))
			return fmt.Errorf("audit: write findings %d-%d of %d: %w", start, end, len(rows), err)
		}
		if j.written != nil {
			j.written.Add(float64(end - start))
		}
	}
	return nil
}
