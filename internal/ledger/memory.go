package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/estate-integrity/internal/domain"
)

// MemoryStore — реестр в оперативной памяти (арена исключений по ID).
// Повторяет семантику postgres-реализации; используется в тестах и в превью CLI.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]domain.Exception
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]domain.Exception)}
}

func (s *MemoryStore) ListOpen(ctx context.Context, tenantID string) ([]domain.Exception, error) {
	return s.List(ctx, domain.ExceptionFilter{TenantID: tenantID, Status: domain.ExceptionOpen})
}

// Upsert: ищем открытую запись по натуральному ключу, иначе вставляем новую.
func (s *MemoryStore) Upsert(ctx context.Context, ex *domain.Exception) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, cur := range s.items {
		if cur.Status != domain.ExceptionOpen || cur.Key() != ex.Key() {
			continue
		}
		cur.Severity = ex.Severity
		cur.Title = ex.Title
		cur.Description = ex.Description
		cur.Details = ex.Details
		cur.LastSeenAt = ex.LastSeenAt
		cur.LastRunID = ex.LastRunID
		s.items[id] = cur
		ex.ID = id
		ex.FirstSeenAt = cur.FirstSeenAt
		return nil
	}

	if ex.ID == "" {
		ex.ID = uuid.New().String()
	}
	if _, taken := s.items[ex.ID]; taken {
		// Закрытая запись с тем же ID остается историей
		ex.ID = uuid.New().String()
	}
	if ex.FirstSeenAt.IsZero() {
		ex.FirstSeenAt = ex.LastSeenAt
	}
	ex.Status = domain.ExceptionOpen
	ex.ResolvedAt = nil
	s.items[ex.ID] = *ex
	return nil
}

func (s *MemoryStore) ResolveStale(ctx context.Context, tenantID, runID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, cur := range s.items {
		if cur.TenantID != tenantID || cur.Status != domain.ExceptionOpen || cur.LastRunID == runID {
			continue
		}
		resolvedAt := at
		cur.Status = domain.ExceptionResolved
		cur.ResolvedAt = &resolvedAt
		s.items[id] = cur
		n++
	}
	return n, nil
}

// List — выборка по фильтру, упорядочена по first_seen_at и ключу
func (s *MemoryStore) List(ctx context.Context, f domain.ExceptionFilter) ([]domain.Exception, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Exception, 0)
	for _, cur := range s.items {
		if f.TenantID != "" && cur.TenantID != f.TenantID {
			continue
		}
		if f.Status != "" && cur.Status != f.Status {
			continue
		}
		if f.Rule != "" && cur.Rule != f.Rule {
			continue
		}
		out = append(out, cur)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeenAt.Equal(out[j].FirstSeenAt) {
			return out[i].FirstSeenAt.Before(out[j].FirstSeenAt)
		}
		return out[i].Key().String() < out[j].Key().String()
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
