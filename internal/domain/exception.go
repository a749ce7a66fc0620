package domain

import (
	"fmt"
	"time"
)

type ExceptionStatus string

const (
	ExceptionOpen     ExceptionStatus = "open"
	ExceptionResolved ExceptionStatus = "resolved"
)

// ExceptionKey — натуральный ключ (tenant, rule, entity).
// Для каждого ключа в любой момент существует не более одного открытого исключения.
type ExceptionKey struct {
	TenantID  string
	Rule      RuleCode
	EntityKey string
}

func (k ExceptionKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.TenantID, k.Rule, k.EntityKey)
}

// Exception — персистентная дедуплицированная запись о длящейся проблеме.
type Exception struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	Rule        RuleCode        `json:"rule_code"`
	EntityKey   string          `json:"entity_key"`
	Severity    Severity        `json:"severity"`
	Status      ExceptionStatus `json:"status"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Details     map[string]any  `json:"details"`
	FirstSeenAt time.Time       `json:"first_seen_at"`
	LastSeenAt  time.Time       `json:"last_seen_at"`
	ResolvedAt  *time.Time      `json:"resolved_at"` // nil пока открыто
	LastRunID   string          `json:"last_run_id"` // Прогон, который последним подтвердил проблему
}

func (e Exception) Key() ExceptionKey {
	return ExceptionKey{TenantID: e.TenantID, Rule: e.Rule, EntityKey: e.EntityKey}
}

// ExceptionFilter — фильтры выборки для консоли и CLI
type ExceptionFilter struct {
	TenantID string
	Status   ExceptionStatus
	Rule     RuleCode
	Limit    int
}
