package domain

import "fmt"

type RuleCode string

const (
	RuleNegativeInventory     RuleCode = "negative_inventory"
	RuleProcessedLessThanSold RuleCode = "processed_less_than_sold_30d"
	RuleDispatchOverage       RuleCode = "dispatch_received_gt_dispatched"
	RuleYieldOutlier          RuleCode = "yield_outlier"
	RuleFloatRateOutlier      RuleCode = "float_rate_outlier"
)

// KnownRule — набор правил закрыт, другие коды в реестр не попадают
func KnownRule(r RuleCode) bool {
	switch r {
	case RuleNegativeInventory, RuleProcessedLessThanSold, RuleDispatchOverage, RuleYieldOutlier, RuleFloatRateOutlier:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank — порядковый номер для сравнения (эскалация, сортировка алертов).
// Неизвестная серьезность получает 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Severities — все уровни по возрастанию
func Severities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// Finding — эфемерная сработка правила в рамках одного прогона.
// В базу напрямую не пишется, это вход для реестра исключений.
type Finding struct {
	TenantID    string         `json:"tenantId"`
	Rule        RuleCode       `json:"rule"`
	EntityKey   string         `json:"entityKey"` // Что именно аномально: "<location>:<item>", "dispatch:<id>"
	Severity    Severity       `json:"severity"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details"` // Числовые доказательства
}

// Key возвращает натуральный ключ дедупликации
func (f Finding) Key() ExceptionKey {
	return ExceptionKey{TenantID: f.TenantID, Rule: f.Rule, EntityKey: f.EntityKey}
}

type ChangeType string

const (
	ChangeNew       ChangeType = "new"
	ChangeEscalated ChangeType = "escalated"
)

// Arising — пара (сработка, тип изменения), которая идет в алерт-гейт.
// Повторные подтверждения без роста серьезности сюда не попадают.
type Arising struct {
	Finding          Finding    `json:"finding"`
	Change           ChangeType `json:"changeType"`
	PreviousSeverity Severity   `json:"previousSeverity,omitempty"`
}

func (a Arising) String() string {
	if a.Change == ChangeEscalated {
		return fmt.Sprintf("%s %s->%s %s", a.Change, a.PreviousSeverity, a.Finding.Severity, a.Finding.EntityKey)
	}
	return fmt.Sprintf("%s %s %s", a.Change, a.Finding.Severity, a.Finding.EntityKey)
}
