package domain

import "time"

type TriggerSource string

const (
	TriggerManual    TriggerSource = "manual"
	TriggerScheduled TriggerSource = "scheduled"
)

type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// TenantScopeAll — прогон по всем хозяйствам
const TenantScopeAll = "all"

// AgentRun — одно исполнение движка.
// Создается на старте без статуса, финализируется ровно один раз.
type AgentRun struct {
	ID            string        `json:"id"`
	AgentName     string        `json:"agent_name"`
	TriggerSource TriggerSource `json:"trigger_source"`
	TenantScope   string        `json:"tenant_scope"`
	Status        *RunStatus    `json:"status"` // nil — прогон еще идет (или был убит)
	Summary       *RunSummary   `json:"summary,omitempty"`
	Error         string        `json:"error,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
}

// AgentFinding — строка аудита: одна на каждую сработку прогона.
// Только append, движок ее обратно не читает.
type AgentFinding struct {
	ID          string         `json:"id"`
	RunID       string         `json:"run_id"`
	TenantID    string         `json:"tenant_id"`
	Rule        RuleCode       `json:"rule_code"`
	EntityKey   string         `json:"entity_key"`
	Severity    Severity       `json:"severity"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details"`
	ObservedAt  time.Time      `json:"observed_at"`
}

type TenantStatus string

const (
	TenantScanned TenantStatus = "scanned"
	TenantSkipped TenantStatus = "skipped" // Ни одна из таблиц не подключена
	TenantFailed  TenantStatus = "failed"
)

// TenantReport — явный итог по одному хозяйству внутри прогона
type TenantReport struct {
	TenantID      string       `json:"tenantId"`
	TenantName    string       `json:"tenantName"`
	Status        TenantStatus `json:"status"`
	FindingCount  int          `json:"findingCount"`
	ArisingCount  int          `json:"arisingCount"`
	ResolvedCount int          `json:"resolvedCount"`
	Missing       []string     `json:"missing,omitempty"` // Источники, которых у хозяйства нет
	Error         string       `json:"error,omitempty"`
}

// SeverityCounts — счетчики по уровням серьезности
type SeverityCounts struct {
	Low      int `json:"low"`
	Medium   int `json:"medium"`
	High     int `json:"high"`
	Critical int `json:"critical"`
}

func (c *SeverityCounts) Add(s Severity) {
	switch s {
	case SeverityLow:
		c.Low++
	case SeverityMedium:
		c.Medium++
	case SeverityHigh:
		c.High++
	case SeverityCritical:
		c.Critical++
	}
}

type RunSummary struct {
	DryRun               bool           `json:"dryRun"`
	TenantCount          int            `json:"tenantCount"`
	FindingCount         int            `json:"findingCount"`
	ArisingFindingCount  int            `json:"arisingFindingCount"`
	ResolvedCount        int            `json:"resolvedCount"`
	BySeverity           SeverityCounts `json:"bySeverity"`
	Tenants              []TenantReport `json:"tenants"`
	TopArising           []Arising      `json:"topArising"`
	EmailNotification    Delivery       `json:"emailNotification"`
	WhatsAppNotification Delivery       `json:"whatsAppNotification"`
}

// RunResult — то, что получает вызывающий runScan
type RunResult struct {
	RunID    string     `json:"runId"`
	Summary  RunSummary `json:"summary"`
	Findings []Finding  `json:"findings"`
}
