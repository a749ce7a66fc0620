// Package rules содержит детерминированные и статистические проверки,
// которые превращают снапшот метрик хозяйства в набор сработок (Finding).
package rules

import (
	"sort"

	"github.com/xela07ax/estate-integrity/internal/domain"
	"github.com/xela07ax/estate-integrity/internal/extract"
)

// Rule — закрытый набор семейств правил.
// Неэкспортируемый метод не дает добавить правило вне пакета.
type Rule interface {
	evaluate(s *extract.Snapshot) []domain.Finding
}

// Default возвращает фиксированный набор правил движка
func Default() []Rule {
	return []Rule{
		NegativeStock{},
		SupplyMismatch{},
		DispatchOverage{},
		BaselineOutlier{},
	}
}

// Evaluate прогоняет весь набор правил по снапшоту.
// Порядок результата детерминирован: по коду правила, затем по ключу сущности.
func Evaluate(s *extract.Snapshot) []domain.Finding {
	return EvaluateWith(Default(), s)
}

func EvaluateWith(set []Rule, s *extract.Snapshot) []domain.Finding {
	findings := make([]domain.Finding, 0)
	for _, r := range set {
		findings = append(findings, r.evaluate(s)...)
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Rule != findings[j].Rule {
			return findings[i].Rule < findings[j].Rule
		}
		return findings[i].EntityKey < findings[j].EntityKey
	})
	return findings
}
