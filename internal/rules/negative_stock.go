package rules

import (
	"fmt"

	"github.com/xela07ax/estate-integrity/internal/domain"
	"github.com/xela07ax/estate-integrity/internal/extract"
)

// NegativeHighThreshold — ниже этого остатка (в единицах товара) серьезность high
const NegativeHighThreshold = -50.0

// NegativeStock — структурный инвариант: остаток никогда не уходит в минус.
// Нарушение означает, что выше по потоку пропущена проверка списания.
type NegativeStock struct{}

func (NegativeStock) evaluate(s *extract.Snapshot) []domain.Finding {
	return CheckNegativeStock(s.Tenant.ID, s.Stock)
}

func CheckNegativeStock(tenantID string, rows []extract.StockLevel) []domain.Finding {
	var out []domain.Finding
	for _, row := range rows {
		if row.Quantity >= 0 {
			continue
		}

		severity := domain.SeverityMedium
		if row.Quantity < NegativeHighThreshold {
			severity = domain.SeverityHigh
		}

		unit := row.Unit
		if unit == "" {
			unit = "kg"
		}

		out = append(out, domain.Finding{
			TenantID:  tenantID,
			Rule:      domain.RuleNegativeInventory,
			EntityKey: row.Location + ":" + row.Item,
			Severity:  severity,
			Title:     "Negative inventory balance",
			Description: fmt.Sprintf("Current stock of %s at %s is %s %s; stock must never go negative.",
				row.Item, row.Location, formatQty(row.Quantity), unit),
			Details: map[string]any{
				"location": row.Location,
				"item":     row.Item,
				"quantity": row.Quantity,
				"unit":     unit,
			},
		})
	}
	return out
}
