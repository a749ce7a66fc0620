package rules

import (
	"fmt"

	"github.com/xela07ax/estate-integrity/internal/domain"
	"github.com/xela07ax/estate-integrity/internal/extract"
)

// DispatchTolerance — допуск на погрешность весов (3%)
const DispatchTolerance = 1.03

// DispatchOverage — принято больше, чем могло быть отгружено по количеству мешков.
type DispatchOverage struct{}

func (DispatchOverage) evaluate(s *extract.Snapshot) []domain.Finding {
	return CheckDispatchOverage(s.Tenant.ID, s.Dispatches, s.Tenant.UnitWeightKg())
}

func CheckDispatchOverage(tenantID string, rows []extract.DispatchRecord, unitWeightKg float64) []domain.Finding {
	var out []domain.Finding
	for _, r := range rows {
		// Нужны и мешки, и явно указанный принятый вес
		if r.Bags <= 0 || r.KgsReceived == nil {
			continue
		}

		received := *r.KgsReceived
		expected := r.Bags * unitWeightKg
		if received <= expected*DispatchTolerance {
			continue
		}

		overage := received - expected
		severity := domain.SeverityMedium
		if overage > unitWeightKg {
			severity = domain.SeverityHigh
		}

		out = append(out, domain.Finding{
			TenantID:  tenantID,
			Rule:      domain.RuleDispatchOverage,
			EntityKey: "dispatch:" + r.ID,
			Severity:  severity,
			Title:     "Dispatch received more than dispatched",
			Description: fmt.Sprintf("Dispatch %s: %s kg received for %s bags (expected %s kg at %s kg/bag), %s kg over.",
				r.ID, formatQty(received), formatQty(r.Bags), formatQty(expected), formatQty(unitWeightKg), formatQty(overage)),
			Details: map[string]any{
				"dispatchId":   r.ID,
				"bags":         r.Bags,
				"unitWeightKg": unitWeightKg,
				"expectedKg":   expected,
				"receivedKg":   received,
				"overageKg":    overage,
				"tolerance":    DispatchTolerance,
			},
		})
	}
	return out
}
