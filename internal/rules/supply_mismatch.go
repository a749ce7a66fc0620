package rules

import (
	"fmt"
	"math"

	"github.com/xela07ax/estate-integrity/internal/domain"
	"github.com/xela07ax/estate-integrity/internal/extract"
)

const (
	// SupplyNoiseFloorKg — абсолютный допуск, ниже которого расхождение считается шумом
	SupplyNoiseFloorKg = 5.0
	// SupplyHighRatio — продано больше чем supply * 1.2 => high
	SupplyHighRatio = 1.2

	supplyEntityKey = "window:30d"
)

// SupplyMismatch — продажи за 30 дней не должны превышать массу,
// которая была произведена или перемещена в продаваемый пул.
type SupplyMismatch struct{}

func (SupplyMismatch) evaluate(s *extract.Snapshot) []domain.Finding {
	if f, ok := CheckSupplyMismatch(s.Tenant.ID, s.Supply); ok {
		return []domain.Finding{f}
	}
	return nil
}

// CheckSupplyMismatch сравнивает проданную массу с сигналом поставки max(processed, dispatched)
func CheckSupplyMismatch(tenantID string, t extract.SupplyTotals) (domain.Finding, bool) {
	supply := math.Max(t.ProcessedKg, t.DispatchedKg)
	if t.SoldKg <= supply+SupplyNoiseFloorKg {
		return domain.Finding{}, false
	}

	severity := domain.SeverityMedium
	if t.SoldKg > supply*SupplyHighRatio || supply <= 0 {
		severity = domain.SeverityHigh
	}

	diff := t.SoldKg - supply
	return domain.Finding{
		TenantID:  tenantID,
		Rule:      domain.RuleProcessedLessThanSold,
		EntityKey: supplyEntityKey,
		Severity:  severity,
		Title:     "Sold more than processed or dispatched (30 days)",
		Description: fmt.Sprintf("Sold %s kg in the last 30 days against a supply signal of %s kg (processed %s kg, dispatched %s kg): %s kg unaccounted. Check for double-counted sales, misattributed coffee or bag type, or a missing dispatch entry.",
			formatQty(t.SoldKg), formatQty(supply), formatQty(t.ProcessedKg), formatQty(t.DispatchedKg), formatQty(diff)),
		Details: map[string]any{
			"processedKg":  t.ProcessedKg,
			"dispatchedKg": t.DispatchedKg,
			"soldKg":       t.SoldKg,
			"supplySignal": supply,
			"diffKg":       diff,
			"windowDays":   30,
		},
	}, true
}
