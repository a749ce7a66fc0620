package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/estate-integrity/internal/domain"
	"github.com/xela07ax/estate-integrity/internal/extract"
)

func kg(v float64) *float64 { return &v }

func TestNegativeStock_MediumForSmallDeficit(t *testing.T) {
	findings := CheckNegativeStock("t1", []extract.StockLevel{
		{Location: "store", Item: "parchment", Quantity: -12, Unit: "kg"},
		{Location: "store", Item: "cherry", Quantity: 40, Unit: "kg"},
	})

	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, domain.RuleNegativeInventory, f.Rule)
	assert.Equal(t, domain.SeverityMedium, f.Severity)
	assert.Equal(t, "store:parchment", f.EntityKey)
	assert.Equal(t, "t1", f.TenantID)
	assert.Equal(t, -12.0, f.Details["quantity"])
}

func TestNegativeStock_HighBelowThreshold(t *testing.T) {
	findings := CheckNegativeStock("t1", []extract.StockLevel{
		{Location: "a", Item: "x", Quantity: -50},
		{Location: "b", Item: "y", Quantity: -50.5},
	})

	require.Len(t, findings, 2)
	assert.Equal(t, domain.SeverityMedium, findings[0].Severity, "exactly -50 is not below the threshold")
	assert.Equal(t, domain.SeverityHigh, findings[1].Severity)
}

func TestSupplyMismatch(t *testing.T) {
	cases := map[string]struct {
		totals   extract.SupplyTotals
		fires    bool
		severity domain.Severity
	}{
		"sold far above processed": {
			totals:   extract.SupplyTotals{ProcessedKg: 900, DispatchedKg: 400, SoldKg: 1200},
			fires:    true,
			severity: domain.SeverityHigh,
		},
		"within noise floor": {
			totals: extract.SupplyTotals{ProcessedKg: 900, SoldKg: 905},
		},
		"slightly above supply": {
			totals:   extract.SupplyTotals{ProcessedKg: 300, DispatchedKg: 1000, SoldKg: 1100},
			fires:    true,
			severity: domain.SeverityMedium,
		},
		"no supply at all": {
			totals:   extract.SupplyTotals{SoldKg: 10},
			fires:    true,
			severity: domain.SeverityHigh,
		},
		"nothing sold": {
			totals: extract.SupplyTotals{ProcessedKg: 100},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f, ok := CheckSupplyMismatch("t1", tc.totals)
			require.Equal(t, tc.fires, ok)
			if !tc.fires {
				return
			}
			assert.Equal(t, domain.RuleProcessedLessThanSold, f.Rule)
			assert.Equal(t, tc.severity, f.Severity)
		})
	}
}

func TestSupplyMismatch_ScenarioB_Details(t *testing.T) {
	f, ok := CheckSupplyMismatch("t1", extract.SupplyTotals{ProcessedKg: 900, DispatchedKg: 400, SoldKg: 1200})
	require.True(t, ok)
	assert.Equal(t, 900.0, f.Details["supplySignal"])
	assert.Equal(t, 300.0, f.Details["diffKg"])
	assert.Equal(t, "window:30d", f.EntityKey)
}

func TestDispatchOverage(t *testing.T) {
	findings := CheckDispatchOverage("t1", []extract.DispatchRecord{
		{ID: "42", Bags: 10, KgsReceived: kg(520)},   // 520 > 515, перебор 20 < 50
		{ID: "43", Bags: 10, KgsReceived: kg(515)},   // ровно на допуске
		{ID: "44", Bags: 10, KgsReceived: kg(560)},   // перебор 60 > 50
		{ID: "45", Bags: 10},                         // нет принятого веса
		{ID: "46", Bags: 0, KgsReceived: kg(1000)},   // нет мешков
		{ID: "47", Bags: 10, KgsDispatched: kg(900)}, // только отгруженный вес
	}, 50)

	require.Len(t, findings, 2)

	assert.Equal(t, "dispatch:42", findings[0].EntityKey)
	assert.Equal(t, domain.SeverityMedium, findings[0].Severity)
	assert.Equal(t, 500.0, findings[0].Details["expectedKg"])
	assert.Equal(t, 20.0, findings[0].Details["overageKg"])

	assert.Equal(t, "dispatch:44", findings[1].EntityKey)
	assert.Equal(t, domain.SeverityHigh, findings[1].Severity)
}

func weeks(start time.Time, n int, fn func(i int) WeekSample) []WeekSample {
	out := make([]WeekSample, 0, n)
	for i := 0; i < n; i++ {
		ws := fn(i)
		ws.WeekStart = start.AddDate(0, 0, -7*(i+1))
		out = append(out, ws)
	}
	return out
}

var currentWeek = time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)

func alternatingYield(i int) WeekSample {
	dry := 180.0
	if i%2 == 1 {
		dry = 220
	}
	return WeekSample{RipeKg: 1000, DryParchmentKg: dry, GreenKg: 190, FloatKg: 10}
}

func TestEvaluatePair_ScenarioD_YieldDrop(t *testing.T) {
	history := weeks(currentWeek, 4, alternatingYield)
	current := WeekSample{WeekStart: currentWeek, RipeKg: 800, DryParchmentKg: 112, GreenKg: 190, FloatKg: 10}

	findings := EvaluatePair("t1", "north", "arabica", current, history)

	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, domain.RuleYieldOutlier, f.Rule)
	assert.Equal(t, domain.SeverityHigh, f.Severity)
	assert.Equal(t, "north:arabica", f.EntityKey)
	assert.Equal(t, -3.0, f.Details["zScore"])
	assert.Equal(t, 4, f.Details["sampleWeeks"])
	assert.InDelta(t, 0.20, f.Details["baselineMean"], 1e-9)
	assert.InDelta(t, 0.02, f.Details["baselineStd"], 1e-9)
}

func TestEvaluatePair_SampleBoundary(t *testing.T) {
	// Экстремально плохая текущая неделя
	current := WeekSample{WeekStart: currentWeek, RipeKg: 1000, DryParchmentKg: 10, GreenKg: 100, FloatKg: 100}

	three := EvaluatePair("t1", "north", "arabica", current, weeks(currentWeek, 3, alternatingYield))
	assert.Empty(t, three, "3 historical weeks must not be trusted")

	four := EvaluatePair("t1", "north", "arabica", current, weeks(currentWeek, 4, alternatingYield))
	assert.NotEmpty(t, four, "4 historical weeks are evaluated")
}

func TestEvaluatePair_FloatRateSpike(t *testing.T) {
	history := weeks(currentWeek, 4, func(i int) WeekSample {
		floatKg := []float64{10, 12, 8, 10}[i]
		return WeekSample{RipeKg: 1000, DryParchmentKg: 200, GreenKg: 200 - floatKg, FloatKg: floatKg}
	})
	current := WeekSample{WeekStart: currentWeek, RipeKg: 1000, DryParchmentKg: 200, GreenKg: 160, FloatKg: 40}

	findings := EvaluatePair("t1", "south", "robusta", current, history)

	require.Len(t, findings, 1)
	assert.Equal(t, domain.RuleFloatRateOutlier, findings[0].Rule)
	assert.Equal(t, domain.SeverityCritical, findings[0].Severity)
}

func TestEvaluatePair_DegenerateAndLowVolume(t *testing.T) {
	flat := weeks(currentWeek, 5, func(int) WeekSample {
		return WeekSample{RipeKg: 1000, DryParchmentKg: 200, GreenKg: 190, FloatKg: 10}
	})

	t.Run("zero stddev is skipped", func(t *testing.T) {
		current := WeekSample{RipeKg: 1000, DryParchmentKg: 50, GreenKg: 100, FloatKg: 100}
		assert.Empty(t, EvaluatePair("t1", "a", "b", current, flat))
	})

	t.Run("tiny week is skipped", func(t *testing.T) {
		current := WeekSample{RipeKg: 40, DryParchmentKg: 1, GreenKg: 20, FloatKg: 20}
		assert.Empty(t, EvaluatePair("t1", "a", "b", current, weeks(currentWeek, 4, alternatingYield)))
	})
}

func TestSeverityForZ(t *testing.T) {
	assert.Equal(t, domain.SeverityLow, SeverityForZ(1.99))
	assert.Equal(t, domain.SeverityMedium, SeverityForZ(-2))
	assert.Equal(t, domain.SeverityMedium, SeverityForZ(2.99))
	assert.Equal(t, domain.SeverityHigh, SeverityForZ(3))
	assert.Equal(t, domain.SeverityHigh, SeverityForZ(-3.5))
	assert.Equal(t, domain.SeverityCritical, SeverityForZ(4))
}

func TestCheckBaselines_BucketsWeeksFromSnapshotRows(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	w := extract.Windows(now) // CurrentWeek = 2026-10-05

	var rows []extract.WeeklyProcessing
	for i := 1; i <= 4; i++ {
		dry := 180.0
		if i%2 == 0 {
			dry = 220
		}
		rows = append(rows, extract.WeeklyProcessing{
			Location: "north", CoffeeType: "arabica",
			WeekStart: w.CurrentWeek.AddDate(0, 0, -7*i),
			RipeKg:    1000, DryParchmentKg: dry, GreenKg: 190, FloatKg: 10,
		})
	}
	// Текущая неделя пришла двумя строками — суммируются в одну корзину
	rows = append(rows,
		extract.WeeklyProcessing{Location: "north", CoffeeType: "arabica", WeekStart: w.CurrentWeek, RipeKg: 400, DryParchmentKg: 56, GreenKg: 95, FloatKg: 5},
		extract.WeeklyProcessing{Location: "north", CoffeeType: "arabica", WeekStart: w.CurrentWeek, RipeKg: 400, DryParchmentKg: 56, GreenKg: 95, FloatKg: 5},
		// Незавершенная неделя игнорируется
		extract.WeeklyProcessing{Location: "north", CoffeeType: "arabica", WeekStart: w.WeekEnd, RipeKg: 1000, DryParchmentKg: 1},
		// Пара без текущей недели пропускается
		extract.WeeklyProcessing{Location: "south", CoffeeType: "robusta", WeekStart: w.CurrentWeek.AddDate(0, 0, -7), RipeKg: 1000, DryParchmentKg: 200},
	)

	findings := CheckBaselines("t1", rows, w)
	require.Len(t, findings, 1)
	assert.Equal(t, domain.RuleYieldOutlier, findings[0].Rule)
	assert.Equal(t, domain.SeverityHigh, findings[0].Severity)
	assert.Equal(t, "2026-10-05", findings[0].Details["weekStart"])
}

func TestEvaluate_DeterministicOrder(t *testing.T) {
	snap := &extract.Snapshot{
		Tenant: domain.Tenant{ID: "t1", BagWeightKg: 50},
		Stock: []extract.StockLevel{
			{Location: "z", Item: "cherry", Quantity: -1},
			{Location: "a", Item: "cherry", Quantity: -100},
		},
		Supply:     extract.SupplyTotals{ProcessedKg: 900, DispatchedKg: 400, SoldKg: 1200},
		Dispatches: []extract.DispatchRecord{{ID: "9", Bags: 10, KgsReceived: kg(520)}},
		Window:     extract.Windows(time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)),
	}

	findings := Evaluate(snap)
	require.Len(t, findings, 4)

	assert.Equal(t, domain.RuleDispatchOverage, findings[0].Rule)
	assert.Equal(t, domain.RuleNegativeInventory, findings[1].Rule)
	assert.Equal(t, "a:cherry", findings[1].EntityKey)
	assert.Equal(t, "z:cherry", findings[2].EntityKey)
	assert.Equal(t, domain.RuleProcessedLessThanSold, findings[3].Rule)
}

func TestDefault_RulesEmitOnlyKnownCodes(t *testing.T) {
	set := Default()
	require.Len(t, set, 4)
	assert.IsType(t, NegativeStock{}, set[0])
	assert.IsType(t, SupplyMismatch{}, set[1])
	assert.IsType(t, DispatchOverage{}, set[2])
	assert.IsType(t, BaselineOutlier{}, set[3])

	snap := &extract.Snapshot{
		Tenant:     domain.Tenant{ID: "t1", BagWeightKg: 50},
		Stock:      []extract.StockLevel{{Location: "a", Item: "cherry", Quantity: -100}},
		Supply:     extract.SupplyTotals{ProcessedKg: 900, DispatchedKg: 400, SoldKg: 1200},
		Dispatches: []extract.DispatchRecord{{ID: "9", Bags: 10, KgsReceived: kg(520)}},
		Window:     extract.Windows(time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)),
	}
	for _, r := range set {
		for _, f := range r.evaluate(snap) {
			assert.True(t, domain.KnownRule(f.Rule), "rule %T emitted %q", r, f.Rule)
		}
	}
}
