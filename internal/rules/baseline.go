package rules

import (
	"fmt"
	"sort"
	"time"

	"github.com/xela07ax/estate-integrity/internal/domain"
	"github.com/xela07ax/estate-integrity/internal/extract"
)

const (
	// MinSampleWeeks — минимум исторических недель, при котором базовой линии можно верить
	MinSampleWeeks = 4
	// ZThreshold — порог |z| для сработки
	ZThreshold = 2.0
	// MinVolumeKg — недели с меньшей массой дают слишком шумные доли
	MinVolumeKg = 50.0
)

// BaselineOutlier — статистические выбросы выхода (yield) и доли флотации (float rate)
// относительно собственной истории пары (локация, тип кофе).
type BaselineOutlier struct{}

func (BaselineOutlier) evaluate(s *extract.Snapshot) []domain.Finding {
	return CheckBaselines(s.Tenant.ID, s.Weekly, s.Window)
}

// WeekSample — одна неделя переработки по паре
type WeekSample struct {
	WeekStart      time.Time
	RipeKg         float64
	GreenKg        float64
	FloatKg        float64
	DryParchmentKg float64
}

// Yield — сухой пергамент / спелая вишня, 0 если вишни нет
func (w WeekSample) Yield() float64 {
	if w.RipeKg == 0 {
		return 0
	}
	return w.DryParchmentKg / w.RipeKg
}

// FloatRate — флотация / (зеленое + флотация), 0 если знаменатель 0
func (w WeekSample) FloatRate() float64 {
	den := w.GreenKg + w.FloatKg
	if den == 0 {
		return 0
	}
	return w.FloatKg / den
}

// Baseline — среднее и стандартное отклонение доли по историческим неделям
type Baseline struct {
	Mean        float64
	StdDev      float64
	SampleWeeks int
}

func NewBaseline(values []float64) Baseline {
	m := Mean(values)
	return Baseline{Mean: m, StdDev: PopulationStdDev(values, m), SampleWeeks: len(values)}
}

type pairKey struct {
	location   string
	coffeeType string
}

type pairWeeks struct {
	current *WeekSample
	history map[time.Time]*WeekSample
}

// CheckBaselines группирует недельные агрегаты по паре и проверяет текущую неделю
// против исторических. Текущая неделя в базовую линию не входит.
func CheckBaselines(tenantID string, rows []extract.WeeklyProcessing, w extract.Window) []domain.Finding {
	pairs := make(map[pairKey]*pairWeeks)

	for _, row := range rows {
		week := extract.WeekStart(row.WeekStart)
		if week.Before(w.BaselineFrom) || !week.Before(w.WeekEnd) {
			continue
		}

		key := pairKey{location: row.Location, coffeeType: row.CoffeeType}
		p, ok := pairs[key]
		if !ok {
			p = &pairWeeks{history: make(map[time.Time]*WeekSample)}
			pairs[key] = p
		}

		var bucket *WeekSample
		if week.Equal(w.CurrentWeek) {
			if p.current == nil {
				p.current = &WeekSample{WeekStart: week}
			}
			bucket = p.current
		} else {
			bucket = p.history[week]
			if bucket == nil {
				bucket = &WeekSample{WeekStart: week}
				p.history[week] = bucket
			}
		}

		bucket.RipeKg += row.RipeKg
		bucket.GreenKg += row.GreenKg
		bucket.FloatKg += row.FloatKg
		bucket.DryParchmentKg += row.DryParchmentKg
	}

	keys := make([]pairKey, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].location != keys[j].location {
			return keys[i].location < keys[j].location
		}
		return keys[i].coffeeType < keys[j].coffeeType
	})

	var out []domain.Finding
	for _, k := range keys {
		p := pairs[k]
		if p.current == nil {
			continue
		}
		history := make([]WeekSample, 0, len(p.history))
		for _, ws := range p.history {
			history = append(history, *ws)
		}
		out = append(out, EvaluatePair(tenantID, k.location, k.coffeeType, *p.current, history)...)
	}
	return out
}

// EvaluatePair — проверка одной пары: падение выхода и всплеск флотации.
// Меньше MinSampleWeeks недель истории — пару пропускаем целиком.
func EvaluatePair(tenantID, location, coffeeType string, current WeekSample, history []WeekSample) []domain.Finding {
	if len(history) < MinSampleWeeks {
		return nil
	}

	yields := make([]float64, 0, len(history))
	floats := make([]float64, 0, len(history))
	for _, h := range history {
		yields = append(yields, h.Yield())
		floats = append(floats, h.FloatRate())
	}

	entity := location + ":" + coffeeType
	var out []domain.Finding

	// 1. Падение выхода
	if current.RipeKg >= MinVolumeKg {
		b := NewBaseline(yields)
		if b.StdDev > 0 {
			z := ZScore(current.Yield(), b.Mean, b.StdDev)
			if z <= -ZThreshold {
				out = append(out, outlierFinding(tenantID, domain.RuleYieldOutlier, entity, location, coffeeType,
					"Yield drop", "yield", current.Yield(), current.RipeKg, b, z, current.WeekStart))
			}
		}
	}

	// 2. Всплеск флотации (отбраковка)
	if current.GreenKg+current.FloatKg >= MinVolumeKg {
		b := NewBaseline(floats)
		if b.StdDev > 0 {
			z := ZScore(current.FloatRate(), b.Mean, b.StdDev)
			if z >= ZThreshold {
				out = append(out, outlierFinding(tenantID, domain.RuleFloatRateOutlier, entity, location, coffeeType,
					"Float rate spike", "float rate", current.FloatRate(), current.GreenKg+current.FloatKg, b, z, current.WeekStart))
			}
		}
	}

	return out
}

func outlierFinding(
	tenantID string,
	rule domain.RuleCode,
	entity, location, coffeeType, title, metric string,
	observed, volumeKg float64,
	b Baseline,
	z float64,
	week time.Time,
) domain.Finding {
	return domain.Finding{
		TenantID:  tenantID,
		Rule:      rule,
		EntityKey: entity,
		Severity:  SeverityForZ(z),
		Title:     fmt.Sprintf("%s: %s %s", title, location, coffeeType),
		Description: fmt.Sprintf("Week of %s: %s %s vs baseline %s ± %s over %d weeks (z = %.2f, volume %s kg).",
			week.Format("2006-01-02"), metric, formatRatio(observed), formatRatio(b.Mean), formatRatio(b.StdDev),
			b.SampleWeeks, z, formatQty(volumeKg)),
		Details: map[string]any{
			"location":     location,
			"coffeeType":   coffeeType,
			"weekStart":    week.Format("2006-01-02"),
			"observed":     observed,
			"baselineMean": b.Mean,
			"baselineStd":  b.StdDev,
			"zScore":       z,
			"sampleWeeks":  b.SampleWeeks,
			"volumeKg":     volumeKg,
		},
	}
}
