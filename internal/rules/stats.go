package rules

import (
	"math"

	"github.com/xela07ax/estate-integrity/internal/domain"
)

// Mean — среднее арифметическое; для пустой выборки 0
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// PopulationStdDev — стандартное отклонение генеральной совокупности (делим на n, а не на n-1)
func PopulationStdDev(xs []float64, mean float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)))
}

// ZScore округляется до 4 знаков, чтобы шум плавающей точки не менял уровень на границах
func ZScore(current, mean, stddev float64) float64 {
	z := (current - mean) / stddev
	return math.Round(z*1e4) / 1e4
}

// SeverityForZ переводит |z| в уровень: <2 low, [2,3) medium, [3,4) high, >=4 critical
func SeverityForZ(z float64) domain.Severity {
	abs := math.Abs(z)
	switch {
	case abs >= 4:
		return domain.SeverityCritical
	case abs >= 3:
		return domain.SeverityHigh
	case abs >= 2:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}
