package rules

import (
	"math"
	"strconv"
)

// formatQty печатает массу с точностью до 0.01 без хвостовых нулей: 12, 12.5
func formatQty(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// formatRatio печатает долю с 4 знаками: 0.1435
func formatRatio(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
