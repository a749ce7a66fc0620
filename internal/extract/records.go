package extract

import "time"

// StockLevel — строка текущего остатка по (локация, товар)
type StockLevel struct {
	Location string
	Item     string
	Quantity float64
	Unit     string
}

// DispatchRecord — отгрузка. Веса nullable: в базе их может не быть.
type DispatchRecord struct {
	ID            string
	DispatchedOn  time.Time
	Bags          float64
	KgsDispatched *float64
	KgsReceived   *float64
}

// SaleRecord — продажа. Цепочка фолбэков: received -> weight -> bags * вес мешка.
type SaleRecord struct {
	ID          string
	SoldOn      time.Time
	Bags        float64
	WeightKg    *float64
	KgsReceived *float64
}

// WeeklyProcessing — агрегат переработки за ISO-неделю по (локация, тип кофе)
type WeeklyProcessing struct {
	Location       string
	CoffeeType     string
	WeekStart      time.Time // Понедельник 00:00 UTC
	RipeKg         float64
	GreenKg        float64
	FloatKg        float64
	DryParchmentKg float64
}

// SupplyTotals — массы за 30 дней для сверки "продано vs произведено"
type SupplyTotals struct {
	ProcessedKg  float64
	DispatchedKg float64
	SoldKg       float64
}

// DispatchKg — масса отгрузки: принятый вес, иначе отгруженный, иначе оценка по мешкам
func DispatchKg(r DispatchRecord, unitWeightKg float64) float64 {
	switch {
	case r.KgsReceived != nil && *r.KgsReceived > 0:
		return *r.KgsReceived
	case r.KgsDispatched != nil && *r.KgsDispatched > 0:
		return *r.KgsDispatched
	default:
		return r.Bags * unitWeightKg
	}
}

// SaleKg — масса продажи по той же цепочке фолбэков
func SaleKg(r SaleRecord, unitWeightKg float64) float64 {
	switch {
	case r.KgsReceived != nil && *r.KgsReceived > 0:
		return *r.KgsReceived
	case r.WeightKg != nil && *r.WeightKg > 0:
		return *r.WeightKg
	default:
		return r.Bags * unitWeightKg
	}
}

func TotalDispatchedKg(rows []DispatchRecord, unitWeightKg float64) float64 {
	var total float64
	for _, r := range rows {
		total += DispatchKg(r, unitWeightKg)
	}
	return total
}

func TotalSoldKg(rows []SaleRecord, unitWeightKg float64) float64 {
	var total float64
	for _, r := range rows {
		total += SaleKg(r, unitWeightKg)
	}
	return total
}
