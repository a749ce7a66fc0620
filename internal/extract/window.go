package extract

import "time"

const (
	SupplyWindow   = 30 * 24 * time.Hour
	BaselineWindow = 84 * 24 * time.Hour
	week           = 7 * 24 * time.Hour
)

// Window — временные окна одного прогона. Все границы полуоткрытые [from, to).
type Window struct {
	SupplyFrom   time.Time // Полночь UTC, 30 календарных дней до SupplyTo
	SupplyTo     time.Time // Полночь UTC следующего дня: сегодняшние записи входят в окно
	WeekEnd      time.Time // Понедельник текущей (незавершенной) недели
	CurrentWeek  time.Time // Начало последней завершенной недели — "текущая" выборка
	BaselineFrom time.Time // Начало истории (WeekEnd - 84 дня)
}

// Windows считает окна относительно now.
// Незавершенная неделя, в которую попадает now, в базовые линии не входит.
func Windows(now time.Time) Window {
	now = now.UTC()
	weekEnd := WeekStart(now)
	// Источники хранят даты, сравнение идет по ::date
	supplyTo := day(now).AddDate(0, 0, 1)
	return Window{
		SupplyFrom:   supplyTo.Add(-SupplyWindow),
		SupplyTo:     supplyTo,
		WeekEnd:      weekEnd,
		CurrentWeek:  weekEnd.Add(-week),
		BaselineFrom: weekEnd.Add(-BaselineWindow),
	}
}

// WeekStart возвращает понедельник 00:00 UTC ISO-недели, содержащей t
func WeekStart(t time.Time) time.Time {
	d := day(t)
	offset := (int(d.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return d.AddDate(0, 0, -offset)
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
