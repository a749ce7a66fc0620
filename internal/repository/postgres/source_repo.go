package postgres

/*
Файл source_repo.go — read-only запросы к операционным таблицам хозяйств.
Каждый запрос ограничен tenant_id и полуоткрытым окном [from, to).
Отсутствие таблицы/колонки превращается в extract.ErrNotProvisioned (см. classify).
*/

import (
	"context"
	"time"

	"github.com/xela07ax/estate-integrity/internal/extract"
)

func (r *IntegrityRepo) CurrentStock(ctx context.Context, tenantID string) ([]extract.StockLevel, error) {
	query := `
		SELECT location, item, quantity, COALESCE(unit, '')
		FROM current_stock
		WHERE tenant_id = $1
		ORDER BY location, item`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, classify(extract.SourceStock, err)
	}
	defer rows.Close()

	var out []extract.StockLevel
	for rows.Next() {
		var s extract.StockLevel
		if err := rows.Scan(&s.Location, &s.Item, &s.Quantity, &s.Unit); err != nil {
			return nil, classify(extract.SourceStock, err)
		}
		out = append(out, s)
	}
	return out, classify(extract.SourceStock, rows.Err())
}

// ProcessedOutput — сухой выход (пергамент + сухая вишня) за окно, кг
func (r *IntegrityRepo) ProcessedOutput(ctx context.Context, tenantID string, from, to time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(COALESCE(dry_parchment_kg, 0) + COALESCE(dry_cherry_kg, 0)), 0)::float8
		FROM processing_records
		WHERE tenant_id = $1 AND processed_on >= $2::date AND processed_on < $3::date`

	var kg float64
	if err := r.pool.QueryRow(ctx, query, tenantID, from, to).Scan(&kg); err != nil {
		return 0, classify(extract.SourceProcessing, err)
	}
	return kg, nil
}

func (r *IntegrityRepo) DispatchRecords(ctx context.Context, tenantID string, from, to time.Time) ([]extract.DispatchRecord, error) {
	query := `
		SELECT id::text, dispatched_on, COALESCE(bags_dispatched, 0)::float8,
		       kgs_dispatched::float8, kgs_received::float8
		FROM dispatch_records
		WHERE tenant_id = $1 AND dispatched_on >= $2::date AND dispatched_on < $3::date
		ORDER BY dispatched_on, id`

	rows, err := r.pool.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, classify(extract.SourceDispatch, err)
	}
	defer rows.Close()

	var out []extract.DispatchRecord
	for rows.Next() {
		var d extract.DispatchRecord
		if err := rows.Scan(&d.ID, &d.DispatchedOn, &d.Bags, &d.KgsDispatched, &d.KgsReceived); err != nil {
			return nil, classify(extract.SourceDispatch, err)
		}
		out = append(out, d)
	}
	return out, classify(extract.SourceDispatch, rows.Err())
}

func (r *IntegrityRepo) SalesRecords(ctx context.Context, tenantID string, from, to time.Time) ([]extract.SaleRecord, error) {
	query := `
		SELECT id::text, sold_on, COALESCE(bags_sold, 0)::float8,
		       weight_kgs::float8, kgs_received::float8
		FROM sales_records
		WHERE tenant_id = $1 AND sold_on >= $2::date AND sold_on < $3::date
		ORDER BY sold_on, id`

	rows, err := r.pool.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, classify(extract.SourceSales, err)
	}
	defer rows.Close()

	var out []extract.SaleRecord
	for rows.Next() {
		var s extract.SaleRecord
		if err := rows.Scan(&s.ID, &s.SoldOn, &s.Bags, &s.WeightKg, &s.KgsReceived); err != nil {
			return nil, classify(extract.SourceSales, err)
		}
		out = append(out, s)
	}
	return out, classify(extract.SourceSales, rows.Err())
}

// WeeklyProcessing — суммы по (локация, тип кофе, понедельник ISO-недели)
func (r *IntegrityRepo) WeeklyProcessing(ctx context.Context, tenantID string, from, to time.Time) ([]extract.WeeklyProcessing, error) {
	query := `
		SELECT location,
		       coffee_type,
		       date_trunc('week', processed_on::timestamp) AS week_start,
		       COALESCE(SUM(ripe_kg), 0)::float8,
		       COALESCE(SUM(green_kg), 0)::float8,
		       COALESCE(SUM(float_kg), 0)::float8,
		       COALESCE(SUM(dry_parchment_kg), 0)::float8
		FROM processing_records
		WHERE tenant_id = $1 AND processed_on >= $2::date AND processed_on < $3::date
		GROUP BY location, coffee_type, week_start
		ORDER BY location, coffee_type, week_start`

	rows, err := r.pool.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, classify(extract.SourceWeekly, err)
	}
	defer rows.Close()

	var out []extract.WeeklyProcessing
	for rows.Next() {
		var w extract.WeeklyProcessing
		if err := rows.Scan(&w.Location, &w.CoffeeType, &w.WeekStart, &w.RipeKg, &w.GreenKg, &w.FloatKg, &w.DryParchmentKg); err != nil {
			return nil, classify(extract.SourceWeekly, err)
		}
		w.WeekStart = w.WeekStart.UTC()
		out = append(out, w)
	}
	return out, classify(extract.SourceWeekly, rows.Err())
}
