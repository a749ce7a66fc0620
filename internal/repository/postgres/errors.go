package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xela07ax/estate-integrity/internal/extract"
)

// SQLSTATE, которые означают "у хозяйства нет такой таблицы/колонки"
const (
	codeUndefinedTable  = "42P01"
	codeUndefinedColumn = "42703"
)

// classify переводит отсутствие схемы в extract.ErrNotProvisioned,
// остальные ошибки просто оборачивает.
func classify(source string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUndefinedTable, codeUndefinedColumn:
			return fmt.Errorf("postgres: %s: %w: %w", source, extract.ErrNotProvisioned, err)
		}
	}
	return fmt.Errorf("postgres: query %s: %w", source, err)
}
