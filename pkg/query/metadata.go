package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const columnTypesStatement = `SELECT COLUMN_NAME, DATA_TYPE, CHARACTER_MAXIMUM_LENGTH
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_NAME = @table`

// TableTypes returns the column types of table, keyed by column name.
// The result is fetched from INFORMATION_SCHEMA once per table and
// served from cache until its TTL elapses, so callers can resolve type
// hints on every statement without a round trip.
func (e *Executor) TableTypes(ctx context.Context, q Querier, table string) (map[string]ColumnType, error) {
	if q == nil {
		return nil, ErrNilQuerier
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, fmt.Errorf("%w: empty table name", ErrTableNotFound)
	}

	key := strings.ToLower(table)
	if types, ok := e.metadata.Get(key); ok {
		return types, nil
	}

	rows, err := q.QueryContext(ctx, columnTypesStatement, sql.Named("table", table))
	if err != nil {
		return nil, fmt.Errorf("query: fetch column types for %q: %w", table, err)
	}
	defer rows.Close() //nolint:errcheck

	types := make(map[string]ColumnType)
	for rows.Next() {
		var (
			name     string
			dataType string
			maxLen   sql.NullInt64
		)
		if err := rows.Scan(&name, &dataType, &maxLen); err != nil {
			return nil, fmt.Errorf("query: scan column types for %q: %w", table, err)
		}
		ct := ColumnType{DataType: strings.ToLower(dataType)}
		if maxLen.Valid {
			ct.MaxLength = int(maxLen.Int64)
		}
		types[name] = ct
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query: read column types for %q: %w", table, err)
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, table)
	}

	e.metadata.Set(key, types, e.metadataTTL)
	return types, nil
}

// HintsFor builds type hints for the given parameters from a table's
// column types, matching parameter names to column names. Parameters
// without a matching column are left unhinted.
func HintsFor(types map[string]ColumnType, params Params) Hints {
	hints := make(Hints, len(params))
	for name := range params {
		if ct, ok := types[name]; ok {
			hints[name] = ct.Hint()
		}
	}
	return hints
}
