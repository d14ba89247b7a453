package query

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ordersync/dbcore/pkg/cache"
)

const defaultMetadataTTL = 10 * time.Minute

// Executor runs parameterized statements against any Querier and
// normalizes the results. It is safe for concurrent use; the serial
// use of any single connection is the caller's concern.
type Executor struct {
	log         *slog.Logger
	metadata    *cache.Cache[map[string]ColumnType]
	metadataTTL time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger for truncation warnings.
func WithLogger(log *slog.Logger) Option {
	return func(e *Executor) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetadataTTL sets how long cached column metadata stays valid.
func WithMetadataTTL(ttl time.Duration) Option {
	return func(e *Executor) {
		if ttl > 0 {
			e.metadataTTL = ttl
		}
	}
}

// NewExecutor creates an Executor with a metadata cache.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		metadataTTL: defaultMetadataTTL,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.metadata = cache.New[map[string]ColumnType]()
	return e
}

// Close releases the metadata cache's background resources.
func (e *Executor) Close() {
	e.metadata.Close()
}

// InvalidateMetadata drops the cached column types for table, forcing
// a refetch on next use. Call after schema changes.
func (e *Executor) InvalidateMetadata(table string) {
	e.metadata.Delete(strings.ToLower(strings.TrimSpace(table)))
}

// Query runs a statement that returns rows. Parameters are bound by
// name after sanitization and hint typing; every row is normalized to
// the canonical map shape.
func (e *Executor) Query(ctx context.Context, q Querier, stmt string, params Params, hints Hints) (*ResultSet, error) {
	if err := checkStatement(q, stmt); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, stmt, bindParams(params, hints, e.log)...)
	if err != nil {
		return nil, newError(stmt, params, err)
	}
	defer rows.Close() //nolint:errcheck

	result, err := collectRows(rows)
	if err != nil {
		return nil, newError(stmt, params, err)
	}
	return result, nil
}

// Exec runs a statement without a result set and reports the number of
// affected rows.
func (e *Executor) Exec(ctx context.Context, q Querier, stmt string, params Params, hints Hints) (*ResultSet, error) {
	if err := checkStatement(q, stmt); err != nil {
		return nil, err
	}

	res, err := q.ExecContext(ctx, stmt, bindParams(params, hints, e.log)...)
	if err != nil {
		return nil, newError(stmt, params, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		// Not all statements report affected rows. Treat as zero
		// rather than failing a statement that already succeeded.
		affected = 0
	}
	return &ResultSet{RowsAffected: affected}, nil
}

func checkStatement(q Querier, stmt string) error {
	if q == nil {
		return ErrNilQuerier
	}
	if strings.TrimSpace(stmt) == "" {
		return ErrEmptyStatement
	}
	return nil
}

// collectRows materializes driver rows into the canonical shape. All
// driver-specific row handling is confined here.
func collectRows(rows *sql.Rows) (*ResultSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	textual := make([]bool, len(columns))
	for i, ct := range colTypes {
		textual[i] = isCharacterType(ct.DatabaseTypeName())
	}

	result := &ResultSet{Rows: []Row{}}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(columns))
		for i, name := range columns {
			row[name] = normalizeValue(values[i], textual[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result.RowsAffected = int64(len(result.Rows))
	return result, nil
}

// normalizeValue decodes character data delivered as raw bytes. Some
// driver versions hand character columns back as []byte; the rest of
// the system only ever sees string.
func normalizeValue(v any, textual bool) any {
	if b, ok := v.([]byte); ok && textual {
		return string(b)
	}
	return v
}
