package query

import (
	"context"
	"database/sql"
	"strings"
)

// Querier is the subset of database operations the executor needs.
// Both *sql.DB (a pooled connection's handle) and *sql.Tx satisfy it,
// so statements run identically inside and outside a transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Params maps parameter names (without the @ prefix) to values.
// Values are sanitized before binding: nil and empty strings bind as
// SQL NULL.
type Params map[string]any

// TypeHint declares the SQL type of one parameter. Explicit hints take
// precedence over value-based typing. MaxLength bounds string values
// for character types; longer strings are truncated with a warning.
// MaxLength <= 0 means unbounded.
type TypeHint struct {
	SQLType   string
	MaxLength int
}

// Hints maps parameter names to their type hints. Parameters without a
// hint are bound using the driver's default typing for the Go value.
type Hints map[string]TypeHint

// Row is the canonical row shape: column name to value. Character
// columns are decoded to string regardless of how the driver returns
// them.
type Row map[string]any

// ResultSet is the normalized outcome of a statement.
type ResultSet struct {
	Rows         []Row
	RowsAffected int64
}

// ColumnType describes one column as reported by
// INFORMATION_SCHEMA.COLUMNS. MaxLength is -1 for max-length types
// (varchar(max) and friends) and 0 for non-character types.
type ColumnType struct {
	DataType  string
	MaxLength int
}

// Hint converts the column description into a parameter type hint.
func (c ColumnType) Hint() TypeHint {
	return TypeHint{SQLType: c.DataType, MaxLength: c.MaxLength}
}

// characterTypes are the SQL Server types whose values must leave this
// layer as string, and whose parameters are length-bounded.
var characterTypes = map[string]bool{
	"char":     true,
	"varchar":  true,
	"text":     true,
	"nchar":    true,
	"nvarchar": true,
	"ntext":    true,
	"xml":      true,
}

func isCharacterType(sqlType string) bool {
	return characterTypes[strings.ToLower(sqlType)]
}
