package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrEmptyStatement is returned when the statement text is blank.
	ErrEmptyStatement = errors.New("query: empty statement")
	// ErrNilQuerier is returned when no connection or transaction is supplied.
	ErrNilQuerier = errors.New("query: nil querier")
	// ErrTableNotFound is returned by TableTypes when the table has no
	// columns in INFORMATION_SCHEMA, which means it does not exist in
	// the current database.
	ErrTableNotFound = errors.New("query: table not found")
)

const statementPreviewLen = 120

// Error carries the failed statement and the bound parameter names so
// an operator can diagnose type or schema mismatches from the error
// alone. Parameter values are deliberately omitted.
type Error struct {
	Statement  string
	ParamNames []string
	Err        error
}

func (e *Error) Error() string {
	stmt := strings.Join(strings.Fields(e.Statement), " ")
	if len(stmt) > statementPreviewLen {
		stmt = stmt[:statementPreviewLen] + "..."
	}
	if len(e.ParamNames) == 0 {
		return fmt.Sprintf("query: %v (statement: %s)", e.Err, stmt)
	}
	return fmt.Sprintf("query: %v (statement: %s; params: %s)",
		e.Err, stmt, strings.Join(e.ParamNames, ", "))
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(stmt string, params Params, err error) *Error {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Error{Statement: stmt, ParamNames: names, Err: err}
}
