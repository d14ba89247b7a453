// Package query executes parameterized SQL statements against a
// borrowed connection or an open transaction and normalizes results.
//
// Statements bind parameters by name. Parameter values are sanitized
// before binding (empty strings and nils become SQL NULL) and typed
// from explicit per-column hints rather than value heuristics, because
// guessing the wire type of a NULL or ambiguous value is a known
// source of driver-level type mismatches. Column metadata for hint
// construction can be fetched once per table via TableTypes and is
// cached with a TTL.
//
// Every result row is materialized into a canonical
// map[columnName]value shape, with character data decoded from []byte
// to string, so callers never see driver-specific row encodings.
//
// Usage:
//
//	exec := query.NewExecutor()
//	defer exec.Close()
//
//	rs, err := exec.Query(ctx, conn.DB(),
//		"SELECT id, status FROM orders WHERE site = @site",
//		query.Params{"site": "MAD-01"}, nil)
package query
