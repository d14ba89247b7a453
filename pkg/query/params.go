package query

import (
	"database/sql"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	mssql "github.com/microsoft/go-mssqldb"
)

// bindParams turns the parameter map into named driver arguments in
// deterministic (sorted) order. Each value is sanitized, bounded to
// the hinted column length, and wire-typed from its hint.
func bindParams(params Params, hints Hints, log *slog.Logger) []any {
	if len(params) == 0 {
		return nil
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]any, 0, len(names))
	for _, name := range names {
		value := sanitize(params[name])
		if hint, ok := hints[name]; ok {
			value = applyHint(name, value, hint, log)
		}
		args = append(args, sql.Named(name, value))
	}
	return args
}

// sanitize maps empty strings and nils to SQL NULL. The configuration
// layer feeding these statements stores "no value" as an empty string,
// and binding that as a zero-length varchar corrupts nullable columns.
func sanitize(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return v
	case *string:
		if v == nil || *v == "" {
			return nil
		}
		return *v
	default:
		return value
	}
}

// applyHint enforces the hinted column length and selects the wire
// type. Non-unicode character types are sent as varchar to avoid an
// implicit server-side conversion from the driver's nvarchar default.
func applyHint(name string, value any, hint TypeHint, log *slog.Logger) any {
	s, isString := value.(string)
	if !isString {
		return value
	}

	// CHARACTER_MAXIMUM_LENGTH counts characters, not bytes, so the
	// bound is measured and cut in runes to keep multibyte values valid.
	if isCharacterType(hint.SQLType) && hint.MaxLength > 0 && utf8.RuneCountInString(s) > hint.MaxLength {
		log.Warn("truncating string parameter to declared column length",
			slog.String("param", name),
			slog.String("sql_type", hint.SQLType),
			slog.Int("max_length", hint.MaxLength),
			slog.Int("value_length", utf8.RuneCountInString(s)))
		s = string([]rune(s)[:hint.MaxLength])
	}

	switch strings.ToLower(hint.SQLType) {
	case "char", "varchar", "text":
		return mssql.VarChar(s)
	default:
		return s
	}
}
