package storage

import (
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Dialect names a supported SQL engine.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

var (
	ErrUnknownDialect = errors.New("unknown sql dialect")
	// ErrInvalidQuery marks a statement that could not be rendered. It is a
	// programming error and never retried.
	ErrInvalidQuery = errors.New("invalid query")
)

func ParseDialect(s string) (Dialect, error) {
	switch Dialect(s) {
	case Postgres, MySQL:
		return Dialect(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDialect, s)
	}
}

func (d Dialect) String() string {
	return string(d)
}

// Placeholder returns the bind-parameter format of the engine.
func (d Dialect) Placeholder() sq.PlaceholderFormat {
	if d == Postgres {
		return sq.Dollar
	}

	return sq.Question
}

// SupportsReturning reports whether INSERT ... RETURNING is available.
func (d Dialect) SupportsReturning() bool {
	return d == Postgres
}

// Render turns a builder written with '?' placeholders into engine SQL.
func (d Dialect) Render(q sq.Sqlizer) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("%w: nil statement", ErrInvalidQuery)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	sql, err = d.Placeholder().ReplacePlaceholders(sql)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	return sql, args, nil
}
