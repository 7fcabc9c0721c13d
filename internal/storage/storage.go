// Package storage holds the SQLite-backed stores for sources, articles and summaries.
package storage

import (
	"errors"

	sq "github.com/Masterminds/squirrel"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// builder produces queries with '?' placeholders for go-sqlite3.
var builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)
