package database

import (
	"database/sql"
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint
// failure raised by the store.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsFTSQueryError reports whether err came from the FTS5 query parser or engine
// rejecting matchExpr. Generic SQL errors do not count: "no such column" only
// matches when the column named is a filter written inside matchExpr.
func IsFTSQueryError(err error, matchExpr string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"fts5", "unterminated string", "malformed match", "unknown special query"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	const noSuchColumn = "no such column: "
	if i := strings.Index(msg, noSuchColumn); i >= 0 {
		column := strings.TrimSpace(msg[i+len(noSuchColumn):])
		if j := strings.IndexAny(column, " \t\n"); j >= 0 {
			column = column[:j]
		}
		return column != "" && strings.Contains(strings.ToLower(matchExpr), column+":")
	}
	return false
}
