package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Flavor is the SQL dialect every builder in this module produces.
var Flavor = sqlbuilder.SQLite

func Excluded(column string) string {
	return fmt.Sprintf("excluded.%s", column)
}

func NewInsertBuilder() *sqlbuilder.InsertBuilder {
	return Flavor.NewInsertBuilder()
}

func NewUpdateBuilder() *sqlbuilder.UpdateBuilder {
	return Flavor.NewUpdateBuilder()
}

func NewDeleteBuilder() *sqlbuilder.DeleteBuilder {
	return Flavor.NewDeleteBuilder()
}

func NewSelectBuilder() *sqlbuilder.SelectBuilder {
	return Flavor.NewSelectBuilder()
}

// OnConflictDoUpdate renders an upsert suffix, e.g.
// ON CONFLICT (a, b) DO UPDATE SET c = excluded.c
func OnConflictDoUpdate(conflictColumns []string, updateColumns ...string) string {
	sets := make([]string, 0, len(updateColumns))
	for _, col := range updateColumns {
		sets = append(sets, fmt.Sprintf("%s = %s", col, Excluded(col)))
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(conflictColumns, ", "), strings.Join(sets, ", "))
}

// OnConflictDoNothing renders an insert-or-skip suffix.
func OnConflictDoNothing() string {
	return " ON CONFLICT DO NOTHING"
}

// LikePattern escapes LIKE wildcards in s and wraps it for a contains match.
// Use with ESCAPE '\'.
func LikePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}
