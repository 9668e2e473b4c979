// Package db embeds the workspace schema migrations.
package db

import "embed"

// SQLite holds the golang-migrate source files under sqlite/.
//
//go:embed sqlite/*.sql
var SQLite embed.FS

// SQLiteDir is the directory inside SQLite that holds the migrations.
const SQLiteDir = "sqlite"
