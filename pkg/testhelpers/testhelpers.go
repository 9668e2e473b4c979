// Package testhelpers builds migrated, file-backed workspace databases for tests.
package testhelpers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Ramsey-B/thistle/db"
	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// DatabaseConfig returns a config for a fresh database file under t.TempDir().
func DatabaseConfig(t *testing.T) database.Config {
	t.Helper()
	return database.Config{Path: filepath.Join(t.TempDir(), "workspace.db")}
}

// Migrate applies the embedded migrations to cfg.Path.
func Migrate(t *testing.T, cfg database.Config) {
	t.Helper()
	svc := database.NewMigrationService(zap.NewNop(), &database.MigrationConfig{
		Source: db.SQLite,
		Dir:    db.SQLiteDir,
	})
	require.NoError(t, svc.Migrate(cfg))
}

// OpenDB migrates a fresh database and opens it. The handle is closed when the
// test ends.
func OpenDB(t *testing.T) database.DB {
	t.Helper()
	cfg := DatabaseConfig(t)
	Migrate(t, cfg)

	conn, err := database.Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}
