package database

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

type MigrationLogger struct {
	logger *zap.Logger
}

func (l MigrationLogger) Verbose() bool {
	return true
}

func (l MigrationLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

type MigrationService struct {
	config *MigrationConfig
	logger *zap.Logger
}

type MigrationConfig struct {
	// Source holds the *.up.sql / *.down.sql files; Dir is the folder inside it.
	Source       fs.FS
	Dir          string
	Version      uint
	Force        int
	AutoRollback bool // If enabled, will attempt to rollback the database to the previous version if an error occurs
}

func NewMigrationService(logger *zap.Logger, config *MigrationConfig) *MigrationService {
	return &MigrationService{
		config: config,
		logger: logger,
	}
}

// Migrate applies migrations to the database at cfg.Path. It uses its own
// connection because the migrate driver closes the handle it is given.
func (ms *MigrationService) Migrate(cfg Config) error {
	db, err := sql.Open(DriverName, cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(ms.config.Source, ms.config.Dir)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to open migration source %s: %w", ms.config.Dir, err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		ms.logger.Error("Failed to create migrate instance", zap.Error(err))
		db.Close()
		return err
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			ms.logger.Warn("Failed to close migration source", zap.Error(srcErr))
		}
		if dbErr != nil {
			ms.logger.Warn("Failed to close migration database", zap.Error(dbErr))
		}
	}()

	m.Log = MigrationLogger{logger: ms.logger}

	return ms.runMigration(m)
}

func (ms *MigrationService) runMigration(m *migrate.Migrate) error {
	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			ms.logger.Error("Failed to force database version", zap.Int("version", ms.config.Force), zap.Error(err))
			return err
		}
	}

	version, _, versionErr := m.Version()
	if versionErr != nil && !errors.Is(versionErr, migrate.ErrNilVersion) {
		ms.logger.Error("Failed to get current migration version", zap.Error(versionErr))
	}

	startTime := time.Now()

	var migrationErr error
	if ms.config.Version != 0 {
		migrationErr = m.Migrate(ms.config.Version)
	} else {
		migrationErr = m.Up()
	}

	ms.logger.Info("Database migrations completed", zap.Duration("elapsed", time.Since(startTime)))

	return ms.handleMigrationError(m, migrationErr, version)
}

func (ms *MigrationService) handleMigrationError(m *migrate.Migrate, err error, previousVersion uint) error {
	if err == nil {
		ms.logger.Info("Successfully applied migrations")
		return nil
	}

	if errors.Is(err, migrate.ErrNoChange) {
		ms.logger.Info("No new migrations to apply")
		return nil
	}

	// Usually a rollback to a binary that no longer ships the recorded version.
	if strings.Contains(err.Error(), "no migration found for version") {
		latest, latestErr := getLatestVersion(ms.config.Source, ms.config.Dir)
		if latestErr != nil {
			ms.logger.Error("Failed to get latest migration version", zap.Error(latestErr))
			return err
		}
		ms.logger.Warn("No migration found for recorded version, forcing latest",
			zap.Uint("recorded", previousVersion), zap.Int("latest", latest))
		return m.Force(latest)
	}

	ms.logger.Error("Migration failed", zap.Error(err))

	version, dirty, versionErr := m.Version()
	if versionErr != nil && !errors.Is(versionErr, migrate.ErrNilVersion) {
		ms.logger.Error("Failed to get current migration version", zap.Error(versionErr))
		return err
	}

	if ms.config.AutoRollback && dirty {
		if previousVersion == 0 && version > 0 {
			previousVersion = version - 1
		}
		ms.logger.Warn("Database is dirty, reverting",
			zap.Uint("version", version), zap.Uint("previous", previousVersion))
		if forceErr := m.Force(int(previousVersion)); forceErr != nil {
			ms.logger.Error("Failed to force previous version", zap.Error(forceErr))
			return forceErr
		}
	}

	// still fail so the caller does not start against a half-migrated schema
	return err
}

func getLatestVersion(source fs.FS, dir string) (int, error) {
	entries, err := fs.ReadDir(source, dir)
	if err != nil {
		return 0, err
	}

	var versions []int
	re := regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := re.FindStringSubmatch(entry.Name())
		if len(matches) > 1 {
			version, err := strconv.Atoi(matches[1])
			if err != nil {
				return 0, err
			}
			versions = append(versions, version)
		}
	}

	if len(versions) == 0 {
		return 0, fmt.Errorf("no migration files found")
	}

	sort.Ints(versions)
	return versions[len(versions)-1], nil
}
