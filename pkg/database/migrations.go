package database

import (
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Migration is one numbered SQL file, e.g. 001_approval_schema.sql
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrator applies numbered SQL files in version order, each in its own
// transaction, and records them in schema_migrations
type Migrator struct {
	db     *DB
	logger *zap.Logger
}

// NewMigrator creates a migrator for db
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	return &Migrator{db: db, logger: logger}
}

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)
`

// Pending returns the migrations in fsys that have not been applied yet
func (m *Migrator) Pending(fsys fs.FS) ([]Migration, error) {
	if _, err := m.db.Exec(createMigrationsTable); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}

	all, err := loadMigrations(fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	pending := make([]Migration, 0, len(all))
	for _, mig := range all {
		if !applied[mig.Version] {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// RunMigrations applies every pending migration found in fsys. Use
// os.DirFS for an on-disk directory or an embed.FS for bundled files.
func (m *Migrator) RunMigrations(fsys fs.FS) error {
	pending, err := m.Pending(fsys)
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		m.logger.Info("Database schema is up to date")
		return nil
	}

	for _, mig := range pending {
		m.logger.Info("Applying migration",
			zap.Int("version", mig.Version),
			zap.String("name", mig.Name))

		if err := m.apply(mig); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", mig.Version, err)
		}
	}

	m.logger.Info("Database migrations completed", zap.Int("applied", len(pending)))
	return nil
}

func (m *Migrator) appliedVersions() (map[int]bool, error) {
	rows, err := m.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *Migrator) apply(mig Migration) error {
	return m.db.WithTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(mig.SQL); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, mig.Version, mig.Name); err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		return nil
	})
}

// loadMigrations reads every *.sql file in fsys, sorted by version
func loadMigrations(fsys fs.FS) ([]Migration, error) {
	var migrations []Migration
	seen := make(map[int]string)

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".sql") {
			return nil
		}

		filename := path.Base(p)
		version, name, err := parseMigrationName(filename)
		if err != nil {
			return err
		}
		if prev, dup := seen[version]; dup {
			return fmt.Errorf("duplicate migration version %d: %s and %s", version, prev, filename)
		}
		seen[version] = filename

		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", p, err)
		}

		migrations = append(migrations, Migration{Version: version, Name: name, SQL: string(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseMigrationName splits "001_approval_schema.sql" into 1 and "approval_schema"
func parseMigrationName(filename string) (int, string, error) {
	base := strings.TrimSuffix(filename, ".sql")
	prefix, name, _ := strings.Cut(base, "_")

	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, "", fmt.Errorf("invalid migration filename format: %s", filename)
	}
	return version, name, nil
}
