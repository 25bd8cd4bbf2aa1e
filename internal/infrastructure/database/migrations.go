package database

import (
	"cmp"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

// MigrationsFS holds the migration files. The migrations package sets it
// from an init function:
//
//	//go:embed *.sql
//	var migrationsFS embed.FS
//
//	func init() {
//	    database.MigrationsFS = migrationsFS
//	    database.MigrationsDir = "."
//	}
var MigrationsFS embed.FS

// MigrationsDir is the directory within MigrationsFS holding the files.
var MigrationsDir = "migrations"

// Migration is one schema change, read from a pair of files named
// YYYYMMDD_HHMMSS_name.up.sql and YYYYMMDD_HHMMSS_name.down.sql.
type Migration struct {
	Version string // YYYYMMDD_HHMMSS
	Name    string
	UpSQL   string
	DownSQL string // empty when the migration cannot be rolled back
}

// MigrationRecord is a row of schema_migrations.
type MigrationRecord struct {
	Version   string
	AppliedAt time.Time
}

// Bookkeeping statements. They go through the statement cache.
const (
	createMigrationsTableSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`
	selectMigrationsSQL = "SELECT version, applied_at FROM schema_migrations ORDER BY version"
	insertMigrationSQL  = "INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)"
	deleteMigrationSQL  = "DELETE FROM schema_migrations WHERE version = ?"
)

// Migrate applies every pending migration, oldest first, each in its own
// transaction. A failing migration is rolled back and stops the run; the
// ones before it stay committed, so calling Migrate again resumes there.
// ctx is checked between migrations, never during one.
func (e *Engine) Migrate(ctx context.Context) error {
	_, pending, err := e.migrationState()
	if err != nil {
		return err
	}

	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("migration interrupted before %s: %w", m.Version, err)
		}

		err := WithTransaction(e, func() error {
			if err := e.Execute(m.UpSQL, "migrate "+m.Name); err != nil {
				return err
			}
			return e.execStatement(insertMigrationSQL, m.Version, time.Now().UTC().Format(time.RFC3339))
		})
		if err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
		e.logger.Info("migration applied", "version", m.Version, "name", m.Name)
	}

	return nil
}

// MigrateDown rolls back the most recently applied migration. It is a no-op
// when nothing has been applied.
func (e *Engine) MigrateDown(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	applied, _, err := e.migrationState()
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return nil
	}

	latest := applied[len(applied)-1].Version
	all, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	i, found := slices.BinarySearchFunc(all, latest, func(m Migration, v string) int {
		return cmp.Compare(m.Version, v)
	})
	if !found {
		return fmt.Errorf("migration %s not found in filesystem", latest)
	}
	m := all[i]
	if m.DownSQL == "" {
		return fmt.Errorf("migration %s has no down SQL", latest)
	}

	err = WithTransaction(e, func() error {
		if err := e.Execute(m.DownSQL, "migrate down "+m.Name); err != nil {
			return err
		}
		return e.execStatement(deleteMigrationSQL, m.Version)
	})
	if err != nil {
		return fmt.Errorf("rolling back migration %s (%s): %w", m.Version, m.Name, err)
	}

	e.logger.Info("migration rolled back", "version", m.Version, "name", m.Name)
	return nil
}

// GetMigrationStatus returns the applied migrations and the pending ones,
// both in version order.
func (e *Engine) GetMigrationStatus(ctx context.Context) (applied []MigrationRecord, pending []Migration, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return e.migrationState()
}

// migrationState ensures schema_migrations exists and compares it against
// the migration files.
func (e *Engine) migrationState() ([]MigrationRecord, []Migration, error) {
	if err := e.Execute(createMigrationsTableSQL, "create schema_migrations"); err != nil {
		return nil, nil, fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err := e.appliedMigrations()
	if err != nil {
		return nil, nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	all, err := loadMigrations()
	if err != nil {
		return nil, nil, fmt.Errorf("loading migrations: %w", err)
	}

	done := make(map[string]struct{}, len(applied))
	for _, r := range applied {
		done[r.Version] = struct{}{}
	}
	var pending []Migration
	for _, m := range all {
		if _, ok := done[m.Version]; !ok {
			pending = append(pending, m)
		}
	}

	return applied, pending, nil
}

func (e *Engine) appliedMigrations() ([]MigrationRecord, error) {
	stmt, err := NewStatement(e, selectMigrationsSQL)
	if err != nil {
		return nil, err
	}
	defer stmt.Close() //nolint:errcheck // Returns a cached handle

	var records []MigrationRecord
	for {
		res, err := stmt.Step()
		if err != nil {
			return nil, err
		}
		if res == StepDone {
			return records, nil
		}

		row, err := stmt.Row()
		if err != nil {
			return nil, err
		}
		// applied_at is always written as RFC 3339 by Migrate.
		appliedAt, _ := time.Parse(time.RFC3339, row.Text(1)) //nolint:errcheck // Format is controlled
		records = append(records, MigrationRecord{Version: row.Text(0), AppliedAt: appliedAt})
	}
}

// execStatement runs a parameterised statement to completion.
func (e *Engine) execStatement(query string, args ...any) error {
	stmt, err := NewStatement(e, query)
	if err != nil {
		return err
	}
	defer stmt.Close() //nolint:errcheck // Returns a cached handle

	return stmt.Exec(args...)
}

// migrationFile is a parsed migration filename.
type migrationFile struct {
	version string
	name    string
	up      bool
}

// parseMigrationFilename splits YYYYMMDD_HHMMSS_name.{up,down}.sql into its
// parts. ok is false for anything else.
func parseMigrationFilename(filename string) (f migrationFile, ok bool) {
	base, found := strings.CutSuffix(filename, ".sql")
	if !found {
		return migrationFile{}, false
	}

	if b, isUp := strings.CutSuffix(base, ".up"); isUp {
		base, f.up = b, true
	} else if b, isDown := strings.CutSuffix(base, ".down"); isDown {
		base = b
	} else {
		return migrationFile{}, false
	}

	date, rest, found := strings.Cut(base, "_")
	if !found || date == "" {
		return migrationFile{}, false
	}
	clock, name, _ := strings.Cut(rest, "_")
	if clock == "" {
		return migrationFile{}, false
	}

	f.version = date + "_" + clock
	f.name = name
	if f.name == "" {
		f.name = f.version
	}
	return f, true
}

// loadMigrations returns the migrations in MigrationsFS.
func loadMigrations() ([]Migration, error) {
	var empty embed.FS
	if MigrationsFS == empty {
		return nil, nil
	}
	return readMigrations(MigrationsFS, MigrationsDir)
}

// readMigrations reads the migration files in dir, sorted by version. A
// down file without a matching up file is ignored.
func readMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, nil //nolint:nilerr // A missing directory means no migrations
	}

	byVersion := make(map[string]*Migration)
	downFiles := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		f, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}
		if !f.up {
			downFiles[f.version] = entry.Name()
			continue
		}

		b, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		byVersion[f.version] = &Migration{Version: f.version, Name: f.name, UpSQL: string(b)}
	}

	for version, name := range downFiles {
		m, ok := byVersion[version]
		if !ok {
			continue
		}
		b, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		m.DownSQL = string(b)
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b Migration) int {
		return cmp.Compare(a.Version, b.Version)
	})
	return migrations, nil
}
