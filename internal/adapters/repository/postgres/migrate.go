package postgres

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/okian/huddle/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one embedded schema file named NNN_description.sql.
type Migration struct {
	Version  string
	Name     string
	SQL      string
	Checksum string
}

// Migrator applies embedded migrations and records them in schema_migrations.
type Migrator struct {
	db     *sqlx.DB
	fsys   fs.FS
	logger logger.Logger
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(db *sqlx.DB, l logger.Logger) *Migrator {
	if l == nil {
		l = logger.Nop()
	}
	return &Migrator{db: db, fsys: migrationFS, logger: l}
}

// Up applies every pending migration, each in its own transaction. A
// recorded migration whose checksum changed is reported as an error.
func (m *Migrator) Up(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			checksum   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("%w: create migrations table: %w", ErrMigration, err)
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return fmt.Errorf("%w: read applied migrations: %w", ErrMigration, err)
	}

	files, err := LoadMigrations(m.fsys)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	for _, mig := range files {
		if sum, ok := applied[mig.Version]; ok {
			if sum != mig.Checksum {
				return fmt.Errorf("%w: checksum mismatch for %s", ErrMigration, mig.Version)
			}
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			return fmt.Errorf("%w: apply %s: %w", ErrMigration, mig.Version, err)
		}
		m.logger.Info(ctx, "applied migration",
			logger.String("version", mig.Version),
			logger.String("name", mig.Name),
		)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Version  string `db:"version"`
		Checksum string `db:"checksum"`
	}
	if err := m.db.SelectContext(ctx, &rows, `SELECT version, checksum FROM schema_migrations`); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Version] = r.Checksum
	}
	return out, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, checksum) VALUES ($1, $2)`, mig.Version, mig.Checksum); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadMigrations reads NNN_name.sql files from the migrations directory of
// fsys, sorted by version. Files not following the naming scheme are skipped.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, name, ok := strings.Cut(strings.TrimSuffix(e.Name(), ".sql"), "_")
		if !ok || version == "" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join("migrations", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, Migration{
			Version:  version,
			Name:     name,
			SQL:      string(data),
			Checksum: checksum(data),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// EmbeddedMigrations returns the migrations compiled into the binary.
func EmbeddedMigrations() ([]Migration, error) {
	return LoadMigrations(migrationFS)
}

func checksum(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}
