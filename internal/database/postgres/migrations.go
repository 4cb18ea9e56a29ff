package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockID serializes migrations when several instances start at once.
const migrationLockID = 7342190

var errNoSchema = errors.New("no migrations applied")

type migration struct {
	version string // file name, which also orders the migrations
	body    string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		body, err := migrationsFS.ReadFile(path.Join("migrations", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, migration{version: e.Name(), body: string(body)})
	}
	slices.SortFunc(out, func(a, b migration) int { return strings.Compare(a.version, b.version) })
	return out, nil
}

// Migrate applies pending forward-only migrations, each in its own transaction.
func (p *Pool) Migrate(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	if _, err := p.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		ok, err := p.applyMigration(ctx, m)
		if err != nil {
			return err
		}
		if ok {
			applied++
			log.Info().Str("migration", m.version).Msg("Applied migration")
		}
	}
	log.Debug().Int("applied", applied).Int("total", len(migrations)).Msg("Schema up to date")
	return nil
}

// applyMigration runs m unless it is already recorded. The advisory lock makes the
// check-then-apply safe against a second instance migrating concurrently.
func (p *Pool) applyMigration(ctx context.Context, m migration) (bool, error) {
	tx, err := p.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction for %s: %w", m.version, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
		return false, fmt.Errorf("lock migrations: %w", err)
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.version,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check migration %s: %w", m.version, err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, m.body); err != nil {
		return false, fmt.Errorf("execute migration %s: %w", m.version, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version); err != nil {
		return false, fmt.Errorf("record migration %s: %w", m.version, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", m.version, err)
	}
	return true, nil
}

// SchemaVersion returns the latest applied migration. It doubles as the readiness check
// behind the health endpoint: it fails when the database is unreachable or unmigrated.
func (p *Pool) SchemaVersion(ctx context.Context) (string, error) {
	var version sql.NullString
	if err := p.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return "", fmt.Errorf("query schema version: %w", err)
	}
	if !version.Valid {
		return "", errNoSchema
	}
	return version.String, nil
}
