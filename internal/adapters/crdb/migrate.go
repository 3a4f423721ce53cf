package crdb

import (
	"context"
	"embed"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/event-ticketing/internal/domain"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations returns the embedded migrations ordered by version. Files are
// named NNNN_name.sql.
func Migrations() ([]Migration, error) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".sql")
		prefix, name, ok := strings.Cut(base, "_")
		if !ok {
			return nil, errors.Newf("migration %s: missing version prefix", e.Name())
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, errors.Wrapf(err, "migration %s: bad version", e.Name())
		}
		body, err := migrationFiles.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "read migration %s", e.Name())
		}
		out = append(out, Migration{Version: version, Name: name, SQL: strings.TrimSpace(string(body))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	for i := 1; i < len(out); i++ {
		if out[i].Version == out[i-1].Version {
			return nil, errors.Newf("duplicate migration version %d", out[i].Version)
		}
	}
	return out, nil
}

// Migrate applies pending migrations in version order and records each in
// schema_migrations. A recorded version this binary does not know, or one
// recorded under a different name, fails with domain.ErrSchemaMismatch;
// the store must not be used in that case.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrations, err := Migrations()
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT8 PRIMARY KEY,
			name STRING NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return domain.Storage(err, "ensure schema_migrations")
	}

	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return err
	}

	known := make(map[int]string, len(migrations))
	for _, m := range migrations {
		known[m.Version] = m.Name
	}
	for version, name := range applied {
		want, ok := known[version]
		if !ok {
			return errors.Mark(errors.Newf("database has migration %d (%s) unknown to this build", version, name), domain.ErrSchemaMismatch)
		}
		if want != name {
			return errors.Mark(errors.Newf("migration %d is %q in the database but %q in this build", version, name, want), domain.ErrSchemaMismatch)
		}
	}

	for _, m := range migrations {
		if _, ok := applied[m.Version]; ok {
			continue
		}
		if m.SQL != "" {
			if _, err := pool.Exec(ctx, m.SQL); err != nil {
				return domain.Storage(err, "apply migration "+m.Name)
			}
		}
		if _, err := pool.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
			return domain.Storage(err, "record migration "+m.Name)
		}
	}
	return nil
}

func appliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[int]string, error) {
	rows, err := pool.Query(ctx, `SELECT version, name FROM schema_migrations`)
	if err != nil {
		return nil, domain.Storage(err, "read schema_migrations")
	}
	defer rows.Close()

	applied := map[int]string{}
	for rows.Next() {
		var (
			version int
			name    string
		)
		if err := rows.Scan(&version, &name); err != nil {
			return nil, domain.Storage(err, "scan schema_migrations")
		}
		applied[version] = name
	}
	return applied, domain.Storage(rows.Err(), "read schema_migrations")
}
