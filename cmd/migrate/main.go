package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	loadEnvFunc = godotenv.Load
	openPool    = pgxpool.New
)

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

type migrator struct {
	pool       *pgxpool.Pool
	migrations []migration
}

func main() {
	loadEnvFunc()

	if len(os.Args) < 2 {
		log.Fatal("usage: go run ./cmd/migrate [up|down|version] [steps]")
	}

	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	pool, err := openPool(ctx, dsn)
	if err != nil {
		log.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()

	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		log.Fatalf("load migrations: %v", err)
	}

	m := &migrator{pool: pool, migrations: migrations}
	if err := m.ensureVersionTable(ctx); err != nil {
		log.Fatalf("ensure schema_migrations table: %v", err)
	}

	switch os.Args[1] {
	case "up":
		applied, err := m.up(ctx)
		if err != nil {
			log.Fatalf("apply migrations up: %v", err)
		}
		log.Printf("migrations up complete (%d applied)", applied)
	case "down":
		steps := 1
		if len(os.Args) > 2 {
			n, err := strconv.Atoi(os.Args[2])
			if err != nil || n <= 0 {
				log.Fatalf("invalid down steps: %q", os.Args[2])
			}
			steps = n
		}
		rolledBack, err := m.down(ctx, steps)
		if err != nil {
			log.Fatalf("apply migrations down: %v", err)
		}
		log.Printf("migrations down complete (%d rolled back)", rolledBack)
	case "version":
		version, name, err := m.version(ctx)
		if err != nil {
			log.Fatalf("read current version: %v", err)
		}
		if version == 0 {
			log.Println("no migrations applied")
			return
		}
		log.Printf("current version: %d (%s)", version, name)
	default:
		log.Fatalf("unknown command %q. usage: go run ./cmd/migrate [up|down|version] [steps]", os.Args[1])
	}
}

var migrationNameRE = regexp.MustCompile(`^migrations/([0-9]+)_([a-z0-9_]+)\.(up|down)\.sql$`)

func loadMigrations(fsys fs.FS) ([]migration, error) {
	paths, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.New("no migration files found")
	}

	index := make(map[int64]*migration)
	for _, p := range paths {
		matches := migrationNameRE.FindStringSubmatch(p)
		if matches == nil {
			return nil, fmt.Errorf("invalid migration filename: %s", p)
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse version in %s: %w", p, err)
		}

		sqlBytes, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", p, err)
		}
		sqlText := strings.TrimSpace(string(sqlBytes))
		if sqlText == "" {
			return nil, fmt.Errorf("empty migration file: %s", p)
		}

		m, ok := index[version]
		if !ok {
			m = &migration{Version: version, Name: matches[2]}
			index[version] = m
		} else if m.Name != matches[2] {
			return nil, fmt.Errorf("conflicting names for version %d: %s vs %s", version, m.Name, matches[2])
		}

		if matches[3] == "up" {
			if m.UpSQL != "" {
				return nil, fmt.Errorf("duplicate up migration for version %d", version)
			}
			m.UpSQL = sqlText
		} else {
			if m.DownSQL != "" {
				return nil, fmt.Errorf("duplicate down migration for version %d", version)
			}
			m.DownSQL = sqlText
		}
	}

	migrations := make([]migration, 0, len(index))
	for _, m := range index {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration version %d must include both up and down files", m.Version)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

func (m *migrator) ensureVersionTable(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version     BIGINT PRIMARY KEY,
    name        TEXT NOT NULL,
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`)
	return err
}

func (m *migrator) appliedVersions(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := m.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int64]struct{})
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = struct{}{}
	}
	return applied, rows.Err()
}

func (m *migrator) apply(ctx context.Context, sql string, record func(pgx.Tx) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, sql); err != nil {
		return err
	}
	if err := record(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (m *migrator) up(ctx context.Context) (int, error) {
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		err := m.apply(ctx, mig.UpSQL, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("version %d up failed: %w", mig.Version, err)
		}
		count++
	}
	return count, nil
}

func (m *migrator) down(ctx context.Context, steps int) (int, error) {
	byVersion := make(map[int64]migration, len(m.migrations))
	for _, mig := range m.migrations {
		byVersion[mig.Version] = mig
	}

	rows, err := m.pool.Query(ctx, `SELECT version FROM schema_migrations ORDER BY version DESC LIMIT $1`, steps)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	versions := make([]int64, 0, steps)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return 0, err
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	count := 0
	for _, version := range versions {
		mig, ok := byVersion[version]
		if !ok {
			return count, fmt.Errorf("cannot find migration source for applied version %d", version)
		}
		err := m.apply(ctx, mig.DownSQL, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, version)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("version %d down failed: %w", version, err)
		}
		count++
	}
	return count, nil
}

func (m *migrator) version(ctx context.Context) (int64, string, error) {
	var version int64
	var name string
	err := m.pool.QueryRow(ctx, `SELECT version, name FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version, &name)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", err
	}
	return version, name, nil
}
