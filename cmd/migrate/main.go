package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/better-wallet/controller/internal/logger"
	"github.com/better-wallet/controller/migrations"
)

func main() {
	var (
		dsn       = flag.String("dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
		direction = flag.String("direction", "up", "Migration direction: up or down")
		steps     = flag.Int("steps", 0, "Number of migrations to run (0 = all)")
		dir       = flag.String("dir", "", "Read migrations from this directory instead of the embedded set")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if *dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	if *direction != "up" && *direction != "down" {
		log.Fatalf("direction must be 'up' or 'down', got: %s", *direction)
	}

	var source fs.FS = migrations.FS
	if *dir != "" {
		source = os.DirFS(*dir)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	count, err := migrate(ctx, pool, source, *direction, *steps)
	if err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	if count == 0 {
		slog.Info("no migrations to apply")
	} else {
		slog.Info("migrations applied", "count", count, "direction", *direction)
	}
}

// migrate applies pending migrations from source, each in its own
// transaction, and returns how many ran.
func migrate(ctx context.Context, pool *pgxpool.Pool, source fs.FS, direction string, steps int) (int, error) {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		return 0, err
	}

	files, err := pending(source, direction, applied)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, file := range files {
		if steps > 0 && count >= steps {
			break
		}

		version := strings.TrimSuffix(file, suffix(direction))
		slog.Info("running migration", "file", file)

		content, err := fs.ReadFile(source, file)
		if err != nil {
			return count, fmt.Errorf("read migration %s: %w", file, err)
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return count, fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(ctx, string(content)); err != nil {
			_ = tx.Rollback(ctx)
			return count, fmt.Errorf("execute migration %s: %w", file, err)
		}

		if direction == "up" {
			_, err = tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version)
		} else {
			_, err = tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", version)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return count, fmt.Errorf("update migrations table: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return count, fmt.Errorf("commit migration %s: %w", file, err)
		}
		count++
	}
	return count, nil
}

func appliedVersions(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func suffix(direction string) string {
	if direction == "down" {
		return ".down.sql"
	}
	return ".up.sql"
}

// pending lists the files to run for direction: unapplied ups in ascending
// order, or applied downs in descending order.
func pending(source fs.FS, direction string, applied map[string]bool) ([]string, error) {
	files, err := fs.Glob(source, "*"+suffix(direction))
	if err != nil {
		return nil, fmt.Errorf("find migration files: %w", err)
	}

	sort.Strings(files)
	if direction == "down" {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}

	out := files[:0]
	for _, file := range files {
		version := strings.TrimSuffix(file, suffix(direction))
		if applied[version] == (direction == "up") {
			continue
		}
		out = append(out, file)
	}
	return out, nil
}
