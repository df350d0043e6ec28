package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ilramdhan/calculator-engine/config"
	"github.com/ilramdhan/calculator-engine/migrations"
	"github.com/ilramdhan/calculator-engine/pkg/database"
	"github.com/ilramdhan/calculator-engine/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	upCmd := flag.NewFlagSet("up", flag.ExitOnError)
	downCmd := flag.NewFlagSet("down", flag.ExitOnError)
	statusCmd := flag.NewFlagSet("status", flag.ExitOnError)

	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <command>")
		fmt.Println("Commands: up, down, status")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.App.IsDevelopment())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	pool, err := database.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(pool)

	m := &migrator{pool: pool, files: migrations.FS, log: log}
	if err := m.ensureMigrationsTable(ctx); err != nil {
		log.Fatal("failed to create migrations table", zap.Error(err))
	}

	switch os.Args[1] {
	case "up":
		upCmd.Parse(os.Args[2:])
		err = m.up(ctx)
	case "down":
		downCmd.Parse(os.Args[2:])
		err = m.down(ctx)
	case "status":
		statusCmd.Parse(os.Args[2:])
		err = m.status(ctx)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		log.Fatal("migration failed", zap.String("command", os.Args[1]), zap.Error(err))
	}
}

type migrator struct {
	pool  *pgxpool.Pool
	files fs.FS
	log   *zap.Logger
}

func (m *migrator) ensureMigrationsTable(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (m *migrator) up(ctx context.Context) error {
	files, err := fs.Glob(m.files, "*.up.sql")
	if err != nil {
		return fmt.Errorf("failed to find migration files: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		version := extractVersion(file)
		applied, err := m.isApplied(ctx, version)
		if err != nil {
			return err
		}
		if applied {
			m.log.Info("skipping migration, already applied", zap.String("version", version))
			continue
		}

		content, err := fs.ReadFile(m.files, file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}

		m.log.Info("applying migration", zap.String("version", version))
		err = pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return fmt.Errorf("failed to apply %s: %w", file, err)
			}
			if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
				return fmt.Errorf("failed to record migration %s: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		m.log.Info("applied migration", zap.String("version", version))
	}
	return nil
}

// down rolls back only the latest applied migration
func (m *migrator) down(ctx context.Context) error {
	files, err := fs.Glob(m.files, "*.down.sql")
	if err != nil {
		return fmt.Errorf("failed to find migration files: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	for _, file := range files {
		version := extractVersion(file)
		applied, err := m.isApplied(ctx, version)
		if err != nil {
			return err
		}
		if !applied {
			continue
		}

		content, err := fs.ReadFile(m.files, file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}

		m.log.Info("rolling back migration", zap.String("version", version))
		err = pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return fmt.Errorf("failed to rollback %s: %w", file, err)
			}
			if _, err := tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", version); err != nil {
				return fmt.Errorf("failed to remove migration record %s: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		m.log.Info("rolled back migration", zap.String("version", version))
		return nil
	}

	m.log.Info("no migrations to roll back")
	return nil
}

func (m *migrator) status(ctx context.Context) error {
	files, err := fs.Glob(m.files, "*.up.sql")
	if err != nil {
		return fmt.Errorf("failed to find migration files: %w", err)
	}
	sort.Strings(files)

	fmt.Println("Migration Status:")
	fmt.Println("=================")
	for _, file := range files {
		version := extractVersion(file)
		applied, err := m.isApplied(ctx, version)
		if err != nil {
			return err
		}
		status := "PENDING"
		if applied {
			status = "APPLIED"
		}
		fmt.Printf("[%s] %s\n", status, version)
	}
	return nil
}

func (m *migrator) isApplied(ctx context.Context, version string) (bool, error) {
	var count int
	err := m.pool.QueryRow(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE version = $1", version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check migration %s: %w", version, err)
	}
	return count > 0, nil
}

func extractVersion(filename string) string {
	base := path.Base(filename)
	version, _, _ := strings.Cut(base, "_")
	return version
}
