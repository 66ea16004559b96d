package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stocker-io/stocker-sdk/pkg/configuration"
)

const ensureVersionsTableQuery = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   varchar(255) PRIMARY KEY,
		applied_at timestamptz NOT NULL DEFAULT now()
	)`

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	conn, err := pgx.Connect(ctx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}
	defer func() { _ = conn.Close(ctx) }()

	if _, err := conn.Exec(ctx, ensureVersionsTableQuery); err != nil {
		panic(fmt.Errorf("failed to ensure schema_migrations: %w", err))
	}

	files, err := migrationFiles(conf.MigrationsDir)
	if err != nil {
		panic(err)
	}

	applied := 0
	for _, file := range files {
		done, err := apply(ctx, conn, file)
		if err != nil {
			panic(fmt.Errorf("migration %s failed: %w", filepath.Base(file), err))
		}
		if done {
			logger.Infof("applied migration %s", filepath.Base(file))
			applied++
		}
	}

	logger.Infof("migrations up to date, %d applied", applied)
	configuration.Use().Unload()
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations dir %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// apply runs one migration file in its own transaction, recording it in
// schema_migrations. Already applied files are skipped.
func apply(ctx context.Context, conn *pgx.Conn, file string) (bool, error) {
	name := filepath.Base(file)

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename = $1)`, name).Scan(&exists); err != nil {
		return false, err
	}
	if exists {
		return false, tx.Commit(ctx)
	}

	script, err := os.ReadFile(file)
	if err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, string(script)); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}
