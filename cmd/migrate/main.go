package main

import (
	"bufio"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"reconciler/internal/config"
	"reconciler/internal/db"
	"reconciler/internal/logging"

	"github.com/jmoiron/sqlx"
)

const (
	migrationsGlob = "migrations/*.sql"
	downMarker     = "-- +migrate Down"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Logging)
	database, err := db.Connect(cfg.Database)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	applied, total, err := migrate(database, migrationsGlob, logger)
	if err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations complete", "applied", applied, "total", total)
}

// migrate applies every pending file in name order. Each file runs in its
// own transaction together with its schema_migrations row.
func migrate(database *sqlx.DB, pattern string, logger *slog.Logger) (int, int, error) {
	if _, err := database.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`); err != nil {
		return 0, 0, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	files, err := filepath.Glob(pattern)
	if err != nil {
		return 0, 0, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	applied := 0
	for _, file := range files {
		filename := filepath.Base(file)
		var exists bool
		if err := database.Get(&exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename); err != nil {
			return applied, len(files), fmt.Errorf("read state of %s: %w", filename, err)
		}
		if exists {
			continue
		}
		if err := applyInTx(database, file, filename); err != nil {
			return applied, len(files), fmt.Errorf("apply %s: %w", filename, err)
		}
		logger.Info("applied migration", "file", filename)
		applied++
	}
	return applied, len(files), nil
}

func applyInTx(database *sqlx.DB, path, filename string) error {
	tx, err := database.Beginx()
	if err != nil {
		return err
	}
	if err := applyFile(tx, path); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (filename) VALUES ($1)`, filename); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// applyFile runs the statements above the Down marker.
func applyFile(db execer, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	up, _, _ := strings.Cut(string(content), downMarker)
	for _, stmt := range splitSQL(up) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// splitSQL breaks a script into statements at lines containing ';'.
// Comment lines are dropped.
func splitSQL(sqlText string) []string {
	var statements []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(sqlText))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current.WriteString(line)
		current.WriteRune('\n')
		if strings.Contains(line, ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}
	return statements
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}
