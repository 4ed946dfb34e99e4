package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"blink/internal/config"
	"blink/internal/db"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
)

const downMarker = "-- +migrate Down"

func main() {
	_ = godotenv.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	databaseURL, err := config.LoadDatabase()
	if err != nil {
		fatal(logger, "invalid configuration", err)
	}
	ctx := context.Background()
	database, err := db.Connect(ctx, databaseURL)
	if err != nil {
		fatal(logger, "failed to connect database", err)
	}
	defer database.Close()

	dir := "migrations"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	if err := migrate(ctx, database, dir, logger); err != nil {
		fatal(logger, "migration failed", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

// migrate applies every not yet recorded file in dir in name order. A file and
// its schema_migrations row commit together.
func migrate(ctx context.Context, database *sqlx.DB, dir string, logger *slog.Logger) error {
	if _, err := database.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	applied := 0
	for _, file := range files {
		filename := filepath.Base(file)
		var exists bool
		if err := database.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename); err != nil {
			return fmt.Errorf("read migration state: %w", err)
		}
		if exists {
			continue
		}
		content, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		err = db.WithTx(ctx, database, func(tx *sqlx.Tx) error {
			for _, stmt := range upStatements(string(content)) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, filename)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply %s: %w", filename, err)
		}
		logger.Info("applied migration", "file", filename)
		applied++
	}
	logger.Info("migrations complete", "applied", applied, "total", len(files))
	return nil
}

// upStatements returns the statements before the down marker. Statements end
// at a line ending in ';'; comment lines are dropped.
func upStatements(content string) []string {
	up, _, _ := strings.Cut(content, downMarker)
	var statements []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(up))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t")
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(line, ";") {
			statements = append(statements, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		statements = append(statements, rest)
	}
	return statements
}
