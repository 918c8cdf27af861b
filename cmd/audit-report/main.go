// Command audit-report prints the database ground truth for one user: wallet
// balance, recent ledger entries and recent orders. With -export it also
// writes the user's ledger as gzipped JSON lines.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"shopledger/internal/audit"
	"shopledger/internal/repository"
)

func main() {
	var (
		databaseURL string
		userID      string
		exportPath  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&userID, "user", "", "user ID to audit")
	flag.StringVar(&exportPath, "export", "", "optional path for a gzipped JSONL ledger export")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if userID == "" {
		slog.Error("user ID is required: set --user")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, userID, exportPath); err != nil {
		slog.Error("audit failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, userID, exportPath string) error {
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	store := repository.NewStore(pool, 0)

	report, err := audit.New(store).Collect(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "collect report")
	}

	fmt.Print(report.Render())

	if exportPath == "" {
		return nil
	}

	f, err := os.Create(exportPath)
	if err != nil {
		return errors.Wrap(err, "create export file")
	}
	defer f.Close()

	if err := report.ExportJSONL(f); err != nil {
		return errors.Wrap(err, "export ledger")
	}

	slog.Info("ledger exported", slog.String("path", exportPath), slog.Int("entries", len(report.Ledger)))
	return nil
}
