// Command seed-db provisions the database: it applies migrations and upserts
// the users, wallets and products from a catalog file. The embedded default
// catalog is used when no -catalog-file is given. Plain JSON and gzipped
// (.gz) catalog files are supported.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"shopledger/db"
	"shopledger/internal/repository"
)

type catalogJSON struct {
	Users []struct {
		UserID       string `json:"user_id"`
		Name         string `json:"name"`
		BalanceCents int64  `json:"balance_cents"`
	} `json:"users"`
	Products []struct {
		ProductID  string `json:"product_id"`
		Name       string `json:"name"`
		PriceCents int64  `json:"price_cents"`
		Inventory  int64  `json:"inventory"`
	} `json:"products"`
}

func main() {
	var (
		databaseURL string
		catalogFile string
		workers     int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "", "path to catalog JSON file, .gz accepted (default: embedded catalog)")
	flag.IntVar(&workers, "workers", 4, "concurrent upsert workers")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, workers); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile string, workers int) error {
	catalog, err := loadCatalog(catalogFile)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedUsers(ctx, pool, catalog); err != nil {
		return errors.Wrap(err, "seed users")
	}
	return seedProducts(ctx, pool, catalog, workers)
}

func loadCatalog(path string) (*catalogJSON, error) {
	var r io.Reader = bytes.NewReader(db.SeedCatalog)
	if path != "" {
		slog.Info("reading catalog file", slog.String("path", path))

		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "open catalog file")
		}
		defer f.Close()
		r = f

		if strings.HasSuffix(path, ".gz") {
			gz, err := pgzip.NewReader(f)
			if err != nil {
				return nil, errors.Wrap(err, "open gzip stream")
			}
			defer gz.Close()
			r = gz
		}
	}

	var catalog catalogJSON
	if err := json.NewDecoder(r).Decode(&catalog); err != nil {
		return nil, errors.Wrap(err, "parse catalog JSON")
	}
	return &catalog, nil
}

// seedUsers inserts users and their wallets. Existing rows are left alone so
// re-running the seed never clobbers live balances.
func seedUsers(ctx context.Context, pool *pgxpool.Pool, catalog *catalogJSON) error {
	slog.Info("seeding users", slog.Int("count", len(catalog.Users)))

	for _, u := range catalog.Users {
		tag, err := pool.Exec(ctx,
			`INSERT INTO users (user_id, name) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
			u.UserID, u.Name)
		if err != nil {
			return errors.Wrapf(err, "insert user %s", u.UserID)
		}
		if _, err := pool.Exec(ctx,
			`INSERT INTO wallets (user_id, balance_cents) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
			u.UserID, u.BalanceCents); err != nil {
			return errors.Wrapf(err, "insert wallet %s", u.UserID)
		}

		if tag.RowsAffected() == 0 {
			slog.Info("user exists, skipped", slog.String("id", u.UserID))
			continue
		}
		slog.Info("inserted user", slog.String("id", u.UserID), slog.String("name", u.Name))
	}

	return nil
}

// seedProducts upserts the product catalog. Name and price follow the
// catalog on conflict; inventory does not, so restocking stays manual.
func seedProducts(ctx context.Context, pool *pgxpool.Pool, catalog *catalogJSON, workers int) error {
	slog.Info("upserting products", slog.Int("count", len(catalog.Products)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, p := range catalog.Products {
		g.Go(func() error {
			if _, err := pool.Exec(ctx,
				`INSERT INTO products (product_id, name, price_cents, inventory)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT (product_id) DO UPDATE
				 SET name = EXCLUDED.name, price_cents = EXCLUDED.price_cents`,
				p.ProductID, p.Name, p.PriceCents, p.Inventory); err != nil {
				return errors.Wrapf(err, "upsert product %s", p.ProductID)
			}

			slog.Info("upserted product", slog.String("id", p.ProductID), slog.String("name", p.Name))
			return nil
		})
	}

	return g.Wait()
}
