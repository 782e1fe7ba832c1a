// Command catalog-snapshot saves the backend catalog to a gzip file that the
// storefront server can serve with STOREFRONT_CATALOG_SOURCE=snapshot.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-storefront/internal/client/backend"
	"github.com/xenking/kart-storefront/internal/storage/snapshot"
)

func main() {
	var (
		backendURL string
		out        string
		sortHint   string
		timeout    time.Duration
	)

	flag.StringVar(&backendURL, "backend-url", "", "catalog backend base URL (or STOREFRONT_BACKEND_BASEURL env)")
	flag.StringVar(&out, "out", "catalog.json.gz", "output file")
	flag.StringVar(&sortHint, "sort", "", "sort hint forwarded to the backend")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	if backendURL == "" {
		backendURL = os.Getenv("STOREFRONT_BACKEND_BASEURL")
	}
	if backendURL == "" {
		slog.Error("backend URL is required: set --backend-url or STOREFRONT_BACKEND_BASEURL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	if err := run(ctx, backendURL, out, sortHint); err != nil {
		slog.Error("catalog snapshot failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, backendURL, out, sortHint string) error {
	client := backend.New(backend.Config{BaseURL: backendURL, Timeout: 10 * time.Second, RetryCount: 2}, nil, nil)
	defer func() { _ = client.Close() }()

	snap := snapshot.Snapshot{CreatedAt: time.Now()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		products, err := client.FetchProducts(gctx, sortHint)
		snap.Products = products
		return err
	})
	g.Go(func() error {
		categories, err := client.FetchCategories(gctx)
		snap.Categories = categories
		return err
	})
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "fetch catalog")
	}

	if err := snapshot.WriteFile(out, snap); err != nil {
		return errors.Wrap(err, "write snapshot")
	}

	slog.Info("catalog snapshot written",
		slog.String("path", out),
		slog.Int("products", len(snap.Products)),
		slog.Int("categories", len(snap.Categories)),
	)
	return nil
}
