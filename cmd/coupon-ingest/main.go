// Command coupon-ingest imports promo codes published as gzip code lists.
// A code is accepted when it occurs in at least -quorum lists.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/coupon"
	"github.com/xenking/kart-storefront/internal/storage/codelist"
	"github.com/xenking/kart-storefront/internal/storage/postgres"
)

// knownRules maps well-known codes to their discount. Other accepted codes
// get defaultRule.
var knownRules = map[string]coupon.Rule{
	"HAPPYHRS": {DiscountType: coupon.DiscountPercentage, Value: decimal.NewFromInt(18), Description: "Happy Hours: 18% off"},
	"BUYGETON": {DiscountType: coupon.DiscountFreeLowest, MinItems: 2, Description: "Lowest item free (buy 2+)"},
	"FIFTYOFF": {DiscountType: coupon.DiscountPercentage, Value: decimal.NewFromInt(50), Description: "50% off entire order"},
	"OVER9000": {DiscountType: coupon.DiscountFixed, Value: decimal.NewFromInt(9), Description: "$9 off your order"},
}

var defaultRule = coupon.Rule{
	DiscountType: coupon.DiscountPercentage,
	Value:        decimal.NewFromInt(10),
	Description:  "Valid promo code: 10% off",
}

func ruleFor(code string) coupon.Rule {
	rule, ok := knownRules[code]
	if !ok {
		rule = defaultRule
	}
	rule.Code = code
	return rule
}

func main() {
	var (
		pattern     string
		databaseURL string
		quorum      int
		minLen      int
		maxLen      int
		dryRun      bool
	)

	flag.StringVar(&pattern, "files", "data/couponbase*.gz", "glob of gzip code lists")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&quorum, "quorum", 2, "number of lists a code must occur in")
	flag.IntVar(&minLen, "min-len", 8, "minimum code length")
	flag.IntVar(&maxLen, "max-len", 10, "maximum code length")
	flag.BoolVar(&dryRun, "dry-run", false, "print accepted codes instead of writing them")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	opts := codelist.Options{Quorum: quorum, MinLen: minLen, MaxLen: maxLen}
	if err := run(ctx, pattern, databaseURL, opts, dryRun); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed")
}

func run(ctx context.Context, pattern, databaseURL string, opts codelist.Options, dryRun bool) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrap(err, "glob")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %q", pattern)
	}

	lg, err := zap.NewProduction()
	if err != nil {
		return errors.Wrap(err, "logger")
	}
	defer func() { _ = lg.Sync() }()
	opts.Logger = lg

	slog.Info("scanning code lists", slog.Int("files", len(files)), slog.Int("quorum", opts.Quorum))

	codes, err := codelist.Quorum(ctx, files, opts)
	if err != nil {
		return errors.Wrap(err, "find codes")
	}

	slog.Info("accepted codes", slog.Int("count", len(codes)))

	if dryRun {
		for _, code := range codes {
			slog.Info("accepted", slog.String("code", code))
		}
		return nil
	}
	if len(codes) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewCouponRepository(pool)
	for i, code := range codes {
		if err := repo.Upsert(ctx, ruleFor(code)); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", code)
		}
		if (i+1)%100 == 0 || i+1 == len(codes) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(codes)))
		}
	}

	return nil
}
