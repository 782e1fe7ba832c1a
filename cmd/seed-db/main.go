// Command seed-db applies the schema and seeds coupon rules.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/coupon"
	"github.com/xenking/kart-storefront/internal/storage/postgres"
)

// defaultCoupons are seeded unless -coupons-file is given.
var defaultCoupons = []coupon.Rule{
	{
		Code:         "HAPPYHOURS",
		DiscountType: coupon.DiscountPercentage,
		Value:        decimal.NewFromInt(18),
		Description:  "Happy Hours: 18% off entire order",
	},
	{
		Code:         "BUYGETONE",
		DiscountType: coupon.DiscountFreeLowest,
		MinItems:     2,
		Description:  "Buy one get one: lowest priced item free",
	},
	{
		Code:         "WELCOME5",
		DiscountType: coupon.DiscountFixed,
		Value:        decimal.NewFromInt(5),
		Description:  "5 off your first order",
		MaxUses:      1000,
	},
}

func main() {
	var (
		databaseURL string
		couponsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&couponsFile, "coupons-file", "", "JSON file with coupon rules to seed instead of the defaults")
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

	if err := run(ctx, databaseURL, couponsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, couponsFile string) error {
	rules := defaultCoupons
	if couponsFile != "" {
		slog.Info("reading coupons file", slog.String("path", couponsFile))

		data, err := os.ReadFile(couponsFile)
		if err != nil {
			return errors.Wrap(err, "read coupons file")
		}
		if rules, err = parseRules(data); err != nil {
			return errors.Wrap(err, "parse coupons file")
		}
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewCouponRepository(pool)
	for _, r := range rules {
		if err := repo.Upsert(ctx, r); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", r.Code)
		}

		slog.Info("upserted coupon", slog.String("code", r.Code), slog.String("description", r.Description))
	}

	return nil
}
