// Package codelist reads gzip-compressed coupon code lists.
package codelist

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"slices"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxFiles is the largest number of lists Quorum can compare.
const MaxFiles = bits.UintSize

// Options tunes Quorum.
type Options struct {
	// Quorum is the number of files a code must occur in. Defaults to 2.
	Quorum int
	// MinLen and MaxLen bound accepted code length. Zero disables a bound.
	MinLen int
	MaxLen int
	// Capacity and FalsePositiveRate size each per-file bloom filter.
	Capacity          uint
	FalsePositiveRate float64
	Logger            *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Quorum <= 0 {
		o.Quorum = 2
	}
	if o.Capacity == 0 {
		o.Capacity = 1_000_000
	}
	if o.FalsePositiveRate <= 0 || o.FalsePositiveRate >= 1 {
		o.FalsePositiveRate = 0.001
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o Options) accept(code string) bool {
	if code == "" {
		return false
	}
	if o.MinLen > 0 && len(code) < o.MinLen {
		return false
	}
	if o.MaxLen > 0 && len(code) > o.MaxLen {
		return false
	}
	return true
}

// Quorum returns the sorted codes that occur in at least opts.Quorum of the
// given files. The first pass indexes every file into a bloom filter; the
// second pass marks a code with its own file only when enough other filters
// report it, so the result holds no false positives.
func Quorum(ctx context.Context, paths []string, opts Options) ([]string, error) {
	opts = opts.withDefaults()
	if len(paths) > MaxFiles {
		return nil, errors.Errorf("too many files: %d > %d", len(paths), MaxFiles)
	}
	if len(paths) < opts.Quorum {
		return nil, nil
	}

	filters, err := index(ctx, paths, opts)
	if err != nil {
		return nil, errors.Wrap(err, "index")
	}

	masks := make([]map[string]uint, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			found := make(map[string]uint)
			bit := uint(1) << uint(i)
			if err := Stream(gctx, path, func(code string) {
				if !opts.accept(code) {
					return
				}
				hits := 1
				for j, f := range filters {
					if j != i && f.TestString(code) {
						hits++
					}
				}
				if hits >= opts.Quorum {
					found[code] |= bit
				}
			}); err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			opts.Logger.Debug("Scanned code list",
				zap.String("path", path),
				zap.Int("candidates", len(found)),
			)
			masks[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, m := range masks {
		for code, mask := range m {
			merged[code] |= mask
		}
	}

	var codes []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= opts.Quorum {
			codes = append(codes, code)
		}
	}
	slices.Sort(codes)
	return codes, nil
}

func index(ctx context.Context, paths []string, opts Options) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			f := bloom.NewWithEstimates(opts.Capacity, opts.FalsePositiveRate)
			var n int
			if err := Stream(ctx, path, func(code string) {
				if opts.accept(code) {
					f.AddString(code)
					n++
				}
			}); err != nil {
				return errors.Wrapf(err, "index %s", path)
			}
			opts.Logger.Debug("Indexed code list", zap.String("path", path), zap.Int("codes", n))
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// Stream calls fn for every trimmed line of a gzip-compressed file.
func Stream(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(strings.TrimSpace(scanner.Text()))
	}
	return scanner.Err()
}
