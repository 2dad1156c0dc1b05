// Command code-batch generates large batches of unique coupon codes and
// writes them to a gzip-compressed file, one code per line. Uniqueness is
// enforced with a bloom filter across the batch and, when a database URL
// is given, against the persisted coupon code set.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/velstore/promo-engine/internal/domain/coupon"
	"github.com/velstore/promo-engine/internal/storage/postgres"
)

const (
	bloomFPR      = 1e-6
	progressEvery = 100_000
)

func main() {
	var (
		count       int
		length      int
		prefix      string
		suffix      string
		alphabet    string
		workers     int
		outPath     string
		databaseURL string
	)

	flag.IntVar(&count, "count", 1_000_000, "number of codes to generate")
	flag.IntVar(&length, "length", 10, "length of the random part of each code")
	flag.StringVar(&prefix, "prefix", "", "fixed code prefix")
	flag.StringVar(&suffix, "suffix", "", "fixed code suffix")
	flag.StringVar(&alphabet, "alphabet", "readable", "alphabet: full, digits, or readable")
	flag.IntVar(&workers, "workers", 4, "concurrent generation workers")
	flag.StringVar(&outPath, "out", "codes.gz", "output file (gzip, one code per line)")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL to check codes against (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, batchConfig{
		count:       count,
		length:      length,
		prefix:      prefix,
		suffix:      suffix,
		alphabet:    alphabet,
		workers:     workers,
		outPath:     outPath,
		databaseURL: databaseURL,
	}); err != nil {
		slog.Error("code batch failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("code batch completed", slog.Int("count", count), slog.String("out", outPath))
}

type batchConfig struct {
	count       int
	length      int
	prefix      string
	suffix      string
	alphabet    string
	workers     int
	outPath     string
	databaseURL string
}

func run(ctx context.Context, cfg batchConfig) error {
	alpha, err := resolveAlphabet(cfg.alphabet)
	if err != nil {
		return err
	}

	var repoExists coupon.ExistsFunc
	if cfg.databaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()
		repoExists = postgres.NewCouponRepository(pool).CodeExists
	}

	// The bloom filter deduplicates within the batch; the repository
	// check, when configured, guards against persisted codes.
	dedup := newBatchDedup(cfg.count, repoExists)

	out, err := os.Create(cfg.outPath)
	if err != nil {
		return errors.Wrapf(err, "create %s", cfg.outPath)
	}
	defer func() { _ = out.Close() }()

	gz := pgzip.NewWriter(out)
	// Terminates the gzip stream on error paths too; the success path
	// closes explicitly and this second Close is a no-op.
	defer func() { _ = gz.Close() }()
	codes := make(chan string, 1024)

	g, ctx := errgroup.WithContext(ctx)

	// Writer drains the channel into the compressed output.
	g.Go(func() error {
		w := bufio.NewWriter(gz)
		var written int
		for code := range codes {
			if _, err := w.WriteString(code + "\n"); err != nil {
				return errors.Wrap(err, "write code")
			}
			written++
			if written%progressEvery == 0 {
				slog.Info("progress", slog.Int("written", written))
			}
		}
		if err := w.Flush(); err != nil {
			return errors.Wrap(err, "flush output")
		}
		return nil
	})

	// Generation workers share the per-worker quota.
	gen, genCtx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.workers; i++ {
		quota := cfg.count / cfg.workers
		if i == 0 {
			quota += cfg.count % cfg.workers
		}
		seed := time.Now().UnixNano() + int64(i)
		gen.Go(func() error {
			return generate(genCtx, quota, coupon.GenerateSpec{
				Length:   cfg.length,
				Prefix:   cfg.prefix,
				Suffix:   cfg.suffix,
				Alphabet: alpha,
			}, dedup, seed, codes)
		})
	}

	genErr := gen.Wait()
	close(codes)
	if err := g.Wait(); err != nil {
		return err
	}
	if genErr != nil {
		return genErr
	}

	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "close gzip writer")
	}
	return nil
}

func generate(ctx context.Context, quota int, spec coupon.GenerateSpec, dedup *batchDedup, seed int64, out chan<- string) error {
	g := coupon.NewGenerator(dedup.exists, rand.NewSource(seed))
	for produced := 0; produced < quota; produced++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		code, err := g.Generate(ctx, spec)
		if err != nil {
			return errors.Wrap(err, "generate code")
		}
		select {
		case out <- code:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// batchDedup is a concurrency-safe uniqueness oracle: a bloom filter for
// the batch itself plus an optional repository check.
type batchDedup struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	repo   coupon.ExistsFunc
}

func newBatchDedup(capacity int, repo coupon.ExistsFunc) *batchDedup {
	return &batchDedup{
		filter: bloom.NewWithEstimates(uint(capacity)*2, bloomFPR),
		repo:   repo,
	}
}

// exists claims the code in the batch filter and reports collisions. A
// code rejected later by the repository stays claimed, which only costs
// a retry.
func (d *batchDedup) exists(ctx context.Context, code string) (bool, error) {
	d.mu.Lock()
	seen := d.filter.TestString(code)
	if !seen {
		d.filter.AddString(code)
	}
	d.mu.Unlock()
	if seen {
		return true, nil
	}

	if d.repo != nil {
		taken, err := d.repo(ctx, code)
		if err != nil {
			return false, errors.Wrap(err, "check repository")
		}
		return taken, nil
	}
	return false, nil
}

func resolveAlphabet(name string) (coupon.Alphabet, error) {
	switch name {
	case "full":
		return coupon.AlphabetFull, nil
	case "digits":
		return coupon.AlphabetDigits, nil
	case "readable":
		return coupon.AlphabetReadable, nil
	default:
		return "", errors.Errorf("unknown alphabet %q", name)
	}
}
