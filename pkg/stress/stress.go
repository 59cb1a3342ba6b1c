package stress

import (
	"context"
	"fmt"
	"time"

	"github.com/pixperk/tslock/pkg/lock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// reference scenario: 16 workers x 5M cycles on one word with a 1s lease
const (
	DefaultWorkers    = 16
	DefaultIterations = 5_000_000
	DefaultTimeout    = time.Second
)

type Config struct {
	Workers    int
	Iterations int
	Timeout    time.Duration
	// every Nth cycle of a worker skips its release, leaving the lease to
	// expire as if the holder had crashed. 0 disables
	AbandonEvery int
	Logger       zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		Workers:    DefaultWorkers,
		Iterations: DefaultIterations,
		Timeout:    DefaultTimeout,
		Logger:     zerolog.Nop(),
	}
}

type Result struct {
	Counter  uint64
	Expected uint64
	Crashes  uint64
	Elapsed  time.Duration
}

// true when no increment was lost to overlapping holders
func (r Result) OK() bool {
	return r.Counter == r.Expected
}

// runs acquire -> increment -> release cycles from every worker against l.
// the counter is deliberately unsynchronised: only the lock protects it, so
// any exclusion failure shows up as a lost increment. the first acquire or
// release error cancels the run
func Run(ctx context.Context, l *lock.Lock, cfg Config) (Result, error) {
	if cfg.Workers <= 0 || cfg.Iterations <= 0 {
		return Result{}, fmt.Errorf("workers and iterations must be greater than 0")
	}

	var (
		counter uint64
		crashes uint64
	)
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		worker := w
		g.Go(func() error {
			for i := 1; i <= cfg.Iterations; i++ {
				if i%4096 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}

				ticket, crash, err := l.Acquire(cfg.Timeout)
				if err != nil {
					return fmt.Errorf("worker %d acquire: %w", worker, err)
				}
				counter++
				if crash {
					crashes++
				}

				if cfg.AbandonEvery > 0 && i%cfg.AbandonEvery == 0 {
					cfg.Logger.Debug().Int("worker", worker).Uint64("ticket", uint64(ticket)).Msg("abandoning lease")
					continue
				}
				if err := l.Release(ticket); err != nil {
					return fmt.Errorf("worker %d release: %w", worker, err)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	res := Result{
		Counter:  counter,
		Expected: uint64(cfg.Workers) * uint64(cfg.Iterations),
		Crashes:  crashes,
		Elapsed:  time.Since(start),
	}
	if err != nil {
		return res, err
	}

	cfg.Logger.Info().
		Uint64("counter", res.Counter).
		Uint64("expected", res.Expected).
		Uint64("crashes", res.Crashes).
		Dur("elapsed", res.Elapsed).
		Msg("stress run finished")

	if !res.OK() {
		return res, fmt.Errorf("exclusion broken: counter %d, expected %d", res.Counter, res.Expected)
	}
	return res, nil
}
