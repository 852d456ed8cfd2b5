package refresher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"PickLedger/internal/ledger"
	"PickLedger/internal/metrics"
	"PickLedger/internal/model"
	"PickLedger/internal/quote"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrRefreshInProgress is returned when a cycle is requested while another
// one is still running.
var ErrRefreshInProgress = errors.New("price refresh already in progress")

// QuoteFetchError records a failed quote for one symbol.
type QuoteFetchError struct {
	Symbol string
	Err    error
}

func (e *QuoteFetchError) Error() string {
	return fmt.Sprintf("quote %s: %v", e.Symbol, e.Err)
}

func (e *QuoteFetchError) Unwrap() error { return e.Err }

// Result summarizes one refresh cycle.
type Result struct {
	// Updated is the number of symbols whose price was applied.
	Updated int `json:"updated"`
	// Entries is the number of open entries touched.
	Entries int `json:"entries"`
	// Failed lists symbols whose quote or update failed, sorted.
	Failed []string         `json:"failed"`
	Errors map[string]error `json:"-"`
}

// Refresher applies current quotes to every open entry.
type Refresher struct {
	Store       ledger.Store
	Source      quote.Source
	Concurrency int
	Timeout     time.Duration
	Now         func() time.Time

	running atomic.Bool
}

// New creates a Refresher with default concurrency and per-quote timeout.
func New(store ledger.Store, src quote.Source) *Refresher {
	return &Refresher{
		Store:       store,
		Source:      src,
		Concurrency: 4,
		Timeout:     10 * time.Second,
		Now:         time.Now,
	}
}

// RefreshAll fetches a quote for every open symbol and updates the ledger.
// A failing symbol never aborts the others. At most one cycle runs at a
// time; an overlapping call returns ErrRefreshInProgress.
func (r *Refresher) RefreshAll(ctx context.Context) (Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		metrics.RefreshSkipped.Inc()
		return Result{}, ErrRefreshInProgress
	}
	defer r.running.Store(false)

	start := time.Now()
	defer func() { metrics.RefreshDuration.Observe(time.Since(start).Seconds()) }()

	symbols, err := r.Store.ListOpenSymbols(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list open symbols: %w", err)
	}
	metrics.OpenSymbols.Set(float64(len(symbols)))

	res := Result{Failed: []string{}, Errors: map[string]error{}}
	if len(symbols) == 0 {
		log.Info().Msg("no open entries, refresh skipped")
		return res, nil
	}

	var mu sync.Mutex
	fail := func(symbol string, err error) {
		mu.Lock()
		defer mu.Unlock()
		res.Failed = append(res.Failed, symbol)
		res.Errors[symbol] = err
	}

	// Plain Group: no shared cancellation, so one failure cannot cancel
	// its siblings.
	var g errgroup.Group
	g.SetLimit(r.concurrency())
	for _, symbol := range symbols {
		g.Go(func() error {
			price, err := r.fetch(ctx, symbol)
			if err != nil {
				metrics.QuoteFetches.WithLabelValues(r.Source.Name(), "error").Inc()
				log.Warn().Err(err).Str("symbol", symbol).Msg("quote fetch failed")
				fail(symbol, err)
				return nil
			}
			metrics.QuoteFetches.WithLabelValues(r.Source.Name(), "ok").Inc()

			n, err := r.Store.UpdatePrice(ctx, symbol, price, r.now())
			if err != nil {
				log.Error().Err(err).Str("symbol", symbol).Msg("price update failed")
				fail(symbol, err)
				return nil
			}
			mu.Lock()
			res.Updated++
			res.Entries += int(n)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(res.Failed)
	log.Info().
		Int("symbols", len(symbols)).
		Int("updated", res.Updated).
		Int("entries", res.Entries).
		Strs("failed", res.Failed).
		Dur("took", time.Since(start)).
		Msg("price refresh finished")
	return res, nil
}

func (r *Refresher) fetch(ctx context.Context, symbol string) (float64, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	price, err := r.Source.Quote(qctx, symbol)
	if err != nil {
		return 0, &QuoteFetchError{Symbol: symbol, Err: err}
	}
	if !model.ValidPrice(price) {
		return 0, &QuoteFetchError{Symbol: symbol, Err: fmt.Errorf("unusable price %v: %w", price, quote.ErrNoQuote)}
	}
	return price, nil
}

func (r *Refresher) concurrency() int {
	if r.Concurrency < 1 {
		return 1
	}
	return r.Concurrency
}

func (r *Refresher) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
