// Package closer moves open entries to the closed state.
package closer

import (
	"context"
	"fmt"
	"time"

	"PickLedger/internal/ledger"
	"PickLedger/internal/metrics"
	"PickLedger/internal/model"

	"github.com/rs/zerolog/log"
)

// Closer terminates open positions.
type Closer struct {
	Store ledger.Store
	Now   func() time.Time
}

// New creates a Closer.
func New(store ledger.Store) *Closer {
	return &Closer{Store: store, Now: time.Now}
}

// Close closes entry id at price, or at its latest observed price when
// price is nil. It returns the closed entry. Closing an unknown or already
// closed entry returns model.ErrNotFound or model.ErrAlreadyClosed.
func (c *Closer) Close(ctx context.Context, id int64, price *float64, reason model.CloseReason) (*model.Entry, error) {
	if reason == "" {
		reason = model.CloseManual
	}

	e, err := c.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.IsOpen() {
		return nil, fmt.Errorf("entry %d: %w", id, model.ErrAlreadyClosed)
	}

	closePrice := e.LatestPrice()
	if price != nil {
		if !model.ValidPrice(*price) {
			return nil, &model.ValidationError{Field: "close_price", Reason: "must be positive and finite"}
		}
		closePrice = *price
	}

	at := c.now()
	if err := c.Store.ClosePosition(ctx, id, closePrice, at, reason); err != nil {
		return nil, err
	}
	metrics.PositionsClosed.WithLabelValues(string(reason)).Inc()

	closed, err := c.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int64("id", id).
		Str("symbol", closed.Symbol).
		Float64("close_price", closePrice).
		Str("reason", string(reason)).
		Float64("profit_pct", closed.ProfitPercent()).
		Msg("position closed")
	return closed, nil
}

func (c *Closer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
