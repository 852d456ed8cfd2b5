package recorder

import (
	"context"
	"errors"
	"time"

	"PickLedger/internal/ledger"
	"PickLedger/internal/metrics"
	"PickLedger/internal/model"

	"github.com/rs/zerolog/log"
)

// Item is one AI recommendation as issued.
type Item struct {
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Category model.Category `json:"category"`
	Action   string         `json:"recommendation"`
	Score    int            `json:"ai_score"`
	Signal   string         `json:"signal"`
	Reason   string         `json:"reason"`
	Price    float64        `json:"price"`
}

// BatchResult breaks a batch down by outcome.
type BatchResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Recorder turns recommendation batches into ledger entries.
type Recorder struct {
	Store ledger.Store
}

// NewRecorder creates a new Recorder.
func NewRecorder(store ledger.Store) *Recorder {
	return &Recorder{Store: store}
}

// RecordBatch records items issued at issuedAt and returns how many entries
// were inserted. Duplicates for the same symbol, category and day are
// skipped; an invalid item is logged and does not stop the batch.
func (r *Recorder) RecordBatch(ctx context.Context, items []Item, issuedAt time.Time) int {
	return r.RecordBatchDetailed(ctx, items, issuedAt).Inserted
}

// RecordBatchDetailed is RecordBatch with skip and failure counts.
func (r *Recorder) RecordBatchDetailed(ctx context.Context, items []Item, issuedAt time.Time) BatchResult {
	var res BatchResult
	for _, it := range items {
		switch err := r.record(ctx, it, issuedAt); {
		case err == nil:
			res.Inserted++
		case errors.Is(err, ledger.ErrDuplicate):
			res.Skipped++
			log.Debug().Str("symbol", it.Symbol).Str("category", string(it.Category)).Msg("recommendation already recorded today")
		default:
			res.Failed++
			log.Warn().Err(err).Str("symbol", it.Symbol).Str("category", string(it.Category)).Msg("record recommendation failed")
		}
	}

	metrics.RecordsTotal.WithLabelValues("inserted").Add(float64(res.Inserted))
	metrics.RecordsTotal.WithLabelValues("skipped").Add(float64(res.Skipped))
	metrics.RecordsTotal.WithLabelValues("failed").Add(float64(res.Failed))

	log.Info().
		Int("inserted", res.Inserted).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Int("total", len(items)).
		Msg("recommendation batch recorded")
	return res
}

func (r *Recorder) record(ctx context.Context, it Item, issuedAt time.Time) error {
	if _, err := model.ParseCategory(string(it.Category)); err != nil {
		return err
	}

	existing, err := r.Store.FindBySymbolCategoryDay(ctx, it.Symbol, it.Category, issuedAt)
	if err != nil {
		return err
	}
	if existing != nil {
		return ledger.ErrDuplicate
	}

	// A concurrent batch may still win the insert; the store's unique index
	// reports that as ErrDuplicate.
	_, err = r.Store.Insert(ctx, &model.Entry{
		Symbol:         it.Symbol,
		Name:           it.Name,
		Category:       it.Category,
		Action:         it.Action,
		AIScore:        it.Score,
		Signal:         it.Signal,
		Reason:         it.Reason,
		EntryPrice:     it.Price,
		EntryDate:      issuedAt,
		CurrentPrice:   it.Price,
		PriceUpdatedAt: issuedAt,
		Status:         model.StatusOpen,
	})
	return err
}
