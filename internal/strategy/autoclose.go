package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PickLedger/internal/closer"
	"PickLedger/internal/ledger"
	"PickLedger/internal/model"

	"github.com/rs/zerolog/log"
)

// Closed describes one position closed by a sweep.
type Closed struct {
	Entry  model.Entry       `json:"-"`
	ID     int64             `json:"id"`
	Symbol string            `json:"symbol"`
	Reason model.CloseReason `json:"reason"`
	Detail string            `json:"detail"`
}

// SweepResult summarizes one auto-close run.
type SweepResult struct {
	Checked int      `json:"checked"`
	Closed  []Closed `json:"closed"`
	Failed  int      `json:"failed"`
	Skipped bool     `json:"skipped"`
}

// AutoCloser applies the exit rules to every open entry.
type AutoCloser struct {
	Store   ledger.Store
	Closer  *closer.Closer
	Manager *Manager
	Now     func() time.Time
}

// NewAutoCloser creates an AutoCloser.
func NewAutoCloser(store ledger.Store, c *closer.Closer, m *Manager) *AutoCloser {
	return &AutoCloser{Store: store, Closer: c, Manager: m, Now: time.Now}
}

// Sweep closes open entries that trip a rule, at their current price. When
// auto close is disabled it returns a skipped result. Entries closed by
// someone else mid-sweep are ignored.
func (a *AutoCloser) Sweep(ctx context.Context) (SweepResult, error) {
	cfg := a.Manager.Get()
	res := SweepResult{Closed: []Closed{}}
	if !cfg.AutoClose {
		res.Skipped = true
		return res, nil
	}

	entries, err := a.Store.List(ctx, ledger.Filter{Status: model.StatusOpen})
	if err != nil {
		return res, fmt.Errorf("list open entries: %w", err)
	}
	now := a.now()
	res.Checked = len(entries)

	for i := range entries {
		e := &entries[i]
		reason, ok := Evaluate(e, cfg, now)
		if !ok {
			continue
		}
		detail := Describe(e, reason, cfg)
		closed, err := a.Closer.Close(ctx, e.ID, nil, reason)
		if errors.Is(err, model.ErrAlreadyClosed) {
			continue
		}
		if err != nil {
			res.Failed++
			log.Warn().Err(err).Int64("id", e.ID).Str("symbol", e.Symbol).Msg("auto close failed")
			continue
		}
		res.Closed = append(res.Closed, Closed{
			Entry:  *closed,
			ID:     closed.ID,
			Symbol: closed.Symbol,
			Reason: reason,
			Detail: detail,
		})
	}

	log.Info().
		Int("checked", res.Checked).
		Int("closed", len(res.Closed)).
		Int("failed", res.Failed).
		Msg("auto close sweep done")
	return res, nil
}

func (a *AutoCloser) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
