// Package performance derives paper-performance statistics from the ledger.
//
// Aggregate returns are equal-weighted: every entry counts once regardless
// of price or implied position size, and returns are averaged, not
// compounded.
package performance

import (
	"context"
	"fmt"
	"math"
	"time"

	"PickLedger/internal/ledger"
	"PickLedger/internal/model"
)

// Filter narrows a summary beyond its window.
type Filter struct {
	Status   model.Status
	Category model.Category
}

// Summary holds aggregate statistics for a window.
type Summary struct {
	Window         model.Window `json:"period"`
	TotalReturnPct float64      `json:"total_return"`
	WinRatePct     float64      `json:"win_rate"`
	TotalCount     int          `json:"total_recommendations"`
	OpenCount      int          `json:"active_count"`
	ClosedCount    int          `json:"closed_count"`
	AvgHoldingDays float64      `json:"avg_holding_days"`
	BestProfitPct  float64      `json:"best_profit"`
	WorstLossPct   float64      `json:"worst_loss"`
	AvgScore       float64      `json:"avg_ai_score"`
}

// Calculator reads entries from a Store and computes statistics.
type Calculator struct {
	Store ledger.Store
	Loc   *time.Location
	Now   func() time.Time
}

// NewCalculator creates a Calculator bucketing days in loc.
func NewCalculator(store ledger.Store, loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.Local
	}
	return &Calculator{Store: store, Loc: loc, Now: time.Now}
}

func (c *Calculator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Entries returns the entries whose EntryDate falls inside w, newest first.
func (c *Calculator) Entries(ctx context.Context, w model.Window, f Filter) ([]model.Entry, error) {
	lf := ledger.Filter{Status: f.Status, Category: f.Category}
	if start, ok := w.Start(c.now(), c.Loc); ok {
		lf.From = start
	}
	entries, err := c.Store.List(ctx, lf)
	if err != nil {
		return nil, fmt.Errorf("load entries for %s: %w", w, err)
	}
	return entries, nil
}

// Summary computes aggregate statistics over w. An empty selection yields
// zero for every field rather than an error.
func (c *Calculator) Summary(ctx context.Context, w model.Window, f Filter) (Summary, error) {
	entries, err := c.Entries(ctx, w, f)
	if err != nil {
		return Summary{}, err
	}
	s := Summarize(entries, c.now())
	s.Window = w
	return s, nil
}

// Summarize aggregates entries as of now.
func Summarize(entries []model.Entry, now time.Time) Summary {
	var s Summary
	if len(entries) == 0 {
		return s
	}

	var sumProfit, sumDays, sumScore float64
	wins := 0
	s.BestProfitPct = math.Inf(-1)
	s.WorstLossPct = math.Inf(1)
	for i := range entries {
		e := &entries[i]
		p := e.ProfitPercent()
		sumProfit += p
		sumDays += float64(e.HoldingDays(now))
		sumScore += float64(e.AIScore)
		if p > 0 {
			wins++
		}
		if e.IsOpen() {
			s.OpenCount++
		} else {
			s.ClosedCount++
		}
		s.BestProfitPct = math.Max(s.BestProfitPct, p)
		s.WorstLossPct = math.Min(s.WorstLossPct, p)
	}

	n := float64(len(entries))
	s.TotalCount = len(entries)
	s.TotalReturnPct = sumProfit / n
	s.WinRatePct = float64(wins) / n * 100
	s.AvgHoldingDays = sumDays / n
	s.AvgScore = sumScore / n
	return s
}
