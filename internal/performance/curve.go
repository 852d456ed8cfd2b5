package performance

import (
	"context"
	"time"

	"PickLedger/internal/model"
)

// Curve is a date-indexed return series with one point per calendar day.
type Curve struct {
	Window              model.Window `json:"period"`
	Dates               []string     `json:"dates"`
	DailyReturnPct      []float64    `json:"daily_returns"`
	CumulativeReturnPct []float64    `json:"cumulative_returns"`
	DailyCount          []int        `json:"daily_count"`
}

// Curve buckets entries by issue day across w. Days without entries are
// present with a zero return, so the series needs no gap filling.
func (c *Calculator) Curve(ctx context.Context, w model.Window) (Curve, error) {
	entries, err := c.Entries(ctx, w, Filter{})
	if err != nil {
		return Curve{}, err
	}
	now := c.now()

	start, ok := w.Start(now, c.Loc)
	if !ok {
		if len(entries) == 0 {
			cv := emptyCurve()
			cv.Window = w
			return cv, nil
		}
		// Entries are newest first; the last is the earliest.
		start = model.StartOfDay(entries[len(entries)-1].EntryDate, c.Loc)
	}

	cv := BuildCurve(entries, start, model.StartOfDay(now, c.Loc), c.Loc)
	cv.Window = w
	return cv, nil
}

// BuildCurve produces the series for the inclusive day range [from, to].
// Entries outside the range are ignored.
func BuildCurve(entries []model.Entry, from, to time.Time, loc *time.Location) Curve {
	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[string]*bucket)
	for i := range entries {
		key := model.DayKey(entries[i].EntryDate, loc)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.sum += entries[i].ProfitPercent()
		b.count++
	}

	cv := emptyCurve()
	cumulative := 0.0
	for d := model.StartOfDay(from, loc); !d.After(to); d = d.AddDate(0, 0, 1) {
		key := d.Format(model.DayLayout)
		daily, count := 0.0, 0
		if b, ok := buckets[key]; ok {
			daily = b.sum / float64(b.count)
			count = b.count
		}
		cumulative += daily
		cv.Dates = append(cv.Dates, key)
		cv.DailyReturnPct = append(cv.DailyReturnPct, daily)
		cv.CumulativeReturnPct = append(cv.CumulativeReturnPct, cumulative)
		cv.DailyCount = append(cv.DailyCount, count)
	}
	return cv
}

func emptyCurve() Curve {
	return Curve{
		Dates:               []string{},
		DailyReturnPct:      []float64{},
		CumulativeReturnPct: []float64{},
		DailyCount:          []int{},
	}
}
