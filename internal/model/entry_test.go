package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2025, 3, n, 10, 0, 0, 0, time.UTC)
}

func TestEntry_ProfitLifecycle(t *testing.T) {
	e := &Entry{Symbol: "600519", EntryPrice: 1680.50, EntryDate: day(1), Status: StatusOpen}
	assert.InDelta(t, 0, e.ProfitPercent(), 1e-9, "no price observed yet falls back to entry price")

	e.CurrentPrice = 1725.00
	e.PriceUpdatedAt = day(2)
	assert.InDelta(t, 2.6480, e.ProfitPercent(), 1e-3)
	assert.Equal(t, 5, e.HoldingDays(day(6)))

	e.Status = StatusClosed
	e.ClosePrice = 1700.00
	e.CloseDate = day(8)
	e.CloseReason = CloseManual
	assert.InDelta(t, 1.1604, e.ProfitPercent(), 1e-3, "closed entries use the close price")
	assert.Equal(t, 7, e.HoldingDays(day(20)), "holding stops at the close date")
}

func TestEntry_HoldingDaysNeverNegative(t *testing.T) {
	e := &Entry{EntryDate: day(5), Status: StatusOpen}
	assert.Equal(t, 0, e.HoldingDays(day(4)))
}

func TestEntry_Validate(t *testing.T) {
	valid := Entry{Symbol: "000001", Name: "平安银行", Category: CategoryTrend, EntryPrice: 10, AIScore: 70, EntryDate: day(1)}
	require.NoError(t, valid.Validate())

	cases := map[string]func(e *Entry){
		"symbol":      func(e *Entry) { e.Symbol = "" },
		"name":        func(e *Entry) { e.Name = "" },
		"entry_price": func(e *Entry) { e.EntryPrice = 0 },
		"ai_score":    func(e *Entry) { e.AIScore = 101 },
		"category":    func(e *Entry) { e.Category = "momentum" },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			e := valid
			mutate(&e)
			err := e.Validate()
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, field, ve.Field)
		})
	}
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("")
	require.NoError(t, err)
	assert.Equal(t, Window30D, w)

	_, err = ParseWindow("1y")
	assert.True(t, IsValidation(err))

	start, ok := Window7D.Start(time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC), time.UTC)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), start)

	_, ok = WindowAll.Start(time.Now(), time.UTC)
	assert.False(t, ok)
}

func TestParseStatusAndReason(t *testing.T) {
	s, err := ParseStatus("active")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, s)

	r, err := ParseCloseReason("")
	require.NoError(t, err)
	assert.Equal(t, CloseManual, r)

	_, err = ParseCloseReason("margin_call")
	assert.True(t, IsValidation(err))
}

func TestValidPrice(t *testing.T) {
	for _, tc := range []struct {
		price float64
		want  bool
	}{
		{1680.5, true},
		{0.01, true},
		{0, false},
		{-3, false},
		{math.Inf(1), false},
		{math.Inf(-1), false},
		{math.NaN(), false},
	} {
		assert.Equal(t, tc.want, ValidPrice(tc.price), "%v", tc.price)
	}
}

func TestParseErrorsQuoteInput(t *testing.T) {
	_, err := ParseCategory("a\"b\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"a\"b\n"`)

	_, err = ParseWindow("1y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"1y"`)
}
