package closer

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"PickLedger/internal/ledger"
	"PickLedger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var issued = time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC)

func setup(t *testing.T) (*Closer, *ledger.SQLiteStore, int64) {
	t.Helper()
	store, err := ledger.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"), time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	id, err := store.Insert(context.Background(), &model.Entry{
		Symbol: "600519", Name: "贵州茅台", Category: model.CategoryTrend, Action: "buy",
		AIScore: 82, EntryPrice: 1680.50, EntryDate: issued,
		CurrentPrice: 1680.50, PriceUpdatedAt: issued,
	})
	require.NoError(t, err)

	c := New(store)
	c.Now = func() time.Time { return issued.AddDate(0, 0, 7) }
	return c, store, id
}

func TestClose_ExplicitPrice(t *testing.T) {
	c, _, id := setup(t)
	price := 1700.0

	e, err := c.Close(context.Background(), id, &price, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, e.Status)
	assert.Equal(t, model.CloseManual, e.CloseReason)
	assert.Equal(t, 1700.0, e.ClosePrice)
	assert.InDelta(t, 1.1604, e.ProfitPercent(), 1e-3)
	assert.Equal(t, 7, e.HoldingDays(time.Now()))
}

func TestClose_DefaultsToLatestPrice(t *testing.T) {
	c, store, id := setup(t)
	ctx := context.Background()
	_, err := store.UpdatePrice(ctx, "600519", 1725, issued.AddDate(0, 0, 1))
	require.NoError(t, err)

	e, err := c.Close(ctx, id, nil, model.CloseProfit)
	require.NoError(t, err)
	assert.Equal(t, 1725.0, e.ClosePrice)
	assert.Equal(t, model.CloseProfit, e.CloseReason)
}

func TestClose_TwiceLeavesFirstCloseIntact(t *testing.T) {
	c, store, id := setup(t)
	ctx := context.Background()
	first := 1700.0
	_, err := c.Close(ctx, id, &first, model.CloseManual)
	require.NoError(t, err)

	second := 1800.0
	c.Now = func() time.Time { return issued.AddDate(0, 0, 9) }
	_, err = c.Close(ctx, id, &second, model.CloseLoss)
	assert.ErrorIs(t, err, model.ErrAlreadyClosed)

	e, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1700.0, e.ClosePrice)
	assert.Equal(t, model.CloseManual, e.CloseReason)
	assert.True(t, e.CloseDate.Equal(issued.AddDate(0, 0, 7)))
}

func TestClose_UnknownEntry(t *testing.T) {
	c, _, _ := setup(t)
	_, err := c.Close(context.Background(), 9999, nil, "")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestClose_RejectsUnusablePrice(t *testing.T) {
	c, store, id := setup(t)
	for _, p := range []float64{0, -5, math.Inf(1), math.NaN()} {
		price := p
		_, err := c.Close(context.Background(), id, &price, "")
		assert.True(t, model.IsValidation(err), "price %v", p)
	}

	e, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, e.IsOpen())
}
