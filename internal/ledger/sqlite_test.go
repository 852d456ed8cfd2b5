package ledger

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"PickLedger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"), time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func at(dayOfMonth, hour int) time.Time {
	return time.Date(2025, 3, dayOfMonth, hour, 0, 0, 0, time.UTC)
}

func newEntry(symbol string, cat model.Category, price float64, when time.Time) *model.Entry {
	return &model.Entry{
		Symbol:         symbol,
		Name:           "name-" + symbol,
		Category:       cat,
		Action:         "买入",
		AIScore:        80,
		Signal:         "放量突破",
		Reason:         "test",
		EntryPrice:     price,
		EntryDate:      when,
		CurrentPrice:   price,
		PriceUpdatedAt: when,
	}
}

func TestSQLiteStore_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e := newEntry("600519", model.CategoryValue, 1680.50, at(1, 10))
	id, err := s.Insert(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, id, e.ID)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "600519", got.Symbol)
	assert.Equal(t, model.StatusOpen, got.Status)
	assert.Equal(t, 1680.50, got.EntryPrice)
	assert.True(t, got.EntryDate.Equal(at(1, 10)))
	assert.True(t, got.CloseDate.IsZero())
	assert.Empty(t, got.CloseReason)

	_, err = s.Get(ctx, id+100)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSQLiteStore_InsertValidation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Insert(context.Background(), newEntry("600519", model.CategoryValue, 0, at(1, 10)))
	assert.True(t, model.IsValidation(err))

	_, err = s.Insert(context.Background(), newEntry("", model.CategoryValue, 10, at(1, 10)))
	assert.True(t, model.IsValidation(err))
}

func TestSQLiteStore_DedupPerDay(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Insert(ctx, newEntry("000001", model.CategoryTrend, 10, at(3, 9)))
	require.NoError(t, err)

	_, err = s.Insert(ctx, newEntry("000001", model.CategoryTrend, 11, at(3, 14)))
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = s.Insert(ctx, newEntry("000001", model.CategoryValue, 11, at(3, 14)))
	assert.NoError(t, err, "a different category is a different entry")

	_, err = s.Insert(ctx, newEntry("000001", model.CategoryTrend, 12, at(4, 9)))
	assert.NoError(t, err, "a different day is a different entry")

	found, err := s.FindBySymbolCategoryDay(ctx, "000001", model.CategoryTrend, at(3, 23))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 10.0, found.EntryPrice)

	missing, err := s.FindBySymbolCategoryDay(ctx, "000001", model.CategoryTrend, at(5, 9))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStore_ConcurrentInsertsKeepOne(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Insert(ctx, newEntry("300750", model.CategoryShortTerm, 200, at(6, 10)))
			if err == nil {
				mu.Lock()
				inserted++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrDuplicate) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
	page, err := s.Query(ctx, Filter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestSQLiteStore_QueryFiltersAndPaging(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for d := 1; d <= 5; d++ {
		_, err := s.Insert(ctx, newEntry("600036", model.CategoryTrend, 30, at(d, 10)))
		require.NoError(t, err)
		_, err = s.Insert(ctx, newEntry("600036", model.CategoryValue, 30, at(d, 11)))
		require.NoError(t, err)
	}

	page, err := s.Query(ctx, Filter{Category: model.CategoryTrend}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Entries, 2)
	assert.True(t, page.Entries[0].EntryDate.Equal(at(5, 10)), "newest first")
	assert.True(t, page.Entries[1].EntryDate.Equal(at(4, 10)))

	page, err = s.Query(ctx, Filter{Category: model.CategoryTrend}, 3, 2)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.True(t, page.Entries[0].EntryDate.Equal(at(1, 10)))

	page, err = s.Query(ctx, Filter{From: at(2, 0), To: at(3, 23)}, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)

	page, err = s.Query(ctx, Filter{}, 0, 10)
	require.NoError(t, err, "invalid page bounds are not an error")
	assert.Empty(t, page.Entries)
	assert.Equal(t, 10, page.Total)

	page, err = s.Query(ctx, Filter{}, 1, 1000)
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, page.PageSize)
}

func TestSQLiteStore_UpdatePriceOnlyTouchesOpen(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := newEntry("600519", model.CategoryTrend, 100, at(1, 10))
	b := newEntry("600519", model.CategoryValue, 100, at(1, 10))
	c := newEntry("000858", model.CategoryValue, 50, at(1, 10))
	for _, e := range []*model.Entry{a, b, c} {
		_, err := s.Insert(ctx, e)
		require.NoError(t, err)
	}
	require.NoError(t, s.ClosePosition(ctx, b.ID, 105, at(2, 10), model.CloseManual))

	n, err := s.UpdatePrice(ctx, "600519", 110, at(3, 10))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 110.0, got.CurrentPrice)
	assert.True(t, got.PriceUpdatedAt.Equal(at(3, 10)))

	closed, err := s.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, closed.CurrentPrice, "closed entries are frozen")

	n, err = s.UpdatePrice(ctx, "999999", 1, at(3, 10))
	require.NoError(t, err)
	assert.Zero(t, n)

	symbols, err := s.ListOpenSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"000858", "600519"}, symbols)
}

func TestSQLiteStore_ClosePositionOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e := newEntry("600519", model.CategoryValue, 1680.50, at(1, 10))
	_, err := s.Insert(ctx, e)
	require.NoError(t, err)

	require.NoError(t, s.ClosePosition(ctx, e.ID, 1700, at(8, 10), model.CloseManual))

	err = s.ClosePosition(ctx, e.ID, 1800, at(9, 10), model.CloseProfit)
	assert.ErrorIs(t, err, model.ErrAlreadyClosed)

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, got.Status)
	assert.Equal(t, 1700.0, got.ClosePrice)
	assert.True(t, got.CloseDate.Equal(at(8, 10)))
	assert.Equal(t, model.CloseManual, got.CloseReason)

	assert.ErrorIs(t, s.ClosePosition(ctx, 12345, 1, at(9, 10), model.CloseManual), model.ErrNotFound)
}

func TestSQLiteStore_ClosePositionBeforeEntryRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e := newEntry("600519", model.CategoryValue, 100, at(5, 10))
	_, err := s.Insert(ctx, e)
	require.NoError(t, err)

	err = s.ClosePosition(ctx, e.ID, 100, at(4, 10), model.CloseManual)
	assert.True(t, model.IsValidation(err))

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOpen())
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := NewSQLiteStore(path, time.UTC)
	require.NoError(t, err)
	_, err = s.Insert(context.Background(), newEntry("601318", model.CategoryValue, 45, at(2, 10)))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path, time.UTC)
	require.NoError(t, err)
	defer s.Close()
	entries, err := s.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "601318", entries[0].Symbol)
}

func TestSQLiteStore_RejectsNonFinitePrices(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id, err := s.Insert(ctx, newEntry("600519", model.CategoryTrend, 100, at(3, 10)))
	require.NoError(t, err)

	for _, p := range []float64{math.Inf(1), math.Inf(-1), math.NaN(), 0} {
		_, err := s.UpdatePrice(ctx, "600519", p, at(4, 10))
		assert.True(t, model.IsValidation(err), "update %v", p)
		err = s.ClosePosition(ctx, id, p, at(4, 10), model.CloseManual)
		assert.True(t, model.IsValidation(err), "close %v", p)
	}

	e, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, e.IsOpen())
	assert.Equal(t, 100.0, e.CurrentPrice)
}

func TestSQLiteStore_QueryHugePageIsEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Insert(ctx, newEntry("600519", model.CategoryTrend, 100, at(3, 10)))
	require.NoError(t, err)

	p, err := s.Query(ctx, Filter{}, math.MaxInt/100+2, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Total)
	assert.Empty(t, p.Entries)
}
