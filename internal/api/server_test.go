package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"PickLedger/internal/closer"
	"PickLedger/internal/ledger"
	"PickLedger/internal/model"
	"PickLedger/internal/performance"
	"PickLedger/internal/quote"
	"PickLedger/internal/recorder"
	"PickLedger/internal/refresher"
	"PickLedger/internal/scheduler"
	"PickLedger/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	srv   *Server
	store *ledger.SQLiteStore
	src   *quote.MockSource
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := ledger.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"), time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := func() time.Time { return now }
	src := quote.NewMockSource(nil)

	calc := performance.NewCalculator(store, time.UTC)
	calc.Now = clock
	cl := closer.New(store)
	cl.Now = clock
	stops, err := strategy.NewManager(filepath.Join(t.TempDir(), "stop.json"), strategy.DefaultStopConfig)
	require.NoError(t, err)
	ac := strategy.NewAutoCloser(store, cl, stops)
	ac.Now = clock
	ref := refresher.New(store, src)
	ref.Now = clock
	sched := scheduler.NewScheduler(context.Background(), time.UTC, store, ref, ac, calc, nil)

	srv := NewServer(":0", Deps{
		Store:      store,
		Recorder:   recorder.NewRecorder(store),
		Calculator: calc,
		Closer:     cl,
		Stops:      stops,
		AutoCloser: ac,
		Cycles:     sched,
		Now:        clock,
	})
	return &testEnv{srv: srv, store: store, src: src}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) seed(t *testing.T, symbol string, price float64, at time.Time) int64 {
	t.Helper()
	id, err := e.store.Insert(context.Background(), &model.Entry{
		Symbol: symbol, Name: symbol, Category: model.CategoryTrend, AIScore: 70,
		EntryPrice: price, EntryDate: at, CurrentPrice: price, PriceUpdatedAt: at,
	})
	require.NoError(t, err)
	return id
}

func TestHealth(t *testing.T) {
	env := newEnv(t)
	rec := env.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRecordBatch(t *testing.T) {
	env := newEnv(t)
	body := map[string]any{"recommendations": []map[string]any{
		{"symbol": "600519", "name": "贵州茅台", "recommendation": "buy", "ai_score": 82, "price": 1680.5},
		{"symbol": "600519", "name": "贵州茅台", "recommendation": "buy", "ai_score": 82, "price": 1681},
		{"symbol": "000858", "name": "五粮液", "ai_score": 70, "price": 0},
	}}
	rec := env.do(t, http.MethodPost, "/api/backtest/records?category=trend", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, recorder.BatchResult{Inserted: 1, Skipped: 1, Failed: 1}, decode[recorder.BatchResult](t, rec))
}

func TestRecordBatch_BadBody(t *testing.T) {
	env := newEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/backtest/records", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRecords_PaginatesNewestFirst(t *testing.T) {
	env := newEnv(t)
	for i := 0; i < 5; i++ {
		env.seed(t, "60000"+strconv.Itoa(i), 10, now.AddDate(0, 0, -i))
	}

	rec := env.do(t, http.MethodGet, "/api/backtest/records?period=7d&page=2&page_size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[pageDTO](t, rec)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "600002", page.Records[0].Symbol)
	assert.Equal(t, "600003", page.Records[1].Symbol)
	assert.Equal(t, 3, page.Records[1].HoldingDays)
}

func TestListRecords_InvalidQuery(t *testing.T) {
	env := newEnv(t)
	for _, path := range []string{
		"/api/backtest/records?period=1y",
		"/api/backtest/records?status=pending",
		"/api/backtest/records?category=growth",
		"/api/backtest/records?page=x",
	} {
		rec := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.NotEmpty(t, decode[errorResponse](t, rec).Error, path)
	}
}

func TestSummaryAndPerformance(t *testing.T) {
	env := newEnv(t)
	id := env.seed(t, "600519", 1680.50, now.AddDate(0, 0, -2))
	_, err := env.store.UpdatePrice(context.Background(), "600519", 1725, now)
	require.NoError(t, err)
	_ = id

	rec := env.do(t, http.MethodGet, "/api/backtest/summary?period=7d", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decode[performance.Summary](t, rec)
	assert.Equal(t, 1, sum.TotalCount)
	assert.Equal(t, 2.65, sum.TotalReturnPct)
	assert.Equal(t, 100.0, sum.WinRatePct)

	rec = env.do(t, http.MethodGet, "/api/backtest/performance?period=7d", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cv := decode[performance.Curve](t, rec)
	require.Len(t, cv.Dates, 7)
	assert.Equal(t, "2025-03-10", cv.Dates[6])
	assert.Equal(t, 2.65, cv.CumulativeReturnPct[6])
	assert.Equal(t, 1, cv.DailyCount[4])
}

func TestClosePosition(t *testing.T) {
	env := newEnv(t)
	id := env.seed(t, "600519", 1680.50, now.AddDate(0, 0, -7))
	path := "/api/backtest/close/" + strconv.FormatInt(id, 10)

	rec := env.do(t, http.MethodPost, path, map[string]any{"close_price": 1700})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	e := decode[entryDTO](t, rec)
	assert.Equal(t, "closed", e.Status)
	assert.Equal(t, "manual", e.CloseReason)
	assert.Equal(t, 1.16, e.ProfitPercent)
	assert.Equal(t, 7, e.HoldingDays)

	rec = env.do(t, http.MethodPost, path, map[string]any{"close_price": 1800})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/backtest/close/9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, path, map[string]any{"reason": "bored"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStopConfig(t *testing.T) {
	env := newEnv(t)
	rec := env.do(t, http.MethodGet, "/api/backtest/stop-config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, strategy.DefaultStopConfig, decode[strategy.StopConfig](t, rec))

	rec = env.do(t, http.MethodPost, "/api/backtest/stop-config", map[string]any{"stop_profit_pct": 10})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10.0, decode[strategy.StopConfig](t, rec).StopProfitPct)

	rec = env.do(t, http.MethodPost, "/api/backtest/stop-config", map[string]any{"stop_loss_pct": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshAndAutoClose(t *testing.T) {
	env := newEnv(t)
	win := env.seed(t, "600519", 100, now.AddDate(0, 0, -1))
	env.seed(t, "000858", 100, now.AddDate(0, 0, -1))
	env.src.SetPrice("600519", 120)
	env.src.SetPrice("000858", 101)

	rec := env.do(t, http.MethodPost, "/api/backtest/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c := decode[scheduler.Cycle](t, rec)
	assert.Equal(t, 2, c.Refresh.Updated)
	require.Len(t, c.Sweep.Closed, 1)
	assert.Equal(t, win, c.Sweep.Closed[0].ID)

	rec = env.do(t, http.MethodPost, "/api/backtest/check-auto-close", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[strategy.SweepResult](t, rec)
	assert.Equal(t, 1, res.Checked)
	assert.Empty(t, res.Closed)
}

func TestMetricsAndNotFound(t *testing.T) {
	env := newEnv(t)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/metrics", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/nope", nil).Code)
}

func TestWriteJSON_EncodeFailureIs500(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"x": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}
