package api

import (
	"time"

	"PickLedger/internal/model"
	"PickLedger/internal/performance"

	"github.com/shopspring/decimal"
)

func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

func roundAll(vs []float64, places int32) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = round(v, places)
	}
	return out
}

func optTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type entryDTO struct {
	ID             int64      `json:"id"`
	Symbol         string     `json:"symbol"`
	Name           string     `json:"name"`
	Category       string     `json:"category"`
	Recommendation string     `json:"recommendation"`
	AIScore        int        `json:"ai_score"`
	Signal         string     `json:"signal"`
	Reason         string     `json:"reason"`
	EntryPrice     float64    `json:"entry_price"`
	EntryDate      time.Time  `json:"entry_date"`
	CurrentPrice   float64    `json:"current_price"`
	PriceUpdatedAt *time.Time `json:"price_updated_at,omitempty"`
	Status         string     `json:"status"`
	ClosePrice     *float64   `json:"close_price,omitempty"`
	CloseDate      *time.Time `json:"close_date,omitempty"`
	CloseReason    string     `json:"close_reason,omitempty"`
	ProfitPercent  float64    `json:"profit_percent"`
	HoldingDays    int        `json:"holding_days"`
}

func toEntryDTO(e *model.Entry, now time.Time) entryDTO {
	d := entryDTO{
		ID:             e.ID,
		Symbol:         e.Symbol,
		Name:           e.Name,
		Category:       string(e.Category),
		Recommendation: e.Action,
		AIScore:        e.AIScore,
		Signal:         e.Signal,
		Reason:         e.Reason,
		EntryPrice:     e.EntryPrice,
		EntryDate:      e.EntryDate,
		CurrentPrice:   e.LatestPrice(),
		PriceUpdatedAt: optTime(e.PriceUpdatedAt),
		Status:         string(e.Status),
		ProfitPercent:  round(e.ProfitPercent(), 2),
		HoldingDays:    e.HoldingDays(now),
	}
	if !e.IsOpen() {
		cp := e.ClosePrice
		d.ClosePrice = &cp
		d.CloseDate = optTime(e.CloseDate)
		d.CloseReason = string(e.CloseReason)
	}
	return d
}

type pageDTO struct {
	Records  []entryDTO `json:"records"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

func toSummaryDTO(s performance.Summary) performance.Summary {
	s.TotalReturnPct = round(s.TotalReturnPct, 2)
	s.WinRatePct = round(s.WinRatePct, 1)
	s.AvgHoldingDays = round(s.AvgHoldingDays, 1)
	s.BestProfitPct = round(s.BestProfitPct, 2)
	s.WorstLossPct = round(s.WorstLossPct, 2)
	s.AvgScore = round(s.AvgScore, 1)
	return s
}

func toCurveDTO(c performance.Curve) performance.Curve {
	c.DailyReturnPct = roundAll(c.DailyReturnPct, 2)
	c.CumulativeReturnPct = roundAll(c.CumulativeReturnPct, 2)
	return c
}

type closeRequest struct {
	ClosePrice *float64 `json:"close_price"`
	Reason     string   `json:"reason"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
