package model

import (
	"math"
	"strconv"
	"time"
)

// Category is the strategy class a recommendation was issued under.
type Category string

const (
	CategoryShortTerm Category = "shortterm"
	CategoryTrend     Category = "trend"
	CategoryValue     Category = "value"
)

// Categories lists every valid category.
var Categories = []Category{CategoryShortTerm, CategoryTrend, CategoryValue}

// ParseCategory validates a category string.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", &ValidationError{Field: "category", Reason: "unknown category " + strconv.Quote(s)}
}

// Status is the lifecycle state of an entry.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// ParseStatus validates a status string. "active" is accepted as an alias
// for open since older clients send it.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "open", "active":
		return StatusOpen, nil
	case "closed":
		return StatusClosed, nil
	}
	return "", &ValidationError{Field: "status", Reason: "unknown status " + strconv.Quote(s)}
}

// CloseReason records why a position was closed.
type CloseReason string

const (
	CloseManual  CloseReason = "manual"
	CloseProfit  CloseReason = "profit"
	CloseLoss    CloseReason = "loss"
	CloseExpired CloseReason = "expired"
)

// ParseCloseReason validates a close reason. Empty means manual.
func ParseCloseReason(s string) (CloseReason, error) {
	switch CloseReason(s) {
	case "":
		return CloseManual, nil
	case CloseManual, CloseProfit, CloseLoss, CloseExpired:
		return CloseReason(s), nil
	}
	return "", &ValidationError{Field: "reason", Reason: "unknown close reason " + strconv.Quote(s)}
}

// Entry is one tracked hypothetical position arising from a recommendation.
type Entry struct {
	ID       int64
	Symbol   string
	Name     string
	Category Category
	Action   string
	AIScore  int
	Signal   string
	Reason   string

	EntryPrice float64
	EntryDate  time.Time

	CurrentPrice   float64
	PriceUpdatedAt time.Time

	Status      Status
	ClosePrice  float64
	CloseDate   time.Time
	CloseReason CloseReason
}

// IsOpen reports whether the entry still receives price updates.
func (e *Entry) IsOpen() bool { return e.Status == StatusOpen }

// LatestPrice is the close price for closed entries, otherwise the last
// observed price, falling back to the entry price.
func (e *Entry) LatestPrice() float64 {
	if e.Status == StatusClosed {
		return e.ClosePrice
	}
	if e.CurrentPrice > 0 {
		return e.CurrentPrice
	}
	return e.EntryPrice
}

// ProfitPercent is the paper return of the entry in percent.
func (e *Entry) ProfitPercent() float64 {
	if e.EntryPrice <= 0 {
		return 0
	}
	return (e.LatestPrice()/e.EntryPrice - 1) * 100
}

// HoldingDays counts whole days from entry to close, or to now while open.
func (e *Entry) HoldingDays(now time.Time) int {
	end := now
	if e.Status == StatusClosed {
		end = e.CloseDate
	}
	d := end.Sub(e.EntryDate)
	if d <= 0 {
		return 0
	}
	return int(math.Floor(d.Hours() / 24))
}

// ValidPrice reports whether p is a positive finite price.
func ValidPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0)
}

// Validate checks the fields required before an entry can be stored.
func (e *Entry) Validate() error {
	switch {
	case e.Symbol == "":
		return &ValidationError{Field: "symbol", Reason: "required"}
	case e.Name == "":
		return &ValidationError{Field: "name", Reason: "required"}
	case !ValidPrice(e.EntryPrice):
		return &ValidationError{Field: "entry_price", Reason: "must be positive"}
	case e.AIScore < 0 || e.AIScore > 100:
		return &ValidationError{Field: "ai_score", Reason: "must be within 0..100"}
	case e.EntryDate.IsZero():
		return &ValidationError{Field: "entry_date", Reason: "required"}
	}
	if _, err := ParseCategory(string(e.Category)); err != nil {
		return err
	}
	return nil
}

// DayKey formats the calendar day of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(DayLayout)
}

// DayLayout is the layout of calendar-day keys.
const DayLayout = "2006-01-02"

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
