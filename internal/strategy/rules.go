package strategy

import (
	"fmt"
	"time"

	"PickLedger/internal/model"
)

// StopConfig holds the exit thresholds applied to open entries.
type StopConfig struct {
	StopProfitPct  float64 `json:"stop_profit_pct"`
	StopLossPct    float64 `json:"stop_loss_pct"`
	MaxHoldingDays int     `json:"max_holding_days"`
	AutoClose      bool    `json:"auto_close"`
}

// DefaultStopConfig is used when no state file exists yet.
var DefaultStopConfig = StopConfig{
	StopProfitPct:  15,
	StopLossPct:    -8,
	MaxHoldingDays: 30,
	AutoClose:      true,
}

// Validate checks threshold signs.
func (c StopConfig) Validate() error {
	if c.StopProfitPct <= 0 {
		return &model.ValidationError{Field: "stop_profit_pct", Reason: "must be positive"}
	}
	if c.StopLossPct >= 0 {
		return &model.ValidationError{Field: "stop_loss_pct", Reason: "must be negative"}
	}
	if c.MaxHoldingDays <= 0 {
		return &model.ValidationError{Field: "max_holding_days", Reason: "must be positive"}
	}
	return nil
}

// rules are checked in order; the first match wins.
var rules = []struct {
	Reason model.CloseReason
	Match  func(e *model.Entry, c StopConfig, now time.Time) bool
}{
	{model.CloseProfit, func(e *model.Entry, c StopConfig, _ time.Time) bool {
		return e.ProfitPercent() >= c.StopProfitPct
	}},
	{model.CloseLoss, func(e *model.Entry, c StopConfig, _ time.Time) bool {
		return e.ProfitPercent() <= c.StopLossPct
	}},
	{model.CloseExpired, func(e *model.Entry, c StopConfig, now time.Time) bool {
		return e.HoldingDays(now) >= c.MaxHoldingDays
	}},
}

// Evaluate reports whether an open entry should be closed as of now, and why.
// Closed entries never match.
func Evaluate(e *model.Entry, c StopConfig, now time.Time) (model.CloseReason, bool) {
	if !e.IsOpen() {
		return "", false
	}
	for _, r := range rules {
		if r.Match(e, c, now) {
			return r.Reason, true
		}
	}
	return "", false
}

// Describe renders the trigger for logs and notifications.
func Describe(e *model.Entry, reason model.CloseReason, c StopConfig) string {
	switch reason {
	case model.CloseProfit:
		return fmt.Sprintf("止盈 %.2f%% >= %.2f%%", e.ProfitPercent(), c.StopProfitPct)
	case model.CloseLoss:
		return fmt.Sprintf("止损 %.2f%% <= %.2f%%", e.ProfitPercent(), c.StopLossPct)
	case model.CloseExpired:
		return fmt.Sprintf("持有期满 %d 天", c.MaxHoldingDays)
	default:
		return string(reason)
	}
}
