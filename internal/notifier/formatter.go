package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"PickLedger/internal/model"
	"PickLedger/internal/performance"
	"PickLedger/internal/refresher"
	"PickLedger/internal/strategy"

	"github.com/shopspring/decimal"
)

// maxOpenLines caps the /open listing.
const maxOpenLines = 20

var reasonLabels = map[model.CloseReason]string{
	model.CloseManual:  "手动平仓",
	model.CloseProfit:  "止盈",
	model.CloseLoss:    "止损",
	model.CloseExpired: "到期",
}

// pct renders v with a sign and the given number of decimal places.
func pct(v float64, places int32) string {
	d := decimal.NewFromFloat(v).Round(places)
	s := d.StringFixed(places)
	if d.IsPositive() {
		s = "+" + s
	}
	return s + "%"
}

// Messages are sent with parse_mode HTML, so every free-text field is escaped.

// FormatSummary formats window statistics for display.
func FormatSummary(s performance.Summary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>推荐回测汇总</b> | %s\n\n", s.Window))
	b.WriteString(fmt.Sprintf("推荐总数: %d (持仓 %d / 已平 %d)\n", s.TotalCount, s.OpenCount, s.ClosedCount))
	b.WriteString(fmt.Sprintf("平均收益: %s\n", pct(s.TotalReturnPct, 2)))
	b.WriteString(fmt.Sprintf("胜率: %s%%\n", decimal.NewFromFloat(s.WinRatePct).StringFixed(1)))
	b.WriteString(fmt.Sprintf("最佳: %s | 最差: %s\n", pct(s.BestProfitPct, 2), pct(s.WorstLossPct, 2)))
	b.WriteString(fmt.Sprintf("平均持有: %s 天\n", decimal.NewFromFloat(s.AvgHoldingDays).StringFixed(1)))
	b.WriteString(fmt.Sprintf("平均评分: %s\n", decimal.NewFromFloat(s.AvgScore).StringFixed(1)))
	return b.String()
}

// FormatRefresh formats a refresh cycle result.
func FormatRefresh(r refresher.Result) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🔄 <b>价格刷新</b>\n\n更新: %d 只 (%d 条记录)\n", r.Updated, r.Entries))
	if len(r.Failed) > 0 {
		b.WriteString(fmt.Sprintf("失败: %s\n", html.EscapeString(strings.Join(r.Failed, ", "))))
	}
	return b.String()
}

// FormatAutoClose formats the positions closed by a sweep. It returns an
// empty string when nothing was closed.
func FormatAutoClose(r strategy.SweepResult) string {
	if len(r.Closed) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🔔 <b>自动平仓</b> | %d 笔\n\n", len(r.Closed)))
	for _, c := range r.Closed {
		b.WriteString(fmt.Sprintf("• %s %s [%s] %s\n  %s\n",
			html.EscapeString(c.Symbol), html.EscapeString(c.Entry.Name), reasonLabels[c.Reason],
			pct(c.Entry.ProfitPercent(), 2), html.EscapeString(c.Detail)))
	}
	return b.String()
}

// FormatOpen lists open positions, newest first.
func FormatOpen(entries []model.Entry, now time.Time) string {
	if len(entries) == 0 {
		return "当前无持仓记录"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 <b>当前持仓</b> | %d 条\n\n", len(entries)))
	for i := range entries {
		if i == maxOpenLines {
			b.WriteString(fmt.Sprintf("… 另有 %d 条\n", len(entries)-maxOpenLines))
			break
		}
		e := &entries[i]
		b.WriteString(fmt.Sprintf("• %s %s %s | %d 天\n", html.EscapeString(e.Symbol), html.EscapeString(e.Name),
			pct(e.ProfitPercent(), 2), e.HoldingDays(now)))
	}
	return b.String()
}
