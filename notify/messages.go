package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/evdnx/papertrader/types"
)

func Started(symbols []string, ltf, htf, strategy string) string {
	return fmt.Sprintf("🤖 Paper trader started: %s | %s/%s | %s",
		strategy, ltf, htf, strings.Join(symbols, ", "))
}

func Stopped(equity float64) string {
	return fmt.Sprintf("🛑 Paper trader stopped. Equity: %.2f", equity)
}

func Opened(p types.Position, equity float64) string {
	return fmt.Sprintf("📈 <b>OPEN</b> %s %s [%s]\nqty=%.6f\nentry=%.6f sl=%.6f tp=%.6f\nequity=%.2f",
		html.EscapeString(p.Symbol), p.Side, strings.ToUpper(html.EscapeString(p.Profile)),
		p.Qty, p.Entry, p.StopLoss, p.TakeProfit, equity)
}

func Closed(p types.Position, reason types.Reason, exit, pnl, pnlR, equity float64) string {
	label := string(reason)
	if reason == types.ReasonProfitTake {
		label = "Profit locked"
	}
	return fmt.Sprintf("✅ <b>%s</b> %s [%s]\nexit=%.6f\nPnL=%.6f (R=%.3f)\nEquity=%.2f",
		label, html.EscapeString(p.Symbol), html.EscapeString(p.Profile), exit, pnl, pnlR, equity)
}

func Paused(why string, until time.Time) string {
	return fmt.Sprintf("⏸️ <b>Paused</b> (%s). Resumes: %s", why, until.UTC().Format(time.RFC3339))
}

func DataError(symbol string, err error) string {
	msg := err.Error()
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return fmt.Sprintf("⚠️ Data error %s: %s", html.EscapeString(symbol), html.EscapeString(msg))
}

// Summary renders the periodic digest.
func Summary(every time.Duration, trades, wins, losses int, pnl, equity float64) string {
	wr := 0.0
	if trades > 0 {
		wr = float64(wins) / float64(trades) * 100
	}
	return fmt.Sprintf("🕒 Summary %dm\nTrades: %d | Win: %d | Loss: %d\nWR: %.1f%% | PnL: %.6f\nEquity: %.2f",
		int(every.Minutes()), trades, wins, losses, wr, pnl, equity)
}
