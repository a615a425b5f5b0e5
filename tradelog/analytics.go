package tradelog

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/evdnx/papertrader/types"
)

// Trade is an OPEN row joined with its CLOSE row, if any.
type Trade struct {
	ID      string
	Symbol  string
	Profile string
	Side    types.Side
	OpenTS  time.Time
	EntryPx float64
	StopPx  float64
	Qty     float64

	Closed  bool
	CloseTS time.Time
	ExitPx  float64
	PnL     float64
	R       float64
	Reason  types.Reason
	// Equity is the logged equity after the close, or start balance plus the
	// PnL realized up to this close when the log did not carry it. Zero while
	// the trade is open.
	Equity float64
}

func (t Trade) Win() bool { return t.Closed && t.PnL >= 0 }

// Join pairs OPEN and CLOSE rows by id, ordered by open time. A CLOSE without
// an OPEN is ignored.
func Join(records []types.TradeRecord, startBalance float64) []Trade {
	closes := make(map[string]types.TradeRecord)
	for _, r := range records {
		if r.Event == types.EventClose {
			closes[r.ID] = r
		}
	}
	var trades []Trade
	for _, r := range records {
		if r.Event != types.EventOpen {
			continue
		}
		t := Trade{
			ID:      r.ID,
			Symbol:  r.Symbol,
			Profile: r.Profile,
			Side:    r.Side,
			OpenTS:  r.TS,
			EntryPx: r.EntryPx,
			StopPx:  r.StopPx,
			Qty:     r.Qty,
		}
		if c, ok := closes[r.ID]; ok {
			t.Closed = true
			t.CloseTS = c.TS
			t.ExitPx = c.ExitPx
			t.PnL = c.PnL
			t.R = c.PnLR
			t.Reason = c.Reason
			if c.HasEquity {
				t.Equity = c.Equity
			} else {
				t.Equity = math.NaN()
			}
		}
		trades = append(trades, t)
	}
	sort.SliceStable(trades, func(i, j int) bool { return trades[i].OpenTS.Before(trades[j].OpenTS) })

	cum := 0.0
	for _, i := range closeOrder(trades) {
		cum += trades[i].PnL
		if math.IsNaN(trades[i].Equity) {
			trades[i].Equity = startBalance + cum
		}
	}
	return trades
}

// closeOrder returns the indexes of the closed trades sorted by close time.
// Ties keep open order.
func closeOrder(trades []Trade) []int {
	var idx []int
	for i, t := range trades {
		if t.Closed {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return trades[idx[a]].CloseTS.Before(trades[idx[b]].CloseTS) })
	return idx
}

// Stats aggregates the closed trades.
type Stats struct {
	Trades       int
	Wins         int
	Losses       int
	WinRate      float64 // percent
	PnLTotal     float64
	AvgR         float64
	Best         float64
	Worst        float64
	LastEquity   float64
	MaxDrawdown  float64 // worst peak-to-trough of closed-trade equity, <= 0
	ProfitFactor float64 // NaN without losing trades
	Expectancy   float64
}

// Summarize computes Stats over the closed trades in trades, walking them in
// close order. The drawdown peak starts at startBalance.
func Summarize(trades []Trade, startBalance float64) Stats {
	s := Stats{LastEquity: startBalance, ProfitFactor: math.NaN()}
	var sumR, grossWin, grossLoss float64
	peak := startBalance
	for _, i := range closeOrder(trades) {
		t := trades[i]
		if s.Trades == 0 || t.PnL > s.Best {
			s.Best = t.PnL
		}
		if s.Trades == 0 || t.PnL < s.Worst {
			s.Worst = t.PnL
		}
		s.Trades++
		if t.Win() {
			s.Wins++
		}
		s.PnLTotal += t.PnL
		sumR += t.R
		if t.PnL > 0 {
			grossWin += t.PnL
		} else {
			grossLoss -= t.PnL
		}
		s.LastEquity = t.Equity
		if t.Equity > peak {
			peak = t.Equity
		}
		if peak > 0 {
			s.MaxDrawdown = math.Min(s.MaxDrawdown, t.Equity/peak-1)
		}
	}
	if s.Trades == 0 {
		return s
	}
	s.Losses = s.Trades - s.Wins
	s.WinRate = float64(s.Wins) / float64(s.Trades) * 100
	s.AvgR = sumR / float64(s.Trades)
	s.Expectancy = s.PnLTotal / float64(s.Trades)
	if grossLoss > 0 {
		s.ProfitFactor = grossWin / grossLoss
	}
	return s
}

func (s Stats) String() string {
	pf := "n/a"
	if !math.IsNaN(s.ProfitFactor) {
		pf = fmt.Sprintf("%.2f", s.ProfitFactor)
	}
	return fmt.Sprintf("trades=%d wins=%d losses=%d winrate=%.1f%% pnl=%.2f avgR=%.2f best=%.2f worst=%.2f equity=%.2f maxDD=%.2f%% pf=%s expectancy=%.2f",
		s.Trades, s.Wins, s.Losses, s.WinRate, s.PnLTotal, s.AvgR, s.Best, s.Worst,
		s.LastEquity, s.MaxDrawdown*100, pf, s.Expectancy)
}

// Group is one row of a breakdown table.
type Group struct {
	Key     string
	Trades  int
	WinRate float64
	PnL     float64
	AvgR    float64
}

// BySymbol groups closed trades by symbol, best PnL first.
func BySymbol(trades []Trade) []Group {
	return sortByPnL(groupBy(trades, func(t Trade) string { return t.Symbol }))
}

// ByProfile groups closed trades by profile, best PnL first.
func ByProfile(trades []Trade) []Group {
	return sortByPnL(groupBy(trades, func(t Trade) string { return t.Profile }))
}

// ByDay groups closed trades by UTC close date, oldest first.
func ByDay(trades []Trade) []Group {
	out := groupBy(trades, func(t Trade) string { return t.CloseTS.UTC().Format("2006-01-02") })
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func groupBy(trades []Trade, key func(Trade) string) []Group {
	idx := make(map[string]int)
	var out []Group
	wins := make(map[string]int)
	for _, t := range trades {
		if !t.Closed {
			continue
		}
		k := key(t)
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Group{Key: k})
		}
		out[i].Trades++
		out[i].PnL += t.PnL
		out[i].AvgR += t.R
		if t.Win() {
			wins[k]++
		}
	}
	for i := range out {
		n := float64(out[i].Trades)
		out[i].AvgR /= n
		out[i].WinRate = float64(wins[out[i].Key]) / n * 100
	}
	return out
}

func sortByPnL(gs []Group) []Group {
	sort.SliceStable(gs, func(i, j int) bool { return gs[i].PnL > gs[j].PnL })
	return gs
}

// FormatGroups renders a breakdown as aligned text.
func FormatGroups(title string, gs []Group) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", title)
	for _, g := range gs {
		fmt.Fprintf(&b, "  %-14s trades=%-4d winrate=%5.1f%% pnl=%10.2f avgR=%5.2f\n",
			g.Key, g.Trades, g.WinRate, g.PnL, g.AvgR)
	}
	return b.String()
}
