package risk

import (
	"math"

	"github.com/shopspring/decimal"
)

// Limits bounds the notional of a single trade (or a single lot).
type Limits struct {
	MinNotional float64 // skip when the clamped notional is still below this
	MaxNotional float64 // 0 = unbounded
	QtyStep     float64 // exchange lot step, 0 = no rounding
}

// CalcQty sizes a position by fixed-fractional risk: the amount at risk is
// equity*riskFrac and one unit loses rValue when the stop is hit. The
// quantity is then clamped so the notional stays within lim. It returns 0
// when no admissible quantity exists.
func CalcQty(equity, riskFrac, rValue, price float64, lim Limits) float64 {
	if equity <= 0 || riskFrac <= 0 || rValue <= 0 || price <= 0 {
		return 0
	}
	qty := equity * riskFrac / rValue
	return clampNotional(qty, price, lim)
}

// CalcLotQty sizes one lot of a batch: capital is split evenly across lots,
// each lot notional is raised to the minimum and capped at MaxNotional/lots.
func CalcLotQty(capital float64, lots int, price float64, lim Limits) float64 {
	if capital <= 0 || lots <= 0 || price <= 0 {
		return 0
	}
	perLot := capital / float64(lots)
	if perLot < lim.MinNotional {
		perLot = lim.MinNotional
	}
	if lim.MaxNotional > 0 && perLot > lim.MaxNotional/float64(lots) {
		perLot = lim.MaxNotional / float64(lots)
	}
	return FloorToStep(perLot/price, lim.QtyStep)
}

func clampNotional(qty, price float64, lim Limits) float64 {
	notional := qty * price
	if notional < lim.MinNotional {
		qty = lim.MinNotional / price
	}
	if lim.MaxNotional > 0 && qty*price > lim.MaxNotional {
		qty = lim.MaxNotional / price
	}
	qty = FloorToStep(qty, lim.QtyStep)
	if qty <= 0 || qty*price < lim.MinNotional-1e-9 {
		return 0
	}
	return qty
}

// FloorToStep rounds qty down to a multiple of step using decimal arithmetic
// so steps like 0.001 do not drift.
func FloorToStep(qty, step float64) float64 {
	if step <= 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return qty
	}
	d := decimal.NewFromFloat(qty)
	s := decimal.NewFromFloat(step)
	out, _ := d.Div(s).Floor().Mul(s).Float64()
	return out
}

// Drawdown is the fractional loss of equity relative to start, floored at 0.
func Drawdown(start, equity float64) float64 {
	if start <= 0 {
		return 0
	}
	return math.Max(0, (start-equity)/start)
}

// Brake decides when new entries must pause.
type Brake struct {
	MaxDrawdown float64 // pause when Drawdown >= MaxDrawdown, 0 = disabled
	MaxLosses   int     // pause when losses >= MaxLosses, 0 = disabled
}

// Trip reports whether the brake fires and why ("drawdown" or "losses").
func (b Brake) Trip(start, equity float64, losses int) (bool, string) {
	if b.MaxDrawdown > 0 && Drawdown(start, equity) >= b.MaxDrawdown {
		return true, "drawdown"
	}
	if b.MaxLosses > 0 && losses >= b.MaxLosses {
		return true, "losses"
	}
	return false, ""
}
