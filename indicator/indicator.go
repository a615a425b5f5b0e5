// Package indicator implements the pure price-series indicators used by the
// strategy evaluators. Every function returns a slice aligned with its input.
package indicator

import (
	"math"

	"github.com/evdnx/papertrader/types"
)

// eps guards every division by a value that may be zero.
const eps = 1e-12

// EMA is the exponential moving average with alpha 2/(n+1), seeded with the
// first value.
func EMA(series []float64, n int) []float64 {
	if n <= 0 {
		n = 1
	}
	return ewm(series, 2/(float64(n)+1))
}

// ewm is the recursive smoothing y[i] = a*x[i] + (1-a)*y[i-1], y[0] = x[0].
func ewm(series []float64, alpha float64) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 {
		return out
	}
	out[0] = series[0]
	for i := 1; i < len(series); i++ {
		out[i] = alpha*series[i] + (1-alpha)*out[i-1]
	}
	return out
}

func wilder(series []float64, n int) []float64 {
	if n <= 0 {
		n = 1
	}
	return ewm(series, 1/float64(n))
}

// RSI is Wilder's relative strength index. The first bar has no change and
// contributes zero gain and loss.
func RSI(close []float64, n int) []float64 {
	up := make([]float64, len(close))
	dn := make([]float64, len(close))
	for i := 1; i < len(close); i++ {
		d := close[i] - close[i-1]
		if d > 0 {
			up[i] = d
		} else {
			dn[i] = -d
		}
	}
	avgUp := wilder(up, n)
	avgDn := wilder(dn, n)
	out := make([]float64, len(close))
	for i := range close {
		loss := avgDn[i]
		if loss == 0 {
			loss = eps
		}
		rs := avgUp[i] / loss
		out[i] = clamp(100-100/(1+rs), 0, 100)
	}
	return out
}

// TrueRange is max(H-L, |H-prevC|, |L-prevC|). The first bar has no
// previous close and falls back to H-L.
func TrueRange(candles []types.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		tr := c.High - c.Low
		if i > 0 {
			pc := candles[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(c.High-pc), math.Abs(c.Low-pc)))
		}
		out[i] = tr
	}
	return out
}

// ATR is the Wilder-smoothed true range.
func ATR(candles []types.Candle, n int) []float64 {
	return wilder(TrueRange(candles), n)
}

// ADX is the average directional index.
func ADX(candles []types.Candle, n int) []float64 {
	size := len(candles)
	plusDM := make([]float64, size)
	minusDM := make([]float64, size)
	for i := 1; i < size; i++ {
		up := candles[i].High - candles[i-1].High
		dn := candles[i-1].Low - candles[i].Low
		if up > dn && up > 0 {
			plusDM[i] = up
		}
		if dn > up && dn > 0 {
			minusDM[i] = dn
		}
	}
	atr := ATR(candles, n)
	plus := wilder(plusDM, n)
	minus := wilder(minusDM, n)
	dx := make([]float64, size)
	for i := 0; i < size; i++ {
		tr := nonZero(atr[i])
		pdi := 100 * plus[i] / tr
		mdi := 100 * minus[i] / tr
		dx[i] = math.Abs(pdi-mdi) / nonZero(pdi+mdi) * 100
	}
	return wilder(dx, n)
}

// ATRPercent expresses ATR as a percentage of the close.
func ATRPercent(atr, close []float64) []float64 {
	out := make([]float64, len(atr))
	for i := range atr {
		if i >= len(close) {
			break
		}
		out[i] = atr[i] / nonZero(close[i]) * 100
	}
	return out
}

// PercentRankLast returns the share (0-100) of the trailing window values
// that are <= the last value. With fewer than max(50, window) observations
// it returns def.
func PercentRankLast(series []float64, window int, def float64) float64 {
	need := window
	if need < 50 {
		need = 50
	}
	if window <= 0 || len(series) < need {
		return def
	}
	ref := series[len(series)-window:]
	last := ref[len(ref)-1]
	count := 0
	for _, v := range ref {
		if v <= last {
			count++
		}
	}
	return float64(count) / float64(len(ref)) * 100
}

// Closes extracts the close column.
func Closes(candles []types.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Last returns the final element or NaN for an empty series.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

// Prev returns the element before the last or NaN.
func Prev(series []float64) float64 {
	if len(series) < 2 {
		return math.NaN()
	}
	return series[len(series)-2]
}

func nonZero(v float64) float64 {
	if v == 0 {
		return eps
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
