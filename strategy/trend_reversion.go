package strategy

import (
	"math"

	"github.com/evdnx/papertrader/indicator"
	"github.com/evdnx/papertrader/types"
)

// TrendReversion trades RSI crosses gated by the HTF ADX regime. With a
// trending HTF it buys the mid-line cross above the slow EMA; in a ranging
// HTF it buys the exit from oversold.
type TrendReversion struct{}

func (TrendReversion) Evaluate(ltf, htf []types.Candle, p Params) types.Signal {
	if len(ltf) < p.MinBars() || len(htf) == 0 {
		return types.Signal{}
	}
	closes := indicator.Closes(ltf)
	emaSlow := indicator.Last(indicator.EMA(closes, p.EmaSlow))
	rsi := indicator.RSI(closes, p.RsiPeriod)
	rsiNow, rsiPrev := indicator.Last(rsi), indicator.Prev(rsi)
	atr := indicator.Last(indicator.ATR(ltf, p.AtrPeriod))
	adxHTF := indicator.Last(indicator.ADX(htf, p.AtrPeriod))
	close := indicator.Last(closes)
	if !allFinite(emaSlow, rsiNow, rsiPrev, atr, adxHTF, close) || atr <= 0 {
		return types.Signal{}
	}

	if atr/close*100 < p.MinAtrPct {
		return types.Signal{}
	}
	if math.Abs(close-emaSlow)/atr > p.MaxEmaDistAtr {
		return types.Signal{}
	}

	var trigger bool
	switch {
	case adxHTF >= p.AdxMin:
		trigger = close > emaSlow &&
			rsiPrev < p.RsiEntry && rsiNow >= p.RsiEntry &&
			rsiNow <= p.RsiCeiling
	case p.UseRsiReversion && adxHTF < p.AdxMinReversion:
		trigger = rsiPrev <= p.RsiRevLow && rsiNow > p.RsiRevLow
	}
	if !trigger {
		return types.Signal{}
	}
	return longSignal(close, atr, p.RiskK, p.TpR)
}
