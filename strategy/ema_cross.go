package strategy

import (
	"github.com/evdnx/papertrader/indicator"
	"github.com/evdnx/papertrader/types"
)

// crossATRPeriod is fixed for the EMA-cross variant regardless of Params.
const crossATRPeriod = 14

// EMACross buys the bar where the fast EMA crosses above the slow one while
// RSI is above a flat threshold and price holds above the slow EMA. The HTF
// window is ignored.
type EMACross struct{}

func (EMACross) Evaluate(ltf, _ []types.Candle, p Params) types.Signal {
	need := p.EmaSlow + p.RsiPeriod + crossATRPeriod
	if need < 100 {
		need = 100
	}
	if len(ltf) < need {
		return types.Signal{}
	}
	closes := indicator.Closes(ltf)
	fast := indicator.EMA(closes, p.EmaFast)
	slow := indicator.EMA(closes, p.EmaSlow)
	rsi := indicator.Last(indicator.RSI(closes, p.RsiPeriod))
	atr := indicator.Last(indicator.ATR(ltf, crossATRPeriod))
	close := indicator.Last(closes)

	fNow, fPrev := indicator.Last(fast), indicator.Prev(fast)
	sNow, sPrev := indicator.Last(slow), indicator.Prev(slow)
	if !allFinite(fNow, fPrev, sNow, sPrev, rsi, atr, close) {
		return types.Signal{}
	}
	crossUp := fPrev <= sPrev && fNow > sNow
	if !crossUp || rsi <= p.RsiThreshold || close <= sNow {
		return types.Signal{}
	}
	return longSignal(close, atr, p.RiskK, p.TpR)
}
