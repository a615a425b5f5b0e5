package strategy

import (
	"math"

	"github.com/evdnx/papertrader/indicator"
	"github.com/evdnx/papertrader/types"
)

// EMAATR enters with the trend when the HTF ADX confirms it, RSI sits inside
// a band and current volatility ranks high enough against its own history.
// Short histories rank at 100 and always pass the volatility filter.
type EMAATR struct{}

func (EMAATR) Evaluate(ltf, htf []types.Candle, p Params) types.Signal {
	if len(ltf) < p.MinBars() || len(htf) == 0 {
		return types.Signal{}
	}
	closes := indicator.Closes(ltf)
	fast := indicator.Last(indicator.EMA(closes, p.EmaFast))
	slow := indicator.Last(indicator.EMA(closes, p.EmaSlow))
	rsi := indicator.Last(indicator.RSI(closes, p.RsiPeriod))
	atrSeries := indicator.ATR(ltf, p.AtrPeriod)
	atr := indicator.Last(atrSeries)
	adxHTF := indicator.Last(indicator.ADX(htf, p.AtrPeriod))
	close := indicator.Last(closes)
	if !allFinite(fast, slow, rsi, atr, adxHTF, close) || atr <= 0 {
		return types.Signal{}
	}

	if adxHTF < p.AdxMin {
		return types.Signal{}
	}
	if rsi < p.RsiMin || rsi > p.RsiMax {
		return types.Signal{}
	}
	rank := indicator.PercentRankLast(indicator.ATRPercent(atrSeries, closes), p.AtrRankWindow, 100)
	if rank < p.AtrPctThreshold {
		return types.Signal{}
	}
	if math.Abs(close-slow)/atr > p.MaxEmaDistAtr {
		return types.Signal{}
	}
	if fast <= slow || close <= slow {
		return types.Signal{}
	}
	return longSignal(close, atr, p.RiskK, p.TpR)
}
