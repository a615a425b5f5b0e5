package strategy

import (
	"github.com/evdnx/papertrader/indicator"
	"github.com/evdnx/papertrader/types"
)

// regimeRankWindow is the ATR% percentile window used for profile selection.
const regimeRankWindow = 200

// SelectProfile picks the risk profile for the current regime: strong trend
// with elevated volatility favours the aggressive profile, a flat or quiet
// market the conservative one.
func SelectProfile(adxHTF, atrPctile float64) string {
	switch {
	case adxHTF >= 25 && atrPctile >= 50:
		return types.ProfileAggressive
	case adxHTF <= 18 || atrPctile <= 30:
		return types.ProfileConservative
	default:
		return types.ProfileModerate
	}
}

// Regime measures the HTF ADX and the LTF ATR% percentile rank. Short
// windows rank at 100.
func Regime(ltf, htf []types.Candle, atrPeriod int) (adxHTF, atrPctile float64) {
	adxHTF = indicator.Last(indicator.ADX(htf, atrPeriod))
	atr := indicator.ATR(ltf, atrPeriod)
	atrPctile = indicator.PercentRankLast(indicator.ATRPercent(atr, indicator.Closes(ltf)), regimeRankWindow, 100)
	return adxHTF, atrPctile
}
