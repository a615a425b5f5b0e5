package strategy

import "github.com/evdnx/papertrader/types"

// Params is the per-profile parameter set handed to an Evaluator.
type Params struct {
	// Moving averages / ATR
	EmaFast   int // default 35
	EmaSlow   int // default 50
	AtrPeriod int // default 14, also the ADX period

	// Common filters
	AdxMin          float64 // trend regime threshold on the HTF, default 20
	MaxEmaDistAtr   float64 // max |close-emaSlow| in ATRs, default 0.8
	MinAtrPct       float64 // min ATR as % of close (trend_reversion), default 0.1
	AtrPctThreshold float64 // min ATR% percentile rank (ema_atr), default 35
	AtrRankWindow   int     // percentile window for ema_atr, default 200

	// RSI, trend mode
	RsiPeriod  int     // default 14
	RsiEntry   float64 // upward cross level, default 50
	RsiExit    float64 // carried for parity, unused by the long-only variants
	RsiCeiling float64 // no entry above this, default 60

	// RSI, reversion mode (ranging market)
	UseRsiReversion bool
	AdxMinReversion float64 // default 18
	RsiRevLow       float64 // default 30

	// ema_atr band
	RsiMin float64 // default 45
	RsiMax float64 // default 60

	// ema_cross
	RsiThreshold float64 // default 50

	// Risk
	RiskK float64 // stop distance in ATRs
	TpR   float64 // take profit in R multiples
	// UseShort is accepted but no variant emits shorts.
	UseShort bool
}

// DefaultParams returns the baseline parameters with the stop and target
// multipliers of the named profile. Unknown profiles get the moderate ones.
func DefaultParams(profile string) Params {
	p := Params{
		EmaFast:         35,
		EmaSlow:         50,
		AtrPeriod:       14,
		AdxMin:          20,
		MaxEmaDistAtr:   0.8,
		MinAtrPct:       0.1,
		AtrPctThreshold: 35,
		AtrRankWindow:   200,
		RsiPeriod:       14,
		RsiEntry:        50,
		RsiExit:         47,
		RsiCeiling:      60,
		UseRsiReversion: true,
		AdxMinReversion: 18,
		RsiRevLow:       30,
		RsiMin:          45,
		RsiMax:          60,
		RsiThreshold:    50,
		RiskK:           2.6,
		TpR:             2.0,
	}
	switch profile {
	case types.ProfileAggressive:
		p.RiskK, p.TpR = 2.2, 1.8
	case types.ProfileConservative:
		p.RiskK, p.TpR = 3.0, 2.2
	}
	return p
}

// MinBars is the shortest LTF window the trend/reversion variant accepts.
func (p Params) MinBars() int {
	n := p.EmaSlow + p.RsiPeriod + p.AtrPeriod
	if n < 100 {
		n = 100
	}
	return n
}
