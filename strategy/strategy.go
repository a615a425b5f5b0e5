// Package strategy turns a window of candles into an entry decision. Every
// evaluator is a pure function of its inputs: no state is kept between calls.
package strategy

import (
	"fmt"
	"math"

	"github.com/evdnx/papertrader/types"
)

// Evaluator produces a long entry signal or the empty signal. A window that is
// too short is a normal "wait" outcome and yields the empty signal.
type Evaluator interface {
	Evaluate(ltf, htf []types.Candle, p Params) types.Signal
}

// EvaluatorFunc adapts a plain function to Evaluator.
type EvaluatorFunc func(ltf, htf []types.Candle, p Params) types.Signal

func (f EvaluatorFunc) Evaluate(ltf, htf []types.Candle, p Params) types.Signal {
	return f(ltf, htf, p)
}

// New returns the evaluator registered under name.
func New(name string) (Evaluator, error) {
	switch name {
	case "", "trend_reversion":
		return TrendReversion{}, nil
	case "ema_cross":
		return EMACross{}, nil
	case "ema_atr":
		return EMAATR{}, nil
	}
	return nil, fmt.Errorf("unknown strategy %q", name)
}

// longSignal builds entry/stop/target from the ATR stop distance. Degenerate
// levels (stop at or below zero, no risk distance, NaN inputs) give the
// empty signal.
func longSignal(close, atr, riskK, tpR float64) types.Signal {
	if !finite(close) || !finite(atr) || close <= 0 || atr <= 0 {
		return types.Signal{}
	}
	sl := close - riskK*atr
	r := close - sl
	if sl <= 0 || r <= 0 {
		return types.Signal{}
	}
	sig := types.Signal{
		Side:       types.Long,
		Entry:      close,
		StopLoss:   sl,
		TakeProfit: close + tpR*r,
	}
	if !sig.Valid() {
		return types.Signal{}
	}
	return sig
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(vs ...float64) bool {
	for _, v := range vs {
		if !finite(v) {
			return false
		}
	}
	return true
}
