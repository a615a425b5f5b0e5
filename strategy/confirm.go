package strategy

import (
	"github.com/evdnx/goti"
	"github.com/evdnx/papertrader/types"
)

// defaultConfirmLookback is how many trailing LTF bars feed the HMA suite.
const defaultConfirmLookback = 64

// Confirmed wraps an evaluator and vetoes its long signals while the Hull
// moving average prints a fresh bearish crossover on the LTF window. A suite
// that cannot be built or fed never vetoes.
type Confirmed struct {
	Inner    Evaluator
	Lookback int

	// suiteFactory is swapped in tests.
	suiteFactory func() (*goti.IndicatorSuite, error)
}

// NewConfirmed wraps inner with the HMA veto.
func NewConfirmed(inner Evaluator) Confirmed {
	return Confirmed{Inner: inner, Lookback: defaultConfirmLookback}
}

func (c Confirmed) Evaluate(ltf, htf []types.Candle, p Params) types.Signal {
	sig := c.Inner.Evaluate(ltf, htf, p)
	if sig.Empty() {
		return sig
	}
	if c.bearish(ltf) {
		return types.Signal{}
	}
	return sig
}

func (c Confirmed) bearish(ltf []types.Candle) bool {
	factory := c.suiteFactory
	if factory == nil {
		factory = func() (*goti.IndicatorSuite, error) {
			return goti.NewIndicatorSuiteWithConfig(goti.DefaultConfig())
		}
	}
	suite, err := factory()
	if err != nil {
		return false
	}
	n := c.Lookback
	if n <= 0 {
		n = defaultConfirmLookback
	}
	if len(ltf) > n {
		ltf = ltf[len(ltf)-n:]
	}
	for _, b := range ltf {
		if err := suite.Add(b.High, b.Low, b.Close, b.Volume); err != nil {
			return false
		}
	}
	bear, err := suite.GetHMA().IsBearishCrossover()
	if err != nil {
		return false
	}
	return bear
}
