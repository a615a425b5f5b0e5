package testutils

import (
	"math"
	"time"

	"github.com/evdnx/papertrader/types"
)

// Epoch is the open time of the first synthetic bar.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Bar builds a candle whose high/low sit halfRange around close.
func Bar(i int, close, halfRange float64) types.Candle {
	return types.Candle{
		OpenTime: Epoch.Add(time.Duration(i) * 5 * time.Minute),
		Open:     close,
		High:     close + halfRange,
		Low:      close - halfRange,
		Close:    close,
		Volume:   1000,
	}
}

// Ramp returns n bars whose close moves by step each bar.
func Ramp(n int, start, step float64) []types.Candle {
	out := make([]types.Candle, n)
	for i := range out {
		out[i] = Bar(i, start+float64(i)*step, 1)
	}
	return out
}

// Flat returns n identical bars.
func Flat(n int, price, halfRange float64) []types.Candle {
	out := make([]types.Candle, n)
	for i := range out {
		out[i] = Bar(i, price, halfRange)
	}
	return out
}

// Zigzag returns n bars oscillating around base.
func Zigzag(n int, base, amplitude float64) []types.Candle {
	out := make([]types.Candle, n)
	for i := range out {
		c := base + amplitude*math.Sin(float64(i)/3)
		out[i] = Bar(i, c, amplitude/4+0.5)
	}
	return out
}

// Closes builds bars from a close series with a fixed half range.
func Closes(closes []float64, halfRange float64) []types.Candle {
	out := make([]types.Candle, len(closes))
	for i, c := range closes {
		out[i] = Bar(i, c, halfRange)
	}
	return out
}
