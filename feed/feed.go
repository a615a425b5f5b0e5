// Package feed fetches candle windows and tickers from the exchange.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evdnx/papertrader/metrics"
	"github.com/evdnx/papertrader/types"
)

// ErrBadCandle is returned when the last bar of a window is empty or
// inconsistent (close outside [low, high]).
var ErrBadCandle = errors.New("inconsistent candle data")

// Feed is the market data collaborator of the control loop. Candles returns
// closed bars, oldest first.
type Feed interface {
	Candles(ctx context.Context, symbol, timeframe string, limit int) ([]types.Candle, error)
	Ticker(ctx context.Context, symbol string) (types.Ticker, error)
}

// Validate checks the last bar of a window.
func Validate(candles []types.Candle) error {
	if len(candles) == 0 {
		return fmt.Errorf("%w: empty window", ErrBadCandle)
	}
	last := candles[len(candles)-1]
	if !(last.Low <= last.Close && last.Close <= last.High) {
		return fmt.Errorf("%w: low=%g close=%g high=%g", ErrBadCandle, last.Low, last.Close, last.High)
	}
	return nil
}

const (
	DefaultAttempts = 3
	DefaultBackoff  = 2 * time.Second
)

// Retry wraps a Feed with a bounded number of attempts and a fixed pause
// between them. A window whose last bar fails Validate counts as a failed
// attempt.
type Retry struct {
	Inner    Feed
	Attempts int
	Backoff  time.Duration
}

func NewRetry(inner Feed) *Retry {
	return &Retry{Inner: inner, Attempts: DefaultAttempts, Backoff: DefaultBackoff}
}

func (r *Retry) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]types.Candle, error) {
	var out []types.Candle
	err := r.do(ctx, symbol, func() error {
		c, err := r.Inner.Candles(ctx, symbol, timeframe, limit)
		if err != nil {
			return err
		}
		if err := Validate(c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("candles %s %s: %w", symbol, timeframe, err)
	}
	return out, nil
}

func (r *Retry) Ticker(ctx context.Context, symbol string) (types.Ticker, error) {
	var out types.Ticker
	err := r.do(ctx, symbol, func() error {
		t, err := r.Inner.Ticker(ctx, symbol)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return types.Ticker{}, fmt.Errorf("ticker %s: %w", symbol, err)
	}
	return out, nil
}

func (r *Retry) do(ctx context.Context, symbol string, fn func() error) error {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		metrics.FeedErrors.WithLabelValues(symbol).Inc()
		if i == attempts-1 {
			break
		}
		t := time.NewTimer(r.Backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}
