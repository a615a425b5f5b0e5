package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/evdnx/papertrader/state"
	"github.com/evdnx/papertrader/types"
)

// MockFeed serves canned windows per (symbol, timeframe). Err is keyed by
// symbol to fail every call for it, or by symbol|timeframe to fail one
// window.
type MockFeed struct {
	mu      sync.Mutex
	candles map[string][]types.Candle
	tickers map[string]types.Ticker
	Err     map[string]error
	Calls   map[string]int

	TickerErr   error
	TickerCalls map[string]int
}

func NewMockFeed() *MockFeed {
	return &MockFeed{
		candles:     make(map[string][]types.Candle),
		tickers:     make(map[string]types.Ticker),
		Err:         make(map[string]error),
		Calls:       make(map[string]int),
		TickerCalls: make(map[string]int),
	}
}

func feedKey(symbol, timeframe string) string { return symbol + "|" + timeframe }

// Set replaces the window returned for (symbol, timeframe).
func (f *MockFeed) Set(symbol, timeframe string, candles []types.Candle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candles[feedKey(symbol, timeframe)] = candles
}

func (f *MockFeed) Candles(_ context.Context, symbol, timeframe string, limit int) ([]types.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[symbol]++
	if err := f.Err[symbol]; err != nil {
		return nil, err
	}
	if err := f.Err[feedKey(symbol, timeframe)]; err != nil {
		return nil, err
	}
	c, ok := f.candles[feedKey(symbol, timeframe)]
	if !ok {
		return nil, errors.New("no candles for " + symbol + " " + timeframe)
	}
	if limit > 0 && len(c) > limit {
		c = c[len(c)-limit:]
	}
	return append([]types.Candle(nil), c...), nil
}

// SetTicker sets the quote returned for symbol.
func (f *MockFeed) SetTicker(symbol string, t types.Ticker) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickers[symbol] = t
}

func (f *MockFeed) Ticker(_ context.Context, symbol string) (types.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TickerCalls[symbol]++
	if f.TickerErr != nil {
		return types.Ticker{}, f.TickerErr
	}
	t, ok := f.tickers[symbol]
	if !ok {
		return types.Ticker{}, errors.New("no ticker for " + symbol)
	}
	return t, nil
}

// MockNotifier records every message.
type MockNotifier struct {
	mu   sync.Mutex
	msgs []string
	Err  error
}

func NewMockNotifier() *MockNotifier { return &MockNotifier{} }

func (n *MockNotifier) Send(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
	return n.Err
}

func (n *MockNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

// MockStore keeps snapshots in memory and counts saves.
type MockStore struct {
	mu    sync.Mutex
	snap  *types.Snapshot
	Saves int
	Err   error
}

func NewMockStore() *MockStore { return &MockStore{} }

func (s *MockStore) Load(context.Context) (types.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return types.Snapshot{}, state.ErrNoSnapshot
	}
	return *s.snap, nil
}

func (s *MockStore) Save(_ context.Context, snap types.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Saves++
	if s.Err != nil {
		return s.Err
	}
	s.snap = &snap
	return nil
}

// Last returns the most recently saved snapshot.
func (s *MockStore) Last() (types.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return types.Snapshot{}, false
	}
	return *s.snap, true
}

// MockTradeLog records trade events in memory.
type MockTradeLog struct {
	mu   sync.Mutex
	recs []types.TradeRecord
	Err  error
}

func NewMockTradeLog() *MockTradeLog { return &MockTradeLog{} }

func (l *MockTradeLog) Append(_ context.Context, rec types.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recs = append(l.recs, rec)
	return l.Err
}

func (l *MockTradeLog) Close() error { return nil }

func (l *MockTradeLog) Records() []types.TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.TradeRecord(nil), l.recs...)
}

// Events returns the records of one kind.
func (l *MockTradeLog) Events(kind types.Event) []types.TradeRecord {
	var out []types.TradeRecord
	for _, r := range l.Records() {
		if r.Event == kind {
			out = append(out, r)
		}
	}
	return out
}
