package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/evdnx/papertrader/config"
	"github.com/evdnx/papertrader/portfolio"
	"github.com/evdnx/papertrader/strategy"
	"github.com/evdnx/papertrader/testutils"
	"github.com/evdnx/papertrader/types"
)

const (
	btc = "btc_usdt"
	eth = "eth_usdt"
)

// stubEval fires a long at the last close with a 2-point stop and a 4-point
// target whenever enabled.
type stubEval struct {
	enabled bool
	calls   int
}

func (s *stubEval) Evaluate(ltf, _ []types.Candle, _ strategy.Params) types.Signal {
	s.calls++
	if !s.enabled || len(ltf) == 0 {
		return types.Signal{}
	}
	c := ltf[len(ltf)-1].Close
	return types.Signal{Side: types.Long, Entry: c, StopLoss: c - 2, TakeProfit: c + 4}
}

type harness struct {
	eng      *Engine
	cfg      config.Config
	feed     *testutils.MockFeed
	ledger   *portfolio.PaperPortfolio
	trades   *testutils.MockTradeLog
	store    *testutils.MockStore
	notifier *testutils.MockNotifier
	log      *testutils.MockLogger
	eval     *stubEval
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Symbols = []string{btc}
	cfg.Profiles = []config.ProfileConfig{
		{Name: types.ProfileModerate, Risk: 0.02, AtrK: 2.6, TpR: 2.0, BatchSize: 6, Capital: 100},
	}
	cfg.FeeTaker = 0
	cfg.SpreadBps = 0
	cfg.EntryCooldownMin = 0
	cfg.SymbolLockMin = 0
	cfg.AutoSummaryMin = 0
	cfg.DailyLossLimitPct = 0
	cfg.CooldownLosses = 0
	return cfg
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{
		cfg:      cfg,
		feed:     testutils.NewMockFeed(),
		trades:   testutils.NewMockTradeLog(),
		store:    testutils.NewMockStore(),
		notifier: testutils.NewMockNotifier(),
		log:      testutils.NewMockLogger(),
		eval:     &stubEval{enabled: true},
	}
	h.ledger = portfolio.NewPaperPortfolio(portfolio.Options{
		StartEquity: cfg.StartBalance,
		FeeRate:     cfg.FeeTaker,
		MultiLot:    cfg.Sizing == config.SizingBatch,
	})
	eng, err := New(cfg, Deps{
		Feed:      h.feed,
		Ledger:    h.ledger,
		Trades:    h.trades,
		Store:     h.store,
		Notifier:  h.notifier,
		Log:       h.log,
		Evaluator: h.eval,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.eng = eng
	for _, sym := range cfg.Symbols {
		h.setBar(sym, 0, 100)
	}
	return h
}

// setBar serves a flat window whose bar k (counted from 0) closes at last.
// Each k is a new bar five minutes after the previous one.
func (h *harness) setBar(sym string, k int, last float64) {
	n := 120 + k
	ltf := testutils.Flat(n, 100, 1)
	ltf[n-1] = testutils.Bar(n-1, last, 1)
	h.feed.Set(sym, h.cfg.LTF, ltf)
	h.feed.Set(sym, h.cfg.HTF, testutils.Flat(60, 100, 1))
}

// barTime is shortly after bar k closed.
func barTime(k int) time.Time {
	return testutils.Epoch.Add(time.Duration(120+k) * 5 * time.Minute).Add(time.Second)
}

func (h *harness) tick(t *testing.T, now time.Time) {
	t.Helper()
	if err := h.eng.Tick(context.Background(), now); err != nil {
		t.Fatalf("unexpected tick error: %v", err)
	}
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(testConfig(), Deps{}); err == nil {
		t.Fatalf("expected error for missing dependencies")
	}
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy = "martingale"
	_, err := New(cfg, Deps{
		Feed:   testutils.NewMockFeed(),
		Ledger: portfolio.NewPaperPortfolio(portfolio.Options{StartEquity: 1000}),
		Trades: testutils.NewMockTradeLog(),
		Store:  testutils.NewMockStore(),
	})
	if err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}

func TestParamsForOverridesDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.EmaFast, cfg.EmaSlow, cfg.RsiPeriod, cfg.RsiEntry, cfg.MinAtrPct = 9, 21, 7, 55, 0.2
	p := ParamsFor(cfg, config.ProfileConfig{Name: types.ProfileAggressive, AtrK: 1.5, TpR: 3})
	if p.EmaFast != 9 || p.EmaSlow != 21 || p.RsiPeriod != 7 {
		t.Fatalf("expected periods 9/21/7, got %d/%d/%d", p.EmaFast, p.EmaSlow, p.RsiPeriod)
	}
	if p.RsiEntry != 55 || p.RsiThreshold != 55 {
		t.Fatalf("expected rsi levels 55, got %f/%f", p.RsiEntry, p.RsiThreshold)
	}
	if p.MinAtrPct != 0.2 || p.RiskK != 1.5 || p.TpR != 3 {
		t.Fatalf("expected min_atr_pct 0.2, risk_k 1.5, tp_r 3, got %f/%f/%f", p.MinAtrPct, p.RiskK, p.TpR)
	}
}

func TestTickOpensPosition(t *testing.T) {
	h := newHarness(t, nil)
	now := barTime(0)
	h.tick(t, now)

	opens := h.trades.Events(types.EventOpen)
	if len(opens) != 1 {
		t.Fatalf("expected 1 OPEN record, got %d", len(opens))
	}
	// 1000*0.02/2 = 10 units capped to the 100 notional limit.
	if opens[0].Qty != 1 || opens[0].EntryPx != 100 || opens[0].StopPx != 98 {
		t.Fatalf("expected qty 1 entry 100 sl 98, got %+v", opens[0])
	}
	want := portfolio.TradeID(btc, now, types.ProfileModerate, -1)
	if opens[0].ID != want {
		t.Fatalf("expected id %s, got %s", want, opens[0].ID)
	}
	if h.ledger.Count() != 1 {
		t.Fatalf("expected 1 open position, got %d", h.ledger.Count())
	}
	msgs := h.notifier.Messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "OPEN") {
		t.Fatalf("expected one OPEN notification, got %v", msgs)
	}
}

func TestSpreadRaisesEntry(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.SpreadBps = 0.001 })
	h.tick(t, barTime(0))
	pos := h.ledger.Positions()
	if len(pos) != 1 || math.Abs(pos[0].Entry-100.1) > 1e-9 {
		t.Fatalf("expected entry 100.1, got %+v", pos)
	}
	if h.log.Count("ticker_unavailable") != 1 {
		t.Fatalf("expected ticker_unavailable to be logged once, got %d", h.log.Count("ticker_unavailable"))
	}
}

func TestTickerAskSetsFill(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.SpreadBps = 0.001 })
	h.feed.SetTicker(btc, types.Ticker{Bid: 100.05, Ask: 100.2, Last: 100.1})
	h.tick(t, barTime(0))

	opens := h.trades.Events(types.EventOpen)
	if len(opens) != 1 || opens[0].EntryPx != 100.2 {
		t.Fatalf("expected fill at the ask 100.2, got %+v", opens)
	}
	if h.log.Count("ticker_unavailable") != 0 {
		t.Fatalf("expected no ticker warning")
	}
}

func TestZeroAskFallsBackToSpread(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.SpreadBps = 0.001 })
	h.feed.SetTicker(btc, types.Ticker{Last: 100})
	h.tick(t, barTime(0))
	pos := h.ledger.Positions()
	if len(pos) != 1 || math.Abs(pos[0].Entry-100.1) > 1e-9 {
		t.Fatalf("expected entry 100.1, got %+v", pos)
	}
}

func TestTickerFetchedOncePerBar(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Profiles = config.Default().Profiles })
	h.feed.SetTicker(btc, types.Ticker{Bid: 99.9, Ask: 100, Last: 100})
	h.tick(t, barTime(0))
	if n := len(h.trades.Events(types.EventOpen)); n < 2 {
		t.Fatalf("expected several profiles to enter, got %d", n)
	}
	if h.feed.TickerCalls[btc] != 1 {
		t.Fatalf("expected 1 ticker fetch, got %d", h.feed.TickerCalls[btc])
	}
}

func TestNoTickerFetchWithoutSignal(t *testing.T) {
	h := newHarness(t, nil)
	h.eval.enabled = false
	h.tick(t, barTime(0))
	if h.feed.TickerCalls[btc] != 0 {
		t.Fatalf("expected no ticker fetch, got %d", h.feed.TickerCalls[btc])
	}
}

func TestDuplicateBarSkipped(t *testing.T) {
	h := newHarness(t, nil)
	h.eval.enabled = false
	h.tick(t, barTime(0))
	h.tick(t, barTime(0).Add(30*time.Second))
	if h.eval.calls != 1 {
		t.Fatalf("expected 1 evaluation for the same bar, got %d", h.eval.calls)
	}
	h.setBar(btc, 1, 100)
	h.tick(t, barTime(1))
	if h.eval.calls != 2 {
		t.Fatalf("expected a new bar to be evaluated, got %d calls", h.eval.calls)
	}
}

func TestExitsBeforeEntries(t *testing.T) {
	h := newHarness(t, nil)
	// A position on a profile that is not configured still gets settled.
	if _, ok := h.ledger.Open(types.ProfileAggressive, btc, types.Long, 100, 1, 98, 104, testutils.Epoch); !ok {
		t.Fatalf("failed to seed position")
	}
	h.setBar(btc, 0, 105)
	h.tick(t, barTime(0))

	recs := h.trades.Records()
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Event != types.EventClose || recs[1].Event != types.EventOpen {
		t.Fatalf("expected CLOSE then OPEN, got %s then %s", recs[0].Event, recs[1].Event)
	}
	c := recs[0]
	if c.Reason != types.ReasonTP || c.PnL != 5 || c.PnLR != 2.5 {
		t.Fatalf("expected TP with pnl 5 and R 2.5, got %+v", c)
	}
	if !c.HasEquity || c.Equity != 1005 {
		t.Fatalf("expected equity 1005 on close, got %+v", c)
	}
	if recs[1].Profile != types.ProfileModerate {
		t.Fatalf("expected entry on moderado, got %s", recs[1].Profile)
	}
}

func TestClosedProfileSkipsEntryThisBar(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(t, barTime(0))
	h.setBar(btc, 1, 97)
	h.tick(t, barTime(1))

	if n := len(h.trades.Events(types.EventClose)); n != 1 {
		t.Fatalf("expected 1 CLOSE, got %d", n)
	}
	if n := len(h.trades.Events(types.EventOpen)); n != 1 {
		t.Fatalf("expected no re-entry on the closing bar, got %d opens", n)
	}
	if h.eng.State().LossesToday != 1 {
		t.Fatalf("expected 1 loss today, got %d", h.eng.State().LossesToday)
	}
	if d := h.eng.State().Daily; d.Trades != 1 || d.Losses != 1 || d.PnL != -3 {
		t.Fatalf("expected daily 1 trade 1 loss pnl -3, got %+v", d)
	}
}

func TestProfitTakeAtOneR(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(t, barTime(0))
	h.setBar(btc, 1, 102.5)
	h.tick(t, barTime(1))

	closes := h.trades.Events(types.EventClose)
	if len(closes) != 1 || closes[0].Reason != types.ReasonProfitTake {
		t.Fatalf("expected PROFIT_TAKE close, got %+v", closes)
	}
	msgs := h.notifier.Messages()
	if !strings.Contains(msgs[len(msgs)-1], "Profit locked") {
		t.Fatalf("expected profit locked notification, got %q", msgs[len(msgs)-1])
	}
}

func TestProfitTakeDisabled(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.ProfitTakeR = 0 })
	h.tick(t, barTime(0))
	h.setBar(btc, 1, 102.5)
	h.tick(t, barTime(1))
	if n := len(h.trades.Events(types.EventClose)); n != 0 {
		t.Fatalf("expected no close with profit take disabled, got %d", n)
	}
}

func TestDrawdownPausesEntries(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.DailyLossLimitPct = 0.10
		c.CooldownMin = 45
	})
	h.ledger.Open(types.ProfileAggressive, btc, types.Long, 100, 10, 90, 120, testutils.Epoch)
	h.setBar(btc, 0, 89)
	now := barTime(0)
	h.tick(t, now)

	if h.eval.calls != 0 {
		t.Fatalf("expected no evaluation once paused, got %d", h.eval.calls)
	}
	st := h.eng.State()
	if !st.Paused(now) || !st.PausedUntil.Equal(now.Add(45*time.Minute)) {
		t.Fatalf("expected pause until %v, got %v", now.Add(45*time.Minute), st.PausedUntil)
	}
	if st.LossesToday != 0 {
		t.Fatalf("expected loss counter reset on pause, got %d", st.LossesToday)
	}
	if !h.eng.Status().Paused {
		t.Fatalf("expected status to report paused")
	}
	found := false
	for _, m := range h.notifier.Messages() {
		if strings.Contains(m, "Paused") && strings.Contains(m, "drawdown") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a drawdown pause notification, got %v", h.notifier.Messages())
	}

	h.setBar(btc, 1, 100)
	h.tick(t, barTime(1))
	if h.eval.calls != 0 {
		t.Fatalf("expected entries skipped during pause, got %d", h.eval.calls)
	}
}

func TestPauseStillSettlesExits(t *testing.T) {
	h := newHarness(t, nil)
	h.eng.State().PausedUntil = barTime(10)
	h.ledger.Open(types.ProfileModerate, btc, types.Long, 100, 1, 98, 104, testutils.Epoch)
	h.setBar(btc, 0, 110)
	h.tick(t, barTime(0))
	if n := len(h.trades.Events(types.EventClose)); n != 1 {
		t.Fatalf("expected exit while paused, got %d closes", n)
	}
	if h.eval.calls != 0 {
		t.Fatalf("expected no evaluation while paused, got %d", h.eval.calls)
	}
}

func TestLossStreakPausesAndResumes(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.CooldownLosses = 2
		c.CooldownMin = 30
	})
	h.ledger.Open("a", btc, types.Long, 100, 1, 99, 110, testutils.Epoch)
	h.ledger.Open("b", btc, types.Long, 100, 1, 99, 110, testutils.Epoch)
	h.eval.enabled = false
	h.setBar(btc, 0, 98)
	now := barTime(0)
	h.tick(t, now)
	if !h.eng.State().Paused(now) {
		t.Fatalf("expected pause after 2 losses")
	}

	// 30 minutes later the pause has lapsed and the counter was reset.
	h.setBar(btc, 6, 100)
	h.tick(t, now.Add(30*time.Minute))
	if h.eng.State().Paused(now.Add(30 * time.Minute)) {
		t.Fatalf("expected pause to end after the cooldown")
	}
	if h.eval.calls != 1 {
		t.Fatalf("expected entries to resume, got %d evaluations", h.eval.calls)
	}
}

func TestEntryCooldown(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.EntryCooldownMin = 30 })
	start := barTime(0)
	h.tick(t, start)
	h.setBar(btc, 1, 103) // 1.5R profit take
	h.tick(t, barTime(1))
	if h.ledger.Count() != 0 {
		t.Fatalf("expected flat book, got %d", h.ledger.Count())
	}
	calls := h.eval.calls

	h.setBar(btc, 2, 100)
	h.tick(t, barTime(2))
	if h.eval.calls != calls {
		t.Fatalf("expected cooldown to skip evaluation, got %d calls", h.eval.calls)
	}

	h.setBar(btc, 6, 100)
	h.tick(t, start.Add(30*time.Minute))
	if h.eval.calls != calls+1 {
		t.Fatalf("expected evaluation after cooldown, got %d calls", h.eval.calls)
	}
}

func TestSymbolLockSkipsFetch(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.SymbolLockMin = 15 })
	start := barTime(0)
	h.tick(t, start)
	fetched := h.feed.Calls[btc]

	h.setBar(btc, 1, 100)
	h.tick(t, start.Add(5*time.Minute))
	if h.feed.Calls[btc] != fetched {
		t.Fatalf("expected locked symbol not to be fetched, got %d calls", h.feed.Calls[btc])
	}
	h.tick(t, start.Add(15*time.Minute))
	if h.feed.Calls[btc] == fetched {
		t.Fatalf("expected fetch once the lock expired")
	}
}

func TestSnapshotSavedPerSymbol(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Symbols = []string{btc, eth} })
	h.tick(t, barTime(0))
	if h.store.Saves != 2 {
		t.Fatalf("expected 2 snapshot saves, got %d", h.store.Saves)
	}
	snap, ok := h.store.Last()
	if !ok || len(snap.Positions) != 2 {
		t.Fatalf("expected snapshot with 2 positions, got %+v", snap)
	}
	if snap.TS != barTime(0).Unix() {
		t.Fatalf("expected snapshot ts %d, got %d", barTime(0).Unix(), snap.TS)
	}
}

func TestSnapshotFailureIsLogged(t *testing.T) {
	h := newHarness(t, nil)
	h.store.Err = errors.New("disk full")
	h.tick(t, barTime(0))
	if h.log.Count("snapshot_failed") != 1 {
		t.Fatalf("expected snapshot_failed to be logged once, got %d", h.log.Count("snapshot_failed"))
	}
	if h.ledger.Count() != 1 {
		t.Fatalf("expected the position to stay open, got %d", h.ledger.Count())
	}
}

func TestFeedErrorMovesToNextSymbol(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Symbols = []string{btc, eth} })
	h.feed.Err[btc] = errors.New("exchange down")
	h.tick(t, barTime(0))

	if h.eval.calls != 1 {
		t.Fatalf("expected eth to be evaluated, got %d calls", h.eval.calls)
	}
	if h.log.Count("fetch_failed") != 1 {
		t.Fatalf("expected fetch_failed to be logged")
	}
	found := false
	for _, m := range h.notifier.Messages() {
		if strings.Contains(m, "Data error btc_usdt") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a data error notification, got %v", h.notifier.Messages())
	}
}

func TestHTFFailureStillSettlesExits(t *testing.T) {
	h := newHarness(t, nil)
	h.ledger.Open(types.ProfileAggressive, btc, types.Long, 100, 1, 98, 104, testutils.Epoch)
	h.setBar(btc, 0, 105)
	h.feed.Err[btc+"|"+h.cfg.HTF] = errors.New("timeout")
	now := barTime(0)
	h.tick(t, now)

	if n := len(h.trades.Events(types.EventClose)); n != 1 {
		t.Fatalf("expected the TP exit to settle, got %d closes", n)
	}
	if h.eval.calls != 0 {
		t.Fatalf("expected no evaluation without the HTF window, got %d", h.eval.calls)
	}
	if h.log.Count("fetch_failed") != 1 {
		t.Fatalf("expected fetch_failed to be logged once, got %d", h.log.Count("fetch_failed"))
	}

	// The bar stays unmarked, so entries run once the HTF window is back.
	delete(h.feed.Err, btc+"|"+h.cfg.HTF)
	h.tick(t, now.Add(30*time.Second))
	if h.eval.calls != 1 {
		t.Fatalf("expected the same bar to be evaluated, got %d calls", h.eval.calls)
	}
	if n := len(h.trades.Events(types.EventClose)); n != 1 {
		t.Fatalf("expected no second close, got %d", n)
	}
	if n := len(h.trades.Events(types.EventOpen)); n != 1 {
		t.Fatalf("expected 1 OPEN after recovery, got %d", n)
	}
}

func TestHTFRetryKeepsClosedProfileOut(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(t, barTime(0))
	h.setBar(btc, 1, 97)
	h.feed.Err[btc+"|"+h.cfg.HTF] = errors.New("timeout")
	h.tick(t, barTime(1))
	if n := len(h.trades.Events(types.EventClose)); n != 1 {
		t.Fatalf("expected the stop to settle, got %d closes", n)
	}

	delete(h.feed.Err, btc+"|"+h.cfg.HTF)
	h.tick(t, barTime(1).Add(30*time.Second))
	if h.eval.calls != 1 {
		t.Fatalf("expected no re-entry on the closing bar, got %d evaluations", h.eval.calls)
	}
	if n := len(h.trades.Events(types.EventOpen)); n != 1 {
		t.Fatalf("expected 1 OPEN, got %d", n)
	}
}

func TestStatusReportsOpenNotional(t *testing.T) {
	h := newHarness(t, nil)
	h.tick(t, barTime(0))
	if got := h.eng.Status().OpenNotional; math.Abs(got-100) > 1e-9 {
		t.Fatalf("expected open notional 100, got %f", got)
	}
}

func TestTradeLogFailureDoesNotStopLoop(t *testing.T) {
	h := newHarness(t, nil)
	h.trades.Err = errors.New("read-only")
	h.tick(t, barTime(0))
	if h.ledger.Count() != 1 {
		t.Fatalf("expected the position to open anyway")
	}
	if h.log.Count("trade_log_failed") != 1 {
		t.Fatalf("expected trade_log_failed, got %d", h.log.Count("trade_log_failed"))
	}
}

func TestMaxPositions(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Symbols = []string{btc, eth}
		c.MaxPositions = 1
	})
	h.tick(t, barTime(0))
	if h.ledger.Count() != 1 {
		t.Fatalf("expected 1 position under the cap, got %d", h.ledger.Count())
	}
}

func TestBatchSizingOpensLots(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Sizing = config.SizingBatch })
	now := barTime(0)
	h.tick(t, now)

	// Six lots requested, capped at five open positions.
	opens := h.trades.Events(types.EventOpen)
	if len(opens) != 5 {
		t.Fatalf("expected 5 lots, got %d", len(opens))
	}
	for i, o := range opens {
		want := portfolio.TradeID(btc, now, types.ProfileModerate, i)
		if o.ID != want {
			t.Fatalf("expected id %s, got %s", want, o.ID)
		}
		if math.Abs(o.Qty*o.EntryPx-100.0/6) > 0.01 {
			t.Fatalf("expected lot notional ~16.67, got %f", o.Qty*o.EntryPx)
		}
	}

	h.setBar(btc, 1, 97)
	h.tick(t, barTime(1))
	if n := len(h.trades.Events(types.EventClose)); n != 5 {
		t.Fatalf("expected every lot to stop out, got %d", n)
	}
}

func TestDynamicSelectionEvaluatesOneProfile(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Profiles = config.Default().Profiles
		c.ProfileSelection = config.SelectDynamic
	})
	h.eval.enabled = false
	h.tick(t, barTime(0))
	if h.eval.calls != 1 {
		t.Fatalf("expected 1 evaluation, got %d", h.eval.calls)
	}
	if h.log.Count("profile_selected") != 1 {
		t.Fatalf("expected the selected profile to be logged")
	}
}

func TestAllProfilesEvaluated(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Profiles = config.Default().Profiles })
	h.tick(t, barTime(0))
	if h.eval.calls != 3 {
		t.Fatalf("expected 3 evaluations, got %d", h.eval.calls)
	}
	if got := h.ledger.CountByProfile(); len(got) != 3 {
		t.Fatalf("expected a position per profile, got %v", got)
	}
}

func TestDailyReset(t *testing.T) {
	h := newHarness(t, nil)
	h.eval.enabled = false
	h.tick(t, barTime(0))
	st := h.eng.State()
	st.LossesToday = 1
	st.Daily = Counters{Trades: 3, Losses: 1, Wins: 2, PnL: 4}

	next := time.Date(2024, 1, 2, 0, 0, 5, 0, time.UTC)
	h.tick(t, next)
	if st.LossesToday != 0 || st.Daily != (Counters{}) {
		t.Fatalf("expected counters reset on a new day, got %d %+v", st.LossesToday, st.Daily)
	}
	if st.Day != "2024-01-02" {
		t.Fatalf("expected day 2024-01-02, got %s", st.Day)
	}
	if h.log.Count("daily_reset") != 1 {
		t.Fatalf("expected daily_reset to be logged once")
	}
}

func TestAutoSummary(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.AutoSummaryMin = 15 })
	start := time.Date(2024, 1, 1, 10, 0, 30, 0, time.UTC)
	h.tick(t, start)
	st := h.eng.State()
	if !st.NextSummary.Equal(time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)) {
		t.Fatalf("expected next summary at 10:15, got %v", st.NextSummary)
	}
	st.Summary = Counters{Trades: 2, Wins: 1, Losses: 1, PnL: 1.5}

	h.tick(t, start.Add(15*time.Minute))
	var summary string
	for _, m := range h.notifier.Messages() {
		if strings.Contains(m, "Summary 15m") {
			summary = m
		}
	}
	if !strings.Contains(summary, "Trades: 2 | Win: 1 | Loss: 1") {
		t.Fatalf("expected summary counts, got %q", summary)
	}
	if st.Summary != (Counters{}) {
		t.Fatalf("expected summary counters reset, got %+v", st.Summary)
	}
	if !st.NextSummary.Equal(time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected next summary at 10:30, got %v", st.NextSummary)
	}
}

func TestRestoreFromSnapshot(t *testing.T) {
	h := newHarness(t, nil)
	pos := types.Position{ID: "btc_usdt-1-moderado", Profile: types.ProfileModerate, Symbol: btc,
		Side: types.Long, Entry: 100, Qty: 1, StopLoss: 98, TakeProfit: 104, OpenTime: testutils.Epoch}
	h.store.Save(context.Background(), types.Snapshot{
		TS: 1, Equity: 1234, Positions: []types.SnapshotPosition{types.SnapshotOf(pos)},
	})
	if err := h.eng.Restore(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.ledger.Equity() != 1234 || h.ledger.Count() != 1 {
		t.Fatalf("expected equity 1234 and 1 position, got %f and %d", h.ledger.Equity(), h.ledger.Count())
	}
	if s := h.eng.Status(); s.Equity != 1234 || s.Positions != 1 {
		t.Fatalf("expected status to reflect restore, got %+v", s)
	}
}

func TestRestoreFreshStart(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.eng.Restore(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.ledger.Equity() != 1000 {
		t.Fatalf("expected start balance 1000, got %f", h.ledger.Equity())
	}
}

func TestRunFlushesOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.eng.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.store.Saves != 1 {
		t.Fatalf("expected a final snapshot, got %d saves", h.store.Saves)
	}
	msgs := h.notifier.Messages()
	if len(msgs) != 2 || !strings.Contains(msgs[0], "started") || !strings.Contains(msgs[1], "stopped") {
		t.Fatalf("expected start and stop notifications, got %v", msgs)
	}
}

func TestRunTicksUntilCancelled(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.SleepSec = 1 })
	h.eng.now = barTime(0).Local
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.eng.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for h.eng.Status().Positions == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.ledger.Count() != 1 {
		t.Fatalf("expected the first tick to open a position, got %d", h.ledger.Count())
	}
}
