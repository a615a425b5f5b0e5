// Package engine runs the paper-trading control loop: fetch the latest bars,
// settle exits, apply the risk brake, then look for entries, persisting the
// portfolio after every symbol.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/evdnx/papertrader/config"
	"github.com/evdnx/papertrader/feed"
	"github.com/evdnx/papertrader/logger"
	"github.com/evdnx/papertrader/metrics"
	"github.com/evdnx/papertrader/notify"
	"github.com/evdnx/papertrader/portfolio"
	"github.com/evdnx/papertrader/risk"
	"github.com/evdnx/papertrader/state"
	"github.com/evdnx/papertrader/strategy"
	"github.com/evdnx/papertrader/tradelog"
	"github.com/evdnx/papertrader/types"
)

// Deps are the collaborators of the loop. Notifier and Log may be nil.
type Deps struct {
	Feed     feed.Feed
	Ledger   portfolio.Ledger
	Trades   tradelog.Sink
	Store    state.Store
	Notifier notify.Notifier
	Log      logger.Logger
	// Evaluator overrides the one named by the configuration.
	Evaluator strategy.Evaluator
	Now       func() time.Time
}

type Engine struct {
	cfg      config.Config
	feed     feed.Feed
	ledger   portfolio.Ledger
	trades   tradelog.Sink
	store    state.Store
	notifier notify.Notifier
	log      logger.Logger
	now      func() time.Time

	eval   strategy.Evaluator
	params map[string]strategy.Params
	brake  risk.Brake
	limits risk.Limits

	st      *LoopState
	settled map[string]settledBar

	mu     sync.RWMutex
	status Status
}

func New(cfg config.Config, d Deps) (*Engine, error) {
	if d.Feed == nil || d.Ledger == nil || d.Trades == nil || d.Store == nil {
		return nil, errors.New("engine: feed, ledger, trade log and store are required")
	}
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	eval := d.Evaluator
	if eval == nil {
		var err error
		if eval, err = strategy.New(cfg.Strategy); err != nil {
			return nil, err
		}
	}
	if cfg.HMAConfirm {
		eval = strategy.NewConfirmed(eval)
	}
	params := make(map[string]strategy.Params, len(cfg.Profiles))
	for _, pc := range cfg.Profiles {
		params[pc.Name] = ParamsFor(cfg, pc)
	}
	return &Engine{
		cfg:      cfg,
		feed:     d.Feed,
		ledger:   d.Ledger,
		trades:   d.Trades,
		store:    d.Store,
		notifier: notify.NewBestEffort(d.Notifier, d.Log),
		log:      d.Log,
		now:      d.Now,
		eval:     eval,
		params:   params,
		brake:    risk.Brake{MaxDrawdown: cfg.DailyLossLimitPct, MaxLosses: cfg.CooldownLosses},
		limits:   risk.Limits{MinNotional: cfg.MinNotional, MaxNotional: cfg.MaxTradeNotional, QtyStep: cfg.QtyStep},
		st:       NewLoopState(),
		settled:  make(map[string]settledBar),
	}, nil
}

// ParamsFor layers the configured periods and the profile's stop/target
// multipliers over the profile defaults.
func ParamsFor(cfg config.Config, pc config.ProfileConfig) strategy.Params {
	p := strategy.DefaultParams(pc.Name)
	if cfg.EmaFast > 0 {
		p.EmaFast = cfg.EmaFast
	}
	if cfg.EmaSlow > 0 {
		p.EmaSlow = cfg.EmaSlow
	}
	if cfg.RsiPeriod > 0 {
		p.RsiPeriod = cfg.RsiPeriod
	}
	if cfg.RsiEntry > 0 {
		p.RsiEntry = cfg.RsiEntry
		p.RsiThreshold = cfg.RsiEntry
	}
	p.MinAtrPct = cfg.MinAtrPct
	if pc.AtrK > 0 {
		p.RiskK = pc.AtrK
	}
	if pc.TpR > 0 {
		p.TpR = pc.TpR
	}
	return p
}

// State exposes the loop state for tests and tooling. It must not be
// touched while Run is active.
func (e *Engine) State() *LoopState { return e.st }

// Restore loads the last snapshot into the ledger. A missing snapshot is a
// fresh start.
func (e *Engine) Restore(ctx context.Context) error {
	snap, err := e.store.Load(ctx)
	if err != nil {
		if errors.Is(err, state.ErrNoSnapshot) {
			e.log.Info("state_fresh_start", logger.Float64("equity", e.ledger.Equity()))
			return nil
		}
		return fmt.Errorf("load snapshot: %w", err)
	}
	n := e.ledger.Restore(snap)
	e.log.Info("state_restored",
		logger.Float64("equity", snap.Equity),
		logger.Int("positions", n),
		logger.Int64("snapshot_ts", snap.TS),
	)
	e.publish(e.now())
	return nil
}

// Run ticks until ctx is cancelled, sleeping SleepInterval between ticks,
// then writes a final snapshot.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine_started",
		logger.Strings("symbols", e.cfg.Symbols),
		logger.String("strategy", e.cfg.Strategy),
		logger.String("ltf", e.cfg.LTF),
		logger.String("htf", e.cfg.HTF),
	)
	e.notifier.Send(ctx, notify.Started(e.cfg.Symbols, e.cfg.LTF, e.cfg.HTF, e.cfg.Strategy))

	for {
		if err := e.Tick(ctx, e.now()); err != nil && ctx.Err() == nil {
			e.log.Error("tick_failed", logger.Err(err))
		}
		t := time.NewTimer(e.cfg.SleepInterval())
		select {
		case <-ctx.Done():
			t.Stop()
			return e.shutdown()
		case <-t.C:
		}
	}
}

func (e *Engine) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := e.store.Save(ctx, e.ledger.Snapshot(e.now()))
	if err != nil {
		e.log.Error("final_snapshot_failed", logger.Err(err))
	}
	e.notifier.Send(ctx, notify.Stopped(e.ledger.Equity()))
	e.log.Info("engine_stopped",
		logger.Float64("equity", e.ledger.Equity()),
		logger.Int("open_positions", e.ledger.Count()),
	)
	return err
}

// Tick processes every symbol once. It only fails when ctx is cancelled.
func (e *Engine) Tick(ctx context.Context, now time.Time) error {
	start := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	if prev, rolled := e.st.rollDay(now); rolled {
		e.log.Info("daily_reset",
			logger.Int("trades", prev.Trades),
			logger.Int("wins", prev.Wins),
			logger.Int("losses", prev.Losses),
			logger.Float64("pnl", prev.PnL),
		)
	}
	if !e.st.PausedUntil.IsZero() && !now.Before(e.st.PausedUntil) {
		e.st.PausedUntil = time.Time{}
		metrics.Paused.Set(0)
		e.log.Info("pause_ended")
	}
	e.maybeSummary(ctx, now)

	for _, sym := range e.cfg.Symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.processSymbol(ctx, sym, now)
		e.persist(ctx, now)
	}
	return nil
}

// processSymbol settles exits as soon as the LTF window is in hand; the HTF
// window is only needed for entries. When it fails the bar is left
// unmarked so entries retry on the next tick.
func (e *Engine) processSymbol(ctx context.Context, sym string, now time.Time) {
	if e.st.Locked(sym, now) {
		return
	}
	ltf, err := e.feed.Candles(ctx, sym, e.cfg.LTF, e.cfg.LTFLimit)
	if err != nil {
		e.fetchFailed(ctx, sym, err)
		return
	}
	if len(ltf) == 0 {
		return
	}
	bar := ltf[len(ltf)-1]
	if last, ok := e.st.LastBar[sym]; ok && !bar.OpenTime.After(last) {
		return
	}

	closed := e.settleExits(ctx, sym, bar.Close, now)
	if prev, ok := e.settled[sym]; ok && prev.bar.Equal(bar.OpenTime) {
		for prof := range prev.closed {
			closed[prof] = true
		}
	}
	delete(e.settled, sym)

	if e.st.Paused(now) || e.tripBrake(ctx, now) {
		e.st.LastBar[sym] = bar.OpenTime
		return
	}
	htf, err := e.feed.Candles(ctx, sym, e.cfg.HTF, e.cfg.HTFLimit)
	if err != nil {
		e.settled[sym] = settledBar{bar: bar.OpenTime, closed: closed}
		e.fetchFailed(ctx, sym, err)
		return
	}
	e.st.LastBar[sym] = bar.OpenTime

	quote := &fillQuote{}
	for _, prof := range e.entryProfiles(ltf, htf) {
		if closed[prof] {
			continue
		}
		e.tryEntry(ctx, sym, prof, ltf, htf, quote, now)
	}
}

// settledBar remembers which profiles closed on a bar whose entries are
// still pending.
type settledBar struct {
	bar    time.Time
	closed map[string]bool
}

func (e *Engine) fetchFailed(ctx context.Context, sym string, err error) {
	if ctx.Err() != nil {
		return
	}
	e.log.Warn("fetch_failed", logger.String("symbol", sym), logger.Err(err))
	e.notifier.Send(ctx, notify.DataError(sym, err))
}

// tripBrake pauses entries when the drawdown from the start balance or the
// loss count reaches its limit.
func (e *Engine) tripBrake(ctx context.Context, now time.Time) bool {
	tripped, why := e.brake.Trip(e.cfg.StartBalance, e.ledger.Equity(), e.st.LossesToday)
	if !tripped {
		return false
	}
	e.st.PausedUntil = now.Add(e.cfg.PauseDuration())
	e.st.LossesToday = 0
	metrics.Pauses.Inc()
	metrics.Paused.Set(1)
	e.log.Warn("paused",
		logger.String("reason", why),
		logger.Float64("equity", e.ledger.Equity()),
		logger.Time("until", e.st.PausedUntil),
	)
	e.notifier.Send(ctx, notify.Paused(why, e.st.PausedUntil))
	return true
}

func (e *Engine) entryProfiles(ltf, htf []types.Candle) []string {
	if e.cfg.ProfileSelection == config.SelectDynamic {
		adx, pct := strategy.Regime(ltf, htf, 14)
		prof := strategy.SelectProfile(adx, pct)
		e.log.Info("profile_selected",
			logger.String("profile", prof),
			logger.Float64("adx_htf", adx),
			logger.Float64("atr_pctile", pct),
		)
		return []string{prof}
	}
	return e.cfg.ProfileNames()
}

func (e *Engine) maybeSummary(ctx context.Context, now time.Time) {
	every := e.cfg.SummaryEvery()
	if every <= 0 {
		return
	}
	if e.st.NextSummary.IsZero() {
		e.st.NextSummary = now.Truncate(time.Minute).Add(every)
		return
	}
	if now.Before(e.st.NextSummary) {
		return
	}
	s := e.st.Summary
	e.log.Info("summary",
		logger.Int("trades", s.Trades),
		logger.Int("wins", s.Wins),
		logger.Int("losses", s.Losses),
		logger.Float64("pnl", s.PnL),
		logger.Float64("equity", e.ledger.Equity()),
	)
	e.notifier.Send(ctx, notify.Summary(every, s.Trades, s.Wins, s.Losses, s.PnL, e.ledger.Equity()))
	e.st.Summary = Counters{}
	e.st.NextSummary = now.Truncate(time.Minute).Add(every)
}

func (e *Engine) persist(ctx context.Context, now time.Time) {
	if err := e.store.Save(ctx, e.ledger.Snapshot(now)); err != nil {
		e.log.Error("snapshot_failed", logger.Err(err))
	}
	e.publish(now)
}
