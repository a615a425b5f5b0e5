package engine

import (
	"context"
	"math"
	"time"

	"github.com/evdnx/papertrader/config"
	"github.com/evdnx/papertrader/logger"
	"github.com/evdnx/papertrader/metrics"
	"github.com/evdnx/papertrader/notify"
	"github.com/evdnx/papertrader/portfolio"
	"github.com/evdnx/papertrader/risk"
	"github.com/evdnx/papertrader/types"
)

// settleExits checks every open position on sym against last and closes the
// ones that hit a level. It returns the profiles that closed something.
func (e *Engine) settleExits(ctx context.Context, sym string, last float64, now time.Time) map[string]bool {
	closed := make(map[string]bool)
	for _, pos := range e.ledger.Positions() {
		if pos.Symbol != sym {
			continue
		}
		reason := portfolio.MarkPosition(pos, last)
		if reason == types.ReasonNone && e.cfg.ProfitTakeR > 0 && portfolio.ProfitTake(pos, last, e.cfg.ProfitTakeR) {
			reason = types.ReasonProfitTake
		}
		if reason == types.ReasonNone {
			continue
		}
		net, fee, p, ok := e.ledger.ClosePosition(pos.ID, last)
		if !ok {
			continue
		}
		e.recordClose(ctx, p, reason, last, net, fee, now)
		closed[p.Profile] = true
	}
	return closed
}

func (e *Engine) recordClose(ctx context.Context, p types.Position, reason types.Reason,
	exit, net, fee float64, now time.Time) {

	pnlR := net / math.Max(p.RValue(), 1e-9)
	equity := e.ledger.Equity()

	e.appendTrade(ctx, types.TradeRecord{
		TS:        now,
		Event:     types.EventClose,
		ID:        p.ID,
		Symbol:    p.Symbol,
		Profile:   p.Profile,
		Side:      p.Side,
		Qty:       p.Qty,
		ExitPx:    exit,
		PnL:       net,
		PnLR:      pnlR,
		Reason:    reason,
		Equity:    equity,
		HasEquity: true,
	})

	e.st.Daily.add(net)
	e.st.Summary.add(net)
	if net < 0 {
		e.st.LossesToday++
	}
	metrics.TradesClosed.WithLabelValues(p.Profile, string(reason)).Inc()
	metrics.FeesPaid.WithLabelValues(p.Profile).Add(fee)

	e.log.Info("position_closed",
		logger.String("id", p.ID),
		logger.String("symbol", p.Symbol),
		logger.String("profile", p.Profile),
		logger.String("reason", string(reason)),
		logger.Float64("exit", exit),
		logger.Float64("pnl", net),
		logger.Float64("pnl_r", pnlR),
		logger.Float64("equity", equity),
	)
	e.notifier.Send(ctx, notify.Closed(p, reason, exit, net, pnlR, equity))
}

// tryEntry evaluates one profile on sym and opens the position (or lots)
// when every gate passes.
func (e *Engine) tryEntry(ctx context.Context, sym, prof string, ltf, htf []types.Candle,
	quote *fillQuote, now time.Time) {

	pc, ok := e.cfg.Profile(prof)
	if !ok {
		return
	}
	if e.cfg.MaxPositions > 0 && e.ledger.Count() >= e.cfg.MaxPositions {
		return
	}
	if !e.ledger.CanOpen(prof, sym) {
		return
	}
	key := entryKey(sym, prof)
	if last, ok := e.st.LastEntry[key]; ok && now.Sub(last) < e.cfg.EntryCooldown() {
		return
	}

	sig := e.eval.Evaluate(ltf, htf, e.params[prof])
	if sig.Empty() {
		metrics.Evaluations.WithLabelValues(prof, "none").Inc()
		return
	}
	metrics.Evaluations.WithLabelValues(prof, "signal").Inc()

	sig.Entry = e.fillPrice(ctx, sym, quote, sig.Entry)
	if !sig.Valid() {
		e.log.Warn("signal_rejected",
			logger.String("symbol", sym),
			logger.String("profile", prof),
			logger.Float64("entry", sig.Entry),
			logger.Float64("sl", sig.StopLoss),
			logger.Float64("tp", sig.TakeProfit),
		)
		return
	}

	var opened []types.Position
	if e.cfg.Sizing == config.SizingBatch {
		opened = e.openLots(sym, pc, sig, now)
	} else {
		qty := risk.CalcQty(e.ledger.Equity(), pc.Risk, sig.RValue(), sig.Entry, e.limits)
		if qty <= 0 {
			e.log.Info("size_too_small", logger.String("symbol", sym), logger.String("profile", prof))
			return
		}
		if pos, ok := e.ledger.Open(prof, sym, sig.Side, sig.Entry, qty, sig.StopLoss, sig.TakeProfit, now); ok {
			opened = append(opened, pos)
		}
	}
	if len(opened) == 0 {
		return
	}
	for _, pos := range opened {
		e.recordOpen(ctx, pos, now)
	}
	e.st.LastEntry[key] = now
	if lock := e.cfg.SymbolLock(); lock > 0 {
		e.st.SymbolLock[sym] = now.Add(lock)
	}
}

// fillQuote caches one ticker fetch per symbol and bar.
type fillQuote struct {
	fetched bool
	ask     float64
}

// fillPrice is the simulated buy fill: the live ask when the feed has one,
// otherwise ref raised by the configured spread.
func (e *Engine) fillPrice(ctx context.Context, sym string, q *fillQuote, ref float64) float64 {
	if !q.fetched {
		q.fetched = true
		t, err := e.feed.Ticker(ctx, sym)
		if err != nil {
			e.log.Warn("ticker_unavailable", logger.String("symbol", sym), logger.Err(err))
		} else {
			q.ask = t.Ask
		}
	}
	if q.ask > 0 {
		return q.ask
	}
	return ref * (1 + e.cfg.SpreadBps)
}

// openLots splits the profile capital into BatchSize lots, stopping early
// when the position cap is reached.
func (e *Engine) openLots(sym string, pc config.ProfileConfig, sig types.Signal, now time.Time) []types.Position {
	qty := risk.CalcLotQty(pc.Capital, pc.BatchSize, sig.Entry, e.limits)
	if qty <= 0 || qty*sig.Entry < e.limits.MinNotional-1e-9 {
		e.log.Info("size_too_small", logger.String("symbol", sym), logger.String("profile", pc.Name))
		return nil
	}
	var out []types.Position
	for i := 0; i < pc.BatchSize; i++ {
		if e.cfg.MaxPositions > 0 && e.ledger.Count() >= e.cfg.MaxPositions {
			break
		}
		pos, ok := e.ledger.OpenPosition(types.Position{
			ID:         portfolio.TradeID(sym, now, pc.Name, i),
			Profile:    pc.Name,
			Symbol:     sym,
			Side:       sig.Side,
			Entry:      sig.Entry,
			Qty:        qty,
			StopLoss:   sig.StopLoss,
			TakeProfit: sig.TakeProfit,
			OpenTime:   now,
		})
		if ok {
			out = append(out, pos)
		}
	}
	return out
}

func (e *Engine) recordOpen(ctx context.Context, pos types.Position, now time.Time) {
	equity := e.ledger.Equity()
	e.appendTrade(ctx, types.TradeRecord{
		TS:      now,
		Event:   types.EventOpen,
		ID:      pos.ID,
		Symbol:  pos.Symbol,
		Profile: pos.Profile,
		Side:    pos.Side,
		EntryPx: pos.Entry,
		StopPx:  pos.StopLoss,
		Qty:     pos.Qty,
	})
	metrics.TradesOpened.WithLabelValues(pos.Profile).Inc()
	if pos.EntryFee > 0 {
		metrics.FeesPaid.WithLabelValues(pos.Profile).Add(pos.EntryFee)
	}
	e.log.Info("position_opened",
		logger.String("id", pos.ID),
		logger.String("symbol", pos.Symbol),
		logger.String("profile", pos.Profile),
		logger.Float64("entry", pos.Entry),
		logger.Float64("qty", pos.Qty),
		logger.Float64("sl", pos.StopLoss),
		logger.Float64("tp", pos.TakeProfit),
	)
	e.notifier.Send(ctx, notify.Opened(pos, equity))
}

// appendTrade writes to the trade log. A failed write is logged and the
// loop carries on; the ledger stays authoritative.
func (e *Engine) appendTrade(ctx context.Context, rec types.TradeRecord) {
	if err := e.trades.Append(ctx, rec); err != nil {
		e.log.Error("trade_log_failed",
			logger.String("id", rec.ID),
			logger.String("event", string(rec.Event)),
			logger.Err(err),
		)
	}
}
