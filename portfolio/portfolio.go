package portfolio

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/evdnx/papertrader/types"
)

// Ledger is the paper portfolio used by the control loop. Reads are safe
// from other goroutines; mutations are expected from a single loop.
type Ledger interface {
	CanOpen(profile, symbol string) bool
	Open(profile, symbol string, side types.Side, entry, qty, sl, tp float64, at time.Time) (types.Position, bool)
	OpenPosition(p types.Position) (types.Position, bool)
	Mark(profile, symbol string, last float64) types.Reason
	Close(profile, symbol string, exit float64) (net, fee float64, pos types.Position, ok bool)
	ClosePosition(id string, exit float64) (net, fee float64, pos types.Position, ok bool)
	PositionsFor(profile, symbol string) []types.Position
	Positions() []types.Position
	Count() int
	CountByProfile() map[string]int
	Equity() float64
	OpenNotional() float64
	CumFees() float64
	CumPnL() float64
	Snapshot(at time.Time) types.Snapshot
	Restore(s types.Snapshot) int
}

// Options selects the fee and keying variant.
type Options struct {
	StartEquity float64
	FeeRate     float64 // taker fee as a fraction of notional
	// FeeOnEntry charges the taker fee on the entry notional at open in
	// addition to the exit fee at close. Default is exit-only.
	FeeOnEntry bool
	// MultiLot lifts the one-position-per-(profile, symbol) constraint.
	MultiLot bool
}

// PaperPortfolio tracks equity and open positions with perfect fills.
type PaperPortfolio struct {
	mu        sync.RWMutex
	opts      Options
	equity    float64
	positions []types.Position // insertion order
	cumFees   float64
	cumPnL    float64
	seq       int
}

var _ Ledger = (*PaperPortfolio)(nil)

func NewPaperPortfolio(opts Options) *PaperPortfolio {
	return &PaperPortfolio{
		opts:   opts,
		equity: opts.StartEquity,
	}
}

// TradeID builds the identifier shared by OPEN and CLOSE log rows:
// symbol-openUnix[-profile][-lotN]. A negative lot omits the lot suffix.
func TradeID(symbol string, openTime time.Time, profile string, lot int) string {
	id := fmt.Sprintf("%s-%d", symbol, openTime.Unix())
	if profile != "" {
		id += "-" + profile
	}
	if lot >= 0 {
		id += fmt.Sprintf("-lot%d", lot)
	}
	return id
}

// CanOpen reports whether (profile, symbol) is free. Always true in
// multi-lot mode, where capacity is the caller's concern.
func (p *PaperPortfolio) CanOpen(profile, symbol string) bool {
	if p.opts.MultiLot {
		return true
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.indexOf(profile, symbol) < 0
}

// Open records a new position. It is a no-op returning false when qty or
// entry is not positive, or when the key is taken in single-position mode.
func (p *PaperPortfolio) Open(profile, symbol string, side types.Side,
	entry, qty, sl, tp float64, at time.Time) (types.Position, bool) {

	return p.OpenPosition(types.Position{
		Profile:    profile,
		Symbol:     symbol,
		Side:       side,
		Entry:      entry,
		Qty:        qty,
		StopLoss:   sl,
		TakeProfit: tp,
		OpenTime:   at,
	})
}

// OpenPosition is Open for a caller-built position (lots carry their own id).
func (p *PaperPortfolio) OpenPosition(pos types.Position) (types.Position, bool) {
	if pos.Qty <= 0 || pos.Entry <= 0 {
		return types.Position{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.opts.MultiLot && p.indexOf(pos.Profile, pos.Symbol) >= 0 {
		return types.Position{}, false
	}
	if pos.Side == "" {
		pos.Side = types.Long
	}
	if pos.OpenTime.IsZero() {
		pos.OpenTime = time.Now().UTC()
	}
	if pos.ID == "" {
		lot := -1
		if p.opts.MultiLot {
			lot = p.seq
		}
		pos.ID = TradeID(pos.Symbol, pos.OpenTime, pos.Profile, lot)
	}
	p.seq++
	if p.opts.FeeOnEntry {
		pos.EntryFee = p.opts.FeeRate * pos.Notional()
		p.equity -= pos.EntryFee
		p.cumFees += pos.EntryFee
	}
	p.positions = append(p.positions, pos)
	return pos, true
}

// Restore re-inserts positions and equity from a snapshot without charging
// fees. Rows with non-positive qty or entry are skipped.
func (p *PaperPortfolio) Restore(s types.Snapshot) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.equity = s.Equity
	p.positions = p.positions[:0]
	for _, row := range s.Positions {
		pos := row.ToPosition()
		if pos.Qty <= 0 || pos.Entry <= 0 {
			continue
		}
		if !p.opts.MultiLot && p.indexOf(pos.Profile, pos.Symbol) >= 0 {
			continue
		}
		if pos.ID == "" {
			pos.ID = TradeID(pos.Symbol, pos.OpenTime, pos.Profile, -1)
		}
		p.positions = append(p.positions, pos)
	}
	p.seq = len(p.positions)
	return len(p.positions)
}

// Mark checks the first position on (profile, symbol) against last.
func (p *PaperPortfolio) Mark(profile, symbol string, last float64) types.Reason {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i := p.indexOf(profile, symbol)
	if i < 0 {
		return types.ReasonNone
	}
	return MarkPosition(p.positions[i], last)
}

// MarkPosition returns TP or SL when last crosses a level. When both are hit
// on the same price the stop wins.
func MarkPosition(pos types.Position, last float64) types.Reason {
	var hitTP, hitSL bool
	if pos.Side == types.Short {
		hitTP = last <= pos.TakeProfit
		hitSL = last >= pos.StopLoss
	} else {
		hitTP = last >= pos.TakeProfit
		hitSL = last <= pos.StopLoss
	}
	switch {
	case hitSL:
		return types.ReasonSL
	case hitTP:
		return types.ReasonTP
	}
	return types.ReasonNone
}

// ProfitTake reports whether a long has gained at least minR risk units.
func ProfitTake(pos types.Position, last, minR float64) bool {
	if pos.Side != types.Long || last <= pos.Entry {
		return false
	}
	r := pos.Entry - pos.StopLoss
	if r <= 0 {
		return false
	}
	return (last-pos.Entry)/r >= minR
}

// Close settles the first position on (profile, symbol). A missing key
// returns ok=false and zero values.
func (p *PaperPortfolio) Close(profile, symbol string, exit float64) (float64, float64, types.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeAt(p.indexOf(profile, symbol), exit)
}

// ClosePosition settles the position with the given id.
func (p *PaperPortfolio) ClosePosition(id string, exit float64) (float64, float64, types.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := -1
	for i, pos := range p.positions {
		if pos.ID == id {
			idx = i
			break
		}
	}
	return p.closeAt(idx, exit)
}

func (p *PaperPortfolio) closeAt(i int, exit float64) (float64, float64, types.Position, bool) {
	if i < 0 {
		return 0, 0, types.Position{}, false
	}
	pos := p.positions[i]
	var gross float64
	if pos.Side == types.Short {
		gross = (pos.Entry - exit) * pos.Qty
	} else {
		gross = (exit - pos.Entry) * pos.Qty
	}
	fee := p.opts.FeeRate * exit * pos.Qty
	net := gross - fee

	p.equity += net
	p.cumPnL += gross
	p.cumFees += fee
	p.positions = append(p.positions[:i], p.positions[i+1:]...)
	return net, fee, pos, true
}

// PositionsFor returns the positions on (profile, symbol), oldest first.
func (p *PaperPortfolio) PositionsFor(profile, symbol string) []types.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []types.Position
	for _, pos := range p.positions {
		if pos.Profile == profile && pos.Symbol == symbol {
			out = append(out, pos)
		}
	}
	return out
}

// Positions returns a copy of every open position.
func (p *PaperPortfolio) Positions() []types.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]types.Position, len(p.positions))
	copy(out, p.positions)
	return out
}

func (p *PaperPortfolio) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.positions)
}

// CountByProfile is used for the per-profile gauge.
func (p *PaperPortfolio) CountByProfile() map[string]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]int)
	for _, pos := range p.positions {
		out[pos.Profile]++
	}
	return out
}

func (p *PaperPortfolio) Equity() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.equity
}

// OpenNotional is the entry value of all open positions.
func (p *PaperPortfolio) OpenNotional() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := 0.0
	for _, pos := range p.positions {
		total += pos.Notional()
	}
	return total
}

func (p *PaperPortfolio) CumFees() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cumFees
}

// CumPnL is the gross realized PnL before fees.
func (p *PaperPortfolio) CumPnL() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cumPnL
}

// Snapshot renders the persisted form, positions sorted by (profile, symbol, id).
func (p *PaperPortfolio) Snapshot(at time.Time) types.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rows := make([]types.SnapshotPosition, 0, len(p.positions))
	for _, pos := range p.positions {
		rows = append(rows, types.SnapshotOf(pos))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Profile != rows[j].Profile {
			return rows[i].Profile < rows[j].Profile
		}
		if rows[i].Symbol != rows[j].Symbol {
			return rows[i].Symbol < rows[j].Symbol
		}
		return rows[i].ID < rows[j].ID
	})
	return types.Snapshot{TS: at.Unix(), Equity: p.equity, Positions: rows}
}

func (p *PaperPortfolio) indexOf(profile, symbol string) int {
	for i, pos := range p.positions {
		if pos.Profile == profile && pos.Symbol == symbol {
			return i
		}
	}
	return -1
}
