package types

import "time"

type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Reason is the label attached to a closed position.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonTP         Reason = "TP"
	ReasonSL         Reason = "SL"
	ReasonProfitTake Reason = "PROFIT_TAKE"
)

// Profile names used by the original deployment. Any non-empty string is a
// valid profile; these are only the defaults.
const (
	ProfileAggressive   = "agresivo"
	ProfileModerate     = "moderado"
	ProfileConservative = "conservador"
)

// Candle is one closed OHLCV bar.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

type Ticker struct {
	Bid  float64
	Ask  float64
	Last float64
}

// Signal is the strategy output. A zero Signal (Side == "") means no trade.
type Signal struct {
	Side       Side
	Entry      float64
	StopLoss   float64
	TakeProfit float64
}

func (s Signal) Empty() bool { return s.Side == "" }

// RValue is the entry-to-stop distance.
func (s Signal) RValue() float64 { return s.Entry - s.StopLoss }

// Valid reports whether a long signal respects sl < entry < tp.
func (s Signal) Valid() bool {
	if s.Side != Long {
		return false
	}
	return s.StopLoss > 0 && s.StopLoss < s.Entry && s.Entry < s.TakeProfit
}

// Position is an open paper position owned by the portfolio ledger.
type Position struct {
	ID         string    `json:"id,omitempty"`
	Profile    string    `json:"mode"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Entry      float64   `json:"entry"`
	Qty        float64   `json:"qty"`
	StopLoss   float64   `json:"sl"`
	TakeProfit float64   `json:"tp"`
	OpenTime   time.Time `json:"open_time"`
	EntryFee   float64   `json:"entry_fee,omitempty"`
}

func (p Position) Notional() float64 { return p.Entry * p.Qty }

// RValue is the absolute entry-to-stop distance.
func (p Position) RValue() float64 {
	r := p.Entry - p.StopLoss
	if r < 0 {
		return -r
	}
	return r
}

type Event string

const (
	EventOpen  Event = "OPEN"
	EventClose Event = "CLOSE"
)

// TradeRecord is one row of the trade log. OPEN rows carry the entry terms,
// CLOSE rows carry the exit terms; both share ID.
type TradeRecord struct {
	TS        time.Time
	Event     Event
	ID        string
	Symbol    string
	Profile   string
	Side      Side
	EntryPx   float64
	StopPx    float64
	Qty       float64
	ExitPx    float64
	PnL       float64
	PnLR      float64
	Reason    Reason
	Equity    float64
	HasEquity bool
}

// Snapshot is the persisted portfolio state.
type Snapshot struct {
	TS        int64              `json:"ts"`
	Equity    float64            `json:"equity"`
	Positions []SnapshotPosition `json:"positions"`
}

// SnapshotPosition mirrors Position with an epoch open time.
type SnapshotPosition struct {
	ID       string  `json:"id,omitempty"`
	Profile  string  `json:"mode"`
	Symbol   string  `json:"symbol"`
	Side     Side    `json:"side"`
	Entry    float64 `json:"entry"`
	Qty      float64 `json:"qty"`
	SL       float64 `json:"sl"`
	TP       float64 `json:"tp"`
	OpenTime int64   `json:"open_time"`
}

// ToPosition converts a persisted row back into a ledger position.
func (s SnapshotPosition) ToPosition() Position {
	return Position{
		ID:         s.ID,
		Profile:    s.Profile,
		Symbol:     s.Symbol,
		Side:       s.Side,
		Entry:      s.Entry,
		Qty:        s.Qty,
		StopLoss:   s.SL,
		TakeProfit: s.TP,
		OpenTime:   time.Unix(s.OpenTime, 0).UTC(),
	}
}

// SnapshotOf builds a persisted row from a ledger position.
func SnapshotOf(p Position) SnapshotPosition {
	return SnapshotPosition{
		ID:       p.ID,
		Profile:  p.Profile,
		Symbol:   p.Symbol,
		Side:     p.Side,
		Entry:    p.Entry,
		Qty:      p.Qty,
		SL:       p.StopLoss,
		TP:       p.TakeProfit,
		OpenTime: p.OpenTime.Unix(),
	}
}
