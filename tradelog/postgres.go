package tradelog

import (
	"context"
	"fmt"
	"time"

	"github.com/evdnx/papertrader/types"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schema = `CREATE TABLE IF NOT EXISTS paper_trades (
	seq       BIGSERIAL PRIMARY KEY,
	run_id    TEXT        NOT NULL,
	ts        TIMESTAMPTZ NOT NULL,
	event     TEXT        NOT NULL,
	trade_id  TEXT        NOT NULL,
	symbol    TEXT,
	mode      TEXT,
	side      TEXT,
	entry_px  DOUBLE PRECISION,
	sl_px     DOUBLE PRECISION,
	qty       DOUBLE PRECISION,
	exit_px   DOUBLE PRECISION,
	pnl       DOUBLE PRECISION,
	pnl_r     DOUBLE PRECISION,
	reason    TEXT,
	equity    DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS paper_trades_trade_id ON paper_trades (trade_id);`

const insertTrade = `INSERT INTO paper_trades
	(run_id, ts, event, trade_id, symbol, mode, side, entry_px, sl_px, qty, exit_px, pnl, pnl_r, reason, equity)
VALUES
	(:run_id, :ts, :event, :trade_id, :symbol, :mode, :side, :entry_px, :sl_px, :qty, :exit_px, :pnl, :pnl_r, :reason, :equity)`

// row mirrors paper_trades. Columns that do not apply to the event are NULL.
type row struct {
	RunID   string    `db:"run_id"`
	TS      time.Time `db:"ts"`
	Event   string    `db:"event"`
	TradeID string    `db:"trade_id"`
	Symbol  *string   `db:"symbol"`
	Mode    *string   `db:"mode"`
	Side    *string   `db:"side"`
	EntryPx *float64  `db:"entry_px"`
	SlPx    *float64  `db:"sl_px"`
	Qty     *float64  `db:"qty"`
	ExitPx  *float64  `db:"exit_px"`
	PnL     *float64  `db:"pnl"`
	PnLR    *float64  `db:"pnl_r"`
	Reason  *string   `db:"reason"`
	Equity  *float64  `db:"equity"`
}

func toDBRow(runID string, r types.TradeRecord) row {
	out := row{RunID: runID, TS: r.TS.UTC(), Event: string(r.Event), TradeID: r.ID}
	switch r.Event {
	case types.EventOpen:
		out.Symbol = strPtr(r.Symbol)
		out.Mode = strPtr(r.Profile)
		out.Side = strPtr(string(r.Side))
		out.EntryPx = &r.EntryPx
		out.SlPx = &r.StopPx
		out.Qty = &r.Qty
	case types.EventClose:
		out.ExitPx = &r.ExitPx
		out.PnL = &r.PnL
		out.PnLR = &r.PnLR
		out.Reason = strPtr(string(r.Reason))
		if r.HasEquity {
			out.Equity = &r.Equity
		}
	}
	return out
}

func strPtr(s string) *string { return &s }

// Postgres stores trade events in the paper_trades table, stamped with the
// run id of the process that produced them.
type Postgres struct {
	db    *sqlx.DB
	runID string
}

// NewPostgres connects, checks the connection and creates the table if needed.
func NewPostgres(ctx context.Context, dsn string, maxConns int, runID string) (*Postgres, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create paper_trades: %w", err)
	}
	return &Postgres{db: db, runID: runID}, nil
}

func (p *Postgres) Append(ctx context.Context, rec types.TradeRecord) error {
	if _, err := p.db.NamedExecContext(ctx, insertTrade, toDBRow(p.runID, rec)); err != nil {
		return fmt.Errorf("insert trade %s: %w", rec.ID, err)
	}
	return nil
}

// Records returns logged events in insertion order. An empty runID reads
// every run, so trades opened before a restart still meet their close.
func (p *Postgres) Records(ctx context.Context, runID string) ([]types.TradeRecord, error) {
	var rows []row
	query, args := recordsQuery(runID)
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]types.TradeRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromDBRow(r))
	}
	return out, nil
}

const selectTrades = `SELECT run_id, ts, event, trade_id, symbol, mode, side,
	entry_px, sl_px, qty, exit_px, pnl, pnl_r, reason, equity
	FROM paper_trades`

func recordsQuery(runID string) (string, []interface{}) {
	if runID == "" {
		return selectTrades + ` ORDER BY seq`, nil
	}
	return selectTrades + ` WHERE run_id = $1 ORDER BY seq`, []interface{}{runID}
}

func fromDBRow(r row) types.TradeRecord {
	rec := types.TradeRecord{
		TS:        r.TS.UTC(),
		Event:     types.Event(r.Event),
		ID:        r.TradeID,
		Symbol:    deref(r.Symbol),
		Profile:   deref(r.Mode),
		Side:      types.Side(deref(r.Side)),
		EntryPx:   derefF(r.EntryPx),
		StopPx:    derefF(r.SlPx),
		Qty:       derefF(r.Qty),
		ExitPx:    derefF(r.ExitPx),
		PnL:       derefF(r.PnL),
		PnLR:      derefF(r.PnLR),
		Reason:    types.Reason(deref(r.Reason)),
		Equity:    derefF(r.Equity),
		HasEquity: r.Equity != nil,
	}
	return rec
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefF(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func (p *Postgres) Close() error { return p.db.Close() }
