// Package tradelog records OPEN/CLOSE trade events. OPEN rows carry the entry
// terms and CLOSE rows the exit terms; both share the trade id.
package tradelog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/evdnx/papertrader/types"
	"go.uber.org/multierr"
)

// Columns is the header of the CSV trade log.
var Columns = []string{
	"ts", "event", "id", "symbol", "mode", "side",
	"entry_px", "sl_px", "qty", "exit_px", "pnl", "pnl_r", "reason", "equity",
}

// Sink is an append-only trade log.
type Sink interface {
	Append(ctx context.Context, rec types.TradeRecord) error
	Close() error
}

// CSV appends rows to a file, creating it with a header when missing.
type CSV struct {
	path string
	mu   sync.Mutex
}

func NewCSV(path string) (*CSV, error) {
	if path == "" {
		return nil, errors.New("empty trade log path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
		f, err := os.Create(abs)
		if err != nil {
			return nil, err
		}
		w := csv.NewWriter(f)
		_ = w.Write(Columns)
		w.Flush()
		if err := multierr.Append(w.Error(), f.Close()); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return &CSV{path: abs}, nil
}

func (c *CSV) Path() string { return c.path }

func (c *CSV) Append(_ context.Context, rec types.TradeRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(toRow(rec)); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (c *CSV) Close() error { return nil }

func toRow(r types.TradeRecord) []string {
	row := make([]string, len(Columns))
	row[0] = strconv.FormatInt(r.TS.Unix(), 10)
	row[1] = string(r.Event)
	row[2] = r.ID
	switch r.Event {
	case types.EventOpen:
		row[3] = r.Symbol
		row[4] = r.Profile
		row[5] = string(r.Side)
		row[6] = formatF(r.EntryPx)
		row[7] = formatF(r.StopPx)
		row[8] = formatF(r.Qty)
	case types.EventClose:
		row[9] = formatF(r.ExitPx)
		row[10] = formatF(r.PnL)
		row[11] = formatF(r.PnLR)
		row[12] = string(r.Reason)
		if r.HasEquity {
			row[13] = formatF(r.Equity)
		}
	}
	return row
}

// ReadCSV loads every row of a trade log. Blank numeric cells read as zero.
func ReadCSV(path string) ([]types.TradeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read parses a trade log. Columns are matched by header name so logs with
// extra or reordered columns still load.
func Read(r io.Reader) ([]types.TradeRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	idx := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		idx[name] = i
	}
	get := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	out := make([]types.TradeRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		ts, _ := strconv.ParseInt(get(row, "ts"), 10, 64)
		equity := get(row, "equity")
		out = append(out, types.TradeRecord{
			TS:        time.Unix(ts, 0).UTC(),
			Event:     types.Event(get(row, "event")),
			ID:        get(row, "id"),
			Symbol:    get(row, "symbol"),
			Profile:   get(row, "mode"),
			Side:      types.Side(get(row, "side")),
			EntryPx:   parseF(get(row, "entry_px")),
			StopPx:    parseF(get(row, "sl_px")),
			Qty:       parseF(get(row, "qty")),
			ExitPx:    parseF(get(row, "exit_px")),
			PnL:       parseF(get(row, "pnl")),
			PnLR:      parseF(get(row, "pnl_r")),
			Reason:    types.Reason(get(row, "reason")),
			Equity:    parseF(equity),
			HasEquity: equity != "",
		})
	}
	return out, nil
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func parseF(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// multi fans every record out to several sinks.
type multi []Sink

// Multi returns a sink writing to all of sinks. Every sink is attempted and
// the failures are combined.
func Multi(sinks ...Sink) Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return multi(sinks)
}

func (m multi) Append(ctx context.Context, rec types.TradeRecord) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Append(ctx, rec))
	}
	return err
}

func (m multi) Close() error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Close())
	}
	return err
}
