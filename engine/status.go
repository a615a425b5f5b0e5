package engine

import (
	"time"

	"github.com/evdnx/papertrader/metrics"
	"github.com/evdnx/papertrader/types"
)

// Status is a point-in-time view of the engine served by the status API.
type Status struct {
	UpdatedAt    time.Time      `json:"updated_at"`
	Equity       float64        `json:"equity"`
	CumFees      float64        `json:"cum_fees"`
	CumPnL       float64        `json:"cum_pnl"`
	Paused       bool           `json:"paused"`
	PausedUntil  *time.Time     `json:"paused_until,omitempty"`
	LossesToday  int            `json:"losses_today"`
	Daily        Counters       `json:"daily"`
	Summary      Counters       `json:"since_summary"`
	Positions    int            `json:"open_positions"`
	OpenNotional float64        `json:"open_notional"`
	Snapshot     types.Snapshot `json:"snapshot"`
}

// Status returns the view published after the last symbol was processed.
// It is safe to call while Run is active.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.status
	s.Snapshot.Positions = append([]types.SnapshotPosition(nil), s.Snapshot.Positions...)
	return s
}

func (e *Engine) publish(now time.Time) {
	s := Status{
		UpdatedAt:    now,
		Equity:       e.ledger.Equity(),
		CumFees:      e.ledger.CumFees(),
		CumPnL:       e.ledger.CumPnL(),
		Paused:       e.st.Paused(now),
		LossesToday:  e.st.LossesToday,
		Daily:        e.st.Daily,
		Summary:      e.st.Summary,
		Positions:    e.ledger.Count(),
		OpenNotional: e.ledger.OpenNotional(),
		Snapshot:     e.ledger.Snapshot(now),
	}
	if s.Paused {
		until := e.st.PausedUntil
		s.PausedUntil = &until
	}

	metrics.EquityGauge.Set(s.Equity)
	for _, pc := range e.cfg.Profiles {
		metrics.PositionsOpen.WithLabelValues(pc.Name).Set(0)
	}
	for prof, n := range e.ledger.CountByProfile() {
		metrics.PositionsOpen.WithLabelValues(prof).Set(float64(n))
	}

	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}
