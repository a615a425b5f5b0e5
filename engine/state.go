package engine

import "time"

// Counters aggregates closed trades over a window.
type Counters struct {
	Trades int     `json:"trades"`
	Wins   int     `json:"wins"`
	Losses int     `json:"losses"`
	PnL    float64 `json:"pnl"`
}

// add counts a close. A zero PnL counts as a win.
func (c *Counters) add(pnl float64) {
	c.Trades++
	if pnl >= 0 {
		c.Wins++
	} else {
		c.Losses++
	}
	c.PnL += pnl
}

func (c Counters) WinRate() float64 {
	if c.Trades == 0 {
		return 0
	}
	return float64(c.Wins) / float64(c.Trades) * 100
}

// LoopState is everything the control loop remembers between ticks.
type LoopState struct {
	// LastBar is the open time of the last LTF bar evaluated per symbol.
	LastBar map[string]time.Time
	// LastEntry is keyed by symbol|profile.
	LastEntry map[string]time.Time
	// SymbolLock holds the time until which a symbol is skipped entirely.
	SymbolLock map[string]time.Time

	PausedUntil time.Time
	// LossesToday counts losing closes since the UTC day started or the
	// last pause, whichever is later.
	LossesToday int
	Day         string
	Daily       Counters

	Summary     Counters
	NextSummary time.Time
}

func NewLoopState() *LoopState {
	return &LoopState{
		LastBar:    make(map[string]time.Time),
		LastEntry:  make(map[string]time.Time),
		SymbolLock: make(map[string]time.Time),
	}
}

func (s *LoopState) Paused(now time.Time) bool {
	return !s.PausedUntil.IsZero() && now.Before(s.PausedUntil)
}

func (s *LoopState) Locked(symbol string, now time.Time) bool {
	until, ok := s.SymbolLock[symbol]
	return ok && now.Before(until)
}

func entryKey(symbol, profile string) string { return symbol + "|" + profile }

// rollDay resets the daily counters when now falls on a new UTC day. It
// returns the counters of the day that just ended.
func (s *LoopState) rollDay(now time.Time) (Counters, bool) {
	day := now.UTC().Format("2006-01-02")
	if s.Day == day {
		return Counters{}, false
	}
	prev, rolled := s.Daily, s.Day != ""
	s.Day = day
	s.Daily = Counters{}
	s.LossesToday = 0
	return prev, rolled
}
