package analysis

import (
	"sync"
	"time"
)

// CostLedger tracks AI spend against daily and monthly ceilings. All
// increments are serialized by a mutex; window rollover happens lazily on
// access so reads are never staler than the current billing period.
type CostLedger struct {
	mu           sync.Mutex
	dailyLimit   float64
	monthlyLimit float64
	day          string
	daySpent     float64
	month        string
	monthSpent   float64
	now          func() time.Time
}

// NewCostLedger creates a ledger with the given ceilings. A zero or
// negative limit disables that ceiling.
func NewCostLedger(dailyLimit, monthlyLimit float64) *CostLedger {
	return &CostLedger{
		dailyLimit:   dailyLimit,
		monthlyLimit: monthlyLimit,
		now:          time.Now,
	}
}

// roll resets spent counters when the billing window has moved on.
// Callers must hold the mutex.
func (l *CostLedger) roll() {
	now := l.now()
	day := now.Format("2006-01-02")
	month := now.Format("2006-01")
	if day != l.day {
		l.day = day
		l.daySpent = 0
	}
	if month != l.month {
		l.month = month
		l.monthSpent = 0
	}
}

// Exceeded reports whether either ceiling is already reached.
func (l *CostLedger) Exceeded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roll()
	if l.dailyLimit > 0 && l.daySpent >= l.dailyLimit {
		return true
	}
	if l.monthlyLimit > 0 && l.monthSpent >= l.monthlyLimit {
		return true
	}
	return false
}

// Add charges a successful provider call against both windows.
func (l *CostLedger) Add(cost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roll()
	l.daySpent += cost
	l.monthSpent += cost
}

// Spent returns the current daily and monthly totals.
func (l *CostLedger) Spent() (daily, monthly float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roll()
	return l.daySpent, l.monthSpent
}
