package features

import (
	"container/ring"
	"sync"
	"time"
)

type event struct {
	id     string
	amount float64
	t      time.Time
}

// Velocity summarises the recent activity of one user.
type Velocity struct {
	LastHour  int
	LastDay   int
	AvgAmount float64
	Score     float64
}

// VelocityTracker keeps a bounded, time-windowed history of transactions per
// user. It is safe for concurrent use.
type VelocityTracker struct {
	win   time.Duration
	size  int
	users map[string]*ring.Ring
	mu    sync.RWMutex
}

func NewVelocityTracker(win time.Duration, size int) *VelocityTracker {
	if size <= 0 {
		size = 1
	}
	if win <= 0 {
		win = 24 * time.Hour
	}
	return &VelocityTracker{win: win, size: size, users: make(map[string]*ring.Ring)}
}

// Add records a transaction for userID at time at.
func (v *VelocityTracker) Add(userID string, amount float64, at time.Time) {
	v.add(userID, "", amount, at)
}

// add appends to the user's ring. A non-empty id already held in the ring
// is not counted twice.
func (v *VelocityTracker) add(userID, id string, amount float64, at time.Time) bool {
	if userID == "" {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	r, ok := v.users[userID]
	if !ok {
		r = ring.New(v.size)
	} else if id != "" && holds(r, id) {
		return false
	}
	r.Value = event{id, amount, at}
	v.users[userID] = r.Next()
	return true
}

func holds(r *ring.Ring, id string) bool {
	found := false
	r.Do(func(x any) {
		if e, ok := x.(event); ok && e.id == id {
			found = true
		}
	})
	return found
}

// Stats returns the activity of userID in the hour and window ending at at.
func (v *VelocityTracker) Stats(userID string, at time.Time) Velocity {
	v.mu.RLock()
	defer v.mu.RUnlock()

	r, ok := v.users[userID]
	if !ok {
		return Velocity{}
	}

	var out Velocity
	var sum float64
	hourAgo := at.Add(-time.Hour)
	cutoff := at.Add(-v.win)

	r.Do(func(x any) {
		e, ok := x.(event)
		if !ok || !e.t.After(cutoff) || e.t.After(at) {
			return
		}
		out.LastDay++
		sum += e.amount
		if e.t.After(hourAgo) {
			out.LastHour++
		}
	})

	if out.LastDay > 0 {
		out.AvgAmount = sum / float64(out.LastDay)
	}
	hourlyRate := float64(out.LastDay) / v.win.Hours()
	out.Score = float64(out.LastHour) / (hourlyRate + 1)
	return out
}

// Enrich fills the history fields the caller left empty from the tracked
// activity. It only reads the history; Record adds t to it. The input is
// not modified.
func (v *VelocityTracker) Enrich(t Transaction) Transaction {
	if t.UserID == "" || t.Amount == nil {
		return t
	}
	at, err := ParseTimestamp(t.Timestamp)
	if err != nil {
		return t
	}

	s := v.Stats(t.UserID, at)
	out := t
	if out.TransactionsLastHour == nil {
		n := float64(s.LastHour)
		out.TransactionsLastHour = &n
	}
	if out.TransactionsLastDay == nil {
		// the current transaction counts towards its own day
		n := float64(s.LastDay + 1)
		out.TransactionsLastDay = &n
	}
	if out.VelocityScore == nil {
		score := s.Score
		out.VelocityScore = &score
	}
	if out.UserAvgAmount == nil && s.LastDay > 0 {
		avg := s.AvgAmount
		out.UserAvgAmount = &avg
	}
	return out
}

// Record adds a completed transaction to its user's history. It reports
// false when t carries no user, amount or parseable timestamp, or when its
// transaction id was already recorded.
func (v *VelocityTracker) Record(t Transaction) bool {
	if t.UserID == "" || t.Amount == nil {
		return false
	}
	at, err := ParseTimestamp(t.Timestamp)
	if err != nil {
		return false
	}
	return v.add(t.UserID, t.TransactionID, *t.Amount, at)
}

// Prune drops users whose newest event is older than the window at now
// and returns how many were removed.
func (v *VelocityTracker) Prune(now time.Time) int {
	cutoff := now.Add(-v.win)
	v.mu.Lock()
	defer v.mu.Unlock()
	removed := 0
	for user, r := range v.users {
		var newest time.Time
		r.Do(func(x any) {
			if e, ok := x.(event); ok && e.t.After(newest) {
				newest = e.t
			}
		})
		if !newest.After(cutoff) {
			delete(v.users, user)
			removed++
		}
	}
	return removed
}

// Users returns the number of users currently tracked.
func (v *VelocityTracker) Users() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.users)
}
