package models

import "time"

// Snapshot is a point-in-time reading of a campaign's public counters.
// Pledged is held in whole currency units; fractions are dropped when the
// stats document is parsed.
type Snapshot struct {
	Pledged       int64 `json:"pledged" validate:"gte=0"`
	BackersCount  int   `json:"backers_count" validate:"gte=0"`
	CommentsCount int   `json:"comments_count" validate:"gte=0"`
}

// IsZero reports whether every counter is zero.
func (s Snapshot) IsZero() bool {
	return s == Snapshot{}
}

// Add returns the field-wise sum of s and o.
func (s Snapshot) Add(o Snapshot) Snapshot {
	return Snapshot{
		Pledged:       s.Pledged + o.Pledged,
		BackersCount:  s.BackersCount + o.BackersCount,
		CommentsCount: s.CommentsCount + o.CommentsCount,
	}
}

// Sub returns the signed field-wise difference s - o.
func (s Snapshot) Sub(o Snapshot) Snapshot {
	return Snapshot{
		Pledged:       s.Pledged - o.Pledged,
		BackersCount:  s.BackersCount - o.BackersCount,
		CommentsCount: s.CommentsCount - o.CommentsCount,
	}
}

// Tally holds the running totals since the last reset and the most recent
// change. The zero value is not a clean run; use NewTally.
type Tally struct {
	totals       Snapshot
	lastChange   Snapshot
	lastChangeAt time.Time
	cleanRun     bool
}

// NewTally returns a clean tally whose totals start at seed.
func NewTally(seed *Snapshot) *Tally {
	t := &Tally{}
	t.Reset(seed)
	return t
}

// Apply records delta when changed is true. Unchanged polls leave the tally
// untouched.
func (t *Tally) Apply(delta Snapshot, changed bool, at time.Time) {
	if !changed {
		return
	}
	t.lastChange = delta
	t.totals = t.totals.Add(delta)
	t.lastChangeAt = at
	t.cleanRun = false
}

// Reset discards all recorded changes and seeds the totals.
func (t *Tally) Reset(seed *Snapshot) {
	t.totals = Snapshot{}
	if seed != nil {
		t.totals = *seed
	}
	t.lastChange = Snapshot{}
	t.lastChangeAt = time.Time{}
	t.cleanRun = true
}

// Totals is the seed plus every delta applied since the last reset.
func (t *Tally) Totals() Snapshot { return t.totals }

// LastChange is the most recent applied delta, zero after a reset.
func (t *Tally) LastChange() Snapshot { return t.lastChange }

// LastChangeAt is zero until the first change after a reset.
func (t *Tally) LastChangeAt() time.Time { return t.lastChangeAt }

// CleanRun is true until a change is observed after a reset.
func (t *Tally) CleanRun() bool { return t.cleanRun }
