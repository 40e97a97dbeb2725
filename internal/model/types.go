package model

// LeaderboardEntry is one sender's best current estimate. Estimates come from
// the sketch and are upper bounds on the true unread count.
type LeaderboardEntry struct {
	Sender   string
	Estimate int
}

// RankedEntry is one row of the ranked results view. Count is the sketch
// estimate until reconciliation replaces it with an exact query result, at
// which point Verified is set.
type RankedEntry struct {
	Rank     int
	Sender   string
	Count    int
	Verified bool
}

// ActionStatus describes how a delete or block action ended.
type ActionStatus int

const (
	StatusCompleted ActionStatus = iota
	StatusNoMatches
	StatusFailed
)

func (s ActionStatus) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusNoMatches:
		return "no matches"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ActionOutcome reports a per-sender action result. Item-level failures never
// surface as errors; they reduce ItemsAffected instead.
type ActionOutcome struct {
	Sender        string
	ItemsAffected int
	Status        ActionStatus
}

// ScanProgress is sent after each resolved batch. Done is monotone and
// reaches Total exactly once every batch has been dispatched.
type ScanProgress struct {
	Done  int
	Total int
}

// Fraction returns Done/Total clamped to [0, 1].
func (p ScanProgress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Done) / float64(p.Total)
	if f > 1 {
		return 1
	}
	return f
}
