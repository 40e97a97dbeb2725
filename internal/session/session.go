// Package session owns the per-user scan state: the sketch, the leaderboard
// of sender estimates, the listing cursor, and the last-completed-scan
// timestamp. Exactly one scan may run against a session at a time.
package session

import (
	"errors"
	"sync"
	"time"

	"sweepbox/internal/model"
	"sweepbox/internal/sketch"
)

// ErrScanInProgress is returned by BeginScan while another scan holds the session.
var ErrScanInProgress = errors.New("a scan is already in progress")

// ScanSession holds the sketch and leaderboard for one account. The
// leaderboard remembers first-ingest order so that ranking ties break by
// input order and nothing else.
type ScanSession struct {
	sk *sketch.Sketch

	mu       sync.Mutex
	scanning bool
	board    map[string]int
	order    []string
	cursor   string
	scanned  time.Time
	userHash string
}

func New(rows, width int) *ScanSession {
	return &ScanSession{
		sk:    sketch.New(rows, width),
		board: make(map[string]int),
	}
}

// BeginScan claims the session for a scan. The claim must be released with
// EndScan. A second concurrent claim fails.
func (s *ScanSession) BeginScan() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanning {
		return ErrScanInProgress
	}
	s.scanning = true
	return nil
}

// EndScan releases the scan claim. A completed scan stamps the session.
func (s *ScanSession) EndScan(completed bool, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanning = false
	if completed {
		s.scanned = at
	}
}

// Observe ingests one sender key and records its updated estimate on the
// leaderboard. Safe to call from concurrent batch callbacks.
func (s *ScanSession) Observe(key string) int {
	est := s.sk.Ingest(key)
	s.mu.Lock()
	if _, seen := s.board[key]; !seen {
		s.order = append(s.order, key)
	}
	s.board[key] = est
	s.mu.Unlock()
	return est
}

// Entries returns the leaderboard in first-ingest order.
func (s *ScanSession) Entries() []model.LeaderboardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.LeaderboardEntry, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, model.LeaderboardEntry{Sender: k, Estimate: s.board[k]})
	}
	return out
}

// Remove drops a sender from the leaderboard after a successful action, so
// the ranked view does not re-offer an already-cleaned sender before a
// fresh scan.
func (s *ScanSession) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.board[key]; !ok {
		return
	}
	delete(s.board, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Reset zeroes the sketch and clears the leaderboard, cursor, and timestamp.
// Not valid while a scan is in progress.
func (s *ScanSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sk.Reset()
	s.board = make(map[string]int)
	s.order = nil
	s.cursor = ""
	s.scanned = time.Time{}
}

// SetCursor records the listing continuation cursor as pages arrive.
func (s *ScanSession) SetCursor(cursor string) {
	s.mu.Lock()
	s.cursor = cursor
	s.mu.Unlock()
}

func (s *ScanSession) Cursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// LastScanned reports when the last scan completed, if any has.
func (s *ScanSession) LastScanned() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanned, !s.scanned.IsZero()
}

// SetUserHash stores the privacy-preserving account identifier used for
// audit rows.
func (s *ScanSession) SetUserHash(h string) {
	s.mu.Lock()
	s.userHash = h
	s.mu.Unlock()
}

func (s *ScanSession) UserHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userHash
}
