// Package rank turns the leaderboard into an ordered top-K and reconciles
// each entry's estimate against an exact provider count before anything
// destructive happens.
package rank

import (
	"context"
	"sort"

	"github.com/charmbracelet/log"

	"sweepbox/internal/model"
)

// Counter answers exact unread-inbox counts for a single sender.
type Counter interface {
	CountFrom(ctx context.Context, sender string) (int, error)
}

// TopK stable-sorts entries by estimate descending and returns the first k
// with ranks assigned from 1. Ties keep the input order; there is no
// secondary sort key.
func TopK(entries []model.LeaderboardEntry, k int) []model.RankedEntry {
	sorted := make([]model.LeaderboardEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Estimate > sorted[j].Estimate
	})
	if k > len(sorted) {
		k = len(sorted)
	}
	out := make([]model.RankedEntry, 0, k)
	for i := 0; i < k; i++ {
		out = append(out, model.RankedEntry{
			Rank:   i + 1,
			Sender: sorted[i].Sender,
			Count:  sorted[i].Estimate,
		})
	}
	return out
}

// Reconcile replaces each ranked estimate with an exact count where the
// provider cooperates. A failed count query keeps the sketch estimate and
// leaves the entry unverified; the rest of the list is still reconciled.
// Running Reconcile again over an unchanged mailbox yields identical results.
func Reconcile(ctx context.Context, counter Counter, entries []model.RankedEntry, logger *log.Logger) []model.RankedEntry {
	if logger == nil {
		logger = log.Default()
	}
	out := make([]model.RankedEntry, len(entries))
	copy(out, entries)
	for i := range out {
		n, err := counter.CountFrom(ctx, out[i].Sender)
		if err != nil {
			logger.Warn("count verification failed, keeping estimate",
				"sender", out[i].Sender, "err", err)
			out[i].Verified = false
			continue
		}
		out[i].Count = n
		out[i].Verified = true
	}
	return out
}
