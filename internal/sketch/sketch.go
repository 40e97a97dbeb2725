// Package sketch implements a count-min sketch over sender keys: a fixed
// R×W grid of counters where each ingested key increments one cell per row
// and the estimate is the minimum across the touched cells. Estimates never
// underestimate the true count; hash collisions can only inflate them.
package sketch

import (
	"sync/atomic"

	"github.com/twmb/murmur3"
)

// bucket maps a key and row index to a column in [0, width). Each row uses
// the row index as the murmur3 seed, giving the pairwise-independent-enough
// hash family the grid needs.
func bucket(key string, row, width int) int {
	h := murmur3.SeedSum32(uint32(row), []byte(key))
	return int(h % uint32(width))
}

// Sketch is a fixed-memory frequency estimator. Ingest is safe for
// concurrent use; cells are atomic counters. Reset must not race with
// Ingest — the scan session guarantees exclusive ownership during a scan.
type Sketch struct {
	rows  int
	width int
	grid  []atomic.Int64 // rows*width cells, row-major
}

// New returns a zero-filled sketch. Panics if dimensions are not positive;
// they come from validated config.
func New(rows, width int) *Sketch {
	if rows <= 0 || width <= 0 {
		panic("sketch: dimensions must be positive")
	}
	return &Sketch{
		rows:  rows,
		width: width,
		grid:  make([]atomic.Int64, rows*width),
	}
}

func (s *Sketch) Rows() int  { return s.rows }
func (s *Sketch) Width() int { return s.width }

// Ingest counts one occurrence of key and returns the updated estimate:
// the minimum of the post-increment cell values across all rows.
func (s *Sketch) Ingest(key string) int {
	est := int64(-1)
	for r := 0; r < s.rows; r++ {
		v := s.grid[r*s.width+bucket(key, r, s.width)].Add(1)
		if est < 0 || v < est {
			est = v
		}
	}
	return int(est)
}

// Estimate returns the current estimate for key without counting it.
// Zero means the key has never been ingested (or every row still reads zero).
func (s *Sketch) Estimate(key string) int {
	est := int64(-1)
	for r := 0; r < s.rows; r++ {
		v := s.grid[r*s.width+bucket(key, r, s.width)].Load()
		if est < 0 || v < est {
			est = v
		}
	}
	return int(est)
}

// Reset zeroes every cell.
func (s *Sketch) Reset() {
	for i := range s.grid {
		s.grid[i].Store(0)
	}
}
