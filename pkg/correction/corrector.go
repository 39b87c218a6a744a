// Package correction implements the voxel-domain stages that correct
// postmortem MRI volumes: background cleaning, section and global intensity
// normalization, contrast inversion, interior mask construction, rind
// removal, binarization and brightening.
//
// Every stage reads a frozen input grid and writes a separate output grid,
// so the outer loop can be split across workers without locking. Neighbor
// lookups that fall outside the grid are treated as absent: they never count
// as background, tissue or mask matches.
package correction

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"postmortemmri/internal/logging"
)

// Corrector runs correction stages with a fixed worker count.
type Corrector struct {
	workers int
	log     logrus.FieldLogger
}

// NewCorrector creates a corrector. workers below 1 run sequentially; a nil
// logger discards progress output.
func NewCorrector(workers int, log logrus.FieldLogger) *Corrector {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Corrector{workers: workers, log: log}
}

// Workers returns the configured worker count
func (c *Corrector) Workers() int {
	return c.workers
}

// split runs fn over [0, n) divided into contiguous ranges, one per worker.
// Each range is handled by exactly one goroutine, so fn may write any output
// index inside its own range.
func (c *Corrector) split(n int, fn func(lo, hi int)) {
	workers := c.workers
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var g errgroup.Group
	for lo := 0; lo < n; lo += chunk {
		lo := lo
		hi := min(lo+chunk, n)
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}

// splitCount is split for stages that count changed voxels per range.
func (c *Corrector) splitCount(n int, fn func(lo, hi int) int) int {
	counts := make([]int, n+1)
	c.split(n, func(lo, hi int) {
		counts[lo] = fn(lo, hi)
	})
	total := 0
	for _, v := range counts {
		total += v
	}
	return total
}

func (c *Corrector) done(stage string, start time.Time, changed int) {
	c.log.WithFields(logrus.Fields{
		"stage":   stage,
		"changed": humanize.Comma(int64(changed)),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Debug("stage complete")
}
