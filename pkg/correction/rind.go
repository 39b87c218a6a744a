package correction

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"postmortemmri/internal/models"
)

// RindParams configures rind removal. Bands must already carry the swapped
// post-inversion semantics.
type RindParams struct {
	Bands models.Bands

	// Thickness and Explore (mm) together give the radius of the box that is
	// searched for background around a bright voxel.
	Thickness float64
	Explore   float64

	// Cutoff is the number of background voxels in that box that marks a
	// voxel as rind.
	Cutoff int

	// BlurRange (mm) is the radius of the box averaged for replacements
	BlurRange float64

	// ThresholdFraction scales WMMin to give the brightness a voxel needs to
	// be considered at all.
	ThresholdFraction float64

	// AdaptiveSearch raises the upper acceptance bound by
	// WidenStep*(WMMax-WMMin) up to MaxWidenSteps times when no neighbor
	// qualifies.
	AdaptiveSearch bool
	WidenStep      float64
	MaxWidenSteps  int

	// FallbackFraction places the replacement inside the gray band when no
	// neighbor qualifies at all.
	FallbackFraction float64

	// CosmeticBlend re-textures unprotected rind voxels from the pre-inversion
	// snapshot, weighted by CosmeticWeight.
	CosmeticBlend  bool
	CosmeticWeight float64
}

// RindStats summarizes one rind removal run
type RindStats struct {
	Candidates int
	Protected  int
	Widened    int
	Fallbacks  int
	Blended    int
}

// Fields renders the stats as log fields
func (s RindStats) Fields() logrus.Fields {
	return logrus.Fields{
		"candidates": s.Candidates,
		"protected":  s.Protected,
		"widened":    s.Widened,
		"fallbacks":  s.Fallbacks,
		"blended":    s.Blended,
	}
}

type rindCounters struct {
	candidates, protected, widened, fallbacks atomic.Int64
}

// RemoveRind replaces bright voxels that sit next to background with an
// average of their gray matter neighbors.
//
// Detection and replacement read only g; results go to a separate grid so
// that replacing one voxel never influences the next. preFlip is the grid as
// it was before contrast inversion and is only used by the cosmetic pass; it
// may be nil when CosmeticBlend is off.
func (c *Corrector) RemoveRind(g, preFlip *models.Grid, mask *models.Mask, p RindParams) (*models.Grid, RindStats) {
	start := time.Now()
	bound := g.Spacing.Radius(p.Thickness + p.Explore)
	blur := g.Spacing.Radius(p.BlurRange)
	threshold := float64(p.Bands.WMMin) * p.ThresholdFraction

	out := g.Clone()
	rind := make([]bool, len(g.Data))
	var counters rindCounters

	c.split(g.Nx, func(lo, hi int) {
		for x := lo; x < hi; x++ {
			for y := 0; y < g.Ny; y++ {
				for z := 0; z < g.Nz; z++ {
					if float64(g.Get(x, y, z)) <= threshold {
						continue
					}
					if countBackground(g, x, y, z, bound, p.Bands.Background) < p.Cutoff {
						continue
					}

					i := g.Index(x, y, z)
					rind[i] = true
					counters.candidates.Add(1)
					protected := mask.Protected(x, y, z)
					if protected {
						counters.protected.Add(1)
					}
					out.Data[i] = c.rindReplacement(g, x, y, z, blur, protected, p, &counters)
				}
			}
		}
	})

	stats := RindStats{
		Candidates: int(counters.candidates.Load()),
		Protected:  int(counters.protected.Load()),
		Widened:    int(counters.widened.Load()),
		Fallbacks:  int(counters.fallbacks.Load()),
	}

	if p.CosmeticBlend && preFlip != nil {
		stats.Blended = c.blendRind(out, preFlip, mask, rind, blur, p)
	}

	c.log.WithFields(stats.Fields()).Debug("rind removed")
	c.done("remove_rind", start, stats.Candidates)
	return out, stats
}

// rindReplacement averages the neighbors of a rind voxel that fall inside the
// acceptance band. Protected voxels accept anything above GMMin.
func (c *Corrector) rindReplacement(g *models.Grid, x, y, z int, blur [3]int, protected bool, p RindParams, counters *rindCounters) int {
	b := p.Bands
	upper := float64(b.GMMax)
	steps := 0
	if p.AdaptiveSearch {
		steps = p.MaxWidenSteps
	}

	for attempt := 0; attempt <= steps; attempt++ {
		if attempt > 0 {
			upper += p.WidenStep * float64(b.WMMax-b.WMMin)
		}
		sum, n := boxMean(g, x, y, z, blur, func(v int) bool {
			if protected {
				return v > b.GMMin
			}
			return v > b.GMMin && float64(v) < upper
		})
		if n > 0 {
			if attempt > 0 {
				counters.widened.Add(1)
			}
			return int(float64(sum) / float64(n))
		}
		if protected {
			// widening the upper bound cannot change anything
			break
		}
	}

	counters.fallbacks.Add(1)
	return int(float64(b.GMMin) + p.FallbackFraction*float64(b.GMMax-b.GMMin))
}

// blendRind nudges every unprotected rind voxel by a fraction of the mean
// pre-inversion difference to its neighbors.
func (c *Corrector) blendRind(out, preFlip *models.Grid, mask *models.Mask, rind []bool, blur [3]int, p RindParams) int {
	bg := p.Bands.Background
	// out is read and written at the same index only, so it can be
	// updated in place.
	return c.splitCount(out.Nx, func(lo, hi int) int {
		blended := 0
		for x := lo; x < hi; x++ {
			for y := 0; y < out.Ny; y++ {
				for z := 0; z < out.Nz; z++ {
					i := out.Index(x, y, z)
					if !rind[i] || mask.ProtectedAt(i) {
						continue
					}

					center := preFlip.Data[i]
					diff, n := 0, 0
					forBox(preFlip, x, y, z, blur, func(j int) {
						if j == i || preFlip.Data[j] <= bg {
							return
						}
						diff += preFlip.Data[j] - center
						n++
					})
					if n == 0 {
						continue
					}
					avg := float64(diff) / float64(n)
					out.Data[i] = int(float64(out.Data[i]) - avg*p.CosmeticWeight)
					blended++
				}
			}
		}
		return blended
	})
}

// forBox calls fn with the flat index of every in-bounds voxel in the box of
// radius r around (x, y, z), center included.
func forBox(g *models.Grid, x, y, z int, r [3]int, fn func(i int)) {
	x0, x1 := max(x-r[0], 0), min(x+r[0], g.Nx-1)
	y0, y1 := max(y-r[1], 0), min(y+r[1], g.Ny-1)
	z0, z1 := max(z-r[2], 0), min(z+r[2], g.Nz-1)
	for i := x0; i <= x1; i++ {
		for j := y0; j <= y1; j++ {
			base := g.Index(i, j, 0)
			for k := z0; k <= z1; k++ {
				fn(base + k)
			}
		}
	}
}

// boxMean sums the accepted voxels in the box of radius r around (x, y, z)
func boxMean(g *models.Grid, x, y, z int, r [3]int, accept func(int) bool) (sum, n int) {
	forBox(g, x, y, z, r, func(i int) {
		if v := g.Data[i]; accept(v) {
			sum += v
			n++
		}
	})
	return sum, n
}
