package correction

import (
	"time"

	"postmortemmri/internal/models"
)

// CleanParams configures the background cleaner
type CleanParams struct {
	// SearchDist is the probe distance in voxels; the probe itself sits one
	// voxel past it.
	SearchDist int

	// InclusionReq is the number of axes (0-3) whose probe must reach white
	// matter for a dim voxel to survive.
	InclusionReq int

	WMMin      int
	Background int
}

// StripBorders sets the outer pct fraction of the grid along the axial and
// sagittal axes to background. Each band is measured against the size of its
// own axis. A pct of zero returns an unchanged copy.
func (c *Corrector) StripBorders(g *models.Grid, pct float64, background int) *models.Grid {
	start := time.Now()
	out := g.Clone()
	if pct <= 0 {
		return out
	}

	xLo, xHi := pct*float64(g.Nx), float64(g.Nx)-pct*float64(g.Nx)
	yLo, yHi := pct*float64(g.Ny), float64(g.Ny)-pct*float64(g.Ny)

	changed := c.splitCount(g.Nx, func(lo, hi int) int {
		n := 0
		for x := lo; x < hi; x++ {
			xOut := float64(x) < xLo || float64(x) > xHi
			for y := 0; y < g.Ny; y++ {
				if !xOut && float64(y) >= yLo && float64(y) <= yHi {
					continue
				}
				for z := 0; z < g.Nz; z++ {
					i := g.Index(x, y, z)
					if out.Data[i] != background {
						out.Data[i] = background
						n++
					}
				}
			}
		}
		return n
	})

	c.done("strip_borders", start, changed)
	return out
}

// CleanBackground removes noise near the background in two passes.
//
// The first pass resets every voxel between background and white matter
// whose forward probes along the three axes find white matter on fewer than
// InclusionReq axes. The second pass resets every tissue voxel whose full
// 26-neighborhood is background. Neighbors outside the grid are skipped in
// both passes and never count as a match, so edge voxels survive more often
// than interior ones.
func (c *Corrector) CleanBackground(g *models.Grid, p CleanParams) *models.Grid {
	start := time.Now()

	first := g.Clone()
	isolated := c.splitCount(g.Nx, func(lo, hi int) int {
		return c.cleanIsolatedTissue(g, first, p, lo, hi)
	})

	out := first.Clone()
	pixels := c.splitCount(g.Nx, func(lo, hi int) int {
		return c.cleanIsolatedPixels(first, out, p.Background, lo, hi)
	})

	c.log.WithField("isolated_tissue", isolated).WithField("isolated_pixels", pixels).Debug("background cleaned")
	c.done("clean_background", start, isolated+pixels)
	return out
}

func (c *Corrector) cleanIsolatedTissue(src, dst *models.Grid, p CleanParams, lo, hi int) int {
	off := p.SearchDist + 1
	changed := 0
	for x := lo; x < hi; x++ {
		for y := 0; y < src.Ny; y++ {
			for z := 0; z < src.Nz; z++ {
				v := src.Get(x, y, z)
				if v <= p.Background || v >= p.WMMin {
					continue
				}

				hits := 0
				if n, ok := src.At(x+off, y, z); ok && n > p.WMMin {
					hits++
				}
				if n, ok := src.At(x, y+off, z); ok && n > p.WMMin {
					hits++
				}
				if n, ok := src.At(x, y, z+off); ok && n > p.WMMin {
					hits++
				}

				if hits < p.InclusionReq {
					dst.Set(x, y, z, p.Background)
					changed++
				}
			}
		}
	}
	return changed
}

func (c *Corrector) cleanIsolatedPixels(src, dst *models.Grid, background, lo, hi int) int {
	changed := 0
	for x := lo; x < hi; x++ {
		for y := 0; y < src.Ny; y++ {
			for z := 0; z < src.Nz; z++ {
				if src.Get(x, y, z) <= background {
					continue
				}
				if countBackground(src, x, y, z, [3]int{1, 1, 1}, background) >= 26 {
					dst.Set(x, y, z, background)
					changed++
				}
			}
		}
	}
	return changed
}

// countBackground counts in-bounds voxels equal to background inside the box
// of the given per-axis radius around (x, y, z), center included.
func countBackground(g *models.Grid, x, y, z int, r [3]int, background int) int {
	n := 0
	forBox(g, x, y, z, r, func(i int) {
		if g.Data[i] == background {
			n++
		}
	})
	return n
}
