package correction

import (
	"time"

	"postmortemmri/internal/models"
)

// rowSearch finds the tissue boundaries of a single row. Scanning forward, it
// counts voxels above gmMin and returns as start the first index at which
// the count reaches threshold. The same scan over the reversed row yields
// stop, expressed as a forward exclusive bound. ok is false when either
// scan never reaches the threshold.
func rowSearch(row []int, gmMin int, threshold float64) (start, stop int, ok bool) {
	start, found := scanThreshold(len(row), func(i int) int { return row[i] }, gmMin, threshold)
	if !found {
		return 0, 0, false
	}
	n := len(row)
	r, found := scanThreshold(n, func(i int) int { return row[n-1-i] }, gmMin, threshold)
	if !found {
		return 0, 0, false
	}
	return start, n - r, true
}

func scanThreshold(n int, at func(int) int, gmMin int, threshold float64) (int, bool) {
	count := 0
	for i := 0; i < n; i++ {
		if at(i) > gmMin {
			count++
		}
		if float64(count) >= threshold {
			return i, true
		}
	}
	return 0, false
}

// BuildMask estimates the brain interior as the intersection of three
// orthogonal row scans of g. A voxel is protected only if it lies strictly
// inside the tissue range found along its coronal, sagittal and axial rows.
// The tissue range of a row starts once maskDist millimeters of voxels above
// gmMin have been seen from that end. Coronal rows measure that distance with
// the coronal spacing, while sagittal and axial rows each use the spacing of
// the other in-plane axis.
func (c *Corrector) BuildMask(g *models.Grid, gmMin int, maskDist float64) *models.Mask {
	start := time.Now()

	m := c.coronalPass(g, gmMin, maskDist/g.Spacing[models.Coronal])
	m = c.restrictPass(g, m, models.Sagittal, gmMin, maskDist/g.Spacing[models.Axial])
	m = c.restrictPass(g, m, models.Axial, gmMin, maskDist/g.Spacing[models.Sagittal])

	c.log.WithField("protected", m.Count()).Debug("interior mask built")
	c.done("build_mask", start, m.Count())
	return m
}

// coronalPass protects every voxel strictly inside the tissue range of its
// coronal row.
func (c *Corrector) coronalPass(g *models.Grid, gmMin int, threshold float64) *models.Mask {
	m := models.NewMask(g)
	c.split(g.Nx, func(lo, hi int) {
		var row []int
		for x := lo; x < hi; x++ {
			for y := 0; y < g.Ny; y++ {
				row = g.Row(models.Coronal, x, y, row)
				s, e, ok := rowSearch(row, gmMin, threshold)
				if !ok {
					continue
				}
				for z := s + 1; z < e; z++ {
					m.SetProtected(x, y, z, true)
				}
			}
		}
	})
	return m
}

// restrictPass returns a copy of prev in which a voxel stays protected only
// if it is also strictly inside the tissue range of its row along axis.
// Rows without a range clear every cell they cover.
func (c *Corrector) restrictPass(g *models.Grid, prev *models.Mask, axis models.Axis, gmMin int, threshold float64) *models.Mask {
	m := prev.Clone()

	// Rows along Sagittal are fixed by (x, z) and split over x; rows along
	// Axial are fixed by (y, z) and split over y.
	outer, inner := g.Nx, g.Nz
	if axis == models.Axial {
		outer = g.Ny
	}
	c.split(outer, func(lo, hi int) {
		var row []int
		for a := lo; a < hi; a++ {
			for b := 0; b < inner; b++ {
				row = g.Row(axis, a, b, row)
				s, e, ok := rowSearch(row, gmMin, threshold)
				for i := range row {
					keep := ok && i > s && i < e
					x, y, z := a, i, b
					if axis == models.Axial {
						x, y = i, a
					}
					if !keep || !prev.Protected(x, y, z) {
						m.SetProtected(x, y, z, false)
					}
				}
			}
		}
	})
	return m
}
