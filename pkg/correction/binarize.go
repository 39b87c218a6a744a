package correction

import (
	"time"

	"postmortemmri/internal/models"
)

// BinarizeParams configures conversion to a three level mask. Bands carry
// the post-inversion semantics.
type BinarizeParams struct {
	Bands models.Bands

	// BlurRange (mm) sets the blur box: half of it in-plane, all of it along
	// the coronal axis.
	BlurRange float64

	// CleanupReps is the number of force/blur cycles between the first blur
	// and the final force.
	CleanupReps int
}

// Binarize forces every voxel to background, GMMin or WMMax. The grid is
// blurred first, then forced and re-blurred CleanupReps times, and forced one
// last time so the output only ever holds the three levels.
func (c *Corrector) Binarize(g *models.Grid, p BinarizeParams) *models.Grid {
	start := time.Now()
	s := g.Spacing
	r := [3]int{
		int(p.BlurRange / 2 / s[0]),
		int(p.BlurRange / 2 / s[1]),
		int(p.BlurRange / s[2]),
	}

	out := c.blur(g, r, p.Bands.Background)
	for rep := 0; rep < p.CleanupReps; rep++ {
		out = c.force(out, p.Bands)
		out = c.blur(out, r, p.Bands.Background)
	}
	out = c.force(out, p.Bands)

	c.done("convert_to_mask", start, out.Diff(g))
	return out
}

// blur replaces every voxel above background with the mean of all in-bounds
// voxels in the box of radius r around it.
func (c *Corrector) blur(g *models.Grid, r [3]int, background int) *models.Grid {
	out := g.Clone()
	c.split(g.Nx, func(lo, hi int) {
		for x := lo; x < hi; x++ {
			for y := 0; y < g.Ny; y++ {
				for z := 0; z < g.Nz; z++ {
					i := g.Index(x, y, z)
					if g.Data[i] <= background {
						continue
					}
					sum, n := boxMean(g, x, y, z, r, func(int) bool { return true })
					out.Data[i] = int(float64(sum) / float64(n))
				}
			}
		}
	})
	return out
}

func (c *Corrector) force(g *models.Grid, b models.Bands) *models.Grid {
	out := models.NewGrid(g.Nx, g.Ny, g.Nz, g.Spacing)
	plane := g.Ny * g.Nz
	c.split(g.Nx, func(lo, hi int) {
		for i := lo * plane; i < hi*plane; i++ {
			out.Data[i] = ForceLevel(g.Data[i], b)
		}
	})
	return out
}

// ForceLevel maps v onto background, GMMin or WMMax
func ForceLevel(v int, b models.Bands) int {
	switch {
	case v > b.WMMin:
		return b.WMMax
	case v > b.Background:
		return b.GMMin
	}
	return b.Background
}
