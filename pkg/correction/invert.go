package correction

import (
	"time"

	"postmortemmri/internal/models"
)

// InvertValue remaps a single intensity. White matter values are ramped in
// reverse onto the gray matter band and gray matter values onto the white
// matter band; anything outside both bands becomes background.
func InvertValue(v int, b models.Bands) int {
	switch {
	case v >= b.WMMin && v < b.WMMax:
		frac := float64(b.WMMax-v) / float64(b.WMMax-b.WMMin)
		return int(float64(b.GMMin) + float64(b.GMMax-b.GMMin)*frac)
	case v >= b.GMMin && v < b.GMMax:
		frac := float64(v-b.GMMin) / float64(b.GMMax-b.GMMin)
		return int(float64(b.WMMax) - float64(b.WMMax-b.WMMin)*frac)
	}
	return b.Background
}

// Invert swaps the gray/white contrast of the whole grid. Every later stage
// must use b.Swapped().
func (c *Corrector) Invert(g *models.Grid, b models.Bands) *models.Grid {
	start := time.Now()
	out := models.NewGrid(g.Nx, g.Ny, g.Nz, g.Spacing)
	plane := g.Ny * g.Nz

	changed := c.splitCount(g.Nx, func(lo, hi int) int {
		n := 0
		for i := lo * plane; i < hi*plane; i++ {
			out.Data[i] = InvertValue(g.Data[i], b)
			if out.Data[i] != g.Data[i] {
				n++
			}
		}
		return n
	})

	c.done("intensity_correct", start, changed)
	return out
}
