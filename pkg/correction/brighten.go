package correction

import (
	"time"

	"golang.org/x/exp/rand"

	"postmortemmri/internal/models"
)

// Brighten multiplies every non-background voxel by 1+pct. Results are
// truncated and not clamped.
func (c *Corrector) Brighten(g *models.Grid, pct float64, background int) *models.Grid {
	start := time.Now()
	out := g.Clone()
	factor := 1 + pct
	plane := g.Ny * g.Nz

	changed := c.splitCount(g.Nx, func(lo, hi int) int {
		n := 0
		for i := lo * plane; i < hi*plane; i++ {
			v := out.Data[i]
			if v == background {
				continue
			}
			out.Data[i] = int(float64(v) * factor)
			if out.Data[i] != v {
				n++
			}
		}
		return n
	})

	c.done("brighten", start, changed)
	return out
}

// TextureParams configures the background texture fill
type TextureParams struct {
	Min, Max   int
	Background int
	Seed       uint64
}

// FillBackground replaces every background voxel with a uniform random
// intensity in [Min, Max]. The same seed always produces the same grid.
// The fill runs sequentially so the result does not depend on the worker
// count.
func (c *Corrector) FillBackground(g *models.Grid, p TextureParams) *models.Grid {
	start := time.Now()
	out := g.Clone()
	rng := rand.New(rand.NewSource(p.Seed))
	span := p.Max - p.Min + 1

	changed := 0
	for i, v := range out.Data {
		if v != p.Background {
			continue
		}
		out.Data[i] = p.Min + rng.Intn(span)
		changed++
	}

	c.done("background_texture", start, changed)
	return out
}
