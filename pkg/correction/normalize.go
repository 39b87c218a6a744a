package correction

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"postmortemmri/internal/models"
)

const (
	// histogramMax bounds the global intensity histogram; values at or above
	// it are ignored.
	histogramMax = 10000

	// histogramBinWidth is the width of one histogram bin in intensity units
	histogramBinWidth = 5
)

// SliceParams configures one slice normalization pass
type SliceParams struct {
	// SliceDist is the number of coronal sections on each side that
	// contribute to a section's local average.
	SliceDist int

	// Rank selects the representative intensity: the Rank-th largest value
	// above WMMin in a section.
	Rank int

	WMMin int
	GMMax int
}

// SectionProfile records the statistics of one slice normalization pass.
type SectionProfile struct {
	SliceDist int

	// Reps holds the representative intensity of every coronal section
	Reps []int

	// HasData is false for sections that fell back to GMMax
	HasData []bool

	// LocalAvg holds the smoothed representative used to rescale each section
	LocalAvg []float64

	// AvgHigh is the common target all sections are scaled toward
	AvgHigh int

	// Skipped is true when no section had enough tissue and the grid was
	// left unchanged.
	Skipped bool
}

// NormalizeSlices corrects per-section gain along the coronal axis.
//
// Each section gets a representative intensity from a rank statistic of its
// bright voxels. Sections are then rescaled so that their representative,
// averaged with neighbors within SliceDist, matches the middle entry of the
// representative list. Neighbors whose representative is not below GMMax
// are left out of the average.
func (c *Corrector) NormalizeSlices(g *models.Grid, p SliceParams) (*models.Grid, SectionProfile) {
	start := time.Now()
	prof := SectionProfile{
		SliceDist: p.SliceDist,
		Reps:      make([]int, g.Nz),
		HasData:   make([]bool, g.Nz),
		LocalAvg:  make([]float64, g.Nz),
	}

	var present []int
	for z := 0; z < g.Nz; z++ {
		rep, ok := sectionRepresentative(g, z, p)
		prof.Reps[z] = rep
		prof.HasData[z] = ok
		if ok {
			present = append(present, rep)
		}
	}

	out := g.Clone()
	if len(present) == 0 {
		prof.Skipped = true
		c.log.WithField("stage", "normalize_slices").Warn("no section has enough tissue, skipping")
		return out, prof
	}
	prof.AvgHigh = present[len(present)/2]

	for z := 0; z < g.Nz; z++ {
		sum, n := float64(prof.Reps[z]), 1
		for d := -p.SliceDist; d <= p.SliceDist; d++ {
			j := z + d
			if j < 0 || j >= g.Nz || prof.Reps[j] >= p.GMMax {
				continue
			}
			sum += float64(prof.Reps[j])
			n++
		}
		prof.LocalAvg[z] = sum / float64(n)
	}
	target := float64(prof.AvgHigh)

	changed := c.splitCount(g.Nx, func(lo, hi int) int {
		n := 0
		for x := lo; x < hi; x++ {
			for y := 0; y < g.Ny; y++ {
				base := g.Index(x, y, 0)
				for z := 0; z < g.Nz; z++ {
					avg := prof.LocalAvg[z]
					if avg == 0 {
						continue
					}
					// multiply before dividing so a voxel at avg lands exactly on target
					v := g.Data[base+z]
					nv := int(float64(v) * target / avg)
					if nv != v {
						out.Data[base+z] = nv
						n++
					}
				}
			}
		}
		return n
	})

	c.log.WithField("slice_dist", p.SliceDist).WithField("avg_high", prof.AvgHigh).Debug("sections rescaled")
	c.done("normalize_slices", start, changed)
	return out, prof
}

// sectionRepresentative returns the Rank-th largest intensity above WMMin in
// coronal section z. The second result is false when the section has no
// more than Rank such voxels, in which case GMMax is returned.
func sectionRepresentative(g *models.Grid, z int, p SliceParams) (int, bool) {
	var vals []int
	for x := 0; x < g.Nx; x++ {
		for y := 0; y < g.Ny; y++ {
			if v := g.Get(x, y, z); v > p.WMMin {
				vals = append(vals, v)
			}
		}
	}
	rank := max(p.Rank, 1)
	if len(vals) <= rank {
		return p.GMMax, false
	}
	sort.Ints(vals)
	return vals[len(vals)-rank], true
}

// Histogram is the binned intensity distribution used by the global
// normalizer.
type Histogram struct {
	// Dividers are the bin edges, Counts[i] covers [Dividers[i], Dividers[i+1])
	Dividers []float64
	Counts   []float64

	// Mode is the representative intensity of the fullest bin, ignoring bin 0.
	// It is 0 when every counted voxel fell in bin 0.
	Mode int

	// Empty is true when no voxel fell inside the histogram range
	Empty bool
}

// IntensityHistogram bins every voxel above background into 5-unit bins over
// [0, 10000).
func IntensityHistogram(g *models.Grid, background int) Histogram {
	nBins := histogramMax / histogramBinWidth
	dividers := make([]float64, nBins+1)
	floats.Span(dividers, 0, histogramMax)

	var vals []float64
	for _, v := range g.Data {
		if v > background && v >= 0 && v < histogramMax {
			vals = append(vals, float64(v))
		}
	}

	h := Histogram{Dividers: dividers}
	if len(vals) == 0 {
		h.Counts = make([]float64, nBins)
		h.Empty = true
		return h
	}
	sort.Float64s(vals)
	h.Counts = stat.Histogram(nil, dividers, vals, nil)

	// bin 0 is background; with nothing above it the mode stays 0
	best, bestCount := 0, 0.0
	for i := 1; i < len(h.Counts); i++ {
		if h.Counts[i] > bestCount {
			best, bestCount = i, h.Counts[i]
		}
	}
	h.Mode = best * histogramBinWidth
	return h
}

// NormalizeGlobal shifts every positive voxel so the histogram mode lands on
// target. The shift is applied without clamping. The histogram is returned
// for reporting.
func (c *Corrector) NormalizeGlobal(g *models.Grid, target, background int) (*models.Grid, Histogram) {
	start := time.Now()
	h := IntensityHistogram(g, background)
	out := g.Clone()
	if h.Empty {
		c.log.WithField("stage", "normalize_global").Warn("histogram is empty, skipping")
		return out, h
	}

	diff := h.Mode - target
	changed := 0
	if diff != 0 {
		plane := g.Ny * g.Nz
		changed = c.splitCount(g.Nx, func(lo, hi int) int {
			n := 0
			for i := lo * plane; i < hi*plane; i++ {
				if out.Data[i] > 0 {
					out.Data[i] -= diff
					n++
				}
			}
			return n
		})
	}

	c.log.WithField("mode", h.Mode).WithField("shift", -diff).Debug("histogram shifted")
	c.done("normalize_global", start, changed)
	return out, h
}
