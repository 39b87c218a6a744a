package correction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postmortemmri/internal/models"
)

func TestNormalizeSlicesBrightSection(t *testing.T) {
	c := NewCorrector(3, nil)
	g := models.NewFilledGrid(6, 6, 7, unitSpacing, 1000)
	for x := 0; x < 6; x++ {
		for y := 0; y < 6; y++ {
			g.Set(x, y, 1, 1500)
		}
	}

	out, prof := c.NormalizeSlices(g, SliceParams{SliceDist: 0, Rank: 10, WMMin: 500, GMMax: 3000})
	require.False(t, prof.Skipped)
	assert.Equal(t, 1000, prof.AvgHigh)
	assert.Equal(t, 1500, prof.Reps[1])

	for x := 0; x < 6; x++ {
		for y := 0; y < 6; y++ {
			assert.InDelta(t, 1000, out.Get(x, y, 1), 1, "bright section rescaled to its neighbors")
			assert.Equal(t, 1000, out.Get(x, y, 0))
			assert.Equal(t, 1000, out.Get(x, y, 4))
		}
	}
}

func TestNormalizeSlicesNeighborAverage(t *testing.T) {
	c := NewCorrector(1, nil)
	g := models.NewFilledGrid(6, 6, 7, unitSpacing, 1000)
	for x := 0; x < 6; x++ {
		for y := 0; y < 6; y++ {
			g.Set(x, y, 1, 1500)
		}
	}

	// Section 1 averages 1500 twice with its two 1000 neighbors: 1250.
	out, prof := c.NormalizeSlices(g, SliceParams{SliceDist: 1, Rank: 10, WMMin: 500, GMMax: 3000})
	assert.InDelta(t, 1250, prof.LocalAvg[1], 1e-9)
	assert.Equal(t, 1200, out.Get(0, 0, 1))
}

func TestNormalizeSlicesHitsTargetExactly(t *testing.T) {
	c := NewCorrector(2, nil)
	g := models.NewFilledGrid(6, 6, 3, unitSpacing, 1804)
	for x := 0; x < 6; x++ {
		for y := 0; y < 6; y++ {
			g.Set(x, y, 2, 1800)
		}
	}

	out, prof := c.NormalizeSlices(g, SliceParams{SliceDist: 0, Rank: 10, WMMin: 500, GMMax: 3000})
	require.Equal(t, 1804, prof.AvgHigh)
	assert.Equal(t, 1800, prof.Reps[2])
	for x := 0; x < 6; x++ {
		for y := 0; y < 6; y++ {
			assert.Equal(t, 1804, out.Get(x, y, 2), "1800 * 1804 / 1800 must not truncate to 1803")
		}
	}
}

func TestNormalizeSlicesRejectsContaminatedNeighbors(t *testing.T) {
	c := NewCorrector(1, nil)
	g := models.NewFilledGrid(6, 6, 5, unitSpacing, 1000)
	for x := 0; x < 6; x++ {
		for y := 0; y < 6; y++ {
			g.Set(x, y, 2, 3200)
		}
	}

	_, prof := c.NormalizeSlices(g, SliceParams{SliceDist: 1, Rank: 10, WMMin: 500, GMMax: 3000})
	assert.InDelta(t, 1000, prof.LocalAvg[1], 1e-9, "neighbor at or above GMMax is left out")
}

func TestNormalizeSlicesFallsBackWithoutTissue(t *testing.T) {
	c := NewCorrector(1, nil)

	g := models.NewFilledGrid(3, 3, 4, unitSpacing, 100)
	out, prof := c.NormalizeSlices(g, SliceParams{SliceDist: 1, Rank: 5, WMMin: 500, GMMax: 3000})
	assert.True(t, prof.Skipped)
	assert.Equal(t, g.Data, out.Data)
	for z := 0; z < 4; z++ {
		assert.Equal(t, 3000, prof.Reps[z])
		assert.False(t, prof.HasData[z])
	}
}

func TestNormalizeSlicesSingleVoxel(t *testing.T) {
	c := NewCorrector(1, nil)
	g := models.NewFilledGrid(1, 1, 1, unitSpacing, 1000)

	out, prof := c.NormalizeSlices(g, SliceParams{SliceDist: 3, Rank: 1, WMMin: 500, GMMax: 3000})
	assert.True(t, prof.Skipped, "one voxel never exceeds the rank")
	assert.Equal(t, 1000, out.Get(0, 0, 0))
}

func TestNormalizeGlobalTwoSpikes(t *testing.T) {
	c := NewCorrector(4, nil)
	g := models.NewGrid(10, 10, 10, unitSpacing)
	for i := range g.Data {
		switch {
		case i%3 == 0:
			g.Data[i] = 500
		case i%7 == 0:
			g.Data[i] = 2000
		}
	}

	out, h := c.NormalizeGlobal(g, 1785, 0)
	require.False(t, h.Empty)
	assert.Equal(t, 500, h.Mode)

	for i, v := range g.Data {
		if v > 0 {
			assert.Equal(t, v+1285, out.Data[i])
		} else {
			assert.Equal(t, 0, out.Data[i])
		}
	}
}

func TestNormalizeGlobalIgnoresFirstBin(t *testing.T) {
	c := NewCorrector(1, nil)
	g := models.NewGrid(4, 4, 4, unitSpacing)
	for i := range g.Data {
		g.Data[i] = 2
	}
	g.Data[0] = 1200

	_, h := c.NormalizeGlobal(g, 1785, 0)
	assert.Equal(t, 1200, h.Mode)
}

func TestNormalizeGlobalOnlyFirstBin(t *testing.T) {
	c := NewCorrector(1, nil)
	g := models.NewFilledGrid(3, 3, 3, unitSpacing, 3)

	out, h := c.NormalizeGlobal(g, 1785, 0)
	require.False(t, h.Empty)
	assert.Equal(t, 0, h.Mode, "no bin above the first holds voxels")
	assert.Equal(t, float64(27), h.Counts[0])
	for _, v := range out.Data {
		assert.Equal(t, 3-1785, v)
	}
}

func TestNormalizeGlobalEmptyHistogram(t *testing.T) {
	c := NewCorrector(1, nil)
	g := models.NewGrid(3, 3, 3, unitSpacing)
	g.Data[4] = 12000

	out, h := c.NormalizeGlobal(g, 1785, 0)
	assert.True(t, h.Empty)
	assert.Equal(t, g.Data, out.Data)
}

func TestIntensityHistogramBins(t *testing.T) {
	g := models.NewGrid(1, 1, 4, unitSpacing)
	copy(g.Data, []int{500, 504, 505, 9999})

	h := IntensityHistogram(g, 0)
	require.Len(t, h.Counts, 2000)
	assert.Equal(t, 2.0, h.Counts[100])
	assert.Equal(t, 1.0, h.Counts[101])
	assert.Equal(t, 1.0, h.Counts[1999])
}
