package report

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postmortemmri/internal/models"
	"postmortemmri/pkg/correction"
)

func createProfiles() []correction.SectionProfile {
	return []correction.SectionProfile{
		{SliceDist: 0, Reps: []int{1000, 1500, 1000, 980, 1010}, AvgHigh: 1000},
		{SliceDist: 1, Reps: []int{1000, 1000, 1000, 1000, 1000}, AvgHigh: 1000},
	}
}

func createHistogram() correction.Histogram {
	g := models.NewGrid(4, 4, 4, models.Spacing{1, 1, 1})
	for i := range g.Data {
		g.Data[i] = 500
		if i%4 == 0 {
			g.Data[i] = 2000
		}
	}
	return correction.IntensityHistogram(g, 0)
}

func TestSectionChartRendersPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SectionChart(createProfiles(), &buf))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, chartWidth, img.Bounds().Dx())
}

func TestSectionChartFlatProfile(t *testing.T) {
	var buf bytes.Buffer
	flat := []correction.SectionProfile{{Reps: []int{3000}, AvgHigh: 3000}}
	assert.NoError(t, SectionChart(flat, &buf), "a single flat section still has a drawable range")
}

func TestSectionChartRequiresProfiles(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, SectionChart(nil, &buf))
}

func TestHistogramChart(t *testing.T) {
	h := createHistogram()
	require.Equal(t, 500, h.Mode)

	var buf bytes.Buffer
	require.NoError(t, HistogramChart(h, 1785, &buf))
	_, err := png.Decode(&buf)
	assert.NoError(t, err)

	assert.Error(t, HistogramChart(correction.Histogram{Empty: true}, 1785, &buf))
}

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "report")
	h := createHistogram()

	written, err := WriteAll(dir, createProfiles(), &h, 1785)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, SectionsFile), filepath.Join(dir, HistogramFile)}, written)
	for _, path := range written {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}

	written, err = WriteAll(dir, nil, nil, 1785)
	require.NoError(t, err)
	assert.Empty(t, written)
}
