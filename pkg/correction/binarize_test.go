package correction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"postmortemmri/internal/models"
)

func TestForceLevel(t *testing.T) {
	b := testBands.Swapped()
	tests := []struct {
		in, want int
	}{
		{-5, b.Background},
		{0, b.Background},
		{1, b.GMMin},
		{b.WMMin, b.GMMin},
		{b.WMMin + 1, b.WMMax},
		{9000, b.WMMax},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ForceLevel(tt.in, b), "ForceLevel(%d)", tt.in)
	}
}

func TestBinarizeProducesThreeLevels(t *testing.T) {
	c := NewCorrector(3, nil)
	g := createNoisyBrain(12, 12, 12)
	b := testBands.Swapped()

	out := c.Binarize(g, BinarizeParams{Bands: b, BlurRange: 2.5, CleanupReps: 3})
	for i, v := range out.Data {
		if v != b.Background && v != b.GMMin && v != b.WMMax {
			t.Fatalf("voxel %d has value %d outside the three levels", i, v)
		}
	}
}

func TestBinarizeUniformWhiteMatter(t *testing.T) {
	c := NewCorrector(1, nil)
	b := testBands.Swapped()
	g := models.NewFilledGrid(5, 5, 5, unitSpacing, 2500)

	out := c.Binarize(g, BinarizeParams{Bands: b, BlurRange: 2.5, CleanupReps: 5})
	for _, v := range out.Data {
		assert.Equal(t, b.WMMax, v)
	}
}

func TestBinarizeZeroReps(t *testing.T) {
	c := NewCorrector(1, nil)
	b := testBands.Swapped()
	g := models.NewGrid(3, 3, 3, unitSpacing)
	g.Set(1, 1, 1, 2500)

	// The lone voxel is blurred with 26 background neighbors down to 92,
	// which forces to gray matter.
	out := c.Binarize(g, BinarizeParams{Bands: b, BlurRange: 2, CleanupReps: 0})
	assert.Equal(t, b.GMMin, out.Get(1, 1, 1))
	assert.Equal(t, b.Background, out.Get(0, 0, 0))
}

func TestBrighten(t *testing.T) {
	c := NewCorrector(2, nil)
	g := models.NewGrid(2, 2, 2, unitSpacing)
	copy(g.Data, []int{0, 1000, 1377, -100, 3000, 1, 0, 7})

	out := c.Brighten(g, 0.5, 0)
	assert.Equal(t, []int{0, 1500, 2065, -150, 4500, 1, 0, 10}, out.Data)
	assert.Equal(t, 1000, g.Data[1], "input is untouched")
}

func TestFillBackground(t *testing.T) {
	c := NewCorrector(4, nil)
	g := createBlockGrid(6, 1, 4, 1500)
	p := TextureParams{Min: 1, Max: 100, Background: 0, Seed: 7}

	out := c.FillBackground(g, p)
	for i, v := range g.Data {
		if v == 1500 {
			assert.Equal(t, 1500, out.Data[i])
			continue
		}
		if out.Data[i] < 1 || out.Data[i] > 100 {
			t.Fatalf("voxel %d filled with %d", i, out.Data[i])
		}
	}

	again := c.FillBackground(g, p)
	assert.Equal(t, out.Data, again.Data, "same seed gives the same texture")
}
