package visualization

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"postmortemmri/internal/models"
)

// createTestGrid builds a 10x8x5 grid where every coronal section has its
// own intensity.
func createTestGrid() *models.Grid {
	g := models.NewGrid(10, 8, 5, models.Spacing{1, 1, 1})
	for x := 0; x < g.Nx; x++ {
		for y := 0; y < g.Ny; y++ {
			for z := 0; z < g.Nz; z++ {
				g.Set(x, y, z, z*1000)
			}
		}
	}
	return g
}

// TestNewViewer verifies that the window spans the grid's intensity range
func TestNewViewer(t *testing.T) {
	viewer := NewViewer(createTestGrid())
	lo, hi := viewer.Window()
	if lo != 0 || hi != 4000 {
		t.Errorf("Expected window [0, 4000], got [%d, %d]", lo, hi)
	}
}

// TestExtractSlice verifies slice dimensions and intensity mapping
func TestExtractSlice(t *testing.T) {
	viewer := NewViewer(createTestGrid())

	for z := 0; z < 5; z++ {
		img, err := viewer.ExtractSlice(models.Coronal, z)
		if err != nil {
			t.Fatalf("Failed to extract coronal slice at position %d: %v", z, err)
		}

		bounds := img.Bounds()
		if bounds.Dx() != 10 || bounds.Dy() != 8 {
			t.Errorf("Expected coronal slice dimensions 10x8, got %dx%d", bounds.Dx(), bounds.Dy())
		}

		expected := uint16(float64(z) / 4 * 65535)
		if got := img.Gray16At(5, 4).Y; got != expected {
			t.Errorf("Expected coronal slice value %d at center, got %d", expected, got)
		}
	}

	imgX, err := viewer.ExtractSlice(models.Axial, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, imgX.Bounds().Dx())
	assert.Equal(t, 8, imgX.Bounds().Dy())
	assert.Equal(t, uint16(65535), imgX.Gray16At(4, 0).Y)

	imgY, err := viewer.ExtractSlice(models.Sagittal, 2)
	require.NoError(t, err)
	assert.Equal(t, 10, imgY.Bounds().Dx())
	assert.Equal(t, 5, imgY.Bounds().Dy())

	_, err = viewer.ExtractSlice(models.Axis(7), 0)
	assert.Equal(t, models.ErrInvalidAxis, errors.Cause(err), "invalid axis")

	_, err = viewer.ExtractSlice(models.Coronal, 6)
	assert.Equal(t, ErrPositionOutOfRange, errors.Cause(err), "out of bounds position")

	_, err = viewer.ExtractSlice(models.Coronal, -1)
	assert.Equal(t, ErrPositionOutOfRange, errors.Cause(err), "negative position")
}

func TestWindowClipsValues(t *testing.T) {
	viewer := NewViewer(createTestGrid())
	viewer.SetWindow(1000, 3000)

	img, err := viewer.ExtractSlice(models.Axial, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), img.Gray16At(0, 0).Y, "below window is black")
	assert.Equal(t, uint16(32767), img.Gray16At(2, 0).Y)
	assert.Equal(t, uint16(65535), img.Gray16At(4, 0).Y, "above window is white")

	viewer.SetWindow(5, 5)
	img, err = viewer.ExtractSlice(models.Axial, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), img.Gray16At(4, 0).Y, "empty window renders black")
}

// TestSaveSlice verifies that every supported format can be written
func TestSaveSlice(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	tempDir := t.TempDir()
	viewer := NewViewer(createTestGrid())
	img, err := viewer.ExtractSlice(models.Coronal, 2)
	require.NoError(t, err)

	for _, name := range []string{"s.png", "s.jpg", "s.jpeg", "s.tif", "s.TIFF"} {
		filename := filepath.Join(tempDir, name)
		require.NoError(t, viewer.SaveSlice(img, filename), name)
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Saved file does not exist: %s", filename)
		}
	}

	f, err := os.Open(filepath.Join(tempDir, "s.png"))
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())

	tf, err := os.Open(filepath.Join(tempDir, "s.tif"))
	require.NoError(t, err)
	defer tf.Close()
	decodedTiff, err := tiff.Decode(tf)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decodedTiff.Bounds())

	err = viewer.SaveSlice(img, filepath.Join(tempDir, "s.bmp"))
	assert.Equal(t, ErrUnsupportedFormat, errors.Cause(err))
}

// TestSaveSliceSequence verifies that a sequence of slices can be saved
func TestSaveSliceSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	outputDir := filepath.Join(t.TempDir(), "slices")
	viewer := NewViewer(createTestGrid())

	if err := viewer.SaveSliceSequence(models.Coronal, outputDir, "png"); err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}

	for z := 0; z < 5; z++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_coronal_%03d.png", z))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Expected slice file does not exist: %s", filename)
		}
	}

	err := viewer.SaveSliceSequence(models.Coronal, outputDir, "gif")
	assert.Equal(t, ErrUnsupportedFormat, errors.Cause(err))
}

func TestSaveMiddleSlices(t *testing.T) {
	outputDir := filepath.Join(t.TempDir(), "mid")
	viewer := NewViewer(createTestGrid())

	require.NoError(t, viewer.SaveMiddleSlices(outputDir, "png"))
	for _, name := range []string{"axial.png", "sagittal.png", "coronal.png"} {
		_, err := os.Stat(filepath.Join(outputDir, name))
		assert.NoError(t, err, name)
	}

	err := viewer.SaveMiddleSlices(outputDir, "bmp")
	assert.Equal(t, ErrUnsupportedFormat, errors.Cause(err))
	assert.Contains(t, err.Error(), "failed to save axial section")
}
