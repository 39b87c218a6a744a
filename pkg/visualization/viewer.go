package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/tiff"

	"postmortemmri/internal/models"
)

var (
	ErrPositionOutOfRange = errors.New("position out of range")
	ErrUnsupportedFormat  = errors.New("unsupported image format")
)

// Viewer renders 2D sections of a grid as 16-bit grayscale images.
type Viewer struct {
	// grid is the volume being viewed
	grid *models.Grid

	// lo and hi are the intensities mapped to black and white
	lo, hi int
}

// NewViewer creates a viewer whose display window spans the full intensity
// range of the grid.
func NewViewer(g *models.Grid) *Viewer {
	lo, hi := g.MinMax()
	return &Viewer{grid: g, lo: lo, hi: hi}
}

// SetWindow fixes the intensities mapped to black and white. Values outside
// the window are clipped.
func (v *Viewer) SetWindow(lo, hi int) {
	v.lo, v.hi = lo, hi
}

// Window returns the current display window
func (v *Viewer) Window() (lo, hi int) {
	return v.lo, v.hi
}

func validAxis(a models.Axis) bool {
	return a >= models.Axial && a <= models.Coronal
}

func (v *Viewer) gray(value int) color.Gray16 {
	if v.hi <= v.lo {
		return color.Gray16{}
	}
	f := float64(value-v.lo) / float64(v.hi-v.lo)
	f = max(0, min(1, f))
	return color.Gray16{Y: uint16(f * 65535)}
}

// ExtractSlice extracts the 2D section at position along axis.
//
// An axial section is Nz wide and Ny tall, a sagittal section Nx wide and
// Nz tall, and a coronal section Nx wide and Ny tall.
func (v *Viewer) ExtractSlice(axis models.Axis, position int) (*image.Gray16, error) {
	g := v.grid
	if !validAxis(axis) {
		return nil, errors.Wrapf(models.ErrInvalidAxis, "%d", int(axis))
	}
	if position < 0 {
		return nil, errors.Wrapf(ErrPositionOutOfRange, "%d is negative", position)
	}
	if n := g.Dims()[axis]; position >= n {
		return nil, errors.Wrapf(ErrPositionOutOfRange, "%d exceeds %s size %d", position, axis, n)
	}

	var img *image.Gray16
	switch axis {
	case models.Axial:
		img = image.NewGray16(image.Rect(0, 0, g.Nz, g.Ny))
		for y := 0; y < g.Ny; y++ {
			for z := 0; z < g.Nz; z++ {
				img.SetGray16(z, y, v.gray(g.Get(position, y, z)))
			}
		}

	case models.Sagittal:
		img = image.NewGray16(image.Rect(0, 0, g.Nx, g.Nz))
		for z := 0; z < g.Nz; z++ {
			for x := 0; x < g.Nx; x++ {
				img.SetGray16(x, z, v.gray(g.Get(x, position, z)))
			}
		}

	case models.Coronal:
		img = image.NewGray16(image.Rect(0, 0, g.Nx, g.Ny))
		for y := 0; y < g.Ny; y++ {
			for x := 0; x < g.Nx; x++ {
				img.SetGray16(x, y, v.gray(g.Get(x, y, position)))
			}
		}
	}

	return img, nil
}

// SaveSlice writes img to filename. The format follows the extension: .png,
// .jpg/.jpeg or .tif/.tiff. Only PNG and TIFF keep the full 16 bits.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
	default:
		return errors.Wrapf(ErrUnsupportedFormat, "%q", ext)
	}

	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create image file")
	}
	defer file.Close()

	switch ext {
	case ".png":
		return png.Encode(file, img)
	case ".tif", ".tiff":
		return tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	}
	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every section along axis as
// slice_<axis>_NNN.<format> in outputDir.
func (v *Viewer) SaveSliceSequence(axis models.Axis, outputDir, format string) error {
	if !validAxis(axis) {
		return errors.Wrapf(models.ErrInvalidAxis, "%d", int(axis))
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create %s", outputDir)
	}

	for pos := 0; pos < v.grid.Dims()[axis]; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.%s", axis, pos, format))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// SaveMiddleSlices saves the central section along each axis as
// <axis>.<format> in outputDir.
func (v *Viewer) SaveMiddleSlices(outputDir, format string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create %s", outputDir)
	}

	for _, axis := range []models.Axis{models.Axial, models.Sagittal, models.Coronal} {
		img, err := v.ExtractSlice(axis, v.grid.Dims()[axis]/2)
		if err != nil {
			return err
		}
		if err := v.SaveSlice(img, filepath.Join(outputDir, axis.String()+"."+format)); err != nil {
			return errors.Wrapf(err, "failed to save %s section", axis)
		}
	}
	return nil
}
