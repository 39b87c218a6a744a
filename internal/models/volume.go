package models

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidAxis = errors.New("invalid axis")
	ErrInvalidGrid = errors.New("invalid grid")
)

// Axis identifies one of the three anatomical axes of a volume.
type Axis int

const (
	// Axial is the first index of the grid.
	Axial Axis = iota
	// Sagittal is the second index of the grid.
	Sagittal
	// Coronal is the third (fastest varying) index of the grid.
	Coronal
)

// String returns the anatomical name of the axis
func (a Axis) String() string {
	switch a {
	case Axial:
		return "axial"
	case Sagittal:
		return "sagittal"
	case Coronal:
		return "coronal"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// ParseAxis accepts the anatomical names as well as x/y/z
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "axial", "ax", "x", "X":
		return Axial, nil
	case "sagittal", "sag", "y", "Y":
		return Sagittal, nil
	case "coronal", "cor", "z", "Z":
		return Coronal, nil
	}
	return 0, errors.Wrapf(ErrInvalidAxis, "%q (must be axial, sagittal or coronal)", s)
}

// Spacing is the physical size of a voxel along each axis in mm
type Spacing [3]float64

// Valid reports whether every component is strictly positive.
func (s Spacing) Valid() bool {
	return s[0] > 0 && s[1] > 0 && s[2] > 0
}

// Radius converts a physical distance in mm into a per-axis voxel count.
// The conversion truncates toward zero so that results are reproducible
// across runs and platforms.
func (s Spacing) Radius(mm float64) [3]int {
	return [3]int{int(mm / s[0]), int(mm / s[1]), int(mm / s[2])}
}

// Grid is a dense 3D intensity volume indexed (axial, sagittal, coronal).
// Data is stored with the coronal index varying fastest.
type Grid struct {
	// Data holds Nx*Ny*Nz intensities
	Data []int

	// Nx, Ny, Nz are the axial, sagittal and coronal dimensions
	Nx, Ny, Nz int

	// Spacing is the physical voxel size in mm
	Spacing Spacing
}

// NewGrid allocates a zero-filled grid.
func NewGrid(nx, ny, nz int, spacing Spacing) *Grid {
	return &Grid{
		Data:    make([]int, nx*ny*nz),
		Nx:      nx,
		Ny:      ny,
		Nz:      nz,
		Spacing: spacing,
	}
}

// NewFilledGrid allocates a grid with every voxel set to value.
func NewFilledGrid(nx, ny, nz int, spacing Spacing, value int) *Grid {
	g := NewGrid(nx, ny, nz, spacing)
	g.Fill(value)
	return g
}

// Validate checks the structural invariants of the grid
func (g *Grid) Validate() error {
	if g == nil {
		return errors.Wrap(ErrInvalidGrid, "grid is nil")
	}
	if g.Nx <= 0 || g.Ny <= 0 || g.Nz <= 0 {
		return errors.Wrapf(ErrInvalidGrid, "dimensions must be positive, got %dx%dx%d", g.Nx, g.Ny, g.Nz)
	}
	if len(g.Data) != g.Nx*g.Ny*g.Nz {
		return errors.Wrapf(ErrInvalidGrid, "data length %d does not match dimensions %dx%dx%d",
			len(g.Data), g.Nx, g.Ny, g.Nz)
	}
	if !g.Spacing.Valid() {
		return errors.Wrapf(ErrInvalidGrid, "voxel spacing must be positive, got %v", g.Spacing)
	}
	return nil
}

// Dims returns the dimensions as an array indexed by Axis
func (g *Grid) Dims() [3]int {
	return [3]int{g.Nx, g.Ny, g.Nz}
}

// Len returns the number of voxels
func (g *Grid) Len() int {
	return len(g.Data)
}

// Index returns the flat offset of (x, y, z). It does not check bounds.
func (g *Grid) Index(x, y, z int) int {
	return (x*g.Ny+y)*g.Nz + z
}

// Coords is the inverse of Index.
func (g *Grid) Coords(i int) (x, y, z int) {
	z = i % g.Nz
	i /= g.Nz
	y = i % g.Ny
	x = i / g.Ny
	return x, y, z
}

// InBounds reports whether (x, y, z) addresses a voxel of the grid.
func (g *Grid) InBounds(x, y, z int) bool {
	return x >= 0 && x < g.Nx && y >= 0 && y < g.Ny && z >= 0 && z < g.Nz
}

// At returns the intensity at (x, y, z). The second result is false when the
// position lies outside the grid; callers treat such voxels as absent and
// never count them toward a match.
func (g *Grid) At(x, y, z int) (int, bool) {
	if !g.InBounds(x, y, z) {
		return 0, false
	}
	return g.Data[g.Index(x, y, z)], true
}

// Get returns the intensity at an in-bounds position.
func (g *Grid) Get(x, y, z int) int {
	return g.Data[g.Index(x, y, z)]
}

// Set stores v at an in-bounds position.
func (g *Grid) Set(x, y, z, v int) {
	g.Data[g.Index(x, y, z)] = v
}

// Fill sets every voxel to v
func (g *Grid) Fill(v int) {
	for i := range g.Data {
		g.Data[i] = v
	}
}

// Clone returns a deep copy. Stages that must keep reading unmodified
// values while they write take a clone first.
func (g *Grid) Clone() *Grid {
	out := &Grid{
		Data:    make([]int, len(g.Data)),
		Nx:      g.Nx,
		Ny:      g.Ny,
		Nz:      g.Nz,
		Spacing: g.Spacing,
	}
	copy(out.Data, g.Data)
	return out
}

// SameShape reports whether two grids have identical dimensions
func (g *Grid) SameShape(o *Grid) bool {
	return g.Nx == o.Nx && g.Ny == o.Ny && g.Nz == o.Nz
}

// Row copies the 1D row running along axis through the fixed coordinates
// of the other two axes. For Axial the fixed pair is (y, z), for Sagittal
// (x, z) and for Coronal (x, y).
func (g *Grid) Row(axis Axis, a, b int, dst []int) []int {
	n := g.Dims()[axis]
	if cap(dst) < n {
		dst = make([]int, n)
	}
	dst = dst[:n]
	for i := 0; i < n; i++ {
		switch axis {
		case Axial:
			dst[i] = g.Data[g.Index(i, a, b)]
		case Sagittal:
			dst[i] = g.Data[g.Index(a, i, b)]
		default:
			dst[i] = g.Data[g.Index(a, b, i)]
		}
	}
	return dst
}

// MinMax returns the smallest and largest intensity in the grid
func (g *Grid) MinMax() (lo, hi int) {
	if len(g.Data) == 0 {
		return 0, 0
	}
	lo, hi = g.Data[0], g.Data[0]
	for _, v := range g.Data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Diff counts the voxels that differ between two grids of the same shape.
func (g *Grid) Diff(o *Grid) int {
	n := 0
	for i, v := range g.Data {
		if o.Data[i] != v {
			n++
		}
	}
	return n
}
