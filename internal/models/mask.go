package models

// Mask marks voxels that lie deep inside the brain. Every cell is either
// protected or unprotected; an unprotected cell carries the raw intensity
// of the grid it was built from.
type Mask struct {
	Nx, Ny, Nz int

	protected []bool
	raw       []int
}

// NewMask returns a mask over a snapshot of g with no protected cells.
func NewMask(g *Grid) *Mask {
	m := &Mask{
		Nx:        g.Nx,
		Ny:        g.Ny,
		Nz:        g.Nz,
		protected: make([]bool, len(g.Data)),
		raw:       make([]int, len(g.Data)),
	}
	copy(m.raw, g.Data)
	return m
}

// Clone returns an independent copy of the mask
func (m *Mask) Clone() *Mask {
	out := &Mask{
		Nx:        m.Nx,
		Ny:        m.Ny,
		Nz:        m.Nz,
		protected: make([]bool, len(m.protected)),
		raw:       m.raw,
	}
	copy(out.protected, m.protected)
	return out
}

func (m *Mask) index(x, y, z int) int {
	return (x*m.Ny+y)*m.Nz + z
}

// Protected reports whether (x, y, z) is an interior voxel. Out-of-bounds
// positions are never protected.
func (m *Mask) Protected(x, y, z int) bool {
	if x < 0 || x >= m.Nx || y < 0 || y >= m.Ny || z < 0 || z >= m.Nz {
		return false
	}
	return m.protected[m.index(x, y, z)]
}

// ProtectedAt reports the state of the cell at a flat grid offset.
func (m *Mask) ProtectedAt(i int) bool {
	return m.protected[i]
}

// Cell returns the raw intensity and protection state of a cell.
func (m *Mask) Cell(x, y, z int) (raw int, protected bool) {
	i := m.index(x, y, z)
	return m.raw[i], m.protected[i]
}

// SetProtected marks or clears a cell.
func (m *Mask) SetProtected(x, y, z int, p bool) {
	m.protected[m.index(x, y, z)] = p
}

// Count returns the number of protected cells
func (m *Mask) Count() int {
	n := 0
	for _, p := range m.protected {
		if p {
			n++
		}
	}
	return n
}

// Equal reports whether two masks protect exactly the same cells.
func (m *Mask) Equal(o *Mask) bool {
	if m.Nx != o.Nx || m.Ny != o.Ny || m.Nz != o.Nz {
		return false
	}
	for i, p := range m.protected {
		if o.protected[i] != p || m.raw[i] != o.raw[i] {
			return false
		}
	}
	return true
}

// Export renders the mask as an intensity grid where protected cells hold
// maskSet and every other cell holds its raw intensity. This is the layout
// used for troubleshooting output.
func (m *Mask) Export(maskSet int, spacing Spacing) *Grid {
	g := NewGrid(m.Nx, m.Ny, m.Nz, spacing)
	for i, p := range m.protected {
		if p {
			g.Data[i] = maskSet
		} else {
			g.Data[i] = m.raw[i]
		}
	}
	return g
}
