// Package mirror repairs hemisphere scans by translating a volume along the
// sagittal axis and reflecting one half onto the other.
package mirror

import (
	"strings"

	"github.com/pkg/errors"

	"postmortemmri/internal/models"
	"postmortemmri/pkg/config"
)

// Side selects which half of the volume is rewritten from the other
type Side int

const (
	// None leaves both halves alone
	None Side = iota

	// Left rewrites positions below the mirror point
	Left

	// Right rewrites positions above the mirror point
	Right
)

var ErrUnknownSide = errors.New("unknown mirror side")

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return "none"
}

// ParseSide converts a side name, as used in configuration files
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	case "", "none":
		return None, nil
	}
	return None, errors.Wrapf(ErrUnknownSide, "%q", s)
}

// Params configures Apply
type Params struct {
	// MirrorLine offsets the mirror point from the middle of the axis, in voxels
	MirrorLine int
	Side       Side

	// CheckOrient blanks everything above the mirror point unless the right
	// half is being rewritten. It shows which half a scan actually holds.
	CheckOrient bool

	// MoveSize shifts the volume by that many voxels when MoveImage is set
	MoveSize  int
	MoveImage bool

	// SwapVertical moves and mirrors along the axial axis instead
	SwapVertical bool
}

// FromConfig builds Params from the mirror section of cfg
func FromConfig(cfg *config.Config) (Params, error) {
	side, err := ParseSide(cfg.Mirror.Side)
	if err != nil {
		return Params{}, err
	}
	return Params{
		MirrorLine:   cfg.Mirror.MirrorLine,
		Side:         side,
		CheckOrient:  cfg.Mirror.CheckOrient,
		MoveSize:     cfg.Mirror.MoveSize,
		MoveImage:    cfg.Mirror.MoveImage,
		SwapVertical: cfg.Mirror.FlipVertical,
	}, nil
}

// Axis returns the axis that p moves and mirrors along
func (p Params) Axis() models.Axis {
	if p.SwapVertical {
		return models.Axial
	}
	return models.Sagittal
}

// Apply translates g when MoveImage is set and then mirrors it. g is never
// modified.
func Apply(g *models.Grid, p Params) *models.Grid {
	axis := p.Axis()
	out := g
	if p.MoveImage {
		out = Move(out, axis, p.MoveSize)
	}
	return Mirror(out, axis, p.MirrorLine, p.Side, p.CheckOrient)
}

// MirrorPoint returns the position reflections are taken about
func MirrorPoint(g *models.Grid, axis models.Axis, line int) int {
	return g.Dims()[axis]/2 + line
}

// Move shifts g by shift voxels along axis: every voxel takes the value
// found shift positions before it. Voxels whose source lies outside the grid
// keep their value.
func Move(g *models.Grid, axis models.Axis, shift int) *models.Grid {
	return remap(g, axis, func(pos int) (int, bool) {
		return pos - shift, true
	})
}

// Mirror reflects g about MirrorPoint along axis. Left rewrites positions
// below the point from their reflection, Right rewrites positions above it.
// With checkOrient, positions above the point are set to zero when Right is
// not selected.
func Mirror(g *models.Grid, axis models.Axis, line int, side Side, checkOrient bool) *models.Grid {
	m := MirrorPoint(g, axis, line)
	out := remap(g, axis, func(pos int) (int, bool) {
		switch {
		case side == Left && pos < m:
			return 2*m - pos, true
		case side == Right && pos > m:
			return 2*m - pos, true
		}
		return 0, false
	})

	if checkOrient && side != Right {
		for i := range out.Data {
			if c := coords(out, i); c[axis] > m {
				out.Data[i] = 0
			}
		}
	}
	return out
}

// remap copies g and overwrites each voxel with the voxel at src(pos) along
// axis, reading only from g. When src reports false or the source is out of
// bounds the voxel keeps its value.
func remap(g *models.Grid, axis models.Axis, src func(pos int) (int, bool)) *models.Grid {
	out := g.Clone()
	n := g.Dims()[axis]
	for i := range out.Data {
		c := coords(g, i)
		from, ok := src(c[axis])
		if !ok || from < 0 || from >= n {
			continue
		}
		c[axis] = from
		out.Data[i] = g.Get(c[0], c[1], c[2])
	}
	return out
}

func coords(g *models.Grid, i int) [3]int {
	x, y, z := g.Coords(i)
	return [3]int{x, y, z}
}
