package models

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridIndexRoundTrip(t *testing.T) {
	g := NewGrid(3, 4, 5, Spacing{1, 1, 1})
	for i := range g.Data {
		x, y, z := g.Coords(i)
		if g.Index(x, y, z) != i {
			t.Fatalf("index %d -> (%d,%d,%d) -> %d", i, x, y, z, g.Index(x, y, z))
		}
	}
}

func TestGridAtOutOfBounds(t *testing.T) {
	g := NewFilledGrid(2, 2, 2, Spacing{1, 1, 1}, 7)

	v, ok := g.At(1, 1, 1)
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	for _, p := range [][3]int{{-1, 0, 0}, {0, 2, 0}, {0, 0, -1}, {2, 2, 2}} {
		_, ok := g.At(p[0], p[1], p[2])
		assert.False(t, ok, "position %v should be absent", p)
	}
}

func TestGridCloneIsIndependent(t *testing.T) {
	g := NewFilledGrid(2, 2, 2, Spacing{1, 1, 1}, 1)
	c := g.Clone()
	c.Set(0, 0, 0, 99)
	assert.Equal(t, 1, g.Get(0, 0, 0))
	assert.Equal(t, 1, g.Diff(c))
}

func TestGridRow(t *testing.T) {
	g := NewGrid(2, 3, 4, Spacing{1, 1, 1})
	for i := range g.Data {
		g.Data[i] = i
	}
	assert.Equal(t, []int{g.Index(0, 1, 2), g.Index(1, 1, 2)}, g.Row(Axial, 1, 2, nil))
	assert.Equal(t, []int{g.Index(1, 0, 3), g.Index(1, 1, 3), g.Index(1, 2, 3)}, g.Row(Sagittal, 1, 3, nil))
	assert.Equal(t, []int{g.Index(1, 2, 0), g.Index(1, 2, 1), g.Index(1, 2, 2), g.Index(1, 2, 3)}, g.Row(Coronal, 1, 2, nil))
}

func TestGridValidate(t *testing.T) {
	require.NoError(t, NewGrid(1, 1, 1, Spacing{0.5, 0.5, 2}).Validate())
	assert.Error(t, NewGrid(0, 1, 1, Spacing{1, 1, 1}).Validate())
	assert.Error(t, NewGrid(1, 1, 1, Spacing{1, 0, 1}).Validate())

	g := NewGrid(2, 2, 2, Spacing{1, 1, 1})
	g.Data = g.Data[:3]
	err := g.Validate()
	assert.Equal(t, ErrInvalidGrid, errors.Cause(err))
	assert.Contains(t, err.Error(), "data length 3 does not match dimensions 2x2x2")

	var nilGrid *Grid
	assert.Equal(t, ErrInvalidGrid, errors.Cause(nilGrid.Validate()))
}

func TestSpacingRadiusTruncates(t *testing.T) {
	s := Spacing{0.3, 0.7, 1.5}
	assert.Equal(t, [3]int{6, 2, 1}, s.Radius(2.0))
	assert.Equal(t, [3]int{0, 0, 0}, s.Radius(0.2))
}

func TestBandsSwapped(t *testing.T) {
	b := Bands{Background: 0, WMMin: 300, WMMax: 1700, GMMin: 1700, GMMax: 3000}
	require.True(t, b.Ordered())

	s := b.Swapped()
	assert.Equal(t, Bands{Background: 0, WMMin: 1700, WMMax: 3000, GMMin: 300, GMMax: 1700}, s)
	assert.Equal(t, b, s.Swapped())
}

func TestMaskExport(t *testing.T) {
	g := NewFilledGrid(2, 1, 1, Spacing{1, 1, 1}, 5)
	m := NewMask(g)
	m.SetProtected(1, 0, 0, true)

	raw, p := m.Cell(0, 0, 0)
	assert.Equal(t, 5, raw)
	assert.False(t, p)
	assert.False(t, m.Protected(-1, 0, 0))
	assert.Equal(t, 1, m.Count())

	out := m.Export(10000, g.Spacing)
	assert.Equal(t, []int{5, 10000}, out.Data)
}

func TestParseAxis(t *testing.T) {
	for in, want := range map[string]Axis{"x": Axial, "sagittal": Sagittal, "cor": Coronal} {
		got, err := ParseAxis(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseAxis("w")
	assert.Equal(t, ErrInvalidAxis, errors.Cause(err))
}
