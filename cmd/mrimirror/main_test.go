package main

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postmortemmri/internal/models"
	"postmortemmri/pkg/mirror"
	"postmortemmri/pkg/volumeio"
)

func TestRunMirrorsRightHalf(t *testing.T) {
	dir := t.TempDir()
	g := models.NewGrid(2, 6, 2, models.Spacing{1, 1, 1})
	for i := range g.Data {
		_, y, _ := g.Coords(i)
		g.Data[i] = 100 * (y + 1)
	}
	input := filepath.Join(dir, "input.yaml")
	require.NoError(t, volumeio.Write(input, &volumeio.Volume{Grid: g}, ""))

	output := filepath.Join(dir, "out.yaml")
	require.NoError(t, run([]string{
		"-config", filepath.Join(dir, "none.yaml"),
		"-input", input,
		"-output", output,
		"-side", "right",
	}))

	vol, err := volumeio.Read(output)
	require.NoError(t, err)
	assert.Equal(t, []int{100, 200, 300, 400, 300, 200}, vol.Grid.Row(models.Sagittal, 1, 0, nil))
}

func TestRunRejectsUnknownSide(t *testing.T) {
	dir := t.TempDir()
	err := run([]string{
		"-config", filepath.Join(dir, "none.yaml"),
		"-input", filepath.Join(dir, "input.yaml"),
		"-side", "up",
	})
	assert.Equal(t, mirror.ErrUnknownSide, errors.Cause(err))
}

func TestRunRequiresInput(t *testing.T) {
	err := run([]string{"-config", filepath.Join(t.TempDir(), "none.yaml")})
	assert.Equal(t, errMissingInput, errors.Cause(err))
}
