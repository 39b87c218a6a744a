package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postmortemmri/internal/models"
	"postmortemmri/pkg/volumeio"
)

// writeBlock writes an 8x8x8 volume with a bright 4x4x4 block to dir
func writeBlock(t *testing.T, dir string) string {
	g := models.NewGrid(8, 8, 8, models.Spacing{1, 1, 1})
	for x := 2; x < 6; x++ {
		for y := 2; y < 6; y++ {
			for z := 2; z < 6; z++ {
				g.Set(x, y, z, 2000)
			}
		}
	}
	path := filepath.Join(dir, "input.yaml")
	require.NoError(t, volumeio.Write(path, &volumeio.Volume{Grid: g}, ""))
	return path
}

func TestRunRequiresInput(t *testing.T) {
	err := run([]string{"-config", filepath.Join(t.TempDir(), "none.yaml")})
	assert.Equal(t, errMissingInput, errors.Cause(err))
}

func TestRunWriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, run([]string{"-write-config", path}))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestRunMissingInputFile(t *testing.T) {
	dir := t.TempDir()
	err := run([]string{
		"-config", filepath.Join(dir, "none.yaml"),
		"-input", filepath.Join(dir, "missing.yaml"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read input volume")
}

func TestRunProcessesVolume(t *testing.T) {
	dir := t.TempDir()
	input := writeBlock(t, dir)

	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`stages:
  stripBorders: false
  cleanBackground: false
  normalizeSlices: false
  normalizeImage: false
  intensityCorrect: true
  removeRind: false
  brighten: false
`), 0644))

	output := filepath.Join(dir, "out.yaml")
	require.NoError(t, run([]string{
		"-config", configPath,
		"-input", input,
		"-output", output,
		"-cores", "2",
		"-compress",
	}))

	vol, err := volumeio.Read(output)
	require.NoError(t, err)
	assert.Equal(t, [3]int{8, 8, 8}, vol.Grid.Dims())
}
