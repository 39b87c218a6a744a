package models

import "fmt"

// Bands holds the intensity ranges that classify tissue. Before contrast
// inversion Background < WMMin <= WMMax <= GMMin <= GMMax holds.
type Bands struct {
	Background int
	WMMin      int
	WMMax      int
	GMMin      int
	GMMax      int
}

// Swapped returns the bands with white and gray matter bounds exchanged.
// After the contrast inverter runs, the range that used to hold white
// matter governs gray matter voxels and vice versa, so every later stage
// must work with the swapped bands.
func (b Bands) Swapped() Bands {
	return Bands{
		Background: b.Background,
		WMMin:      b.GMMin,
		WMMax:      b.GMMax,
		GMMin:      b.WMMin,
		GMMax:      b.WMMax,
	}
}

// Ordered reports whether the pre-inversion ordering holds
func (b Bands) Ordered() bool {
	return b.Background < b.WMMin && b.WMMin <= b.WMMax && b.WMMax <= b.GMMin && b.GMMin <= b.GMMax
}

func (b Bands) String() string {
	return fmt.Sprintf("bg=%d wm=[%d,%d) gm=[%d,%d)", b.Background, b.WMMin, b.WMMax, b.GMMin, b.GMMax)
}
