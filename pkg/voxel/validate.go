package voxel

import (
	"mtypedensities"
)

// NamedGrid pairs a grid with the short name used in validation messages.
type NamedGrid struct {
	Name string
	Grid Grid
}

// Named builds a NamedGrid for SameGrid calls.
func Named(name string, g Grid) NamedGrid {
	return NamedGrid{Name: name, Grid: g}
}

// SameGrid verifies that every listed volume shares the first one's shape,
// voxel size and origin. Fields bundled into one computation must pass this
// check before any allocation runs.
func SameGrid(first NamedGrid, rest ...NamedGrid) error {
	for _, ng := range rest {
		if !ng.Grid.Equal(first.Grid) {
			return mtypedensities.Validationf(
				"volumes %q and %q do not share shape, voxel size and origin",
				first.Name, ng.Name)
		}
	}
	return nil
}

// CheckDensity validates a total density input: values must be non-negative
// and at least one voxel must be positive.
func CheckDensity(name string, f *Field) error {
	allZero := true
	for _, v := range f.Data {
		if v < 0 {
			return mtypedensities.Validationf("density %q has negative values", name)
		}
		if v > 0 {
			allZero = false
		}
	}
	if allZero {
		return mtypedensities.Validationf("density %q has zeros everywhere", name)
	}
	return nil
}

// CheckNonNegative validates a density input that may legitimately be all
// zero, such as a marker field covering no voxel of the annotated volume.
func CheckNonNegative(name string, f *Field) error {
	for _, v := range f.Data {
		if v < 0 {
			return mtypedensities.Validationf("density %q has negative values", name)
		}
	}
	return nil
}
