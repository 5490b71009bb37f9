// Package voxel holds the volumetric value types shared by the allocation
// pipeline: scalar density fields, region annotation fields, direction vector
// fields and voxel masks, all laid out flat over a common grid.
package voxel

import (
	"math"
)

// Grid describes the shared affine metadata of a volume: its voxel counts,
// the physical edge lengths of one voxel and the physical position of the
// corner of voxel (0, 0, 0). Every field taking part in one computation must
// carry an equal Grid.
type Grid struct {
	// Shape is the number of voxels along x, y and z.
	Shape [3]int

	// VoxelSize is the physical size of one voxel along each axis, in the
	// unit of the source volume (micrometers for atlas data).
	VoxelSize [3]float64

	// Origin is the physical coordinate of the corner of the first voxel.
	Origin [3]float64
}

// metaTol absorbs float32 rounding introduced by volume headers when two
// grids are compared.
const metaTol = 1e-6

// Len returns the number of voxels in the grid.
func (g Grid) Len() int {
	return g.Shape[0] * g.Shape[1] * g.Shape[2]
}

// Index maps voxel coordinates to the flat row-major index, x fastest.
func (g Grid) Index(x, y, z int) int {
	return (z*g.Shape[1]+y)*g.Shape[0] + x
}

// Coords is the inverse of Index.
func (g Grid) Coords(i int) (x, y, z int) {
	x = i % g.Shape[0]
	y = (i / g.Shape[0]) % g.Shape[1]
	z = i / (g.Shape[0] * g.Shape[1])
	return
}

// Contains reports whether the voxel coordinates fall inside the grid.
func (g Grid) Contains(x, y, z int) bool {
	return x >= 0 && x < g.Shape[0] &&
		y >= 0 && y < g.Shape[1] &&
		z >= 0 && z < g.Shape[2]
}

// Equal reports whether two grids share shape, voxel size and origin.
// Sizes and origins are compared with a small absolute tolerance.
func (g Grid) Equal(o Grid) bool {
	if g.Shape != o.Shape {
		return false
	}
	for i := 0; i < 3; i++ {
		if math.Abs(g.VoxelSize[i]-o.VoxelSize[i]) > metaTol {
			return false
		}
		if math.Abs(g.Origin[i]-o.Origin[i]) > metaTol {
			return false
		}
	}
	return true
}

// Field is a scalar volume: one float64 per voxel in row-major order,
// x fastest. Inputs are read-only once constructed; outputs are freshly
// allocated by their producer and never mutated afterwards.
type Field struct {
	Grid Grid
	Data []float64
}

// NewField allocates a zero-filled field over the grid.
func NewField(g Grid) *Field {
	return &Field{Grid: g, Data: make([]float64, g.Len())}
}

// Clone returns an independent copy of the field.
func (f *Field) Clone() *Field {
	out := &Field{Grid: f.Grid, Data: make([]float64, len(f.Data))}
	copy(out.Data, f.Data)
	return out
}

// LabelField is a volume of region identifiers sharing the scalar field
// layout. The zero identifier marks voxels outside any annotated region.
type LabelField struct {
	Grid Grid
	IDs  []uint32
}

// MaskOf collects the flat indices of all voxels whose region identifier is
// in the given set. The result is sorted because voxels are visited in flat
// index order.
func (l *LabelField) MaskOf(ids map[uint32]bool) Mask {
	var m Mask
	for i, id := range l.IDs {
		if ids[id] {
			m = append(m, i)
		}
	}
	return m
}

// VectorField is a volume of 3-vectors stored as three consecutive float64
// components per voxel, in the same row-major voxel order as Field.
type VectorField struct {
	Grid    Grid
	Vectors []float64
}

// At returns the vector components of voxel i.
func (v *VectorField) At(i int) (vx, vy, vz float64) {
	return v.Vectors[3*i], v.Vectors[3*i+1], v.Vectors[3*i+2]
}

// Mask is a sorted list of flat voxel indices selecting a subset of a grid.
type Mask []int
