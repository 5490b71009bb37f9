// Package slicer partitions cortical layers into depth slices. The direction
// vector field approximates the local cortical depth axis; tracing it from a
// voxel towards both layer boundaries yields a normalized depth in [0,1],
// which equal-width binning turns into a slice index.
package slicer

import (
	"math"

	"go.uber.org/zap"

	"mtypedensities"
	"mtypedensities/pkg/voxel"
)

// traceStep is the streamline step length in voxel units. Half a voxel keeps
// the nearest-neighbor trace from skipping over single-voxel boundaries.
const traceStep = 0.5

// DefaultStepLimit bounds a single trace. A layer thicker than this many
// half-voxel steps would be cut short, which only distorts depths in
// pathological volumes.
const DefaultStepLimit = 2000

// Params configures an Indexer.
type Params struct {
	// Vectors is the direction vector field shared by all layers.
	Vectors *voxel.VectorField

	// StepLimit caps the number of trace steps per direction.
	// DefaultStepLimit when zero.
	StepLimit int

	// Log receives per-layer statistics. Nil disables logging.
	Log *zap.SugaredLogger
}

// Indexer computes depth slice assignments for layer voxel sets. Depth
// coordinates are computed once per layer and cached, so allocators sharing
// an Indexer reuse the traces.
type Indexer struct {
	vectors   *voxel.VectorField
	stepLimit int
	log       *zap.SugaredLogger

	depths map[string][]float64
	masks  map[string]voxel.Mask
}

// New validates the parameters and builds an Indexer.
func New(p Params) (*Indexer, error) {
	if p.Vectors == nil {
		return nil, mtypedensities.Validationf("no direction vector field supplied")
	}
	limit := p.StepLimit
	if limit <= 0 {
		limit = DefaultStepLimit
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Indexer{
		vectors:   p.Vectors,
		stepLimit: limit,
		log:       log,
		depths:    make(map[string][]float64),
		masks:     make(map[string]voxel.Mask),
	}, nil
}

// Grid returns the grid of the underlying direction vector field.
func (ix *Indexer) Grid() voxel.Grid {
	return ix.vectors.Grid
}

// Assignment is the slice partition of one layer. Slice is aligned with
// Mask; -1 marks voxels excluded for a degenerate direction vector.
type Assignment struct {
	Layer      string
	Mask       voxel.Mask
	Slice      []int
	SliceCount int

	// Degenerate counts the excluded voxels.
	Degenerate int
}

// Slices partitions a layer into sliceCount depth slices. The mask holds the
// flat indices of the layer's voxels on the direction field's grid.
func (ix *Indexer) Slices(layer string, mask voxel.Mask, sliceCount int) (*Assignment, error) {
	if sliceCount < 1 {
		return nil, mtypedensities.Validationf("layer %q has slice count %d, need at least 1", layer, sliceCount)
	}

	depths := ix.layerDepths(layer, mask)
	out := &Assignment{
		Layer:      layer,
		Mask:       mask,
		Slice:      make([]int, len(mask)),
		SliceCount: sliceCount,
	}
	for i, d := range depths {
		if math.IsNaN(d) {
			out.Slice[i] = -1
			out.Degenerate++
			continue
		}
		s := int(d * float64(sliceCount))
		if s >= sliceCount {
			s = sliceCount - 1
		}
		out.Slice[i] = s
	}
	if out.Degenerate > 0 {
		ix.log.Infow("excluded voxels with degenerate direction vectors",
			"layer", layer, "count", out.Degenerate, "total", len(mask))
	}
	return out, nil
}

// layerDepths returns the cached normalized depths for a layer, computing
// them on first use. NaN marks excluded voxels.
func (ix *Indexer) layerDepths(layer string, mask voxel.Mask) []float64 {
	if d, ok := ix.depths[layer]; ok && sameMask(ix.masks[layer], mask) {
		return d
	}

	inLayer := make(map[int]bool, len(mask))
	for _, i := range mask {
		inLayer[i] = true
	}

	depths := make([]float64, len(mask))
	for k, i := range mask {
		depths[k] = ix.voxelDepth(i, inLayer)
	}
	ix.depths[layer] = depths
	ix.masks[layer] = mask
	return depths
}

// voxelDepth traces the direction field from voxel i towards both layer
// boundaries and returns backward/(backward+forward). NaN marks a degenerate
// start vector.
func (ix *Indexer) voxelDepth(i int, inLayer map[int]bool) float64 {
	g := ix.vectors.Grid
	x, y, z := g.Coords(i)
	start := [3]float64{float64(x) + 0.5, float64(y) + 0.5, float64(z) + 0.5}

	if _, ok := ix.stepDirection(i); !ok {
		return math.NaN()
	}

	forward := ix.trace(start, i, inLayer, 1)
	backward := ix.trace(start, i, inLayer, -1)
	total := forward + backward
	if total == 0 {
		// The voxel is its own depth column.
		return 0.5
	}
	return backward / total
}

// trace walks from pos in the given sign of the direction field until the
// walk leaves the layer, hits a degenerate vector or reaches the step limit.
// It returns the number of in-layer steps taken.
func (ix *Indexer) trace(pos [3]float64, startVoxel int, inLayer map[int]bool, sign float64) float64 {
	g := ix.vectors.Grid
	cur := startVoxel
	steps := 0.0
	for n := 0; n < ix.stepLimit; n++ {
		dir, ok := ix.stepDirection(cur)
		if !ok {
			break
		}
		for c := 0; c < 3; c++ {
			pos[c] += sign * traceStep * dir[c]
		}
		vx := int(math.Floor(pos[0]))
		vy := int(math.Floor(pos[1]))
		vz := int(math.Floor(pos[2]))
		if !g.Contains(vx, vy, vz) {
			break
		}
		next := g.Index(vx, vy, vz)
		if !inLayer[next] {
			break
		}
		cur = next
		steps++
	}
	return steps
}

// stepDirection returns the unit direction at a voxel in voxel coordinate
// space, or false for a zero or NaN vector.
func (ix *Indexer) stepDirection(i int) ([3]float64, bool) {
	vx, vy, vz := ix.vectors.At(i)
	if math.IsNaN(vx) || math.IsNaN(vy) || math.IsNaN(vz) {
		return [3]float64{}, false
	}
	g := ix.vectors.Grid
	d := [3]float64{vx / g.VoxelSize[0], vy / g.VoxelSize[1], vz / g.VoxelSize[2]}
	norm := math.Sqrt(d[0]*d[0] + d[1]*d[1] + d[2]*d[2])
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return [3]float64{}, false
	}
	for c := 0; c < 3; c++ {
		d[c] /= norm
	}
	return d, true
}

func sameMask(a, b voxel.Mask) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
