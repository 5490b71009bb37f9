package densities

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"mtypedensities"
)

// ProfileRow is one literature measurement: the density of an mtype in one
// depth slice of a layer.
type ProfileRow struct {
	MType string
	Class SynapseClass
	Layer string
	Slice int
	Value float64
}

// SliceCounts maps each layer to its configured number of depth slices.
type SliceCounts map[string]int

// Profiles holds validated raw density profile values keyed by
// (mtype, layer, slice).
type Profiles struct {
	counts  SliceCounts
	values  map[profileKey]float64
	classes map[string]SynapseClass
	mtypes  []string
	layers  []string
	dropped []string
}

type profileKey struct {
	mtype string
	layer string
	slice int
}

// NewProfiles validates decoded profile rows against the slice count table.
// Rows for a layer absent from the table are dropped, because that layer is
// skipped entirely by the profile path; every other inconsistency is fatal.
func NewProfiles(rows []ProfileRow, counts SliceCounts) (*Profiles, error) {
	for layer, k := range counts {
		if k < 1 {
			return nil, mtypedensities.Validationf("layer %q has slice count %d, need at least 1", layer, k)
		}
	}

	p := &Profiles{
		counts:  counts,
		values:  make(map[profileKey]float64, len(rows)),
		classes: make(map[string]SynapseClass),
	}
	mtypes := make(map[string]bool)
	layers := make(map[string]bool)
	droppedSet := make(map[string]bool)
	for _, r := range rows {
		if r.Value < 0 {
			return nil, mtypedensities.Validationf(
				"negative density values encountered in profile of mtype %q (layer %q, slice %d)",
				r.MType, r.Layer, r.Slice)
		}
		if !r.Class.valid() {
			return nil, mtypedensities.Validationf(
				"profile of mtype %q has synapse class %q, expected EXC or INH", r.MType, r.Class)
		}
		if prev, ok := p.classes[r.MType]; ok && prev != r.Class {
			return nil, mtypedensities.Validationf(
				"mtype %q is mapped to both synapse classes %q and %q", r.MType, prev, r.Class)
		}
		k, ok := counts[r.Layer]
		if !ok {
			droppedSet[r.Layer] = true
			continue
		}
		if r.Slice < 0 || r.Slice >= k {
			return nil, mtypedensities.Validationf(
				"profile of mtype %q references slice %d of layer %q, which has %d slices",
				r.MType, r.Slice, r.Layer, k)
		}
		key := profileKey{r.MType, r.Layer, r.Slice}
		if _, dup := p.values[key]; dup {
			return nil, mtypedensities.Validationf(
				"duplicate profile value for mtype %q, layer %q, slice %d", r.MType, r.Layer, r.Slice)
		}
		p.values[key] = r.Value
		p.classes[r.MType] = r.Class
		mtypes[r.MType] = true
		layers[r.Layer] = true
	}

	p.mtypes = sortedKeys(mtypes)
	p.layers = sortedKeys(layers)
	p.dropped = sortedKeys(droppedSet)
	return p, nil
}

// DroppedLayers lists the layers skipped for missing slice counts, sorted.
func (p *Profiles) DroppedLayers() []string {
	return p.dropped
}

// Relative normalizes the profiles into allocation weights: for each
// (layer, slice) and synapse class, weights across mtypes of that class sum
// to 1. A slice whose raw values sum to zero gets no weights at all, so the
// allocator leaves those voxels at zero.
func (p *Profiles) Relative() *Relative {
	r := &Relative{
		counts:  p.counts,
		weights: make(map[profileKey]float64, len(p.values)),
		classes: p.classes,
		mtypes:  p.mtypes,
		layers:  p.layers,
	}
	for _, layer := range p.layers {
		k := p.counts[layer]
		for s := 0; s < k; s++ {
			for _, class := range []SynapseClass{Excitatory, Inhibitory} {
				var members []string
				var values []float64
				for _, m := range p.mtypes {
					if p.classes[m] != class {
						continue
					}
					if v, ok := p.values[profileKey{m, layer, s}]; ok {
						members = append(members, m)
						values = append(values, v)
					}
				}
				total := floats.Sum(values)
				if total == 0 {
					continue
				}
				for i, m := range members {
					r.weights[profileKey{m, layer, s}] = values[i] / total
				}
			}
		}
	}
	return r
}

// Relative holds normalized profile weights.
type Relative struct {
	counts  SliceCounts
	weights map[profileKey]float64
	classes map[string]SynapseClass
	mtypes  []string
	layers  []string
}

// Weight returns the allocation weight of an mtype in a (layer, slice), and
// whether one is defined there.
func (r *Relative) Weight(mtype, layer string, slice int) (float64, bool) {
	w, ok := r.weights[profileKey{mtype, layer, slice}]
	return w, ok
}

// MTypes lists the profiled mtypes, sorted.
func (r *Relative) MTypes() []string {
	return r.mtypes
}

// Class returns the synapse class of a profiled mtype.
func (r *Relative) Class(mtype string) (SynapseClass, bool) {
	c, ok := r.classes[mtype]
	return c, ok
}

// SliceCount returns the configured slice count of a layer.
func (r *Relative) SliceCount(layer string) (int, bool) {
	k, ok := r.counts[layer]
	return k, ok
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
