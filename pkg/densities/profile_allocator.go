package densities

import (
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"mtypedensities"
	"mtypedensities/pkg/hierarchy"
	"mtypedensities/pkg/slicer"
	"mtypedensities/pkg/voxel"
)

// ProfileParams configures a ProfileAllocator.
type ProfileParams struct {
	// Annotation labels every voxel with its region.
	Annotation *voxel.LabelField

	// Hierarchy is the region ontology matching the annotation.
	Hierarchy *hierarchy.Tree

	// Catalog defines the region of interest and its layers.
	Catalog hierarchy.Catalog

	// Indexer partitions layers into depth slices.
	Indexer *slicer.Indexer

	// Profiles holds the normalized allocation weights.
	Profiles *Relative

	// Excitatory and Inhibitory are the total density fields. At least one
	// must be supplied.
	Excitatory *voxel.Field
	Inhibitory *voxel.Field

	// MaxDegenerateFraction aborts the computation when the fraction of
	// layer voxels excluded for degenerate direction vectors exceeds it.
	// Zero means always tolerate.
	MaxDegenerateFraction float64

	// Log receives progress and exclusion statistics. Nil disables logging.
	Log *zap.SugaredLogger
}

// ProfileAllocator distributes total excitatory and inhibitory density
// fields among mtypes using depth resolved relative density profiles.
type ProfileAllocator struct {
	params ProfileParams
	totals map[SynapseClass]*voxel.Field
	log    *zap.SugaredLogger
}

// NewProfileAllocator validates the inputs and builds the allocator. Missing
// both total density fields, a grid mismatch, or an unusable total field is
// a fatal domain validation error.
func NewProfileAllocator(p ProfileParams) (*ProfileAllocator, error) {
	if p.Annotation == nil {
		return nil, mtypedensities.Validationf("no annotation volume supplied")
	}
	if p.Hierarchy == nil {
		return nil, mtypedensities.Validationf("no region hierarchy supplied")
	}
	if p.Indexer == nil {
		return nil, mtypedensities.Validationf("no depth slice indexer supplied")
	}
	if p.Profiles == nil {
		return nil, mtypedensities.Validationf("no density profiles supplied")
	}
	if p.Excitatory == nil && p.Inhibitory == nil {
		return nil, mtypedensities.Validationf(
			"no neuron density field was provided; expected excitatory, inhibitory, or both")
	}

	named := []voxel.NamedGrid{voxel.Named("direction_vectors", p.Indexer.Grid())}
	totals := make(map[SynapseClass]*voxel.Field)
	if p.Excitatory != nil {
		if err := voxel.CheckDensity("excitatory_neuron_density", p.Excitatory); err != nil {
			return nil, err
		}
		totals[Excitatory] = p.Excitatory
		named = append(named, voxel.Named("excitatory_neuron_density", p.Excitatory.Grid))
	}
	if p.Inhibitory != nil {
		if err := voxel.CheckDensity("inhibitory_neuron_density", p.Inhibitory); err != nil {
			return nil, err
		}
		totals[Inhibitory] = p.Inhibitory
		named = append(named, voxel.Named("inhibitory_neuron_density", p.Inhibitory.Grid))
	}
	if err := voxel.SameGrid(voxel.Named("annotation", p.Annotation.Grid), named...); err != nil {
		return nil, err
	}

	log := p.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ProfileAllocator{params: p, totals: totals, log: log}, nil
}

// Allocate produces one density field per profiled mtype whose synapse class
// has a total field. Layers without a configured slice count are skipped;
// voxels with degenerate direction vectors stay at zero density.
func (a *ProfileAllocator) Allocate() (map[string]*voxel.Field, error) {
	p := a.params
	grid := p.Annotation.Grid

	layerSets, err := p.Hierarchy.LayerSets(p.Catalog)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*voxel.Field)
	for _, m := range p.Profiles.MTypes() {
		class, _ := p.Profiles.Class(m)
		if _, ok := a.totals[class]; ok {
			out[m] = voxel.NewField(grid)
		}
	}
	if len(out) == 0 {
		return nil, mtypedensities.Validationf(
			"no profiled mtype matches the supplied total density fields")
	}

	layerVoxels, degenerate := 0, 0
	for _, ls := range layerSets {
		k, ok := p.Profiles.SliceCount(ls.Name)
		if !ok {
			a.log.Infow("layer has no configured slice count, skipped", "layer", ls.Name)
			continue
		}
		mask := p.Annotation.MaskOf(ls.IDs)
		if len(mask) == 0 {
			a.log.Infow("layer has no annotated voxels", "layer", ls.Name)
			continue
		}

		assignment, err := p.Indexer.Slices(ls.Name, mask, k)
		if err != nil {
			return nil, err
		}
		layerVoxels += len(mask)
		degenerate += assignment.Degenerate

		for m, field := range out {
			class, _ := p.Profiles.Class(m)
			total := a.totals[class]

			// Gather the per-slice weights once per mtype and layer.
			weights := make([]float64, k)
			defined := make([]bool, k)
			any := false
			for s := 0; s < k; s++ {
				if w, ok := p.Profiles.Weight(m, ls.Name, s); ok {
					weights[s] = w
					defined[s] = true
					any = true
				}
			}
			if !any {
				continue
			}
			for j, vox := range mask {
				s := assignment.Slice[j]
				if s < 0 || !defined[s] {
					continue
				}
				field.Data[vox] += weights[s] * total.Data[vox]
			}
		}
		a.log.Debugw("allocated layer", "layer", ls.Name, "voxels", len(mask), "slices", k)
	}

	if err := checkDegenerateFraction("excluded for degenerate direction vectors",
		degenerate, layerVoxels, p.MaxDegenerateFraction); err != nil {
		return nil, err
	}
	for _, m := range sortedFieldNames(out) {
		a.log.Debugw("mtype density computed", "mtype", m, "total_mass", floats.Sum(out[m].Data))
	}
	return out, nil
}

// checkDegenerateFraction enforces the configurable tolerance for excluded
// voxels. A zero limit tolerates everything.
func checkDegenerateFraction(reason string, excluded, total int, limit float64) error {
	if limit <= 0 || total == 0 {
		return nil
	}
	frac := float64(excluded) / float64(total)
	if frac > limit {
		return mtypedensities.Validationf(
			"%d of %d voxels (%.1f%%) %s, above the configured limit of %.1f%%",
			excluded, total, 100*frac, reason, 100*limit)
	}
	return nil
}

func sortedFieldNames(fields map[string]*voxel.Field) []string {
	set := make(map[string]bool, len(fields))
	for m := range fields {
		set[m] = true
	}
	return sortedKeys(set)
}
