package densities

import (
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"mtypedensities"
	"mtypedensities/pkg/hierarchy"
	"mtypedensities/pkg/voxel"
)

// CompositionParams configures a CompositionAllocator.
type CompositionParams struct {
	// Annotation labels every voxel with its region.
	Annotation *voxel.LabelField

	// Hierarchy is the region ontology matching the annotation.
	Hierarchy *hierarchy.Tree

	// Catalog defines the region of interest and its layers.
	Catalog hierarchy.Catalog

	// Excitatory is the total excitatory density field being split.
	Excitatory *voxel.Field

	// Taxonomy classifies the mtypes of the composition.
	Taxonomy *Taxonomy

	// Composition holds the average density per mtype and layer.
	Composition *Composition

	// Log receives progress statistics. Nil disables logging.
	Log *zap.SugaredLogger
}

// CompositionAllocator splits the total excitatory density field among EXC
// mtypes in proportion to their layer composition ratios. Inhibitory entries
// of the taxonomy take no part in this path.
type CompositionAllocator struct {
	params CompositionParams
	log    *zap.SugaredLogger
}

// NewCompositionAllocator validates the inputs and builds the allocator.
func NewCompositionAllocator(p CompositionParams) (*CompositionAllocator, error) {
	if p.Annotation == nil {
		return nil, mtypedensities.Validationf("no annotation volume supplied")
	}
	if p.Hierarchy == nil {
		return nil, mtypedensities.Validationf("no region hierarchy supplied")
	}
	if p.Taxonomy == nil {
		return nil, mtypedensities.Validationf("no mtype taxonomy supplied")
	}
	if p.Composition == nil {
		return nil, mtypedensities.Validationf("no neuron composition supplied")
	}
	if p.Excitatory == nil {
		return nil, mtypedensities.Validationf(
			"no neuron density field was provided; expected an excitatory density volume")
	}
	if err := voxel.CheckDensity("excitatory_neuron_density", p.Excitatory); err != nil {
		return nil, err
	}
	if err := voxel.SameGrid(
		voxel.Named("annotation", p.Annotation.Grid),
		voxel.Named("excitatory_neuron_density", p.Excitatory.Grid),
	); err != nil {
		return nil, err
	}

	log := p.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &CompositionAllocator{params: p, log: log}, nil
}

// Allocate produces one density field per excitatory mtype: its composition
// ratio times the total field, restricted to its layer's voxels. An mtype
// whose layer is missing from the metadata keeps an all-zero field.
func (a *CompositionAllocator) Allocate() (map[string]*voxel.Field, error) {
	p := a.params

	ratios, err := p.Composition.ExcitatoryRatios(p.Taxonomy)
	if err != nil {
		return nil, err
	}
	if len(ratios) == 0 {
		return nil, mtypedensities.Validationf("composition holds no excitatory mtypes")
	}

	layerSets, err := p.Hierarchy.LayerSets(p.Catalog)
	if err != nil {
		return nil, err
	}
	masks := make(map[string]voxel.Mask, len(layerSets))
	for _, ls := range layerSets {
		masks[ls.Name] = p.Annotation.MaskOf(ls.IDs)
	}

	out := make(map[string]*voxel.Field)
	for _, r := range ratios {
		field, ok := out[r.MType]
		if !ok {
			field = voxel.NewField(p.Excitatory.Grid)
			out[r.MType] = field
		}
		mask, ok := masks[r.Layer]
		if !ok {
			a.log.Warnw("layer absent from metadata, mtype gets no density there",
				"layer", r.Layer, "mtype", r.MType)
			continue
		}
		for _, vox := range mask {
			field.Data[vox] += r.Ratio * p.Excitatory.Data[vox]
		}
		a.log.Debugw("allocated composition ratio",
			"mtype", r.MType, "layer", r.Layer, "ratio", r.Ratio, "voxels", len(mask))
	}

	for _, m := range sortedFieldNames(out) {
		a.log.Debugw("mtype density computed", "mtype", m, "total_mass", floats.Sum(out[m].Data))
	}
	return out, nil
}
