package densities

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"mtypedensities"
	"mtypedensities/pkg/hierarchy"
	"mtypedensities/pkg/voxel"
)

// DefaultJobs is the worker pool size used when none is configured.
const DefaultJobs = 10

// ProbabilityParams configures a ProbabilityAllocator.
type ProbabilityParams struct {
	// Annotation labels every voxel with its region.
	Annotation *voxel.LabelField

	// Hierarchy is the region ontology matching the annotation. Voxels in
	// regions without probability rows are resolved through it to the
	// nearest covered ancestor.
	Hierarchy *hierarchy.Tree

	// Maps are the probability tables, merged with a duplicate key check.
	Maps []*ProbabilityMap

	// Markers holds one density field per molecular type, e.g. "pv".
	Markers map[string]*voxel.Field

	// Class selects the synapse class to produce. Rows of the other class
	// are skipped.
	Class SynapseClass

	// Jobs bounds the worker pool. DefaultJobs when zero.
	Jobs int

	// MaxDegenerateFraction aborts the computation when the fraction of
	// annotated voxels resolving to no covered region exceeds it. Zero
	// means always tolerate.
	MaxDegenerateFraction float64

	// Log receives progress and coverage statistics. Nil disables logging.
	Log *zap.SugaredLogger
}

// ProbabilityAllocator computes per-mtype density fields from molecular
// marker densities and region probability maps. Work is partitioned by
// region across a bounded worker pool; partial contributions are reduced in
// deterministic region order, so results do not depend on the pool size.
type ProbabilityAllocator struct {
	params ProbabilityParams
	merged *ProbabilityMap
	jobs   int
	log    *zap.SugaredLogger
}

// NewProbabilityAllocator merges and validates the inputs. Every molecular
// type referenced by a row of the requested class must have a marker field.
func NewProbabilityAllocator(p ProbabilityParams) (*ProbabilityAllocator, error) {
	if p.Annotation == nil {
		return nil, mtypedensities.Validationf("no annotation volume supplied")
	}
	if p.Hierarchy == nil {
		return nil, mtypedensities.Validationf("no region hierarchy supplied")
	}
	if !p.Class.valid() {
		return nil, mtypedensities.Validationf("synapse class %q is not EXC or INH", p.Class)
	}

	merged, err := MergeProbabilityMaps(p.Maps...)
	if err != nil {
		return nil, err
	}

	required := make(map[string]bool)
	for _, k := range merged.Keys() {
		if k.Class == p.Class {
			required[k.MolecularType] = true
		}
	}
	if len(required) == 0 {
		return nil, mtypedensities.Validationf(
			"probability maps define no rows for synapse class %q", p.Class)
	}
	for _, mt := range sortedKeys(required) {
		if _, ok := p.Markers[mt]; !ok {
			return nil, mtypedensities.Validationf(
				"no marker density supplied for molecular type %q", mt)
		}
	}

	named := []voxel.NamedGrid{}
	for _, mt := range sortedKeys(markerSet(p.Markers)) {
		if err := voxel.CheckNonNegative(mt, p.Markers[mt]); err != nil {
			return nil, err
		}
		named = append(named, voxel.Named(mt, p.Markers[mt].Grid))
	}
	if err := voxel.SameGrid(voxel.Named("annotation", p.Annotation.Grid), named...); err != nil {
		return nil, err
	}

	jobs := p.Jobs
	if jobs <= 0 {
		jobs = DefaultJobs
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	for _, mt := range sortedKeys(markerSet(p.Markers)) {
		if !required[mt] {
			log.Warnw("marker not referenced by any row of the requested class",
				"molecular_type", mt, "synapse_class", p.Class)
		}
	}
	return &ProbabilityAllocator{params: p, merged: merged, jobs: jobs, log: log}, nil
}

// Allocate computes one density field per mtype of the requested class. The
// context cancels outstanding workers; on any failure no output is returned.
func (a *ProbabilityAllocator) Allocate(ctx context.Context) (map[string]*voxel.Field, error) {
	p := a.params
	grid := p.Annotation.Grid

	mtypes := a.merged.ClassMTypes(p.Class)
	if len(mtypes) == 0 {
		return nil, mtypedensities.Validationf(
			"probability maps define no mtype columns for synapse class %q", p.Class)
	}

	regionMasks, uncovered, annotated := a.resolveRegions()
	if err := checkDegenerateFraction("not covered by any probability row",
		uncovered, annotated, p.MaxDegenerateFraction); err != nil {
		return nil, err
	}
	if uncovered > 0 {
		a.log.Infow("annotated voxels without probability rows contribute nothing",
			"count", uncovered, "annotated", annotated)
	}

	regions := make([]string, 0, len(regionMasks))
	for r := range regionMasks {
		regions = append(regions, r)
	}
	sort.Strings(regions)

	// One partition per region; partial results land in indexed slots so
	// the reduction below is independent of worker scheduling.
	partials := make([]map[string][]float64, len(regions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.jobs)
	for i, region := range regions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			partials[i] = a.regionContributions(region, regionMasks[region], mtypes)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*voxel.Field, len(mtypes))
	for _, m := range mtypes {
		out[m] = voxel.NewField(grid)
	}
	for i, region := range regions {
		mask := regionMasks[region]
		for mtype, vec := range partials[i] {
			field := out[mtype]
			for j, vox := range mask {
				field.Data[vox] += vec[j]
			}
		}
	}

	for _, m := range mtypes {
		a.log.Debugw("mtype density computed", "mtype", m, "total_mass", floats.Sum(out[m].Data))
	}
	return out, nil
}

// resolveRegions groups annotated voxels by the nearest ancestor region with
// rows of the requested class. It returns the per-region masks, the count of
// annotated voxels left uncovered and the annotated total.
func (a *ProbabilityAllocator) resolveRegions() (map[string][]int, int, int) {
	p := a.params
	memo := make(map[uint32]string)
	masks := make(map[string][]int)
	uncovered, annotated := 0, 0
	for i, id := range p.Annotation.IDs {
		if id == 0 {
			continue
		}
		annotated++
		region, ok := memo[id]
		if !ok {
			if n, found := p.Hierarchy.Ascend(id, func(node hierarchy.Node) bool {
				return a.merged.HasRegionClass(node.Acronym, p.Class)
			}); found {
				region = n.Acronym
			}
			memo[id] = region
		}
		if region == "" {
			uncovered++
			continue
		}
		masks[region] = append(masks[region], i)
	}
	return masks, uncovered, annotated
}

// regionContributions computes the density every mtype receives inside one
// region. Vectors are aligned with the region's voxel mask.
func (a *ProbabilityAllocator) regionContributions(region string, mask []int, mtypes []string) map[string][]float64 {
	markerVecs := make(map[string][]float64)
	partial := make(map[string][]float64)
	for _, key := range a.merged.Keys() {
		if key.Region != region || key.Class != a.params.Class {
			continue
		}
		probs, _ := a.merged.Probabilities(key)

		mvec, ok := markerVecs[key.MolecularType]
		if !ok {
			marker := a.params.Markers[key.MolecularType]
			mvec = make([]float64, len(mask))
			for j, vox := range mask {
				mvec[j] = marker.Data[vox]
			}
			markerVecs[key.MolecularType] = mvec
		}

		for _, mtype := range mtypes {
			prob, ok := probs[mtype]
			if !ok || prob == 0 {
				continue
			}
			vec := partial[mtype]
			if vec == nil {
				vec = make([]float64, len(mask))
				partial[mtype] = vec
			}
			floats.AddScaled(vec, prob, mvec)
		}
	}
	return partial
}

func markerSet(markers map[string]*voxel.Field) map[string]bool {
	out := make(map[string]bool, len(markers))
	for mt := range markers {
		out[mt] = true
	}
	return out
}
