package densities

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"mtypedensities"
	"mtypedensities/pkg/hierarchy"
	"mtypedensities/pkg/slicer"
	"mtypedensities/pkg/voxel"
)

// layeredTree models a minimal column: two layers inside region O1.
func layeredTree(t *testing.T) *hierarchy.Tree {
	t.Helper()
	tree, err := hierarchy.NewTree([]hierarchy.Node{
		{ID: 997, Acronym: "root", Name: "root"},
		{ID: 8, ParentID: 997, Acronym: "O1", Name: "O1 column"},
		{ID: 21, ParentID: 8, Acronym: "L1", Name: "O1 layer 1"},
		{ID: 22, ParentID: 8, Acronym: "L2", Name: "O1 layer 2"},
	})
	require.NoError(t, err)
	return tree
}

func layerCatalog() hierarchy.Catalog {
	region := hierarchy.Query{Attribute: hierarchy.ByAcronym, Pattern: "O1", WithDescendants: true}
	return hierarchy.Catalog{
		Region: &region,
		Layers: []hierarchy.LayerQuery{
			{Name: "layer_1", Query: hierarchy.Query{Attribute: hierarchy.ByAcronym, Pattern: "L1", WithDescendants: true}},
			{Name: "layer_2", Query: hierarchy.Query{Attribute: hierarchy.ByAcronym, Pattern: "L2", WithDescendants: true}},
		},
	}
}

// columnGrid is a 10x1x1 slab whose direction field points along +x, so
// depth within a layer grows with x.
func columnGrid() (voxel.Grid, *voxel.VectorField) {
	g := voxel.Grid{Shape: [3]int{10, 1, 1}, VoxelSize: [3]float64{25, 25, 25}}
	v := &voxel.VectorField{Grid: g, Vectors: make([]float64, 3*g.Len())}
	for i := 0; i < g.Len(); i++ {
		v.Vectors[3*i] = 1
	}
	return g, v
}

func uniformLabels(g voxel.Grid, id uint32) *voxel.LabelField {
	l := &voxel.LabelField{Grid: g, IDs: make([]uint32, g.Len())}
	for i := range l.IDs {
		l.IDs[i] = id
	}
	return l
}

func TestProfileAllocatorSplitsByDepthProfiles(t *testing.T) {
	g, vectors := columnGrid()
	annotation := uniformLabels(g, 21)

	exc := voxel.NewField(g)
	inh := voxel.NewField(g)
	for i := range exc.Data {
		exc.Data[i] = float64(i + 1)
		inh.Data[i] = 2
	}

	profiles, err := NewProfiles([]ProfileRow{
		{MType: "PC_A", Class: Excitatory, Layer: "layer_1", Slice: 0, Value: 1},
		{MType: "PC_B", Class: Excitatory, Layer: "layer_1", Slice: 0, Value: 3},
		{MType: "PC_A", Class: Excitatory, Layer: "layer_1", Slice: 1, Value: 1},
		{MType: "PC_B", Class: Excitatory, Layer: "layer_1", Slice: 1, Value: 1},
		{MType: "DAC", Class: Inhibitory, Layer: "layer_1", Slice: 0, Value: 2},
		{MType: "DAC", Class: Inhibitory, Layer: "layer_1", Slice: 1, Value: 0},
	}, SliceCounts{"layer_1": 2})
	require.NoError(t, err)

	ix, err := slicer.New(slicer.Params{Vectors: vectors})
	require.NoError(t, err)

	alloc, err := NewProfileAllocator(ProfileParams{
		Annotation: annotation,
		Hierarchy:  layeredTree(t),
		Catalog:    layerCatalog(),
		Indexer:    ix,
		Profiles:   profiles.Relative(),
		Excitatory: exc,
		Inhibitory: inh,
	})
	require.NoError(t, err)

	out, err := alloc.Allocate()
	require.NoError(t, err)
	require.Len(t, out, 3)

	// The ten voxel column splits into two depth slices of five voxels
	// each. Slice 0 weighs the excitatory pair 1:3, slice 1 evenly.
	wantA := [2]float64{0.25, 0.5}
	wantB := [2]float64{0.75, 0.5}
	for x := 0; x < 10; x++ {
		s := 0
		if x >= 5 {
			s = 1
		}
		i := g.Index(x, 0, 0)
		require.InDelta(t, wantA[s]*exc.Data[i], out["PC_A"].Data[i], 1e-12, "PC_A at x=%d", x)
		require.InDelta(t, wantB[s]*exc.Data[i], out["PC_B"].Data[i], 1e-12, "PC_B at x=%d", x)

		// The lone inhibitory profile has no mass in slice 1, so those
		// voxels keep zero inhibitory density.
		wantDAC := 0.0
		if s == 0 {
			wantDAC = inh.Data[i]
		}
		require.InDelta(t, wantDAC, out["DAC"].Data[i], 1e-12, "DAC at x=%d", x)

		// Excitatory mass is conserved voxel by voxel.
		require.InDelta(t, exc.Data[i], out["PC_A"].Data[i]+out["PC_B"].Data[i], 1e-12)
	}
}

func TestProfileAllocatorSingleClass(t *testing.T) {
	g, vectors := columnGrid()
	annotation := uniformLabels(g, 21)
	exc := voxel.NewField(g)
	for i := range exc.Data {
		exc.Data[i] = 3
	}

	profiles, err := NewProfiles([]ProfileRow{
		{MType: "PC_A", Class: Excitatory, Layer: "layer_1", Slice: 0, Value: 7},
		{MType: "DAC", Class: Inhibitory, Layer: "layer_1", Slice: 0, Value: 7},
	}, SliceCounts{"layer_1": 1})
	require.NoError(t, err)

	ix, err := slicer.New(slicer.Params{Vectors: vectors})
	require.NoError(t, err)

	alloc, err := NewProfileAllocator(ProfileParams{
		Annotation: annotation,
		Hierarchy:  layeredTree(t),
		Catalog:    layerCatalog(),
		Indexer:    ix,
		Profiles:   profiles.Relative(),
		Excitatory: exc,
	})
	require.NoError(t, err)

	// Without an inhibitory total the inhibitory profile yields no field.
	out, err := alloc.Allocate()
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Contains(t, out, "PC_A")
	for i := range exc.Data {
		require.InDelta(t, exc.Data[i], out["PC_A"].Data[i], 1e-12)
	}
}

func TestProfileAllocatorNoMatchingClass(t *testing.T) {
	g, vectors := columnGrid()
	annotation := uniformLabels(g, 21)
	exc := voxel.NewField(g)
	exc.Data[0] = 1

	profiles, err := NewProfiles([]ProfileRow{
		{MType: "DAC", Class: Inhibitory, Layer: "layer_1", Slice: 0, Value: 1},
	}, SliceCounts{"layer_1": 1})
	require.NoError(t, err)

	ix, err := slicer.New(slicer.Params{Vectors: vectors})
	require.NoError(t, err)

	alloc, err := NewProfileAllocator(ProfileParams{
		Annotation: annotation,
		Hierarchy:  layeredTree(t),
		Catalog:    layerCatalog(),
		Indexer:    ix,
		Profiles:   profiles.Relative(),
		Excitatory: exc,
	})
	require.NoError(t, err)

	_, err = alloc.Allocate()
	require.ErrorIs(t, err, mtypedensities.ErrDomainValidation)
	require.Contains(t, err.Error(), "no profiled mtype matches")
}

func TestProfileAllocatorSkipsLayersWithoutSliceCounts(t *testing.T) {
	g, vectors := columnGrid()
	annotation := uniformLabels(g, 21)
	for x := 5; x < 10; x++ {
		annotation.IDs[g.Index(x, 0, 0)] = 22
	}
	exc := voxel.NewField(g)
	for i := range exc.Data {
		exc.Data[i] = 4
	}

	profiles, err := NewProfiles([]ProfileRow{
		{MType: "PC_A", Class: Excitatory, Layer: "layer_1", Slice: 0, Value: 5},
	}, SliceCounts{"layer_1": 1})
	require.NoError(t, err)

	ix, err := slicer.New(slicer.Params{Vectors: vectors})
	require.NoError(t, err)

	alloc, err := NewProfileAllocator(ProfileParams{
		Annotation: annotation,
		Hierarchy:  layeredTree(t),
		Catalog:    layerCatalog(),
		Indexer:    ix,
		Profiles:   profiles.Relative(),
		Excitatory: exc,
	})
	require.NoError(t, err)

	out, err := alloc.Allocate()
	require.NoError(t, err)

	// layer_2 has no slice count configured, so its voxels stay untouched.
	for x := 0; x < 10; x++ {
		i := g.Index(x, 0, 0)
		want := 0.0
		if x < 5 {
			want = exc.Data[i]
		}
		require.InDelta(t, want, out["PC_A"].Data[i], 1e-12, "x=%d", x)
	}
}

func TestProfileAllocatorDegenerateLimit(t *testing.T) {
	g, vectors := columnGrid()
	for i := range vectors.Vectors {
		vectors.Vectors[i] = math.NaN()
	}
	annotation := uniformLabels(g, 21)
	exc := voxel.NewField(g)
	for i := range exc.Data {
		exc.Data[i] = 1
	}

	profiles, err := NewProfiles([]ProfileRow{
		{MType: "PC_A", Class: Excitatory, Layer: "layer_1", Slice: 0, Value: 1},
	}, SliceCounts{"layer_1": 2})
	require.NoError(t, err)

	newAlloc := func(limit float64) *ProfileAllocator {
		ix, err := slicer.New(slicer.Params{Vectors: vectors})
		require.NoError(t, err)
		alloc, err := NewProfileAllocator(ProfileParams{
			Annotation:            annotation,
			Hierarchy:             layeredTree(t),
			Catalog:               layerCatalog(),
			Indexer:               ix,
			Profiles:              profiles.Relative(),
			Excitatory:            exc,
			MaxDegenerateFraction: limit,
		})
		require.NoError(t, err)
		return alloc
	}

	_, err = newAlloc(0.5).Allocate()
	require.ErrorIs(t, err, mtypedensities.ErrDomainValidation)
	require.Contains(t, err.Error(), "degenerate direction vectors")

	// A zero limit tolerates any exclusion; the excluded voxels simply
	// receive no density.
	out, err := newAlloc(0).Allocate()
	require.NoError(t, err)
	for _, v := range out["PC_A"].Data {
		require.Zero(t, v)
	}
}

func TestProfileAllocatorValidation(t *testing.T) {
	g, vectors := columnGrid()
	annotation := uniformLabels(g, 21)
	exc := voxel.NewField(g)
	exc.Data[0] = 1

	profiles, err := NewProfiles([]ProfileRow{
		{MType: "PC_A", Class: Excitatory, Layer: "layer_1", Slice: 0, Value: 1},
	}, SliceCounts{"layer_1": 1})
	require.NoError(t, err)
	relative := profiles.Relative()

	ix, err := slicer.New(slicer.Params{Vectors: vectors})
	require.NoError(t, err)

	base := ProfileParams{
		Annotation: annotation,
		Hierarchy:  layeredTree(t),
		Catalog:    layerCatalog(),
		Indexer:    ix,
		Profiles:   relative,
		Excitatory: exc,
	}

	cases := []struct {
		name    string
		mutate  func(*ProfileParams)
		wantMsg string
	}{
		{
			name:    "missing annotation",
			mutate:  func(p *ProfileParams) { p.Annotation = nil },
			wantMsg: "no annotation volume",
		},
		{
			name:    "missing hierarchy",
			mutate:  func(p *ProfileParams) { p.Hierarchy = nil },
			wantMsg: "no region hierarchy",
		},
		{
			name:    "missing indexer",
			mutate:  func(p *ProfileParams) { p.Indexer = nil },
			wantMsg: "no depth slice indexer",
		},
		{
			name:    "missing profiles",
			mutate:  func(p *ProfileParams) { p.Profiles = nil },
			wantMsg: "no density profiles",
		},
		{
			name:    "missing both totals",
			mutate:  func(p *ProfileParams) { p.Excitatory = nil; p.Inhibitory = nil },
			wantMsg: "expected excitatory, inhibitory, or both",
		},
		{
			name: "grid mismatch",
			mutate: func(p *ProfileParams) {
				other := voxel.Grid{Shape: [3]int{2, 2, 2}, VoxelSize: [3]float64{25, 25, 25}}
				f := voxel.NewField(other)
				f.Data[0] = 1
				p.Excitatory = f
			},
			wantMsg: "do not share shape",
		},
		{
			name: "negative total",
			mutate: func(p *ProfileParams) {
				f := voxel.NewField(g)
				f.Data[0] = -1
				p.Excitatory = f
			},
			wantMsg: "negative values",
		},
		{
			name: "all zero total",
			mutate: func(p *ProfileParams) {
				p.Excitatory = voxel.NewField(g)
			},
			wantMsg: "zeros everywhere",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			tc.mutate(&p)
			_, err := NewProfileAllocator(p)
			require.ErrorIs(t, err, mtypedensities.ErrDomainValidation)
			require.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}
