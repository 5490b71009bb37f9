package densities

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mtypedensities"
	"mtypedensities/pkg/hierarchy"
	"mtypedensities/pkg/voxel"
)

// markerTree has two covered regions, a child region without own rows and a
// region no probability row mentions.
func markerTree(t *testing.T) *hierarchy.Tree {
	t.Helper()
	tree, err := hierarchy.NewTree([]hierarchy.Node{
		{ID: 997, Acronym: "root", Name: "root"},
		{ID: 21, ParentID: 997, Acronym: "TH", Name: "Thalamus"},
		{ID: 22, ParentID: 997, Acronym: "CP", Name: "Caudoputamen"},
		{ID: 23, ParentID: 22, Acronym: "CPc", Name: "Caudoputamen, caudal"},
		{ID: 24, ParentID: 997, Acronym: "XX", Name: "Uncharted"},
	})
	require.NoError(t, err)
	return tree
}

func markerMaps(t *testing.T) []*ProbabilityMap {
	t.Helper()
	thalamic, err := NewProbabilityMap([]ProbabilityRow{
		{
			Key:           ProbabilityKey{Region: "TH", MolecularType: "pv", Class: Inhibitory},
			Probabilities: map[string]float64{"BP": 0.3, "MC": 0.7},
		},
		{
			Key:           ProbabilityKey{Region: "TH", MolecularType: "sst", Class: Inhibitory},
			Probabilities: map[string]float64{"MC": 1},
		},
	})
	require.NoError(t, err)
	striatal, err := NewProbabilityMap([]ProbabilityRow{
		{
			Key:           ProbabilityKey{Region: "CP", MolecularType: "pv", Class: Inhibitory},
			Probabilities: map[string]float64{"BP": 1},
		},
	})
	require.NoError(t, err)
	return []*ProbabilityMap{thalamic, striatal}
}

func markerParams(t *testing.T) ProbabilityParams {
	t.Helper()
	g := voxel.Grid{Shape: [3]int{4, 1, 1}, VoxelSize: [3]float64{25, 25, 25}}
	return ProbabilityParams{
		Annotation: &voxel.LabelField{Grid: g, IDs: []uint32{21, 22, 23, 0}},
		Hierarchy:  markerTree(t),
		Maps:       markerMaps(t),
		Markers: map[string]*voxel.Field{
			"pv":  {Grid: g, Data: []float64{1, 2, 3, 4}},
			"sst": {Grid: g, Data: []float64{5, 6, 7, 8}},
		},
		Class: Inhibitory,
		Jobs:  2,
	}
}

func TestProbabilityAllocatorCombinesMarkers(t *testing.T) {
	alloc, err := NewProbabilityAllocator(markerParams(t))
	require.NoError(t, err)

	out, err := alloc.Allocate(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)

	// Voxel 0 sits in TH, voxel 1 in CP, voxel 2 in a CP child resolved
	// through the hierarchy, voxel 3 is background.
	wantBP := []float64{0.3 * 1, 1 * 2, 1 * 3, 0}
	wantMC := []float64{0.7*1 + 1*5, 0, 0, 0}
	for i := 0; i < 4; i++ {
		require.InDelta(t, wantBP[i], out["BP"].Data[i], 1e-12, "BP voxel %d", i)
		require.InDelta(t, wantMC[i], out["MC"].Data[i], 1e-12, "MC voxel %d", i)
	}
}

func TestProbabilityAllocatorIndependentOfJobs(t *testing.T) {
	run := func(jobs int) map[string]*voxel.Field {
		p := markerParams(t)
		p.Jobs = jobs
		alloc, err := NewProbabilityAllocator(p)
		require.NoError(t, err)
		out, err := alloc.Allocate(context.Background())
		require.NoError(t, err)
		return out
	}

	serial := run(1)
	parallel := run(4)
	require.Equal(t, len(serial), len(parallel))
	for mtype, field := range serial {
		require.Equal(t, field.Data, parallel[mtype].Data, "mtype %s", mtype)
	}
}

func TestProbabilityAllocatorUncoveredRegions(t *testing.T) {
	p := markerParams(t)
	p.Annotation.IDs = []uint32{21, 24, 24, 24}

	// Three of four annotated voxels resolve to no covered region.
	p.MaxDegenerateFraction = 0.5
	alloc, err := NewProbabilityAllocator(p)
	require.NoError(t, err)
	_, err = alloc.Allocate(context.Background())
	require.ErrorIs(t, err, mtypedensities.ErrDomainValidation)
	require.Contains(t, err.Error(), "not covered by any probability row")

	p.MaxDegenerateFraction = 0
	alloc, err = NewProbabilityAllocator(p)
	require.NoError(t, err)
	out, err := alloc.Allocate(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 0.3, out["BP"].Data[0], 1e-12)
	for i := 1; i < 4; i++ {
		require.Zero(t, out["BP"].Data[i])
		require.Zero(t, out["MC"].Data[i])
	}
}

func TestProbabilityAllocatorValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*ProbabilityParams)
		wantMsg string
	}{
		{
			name:    "missing annotation",
			mutate:  func(p *ProbabilityParams) { p.Annotation = nil },
			wantMsg: "no annotation volume",
		},
		{
			name:    "missing hierarchy",
			mutate:  func(p *ProbabilityParams) { p.Hierarchy = nil },
			wantMsg: "no region hierarchy",
		},
		{
			name:    "bad synapse class",
			mutate:  func(p *ProbabilityParams) { p.Class = "ALL" },
			wantMsg: `synapse class "ALL"`,
		},
		{
			name:    "no maps",
			mutate:  func(p *ProbabilityParams) { p.Maps = nil },
			wantMsg: "no probability map supplied",
		},
		{
			name:    "no rows for class",
			mutate:  func(p *ProbabilityParams) { p.Class = Excitatory },
			wantMsg: `no rows for synapse class "EXC"`,
		},
		{
			name: "missing marker",
			mutate: func(p *ProbabilityParams) {
				p.Markers = map[string]*voxel.Field{"pv": p.Markers["pv"]}
			},
			wantMsg: `no marker density supplied for molecular type "sst"`,
		},
		{
			name: "negative marker",
			mutate: func(p *ProbabilityParams) {
				p.Markers["pv"].Data[2] = -1
			},
			wantMsg: "negative values",
		},
		{
			name: "marker grid mismatch",
			mutate: func(p *ProbabilityParams) {
				other := voxel.Grid{Shape: [3]int{5, 1, 1}, VoxelSize: [3]float64{25, 25, 25}}
				p.Markers["sst"] = voxel.NewField(other)
			},
			wantMsg: "do not share shape",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := markerParams(t)
			tc.mutate(&p)
			_, err := NewProbabilityAllocator(p)
			require.ErrorIs(t, err, mtypedensities.ErrDomainValidation)
			require.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}
