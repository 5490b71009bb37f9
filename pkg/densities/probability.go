package densities

import (
	"sort"

	"mtypedensities"
)

// probSumTol absorbs decimal rounding when per-key probabilities are checked
// against the ≤ 1 invariant.
const probSumTol = 1e-6

// ProbabilityKey identifies one row of a probability map.
type ProbabilityKey struct {
	// Region is the acronym of the annotated region the row applies to.
	Region string

	// MolecularType names the marker population, e.g. "pv" or "sst".
	MolecularType string

	// Class is the synapse class the row describes.
	Class SynapseClass
}

// ProbabilityRow pairs a key with the probability, per mtype, that a cell of
// the keyed marker population has that mtype.
type ProbabilityRow struct {
	Key           ProbabilityKey
	Probabilities map[string]float64
}

// ProbabilityMap is a validated probability table indexed by composite key.
type ProbabilityMap struct {
	rows         map[ProbabilityKey]map[string]float64
	keys         []ProbabilityKey
	mtypes       []string
	regions      []string
	classRegions map[SynapseClass]map[string]bool
}

// NewProbabilityMap validates decoded rows: keys must be unique, every
// probability must lie in [0,1] and, per key, probabilities may sum to at
// most 1 (cells may belong to none of the listed mtypes).
func NewProbabilityMap(rows []ProbabilityRow) (*ProbabilityMap, error) {
	m := &ProbabilityMap{
		rows: make(map[ProbabilityKey]map[string]float64, len(rows)),
		classRegions: map[SynapseClass]map[string]bool{
			Excitatory: make(map[string]bool),
			Inhibitory: make(map[string]bool),
		},
	}
	mtypes := make(map[string]bool)
	regions := make(map[string]bool)
	for _, r := range rows {
		if !r.Key.Class.valid() {
			return nil, mtypedensities.Validationf(
				"probability map row (%s, %s) has synapse class %q, expected EXC or INH",
				r.Key.Region, r.Key.MolecularType, r.Key.Class)
		}
		if _, dup := m.rows[r.Key]; dup {
			return nil, mtypedensities.Validationf(
				"duplicate probability map row for region %q, molecular type %q, synapse class %q",
				r.Key.Region, r.Key.MolecularType, r.Key.Class)
		}
		sum := 0.0
		for mtype, p := range r.Probabilities {
			if p < 0 || p > 1 {
				return nil, mtypedensities.Validationf(
					"probability %g for mtype %q in row (%s, %s, %s) is outside [0,1]",
					p, mtype, r.Key.Region, r.Key.MolecularType, r.Key.Class)
			}
			sum += p
			mtypes[mtype] = true
		}
		if sum > 1+probSumTol {
			return nil, mtypedensities.Validationf(
				"probabilities in row (%s, %s, %s) sum to %g, above 1",
				r.Key.Region, r.Key.MolecularType, r.Key.Class, sum)
		}
		m.rows[r.Key] = r.Probabilities
		m.keys = append(m.keys, r.Key)
		regions[r.Key.Region] = true
		m.classRegions[r.Key.Class][r.Key.Region] = true
	}

	m.mtypes = sortedKeys(mtypes)
	m.regions = sortedKeys(regions)
	sortKeys(m.keys)
	return m, nil
}

// MergeProbabilityMaps combines several maps into one. A key appearing in
// more than one map is rejected rather than silently overwritten.
func MergeProbabilityMaps(maps ...*ProbabilityMap) (*ProbabilityMap, error) {
	if len(maps) == 0 {
		return nil, mtypedensities.Validationf("no probability map supplied")
	}
	var rows []ProbabilityRow
	for _, m := range maps {
		for _, k := range m.keys {
			rows = append(rows, ProbabilityRow{Key: k, Probabilities: m.rows[k]})
		}
	}
	return NewProbabilityMap(rows)
}

// MTypes lists the mtype columns, sorted.
func (m *ProbabilityMap) MTypes() []string {
	return m.mtypes
}

// Regions lists the covered region acronyms, sorted.
func (m *ProbabilityMap) Regions() []string {
	return m.regions
}

// HasRegion reports whether any row covers the region.
func (m *ProbabilityMap) HasRegion(region string) bool {
	i := sort.SearchStrings(m.regions, region)
	return i < len(m.regions) && m.regions[i] == region
}

// HasRegionClass reports whether any row of the synapse class covers the
// region.
func (m *ProbabilityMap) HasRegionClass(region string, class SynapseClass) bool {
	set, ok := m.classRegions[class]
	return ok && set[region]
}

// Keys lists all row keys in deterministic order: region, then molecular
// type, then synapse class.
func (m *ProbabilityMap) Keys() []ProbabilityKey {
	return m.keys
}

// Probabilities returns the per-mtype probabilities of a key.
func (m *ProbabilityMap) Probabilities(k ProbabilityKey) (map[string]float64, bool) {
	p, ok := m.rows[k]
	return p, ok
}

// ClassMTypes splits the mtype columns for one requested synapse class: the
// columns with a positive probability in at least one row of that class,
// plus the columns that are zero under every row of either class. Columns
// positive only under the other class are excluded.
func (m *ProbabilityMap) ClassMTypes(class SynapseClass) []string {
	positive := make(map[string]map[SynapseClass]bool)
	for _, k := range m.keys {
		for mtype, p := range m.rows[k] {
			if p <= 0 {
				continue
			}
			if positive[mtype] == nil {
				positive[mtype] = make(map[SynapseClass]bool)
			}
			positive[mtype][k.Class] = true
		}
	}
	var out []string
	for _, mtype := range m.mtypes {
		classes := positive[mtype]
		if len(classes) == 0 || classes[class] {
			out = append(out, mtype)
		}
	}
	return out
}

func sortKeys(keys []ProbabilityKey) {
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if a.MolecularType != b.MolecularType {
			return a.MolecularType < b.MolecularType
		}
		return a.Class < b.Class
	})
}
