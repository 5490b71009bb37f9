package densities

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"mtypedensities"
)

// CompositionRow is one entry of the neuron composition document: the
// average density of an mtype within its layer.
type CompositionRow struct {
	MType   string
	Layer   string
	Density float64
}

// Composition is the validated neuron composition table.
type Composition struct {
	rows   []CompositionRow
	mtypes []string
}

// NewComposition validates decoded composition rows: densities must be
// non-negative and (mtype, layer) pairs unique.
func NewComposition(rows []CompositionRow) (*Composition, error) {
	type key struct{ mtype, layer string }
	seen := make(map[key]bool, len(rows))
	mtypes := make(map[string]bool)
	for _, r := range rows {
		if r.Density < 0 {
			return nil, mtypedensities.Validationf(
				"negative density values encountered in composition (mtype %q, layer %q)", r.MType, r.Layer)
		}
		k := key{r.MType, r.Layer}
		if seen[k] {
			return nil, mtypedensities.Validationf(
				"duplicate composition entry for mtype %q in layer %q", r.MType, r.Layer)
		}
		seen[k] = true
		mtypes[r.MType] = true
	}

	c := &Composition{rows: rows}
	for m := range mtypes {
		c.mtypes = append(c.mtypes, m)
	}
	sort.Strings(c.mtypes)
	return c, nil
}

// MTypes lists the mtypes appearing in the table, sorted.
func (c *Composition) MTypes() []string {
	return c.mtypes
}

// MTypeRatio is an mtype's share of its layer's total excitatory density.
type MTypeRatio struct {
	MType string
	Layer string
	Ratio float64
}

// ExcitatoryRatios derives composition ratios for the excitatory mtypes.
// The taxonomy and composition must reference the same mtype set; every
// layer holding excitatory mtypes must have a positive total density.
// Results are ordered by layer, then mtype.
func (c *Composition) ExcitatoryRatios(tax *Taxonomy) ([]MTypeRatio, error) {
	if err := c.checkCongruency(tax); err != nil {
		return nil, err
	}

	type entry struct {
		mtype   string
		density float64
	}
	layers := make(map[string][]entry)
	for _, r := range c.rows {
		class, _ := tax.Class(r.MType)
		if class != Excitatory {
			continue
		}
		layers[r.Layer] = append(layers[r.Layer], entry{r.MType, r.Density})
	}

	names := make([]string, 0, len(layers))
	for l := range layers {
		names = append(names, l)
	}
	sort.Strings(names)

	var out []MTypeRatio
	for _, layer := range names {
		entries := layers[layer]
		sort.Slice(entries, func(i, j int) bool { return entries[i].mtype < entries[j].mtype })

		densities := make([]float64, len(entries))
		for i, e := range entries {
			densities[i] = e.density
		}
		total := floats.Sum(densities)
		if total == 0 {
			return nil, mtypedensities.Validationf(
				"layer %q has zero total excitatory density in composition", layer)
		}
		for _, e := range entries {
			out = append(out, MTypeRatio{MType: e.mtype, Layer: layer, Ratio: e.density / total})
		}
	}
	return out, nil
}

// checkCongruency verifies that taxonomy and composition reference the same
// mtype set.
func (c *Composition) checkCongruency(tax *Taxonomy) error {
	taxOnly := setDiff(tax.MTypes(), c.mtypes)
	compOnly := setDiff(c.mtypes, tax.MTypes())
	if len(taxOnly) > 0 || len(compOnly) > 0 {
		return mtypedensities.Validationf(
			"mtype sets differ between taxonomy and composition: only in taxonomy %v, only in composition %v",
			taxOnly, compOnly)
	}
	return nil
}
