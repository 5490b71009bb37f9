package densities

import (
	"sort"

	"mtypedensities"
)

// SynapseClass tells excitatory and inhibitory populations apart.
type SynapseClass string

const (
	// Excitatory marks EXC mtypes.
	Excitatory SynapseClass = "EXC"

	// Inhibitory marks INH mtypes.
	Inhibitory SynapseClass = "INH"
)

func (c SynapseClass) valid() bool {
	return c == Excitatory || c == Inhibitory
}

// TaxonomyColumns is the exact header a taxonomy table must carry.
var TaxonomyColumns = []string{"mtype", "mClass", "sClass"}

// TaxonomyRow maps one mtype to its morphological and synapse class.
type TaxonomyRow struct {
	MType  string
	MClass string
	SClass SynapseClass
}

// Taxonomy is the validated mtype classification table.
type Taxonomy struct {
	rows   map[string]TaxonomyRow
	mtypes []string
}

// NewTaxonomy checks the header and rows of a decoded taxonomy table. The
// header must hold exactly the columns mtype, mClass and sClass, and every
// sClass value must be EXC or INH.
func NewTaxonomy(columns []string, rows []TaxonomyRow) (*Taxonomy, error) {
	got := make(map[string]bool, len(columns))
	for _, c := range columns {
		got[c] = true
	}
	var missing, extra []string
	for _, c := range TaxonomyColumns {
		if !got[c] {
			missing = append(missing, c)
		}
	}
	for _, c := range columns {
		if !contains(TaxonomyColumns, c) {
			extra = append(extra, c)
		}
	}
	if len(missing) > 0 {
		return nil, mtypedensities.Validationf(
			"taxonomy is missing columns %v, expected exactly %v", missing, TaxonomyColumns)
	}
	if len(extra) > 0 {
		return nil, mtypedensities.Validationf(
			"taxonomy has unexpected columns %v, expected exactly %v", extra, TaxonomyColumns)
	}

	t := &Taxonomy{rows: make(map[string]TaxonomyRow, len(rows))}
	for _, r := range rows {
		if !r.SClass.valid() {
			return nil, mtypedensities.Validationf(
				"taxonomy has sClass %q for mtype %q, expected EXC or INH", r.SClass, r.MType)
		}
		if _, dup := t.rows[r.MType]; dup {
			return nil, mtypedensities.Validationf("duplicate mtype %q in taxonomy", r.MType)
		}
		t.rows[r.MType] = r
		t.mtypes = append(t.mtypes, r.MType)
	}
	sort.Strings(t.mtypes)
	return t, nil
}

// Class returns the synapse class of an mtype.
func (t *Taxonomy) Class(mtype string) (SynapseClass, bool) {
	r, ok := t.rows[mtype]
	return r.SClass, ok
}

// MTypes lists all mtypes in sorted order.
func (t *Taxonomy) MTypes() []string {
	return t.mtypes
}

// OfClass lists the mtypes of one synapse class in sorted order.
func (t *Taxonomy) OfClass(c SynapseClass) []string {
	var out []string
	for _, m := range t.mtypes {
		if t.rows[m].SClass == c {
			out = append(out, m)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// setDiff returns the elements of a missing from b, sorted.
func setDiff(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	out := []string{}
	for _, s := range a {
		if !in[s] {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
