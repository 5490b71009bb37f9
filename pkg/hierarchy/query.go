package hierarchy

import (
	"regexp"
	"sort"
	"strings"

	"mtypedensities"
)

// Attribute names the node field a query matches against.
type Attribute string

const (
	// ByAcronym matches Node.Acronym.
	ByAcronym Attribute = "acronym"

	// ByName matches Node.Name.
	ByName Attribute = "name"
)

// Query selects regions by attribute value. A pattern starting with "@" is a
// regular expression searched against the attribute; any other pattern is an
// exact literal match.
type Query struct {
	// Attribute is the matched node field.
	Attribute Attribute

	// Pattern is the literal value or "@regex" form.
	Pattern string

	// WithDescendants extends every match with its full subtree.
	WithDescendants bool
}

// LayerQuery binds a layer name to the query defining its regions.
type LayerQuery struct {
	Name string
	Query
}

// Catalog describes the annotated volume: the region of interest and the
// ordered list of layer definitions, as decoded from a metadata document.
type Catalog struct {
	// Region restricts the computation to one region subtree when present.
	Region *Query

	// Layers lists the cortical layers in order.
	Layers []LayerQuery
}

// Find resolves a query to a region identifier set.
func (t *Tree) Find(q Query) (map[uint32]bool, error) {
	if q.Attribute != ByAcronym && q.Attribute != ByName {
		return nil, mtypedensities.Validationf("unknown region attribute %q", q.Attribute)
	}
	var match func(Node) bool
	if strings.HasPrefix(q.Pattern, "@") {
		re, err := regexp.Compile(q.Pattern[1:])
		if err != nil {
			return nil, mtypedensities.Validationf("bad region pattern %q: %v", q.Pattern, err)
		}
		match = func(n Node) bool { return re.MatchString(attrOf(n, q.Attribute)) }
	} else {
		match = func(n Node) bool { return attrOf(n, q.Attribute) == q.Pattern }
	}

	out := make(map[uint32]bool)
	for id, n := range t.nodes {
		if !match(n) {
			continue
		}
		if q.WithDescendants {
			for d := range t.Descendants(id) {
				out[d] = true
			}
		} else {
			out[id] = true
		}
	}
	return out, nil
}

// LayerSets resolves every layer of the catalog to its identifier set,
// intersected with the catalog region when one is given. Layers resolve in
// catalog order.
func (t *Tree) LayerSets(cat Catalog) ([]LayerSet, error) {
	var region map[uint32]bool
	if cat.Region != nil {
		var err error
		region, err = t.Find(*cat.Region)
		if err != nil {
			return nil, err
		}
	}

	out := make([]LayerSet, 0, len(cat.Layers))
	for _, lq := range cat.Layers {
		ids, err := t.Find(lq.Query)
		if err != nil {
			return nil, err
		}
		if region != nil {
			for id := range ids {
				if !region[id] {
					delete(ids, id)
				}
			}
		}
		out = append(out, LayerSet{Name: lq.Name, IDs: ids})
	}
	return out, nil
}

// LayerSet is a resolved layer: its name and region identifier set.
type LayerSet struct {
	Name string
	IDs  map[uint32]bool
}

// SortedIDs returns the identifiers of a set in increasing order.
func SortedIDs(ids map[uint32]bool) []uint32 {
	out := make([]uint32, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func attrOf(n Node, a Attribute) string {
	if a == ByName {
		return n.Name
	}
	return n.Acronym
}
