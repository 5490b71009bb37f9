package loader

import (
	"encoding/json"
	"fmt"
	"os"

	"mtypedensities"
	"mtypedensities/pkg/hierarchy"
)

type metadataRegion struct {
	Name            string `json:"name"`
	Query           string `json:"query"`
	Attribute       string `json:"attribute"`
	WithDescendants bool   `json:"with_descendants"`
}

type metadataLayers struct {
	Names           []string `json:"names"`
	Queries         []string `json:"queries"`
	Attribute       string   `json:"attribute"`
	WithDescendants bool     `json:"with_descendants"`
}

type metadataDocument struct {
	Region *metadataRegion `json:"region"`
	Layers *metadataLayers `json:"layers"`
}

// LoadCatalog reads a metadata json file describing the region of interest
// and its layer queries.
func LoadCatalog(path string) (hierarchy.Catalog, error) {
	var cat hierarchy.Catalog

	data, err := os.ReadFile(path)
	if err != nil {
		return cat, fmt.Errorf("error reading metadata file: %w", err)
	}
	var doc metadataDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return cat, fmt.Errorf("error parsing metadata file: %w", err)
	}

	if doc.Region != nil {
		q := hierarchy.Query{
			Attribute:       hierarchy.Attribute(doc.Region.Attribute),
			Pattern:         doc.Region.Query,
			WithDescendants: doc.Region.WithDescendants,
		}
		cat.Region = &q
	}
	if doc.Layers == nil {
		return cat, mtypedensities.Validationf("metadata file has no layers section")
	}
	if len(doc.Layers.Names) != len(doc.Layers.Queries) {
		return cat, mtypedensities.Validationf(
			"metadata layers define %d names but %d queries",
			len(doc.Layers.Names), len(doc.Layers.Queries))
	}
	for i, name := range doc.Layers.Names {
		cat.Layers = append(cat.Layers, hierarchy.LayerQuery{
			Name: name,
			Query: hierarchy.Query{
				Attribute:       hierarchy.Attribute(doc.Layers.Attribute),
				Pattern:         doc.Layers.Queries[i],
				WithDescendants: doc.Layers.WithDescendants,
			},
		})
	}
	return cat, nil
}
