// Package loader decodes the on-disk documents of the atlas pipeline:
// region hierarchies, layer metadata, profile tables, composition and
// taxonomy files and probability maps. Decoding stops at syntax; semantic
// validation belongs to the core packages.
package loader

import (
	"encoding/json"
	"fmt"
	"os"

	"mtypedensities/pkg/hierarchy"
)

type hierarchyNode struct {
	ID       uint32          `json:"id"`
	Acronym  string          `json:"acronym"`
	Name     string          `json:"name"`
	Children []hierarchyNode `json:"children"`
}

type hierarchyDocument struct {
	Msg []hierarchyNode `json:"msg"`
}

// LoadHierarchy reads an AIBS 1.json region ontology. Both a bare root
// node and the {"msg": [root]} wrapper are accepted.
func LoadHierarchy(path string) (*hierarchy.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading hierarchy file: %w", err)
	}

	var doc hierarchyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error parsing hierarchy file: %w", err)
	}
	roots := doc.Msg
	if len(roots) == 0 {
		var root hierarchyNode
		if err := json.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("error parsing hierarchy file: %w", err)
		}
		roots = []hierarchyNode{root}
	}

	var nodes []hierarchy.Node
	var flatten func(n hierarchyNode, parent uint32)
	flatten = func(n hierarchyNode, parent uint32) {
		nodes = append(nodes, hierarchy.Node{
			ID:       n.ID,
			ParentID: parent,
			Acronym:  n.Acronym,
			Name:     n.Name,
		})
		for _, c := range n.Children {
			flatten(c, n.ID)
		}
	}
	for _, r := range roots {
		flatten(r, 0)
	}
	return hierarchy.NewTree(nodes)
}
