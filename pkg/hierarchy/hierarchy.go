// Package hierarchy models the brain region ontology as an immutable tree of
// region nodes. A single Tree is built once per invocation and shared by
// reference across every component that classifies voxels.
package hierarchy

import (
	"mtypedensities"
)

// Node is one region of the ontology.
type Node struct {
	// ID is the region identifier used by annotation volumes.
	ID uint32

	// ParentID is the identifier of the enclosing region, zero for a root.
	ParentID uint32

	// Acronym is the short region label, e.g. "SSp-bfd2".
	Acronym string

	// Name is the full region name, e.g. "Primary somatosensory area,
	// barrel field, layer 2".
	Name string
}

// Tree is the read-only region hierarchy.
type Tree struct {
	nodes    map[uint32]Node
	children map[uint32][]uint32
	roots    []uint32
}

// NewTree builds a Tree from a flat node list. Duplicate identifiers and
// parent cycles are rejected.
func NewTree(nodes []Node) (*Tree, error) {
	t := &Tree{
		nodes:    make(map[uint32]Node, len(nodes)),
		children: make(map[uint32][]uint32),
	}
	for _, n := range nodes {
		if n.ID == 0 {
			return nil, mtypedensities.Validationf("region %q has the reserved identifier 0", n.Acronym)
		}
		if _, dup := t.nodes[n.ID]; dup {
			return nil, mtypedensities.Validationf("duplicate region identifier %d in hierarchy", n.ID)
		}
		t.nodes[n.ID] = n
	}
	for _, n := range nodes {
		if n.ParentID == 0 {
			t.roots = append(t.roots, n.ID)
			continue
		}
		if _, ok := t.nodes[n.ParentID]; !ok {
			return nil, mtypedensities.Validationf(
				"region %d references unknown parent %d", n.ID, n.ParentID)
		}
		t.children[n.ParentID] = append(t.children[n.ParentID], n.ID)
	}
	// A parent chain longer than the node count means a cycle.
	for _, n := range nodes {
		steps := 0
		for id := n.ID; id != 0; {
			steps++
			if steps > len(nodes) {
				return nil, mtypedensities.Validationf("cycle in hierarchy at region %d", n.ID)
			}
			id = t.nodes[id].ParentID
		}
	}
	return t, nil
}

// Node returns the node for an identifier.
func (t *Tree) Node(id uint32) (Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Parent returns the parent node of an identifier, if any.
func (t *Tree) Parent(id uint32) (Node, bool) {
	n, ok := t.nodes[id]
	if !ok || n.ParentID == 0 {
		return Node{}, false
	}
	return t.nodes[n.ParentID], true
}

// Len returns the number of regions.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Descendants returns the identifier set of a region and all regions below
// it. An unknown identifier yields an empty set.
func (t *Tree) Descendants(id uint32) map[uint32]bool {
	out := make(map[uint32]bool)
	if _, ok := t.nodes[id]; !ok {
		return out
	}
	stack := []uint32{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if out[cur] {
			continue
		}
		out[cur] = true
		stack = append(stack, t.children[cur]...)
	}
	return out
}

// Ascend walks from a region towards the root, calling visit for the region
// itself and then each ancestor in order. Walking stops when visit returns
// true or the root is passed; the second return reports whether visit
// accepted a region.
func (t *Tree) Ascend(id uint32, visit func(Node) bool) (Node, bool) {
	for {
		n, ok := t.nodes[id]
		if !ok {
			return Node{}, false
		}
		if visit(n) {
			return n, true
		}
		if n.ParentID == 0 {
			return Node{}, false
		}
		id = n.ParentID
	}
}
