package lineage

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type Node struct {
	Id         uuid.UUID  `json:"id"`
	Title      string     `json:"title"`
	ParentId   *uuid.UUID `json:"parentId"`
	RootId     uuid.UUID  `json:"rootId"`
	AuthorId   uuid.UUID  `json:"authorId"`
	AuthorName string     `json:"authorName"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type Lineage struct {
	RootId uuid.UUID `json:"rootId"`
	Nodes  []Node    `json:"nodes"`
}

type Tree struct {
	Node     Node    `json:"node"`
	Depth    int     `json:"depth"`
	Children []*Tree `json:"children"`
}

// Build assembles the derivation tree of a lineage. Children are ordered by
// creation time. Nodes whose parent is not part of the lineage hang off the
// root so that they stay reachable. Returns nil if the root is not among the nodes.
func (l Lineage) Build() *Tree {
	byId := make(map[uuid.UUID]Node, len(l.Nodes))
	for _, node := range l.Nodes {
		byId[node.Id] = node
	}

	root, ok := byId[l.RootId]
	if !ok {
		return nil
	}

	children := make(map[uuid.UUID][]Node)
	for _, node := range l.Nodes {
		if node.Id == l.RootId {
			continue
		}
		parent := l.RootId
		if node.ParentId != nil {
			if _, ok := byId[*node.ParentId]; ok {
				parent = *node.ParentId
			}
		}
		children[parent] = append(children[parent], node)
	}

	for _, list := range children {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].CreatedAt.Equal(list[j].CreatedAt) {
				return list[i].Id.String() < list[j].Id.String()
			}
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		})
	}

	visited := make(map[uuid.UUID]bool, len(l.Nodes))

	var build func(node Node, depth int) *Tree
	build = func(node Node, depth int) *Tree {
		visited[node.Id] = true
		tree := &Tree{Node: node, Depth: depth, Children: []*Tree{}}
		for _, child := range children[node.Id] {
			if visited[child.Id] {
				continue
			}
			tree.Children = append(tree.Children, build(child, depth+1))
		}
		return tree
	}

	return build(root, 0)
}

// Walk visits the tree depth first, parents before children.
func (t *Tree) Walk(visit func(*Tree)) {
	if t == nil {
		return
	}
	visit(t)
	for _, child := range t.Children {
		child.Walk(visit)
	}
}

// Flatten lists the tree in depth first order.
func (t *Tree) Flatten() []*Tree {
	out := make([]*Tree, 0)
	t.Walk(func(node *Tree) {
		out = append(out, node)
	})
	return out
}

func (t *Tree) Size() int {
	return len(t.Flatten())
}
