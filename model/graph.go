package model

import "sort"

// Arena is the index-based dependency graph representation: an ordered
// component vector plus an edge list of index pairs. All traversal works
// on indices with a visited bitset, so cyclic graphs cost nothing extra
// and equality reduces to comparing sorted index pairs.
type Arena struct {
	Ids      []CanonicalId
	Outgoing [][]int
	Incoming [][]int
	EdgePairs []IndexEdge
}

type IndexEdge struct {
	From  int
	To    int
	Scope Scope
}

// NewArena builds the arena over a validated SBOM. Edges referencing
// unknown components must have been rejected by the parser already.
func NewArena(sbom *NormalizedSbom) *Arena {
	arena := &Arena{
		Ids:      make([]CanonicalId, len(sbom.Components)),
		Outgoing: make([][]int, len(sbom.Components)),
		Incoming: make([][]int, len(sbom.Components)),
	}
	for at, component := range sbom.Components {
		arena.Ids[at] = component.Id
	}
	for _, edge := range sbom.Edges {
		from, okFrom := sbom.IndexOf(edge.From)
		to, okTo := sbom.IndexOf(edge.To)
		if !okFrom || !okTo {
			continue
		}
		arena.Outgoing[from] = append(arena.Outgoing[from], to)
		arena.Incoming[to] = append(arena.Incoming[to], from)
		arena.EdgePairs = append(arena.EdgePairs, IndexEdge{From: from, To: to, Scope: edge.Scope})
	}
	for at := range arena.Outgoing {
		sort.Ints(arena.Outgoing[at])
		sort.Ints(arena.Incoming[at])
	}
	return arena
}

// Roots are components with no incoming edges; when every component has
// an inbound edge (fully cyclic graph), the first component is the root.
func (it *Arena) Roots() []int {
	roots := make([]int, 0)
	for at := range it.Ids {
		if len(it.Incoming[at]) == 0 {
			roots = append(roots, at)
		}
	}
	if len(roots) == 0 && len(it.Ids) > 0 {
		roots = append(roots, 0)
	}
	return roots
}

// Reachable marks every component reachable from the given start set.
// Iterative DFS with an explicit stack; safe on cycles and deep chains.
func (it *Arena) Reachable(from []int) []bool {
	visited := make([]bool, len(it.Ids))
	stack := append([]int{}, from...)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current < 0 || current >= len(visited) || visited[current] {
			continue
		}
		visited[current] = true
		for _, next := range it.Outgoing[current] {
			if !visited[next] {
				stack = append(stack, next)
			}
		}
	}
	return visited
}

// StronglyConnected returns the strongly-connected components using
// Tarjan's algorithm in iterative form. Components come out in reverse
// topological order; each member list is sorted.
func (it *Arena) StronglyConnected() [][]int {
	count := len(it.Ids)
	indexOf := make([]int, count)
	lowlink := make([]int, count)
	onStack := make([]bool, count)
	for at := range indexOf {
		indexOf[at] = -1
	}

	result := make([][]int, 0)
	tarjanStack := make([]int, 0, count)
	next := 0

	type frame struct {
		node  int
		child int
	}

	for start := 0; start < count; start++ {
		if indexOf[start] != -1 {
			continue
		}
		work := []frame{{node: start}}
		for len(work) > 0 {
			top := &work[len(work)-1]
			node := top.node
			if top.child == 0 {
				indexOf[node] = next
				lowlink[node] = next
				next += 1
				tarjanStack = append(tarjanStack, node)
				onStack[node] = true
			}
			advanced := false
			for top.child < len(it.Outgoing[node]) {
				successor := it.Outgoing[node][top.child]
				top.child += 1
				if indexOf[successor] == -1 {
					work = append(work, frame{node: successor})
					advanced = true
					break
				}
				if onStack[successor] && indexOf[successor] < lowlink[node] {
					lowlink[node] = indexOf[successor]
				}
			}
			if advanced {
				continue
			}
			if lowlink[node] == indexOf[node] {
				members := make([]int, 0, 1)
				for {
					popped := tarjanStack[len(tarjanStack)-1]
					tarjanStack = tarjanStack[:len(tarjanStack)-1]
					onStack[popped] = false
					members = append(members, popped)
					if popped == node {
						break
					}
				}
				sort.Ints(members)
				result = append(result, members)
			}
			work = work[:len(work)-1]
			if len(work) > 0 {
				parent := work[len(work)-1].node
				if lowlink[node] < lowlink[parent] {
					lowlink[parent] = lowlink[node]
				}
			}
		}
	}
	return result
}

// CyclicGroups filters StronglyConnected down to real cycles: groups of
// two or more, or a single node with a self edge.
func (it *Arena) CyclicGroups() [][]int {
	groups := make([][]int, 0)
	for _, members := range it.StronglyConnected() {
		if len(members) > 1 {
			groups = append(groups, members)
			continue
		}
		node := members[0]
		for _, successor := range it.Outgoing[node] {
			if successor == node {
				groups = append(groups, members)
				break
			}
		}
	}
	return groups
}
