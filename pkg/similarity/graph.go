package similarity

import (
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// EventVector pairs an event id with its embedding.
type EventVector struct {
	ID     string
	Vector []float32
}

// Components partitions events into connected components of the undirected
// graph whose edges connect pairs with cosine similarity >= tau (inclusive).
//
// The result is canonical regardless of input order and of how many workers
// computed the pairwise rows: events are sorted by id before comparison,
// component members come out sorted by id, and components are ordered by
// their smallest member id. Complexity is O(n^2) pairwise comparisons;
// callers bound n via their batch limit.
func Components(events []EventVector, tau float64) [][]string {
	n := len(events)
	if n == 0 {
		return nil
	}

	sorted := make([]EventVector, n)
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	// Pairwise rows are independent, so they can be computed in parallel.
	// Each worker owns one row slice; the resulting edge set does not depend
	// on scheduling.
	adj := make([][]int, n)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			var row []int
			for j := i + 1; j < n; j++ {
				if CosineSimilarity(sorted[i].Vector, sorted[j].Vector) >= tau {
					row = append(row, j)
				}
			}
			adj[i] = row
			return nil
		})
	}
	// Workers never return errors; Wait only synchronizes.
	_ = g.Wait()

	uf := newUnionFind(n)
	for i := 0; i < n; i++ {
		for _, j := range adj[i] {
			uf.union(i, j)
		}
	}

	// Group indexes by root. Iterating in sorted-id order keeps members
	// sorted and components ordered by smallest member.
	byRoot := make(map[int][]string)
	var roots []int
	for i := 0; i < n; i++ {
		root := uf.find(i)
		if _, seen := byRoot[root]; !seen {
			roots = append(roots, root)
		}
		byRoot[root] = append(byRoot[root], sorted[i].ID)
	}

	out := make([][]string, 0, len(roots))
	for _, root := range roots {
		out = append(out, byRoot[root])
	}
	return out
}

// unionFind is a plain union-find with path compression and union by rank.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		rank:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}
