package metric

import (
	"slices"

	"github.com/sells-group/salestrack/internal/apperr"
	"github.com/sells-group/salestrack/internal/model"
)

// Graph is the operand graph of calculated metrics. An edge runs from an
// operand to the calculated metric that consumes it.
type Graph struct {
	operands   map[int64][2]int64
	dependents map[int64][]int64
}

// NewGraph builds a graph from metric definitions. Leaf metrics contribute no edges.
func NewGraph(metrics []model.Metric) *Graph {
	g := &Graph{
		operands:   make(map[int64][2]int64),
		dependents: make(map[int64][]int64),
	}
	for i := range metrics {
		g.Add(&metrics[i])
	}
	return g
}

// Add inserts or replaces the edges of m.
func (g *Graph) Add(m *model.Metric) {
	g.remove(m.ID)
	if IsLeaf(m) || m.Value1ID == nil || m.Value2ID == nil {
		return
	}
	ops := [2]int64{*m.Value1ID, *m.Value2ID}
	g.operands[m.ID] = ops
	for _, op := range ops {
		if !slices.Contains(g.dependents[op], m.ID) {
			g.dependents[op] = append(g.dependents[op], m.ID)
		}
	}
}

func (g *Graph) remove(id int64) {
	ops, ok := g.operands[id]
	if !ok {
		return
	}
	delete(g.operands, id)
	for _, op := range ops {
		g.dependents[op] = slices.DeleteFunc(g.dependents[op], func(d int64) bool { return d == id })
	}
}

// Dependents returns the calculated metrics that read any of ids directly, sorted.
func (g *Graph) Dependents(ids []int64) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, id := range ids {
		for _, d := range g.dependents[id] {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	slices.Sort(out)
	return out
}

// CycleFrom reports whether a path leads from id back to itself.
func (g *Graph) CycleFrom(id int64) bool {
	visited := make(map[int64]bool)
	stack := slices.Clone(g.dependents[id])
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == id {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		stack = append(stack, g.dependents[n]...)
	}
	return false
}

// HasCycle reports whether any calculated metric in the graph depends on itself.
func (g *Graph) HasCycle() bool {
	for id := range g.operands {
		if g.CycleFrom(id) {
			return true
		}
	}
	return false
}

// TopoOrder orders ids so every metric comes after any operand also in ids.
// Only edges inside ids are considered. Ties break by ascending id.
func (g *Graph) TopoOrder(ids []int64) ([]int64, error) {
	in := make(map[int64]bool, len(ids))
	for _, id := range ids {
		in[id] = true
	}

	indegree := make(map[int64]int, len(ids))
	for id := range in {
		indegree[id] = 0
	}
	for id := range in {
		ops, ok := g.operands[id]
		if !ok {
			continue
		}
		for _, op := range uniq(ops) {
			if in[op] {
				indegree[id]++
			}
		}
	}

	var ready []int64
	for id, n := range indegree {
		if n == 0 {
			ready = append(ready, id)
		}
	}
	slices.Sort(ready)

	order := make([]int64, 0, len(in))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		var next []int64
		for _, d := range g.dependents[n] {
			if !in[d] {
				continue
			}
			indegree[d]--
			if indegree[d] == 0 {
				next = append(next, d)
			}
		}
		ready = append(ready, next...)
		slices.Sort(ready)
	}

	if len(order) != len(in) {
		return nil, apperr.Computation(apperr.CodeDependencyCycle,
			"calculated metrics form a dependency cycle")
	}
	return order, nil
}

func uniq(ops [2]int64) []int64 {
	if ops[0] == ops[1] {
		return ops[:1]
	}
	return ops[:]
}
