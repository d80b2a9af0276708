package analyzer

import (
	"sort"

	"github.com/yourbasic/graph"

	"github.com/amolpatilofficial/gdp-dashboard/pkg/models"
)

// dependencyGraph indexes tables and holds an edge from every referencing
// table to the table it references
type dependencyGraph struct {
	tables []string
	index  map[string]int
	g      *graph.Mutable
}

func newDependencyGraph(tables []string, fks []models.ForeignKey) *dependencyGraph {
	dg := &dependencyGraph{
		tables: tables,
		index:  make(map[string]int, len(tables)),
		g:      graph.New(len(tables)),
	}
	for i, table := range tables {
		dg.index[table] = i
	}

	for _, fk := range fks {
		src, ok := dg.index[fk.Table]
		if !ok {
			continue
		}
		dst, ok := dg.index[fk.ReferencedTable]
		if !ok {
			continue
		}
		dg.g.Add(src, dst)
	}
	return dg
}

func (dg *dependencyGraph) names(ids []int) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, dg.tables[id])
	}
	sort.Strings(names)
	return names
}

// BuildRelationships derives clusters, cycles and a dependency order from a
// table list and its foreign keys. Keys pointing outside the list are kept in
// ForeignKeys but ignored by the graph.
func BuildRelationships(tables []string, fks []models.ForeignKey) *models.Relationships {
	dg := newDependencyGraph(tables, fks)
	rel := &models.Relationships{
		Tables:      tables,
		ForeignKeys: fks,
	}

	for _, comp := range graph.Components(dg.g) {
		if len(comp) > 1 {
			rel.Clusters = append(rel.Clusters, dg.names(comp))
		}
	}
	sortGroups(rel.Clusters)

	strong := graph.StrongComponents(dg.g)
	componentOf := make([]int, len(tables))
	for ci, comp := range strong {
		for _, v := range comp {
			componentOf[v] = ci
		}
		if len(comp) > 1 || (len(comp) == 1 && dg.g.Edge(comp[0], comp[0])) {
			rel.Cycles = append(rel.Cycles, dg.names(comp))
		}
	}
	sortGroups(rel.Cycles)

	// Referenced tables come first. Edges inside a cycle are dropped so the
	// condensed graph always sorts.
	condensed := graph.New(len(tables))
	for v := range tables {
		dg.g.Visit(v, func(w int, _ int64) bool {
			if componentOf[v] != componentOf[w] {
				condensed.Add(w, v)
			}
			return false
		})
	}
	order, ok := graph.TopSort(condensed)
	if !ok {
		// unreachable for a condensed graph
		order = make([]int, len(tables))
		for i := range order {
			order[i] = i
		}
	}
	for _, v := range order {
		rel.Order = append(rel.Order, tables[v])
	}
	return rel
}

func sortGroups(groups [][]string) {
	sort.Slice(groups, func(i, j int) bool {
		return groups[i][0] < groups[j][0]
	})
}
