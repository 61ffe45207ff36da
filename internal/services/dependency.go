package services

import (
	"errors"

	"gorm.io/gorm"

	"github.com/vigilo/vigilo/internal/database"
)

// ErrDependencyCycle is returned when adding an edge would close a loop
var ErrDependencyCycle = errors.New("dependency would create a cycle")

// DependencyGraph answers reachability questions over the directed
// service-dependency edge set. Edges point dependent -> dependency; the
// stored graph never contains a cycle because AddDependency checks first.
type DependencyGraph struct {
	db *gorm.DB
}

// NewDependencyGraph creates a dependency graph service
func NewDependencyGraph(db *gorm.DB) *DependencyGraph {
	return &DependencyGraph{db: db}
}

// WouldCreateCycle reports whether adding (dependent -> dependency) would
// close a loop: true when the two are the same service or when the
// dependent is already reachable from the dependency.
func (g *DependencyGraph) WouldCreateCycle(dependentID, dependencyID uint) (bool, error) {
	if dependentID == dependencyID {
		return true, nil
	}
	edges, err := database.ListDependencyEdges(g.db)
	if err != nil {
		return false, err
	}
	reachable := traverse(edges, dependencyID, forward)
	return reachable[dependentID], nil
}

// AddDependency persists a new edge after rejecting cycles
func (g *DependencyGraph) AddDependency(dependentID, dependencyID uint) error {
	cycle, err := g.WouldCreateCycle(dependentID, dependencyID)
	if err != nil {
		return err
	}
	if cycle {
		return ErrDependencyCycle
	}
	return database.CreateDependencyEdge(g.db, &database.ServiceDependency{
		DependentServiceID:  dependentID,
		DependencyServiceID: dependencyID,
	})
}

// RemoveDependency deletes an edge
func (g *DependencyGraph) RemoveDependency(dependentID, dependencyID uint) error {
	return database.DeleteDependencyEdge(g.db, dependentID, dependencyID)
}

// TransitiveDependencies returns every service the given service depends
// on, directly or transitively.
func (g *DependencyGraph) TransitiveDependencies(serviceID uint) ([]uint, error) {
	return g.closure(serviceID, forward)
}

// TransitiveDependents returns every service that depends on the given
// service, directly or transitively.
func (g *DependencyGraph) TransitiveDependents(serviceID uint) ([]uint, error) {
	return g.closure(serviceID, backward)
}

type direction int

const (
	forward  direction = iota // follow dependent -> dependency
	backward                  // follow dependency -> dependent
)

func (g *DependencyGraph) closure(serviceID uint, dir direction) ([]uint, error) {
	edges, err := database.ListDependencyEdges(g.db)
	if err != nil {
		return nil, err
	}
	reachable := traverse(edges, serviceID, dir)
	out := make([]uint, 0, len(reachable))
	for id := range reachable {
		if id != serviceID {
			out = append(out, id)
		}
	}
	return out, nil
}

// traverse runs a breadth-first walk over the flat edge list from start,
// visiting each node once, and returns the set of reached nodes
// (excluding start unless it is reachable via a longer path).
func traverse(edges []database.ServiceDependency, start uint, dir direction) map[uint]bool {
	visited := map[uint]bool{start: true}
	reached := make(map[uint]bool)
	queue := []uint{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range edges {
			var next uint
			switch dir {
			case forward:
				if edge.DependentServiceID != current {
					continue
				}
				next = edge.DependencyServiceID
			case backward:
				if edge.DependencyServiceID != current {
					continue
				}
				next = edge.DependentServiceID
			}
			reached[next] = true
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return reached
}
