package monitortypes

import (
	"fmt"

	"watcherd/internal/domain"
)

// TransformFunc converts a monitor payload from one version to the next.
type TransformFunc func(data map[string]string) (map[string]string, error)

// migrationEdge is one (type, fromVersion, toVersion) rule in the
// migration graph.
type migrationEdge struct {
	toVersion string
	transform TransformFunc
	isBreaking bool
}

// MigrationRegistry composes versioned payload-transform rules into a
// directed graph per monitor type and finds/applies a path between two
// versions (spec §4.6).
type MigrationRegistry struct {
	// edges[type][fromVersion] -> edge
	edges map[string]map[string]migrationEdge
}

// NewMigrationRegistry constructs an empty migration registry.
func NewMigrationRegistry() *MigrationRegistry {
	return &MigrationRegistry{edges: make(map[string]map[string]migrationEdge)}
}

// AddRule registers one (type, fromVersion, toVersion, transform,
// isBreaking) edge.
func (m *MigrationRegistry) AddRule(typ, fromVersion, toVersion string, transform TransformFunc, isBreaking bool) {
	byFrom, ok := m.edges[typ]
	if !ok {
		byFrom = make(map[string]migrationEdge)
		m.edges[typ] = byFrom
	}
	byFrom[fromVersion] = migrationEdge{toVersion: toVersion, transform: transform, isBreaking: isBreaking}
}

// Migrate walks the graph from fromVersion to toVersion applying each
// edge's transform in order. Fails closed (NOT_FOUND) if typ is unknown or
// no path exists.
func (m *MigrationRegistry) Migrate(typ, fromVersion, toVersion string, data map[string]string) (map[string]string, error) {
	byFrom, ok := m.edges[typ]
	if !ok {
		return nil, domain.NewErrorf(domain.CodeNotFound, "no migration graph registered for type %q", typ)
	}

	current := fromVersion
	visited := map[string]bool{}
	for current != toVersion {
		if visited[current] {
			return nil, domain.NewErrorf(domain.CodeInternal, "migration cycle detected for type %q at version %q", typ, current)
		}
		visited[current] = true

		edge, ok := byFrom[current]
		if !ok {
			return nil, domain.NewErrorf(domain.CodeNotFound,
				"no migration path for type %q from %q to %q", typ, fromVersion, toVersion)
		}

		next, err := edge.transform(data)
		if err != nil {
			return nil, fmt.Errorf("migration %s %s->%s failed: %w", typ, current, edge.toVersion, err)
		}
		data = next
		current = edge.toVersion
	}
	return data, nil
}
