// Package monitortypes implements the Monitor Type Registry (C6): a
// process-wide map from type string to descriptor, written only at
// startup and read-only once the scheduler begins (spec §5).
//
// Grounded on the teacher's internal/checks/manager.go (map[string]Checker
// registry with registerChecker/ExecuteCheck dispatch), generalized from a
// checker-only registry into a full descriptor registry carrying display
// metadata, a validation schema, and a checker factory, per spec §4.6.
package monitortypes

import (
	"fmt"
	"sort"
	"sync"

	"watcherd/internal/checkexec"
	"watcherd/internal/domain"
)

// FieldKind describes the UI input kind a field descriptor renders as.
type FieldKind string

const (
	FieldText     FieldKind = "text"
	FieldNumber   FieldKind = "number"
	FieldURL      FieldKind = "url"
	FieldSelect   FieldKind = "select"
	FieldBoolean  FieldKind = "boolean"
)

// FieldDescriptor documents one type-specific monitor field for UI form
// generation.
type FieldDescriptor struct {
	Name        string
	Label       string
	Kind        FieldKind
	Required    bool
	Options     []string // for FieldSelect
	Placeholder string
}

// ValidationIssue is one field-level validation failure.
type ValidationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult is returned by Validate.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Issues   []ValidationIssue `json:"issues,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// Descriptor is a registry entry describing one monitor type.
type Descriptor struct {
	Type        string
	DisplayName string
	Description string
	Version     string
	Fields      []FieldDescriptor
	// Validate applies the type's schema to a monitor's raw field map.
	Validate func(fields map[string]string) ValidationResult
	// CheckerFactory builds the Checker for monitors of this type.
	CheckerFactory func(cfg checkexec.Config) checkexec.Checker
}

// SafeView is the subset of a Descriptor exposed over monitorTypes.list
// (spec §4.11): no function pointers.
type SafeView struct {
	Type        string            `json:"type"`
	DisplayName string            `json:"displayName"`
	Description string            `json:"description"`
	Version     string            `json:"version"`
	Fields      []FieldDescriptor `json:"fields"`
}

// Registry is the process-wide monitor-type registry.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Descriptor
}

// New constructs an empty registry. Call Register for every canonical type
// before the scheduler starts; the registry is read-only thereafter.
func New() *Registry {
	return &Registry{types: make(map[string]Descriptor)}
}

// Register adds or replaces a descriptor.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[d.Type] = d
}

// Get returns the descriptor for type, or a NOT_FOUND domain error.
func (r *Registry) Get(typ string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[typ]
	if !ok {
		return Descriptor{}, domain.NewErrorf(domain.CodeNotFound, "monitor type %q not registered", typ)
	}
	return d, nil
}

// List returns a stable-ordered (by type name) safe-view snapshot.
func (r *Registry) List() []SafeView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	views := make([]SafeView, 0, len(r.types))
	for _, d := range r.types {
		views = append(views, SafeView{
			Type: d.Type, DisplayName: d.DisplayName, Description: d.Description,
			Version: d.Version, Fields: d.Fields,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Type < views[j].Type })
	return views
}

// Validate applies typ's schema to fields.
func (r *Registry) Validate(typ string, fields map[string]string) (ValidationResult, error) {
	d, err := r.Get(typ)
	if err != nil {
		return ValidationResult{}, err
	}
	if d.Validate == nil {
		return ValidationResult{Valid: true}, nil
	}
	return d.Validate(fields), nil
}

// BuildChecker resolves typ's checker factory for the given config.
func (r *Registry) BuildChecker(typ string, cfg checkexec.Config) (checkexec.Checker, error) {
	d, err := r.Get(typ)
	if err != nil {
		return nil, err
	}
	if d.CheckerFactory == nil {
		return nil, domain.NewErrorf(domain.CodeInternal, "monitor type %q has no checker factory", typ)
	}
	return d.CheckerFactory(cfg), nil
}

// MustHaveTypes fails closed if any of the required type names are absent,
// matching spec §4.6 "unknown types ... fail closed" for the migration
// graph, applied here to startup sanity-checking the enabled type list.
func (r *Registry) MustHaveTypes(types []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []string
	for _, t := range types {
		if _, ok := r.types[t]; !ok {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("monitor types not registered: %v", missing)
	}
	return nil
}
