package schema

import "fmt"

// Registry is the process-wide collection of entity types. It is append-only
// configuration: populated once at startup, read without locks afterwards.
type Registry struct {
	types map[string]*Type
	order []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Type)}
}

// Register adds a type. Registering the same name twice is a programmer
// mistake and fails.
func (r *Registry) Register(t *Type) error {
	if _, ok := r.types[t.Name]; ok {
		return fmt.Errorf("schema: type %q registered twice", t.Name)
	}
	r.types[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// MustRegister is like Register but panics on error. Intended for
// startup-time declarations.
func (r *Registry) MustRegister(ts ...*Type) *Registry {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Type returns a registered type by name.
func (r *Registry) Type(name string) (*Type, error) {
	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("schema: type %q is not registered", name)
	}
	return t, nil
}

// Types returns all registered types in registration order.
func (r *Registry) Types() []*Type {
	out := make([]*Type, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.types[name])
	}
	return out
}
