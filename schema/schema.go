// Package schema holds the entity-type metadata the rest of loam runs on:
// table and key naming, fill/guard rules, relationship descriptors and
// global scopes.
//
// Types are registered once at startup and are read-only afterwards, so
// query execution reads them without locking.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/loamdev/loam"
)

// Kind is the closed set of relationship kinds.
type Kind uint8

const (
	// HasOne relates a parent to exactly one child row holding the parent's key.
	HasOne Kind = iota
	// HasMany relates a parent to any number of child rows holding the parent's key.
	HasMany
	// OwnedBy is the inverse side: the parent row holds the related row's key.
	OwnedBy
	// ManyToMany relates two types through a pivot table.
	ManyToMany
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case HasOne:
		return "has_one"
	case HasMany:
		return "has_many"
	case OwnedBy:
		return "owned_by"
	case ManyToMany:
		return "many_to_many"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Singular reports whether the kind resolves to a single record.
func (k Kind) Singular() bool {
	return k == HasOne || k == OwnedBy
}

// Pivot describes the intermediate table of a ManyToMany relationship.
type Pivot struct {
	Table         string
	ParentColumn  string
	RelatedColumn string
}

// Rel is one relationship descriptor. Exactly one descriptor exists per
// relation name per entity type; it is read-only after declaration.
type Rel struct {
	Name    string
	Kind    Kind
	Owner   string // declaring entity type
	Related string // related entity type

	// ForeignKey is the correlating column. For HasOne/HasMany it lives on
	// the related table and references the parent's LocalKey; for OwnedBy it
	// lives on the parent and references the related type's primary key.
	ForeignKey string
	// LocalKey is the parent-side key column (the primary key by default).
	LocalKey string
	// Pivot is set for ManyToMany only.
	Pivot *Pivot
}

// RelOption configures a relationship declaration.
type RelOption func(*Rel)

// ForeignKey overrides the derived correlating column.
func ForeignKey(column string) RelOption {
	return func(r *Rel) {
		r.ForeignKey = column
	}
}

// LocalKey overrides the parent-side key column.
func LocalKey(column string) RelOption {
	return func(r *Rel) {
		r.LocalKey = column
	}
}

// Through overrides the derived pivot table and columns of a ManyToMany
// relationship.
func Through(table, parentColumn, relatedColumn string) RelOption {
	return func(r *Rel) {
		r.Pivot = &Pivot{Table: table, ParentColumn: parentColumn, RelatedColumn: relatedColumn}
	}
}

// Type is the metadata for one entity type.
type Type struct {
	Name             string
	Table            string
	PrimaryKey       string
	FillableColumns  []string
	GuardedColumns   []string
	SoftDeleteColumn string

	rels     map[string]*Rel
	relOrder []string
	scopes   map[string]Scope
}

// TypeOption configures a new Type.
type TypeOption func(*Type)

// Table overrides the derived table name.
func Table(name string) TypeOption {
	return func(t *Type) {
		t.Table = name
	}
}

// PrimaryKey overrides the primary key column (default "id").
func PrimaryKey(column string) TypeOption {
	return func(t *Type) {
		t.PrimaryKey = column
	}
}

// Fillable sets the mass-assignment allow-list.
func Fillable(columns ...string) TypeOption {
	return func(t *Type) {
		t.FillableColumns = columns
	}
}

// Guarded sets the columns rejected by attribute writes.
func Guarded(columns ...string) TypeOption {
	return func(t *Type) {
		t.GuardedColumns = columns
	}
}

// SoftDelete declares the soft-delete marker column and registers the
// trashed-exclusion scope under ScopeSoftDelete.
func SoftDelete(column string) TypeOption {
	return func(t *Type) {
		t.SoftDeleteColumn = column
		t.AddScope(ScopeSoftDelete, softDeleteScope{column: column})
	}
}

// NewType declares an entity type. The table name defaults to the
// pluralized snake-case form of the type name (User → users).
func NewType(name string, opts ...TypeOption) *Type {
	t := &Type{
		Name:       name,
		Table:      inflect.Pluralize(inflect.Underscore(name)),
		PrimaryKey: "id",
		rels:       make(map[string]*Rel),
		scopes:     make(map[string]Scope),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// HasOne declares a one-to-one relationship: one related row holds this
// type's key. The foreign key defaults to <type>_id on the related table.
func (t *Type) HasOne(name, related string, opts ...RelOption) *Type {
	return t.addRel(&Rel{
		Name:       name,
		Kind:       HasOne,
		Related:    related,
		ForeignKey: inflect.Underscore(t.Name) + "_id",
		LocalKey:   t.PrimaryKey,
	}, opts)
}

// HasMany declares a one-to-many relationship: related rows hold this
// type's key. The foreign key defaults to <type>_id on the related table.
func (t *Type) HasMany(name, related string, opts ...RelOption) *Type {
	return t.addRel(&Rel{
		Name:       name,
		Kind:       HasMany,
		Related:    related,
		ForeignKey: inflect.Underscore(t.Name) + "_id",
		LocalKey:   t.PrimaryKey,
	}, opts)
}

// OwnedBy declares the inverse one-to-many relationship: this type holds
// the related type's key. The foreign key defaults to <related>_id on this
// type's table.
func (t *Type) OwnedBy(name, related string, opts ...RelOption) *Type {
	return t.addRel(&Rel{
		Name:       name,
		Kind:       OwnedBy,
		Related:    related,
		ForeignKey: inflect.Underscore(related) + "_id",
		LocalKey:   t.PrimaryKey,
	}, opts)
}

// ManyToMany declares a relationship through a pivot table. The pivot table
// name defaults to the two snake-case type names in alphabetical order
// joined by an underscore, and the pivot columns to <type>_id.
func (t *Type) ManyToMany(name, related string, opts ...RelOption) *Type {
	parent := inflect.Underscore(t.Name)
	rel := inflect.Underscore(related)
	names := []string{parent, rel}
	sort.Strings(names)
	return t.addRel(&Rel{
		Name:     name,
		Kind:     ManyToMany,
		Related:  related,
		LocalKey: t.PrimaryKey,
		Pivot: &Pivot{
			Table:         strings.Join(names, "_"),
			ParentColumn:  parent + "_id",
			RelatedColumn: rel + "_id",
		},
	}, opts)
}

func (t *Type) addRel(r *Rel, opts []RelOption) *Type {
	r.Owner = t.Name
	for _, opt := range opts {
		opt(r)
	}
	if _, ok := t.rels[r.Name]; ok {
		panic(fmt.Sprintf("schema: relation %q declared twice on %s", r.Name, t.Name))
	}
	t.rels[r.Name] = r
	t.relOrder = append(t.relOrder, r.Name)
	return t
}

// Relation returns the descriptor for a relation name, or a RelationError
// when the name was never declared.
func (t *Type) Relation(name string) (*Rel, error) {
	r, ok := t.rels[name]
	if !ok {
		return nil, loam.NewRelationError(t.Name, name)
	}
	return r, nil
}

// Relations returns all declared relation names in declaration order.
func (t *Type) Relations() []string {
	out := make([]string, len(t.relOrder))
	copy(out, t.relOrder)
	return out
}

// AddScope registers a named global scope applied to every query for this
// type unless the query instance disables it.
func (t *Type) AddScope(name string, s Scope) *Type {
	t.scopes[name] = s
	return t
}

// Scopes returns the registered scopes keyed by name.
func (t *Type) Scopes() map[string]Scope {
	out := make(map[string]Scope, len(t.scopes))
	for k, v := range t.scopes {
		out[k] = v
	}
	return out
}
