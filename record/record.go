// Package record provides the base record type and the ordered container
// that entities travel in between loading stages.
//
// A Record is an ordered column→value attribute map with a per-instance
// relation cache. It carries no query logic of its own: resolving relations
// is the job of the relation and loader packages, and persistence goes
// through the Persister interface.
package record

import (
	"context"
	"reflect"
	"sort"
	"time"

	"github.com/spf13/cast"

	"github.com/loamdev/loam"
)

// DefaultPrimaryKey is the primary key column assumed when a record's type
// does not declare one.
const DefaultPrimaryKey = "id"

// Record is one row-backed entity: an ordered attribute map plus a cache of
// resolved relations. Attribute insertion order is preserved; setting an
// existing column keeps its position and the most recent value wins.
type Record struct {
	typeName  string
	pk        string
	columns   []string
	attrs     map[string]any
	original  map[string]any
	relations map[string]any
	fillable  []string
	guarded   []string
}

// Option configures a new Record.
type Option func(*Record)

// WithPrimaryKey sets the primary key column used for identity checks.
func WithPrimaryKey(column string) Option {
	return func(r *Record) {
		r.pk = column
	}
}

// WithFillable sets the mass-assignment allow-list. When non-empty, Fill
// rejects keys absent from it.
func WithFillable(columns ...string) Option {
	return func(r *Record) {
		r.fillable = columns
	}
}

// WithGuarded sets the attributes rejected by Set and Fill.
func WithGuarded(columns ...string) Option {
	return func(r *Record) {
		r.guarded = columns
	}
}

// New returns an empty Record for the given entity type name. An empty type
// name denotes a raw, untyped row.
func New(typeName string, opts ...Option) *Record {
	r := &Record{
		typeName:  typeName,
		pk:        DefaultPrimaryKey,
		attrs:     make(map[string]any),
		relations: make(map[string]any),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TypeName returns the entity type name, or "" for raw rows.
func (r *Record) TypeName() string { return r.typeName }

// PrimaryKey returns the primary key column name.
func (r *Record) PrimaryKey() string { return r.pk }

// Set assigns an attribute, rejecting guarded columns.
func (r *Record) Set(column string, value any) error {
	for _, g := range r.guarded {
		if g == column {
			return loam.NewGuardError(column)
		}
	}
	r.put(column, value)
	return nil
}

// Fill mass-assigns attributes. When the fillable allow-list is non-empty,
// keys absent from it are rejected; guarded keys are always rejected. All
// keys are validated before any is assigned, so a rejection leaves the
// record untouched. Keys are applied in sorted order.
func (r *Record) Fill(values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(r.fillable) > 0 && !contains(r.fillable, k) {
			return loam.NewGuardError(k)
		}
		if contains(r.guarded, k) {
			return loam.NewGuardError(k)
		}
	}
	for _, k := range keys {
		r.put(k, values[k])
	}
	return nil
}

// put assigns an attribute without guard checks. Hydration uses it so that
// guarded columns can still be read back from the database.
func (r *Record) put(column string, value any) {
	if _, ok := r.attrs[column]; !ok {
		r.columns = append(r.columns, column)
	}
	r.attrs[column] = value
}

// Hydrate bulk-assigns raw row values, bypassing guard rules, and snapshots
// them as the record's original state.
func (r *Record) Hydrate(columns []string, values []any) {
	for i, c := range columns {
		r.put(c, values[i])
	}
	r.SyncOriginal()
}

// Get returns an attribute value and whether the column is set.
func (r *Record) Get(column string) (any, bool) {
	v, ok := r.attrs[column]
	return v, ok
}

// Columns returns the attribute columns in insertion order.
func (r *Record) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Attributes returns a copy of the attribute map.
func (r *Record) Attributes() map[string]any {
	out := make(map[string]any, len(r.attrs))
	for k, v := range r.attrs {
		out[k] = v
	}
	return out
}

// String returns the attribute as a string, coercing driver types.
func (r *Record) String(column string) string {
	v, _ := r.attrs[column]
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return cast.ToString(v)
}

// Int returns the attribute as an int, coercing driver types.
func (r *Record) Int(column string) int {
	return cast.ToInt(r.attrs[column])
}

// Int64 returns the attribute as an int64, coercing driver types.
func (r *Record) Int64(column string) int64 {
	return cast.ToInt64(r.attrs[column])
}

// Float64 returns the attribute as a float64, coercing driver types.
func (r *Record) Float64(column string) float64 {
	return cast.ToFloat64(r.attrs[column])
}

// Bool returns the attribute as a bool, coercing driver types.
func (r *Record) Bool(column string) bool {
	return cast.ToBool(r.attrs[column])
}

// Time returns the attribute as a time.Time, coercing driver types.
func (r *Record) Time(column string) time.Time {
	return cast.ToTime(r.attrs[column])
}

// Identity returns the primary key value. ok is false when the record has no
// non-nil primary key attribute, i.e. the record is new.
func (r *Record) Identity() (any, bool) {
	v, ok := r.attrs[r.pk]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// IsNew reports whether the record has not been persisted yet.
func (r *Record) IsNew() bool {
	_, ok := r.Identity()
	return !ok
}

// Relation returns the cached value for a relation name. ok distinguishes an
// unset relation from one resolved to nil (singular relation, no match).
func (r *Record) Relation(name string) (any, bool) {
	v, ok := r.relations[name]
	return v, ok
}

// MustRelation returns the cached relation value or a NotLoadedError.
func (r *Record) MustRelation(name string) (any, error) {
	v, ok := r.relations[name]
	if !ok {
		return nil, loam.NewNotLoadedError(name)
	}
	return v, nil
}

// SetRelation caches a resolved relation value, overwriting any prior value
// for that name. A nil value is a defined state (singular relation, no
// match), distinct from the relation being unset.
func (r *Record) SetRelation(name string, value any) {
	r.relations[name] = value
}

// UnsetRelation invalidates a cached relation.
func (r *Record) UnsetRelation(name string) {
	delete(r.relations, name)
}

// Relations returns the names of all cached relations.
func (r *Record) Relations() []string {
	out := make([]string, 0, len(r.relations))
	for name := range r.relations {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Value reads a name through the two-phase accessor: attributes first, then
// the relation cache. Reading a relation that was never loaded returns a
// NotLoadedError; lazy loading is the loader package's job.
func (r *Record) Value(name string) (any, error) {
	if v, ok := r.attrs[name]; ok {
		return v, nil
	}
	if v, ok := r.relations[name]; ok {
		return v, nil
	}
	return nil, loam.NewNotLoadedError(name)
}

// SyncOriginal snapshots the current attributes as the record's clean state.
// Persisters call it after a successful save so repeated saves become no-ops.
func (r *Record) SyncOriginal() {
	r.original = make(map[string]any, len(r.attrs))
	for k, v := range r.attrs {
		r.original[k] = v
	}
}

// Dirty returns the attributes changed since the last SyncOriginal, in
// column insertion order. Values are compared deeply so uncomparable
// attribute types ([]byte, maps) never panic.
func (r *Record) Dirty() map[string]any {
	out := make(map[string]any)
	for _, c := range r.columns {
		v := r.attrs[c]
		if ov, ok := r.original[c]; !ok || !reflect.DeepEqual(ov, v) {
			out[c] = v
		}
	}
	return out
}

// IsDirty reports whether any attribute changed since the last SyncOriginal.
func (r *Record) IsDirty() bool {
	return len(r.Dirty()) > 0
}

// Persister is the persistence collaborator consumed by Save and Delete.
// Implementations must be idempotent for repeated saves of an unmodified
// record and must mutate the given record in place (no copies) so relation
// caches survive persistence.
type Persister interface {
	Save(ctx context.Context, r *Record) error
	Delete(ctx context.Context, r *Record) error
}

// Save persists the record through p, inserting or updating based on
// identity presence.
func (r *Record) Save(ctx context.Context, p Persister) error {
	return p.Save(ctx, r)
}

// Delete removes the record's row through p.
func (r *Record) Delete(ctx context.Context, p Persister) error {
	return p.Delete(ctx, r)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
