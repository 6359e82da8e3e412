// Package relation resolves declared relationships into related records.
// A Resolver serves one relationship descriptor and offers two surfaces:
// Single, for lazy access from one parent, and Batch, which fetches related
// rows for a whole parent set in a bounded number of queries.
package relation

import (
	"context"

	"github.com/spf13/cast"

	"github.com/loamdev/loam"
	"github.com/loamdev/loam/dialect"
	"github.com/loamdev/loam/query"
	"github.com/loamdev/loam/record"
	"github.com/loamdev/loam/schema"
)

// DefaultChunkSize bounds how many correlation keys a single whereIn
// predicate carries before the fetch splits into multiple queries.
const DefaultChunkSize = 500

// Option configures a Resolver.
type Option func(*Resolver)

// WithChunkSize overrides the whereIn key chunk size.
func WithChunkSize(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.chunk = n
		}
	}
}

// Resolver resolves one relationship descriptor against a driver.
type Resolver struct {
	rel   *schema.Rel
	reg   *schema.Registry
	drv   dialect.Driver
	chunk int
}

// New returns a Resolver for the given descriptor.
func New(rel *schema.Rel, reg *schema.Registry, drv dialect.Driver, opts ...Option) *Resolver {
	r := &Resolver{rel: rel, reg: reg, drv: drv, chunk: DefaultChunkSize}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rel returns the descriptor this resolver serves.
func (r *Resolver) Rel() *schema.Rel { return r.rel }

// Related returns the related entity type.
func (r *Resolver) Related() (*schema.Type, error) {
	return r.reg.Type(r.rel.Related)
}

// Query returns a fresh builder over the related entity's table. Callers
// constrain or project it before handing it to Single or Batch.
func (r *Resolver) Query() (*query.Builder, error) {
	typ, err := r.Related()
	if err != nil {
		return nil, err
	}
	return query.New(r.drv, typ), nil
}

// Singular reports whether the relation attaches one record per parent.
func (r *Resolver) Singular() bool { return r.rel.Kind.Singular() }

// Empty returns the value attached to a parent with no related rows: nil for
// singular kinds, an empty collection for plural ones.
func (r *Resolver) Empty() any {
	if r.Singular() {
		return (*record.Record)(nil)
	}
	return record.Records{}
}

// ParentKey returns the parent-side correlation value and whether it is set.
// For owned-by relations that is the parent's foreign key; for the other
// kinds the parent's local (usually primary) key.
func (r *Resolver) ParentKey(parent *record.Record) (any, bool) {
	var (
		v  any
		ok bool
	)
	switch r.rel.Kind {
	case schema.OwnedBy:
		v, ok = parent.Get(r.rel.ForeignKey)
	default:
		v, ok = parent.Get(r.rel.LocalKey)
	}
	return v, ok && v != nil
}

// Single resolves the relation for one parent. Singular kinds return a
// *record.Record (nil when nothing matches); plural kinds return
// record.Records. Pivot-backed relations require the parent to carry an
// identity.
func (r *Resolver) Single(ctx context.Context, parent *record.Record, base *query.Builder) (any, error) {
	if base == nil {
		var err error
		if base, err = r.Query(); err != nil {
			return nil, err
		}
	}
	switch r.rel.Kind {
	case schema.HasOne:
		key, ok := r.ParentKey(parent)
		if !ok {
			return (*record.Record)(nil), nil
		}
		return base.Where(r.rel.ForeignKey, "=", key).First(ctx)
	case schema.HasMany:
		key, ok := r.ParentKey(parent)
		if !ok {
			return record.Records{}, nil
		}
		return base.Where(r.rel.ForeignKey, "=", key).Get(ctx)
	case schema.OwnedBy:
		key, ok := r.ParentKey(parent)
		if !ok {
			return (*record.Record)(nil), nil
		}
		related, err := r.Related()
		if err != nil {
			return nil, err
		}
		return base.Where(related.PrimaryKey, "=", key).First(ctx)
	case schema.ManyToMany:
		key, ok := r.ParentKey(parent)
		if !ok {
			return nil, loam.NewMissingIdentityError(r.rel.Owner, "resolve "+r.rel.Name)
		}
		groups, err := r.batchManyToMany(ctx, []any{key}, base)
		if err != nil {
			return nil, err
		}
		if recs, ok := groups[keyOf(key)]; ok {
			return recs, nil
		}
		return record.Records{}, nil
	}
	return nil, loam.NewRelationError(r.rel.Owner, r.rel.Name)
}

// Batch resolves the relation for a parent set and returns related values
// grouped by normalized parent correlation key. Parents whose key is absent
// simply have no entry; callers attach Empty for those. Result ordering
// within a group follows database return order.
func (r *Resolver) Batch(ctx context.Context, parents record.Records, base *query.Builder) (map[string]any, error) {
	if base == nil {
		var err error
		if base, err = r.Query(); err != nil {
			return nil, err
		}
	}
	keys := r.parentKeys(parents)
	switch r.rel.Kind {
	case schema.HasOne:
		rows, err := r.fetchByKeys(ctx, base, r.rel.ForeignKey, keys)
		if err != nil {
			return nil, err
		}
		return groupSingular(rows, r.rel.ForeignKey), nil
	case schema.HasMany:
		rows, err := r.fetchByKeys(ctx, base, r.rel.ForeignKey, keys)
		if err != nil {
			return nil, err
		}
		return groupPlural(rows, r.rel.ForeignKey), nil
	case schema.OwnedBy:
		related, err := r.Related()
		if err != nil {
			return nil, err
		}
		rows, err := r.fetchByKeys(ctx, base, related.PrimaryKey, keys)
		if err != nil {
			return nil, err
		}
		return groupSingular(rows, related.PrimaryKey), nil
	case schema.ManyToMany:
		groups, err := r.batchManyToMany(ctx, keys, base)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(groups))
		for k, v := range groups {
			out[k] = v
		}
		return out, nil
	}
	return nil, loam.NewRelationError(r.rel.Owner, r.rel.Name)
}

// Assign attaches batch results to every parent under the relation name,
// filling the empty state for parents without a match, and returns the
// distinct related records that were attached.
func (r *Resolver) Assign(parents record.Records, groups map[string]any) record.Records {
	var (
		out  record.Records
		seen = make(map[*record.Record]struct{})
	)
	collect := func(rec *record.Record) {
		if rec == nil {
			return
		}
		if _, dup := seen[rec]; dup {
			return
		}
		seen[rec] = struct{}{}
		out = append(out, rec)
	}
	for _, parent := range parents {
		key, ok := r.ParentKey(parent)
		if !ok {
			parent.SetRelation(r.rel.Name, r.Empty())
			continue
		}
		v, ok := groups[keyOf(key)]
		if !ok {
			parent.SetRelation(r.rel.Name, r.Empty())
			continue
		}
		parent.SetRelation(r.rel.Name, v)
		switch tv := v.(type) {
		case *record.Record:
			collect(tv)
		case record.Records:
			for _, rec := range tv {
				collect(rec)
			}
		}
	}
	return out
}

// parentKeys collects the distinct, non-null correlation values across the
// parent set, preserving first-seen order.
func (r *Resolver) parentKeys(parents record.Records) []any {
	seen := make(map[string]struct{}, len(parents))
	keys := make([]any, 0, len(parents))
	for _, p := range parents {
		v, ok := r.ParentKey(p)
		if !ok {
			continue
		}
		k := keyOf(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, v)
	}
	return keys
}

// fetchByKeys runs the base query once per key chunk and concatenates the
// results. The correlating column is forced into any narrowed projection so
// grouping stays possible.
func (r *Resolver) fetchByKeys(ctx context.Context, base *query.Builder, column string, keys []any) (record.Records, error) {
	if len(keys) == 0 {
		return record.Records{}, nil
	}
	var out record.Records
	for start := 0; start < len(keys); start += r.chunk {
		end := start + r.chunk
		if end > len(keys) {
			end = len(keys)
		}
		qb := base.Clone()
		if len(qb.Selected()) > 0 {
			qb.AddSelect(column)
		}
		recs, err := qb.WhereIn(column, keys[start:end]).Get(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// batchManyToMany fetches pivot rows for the parent keys, then the related
// entities, and joins the two in memory. Group ordering follows pivot row
// return order.
func (r *Resolver) batchManyToMany(ctx context.Context, keys []any, base *query.Builder) (map[string]record.Records, error) {
	groups := make(map[string]record.Records)
	if len(keys) == 0 {
		return groups, nil
	}
	pv := r.rel.Pivot
	var pivotRows record.Records
	for start := 0; start < len(keys); start += r.chunk {
		end := start + r.chunk
		if end > len(keys) {
			end = len(keys)
		}
		recs, err := query.NewTable(r.drv, pv.Table).
			WhereIn(pv.ParentColumn, keys[start:end]).
			Get(ctx)
		if err != nil {
			return nil, err
		}
		pivotRows = append(pivotRows, recs...)
	}

	relatedKeys := make([]any, 0, len(pivotRows))
	seen := make(map[string]struct{}, len(pivotRows))
	for _, row := range pivotRows {
		v, _ := row.Get(pv.RelatedColumn)
		if v == nil {
			continue
		}
		k := keyOf(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		relatedKeys = append(relatedKeys, v)
	}

	related, err := r.Related()
	if err != nil {
		return nil, err
	}
	rows, err := r.fetchByKeys(ctx, base, related.PrimaryKey, relatedKeys)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*record.Record, len(rows))
	for _, rec := range rows {
		v, _ := rec.Get(related.PrimaryKey)
		k := keyOf(v)
		if _, dup := byID[k]; !dup {
			byID[k] = rec
		}
	}

	for _, row := range pivotRows {
		pk, _ := row.Get(pv.ParentColumn)
		rk, _ := row.Get(pv.RelatedColumn)
		if pk == nil || rk == nil {
			continue
		}
		if rec, ok := byID[keyOf(rk)]; ok {
			groups[keyOf(pk)] = append(groups[keyOf(pk)], rec)
		}
	}
	return groups, nil
}

// groupSingular maps rows by normalized key, keeping the first row seen per
// key when duplicates arrive.
func groupSingular(rows record.Records, column string) map[string]any {
	out := make(map[string]any, len(rows))
	for _, rec := range rows {
		v, _ := rec.Get(column)
		if v == nil {
			continue
		}
		k := keyOf(v)
		if _, dup := out[k]; dup {
			continue
		}
		out[k] = rec
	}
	return out
}

func groupPlural(rows record.Records, column string) map[string]any {
	grouped := make(map[string]record.Records)
	for _, rec := range rows {
		v, _ := rec.Get(column)
		if v == nil {
			continue
		}
		k := keyOf(v)
		grouped[k] = append(grouped[k], rec)
	}
	out := make(map[string]any, len(grouped))
	for k, v := range grouped {
		out[k] = v
	}
	return out
}

// keyOf normalizes a correlation value so int64(7), "7" and []byte("7")
// group together regardless of driver scan types.
func keyOf(v any) string {
	return cast.ToString(v)
}
