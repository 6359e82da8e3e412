package relation

import (
	"context"

	"github.com/loamdev/loam"
	"github.com/loamdev/loam/query"
	"github.com/loamdev/loam/record"
	"github.com/loamdev/loam/schema"
)

// pivotKey returns the parent's pivot correlation value, failing when the
// relation is not pivot-backed or the parent has no identity yet.
func (r *Resolver) pivotKey(parent *record.Record, op string) (any, error) {
	if r.rel.Kind != schema.ManyToMany {
		return nil, loam.NewRelationError(r.rel.Owner, r.rel.Name)
	}
	key, ok := parent.Get(r.rel.LocalKey)
	if !ok || key == nil {
		return nil, loam.NewMissingIdentityError(r.rel.Owner, op)
	}
	return key, nil
}

// Attach inserts pivot rows linking the parent to each related id. All rows
// go through a single statement, so either every link lands or none does.
func (r *Resolver) Attach(ctx context.Context, parent *record.Record, relatedIDs ...any) error {
	key, err := r.pivotKey(parent, "attach "+r.rel.Name)
	if err != nil {
		return err
	}
	if len(relatedIDs) == 0 {
		return nil
	}
	pv := r.rel.Pivot
	rows := make([][]any, len(relatedIDs))
	for i, id := range relatedIDs {
		rows[i] = []any{key, id}
	}
	return query.NewTable(r.drv, pv.Table).
		Insert(ctx, []string{pv.ParentColumn, pv.RelatedColumn}, rows)
}

// Detach removes the pivot rows linking the parent to the given related ids.
// With no ids it removes every link the parent holds.
func (r *Resolver) Detach(ctx context.Context, parent *record.Record, relatedIDs ...any) error {
	key, err := r.pivotKey(parent, "detach "+r.rel.Name)
	if err != nil {
		return err
	}
	pv := r.rel.Pivot
	qb := query.NewTable(r.drv, pv.Table).Where(pv.ParentColumn, "=", key)
	if len(relatedIDs) > 0 {
		qb.WhereIn(pv.RelatedColumn, relatedIDs)
	}
	_, err = qb.Delete(ctx)
	return err
}

// Sync replaces the parent's link set with exactly the given related ids. It
// clears the existing links and reinserts, so the pivot rows end up fresh
// regardless of what was there before.
func (r *Resolver) Sync(ctx context.Context, parent *record.Record, relatedIDs ...any) error {
	if _, err := r.pivotKey(parent, "sync "+r.rel.Name); err != nil {
		return err
	}
	if err := r.Detach(ctx, parent); err != nil {
		return err
	}
	return r.Attach(ctx, parent, relatedIDs...)
}
