// Package persist writes records back to the database. Saver implements
// record.Persister: it inserts records without identity, updates only the
// dirty columns of existing ones, and honors soft-delete declarations on
// delete.
package persist

import (
	"context"
	"time"

	"github.com/loamdev/loam"
	"github.com/loamdev/loam/dialect"
	"github.com/loamdev/loam/query"
	"github.com/loamdev/loam/record"
	"github.com/loamdev/loam/schema"
)

// Saver persists records of registered types.
type Saver struct {
	drv dialect.Driver
	reg *schema.Registry
}

// New returns a Saver over the given driver and registry.
func New(drv dialect.Driver, reg *schema.Registry) *Saver {
	return &Saver{drv: drv, reg: reg}
}

// Save inserts the record when it has no identity and updates it otherwise.
// Saving an unmodified record is a no-op. The record is mutated in place:
// a generated identity lands on it and its clean state is resynced.
func (s *Saver) Save(ctx context.Context, r *record.Record) error {
	typ, err := s.reg.Type(r.TypeName())
	if err != nil {
		return err
	}
	if r.IsNew() {
		return s.insert(ctx, typ, r)
	}
	return s.update(ctx, typ, r)
}

func (s *Saver) insert(ctx context.Context, typ *schema.Type, r *record.Record) error {
	columns, values := dirtyPairs(r, "")
	if len(columns) == 0 {
		return nil
	}
	id, err := query.New(s.drv, typ).InsertGetID(ctx, columns, values, typ.PrimaryKey)
	if err != nil {
		return err
	}
	if id != 0 {
		r.Hydrate([]string{typ.PrimaryKey}, []any{id})
		return nil
	}
	r.SyncOriginal()
	return nil
}

func (s *Saver) update(ctx context.Context, typ *schema.Type, r *record.Record) error {
	columns, values := dirtyPairs(r, typ.PrimaryKey)
	if len(columns) == 0 {
		return nil
	}
	id, _ := r.Identity()
	// The primary key pins the row; the soft-delete scope must not apply or
	// updates to trashed records silently match nothing.
	if _, err := query.New(s.drv, typ).
		WithTrashed().
		Where(typ.PrimaryKey, "=", id).
		Update(ctx, columns, values); err != nil {
		return err
	}
	r.SyncOriginal()
	return nil
}

// Delete removes the record's row. Types declaring a soft-delete column are
// marked deleted instead of removed; ForceDelete bypasses that. Deleting a
// record without identity fails.
func (s *Saver) Delete(ctx context.Context, r *record.Record) error {
	typ, err := s.reg.Type(r.TypeName())
	if err != nil {
		return err
	}
	id, ok := r.Identity()
	if !ok {
		return loam.NewMissingIdentityError(typ.Name, "delete")
	}
	if typ.SoftDeleteColumn != "" {
		now := time.Now().UTC()
		if _, err := query.New(s.drv, typ).
			Where(typ.PrimaryKey, "=", id).
			Update(ctx, []string{typ.SoftDeleteColumn}, []any{now}); err != nil {
			return err
		}
		r.Hydrate([]string{typ.SoftDeleteColumn}, []any{now})
		return nil
	}
	_, err = query.New(s.drv, typ).Where(typ.PrimaryKey, "=", id).Delete(ctx)
	return err
}

// ForceDelete removes the row outright, ignoring any soft-delete declaration.
func (s *Saver) ForceDelete(ctx context.Context, r *record.Record) error {
	typ, err := s.reg.Type(r.TypeName())
	if err != nil {
		return err
	}
	id, ok := r.Identity()
	if !ok {
		return loam.NewMissingIdentityError(typ.Name, "delete")
	}
	_, err = query.New(s.drv, typ).
		WithTrashed().
		Where(typ.PrimaryKey, "=", id).
		Delete(ctx)
	return err
}

// Restore clears a soft-deleted record's deletion mark.
func (s *Saver) Restore(ctx context.Context, r *record.Record) error {
	typ, err := s.reg.Type(r.TypeName())
	if err != nil {
		return err
	}
	if typ.SoftDeleteColumn == "" {
		return nil
	}
	id, ok := r.Identity()
	if !ok {
		return loam.NewMissingIdentityError(typ.Name, "restore")
	}
	if _, err := query.New(s.drv, typ).
		WithTrashed().
		Where(typ.PrimaryKey, "=", id).
		Update(ctx, []string{typ.SoftDeleteColumn}, []any{nil}); err != nil {
		return err
	}
	r.Hydrate([]string{typ.SoftDeleteColumn}, []any{nil})
	return nil
}

// dirtyPairs returns the changed column/value pairs in attribute insertion
// order, excluding skip (the primary key on update).
func dirtyPairs(r *record.Record, skip string) ([]string, []any) {
	dirty := r.Dirty()
	var (
		columns []string
		values  []any
	)
	for _, c := range r.Columns() {
		if c == skip {
			continue
		}
		if v, ok := dirty[c]; ok {
			columns = append(columns, c)
			values = append(values, v)
		}
	}
	return columns, values
}
