// Package loader orchestrates deep fetches. Given a set of parent records
// and an include tree, it resolves each relation level with batched queries
// and attaches the results, so a nested load of depth d over r relations
// issues on the order of r queries rather than one per parent row.
package loader

import (
	"context"

	"github.com/loamdev/loam/dialect"
	"github.com/loamdev/loam/include"
	"github.com/loamdev/loam/record"
	"github.com/loamdev/loam/relation"
	"github.com/loamdev/loam/schema"
)

// Option configures a Loader.
type Option func(*Loader)

// WithChunkSize bounds the whereIn key count per resolver query.
func WithChunkSize(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.chunk = n
		}
	}
}

// Loader resolves include trees against a driver and type registry.
type Loader struct {
	drv   dialect.Driver
	reg   *schema.Registry
	chunk int
}

// New returns a Loader over the given driver and registry.
func New(drv dialect.Driver, reg *schema.Registry, opts ...Option) *Loader {
	l := &Loader{drv: drv, reg: reg, chunk: relation.DefaultChunkSize}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load eager-loads the included relations onto the given records. Every
// record ends up with a defined relation state for each included name, nil
// or empty when nothing matched. An undeclared relation name anywhere in the
// include tree fails the whole load before any attachment for that relation
// happens.
func (l *Loader) Load(ctx context.Context, parents record.Records, includes ...include.Include) error {
	if len(parents) == 0 {
		return nil
	}
	typ, err := l.reg.Type(parents.First().TypeName())
	if err != nil {
		return err
	}
	return l.loadLevel(ctx, typ, parents, include.Build(includes...))
}

// loadLevel resolves all sibling relations of one tree level before
// descending, so each level contributes a bounded number of queries no
// matter how many parents it carries.
func (l *Loader) loadLevel(ctx context.Context, typ *schema.Type, parents record.Records, nodes []*include.Node) error {
	type descent struct {
		typ      *schema.Type
		children record.Records
		nodes    []*include.Node
	}
	var pending []descent
	for _, node := range nodes {
		rel, err := typ.Relation(node.Name)
		if err != nil {
			return err
		}
		res := relation.New(rel, l.reg, l.drv, relation.WithChunkSize(l.chunk))
		base, err := res.Query()
		if err != nil {
			return err
		}
		if len(node.Columns) > 0 {
			base.Select(node.Columns...)
		}
		node.Apply(base)
		groups, err := res.Batch(ctx, parents, base)
		if err != nil {
			return err
		}
		children := res.Assign(parents, groups)
		if len(node.Children) > 0 && len(children) > 0 {
			childTyp, err := l.reg.Type(rel.Related)
			if err != nil {
				return err
			}
			pending = append(pending, descent{typ: childTyp, children: children, nodes: node.Children})
		}
	}
	for _, d := range pending {
		if err := l.loadLevel(ctx, d.typ, d.children, d.nodes); err != nil {
			return err
		}
	}
	return nil
}

// One lazily resolves a single relation on one record, caching the result so
// repeated access does not query again. The cached value may be nil for a
// singular relation with no match; that state is cached too.
func (l *Loader) One(ctx context.Context, rec *record.Record, name string) (any, error) {
	if v, ok := rec.Relation(name); ok {
		return v, nil
	}
	typ, err := l.reg.Type(rec.TypeName())
	if err != nil {
		return nil, err
	}
	rel, err := typ.Relation(name)
	if err != nil {
		return nil, err
	}
	res := relation.New(rel, l.reg, l.drv, relation.WithChunkSize(l.chunk))
	v, err := res.Single(ctx, rec, nil)
	if err != nil {
		return nil, err
	}
	rec.SetRelation(name, v)
	return v, nil
}
