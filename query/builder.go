// Package query implements the per-table fluent query builder. A Builder
// accumulates projection, conditions, joins and bounds, applies the entity
// type's global scopes at execution time, and hydrates result rows into
// record.Records.
package query

import (
	"context"
	"sort"
	"strings"

	"github.com/loamdev/loam"
	"github.com/loamdev/loam/dialect"
	"github.com/loamdev/loam/record"
	"github.com/loamdev/loam/schema"
)

// Join kinds accepted by Join.
const (
	InnerJoin = "INNER"
	LeftJoin  = "LEFT"
	RightJoin = "RIGHT"
)

type cond struct {
	or     bool
	column string
	op     string
	value  any
	values []any // for IN / NOT IN
}

type joinClause struct {
	kind  string
	table string
	left  string
	op    string
	right string
}

type orderClause struct {
	column string
	desc   bool
}

// Builder builds and executes a single parameterized SELECT against one
// logical table. After Get or First the accumulated state is reset so the
// same instance can serve an unrelated query.
type Builder struct {
	drv   dialect.Driver
	typ   *schema.Type // nil for raw table queries
	table string

	columns        []string
	conds          []cond
	joins          []joinClause
	orders         []orderClause
	limit          int
	offset         int
	disabledScopes map[string]struct{}
	onlyTrashed    bool
}

// New returns a Builder bound to an entity type. Results hydrate into typed
// records carrying the type's key and guard rules.
func New(drv dialect.Driver, typ *schema.Type) *Builder {
	b := &Builder{drv: drv, typ: typ, table: typ.Table}
	b.reset()
	return b
}

// NewTable returns a Builder for a bare table. Results are raw records with
// no entity type bound; no global scopes apply.
func NewTable(drv dialect.Driver, table string) *Builder {
	b := &Builder{drv: drv, table: table}
	b.reset()
	return b
}

// Table returns the active table name.
func (b *Builder) Table() string { return b.table }

// Type returns the bound entity type, or nil for raw table queries.
func (b *Builder) Type() *schema.Type { return b.typ }

// Select constrains the projection. Unqualified columns other than "*" and
// "table.*" are qualified with the active table so joins cannot collide on
// ambiguous names. Calling Select again replaces the previous projection.
func (b *Builder) Select(columns ...string) *Builder {
	b.columns = b.columns[:0]
	for _, c := range columns {
		b.columns = append(b.columns, b.qualify(c))
	}
	return b
}

// AddSelect appends columns to the projection without replacing it.
func (b *Builder) AddSelect(columns ...string) *Builder {
	for _, c := range columns {
		qc := b.qualify(c)
		if !containsStr(b.columns, qc) {
			b.columns = append(b.columns, qc)
		}
	}
	return b
}

// Selected returns the current projection ("all" when empty).
func (b *Builder) Selected() []string {
	out := make([]string, len(b.columns))
	copy(out, b.columns)
	return out
}

func (b *Builder) qualify(column string) string {
	if column == "*" || strings.Contains(column, ".") || strings.Contains(column, "(") {
		return column
	}
	return b.table + "." + column
}

// Where adds a conjunctive condition. Condition order is preserved in the
// generated predicate.
func (b *Builder) Where(column, op string, value any) *Builder {
	b.conds = append(b.conds, cond{column: column, op: op, value: value})
	return b
}

// OrWhere adds a disjunctive condition.
func (b *Builder) OrWhere(column, op string, value any) *Builder {
	b.conds = append(b.conds, cond{or: true, column: column, op: op, value: value})
	return b
}

// WhereIn adds a set-membership condition. An empty value set produces a
// predicate that matches no rows.
func (b *Builder) WhereIn(column string, values []any) *Builder {
	b.conds = append(b.conds, cond{column: column, op: "in", values: values})
	return b
}

// WhereNotIn adds a negated set-membership condition.
func (b *Builder) WhereNotIn(column string, values []any) *Builder {
	b.conds = append(b.conds, cond{column: column, op: "not in", values: values})
	return b
}

// WhereNull adds an IS NULL condition.
func (b *Builder) WhereNull(column string) *Builder {
	b.conds = append(b.conds, cond{column: column, op: schema.OpIsNull})
	return b
}

// WhereNotNull adds an IS NOT NULL condition.
func (b *Builder) WhereNotNull(column string) *Builder {
	b.conds = append(b.conds, cond{column: column, op: schema.OpIsNotNull})
	return b
}

// Join adds a join clause. Multiple joins compose in call order.
func (b *Builder) Join(table, left, op, right, kind string) *Builder {
	if kind == "" {
		kind = InnerJoin
	}
	b.joins = append(b.joins, joinClause{kind: kind, table: table, left: left, op: op, right: right})
	return b
}

// OrderBy appends an ascending ordering term.
func (b *Builder) OrderBy(column string) *Builder {
	b.orders = append(b.orders, orderClause{column: column})
	return b
}

// OrderByDesc appends a descending ordering term.
func (b *Builder) OrderByDesc(column string) *Builder {
	b.orders = append(b.orders, orderClause{column: column, desc: true})
	return b
}

// Limit bounds the result size.
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

// Offset skips the first n rows.
func (b *Builder) Offset(n int) *Builder {
	b.offset = n
	return b
}

// WithoutScope disables a named global scope for this query instance only.
func (b *Builder) WithoutScope(name string) *Builder {
	b.disabledScopes[name] = struct{}{}
	return b
}

// WithTrashed suspends the soft-delete scope so trashed rows are included.
func (b *Builder) WithTrashed() *Builder {
	return b.WithoutScope(schema.ScopeSoftDelete)
}

// OnlyTrashed restricts the query to soft-deleted rows.
func (b *Builder) OnlyTrashed() *Builder {
	b.WithoutScope(schema.ScopeSoftDelete)
	b.onlyTrashed = true
	return b
}

// Clone returns an independent copy of the builder's accumulated state.
// Resolvers use it to issue one query per key chunk from a shared base.
func (b *Builder) Clone() *Builder {
	nb := &Builder{
		drv:         b.drv,
		typ:         b.typ,
		table:       b.table,
		limit:       b.limit,
		offset:      b.offset,
		onlyTrashed: b.onlyTrashed,
	}
	nb.columns = append([]string(nil), b.columns...)
	nb.conds = append([]cond(nil), b.conds...)
	nb.joins = append([]joinClause(nil), b.joins...)
	nb.orders = append([]orderClause(nil), b.orders...)
	nb.disabledScopes = make(map[string]struct{}, len(b.disabledScopes))
	for k := range b.disabledScopes {
		nb.disabledScopes[k] = struct{}{}
	}
	return nb
}

// scopeConds returns the conditions contributed by the type's enabled global
// scopes, in deterministic (name-sorted) order.
func (b *Builder) scopeConds() []cond {
	if b.typ == nil {
		return nil
	}
	scopes := b.typ.Scopes()
	names := make([]string, 0, len(scopes))
	for name := range scopes {
		if _, off := b.disabledScopes[name]; !off {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	var out []cond
	for _, name := range names {
		for _, c := range scopes[name].Conditions() {
			out = append(out, cond{column: c.Column, op: c.Op, value: c.Value})
		}
	}
	if b.onlyTrashed && b.typ.SoftDeleteColumn != "" {
		out = append(out, cond{column: b.typ.SoftDeleteColumn, op: schema.OpIsNotNull})
	}
	return out
}

// SQL assembles the SELECT statement and its ordered argument list without
// executing it.
func (b *Builder) SQL() (string, []any) {
	g := grammarFor(b.dialect())
	return g.selectSQL(b)
}

func (b *Builder) dialect() string {
	if b.drv != nil {
		return b.drv.Dialect()
	}
	return dialect.SQLite
}

func (b *Builder) entity() string {
	if b.typ != nil {
		return b.typ.Name
	}
	return b.table
}

// Get executes the query and returns the hydrated records. The builder's
// accumulated state is reset afterwards, whether or not execution succeeded,
// so conditions never leak into a later query on the same instance.
func (b *Builder) Get(ctx context.Context) (record.Records, error) {
	query, args := b.SQL()
	typ := b.typ
	entity := b.entity()
	b.reset()
	rows, err := queryRows(ctx, b.drv, query, args)
	if err != nil {
		return nil, loam.NewQueryError(entity, "select", err)
	}
	recs, err := scanRecords(rows, typ)
	if err != nil {
		return nil, loam.NewQueryError(entity, "select", err)
	}
	return recs, nil
}

// First executes the query with an implicit limit of one and returns the
// single record, or nil when no row matches.
func (b *Builder) First(ctx context.Context) (*record.Record, error) {
	b.limit = 1
	recs, err := b.Get(ctx)
	if err != nil {
		return nil, err
	}
	return recs.First(), nil
}

// Find fetches one record by primary key. It returns a NotFoundError when
// no row matches.
func (b *Builder) Find(ctx context.Context, id any) (*record.Record, error) {
	pk := record.DefaultPrimaryKey
	if b.typ != nil {
		pk = b.typ.PrimaryKey
	}
	r, err := b.Where(pk, "=", id).First(ctx)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, loam.NewNotFoundErrorWithID(b.entity(), id)
	}
	return r, nil
}

func (b *Builder) reset() {
	b.columns = nil
	b.conds = nil
	b.joins = nil
	b.orders = nil
	b.limit = -1
	b.offset = 0
	b.disabledScopes = make(map[string]struct{})
	b.onlyTrashed = false
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
