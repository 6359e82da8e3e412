package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/loamdev/loam"
	"github.com/loamdev/loam/dialect"
	sqld "github.com/loamdev/loam/dialect/sql"
)

// Insert executes a parameterized multi-row INSERT. Rows must all match the
// column list. The builder's accumulated state is reset afterwards.
func (b *Builder) Insert(ctx context.Context, columns []string, rows [][]any) error {
	g := grammarFor(b.dialect())
	entity := b.entity()
	table := b.table
	b.reset()
	if len(rows) == 0 {
		return nil
	}
	var (
		sb   strings.Builder
		args []any
	)
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = g.quote(c)
	}
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", g.quote(table), strings.Join(quoted, ", "))
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		ph := make([]string, len(row))
		for j, v := range row {
			args = append(args, v)
			ph[j] = g.placeholder(len(args))
		}
		fmt.Fprintf(&sb, "(%s)", strings.Join(ph, ", "))
	}
	if err := b.drv.Exec(ctx, sb.String(), args, nil); err != nil {
		return loam.NewMutationError(entity, "insert", err)
	}
	return nil
}

// InsertGetID executes a single-row INSERT and returns the generated
// identity. On Postgres the id comes back through RETURNING; elsewhere
// through the driver's last-insert-id.
func (b *Builder) InsertGetID(ctx context.Context, columns []string, values []any, pk string) (int64, error) {
	g := grammarFor(b.dialect())
	dlct := b.dialect()
	entity := b.entity()
	table := b.table
	b.reset()
	var (
		sb   strings.Builder
		args []any
	)
	quoted := make([]string, len(columns))
	ph := make([]string, len(values))
	for i, c := range columns {
		quoted[i] = g.quote(c)
	}
	for i, v := range values {
		args = append(args, v)
		ph[i] = g.placeholder(len(args))
	}
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (%s)",
		g.quote(table), strings.Join(quoted, ", "), strings.Join(ph, ", "))
	if dlct == dialect.Postgres {
		fmt.Fprintf(&sb, " RETURNING %s", g.quote(pk))
		rows := &sqld.Rows{}
		if err := b.drv.Query(ctx, sb.String(), args, rows); err != nil {
			return 0, loam.NewMutationError(entity, "insert", err)
		}
		defer rows.Close()
		var id int64
		if rows.Next() {
			if err := rows.Scan(&id); err != nil {
				return 0, loam.NewMutationError(entity, "insert", err)
			}
		}
		return id, rows.Err()
	}
	var res sqld.Result
	if err := b.drv.Exec(ctx, sb.String(), args, &res); err != nil {
		return 0, loam.NewMutationError(entity, "insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, loam.NewMutationError(entity, "insert", err)
	}
	return id, nil
}

// Update executes a parameterized UPDATE of the given column/value pairs,
// honoring the accumulated conditions. Pairs are applied in the given order.
// It returns the number of affected rows and resets the builder afterwards.
func (b *Builder) Update(ctx context.Context, columns []string, values []any) (int64, error) {
	g := grammarFor(b.dialect())
	entity := b.entity()
	table := b.table
	conds := append(append([]cond(nil), b.conds...), b.scopeConds()...)
	b.reset()
	var (
		sb   strings.Builder
		args []any
	)
	fmt.Fprintf(&sb, "UPDATE %s SET ", g.quote(table))
	for i, c := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		args = append(args, values[i])
		fmt.Fprintf(&sb, "%s = %s", g.quote(c), g.placeholder(len(args)))
	}
	args = writeWhere(&sb, g, conds, args)
	var res sqld.Result
	if err := b.drv.Exec(ctx, sb.String(), args, &res); err != nil {
		return 0, loam.NewMutationError(entity, "update", err)
	}
	return res.RowsAffected()
}

// Delete executes a DELETE honoring the accumulated conditions. It returns
// the number of affected rows and resets the builder afterwards.
func (b *Builder) Delete(ctx context.Context) (int64, error) {
	g := grammarFor(b.dialect())
	entity := b.entity()
	table := b.table
	conds := append(append([]cond(nil), b.conds...), b.scopeConds()...)
	b.reset()
	var (
		sb   strings.Builder
		args []any
	)
	fmt.Fprintf(&sb, "DELETE FROM %s", g.quote(table))
	args = writeWhere(&sb, g, conds, args)
	var res sqld.Result
	if err := b.drv.Exec(ctx, sb.String(), args, &res); err != nil {
		return 0, loam.NewMutationError(entity, "delete", err)
	}
	return res.RowsAffected()
}

func writeWhere(sb *strings.Builder, g grammar, conds []cond, args []any) []any {
	if len(conds) == 0 {
		return args
	}
	sb.WriteString(" WHERE ")
	for i, c := range conds {
		if i > 0 {
			if c.or {
				sb.WriteString(" OR ")
			} else {
				sb.WriteString(" AND ")
			}
		}
		args = g.writeCond(sb, c, args)
	}
	return args
}
