package query

import (
	"fmt"
	"strings"

	"github.com/loamdev/loam/dialect"
	"github.com/loamdev/loam/schema"
)

// grammar renders builder state into dialect-specific SQL text. Values are
// always bound through placeholders; only developer-supplied identifiers
// appear in the statement text.
type grammar struct {
	quoteOpen  string
	quoteClose string
	numbered   bool // $n placeholders (Postgres) instead of ?
}

func grammarFor(name string) grammar {
	switch name {
	case dialect.Postgres:
		return grammar{quoteOpen: `"`, quoteClose: `"`, numbered: true}
	case dialect.MySQL:
		return grammar{quoteOpen: "`", quoteClose: "`"}
	default:
		return grammar{quoteOpen: `"`, quoteClose: `"`}
	}
}

// quote escapes an identifier, splitting on dots so "users.id" becomes two
// quoted parts. Expressions containing parentheses or spaces pass through.
func (g grammar) quote(name string) string {
	if name == "*" || strings.ContainsAny(name, " (") {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		parts[i] = g.quoteOpen + strings.ReplaceAll(p, g.quoteClose, g.quoteClose+g.quoteClose) + g.quoteClose
	}
	return strings.Join(parts, ".")
}

func (g grammar) placeholder(n int) string {
	if g.numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (g grammar) selectSQL(b *Builder) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("SELECT ")
	if len(b.columns) > 0 {
		cols := make([]string, len(b.columns))
		for i, c := range b.columns {
			cols[i] = g.quote(c)
		}
		sb.WriteString(strings.Join(cols, ", "))
	} else {
		sb.WriteString("*")
	}
	sb.WriteString(" FROM ")
	sb.WriteString(g.quote(b.table))

	for _, j := range b.joins {
		fmt.Fprintf(&sb, " %s JOIN %s ON %s %s %s",
			j.kind, g.quote(j.table), g.quote(j.left), j.op, g.quote(j.right))
	}

	conds := append(append([]cond(nil), b.conds...), b.scopeConds()...)
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		for i, c := range conds {
			if i > 0 {
				if c.or {
					sb.WriteString(" OR ")
				} else {
					sb.WriteString(" AND ")
				}
			}
			args = g.writeCond(&sb, c, args)
		}
	}

	if len(b.orders) > 0 {
		sb.WriteString(" ORDER BY ")
		terms := make([]string, len(b.orders))
		for i, o := range b.orders {
			terms[i] = g.quote(o.column)
			if o.desc {
				terms[i] += " DESC"
			}
		}
		sb.WriteString(strings.Join(terms, ", "))
	}

	if b.limit >= 0 {
		fmt.Fprintf(&sb, " LIMIT %d", b.limit)
	}
	if b.offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", b.offset)
	}
	return sb.String(), args
}

func (g grammar) writeCond(sb *strings.Builder, c cond, args []any) []any {
	switch c.op {
	case "in", "not in":
		if len(c.values) == 0 {
			// Empty sets match nothing (or everything, when negated).
			if c.op == "in" {
				sb.WriteString("1 = 0")
			} else {
				sb.WriteString("1 = 1")
			}
			return args
		}
		ph := make([]string, len(c.values))
		for i, v := range c.values {
			args = append(args, v)
			ph[i] = g.placeholder(len(args))
		}
		fmt.Fprintf(sb, "%s %s (%s)", g.quote(c.column), strings.ToUpper(c.op), strings.Join(ph, ", "))
	case schema.OpIsNull:
		fmt.Fprintf(sb, "%s IS NULL", g.quote(c.column))
	case schema.OpIsNotNull:
		fmt.Fprintf(sb, "%s IS NOT NULL", g.quote(c.column))
	default:
		args = append(args, c.value)
		fmt.Fprintf(sb, "%s %s %s", g.quote(c.column), c.op, g.placeholder(len(args)))
	}
	return args
}
