package query

import (
	"context"

	"github.com/loamdev/loam/dialect"
	sqld "github.com/loamdev/loam/dialect/sql"
	"github.com/loamdev/loam/record"
	"github.com/loamdev/loam/schema"
)

func queryRows(ctx context.Context, drv dialect.Driver, query string, args []any) (*sqld.Rows, error) {
	rows := &sqld.Rows{}
	if err := drv.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// scanRecords drains rows into hydrated records. Column values arriving as
// []byte are converted to string so attributes stay comparable.
func scanRecords(rows *sqld.Rows, typ *schema.Type) (record.Records, error) {
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	recs := make(record.Records, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		recs = append(recs, newRecord(typ, columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

func newRecord(typ *schema.Type, columns []string, values []any) *record.Record {
	var r *record.Record
	if typ != nil {
		r = record.New(typ.Name,
			record.WithPrimaryKey(typ.PrimaryKey),
			record.WithFillable(typ.FillableColumns...),
			record.WithGuarded(typ.GuardedColumns...),
		)
	} else {
		r = record.New("")
	}
	r.Hydrate(columns, values)
	return r
}
