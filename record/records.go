package record

// Records is an ordered sequence of records. Iteration order is stable and
// matches query result order; a zero-length Records is a valid empty result.
type Records []*Record

// First returns the first record, or nil when empty.
func (rs Records) First() *Record {
	if len(rs) == 0 {
		return nil
	}
	return rs[0]
}

// IsEmpty reports whether the container holds no records.
func (rs Records) IsEmpty() bool { return len(rs) == 0 }

// Each calls fn for every record in order.
func (rs Records) Each(fn func(*Record)) {
	for _, r := range rs {
		fn(r)
	}
}

// Map transforms every record into an arbitrary value, preserving order.
func (rs Records) Map(fn func(*Record) any) []any {
	out := make([]any, len(rs))
	for i, r := range rs {
		out[i] = fn(r)
	}
	return out
}

// Filter returns the records for which fn reports true, preserving order.
func (rs Records) Filter(fn func(*Record) bool) Records {
	out := make(Records, 0, len(rs))
	for _, r := range rs {
		if fn(r) {
			out = append(out, r)
		}
	}
	return out
}

// Reduce folds the records into a single value.
func (rs Records) Reduce(init any, fn func(acc any, r *Record) any) any {
	acc := init
	for _, r := range rs {
		acc = fn(acc, r)
	}
	return acc
}

// GroupBy groups the records by the key fn produces, preserving the input
// order within each group.
func (rs Records) GroupBy(fn func(*Record) string) map[string]Records {
	out := make(map[string]Records)
	for _, r := range rs {
		k := fn(r)
		out[k] = append(out[k], r)
	}
	return out
}

// Pluck collects one column's value from every record, preserving order.
func (rs Records) Pluck(column string) []any {
	out := make([]any, len(rs))
	for i, r := range rs {
		v, _ := r.Get(column)
		out[i] = v
	}
	return out
}

// Identities collects the non-nil primary key values of all records,
// preserving order. Records without identity are skipped.
func (rs Records) Identities() []any {
	out := make([]any, 0, len(rs))
	for _, r := range rs {
		if id, ok := r.Identity(); ok {
			out = append(out, id)
		}
	}
	return out
}
