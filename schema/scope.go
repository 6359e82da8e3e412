package schema

// ScopeSoftDelete is the name the soft-delete exclusion scope is registered
// under. Query instances suspend it via WithTrashed / OnlyTrashed.
const ScopeSoftDelete = "soft_delete"

// Null-check operators understood by Condition.Op.
const (
	OpIsNull    = "is null"
	OpIsNotNull = "is not null"
)

// Condition is one predicate contributed by a global scope. Scopes describe
// conditions as data so the registry stays free of query-builder imports.
type Condition struct {
	Column string
	Op     string // comparison operator, or OpIsNull / OpIsNotNull
	Value  any
}

// Scope is a named predicate automatically appended to every query for an
// entity type unless the query instance disables it.
type Scope interface {
	Conditions() []Condition
}

// ScopeFunc adapts a function to the Scope interface.
type ScopeFunc func() []Condition

// Conditions implements the Scope interface.
func (f ScopeFunc) Conditions() []Condition { return f() }

// softDeleteScope excludes rows whose soft-delete marker is set.
type softDeleteScope struct {
	column string
}

func (s softDeleteScope) Conditions() []Condition {
	return []Condition{{Column: s.column, Op: OpIsNull}}
}
