package loam

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("loam: entity not found")

	// ErrMissingIdentity is returned when an operation requires a persisted
	// entity but the entity has no primary key value yet.
	ErrMissingIdentity = errors.New("loam: entity has no identity")

	// ErrGuarded is returned when a write targets a guarded attribute.
	ErrGuarded = errors.New("loam: attribute is guarded")
)

// NotFoundError represents an error when an entity is not found.
type NotFoundError struct {
	label string
	id    any // Optional: the ID that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("loam: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("loam: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the ID that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given entity type.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithID returns a new NotFoundError with the ID that was searched for.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// RelationError represents a definition error: a relation name that is not
// declared on the entity type it was requested for. It is a programmer
// mistake and is never retried or recovered locally.
type RelationError struct {
	entity   string
	relation string
}

// Error returns the error string.
func (e *RelationError) Error() string {
	return fmt.Sprintf("loam: relation %q is not defined on %s", e.relation, e.entity)
}

// Entity returns the entity type name the relation was requested for.
func (e *RelationError) Entity() string {
	return e.entity
}

// Relation returns the undeclared relation name.
func (e *RelationError) Relation() string {
	return e.relation
}

// NewRelationError returns a new RelationError for the given entity type and
// relation name.
func NewRelationError(entity, relation string) *RelationError {
	return &RelationError{entity: entity, relation: relation}
}

// IsRelationError returns true if the error is a RelationError.
func IsRelationError(err error) bool {
	if err == nil {
		return false
	}
	var e *RelationError
	return errors.As(err, &e)
}

// MissingIdentityError represents a definition error: an operation that
// requires a persisted entity (e.g. pivot mutations) was invoked on an
// entity without a primary key value.
type MissingIdentityError struct {
	entity string
	op     string
}

// Error returns the error string.
func (e *MissingIdentityError) Error() string {
	return fmt.Sprintf("loam: %s on %s requires a persisted entity", e.op, e.entity)
}

// Is reports whether the target error matches MissingIdentityError.
func (e *MissingIdentityError) Is(err error) bool {
	return err == ErrMissingIdentity
}

// Entity returns the entity type name.
func (e *MissingIdentityError) Entity() string {
	return e.entity
}

// Op returns the operation that required an identity.
func (e *MissingIdentityError) Op() string {
	return e.op
}

// NewMissingIdentityError returns a new MissingIdentityError.
func NewMissingIdentityError(entity, op string) *MissingIdentityError {
	return &MissingIdentityError{entity: entity, op: op}
}

// IsMissingIdentity returns true if the error is a MissingIdentityError.
func IsMissingIdentity(err error) bool {
	if err == nil {
		return false
	}
	var e *MissingIdentityError
	return errors.As(err, &e) || errors.Is(err, ErrMissingIdentity)
}

// NotLoadedError represents an error when attempting to access a relation
// that was not loaded (eager-loaded or lazily resolved).
type NotLoadedError struct {
	relation string
}

// Error returns the error string.
func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("loam: relation %q was not loaded", e.relation)
}

// NewNotLoadedError returns a new NotLoadedError for the given relation name.
func NewNotLoadedError(relation string) *NotLoadedError {
	return &NotLoadedError{relation: relation}
}

// IsNotLoaded returns true if the error is a NotLoadedError.
func IsNotLoaded(err error) bool {
	if err == nil {
		return false
	}
	var e *NotLoadedError
	return errors.As(err, &e)
}

// GuardError represents a rejected attribute write: either the attribute is
// in the guarded list, or mass assignment was attempted with a key absent
// from a non-empty fillable allow-list.
type GuardError struct {
	Field string // Attribute that was rejected
}

// Error returns the error string.
func (e *GuardError) Error() string {
	return fmt.Sprintf("loam: attribute %q is guarded against assignment", e.Field)
}

// Is reports whether the target error matches GuardError.
func (e *GuardError) Is(err error) bool {
	return err == ErrGuarded
}

// NewGuardError returns a new GuardError for the given attribute.
func NewGuardError(field string) *GuardError {
	return &GuardError{Field: field}
}

// IsGuarded returns true if the error is a GuardError.
func IsGuarded(err error) bool {
	if err == nil {
		return false
	}
	var e *GuardError
	return errors.As(err, &e) || errors.Is(err, ErrGuarded)
}

// QueryError wraps a query-execution error with additional context.
type QueryError struct {
	Entity string // Entity type being queried
	Op     string // Operation (e.g., "select", "first", "batch")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("loam: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("loam: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(entity, op string, err error) *QueryError {
	return &QueryError{Entity: entity, Op: op, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// MutationError wraps a persistence error with additional context.
type MutationError struct {
	Entity string // Entity type being mutated
	Op     string // Operation (e.g., "insert", "update", "delete", "sync")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("loam: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(entity, op string, err error) *MutationError {
	return &MutationError{Entity: entity, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}
