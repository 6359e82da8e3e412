// Package loam is the object-relational core of the loam web framework.
//
// It lets application code declare entity types and the relationships between
// them, query single tables through a fluent builder, and materialize graphs
// of related entities with batched eager loading instead of one query per
// parent.
//
// # Packages
//
//   - record: entities (ordered attribute maps with relation caches) and the
//     Records container they travel in
//   - schema: entity-type metadata, relationship descriptors, global scopes
//   - query: the per-table fluent query builder
//   - relation: batch resolvers for the four relationship kinds
//   - include: the caller-facing include-specification parser
//   - loader: the deep-fetch orchestrator that drives the resolvers
//   - persist: insert/update/delete for single records
//   - dialect, dialect/sql: database driver abstraction and wrappers
//
// # Errors
//
// This package defines the error taxonomy shared by all subpackages.
// Definition errors (RelationError, MissingIdentityError, GuardError) signal
// programmer mistakes and fail immediately. Execution errors (QueryError,
// MutationError) wrap failures from the database driver and propagate to the
// caller without retries.
package loam
