// Package postgres provides PostgreSQL implementations of the store
// interfaces defined in the internal/store and internal/task packages.
//
// All conditional transitions (task claims, reprocess resets) are expressed
// as single UPDATE statements whose WHERE clause carries the expected
// current state, so concurrent workers race safely on the database's row
// locking rather than on application-level coordination.
package postgres
