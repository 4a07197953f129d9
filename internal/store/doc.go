// Package store defines persistence interfaces and shared error values used
// by the storage implementations under internal/platform. Keeping the
// contracts here lets the pipeline depend on behavior rather than on a
// concrete database.
package store
