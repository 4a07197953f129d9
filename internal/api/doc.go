// Package api implements the HTTP layer: submitting files for processing,
// polling task status, reprocessing failed tasks, and reading the quota
// usage snapshot. Handlers translate between HTTP and the dispatcher; all
// pipeline semantics live in the task package.
package api
