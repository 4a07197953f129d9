// Package stages implements the concrete pipeline stages: downloading the
// object, extracting text, AI analysis under quota admission, persisting
// enrichment results, thumbnail generation, and user notification. BuildSet
// assembles them into the per-kind sequences the worker pool executes.
//
// Stages classify their own failures with the task package's transient,
// permanent, and deferred wrappers; retry policy itself lives in the retry
// controller.
package stages
