// Package task implements the asynchronous processing pipeline core: durable
// task records with a per-entity single-flight claim, the dispatcher that
// the web layer submits work through, a fixed worker pool driving per-kind
// stage sequences, a retry controller that centralizes failure policy, and
// the reaper that reclaims work abandoned by crashed workers.
package task
