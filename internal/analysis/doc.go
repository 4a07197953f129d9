// Package analysis defines the interface and error taxonomy for AI-backed
// file analysis. Concrete providers live under internal/platform.
package analysis
