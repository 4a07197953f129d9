// Package gemini implements the analysis.Analyzer interface using Google's
// Gemini API. It is the pipeline's primary enrichment provider; the quota
// governor meters calls to it and reroutes overflow to the fallback.
package gemini
