package analysis

import "errors"

// Common errors returned by the analysis package
var (
	// ErrAnalysisFailed is returned when analysis fails for any general reason
	ErrAnalysisFailed = errors.New("failed to analyze file content")

	// ErrInvalidResponse is returned when the provider response cannot be parsed or is malformed
	ErrInvalidResponse = errors.New("invalid response from analysis provider")

	// ErrContentBlocked is returned when the provider blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by provider safety filters")

	// ErrRateLimited is returned when the provider signals a rate limit,
	// distinctly from generic failures, so the quota governor can react
	ErrRateLimited = errors.New("analysis provider rate limit exceeded")

	// ErrUnavailable is returned for temporary provider availability problems
	ErrUnavailable = errors.New("analysis provider unavailable")

	// ErrInvalidConfig is returned when the analyzer configuration is invalid
	ErrInvalidConfig = errors.New("invalid analyzer configuration")
)
