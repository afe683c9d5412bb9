package execution

import "time"

// Error kinds used in Result.Errors entries.
const (
	ErrorKindTimeout     = "timeout"
	ErrorKindOOMKilled   = "oom_killed"
	ErrorKindNonZeroExit = "non_zero_exit"
	ErrorKindReporter    = "reporter"
)

// IncompleteRunError is the uniform per-check error applied when the reporter
// never produced usable output.
const IncompleteRunError = "execution did not complete"

// Result is the canonical, track-agnostic outcome returned to every caller.
// It is the only entity persisted or transmitted onward.
type Result struct {
	// Success is true only when every declared check passed.
	Success bool
	// Score is the sum of points for checks that independently passed.
	// Invariant: 0 <= Score <= MaxScore.
	Score int
	// MaxScore is the sum of all declared check points, independent of
	// whether the reporter ran to completion.
	MaxScore int
	// Checks holds one entry per declared check, in declaration order.
	Checks []CheckResult
	// Errors describes why the run failed, when it did.
	Errors []ErrorDetail
	// Metrics carries track-specific measurements verbatim from the reporter.
	Metrics  map[string]any
	Duration time.Duration
}

// CheckResult is the outcome of a single declared check.
type CheckResult struct {
	Name   string
	Passed bool
	Points int
	Error  string
}

// ErrorDetail describes one failure cause attached to a Result.
type ErrorDetail struct {
	Type    string
	Message string
}
