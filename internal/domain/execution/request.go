package execution

// MaxSourceBytes caps the size of a submitted source artifact.
const MaxSourceBytes = 100 * 1024

// Request is the immutable input for a single execution. It is created once
// per submission and never mutated afterwards.
type Request struct {
	// Track selects the execution image and the reporter schema semantics.
	Track Track
	// Source is the untrusted submitted code.
	Source string
	// ChallengeID is an opaque reference used only for logging and result
	// correlation; the engine never interprets it.
	ChallengeID string
	// TestSpec is the trusted, declarative test definition for the challenge.
	TestSpec TestSpec
}

// TestSpec declares the checks the track reporter must evaluate against the
// submission. It is trusted configuration supplied by the challenge service,
// not user input.
type TestSpec struct {
	Checks []CheckSpec `json:"checks"`
}

// CheckSpec declares a single scored check. Params carries the track-specific
// assertion inputs (selectors for render-script, variable expectations for
// data-analysis, resource-state expectations for infra-cli); the engine
// forwards them to the reporter verbatim.
type CheckSpec struct {
	Name   string         `json:"name"`
	Points int            `json:"points"`
	Params map[string]any `json:"params,omitempty"`
}

// MaxScore is the sum of points across all declared checks, independent of
// any execution outcome.
func (s TestSpec) MaxScore() int {
	total := 0
	for _, check := range s.Checks {
		total += check.Points
	}
	return total
}
