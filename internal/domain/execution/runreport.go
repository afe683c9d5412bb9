package execution

// RunReport pairs a submission with its outcome for publishing. Exactly one
// of Result and Err describes the outcome: Err is set only for
// infrastructure failures, user-code failures always land in Result.
type RunReport struct {
	// ID uniquely identifies this execution attempt.
	ID      string
	Request Request
	Result  *Result
	Err     error
}
