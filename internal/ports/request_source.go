package ports

import (
	"context"

	"trialrun/internal/domain/execution"
)

// Submission is one inbound execution request plus its correlation id.
type Submission struct {
	ID      string
	Request execution.Request
}

// RequestSource provides submissions for the dispatcher to execute. It
// returns io.EOF when the source is drained.
type RequestSource interface {
	NextSubmission(ctx context.Context) (Submission, error)
	Close() error
}
