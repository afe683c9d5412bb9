package ports

import (
	"context"

	"trialrun/internal/domain/execution"
)

// ResultPublisher delivers run reports to an external system.
type ResultPublisher interface {
	PublishRunReport(ctx context.Context, report execution.RunReport) error
	Close() error
}
