package ports

import (
	"context"

	"trialrun/internal/domain/execution"
	"trialrun/internal/registry"
)

// SandboxRunner executes one submission inside an ephemeral, resource-capped
// sandbox and returns whatever it produced before teardown.
type SandboxRunner interface {
	Run(ctx context.Context, image registry.Image, source string, spec execution.TestSpec, policy execution.ResourcePolicy) (*execution.RawOutput, error)
	// EnsureAll warms the given execution images; ImageReady reports whether
	// an image has been pulled and is ready to run.
	EnsureAll(ctx context.Context, images []registry.Image) error
	ImageReady(ref string) bool
	Close() error
}
