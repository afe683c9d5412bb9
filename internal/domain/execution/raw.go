package execution

import "time"

// RawOutput captures everything the sandbox produced before teardown. It is
// consumed exactly once by the normalizer and then discarded.
type RawOutput struct {
	Stdout string
	Stderr string
	// StdoutTruncated / StderrTruncated record that the capture cap was hit.
	StdoutTruncated bool
	StderrTruncated bool
	// Report holds the reporter's structured JSON output, or nil when the
	// container exited before the reporter could write it. A nil Report is
	// meaningful (the degraded path), not an error.
	Report   []byte
	ExitCode int64
	// TimedOut marks that the wall-clock deadline expired and the container
	// was force-killed.
	TimedOut bool
	// OOMKilled marks that the kernel killed the container for exceeding its
	// memory ceiling.
	OOMKilled bool
	Duration  time.Duration
}
