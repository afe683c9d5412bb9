package execution

import "time"

// ResourcePolicy is the uniform set of limits applied to every sandbox
// instance regardless of track. Networking is always disabled and the root
// filesystem is always read-only; those are not configurable.
type ResourcePolicy struct {
	// MemoryLimitBytes caps container memory (and swap to the same value).
	MemoryLimitBytes int64
	// NanoCPUs caps the CPU share in units of 1e-9 CPUs.
	NanoCPUs int64
	// WallClockLimit is the hard execution deadline. On expiry the container
	// is force-killed, never signalled gracefully and abandoned.
	WallClockLimit time.Duration
	// PidsLimit caps the number of processes inside the sandbox.
	PidsLimit int64
	// LogCaptureBytes caps how much of each stdout/stderr stream is retained.
	LogCaptureBytes int64
	// ScratchSizeBytes sizes the only writable mount inside the sandbox.
	ScratchSizeBytes int64
	// User is the non-privileged uid:gid the sandbox process runs as.
	User string
	// AdmissionTimeout bounds how long an execution may wait for a capacity
	// slot before failing fast.
	AdmissionTimeout time.Duration
}

// DefaultResourcePolicy returns the production defaults.
func DefaultResourcePolicy() ResourcePolicy {
	return ResourcePolicy{
		MemoryLimitBytes: 256 * 1024 * 1024,
		NanoCPUs:         500_000_000,
		WallClockLimit:   30 * time.Second,
		PidsLimit:        64,
		LogCaptureBytes:  1024 * 1024,
		ScratchSizeBytes: 16 * 1024 * 1024,
		User:             "65534:65534",
		AdmissionTimeout: 2 * time.Second,
	}
}

// Normalize clamps invalid values back to the defaults so a partially filled
// policy can never disable a limit entirely.
func (p ResourcePolicy) Normalize() ResourcePolicy {
	defaults := DefaultResourcePolicy()
	if p.MemoryLimitBytes <= 0 {
		p.MemoryLimitBytes = defaults.MemoryLimitBytes
	}
	if p.NanoCPUs <= 0 {
		p.NanoCPUs = defaults.NanoCPUs
	}
	if p.WallClockLimit <= 0 {
		p.WallClockLimit = defaults.WallClockLimit
	}
	if p.PidsLimit <= 0 {
		p.PidsLimit = defaults.PidsLimit
	}
	if p.LogCaptureBytes <= 0 {
		p.LogCaptureBytes = defaults.LogCaptureBytes
	}
	if p.ScratchSizeBytes <= 0 {
		p.ScratchSizeBytes = defaults.ScratchSizeBytes
	}
	if p.User == "" {
		p.User = defaults.User
	}
	if p.AdmissionTimeout <= 0 {
		p.AdmissionTimeout = defaults.AdmissionTimeout
	}
	return p
}
