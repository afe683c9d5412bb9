package docker

import (
	"path"
	"strconv"

	"github.com/docker/docker/api/types/container"

	"trialrun/internal/domain/execution"
	"trialrun/internal/report"
)

// scratchDir is the only part of the container filesystem the sandbox may
// persist data to. It is an anonymous volume so the reporter's output file
// survives container exit and can be copied out before removal.
var scratchDir = path.Dir(report.Path)

const tmpfsSizeOpt = "rw,noexec,nosuid,size="

// hardenedHostConfig maps a resource policy onto a locked-down container
// host configuration. Networking is off and the root filesystem is read-only
// unconditionally; the policy only tunes the quota values.
func hardenedHostConfig(policy execution.ResourcePolicy) *container.HostConfig {
	pids := policy.PidsLimit
	return &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
		Resources: container.Resources{
			Memory:     policy.MemoryLimitBytes,
			MemorySwap: policy.MemoryLimitBytes,
			NanoCPUs:   policy.NanoCPUs,
			PidsLimit:  &pids,
		},
		Tmpfs: map[string]string{
			"/tmp": tmpfsSizeOpt + byteSize(policy.ScratchSizeBytes),
		},
	}
}

func byteSize(n int64) string {
	const unit = 1024 * 1024
	mb := n / unit
	if mb < 1 {
		mb = 1
	}
	return strconv.FormatInt(mb, 10) + "m"
}
