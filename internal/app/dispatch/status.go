package dispatch

import (
	"sort"

	"trialrun/internal/domain/execution"
)

// Status is a read-only snapshot of engine capacity and image availability
// for operational dashboards.
type Status struct {
	CapacityTotal int
	CapacityInUse int
	Images        []ImageStatus
	InFlight      []LiveExecution
}

// ImageStatus reports which image serves a track and whether it has been
// pulled yet.
type ImageStatus struct {
	Track  execution.Track
	Ref    string
	Pulled bool
}

// Status reports current slot utilization and registered images. It takes no
// locks beyond the tracker's own and has no side effects.
func (s *Service) Status() Status {
	live := make([]LiveExecution, 0, s.inFlight.Size())
	s.inFlight.Range(func(_ string, exec LiveExecution) bool {
		live = append(live, exec)
		return true
	})
	sort.Slice(live, func(i, j int) bool { return live[i].StartedAt.Before(live[j].StartedAt) })

	images := make([]ImageStatus, 0)
	for _, img := range s.registry.Images() {
		images = append(images, ImageStatus{
			Track:  img.Track,
			Ref:    img.Ref,
			Pulled: s.runner.ImageReady(img.Ref),
		})
	}

	return Status{
		CapacityTotal: int(s.capacity),
		CapacityInUse: int(s.inUse.Load()),
		Images:        images,
		InFlight:      live,
	}
}
