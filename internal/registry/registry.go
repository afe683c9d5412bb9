// Package registry holds the fixed set of pre-built execution images, one
// per track. The registry is built once at startup and never mutated during
// request handling, so lookups need no locking.
package registry

import (
	"fmt"

	"trialrun/internal/domain/execution"
)

// Image describes one track's execution environment: the container image
// bundling the track tooling and its reporter, plus where the engine stages
// the submission and how the reporter is started.
//
// Images must create the scratch directory (the parent of report.Path)
// writable by the sandbox user; its ownership is carried onto the volume
// the engine mounts there.
type Image struct {
	Track execution.Track
	// Ref is the container image reference, e.g. "trialrun/render:1.4".
	Ref string
	// Workdir is where the submission and test spec are staged (read-only).
	Workdir string
	// SourceFilename is the name the reporter expects the submission under,
	// e.g. "index.html" for render-script or "analysis.py" for data-analysis.
	SourceFilename string
	// Command starts the reporter. Empty means the image entrypoint runs it.
	Command []string
}

// Registry maps tracks to execution images.
type Registry struct {
	images map[execution.Track]Image
}

// New constructs a registry from the supplied images.
func New(images ...Image) (*Registry, error) {
	reg := &Registry{images: make(map[execution.Track]Image, len(images))}

	for _, img := range images {
		if !img.Track.Valid() {
			return nil, fmt.Errorf("registry: image %q declares unknown track %q", img.Ref, img.Track)
		}
		if img.Ref == "" {
			return nil, fmt.Errorf("registry: track %q missing image reference", img.Track)
		}
		if img.SourceFilename == "" {
			return nil, fmt.Errorf("registry: track %q missing source filename", img.Track)
		}
		if img.Workdir == "" {
			img.Workdir = "/challenge"
		}
		if _, exists := reg.images[img.Track]; exists {
			return nil, fmt.Errorf("registry: duplicate image for track %q", img.Track)
		}
		reg.images[img.Track] = img
	}

	if len(reg.images) == 0 {
		return nil, fmt.Errorf("registry: at least one execution image must be registered")
	}

	return reg, nil
}

// ImageFor resolves the execution image for a track. A missing image is a
// configuration fault, never retried.
func (r *Registry) ImageFor(track execution.Track) (Image, error) {
	img, ok := r.images[track]
	if !ok {
		return Image{}, &execution.ImageNotFoundError{Track: track}
	}
	return img, nil
}

// Images returns every registered image in track order, for introspection.
func (r *Registry) Images() []Image {
	out := make([]Image, 0, len(r.images))
	for _, track := range execution.Tracks() {
		if img, ok := r.images[track]; ok {
			out = append(out, img)
		}
	}
	return out
}
