package execution

import "fmt"

// Track identifies one of the mutually exclusive challenge categories.
// Each track maps to exactly one execution image in the registry.
type Track string

const (
	TrackRenderScript Track = "render-script"
	TrackDataAnalysis Track = "data-analysis"
	TrackInfraCLI     Track = "infra-cli"
)

// Tracks lists every known track in a stable order.
func Tracks() []Track {
	return []Track{TrackRenderScript, TrackDataAnalysis, TrackInfraCLI}
}

// ParseTrack validates a raw track identifier.
func ParseTrack(raw string) (Track, error) {
	track := Track(raw)
	for _, known := range Tracks() {
		if track == known {
			return track, nil
		}
	}
	return "", fmt.Errorf("unknown track %q", raw)
}

// Valid reports whether the track is one of the known values.
func (t Track) Valid() bool {
	_, err := ParseTrack(string(t))
	return err == nil
}
