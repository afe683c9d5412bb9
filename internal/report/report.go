// Package report defines the wire format every execution image's reporter
// must emit as its structured result. The schema is the one contract image
// authors target, so it must stay bit-exact across tracks.
package report

import (
	"encoding/json"
	"fmt"
)

// Path is the fixed location inside the sandbox scratch area where the
// reporter writes its structured output.
//
// The engine mounts an anonymous volume over the scratch directory. Docker
// seeds that volume with the directory's ownership and mode from the image,
// so every track image must create the directory writable by the uid the
// sandbox runs as; an image that omits it leaves the reporter unable to
// write and every run degrades to the incomplete-output result.
const Path = "/scratch/report.json"

// SpecFilename is the file the engine stages next to the submission so the
// reporter can read the declared checks.
const SpecFilename = "testspec.json"

// Check is a single evaluated check as emitted by a reporter.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Points int    `json:"points"`
	Error  string `json:"error,omitempty"`
}

// Detail is a reporter-level error entry.
type Detail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Payload is the parsed reporter output. Extra carries any top-level fields
// outside the schema, preserved so the normalizer can fold them into the
// result metrics instead of dropping them.
type Payload struct {
	Checks  []Check
	Metrics map[string]any
	Errors  []Detail
	Extra   map[string]any
}

// Parse decodes reporter output strictly: anything that is not a complete,
// well-formed JSON object is an error. Partial output from a reporter killed
// mid-write therefore lands on the degraded path rather than being scored.
func Parse(data []byte) (*Payload, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("decode reporter output: %w", err)
	}

	payload := &Payload{}

	if raw, ok := top["checks"]; ok {
		if err := json.Unmarshal(raw, &payload.Checks); err != nil {
			return nil, fmt.Errorf("decode reporter checks: %w", err)
		}
	}
	if raw, ok := top["metrics"]; ok {
		if err := json.Unmarshal(raw, &payload.Metrics); err != nil {
			return nil, fmt.Errorf("decode reporter metrics: %w", err)
		}
	}
	if raw, ok := top["errors"]; ok {
		if err := json.Unmarshal(raw, &payload.Errors); err != nil {
			return nil, fmt.Errorf("decode reporter errors: %w", err)
		}
	}

	for key, raw := range top {
		switch key {
		case "checks", "metrics", "errors":
			continue
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("decode reporter field %q: %w", key, err)
		}
		if payload.Extra == nil {
			payload.Extra = make(map[string]any)
		}
		payload.Extra[key] = value
	}

	return payload, nil
}
