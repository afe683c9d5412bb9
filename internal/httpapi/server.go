// Package httpapi exposes the engine's read-only status surface for
// operational dashboards.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"trialrun/internal/app/dispatch"
)

// StatusSource provides capacity and image snapshots.
type StatusSource interface {
	Status() dispatch.Status
}

// Handler builds the HTTP routes. All endpoints are read-only.
func Handler(source StatusSource, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, log, statusResponse(source.Status()))
	})

	return r
}

type statusPayload struct {
	CapacityTotal int               `json:"capacity_total"`
	CapacityInUse int               `json:"capacity_in_use"`
	Images        []imagePayload    `json:"images"`
	InFlight      []inFlightPayload `json:"in_flight"`
}

type imagePayload struct {
	Track  string `json:"track"`
	Ref    string `json:"ref"`
	Pulled bool   `json:"pulled"`
}

type inFlightPayload struct {
	ID          string    `json:"id"`
	Track       string    `json:"track"`
	ChallengeID string    `json:"challenge_id,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	Deadline    time.Time `json:"deadline"`
	AgeMs       int64     `json:"age_ms"`
}

func statusResponse(status dispatch.Status) statusPayload {
	payload := statusPayload{
		CapacityTotal: status.CapacityTotal,
		CapacityInUse: status.CapacityInUse,
		Images:        make([]imagePayload, 0, len(status.Images)),
		InFlight:      make([]inFlightPayload, 0, len(status.InFlight)),
	}

	for _, img := range status.Images {
		payload.Images = append(payload.Images, imagePayload{
			Track:  string(img.Track),
			Ref:    img.Ref,
			Pulled: img.Pulled,
		})
	}

	now := time.Now()
	for _, exec := range status.InFlight {
		payload.InFlight = append(payload.InFlight, inFlightPayload{
			ID:          exec.ID,
			Track:       string(exec.Track),
			ChallengeID: exec.ChallengeID,
			StartedAt:   exec.StartedAt,
			Deadline:    exec.Deadline,
			AgeMs:       now.Sub(exec.StartedAt).Milliseconds(),
		})
	}

	return payload
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("encode status response", "error", err)
	}
}
