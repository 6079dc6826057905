package api

import (
	"context"
	"net/http"

	"github.com/LdDl/mot-fusion/internal/service"
	"github.com/LdDl/mot-fusion/mot"
)

// FusedDependencies defines read access to the fused scene
type FusedDependencies interface {
	FusedTracks(ctx context.Context) service.FusedState
	FusedTrack(ctx context.Context, trackID string) (mot.FusedTrack, error)
}

// FusedHandler serves fused state
type FusedHandler struct {
	deps FusedDependencies
}

// NewFusedHandler creates a new fused state handler
func NewFusedHandler(deps FusedDependencies) *FusedHandler {
	return &FusedHandler{deps: deps}
}

// HandleState handles GET /sensors/fused requests
func (h *FusedHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	state := h.deps.FusedTracks(r.Context())
	writeJSON(w, http.StatusOK, fusedStateResponse{
		Timestamp:     state.Timestamp,
		TrackCount:    len(state.Tracks),
		ActiveSensors: state.ActiveSensors,
		ThreatLevel:   state.ThreatLevel,
		Tracks:        newFusedTrackViews(state.Tracks),
	})
}

// HandleTrack handles GET /sensors/fused/track/{id} requests
func (h *FusedHandler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	track, err := h.deps.FusedTrack(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newFusedTrackView(track))
}
