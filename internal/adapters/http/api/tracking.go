package api

import (
	"context"
	"net/http"

	"github.com/LdDl/mot-fusion/internal/service"
	"github.com/LdDl/mot-fusion/mot"
)

// TrackingDependencies defines the independent tracker operations
type TrackingDependencies interface {
	UpdateTracking(ctx context.Context, detections []mot.Detection) service.TrackingSnapshot
	TrackingState(ctx context.Context) service.TrackingSnapshot
	TrackedObject(ctx context.Context, trackID string) (mot.TrackedObject, error)
	ResetTracking(ctx context.Context)
}

// TrackingHandler handles tracker requests
type TrackingHandler struct {
	deps TrackingDependencies
}

// NewTrackingHandler creates a new tracking handler
func NewTrackingHandler(deps TrackingDependencies) *TrackingHandler {
	return &TrackingHandler{deps: deps}
}

// HandleUpdate handles POST /tracking/update requests
func (h *TrackingHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req trackingUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	snapshot := h.deps.UpdateTracking(r.Context(), toDetections(req.Detections))
	writeJSON(w, http.StatusOK, trackingUpdateResponse{
		Timestamp:       snapshot.Timestamp,
		ConfirmedTracks: snapshot.ConfirmedCount,
		TotalTracks:     snapshot.TotalCount,
		Tracks:          newTrackedObjectViews(snapshot.Tracks),
	})
}

// HandleTracks handles GET /tracking/tracks requests
func (h *TrackingHandler) HandleTracks(w http.ResponseWriter, r *http.Request) {
	snapshot := h.deps.TrackingState(r.Context())
	writeJSON(w, http.StatusOK, trackingTracksResponse{
		ConfirmedCount:  snapshot.ConfirmedCount,
		TotalCount:      snapshot.TotalCount,
		ConfirmedTracks: newTrackedObjectViews(snapshot.Tracks),
	})
}

// HandleTrack handles GET /tracking/track/{id} requests
func (h *TrackingHandler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	obj, err := h.deps.TrackedObject(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newTrackedObjectView(obj))
}

// HandleReset handles POST /tracking/reset requests
func (h *TrackingHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.deps.ResetTracking(r.Context())
	writeJSON(w, http.StatusOK, resetResponse{Message: "Tracking reset", Tracks: 0})
}
