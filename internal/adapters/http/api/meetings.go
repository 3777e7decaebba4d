package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	service "github.com/meetscribe/captionflow/internal/app"
	"github.com/meetscribe/captionflow/internal/domain/model"
)

// MeetingsHandler handles every /meetings/{id}/... route.
type MeetingsHandler struct {
	deps Dependencies
}

// NewMeetingsHandler creates a new meetings handler.
func NewMeetingsHandler(deps Dependencies) *MeetingsHandler {
	return &MeetingsHandler{deps: deps}
}

// HandleMeetings dispatches /meetings/{id} and its sub-resources:
//
//	POST   /meetings/{id}/transcript/raw    ingest one capture blob
//	POST   /meetings/{id}/participants/sync upsert the participant mapping
//	GET    /meetings/{id}/participants      current mapping entries
//	GET    /meetings/{id}/segments?limit=N  transcript segments
//	GET    /meetings/{id}/speakers          distinct speaker names
//	DELETE /meetings/{id}                   drop all meeting state
func (h *MeetingsHandler) HandleMeetings(w http.ResponseWriter, r *http.Request) {
	const op = "api.meetings"

	path := strings.TrimPrefix(r.URL.Path, "/meetings/")
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	meetingID := parts[0]

	switch {
	case len(parts) == 3 && parts[1] == "transcript" && parts[2] == "raw":
		h.handleIngest(w, r, meetingID)
	case len(parts) == 3 && parts[1] == "participants" && parts[2] == "sync":
		h.handleSync(w, r, meetingID)
	case len(parts) == 2 && parts[1] == "participants":
		h.handleParticipants(w, r, meetingID)
	case len(parts) == 2 && parts[1] == "segments":
		h.handleSegments(w, r, meetingID)
	case len(parts) == 2 && parts[1] == "speakers":
		h.handleSpeakers(w, r, meetingID)
	case len(parts) == 1:
		h.handleDelete(w, r, meetingID)
	default:
		http.NotFound(w, r)
	}
}

// handleIngest handles POST /meetings/{id}/transcript/raw requests.
func (h *MeetingsHandler) handleIngest(w http.ResponseWriter, r *http.Request, meetingID string) {
	const op = "api.ingest_blob"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.RawData) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	up := service.Upload{
		MeetingID: meetingID,
		SessionID: req.SessionID,
		RawData:   req.RawData,
	}
	if req.Timestamp != "" {
		// A malformed client timestamp falls back to the server clock
		// rather than failing the blob.
		if ts, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
			up.Timestamp = ts
		}
	}

	res, err := h.deps.Ingest(r.Context(), up)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrQueueFull):
			writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		case errors.Is(err, service.ErrNoText):
			writeError(w, http.StatusUnprocessableEntity, "no_text", err)
		default:
			// Decoder failures are final for this blob; a retry will fail
			// identically, so the client gets a 422, not a 5xx.
			writeError(w, http.StatusUnprocessableEntity, "undecodable", err)
		}
		return
	}

	view := segmentView(res.Segment)
	if res.Duplicate {
		writeJSON(w, http.StatusOK, ingestResponse{Status: "duplicate", Duplicate: true, Segment: &view})
		return
	}
	writeJSON(w, http.StatusAccepted, ingestResponse{Status: "accepted", Duplicate: false, Segment: &view})
}

// handleSync handles POST /meetings/{id}/participants/sync requests.
func (h *MeetingsHandler) handleSync(w http.ResponseWriter, r *http.Request, meetingID string) {
	const op = "api.sync_participants"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(req.Participants) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	parts := make([]model.ParticipantSync, len(req.Participants))
	for i, p := range req.Participants {
		parts[i] = model.ParticipantSync{
			DeviceID: p.DeviceID,
			Name:     p.Name,
			Variants: p.Variants,
		}
	}

	applied := h.deps.SyncParticipants(r.Context(), meetingID, parts)
	writeJSON(w, http.StatusOK, syncResponse{Applied: applied})
}

// handleParticipants handles GET /meetings/{id}/participants requests.
func (h *MeetingsHandler) handleParticipants(w http.ResponseWriter, r *http.Request, meetingID string) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Participants(r.Context(), meetingID))
}

// handleSegments handles GET /meetings/{id}/segments?limit=N requests.
func (h *MeetingsHandler) handleSegments(w http.ResponseWriter, r *http.Request, meetingID string) {
	const op = "api.get_segments"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}

	segs, err := h.deps.Segments(r.Context(), meetingID, limit)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, segs)
}

// handleSpeakers handles GET /meetings/{id}/speakers requests.
func (h *MeetingsHandler) handleSpeakers(w http.ResponseWriter, r *http.Request, meetingID string) {
	const op = "api.get_speakers"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	speakers, err := h.deps.Speakers(r.Context(), meetingID)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, speakers)
}

// handleDelete handles DELETE /meetings/{id} requests.
func (h *MeetingsHandler) handleDelete(w http.ResponseWriter, r *http.Request, meetingID string) {
	if r.Method != http.MethodDelete {
		http.NotFound(w, r)
		return
	}
	h.deps.ClearMeeting(r.Context(), meetingID)
	w.WriteHeader(http.StatusNoContent)
}
