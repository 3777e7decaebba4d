// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	repository "github.com/meetscribe/captionflow/internal/adapters/repository"
	service "github.com/meetscribe/captionflow/internal/app"
	"github.com/meetscribe/captionflow/internal/domain/model"
	"github.com/meetscribe/captionflow/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Ingest runs one capture blob through the pipeline.
	Ingest(ctx context.Context, up service.Upload) (service.Result, error)

	// SyncParticipants upserts mapping tuples; returns how many applied.
	SyncParticipants(ctx context.Context, meetingID string, parts []model.ParticipantSync) int

	// Read operations expose transcript and mapping data.
	Participants(ctx context.Context, meetingID string) []types.ParticipantView
	Segments(ctx context.Context, meetingID string, limit int) ([]types.SegmentView, error)
	Speakers(ctx context.Context, meetingID string) ([]string, error)

	// ClearMeeting drops all state held for a meeting.
	ClearMeeting(ctx context.Context, meetingID string)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	meetingsHandler *MeetingsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		meetingsHandler: NewMeetingsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/meetings/", MetricsMiddleware(s.meetingsHandler.HandleMeetings, "meetings"))
}

// ingestRequest mirrors the OpenAPI schema for POST
// /meetings/{id}/transcript/raw. The path id is the meeting key;
// SessionID and Timestamp are the client's own submission metadata and
// fall back to the meeting id and server clock when absent.
type ingestRequest struct {
	RawData   string `json:"raw_data"`
	SessionID string `json:"session_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// syncRequest mirrors the OpenAPI schema for POST
// /meetings/{id}/participants/sync.
type syncRequest struct {
	Participants []participantTuple `json:"participants"`
}

type participantTuple struct {
	DeviceID string   `json:"device_id"`
	Name     string   `json:"name"`
	Variants []string `json:"variants"`
}

// ingestResponse acknowledges one ingested blob.
type ingestResponse struct {
	Status    string             `json:"status"`
	Duplicate bool               `json:"duplicate"`
	Segment   *types.SegmentView `json:"segment,omitempty"`
}

type syncResponse struct {
	Applied int `json:"applied"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// segmentView converts a persisted-shape segment into the read shape.
func segmentView(seg model.Segment) types.SegmentView {
	return types.SegmentView{
		SessionID: seg.SessionID,
		DeviceID:  seg.DeviceID,
		Speaker:   seg.Speaker,
		Text:      seg.Text,
		MessageID: seg.MessageID,
		Version:   seg.Version,
		LangID:    seg.LangID,
		Timestamp: seg.Timestamp,
	}
}

// isNotFound translates upstream not-found errors to 404.
func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
