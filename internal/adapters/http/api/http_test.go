package api_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	convey "github.com/smartystreets/goconvey/convey"

	"github.com/meetscribe/captionflow/internal/adapters/http/api"
	"github.com/meetscribe/captionflow/internal/adapters/repository"
	service "github.com/meetscribe/captionflow/internal/app"
	"github.com/meetscribe/captionflow/internal/domain/model"
	"github.com/meetscribe/captionflow/internal/domain/types"
	"github.com/meetscribe/captionflow/internal/domain/wire"
)

// mockDeps implements api.Dependencies with canned behavior per meeting id.
type mockDeps struct {
	ingestErr    error
	duplicate    bool
	uploads      []service.Upload
	synced       []model.ParticipantSync
	participants []types.ParticipantView
	segments     []types.SegmentView
	speakers     []string
	missing      bool
	cleared      []string
}

func (m *mockDeps) Ingest(_ context.Context, up service.Upload) (service.Result, error) {
	m.uploads = append(m.uploads, up)
	if m.ingestErr != nil {
		return service.Result{}, m.ingestErr
	}
	msgID := uint32(7)
	seg := model.Segment{
		MeetingID: up.MeetingID,
		SessionID: up.MeetingID,
		DeviceID:  "spaces/AbCdEfGh/devices/1234567",
		Speaker:   "Alice",
		Text:      "hello there",
		MessageID: &msgID,
		Version:   1,
		Timestamp: time.Now().UTC(),
	}
	return service.Result{Segment: seg, Duplicate: m.duplicate}, nil
}

func (m *mockDeps) SyncParticipants(_ context.Context, _ string, parts []model.ParticipantSync) int {
	m.synced = append(m.synced, parts...)
	applied := 0
	for _, p := range parts {
		if p.DeviceID != "" && p.Name != "" {
			applied++
		}
	}
	return applied
}

func (m *mockDeps) Participants(_ context.Context, _ string) []types.ParticipantView {
	return m.participants
}

func (m *mockDeps) Segments(_ context.Context, _ string, _ int) ([]types.SegmentView, error) {
	if m.missing {
		return nil, fmt.Errorf("segments: %w", repository.ErrNotFound)
	}
	return m.segments, nil
}

func (m *mockDeps) Speakers(_ context.Context, _ string) ([]string, error) {
	if m.missing {
		return nil, fmt.Errorf("speakers: %w", repository.ErrNotFound)
	}
	return m.speakers, nil
}

func (m *mockDeps) ClearMeeting(_ context.Context, meetingID string) {
	m.cleared = append(m.cleared, meetingID)
}

// mockStats implements api.StatsProvider.
type mockStats struct{}

func (mockStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"queue_length": 0, "total_segments": 3}
}

func newTestMux(deps *mockDeps) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, mockStats{}).Register(context.Background(), mux)
	return mux
}

func doJSON(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestIngestEndpoint(t *testing.T) {
	convey.Convey("Given the transcript ingest endpoint", t, func() {
		convey.Convey("When posting a fresh blob", func() {
			deps := &mockDeps{}
			rec := doJSON(newTestMux(deps), http.MethodPost,
				"/meetings/m1/transcript/raw", `{"raw_data":"aGVsbG8="}`)

			convey.Convey("Then the segment is accepted", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusAccepted)
				var resp struct {
					Status    string             `json:"status"`
					Duplicate bool               `json:"duplicate"`
					Segment   *types.SegmentView `json:"segment"`
				}
				convey.So(json.Unmarshal(rec.Body.Bytes(), &resp), convey.ShouldBeNil)
				convey.So(resp.Status, convey.ShouldEqual, "accepted")
				convey.So(resp.Duplicate, convey.ShouldBeFalse)
				convey.So(resp.Segment, convey.ShouldNotBeNil)
				convey.So(resp.Segment.Speaker, convey.ShouldEqual, "Alice")
			})
		})

		convey.Convey("When posting a blob the pipeline has already seen", func() {
			deps := &mockDeps{duplicate: true}
			rec := doJSON(newTestMux(deps), http.MethodPost,
				"/meetings/m1/transcript/raw", `{"raw_data":"aGVsbG8="}`)

			convey.Convey("Then a duplicate acknowledgment comes back with 200", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, `"duplicate":true`)
			})
		})

		convey.Convey("When the blob cannot be decoded", func() {
			deps := &mockDeps{ingestErr: fmt.Errorf("decode: %w", wire.ErrBase64)}
			rec := doJSON(newTestMux(deps), http.MethodPost,
				"/meetings/m1/transcript/raw", `{"raw_data":"!!!"}`)

			convey.Convey("Then the request is rejected as unprocessable", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusUnprocessableEntity)
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, "undecodable")
			})
		})

		convey.Convey("When the blob decodes but carries no text", func() {
			deps := &mockDeps{ingestErr: service.ErrNoText}
			rec := doJSON(newTestMux(deps), http.MethodPost,
				"/meetings/m1/transcript/raw", `{"raw_data":"aGVsbG8="}`)

			convey.Convey("Then the no_text code is returned", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusUnprocessableEntity)
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, "no_text")
			})
		})

		convey.Convey("When the pipeline is saturated", func() {
			deps := &mockDeps{ingestErr: service.ErrQueueFull}
			rec := doJSON(newTestMux(deps), http.MethodPost,
				"/meetings/m1/transcript/raw", `{"raw_data":"aGVsbG8="}`)

			convey.Convey("Then the caller is told to back off", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusTooManyRequests)
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, "backpressure")
			})
		})

		convey.Convey("When the client reports a session id and capture time", func() {
			deps := &mockDeps{}
			rec := doJSON(newTestMux(deps), http.MethodPost,
				"/meetings/m1/transcript/raw",
				`{"raw_data":"aGVsbG8=","session_id":"sess-9","timestamp":"2026-08-24T10:00:00Z"}`)

			convey.Convey("Then both reach the pipeline", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusAccepted)
				convey.So(deps.uploads, convey.ShouldHaveLength, 1)
				convey.So(deps.uploads[0].MeetingID, convey.ShouldEqual, "m1")
				convey.So(deps.uploads[0].SessionID, convey.ShouldEqual, "sess-9")
				want, _ := time.Parse(time.RFC3339, "2026-08-24T10:00:00Z")
				convey.So(deps.uploads[0].Timestamp.Equal(want), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the client timestamp is malformed", func() {
			deps := &mockDeps{}
			rec := doJSON(newTestMux(deps), http.MethodPost,
				"/meetings/m1/transcript/raw",
				`{"raw_data":"aGVsbG8=","timestamp":"yesterday-ish"}`)

			convey.Convey("Then the blob is still accepted with a zero timestamp", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusAccepted)
				convey.So(deps.uploads, convey.ShouldHaveLength, 1)
				convey.So(deps.uploads[0].Timestamp.IsZero(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the body is not valid JSON", func() {
			rec := doJSON(newTestMux(&mockDeps{}), http.MethodPost,
				"/meetings/m1/transcript/raw", `{not json`)

			convey.Convey("Then a 400 is returned", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusBadRequest)
			})
		})

		convey.Convey("When the blob field is empty", func() {
			rec := doJSON(newTestMux(&mockDeps{}), http.MethodPost,
				"/meetings/m1/transcript/raw", `{"raw_data":"   "}`)

			convey.Convey("Then a 400 is returned", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusBadRequest)
			})
		})

		convey.Convey("When using the wrong method", func() {
			rec := doJSON(newTestMux(&mockDeps{}), http.MethodGet,
				"/meetings/m1/transcript/raw", "")

			convey.Convey("Then the route does not exist", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestParticipantsEndpoints(t *testing.T) {
	convey.Convey("Given the participants endpoints", t, func() {
		convey.Convey("When syncing a participant roster", func() {
			deps := &mockDeps{}
			body := `{"participants":[` +
				`{"device_id":"spaces/AbCdEfGh/devices/1234567","name":"Alice","variants":["1234567"]},` +
				`{"device_id":"","name":"Ghost"}]}`
			rec := doJSON(newTestMux(deps), http.MethodPost, "/meetings/m1/participants/sync", body)

			convey.Convey("Then only complete tuples are counted", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, `"applied":1`)
				convey.So(deps.synced, convey.ShouldHaveLength, 2)
			})
		})

		convey.Convey("When syncing an empty roster", func() {
			rec := doJSON(newTestMux(&mockDeps{}), http.MethodPost,
				"/meetings/m1/participants/sync", `{"participants":[]}`)

			convey.Convey("Then a 400 is returned", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusBadRequest)
			})
		})

		convey.Convey("When reading the roster back", func() {
			deps := &mockDeps{participants: []types.ParticipantView{
				{DeviceID: "spaces/AbCdEfGh/devices/1234567", Name: "Alice", Variants: []string{"1234567"}},
			}}
			rec := doJSON(newTestMux(deps), http.MethodGet, "/meetings/m1/participants", "")

			convey.Convey("Then the mapping entries come back as JSON", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				var views []types.ParticipantView
				convey.So(json.Unmarshal(rec.Body.Bytes(), &views), convey.ShouldBeNil)
				convey.So(views, convey.ShouldHaveLength, 1)
				convey.So(views[0].Name, convey.ShouldEqual, "Alice")
			})
		})
	})
}

func TestSegmentsEndpoint(t *testing.T) {
	convey.Convey("Given the segments endpoint", t, func() {
		msgID := uint32(3)
		deps := &mockDeps{segments: []types.SegmentView{
			{SessionID: "m1", DeviceID: "d1", Speaker: "Alice", Text: "hi", MessageID: &msgID, Version: 2},
		}}

		convey.Convey("When fetching segments for a known meeting", func() {
			rec := doJSON(newTestMux(deps), http.MethodGet, "/meetings/m1/segments", "")

			convey.Convey("Then the transcript comes back", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				var views []types.SegmentView
				convey.So(json.Unmarshal(rec.Body.Bytes(), &views), convey.ShouldBeNil)
				convey.So(views, convey.ShouldHaveLength, 1)
				convey.So(views[0].Text, convey.ShouldEqual, "hi")
			})
		})

		convey.Convey("When passing a limit", func() {
			rec := doJSON(newTestMux(deps), http.MethodGet, "/meetings/m1/segments?limit=5", "")

			convey.Convey("Then the request succeeds", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			})
		})

		convey.Convey("When passing a non-numeric limit", func() {
			rec := doJSON(newTestMux(deps), http.MethodGet, "/meetings/m1/segments?limit=abc", "")

			convey.Convey("Then a 400 is returned", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusBadRequest)
			})
		})

		convey.Convey("When the meeting is unknown", func() {
			rec := doJSON(newTestMux(&mockDeps{missing: true}), http.MethodGet, "/meetings/nope/segments", "")

			convey.Convey("Then a 404 is returned", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestSpeakersEndpoint(t *testing.T) {
	convey.Convey("Given the speakers endpoint", t, func() {
		convey.Convey("When fetching speakers for a known meeting", func() {
			deps := &mockDeps{speakers: []string{"Alice", "Unknown (4567)"}}
			rec := doJSON(newTestMux(deps), http.MethodGet, "/meetings/m1/speakers", "")

			convey.Convey("Then distinct names come back in order", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				var names []string
				convey.So(json.Unmarshal(rec.Body.Bytes(), &names), convey.ShouldBeNil)
				convey.So(names, convey.ShouldResemble, []string{"Alice", "Unknown (4567)"})
			})
		})

		convey.Convey("When the meeting is unknown", func() {
			rec := doJSON(newTestMux(&mockDeps{missing: true}), http.MethodGet, "/meetings/nope/speakers", "")

			convey.Convey("Then a 404 is returned", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestDeleteMeeting(t *testing.T) {
	convey.Convey("Given the meeting delete endpoint", t, func() {
		convey.Convey("When deleting a meeting", func() {
			deps := &mockDeps{}
			rec := doJSON(newTestMux(deps), http.MethodDelete, "/meetings/m1", "")

			convey.Convey("Then all state is dropped", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusNoContent)
				convey.So(deps.cleared, convey.ShouldResemble, []string{"m1"})
			})
		})
	})
}

func TestStatsEndpoint(t *testing.T) {
	convey.Convey("Given the stats endpoint", t, func() {
		convey.Convey("When requesting stats", func() {
			rec := doJSON(newTestMux(&mockDeps{}), http.MethodGet, "/stats", "")

			convey.Convey("Then the provider's snapshot is returned", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, "total_segments")
			})
		})
	})
}

func TestHealthEndpoint(t *testing.T) {
	convey.Convey("Given the health endpoint", t, func() {
		convey.Convey("When requesting healthz", func() {
			rec := doJSON(newTestMux(&mockDeps{}), http.MethodGet, "/healthz", "")

			convey.Convey("Then the metrics exposition is served", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, "captionflow")
			})
		})
	})
}
