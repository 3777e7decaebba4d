package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/meetscribe/captionflow/internal/domain/identity"
	"github.com/meetscribe/captionflow/internal/domain/model"
	"github.com/meetscribe/captionflow/internal/domain/wire"
	"github.com/meetscribe/captionflow/pkg/logger"
	"github.com/meetscribe/captionflow/pkg/metrics"
)

const (
	// maxDeviceIDBytes caps a cleaned device id; anything longer is
	// caption text that bled into the identifier field.
	maxDeviceIDBytes = 500

	// maxDeviceTrailing is how many characters may legitimately follow a
	// /devices/<token> suffix before the tail is treated as bleed.
	maxDeviceTrailing = 10

	// maxSpeakerLen caps a resolved display name.
	maxSpeakerLen = 200

	// fallbackSessionPrefixLen is how much of the session id a synthetic
	// device id reveals.
	fallbackSessionPrefixLen = 8

	deviceIDRunes = `/\-_@.`
)

// Upload is one raw capture submission as received from the client.
type Upload struct {
	MeetingID string
	SessionID string    // client-reported session; empty falls back to MeetingID
	RawData   string
	Timestamp time.Time // client capture time; zero falls back to the server clock
}

// Result is the outcome of ingesting one capture blob.
type Result struct {
	Segment   model.Segment
	Duplicate bool
}

// Ingest runs one capture blob through the full pipeline: decode,
// device-id normalization, speaker resolution, duplicate suppression and
// asynchronous persistence. Decode errors are final for that blob; the
// capture client will fail identically on retry.
func (s *Service) Ingest(ctx context.Context, up Upload) (Result, error) {
	start := time.Now()
	meetingID := up.MeetingID

	event, err := wire.Decode(up.RawData)
	if err != nil {
		metrics.RecordIngestRejected("decode")
		s.logger.Warn(ctx, "blob rejected by decoder",
			logger.String("meeting_id", meetingID),
			logger.Error(err),
		)
		return Result{}, fmt.Errorf("decode: %w", err)
	}
	metrics.RecordDecodeDuration(float64(time.Since(start).Microseconds()) / 1000.0)

	if event.Text == "" {
		metrics.RecordIngestRejected("no_text")
		return Result{}, ErrNoText
	}

	sessionID := up.SessionID
	if sessionID == "" {
		sessionID = meetingID
	}
	ts := up.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()

	deviceID := normalizeDeviceID(event.DeviceID)
	if deviceID == "" {
		// The synthetic id must be deterministic per submission: an
		// identical retransmission (same session, same client timestamp)
		// has to land on the same id so the dedup cache can suppress it.
		deviceID = fallbackDeviceID(sessionID, event.MessageID, ts)
		s.logger.Debug(ctx, "synthesized fallback device id",
			logger.String("meeting_id", meetingID),
			logger.String("device_id", deviceID),
		)
	}

	speaker := s.resolveSpeaker(ctx, meetingID, deviceID)

	seg := model.Segment{
		MeetingID: meetingID,
		SessionID: sessionID,
		DeviceID:  deviceID,
		Speaker:   speaker,
		Text:      event.Text,
		MessageID: event.MessageID,
		Version:   event.Version,
		LangID:    event.LangID,
		Timestamp: ts,
	}

	if s.cache.IsDuplicate(ctx, meetingID, seg.MessageID, seg.DeviceID, seg.Text, seg.Version) {
		metrics.RecordEventDuplicate()
		s.logger.Debug(ctx, "duplicate caption suppressed",
			logger.String("meeting_id", meetingID),
			logger.String("device_id", deviceID),
		)
		return Result{Segment: seg, Duplicate: true}, nil
	}

	if !s.queue.Enqueue(ctx, seg) {
		metrics.RecordIngestRejected("backpressure")
		return Result{}, ErrQueueFull
	}

	return Result{Segment: seg}, nil
}

// resolveSpeaker maps a device id to a display name, falling back to a
// generated Unknown name when the mapping has no answer.
func (s *Service) resolveSpeaker(ctx context.Context, meetingID, deviceID string) string {
	name, ok := s.resolver.Resolve(ctx, meetingID, deviceID)
	if ok {
		metrics.RecordMappingHit()
	} else {
		metrics.RecordMappingMiss()
		metrics.RecordFallbackName()
		name = identity.UnknownName(deviceID)
	}
	if runes := []rune(name); len(runes) > maxSpeakerLen {
		name = string(runes[:maxSpeakerLen])
	}
	return name
}

// normalizeDeviceID cleans a decoded device id before it is used as a
// cache or mapping key: control characters stripped from both ends, the
// body filtered to printable and path characters, a hard byte cap, and
// any tail bleeding past a /devices/<token> boundary cut off.
func normalizeDeviceID(raw string) string {
	cleaned := strings.TrimFunc(raw, func(r rune) bool { return r < 0x20 || r == 0x7f })

	var b strings.Builder
	b.Grow(len(cleaned))
	for _, r := range cleaned {
		if unicode.IsPrint(r) || strings.ContainsRune(deviceIDRunes, r) {
			b.WriteRune(r)
		}
	}
	cleaned = b.String()

	if len(cleaned) > maxDeviceIDBytes {
		cleaned = cleaned[:maxDeviceIDBytes]
	}

	return trimDeviceBleed(cleaned)
}

// trimDeviceBleed truncates an id back to its /devices/<digits> boundary
// when more than a few characters follow the numeric token.
func trimDeviceBleed(id string) string {
	if !strings.Contains(id, "/") {
		return id
	}
	idx := strings.LastIndex(id, "/devices/")
	if idx < 0 {
		return id
	}

	tokenStart := idx + len("/devices/")
	tokenEnd := tokenStart
	for tokenEnd < len(id) && id[tokenEnd] >= '0' && id[tokenEnd] <= '9' {
		tokenEnd++
	}
	if tokenEnd > tokenStart && len(id)-tokenEnd > maxDeviceTrailing {
		return id[:tokenEnd]
	}
	return id
}

// fallbackDeviceID builds a deterministic synthetic device id for an
// event whose real id could not be recovered.
func fallbackDeviceID(sessionID string, messageID *uint32, ts time.Time) string {
	if messageID != nil {
		return "fallback_msg_" + strconv.FormatUint(uint64(*messageID), 10)
	}

	prefix := sessionID
	if len(prefix) > fallbackSessionPrefixLen {
		prefix = prefix[:fallbackSessionPrefixLen]
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	_, _ = h.Write([]byte(ts.Format(time.RFC3339)))
	return "fallback_" + prefix + "_" + strconv.FormatUint(uint64(h.Sum32()), 16)
}
