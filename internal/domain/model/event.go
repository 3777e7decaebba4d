// Package model contains domain models passed between layers.
package model

import "time"

// CaptionEvent is the structured result of decoding one capture blob.
// A successfully decoded event always has non-empty Text; DeviceID may be
// empty, in which case the orchestrator synthesizes a fallback id.
type CaptionEvent struct {
	DeviceID  string  // unstable device/participant identifier, possibly empty
	MessageID *uint32 // caption message id, nil when no known layout matched
	Version   uint32  // caption revision, defaults to 1
	Text      string  // caption text, printable, trimmed
	LangID    *uint8  // language id, nil when absent
}

// Segment is an accepted caption attributed to a speaker, ready for
// persistence.
type Segment struct {
	MeetingID string
	SessionID string
	DeviceID  string
	Speaker   string // resolved display name or "Unknown (xxxx)"
	Text      string
	MessageID *uint32
	Version   uint32
	LangID    *uint8
	Timestamp time.Time
}

// ParticipantSync is one mapping tuple pushed by the capture client.
type ParticipantSync struct {
	DeviceID string   // canonical device id
	Name     string   // display name
	Variants []string // alias strings known to refer to the same device
}
