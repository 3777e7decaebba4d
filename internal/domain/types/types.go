// Package types contains common types used across the application
package types

import "time"

// SegmentView is the read shape returned by segment queries.
type SegmentView struct {
	SessionID string    `json:"session_id"`
	DeviceID  string    `json:"device_id"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	MessageID *uint32   `json:"message_id,omitempty"`
	Version   uint32    `json:"version"`
	LangID    *uint8    `json:"lang_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ParticipantView is the read shape returned by mapping queries.
type ParticipantView struct {
	DeviceID  string    `json:"device_id"`
	Name      string    `json:"name"`
	Variants  []string  `json:"variants"`
	UpdatedAt time.Time `json:"updated_at"`
}
