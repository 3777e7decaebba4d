// Package repository defines the transcript store interface and errors.
package repository

import (
	"context"

	"github.com/meetscribe/captionflow/internal/domain/model"
)

// Store provides read/write access to accepted caption segments.
type Store interface {
	// Append persists a segment. A segment carrying the same message id
	// and device id as an earlier one replaces it in place, keeping the
	// original transcript position; segments without a message id are
	// always appended.
	Append(ctx context.Context, seg model.Segment) error

	// Segments returns a meeting's transcript in arrival order, one row
	// per message id holding the latest accepted version. A positive
	// limit caps the result from the end of the transcript; zero means
	// no cap. Returns ErrNotFound for an unknown meeting.
	Segments(ctx context.Context, meetingID string, limit int) ([]model.Segment, error)

	// Speakers returns the distinct speaker names of a meeting in order
	// of first appearance.
	Speakers(ctx context.Context, meetingID string) ([]string, error)

	// Count returns the number of segments held across all meetings.
	Count(ctx context.Context) int

	// Clear drops a meeting's transcript.
	Clear(ctx context.Context, meetingID string)
}
