package testblobs

import "time"

// Config holds configuration for the blob load test
type Config struct {
	BaseURL   string        // Base URL of the service
	MeetingID string        // Meeting to ingest into (random when empty)
	NumBlobs  int           // Number of capture blobs to generate
	Speakers  int           // Number of synthetic participants
	DupeRate  float64       // Fraction of blobs resubmitted verbatim
	Workers   int           // Number of concurrent workers
	Timeout   time.Duration // HTTP request timeout
	LogFile   string        // Log file for test output
	Verbose   bool          // Enable verbose logging
}

// Participant is one synthetic meeting member.
type Participant struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
}

// Blob is one generated capture payload plus the facts used to build it.
type Blob struct {
	Payload   string `json:"payload"`
	DeviceID  string `json:"device_id"`
	Text      string `json:"text"`
	MessageID uint32 `json:"message_id"`
	Version   uint32 `json:"version"`
	Duplicate bool   `json:"duplicate"`
}

// AckResponse represents the response from blob submission
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// SegmentView mirrors the segment shape returned by the service.
type SegmentView struct {
	DeviceID  string  `json:"device_id"`
	Speaker   string  `json:"speaker"`
	Text      string  `json:"text"`
	MessageID *uint32 `json:"message_id"`
	Version   uint32  `json:"version"`
}

// Stats holds test statistics
type Stats struct {
	BlobsGenerated    int
	BlobsSubmitted    int
	BlobsAccepted     int
	BlobsDuplicate    int
	BlobsFailed       int
	SegmentsRetrieved int
	SpeakersRetrieved int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
