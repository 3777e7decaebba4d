package testblobs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body
func (c *HTTPClient) Post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// readResponseBody reads and closes the response body
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// syncParticipants uploads the roster so ingested blobs resolve to names.
func syncParticipants(ctx context.Context, config *Config, participants []Participant) error {
	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/meetings/" + config.MeetingID + "/participants/sync"

	type tuple struct {
		DeviceID string `json:"device_id"`
		Name     string `json:"name"`
	}
	tuples := make([]tuple, len(participants))
	for i, p := range participants {
		tuples[i] = tuple{DeviceID: p.DeviceID, Name: p.Name}
	}

	resp, err := client.Post(ctx, url, map[string]interface{}{"participants": tuples})
	if err != nil {
		return fmt.Errorf("failed to sync participants: %w", err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read sync response: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("participant sync failed with status %d: %s", resp.StatusCode, string(body))
	}

	log.Printf("👥 Synced %d participants", len(participants))
	return nil
}

// submitBlobs submits blobs concurrently using worker pools
func submitBlobs(ctx context.Context, config *Config, blobs []Blob, stats *Stats) error {
	log.Printf("📤 Submitting %d blobs with %d workers...", len(blobs), config.Workers)

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/meetings/" + config.MeetingID + "/transcript/raw"

	// Counters for statistics
	var (
		accepted  int64
		duplicate int64
		failed    int64
		submitted int64
	)

	// Progress reporting
	var lastReport time.Time
	reportInterval := 1 * time.Second

	// Create worker pool
	blobChan := make(chan Blob, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for blob := range blobChan {
				select {
				case <-ctx.Done():
					return
				default:
					result := submitSingleBlob(ctx, client, url, blob)

					atomic.AddInt64(&submitted, 1)
					switch result {
					case "accepted":
						atomic.AddInt64(&accepted, 1)
					case "duplicate":
						atomic.AddInt64(&duplicate, 1)
					case "failed":
						atomic.AddInt64(&failed, 1)
					}

					if time.Since(lastReport) >= reportInterval {
						lastReport = time.Now()
						total := atomic.LoadInt64(&submitted)
						acc := atomic.LoadInt64(&accepted)
						dup := atomic.LoadInt64(&duplicate)
						fail := atomic.LoadInt64(&failed)

						if config.Verbose {
							log.Printf("📊 Progress: %d/%d submitted (accepted: %d, duplicate: %d, failed: %d)",
								total, len(blobs), acc, dup, fail)
						} else {
							fmt.Printf("\r📤 Submitted: %d/%d (accepted: %d, duplicate: %d, failed: %d)",
								total, len(blobs), acc, dup, fail)
						}
					}
				}
			}
		}()
	}

	// Send blobs to workers
	go func() {
		defer close(blobChan)
		for _, blob := range blobs {
			select {
			case <-ctx.Done():
				return
			case blobChan <- blob:
			}
		}
	}()

	// Wait for all workers to complete
	wg.Wait()

	if !config.Verbose {
		fmt.Println() // New line after progress indicator
	}

	stats.BlobsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.BlobsAccepted = int(atomic.LoadInt64(&accepted))
	stats.BlobsDuplicate = int(atomic.LoadInt64(&duplicate))
	stats.BlobsFailed = int(atomic.LoadInt64(&failed))

	log.Printf(`✅ Blob submission completed:
   Accepted: %d
   Duplicate: %d
   Failed: %d
`, stats.BlobsAccepted, stats.BlobsDuplicate, stats.BlobsFailed)

	return nil
}

// submitSingleBlob submits a single blob and returns the result
func submitSingleBlob(ctx context.Context, client *HTTPClient, url string, blob Blob) string {
	resp, err := client.Post(ctx, url, map[string]string{"raw_data": blob.Payload})
	if err != nil {
		return "failed"
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return "failed"
	}

	switch resp.StatusCode {
	case StatusAccepted:
		return "accepted"
	case StatusOK:
		var ack AckResponse
		if err := json.Unmarshal(body, &ack); err == nil && ack.Duplicate {
			return "duplicate"
		}
		return "duplicate"
	default:
		return "failed"
	}
}

// fetchSegments retrieves the persisted transcript for the meeting.
func fetchSegments(ctx context.Context, config *Config, stats *Stats) ([]SegmentView, error) {
	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/meetings/" + config.MeetingID + "/segments"

	resp, err := client.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch segments: %w", err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read segments response: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return nil, fmt.Errorf("segment fetch failed with status %d", resp.StatusCode)
	}

	var segments []SegmentView
	if err := json.Unmarshal(body, &segments); err != nil {
		return nil, fmt.Errorf("failed to parse segments: %w", err)
	}

	stats.SegmentsRetrieved = len(segments)
	return segments, nil
}

// fetchSpeakers retrieves the distinct speaker list for the meeting.
func fetchSpeakers(ctx context.Context, config *Config, stats *Stats) ([]string, error) {
	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/meetings/" + config.MeetingID + "/speakers"

	resp, err := client.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch speakers: %w", err)
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read speakers response: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return nil, fmt.Errorf("speaker fetch failed with status %d", resp.StatusCode)
	}

	var speakers []string
	if err := json.Unmarshal(body, &speakers); err != nil {
		return nil, fmt.Errorf("failed to parse speakers: %w", err)
	}

	stats.SpeakersRetrieved = len(speakers)
	return speakers, nil
}
