package testblobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meetscribe/captionflow/pkg/logger"
)

// Run executes the complete blob ingestion test.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	if config.MeetingID == "" {
		config.MeetingID = "loadtest-" + uuid.New().String()
	}

	logger.Get().Info(ctx, "starting captionflow blob test",
		logger.String("baseURL", config.BaseURL),
		logger.String("meetingID", config.MeetingID),
		logger.Int("blobs", config.NumBlobs),
		logger.Int("speakers", config.Speakers),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Any("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Build the roster and upload the mapping
	participants := generateParticipants(config.Speakers)
	if err := syncParticipants(ctx, config, participants); err != nil {
		return fmt.Errorf("participant sync failed: %w", err)
	}

	// Step 3: Generate capture blobs
	blobs, err := generateBlobs(ctx, config, participants, stats)
	if err != nil {
		return fmt.Errorf("blob generation failed: %w", err)
	}

	// Step 4: Submit blobs concurrently
	if err := submitBlobs(ctx, config, blobs, stats); err != nil {
		return fmt.Errorf("blob submission failed: %w", err)
	}

	// Step 5: Wait for the queue to drain
	logger.Get().Info(ctx, "waiting for segments to be persisted")
	time.Sleep(DrainDelay)

	// Step 6: Retrieve the transcript and speaker list
	segments, err := fetchSegments(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("segment retrieval failed: %w", err)
	}

	speakers, err := fetchSpeakers(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("speaker retrieval failed: %w", err)
	}

	// Step 7: Verify results
	if err := verifyResults(ctx, config, blobs, participants, segments, speakers, stats); err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "test completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/healthz"

	resp, err := client.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	// Accept any 200 response as healthy (the service returns Prometheus metrics)
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// displayFinalStats prints the final test statistics.
func displayFinalStats(stats *Stats) {
	var acceptRate, blobsPerSecond float64

	if stats.BlobsSubmitted > 0 {
		acceptRate = float64(stats.BlobsAccepted) / float64(stats.BlobsSubmitted) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		blobsPerSecond = float64(stats.BlobsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("blobsGenerated", stats.BlobsGenerated),
		logger.Int("blobsSubmitted", stats.BlobsSubmitted),
		logger.Int("blobsAccepted", stats.BlobsAccepted),
		logger.Int("blobsDuplicate", stats.BlobsDuplicate),
		logger.Int("blobsFailed", stats.BlobsFailed),
		logger.Int("segmentsRetrieved", stats.SegmentsRetrieved),
		logger.Int("speakersRetrieved", stats.SpeakersRetrieved),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("blobsPerSecond", blobsPerSecond))
}
