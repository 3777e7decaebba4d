package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/meetscribe/captionflow/internal/testblobs"
)

// Default configuration constants.
const (
	defaultNumBlobs    = 10000
	defaultSpeakers    = 8
	defaultDupeRate    = 0.1
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:8080", "Base URL of the service")
		meetingID = flag.String("meeting", "", "Meeting id to ingest into (default: random)")
		numBlobs  = flag.Int("blobs", defaultNumBlobs, "Number of capture blobs to generate and submit")
		speakers  = flag.Int("speakers", defaultSpeakers, "Number of synthetic participants")
		dupeRate  = flag.Float64("dupes", defaultDupeRate, "Fraction of blobs resubmitted verbatim")
		workers   = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFile   = flag.String("log", "", "Log file for test output (default: blobgen_log_TIMESTAMP.log)")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testblobs.ShowHelp()
		return
	}

	// Setup logging
	if err := testblobs.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	// Create test configuration
	config := &testblobs.Config{
		BaseURL:   *baseURL,
		MeetingID: *meetingID,
		NumBlobs:  *numBlobs,
		Speakers:  *speakers,
		DupeRate:  *dupeRate,
		Workers:   *workers,
		Timeout:   *timeout,
		LogFile:   *logFile,
		Verbose:   *verbose,
	}

	// Run the test
	if err := testblobs.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Test failed: " + err.Error() + "\n")
		return
	}
}
