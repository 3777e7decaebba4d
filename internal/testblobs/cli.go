package testblobs

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/meetscribe/captionflow/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "blobgen_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the blob generator tool.
func ShowHelp() {
	os.Stdout.WriteString(`CaptionFlow Blob Generator
==========================

A concurrent tool for load-testing the caption ingestion pipeline with
synthetic capture blobs.

Usage:
  go run cmd/blobgen/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8080")
  -meeting string
        Meeting id to ingest into (default: random loadtest-<uuid>)
  -blobs int
        Number of capture blobs to generate and submit (default 10000)
  -speakers int
        Number of synthetic participants (default 8)
  -dupes float
        Fraction of blobs resubmitted verbatim (default 0.1)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -log string
        Log file for test output (default: blobgen_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Test with default settings
  go run cmd/blobgen/main.go

  # Test with custom parameters
  go run cmd/blobgen/main.go -blobs 50000 -workers 16 -url http://localhost:8080

  # Heavier duplicate pressure
  go run cmd/blobgen/main.go -blobs 10000 -dupes 0.4 -verbose
`)
}
