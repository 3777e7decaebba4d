package service

import "errors"

// Sentinel kinds for ingestion errors.
var (
	ErrNoText    = errors.New("no caption text recovered")
	ErrQueueFull = errors.New("segment queue full")
)
