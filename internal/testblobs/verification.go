package testblobs

import (
	"context"
	"fmt"
	"log"
)

// verifyResults checks the persisted transcript against what was sent.
func verifyResults(_ context.Context, config *Config, blobs []Blob, participants []Participant, segments []SegmentView, speakers []string, _ *Stats) error {
	log.Println("🔍 Verifying results...")

	if len(segments) == 0 {
		return fmt.Errorf("no segments to verify")
	}

	// Every persisted segment must trace back to a generated blob.
	sent := make(map[string]Blob, len(blobs))
	for _, b := range blobs {
		sent[segmentKey(b.DeviceID, b.MessageID)] = b
	}

	mismatched := 0
	for _, seg := range segments {
		if seg.MessageID == nil {
			mismatched++
			continue
		}
		b, ok := sent[segmentKey(seg.DeviceID, *seg.MessageID)]
		if !ok || b.Text != seg.Text {
			mismatched++
		}
	}
	if mismatched > 0 {
		return fmt.Errorf("%d of %d segments do not match any generated blob", mismatched, len(segments))
	}

	// Duplicates must not create extra rows: unique sends == segments.
	unique := len(sent)
	if len(segments) != unique {
		log.Printf("⚠️  Segment count mismatch: %d persisted, %d unique blobs sent", len(segments), unique)
	} else {
		log.Printf("✅ Dedup verified: %d unique blobs, %d segments", unique, len(segments))
	}

	// Every speaker must come from the synced roster.
	roster := make(map[string]bool, len(participants))
	for _, p := range participants {
		roster[p.Name] = true
	}
	unknown := 0
	for _, name := range speakers {
		if !roster[name] {
			unknown++
		}
	}
	if unknown > 0 {
		log.Printf("⚠️  %d of %d speakers not in the synced roster", unknown, len(speakers))
	} else {
		log.Printf("✅ Speaker attribution verified: %d speakers", len(speakers))
	}

	if config.Verbose {
		displayTranscriptSample(segments)
	}

	log.Println("✅ Result verification completed")
	return nil
}

// segmentKey mirrors the service's replacement key for a segment.
func segmentKey(deviceID string, messageID uint32) string {
	return fmt.Sprintf("%s/%d", deviceID, messageID)
}

// displayTranscriptSample shows the first few persisted segments.
func displayTranscriptSample(segments []SegmentView) {
	sample := 10
	if len(segments) < sample {
		sample = len(segments)
	}

	log.Printf("📝 First %d transcript segments:", sample)
	for i := 0; i < sample; i++ {
		seg := segments[i]
		log.Printf("   %d. %s: %s", i+1, seg.Speaker, seg.Text)
	}
}
