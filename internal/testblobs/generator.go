package testblobs

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/meetscribe/captionflow/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	messageIDSpread    = 4
	spaceSegmentLen    = 8
	deviceDigits       = 7
)

// phrases is the caption text pool the generator draws from.
var phrases = []string{
	"Let's get started, can everyone hear me?",
	"I think we should revisit the timeline.",
	"Can you share your screen please?",
	"That sounds good to me.",
	"Let me pull up the numbers.",
	"Sorry, I was on mute.",
	"We can take that offline.",
	"Does anyone have questions so far?",
	"I'll send a follow-up after the call.",
	"Let's move on to the next item.",
}

// getRandomInt returns a random int in [0, n) using crypto/rand.
func getRandomInt(n int64) int64 {
	v, _ := rand.Int(rand.Reader, big.NewInt(n))
	return v.Int64()
}

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// generateParticipants creates the synthetic roster. Device ids follow
// the shape real capture clients report: spaces/<token>/devices/<digits>.
func generateParticipants(count int) []Participant {
	participants := make([]Participant, count)
	for i := range participants {
		token := strings.ReplaceAll(uuid.New().String(), "-", "")[:spaceSegmentLen]
		digits := make([]byte, deviceDigits)
		for j := range digits {
			digits[j] = byte('0' + getRandomInt(10))
		}
		participants[i] = Participant{
			DeviceID: "spaces/" + token + "/devices/" + string(digits),
			Name:     "Speaker " + uuid.New().String()[:spaceSegmentLen],
		}
	}
	return participants
}

// generateBlobs creates the requested number of capture blobs across the
// roster, injecting verbatim duplicates at the configured rate.
func generateBlobs(ctx context.Context, config *Config, participants []Participant, stats *Stats) ([]Blob, error) {
	logger.Get().Info(ctx, "generating capture blobs",
		logger.Int("numBlobs", config.NumBlobs),
		logger.Int("speakers", len(participants)))

	blobs := make([]Blob, 0, config.NumBlobs)
	nextMessageID := uint32(1)

	for i := 0; i < config.NumBlobs; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during blob generation: %w", ctx.Err())
		default:
		}

		// Resubmit an earlier blob verbatim to exercise dedup.
		if len(blobs) > 0 && getRandomFloat() < config.DupeRate {
			dupe := blobs[getRandomInt(int64(len(blobs)))]
			dupe.Duplicate = true
			blobs = append(blobs, dupe)
			continue
		}

		p := participants[getRandomInt(int64(len(participants)))]
		text := phrases[getRandomInt(int64(len(phrases)))]
		messageID := nextMessageID
		nextMessageID += uint32(getRandomInt(messageIDSpread)) + 1

		blobs = append(blobs, Blob{
			Payload:   BuildBlob(p.DeviceID, text, messageID, 1),
			DeviceID:  p.DeviceID,
			Text:      text,
			MessageID: messageID,
			Version:   1,
		})
	}

	stats.BlobsGenerated = len(blobs)
	logger.Get().Info(ctx, "generated blobs successfully", logger.Int("count", len(blobs)))

	return blobs, nil
}
