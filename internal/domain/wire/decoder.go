// Package wire decodes the capture client's undocumented binary caption
// records.
//
// The format is not a published protocol. It resembles length-delimited
// protobuf but does not conform to a schema, and its layout shifts across
// client versions, so fields are located by scanning for marker-byte
// sequences instead of parsing. Every extraction stage is an ordered list
// of candidate heuristics with narrow acceptance criteria; a heuristic
// either returns a value that passes strict validation or defers to the
// next one. Nothing here may return garbage: a wrong device id or caption
// text silently corrupts transcripts downstream.
package wire

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/meetscribe/captionflow/internal/domain/model"
	"github.com/meetscribe/captionflow/pkg/metrics"
)

// Record layout constants observed in captured traffic.
const (
	startMarker    = 16 // varint field tag preceding the caption body
	textTag        = 50 // length-delimited caption text
	timestampTag   = 24 // varint timestamp preceding the text field
	maxVarintBytes = 5

	// minRecordLen is the smallest payload worth scanning; anything
	// shorter cannot hold the start marker plus a text field.
	minRecordLen = 10
)

// messageIDPatterns are the known byte sequences separating the caption
// body from the trailing message id. They are preserved literally from
// observed client versions; do not "improve" them.
var messageIDPatterns = [][]byte{
	{24, 0, 32, 1, 45, 0},
	{24, 0, 1, 32, 1, 45, 0},
	{24, 0, 45, 0},
	{24, 0, 1, 45, 0},
}

// langIDPatterns precede the single-byte language id when present.
var langIDPatterns = [][]byte{
	{64, 0, 72},
	{64, 0, 80},
}

// Decode turns one base64-encoded capture blob into a structured caption
// event. It fails with ErrBase64, ErrEmptyPayload, ErrDecompress or
// ErrStructureNotFound; all are fatal for the blob and must not be
// retried. A decoded event always carries non-empty Text; DeviceID may be
// empty when every extraction heuristic failed.
func Decode(blob string) (model.CaptionEvent, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		metrics.RecordDecodeFailure("base64")
		return model.CaptionEvent{}, fmt.Errorf("%w: %v", ErrBase64, err)
	}
	if len(raw) == 0 {
		metrics.RecordDecodeFailure("base64")
		return model.CaptionEvent{}, ErrEmptyPayload
	}

	buf, err := decompress(raw)
	if err != nil {
		metrics.RecordDecodeFailure("decompress")
		return model.CaptionEvent{}, err
	}

	ev, err := extract(buf)
	if err != nil {
		metrics.RecordDecodeFailure("structure")
		return model.CaptionEvent{}, err
	}
	metrics.RecordBlobDecoded()
	return ev, nil
}

// decompress inflates the payload. The capture client sometimes prepends
// up to three stray bytes before the gzip magic, so the magic is probed at
// offsets 0 and 3. A payload with no gzip header at either offset is
// passed through unchanged; a confirmed header that fails to inflate is an
// error.
func decompress(data []byte) ([]byte, error) {
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		out, err := gunzip(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
		}
		return out, nil
	}
	if len(data) > 4 && data[3] == 0x1f && data[4] == 0x8b {
		out, err := gunzip(data[3:])
		if err != nil {
			return nil, fmt.Errorf("%w at offset 3: %v", ErrDecompress, err)
		}
		return out, nil
	}
	// No gzip magic anywhere; assume the client sent it uncompressed.
	return data, nil
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// extract walks the decompressed record and pulls out every field the
// known heuristics can locate.
func extract(buf []byte) (model.CaptionEvent, error) {
	if len(buf) < minRecordLen {
		return model.CaptionEvent{}, fmt.Errorf("%w: payload of %d bytes too short", ErrStructureNotFound, len(buf))
	}

	start, ok := findStart(buf)
	if !ok {
		return model.CaptionEvent{}, ErrStructureNotFound
	}

	deviceID, deviceEnd := extractDeviceID(buf, start)

	// Text must be recoverable even when the device id is not; resume the
	// scan from whichever offset is further along.
	textFrom := start
	if deviceEnd > 0 {
		textFrom = deviceEnd
	}
	text, _ := extractText(buf, textFrom)

	tailFrom := start
	if deviceEnd > start {
		tailFrom = deviceEnd
	}
	messageID, version := extractMessageID(buf, tailFrom)
	langID := extractLangID(buf, tailFrom)

	if version == 0 {
		version = 1
	}
	return model.CaptionEvent{
		DeviceID:  deviceID,
		MessageID: messageID,
		Version:   version,
		Text:      text,
		LangID:    langID,
	}, nil
}

// findStart locates the start marker. A marker byte followed by 1 means
// the caption body begins two bytes later, otherwise one byte later.
func findStart(buf []byte) (int, bool) {
	for i := 0; i < len(buf)-1; i++ {
		if buf[i] != startMarker {
			continue
		}
		if buf[i+1] == 1 {
			return i + 2, true
		}
		return i + 1, true
	}
	return 0, false
}

// extractMessageID locates the message id and version after the caption
// body. Each known separator pattern is tried in order; the first match
// is followed by a little-endian uint32 message id and, when enough bytes
// remain, a little-endian uint32 version. When no pattern matches, a
// bare timestamp tag within 100 bytes is used as a last resort, and a
// record matching nothing is counted as an unknown layout for future
// pattern discovery.
func extractMessageID(buf []byte, from int) (*uint32, uint32) {
	for _, pattern := range messageIDPatterns {
		idx := indexPattern(buf, pattern, from)
		if idx < 0 {
			continue
		}
		end := idx + len(pattern)
		if end+4 > len(buf) {
			continue
		}
		id := binary.LittleEndian.Uint32(buf[end : end+4])
		if end+8 <= len(buf) {
			return &id, binary.LittleEndian.Uint32(buf[end+4 : end+8])
		}
		return &id, 1
	}

	limit := min(from+100, len(buf))
	for i := from; i < limit; i++ {
		if buf[i] == timestampTag && i+5 <= len(buf) {
			id := binary.LittleEndian.Uint32(buf[i+1 : i+5])
			return &id, 1
		}
	}

	metrics.RecordUnknownMessageLayout()
	return nil, 1
}

// extractLangID reads the single byte following a known language marker.
func extractLangID(buf []byte, from int) *uint8 {
	for _, pattern := range langIDPatterns {
		idx := indexPattern(buf, pattern, from)
		if idx < 0 {
			continue
		}
		end := idx + len(pattern)
		if end < len(buf) {
			id := buf[end]
			return &id
		}
	}
	return nil
}

// indexPattern returns the offset of the first exact occurrence of
// pattern at or after from, or -1.
func indexPattern(buf, pattern []byte, from int) int {
	if from < 0 || from >= len(buf) {
		return -1
	}
	idx := bytes.Index(buf[from:], pattern)
	if idx < 0 {
		return -1
	}
	return from + idx
}

// readVarint decodes a base-128 varint at offset, returning the value and
// the offset of the first byte after it. Reading is capped at five bytes;
// a truncated varint consumes what is present.
func readVarint(buf []byte, offset int) (uint64, int) {
	var v uint64
	var shift uint
	i := offset
	for n := 0; n < maxVarintBytes && i < len(buf); n++ {
		b := buf[i]
		v |= uint64(b&0x7f) << shift
		i++
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return v, i
}
