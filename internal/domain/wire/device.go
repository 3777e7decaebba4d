package wire

import (
	"bytes"
	"strings"
	"unicode"
)

// Device id extraction limits. The tag scans are windowed because the
// same tag bytes recur deep inside the caption body, where a match is
// always a misread.
const (
	nestedDeviceLen    = 31  // the nested header always carries a 31-byte id
	directTagWindow    = 100 // tag 3 scan window after the start marker
	wideTagWindow      = 200 // tag 98 scan window after the start marker
	narrowTagWindow    = 150 // tag 10 scan window after the start marker
	preMarkerWindow    = 100 // tag scan window before the start marker
	maxDeviceFieldLen  = 200 // larger lengths are misread varints
	maxDeviceDigitsLen = 20  // digit run cap after a /devices/ segment
)

// deviceCandidate is one extraction heuristic. It returns the device id,
// the buffer offset just past it, and whether the candidate succeeded.
// Candidates must fail closed: either the returned string passed
// validation or ok is false.
type deviceCandidate func(buf []byte, start int) (id string, end int, ok bool)

// deviceStrategies is the fixed priority order, most reliable first.
var deviceStrategies = []deviceCandidate{
	nestedHeaderDevice,
	directTagDevice,
	wideTagDevice,
	narrowTagDevice,
	preMarkerStringDevice,
	preMarkerTagDevice,
}

// extractDeviceID tries each known heuristic in order. When all of them
// fail the id is empty and the caller synthesizes one; an absent device
// id is not a decode failure because the text may still be extractable.
func extractDeviceID(buf []byte, start int) (string, int) {
	for _, candidate := range deviceStrategies {
		if id, end, ok := candidate(buf, start); ok {
			return id, end
		}
	}
	return "", start
}

// nestedHeaderDevice reads the nested length-delimited structure some
// client versions place at the very start of the record: tag 10, a varint
// message length, a second tag 10, a length byte of exactly 31, then the
// 31-byte id. Accepted only when the decoded string looks like a resource
// path, which rules out coincidental tag bytes.
func nestedHeaderDevice(buf []byte, _ int) (string, int, bool) {
	if len(buf) < nestedDeviceLen+4 || buf[0] != 10 {
		return "", 0, false
	}
	_, next := readVarint(buf, 1)
	if next >= len(buf) || buf[next] != 10 {
		return "", 0, false
	}
	lenIdx := next + 1
	if lenIdx >= len(buf) || buf[lenIdx] != nestedDeviceLen {
		return "", 0, false
	}
	strStart := lenIdx + 1
	strEnd := strStart + nestedDeviceLen
	if strEnd > len(buf) {
		return "", 0, false
	}
	id := decodeString(buf[strStart:strEnd])
	if id == "" || (!strings.Contains(id, "spaces/") && !strings.Contains(id, "/devices/")) {
		return "", 0, false
	}
	return id, strEnd, true
}

// directTagDevice reads a tag-3 string field shortly after the start
// marker, the layout of the oldest observed client.
func directTagDevice(buf []byte, start int) (string, int, bool) {
	limit := min(start+directTagWindow, len(buf))
	idx := start
	for idx < limit && buf[idx] != 3 {
		idx++
	}
	if idx >= limit || idx+1 >= len(buf) {
		return "", 0, false
	}
	strLen := int(buf[idx+1])
	strStart := idx + 2
	if strLen == 0 || strStart+strLen > len(buf) {
		return "", 0, false
	}
	id := strings.Trim(decodeString(buf[strStart:strStart+strLen]), "\x00")
	if id == "" || !isLikelyDeviceID(id) {
		return "", 0, false
	}
	return id, strStart + strLen, true
}

// wideTagDevice scans for a tag-98 string field within 200 bytes of the
// start marker. A length byte above 200 is treated as a misread varint
// and the scan continues.
func wideTagDevice(buf []byte, start int) (string, int, bool) {
	return scanTagDevice(buf, 98, start, min(start+wideTagWindow, len(buf)), len(buf), 0)
}

// narrowTagDevice scans for a tag-10 string field within 150 bytes of the
// start marker. Tag 10 is the most common string tag and therefore the
// most collision-prone, so very short candidates are rejected.
func narrowTagDevice(buf []byte, start int) (string, int, bool) {
	return scanTagDevice(buf, 10, start, min(start+narrowTagWindow, len(buf)), len(buf), 2)
}

// preMarkerStringDevice searches the region before the start marker for
// the literal "spaces/" resource prefix. The id ends either at the next
// start-marker byte or at the digit run of a "/devices/<digits>" suffix.
func preMarkerStringDevice(buf []byte, start int) (string, int, bool) {
	if start <= 0 {
		return "", 0, false
	}
	before := buf[:start]
	strStart := bytes.Index(before, []byte("spaces/"))
	if strStart < 0 {
		return "", 0, false
	}

	var candidate string
	for i := strStart; i < start; i++ {
		if buf[i] == startMarker {
			candidate = strings.TrimSpace(strings.Trim(decodeString(buf[strStart:i]), "\x00"))
			break
		}
	}
	if candidate == "" {
		rest := decodeString(before[strStart:])
		if path, tail, found := strings.Cut(rest, "/devices/"); found {
			var digits strings.Builder
			for _, r := range tail {
				if r < '0' || r > '9' || digits.Len() >= maxDeviceDigitsLen {
					break
				}
				digits.WriteRune(r)
			}
			if digits.Len() > 0 {
				candidate = path + "/devices/" + digits.String()
			}
		}
	}
	if candidate == "" {
		return "", 0, false
	}

	cleaned := filterIdentifier(candidate)
	if cleaned == "" || !isLikelyDeviceID(cleaned) {
		return "", 0, false
	}
	return cleaned, start, true
}

// preMarkerTagDevice re-scans the region before the start marker for tag
// 10 or 98 string fields, the last resort before giving up.
func preMarkerTagDevice(buf []byte, start int) (string, int, bool) {
	from := max(0, start-preMarkerWindow)
	for _, tag := range []byte{10, 98} {
		if id, end, ok := scanTagDevice(buf, tag, from, start, start, 0); ok {
			return id, end, true
		}
	}
	return "", 0, false
}

// scanTagDevice is the shared tag + length byte + string walk. boundary
// caps where the string may end (the payload end for post-marker scans,
// the start marker for pre-marker scans); minLen rejects candidates at or
// below it.
func scanTagDevice(buf []byte, tag byte, from, limit, boundary, minLen int) (string, int, bool) {
	for idx := from; idx < limit; idx++ {
		if buf[idx] != tag || idx+1 >= len(buf) {
			continue
		}
		strLen := int(buf[idx+1])
		if strLen == 0 || strLen > maxDeviceFieldLen {
			continue // misread varint, keep scanning
		}
		strStart := idx + 2
		if strStart+strLen > boundary {
			continue
		}
		id := strings.TrimSpace(strings.Trim(decodeString(buf[strStart:strStart+strLen]), "\x00"))
		if len(id) <= minLen || !isLikelyDeviceID(id) {
			continue
		}
		return id, strStart + strLen, true
	}
	return "", 0, false
}

// decodeString converts raw bytes to a string, mapping invalid UTF-8 to
// the replacement rune the way the validity heuristic expects.
func decodeString(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

// filterIdentifier drops every rune that is neither printable nor one of
// the path characters device ids are built from.
func filterIdentifier(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsPrint(r) || strings.ContainsRune(`/\-_@.`, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
