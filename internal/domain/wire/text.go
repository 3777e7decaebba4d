package wire

import (
	"strings"
	"unicode"
)

// Text extraction limits.
const (
	textTagSearchSpan = 10  // bytes after the timestamp where tag 50 must sit
	maxTextLen        = 200 // the client never emits longer caption chunks
)

// extractText locates the caption text. The reliable chain is timestamp
// tag 24, its varint value, then tag 50 within the next few bytes; the
// chained form anchors the text field even when the device id region was
// misparsed. When the chain is absent a bare tag 50 with a plausible
// length byte is accepted as a fallback.
func extractText(buf []byte, from int) (string, bool) {
	textStart := chainedTextStart(buf, from)
	if textStart < 0 {
		textStart = directTextStart(buf, from)
	}
	if textStart < 0 || textStart >= len(buf) {
		return "", false
	}

	strLen := int(buf[textStart])
	strStart := textStart + 1
	if strLen == 0 || strLen > maxTextLen || strStart+strLen > len(buf) {
		return "", false
	}

	text := stripUnprintable(decodeString(buf[strStart : strStart+strLen]))
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return text, true
}

// chainedTextStart finds tag 24, skips its varint payload, and requires
// tag 50 within the next few bytes. Returns the offset of the length byte
// or -1.
func chainedTextStart(buf []byte, from int) int {
	for i := from; i < len(buf)-1; i++ {
		if buf[i] != timestampTag {
			continue
		}
		_, tsEnd := readVarint(buf, i+1)
		if tsEnd >= len(buf) {
			continue
		}
		limit := min(tsEnd+textTagSearchSpan, len(buf))
		for k := tsEnd; k < limit; k++ {
			if buf[k] == textTag {
				return k + 1
			}
		}
	}
	return -1
}

// directTextStart scans for a bare tag 50 whose following length byte is
// in (0, maxTextLen]. Returns the offset of the length byte or -1.
func directTextStart(buf []byte, from int) int {
	for i := from; i < len(buf)-1; i++ {
		if buf[i] != textTag {
			continue
		}
		if l := int(buf[i+1]); l > 0 && l <= maxTextLen {
			return i + 1
		}
	}
	return -1
}

// stripUnprintable removes control and other non-printable runes, keeping
// the whitespace captions legitimately contain.
func stripUnprintable(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
