package wire

import (
	"strings"
	"unicode"
)

// Validity thresholds. A device id is a short path-like token; anything
// that reads like natural-language text or mojibake must be rejected so a
// misaligned scan never pollutes the identifier column.
const (
	minPrintableRatio   = 0.7
	maxReplacementRatio = 0.3
	maxControlRatio     = 0.2
	maxDeviceIDLen      = 200
	maxDominantRatio    = 0.5
	maxWordCount        = 3
)

// identifierRunes are the non-alphanumeric characters a device id may be
// built from.
const identifierRunes = `/\-_@.`

// sentenceEndings close natural-language text, not identifiers.
const sentenceEndings = ".!?,;:@"

// isLikelyDeviceID reports whether a candidate string plausibly is a
// device identifier rather than caption text or scan garbage. All checks
// operate on runes, matching how the capture client encodes ids.
func isLikelyDeviceID(s string) bool {
	if s == "" {
		return false
	}
	runes := []rune(s)
	n := len(runes)

	printable := 0
	control := 0
	replacement := 0
	hasIdentRune := false
	counts := make(map[rune]int, n)
	for _, r := range runes {
		if unicode.IsPrint(r) || strings.ContainsRune(`/\-_`, r) {
			printable++
		}
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			control++
		}
		if r == '�' {
			replacement++
		}
		if !hasIdentRune && (unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(identifierRunes, r)) {
			hasIdentRune = true
		}
		counts[r]++
	}

	if float64(printable)/float64(n) < minPrintableRatio {
		return false
	}
	if float64(replacement) > float64(n)*maxReplacementRatio {
		return false
	}
	if float64(control) > float64(n)*maxControlRatio {
		return false
	}
	if n > maxDeviceIDLen {
		return false
	}
	if !hasIdentRune {
		return false
	}

	// Disproportionate spaces imply natural-language text.
	spaces := strings.Count(s, " ")
	if n > 20 && spaces > n/10 {
		return false
	}

	// Sentences end in punctuation and contain spaces; ids do not.
	if n > 10 && strings.ContainsRune(sentenceEndings, runes[n-1]) && spaces > 0 {
		return false
	}

	if words := strings.Fields(s); len(words) > maxWordCount && n < 100 {
		return false
	}

	// A single dominant non-identifier rune marks repeated-byte garbage.
	if n > 3 {
		var dominant rune
		most := 0
		for r, c := range counts {
			if c > most {
				dominant, most = r, c
			}
		}
		if float64(most) > float64(n)*maxDominantRatio && most > 3 &&
			!strings.ContainsRune(identifierRunes, dominant) {
			return false
		}
	}

	return true
}
