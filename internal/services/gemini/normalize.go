package gemini

import (
	"strings"
	"unicode"
)

// NoPlateDetected is returned in place of an empty normalized plate.
const NoPlateDetected = "No plate detected"

// NormalizePlate trims text and removes every whitespace and hyphen character,
// Unicode spaces included. It is idempotent.
func NormalizePlate(text string) string {
	return strings.Map(func(r rune) rune {
		if isPlateSeparator(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(text))
}

// isPlateSeparator reports whether r is dropped from plate text. U+FEFF is not
// Unicode White_Space but is treated as one.
func isPlateSeparator(r rune) bool {
	return r == '-' || r == '\ufeff' || unicode.IsSpace(r)
}

// PlateOrSentinel normalizes text and substitutes NoPlateDetected when nothing
// is left.
func PlateOrSentinel(text string) string {
	if plate := NormalizePlate(text); plate != "" {
		return plate
	}
	return NoPlateDetected
}
