package fill

import (
	"regexp"
	"strings"
)

// MaxTextUnits caps the size of generated slot content.
const MaxTextUnits = 2000

var latinWordPattern = regexp.MustCompile(`[A-Za-z0-9]+(?:'[A-Za-z0-9]+)?`)

// cjkRune reports whether r is a CJK ideograph, kana, hangul, or CJK
// punctuation. Each such rune counts as one text unit, since these scripts
// do not delimit words with spaces.
func cjkRune(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF:
		return true
	case r >= 0x3400 && r <= 0x4DBF:
		return true
	case r >= 0x3000 && r <= 0x303F:
		return true
	case r >= 0x3040 && r <= 0x30FF:
		return true
	case r >= 0xAC00 && r <= 0xD7AF:
		return true
	}
	return false
}

// CountTextUnits counts Latin-script words plus individual CJK characters.
func CountTextUnits(text string) int {
	count := 0
	for _, r := range text {
		if cjkRune(r) {
			count++
		}
	}
	count += len(latinWordPattern.FindAllString(text, -1))
	return count
}

// EnforceLimit truncates text to at most limit text units, cutting at a unit
// boundary. Text within the limit is returned unchanged.
func EnforceLimit(text string, limit int) string {
	if limit <= 0 || CountTextUnits(text) <= limit {
		return text
	}
	var b strings.Builder
	count := 0
	inWord := false
	for _, r := range text {
		if cjkRune(r) {
			if inWord {
				inWord = false
			}
			if count >= limit {
				break
			}
			count++
			b.WriteRune(r)
			continue
		}
		isWordRune := (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '\''
		if isWordRune {
			if !inWord {
				if count >= limit {
					break
				}
				count++
				inWord = true
			}
			b.WriteRune(r)
			continue
		}
		inWord = false
		b.WriteRune(r)
	}
	return strings.TrimRight(b.String(), " \t\n'")
}
