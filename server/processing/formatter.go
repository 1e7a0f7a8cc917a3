// Package processing provides response post-processing for completion output.
// Raw model text is normalized into the short, emoji-free display text the
// chat platform renders: pictograph characters are removed, the text is
// capped to a fixed number of non-empty lines, and an empty result is
// replaced with a placeholder so the envelope's text field is never empty.
package processing

import (
	"strings"
)

// emojiRanges are the Unicode ranges removed from completion output before
// display. Covers emoticons, pictographs, transport/map symbols, dingbats,
// regional indicators, and the joiner/variation characters that glue emoji
// sequences together.
var emojiRanges = [][2]rune{
	{0x1F300, 0x1F5FF}, // misc symbols and pictographs
	{0x1F600, 0x1F64F}, // emoticons
	{0x1F680, 0x1F6FF}, // transport and map symbols
	{0x1F700, 0x1F77F}, // alchemical symbols
	{0x1F900, 0x1F9FF}, // supplemental symbols and pictographs
	{0x1FA00, 0x1FAFF}, // symbols and pictographs extended-A
	{0x1F1E6, 0x1F1FF}, // regional indicators (flags)
	{0x2600, 0x26FF},   // miscellaneous symbols
	{0x2700, 0x27BF},   // dingbats
	{0xFE00, 0xFE0F},   // variation selectors
	{0x200D, 0x200D},   // zero width joiner
	{0x20E3, 0x20E3},   // combining enclosing keycap
}

func isEmoji(r rune) bool {
	for _, rng := range emojiRanges {
		if r >= rng[0] && r <= rng[1] {
			return true
		}
	}
	return false
}

// StripEmoji removes characters in the emoji/pictograph/symbol ranges.
func StripEmoji(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !isEmoji(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Formatter turns raw completion output into platform display text.
// Formatting is idempotent: applying Format to already-formatted text
// yields the same text.
type Formatter struct {
	maxLines    int
	placeholder string
}

// NewFormatter creates a formatter keeping at most maxLines non-empty lines.
// The placeholder substitutes for output that formats down to nothing.
func NewFormatter(maxLines int, placeholder string) *Formatter {
	if maxLines < 1 {
		maxLines = 1
	}
	return &Formatter{
		maxLines:    maxLines,
		placeholder: placeholder,
	}
}

// Format applies the display rules in order: strip emoji, then keep the
// first maxLines non-empty trimmed lines rejoined with line breaks. If
// nothing survives, the placeholder is returned.
func (f *Formatter) Format(raw string) string {
	cleaned := StripEmoji(raw)

	kept := make([]string, 0, f.maxLines)
	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kept = append(kept, line)
		if len(kept) == f.maxLines {
			break
		}
	}

	if len(kept) == 0 {
		return f.placeholder
	}
	return strings.Join(kept, "\n")
}
