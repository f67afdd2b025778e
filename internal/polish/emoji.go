package polish

import (
	"strings"
	"unicode"
)

// decorative covers emoji, pictographs, dingbats and the joiners/selectors that
// glue them together.
var decorative = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200d, Hi: 0x200d, Stride: 1}, // zero width joiner
		{Lo: 0x20e3, Hi: 0x20e3, Stride: 1}, // combining keycap
		{Lo: 0x2190, Hi: 0x21ff, Stride: 1}, // arrows
		{Lo: 0x2300, Hi: 0x23ff, Stride: 1}, // misc technical
		{Lo: 0x2460, Hi: 0x24ff, Stride: 1}, // enclosed alphanumerics
		{Lo: 0x25a0, Hi: 0x27bf, Stride: 1}, // shapes, misc symbols, dingbats
		{Lo: 0x2900, Hi: 0x297f, Stride: 1}, // supplemental arrows
		{Lo: 0x2b00, Hi: 0x2bff, Stride: 1}, // misc symbols and arrows
		{Lo: 0xfe00, Hi: 0xfe0f, Stride: 1}, // variation selectors
	},
	R32: []unicode.Range32{
		{Lo: 0x1f000, Hi: 0x1f2ff, Stride: 1}, // mahjong, cards, enclosed supplement
		{Lo: 0x1f300, Hi: 0x1f5ff, Stride: 1}, // pictographs
		{Lo: 0x1f600, Hi: 0x1f64f, Stride: 1}, // emoticons
		{Lo: 0x1f680, Hi: 0x1f6ff, Stride: 1}, // transport and map
		{Lo: 0x1f700, Hi: 0x1f7ff, Stride: 1}, // geometric extended
		{Lo: 0x1f800, Hi: 0x1f8ff, Stride: 1}, // supplemental arrows-c
		{Lo: 0x1f900, Hi: 0x1faff, Stride: 1}, // supplemental symbols, extended-a
		{Lo: 0xe0020, Hi: 0xe007f, Stride: 1}, // tag characters (flag sequences)
	},
}

// StripEmoji removes emoji and decorative symbols. Regional indicator pairs are
// part of the enclosed supplement range and go with them.
func StripEmoji(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.Is(decorative, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
