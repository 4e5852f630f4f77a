package irc

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// zwnj is inserted into nicks so clients do not treat them as highlights.
const zwnj = "\u200c"

// MaskNick inserts a zero-width non-joiner after the first grapheme of name.
func MaskNick(name string) string {
	first, rest, _, _ := uniseg.FirstGraphemeClusterInString(name, -1)
	return first + zwnj + rest
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	end := 0
	for end < len(s) {
		_, size := utf8.DecodeRuneInString(s[end:])
		if end+size > n {
			break
		}
		end += size
	}
	return s[:end]
}

// maskAddressee restyles the leading "nick: " of a reply and, when mask is
// set, breaks it up so the addressee is not highlighted.
func maskAddressee(text, nick string, mode HighlightMode, mask bool) string {
	if nick == "" {
		return text
	}
	rest, ok := strings.CutPrefix(text, nick+": ")
	if !ok {
		return text
	}
	name := StyleNick(nick, mode)
	if mask {
		name = MaskNick(name)
	}
	return name + ": " + rest
}

// HighlightMode selects the Unicode letter style a nick is echoed in.
type HighlightMode int

const (
	HighlightNormal HighlightMode = iota
	HighlightFraktur
	HighlightFrakturBold
	HighlightScript
	HighlightBold
	HighlightItalic
	HighlightBoldItalic
)

var highlightNames = map[string]HighlightMode{
	"normal":      HighlightNormal,
	"fraktur":     HighlightFraktur,
	"frakturbold": HighlightFrakturBold,
	"script":      HighlightScript,
	"bold":        HighlightBold,
	"italic":      HighlightItalic,
	"bolditalic":  HighlightBoldItalic,
}

// ParseHighlightMode accepts "FrakturBold", "fraktur_bold" and
// "fraktur-bold" alike.
func ParseHighlightMode(name string) (HighlightMode, error) {
	key := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(name))
	mode, ok := highlightNames[key]
	if !ok {
		return HighlightNormal, fmt.Errorf("unknown highlight mode %q", name)
	}
	return mode, nil
}

// alphabet holds the first code point of the capital and small letters of a
// style in the Mathematical Alphanumeric Symbols block.
type alphabet struct {
	upper, lower rune
	// holes are letters encoded in the Letterlike Symbols block instead.
	holes map[rune]rune
}

var alphabets = map[HighlightMode]alphabet{
	HighlightBold:       {upper: 0x1D400, lower: 0x1D41A},
	HighlightItalic:     {upper: 0x1D434, lower: 0x1D44E, holes: map[rune]rune{'h': 'ℎ'}},
	HighlightBoldItalic: {upper: 0x1D468, lower: 0x1D482},
	HighlightScript: {upper: 0x1D49C, lower: 0x1D4B6, holes: map[rune]rune{
		'B': 'ℬ', 'E': 'ℰ', 'F': 'ℱ', 'H': 'ℋ', 'I': 'ℐ', 'L': 'ℒ', 'M': 'ℳ', 'R': 'ℛ',
		'e': 'ℯ', 'g': 'ℊ', 'o': 'ℴ',
	}},
	HighlightFraktur: {upper: 0x1D504, lower: 0x1D51E, holes: map[rune]rune{
		'C': 'ℭ', 'H': 'ℌ', 'I': 'ℑ', 'R': 'ℜ', 'Z': 'ℨ',
	}},
	HighlightFrakturBold: {upper: 0x1D56C, lower: 0x1D586},
}

const boldDigitZero = 0x1D7CE

// StyleNick rewrites the ASCII letters of name in mode's letter style. Bold
// also restyles digits. Everything else is left as is.
func StyleNick(name string, mode HighlightMode) string {
	a, ok := alphabets[mode]
	if !ok {
		return name
	}
	var b strings.Builder
	b.Grow(len(name) * 4)
	for _, r := range name {
		if sub, ok := a.holes[r]; ok {
			b.WriteRune(sub)
			continue
		}
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(a.upper + r - 'A')
		case r >= 'a' && r <= 'z':
			b.WriteRune(a.lower + r - 'a')
		case mode == HighlightBold && r >= '0' && r <= '9':
			b.WriteRune(boldDigitZero + r - '0')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
