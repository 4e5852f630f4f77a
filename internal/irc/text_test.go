package irc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskNick(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", "\u200c"},
		{"a", "a\u200c"},
		{"alice", "a\u200clice"},
		{"😃bob", "😃\u200cbob"},
		{"e\u0301ric", "e\u0301\u200cric"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskNick(tt.in), "MaskNick(%q)", tt.in)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello 😃 world!", 9, "hello "},
		{"hello 😃 world!", 10, "hello 😃"},
		{"♥", 2, ""},
		{"♥", 3, "♥"},
		{"short", 10, "short"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.in, tt.n), "Truncate(%q, %d)", tt.in, tt.n)
	}
}

func TestMaskAddressee(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		nick string
		mode HighlightMode
		mask bool
		want string
	}{
		{"masked", "bob: done", "bob", HighlightNormal, true, "b\u200cob: done"},
		{"unmasked", "bob: done", "bob", HighlightNormal, false, "bob: done"},
		{"longer nick", "bobby: done", "bob", HighlightNormal, true, "bobby: done"},
		{"no addressee", "3/34 tasks", "bob", HighlightNormal, true, "3/34 tasks"},
		{"empty nick", "x: y", "", HighlightNormal, true, "x: y"},
		{"styled", "bob: done", "bob", HighlightBold, false, "𝐛𝐨𝐛: done"},
		{"styled and masked", "bob: done", "bob", HighlightFraktur, true, "𝔟\u200c𝔬𝔟: done"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, maskAddressee(tt.text, tt.nick, tt.mode, tt.mask))
		})
	}
}

func TestStyleNick(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode HighlightMode
		in   string
		want string
	}{
		{HighlightNormal, "Alice_9", "Alice_9"},
		{HighlightBold, "Al9", "𝐀𝐥𝟗"},
		{HighlightItalic, "hi", "ℎ𝑖"},
		{HighlightBoldItalic, "Ab", "𝑨𝒃"},
		{HighlightScript, "Bee", "ℬℯℯ"},
		{HighlightScript, "ax", "𝒶𝓍"},
		{HighlightFraktur, "CHIRZ", "ℭℌℑℜℨ"},
		{HighlightFraktur, "Ab", "𝔄𝔟"},
		{HighlightFrakturBold, "Zz", "𝖅𝖟"},
		{HighlightFraktur, "a-9[x]", "𝔞-9[𝔵]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StyleNick(tt.in, tt.mode), "StyleNick(%q, %d)", tt.in, tt.mode)
	}
}

func TestParseHighlightMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want HighlightMode
	}{
		{"Normal", HighlightNormal},
		{"FrakturBold", HighlightFrakturBold},
		{"fraktur_bold", HighlightFrakturBold},
		{"bold-italic", HighlightBoldItalic},
		{"SCRIPT", HighlightScript},
	}
	for _, tt := range tests {
		got, err := ParseHighlightMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseHighlightMode("comic-sans")
	require.ErrorContains(t, err, "unknown highlight mode")
}
