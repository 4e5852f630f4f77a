package descriptor

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/youtube-archive-bot/internal/errs"
)

// CanonicalPrefix is the scheme and host every classified URL starts with.
const CanonicalPrefix = "https://www.youtube.com/"

var (
	shortLinkRE = regexp.MustCompile(`^https://youtu\.be/([-_A-Za-z0-9]+)`)

	desktopFlagLeadRE = regexp.MustCompile(`\?app=desktop(&|#|$)`)
	desktopFlagRE     = regexp.MustCompile(`&app=desktop(&|#|$)`)
)

// hostRewrites run in order; each assumes the scheme has already been fixed.
var hostRewrites = []struct {
	from string
	to   string
}{
	{"http://", "https://"},
	{"https://m.youtube.com/", CanonicalPrefix},
	{"https://youtube.com/", CanonicalPrefix},
}

// Normalize rewrites alternate spellings of a YouTube URL into the canonical
// https://www.youtube.com/ form. It is pure and idempotent.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	for _, rw := range hostRewrites {
		if strings.HasPrefix(s, rw.from) {
			s = rw.to + s[len(rw.from):]
		}
	}

	if m := shortLinkRE.FindStringSubmatch(s); m != nil {
		rest := s[len(m[0]):]
		if strings.HasPrefix(rest, "?") {
			rest = "&" + rest[1:]
		}
		s = CanonicalPrefix + "watch?v=" + m[1] + rest
	}

	return stripDesktopFlag(s)
}

func stripDesktopFlag(s string) string {
	for {
		next := desktopFlagLeadRE.ReplaceAllStringFunc(s, func(m string) string {
			if strings.HasSuffix(m, "&") {
				return "?"
			}
			return strings.TrimPrefix(m, "?app=desktop")
		})
		next = strings.TrimSpace(desktopFlagRE.ReplaceAllString(next, "$1"))
		if next == s {
			return s
		}
		s = next
	}
}

// idEnd accepts the end of input or a delimiter so trailing /videos, ?x or #x
// noise is tolerated while over-long ids are rejected.
const idEnd = `(?:$|[/?&#])`

var shapes = []struct {
	kind Kind
	re   *regexp.Regexp
}{
	{Playlist, regexp.MustCompile(`^https://www\.youtube\.com/playlist\?list=(PL[0-9A-Fa-f]{16})` + idEnd)},
	{Playlist, regexp.MustCompile(`^https://www\.youtube\.com/playlist\?list=(PL[-_A-Za-z0-9]{32})` + idEnd)},
	{Video, regexp.MustCompile(`^https://www\.youtube\.com/watch\?v=([-_A-Za-z0-9]{11})` + idEnd)},
	{Channel, regexp.MustCompile(`^https://www\.youtube\.com/channel/(UC[-_A-Za-z0-9]{22})` + idEnd)},
	{User, regexp.MustCompile(`^https://www\.youtube\.com/user/([A-Za-z0-9]{1,100})` + idEnd)},
}

// Classify normalizes raw and matches it against the known resource shapes.
func Classify(raw string) (Descriptor, error) {
	url := Normalize(raw)
	if !strings.HasPrefix(url, CanonicalPrefix) {
		return Descriptor{}, &errs.UnsupportedURLError{URL: raw}
	}
	for _, shape := range shapes {
		if m := shape.re.FindStringSubmatch(url); m != nil {
			return Descriptor{ID: m[1], Kind: shape.kind}, nil
		}
	}
	return Descriptor{}, &errs.UnsupportedURLError{URL: raw}
}
