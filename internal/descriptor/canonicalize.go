package descriptor

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-archive-bot/internal/errs"
)

// PageFetcher returns the raw markup of a page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

var (
	userLinkRE = regexp.MustCompile(`<link itemprop="url" href="https?://www\.youtube\.com/user/([-_A-Za-z0-9]+)">`)

	// Channel id extraction strategies, tried in order.
	channelMetaRE   = regexp.MustCompile(`<meta itemprop="channelId" content="([-_A-Za-z0-9]+)">`)
	channelPlayerRE = regexp.MustCompile(` ytplayer = .+?\\"channelId\\":\\"([-_A-Za-z0-9]+)\\"`)
)

// ParseUser extracts the public username from channel or user page markup.
func ParseUser(page string) (string, bool) {
	m := userLinkRE.FindStringSubmatch(page)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseChannel extracts the owning channel id from page markup.
func ParseChannel(page string) (string, bool) {
	for _, re := range []*regexp.Regexp{channelMetaRE, channelPlayerRE} {
		if m := re.FindStringSubmatch(page); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// Canonicalizer resolves descriptors into canonical identities, consulting a
// PageFetcher whenever an alias has to be resolved.
type Canonicalizer struct {
	fetcher PageFetcher
	logger  *zap.Logger
}

// NewCanonicalizer builds a Canonicalizer.
func NewCanonicalizer(fetcher PageFetcher, logger *zap.Logger) *Canonicalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Canonicalizer{fetcher: fetcher, logger: logger}
}

// Canonicalize resolves d. Fetch errors are returned unchanged; missing
// markup yields errs.ErrCouldNotGetChannelIdentifier.
func (c *Canonicalizer) Canonicalize(ctx context.Context, d Descriptor) (Canonical, error) {
	canonical, err := c.resolve(ctx, d)
	if err != nil {
		return Canonical{}, err
	}
	if !ValidFolder(canonical.Folder) {
		return Canonical{}, &errs.InvalidTaskNameError{Name: canonical.Folder}
	}
	c.logger.Debug("canonicalized descriptor",
		zap.Stringer("input", d),
		zap.String("id", canonical.ID),
		zap.String("folder", canonical.Folder),
		zap.Stringer("kind", canonical.Kind),
	)
	return canonical, nil
}

func (c *Canonicalizer) resolve(ctx context.Context, d Descriptor) (Canonical, error) {
	switch d.Kind {
	case Playlist:
		return Canonical{ID: d.ID, Folder: d.ID, Kind: Playlist}, nil
	case Video:
		return c.resolveVideo(ctx, d)
	case Channel, User:
		return c.resolveChannel(ctx, d)
	default:
		return Canonical{}, fmt.Errorf("canonicalize %s: unknown kind", d)
	}
}

func (c *Canonicalizer) resolveVideo(ctx context.Context, d Descriptor) (Canonical, error) {
	page, err := c.fetcher.Fetch(ctx, d.URL())
	if err != nil {
		return Canonical{}, err
	}
	channelID, ok := ParseChannel(page)
	if !ok {
		return Canonical{}, errs.ErrCouldNotGetChannelIdentifier
	}
	owner, err := c.resolveChannel(ctx, Descriptor{ID: channelID, Kind: Channel})
	if err != nil {
		return Canonical{}, err
	}
	return Canonical{ID: d.ID, Folder: owner.Folder, Kind: Video}, nil
}

// resolveChannel always consults the page, even for User input, because the
// page carries the canonical casing of the username.
func (c *Canonicalizer) resolveChannel(ctx context.Context, d Descriptor) (Canonical, error) {
	page, err := c.fetcher.Fetch(ctx, d.URL())
	if err != nil {
		return Canonical{}, err
	}
	if user, ok := ParseUser(page); ok {
		return Canonical{ID: user, Folder: FolderFor(user), Kind: User}, nil
	}
	channelID, ok := ParseChannel(page)
	if !ok {
		return Canonical{}, errs.ErrCouldNotGetChannelIdentifier
	}
	return Canonical{ID: channelID, Folder: channelID, Kind: Channel}, nil
}
