// Package stash reports which videos of a folder are already archived.
package stash

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-archive-bot/internal/errs"
)

// latestShown is how many of the newest entries a summary names.
const latestShown = 4

var videoExtensions = map[string]struct{}{
	"mp4":   {},
	"webm":  {},
	"flv":   {},
	"mkv":   {},
	"video": {},
}

// Lister returns the file names stored for a folder, newest first.
type Lister interface {
	List(ctx context.Context, folder string) ([]string, error)
}

// IsVideo reports whether name carries a video container extension. The
// match is case-sensitive.
func IsVideo(name string) bool {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if ext == "" {
		return false
	}
	_, ok := videoExtensions[ext]
	return ok
}

// FilterVideos keeps the video entries of names in their original order.
func FilterVideos(names []string) []string {
	videos := make([]string, 0, len(names))
	for _, name := range names {
		if IsVideo(name) {
			videos = append(videos, name)
		}
	}
	return videos
}

// Summarize renders the reply for a folder listing that is already filtered.
func Summarize(folder string, videos []string) string {
	if len(videos) == 0 {
		return fmt.Sprintf("%s has 0 videos", folder)
	}
	latest := videos
	if len(latest) > latestShown {
		latest = latest[:latestShown]
	}
	return fmt.Sprintf("%s has %d videos, latest: %s", folder, len(videos), strings.Join(latest, ", "))
}

// Checker lists a folder and summarizes its videos.
type Checker struct {
	lister Lister
	logger *zap.Logger
}

// NewChecker creates a Checker over lister.
func NewChecker(lister Lister, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{lister: lister, logger: logger}
}

// Check returns the summary line for folder. Listing failures are reported
// as errs.ListingFilesError.
func (c *Checker) Check(ctx context.Context, folder string) (string, error) {
	names, err := c.lister.List(ctx, folder)
	if err != nil {
		var (
			listing *errs.ListingFilesError
			decode  *errs.UTF8DecodingError
		)
		if errors.As(err, &listing) || errors.As(err, &decode) {
			return "", err
		}
		return "", &errs.ListingFilesError{Folder: folder, Err: err}
	}
	videos := FilterVideos(names)
	c.logger.Debug("stash checked",
		zap.String("folder", folder),
		zap.Int("entries", len(names)),
		zap.Int("videos", len(videos)),
	)
	return Summarize(folder, videos), nil
}
