package stash

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-archive-bot/internal/errs"
	"github.com/JakeFAU/youtube-archive-bot/internal/tools"
)

func TestFilterVideosKeepsOrder(t *testing.T) {
	t.Parallel()

	got := FilterVideos([]string{"a.mp4", "b.txt", "c.mkv"})
	assert.Equal(t, []string{"a.mp4", "c.mkv"}, got)
}

func TestIsVideo(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"clip.mp4":          true,
		"clip.webm":         true,
		"clip.WEBM":         false,
		"A.MP4":             false,
		"old.flv":           true,
		"x.y.mkv":           true,
		"stream.video":      true,
		"clip.mp4.part":     false,
		"description.txt":   false,
		"mp4":               false,
		"":                  false,
		"thumbnail.jpg":     false,
		"archive.info.json": false,
	}
	for name, want := range tests {
		assert.Equal(t, want, IsVideo(name), name)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "CNN has 0 videos", Summarize("CNN", nil))
	assert.Equal(t, "CNN has 2 videos, latest: a.mp4, c.mkv", Summarize("CNN", []string{"a.mp4", "c.mkv"}))
	assert.Equal(t,
		"CNN has 6 videos, latest: 6.mp4, 5.mp4, 4.mp4, 3.mp4",
		Summarize("CNN", []string{"6.mp4", "5.mp4", "4.mp4", "3.mp4", "2.mp4", "1.mp4"}),
	)
}

func TestCheckerCheck(t *testing.T) {
	t.Parallel()

	c := NewChecker(&fakeLister{names: []string{"b.webm", "notes.txt", "a.mp4"}}, zap.NewNop())
	got, err := c.Check(context.Background(), "CNN")
	require.NoError(t, err)
	assert.Equal(t, "CNN has 2 videos, latest: b.webm, a.mp4", got)
}

func TestCheckerWrapsListingFailures(t *testing.T) {
	t.Parallel()

	c := NewChecker(&fakeLister{err: errors.New("bucket gone")}, nil)
	_, err := c.Check(context.Background(), "CNN")
	var listing *errs.ListingFilesError
	require.ErrorAs(t, err, &listing)
	assert.Equal(t, "CNN", listing.Folder)

	decode := &errs.UTF8DecodingError{Source: "ts"}
	_, err = NewChecker(&fakeLister{err: decode}, nil).Check(context.Background(), "CNN")
	assert.Same(t, decode, err)
}

func TestExecLister(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{out: tools.Output{Stdout: []byte("new.mp4\n\nold.mkv\n")}}
	names, err := NewExecLister(runner, "", nil).List(context.Background(), "CNN")
	require.NoError(t, err)
	assert.Equal(t, []string{"new.mp4", "old.mkv"}, names)
	assert.Equal(t, []string{"ts", "ls", "-n", "YouTube", "-j", "-rt", "CNN"}, runner.calls[0])

	custom := &fakeRunner{}
	_, err = NewExecLister(custom, "ls", []string{"-t"}).List(context.Background(), "CNN")
	require.NoError(t, err)
	assert.Equal(t, []string{"ls", "-t", "CNN"}, custom.calls[0])
}

func TestExecListerErrors(t *testing.T) {
	t.Parallel()

	var listing *errs.ListingFilesError
	_, err := NewExecLister(&fakeRunner{err: errors.New("no ts")}, "", nil).List(context.Background(), "CNN")
	require.ErrorAs(t, err, &listing)

	_, err = NewExecLister(&fakeRunner{out: tools.Output{ExitCode: 2, Stderr: []byte("no such folder")}}, "", nil).
		List(context.Background(), "CNN")
	require.ErrorAs(t, err, &listing)
	assert.Contains(t, err.Error(), "no such folder")

	var decode *errs.UTF8DecodingError
	_, err = NewExecLister(&fakeRunner{out: tools.Output{Stdout: []byte{0xff}}}, "", nil).List(context.Background(), "CNN")
	require.ErrorAs(t, err, &decode)
}

type fakeLister struct {
	names []string
	err   error
}

func (f *fakeLister) List(context.Context, string) ([]string, error) {
	return f.names, f.err
}

type fakeRunner struct {
	out   tools.Output
	err   error
	calls [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (tools.Output, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.out, f.err
}
