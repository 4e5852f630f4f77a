package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-archive-bot/internal/errs"
	"github.com/JakeFAU/youtube-archive-bot/internal/tools"
)

func TestParseKeepsPrefixedSessions(t *testing.T) {
	t.Parallel()

	sessions, err := Parse("1000 YouTube-abc\n2000 unrelated-session\n", DefaultPrefix)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, Session{Identifier: "abc", StartTime: time.Unix(1000, 0)}, sessions[0])
}

func TestParseEmpty(t *testing.T) {
	t.Parallel()

	sessions, err := Parse("", DefaultPrefix)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestParseRejectsMalformedLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"non numeric timestamp", "abc YouTube-abc\n"},
		{"missing name", "1000\n"},
		{"empty name", "1000 \n"},
		{"malformed unrelated line", "1000 YouTube-abc\nnot-a-time unrelated\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(tt.raw, DefaultPrefix)
			assert.Error(t, err)
		})
	}
}

func TestRegistryList(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{out: tools.Output{Stdout: []byte("1500 YouTube-CNN\n1600 YouTube-PL5AC656794EE191C1\n1700 scratch\n")}}
	reg := NewRegistry(runner, "", "", zap.NewNop())

	sessions, err := reg.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Session{
		{Identifier: "CNN", StartTime: time.Unix(1500, 0)},
		{Identifier: "PL5AC656794EE191C1", StartTime: time.Unix(1600, 0)},
	}, sessions)
	assert.Equal(t, []string{"tmux", "list-sessions", "-F", "#{session_created} #S"}, runner.calls[0])
	assert.Equal(t, DefaultPrefix, reg.Prefix())
}

func TestRegistryListNoServer(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{out: tools.Output{
		Stderr:   []byte("no server running on /tmp/tmux-1000/default\n"),
		ExitCode: 1,
	}}
	sessions, err := NewRegistry(runner, "", "", nil).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestRegistryListErrors(t *testing.T) {
	t.Parallel()

	t.Run("spawn failure", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{err: errors.New("executable file not found")}
		_, err := NewRegistry(runner, "", "", nil).List(context.Background())
		var ioErr *errs.IOError
		require.ErrorAs(t, err, &ioErr)
	})

	t.Run("non utf8", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{out: tools.Output{Stdout: []byte{0xff, 0xfe, '\n'}}}
		_, err := NewRegistry(runner, "", "", nil).List(context.Background())
		var utf8Err *errs.UTF8DecodingError
		require.ErrorAs(t, err, &utf8Err)
	})

	t.Run("unexpected exit", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{out: tools.Output{Stderr: []byte("permission denied"), ExitCode: 1}}
		_, err := NewRegistry(runner, "", "", nil).List(context.Background())
		var ioErr *errs.IOError
		require.ErrorAs(t, err, &ioErr)
		assert.Contains(t, err.Error(), "permission denied")
	})

	t.Run("parse failure", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{out: tools.Output{Stdout: []byte("soon YouTube-abc\n")}}
		_, err := NewRegistry(runner, "", "", nil).List(context.Background())
		var ioErr *errs.IOError
		require.ErrorAs(t, err, &ioErr)
	})
}

func TestShorthand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0m"},
		{-time.Minute, "0m"},
		{59 * time.Second, "0m"},
		{45 * time.Minute, "45m"},
		{3*time.Hour + 2*time.Minute, "3h2m"},
		{2*24*time.Hour + 4*time.Hour + time.Minute, "2d4h1m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Shorthand(tt.in), "duration %v", tt.in)
	}
}

func TestDescribeNewestFirst(t *testing.T) {
	t.Parallel()

	now := time.Unix(100000, 0)
	sessions := []Session{
		{Identifier: "old", StartTime: now.Add(-26 * time.Hour)},
		{Identifier: "new", StartTime: now.Add(-5 * time.Minute)},
		{Identifier: "mid", StartTime: now.Add(-90 * time.Minute)},
	}
	assert.Equal(t, "new (5m), mid (1h30m), old (1d2h0m)", Describe(sessions, now))
	assert.Equal(t, "old", sessions[0].Identifier, "input order untouched")
	assert.Equal(t, "", Describe(nil, now))
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
