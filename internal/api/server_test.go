package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-archive-bot/internal/dispatch"
	"github.com/JakeFAU/youtube-archive-bot/internal/errs"
)

func TestServer_RunCommand_ReturnsReplies(t *testing.T) {
	t.Parallel()

	d := &fakeDispatcher{results: []dispatch.Result{
		{Text: "alice: error: not implemented: stash check of a video URL", Err: &errs.NotImplementedError{What: "stash check of a video URL"}},
		{Text: "alice: archiving https://www.youtube.com/channel/x into x (1/34 tasks)"},
	}}
	server := NewServer(d, dispatch.AllowAll, Options{}, zap.NewNop())

	body := []byte(`{"text":"!sa https://youtu.be/abc","sender":{"nick":"alice","user":"al","host":"example.org"}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/commands", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp commandResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Replies, 2)
	require.Contains(t, resp.Replies[0].Error, "not implemented")
	require.Empty(t, resp.Replies[1].Error)
	require.Contains(t, resp.Replies[1].Text, "archiving")

	text, sender := d.last()
	require.Equal(t, "!sa https://youtu.be/abc", text)
	require.Equal(t, dispatch.Sender{Nick: "alice", User: "al", Host: "example.org"}, sender)
}

func TestServer_RunCommand_NoReplyIsEmptyList(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeDispatcher{}, dispatch.AllowAll, Options{}, zap.NewNop())
	req := httptest.NewRequest(http.MethodPost, "/v1/commands",
		strings.NewReader(`{"text":"!unknown","sender":{"nick":"alice"}}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"replies":[]}`, rec.Body.String())
}

func TestServer_RunCommand_BadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{"text":`, "invalid JSON"},
		{"missing text", `{"text":"  ","sender":{"nick":"alice"}}`, "text required"},
		{"missing nick", `{"text":"!help","sender":{}}`, "sender.nick required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := &fakeDispatcher{}
			server := NewServer(d, dispatch.AllowAll, Options{}, zap.NewNop())
			req := httptest.NewRequest(http.MethodPost, "/v1/commands", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), tt.want)
			require.Zero(t, d.count())
		})
	}
}

func TestServer_RunCommand_PassesAuthorizer(t *testing.T) {
	t.Parallel()

	auth, err := dispatch.NewPatternAuthorizer(nil)
	require.NoError(t, err)
	d := &fakeDispatcher{}
	server := NewServer(d, auth, Options{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/v1/commands",
		strings.NewReader(`{"text":"!a x","sender":{"nick":"web","host":"gateway/web/irccloud.com"}}`))
	server.Handler().ServeHTTP(httptest.NewRecorder(), req)

	require.Same(t, auth, d.auth)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeDispatcher{}, dispatch.AllowAll, Options{APIKey: "secret"}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/v1/commands", strings.NewReader(`{"text":"!help","sender":{"nick":"a"}}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/commands", strings.NewReader(`{"text":"!help","sender":{"nick":"a"}}`))
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, "probes stay open")
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	ready := NewServer(&fakeDispatcher{}, dispatch.AllowAll, Options{}, zap.NewNop())
	rec := httptest.NewRecorder()
	ready.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	failing := NewServer(&fakeDispatcher{}, dispatch.AllowAll, Options{
		Ready: func(context.Context) error { return errors.New("tmux unavailable") },
	}, zap.NewNop())
	rec = httptest.NewRecorder()
	failing.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "tmux unavailable")
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeDispatcher{}, dispatch.AllowAll, Options{}, zap.NewNop())
	server.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_RecoversPanics(t *testing.T) {
	t.Parallel()

	server := NewServer(panicDispatcher{}, dispatch.AllowAll, Options{}, zap.NewNop())
	req := httptest.NewRequest(http.MethodPost, "/v1/commands", strings.NewReader(`{"text":"!help","sender":{"nick":"a"}}`))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeDispatcher{}, dispatch.AllowAll, Options{}, zap.NewNop())
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type fakeDispatcher struct {
	mu      sync.Mutex
	results []dispatch.Result
	texts   []string
	senders []dispatch.Sender
	auth    dispatch.Authorizer
}

func (f *fakeDispatcher) Dispatch(_ context.Context, text string, sender dispatch.Sender, auth dispatch.Authorizer) []dispatch.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.senders = append(f.senders, sender)
	f.auth = auth
	return f.results
}

func (f *fakeDispatcher) last() (string, dispatch.Sender) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.texts[len(f.texts)-1], f.senders[len(f.senders)-1]
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

type panicDispatcher struct{}

func (panicDispatcher) Dispatch(context.Context, string, dispatch.Sender, dispatch.Authorizer) []dispatch.Result {
	panic("boom")
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
