package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-archive-bot/internal/config"
	"github.com/JakeFAU/youtube-archive-bot/internal/dispatch"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.IRC.Enabled = false
	cfg.Server.Enabled = false
	cfg.Tools.WorkDir = t.TempDir()
	return cfg
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestBuildWiresDispatcher(t *testing.T) {
	cfg := testConfig(t)
	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close(context.Background())) }()

	results := app.Dispatcher().Dispatch(context.Background(), "!help",
		dispatch.Sender{Nick: "alice", User: "al", Host: "example.org"}, app.Authorizer())
	require.Len(t, results, 1)
	require.Equal(t, dispatch.Usage, results[0].Text)
}

func TestBuildAuthorizerRejectsRelays(t *testing.T) {
	cfg := testConfig(t)
	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close(context.Background())) }()

	relayed := dispatch.Sender{Nick: "web", User: "uid1", Host: "gateway/web/irccloud.com/x-abc"}
	require.False(t, app.Authorizer().Authorized(relayed))
	require.True(t, app.Authorizer().Authorized(dispatch.Sender{Nick: "a", User: "a", Host: "example.org"}))
}

func TestBuildRejectsBadAuthPattern(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.RelayedPatterns = []string{"("}
	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "auth patterns")
}

func TestBuildWithCollyFetcher(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fetch.Backend = "colly"
	cfg.Fetch.RatePerSecond = 0
	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, app.Close(context.Background()))
}

func TestRunRequiresATransport(t *testing.T) {
	cfg := testConfig(t)
	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close(context.Background())) }()

	require.ErrorContains(t, app.Run(context.Background()), "nothing to run")
}

func TestRunServesHTTPUntilCanceled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Enabled = true
	cfg.Server.Port = freePort(t)
	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close(context.Background())) }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/healthz", cfg.Server.Port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:noctx // test probe
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReadyReportsRegistryFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tools.Tmux = filepath.Join(t.TempDir(), "no-such-tmux")
	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close(context.Background())) }()

	require.ErrorContains(t, app.ready(context.Background()), "session registry")
}

func postCommand(t *testing.T, app *App, apiKey, body string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/commands", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	app.apiServer.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return rec.Body.String()
}

func TestHTTPRefusesPrivilegedCommandsWithoutAPIKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Enabled = true
	cfg.Tools.Tmux = filepath.Join(t.TempDir(), "no-such-tmux")
	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close(context.Background())) }()

	body := postCommand(t, app, "",
		`{"text":"!abort victim","sender":{"nick":"mallory","user":"m","host":"example.org"}}`)
	require.Contains(t, body, dispatch.UnauthorizedWarning)
	require.NotContains(t, body, "sent interrupt")

	body = postCommand(t, app, "", `{"text":"!help","sender":{"nick":"mallory"}}`)
	require.Contains(t, body, "Usage:")
}

func TestHTTPAppliesRelayRuleWithAPIKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Enabled = true
	cfg.API.Enabled = true
	cfg.API.Key = "secret"
	cfg.Tools.Tmux = filepath.Join(t.TempDir(), "no-such-tmux")
	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close(context.Background())) }()

	body := postCommand(t, app, "secret",
		`{"text":"!abort victim","sender":{"nick":"web","user":"uid1","host":"gateway/web/irccloud.com/x-abc"}}`)
	require.Contains(t, body, dispatch.UnauthorizedWarning)

	// A direct sender gets past authorization and reaches tmux.
	body = postCommand(t, app, "secret",
		`{"text":"!abort victim","sender":{"nick":"alice","user":"al","host":"example.org"}}`)
	require.NotContains(t, body, dispatch.UnauthorizedWarning)
	require.Contains(t, body, "alice: error:")
}
