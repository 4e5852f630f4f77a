package pagefetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/youtube-archive-bot/internal/errs"
	"github.com/JakeFAU/youtube-archive-bot/internal/metrics"
)

// CollyConfig controls collector behavior.
type CollyConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// CollyFetcher fetches pages in-process with a Colly collector.
type CollyFetcher struct {
	cfg           CollyConfig
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// NewCollyFetcher builds a CollyFetcher.
func NewCollyFetcher(cfg CollyConfig, logger *zap.Logger) *CollyFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	return &CollyFetcher{cfg: cfg, baseCollector: c, logger: logger}
}

// Fetch executes a single HTTP GET and returns the body as text.
func (f *CollyFetcher) Fetch(ctx context.Context, url string) (string, error) {
	var (
		body     []byte
		status   int
		fetchErr error
	)
	start := time.Now()
	collector := f.baseCollector.Clone()
	configureHooks(collector, &body, &status, &fetchErr)

	err := runCollector(ctx, collector, url, &fetchErr)
	if ctx.Err() != nil && err != nil {
		// The visit goroutine may still be writing; leave its results alone.
		metrics.ObservePageFetch("colly", "canceled", time.Since(start))
		return "", &errs.IOError{Op: "fetch " + url, Err: err}
	}
	metrics.ObservePageFetch("colly", statusLabel(status, err), time.Since(start))
	if err != nil {
		return "", &errs.IOError{Op: "fetch " + url, Err: err}
	}
	if !utf8.Valid(body) {
		return "", &errs.UTF8DecodingError{Source: url}
	}
	f.logger.Debug("page fetched",
		zap.String("url", url),
		zap.Int("status", status),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)),
	)
	return string(body), nil
}

func configureHooks(hooks collectorHooks, body *[]byte, status *int, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*status = r.StatusCode
		*body = append([]byte(nil), r.Body...)
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			*status = r.StatusCode
		}
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func statusLabel(status int, err error) string {
	if status != 0 {
		return strconv.Itoa(status)
	}
	if err != nil {
		return "error"
	}
	return "ok"
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
