package telegram

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/kinobot/core/logger"
	"github.com/m3rciful/kinobot/core/telegram/netutil"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 90 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultRetryAttempts     = 2
	defaultRetryBackoff      = time.Second
	// clientTimeoutSlack is added on top of the long-poll timeout so getUpdates is not cut short.
	clientTimeoutSlack = 15 * time.Second
)

// HTTPClientOptions tunes the Bot API client.
type HTTPClientOptions struct {
	PollTimeout time.Duration
	Retries     int
	Backoff     time.Duration
}

// BuildHTTPClient returns a client whose overall timeout covers a long-poll
// request and which retries transient transport failures.
func BuildHTTPClient(opts HTTPClientOptions) *http.Client {
	if opts.Retries <= 0 {
		opts.Retries = defaultRetryAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultRetryBackoff
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout: opts.PollTimeout + clientTimeoutSlack,
		Transport: &retryTransport{
			base:       transport,
			maxRetries: opts.Retries,
			backoff:    opts.Backoff,
		},
	}
}

type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	ctx := req.Context()

	for attempt := 0; ; attempt++ {
		curr := req
		if attempt > 0 {
			curr = req.Clone(ctx)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				curr.Body = body
			}
		}

		resp, err := base.RoundTrip(curr)
		retryable := (err != nil && netutil.ShouldRetry(err)) ||
			(err == nil && netutil.RetryableStatus(resp.StatusCode))
		replayable := req.Body == nil || req.GetBody != nil
		if !retryable || !replayable || attempt >= t.maxRetries {
			return resp, err
		}
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		logRetry(ctx, req, attempt+1, resp, err)

		timer := time.NewTimer(t.backoff * time.Duration(attempt+1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func logRetry(ctx context.Context, req *http.Request, attempt int, resp *http.Response, err error) {
	if !logger.ShouldSampleDebug() {
		return
	}
	attrs := []slog.Attr{
		slog.String("status", "retry"),
		slog.String("path", methodOf(req)),
		slog.Int("attempt", attempt),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
	}
	if resp != nil {
		attrs = append(attrs, slog.Int("http_status", resp.StatusCode))
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "http.retry", attrs...)
}

// methodOf returns the Bot API method name; the path also carries the token.
func methodOf(req *http.Request) string {
	p := req.URL.Path
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}
