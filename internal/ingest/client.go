package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AngelCh415/prospection-kpi/internal/models"
	"github.com/AngelCh415/prospection-kpi/internal/utils"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

func NewHTTPClient(timeout time.Duration) HTTPClient {
	return &http.Client{Timeout: timeout}
}

// StatusError is a non-2xx answer from a remote endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-2xx: %d body=%s", e.Code, e.Body)
}

// TooLargeError is a remote export bigger than the fetcher's byte limit.
type TooLargeError struct {
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("remote export exceeds %d bytes", e.Limit)
}

// ErrURLNotAllowed rejects non-http(s) URLs and hosts outside the allowlist.
var ErrURLNotAllowed = errors.New("url not allowed")

// Fetcher downloads CSV exports published over HTTP (shared drive links,
// CRM export URLs).
type Fetcher struct {
	c        HTTPClient
	backoff  utils.Backoff
	log      *slog.Logger
	maxBytes int64
	hosts    []string
}

type FetcherOption func(*Fetcher)

// WithMaxBytes caps the downloaded body; n <= 0 means no cap.
func WithMaxBytes(n int64) FetcherOption { return func(f *Fetcher) { f.maxBytes = n } }

// WithAllowedHosts restricts downloads to these hosts and their subdomains.
// An empty list allows every host.
func WithAllowedHosts(hosts []string) FetcherOption {
	return func(f *Fetcher) {
		f.hosts = f.hosts[:0]
		for _, h := range hosts {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				f.hosts = append(f.hosts, h)
			}
		}
	}
}

func NewFetcher(c HTTPClient, backoff utils.Backoff, log *slog.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{c: c, backoff: backoff, log: log}
	for _, o := range opts {
		o(f)
	}
	return f
}

// FetchCSV downloads raw and parses it. Transport errors and 5xx answers are
// retried; 4xx answers, oversized bodies and schema errors are returned immediately.
func (f *Fetcher) FetchCSV(ctx context.Context, raw string) (models.Table, ParseStats, error) {
	if err := f.check(raw); err != nil {
		return nil, ParseStats{}, err
	}
	var body []byte
	err := f.backoff.Do(ctx, func(i int) error {
		b, err := f.get(ctx, raw)
		if err == nil {
			body = b
			return nil
		}
		var se *StatusError
		var tl *TooLargeError
		if (errors.As(err, &se) && se.Code < 500) || errors.As(err, &tl) {
			return utils.Permanent(err)
		}
		f.log.Warn("fetch csv failed", slog.String("url", raw), slog.Int("attempt", i+1), slog.String("err", err.Error()))
		return err
	})
	if err != nil {
		return nil, ParseStats{}, fmt.Errorf("fetch %s: %w", raw, err)
	}
	return ParseCSV(bytes.NewReader(body))
}

func (f *Fetcher) check(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrURLNotAllowed, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrURLNotAllowed, u.Scheme)
	}
	if len(f.hosts) == 0 {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range f.hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q", ErrURLNotAllowed, host)
}

func (f *Fetcher) get(ctx context.Context, raw string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	if f.maxBytes <= 0 {
		return io.ReadAll(resp.Body)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > f.maxBytes {
		return nil, &TooLargeError{Limit: f.maxBytes}
	}
	return b, nil
}
