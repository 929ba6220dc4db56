// Package fetcher downloads orbit products from remote archives over FTP or
// HTTP(S).
package fetcher

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/gnssproc/internal/resilience"
)

// ErrNotFound means the archive answered but does not hold the file yet.
var ErrNotFound = errors.New("fetcher: not found")

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the body. The caller closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Options configures an ArchiveFetcher.
type Options struct {
	Timeout    time.Duration
	RatePerSec float64
	UserAgent  string
	Retry      resilience.RetryConfig
}

// ArchiveFetcher routes each URL to the FTP or HTTP fetcher by scheme,
// shares one rate limit across all requests, retries transient failures and
// writes files atomically.
type ArchiveFetcher struct {
	ftp     Fetcher
	http    Fetcher
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// New creates an ArchiveFetcher.
func New(opts Options) *ArchiveFetcher {
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	return &ArchiveFetcher{
		ftp:     NewFTPFetcher(FTPOptions{Timeout: opts.Timeout}),
		http:    NewHTTPFetcher(HTTPOptions{Timeout: opts.Timeout, UserAgent: opts.UserAgent}),
		limiter: rate.NewLimiter(limit, 1),
		retry:   opts.Retry,
	}
}

func (a *ArchiveFetcher) route(rawURL string) (Fetcher, *url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}
	switch u.Scheme {
	case "ftp":
		return a.ftp, u, nil
	case "http", "https":
		return a.http, u, nil
	default:
		return nil, nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

// Download implements Fetcher.
func (a *ArchiveFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, u, err := a.route(rawURL)
	if err != nil {
		return nil, err
	}
	retry := a.retry
	retry.OnRetry = resilience.RetryLogger(u.Host, "download")
	return resilience.DoVal(ctx, retry, func(ctx context.Context) (io.ReadCloser, error) {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}
		return f.Download(ctx, rawURL)
	})
}

// DownloadToFile implements Fetcher through the scheme's own fetcher. The
// file appears at path only once it is complete.
func (a *ArchiveFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	f, u, err := a.route(rawURL)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, eris.Wrap(err, "fetcher: create directory")
	}

	retry := a.retry
	retry.OnRetry = resilience.RetryLogger(u.Host, "download")
	n, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (int64, error) {
		if err := a.limiter.Wait(ctx); err != nil {
			return 0, eris.Wrap(err, "fetcher: rate limiter wait")
		}
		return f.DownloadToFile(ctx, rawURL, path)
	})
	if err != nil {
		return n, err
	}
	zap.L().Debug("fetcher: downloaded", zap.String("url", rawURL), zap.String("path", path), zap.Int64("bytes", n))
	return n, nil
}
