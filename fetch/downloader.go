package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/httpclient"
	"github.com/kbukum/mediascribe/media"
)

// Downloader writes the content of src to the file dst, stopping with
// FETCH_TOO_LARGE once more than limit bytes arrive. It returns the declared
// media type, or "" when unknown. Implementations honor ctx cancellation
// mid-download.
type Downloader interface {
	Download(ctx context.Context, src media.Source, dst string, limit int64) (string, error)
}

// DownloaderFunc adapts a function to Downloader.
type DownloaderFunc func(ctx context.Context, src media.Source, dst string, limit int64) (string, error)

func (f DownloaderFunc) Download(ctx context.Context, src media.Source, dst string, limit int64) (string, error) {
	return f(ctx, src, dst, limit)
}

// HTTPDownloader streams a plain GET response to disk.
type HTTPDownloader struct {
	client *http.Client
}

// NewHTTPDownloader creates an HTTPDownloader. A nil client gets one without
// a whole-request timeout; the Fetcher bounds attempts by context.
func NewHTTPDownloader(client *http.Client) *HTTPDownloader {
	if client == nil {
		client, _ = httpclient.New(httpclient.Config{})
	}
	return &HTTPDownloader{client: client}
}

func (d *HTTPDownloader) Download(ctx context.Context, src media.Source, dst string, limit int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL.String(), nil)
	if err != nil {
		return "", errors.UnsupportedSource(src.Raw, "cannot build request")
	}
	req.Header.Set("Accept", "audio/*, video/*, */*;q=0.5")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", transportError(ctx, src, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(src, resp.StatusCode, limit); err != nil {
		return "", err
	}
	if resp.ContentLength > limit {
		return "", errors.TooLarge(limit)
	}

	f, err := os.Create(dst)
	if err != nil {
		return "", errors.Internal(fmt.Errorf("create download file: %w", err))
	}
	// One byte past the limit is enough to know the cap was crossed.
	n, copyErr := io.Copy(f, io.LimitReader(resp.Body, limit+1))
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		return "", transportError(ctx, src, copyErr)
	case closeErr != nil:
		return "", errors.Internal(fmt.Errorf("close download file: %w", closeErr))
	case n > limit:
		return "", errors.TooLarge(limit)
	}
	return resp.Header.Get("Content-Type"), nil
}

func classifyStatus(src media.Source, status int, limit int64) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden,
		status == http.StatusUnavailableForLegalReasons:
		return errors.FetchForbidden(src.Raw, fmt.Sprintf("remote answered %d", status))
	case status == http.StatusRequestEntityTooLarge:
		return errors.TooLarge(limit)
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return errors.FetchTimeout(src.Raw, fmt.Errorf("remote answered %d", status))
	default:
		return errors.Unreachable(src.Raw, fmt.Errorf("remote answered %d", status))
	}
}

// transportError returns ctx.Err() when the caller's context ended, so the
// Fetcher can tell its own deadline and cancellation apart from remote failures.
func transportError(ctx context.Context, src media.Source, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if httpclient.IsTimeout(err) {
		return errors.FetchTimeout(src.Raw, err)
	}
	return errors.Unreachable(src.Raw, err)
}
