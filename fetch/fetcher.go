package fetch

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/logger"
	"github.com/kbukum/mediascribe/media"
	"github.com/kbukum/mediascribe/resilience"
)

const sourceFile = "source"

// Fetcher downloads sources into per-job scratch directories.
type Fetcher struct {
	cfg     Config
	http    Downloader
	ytdlp   Downloader
	uploads Downloader
	log     *logger.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTP replaces the plain URL downloader.
func WithHTTP(d Downloader) Option { return func(f *Fetcher) { f.http = d } }

// WithYTDLP replaces the video page downloader.
func WithYTDLP(d Downloader) Option { return func(f *Fetcher) { f.ytdlp = d } }

// WithUploads sets the downloader for upload:// sources. Without it upload
// references are rejected.
func WithUploads(d Downloader) Option { return func(f *Fetcher) { f.uploads = d } }

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option { return func(f *Fetcher) { f.log = l } }

// New creates a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	cfg.ApplyDefaults()
	f := &Fetcher{cfg: cfg, log: logger.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	if f.http == nil {
		f.http = NewHTTPDownloader(nil)
	}
	if f.ytdlp == nil {
		f.ytdlp = NewYTDLPDownloader(cfg.YTDLPBinary, nil)
	}
	f.log = f.log.WithComponent("fetcher")
	return f
}

// Config returns the effective configuration.
func (f *Fetcher) Config() Config { return f.cfg }

// Check validates src against host policy without downloading anything.
func (f *Fetcher) Check(src media.Source) error {
	_, err := f.downloaderFor(src)
	return err
}

// Fetch downloads src into scratch and returns the local file. A zero
// deadline means now + Config.Timeout.
//
// Unreachable and Timeout failures are retried up to MaxAttempts. When the
// deadline passes the result is FETCH_TIMEOUT; when ctx is cancelled it is
// CANCELLED. On any failure the partial file is removed.
func (f *Fetcher) Fetch(ctx context.Context, src media.Source, scratch *media.Scratch, deadline time.Time) (*media.LocalMedia, error) {
	d, err := f.downloaderFor(src)
	if err != nil {
		return nil, err
	}
	if deadline.IsZero() {
		deadline = time.Now().Add(f.cfg.Timeout)
	}
	fctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	dst := scratch.Path(sourceFile + sourceExt(src))
	log := f.log.WithContext(ctx).WithFields(logger.Fields(logger.FieldSource, src.Raw))

	retry := resilience.RetryConfig{
		MaxAttempts:    f.cfg.MaxAttempts,
		InitialBackoff: f.cfg.InitialBackoff,
		MaxBackoff:     f.cfg.MaxBackoff,
		BackoffFactor:  2,
		Jitter:         0.2,
		RetryIf: func(err error) bool {
			return errors.HasCode(err, errors.ErrCodeUnreachable) || errors.HasCode(err, errors.ErrCodeFetchTimeout)
		},
		OnRetry: func(attempt int, err error, wait time.Duration) {
			log.Warn("fetch attempt failed, retrying", logger.Fields(
				logger.FieldAttempt, attempt,
				logger.FieldErrorCode, errors.CodeOf(err),
				logger.FieldError, err.Error(),
				"wait_ms", wait.Milliseconds(),
			))
		},
	}

	start := time.Now()
	contentType, err := resilience.Retry(fctx, retry, func(actx context.Context, attempt int) (string, error) {
		ct, err := f.attempt(actx, d, src, dst)
		if err != nil {
			_ = os.Remove(dst)
		}
		return ct, err
	})
	if err != nil {
		_ = os.Remove(dst)
		err = f.terminalError(ctx, fctx, src, err)
		log.Warn("fetch failed", logger.Fields(logger.FieldErrorCode, errors.CodeOf(err), logger.FieldError, err.Error()))
		return nil, err
	}

	info, err := os.Stat(dst)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("stat fetched file: %w", err))
	}
	if info.Size() > f.cfg.MaxBytes {
		_ = os.Remove(dst)
		return nil, errors.TooLarge(f.cfg.MaxBytes)
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = sniff(dst)
	}

	lm := &media.LocalMedia{Path: dst, Size: info.Size(), ContentType: contentType}
	log.Info("fetched media", logger.Fields(
		logger.FieldBytes, lm.Size,
		"content_type", lm.ContentType,
		logger.FieldDuration, time.Since(start).Milliseconds(),
	))
	return lm, nil
}

func (f *Fetcher) attempt(ctx context.Context, d Downloader, src media.Source, dst string) (string, error) {
	actx, cancel := context.WithTimeout(ctx, f.cfg.AttemptTimeout)
	defer cancel()

	ct, err := d.Download(actx, src, dst, f.cfg.MaxBytes)
	if err == nil {
		return ct, nil
	}
	// The attempt budget ran out but the overall deadline did not.
	if ctx.Err() == nil && stderrors.Is(actx.Err(), context.DeadlineExceeded) {
		return "", errors.FetchTimeout(src.Raw, err)
	}
	return "", err
}

// terminalError maps the final failure: the caller's cancellation wins, then
// the fetch deadline, then the last classified attempt error.
func (f *Fetcher) terminalError(parent, fctx context.Context, src media.Source, err error) error {
	if stderrors.Is(parent.Err(), context.Canceled) {
		return errors.Cancelled("fetching")
	}
	if fctx.Err() != nil {
		if errors.HasCode(err, errors.ErrCodeFetchTimeout) || !errors.IsAppError(err) {
			return errors.FetchTimeout(src.Raw, err)
		}
	}
	if !errors.IsAppError(err) {
		return errors.Unreachable(src.Raw, err)
	}
	return err
}

func (f *Fetcher) downloaderFor(src media.Source) (Downloader, error) {
	switch src.Kind {
	case media.SourceUpload:
		if f.uploads == nil {
			return nil, errors.UnsupportedSource(src.Raw, "uploads are not enabled")
		}
		return f.uploads, nil
	case media.SourceURL:
		host := src.Host()
		if hostMatches(host, f.cfg.BlockedHosts) {
			return nil, errors.FetchForbidden(src.Raw, "host is blocked")
		}
		if len(f.cfg.AllowedHosts) > 0 && !hostMatches(host, f.cfg.AllowedHosts) {
			return nil, errors.FetchForbidden(src.Raw, "host is not allowed")
		}
		if hostMatches(host, f.cfg.YTDLPHosts) {
			return f.ytdlp, nil
		}
		return f.http, nil
	default:
		return nil, errors.UnsupportedSource(src.Raw, "unknown source kind")
	}
}

// sourceExt keeps a known media extension from the reference so the
// transcoder can use it as a container hint.
func sourceExt(src media.Source) string {
	name := src.UploadKey
	if src.URL != nil {
		name = src.URL.Path
	}
	ext := strings.ToLower(filepath.Ext(name))
	if media.HasAllowedExtension("x" + ext) {
		return ext
	}
	return ""
}

// sniff detects the media type from the first 512 bytes, falling back to
// the file extension.
func sniff(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return "application/octet-stream"
	}
	defer file.Close()
	buf := make([]byte, 512)
	n, _ := io.ReadFull(file, buf)
	ct := http.DetectContentType(buf[:n])
	if ct == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
			return byExt
		}
	}
	return ct
}
