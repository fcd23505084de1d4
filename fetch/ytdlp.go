package fetch

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/media"
	"github.com/kbukum/mediascribe/process"
)

// YTDLPDownloader extracts the best audio stream of a video page with yt-dlp.
type YTDLPDownloader struct {
	binary string
	runner process.Runner
}

// NewYTDLPDownloader creates a yt-dlp backed downloader. A nil runner runs
// real processes.
func NewYTDLPDownloader(binary string, runner process.Runner) *YTDLPDownloader {
	if binary == "" {
		binary = "yt-dlp"
	}
	if runner == nil {
		runner = process.ExecRunner{}
	}
	return &YTDLPDownloader{binary: binary, runner: runner}
}

func (d *YTDLPDownloader) Download(ctx context.Context, src media.Source, dst string, limit int64) (string, error) {
	res, err := d.runner.Run(ctx, process.Command{
		Binary: d.binary,
		Args: []string{
			"--no-playlist",
			"--no-progress",
			"--quiet",
			"-f", "bestaudio/best",
			"--max-filesize", strconv.FormatInt(limit, 10),
			"--socket-timeout", "30",
			"-o", dst,
			src.URL.String(),
		},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		var stderr string
		if res != nil {
			stderr = string(res.Stderr)
		}
		return "", classifyYTDLP(src, stderr, limit, err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		// yt-dlp skips files over --max-filesize and still exits 0.
		return "", errors.TooLarge(limit)
	}
	if info.Size() > limit {
		return "", errors.TooLarge(limit)
	}
	return "", nil
}

func classifyYTDLP(src media.Source, stderr string, limit int64, err error) error {
	lower := strings.ToLower(stderr)
	cause := fmt.Errorf("%w: %s", err, lastLine(stderr))
	switch {
	case strings.Contains(lower, "unsupported url"):
		return errors.UnsupportedSource(src.Raw, "no extractor for this page")
	case strings.Contains(lower, "larger than max-filesize"):
		return errors.TooLarge(limit)
	case strings.Contains(lower, "http error 403"),
		strings.Contains(lower, "http error 401"),
		strings.Contains(lower, "private video"),
		strings.Contains(lower, "sign in to confirm"):
		return errors.FetchForbidden(src.Raw, lastLine(stderr))
	case strings.Contains(lower, "timed out"):
		return errors.FetchTimeout(src.Raw, cause)
	default:
		return errors.Unreachable(src.Raw, cause)
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
