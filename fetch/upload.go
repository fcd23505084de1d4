package fetch

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/media"
	"github.com/kbukum/mediascribe/storage"
)

// UploadResolver copies a previously uploaded object into the scratch dir.
type UploadResolver struct {
	store storage.Storage
}

// NewUploadResolver creates a resolver over the upload store.
func NewUploadResolver(store storage.Storage) *UploadResolver {
	return &UploadResolver{store: store}
}

func (u *UploadResolver) Download(ctx context.Context, src media.Source, dst string, limit int64) (string, error) {
	rc, obj, err := u.store.Get(ctx, src.UploadKey)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return "", errors.UnsupportedSource(src.Raw, "upload not found")
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", errors.Unreachable(src.Raw, err)
	}
	defer rc.Close()

	if obj.Size > limit {
		return "", errors.TooLarge(limit)
	}

	f, err := os.Create(dst)
	if err != nil {
		return "", errors.Internal(fmt.Errorf("create download file: %w", err))
	}
	n, copyErr := io.Copy(f, io.LimitReader(rc, limit+1))
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", errors.Unreachable(src.Raw, copyErr)
	case closeErr != nil:
		return "", errors.Internal(fmt.Errorf("close download file: %w", closeErr))
	case n > limit:
		return "", errors.TooLarge(limit)
	}
	return obj.ContentType, nil
}
