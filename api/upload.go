package api

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/logger"
	"github.com/kbukum/mediascribe/media"
	"github.com/kbukum/mediascribe/server"
)

// multipartOverhead leaves room for boundaries and part headers on top of
// the file itself.
const multipartOverhead = 1 << 20

func (h *Handler) upload(c *gin.Context) {
	if h.uploads == nil {
		server.RespondWithError(c, errors.ServiceUnavailable("upload storage"))
		return
	}
	limit := h.cfg.MaxUploadSize
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if stderrors.As(err, &tooBig) {
			server.RespondWithError(c, errors.TooLarge(limit))
			return
		}
		server.RespondWithError(c, errors.MissingField("file"))
		return
	}
	if fh.Size > limit {
		server.RespondWithError(c, errors.TooLarge(limit))
		return
	}
	name := media.SafeFilename(fh.Filename)
	if !media.HasAllowedExtension(name) {
		server.RespondWithError(c, errors.InvalidInput("file",
			"file type not allowed; accepted: "+strings.Join(media.AllowedUploadExtensions, ", ")))
		return
	}

	f, err := fh.Open()
	if err != nil {
		server.RespondWithError(c, errors.Internal(err))
		return
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := uuid.NewString() + "/" + strings.ReplaceAll(name, "..", "_")
	ctx := c.Request.Context()
	n, err := h.uploads.Put(ctx, key, f, contentType)
	if err != nil {
		server.RespondWithError(c, errors.StorageError("uploads", err))
		return
	}

	h.log.WithContext(ctx).Info("media uploaded", logger.Fields(
		"key", key,
		logger.FieldBytes, n,
	))
	server.RespondCreated(c, UploadResponse{
		Source:   media.UploadRef(key),
		Key:      key,
		Filename: name,
		Size:     n,
	})
}
