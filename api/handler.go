package api

import (
	"context"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/jobs"
	"github.com/kbukum/mediascribe/logger"
	"github.com/kbukum/mediascribe/server"
	"github.com/kbukum/mediascribe/sse"
	"github.com/kbukum/mediascribe/storage"
	"github.com/kbukum/mediascribe/transcription"
	"github.com/kbukum/mediascribe/validation"
)

// JobService is the part of the job manager the handlers use.
type JobService interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (*jobs.Job, error)
	Get(ctx context.Context, id string) (*jobs.Job, error)
	List(ctx context.Context, limit int) ([]*jobs.Job, error)
	Cancel(ctx context.Context, id string) (*jobs.Job, error)
}

// Handler serves the HTTP API.
type Handler struct {
	svc     JobService
	uploads storage.Storage
	hub     *sse.Hub
	cfg     Config
	log     *logger.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithUploads enables POST /v1/uploads backed by store.
func WithUploads(store storage.Storage) Option {
	return func(h *Handler) { h.uploads = store }
}

// WithEventStream enables live event streams from hub.
func WithEventStream(hub *sse.Hub) Option {
	return func(h *Handler) { h.hub = hub }
}

// WithLogger sets the handler logger.
func WithLogger(log *logger.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// NewHandler creates the API handlers over svc.
func NewHandler(svc JobService, cfg Config, opts ...Option) *Handler {
	cfg.ApplyDefaults()
	h := &Handler{svc: svc, cfg: cfg, log: logger.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.WithComponent("api")
	return h
}

// Register mounts the routes on r.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.POST("/jobs", h.submit)
	v1.GET("/jobs", h.list)
	v1.GET("/jobs/:id", h.status)
	v1.POST("/jobs/:id/cancel", h.cancel)
	v1.DELETE("/jobs/:id", h.cancel)
	v1.GET("/jobs/:id/transcript", h.transcript)
	v1.GET("/jobs/:id/events", h.events)
	v1.POST("/uploads", h.upload)
	v1.GET("/models", h.models)
}

func (h *Handler) submit(c *gin.Context) {
	var req jobs.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		server.RespondWithError(c, errors.InvalidInput("body", "request body must be a JSON object"))
		return
	}
	job, err := h.svc.Submit(c.Request.Context(), req)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	c.Header("Location", "/v1/jobs/"+job.ID)
	server.RespondAccepted(c, SubmitResponse{JobID: job.ID, State: job.State})
}

func (h *Handler) list(c *gin.Context) {
	limit := h.cfg.ListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			server.RespondWithError(c, errors.InvalidInput("limit", "must be an integer"))
			return
		}
		if err := validation.New().Range("limit", n, 1, maxListLimit).Validate(); err != nil {
			server.RespondWithError(c, err)
			return
		}
		limit = n
	}

	list, err := h.svc.List(c.Request.Context(), limit)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	out := make([]JobStatus, 0, len(list))
	for _, job := range list {
		out = append(out, statusOf(job, false))
	}
	server.RespondOKWithMeta(c, out, &server.Meta{Count: len(out), Limit: limit})
}

func (h *Handler) status(c *gin.Context) {
	job, ok := h.lookup(c)
	if !ok {
		return
	}
	server.RespondOK(c, statusOf(job, true))
}

func (h *Handler) cancel(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	job, err := h.svc.Cancel(c.Request.Context(), id)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondAccepted(c, CancelResponse{JobID: job.ID, State: job.State, CancelRequested: job.CancelRequested})
}

func (h *Handler) transcript(c *gin.Context) {
	format := c.DefaultQuery("format", transcription.FormatJSON)
	if err := validation.New().OneOf("format", format, transcription.Formats).Validate(); err != nil {
		server.RespondWithError(c, err)
		return
	}
	job, ok := h.lookup(c)
	if !ok {
		return
	}
	if job.State != jobs.StateSucceeded || job.Transcript == nil {
		server.RespondWithError(c, errors.Conflict("The job has no transcript in state "+string(job.State)+".").
			WithDetail("state", string(job.State)))
		return
	}

	if format == transcription.FormatJSON {
		server.RespondOK(c, job.Transcript)
		return
	}
	body, contentType, err := transcription.Render(job.Transcript, format)
	if err != nil {
		server.RespondWithError(c, errors.Internal(err))
		return
	}
	if format == transcription.FormatSRT || format == transcription.FormatVTT {
		c.Header("Content-Disposition", `attachment; filename="`+job.ID+"."+format+`"`)
	}
	c.Data(http.StatusOK, contentType, []byte(body))
}

func (h *Handler) models(c *gin.Context) {
	server.RespondOK(c, ModelsResponse{Models: slices.Clone(h.cfg.Models), Default: h.cfg.DefaultModel})
}

// jobID validates the :id path parameter, writing the error response when
// it is malformed.
func jobID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if err := validation.New().RequiredUUID("id", id).Validate(); err != nil {
		server.RespondWithError(c, err)
		return "", false
	}
	return id, true
}

func (h *Handler) lookup(c *gin.Context) (*jobs.Job, bool) {
	id, ok := jobID(c)
	if !ok {
		return nil, false
	}
	job, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		server.RespondWithError(c, err)
		return nil, false
	}
	return job, true
}
