package api

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/jobs"
	"github.com/kbukum/mediascribe/logger"
	"github.com/kbukum/mediascribe/server"
	"github.com/kbukum/mediascribe/sse"
	"github.com/kbukum/mediascribe/validation"
)

// events returns the transitions after ?since=N. Clients asking for
// text/event-stream (or ?stream=true) get the backlog followed by live
// transitions until the job is terminal.
func (h *Handler) events(c *gin.Context) {
	since := 0
	if raw := c.Query("since"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			server.RespondWithError(c, errors.InvalidInput("since", "must be an integer"))
			return
		}
		if err := validation.New().Min("since", n, 0).Validate(); err != nil {
			server.RespondWithError(c, err)
			return
		}
		since = n
	}

	if h.hub != nil && wantsStream(c) {
		h.stream(c, since)
		return
	}

	job, ok := h.lookup(c)
	if !ok {
		return
	}
	trs := job.Since(since)
	out := make([]jobs.Event, 0, len(trs))
	for _, tr := range trs {
		out = append(out, eventOf(job, tr))
	}
	server.RespondOKWithMeta(c, out, &server.Meta{Count: len(out)})
}

func wantsStream(c *gin.Context) bool {
	if c.Query("stream") == "true" {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), "text/event-stream")
}

func (h *Handler) stream(c *gin.Context, since int) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	log := h.log.WithContext(ctx).WithJob(id)

	// Register before reading the snapshot so no transition falls between
	// the backlog and the live feed; duplicates are dropped by sequence.
	client := sse.NewClient(sse.ClientID(id), h.log)
	if err := h.hub.Register(ctx, client); err != nil {
		server.RespondWithError(c, errors.ServiceUnavailable("event stream"))
		return
	}
	defer h.hub.Unregister(client)

	job, err := h.svc.Get(ctx, id)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	stream, err := sse.Open(c.Writer)
	if err != nil {
		server.RespondWithError(c, errors.Internal(err))
		return
	}

	last := since
	for _, tr := range job.Since(since) {
		if err := writeEvent(stream, eventOf(job, tr)); err != nil {
			return
		}
		last = tr.Seq
	}
	if job.State.Terminal() {
		_ = stream.Event(sse.EventEnd, "", []byte(`{"state":"`+string(job.State)+`"}`))
		return
	}

	keepAlive := time.NewTicker(h.cfg.KeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug("event stream closed by client")
			return

		case data, ok := <-client.Events():
			if !ok {
				return
			}
			var ev jobs.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				log.Warn("undecodable job event", logger.Fields(logger.FieldError, err.Error()))
				continue
			}
			if ev.Seq <= last {
				continue
			}
			if err := writeEvent(stream, ev); err != nil {
				return
			}
			last = ev.Seq
			if ev.To.Terminal() {
				_ = stream.Event(sse.EventEnd, "", []byte(`{"state":"`+string(ev.To)+`"}`))
				return
			}

		case <-keepAlive.C:
			if err := stream.KeepAlive(); err != nil {
				return
			}
		}
	}
}

func writeEvent(s *sse.Stream, ev jobs.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.Event(sse.EventTransition, strconv.Itoa(ev.Seq), data)
}
