package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kbukum/mediascribe/api"
	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/jobs"
	"github.com/kbukum/mediascribe/media"
	"github.com/kbukum/mediascribe/sse"
	"github.com/kbukum/mediascribe/storage/local"
	"github.com/kbukum/mediascribe/transcription"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeService struct {
	mu        sync.Mutex
	jobs      map[string]*jobs.Job
	submitErr error
	lastReq   jobs.SubmitRequest
	lastLimit int
}

func newFakeService() *fakeService {
	return &fakeService{jobs: make(map[string]*jobs.Job)}
}

func (f *fakeService) add(job *jobs.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
}

func (f *fakeService) Submit(_ context.Context, req jobs.SubmitRequest) (*jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	job := jobs.NewJob(uuid.NewString(), req.Source, jobs.Options{Model: req.Model, Language: req.Language}, time.Now())
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeService) Get(_ context.Context, id string) (*jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, errors.NotFound("job", id)
	}
	return job.Clone(), nil
}

func (f *fakeService) List(_ context.Context, limit int) ([]*jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	out := make([]*jobs.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, j.Clone())
	}
	return out, nil
}

func (f *fakeService) Cancel(_ context.Context, id string) (*jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, errors.NotFound("job", id)
	}
	if job.State == jobs.StateSubmitted {
		if _, err := job.Apply(jobs.StateCancelled, time.Now(), jobs.NewJobError(errors.Cancelled("submitted"), jobs.StateSubmitted)); err != nil {
			return nil, err
		}
		return job.Clone(), nil
	}
	out := job.Clone()
	if !job.State.Terminal() {
		out.CancelRequested = true
	}
	return out, nil
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Meta  map[string]int  `json:"meta"`
	Error struct {
		Code    errors.ErrorCode `json:"code"`
		Details map[string]any   `json:"details"`
	} `json:"error"`
}

func newRouter(h *api.Handler) *gin.Engine {
	r := gin.New()
	h.Register(r)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body io.Reader, header ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s: %v", w.Body.String(), err)
		}
	}
	return w, env
}

func succeededJob(t *testing.T) *jobs.Job {
	t.Helper()
	now := time.Now()
	job := jobs.NewJob(uuid.NewString(), "https://example.com/a.mp3", jobs.Options{Model: "base"}, now)
	for _, st := range []jobs.State{jobs.StateFetching, jobs.StateNormalizing, jobs.StateTranscribing, jobs.StateSucceeded} {
		if _, err := job.Apply(st, now, nil); err != nil {
			t.Fatal(err)
		}
	}
	job.Transcript = &transcription.Transcript{
		Segments: []transcription.Segment{{Start: 0, End: 1.5, Text: "hello"}, {Start: 1.5, End: 3, Text: "world"}},
		Text:     "hello world",
		Language: "en",
		Duration: 3,
	}
	return job
}

func TestSubmit(t *testing.T) {
	svc := newFakeService()
	r := newRouter(api.NewHandler(svc, api.Config{}))

	w, env := do(t, r, http.MethodPost, "/v1/jobs", strings.NewReader(`{"source":"https://example.com/a.mp3","model":"small"}`))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.SubmitResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.State != jobs.StateSubmitted || resp.JobID == "" {
		t.Errorf("unexpected response %+v", resp)
	}
	if loc := w.Header().Get("Location"); loc != "/v1/jobs/"+resp.JobID {
		t.Errorf("Location = %q", loc)
	}
	if svc.lastReq.Model != "small" {
		t.Errorf("model not forwarded: %+v", svc.lastReq)
	}
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   errors.ErrorCode
		retryAfter string
	}{
		{"malformed body", `{`, nil, http.StatusBadRequest, errors.ErrCodeInvalidInput, ""},
		{"overloaded", `{"source":"https://example.com/a.mp3"}`, errors.Overloaded(10, 10, 5*time.Second), http.StatusServiceUnavailable, errors.ErrCodeOverloaded, "5"},
		{"unsupported source", `{"source":"ftp://x"}`, errors.UnsupportedSource("ftp://x", "scheme"), http.StatusBadRequest, errors.ErrCodeUnsupportedSource, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			svc.submitErr = tt.err
			r := newRouter(api.NewHandler(svc, api.Config{}))

			w, env := do(t, r, http.MethodPost, "/v1/jobs", strings.NewReader(tt.body))
			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if env.Error.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", env.Error.Code, tt.wantCode)
			}
			if got := w.Header().Get("Retry-After"); got != tt.retryAfter {
				t.Errorf("Retry-After = %q, want %q", got, tt.retryAfter)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	svc := newFakeService()
	job := succeededJob(t)
	svc.add(job)
	r := newRouter(api.NewHandler(svc, api.Config{}))

	w, env := do(t, r, http.MethodGet, "/v1/jobs/"+job.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var st api.JobStatus
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatal(err)
	}
	if st.State != jobs.StateSucceeded || st.Transcript == nil || st.Transcript.Text != "hello world" {
		t.Errorf("unexpected status %+v", st)
	}

	w, env = do(t, r, http.MethodGet, "/v1/jobs/"+uuid.NewString(), nil)
	if w.Code != http.StatusNotFound || env.Error.Code != errors.ErrCodeNotFound {
		t.Errorf("expected 404 NOT_FOUND, got %d %s", w.Code, env.Error.Code)
	}

	w, env = do(t, r, http.MethodGet, "/v1/jobs/not-a-uuid", nil)
	if w.Code != http.StatusBadRequest || env.Error.Code != errors.ErrCodeInvalidInput {
		t.Errorf("expected 400 INVALID_INPUT, got %d %s", w.Code, env.Error.Code)
	}
}

func TestList(t *testing.T) {
	svc := newFakeService()
	svc.add(succeededJob(t))
	svc.add(succeededJob(t))
	r := newRouter(api.NewHandler(svc, api.Config{ListLimit: 20}))

	w, env := do(t, r, http.MethodGet, "/v1/jobs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var list []api.JobStatus
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || env.Meta["count"] != 2 || env.Meta["limit"] != 20 {
		t.Errorf("unexpected list %d meta %v", len(list), env.Meta)
	}
	for _, s := range list {
		if s.Transcript != nil {
			t.Error("list entries should not carry transcripts")
		}
	}

	do(t, r, http.MethodGet, "/v1/jobs?limit=5", nil)
	if svc.lastLimit != 5 {
		t.Errorf("limit = %d, want 5", svc.lastLimit)
	}
	for _, q := range []string{"0", "100000", "abc"} {
		w, _ := do(t, r, http.MethodGet, "/v1/jobs?limit="+q, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", q, w.Code)
		}
	}
}

func TestCancel(t *testing.T) {
	svc := newFakeService()
	queued := jobs.NewJob(uuid.NewString(), "https://example.com/a.mp3", jobs.Options{}, time.Now())
	running := jobs.NewJob(uuid.NewString(), "https://example.com/b.mp3", jobs.Options{}, time.Now())
	if _, err := running.Apply(jobs.StateFetching, time.Now(), nil); err != nil {
		t.Fatal(err)
	}
	done := succeededJob(t)
	for _, j := range []*jobs.Job{queued, running, done} {
		svc.add(j)
	}
	r := newRouter(api.NewHandler(svc, api.Config{}))

	tests := []struct {
		name      string
		method    string
		path      string
		wantState jobs.State
		wantReq   bool
	}{
		{"queued job", http.MethodPost, "/v1/jobs/" + queued.ID + "/cancel", jobs.StateCancelled, false},
		{"running job", http.MethodDelete, "/v1/jobs/" + running.ID, jobs.StateFetching, true},
		{"finished job", http.MethodPost, "/v1/jobs/" + done.ID + "/cancel", jobs.StateSucceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, r, tt.method, tt.path, nil)
			if w.Code != http.StatusAccepted {
				t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
			}
			var resp api.CancelResponse
			if err := json.Unmarshal(env.Data, &resp); err != nil {
				t.Fatal(err)
			}
			if resp.State != tt.wantState || resp.CancelRequested != tt.wantReq {
				t.Errorf("unexpected response %+v", resp)
			}
		})
	}
}

func TestTranscriptFormats(t *testing.T) {
	svc := newFakeService()
	job := succeededJob(t)
	svc.add(job)
	r := newRouter(api.NewHandler(svc, api.Config{}))

	tests := []struct {
		format      string
		contentType string
		contains    string
	}{
		{"json", "application/json", `"text":"hello world"`},
		{"text", "text/plain", "hello world\n"},
		{"timestamps", "text/plain", "[00:00 - 00:01] hello"},
		{"srt", "application/x-subrip", "00:00:01,500 --> 00:00:03,000"},
		{"vtt", "text/vtt", "WEBVTT"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			w, _ := do(t, r, http.MethodGet, "/v1/jobs/"+job.ID+"/transcript?format="+tt.format, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, tt.contentType) {
				t.Errorf("content type = %q", ct)
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("body %q does not contain %q", w.Body.String(), tt.contains)
			}
		})
	}

	w, _ := do(t, r, http.MethodGet, "/v1/jobs/"+job.ID+"/transcript?format=docx", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown format: expected 400, got %d", w.Code)
	}

	pending := jobs.NewJob(uuid.NewString(), "https://example.com/c.mp3", jobs.Options{}, time.Now())
	svc.add(pending)
	w, env := do(t, r, http.MethodGet, "/v1/jobs/"+pending.ID+"/transcript", nil)
	if w.Code != http.StatusConflict || env.Error.Code != errors.ErrCodeConflict {
		t.Errorf("pending job: expected 409 CONFLICT, got %d %s", w.Code, env.Error.Code)
	}
}

func TestEventsSince(t *testing.T) {
	svc := newFakeService()
	job := succeededJob(t)
	svc.add(job)
	r := newRouter(api.NewHandler(svc, api.Config{}))

	w, env := do(t, r, http.MethodGet, "/v1/jobs/"+job.ID+"/events?since=3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var evs []jobs.Event
	if err := json.Unmarshal(env.Data, &evs); err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 || evs[0].Seq != 4 || evs[1].To != jobs.StateSucceeded {
		t.Errorf("unexpected events %+v", evs)
	}

	w, _ = do(t, r, http.MethodGet, "/v1/jobs/"+job.ID+"/events?since=-1", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative since: expected 400, got %d", w.Code)
	}
}

func TestEventStream(t *testing.T) {
	hub := sse.NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	svc := newFakeService()
	job := jobs.NewJob(uuid.NewString(), "https://example.com/a.mp3", jobs.Options{}, time.Now())
	if _, err := job.Apply(jobs.StateFetching, time.Now(), nil); err != nil {
		t.Fatal(err)
	}
	svc.add(job)
	srv := httptest.NewServer(newRouter(api.NewHandler(svc, api.Config{}, api.WithEventStream(hub))))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/jobs/"+job.ID+"/events", nil)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// The backlog is written after registration, so reading its last line
	// means the client is subscribed.
	reader := bufio.NewReader(resp.Body)
	readUntil(t, reader, `"seq":2`)

	sink := sse.NewJobSink(hub)
	ctx := context.Background()
	at := time.Now()
	_ = sink.Publish(ctx, jobs.Event{JobID: job.ID, Seq: 2, From: jobs.StateSubmitted, To: jobs.StateFetching, At: at})
	_ = sink.Publish(ctx, jobs.Event{JobID: uuid.NewString(), Seq: 3, To: jobs.StateFailed, At: at})
	_ = sink.Publish(ctx, jobs.Event{JobID: job.ID, Seq: 3, From: jobs.StateFetching, To: jobs.StateNormalizing, At: at})
	_ = sink.Publish(ctx, jobs.Event{JobID: job.ID, Seq: 4, From: jobs.StateNormalizing, To: jobs.StateFailed, At: at})

	rest, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	body := string(rest)
	if strings.Count(body, "event: transition") != 2 {
		t.Errorf("expected 2 live transitions, got %q", body)
	}
	if !strings.Contains(body, "id: 3\n") || !strings.Contains(body, "id: 4\n") {
		t.Errorf("missing sequence ids in %q", body)
	}
	if !strings.Contains(body, "event: end\ndata: {\"state\":\"failed\"}") {
		t.Errorf("missing end event in %q", body)
	}
}

func readUntil(t *testing.T, r *bufio.Reader, marker string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended before %q: %v", marker, err)
		}
		if strings.Contains(line, marker) {
			return
		}
	}
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	store, err := local.NewStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r := newRouter(api.NewHandler(newFakeService(), api.Config{MaxUploadSize: 1024}, api.WithUploads(store)))

	body, ct := multipartBody(t, "file", "../My Talk (final).mp3", []byte("ID3-audio"))
	w, env := do(t, r, http.MethodPost, "/v1/uploads", body, "Content-Type", ct)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.UploadResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(resp.Source, media.UploadScheme) || resp.Size != 9 {
		t.Errorf("unexpected response %+v", resp)
	}
	if _, err := media.ParseSource(resp.Source); err != nil {
		t.Errorf("upload source not submittable: %v", err)
	}
	obj, err := store.Stat(context.Background(), resp.Key)
	if err != nil || obj.Size != 9 {
		t.Errorf("stored object = %+v, %v", obj, err)
	}
}

func TestUploadRejections(t *testing.T) {
	store, err := local.NewStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r := newRouter(api.NewHandler(newFakeService(), api.Config{MaxUploadSize: 16}, api.WithUploads(store)))

	tests := []struct {
		name       string
		field      string
		filename   string
		size       int
		wantStatus int
		wantCode   errors.ErrorCode
	}{
		{"bad extension", "file", "notes.exe", 4, http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"missing file", "other", "a.mp3", 4, http.StatusBadRequest, errors.ErrCodeMissingField},
		{"too large", "file", "a.mp3", 64, http.StatusRequestEntityTooLarge, errors.ErrCodeTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.field, tt.filename, bytes.Repeat([]byte("a"), tt.size))
			w, env := do(t, r, http.MethodPost, "/v1/uploads", body, "Content-Type", ct)
			if w.Code != tt.wantStatus || env.Error.Code != tt.wantCode {
				t.Errorf("got %d %s, want %d %s", w.Code, env.Error.Code, tt.wantStatus, tt.wantCode)
			}
		})
	}

	noStore := newRouter(api.NewHandler(newFakeService(), api.Config{}))
	body, ct := multipartBody(t, "file", "a.mp3", []byte("x"))
	w, _ := do(t, noStore, http.MethodPost, "/v1/uploads", body, "Content-Type", ct)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("no storage: expected 503, got %d", w.Code)
	}
}

func TestModels(t *testing.T) {
	r := newRouter(api.NewHandler(newFakeService(), api.Config{Models: []string{"tiny", "base"}, DefaultModel: "base"}))
	w, env := do(t, r, http.MethodGet, "/v1/models", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp api.ModelsResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Models) != 2 || resp.Default != "base" {
		t.Errorf("unexpected models %+v", resp)
	}
}
