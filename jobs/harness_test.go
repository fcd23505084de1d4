package jobs

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/mediascribe/cache"
	"github.com/kbukum/mediascribe/engine"
	"github.com/kbukum/mediascribe/fetch"
	"github.com/kbukum/mediascribe/media"
	"github.com/kbukum/mediascribe/normalize"
	"github.com/kbukum/mediascribe/scheduler"
	"github.com/kbukum/mediascribe/transcription"
)

const containerHeader = 4

// pcmSeconds returns n seconds of canonical audio. Speech is a non-zero
// pattern, silence is all zeros.
func pcmSeconds(n int, speech bool) []byte {
	b := make([]byte, media.DefaultFormat().BytesFor(time.Duration(n)*time.Second))
	if speech {
		for i := range b {
			b[i] = byte(i%251) + 1
		}
	}
	return b
}

// stripHeader is a transcoder that treats the first bytes of the input as a
// container header and the rest as PCM, so differently wrapped inputs
// normalize to the same audio.
func stripHeader(ctx context.Context, in, out string, _ media.Format) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	if len(data) < containerHeader {
		return os.WriteFile(out, nil, 0o600)
	}
	return os.WriteFile(out, data[containerHeader:], 0o600)
}

// fakeEngine reports one segment per second of non-silent audio.
type fakeEngine struct {
	calls   atomic.Int32
	started chan struct{}
	gate    chan struct{}
	errs    []error
	mu      sync.Mutex
}

func (e *fakeEngine) Name() string                   { return "fake" }
func (e *fakeEngine) IsAvailable(context.Context) bool { return true }

func (e *fakeEngine) Transcribe(ctx context.Context, req transcription.Request) (*transcription.Response, error) {
	n := e.calls.Add(1)
	if e.started != nil && n == 1 {
		close(e.started)
	}
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e.mu.Lock()
	var err error
	if len(e.errs) > 0 {
		err, e.errs = e.errs[0], e.errs[1:]
	}
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	wav, rerr := os.ReadFile(req.AudioPath)
	if rerr != nil {
		return nil, rerr
	}
	resp := &transcription.Response{Segments: []transcription.Segment{}, Language: "en", LanguageProbability: 0.9}
	if len(wav) > 44 && bytes.Count(wav[44:], []byte{0}) == len(wav)-44 {
		return resp, nil
	}
	for s := 0.0; s+1 <= req.Duration+1e-9; s++ {
		resp.Segments = append(resp.Segments, transcription.Segment{Start: s, End: s + 1, Text: "word"})
	}
	return resp, nil
}

type harnessOptions struct {
	workers    int
	slots      int
	maxDepth   int
	noStart    bool
	transcoder normalize.TranscoderFunc
	cfg        Config
	cacheStore cache.Store
	wrapStore  func(Store) Store
}

type harness struct {
	srv        *httptest.Server
	mgr        *Manager
	sched      *scheduler.Scheduler
	engine     *fakeEngine
	store      *MemoryStore
	fetchStart chan struct{}

	mu   sync.Mutex
	hits map[string]int
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	if opts.workers == 0 {
		opts.workers = 2
	}
	if opts.slots == 0 {
		opts.slots = 1
	}
	if opts.transcoder == nil {
		opts.transcoder = stripHeader
	}
	h := &harness{engine: &fakeEngine{}, hits: map[string]int{}, fetchStart: make(chan struct{}, 8)}

	speech := pcmSeconds(3, true)
	files := map[string][]byte{
		"/silence.wav": append([]byte("WAV_"), pcmSeconds(10, false)...),
		"/speech.mp3":  append([]byte("MP3_"), speech...),
		"/speech.ogg":  append([]byte("OGG_"), speech...),
	}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.hits[r.URL.Path]++
		h.mu.Unlock()
		if r.URL.Path == "/slow" {
			h.fetchStart <- struct{}{}
			<-r.Context().Done()
			return
		}
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(data)
	}))
	t.Cleanup(h.srv.Close)

	fetcher := fetch.New(fetch.Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}, fetch.WithHTTP(fetch.NewHTTPDownloader(h.srv.Client())))
	normalizer := normalize.New(normalize.Config{}, opts.transcoder, nil)
	adapter := engine.New(h.engine, engine.Config{}, nil)

	h.sched = scheduler.New(scheduler.Config{
		Workers:       opts.workers,
		Slots:         opts.slots,
		MaxQueueDepth: opts.maxDepth,
	}, nil, nil)

	cfg := opts.cfg
	cfg.ScratchDir = t.TempDir()
	if cfg.InferenceBackoff == 0 {
		cfg.InferenceBackoff = time.Millisecond
	}
	h.store = NewMemoryStore()
	var store Store = h.store
	if opts.wrapStore != nil {
		store = opts.wrapStore(store)
	}
	if opts.cacheStore == nil {
		opts.cacheStore = cache.NewMemoryStore(64, time.Hour)
	}
	mgr, err := NewManager(cfg, Deps{
		Store:        store,
		Scheduler:    h.sched,
		Fetcher:      fetcher,
		Normalizer:   normalizer,
		Transcriber:  adapter,
		Cache:        cache.New(opts.cacheStore, nil, nil),
		Models:       transcription.Models,
		DefaultModel: "base",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	h.mgr = mgr

	if !opts.noStart {
		h.start(t)
	}
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.mgr.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := h.sched.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = h.sched.Stop(context.Background())
		_ = h.mgr.Stop(context.Background())
	})
}

func (h *harness) url(path string) string { return h.srv.URL + path }

func (h *harness) hitCount(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[path]
}

func (h *harness) submit(t *testing.T, path string) *Job {
	t.Helper()
	job, err := h.mgr.Submit(context.Background(), SubmitRequest{Source: h.url(path)})
	if err != nil {
		t.Fatalf("Submit(%s): %v", path, err)
	}
	return job
}

func (h *harness) wait(t *testing.T, id string) *Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := h.mgr.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait(%s): %v", id, err)
	}
	return job
}

func (h *harness) waitState(t *testing.T, id string, state State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := h.mgr.Get(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if job.State == state {
			return
		}
		if job.State.Terminal() || time.Now().After(deadline) {
			t.Fatalf("job %s is %s, want %s", id, job.State, state)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// cancelUnfinished requests cancellation of every job still running.
func (h *harness) cancelUnfinished(t *testing.T) {
	list, err := h.mgr.List(context.Background(), 0)
	if err != nil {
		t.Errorf("List: %v", err)
		return
	}
	for _, job := range list {
		if job.State.Terminal() {
			continue
		}
		if _, err := h.mgr.Cancel(context.Background(), job.ID); err != nil {
			t.Errorf("Cancel(%s): %v", job.ID, err)
		}
	}
}

// waitSlotsFree waits for every WorkerSlot to be given back.
func (h *harness) waitSlotsFree(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.sched.Slots().InUse() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("slots in use = %d", h.sched.Slots().InUse())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func states(job *Job) []State {
	out := make([]State, len(job.History))
	for i, tr := range job.History {
		out[i] = tr.To
	}
	return out
}

func visited(job *Job, s State) bool { return slices.Contains(states(job), s) }
