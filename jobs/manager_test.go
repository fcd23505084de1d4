package jobs

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/mediascribe/cache"
	"github.com/kbukum/mediascribe/errors"
	"github.com/kbukum/mediascribe/media"
	"github.com/kbukum/mediascribe/transcription"
)

// cancelOnLookup calls cancel from inside the first cache lookup, or the
// first one that finds a transcript when onHit is set.
type cancelOnLookup struct {
	cache.Store
	onHit  bool
	once   sync.Once
	cancel func()
}

func (s *cancelOnLookup) Get(ctx context.Context, key string) (*transcription.Transcript, bool, error) {
	t, ok, err := s.Store.Get(ctx, key)
	if ok || !s.onHit {
		s.once.Do(s.cancel)
	}
	return t, ok, err
}

// slowCreateStore delays job creation and optionally fails it.
type slowCreateStore struct {
	Store
	delay time.Duration
	fail  bool
}

func (s *slowCreateStore) Create(ctx context.Context, job *Job) error {
	time.Sleep(s.delay)
	if s.fail {
		return errors.Internal(stderrors.New("store unavailable"))
	}
	return s.Store.Create(ctx, job)
}

func TestSilentAudioSucceedsWithoutSegments(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	job := h.wait(t, h.submit(t, "/silence.wav").ID)

	if job.State != StateSucceeded || job.Error != nil {
		t.Fatalf("state=%s error=%v", job.State, job.Error)
	}
	if job.Transcript == nil || len(job.Transcript.Segments) != 0 {
		t.Fatalf("transcript = %+v, want empty segments", job.Transcript)
	}
	if job.Fingerprint == "" {
		t.Error("fingerprint not recorded")
	}
	want := []State{StateSubmitted, StateFetching, StateNormalizing, StateTranscribing, StateSucceeded}
	if !slices.Equal(states(job), want) {
		t.Errorf("history = %v, want %v", states(job), want)
	}
	if h.sched.Slots().InUse() != 0 {
		t.Errorf("slots in use = %d", h.sched.Slots().InUse())
	}
}

func TestMissingSourceFailsAfterRetries(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	job := h.wait(t, h.submit(t, "/missing.mp3").ID)

	if job.State != StateFailed {
		t.Fatalf("state = %s", job.State)
	}
	if job.Error == nil || job.Error.Code != errors.ErrCodeUnreachable || job.Error.Kind != errors.KindFetch {
		t.Fatalf("error = %+v", job.Error)
	}
	if job.Error.Stage != StateFetching {
		t.Errorf("stage = %s", job.Error.Stage)
	}
	if job.Transcript != nil {
		t.Error("failed job must carry no transcript")
	}
	if n := h.hitCount("/missing.mp3"); n != 3 {
		t.Errorf("fetch attempts = %d, want 3", n)
	}
	if h.engine.calls.Load() != 0 {
		t.Error("engine must not run for a failed fetch")
	}
}

func TestIdenticalContentTranscribedOnce(t *testing.T) {
	h := newHarness(t, harnessOptions{workers: 2, slots: 2})
	h.engine.gate = make(chan struct{})
	h.engine.started = make(chan struct{})

	a := h.submit(t, "/speech.mp3")
	b := h.submit(t, "/speech.ogg")

	<-h.engine.started
	h.waitState(t, a.ID, StateTranscribing)
	h.waitState(t, b.ID, StateTranscribing)
	close(h.engine.gate)

	ja, jb := h.wait(t, a.ID), h.wait(t, b.ID)
	if ja.State != StateSucceeded || jb.State != StateSucceeded {
		t.Fatalf("states = %s, %s", ja.State, jb.State)
	}
	if n := h.engine.calls.Load(); n != 1 {
		t.Fatalf("engine calls = %d, want 1", n)
	}
	if ja.Fingerprint != jb.Fingerprint {
		t.Error("identical audio must share a fingerprint")
	}
	if ja.Transcript.Text != jb.Transcript.Text || len(ja.Transcript.Segments) != 3 {
		t.Errorf("transcripts differ: %+v vs %+v", ja.Transcript, jb.Transcript)
	}

	c := h.wait(t, h.submit(t, "/speech.mp3").ID)
	if c.State != StateSucceeded || !visited(c, StateCacheHit) || visited(c, StateTranscribing) {
		t.Errorf("repeat job history = %v, want cache hit", states(c))
	}
	if h.engine.calls.Load() != 1 {
		t.Error("cache hit must not run the engine")
	}
}

func TestSubmitRejectsWhenQueueFull(t *testing.T) {
	h := newHarness(t, harnessOptions{maxDepth: 2, noStart: true})
	h.submit(t, "/speech.mp3")
	h.submit(t, "/speech.ogg")

	_, err := h.mgr.Submit(context.Background(), SubmitRequest{Source: h.url("/silence.wav")})
	if !errors.HasCode(err, errors.ErrCodeOverloaded) {
		t.Fatalf("err = %v, want Overloaded", err)
	}
	list, _ := h.mgr.List(context.Background(), 0)
	if len(list) != 2 {
		t.Errorf("jobs created = %d, want 2", len(list))
	}
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t, harnessOptions{noStart: true})
	tests := []struct {
		name string
		req  SubmitRequest
		code errors.ErrorCode
	}{
		{"bad scheme", SubmitRequest{Source: "ftp://example.com/a.mp3"}, errors.ErrCodeUnsupportedSource},
		{"empty", SubmitRequest{Source: " "}, errors.ErrCodeUnsupportedSource},
		{"upload without storage", SubmitRequest{Source: "upload://abc.mp3"}, errors.ErrCodeUnsupportedSource},
		{"unknown model", SubmitRequest{Source: h.url("/speech.mp3"), Model: "huge"}, errors.ErrCodeInvalidInput},
		{"bad language", SubmitRequest{Source: h.url("/speech.mp3"), Language: "english"}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.mgr.Submit(context.Background(), tt.req)
			if !errors.HasCode(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestCancelQueuedJob(t *testing.T) {
	h := newHarness(t, harnessOptions{noStart: true})
	job := h.submit(t, "/speech.mp3")

	got, err := h.mgr.Cancel(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != StateCancelled || got.Error == nil || got.Error.Code != errors.ErrCodeCancelled {
		t.Fatalf("job = %+v", got)
	}
	if h.sched.Queued() != 0 {
		t.Error("cancelled job should leave the queue")
	}

	again, err := h.mgr.Cancel(context.Background(), job.ID)
	if err != nil || again.State != StateCancelled {
		t.Errorf("second cancel = %v %v", again, err)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	h := newHarness(t, harnessOptions{noStart: true})
	if _, err := h.mgr.Cancel(context.Background(), "nope"); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestCancelDuringFetchNeverTranscribes(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	job := h.submit(t, "/slow")
	<-h.fetchStart

	snap, err := h.mgr.Cancel(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !snap.CancelRequested {
		t.Error("running job snapshot should report the pending cancellation")
	}

	done := h.wait(t, job.ID)
	if done.State != StateCancelled {
		t.Fatalf("state = %s (%v)", done.State, done.Error)
	}
	if visited(done, StateNormalizing) || visited(done, StateTranscribing) {
		t.Errorf("history = %v", states(done))
	}
	if done.Error.Code != errors.ErrCodeCancelled {
		t.Errorf("error = %+v", done.Error)
	}
	if h.sched.Slots().InUse() != 0 || h.engine.calls.Load() != 0 {
		t.Errorf("slots=%d engine=%d", h.sched.Slots().InUse(), h.engine.calls.Load())
	}
}

func TestCancelDuringNormalizeNeverTranscribes(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var scratchDir string
	h := newHarness(t, harnessOptions{transcoder: func(ctx context.Context, in, out string, f media.Format) error {
		scratchDir = filepath.Dir(in)
		close(started)
		<-release
		return stripHeader(ctx, in, out, f)
	}})
	job := h.submit(t, "/speech.mp3")
	<-started
	if _, err := h.mgr.Cancel(context.Background(), job.ID); err != nil {
		t.Fatal(err)
	}
	close(release)

	done := h.wait(t, job.ID)
	if done.State != StateCancelled {
		t.Fatalf("state = %s", done.State)
	}
	if !visited(done, StateNormalizing) || visited(done, StateTranscribing) {
		t.Errorf("history = %v", states(done))
	}
	if done.Error.Stage != StateNormalizing {
		t.Errorf("cancelled at %s", done.Error.Stage)
	}
	if h.sched.Slots().InUse() != 0 || h.engine.calls.Load() != 0 {
		t.Errorf("slots=%d engine=%d", h.sched.Slots().InUse(), h.engine.calls.Load())
	}
	if _, err := os.Stat(scratchDir); !os.IsNotExist(err) {
		t.Errorf("scratch dir %s not removed: %v", scratchDir, err)
	}
}

func TestResourceExhaustedIsRetried(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.engine.errs = []error{errors.ResourceExhausted(stderrors.New("out of memory"))}

	job := h.wait(t, h.submit(t, "/speech.mp3").ID)
	if job.State != StateSucceeded {
		t.Fatalf("state = %s (%v)", job.State, job.Error)
	}
	if n := h.engine.calls.Load(); n != 2 {
		t.Errorf("engine calls = %d, want 2", n)
	}
	if h.sched.Slots().InUse() != 0 {
		t.Error("slot leaked")
	}
}

func TestResourceExhaustedGivesUp(t *testing.T) {
	h := newHarness(t, harnessOptions{cfg: Config{InferenceAttempts: 2}})
	oom := errors.ResourceExhausted(stderrors.New("out of memory"))
	h.engine.errs = []error{oom, oom, oom}

	job := h.wait(t, h.submit(t, "/speech.mp3").ID)
	if job.State != StateFailed || job.Error.Code != errors.ErrCodeResourceExhausted {
		t.Fatalf("job = %s %+v", job.State, job.Error)
	}
	if n := h.engine.calls.Load(); n != 2 {
		t.Errorf("engine calls = %d, want 2", n)
	}
}

func TestInferenceFailureIsNotCached(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.engine.errs = []error{errors.InferenceFailure(stderrors.New("garbage"))}

	first := h.wait(t, h.submit(t, "/speech.mp3").ID)
	if first.State != StateFailed || first.Error.Code != errors.ErrCodeInferenceFailure {
		t.Fatalf("first = %s %+v", first.State, first.Error)
	}
	if first.Error.Stage != StateTranscribing {
		t.Errorf("stage = %s", first.Error.Stage)
	}
	if h.engine.calls.Load() != 1 {
		t.Fatalf("InferenceFailure must not be retried")
	}

	second := h.wait(t, h.submit(t, "/speech.mp3").ID)
	if second.State != StateSucceeded {
		t.Fatalf("second = %s %+v", second.State, second.Error)
	}
	if h.engine.calls.Load() != 2 {
		t.Error("a failed computation must be retried by the next job")
	}
}

func TestNormalizeStageTimeout(t *testing.T) {
	h := newHarness(t, harnessOptions{
		cfg: Config{NormalizeTimeout: 20 * time.Millisecond},
		transcoder: func(ctx context.Context, in, out string, f media.Format) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	job := h.wait(t, h.submit(t, "/speech.mp3").ID)
	if job.State != StateFailed || job.Error.Code != errors.ErrCodeStageTimeout {
		t.Fatalf("job = %s %+v", job.State, job.Error)
	}
	if job.Error.Stage != StateNormalizing {
		t.Errorf("stage = %s", job.Error.Stage)
	}
	if h.sched.Slots().InUse() != 0 {
		t.Error("slot must be released after a stage timeout")
	}
}

func TestTranscribeStageTimeout(t *testing.T) {
	h := newHarness(t, harnessOptions{cfg: Config{TranscribeTimeout: 50 * time.Millisecond}})
	h.engine.gate = make(chan struct{})

	job := h.wait(t, h.submit(t, "/speech.mp3").ID)
	if job.State != StateFailed || job.Error.Code != errors.ErrCodeStageTimeout {
		t.Fatalf("job = %s %+v", job.State, job.Error)
	}
	if job.Error.Stage != StateTranscribing {
		t.Errorf("stage = %s", job.Error.Stage)
	}
	if n := h.engine.calls.Load(); n != 1 {
		t.Errorf("engine calls = %d, want 1", n)
	}
	h.waitSlotsFree(t)
}

func TestCancelDuringCacheLookupNeverTranscribes(t *testing.T) {
	var h *harness
	store := &cancelOnLookup{Store: cache.NewMemoryStore(8, time.Hour)}
	store.cancel = func() { h.cancelUnfinished(t) }
	h = newHarness(t, harnessOptions{cacheStore: store})

	done := h.wait(t, h.submit(t, "/speech.mp3").ID)
	if done.State != StateCancelled {
		t.Fatalf("state = %s (%v)", done.State, done.Error)
	}
	want := []State{StateSubmitted, StateFetching, StateNormalizing, StateCancelled}
	if !slices.Equal(states(done), want) {
		t.Errorf("history = %v, want %v", states(done), want)
	}
	if h.engine.calls.Load() != 0 {
		t.Errorf("engine calls = %d, want 0", h.engine.calls.Load())
	}
	h.waitSlotsFree(t)
}

func TestCancelledJobStopsInferenceRetries(t *testing.T) {
	h := newHarness(t, harnessOptions{cfg: Config{InferenceAttempts: 5, InferenceBackoff: 5 * time.Millisecond}})
	oom := errors.ResourceExhausted(stderrors.New("out of memory"))
	h.engine.errs = []error{oom, oom, oom, oom, oom}
	h.engine.started = make(chan struct{})
	h.engine.gate = make(chan struct{})

	job := h.submit(t, "/speech.mp3")
	<-h.engine.started
	if _, err := h.mgr.Cancel(context.Background(), job.ID); err != nil {
		t.Fatal(err)
	}
	done := h.wait(t, job.ID)
	if done.State != StateCancelled || done.Error.Stage != StateTranscribing {
		t.Fatalf("job = %s %+v", done.State, done.Error)
	}

	// The running call finishes; the remaining attempts would take well
	// under this long.
	close(h.engine.gate)
	time.Sleep(200 * time.Millisecond)
	if n := h.engine.calls.Load(); n != 1 {
		t.Errorf("engine calls = %d, want 1", n)
	}
	h.waitSlotsFree(t)
}

func TestCancelledJobEventsReachSinks(t *testing.T) {
	var h *harness
	store := &cancelOnLookup{Store: cache.NewMemoryStore(8, time.Hour), onHit: true}
	store.cancel = func() { h.cancelUnfinished(t) }
	h = newHarness(t, harnessOptions{cacheStore: store})

	type delivery struct {
		to   State
		live bool
	}
	var (
		mu   sync.Mutex
		seen = map[string][]delivery{}
	)
	h.mgr.Bus().AddSink(SinkFunc(func(ctx context.Context, ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen[ev.JobID] = append(seen[ev.JobID], delivery{ev.To, ctx.Err() == nil})
		return nil
	}))

	if first := h.wait(t, h.submit(t, "/speech.mp3").ID); first.State != StateSucceeded {
		t.Fatalf("first = %s %+v", first.State, first.Error)
	}
	second := h.wait(t, h.submit(t, "/speech.ogg").ID)
	if second.State != StateCancelled || !visited(second, StateCacheHit) {
		t.Fatalf("second = %s %v", second.State, states(second))
	}

	// The terminal event is published just after the job is stored.
	var got []delivery
	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		got = slices.Clone(seen[second.ID])
		mu.Unlock()
		if len(got) == len(second.History) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sink saw %d events, history has %d", len(got), len(second.History))
		}
		time.Sleep(2 * time.Millisecond)
	}
	for _, d := range got {
		if !d.live {
			t.Errorf("%s event published with a cancelled context", d.to)
		}
	}
}

func TestConcurrentSubmitsRespectQueueDepth(t *testing.T) {
	h := newHarness(t, harnessOptions{maxDepth: 3, noStart: true, wrapStore: func(s Store) Store {
		return &slowCreateStore{Store: s, delay: 20 * time.Millisecond}
	}})

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.mgr.Submit(context.Background(), SubmitRequest{Source: h.url("/speech.mp3")})
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.HasCode(err, errors.ErrCodeOverloaded):
				rejected.Add(1)
			default:
				t.Errorf("Submit: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted.Load() != 3 || rejected.Load() != 7 {
		t.Errorf("accepted=%d rejected=%d, want 3 and 7", accepted.Load(), rejected.Load())
	}
	if d := h.sched.Depth(); d != 3 {
		t.Errorf("depth = %d, want 3", d)
	}
}

func TestSubmitReleasesPlaceWhenCreateFails(t *testing.T) {
	h := newHarness(t, harnessOptions{maxDepth: 1, noStart: true, wrapStore: func(s Store) Store {
		return &slowCreateStore{Store: s, fail: true}
	}})
	for i := 0; i < 2; i++ {
		_, err := h.mgr.Submit(context.Background(), SubmitRequest{Source: h.url("/speech.mp3")})
		if !errors.HasCode(err, errors.ErrCodeInternal) {
			t.Fatalf("attempt %d: err = %v, want internal", i, err)
		}
	}
	if d := h.sched.Depth(); d != 0 {
		t.Errorf("depth = %d, want 0", d)
	}
}

func TestEmptyAudioFails(t *testing.T) {
	h := newHarness(t, harnessOptions{transcoder: func(ctx context.Context, in, out string, f media.Format) error {
		return os.WriteFile(out, nil, 0o600)
	}})
	job := h.wait(t, h.submit(t, "/speech.mp3").ID)
	if job.State != StateFailed || job.Error.Code != errors.ErrCodeEmptyAudio || job.Error.Kind != errors.KindNormalize {
		t.Fatalf("job = %s %+v", job.State, job.Error)
	}
}

func TestEventsFollowTransitions(t *testing.T) {
	h := newHarness(t, harnessOptions{noStart: true})
	events, unsubscribe := h.mgr.Bus().Subscribe(32)
	defer unsubscribe()

	h.start(t)
	job := h.wait(t, h.submit(t, "/silence.wav").ID)

	var got []State
	timeout := time.After(2 * time.Second)
	for len(got) < len(job.History) {
		select {
		case ev := <-events:
			if ev.JobID == job.ID {
				got = append(got, ev.To)
			}
		case <-timeout:
			t.Fatalf("events = %v, history = %v", got, states(job))
		}
	}
	if !slices.Equal(got, states(job)) {
		t.Errorf("events = %v, history = %v", got, states(job))
	}
	if since := job.Since(2); len(since) != len(job.History)-2 || since[0].Seq != 3 {
		t.Errorf("Since(2) = %+v", since)
	}
}

func TestRecoverRequeuesInterruptedJobs(t *testing.T) {
	h := newHarness(t, harnessOptions{noStart: true})
	ctx := context.Background()

	now := time.Now()
	stuck := NewJob("stuck", h.url("/speech.mp3"), Options{}, now.Add(-time.Minute))
	if _, err := stuck.Apply(StateFetching, now, nil); err != nil {
		t.Fatal(err)
	}
	queued := NewJob("queued", h.url("/silence.wav"), Options{}, now)
	finished := NewJob("finished", h.url("/silence.wav"), Options{}, now)
	_, _ = finished.Apply(StateFailed, now, &JobError{Code: errors.ErrCodeInternal})
	for _, j := range []*Job{stuck, queued, finished} {
		if err := h.store.Create(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	n, err := h.mgr.Recover(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || !slices.Equal(h.sched.Pending(), []string{"stuck", "queued"}) {
		t.Fatalf("recovered %d, pending %v", n, h.sched.Pending())
	}
	got, _ := h.mgr.Get(ctx, "stuck")
	if got.State != StateSubmitted || got.StartedAt != nil {
		t.Errorf("stuck job = %+v", got)
	}

	h.start(t)
	if j := h.wait(t, "stuck"); j.State != StateSucceeded {
		t.Errorf("recovered job ended %s", j.State)
	}
}

func TestSweepRemovesExpiredJobs(t *testing.T) {
	h := newHarness(t, harnessOptions{noStart: true, cfg: Config{Retention: time.Hour}})
	ctx := context.Background()
	now := time.Now()

	old := NewJob("old", "https://example.com/a.mp3", Options{}, now.Add(-3*time.Hour))
	_, _ = old.Apply(StateCancelled, now.Add(-2*time.Hour), &JobError{Code: errors.ErrCodeCancelled})
	recent := NewJob("recent", "https://example.com/b.mp3", Options{}, now.Add(-3*time.Hour))
	_, _ = recent.Apply(StateCancelled, now.Add(-time.Minute), &JobError{Code: errors.ErrCodeCancelled})
	running := NewJob("running", "https://example.com/c.mp3", Options{}, now.Add(-3*time.Hour))
	for _, j := range []*Job{old, recent, running} {
		_ = h.store.Create(ctx, j)
	}

	n, err := h.mgr.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v", n, err)
	}
	if _, err := h.mgr.Get(ctx, "old"); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Error("expired job should be gone")
	}
	for _, id := range []string{"recent", "running"} {
		if _, err := h.mgr.Get(ctx, id); err != nil {
			t.Errorf("%s: %v", id, err)
		}
	}
}
