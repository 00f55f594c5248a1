package cache

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"preview_engine/preview"
	"preview_engine/render"
	"preview_engine/sandbox"
)

// fakeRenderer renders synchronously from a result table. Renders block while
// gate is non-nil and open.
type fakeRenderer struct {
	mu      sync.Mutex
	calls   map[preview.Key]int
	gens    []int64
	fail    map[string]string
	gate    chan struct{}
	started chan preview.Key
	active  int
	overlap bool
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		calls:   make(map[preview.Key]int),
		fail:    make(map[string]string),
		started: make(chan preview.Key, 64),
	}
}

func (f *fakeRenderer) Prepare(context.Context, sandbox.Generation) *render.Prepared {
	return &render.Prepared{}
}

func (f *fakeRenderer) RenderPrepared(_ context.Context, _ *render.Prepared, key preview.Key) render.State {
	f.mu.Lock()
	f.calls[key]++
	f.active++
	if f.active > 1 {
		f.overlap = true
	}
	gate := f.gate
	msg, fails := f.fail[key.FunctionID]
	f.mu.Unlock()

	f.started <- key
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	if fails {
		return render.Error(msg)
	}
	return render.Success(image.NewNRGBA(image.Rect(0, 0, 2, 2)), render.SizeDp{Width: 2, Height: 2})
}

func (f *fakeRenderer) count(key preview.Key) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

// genRenderer records the generation each render was prepared for.
type genRenderer struct {
	*fakeRenderer
}

func (g genRenderer) Prepare(_ context.Context, gen sandbox.Generation) *render.Prepared {
	g.mu.Lock()
	g.gens = append(g.gens, gen.Counter)
	g.mu.Unlock()
	return &render.Prepared{}
}

func key(fn string) preview.Key {
	return preview.NewKey(fn, preview.NoParam, preview.NewSpec(preview.WithSize(100, -1)))
}

func newTestScheduler(t *testing.T, r Renderer, capacity int) *Scheduler {
	t.Helper()
	s := NewScheduler(r, Options{Capacity: capacity, Generation: sandbox.Generation{Counter: 1}, Logger: zaptest.NewLogger(t)})
	t.Cleanup(func() { s.Close() })
	return s
}

// settle waits until every scheduled render has published its result.
func settle(t *testing.T, s *Scheduler) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.Stats().InFlight > 0 {
		if time.Now().After(deadline) {
			t.Fatal("renders did not settle")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestScheduler_RenderDedupe(t *testing.T) {
	r := newFakeRenderer()
	r.gate = make(chan struct{})
	s := newTestScheduler(t, r, 8)
	k := key("demo.Button")

	results := make(chan render.State, 2)
	for i := 0; i < 2; i++ {
		go func() { results <- s.Render(context.Background(), k) }()
	}

	<-r.started
	// Let the second caller join the in-flight render before releasing it.
	deadline := time.Now().Add(time.Second)
	for s.Stats().Misses < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(r.gate)

	a, b := <-results, <-results
	if !a.IsSuccess() || a.Image != b.Image {
		t.Errorf("callers got different results: %v / %v", a, b)
	}
	if n := r.count(k); n != 1 {
		t.Errorf("render invoked %d times, want 1", n)
	}

	// A fresh Success is served without rendering.
	if st := s.Render(context.Background(), k); st.Image != a.Image || r.count(k) != 1 {
		t.Errorf("cached render = %v, calls %d", st, r.count(k))
	}
}

func TestScheduler_RequestPreviewsNeverBlocks(t *testing.T) {
	r := newFakeRenderer()
	r.gate = make(chan struct{})
	s := newTestScheduler(t, r, 8)
	k := key("demo.Card")

	done := make(chan map[preview.Key]render.State, 1)
	go func() { done <- s.RequestPreviews([]preview.Key{k, k}) }()

	var states map[preview.Key]render.State
	select {
	case states = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RequestPreviews blocked on the render")
	}
	if st := states[k]; !st.IsPending() || st.WidthDp != 100 || st.HeightDp != -1 {
		t.Errorf("state = %v, want Pending(100x-1dp)", st)
	}

	<-r.started
	// Still in flight: a second request must not schedule another render.
	if st := s.RequestPreviews([]preview.Key{k})[k]; !st.IsPending() {
		t.Errorf("in-flight state = %v", st)
	}
	close(r.gate)
	settle(t, s)

	if n := r.count(k); n != 1 {
		t.Errorf("render invoked %d times, want 1", n)
	}
	if st := s.RequestPreviews([]preview.Key{k})[k]; !st.IsSuccess() {
		t.Errorf("state after render = %v", st)
	}
}

func TestScheduler_ErrorIsolationAndNoErrorCaching(t *testing.T) {
	r := newFakeRenderer()
	r.fail["demo.Fails"] = "boom: preview threw"
	s := newTestScheduler(t, r, 8)

	good, bad, other := key("demo.Button"), key("demo.Fails"), key("demo.Card")
	batch := []preview.Key{good, bad, other}
	s.RequestPreviews(batch)
	settle(t, s)

	states := s.RequestPreviews(batch)
	settle(t, s)
	if !states[good].IsSuccess() || !states[other].IsSuccess() {
		t.Errorf("siblings = %v / %v, want Success", states[good], states[other])
	}
	if st := states[bad]; !st.IsError() || st.Message != "boom: preview threw" {
		t.Errorf("failing key = %v", st)
	}

	if st := s.Stats(); st.Cached != 2 || st.Errors != 1 {
		t.Errorf("stats = %+v, want 2 cached and 1 error", st)
	}
	// The second request retried only the errored key.
	if r.count(bad) != 2 || r.count(good) != 1 || r.count(other) != 1 {
		t.Errorf("calls good=%d bad=%d other=%d", r.count(good), r.count(bad), r.count(other))
	}
}

func TestScheduler_RepeatedErrorDoesNotNotify(t *testing.T) {
	r := newFakeRenderer()
	r.fail["demo.Fails"] = "boom"
	s := newTestScheduler(t, r, 8)
	k := key("demo.Fails")

	var mu sync.Mutex
	notified := 0
	unsubscribe := s.Subscribe(func(keys []preview.Key) {
		mu.Lock()
		notified += len(keys)
		mu.Unlock()
	})

	for i := 0; i < 3; i++ {
		s.RequestPreviews([]preview.Key{k})
		settle(t, s)
	}
	mu.Lock()
	got := notified
	mu.Unlock()
	if got != 1 {
		t.Errorf("notifications = %d, want 1 (Pending -> Error only)", got)
	}
	if r.count(k) != 3 {
		t.Errorf("errored key rendered %d times, want 3", r.count(k))
	}

	// Recovery changes the state again; an unsubscribed listener stays quiet.
	unsubscribe()
	r.mu.Lock()
	delete(r.fail, "demo.Fails")
	r.mu.Unlock()
	if st := s.Render(context.Background(), k); !st.IsSuccess() {
		t.Fatalf("recovered state = %v", st)
	}
	mu.Lock()
	defer mu.Unlock()
	if notified != 1 {
		t.Errorf("unsubscribed listener called: %d", notified)
	}
}

func TestScheduler_SetGenerationMarksStale(t *testing.T) {
	r := genRenderer{newFakeRenderer()}
	s := newTestScheduler(t, r, 8)
	k := key("demo.Button")

	first := s.Render(context.Background(), k)
	if !first.IsSuccess() {
		t.Fatalf("state = %v", first)
	}

	changed := make(chan []preview.Key, 4)
	s.Subscribe(func(keys []preview.Key) { changed <- keys })

	s.SetGeneration(sandbox.Generation{Counter: 2})
	select {
	case keys := <-changed:
		if len(keys) != 1 || keys[0] != k {
			t.Errorf("notified keys = %v", keys)
		}
	case <-time.After(time.Second):
		t.Fatal("SetGeneration did not notify")
	}

	// The stale image is served while the re-render runs.
	if st := s.RequestPreviews([]preview.Key{k})[k]; st.Image != first.Image {
		t.Errorf("stale read = %v, want previous image", st)
	}
	settle(t, s)

	second := s.Peek(k)
	if !second.IsSuccess() || second.Image == first.Image {
		t.Errorf("re-rendered state = %v", second)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.gens) != 2 || r.gens[0] != 1 || r.gens[1] != 2 {
		t.Errorf("generations rendered = %v, want [1 2]", r.gens)
	}
	if s.Generation().Counter != 2 {
		t.Errorf("Generation() = %d", s.Generation().Counter)
	}
}

func TestScheduler_RenderAfterSetGenerationDoesNotJoinOldRender(t *testing.T) {
	r := genRenderer{newFakeRenderer()}
	r.gate = make(chan struct{})
	s := newTestScheduler(t, r, 8)
	k := key("demo.Button")

	old := make(chan render.State, 1)
	go func() { old <- s.Render(context.Background(), k) }()
	<-r.started

	s.SetGeneration(sandbox.Generation{Counter: 2})
	fresh := make(chan render.State, 1)
	go func() { fresh <- s.Render(context.Background(), k) }()

	// The new call prepares generation 2 before queueing on the render lock.
	deadline := time.Now().Add(5 * time.Second)
	for {
		r.mu.Lock()
		n := len(r.gens)
		r.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Render after SetGeneration joined the old render")
		}
		time.Sleep(time.Millisecond)
	}
	close(r.gate)

	a, b := <-old, <-fresh
	if !a.IsSuccess() || !b.IsSuccess() || a.Image == b.Image {
		t.Fatalf("old = %v, fresh = %v, want two distinct renders", a, b)
	}
	settle(t, s)
	if st := s.Peek(k); st.Image != b.Image {
		t.Errorf("cached state = %v, want the generation 2 render", st)
	}
	if n := r.count(k); n != 2 {
		t.Errorf("renders = %d, want 2", n)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gens[0] != 1 || r.gens[1] != 2 {
		t.Errorf("generations rendered = %v, want [1 2]", r.gens)
	}
}

func TestScheduler_RendersAreSerialized(t *testing.T) {
	r := newFakeRenderer()
	s := newTestScheduler(t, r, 32)

	keys := make([]preview.Key, 0, 12)
	for i := 0; i < 12; i++ {
		keys = append(keys, preview.NewKey("demo.Swatch", preview.IntParam(int64(i)), preview.DefaultSpec()))
	}
	s.RequestPreviews(keys)
	settle(t, s)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.overlap {
		t.Error("two renders ran at the same time")
	}
	if s.Stats().Renders != 12 {
		t.Errorf("renders = %d, want 12", s.Stats().Renders)
	}
}

func TestScheduler_CapacityAndRetain(t *testing.T) {
	r := newFakeRenderer()
	s := newTestScheduler(t, r, 2)
	a, b, c := key("a.A"), key("b.B"), key("c.C")

	for _, k := range []preview.Key{a, b, c} {
		s.Render(context.Background(), k)
	}
	if st := s.Stats(); st.Cached != 2 || st.Capacity != 2 {
		t.Errorf("stats = %+v", st)
	}
	if st := s.Peek(a); !st.IsPending() {
		t.Errorf("evicted key state = %v, want Pending", st)
	}

	s.Retain([]preview.Key{c})
	if st := s.Peek(b); !st.IsPending() {
		t.Errorf("dropped key state = %v", st)
	}
	if st := s.Peek(c); !st.IsSuccess() {
		t.Errorf("retained key state = %v", st)
	}
}

func TestScheduler_Close(t *testing.T) {
	r := newFakeRenderer()
	r.gate = make(chan struct{})
	s := NewScheduler(r, Options{Logger: zaptest.NewLogger(t)})
	k := key("demo.Button")

	s.RequestPreviews([]preview.Key{k})
	<-r.started

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned before the in-flight render finished")
	case <-time.After(20 * time.Millisecond):
	}
	close(r.gate)
	<-closed

	if st := s.Render(context.Background(), key("demo.Card")); !st.IsError() || st.Message != ErrClosed.Error() {
		t.Errorf("Render after Close = %v", st)
	}
	if st := s.RequestPreviews([]preview.Key{key("demo.Card")})[key("demo.Card")]; !st.IsPending() || s.Stats().InFlight != 0 {
		t.Errorf("RequestPreviews after Close scheduled work: %v", st)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestScheduler_RenderContextCancel(t *testing.T) {
	r := newFakeRenderer()
	r.gate = make(chan struct{})
	s := newTestScheduler(t, r, 8)
	k := key("demo.Button")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-r.started
		cancel()
	}()
	if st := s.Render(ctx, k); !st.IsPending() {
		t.Errorf("cancelled Render = %v, want Pending", st)
	}

	close(r.gate)
	settle(t, s)
	if st := s.Peek(k); !st.IsSuccess() {
		t.Errorf("render should complete after the waiter left: %v", st)
	}
}
