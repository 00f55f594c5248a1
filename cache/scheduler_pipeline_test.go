package cache

import (
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"preview_engine/preview"
	"preview_engine/previewkit/demo"
	"preview_engine/render"
	"preview_engine/sandbox"
)

// A listener that re-reads on every notification must settle when a preview
// keeps panicking: each attempt carries a new stack, but the visible error is
// the same.
func TestScheduler_PanickingPreviewSettles(t *testing.T) {
	logger := zaptest.NewLogger(t)
	resolver := sandbox.NewResolver(sandbox.NewInProcessLoader(sandbox.StaticLibrary(demo.NewLibrary())), logger)
	t.Cleanup(func() { resolver.Close() })
	s := newTestScheduler(t, render.NewPipeline(resolver, logger), 8)

	k := key(demo.Broken)
	var mu sync.Mutex
	notified := 0
	s.Subscribe(func(keys []preview.Key) {
		mu.Lock()
		notified++
		mu.Unlock()
		go s.RequestPreviews(keys)
	})

	s.RequestPreviews([]preview.Key{k})

	deadline := time.Now().Add(5 * time.Second)
	for s.Stats().Renders < 2 {
		if time.Now().After(deadline) {
			t.Fatal("re-read after the first error never rendered")
		}
		time.Sleep(time.Millisecond)
	}
	settle(t, s)
	time.Sleep(100 * time.Millisecond)
	settle(t, s)

	if n := s.Stats().Renders; n != 2 {
		t.Errorf("renders = %d, want 2 (first attempt and one retry)", n)
	}
	mu.Lock()
	got := notified
	mu.Unlock()
	if got != 1 {
		t.Errorf("notifications = %d, want 1", got)
	}

	st := s.Peek(k)
	if !st.IsError() || !strings.Contains(st.Summary(), "index out of range") {
		t.Errorf("state = %v, want the panic message", st)
	}
}
