package cache

import (
	"slices"
	"testing"
)

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	l := NewLRU[string, int](2)
	l.Put("a", 1)
	l.Put("b", 2)

	// Touch a so b becomes the oldest.
	if v, ok := l.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %d, %v", v, ok)
	}

	evicted, ok := l.Put("c", 3)
	if !ok || evicted != "b" {
		t.Errorf("Put(c) evicted %q, %v; want b", evicted, ok)
	}
	if _, ok := l.Peek("b"); ok {
		t.Error("b should be gone")
	}
	if got := l.Keys(); !slices.Equal(got, []string{"c", "a"}) {
		t.Errorf("Keys() = %v, want [c a]", got)
	}
}

func TestLRU_PeekDoesNotTouch(t *testing.T) {
	l := NewLRU[string, int](2)
	l.Put("a", 1)
	l.Put("b", 2)
	l.Peek("a")

	if evicted, _ := l.Put("c", 3); evicted != "a" {
		t.Errorf("evicted %q, want a", evicted)
	}
}

func TestLRU_UpdateAndRemove(t *testing.T) {
	l := NewLRU[string, int](3)
	l.Put("a", 1)
	l.Put("b", 2)
	if _, evicted := l.Put("a", 10); evicted {
		t.Error("updating an existing key must not evict")
	}
	if v, _ := l.Peek("a"); v != 10 {
		t.Errorf("a = %d, want 10", v)
	}
	if l.Keys()[0] != "a" {
		t.Errorf("updated key should be most recent: %v", l.Keys())
	}

	if !l.Remove("a") || l.Remove("a") {
		t.Error("Remove should report presence once")
	}
	if l.Len() != 1 || !slices.Equal(l.Keys(), []string{"b"}) {
		t.Errorf("after remove: len %d keys %v", l.Len(), l.Keys())
	}

	l.Remove("b")
	if l.Len() != 0 || len(l.Keys()) != 0 {
		t.Error("list should be empty")
	}
	l.Put("z", 26)
	if !slices.Equal(l.Keys(), []string{"z"}) {
		t.Errorf("reuse after empty: %v", l.Keys())
	}
}

func TestLRU_MinimumCapacityAndRange(t *testing.T) {
	l := NewLRU[int, string](0)
	if l.Capacity() != 1 {
		t.Errorf("Capacity() = %d, want 1", l.Capacity())
	}
	l.Put(1, "one")
	l.Put(2, "two")
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}

	l = NewLRU[int, string](4)
	for i := 1; i <= 4; i++ {
		l.Put(i, "")
	}
	var seen []int
	l.Range(func(k int, _ string) bool {
		seen = append(seen, k)
		return len(seen) < 2
	})
	if !slices.Equal(seen, []int{4, 3}) {
		t.Errorf("Range stopped at %v, want [4 3]", seen)
	}
}
