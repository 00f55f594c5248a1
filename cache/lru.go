package cache

// lruNode is a node in a doubly-linked LRU list.
type lruNode[K comparable, V any] struct {
	key   K
	value V
	prev  *lruNode[K, V]
	next  *lruNode[K, V]
}

// LRU is a fixed-capacity map that evicts the least recently used entry when
// a new key would exceed the capacity. The head of the list is the most
// recently used entry.
//
// LRU is not thread-safe; the Scheduler guards it with its state mutex.
type LRU[K comparable, V any] struct {
	capacity int
	nodes    map[K]*lruNode[K, V]
	head     *lruNode[K, V]
	tail     *lruNode[K, V]
}

// NewLRU creates an LRU holding at most capacity entries. Capacities below 1
// are raised to 1.
func NewLRU[K comparable, V any](capacity int) *LRU[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[K, V]{
		capacity: capacity,
		nodes:    make(map[K]*lruNode[K, V], capacity),
	}
}

// Len returns the number of entries.
func (l *LRU[K, V]) Len() int { return len(l.nodes) }

// Capacity returns the maximum number of entries.
func (l *LRU[K, V]) Capacity() int { return l.capacity }

// Get returns the value for key and marks it most recently used.
func (l *LRU[K, V]) Get(key K) (V, bool) {
	node, ok := l.nodes[key]
	if !ok {
		var zero V
		return zero, false
	}
	l.moveToFront(node)
	return node.value, true
}

// Peek returns the value for key without changing its recency.
func (l *LRU[K, V]) Peek(key K) (V, bool) {
	node, ok := l.nodes[key]
	if !ok {
		var zero V
		return zero, false
	}
	return node.value, true
}

// Put stores value under key as the most recently used entry. If the insert
// exceeds the capacity, the least recently used entry is evicted and
// returned.
func (l *LRU[K, V]) Put(key K, value V) (evicted K, didEvict bool) {
	if node, ok := l.nodes[key]; ok {
		node.value = value
		l.moveToFront(node)
		return evicted, false
	}

	node := &lruNode[K, V]{key: key, value: value}
	l.nodes[key] = node
	l.pushFront(node)

	if len(l.nodes) > l.capacity {
		oldest := l.tail
		l.unlink(oldest)
		delete(l.nodes, oldest.key)
		return oldest.key, true
	}
	return evicted, false
}

// Remove deletes key. It reports whether the key was present.
func (l *LRU[K, V]) Remove(key K) bool {
	node, ok := l.nodes[key]
	if !ok {
		return false
	}
	l.unlink(node)
	delete(l.nodes, key)
	return true
}

// Keys returns the keys from most to least recently used.
func (l *LRU[K, V]) Keys() []K {
	keys := make([]K, 0, len(l.nodes))
	for n := l.head; n != nil; n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

// Range calls fn for each entry from most to least recently used until fn
// returns false. fn must not modify the LRU.
func (l *LRU[K, V]) Range(fn func(K, V) bool) {
	for n := l.head; n != nil; n = n.next {
		if !fn(n.key, n.value) {
			return
		}
	}
}

func (l *LRU[K, V]) pushFront(node *lruNode[K, V]) {
	node.prev = nil
	node.next = l.head
	if l.head != nil {
		l.head.prev = node
	}
	l.head = node
	if l.tail == nil {
		l.tail = node
	}
}

func (l *LRU[K, V]) moveToFront(node *lruNode[K, V]) {
	if node == l.head {
		return
	}
	l.unlink(node)
	l.pushFront(node)
}

// unlink removes a node from the list and clears its pointers.
func (l *LRU[K, V]) unlink(node *lruNode[K, V]) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}
	node.prev = nil
	node.next = nil
}
