package session

// DefaultDedupCapacity bounds the number of remembered delivery keys.
const DefaultDedupCapacity = 200

// DedupWindow remembers the most recent delivery keys. When full, the oldest
// key is evicted first.
type DedupWindow struct {
	capacity int
	order    []string
	seen     map[string]struct{}
}

// NewDedupWindow creates a window holding at most capacity keys.
func NewDedupWindow(capacity int) *DedupWindow {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &DedupWindow{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		seen:     make(map[string]struct{}, capacity),
	}
}

// Seen records key and reports whether it was already present.
// The empty key is never recorded.
func (w *DedupWindow) Seen(key string) bool {
	if key == "" {
		return false
	}
	if _, ok := w.seen[key]; ok {
		return true
	}
	if len(w.order) == w.capacity {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.seen, oldest)
	}
	w.order = append(w.order, key)
	w.seen[key] = struct{}{}
	return false
}

// Len returns the number of remembered keys.
func (w *DedupWindow) Len() int { return len(w.order) }

// Capacity returns the window size.
func (w *DedupWindow) Capacity() int { return w.capacity }

// Keys returns the remembered keys, oldest first.
func (w *DedupWindow) Keys() []string {
	return append([]string(nil), w.order...)
}

// restore refills the window from keys, keeping the newest when they exceed capacity.
func (w *DedupWindow) restore(keys []string) {
	w.order = w.order[:0]
	clear(w.seen)
	if len(keys) > w.capacity {
		keys = keys[len(keys)-w.capacity:]
	}
	for _, k := range keys {
		w.Seen(k)
	}
}
