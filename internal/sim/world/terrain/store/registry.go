package store

// Registry is the seen-set: every chunk key that was ever scheduled.
// Accessed only from the owning loop goroutine.
type Registry struct {
	keys map[ChunkKey]struct{}
}

func NewRegistry() *Registry {
	return &Registry{keys: map[ChunkKey]struct{}{}}
}

// Add records k and reports whether it was new.
func (r *Registry) Add(k ChunkKey) bool {
	if _, ok := r.keys[k]; ok {
		return false
	}
	r.keys[k] = struct{}{}
	return true
}

func (r *Registry) Has(k ChunkKey) bool {
	_, ok := r.keys[k]
	return ok
}

func (r *Registry) Len() int { return len(r.keys) }

func (r *Registry) Reset() {
	clear(r.keys)
}

// Queue holds chunk keys awaiting generation. Pop is last-in-first-out.
type Queue struct {
	keys []ChunkKey
}

func (q *Queue) Push(k ChunkKey) { q.keys = append(q.keys, k) }

func (q *Queue) Pop() (ChunkKey, bool) {
	n := len(q.keys)
	if n == 0 {
		return ChunkKey{}, false
	}
	k := q.keys[n-1]
	q.keys = q.keys[:n-1]
	return k, true
}

func (q *Queue) Len() int { return len(q.keys) }

func (q *Queue) Reset() { q.keys = q.keys[:0] }
