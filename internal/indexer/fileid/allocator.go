// Package fileid assigns dense integer identifiers to file paths so that
// postings sets stay compact.
package fileid

// Entry is one serialized (path, id) pair.
type Entry struct {
	Key string
	ID  uint32
}

// Allocator is a bidirectional path <-> id mapping. Ids are handed out in
// first-seen order starting at 0 and are never reused or released.
type Allocator struct {
	forward map[string]uint32
	reverse map[uint32]string
	order   []string
	next    uint32
}

// New returns an empty Allocator.
func New() *Allocator {
	return &Allocator{
		forward: make(map[string]uint32),
		reverse: make(map[uint32]string),
	}
}

// ID returns the id already assigned to key, or allocates the next one.
func (a *Allocator) ID(key string) uint32 {
	if id, ok := a.forward[key]; ok {
		return id
	}
	id := a.next
	a.next++
	a.forward[key] = id
	a.reverse[id] = key
	a.order = append(a.order, key)
	return id
}

// Key is the inverse of ID. A miss means the id was never allocated.
func (a *Allocator) Key(id uint32) (string, bool) {
	key, ok := a.reverse[id]
	return key, ok
}

// Has reports whether id has been allocated.
func (a *Allocator) Has(id uint32) bool {
	_, ok := a.reverse[id]
	return ok
}

// Len returns the number of allocated keys.
func (a *Allocator) Len() int {
	return len(a.forward)
}

// Next returns the id the next new key would receive.
func (a *Allocator) Next() uint32 {
	return a.next
}

// Serialize lists every pair in insertion order.
func (a *Allocator) Serialize() []Entry {
	entries := make([]Entry, 0, len(a.order))
	for _, key := range a.order {
		entries = append(entries, Entry{Key: key, ID: a.forward[key]})
	}
	return entries
}

// Deserialize rebuilds an Allocator from serialized pairs. The counter resumes
// one past the largest id seen, wherever it appears in the input; gaps left
// by sparse ids are kept as they are.
func Deserialize(entries []Entry) *Allocator {
	a := New()
	for _, e := range entries {
		if old, ok := a.forward[e.Key]; ok {
			delete(a.reverse, old)
		} else {
			a.order = append(a.order, e.Key)
		}
		if prev, ok := a.reverse[e.ID]; ok && prev != e.Key {
			delete(a.forward, prev)
			a.order = removeKey(a.order, prev)
		}
		a.forward[e.Key] = e.ID
		a.reverse[e.ID] = e.Key
		if e.ID >= a.next {
			a.next = e.ID + 1
		}
	}
	return a
}

func removeKey(order []string, key string) []string {
	for i, k := range order {
		if k == key {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
