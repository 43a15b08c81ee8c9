package store

import (
	gosync "sync"

	"github.com/nhle/agent-notify/internal/model"
)

// DefaultCapacity is the number of records kept before the oldest
// insertions are evicted.
const DefaultCapacity = 100

// Store is the in-memory notification history of one execution context.
// Records are kept most-recent-first and are unique by ID. All methods
// are safe for concurrent use; Insert is an atomic check-and-insert so
// two polling channels sharing a Store never double-insert a record.
type Store struct {
	mu       gosync.Mutex
	capacity int
	items    []model.Notification // newest first
	index    map[string]int       // id -> position in items
	unread   int
	onChange []func()

	// rev counts single inserts; added holds the revision each record
	// was inserted at.
	rev     uint64
	added   map[string]uint64
	written bool
}

// NewStore creates an empty store holding at most capacity records.
// A non-positive capacity selects DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		index:    make(map[string]int),
		added:    make(map[string]uint64),
	}
}

// OnChange registers fn to be called after every mutation. Callbacks run
// outside the lock.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Capacity returns the maximum number of records held.
func (s *Store) Capacity() int {
	return s.capacity
}

// Insert prepends n unless a record with the same ID is already present.
// It reports whether n was inserted. When the store is full the oldest
// insertion is evicted.
func (s *Store) Insert(n model.Notification) bool {
	s.mu.Lock()
	inserted := s.insertLocked(n)
	s.mu.Unlock()

	if inserted {
		s.notify()
	}
	return inserted
}

// Merge inserts items in order and returns the ones that were new, in
// the same order.
func (s *Store) Merge(items []model.Notification) []model.Notification {
	var added []model.Notification

	s.mu.Lock()
	for _, n := range items {
		if s.insertLocked(n) {
			added = append(added, n)
		}
	}
	s.mu.Unlock()

	if len(added) > 0 {
		s.notify()
	}
	return added
}

func (s *Store) insertLocked(n model.Notification) bool {
	if n.ID == "" {
		return false
	}
	if _, ok := s.index[n.ID]; ok {
		return false
	}

	s.items = append([]model.Notification{n}, s.items...)
	if !n.Read {
		s.unread++
	}
	s.rev++
	s.added[n.ID] = s.rev
	s.written = true

	for len(s.items) > s.capacity {
		oldest := s.items[len(s.items)-1]
		s.items = s.items[:len(s.items)-1]
		delete(s.added, oldest.ID)
		if !oldest.Read && s.unread > 0 {
			s.unread--
		}
	}

	s.reindexLocked()
	return true
}

// Replace swaps the whole content for a bulk history load. items are
// expected newest first, as the backend returns them; duplicates are
// dropped and the list is truncated to capacity. unread becomes the
// unread counter as reported by the backend.
func (s *Store) Replace(items []model.Notification, unread int) {
	s.mu.Lock()
	s.replaceLocked(items, unread)
	s.mu.Unlock()

	s.notify()
}

// Revision identifies the current point in the insertion sequence. Pass it
// to Reload to keep records inserted after it.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev
}

// Reload is Replace for a history load that was requested at revision
// since. Records inserted after since that items does not contain are
// kept on top, and their unread ones are added to the counter.
func (s *Store) Reload(items []model.Notification, unread int, since uint64) {
	inHistory := make(map[string]bool, len(items))
	for _, n := range items {
		inHistory[n.ID] = true
	}

	s.mu.Lock()
	var kept []model.Notification
	keptRev := make(map[string]uint64)
	for _, n := range s.items {
		rev := s.added[n.ID]
		if rev > since && !inHistory[n.ID] {
			kept = append(kept, n)
			keptRev[n.ID] = rev
		}
	}

	if unread < 0 {
		unread = 0
	}
	for _, n := range kept {
		if !n.Read {
			unread++
		}
	}

	s.replaceLocked(append(kept, items...), unread)
	for id, rev := range keptRev {
		if _, ok := s.index[id]; ok {
			s.added[id] = rev
		}
	}
	s.mu.Unlock()

	s.notify()
}

// Seed fills a store that nothing has written to yet, such as one waiting
// for its first history load. It reports whether items were applied.
func (s *Store) Seed(items []model.Notification, unread int) bool {
	s.mu.Lock()
	if s.written {
		s.mu.Unlock()
		return false
	}
	s.replaceLocked(items, unread)
	s.mu.Unlock()

	s.notify()
	return true
}

func (s *Store) replaceLocked(items []model.Notification, unread int) {
	s.items = nil
	s.index = make(map[string]int, len(items))
	s.added = make(map[string]uint64)
	s.written = true
	for _, n := range items {
		if n.ID == "" {
			continue
		}
		if _, ok := s.index[n.ID]; ok {
			continue
		}
		if len(s.items) == s.capacity {
			break
		}
		s.index[n.ID] = len(s.items)
		s.items = append(s.items, n)
	}
	if unread < 0 {
		unread = 0
	}
	s.unread = unread
}

// MarkRead sets the read flag of id. It reports whether the record
// transitioned from unread to read; unknown and already-read ids are a
// no-op.
func (s *Store) MarkRead(id string) bool {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok || s.items[i].Read {
		s.mu.Unlock()
		return false
	}
	s.items[i].Read = true
	if s.unread > 0 {
		s.unread--
	}
	s.mu.Unlock()

	s.notify()
	return true
}

// MarkAllRead flags every record read and zeroes the unread counter.
func (s *Store) MarkAllRead() {
	s.mu.Lock()
	for i := range s.items {
		s.items[i].Read = true
	}
	s.unread = 0
	s.mu.Unlock()

	s.notify()
}

// Clear empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	s.items = nil
	s.index = make(map[string]int)
	s.added = make(map[string]uint64)
	s.unread = 0
	s.written = true
	s.mu.Unlock()

	s.notify()
}

// Get returns the record with the given ID.
func (s *Store) Get(id string) (model.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return model.Notification{}, false
	}
	return s.items[i], true
}

// Contains reports whether a record with id is held.
func (s *Store) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

// List returns a copy of the records, newest first.
func (s *Store) List() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Notification, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// UnreadCount returns the unread counter.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *Store) reindexLocked() {
	for k := range s.index {
		delete(s.index, k)
	}
	for i, n := range s.items {
		s.index[n.ID] = i
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	fns := make([]func(), len(s.onChange))
	copy(fns, s.onChange)
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
