// Package ledger keeps the persisted favorites set and view history.
package ledger

import (
	"sync"

	"github.com/efiadm/api-categorizer-aggr/internal/state"
)

func orMemory(m *state.Manager) *state.Manager {
	if m == nil {
		return state.NewManager(state.NewMemoryStore(), nil, nil)
	}
	return m
}

// Favorites is the set of favorited API ids. Ids are kept in insertion
// order so listings are stable.
type Favorites struct {
	mu    sync.RWMutex
	ids   []string
	set   map[string]struct{}
	store *state.Manager
}

// NewFavorites restores the favorites slot from store. A missing or
// unreadable slot starts empty.
func NewFavorites(store *state.Manager) *Favorites {
	f := &Favorites{
		set:   make(map[string]struct{}),
		store: orMemory(store),
	}

	var ids []string
	if f.store.Load(state.SlotFavorites, &ids) {
		for _, id := range ids {
			if _, dup := f.set[id]; dup || id == "" {
				continue
			}
			f.set[id] = struct{}{}
			f.ids = append(f.ids, id)
		}
	}
	return f
}

// Toggle adds id if absent and removes it if present, then persists the
// set. It reports whether id is favorited afterwards. On a write error the
// in-memory change is kept and the error returned.
func (f *Favorites) Toggle(id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, present := f.set[id]
	if present {
		delete(f.set, id)
		for i, existing := range f.ids {
			if existing == id {
				f.ids = append(f.ids[:i:i], f.ids[i+1:]...)
				break
			}
		}
	} else {
		f.set[id] = struct{}{}
		f.ids = append(f.ids, id)
	}

	return !present, f.store.Save(state.SlotFavorites, f.snapshotLocked())
}

func (f *Favorites) snapshotLocked() []string {
	out := make([]string, len(f.ids))
	copy(out, f.ids)
	return out
}

// Contains reports whether id is favorited.
func (f *Favorites) Contains(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.set[id]
	return ok
}

// IDs returns the favorited ids in insertion order.
func (f *Favorites) IDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshotLocked()
}

// Set returns the favorites as a lookup map.
func (f *Favorites) Set() map[string]bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]bool, len(f.set))
	for id := range f.set {
		out[id] = true
	}
	return out
}

// Len returns the number of favorites.
func (f *Favorites) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}
