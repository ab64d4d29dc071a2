// Package ledger keeps the ordered list of open tabs and the active tab key.
package ledger

import (
	"sort"
	"sync"
)

// Entry is one open tab. Order values are always 0..n-1 once observed.
type Entry struct {
	TabKey string `json:"tabKey"`
	Order  int    `json:"order"`
	Name   string `json:"name"`
}

// State is an immutable copy of the ledger handed to observers.
type State struct {
	Entries []Entry
	// Active is the last active tab key, "" when none.
	Active string
}

// Keys returns the tab keys in display order.
func (s State) Keys() []string {
	out := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = e.TabKey
	}
	return out
}

// Observer is called synchronously after every committed change. It may read
// the ledger but must not mutate it.
type Observer func(State)

// Ledger is safe for concurrent use. Notifications are delivered in commit order.
type Ledger struct {
	notifyMu sync.Mutex

	mu        sync.RWMutex
	entries   []Entry
	active    string
	observers map[int]Observer
	nextID    int
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{observers: map[int]Observer{}}
}

// Subscribe registers fn and returns a function that removes it.
func (l *Ledger) Subscribe(fn Observer) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.observers[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.observers, id)
	}
}

// mutate applies fn under the write lock and notifies observers when fn reports a change.
func (l *Ledger) mutate(fn func() bool) bool {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	l.mu.Lock()
	changed := fn()
	if !changed {
		l.mu.Unlock()
		return false
	}
	snap := l.snapshotLocked()
	observers := make([]Observer, 0, len(l.observers))
	ids := make([]int, 0, len(l.observers))
	for id := range l.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		observers = append(observers, l.observers[id])
	}
	l.mu.Unlock()

	for _, o := range observers {
		o(snap)
	}
	return true
}

func (l *Ledger) snapshotLocked() State {
	return State{Entries: append([]Entry(nil), l.entries...), Active: l.active}
}

// Snapshot returns the current state.
func (l *Ledger) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

// Contains reports whether key is open.
func (l *Ledger) Contains(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.indexLocked(key) >= 0
}

// Active returns the active tab key, "" when none.
func (l *Ledger) Active() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

func (l *Ledger) indexLocked(key string) int {
	for i, e := range l.entries {
		if e.TabKey == key {
			return i
		}
	}
	return -1
}

// Append adds key after the last entry. It is a no-op when key is already present.
func (l *Ledger) Append(key, name string) bool {
	return l.mutate(func() bool {
		if l.indexLocked(key) >= 0 {
			return false
		}
		next := 0
		for _, e := range l.entries {
			if e.Order >= next {
				next = e.Order + 1
			}
		}
		l.entries = append(l.entries, Entry{TabKey: key, Order: next, Name: name})
		l.entries = normalize(l.entries)
		return true
	})
}

// Remove deletes key and renormalizes.
func (l *Ledger) Remove(key string) bool {
	return l.RemoveMany([]string{key}) > 0
}

// RemoveMany deletes every listed key and renormalizes. It returns the number removed.
func (l *Ledger) RemoveMany(keys []string) int {
	if len(keys) == 0 {
		return 0
	}
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	removed := 0
	l.mutate(func() bool {
		kept := l.entries[:0:0]
		for _, e := range l.entries {
			if _, ok := drop[e.TabKey]; ok {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if removed == 0 {
			return false
		}
		l.entries = normalize(kept)
		return true
	})
	return removed
}

// Reorder moves key to index, clamped to [0, len(others)]. Unknown keys are ignored.
func (l *Ledger) Reorder(key string, index int) bool {
	return l.mutate(func() bool {
		list := normalize(l.entries)
		from := -1
		for i, e := range list {
			if e.TabKey == key {
				from = i
				break
			}
		}
		if from < 0 {
			return false
		}
		item := list[from]
		list = append(list[:from:from], list[from+1:]...)
		if index < 0 {
			index = 0
		}
		if index > len(list) {
			index = len(list)
		}
		list = append(list[:index:index], append([]Entry{item}, list[index:]...)...)
		for i := range list {
			list[i].Order = i
		}
		l.entries = list
		return true
	})
}

// SetActive records the active tab key; "" clears it. Setting the same key again does not notify.
func (l *Ledger) SetActive(key string) bool {
	return l.mutate(func() bool {
		if l.active == key {
			return false
		}
		l.active = key
		return true
	})
}

// Replace swaps in a whole state, e.g. one loaded from storage. Entries are renormalized
// and duplicate keys keep their first occurrence.
func (l *Ledger) Replace(entries []Entry, active string) {
	l.mutate(func() bool {
		seen := make(map[string]struct{}, len(entries))
		list := make([]Entry, 0, len(entries))
		for _, e := range normalize(entries) {
			if e.TabKey == "" {
				continue
			}
			if _, dup := seen[e.TabKey]; dup {
				continue
			}
			seen[e.TabKey] = struct{}{}
			list = append(list, e)
		}
		l.entries = normalize(list)
		l.active = active
		return true
	})
}

// normalize returns a copy sorted by Order (stable) with orders reassigned to 0..n-1.
func normalize(in []Entry) []Entry {
	out := append([]Entry(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	for i := range out {
		out[i].Order = i
	}
	return out
}
