package envvars

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// WorkingSet is the published list of resolved variables. Every mutation assigns
// missing IDs and keeps exactly one trailing empty row available.
type WorkingSet struct {
	notifyMu sync.Mutex

	mu        sync.RWMutex
	vars      []Resolved
	observers map[int]func([]Resolved)
	nextID    int
	newID     func() string
}

// NewWorkingSet returns a working set holding a single empty row.
func NewWorkingSet() *WorkingSet {
	ws := &WorkingSet{observers: map[int]func([]Resolved){}, newID: uuid.NewString}
	ws.vars = ws.normalize(nil)
	return ws
}

func (ws *WorkingSet) normalize(vars []Resolved) []Resolved {
	out := make([]Resolved, 0, len(vars)+1)
	for _, v := range vars {
		if v.ID == "" {
			v.ID = ws.newID()
		}
		out = append(out, v)
	}
	return withTrailingRow(out, ws.newID)
}

// Subscribe registers fn, called synchronously with a copy after every change.
func (ws *WorkingSet) Subscribe(fn func([]Resolved)) func() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	id := ws.nextID
	ws.nextID++
	ws.observers[id] = fn
	return func() {
		ws.mu.Lock()
		defer ws.mu.Unlock()
		delete(ws.observers, id)
	}
}

func (ws *WorkingSet) mutate(fn func([]Resolved) ([]Resolved, bool)) bool {
	ws.notifyMu.Lock()
	defer ws.notifyMu.Unlock()

	ws.mu.Lock()
	next, changed := fn(append([]Resolved(nil), ws.vars...))
	if !changed {
		ws.mu.Unlock()
		return false
	}
	ws.vars = ws.normalize(next)
	snap := cloneVars(ws.vars)
	ids := make([]int, 0, len(ws.observers))
	for id := range ws.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	observers := make([]func([]Resolved), 0, len(ids))
	for _, id := range ids {
		observers = append(observers, ws.observers[id])
	}
	ws.mu.Unlock()

	for _, o := range observers {
		o(cloneVars(snap))
	}
	return true
}

// Vars returns a copy of the working set.
func (ws *WorkingSet) Vars() []Resolved {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return cloneVars(ws.vars)
}

// Set replaces the whole working set.
func (ws *WorkingSet) Set(vars []Resolved) {
	ws.mutate(func([]Resolved) ([]Resolved, bool) { return cloneVars(vars), true })
}

// UpdateValue sets the value of the row with id. Read-only rows are left unchanged.
func (ws *WorkingSet) UpdateValue(id, value string) bool {
	return ws.mutate(func(cur []Resolved) ([]Resolved, bool) {
		for i := range cur {
			if cur[i].ID == id && cur[i].Editable {
				cur[i].Value = strPtr(value)
				return cur, true
			}
		}
		return cur, false
	})
}

// UpdateName renames the row with id. Static rows keep their name.
func (ws *WorkingSet) UpdateName(id, name string) bool {
	return ws.mutate(func(cur []Resolved) ([]Resolved, bool) {
		for i := range cur {
			if cur[i].ID == id && cur[i].Editable {
				cur[i].Name = name
				return cur, true
			}
		}
		return cur, false
	})
}

// Add appends a local editable row and returns its ID.
func (ws *WorkingSet) Add(name, value string) string {
	id := ws.newID()
	ws.mutate(func(cur []Resolved) ([]Resolved, bool) {
		return insertBeforeTrailing(cur, Resolved{ID: id, Name: name, Value: strPtr(value), Editable: true, Local: true}), true
	})
	return id
}

// Delete removes the row with id. Static rows cannot be deleted.
func (ws *WorkingSet) Delete(id string) bool {
	return ws.mutate(func(cur []Resolved) ([]Resolved, bool) {
		for i := range cur {
			if cur[i].ID == id && cur[i].Editable {
				return append(cur[:i], cur[i+1:]...), true
			}
		}
		return cur, false
	})
}

// SetByName updates the first editable row named name, or appends a remote-derived row.
func (ws *WorkingSet) SetByName(name, value string) bool {
	if name == "" {
		return false
	}
	return ws.mutate(func(cur []Resolved) ([]Resolved, bool) {
		for i := range cur {
			if cur[i].Name != name {
				continue
			}
			if !cur[i].Editable {
				return cur, false
			}
			if cur[i].Value != nil && *cur[i].Value == value {
				return cur, false
			}
			cur[i].Value = strPtr(value)
			return cur, true
		}
		return insertBeforeTrailing(cur, Resolved{Name: name, Value: strPtr(value), Editable: true}), true
	})
}

// insertBeforeTrailing keeps a trailing empty row last.
func insertBeforeTrailing(cur []Resolved, r Resolved) []Resolved {
	n := len(cur)
	if n == 0 || !IsEmpty(cur[n-1]) {
		return append(cur, r)
	}
	out := append(cur[:n-1:n-1], r)
	return append(out, cur[n-1])
}

// Lookup returns the value of the first row named name.
func (ws *WorkingSet) Lookup(name string) (string, bool) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	for _, v := range ws.vars {
		if v.Name == name && name != "" {
			return v.StringValue(), true
		}
	}
	return "", false
}

// Map returns name to value for every named row. The first row wins on duplicate names.
func (ws *WorkingSet) Map() map[string]string {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	out := make(map[string]string, len(ws.vars))
	for _, v := range ws.vars {
		if v.Name == "" {
			continue
		}
		if _, ok := out[v.Name]; !ok {
			out[v.Name] = v.StringValue()
		}
	}
	return out
}

// NonEmpty drops blank rows, giving the persisted form of vars.
func NonEmpty(vars []Resolved) []Resolved {
	out := make([]Resolved, 0, len(vars))
	for _, v := range vars {
		if !IsEmpty(v) {
			out = append(out, v)
		}
	}
	return out
}

func cloneVars(in []Resolved) []Resolved {
	out := make([]Resolved, len(in))
	for i, v := range in {
		if v.Value != nil {
			v.Value = strPtr(*v.Value)
		}
		out[i] = v
	}
	return out
}
