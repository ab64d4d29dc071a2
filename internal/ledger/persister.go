package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/loykin/apidesk/internal/coalesce"
	"github.com/loykin/apidesk/internal/common"
)

// Persister is a ledger Observer that writes the list only when its serialized
// form changed and the active key only when it changed.
type Persister struct {
	storage *Storage
	list    *coalesce.Coalescer[[]Entry]
	active  *coalesce.Coalescer[string]

	mu             sync.Mutex
	lastSerialized string
	lastActive     string
}

// NewPersister builds a Persister. wait is the coalescing window for both values.
func NewPersister(st *Storage, wait time.Duration) *Persister {
	logger := common.GetLogger().WithComponent("ledger-persister")
	return &Persister{
		storage: st,
		list: coalesce.New(st.SaveList,
			coalesce.WithWait[[]Entry](wait),
			coalesce.WithLogger[[]Entry](logger)),
		active: coalesce.New(st.SaveActive,
			coalesce.WithWait[string](wait),
			coalesce.WithLogger[string](logger)),
	}
}

// Prime records s as already persisted, so restoring state does not write it back.
func (p *Persister) Prime(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSerialized = serialize(s.Entries)
	p.lastActive = s.Active
}

// Observe schedules writes for whatever changed in s.
func (p *Persister) Observe(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ser := serialize(s.Entries); ser != p.lastSerialized {
		p.lastSerialized = ser
		p.list.Schedule(s.Entries)
	}
	if s.Active != p.lastActive {
		p.lastActive = s.Active
		p.active.Schedule(s.Active)
	}
}

// Flush writes anything pending.
func (p *Persister) Flush(ctx context.Context) error {
	return errors.Join(p.list.Flush(ctx), p.active.Flush(ctx))
}

// Cancel drops pending writes.
func (p *Persister) Cancel() {
	p.list.Cancel()
	p.active.Cancel()
}

func serialize(list []Entry) string {
	if list == nil {
		list = []Entry{}
	}
	b, _ := json.Marshal(list)
	return string(b)
}
