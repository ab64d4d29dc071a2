package tabs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/loykin/apidesk/internal/coalesce"
	"github.com/loykin/apidesk/internal/common"
	"github.com/loykin/apidesk/internal/constants"
	"github.com/loykin/apidesk/internal/kv"
)

// Store persists tab documents keyed by tab key.
//
// All saves share one coalescer: edits to different tabs within the window are
// batched into one write pass, and the latest document per key wins. Call Flush
// before relying on a document being durable.
type Store struct {
	kv     kv.Store
	saver  *coalesce.Coalescer[map[string]Document]
	logger *common.Logger
}

// NewStore returns a Store over s with the given coalescing window.
func NewStore(s kv.Store, wait time.Duration) *Store {
	st := &Store{kv: s, logger: common.GetLogger().WithStore(constants.StoreTabDocs)}
	st.saver = coalesce.New(st.writeBatch,
		coalesce.WithWait[map[string]Document](wait),
		coalesce.WithLogger[map[string]Document](st.logger),
		coalesce.WithMerge(mergeBatch))
	return st
}

func mergeBatch(pending, next map[string]Document) map[string]Document {
	for k, d := range next {
		pending[k] = d
	}
	return pending
}

func (s *Store) writeBatch(ctx context.Context, batch map[string]Document) error {
	keys := make([]string, 0, len(batch))
	for k := range batch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var errs []error
	for _, k := range keys {
		if err := kv.SetJSON(ctx, s.kv, constants.StoreTabDocs, k, batch[k]); err != nil {
			errs = append(errs, fmt.Errorf("save tab %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// Save schedules a coalesced write of doc.
func (s *Store) Save(doc Document) {
	s.saver.Schedule(map[string]Document{doc.Key: doc.Clone()})
}

// Put writes doc immediately, after any pending writes.
func (s *Store) Put(ctx context.Context, doc Document) error {
	s.Save(doc)
	return s.Flush(ctx)
}

// Get returns the persisted document for key. found is false when there is none
// or the stored record is unreadable.
func (s *Store) Get(ctx context.Context, key string) (Document, bool, error) {
	var doc Document
	ok, err := kv.GetJSON(ctx, s.kv, constants.StoreTabDocs, key, &doc)
	if err != nil {
		if ok {
			s.logger.Warn("discarding malformed tab document", "tab", key, "error", err)
			return Document{}, false, nil
		}
		return Document{}, false, err
	}
	return doc, ok, nil
}

// Keys returns the keys of every persisted document.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	return s.kv.ListKeys(ctx, constants.StoreTabDocs)
}

// List returns every readable persisted document ordered by key.
func (s *Store) List(ctx context.Context) ([]Document, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(keys))
	for _, k := range keys {
		doc, ok, err := s.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Remove flushes pending writes and then deletes key, so a queued save cannot
// bring the document back.
func (s *Store) Remove(ctx context.Context, key string) error {
	flushErr := s.Flush(ctx)
	if flushErr != nil {
		s.logger.Warn("flush before remove failed", "tab", key, "error", flushErr)
	}
	return errors.Join(flushErr, s.kv.Remove(ctx, constants.StoreTabDocs, key))
}

// ClearByKeys removes the given documents.
func (s *Store) ClearByKeys(ctx context.Context, keys []string) error {
	flushErr := s.Flush(ctx)
	if flushErr != nil {
		s.logger.Warn("flush before clear failed", "error", flushErr)
	}
	errs := []error{flushErr}
	for _, k := range keys {
		if err := s.kv.Remove(ctx, constants.StoreTabDocs, k); err != nil {
			errs = append(errs, fmt.Errorf("remove tab %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// ClearAll removes every document.
func (s *Store) ClearAll(ctx context.Context) error {
	flushErr := s.Flush(ctx)
	if flushErr != nil {
		s.logger.Warn("flush before clear failed", "error", flushErr)
	}
	return errors.Join(flushErr, s.kv.Clear(ctx, constants.StoreTabDocs))
}

// Flush writes pending saves.
func (s *Store) Flush(ctx context.Context) error {
	return s.saver.Flush(ctx)
}

// Cancel drops pending saves.
func (s *Store) Cancel() {
	s.saver.Cancel()
}

// Pending reports whether saves are waiting to be written.
func (s *Store) Pending() bool {
	return s.saver.Pending()
}
