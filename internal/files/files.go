// Package files keeps uploaded request body blobs keyed by generated ids.
package files

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/loykin/apidesk/internal/constants"
	"github.com/loykin/apidesk/internal/kv"
)

// Store persists file blobs in the files logical store.
type Store struct {
	kv kv.Store
}

// NewStore returns a file store over s.
func NewStore(s kv.Store) *Store {
	return &Store{kv: s}
}

// Upload stores data under a new id and returns the id.
func (s *Store) Upload(ctx context.Context, data []byte) (string, error) {
	id := uuid.NewString()
	if err := s.kv.Set(ctx, constants.StoreFiles, id, data); err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	return id, nil
}

// Get returns the blob for id. found is false when it does not exist.
func (s *Store) Get(ctx context.Context, id string) ([]byte, bool, error) {
	return s.kv.Get(ctx, constants.StoreFiles, id)
}

// Delete removes one blob.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.kv.Remove(ctx, constants.StoreFiles, id)
}

// DeleteOthers removes every blob except keep.
func (s *Store) DeleteOthers(ctx context.Context, keep string) error {
	ids, err := s.kv.ListKeys(ctx, constants.StoreFiles)
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		if id == keep {
			continue
		}
		if err := s.kv.Remove(ctx, constants.StoreFiles, id); err != nil {
			errs = append(errs, fmt.Errorf("delete file %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// DeleteAll removes every blob.
func (s *Store) DeleteAll(ctx context.Context) error {
	return s.kv.Clear(ctx, constants.StoreFiles)
}
