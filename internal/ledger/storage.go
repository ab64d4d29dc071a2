package ledger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/loykin/apidesk/internal/common"
	"github.com/loykin/apidesk/internal/constants"
	"github.com/loykin/apidesk/internal/kv"
)

// Storage reads and writes the ledger's persisted form.
type Storage struct {
	store  kv.Store
	logger *common.Logger
}

// NewStorage returns a Storage backed by s.
func NewStorage(s kv.Store) *Storage {
	return &Storage{
		store:  s,
		logger: common.GetLogger().WithStore(constants.StoreTabOrder),
	}
}

// LoadList returns the persisted entries. Corrupt data is reported as an empty list.
func (s *Storage) LoadList(ctx context.Context) ([]Entry, error) {
	raw, ok, err := s.store.Get(ctx, constants.StoreTabOrder, constants.KeyTabOrderList)
	if err != nil || !ok {
		return nil, err
	}
	var list []Entry
	if err := json.Unmarshal(raw, &list); err != nil {
		s.logger.Warn("discarding malformed tab order list", "error", err)
		return nil, nil
	}
	return list, nil
}

// SaveList persists entries.
func (s *Storage) SaveList(ctx context.Context, list []Entry) error {
	if list == nil {
		list = []Entry{}
	}
	return kv.SetJSON(ctx, s.store, constants.StoreTabOrder, constants.KeyTabOrderList, list)
}

// LoadActive returns the last active tab key, "" when none or unreadable.
func (s *Storage) LoadActive(ctx context.Context) (string, error) {
	var key *string
	ok, err := kv.GetJSON(ctx, s.store, constants.StoreTabOrder, constants.KeyLastActiveTab, &key)
	if err != nil {
		if ok {
			s.logger.Warn("discarding malformed last active tab", "error", err)
			return "", nil
		}
		return "", err
	}
	if key == nil {
		return "", nil
	}
	return *key, nil
}

// SaveActive persists the active key. "" is stored as null.
func (s *Storage) SaveActive(ctx context.Context, key string) error {
	var v *string
	if key != "" {
		v = &key
	}
	return kv.SetJSON(ctx, s.store, constants.StoreTabOrder, constants.KeyLastActiveTab, v)
}

// Load reads list and active key together.
func (s *Storage) Load(ctx context.Context) (State, error) {
	list, err := s.LoadList(ctx)
	if err != nil {
		return State{}, err
	}
	active, err := s.LoadActive(ctx)
	if err != nil {
		return State{}, err
	}
	return State{Entries: list, Active: active}, nil
}

// Clear removes both persisted values.
func (s *Storage) Clear(ctx context.Context) error {
	return errors.Join(
		s.store.Remove(ctx, constants.StoreTabOrder, constants.KeyTabOrderList),
		s.store.Remove(ctx, constants.StoreTabOrder, constants.KeyLastActiveTab),
	)
}
