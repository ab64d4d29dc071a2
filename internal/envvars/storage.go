package envvars

import (
	"context"
	"encoding/json"

	"github.com/loykin/apidesk/internal/common"
	"github.com/loykin/apidesk/internal/constants"
	"github.com/loykin/apidesk/internal/kv"
)

// LocalStore persists the user's variable rows.
type LocalStore struct {
	store  kv.Store
	logger *common.Logger
}

// NewLocalStore returns a LocalStore backed by s.
func NewLocalStore(s kv.Store) *LocalStore {
	return &LocalStore{store: s, logger: common.GetLogger().WithStore(constants.StoreEnvVars)}
}

// Load returns the stored rows. Corrupt data is reported as an empty list.
func (l *LocalStore) Load(ctx context.Context) ([]Resolved, error) {
	raw, ok, err := l.store.Get(ctx, constants.StoreEnvVars, constants.KeyEnvVarsList)
	if err != nil || !ok {
		return nil, err
	}
	var vars []Resolved
	if err := json.Unmarshal(raw, &vars); err != nil {
		l.logger.Warn("discarding malformed local variables", "error", err)
		return nil, nil
	}
	return vars, nil
}

// Save stores vars as given; callers filter blank rows.
func (l *LocalStore) Save(ctx context.Context, vars []Resolved) error {
	if vars == nil {
		vars = []Resolved{}
	}
	return kv.SetJSON(ctx, l.store, constants.StoreEnvVars, constants.KeyEnvVarsList, vars)
}

// Clear removes the stored rows.
func (l *LocalStore) Clear(ctx context.Context) error {
	return l.store.Remove(ctx, constants.StoreEnvVars, constants.KeyEnvVarsList)
}

// CacheStore persists the last fetched remote schema.
type CacheStore struct {
	store  kv.Store
	logger *common.Logger
}

// NewCacheStore returns a CacheStore backed by s.
func NewCacheStore(s kv.Store) *CacheStore {
	return &CacheStore{store: s, logger: common.GetLogger().WithStore(constants.StoreEnvCache)}
}

// Load returns the cached environment or nil when absent or unreadable.
func (c *CacheStore) Load(ctx context.Context) (*CachedEnvironment, error) {
	var cached CachedEnvironment
	ok, err := kv.GetJSON(ctx, c.store, constants.StoreEnvCache, constants.KeyEnvCache, &cached)
	if err != nil {
		if ok {
			c.logger.Warn("discarding malformed cached environment", "error", err)
			return nil, nil
		}
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &cached, nil
}

// Save overwrites the cache.
func (c *CacheStore) Save(ctx context.Context, env Environment, uptime string) error {
	return kv.SetJSON(ctx, c.store, constants.StoreEnvCache, constants.KeyEnvCache, CachedEnvironment{Instance: env, Uptime: uptime})
}

// Clear drops the cache.
func (c *CacheStore) Clear(ctx context.Context) error {
	return c.store.Clear(ctx, constants.StoreEnvCache)
}
