package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/loykin/apidesk/internal/catalog"
	"github.com/loykin/apidesk/internal/common"
	"github.com/loykin/apidesk/internal/envvars"
	"github.com/loykin/apidesk/internal/files"
	"github.com/loykin/apidesk/internal/kv"
	"github.com/loykin/apidesk/internal/ledger"
	"github.com/loykin/apidesk/internal/remote"
	"github.com/loykin/apidesk/internal/tabs"
)

// Options tune a workspace.
type Options struct {
	// CoalesceWait is the quiet window of every persistence path.
	CoalesceWait time.Duration
	// BaseURL prefixes the URL of newly created tabs.
	BaseURL string
	Catalog *catalog.Document
}

// Config opens a workspace from configuration.
type Config struct {
	Store kv.Config
	// Remote is optional; without it only local and cached variables are used.
	Remote      *remote.Config
	CatalogFile string
	Options
}

// Workspace is one session: the stores, the ledger, the variable resolver and
// the synchronizer that binds them.
type Workspace struct {
	KV        kv.Store
	Ledger    *ledger.Ledger
	Docs      *tabs.Store
	Files     *files.Store
	Env       *envvars.Resolver
	Sync      *Synchronizer
	Remote    *remote.Client
	persister *ledger.Persister
	storage   *ledger.Storage
	logger    *common.Logger

	unsubscribe func()

	mu       sync.Mutex
	stopInit context.CancelFunc
	closed   bool
}

// New wires a workspace over store. source may be nil.
func New(store kv.Store, source envvars.RemoteSource, opts Options) *Workspace {
	l := ledger.New()
	storage := ledger.NewStorage(store)
	persister := ledger.NewPersister(storage, opts.CoalesceWait)
	docs := tabs.NewStore(store, opts.CoalesceWait)
	resolver := envvars.NewResolver(source, store, opts.CoalesceWait)
	syncer := NewSynchronizer(docs, l, resolver, opts.BaseURL)
	syncer.SetCatalog(opts.Catalog)

	w := &Workspace{
		KV:          store,
		Ledger:      l,
		Docs:        docs,
		Files:       files.NewStore(store),
		Env:         resolver,
		Sync:        syncer,
		persister:   persister,
		storage:     storage,
		logger:      common.GetLogger().WithComponent("workspace"),
		unsubscribe: l.Subscribe(persister.Observe),
	}
	if c, ok := source.(*remote.Client); ok {
		w.Remote = c
	}
	return w
}

// Open connects the configured store and remote and wires a workspace.
func Open(ctx context.Context, cfg Config) (*Workspace, error) {
	if cfg.Catalog == nil && cfg.CatalogFile != "" {
		doc, err := catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		cfg.Catalog = doc
	}
	var source envvars.RemoteSource
	if cfg.Remote != nil {
		client, err := remote.New(*cfg.Remote)
		if err != nil {
			return nil, err
		}
		source = client
	}
	store, err := kv.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return New(store, source, cfg.Options), nil
}

// Start restores the tab ledger and last active tab, then initializes the
// environment. Background revalidation runs until ctx ends or Close is called.
func (w *Workspace) Start(ctx context.Context) (envvars.Status, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return envvars.StatusAborted, errors.New("workspace: closed")
	}
	initCtx, cancel := context.WithCancel(ctx)
	w.stopInit = cancel
	w.mu.Unlock()

	if w.Sync.Catalog() == nil && w.Remote != nil {
		if doc, err := w.Remote.FetchCatalog(initCtx); err != nil {
			if !isAbort(err) {
				w.logger.Warn("catalog fetch failed", "error", err)
			}
		} else {
			w.Sync.SetCatalog(doc)
		}
	}

	if err := w.Restore(initCtx); err != nil {
		if isAbort(err) {
			return envvars.StatusAborted, nil
		}
		w.logger.Warn("restoring tabs failed", "error", err)
	}
	status := w.Env.Initialize(initCtx)
	w.logger.Info("workspace started", "environment", status.String(), "tabs", len(w.Ledger.Snapshot().Entries))
	return status, nil
}

// Restore loads the persisted ledger and re-selects the last active tab when
// its document still exists. Nothing is applied once ctx is done.
func (w *Workspace) Restore(ctx context.Context) error {
	state, err := w.storage.Load(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	w.persister.Prime(state)
	w.Ledger.Replace(state.Entries, state.Active)

	if state.Active == "" {
		return nil
	}
	_, found, err := w.Docs.Get(ctx, state.Active)
	if err != nil || !found || ctx.Err() != nil {
		return err
	}
	ep, err := w.Sync.EndpointFor(state.Active)
	if err != nil {
		w.logger.Warn("ignoring unreadable last active tab", "tab", state.Active, "error", err)
		return nil
	}
	return w.Sync.SelectEndpoint(ctx, &ep)
}

// Flush writes every pending change.
func (w *Workspace) Flush(ctx context.Context) error {
	return errors.Join(w.Docs.Flush(ctx), w.persister.Flush(ctx), w.Env.Flush(ctx))
}

// ClearAll closes every tab and deletes uploaded files.
func (w *Workspace) ClearAll(ctx context.Context) error {
	return errors.Join(
		w.Sync.CloseAll(ctx),
		w.persister.Flush(ctx),
		w.Files.DeleteAll(ctx),
	)
}

// Close stops background work, flushes pending writes and closes the store.
func (w *Workspace) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.stopInit != nil {
		w.stopInit()
	}
	w.mu.Unlock()

	err := errors.Join(
		w.Env.Close(ctx),
		w.Docs.Flush(ctx),
		w.persister.Flush(ctx),
	)
	w.unsubscribe()
	return errors.Join(err, w.KV.Close())
}
