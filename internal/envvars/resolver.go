package envvars

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/loykin/apidesk/internal/coalesce"
	"github.com/loykin/apidesk/internal/common"
	"github.com/loykin/apidesk/internal/kv"
)

// ErrNoSource is returned when a remote operation is requested without a source.
var ErrNoSource = errors.New("envvars: no remote source configured")

// Status tells where the published working set came from after Initialize.
type Status int

const (
	StatusLocalOnly Status = iota
	StatusFromCache
	StatusFromRemote
	StatusFallbackCache
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusFromCache:
		return "cache"
	case StatusFromRemote:
		return "remote"
	case StatusFallbackCache:
		return "fallback-cache"
	case StatusAborted:
		return "aborted"
	default:
		return "local-only"
	}
}

// Resolver owns the working set and keeps it in step with the remote schema.
type Resolver struct {
	source RemoteSource
	local  *LocalStore
	cache  *CacheStore
	vars   *WorkingSet
	saver  *coalesce.Coalescer[[]Resolved]
	logger *common.Logger

	unsubscribe func()
	wg          sync.WaitGroup

	mu       sync.RWMutex
	instance *Environment
	uptime   string
}

// NewResolver wires a resolver over store. source may be nil, in which case only
// local and cached data are used. wait is the coalescing window for local saves.
func NewResolver(source RemoteSource, store kv.Store, wait time.Duration) *Resolver {
	r := &Resolver{
		source: source,
		local:  NewLocalStore(store),
		cache:  NewCacheStore(store),
		vars:   NewWorkingSet(),
		logger: common.GetLogger().WithComponent("env-resolver"),
	}
	r.saver = coalesce.New(func(ctx context.Context, vars []Resolved) error {
		return r.local.Save(ctx, NonEmpty(vars))
	}, coalesce.WithWait[[]Resolved](wait), coalesce.WithLogger[[]Resolved](r.logger))
	r.unsubscribe = r.vars.Subscribe(r.saver.Schedule)
	return r
}

// Vars returns the working set.
func (r *Resolver) Vars() *WorkingSet { return r.vars }

// Instance returns the adopted remote schema, nil when none. Callers must not modify it.
func (r *Resolver) Instance() *Environment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instance
}

// Uptime returns the liveness fingerprint of the adopted schema.
func (r *Resolver) Uptime() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.uptime
}

func (r *Resolver) adopt(env Environment, uptime string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instance = &env
	r.uptime = uptime
}

// Initialize publishes the local snapshot, then the cached or freshly fetched
// schema merged with it. With a cache present, revalidation runs in the
// background under ctx. Failures degrade to the best data available and are
// never returned.
func (r *Resolver) Initialize(ctx context.Context) Status {
	snapshot, err := r.local.Load(ctx)
	if err != nil {
		if r.logFailure("loading local variables failed", err) {
			return StatusAborted
		}
	}
	if ctx.Err() != nil {
		return StatusAborted
	}
	if len(snapshot) > 0 {
		r.vars.Set(snapshot)
	}

	cached, err := r.cache.Load(ctx)
	if err != nil && r.logFailure("loading cached environment failed", err) {
		return StatusAborted
	}
	if cached != nil {
		if ctx.Err() != nil {
			return StatusAborted
		}
		r.adopt(cached.Instance, cached.Uptime)
		r.vars.Set(Merge(&cached.Instance, snapshot))
		c := *cached
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.Validate(ctx, c)
		}()
		return StatusFromCache
	}

	err = r.Refresh(ctx)
	switch {
	case err == nil:
		return StatusFromRemote
	case errors.Is(err, ErrNoSource):
		r.logger.Debug("no remote source, using local variables only")
	case r.logFailure("environment fetch failed", err) || ctx.Err() != nil:
		return StatusAborted
	}

	cached, err = r.cache.Load(ctx)
	if err == nil && cached != nil && ctx.Err() == nil {
		r.adopt(cached.Instance, cached.Uptime)
		r.vars.Set(Merge(&cached.Instance, r.latestLocal(ctx)))
		return StatusFallbackCache
	}
	if ctx.Err() != nil {
		return StatusAborted
	}
	return StatusLocalOnly
}

// Validate probes liveness and, when the fingerprint differs from cached,
// refetches the schema and republishes. It reports whether it republished.
// Probe or fetch failures leave the current state untouched.
func (r *Resolver) Validate(ctx context.Context, cached CachedEnvironment) bool {
	if r.source == nil {
		return false
	}
	pong, err := r.source.ProbeLiveness(ctx)
	if err != nil {
		r.logFailure("liveness probe failed", err)
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	if pong.Uptime == cached.Uptime {
		r.logger.Debug("environment cache is fresh", "uptime", pong.Uptime)
		return false
	}
	env, err := r.source.FetchEnvironment(ctx)
	if err != nil {
		r.logFailure("environment refetch failed", err)
		return false
	}
	r.logger.Info("remote environment changed", "old_uptime", cached.Uptime, "new_uptime", pong.Uptime)
	return r.publish(ctx, *env, pong.Uptime)
}

// Refresh fetches the schema and liveness fingerprint, caches them and republishes.
func (r *Resolver) Refresh(ctx context.Context) error {
	if r.source == nil {
		return ErrNoSource
	}
	env, err := r.source.FetchEnvironment(ctx)
	if err != nil {
		return err
	}
	pong, err := r.source.ProbeLiveness(ctx)
	if err != nil {
		return err
	}
	if !r.publish(ctx, *env, pong.Uptime) {
		return ctx.Err()
	}
	return nil
}

// publish caches env and replaces the working set. It does nothing once ctx is done.
func (r *Resolver) publish(ctx context.Context, env Environment, uptime string) bool {
	if ctx.Err() != nil {
		return false
	}
	if err := r.cache.Save(ctx, env, uptime); err != nil {
		r.logFailure("saving cached environment failed", err)
	}
	local := r.latestLocal(ctx)
	if ctx.Err() != nil {
		return false
	}
	r.adopt(env, uptime)
	r.vars.Set(Merge(&env, local))
	return true
}

// latestLocal returns the persisted local rows after flushing pending edits.
// If storage cannot be read the in-memory rows are used so nothing local is dropped.
func (r *Resolver) latestLocal(ctx context.Context) []Resolved {
	if err := r.saver.Flush(ctx); err != nil {
		r.logFailure("flushing local variables failed", err)
	}
	vars, err := r.local.Load(ctx)
	if err != nil {
		r.logFailure("reloading local variables failed", err)
		return NonEmpty(r.vars.Vars())
	}
	return vars
}

// ApplyResponse updates dynamic variables bound to method and path from a response.
func (r *Resolver) ApplyResponse(method, path string, header http.Header, body []byte) []Extraction {
	extracted := Extract(r.Instance(), method, path, header, body)
	for _, e := range extracted {
		if r.vars.SetByName(e.Name, e.Value) {
			r.logger.Debug("variable extracted from response", "name", e.Name, "value", common.MaskVariable(e.Name, e.Value))
		}
	}
	return extracted
}

// Flush writes pending local edits.
func (r *Resolver) Flush(ctx context.Context) error {
	return r.saver.Flush(ctx)
}

// Wait blocks until background validation has finished.
func (r *Resolver) Wait() { r.wg.Wait() }

// Close stops persisting working set changes after flushing pending ones and
// waits for background validation. Cancel the Initialize context first to
// abandon in-flight remote calls.
func (r *Resolver) Close(ctx context.Context) error {
	r.unsubscribe()
	err := r.saver.Flush(ctx)
	r.wg.Wait()
	return err
}

// logFailure logs err and reports whether it was an aborted operation.
func (r *Resolver) logFailure(msg string, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		r.logger.Debug(msg+" (aborted)", "error", err)
		return true
	}
	r.logger.Warn(msg, "error", err)
	return false
}
