package envvars

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/loykin/apidesk/internal/constants"
	"github.com/loykin/apidesk/internal/kv"
)

type fakeSource struct {
	mu       sync.Mutex
	env      *Environment
	fetchErr error
	uptime   string
	probeErr error
	gate     chan struct{}
	fetches  int
	probes   int
}

func (f *fakeSource) FetchEnvironment(ctx context.Context) (*Environment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	env := *f.env
	return &env, nil
}

func (f *fakeSource) ProbeLiveness(ctx context.Context) (Liveness, error) {
	f.mu.Lock()
	f.probes++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Liveness{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.probeErr != nil {
		return Liveness{}, f.probeErr
	}
	return Liveness{Uptime: f.uptime}, nil
}

func (f *fakeSource) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches, f.probes
}

// flakyStore fails the first n reads of the environment cache.
type flakyStore struct {
	*kv.Memory
	mu       sync.Mutex
	failures int
}

func (f *flakyStore) Get(ctx context.Context, store, key string) ([]byte, bool, error) {
	if store == constants.StoreEnvCache {
		f.mu.Lock()
		fail := f.failures > 0
		if fail {
			f.failures--
		}
		f.mu.Unlock()
		if fail {
			return nil, false, errors.New("disk busy")
		}
	}
	return f.Memory.Get(ctx, store, key)
}

var (
	schemaV1 = Environment{Variables: []Variable{static("API_KEY", "abc123"), dynamic("TOKEN")}}
	schemaV2 = Environment{Variables: []Variable{static("API_KEY", "abc999"), dynamic("TOKEN"), static("REGION", "eu")}}
)

func seed(t *testing.T, store kv.Store, cached *CachedEnvironment, local []Resolved) {
	t.Helper()
	ctx := context.Background()
	if cached != nil {
		if err := NewCacheStore(store).Save(ctx, cached.Instance, cached.Uptime); err != nil {
			t.Fatalf("seed cache: %v", err)
		}
	}
	if local != nil {
		if err := NewLocalStore(store).Save(ctx, local); err != nil {
			t.Fatalf("seed local: %v", err)
		}
	}
}

func TestResolver_CacheHitFreshFingerprint(t *testing.T) {
	store := kv.NewMemory()
	seed(t, store, &CachedEnvironment{Instance: schemaV1, Uptime: "u1"}, []Resolved{local("TOKEN", "xyz")})
	src := &fakeSource{env: &schemaV2, uptime: "u1"}

	r := NewResolver(src, store, time.Hour)
	if got := r.Initialize(context.Background()); got != StatusFromCache {
		t.Fatalf("status = %v", got)
	}
	r.Wait()

	want := []row{
		{Name: "API_KEY", Value: "abc123"},
		{Name: "TOKEN", Value: "xyz", Editable: true},
		{Editable: true, Local: true},
	}
	if got := rows(r.Vars().Vars()); !reflect.DeepEqual(got, want) {
		t.Fatalf("vars\n got: %+v\nwant: %+v", got, want)
	}
	if fetches, probes := src.counts(); fetches != 0 || probes != 1 {
		t.Fatalf("fetches=%d probes=%d", fetches, probes)
	}
	if r.Uptime() != "u1" {
		t.Fatalf("uptime = %q", r.Uptime())
	}
}

func TestResolver_CacheHitStaleFingerprintRepublishes(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	seed(t, store, &CachedEnvironment{Instance: schemaV1, Uptime: "u1"}, []Resolved{local("TOKEN", "xyz")})
	src := &fakeSource{env: &schemaV2, uptime: "u2", gate: make(chan struct{})}

	r := NewResolver(src, store, time.Hour)
	if got := r.Initialize(ctx); got != StatusFromCache {
		t.Fatalf("status = %v", got)
	}

	// an edit made while revalidation is in flight must survive the republish
	r.Vars().Add("EXTRA", "e")
	close(src.gate)
	r.Wait()

	want := []row{
		{Name: "API_KEY", Value: "abc999"},
		{Name: "TOKEN", Value: "xyz", Editable: true},
		{Name: "REGION", Value: "eu"},
		{Name: "EXTRA", Value: "e", Editable: true, Local: true},
		{Editable: true, Local: true},
	}
	if got := rows(r.Vars().Vars()); !reflect.DeepEqual(got, want) {
		t.Fatalf("vars\n got: %+v\nwant: %+v", got, want)
	}

	cached, err := NewCacheStore(store).Load(ctx)
	if err != nil || cached == nil {
		t.Fatalf("cache load: %v %v", cached, err)
	}
	if cached.Uptime != "u2" || len(cached.Instance.Variables) != 3 {
		t.Fatalf("cache not updated: %+v", cached)
	}
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestResolver_NoCacheFetchesRemote(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	seed(t, store, nil, []Resolved{local("TOKEN", "xyz"), local("MINE", "m")})
	src := &fakeSource{env: &schemaV1, uptime: "u1"}

	r := NewResolver(src, store, time.Hour)
	if got := r.Initialize(ctx); got != StatusFromRemote {
		t.Fatalf("status = %v", got)
	}

	want := []row{
		{Name: "API_KEY", Value: "abc123"},
		{Name: "TOKEN", Value: "xyz", Editable: true},
		{Name: "MINE", Value: "m", Editable: true, Local: true},
		{Editable: true, Local: true},
	}
	if got := rows(r.Vars().Vars()); !reflect.DeepEqual(got, want) {
		t.Fatalf("vars\n got: %+v\nwant: %+v", got, want)
	}
	cached, _ := NewCacheStore(store).Load(ctx)
	if cached == nil || cached.Uptime != "u1" {
		t.Fatalf("expected cached schema, got %+v", cached)
	}
}

func TestResolver_RemoteFailureKeepsLocal(t *testing.T) {
	store := kv.NewMemory()
	seed(t, store, nil, []Resolved{local("MINE", "m")})
	src := &fakeSource{fetchErr: errors.New("connection refused")}

	r := NewResolver(src, store, time.Hour)
	if got := r.Initialize(context.Background()); got != StatusLocalOnly {
		t.Fatalf("status = %v", got)
	}
	want := []row{
		{Name: "MINE", Value: "m", Editable: true, Local: true},
		{Editable: true, Local: true},
	}
	if got := rows(r.Vars().Vars()); !reflect.DeepEqual(got, want) {
		t.Fatalf("vars = %+v", got)
	}
	if r.Instance() != nil {
		t.Fatal("no schema should be adopted")
	}
}

func TestResolver_FallsBackToCache(t *testing.T) {
	store := &flakyStore{Memory: kv.NewMemory(), failures: 1}
	seed(t, store.Memory, &CachedEnvironment{Instance: schemaV1, Uptime: "u1"}, nil)
	src := &fakeSource{fetchErr: errors.New("503")}

	r := NewResolver(src, store, time.Hour)
	if got := r.Initialize(context.Background()); got != StatusFallbackCache {
		t.Fatalf("status = %v", got)
	}
	if v, ok := r.Vars().Lookup("API_KEY"); !ok || v != "abc123" {
		t.Fatalf("API_KEY = %q, %v", v, ok)
	}
}

func TestResolver_WithoutSource(t *testing.T) {
	store := kv.NewMemory()
	seed(t, store, nil, []Resolved{local("MINE", "m")})

	r := NewResolver(nil, store, time.Hour)
	if got := r.Initialize(context.Background()); got != StatusLocalOnly {
		t.Fatalf("status = %v", got)
	}
	if err := r.Refresh(context.Background()); !errors.Is(err, ErrNoSource) {
		t.Fatalf("Refresh err = %v", err)
	}
}

func TestResolver_CanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fakeSource{env: &schemaV1, uptime: "u1"}

	r := NewResolver(src, kv.NewMemory(), time.Hour)
	if got := r.Initialize(ctx); got != StatusAborted {
		t.Fatalf("status = %v", got)
	}
	if fetches, probes := src.counts(); fetches != 0 || probes != 0 {
		t.Fatalf("remote touched after cancel: fetches=%d probes=%d", fetches, probes)
	}
}

func TestResolver_CancelDuringValidationPublishesNothing(t *testing.T) {
	store := kv.NewMemory()
	seed(t, store, &CachedEnvironment{Instance: schemaV1, Uptime: "u1"}, nil)
	src := &fakeSource{env: &schemaV2, uptime: "u2", gate: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	r := NewResolver(src, store, time.Hour)
	if got := r.Initialize(ctx); got != StatusFromCache {
		t.Fatalf("status = %v", got)
	}
	before := rows(r.Vars().Vars())

	cancel()
	r.Wait()

	if got := rows(r.Vars().Vars()); !reflect.DeepEqual(got, before) {
		t.Fatalf("vars changed after cancel\n got: %+v\nwant: %+v", got, before)
	}
	if fetches, _ := src.counts(); fetches != 0 {
		t.Fatalf("fetches = %d", fetches)
	}
	cached, _ := NewCacheStore(store).Load(context.Background())
	if cached.Uptime != "u1" {
		t.Fatalf("cache overwritten: %+v", cached)
	}
}

func TestResolver_ApplyResponse(t *testing.T) {
	env := Environment{Variables: []Variable{
		static("API_KEY", "abc123"),
		{Name: "TOKEN", Source: Source{Request: &Request{
			Endpoints: []string{"/login"},
			Method:    "POST",
			Response:  Response{BodyAttributePath: strPtr("token")},
		}}},
	}}
	src := &fakeSource{env: &env, uptime: "u1"}
	r := NewResolver(src, kv.NewMemory(), time.Hour)
	if got := r.Initialize(context.Background()); got != StatusFromRemote {
		t.Fatalf("status = %v", got)
	}

	got := r.ApplyResponse("POST", "/login", http.Header{}, []byte(`{"token":"t-123"}`))
	if len(got) != 1 || got[0].Value != "t-123" {
		t.Fatalf("extracted %+v", got)
	}
	if v, _ := r.Vars().Lookup("TOKEN"); v != "t-123" {
		t.Fatalf("TOKEN = %q", v)
	}
}

func TestResolver_ClosePersistsEdits(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	r := NewResolver(nil, store, time.Hour)
	r.Initialize(ctx)
	r.Vars().Add("MINE", "m")

	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	saved, err := NewLocalStore(store).Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(saved) != 1 || saved[0].Name != "MINE" {
		t.Fatalf("saved %+v", saved)
	}

	// edits after Close are no longer persisted
	r.Vars().Add("LATE", "l")
	saved, _ = NewLocalStore(store).Load(ctx)
	if len(saved) != 1 {
		t.Fatalf("late edit persisted: %+v", saved)
	}
}

func TestStatusString(t *testing.T) {
	if StatusFallbackCache.String() != "fallback-cache" || StatusLocalOnly.String() != "local-only" {
		t.Fatal("unexpected status names")
	}
}
