// Package workspace binds the viewed endpoint to its persisted tab document and
// wires the stores of a session together.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/apidesk/internal/catalog"
	"github.com/loykin/apidesk/internal/common"
	"github.com/loykin/apidesk/internal/envvars"
	"github.com/loykin/apidesk/internal/ledger"
	"github.com/loykin/apidesk/internal/tabs"
	"github.com/loykin/apidesk/internal/util"
)

// ErrNoDocument is returned by document operations while no tab is bound.
var ErrNoDocument = errors.New("workspace: no document bound")

// State of the viewing slot.
type State int

const (
	Idle State = iota
	Resolving
	Viewing
)

func (s State) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case Viewing:
		return "viewing"
	default:
		return "idle"
	}
}

// View is a copy of the viewing slot handed to observers.
type View struct {
	State State
	// Key is the selected tab key, "" when idle.
	Key      string
	Document *tabs.Document
}

// Synchronizer moves the viewing slot between Idle, Resolving and Viewing and
// keeps the ledger and document store in step with it.
type Synchronizer struct {
	docs     *tabs.Store
	ledger   *ledger.Ledger
	resolver *envvars.Resolver
	catalog  atomic.Pointer[catalog.Document]
	baseURL  string
	now      func() time.Time
	logger   *common.Logger

	notifyMu sync.Mutex

	mu        sync.Mutex
	state     State
	selected  string
	gen       uint64
	bound     *tabs.Document
	observers map[int]func(View)
	nextID    int
}

// NewSynchronizer wires a synchronizer. resolver may be nil when variables are not used.
func NewSynchronizer(docs *tabs.Store, l *ledger.Ledger, resolver *envvars.Resolver, baseURL string) *Synchronizer {
	return &Synchronizer{
		docs:      docs,
		ledger:    l,
		resolver:  resolver,
		baseURL:   baseURL,
		now:       time.Now,
		logger:    common.GetLogger().WithComponent("synchronizer"),
		observers: map[int]func(View){},
	}
}

// SetCatalog replaces the endpoint catalog used to rebuild endpoints from tab keys.
func (s *Synchronizer) SetCatalog(doc *catalog.Document) {
	s.catalog.Store(doc)
}

// Catalog returns the current endpoint catalog, nil when none.
func (s *Synchronizer) Catalog() *catalog.Document {
	return s.catalog.Load()
}

// Subscribe registers fn, called synchronously after every transition.
func (s *Synchronizer) Subscribe(fn func(View)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// View returns the current viewing slot.
func (s *Synchronizer) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Synchronizer) viewLocked() View {
	v := View{State: s.state, Key: s.selected}
	if s.bound != nil {
		d := s.bound.Clone()
		v.Document = &d
	}
	return v
}

// commit runs fn under the state lock and notifies observers if it reports a change.
func (s *Synchronizer) commit(fn func() bool) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return false
	}
	view := s.viewLocked()
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	observers := make([]func(View), 0, len(ids))
	for _, id := range ids {
		observers = append(observers, s.observers[id])
	}
	s.mu.Unlock()

	for _, o := range observers {
		o(view)
	}
	return true
}

// EndpointFor returns the catalog endpoint for a tab key, or one rebuilt from the key itself.
func (s *Synchronizer) EndpointFor(key string) (catalog.Endpoint, error) {
	method, path, err := tabs.ParseKey(key)
	if err != nil {
		return catalog.Endpoint{}, err
	}
	return s.endpoint(method, path), nil
}

func (s *Synchronizer) endpoint(method, path string) catalog.Endpoint {
	if ep, err := s.catalog.Load().Find(method, path); err == nil {
		return ep
	}
	return catalog.Endpoint{Method: method, Path: path}
}

// Select views the endpoint for method and path, taken from the catalog when listed.
func (s *Synchronizer) Select(ctx context.Context, method, path string) error {
	ep := s.endpoint(method, path)
	return s.SelectEndpoint(ctx, &ep)
}

// ActivateTab views the tab with key.
func (s *Synchronizer) ActivateTab(ctx context.Context, key string) error {
	ep, err := s.EndpointFor(key)
	if err != nil {
		return err
	}
	return s.SelectEndpoint(ctx, &ep)
}

// SelectEndpoint binds the viewing slot to ep's document, creating and
// persisting it on first view. A nil ep returns the slot to Idle without
// deleting anything. Selecting the endpoint already bound is a no-op, and a
// resolution overtaken by a newer selection is discarded.
func (s *Synchronizer) SelectEndpoint(ctx context.Context, ep *catalog.Endpoint) error {
	if ep == nil {
		s.commit(func() bool {
			if s.state == Idle {
				return false
			}
			s.gen++
			s.state, s.selected, s.bound = Idle, "", nil
			return true
		})
		return nil
	}

	key := tabs.KeyFor(ep.Method, ep.Path)
	var gen uint64
	if !s.commit(func() bool {
		if s.selected == key && s.state != Idle {
			return false
		}
		s.gen++
		gen = s.gen
		s.state, s.selected, s.bound = Resolving, key, nil
		return true
	}) {
		return nil
	}
	logger := s.logger.WithTab(key)

	// Get reads storage only; pending edits of any tab, bound or not, must land first.
	if err := s.docs.Flush(ctx); err != nil && !isAbort(err) {
		logger.Warn("flushing documents before resolving tab failed", "error", err)
	}

	doc, found, err := s.docs.Get(ctx, key)
	if err != nil {
		s.commit(func() bool {
			if s.gen != gen {
				return false
			}
			s.state, s.selected = Idle, ""
			return true
		})
		if isAbort(err) {
			return nil
		}
		return fmt.Errorf("load tab %s: %w", key, err)
	}
	if !found {
		doc = tabs.BuildFromEndpoint(*ep, s.baseURL, s.now())
	}

	bound := s.commit(func() bool {
		if s.gen != gen || ctx.Err() != nil {
			return false
		}
		if !found {
			s.docs.Save(doc)
			s.ledger.Append(key, ep.DisplayName())
		}
		s.ledger.SetActive(key)
		d := doc.Clone()
		s.state, s.bound = Viewing, &d
		return true
	})
	if !bound {
		logger.Debug("discarding stale tab resolution")
		return nil
	}
	if !found {
		logger.Info("tab created")
	}
	return nil
}

// Document returns a copy of the bound document.
func (s *Synchronizer) Document() (tabs.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Viewing || s.bound == nil {
		return tabs.Document{}, ErrNoDocument
	}
	return s.bound.Clone(), nil
}

// update applies fn to the bound document and schedules a coalesced save.
// It never touches the ledger's active tab.
func (s *Synchronizer) update(fn func(*tabs.Document)) (tabs.Document, error) {
	var out tabs.Document
	ok := s.commit(func() bool {
		if s.state != Viewing || s.bound == nil {
			return false
		}
		d := s.bound.Clone()
		fn(&d)
		d.UpdatedAt = s.now().UnixMilli()
		s.bound = &d
		s.docs.Save(d)
		out = d.Clone()
		return true
	})
	if !ok {
		return tabs.Document{}, ErrNoDocument
	}
	return out, nil
}

// UpdateRequest edits the bound document's request.
func (s *Synchronizer) UpdateRequest(fn func(*tabs.Request)) (tabs.Document, error) {
	return s.update(func(d *tabs.Document) { fn(&d.Request) })
}

// SetLastResponse records a response on the bound document and feeds it to
// dynamic variable extraction.
func (s *Synchronizer) SetLastResponse(resp tabs.Response) (tabs.Document, error) {
	if resp.Timestamp == 0 {
		resp.Timestamp = s.now().UnixMilli()
	}
	doc, err := s.update(func(d *tabs.Document) {
		r := resp
		d.LastResponse = &r
	})
	if err != nil {
		return doc, err
	}
	if s.resolver != nil {
		header := http.Header{}
		for k, v := range resp.Headers {
			header.Set(k, v)
		}
		s.resolver.ApplyResponse(doc.Method, doc.Path, header, []byte(resp.Body))
	}
	return doc, nil
}

// unbind returns the slot to Idle when it holds one of keys.
func (s *Synchronizer) unbind(keys map[string]struct{}) {
	s.commit(func() bool {
		if _, ok := keys[s.selected]; !ok || s.state == Idle {
			return false
		}
		s.gen++
		s.state, s.selected, s.bound = Idle, "", nil
		return true
	})
}

// CloseTab removes key from the ledger and deletes its document. It does not
// pick another tab.
func (s *Synchronizer) CloseTab(ctx context.Context, key string) error {
	return s.CloseTabs(ctx, []string{key})
}

// CloseTabs closes several tabs at once.
func (s *Synchronizer) CloseTabs(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	s.unbind(set)
	s.ledger.RemoveMany(keys)
	if _, ok := set[s.ledger.Active()]; ok {
		s.ledger.SetActive("")
	}
	if err := s.docs.ClearByKeys(ctx, keys); err != nil {
		return fmt.Errorf("close tabs: %w", err)
	}
	s.logger.Info("tabs closed", "count", len(keys))
	return nil
}

// CloseAll closes every tab.
func (s *Synchronizer) CloseAll(ctx context.Context) error {
	s.commit(func() bool {
		if s.state == Idle {
			return false
		}
		s.gen++
		s.state, s.selected, s.bound = Idle, "", nil
		return true
	})
	s.ledger.Replace(nil, "")
	if err := s.docs.ClearAll(ctx); err != nil {
		return fmt.Errorf("close all tabs: %w", err)
	}
	return nil
}

// RenderRequest returns the bound request with {{.env.NAME}} templates
// replaced by working set values.
func (s *Synchronizer) RenderRequest() (tabs.Request, error) {
	doc, err := s.Document()
	if err != nil {
		return tabs.Request{}, err
	}
	vars := map[string]string{}
	if s.resolver != nil {
		vars = s.resolver.Vars().Map()
	}
	req := doc.Request
	var errs []error
	render := func(in string) string {
		out, err := util.RenderTemplateErr(in, vars)
		if err != nil {
			errs = append(errs, err)
			return in
		}
		return out
	}
	req.URL = render(req.URL)
	for i := range req.Headers {
		req.Headers[i].V = render(req.Headers[i].V)
	}
	for i := range req.QueryParams {
		req.QueryParams[i].V = render(req.QueryParams[i].V)
	}
	if req.BodyType == tabs.BodyRaw || req.BodyType == tabs.BodyNone {
		req.Body = render(req.Body)
	}
	if err := errors.Join(errs...); err != nil {
		return req, fmt.Errorf("render request: %w", err)
	}
	return req, nil
}

func isAbort(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
