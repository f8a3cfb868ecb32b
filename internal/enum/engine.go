package enum

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/openimsdk/tools/log"

	"github.com/nssresponder/responderd/internal/domain"
	"github.com/nssresponder/responderd/internal/provider"
	"github.com/nssresponder/responderd/internal/rpcerr"
	"github.com/nssresponder/responderd/internal/sysdb"
)

// Class distinguishes which XXent family an Engine serves.
type Class int

const (
	ClassPasswd Class = iota
	ClassGroup
	ClassService
)

// defaultFanoutLimit bounds concurrent per-domain builds the way the
// teacher bounds conversation refreshes in pkg/rpccache/conversation.go.
const defaultFanoutLimit = 4

// Engine is Component G: one per object class (passwd, group, service), owning
// the class's single in-flight-or-current Snapshot and driving its
// construction per spec.md §4.7.
type Engine struct {
	class    Class
	domains  *domain.Manager
	db       sysdb.PersistentCache
	provider *provider.Adapter
	ttl      time.Duration
	fanout   int

	mu  sync.Mutex
	cur *Snapshot

	buildSF singleflight.Group
}

// New builds an Engine for class, rebuilding its snapshot at most once
// every ttl and fanning construction out across at most
// defaultFanoutLimit domains at a time.
func New(class Class, domains *domain.Manager, db sysdb.PersistentCache, prov *provider.Adapter, ttl time.Duration) *Engine {
	return &Engine{class: class, domains: domains, db: db, provider: prov, ttl: ttl, fanout: defaultFanoutLimit}
}

// SetXXent implements spec.md §4.7's setXXent: reset cursor to (0,0),
// reject if no domain has enumeration enabled, otherwise return the
// current (possibly freshly built) snapshot.
func (e *Engine) SetXXent(ctx context.Context, cursor *Cursor) (*Snapshot, error) {
	cursor.Reset()
	return e.rebuild(ctx)
}

// rebuild is setXXent's snapshot-producing half, shared with the
// implicit re-setXXent GetXXent performs on an expired snapshot — which
// must NOT reset the caller's cursor (spec.md §4.7: "saving and
// restoring the cursor across the rebuild").
func (e *Engine) rebuild(ctx context.Context) (*Snapshot, error) {
	if !e.anyEnumerable() {
		return nil, rpcerr.New(rpcerr.StatusNotFound, "no domain has enumeration enabled")
	}
	return e.ensureSnapshot(ctx)
}

// GetXXent implements getXXent(n): drain up to n records from cursor's
// position in the engine's current snapshot, transparently performing
// the implicit re-setXXent spec.md §4.7 describes when that snapshot
// has expired. Cursor position lives entirely in the caller, so nothing
// needs explicit saving or restoring across the rebuild.
func (e *Engine) GetXXent(ctx context.Context, cursor *Cursor, n int) ([]*sysdb.Record, error) {
	snap := e.current()
	switch {
	case snap == nil:
		return nil, nil
	case snap.expired(e.ttl):
		rebuilt, err := e.rebuild(ctx)
		if err != nil {
			return nil, rpcerr.Wrap(rpcerr.StatusRefreshFailed, err)
		}
		snap = rebuilt
	case !snap.Ready():
		if err := snap.waitReady(ctx); err != nil {
			return nil, err
		}
	}
	return cursor.Next(snap, n), nil
}

// EndXXent implements endXXent: clear the client's cursor only.
func (e *Engine) EndXXent(cursor *Cursor) { cursor.Reset() }

func (e *Engine) anyEnumerable() bool {
	for _, d := range e.domains.Domains() {
		if d.Enumerate {
			return true
		}
	}
	return false
}

func (e *Engine) current() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur
}

// ensureSnapshot returns a snapshot that is either already fresh, or
// under (or about to start) construction, per spec.md §4.7 steps 3-6:
// "If a snapshot exists and has not expired, return it. If a snapshot
// is currently under construction, register as a waiter. Otherwise
// create a new snapshot ... wake waiters."
func (e *Engine) ensureSnapshot(ctx context.Context) (*Snapshot, error) {
	e.mu.Lock()
	if e.cur != nil && (!e.cur.Ready() || !e.cur.expired(e.ttl)) {
		snap := e.cur
		e.mu.Unlock()
		if !snap.Ready() {
			if err := snap.waitReady(ctx); err != nil {
				return nil, err
			}
		}
		return snap, nil
	}
	fresh := newSnapshot()
	e.cur = fresh
	e.mu.Unlock()

	go e.build(fresh)
	if err := fresh.waitReady(ctx); err != nil {
		return nil, err
	}
	return fresh, nil
}

// build materializes fresh across every enumeration-enabled domain,
// fanning the per-domain work out with golang.org/x/sync/errgroup the
// way the teacher's pkg/rpccache/conversation.go fans out per-
// conversation refreshes, bounded by SetLimit rather than one goroutine
// per domain.
func (e *Engine) build(fresh *Snapshot) {
	ctx := context.Background()
	var enumDomains []*domain.Domain
	for _, d := range e.domains.Domains() {
		if d.Enumerate {
			enumDomains = append(enumDomains, d)
		}
	}

	pages := make([]DomainPage, len(enumDomains))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.fanout)
	for i, d := range enumDomains {
		i, d := i, d
		g.Go(func() error {
			pages[i] = e.buildDomainPage(gctx, d)
			return nil
		})
	}
	_ = g.Wait() // per-domain failures are logged and degrade to an empty page; never abort the whole snapshot

	fresh.markReady(pages)
}

// buildDomainPage issues at most one bulk provider refresh for d (keyed
// through buildSF by domain name, so concurrent builds for the same
// domain share one refresh; each domain pays for its own) before
// enumerating the persistent cache, per spec.md §4.7 step 5.
func (e *Engine) buildDomainPage(ctx context.Context, d *domain.Domain) DomainPage {
	if d.ProviderCapable() {
		kind := provider.KindUser
		switch e.class {
		case ClassGroup:
			kind = provider.KindGroup
		case ClassService:
			kind = provider.KindService
		}
		_, err, _ := e.buildSF.Do(d.Name, func() (any, error) {
			return e.provider.Refresh(ctx, provider.AccountRequest{Domain: d.Name, Kind: kind})
		})
		if err != nil {
			log.ZWarn(ctx, "enumeration bulk refresh failed, serving persisted data", err, "domain", d.Name, "kind", kind)
		}
	}

	records, err := e.enumerate(ctx, d.Name)
	if err != nil {
		log.ZWarn(ctx, "enumeration query failed", err, "domain", d.Name)
		records = nil
	}
	return DomainPage{Domain: d.Name, Records: records}
}

func (e *Engine) enumerate(ctx context.Context, domainName string) ([]*sysdb.Record, error) {
	switch e.class {
	case ClassGroup:
		return e.db.EnumGrEnt(ctx, domainName)
	case ClassService:
		return e.db.EnumServEnt(ctx, domainName)
	default:
		return e.db.EnumPwEnt(ctx, domainName)
	}
}
