// Package responder composes the responder core's collaborators
// (spec.md §3's "Ownership & lifecycle") into the single long-lived
// context a connection-handling loop drives: one domain list, one
// pipeline, one enumeration engine per object class, one provider
// adapter, and the metrics registry they all report into.
package responder

import (
	"context"

	"github.com/openimsdk/tools/log"

	"github.com/nssresponder/responderd/internal/config"
	"github.com/nssresponder/responderd/internal/domain"
	"github.com/nssresponder/responderd/internal/enum"
	"github.com/nssresponder/responderd/internal/metrics"
	"github.com/nssresponder/responderd/internal/negcache"
	"github.com/nssresponder/responderd/internal/pipeline"
	"github.com/nssresponder/responderd/internal/provider"
	"github.com/nssresponder/responderd/internal/reply"
	"github.com/nssresponder/responderd/internal/shmcache"
	"github.com/nssresponder/responderd/internal/sysdb"
)

// Responder is the process-wide context every connection shares. It
// owns nothing about individual connections: per-connection state is
// a ConnState holding one enum.Cursor each for passwd, group and
// services, created fresh by NewConnState and handed back into the
// enumeration calls by whatever loop reads the socket.
type Responder struct {
	cfg *config.Config

	Domains  *domain.Manager
	Neg      *negcache.Cache
	Shm      *shmcache.Cache
	arena    *shmcache.Arena
	Pipeline *pipeline.Pipeline
	Provider *provider.Adapter
	Bus      provider.Bus
	Metrics  *metrics.Registry

	Passwd   *enum.Engine
	Group    *enum.Engine
	Services *enum.Engine
}

// negCacheSize bounds the negative cache the way the teacher bounds its
// localcache LRUs: a fixed slot count rather than a configurable knob,
// since spec.md names only a TTL, not a size.
const negCacheSize = 8192

func buildDomains(cfg *config.Config) []*domain.Domain {
	out := make([]*domain.Domain, 0, len(cfg.Domains))
	for _, dc := range cfg.Domains {
		d := domain.NewDomain(dc.Name)
		d.SID = dc.SID
		d.IDMin = dc.IDMin
		d.IDMax = dc.IDMax
		d.Enumerate = dc.Enumerate
		d.FQNames = dc.FQNames
		d.CaseSensitive = dc.CaseSensitive
		d.MPG = dc.MPG
		d.OverrideGID = dc.OverrideGID
		d.OverrideHomedir = dc.OverrideHomedir
		d.OverrideShell = dc.OverrideShell
		d.DefaultShell = dc.DefaultShell
		d.FallbackHomedir = dc.FallbackHomedir
		d.FQNameTemplate = dc.FQNameTemplate
		out = append(out, d)
	}
	return out
}

func buildBus(cfg config.ProviderConfig, override provider.Bus) (provider.Bus, error) {
	// override is non-nil only in tests, where the caller already built
	// its own inprocbus.Bus and wants it wired through untouched.
	if override != nil {
		return override, nil
	}
	return newBusFromConfig(cfg)
}

// New wires every collaborator from cfg. db is the persistent-cache
// implementation (spec.md §6.4's contract, out of this core's scope per
// §1) the caller supplies; bus, when non-nil, overrides the
// config-selected transport — used by tests to inject an inprocbus.Bus
// directly instead of round-tripping through config.
func New(cfg *config.Config, db sysdb.PersistentCache, bus provider.Bus) (*Responder, error) {
	bus, err := buildBus(cfg.Provider, bus)
	if err != nil {
		return nil, err
	}

	domains := domain.NewManager(buildDomains(cfg))
	domains.SetGlobalIDRange(cfg.GlobalIDMin, cfg.GlobalIDMax)
	neg := negcache.New(negCacheSize, cfg.NegCacheTTL)

	arena, err := shmcache.NewAnonymousArena(int(cfg.ShmCache.SlotCount), int(cfg.ShmCache.PayloadBytes), 0)
	if err != nil {
		return nil, err
	}
	shm := shmcache.New(arena)

	adapter := provider.NewAdapter(bus)

	global := reply.OverrideConfig{
		GlobalOverrideHomedir: cfg.GlobalOverrideHomedir,
		GlobalOverrideShell:   cfg.GlobalOverrideShell,
	}
	pl := pipeline.New(domains, neg, shm, db, adapter, cfg.RefreshWindow, global, cfg.NameSeparator)

	reg := metrics.NewRegistry()

	r := &Responder{
		cfg:      cfg,
		Domains:  domains,
		Neg:      neg,
		Shm:      shm,
		arena:    arena,
		Pipeline: pl,
		Provider: adapter,
		Bus:      bus,
		Metrics:  reg,
		Passwd:   enum.New(enum.ClassPasswd, domains, db, adapter, cfg.EnumCacheTTL),
		Group:    enum.New(enum.ClassGroup, domains, db, adapter, cfg.EnumCacheTTL),
		Services: enum.New(enum.ClassService, domains, db, adapter, cfg.EnumCacheTTL),
	}
	return r, nil
}

// ConnState is one client connection's set of cursors (spec.md §4.7: each
// connection owns its own setXXent/getXXent/endXXent position,
// independent of every other connection sharing the same Engine
// snapshot).
type ConnState struct {
	Passwd   enum.Cursor
	Group    enum.Cursor
	Services enum.Cursor
}

// NewConnState returns a fresh set of cursors for a newly accepted
// connection.
func NewConnState() *ConnState { return &ConnState{} }

// ListenProviderUpdates subscribes to the provider's update_initgr push
// channel and applies every push to the shared-memory cache's coherence
// rule (spec.md §4.6.4). It returns once the subscription is
// established; delivery continues in the background until ctx is
// cancelled.
func (r *Responder) ListenProviderUpdates(ctx context.Context) error {
	return provider.ListenInitgrUpdates(ctx, r.Bus, func(ctx context.Context, update provider.UpdateInitgr) {
		prior := r.priorGroups(ctx, update)
		r.Pipeline.ApplyInitgroupsUpdate(update, prior)
	})
}

// priorGroups reads the membership sysdb currently holds for update's
// user, so ApplyInitgroupsUpdate can tell which group slots actually
// changed instead of invalidating every gid on every push.
func (r *Responder) priorGroups(ctx context.Context, update provider.UpdateInitgr) []uint32 {
	_, groups, err := r.Pipeline.DB.Initgroups(ctx, update.Domain, update.Name)
	if err != nil {
		log.ZWarn(ctx, "provider push: reading prior groups failed, invalidating broadly", err,
			"domain", update.Domain, "name", update.Name)
		return nil
	}
	out := make([]uint32, 0, len(groups))
	for _, g := range groups {
		if g.Posix {
			out = append(out, g.GID)
		}
	}
	return out
}

// SweepMemcache runs one pass of SweepExpiredMemcache. cmd/responder
// calls this from a robfig/cron/v3 job instead of a raw ticker; it is a
// thin pass-through so the cron job and standalone tests share one call
// site.
func (r *Responder) SweepMemcache(ctx context.Context) {
	r.Pipeline.SweepExpiredMemcache(ctx)
}

// busRunner is satisfied by provider.Bus implementations with their own
// connection loop to drive (kafkabus.Bus); inprocbus.Bus has none.
type busRunner interface {
	Run(ctx context.Context) error
}

// RunBus drives the provider bus's own connection loop, if it has one,
// until ctx is cancelled. It blocks; callers run it in its own
// goroutine.
func (r *Responder) RunBus(ctx context.Context) error {
	runner, ok := r.Bus.(busRunner)
	if !ok {
		<-ctx.Done()
		return nil
	}
	return runner.Run(ctx)
}

// Close releases the responder's own resources (the shared-memory
// arena's mapping). It does not own db or bus, which the caller
// constructed and must close itself.
func (r *Responder) Close() error {
	return r.arena.Close()
}
