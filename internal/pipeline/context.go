// Package pipeline implements Component F (spec.md §4.6): the common
// key-to-entry lookup shared by getpwnam/getpwuid/getgrnam/getgrgid,
// its initgroups and SID-path specializations, and the shared-memory
// coherence sweeps that keep Component C in sync with the persistent
// cache.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/openimsdk/tools/mcontext"

	"github.com/nssresponder/responderd/internal/domain"
	"github.com/nssresponder/responderd/internal/negcache"
	"github.com/nssresponder/responderd/internal/provider"
	"github.com/nssresponder/responderd/internal/reply"
	"github.com/nssresponder/responderd/internal/shmcache"
	"github.com/nssresponder/responderd/internal/sysdb"
)

// State is one stage of spec.md §9's per-request state machine
// (Parsing → RangeChecking → CacheReading → RefreshPending → Replying →
// Done). The pipeline's actual control flow is Go goroutines and
// singleflight-coalesced calls rather than a hand-rolled event loop, so
// State only names the stages (with a String form for logs); the
// pipeline neither records nor dispatches on it.
type State int

const (
	StateParsing State = iota
	StateRangeChecking
	StateCacheReading
	StateRefreshPending
	StateReplying
	StateDone
)

func (s State) String() string {
	switch s {
	case StateParsing:
		return "parsing"
	case StateRangeChecking:
		return "range_checking"
	case StateCacheReading:
		return "cache_reading"
	case StateRefreshPending:
		return "refresh_pending"
	case StateReplying:
		return "replying"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// refreshTimeout bounds a one-way (fire-and-forget) provider refresh
// fired for a stale-but-usable record (spec.md §4.6.1 step 5); the
// request it was fired for has already replied by the time this fires,
// so it gets its own short-lived context rather than the caller's.
const refreshTimeout = 30 * time.Second

// Pipeline wires the collaborators every lookup in this package drives:
// the domain list, both caches, the persistent store, and the provider
// adapter. One Pipeline is owned by the responder context and shared
// across all connections (spec.md §3's "Ownership & lifecycle").
type Pipeline struct {
	Domains        *domain.Manager
	Neg            *negcache.Cache
	Shm            *shmcache.Cache
	DB             sysdb.PersistentCache
	Provider       *provider.Adapter
	RefreshWindow  time.Duration
	GlobalOverride reply.OverrideConfig

	// NameSeparator joins local and domain name in name[SEP]domain
	// parsing and in a domain's default FQ-name expansion when it has
	// no FQNameTemplate of its own (sss_idmap_ctx_set_separator).
	// Defaults to "@" when left zero.
	NameSeparator string
}

// withRequestID stamps ctx with a fresh correlation id for a single
// lookup, the way push_handler.go's mcontext.SetOperationID(ctx, id)
// stamps a one-way push's context — here the id comes from
// github.com/google/uuid rather than a timestamp, since there's no
// monotonic counter to derive one from at this layer. Every log.Z* call
// downstream in this package picks it up automatically through ctx.
func withRequestID(ctx context.Context) context.Context {
	return mcontext.SetOperationID(ctx, uuid.NewString())
}

// New builds a Pipeline over its collaborators.
func New(domains *domain.Manager, neg *negcache.Cache, shm *shmcache.Cache, db sysdb.PersistentCache, prov *provider.Adapter, refreshWindow time.Duration, globalOverride reply.OverrideConfig, nameSeparator string) *Pipeline {
	if nameSeparator == "" {
		nameSeparator = "@"
	}
	return &Pipeline{
		Domains:        domains,
		Neg:            neg,
		Shm:            shm,
		DB:             db,
		Provider:       prov,
		RefreshWindow:  refreshWindow,
		GlobalOverride: globalOverride,
		NameSeparator:  nameSeparator,
	}
}
