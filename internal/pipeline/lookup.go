package pipeline

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"github.com/openimsdk/tools/log"

	"github.com/nssresponder/responderd/internal/domain"
	"github.com/nssresponder/responderd/internal/negcache"
	"github.com/nssresponder/responderd/internal/provider"
	"github.com/nssresponder/responderd/internal/reply"
	"github.com/nssresponder/responderd/internal/rpcerr"
	"github.com/nssresponder/responderd/internal/shmcache"
	"github.com/nssresponder/responderd/internal/sysdb"
)

// splitDomain implements spec.md §4.6.1 step 1's "name[SEP domain]" split,
// SEP being the pipeline's configured NameSeparator ("@" unless
// overridden).
func (p *Pipeline) splitDomain(name string) (local, domainPart string, hasDomain bool) {
	if i := strings.LastIndex(name, p.NameSeparator); i >= 0 {
		return name[:i], name[i+len(p.NameSeparator):], true
	}
	return name, "", false
}

// resolveNameIterator picks the domain walk a name-based lookup enters:
// a pinned single domain when the name was fully qualified (requesting
// one domains_refresh and re-resolving once if the suffix isn't yet
// known), or the unqualified multi-domain walk otherwise.
func (p *Pipeline) resolveNameIterator(ctx context.Context, domainPart string, hasDomain bool) *domain.Iterator {
	if !hasDomain {
		return domain.NewIterator(p.Domains.Domains(), domain.ModeNameMultiDomain, nil)
	}
	d, ok := p.Domains.ByName(domainPart)
	if !ok {
		if err := p.Provider.RefreshDomains(ctx, domainPart); err != nil {
			log.ZWarn(ctx, "domains_refresh failed resolving unknown domain suffix", err, "domain", domainPart)
		}
		d, ok = p.Domains.ByName(domainPart)
	}
	if !ok {
		return domain.NewIterator(nil, domain.ModeNameFQ, nil)
	}
	return domain.NewIterator(p.Domains.Domains(), domain.ModeNameFQ, d)
}

// recordSpec parametrizes the common pipeline (spec.md §4.6.1) over the
// four key-to-entry lookups: which negative-cache kind/key guards it,
// which provider kind refreshes it, how to query the persistent cache
// per domain, and whether it's an id-based lookup subject to range
// checking.
type recordSpec struct {
	negKind      negcache.Kind
	negValue     string
	providerKind provider.RequestKind
	providerKey  string
	isID         bool
	idValue      uint32
	query        func(ctx context.Context, db sysdb.PersistentCache, domainName string) ([]*sysdb.Record, error)
}

// walkRecords drives spec.md §4.6.1 steps 2-6 across it, returning the
// single matching record and the domain it came from, or ok=false once
// the walk is exhausted without a hit. forceProvider is the
// SSS_NSS_EX_FLAG_FORCE request bit (nsssrv_cmd.c's extended request
// variants, recovered in §12): it skips the negative-cache short
// circuit and treats every persistent-cache hit as if it had already
// expired, so the provider is always consulted before a reply goes out.
func (p *Pipeline) walkRecords(ctx context.Context, it *domain.Iterator, spec recordSpec, forceProvider bool) (rec *sysdb.Record, d *domain.Domain, ok bool, err error) {
	negKey := negcache.Key{Kind: spec.negKind, Value: spec.negValue}
	if !forceProvider && p.Neg.Check(negKey) {
		return nil, nil, false, nil
	}

	for {
		dom, more := it.Next()
		if !more {
			return nil, nil, false, nil
		}
		if spec.isID && !dom.InRange(spec.idValue) {
			continue
		}

		records, qerr := spec.query(ctx, p.DB, dom.Name)
		if qerr != nil {
			return nil, nil, false, rpcerr.Wrap(rpcerr.StatusBackendUnavailable, qerr)
		}

		switch len(records) {
		case 0:
			if !dom.ProviderCapable() {
				if !forceProvider {
					p.Neg.Set(negKey, false)
				}
				continue
			}
			refreshed, rerr := p.refresh(ctx, dom, spec)
			if rerr != nil {
				continue
			}
			if refreshed == nil {
				continue
			}
			return refreshed, dom, true, nil
		case 1:
			freshness := records[0].Classify(time.Now(), p.RefreshWindow, false)
			if forceProvider {
				freshness = sysdb.FreshnessStale
			}
			switch freshness {
			case sysdb.FreshnessFresh:
				return records[0], dom, true, nil
			case sysdb.FreshnessStaleButUsable:
				p.fireAndForget(dom, spec)
				return records[0], dom, true, nil
			default: // stale
				refreshed, rerr := p.refresh(ctx, dom, spec)
				if rerr != nil {
					return records[0], dom, true, nil // provider failure, serve stale fallback
				}
				if refreshed == nil {
					continue // provider failure/empty with nothing usable: advance
				}
				return refreshed, dom, true, nil
			}
		default:
			// >1 result: persistent-cache corruption signal, treat as
			// not-found in this domain and keep walking.
			log.ZWarn(ctx, "persistent cache returned multiple rows for one key, treating as not-found", nil,
				"domain", dom.Name, "kind", spec.providerKind, "key", spec.providerKey, "rows", len(records))
			continue
		}
	}
}

// refresh issues a coalesced provider refresh and, on success, re-enters
// step 4 by re-querying the domain once. A provider failure is returned
// as the error with a nil record. A nil, nil return means the provider
// succeeded but the re-query found no single record to serve.
func (p *Pipeline) refresh(ctx context.Context, dom *domain.Domain, spec recordSpec) (*sysdb.Record, error) {
	_, err := p.Provider.Refresh(ctx, provider.AccountRequest{Domain: dom.Name, Kind: spec.providerKind, Key: spec.providerKey})
	if err != nil {
		log.ZWarn(ctx, "provider refresh failed", err, "domain", dom.Name, "kind", spec.providerKind, "key", spec.providerKey)
		return nil, err
	}
	records, qerr := spec.query(ctx, p.DB, dom.Name)
	if qerr != nil || len(records) != 1 {
		return nil, qerr
	}
	return records[0], nil
}

// fireAndForget issues a one-way refresh for a stale-but-usable record;
// its result is discarded by design (spec.md §4.6.1 step 5), so it runs
// against its own short-lived context rather than the caller's, which
// may already be gone by the time this completes.
func (p *Pipeline) fireAndForget(dom *domain.Domain, spec recordSpec) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if _, err := p.refresh(ctx, dom, spec); err != nil {
			log.ZWarn(ctx, "one-way stale-but-usable refresh failed", err, "domain", dom.Name)
		}
	}()
}

// renderPasswd implements spec.md §4.6.1 step 7 for a passwd entry:
// fully-qualify the name, apply the domain's override policy, and
// install the rendered entry into the shared-memory cache.
func (p *Pipeline) renderPasswd(rec *sysdb.Record, dom *domain.Domain) reply.PasswdEntry {
	var e reply.PasswdEntry
	copier.Copy(&e, rec)
	if fq, ok := dom.FormatFQName(rec.Name, p.NameSeparator); ok {
		e.FQName = fq
	} else {
		e.FQName = rec.Name
	}
	e = reply.ApplyOverrides(e, dom.OverridePolicy(p.GlobalOverride))
	p.storePasswd(e)
	return e
}

func (p *Pipeline) storePasswd(e reply.PasswdEntry) {
	if err := p.Shm.StorePasswd(shmcache.PasswdPayload{
		FQName: e.FQName, UID: e.UID, GID: e.GID, GECOS: e.GECOS, Homedir: e.Homedir, Shell: e.Shell,
	}); err != nil {
		log.ZWarn(context.Background(), "shmcache store failed for passwd entry", err, "fqname", e.FQName)
	}
}

// renderGroup mirrors renderPasswd for a group entry.
func (p *Pipeline) renderGroup(rec *sysdb.Record, dom *domain.Domain) reply.GroupEntry {
	var e reply.GroupEntry
	copier.Copy(&e, rec)
	if fq, ok := dom.FormatFQName(rec.Name, p.NameSeparator); ok {
		e.FQName = fq
	} else {
		e.FQName = rec.Name
	}
	if err := p.Shm.StoreGroup(shmcache.GroupPayload{FQName: e.FQName, GID: e.GID, Members: e.Members}); err != nil {
		log.ZWarn(context.Background(), "shmcache store failed for group entry", err, "fqname", e.FQName)
	}
	return e
}

// GetPwNam implements spec.md §4.6's getpwnam over the common pipeline.
func (p *Pipeline) GetPwNam(ctx context.Context, name string) (reply.PasswdEntry, bool, error) {
	return p.GetPwNamEx(ctx, name, false)
}

// GetPwNamEx is GetPwNam with the SSS_NSS_EX_FLAG_FORCE request bit
// exposed: forceProvider true always consults the provider before
// replying, bypassing a cached fresh record (recovered in §12).
func (p *Pipeline) GetPwNamEx(ctx context.Context, name string, forceProvider bool) (reply.PasswdEntry, bool, error) {
	ctx = withRequestID(ctx)
	local, domainPart, hasDomain := p.splitDomain(name)
	it := p.resolveNameIterator(ctx, domainPart, hasDomain)
	spec := recordSpec{
		negKind:      negcache.KindUserName,
		negValue:     local,
		providerKind: provider.KindUser,
		providerKey:  local,
		query: func(ctx context.Context, db sysdb.PersistentCache, domainName string) ([]*sysdb.Record, error) {
			return db.GetPwNam(ctx, domainName, local)
		},
	}
	rec, dom, ok, err := p.walkRecords(ctx, it, spec, forceProvider)
	if err != nil || !ok {
		return reply.PasswdEntry{}, false, err
	}
	return p.renderPasswd(rec, dom), true, nil
}

// GetPwUID implements getpwuid.
func (p *Pipeline) GetPwUID(ctx context.Context, uid uint32) (reply.PasswdEntry, bool, error) {
	return p.GetPwUIDEx(ctx, uid, false)
}

// GetPwUIDEx is GetPwUID with the force-provider bit exposed.
func (p *Pipeline) GetPwUIDEx(ctx context.Context, uid uint32, forceProvider bool) (reply.PasswdEntry, bool, error) {
	ctx = withRequestID(ctx)
	it := domain.NewIterator(p.Domains.Domains(), domain.ModeID, nil)
	spec := recordSpec{
		negKind:      negcache.KindUID,
		negValue:     uidKey(uid),
		providerKind: provider.KindUser,
		providerKey:  uidKey(uid),
		isID:         true,
		idValue:      uid,
		query: func(ctx context.Context, db sysdb.PersistentCache, domainName string) ([]*sysdb.Record, error) {
			return db.GetPwUID(ctx, domainName, uid)
		},
	}
	rec, dom, ok, err := p.walkRecords(ctx, it, spec, forceProvider)
	if err != nil || !ok {
		return reply.PasswdEntry{}, false, err
	}
	return p.renderPasswd(rec, dom), true, nil
}

// GetGrNam implements getgrnam.
func (p *Pipeline) GetGrNam(ctx context.Context, name string) (reply.GroupEntry, bool, error) {
	return p.GetGrNamEx(ctx, name, false)
}

// GetGrNamEx is GetGrNam with the force-provider bit exposed.
func (p *Pipeline) GetGrNamEx(ctx context.Context, name string, forceProvider bool) (reply.GroupEntry, bool, error) {
	ctx = withRequestID(ctx)
	local, domainPart, hasDomain := p.splitDomain(name)
	it := p.resolveNameIterator(ctx, domainPart, hasDomain)
	spec := recordSpec{
		negKind:      negcache.KindGroupName,
		negValue:     local,
		providerKind: provider.KindGroup,
		providerKey:  local,
		query: func(ctx context.Context, db sysdb.PersistentCache, domainName string) ([]*sysdb.Record, error) {
			return db.GetGrNam(ctx, domainName, local)
		},
	}
	rec, dom, ok, err := p.walkRecords(ctx, it, spec, forceProvider)
	if err != nil || !ok {
		return reply.GroupEntry{}, false, err
	}
	return p.renderGroup(rec, dom), true, nil
}

// GetGrGID implements getgrgid.
func (p *Pipeline) GetGrGID(ctx context.Context, gid uint32) (reply.GroupEntry, bool, error) {
	return p.GetGrGIDEx(ctx, gid, false)
}

// GetGrGIDEx is GetGrGID with the force-provider bit exposed.
func (p *Pipeline) GetGrGIDEx(ctx context.Context, gid uint32, forceProvider bool) (reply.GroupEntry, bool, error) {
	ctx = withRequestID(ctx)
	it := domain.NewIterator(p.Domains.Domains(), domain.ModeID, nil)
	spec := recordSpec{
		negKind:      negcache.KindGID,
		negValue:     uidKey(gid),
		providerKind: provider.KindGroup,
		providerKey:  uidKey(gid),
		isID:         true,
		idValue:      gid,
		query: func(ctx context.Context, db sysdb.PersistentCache, domainName string) ([]*sysdb.Record, error) {
			return db.GetGrGID(ctx, domainName, gid)
		},
	}
	rec, dom, ok, err := p.walkRecords(ctx, it, spec, forceProvider)
	if err != nil || !ok {
		return reply.GroupEntry{}, false, err
	}
	return p.renderGroup(rec, dom), true, nil
}

func uidKey(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}
