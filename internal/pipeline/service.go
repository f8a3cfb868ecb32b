package pipeline

import (
	"context"

	"github.com/jinzhu/copier"

	"github.com/nssresponder/responderd/internal/domain"
	"github.com/nssresponder/responderd/internal/negcache"
	"github.com/nssresponder/responderd/internal/provider"
	"github.com/nssresponder/responderd/internal/reply"
	"github.com/nssresponder/responderd/internal/sysdb"
)

// renderService implements step 7 for a service entry: no FQ-name
// rendering or override policy applies to services (recovered in §12),
// so this is a straight copy into the wire shape.
func (p *Pipeline) renderService(rec *sysdb.Record) reply.ServiceEntry {
	var e reply.ServiceEntry
	copier.Copy(&e, rec)
	return e
}

// GetServByName implements NSS_GETSERVBYNAME over the common pipeline
// (recovered in §12). proto narrows the match when non-empty.
func (p *Pipeline) GetServByName(ctx context.Context, name, proto string) (reply.ServiceEntry, bool, error) {
	ctx = withRequestID(ctx)
	it := domain.NewIterator(p.Domains.Domains(), domain.ModeNameMultiDomain, nil)
	spec := recordSpec{
		negKind:      negcache.KindServiceName,
		negValue:     servKey(name, proto),
		providerKind: provider.KindService,
		providerKey:  servKey(name, proto),
		query: func(ctx context.Context, db sysdb.PersistentCache, domainName string) ([]*sysdb.Record, error) {
			return db.GetServByName(ctx, domainName, name, proto)
		},
	}
	rec, _, ok, err := p.walkRecords(ctx, it, spec, false)
	if err != nil || !ok {
		return reply.ServiceEntry{}, false, err
	}
	return p.renderService(rec), true, nil
}

// GetServByPort implements NSS_GETSERVBYPORT.
func (p *Pipeline) GetServByPort(ctx context.Context, port uint16, proto string) (reply.ServiceEntry, bool, error) {
	ctx = withRequestID(ctx)
	it := domain.NewIterator(p.Domains.Domains(), domain.ModeNameMultiDomain, nil)
	spec := recordSpec{
		negKind:      negcache.KindServicePort,
		negValue:     servPortKey(port, proto),
		providerKind: provider.KindService,
		providerKey:  servPortKey(port, proto),
		query: func(ctx context.Context, db sysdb.PersistentCache, domainName string) ([]*sysdb.Record, error) {
			return db.GetServByPort(ctx, domainName, port, proto)
		},
	}
	rec, _, ok, err := p.walkRecords(ctx, it, spec, false)
	if err != nil || !ok {
		return reply.ServiceEntry{}, false, err
	}
	return p.renderService(rec), true, nil
}

// RenderServiceEnum adapts an enum.Engine record (built against
// ClassService, spec.md §4.7's third snapshot kind, recovered in §12)
// into its wire shape. SETSERVENT/GETSERVENT/ENDSERVENT drive the engine
// directly, the same way passwd/group enumeration does; this is the one
// rendering step they still need from the pipeline.
func (p *Pipeline) RenderServiceEnum(rec *sysdb.Record) reply.ServiceEntry {
	return p.renderService(rec)
}

func servKey(name, proto string) string {
	if proto == "" {
		return name
	}
	return name + "/" + proto
}

func servPortKey(port uint16, proto string) string {
	return uidKey(uint32(port)) + "/" + proto
}
