package pipeline

import (
	"context"

	"github.com/nssresponder/responderd/internal/provider"
	"github.com/nssresponder/responderd/internal/reply"
	"github.com/nssresponder/responderd/internal/rpcerr"
	"github.com/nssresponder/responderd/internal/sysdb"
)

// GetSIDByName implements spec.md §4.6.3's getsidbyname: sysdb is
// searched for a matching user and a matching group by the same name;
// a user match carries id_type=uid, a group match id_type=gid. A name
// that matches both kinds is handed to the provider to adjudicate,
// same as any other multi-result ambiguity in this pipeline.
func (p *Pipeline) GetSIDByName(ctx context.Context, domainName, name string) (reply.IDType, string, bool, error) {
	ctx = withRequestID(ctx)
	user, group, err := p.searchByNameBothKinds(ctx, domainName, name)
	if err != nil {
		return 0, "", false, err
	}
	if user != nil && group != nil {
		user, group, err = p.adjudicateNameCollision(ctx, domainName, name, user, group)
		if err != nil {
			return 0, "", false, err
		}
	}
	switch {
	case user != nil && group == nil:
		return reply.IDTypeUID, user.SID, true, nil
	case group != nil && user == nil:
		return reply.IDTypeGID, group.SID, true, nil
	default:
		return 0, "", false, nil
	}
}

// GetSIDByID implements getsidbyid: a numeric id is searched as both a
// uid and a gid, since the two namespaces can overlap under mpg.
func (p *Pipeline) GetSIDByID(ctx context.Context, domainName string, id uint32) (reply.IDType, string, bool, error) {
	ctx = withRequestID(ctx)
	user, uerr := p.DB.SearchUserByUID(ctx, domainName, id)
	group, gerr := p.DB.SearchGroupByGID(ctx, domainName, id)
	if uerr != nil && gerr != nil {
		return 0, "", false, rpcerr.Wrap(rpcerr.StatusBackendUnavailable, uerr)
	}
	if user != nil && group != nil {
		var err error
		user, group, err = p.adjudicateIDCollision(ctx, domainName, id, user, group)
		if err != nil {
			return 0, "", false, err
		}
	}
	switch {
	case user != nil && group == nil:
		return reply.IDTypeUID, user.SID, true, nil
	case group != nil && user == nil:
		return reply.IDTypeGID, group.SID, true, nil
	default:
		return 0, "", false, nil
	}
}

// GetNameBySID implements getnamebysid.
func (p *Pipeline) GetNameBySID(ctx context.Context, sid string) (reply.IDType, string, bool, error) {
	ctx = withRequestID(ctx)
	rec, idType, ok, err := p.resolveBySID(ctx, sid)
	if err != nil || !ok {
		return 0, "", false, err
	}
	return idType, rec.Name, true, nil
}

// GetIDBySID implements getidbysid.
func (p *Pipeline) GetIDBySID(ctx context.Context, sid string) (reply.IDType, uint32, bool, error) {
	ctx = withRequestID(ctx)
	rec, idType, ok, err := p.resolveBySID(ctx, sid)
	if err != nil || !ok {
		return 0, 0, false, err
	}
	if idType == reply.IDTypeGID {
		return idType, rec.GID, true, nil
	}
	return idType, rec.UID, true, nil
}

func (p *Pipeline) resolveBySID(ctx context.Context, sid string) (*sysdb.Record, reply.IDType, bool, error) {
	rec, err := p.DB.SearchObjectBySID(ctx, sid)
	if err != nil {
		return nil, 0, false, rpcerr.Wrap(rpcerr.StatusBackendUnavailable, err)
	}
	if rec == nil {
		return nil, 0, false, nil
	}
	return rec, p.classifyIDType(rec), true, nil
}

// classifyIDType implements §4.6.3's "SYSDB_USER_CLASS present → uid;
// else gid; under mpg, a user classifies as both".
func (p *Pipeline) classifyIDType(rec *sysdb.Record) reply.IDType {
	if rec.Class != sysdb.ClassUser {
		return reply.IDTypeGID
	}
	if dom, ok := p.Domains.ByName(rec.Domain); ok && dom.MPG {
		return reply.IDTypeBoth
	}
	return reply.IDTypeUID
}

func (p *Pipeline) searchByNameBothKinds(ctx context.Context, domainName, name string) (*sysdb.Record, *sysdb.Record, error) {
	user, uerr := p.DB.SearchUserByName(ctx, domainName, name)
	group, gerr := p.DB.SearchGroupByName(ctx, domainName, name)
	if uerr != nil && gerr != nil {
		return nil, nil, rpcerr.Wrap(rpcerr.StatusBackendUnavailable, uerr)
	}
	return user, group, nil
}

func (p *Pipeline) adjudicateNameCollision(ctx context.Context, domainName, name string, user, group *sysdb.Record) (*sysdb.Record, *sysdb.Record, error) {
	if _, err := p.Provider.Refresh(ctx, provider.AccountRequest{Domain: domainName, Kind: provider.KindUserAndGroup, Key: name}); err != nil {
		return nil, nil, err
	}
	return p.searchByNameBothKinds(ctx, domainName, name)
}

func (p *Pipeline) adjudicateIDCollision(ctx context.Context, domainName string, id uint32, user, group *sysdb.Record) (*sysdb.Record, *sysdb.Record, error) {
	if _, err := p.Provider.Refresh(ctx, provider.AccountRequest{Domain: domainName, Kind: provider.KindUserAndGroup, Key: uidKey(id)}); err != nil {
		return nil, nil, err
	}
	u, uerr := p.DB.SearchUserByUID(ctx, domainName, id)
	g, gerr := p.DB.SearchGroupByGID(ctx, domainName, id)
	if uerr != nil && gerr != nil {
		return nil, nil, rpcerr.Wrap(rpcerr.StatusBackendUnavailable, uerr)
	}
	return u, g, nil
}
