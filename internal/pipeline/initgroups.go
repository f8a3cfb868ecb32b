package pipeline

import (
	"context"
	"time"

	"github.com/openimsdk/tools/log"

	"github.com/nssresponder/responderd/internal/domain"
	"github.com/nssresponder/responderd/internal/negcache"
	"github.com/nssresponder/responderd/internal/provider"
	"github.com/nssresponder/responderd/internal/rpcerr"
	"github.com/nssresponder/responderd/internal/sysdb"
)

// ErrCorruptGroupRecord is returned when a group membership entry
// carries gid=0 with no posix attribute — spec.md §4.6.2's corruption
// signal. It carries StatusFatal, which rpcerr.IsConnectionFatal treats
// as closing the connection.
var ErrCorruptGroupRecord = rpcerr.New(rpcerr.StatusFatal, "initgroups: member has gid=0 with no posix attribute")

// Initgroups implements spec.md §4.6.2 on top of the common pipeline's
// parse/preflight/freshness/refresh machinery (§4.6.1): the user's own
// record drives freshness and refresh, and its persisted group list is
// rendered into the GID slice initgroups(3) expects.
func (p *Pipeline) Initgroups(ctx context.Context, name string) ([]uint32, bool, error) {
	ctx = withRequestID(ctx)
	local, domainPart, hasDomain := p.splitDomain(name)
	it := p.resolveNameIterator(ctx, domainPart, hasDomain)

	negKey := negcache.Key{Kind: negcache.KindUserName, Value: local}
	if p.Neg.Check(negKey) {
		return nil, false, nil
	}

	for {
		dom, more := it.Next()
		if !more {
			return nil, false, nil
		}

		user, groups, err := p.DB.Initgroups(ctx, dom.Name, local)
		if err != nil {
			return nil, false, rpcerr.Wrap(rpcerr.StatusBackendUnavailable, err)
		}

		if user == nil {
			if !dom.ProviderCapable() {
				p.Neg.Set(negKey, false)
				continue
			}
			user, groups, err = p.refreshInitgroups(ctx, dom, local, nil, nil)
			if err != nil || user == nil {
				continue
			}
			return renderInitgroups(user, groups)
		}

		switch user.Classify(time.Now(), p.RefreshWindow, true) {
		case sysdb.FreshnessFresh:
			return renderInitgroups(user, groups)
		case sysdb.FreshnessStaleButUsable:
			p.fireAndForgetInitgroups(dom, local, user, groups)
			return renderInitgroups(user, groups)
		default: // stale
			newUser, newGroups, rerr := p.refreshInitgroups(ctx, dom, local, user, groups)
			if rerr != nil {
				return renderInitgroups(user, groups) // provider failure: serve stale fallback
			}
			if newUser == nil {
				continue
			}
			return renderInitgroups(newUser, newGroups)
		}
	}
}

func (p *Pipeline) refreshInitgroups(ctx context.Context, dom *domain.Domain, local string, fallbackUser *sysdb.Record, fallbackGroups []*sysdb.Record) (*sysdb.Record, []*sysdb.Record, error) {
	_, err := p.Provider.Refresh(ctx, provider.AccountRequest{Domain: dom.Name, Kind: provider.KindInitgroups, Key: local})
	if err != nil {
		log.ZWarn(ctx, "initgroups provider refresh failed", err, "domain", dom.Name, "name", local)
		return fallbackUser, fallbackGroups, err
	}
	return p.DB.Initgroups(ctx, dom.Name, local)
}

func (p *Pipeline) fireAndForgetInitgroups(dom *domain.Domain, local string, user *sysdb.Record, groups []*sysdb.Record) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if _, _, err := p.refreshInitgroups(ctx, dom, local, user, groups); err != nil {
			log.ZWarn(ctx, "one-way initgroups refresh failed", err, "domain", dom.Name, "name", local)
		}
	}()
}

// renderInitgroups implements spec.md §4.6.2's rendering rule: omit the
// leading user record, skip non-POSIX members, append a non-zero
// original primary GID that is distinct from the user's current GID and
// isn't already present, and treat a non-POSIX member with gid=0 as
// corruption.
func renderInitgroups(user *sysdb.Record, groups []*sysdb.Record) ([]uint32, bool, error) {
	gids := make([]uint32, 0, len(groups)+1)
	seen := make(map[uint32]bool, len(groups)+1)
	for _, g := range groups {
		if !g.Posix {
			if g.GID == 0 {
				return nil, false, ErrCorruptGroupRecord
			}
			continue
		}
		gids = append(gids, g.GID)
		seen[g.GID] = true
	}
	if user.OriginalPrimaryGID != 0 && user.OriginalPrimaryGID != user.GID && !seen[user.OriginalPrimaryGID] {
		gids = append(gids, user.OriginalPrimaryGID)
	}
	return gids, true, nil
}
