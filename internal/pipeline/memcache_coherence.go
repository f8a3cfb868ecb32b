package pipeline

import (
	"context"
	"time"

	"github.com/openimsdk/tools/log"

	"github.com/nssresponder/responderd/internal/provider"
)

// SweepExpiredMemcache implements spec.md §4.6.4's periodic
// update_pw_memcache/update_gr_memcache: walk every domain's persistent
// cache and invalidate any shared-memory slot whose backing record has
// already expired. cmd/responder drives this off a robfig/cron/v3
// schedule, the same way the teacher schedules its periodic jobs.
func (p *Pipeline) SweepExpiredMemcache(ctx context.Context) {
	now := time.Now()
	for _, dom := range p.Domains.Domains() {
		users, err := p.DB.EnumPwEnt(ctx, dom.Name)
		if err != nil {
			log.ZWarn(ctx, "memcache sweep: enum users failed", err, "domain", dom.Name)
		}
		for _, u := range users {
			if !u.CacheExpire.IsZero() && !now.Before(u.CacheExpire) {
				p.Shm.InvalidateUID(u.UID)
			}
		}

		groups, err := p.DB.EnumGrEnt(ctx, dom.Name)
		if err != nil {
			log.ZWarn(ctx, "memcache sweep: enum groups failed", err, "domain", dom.Name)
		}
		for _, g := range groups {
			if !g.CacheExpire.IsZero() && !now.Before(g.CacheExpire) {
				p.Shm.InvalidateGID(g.GID)
			}
		}
	}
}

// ApplyInitgroupsUpdate implements update_initgr_memcache: a provider
// push reporting a user's refreshed group set. priorGroups is the
// membership the caller observed before this push (e.g. the set decoded
// from the shared-memory slot, or read back from sysdb); if it differs
// from update.Groups in either direction, the user's passwd slot and
// every old/new GID's group slot are invalidated (spec.md §4.6.4).
func (p *Pipeline) ApplyInitgroupsUpdate(update provider.UpdateInitgr, priorGroups []uint32) {
	if sameGIDSet(priorGroups, update.Groups) {
		return
	}
	p.Shm.InvalidateName(update.Name)
	for _, g := range priorGroups {
		p.Shm.InvalidateGID(g)
	}
	for _, g := range update.Groups {
		p.Shm.InvalidateGID(g)
	}
}

func sameGIDSet(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[uint32]int, len(a))
	for _, v := range a {
		counts[v]++
	}
	for _, v := range b {
		counts[v]--
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}
