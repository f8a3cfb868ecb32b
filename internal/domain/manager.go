package domain

import (
	"context"
	"encoding/json"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/openimsdk/tools/log"
)

// Manager owns the responder's flat domain list and the one background
// watch that keeps it in sync with domains the provider has announced
// since startup (spec.md §4.6.1 step 1's "request a domain-list refresh
// from the provider; domains may have been discovered since"). Grounded
// on the teacher's etcd-backed discovery (pkg/common/startrpc/start.go
// wires github.com/openimsdk/tools/discovery/etcd over
// go.etcd.io/etcd/client/v3); the watch here is driven directly against
// clientv3 rather than through that wrapper package, since the
// wrapper's registration model is service-endpoint shaped and what this
// daemon needs is a plain key-prefix watch.
type Manager struct {
	mu                       sync.RWMutex
	domains                  []*Domain
	byName                   map[string]*Domain
	bySID                    map[string]*Domain
	globalIDMin, globalIDMax uint32
}

// NewManager builds a Manager seeded with the statically configured
// domains (spec.md §3's flat domain list).
func NewManager(domains []*Domain) *Manager {
	m := &Manager{}
	m.reindex(domains)
	return m
}

func (m *Manager) reindex(domains []*Domain) {
	byName := make(map[string]*Domain, len(domains))
	bySID := make(map[string]*Domain, len(domains))
	for _, d := range domains {
		byName[d.Name] = d
		if d.SID != "" {
			bySID[d.SID] = d
		}
		for _, sub := range d.Subdomains {
			byName[sub.Name] = sub
			if sub.SID != "" {
				bySID[sub.SID] = sub
			}
		}
	}
	m.mu.Lock()
	m.domains = domains
	m.byName = byName
	m.bySID = bySID
	m.mu.Unlock()
}

// Domains returns the current primary domain list.
func (m *Manager) Domains() []*Domain {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Domain, len(m.domains))
	copy(out, m.domains)
	return out
}

// ByName looks up a domain (primary or subdomain) by exact name.
func (m *Manager) ByName(name string) (*Domain, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.byName[name]
	return d, ok
}

// BySIDPrefix looks up a domain by its SID prefix.
func (m *Manager) BySIDPrefix(sidPrefix string) (*Domain, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.bySID[sidPrefix]
	return d, ok
}

// SetGlobalIDRange sets the process-wide default POSIX id window used
// by Domain.EffectiveRange for any domain (existing or subsequently
// discovered) that configures neither IDMin nor IDMax.
func (m *Manager) SetGlobalIDRange(min, max uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalIDMin, m.globalIDMax = min, max
	for _, d := range m.domains {
		m.applyGlobalRange(d)
		for _, sub := range d.Subdomains {
			m.applyGlobalRange(sub)
		}
	}
}

func (m *Manager) applyGlobalRange(d *Domain) {
	d.globalIDMin, d.globalIDMax = m.globalIDMin, m.globalIDMax
}

// subdomainAnnouncement is the payload the provider writes under the
// watched etcd prefix when it discovers a new child domain.
type subdomainAnnouncement struct {
	ParentName      string  `json:"parent_name"`
	Name            string  `json:"name"`
	SID             string  `json:"sid"`
	IDMin           uint32  `json:"id_min"`
	IDMax           uint32  `json:"id_max"`
	FQNames         bool    `json:"fqnames"`
	OverrideGID     *uint32 `json:"override_gid,omitempty"`
	OverrideHomedir string  `json:"override_homedir,omitempty"`
	OverrideShell   string  `json:"override_shell,omitempty"`
}

// WatchSubdomains runs until ctx is cancelled, applying subdomain
// announcements published under prefix to the in-memory domain list.
// This is the "domains_refresh" side of spec.md §4.6.1 step 1: once a
// watch event lands, newly discovered subdomains become visible to the
// very next parse-and-iterate pass without a responder restart.
func (m *Manager) WatchSubdomains(ctx context.Context, cli *clientv3.Client, prefix string) {
	watch := cli.Watch(ctx, prefix, clientv3.WithPrefix())
	for {
		select {
		case <-ctx.Done():
			return
		case resp, ok := <-watch:
			if !ok {
				return
			}
			if err := resp.Err(); err != nil {
				log.ZWarn(ctx, "domain watch error", err)
				continue
			}
			for _, ev := range resp.Events {
				if ev.Type != clientv3.EventTypePut {
					continue
				}
				m.applyAnnouncement(ctx, ev.Kv.Value)
			}
		}
	}
}

func (m *Manager) applyAnnouncement(ctx context.Context, raw []byte) {
	var ann subdomainAnnouncement
	if err := json.Unmarshal(raw, &ann); err != nil {
		log.ZWarn(ctx, "discard malformed subdomain announcement", err)
		return
	}
	parent, ok := m.ByName(ann.ParentName)
	if !ok {
		log.ZWarn(ctx, "subdomain announced for unknown parent", nil, "parent", ann.ParentName)
		return
	}
	sub := &Domain{
		Name:            ann.Name,
		SID:             ann.SID,
		IDMin:           ann.IDMin,
		IDMax:           ann.IDMax,
		FQNames:         ann.FQNames,
		OverrideGID:     ann.OverrideGID,
		OverrideHomedir: ann.OverrideHomedir,
		OverrideShell:   ann.OverrideShell,
	}
	sub.SetProviderCapable(true)

	m.mu.Lock()
	m.applyGlobalRange(sub)
	replaced := false
	for i, existing := range parent.Subdomains {
		if existing.Name == sub.Name {
			parent.Subdomains[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		parent.Subdomains = append(parent.Subdomains, sub)
	}
	m.byName[sub.Name] = sub
	if sub.SID != "" {
		m.bySID[sub.SID] = sub
	}
	m.mu.Unlock()

	log.ZDebug(ctx, "subdomain discovered", "parent", ann.ParentName, "name", ann.Name)
}
