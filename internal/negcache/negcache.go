// Package negcache implements the per-process negative cache (spec.md
// §4.2): a short-TTL record of "known-missing" names and IDs, keyed by
// kind. It is read-through in neither direction — callers Set() it
// themselves after a confirmed miss and Check() it before paying for a
// persistent-cache read.
//
// Adapted from pkg/localcache/lru/lru_expiration.go: the same
// hashicorp/golang-lru/v2/expirable backing, but the value collapses to
// "present" (a negative cache never fetches on miss) and TTL is a single
// neg_ttl rather than a success/failure split.
package negcache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Kind identifies what a negative-cache key is negating.
type Kind int

const (
	KindUserName Kind = iota
	KindGroupName
	KindUID
	KindGID
	KindSID
	KindServiceName
	KindServicePort
)

// Key names one negative fact: "this (kind, domain, value) is absent".
// Domain is empty for ID/SID keys, which are not domain-scoped until
// resolved.
type Key struct {
	Kind   Kind
	Domain string
	Value  string
}

type entry struct {
	permanent bool
	setAt     time.Time
}

// Cache is the responder-wide negative cache. One instance is owned by
// the responder context (spec.md §3's "Ownership & lifecycle").
type Cache struct {
	ttl time.Duration
	lru *expirable.LRU[Key, entry]
}

// New builds a negative cache bounded to size entries, each valid for
// ttl unless marked permanent via Set.
func New(size int, ttl time.Duration) *Cache {
	return &Cache{
		ttl: ttl,
		lru: expirable.NewLRU[Key, entry](size, nil, 0),
	}
}

// Check reports a hit only if the key was Set and, unless permanent, the
// TTL has not elapsed. The backing LRU is built without a library-level
// TTL (so it never drops permanent entries on its own); the age check
// below is what enforces neg_ttl for every non-permanent entry.
func (c *Cache) Check(key Key) bool {
	e, ok := c.lru.Get(key)
	if !ok {
		return false
	}
	if e.permanent {
		return true
	}
	return time.Since(e.setAt) < c.ttl
}

// Set inserts or overwrites a negative fact. Permanent entries bypass
// the TTL check in Check (but are still subject to LRU eviction under
// memory pressure, per §9's "periodic sweep bounds memory").
func (c *Cache) Set(key Key, permanent bool) {
	c.lru.Add(key, entry{permanent: permanent, setAt: time.Now()})
}

// Clear removes a negative-cache entry outright. The responder never
// needs to call this on a positive lookup (spec.md §4.2: negative
// entries expire on their own), but it exists for the explicit
// permanent-entry retraction case (e.g. a domain is reconfigured).
func (c *Cache) Clear(key Key) {
	c.lru.Remove(key)
}

// Len reports the current entry count, for metrics.
func (c *Cache) Len() int { return c.lru.Len() }
