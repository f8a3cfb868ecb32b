// Package enum implements Component G (spec.md §4.7): the
// setXXent/getXXent/endXXent enumeration engine, one per object class
// (passwd, group, service), each owning a single shared snapshot all client
// cursors read from.
package enum

import (
	"context"
	"sync"
	"time"

	"github.com/nssresponder/responderd/internal/sysdb"
)

// DomainPage is one domain's enumerated records within a Snapshot.
type DomainPage struct {
	Domain  string
	Records []*sysdb.Record
}

// Snapshot is one setXXent's materialized walk across every
// enumeration-enabled domain, captured once and read-only from the
// moment it's marked ready (spec.md §5's "Enumeration snapshot:
// read-only once ready=true; writers see it only during construction").
type Snapshot struct {
	mu      sync.RWMutex
	pages   []DomainPage
	ready   bool
	builtAt time.Time
	waiters []chan struct{}
}

func newSnapshot() *Snapshot { return &Snapshot{} }

// Ready reports whether construction has finished.
func (s *Snapshot) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// waitReady blocks until the snapshot is marked ready or ctx ends,
// implementing spec.md §4.7 step 4's "register as a waiter".
func (s *Snapshot) waitReady(ctx context.Context) error {
	s.mu.Lock()
	if s.ready {
		s.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// markReady installs pages and wakes every waiter (spec.md §4.7 step 6).
func (s *Snapshot) markReady(pages []DomainPage) {
	s.mu.Lock()
	s.pages = pages
	s.ready = true
	s.builtAt = time.Now()
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}

// expired reports whether a ready snapshot has outlived enum_cache_ttl.
func (s *Snapshot) expired(ttl time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready && time.Since(s.builtAt) >= ttl
}

func (s *Snapshot) recordAt(page, offset int) (*sysdb.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if page < 0 || page >= len(s.pages) {
		return nil, false
	}
	records := s.pages[page].Records
	if offset < 0 || offset >= len(records) {
		return nil, false
	}
	return records[offset], true
}

func (s *Snapshot) pageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}
