package enum

import "github.com/nssresponder/responderd/internal/sysdb"

// Cursor is one client connection's position within a class's current
// Snapshot: a (page, offset) pair into the domain-ordered record list.
// Each connection owns its own Cursor; endXXent (spec.md §4.7) just
// resets it, it never touches the shared Snapshot.
type Cursor struct {
	page   int
	offset int
}

// Reset implements endXXent: rewind to the start without affecting the
// Engine's shared snapshot.
func (c *Cursor) Reset() { c.page, c.offset = 0, 0 }

// Next returns up to n records from snap, advancing c past domain
// boundaries as needed (spec.md §4.7's getXXent(n)). A short (or empty)
// result means the snapshot is exhausted from this cursor's position.
func (c *Cursor) Next(snap *Snapshot, n int) []*sysdb.Record {
	if snap == nil || n <= 0 {
		return nil
	}
	out := make([]*sysdb.Record, 0, n)
	for len(out) < n {
		rec, ok := snap.recordAt(c.page, c.offset)
		if !ok {
			if c.page+1 >= snap.pageCount() {
				break
			}
			c.page++
			c.offset = 0
			continue
		}
		out = append(out, rec)
		c.offset++
	}
	return out
}
