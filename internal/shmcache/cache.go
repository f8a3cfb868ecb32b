package shmcache

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// PasswdPayload is the data a passwd slot carries, independent of which
// of its two keys (name or uid) addressed it.
type PasswdPayload struct {
	FQName  string
	UID     uint32
	GID     uint32
	GECOS   string
	Homedir string
	Shell   string
}

// GroupPayload is the data a group slot carries.
type GroupPayload struct {
	FQName  string
	GID     uint32
	Members []string
}

func encodeStrings(ss ...string) []byte {
	var out []byte
	for _, s := range ss {
		var l [2]byte
		binary.LittleEndian.PutUint16(l[:], uint16(len(s)))
		out = append(out, l[:]...)
		out = append(out, s...)
	}
	return out
}

func decodeStrings(b []byte, n int) ([]string, error) {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if len(b) < 2 {
			return nil, fmt.Errorf("shmcache: truncated payload")
		}
		l := int(binary.LittleEndian.Uint16(b[:2]))
		b = b[2:]
		if len(b) < l {
			return nil, fmt.Errorf("shmcache: truncated payload")
		}
		out = append(out, string(b[:l]))
		b = b[l:]
	}
	return out, nil
}

func encodePasswd(p PasswdPayload) []byte {
	head := make([]byte, 8)
	binary.LittleEndian.PutUint32(head[0:4], p.UID)
	binary.LittleEndian.PutUint32(head[4:8], p.GID)
	return append(head, encodeStrings(p.FQName, "*", p.GECOS, p.Homedir, p.Shell)...)
}

func decodePasswd(b []byte) (PasswdPayload, error) {
	if len(b) < 8 {
		return PasswdPayload{}, fmt.Errorf("shmcache: short passwd payload")
	}
	uid := binary.LittleEndian.Uint32(b[0:4])
	gid := binary.LittleEndian.Uint32(b[4:8])
	fields, err := decodeStrings(b[8:], 5)
	if err != nil {
		return PasswdPayload{}, err
	}
	return PasswdPayload{FQName: fields[0], UID: uid, GID: gid, GECOS: fields[2], Homedir: fields[3], Shell: fields[4]}, nil
}

func encodeGroup(g GroupPayload) []byte {
	head := make([]byte, 6)
	binary.LittleEndian.PutUint32(head[0:4], g.GID)
	binary.LittleEndian.PutUint16(head[4:6], uint16(len(g.Members)))
	out := append(head, encodeStrings(g.FQName)...)
	out = append(out, encodeStrings(g.Members...)...)
	return out
}

func decodeGroup(b []byte) (GroupPayload, error) {
	if len(b) < 6 {
		return GroupPayload{}, fmt.Errorf("shmcache: short group payload")
	}
	gid := binary.LittleEndian.Uint32(b[0:4])
	memberCount := int(binary.LittleEndian.Uint16(b[4:6]))
	rest := b[6:]
	fields, err := decodeStrings(rest, 1+memberCount)
	if err != nil {
		return GroupPayload{}, err
	}
	return GroupPayload{FQName: fields[0], GID: gid, Members: fields[1:]}, nil
}

func passwdNameKey(fqname string) string { return "pw:name:" + fqname }
func passwdUIDKey(uid uint32) string     { return fmt.Sprintf("pw:uid:%d", uid) }
func groupNameKey(fqname string) string  { return "gr:name:" + fqname }
func groupGIDKey(gid uint32) string      { return fmt.Sprintf("gr:gid:%d", gid) }

type slotRef struct {
	idx  int
	hash uint32
}

// Cache is the responder-facing API over an Arena: it keeps a
// process-local index from logical key to slot (the arena itself is
// pure hash/slot/chain bytes, as a real client library sees it) and
// drives eviction + cross-key invalidation.
type Cache struct {
	mu    sync.Mutex
	arena *Arena
	index map[string]slotRef
	links *linkSet
}

// New wraps an Arena with the bookkeeping the responder needs to locate
// and invalidate slots by logical key.
func New(arena *Arena) *Cache {
	return &Cache{arena: arena, index: make(map[string]slotRef), links: newLinkSet()}
}

// put stores payload under key, evicting one LRU victim from the bucket
// if the arena has no free slot for a brand-new key. Overwriting an
// existing key's slot in place does not need allocation.
func (c *Cache) put(key string, kind byte, payload []byte) error {
	hash := c.arena.HashKey(key)
	if ref, ok := c.index[key]; ok && ref.hash == hash {
		c.arena.write(ref.idx, hash, kind, payload)
		return nil
	}

	idx, ok := c.arena.occupy(hash)
	if !ok {
		if v := c.arena.evictVictim(hash); v < 0 {
			return fmt.Errorf("shmcache: out of memory for key %q", key)
		}
		idx, ok = c.arena.occupy(hash)
		if !ok {
			return fmt.Errorf("shmcache: out of memory for key %q", key)
		}
	}
	c.arena.write(idx, hash, kind, payload)
	c.index[key] = slotRef{idx: idx, hash: hash}
	return nil
}

func (c *Cache) delKey(key string) {
	ref, ok := c.index[key]
	if !ok {
		return
	}
	c.arena.remove(ref.hash, ref.idx)
	delete(c.index, key)
}

// StorePasswd installs a passwd record under both its name and uid keys,
// cross-linked so invalidating either removes both (spec.md §4.3's "two
// slots per record, cross-linked by hash-chain").
func (c *Cache) StorePasswd(p PasswdPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload := encodePasswd(p)
	nameKey := passwdNameKey(p.FQName)
	uidKey := passwdUIDKey(p.UID)
	if err := c.put(nameKey, KindPasswd, payload); err != nil {
		return err
	}
	if err := c.put(uidKey, KindPasswd, payload); err != nil {
		c.delKey(nameKey)
		return err
	}
	c.links.link(nameKey, uidKey)
	return nil
}

// StoreGroup installs a group record under both its name and gid keys.
func (c *Cache) StoreGroup(g GroupPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload := encodeGroup(g)
	nameKey := groupNameKey(g.FQName)
	gidKey := groupGIDKey(g.GID)
	if err := c.put(nameKey, KindGroup, payload); err != nil {
		return err
	}
	if err := c.put(gidKey, KindGroup, payload); err != nil {
		c.delKey(nameKey)
		return err
	}
	c.links.link(nameKey, gidKey)
	return nil
}

// LinkUserToGroups records that fqname's initgroups slot depends on the
// given gids, so a membership change invalidates both the user's passwd
// slot and every old/new gid's group slot (spec.md §4.6.4).
func (c *Cache) LinkUserToGroups(fqname string, uid uint32, gids []uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	links := make([]string, 0, len(gids))
	for _, g := range gids {
		links = append(links, groupGIDKey(g))
	}
	c.links.link(passwdNameKey(fqname), links...)
	c.links.link(passwdUIDKey(uid), links...)
}

// InvalidateName removes the passwd or group slot keyed by fqname and
// cascades to everything linked to it.
func (c *Cache) InvalidateName(fqname string) {
	c.invalidateCascade(passwdNameKey(fqname))
	c.invalidateCascade(groupNameKey(fqname))
}

// InvalidateUID removes a passwd slot by uid and cascades.
func (c *Cache) InvalidateUID(uid uint32) {
	c.invalidateCascade(passwdUIDKey(uid))
}

// InvalidateGID removes a group slot by gid and cascades.
func (c *Cache) InvalidateGID(gid uint32) {
	c.invalidateCascade(groupGIDKey(gid))
}

func (c *Cache) invalidateCascade(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.links.del(key) {
		c.delKey(k)
	}
}

// LookupPasswdByName is exposed for tests exercising the write path end
// to end; the real read path is the mapped file itself, read directly by
// client libraries without going through this Cache.
func (c *Cache) LookupPasswdByName(fqname string) (PasswdPayload, bool) {
	return c.lookupPasswd(passwdNameKey(fqname))
}

// LookupPasswdByUID mirrors LookupPasswdByName for the uid key.
func (c *Cache) LookupPasswdByUID(uid uint32) (PasswdPayload, bool) {
	return c.lookupPasswd(passwdUIDKey(uid))
}

func (c *Cache) lookupPasswd(key string) (PasswdPayload, bool) {
	c.mu.Lock()
	ref, ok := c.index[key]
	c.mu.Unlock()
	if !ok {
		return PasswdPayload{}, false
	}
	_, _, payload, ok := readSnapshot(c.arena.slot(ref.idx))
	if !ok {
		return PasswdPayload{}, false
	}
	p, err := decodePasswd(payload)
	if err != nil {
		return PasswdPayload{}, false
	}
	return p, true
}

// LookupGroupByName mirrors lookupPasswd for group records.
func (c *Cache) LookupGroupByName(fqname string) (GroupPayload, bool) {
	return c.lookupGroup(groupNameKey(fqname))
}

// LookupGroupByGID mirrors LookupGroupByName for the gid key.
func (c *Cache) LookupGroupByGID(gid uint32) (GroupPayload, bool) {
	return c.lookupGroup(groupGIDKey(gid))
}

func (c *Cache) lookupGroup(key string) (GroupPayload, bool) {
	c.mu.Lock()
	ref, ok := c.index[key]
	c.mu.Unlock()
	if !ok {
		return GroupPayload{}, false
	}
	_, _, payload, ok := readSnapshot(c.arena.slot(ref.idx))
	if !ok {
		return GroupPayload{}, false
	}
	g, err := decodeGroup(payload)
	if err != nil {
		return GroupPayload{}, false
	}
	return g, true
}
