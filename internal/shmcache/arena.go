package shmcache

import (
	"fmt"
	"hash/fnv"
	"sync"

	"golang.org/x/sys/unix"
)

// Arena is the mapped-file hash table of spec.md §6.3. Slot index ==
// primary bucket for hash(key) % slotCount; chain links run through each
// slot's next field (indices, not pointers). The header's free list
// starts empty and only unlinking a chained slot adds to it, so occupy
// never chains in practice: a brand-new key whose primary slot is taken
// makes Cache.put evict that slot's occupant instead.
type Arena struct {
	mu        sync.Mutex // guards free-list/chain structural mutation
	buf       []byte     // mmap'd region; nil after Close
	hdr       header
	slotSize  int
	useCount  []uint32 // per-slot LRU use counter (victim selection), mirrored outside the mmap region
	mappedRaw bool
}

// NewMappedArena mmaps (or creates) a backing file of the right size and
// lays out a fresh header (with an empty free list) and free slots over
// it. fd must be a
// regular file opened read-write; client libraries map the same fd
// read-only to serve lookups without a round-trip.
func NewMappedArena(fd int, slotCount, payloadSize int, hashSeed uint32) (*Arena, error) {
	slotSize := slotHeaderSize + payloadSize
	size := headerSize + slotCount*slotSize
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, fmt.Errorf("shmcache: ftruncate: %w", err)
	}
	buf, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shmcache: mmap: %w", err)
	}
	a := &Arena{buf: buf, slotSize: slotSize, mappedRaw: true}
	a.initLayout(slotCount, payloadSize, hashSeed)
	return a, nil
}

// NewAnonymousArena builds an arena backed by an anonymous mmap — used
// when there is no on-disk path (tests, or a responder configured
// without shared-memory client support).
func NewAnonymousArena(slotCount, payloadSize int, hashSeed uint32) (*Arena, error) {
	slotSize := slotHeaderSize + payloadSize
	size := headerSize + slotCount*slotSize
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("shmcache: anonymous mmap: %w", err)
	}
	a := &Arena{buf: buf, slotSize: slotSize, mappedRaw: true}
	a.initLayout(slotCount, payloadSize, hashSeed)
	return a, nil
}

func (a *Arena) initLayout(slotCount, payloadSize int, hashSeed uint32) {
	a.hdr = header{Magic: magic, Version: version, SlotCount: uint32(slotCount), SlotSize: uint32(a.slotSize), HashSeed: hashSeed, FreeListHead: -1}
	a.hdr.encode(a.buf)
	a.useCount = make([]uint32, slotCount)
	for i := 0; i < slotCount; i++ {
		freeSlot(a.slot(i))
		setNext(a.slot(i), -1)
	}
}

func (a *Arena) slot(i int) []byte { return slotAt(a.buf, i, a.slotSize) }

// SlotCount returns the fixed slot capacity.
func (a *Arena) SlotCount() int { return int(a.hdr.SlotCount) }

// Close unmaps the arena. After Close the Arena must not be used.
func (a *Arena) Close() error {
	if a.buf == nil {
		return nil
	}
	err := unix.Munmap(a.buf)
	a.buf = nil
	return err
}

// Sync flushes the mapped region to its backing file, for a real (non
// anonymous) mapping that client libraries read by reopening the file.
func (a *Arena) Sync() error {
	if !a.mappedRaw {
		return nil
	}
	return unix.Msync(a.buf, unix.MS_ASYNC)
}

// HashKey hashes a logical key (e.g. "alice@EXAMPLE" or a numeric uid
// string) into the bucket space using the arena's per-process hash seed,
// the way spec.md §6.3 describes ("hash-seed regenerated at responder
// startup; client libraries discover it via the header").
func (a *Arena) HashKey(key string) uint32 {
	h := fnv.New32a()
	var seed [4]byte
	seed[0] = byte(a.hdr.HashSeed)
	seed[1] = byte(a.hdr.HashSeed >> 8)
	seed[2] = byte(a.hdr.HashSeed >> 16)
	seed[3] = byte(a.hdr.HashSeed >> 24)
	h.Write(seed[:])
	h.Write([]byte(key))
	return h.Sum32()
}

func (a *Arena) bucket(hash uint32) int {
	return int(hash % a.hdr.SlotCount)
}

// allocFree pops a slot off the free list (for chain overflow nodes);
// returns -1 if none are free — callers must evict an LRU victim first.
func (a *Arena) allocFree() int {
	if a.hdr.FreeListHead < 0 {
		return -1
	}
	idx := int(a.hdr.FreeListHead)
	a.hdr.FreeListHead = getNext(a.slot(idx))
	a.hdr.encode(a.buf)
	return idx
}

func (a *Arena) pushFree(idx int) {
	s := a.slot(idx)
	freeSlot(s)
	setNext(s, a.hdr.FreeListHead)
	a.hdr.FreeListHead = int32(idx)
	a.hdr.encode(a.buf)
}

// touch bumps the slot's use counter (victim-selection LRU, per spec.md
// §4.3's "LRU over slot-use counter" approximation, §9 Open Question 2).
func (a *Arena) touch(idx int) {
	a.useCount[idx]++
}

// leastUsed scans for the slot with the smallest use counter among a
// bucket's chain, to evict under pressure. A linear scan is acceptable:
// shared-memory arenas are sized for O(10^4-10^5) slots and eviction is
// off the hot read path.
func (a *Arena) leastUsed(candidates []int) int {
	best, bestCount := -1, ^uint32(0)
	for _, idx := range candidates {
		if a.useCount[idx] < bestCount {
			best, bestCount = idx, a.useCount[idx]
		}
	}
	return best
}

// chain returns every slot index in hash's bucket chain, head first.
func (a *Arena) chain(hash uint32) []int {
	var out []int
	cur := a.bucket(hash)
	for {
		out = append(out, cur)
		next := getNext(a.slot(cur))
		if next < 0 {
			break
		}
		cur = int(next)
	}
	return out
}

// occupy finds a slot to hold a brand-new key hashing to hash: the
// bucket's primary slot if free, else a free slot from the list chained
// onto the bucket's tail. ok is false when the arena is full (§4.3:
// "failure to fit is non-fatal", so the caller evicts an LRU victim from
// the bucket and retries once).
func (a *Arena) occupy(hash uint32) (idx int, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucket := a.bucket(hash)
	if getFlags(a.slot(bucket))&flagUsed == 0 {
		return bucket, true
	}
	cur := bucket
	for {
		next := getNext(a.slot(cur))
		if next < 0 {
			break
		}
		cur = int(next)
	}
	free := a.allocFree()
	if free < 0 {
		return -1, false
	}
	setNext(a.slot(cur), int32(free))
	return free, true
}

// write installs payload into an already-occupied slot index.
func (a *Arena) write(idx int, hash uint32, kind byte, payload []byte) {
	writeSlot(a.slot(idx), hash, kind, payload)
	a.touch(idx)
}

// remove unlinks idx from hash's bucket chain and returns it to the free
// list. If idx is the chain head and has successors, the next node's
// content is moved into the head slot so the bucket's primary slot
// always stays physically addressable at bucket index.
func (a *Arena) remove(hash uint32, idx int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucket := a.bucket(hash)
	if idx == bucket {
		next := getNext(a.slot(bucket))
		if next < 0 {
			freeSlot(a.slot(bucket))
			return
		}
		nh, nk, np, ok := readSnapshot(a.slot(int(next)))
		if ok {
			writeSlot(a.slot(bucket), nh, nk, np)
		}
		setNext(a.slot(bucket), getNext(a.slot(int(next))))
		a.pushFree(int(next))
		return
	}

	prev := bucket
	for {
		next := getNext(a.slot(prev))
		if next < 0 {
			return // not found; already removed
		}
		if int(next) == idx {
			setNext(a.slot(prev), getNext(a.slot(idx)))
			a.pushFree(idx)
			return
		}
		prev = int(next)
	}
}

// evictVictim frees the least-used slot in hash's bucket chain to make
// room, returning its freed index for reuse, or -1 if the chain is empty.
func (a *Arena) evictVictim(hash uint32) int {
	chain := a.chain(hash)
	victim := a.leastUsed(chain)
	if victim < 0 {
		return -1
	}
	a.remove(hash, victim)
	return victim
}
