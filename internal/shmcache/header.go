// Package shmcache implements the shared-memory lookup cache (spec.md
// §4.3, §6.3): a fixed-size memory-mapped hash table of passwd/group/
// initgroups slots, served to client libraries directly and invalidated
// by the responder.
//
// The arena/slot layout is grounded on pkg/localcache/lru/lru_slot.go's
// sharded-slot design, generalized from an in-process shard array to a
// byte-addressed mmap region a client library can map read-only by fd.
package shmcache

import (
	"encoding/binary"
)

const (
	magic   uint32 = 0x53535343 // "SSSC"
	version uint32 = 1

	headerSize = 32 // magic|version|slotCount|slotSize|hashSeed|freeListHead, padded to 32
)

// header mirrors spec.md §6.3's mapped-file header. It lives in the
// first headerSize bytes of the arena.
type header struct {
	Magic        uint32
	Version      uint32
	SlotCount    uint32
	SlotSize     uint32
	HashSeed     uint32
	FreeListHead int32 // -1 means empty
}

func (h *header) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.SlotCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.SlotSize)
	binary.LittleEndian.PutUint32(buf[16:20], h.HashSeed)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(h.FreeListHead))
}

func decodeHeader(buf []byte) header {
	return header{
		Magic:        binary.LittleEndian.Uint32(buf[0:4]),
		Version:      binary.LittleEndian.Uint32(buf[4:8]),
		SlotCount:    binary.LittleEndian.Uint32(buf[8:12]),
		SlotSize:     binary.LittleEndian.Uint32(buf[12:16]),
		HashSeed:     binary.LittleEndian.Uint32(buf[16:20]),
		FreeListHead: int32(binary.LittleEndian.Uint32(buf[20:24])),
	}
}
