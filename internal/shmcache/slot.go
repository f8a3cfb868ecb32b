package shmcache

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

// Record kinds a slot can hold.
const (
	KindPasswd byte = iota + 1
	KindGroup
	KindInitgroups
)

const (
	flagUsed = 1 << 0

	// slot layout: gen(4) | hash(4) | next(4, int32, -1 = none) |
	// kind(1) | flags(1) | payloadLen(2) | payload(payloadSize)
	slotHeaderSize = 16
)

// slotAt returns the byte window for slot i within buf, given slotSize.
func slotAt(buf []byte, i int, slotSize int) []byte {
	off := headerSize + i*slotSize
	return buf[off : off+slotSize]
}

func genPtr(s []byte) *uint32 {
	return (*uint32)(unsafe.Pointer(&s[0]))
}

// loadGen/storeGen perform the reader/writer handshake of §4.3: writers
// bump the generation odd before mutating, even after; readers sample,
// copy, re-sample, and retry on mismatch or an odd value caught mid-write.
func loadGen(s []byte) uint32  { return atomic.LoadUint32(genPtr(s)) }
func storeGen(s []byte, v uint32) { atomic.StoreUint32(genPtr(s), v) }

func getHash(s []byte) uint32   { return binary.LittleEndian.Uint32(s[4:8]) }
func setHash(s []byte, v uint32) { binary.LittleEndian.PutUint32(s[4:8], v) }

func getNext(s []byte) int32 { return int32(binary.LittleEndian.Uint32(s[8:12])) }
func setNext(s []byte, v int32) {
	binary.LittleEndian.PutUint32(s[8:12], uint32(v))
}

func getKind(s []byte) byte  { return s[12] }
func setKind(s []byte, k byte) { s[12] = k }

func getFlags(s []byte) byte   { return s[13] }
func setFlags(s []byte, f byte) { s[13] = f }

func getPayloadLen(s []byte) int {
	return int(binary.LittleEndian.Uint16(s[14:16]))
}
func setPayloadLen(s []byte, n int) {
	binary.LittleEndian.PutUint16(s[14:16], uint16(n))
}

func payloadBytes(s []byte) []byte { return s[slotHeaderSize:] }

// readSnapshot copies out a slot's content using the generation handshake.
// ok is false if the slot was free or a writer raced us out too many
// times (caller should treat that the same as "not found" and may retry).
func readSnapshot(s []byte) (hash uint32, kind byte, payload []byte, ok bool) {
	for attempt := 0; attempt < 4; attempt++ {
		g1 := loadGen(s)
		if g1%2 == 1 {
			continue // writer in progress
		}
		if getFlags(s)&flagUsed == 0 {
			return 0, 0, nil, false
		}
		h := getHash(s)
		k := getKind(s)
		n := getPayloadLen(s)
		p := make([]byte, n)
		copy(p, payloadBytes(s)[:n])
		g2 := loadGen(s)
		if g1 == g2 {
			return h, k, p, true
		}
	}
	return 0, 0, nil, false
}

// writeSlot installs content into a slot under the generation handshake.
func writeSlot(s []byte, hash uint32, kind byte, payload []byte) {
	g := loadGen(s)
	storeGen(s, g+1) // odd: write in progress
	setHash(s, hash)
	setKind(s, kind)
	setFlags(s, flagUsed)
	n := len(payload)
	if n > len(s)-slotHeaderSize {
		n = len(s) - slotHeaderSize
	}
	setPayloadLen(s, n)
	copy(payloadBytes(s), payload[:n])
	storeGen(s, g+2) // even: visible again
}

func freeSlot(s []byte) {
	g := loadGen(s)
	storeGen(s, g+1)
	setFlags(s, 0)
	setPayloadLen(s, 0)
	storeGen(s, g+2)
}
