package reply

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// pwfield is the password placeholder field every passwd/group entry
// carries; the responder never serves real password hashes.
const pwfield = "*"

// fqnameBufSeed and fqnameBufMaxGrow mirror the original responder's
// "fixed buffer, regrow once on overflow, else skip" fqname formatting
// behaviour (spec.md §4.4): names are built against a seed-sized buffer,
// doubled once on overflow, and the entry is dropped if it still
// doesn't fit.
const (
	fqnameBufSeed    = 256
	fqnameBufMaxGrow = 1
)

// FormatFQName expands a domain-specific fully-qualified-name template
// (e.g. "%u@%d") and enforces the same bounded-buffer discipline the
// source uses: ok is false if the expansion still overflows after one
// regrow, signalling the caller to skip the entry rather than truncate it.
func FormatFQName(tpl string, e PasswdEntry, domain string) (name string, ok bool) {
	bufSize := fqnameBufSeed
	for attempt := 0; attempt <= fqnameBufMaxGrow; attempt++ {
		name = expandTemplate(tpl, e, domain)
		if len(name) < bufSize {
			return name, true
		}
		bufSize *= 2
	}
	return "", false
}

func writeHeader(buf *bytes.Buffer, count uint32) {
	binary.Write(buf, binary.LittleEndian, count)
	binary.Write(buf, binary.LittleEndian, uint32(0))
}

func writeCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

// EncodePasswd renders a passwd reply packet for zero or more entries
// (spec.md §4.4's passwd body: uid|gid|fqname\0|pwfield\0|gecos\0|
// homedir\0|shell\0, repeated per entry).
func EncodePasswd(entries []PasswdEntry) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, uint32(len(entries)))
	for _, e := range entries {
		binary.Write(&buf, binary.LittleEndian, e.UID)
		binary.Write(&buf, binary.LittleEndian, e.GID)
		writeCString(&buf, e.FQName)
		writeCString(&buf, pwfield)
		writeCString(&buf, e.GECOS)
		writeCString(&buf, e.Homedir)
		writeCString(&buf, e.Shell)
	}
	return buf.Bytes()
}

// EncodeGroup renders a group reply packet (spec.md §4.4's group body:
// gid|member_count|fqname\0|pwfield\0|[member\0]×member_count).
func EncodeGroup(entries []GroupEntry) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, uint32(len(entries)))
	for _, e := range entries {
		binary.Write(&buf, binary.LittleEndian, e.GID)
		binary.Write(&buf, binary.LittleEndian, uint32(len(e.Members)))
		writeCString(&buf, e.FQName)
		writeCString(&buf, pwfield)
		for _, m := range e.Members {
			writeCString(&buf, m)
		}
	}
	return buf.Bytes()
}

// EncodeInitgroups renders an initgroups reply packet: count|reserved|
// [gid]×count (spec.md §4.4, §4.6.2).
func EncodeInitgroups(gids []uint32) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, uint32(len(gids)))
	for _, g := range gids {
		binary.Write(&buf, binary.LittleEndian, g)
	}
	return buf.Bytes()
}

// EncodeSIDReply renders a single-entry SID reply: 1|0|id_type|sid\0.
func EncodeSIDReply(idType IDType, sid string) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, 1)
	binary.Write(&buf, binary.LittleEndian, uint32(idType))
	writeCString(&buf, sid)
	return buf.Bytes()
}

// EncodeIDReply renders a single-entry numeric id reply: 1|0|id_type|id.
func EncodeIDReply(idType IDType, id uint32) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, 1)
	binary.Write(&buf, binary.LittleEndian, uint32(idType))
	binary.Write(&buf, binary.LittleEndian, id)
	return buf.Bytes()
}

// EncodeNameReply renders a single-entry name reply: 1|0|id_type|fqname\0.
func EncodeNameReply(idType IDType, fqname string) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, 1)
	binary.Write(&buf, binary.LittleEndian, uint32(idType))
	writeCString(&buf, fqname)
	return buf.Bytes()
}

// EncodeService renders a service reply packet (recovered in §12: port(2)|
// proto\0|name\0|alias_count(4)|[alias\0]*, length-prefixed like every
// other reply).
func EncodeService(entries []ServiceEntry) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, uint32(len(entries)))
	for _, e := range entries {
		binary.Write(&buf, binary.LittleEndian, e.Port)
		writeCString(&buf, e.Proto)
		writeCString(&buf, e.Name)
		binary.Write(&buf, binary.LittleEndian, uint32(len(e.Aliases)))
		for _, a := range e.Aliases {
			writeCString(&buf, a)
		}
	}
	return buf.Bytes()
}

// EncodeEmpty renders the zero-entry reply returned whenever a lookup
// pipeline exhausts every domain without a hit.
func EncodeEmpty() []byte {
	var buf bytes.Buffer
	writeHeader(&buf, 0)
	return buf.Bytes()
}

// ErrFQNameOverflow is returned by callers that choose to surface
// FormatFQName's skip decision as an error instead of silently dropping
// the entry.
var ErrFQNameOverflow = fmt.Errorf("reply: fqname template overflowed buffer after regrow")
