package sidmap

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// DomainSIDPrefix is the textual prefix that marks a SID as a domain SID
// rather than a built-in (well-known) one. Configurable in sssd; fixed
// here since no caller in this spec needs a different authority.
const DomainSIDPrefix = "S-1-5-21-"

// minDomainSubAuth is the smallest subauthority count a domain SID can
// carry (authority + 3 domain components, leaving room for at least one
// RID).
const minDomainSubAuth = 4

// SID is the parsed form of a Windows security identifier:
// revision | subauth_count | authority(6) | subauth[subauth_count](4 each).
type SID struct {
	Revision  byte
	Authority [6]byte
	SubAuth   []uint32
}

// SIDFromBinary decodes the fixed binary SID layout, bounds-checking the
// subauthority count against the remaining buffer before reading — the
// original C parser trusts subauth_count blindly and can over-read; we
// don't.
func SIDFromBinary(b []byte) (*SID, error) {
	if len(b) < 8 {
		return nil, ErrInvalidSID
	}
	count := int(b[1])
	want := 8 + count*4
	if want > len(b) {
		return nil, ErrInvalidSID
	}
	s := &SID{Revision: b[0], SubAuth: make([]uint32, count)}
	copy(s.Authority[:], b[2:8])
	for i := 0; i < count; i++ {
		off := 8 + i*4
		s.SubAuth[i] = binary.LittleEndian.Uint32(b[off : off+4])
	}
	return s, nil
}

// Binary encodes the SID back to its fixed binary layout.
func (s *SID) Binary() []byte {
	b := make([]byte, 8+len(s.SubAuth)*4)
	b[0] = s.Revision
	b[1] = byte(len(s.SubAuth))
	copy(b[2:8], s.Authority[:])
	for i, sa := range s.SubAuth {
		binary.LittleEndian.PutUint32(b[8+i*4:12+i*4], sa)
	}
	return b
}

// authorityUint48 returns the 6-byte big-endian authority as a uint64.
func (s *SID) authorityUint48() uint64 {
	var v uint64
	for _, bb := range s.Authority {
		v = v<<8 | uint64(bb)
	}
	return v
}

func setAuthorityUint48(s *SID, v uint64) {
	for i := 5; i >= 0; i-- {
		s.Authority[i] = byte(v & 0xff)
		v >>= 8
	}
}

// String renders the SID in its S-R-A-S0-S1-... textual form.
func (s *SID) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "S-%d-%d", s.Revision, s.authorityUint48())
	for _, sa := range s.SubAuth {
		fmt.Fprintf(&sb, "-%d", sa)
	}
	return sb.String()
}

// ParseSIDString parses the S-R-A-S0-S1-... textual form into a SID.
func ParseSIDString(str string) (*SID, error) {
	parts := strings.Split(str, "-")
	if len(parts) < 3 || parts[0] != "S" {
		return nil, ErrInvalidSID
	}
	rev, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return nil, ErrInvalidSID
	}
	auth, err := strconv.ParseUint(parts[2], 10, 48)
	if err != nil {
		return nil, ErrInvalidSID
	}
	s := &SID{Revision: byte(rev)}
	setAuthorityUint48(s, auth)
	for _, p := range parts[3:] {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, ErrInvalidSID
		}
		s.SubAuth = append(s.SubAuth, uint32(v))
	}
	return s, nil
}

// IsDomainSID reports whether str both parses as a SID and carries the
// domain prefix with enough subauthorities to be a domain SID (as
// opposed to a built-in SID). It checks only a lower bound on the
// subauthority count, so a full object SID under a domain also passes.
func IsDomainSID(str string) bool {
	if !strings.HasPrefix(str, DomainSIDPrefix) {
		return false
	}
	s, err := ParseSIDString(str)
	if err != nil {
		return false
	}
	return len(s.SubAuth) >= minDomainSubAuth
}

// DomainPrefix returns the SID string with its final subauthority (the
// RID) stripped, i.e. the domain SID that owns this object SID.
func DomainPrefix(str string) (string, uint32, error) {
	s, err := ParseSIDString(str)
	if err != nil {
		return "", 0, ErrInvalidSID
	}
	if len(s.SubAuth) == 0 {
		return "", 0, ErrInvalidSID
	}
	rid := s.SubAuth[len(s.SubAuth)-1]
	dom := &SID{Revision: s.Revision, Authority: s.Authority, SubAuth: s.SubAuth[:len(s.SubAuth)-1]}
	return dom.String(), rid, nil
}
