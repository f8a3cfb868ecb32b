package sidmap

import "testing"

func TestSIDRoundTrip(t *testing.T) {
	cases := []string{
		"S-1-5-21-111111111-222222222-333333333-1105",
		"S-1-5-32-544",
		"S-1-1-0",
	}
	for _, str := range cases {
		s, err := ParseSIDString(str)
		if err != nil {
			t.Fatalf("ParseSIDString(%q): %v", str, err)
		}
		bin := s.Binary()
		back, err := SIDFromBinary(bin)
		if err != nil {
			t.Fatalf("SIDFromBinary: %v", err)
		}
		if back.String() != str {
			t.Fatalf("round trip mismatch: got %q want %q", back.String(), str)
		}
	}
}

func TestSIDFromBinaryBoundsCheck(t *testing.T) {
	if _, err := SIDFromBinary([]byte{1, 5, 0, 0, 0, 0, 0, 0}); err != ErrInvalidSID {
		t.Fatalf("expected ErrInvalidSID for truncated buffer, got %v", err)
	}
	if _, err := SIDFromBinary(nil); err != ErrInvalidSID {
		t.Fatalf("expected ErrInvalidSID for empty buffer, got %v", err)
	}
}

func TestIsDomainSID(t *testing.T) {
	if !IsDomainSID("S-1-5-21-1-2-3") {
		t.Fatal("expected domain sid to be recognized")
	}
	if IsDomainSID("S-1-5-32-544") {
		t.Fatal("builtin sid must not be a domain sid")
	}
	if IsDomainSID("not-a-sid") {
		t.Fatal("garbage must not parse as a domain sid")
	}
}

func newTestContext() *Context {
	return NewContext(200000, 400000, 200000, false)
}

func TestCalculateRangeAutoAndCollision(t *testing.T) {
	c := newTestContext()
	sl, err := c.AddDomainEx("EXAMPLE", "S-1-5-21-111-222-333", -1, "", 1000, false)
	if err != nil {
		t.Fatalf("AddDomainEx: %v", err)
	}
	if sl.Min != 200000 || sl.Max != 399999 {
		t.Fatalf("unexpected slice bounds: %+v", sl)
	}

	_, err = c.AddDomainEx("OTHER", "S-1-5-21-999-888-777", sl.sliceNum, "", 2000, false)
	if err != ErrCollision {
		t.Fatalf("expected ErrCollision reusing a slice held by another domain, got %v", err)
	}
}

func TestAddDomainExRangeIDCollision(t *testing.T) {
	c := NewContext(0, 10_000_000, 200000, false)
	if _, err := c.AddDomainEx("A", "S-1-5-21-1-1-1", -1, "ad1", 1000, false); err != nil {
		t.Fatalf("first AddDomainEx: %v", err)
	}
	if _, err := c.AddDomainEx("B", "S-1-5-21-2-2-2", -1, "ad1", 1000, false); err != ErrCollision {
		t.Fatalf("expected ErrCollision for reused range_id with different domain sid, got %v", err)
	}
}

func TestAddDomainExExternalFlagMustMatch(t *testing.T) {
	c := NewContext(0, 10_000_000, 200000, false)
	sid := "S-1-5-21-1-1-1"
	if _, err := c.AddDomainEx("A", sid, -1, "", 1000, false); err != nil {
		t.Fatalf("first AddDomainEx: %v", err)
	}
	if _, err := c.AddDomainEx("A", sid, -1, "", 1000, true); err != ErrCollision {
		t.Fatalf("expected ErrCollision mixing external flag for one domain sid, got %v", err)
	}
}

func TestSIDUnixRoundTrip(t *testing.T) {
	c := NewContext(200000, 400000, 200000, false)
	sl, err := c.AddDomainEx("EXAMPLE", "S-1-5-21-111-222-333", 0, "", 1000, false)
	if err != nil {
		t.Fatalf("AddDomainEx: %v", err)
	}
	_ = sl

	id, err := c.SIDToUnix("S-1-5-21-111-222-333-1005")
	if err != nil {
		t.Fatalf("SIDToUnix: %v", err)
	}
	if id != 200005 {
		t.Fatalf("SIDToUnix = %d, want 200005", id)
	}

	back, err := c.UnixToSID(200005)
	if err != nil {
		t.Fatalf("UnixToSID: %v", err)
	}
	if back != "S-1-5-21-111-222-333-1005" {
		t.Fatalf("UnixToSID = %q, want S-1-5-21-111-222-333-1005", back)
	}
}

func TestAddDomainExCollisionOnOverlap(t *testing.T) {
	c := NewContext(0, 399999, 200000, false)
	if _, err := c.AddDomainEx("A", "S-1-5-21-1-1-1", 0, "", 1000, false); err != nil {
		t.Fatalf("AddDomainEx A: %v", err)
	}
	if _, err := c.AddDomainEx("B", "S-1-5-21-2-2-2", 0, "", 1000, false); err != ErrCollision {
		t.Fatalf("expected ErrCollision reusing slice 0 explicitly, got %v", err)
	}
}

func TestSIDToUnixBuiltin(t *testing.T) {
	c := newTestContext()
	if _, err := c.SIDToUnix("S-1-5-32-544"); err != ErrBuiltinSID {
		t.Fatalf("expected ErrBuiltinSID, got %v", err)
	}
}

func TestSIDToUnixExternal(t *testing.T) {
	c := NewContext(200000, 400000, 200000, false)
	if _, err := c.AddDomainEx("EXAMPLE", "S-1-5-21-1-2-3", -1, "", 1000, true); err != nil {
		t.Fatalf("AddDomainEx: %v", err)
	}
	if _, err := c.SIDToUnix("S-1-5-21-1-2-3-1005"); err != ErrExternal {
		t.Fatalf("expected ErrExternal, got %v", err)
	}
	if _, err := c.UnixToSID(200005); err != ErrExternal {
		t.Fatalf("expected ErrExternal on reverse mapping, got %v", err)
	}
}

func TestAutoridReservesSliceZero(t *testing.T) {
	c := NewContext(0, 599999, 200000, true)
	sl, err := c.AddDomainEx("FIRST", "S-1-5-21-1-1-1", -1, "", 1000, false)
	if err != nil {
		t.Fatalf("AddDomainEx: %v", err)
	}
	if sl.Min != 0 {
		t.Fatalf("expected autorid's first domain to take slice 0, got min=%d", sl.Min)
	}

	sl2, err := c.AddDomainEx("SECOND", "S-1-5-21-2-2-2", -1, "", 1000, false)
	if err != nil {
		t.Fatalf("AddDomainEx second: %v", err)
	}
	if sl2.Min == 0 {
		t.Fatalf("expected second domain to avoid the reserved slice 0")
	}
}
