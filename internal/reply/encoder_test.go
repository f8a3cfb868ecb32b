package reply

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePasswdLayout(t *testing.T) {
	entries := []PasswdEntry{
		{FQName: "alice@EXAMPLE", UID: 1001, GID: 2000, GECOS: "Alice", Homedir: "/home/alice", Shell: "/bin/bash"},
	}
	buf := EncodePasswd(entries)

	require.GreaterOrEqual(t, len(buf), 8)
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf[0:4]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(buf[4:8]))
	assert.Equal(t, uint32(1001), binary.LittleEndian.Uint32(buf[8:12]))
	assert.Equal(t, uint32(2000), binary.LittleEndian.Uint32(buf[12:16]))

	rest := string(buf[16:])
	assert.Contains(t, rest, "alice@EXAMPLE\x00")
	assert.Contains(t, rest, "*\x00")
	assert.Contains(t, rest, "/home/alice\x00")
	assert.Contains(t, rest, "/bin/bash\x00")
}

func TestEncodeEmptyHasZeroCount(t *testing.T) {
	buf := EncodeEmpty()
	require.Len(t, buf, 8)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(buf[0:4]))
}

func TestEncodeGroupMemberCount(t *testing.T) {
	entries := []GroupEntry{
		{FQName: "wheel@EXAMPLE", GID: 10, Members: []string{"alice@EXAMPLE", "bob@EXAMPLE"}},
	}
	buf := EncodeGroup(entries)
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf[0:4]))
	assert.Equal(t, uint32(10), binary.LittleEndian.Uint32(buf[8:12]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(buf[12:16]))
}

func TestEncodeServiceLayout(t *testing.T) {
	entries := []ServiceEntry{
		{Name: "http", Aliases: []string{"www"}, Port: 80, Proto: "tcp"},
	}
	buf := EncodeService(entries)

	require.GreaterOrEqual(t, len(buf), 8)
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf[0:4]))
	assert.Equal(t, uint16(80), binary.LittleEndian.Uint16(buf[8:10]))

	rest := string(buf[10:])
	assert.Contains(t, rest, "tcp\x00")
	assert.Contains(t, rest, "http\x00")
	assert.Contains(t, rest, "www\x00")
}

func TestEncodeInitgroupsGIDList(t *testing.T) {
	buf := EncodeInitgroups([]uint32{100, 200, 300})
	require.Len(t, buf, 8+4*3)
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(buf[0:4]))
	assert.Equal(t, uint32(100), binary.LittleEndian.Uint32(buf[8:12]))
	assert.Equal(t, uint32(300), binary.LittleEndian.Uint32(buf[16:20]))
}

func TestEncodeSIDReply(t *testing.T) {
	buf := EncodeSIDReply(IDTypeUID, "S-1-5-21-111-222-333-1001")
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(buf[0:4]))
	assert.Equal(t, uint32(IDTypeUID), binary.LittleEndian.Uint32(buf[8:12]))
	assert.Contains(t, string(buf[12:]), "S-1-5-21-111-222-333-1001\x00")
}

func TestEncodeIDReply(t *testing.T) {
	buf := EncodeIDReply(IDTypeGID, 4242)
	require.Len(t, buf, 16)
	assert.Equal(t, uint32(4242), binary.LittleEndian.Uint32(buf[12:16]))
}

func TestFormatFQNameRegrowsThenSkips(t *testing.T) {
	name, ok := FormatFQName("%u@%d", PasswdEntry{FQName: "bob"}, "EXAMPLE")
	require.True(t, ok)
	assert.Equal(t, "bob@EXAMPLE", name)

	huge := make([]byte, fqnameBufSeed*4)
	for i := range huge {
		huge[i] = 'x'
	}
	_, ok = FormatFQName("%u@%d", PasswdEntry{FQName: string(huge)}, "EXAMPLE")
	assert.False(t, ok, "oversized expansion should be skipped, not truncated")
}
