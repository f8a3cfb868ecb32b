package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGlobalIDRangeAppliesToExistingDomainsAndSubdomains(t *testing.T) {
	sub := &Domain{Name: "CHILD"}
	parent := &Domain{Name: "PARENT", Subdomains: []*Domain{sub}}
	bare := &Domain{Name: "BARE"}
	m := NewManager([]*Domain{parent, bare})

	m.SetGlobalIDRange(10000, 19999)

	min, max := bare.EffectiveRange()
	assert.Equal(t, uint32(10000), min)
	assert.Equal(t, uint32(19999), max)

	min, max = sub.EffectiveRange()
	assert.Equal(t, uint32(10000), min)
	assert.Equal(t, uint32(19999), max)
}

func TestSetGlobalIDRangeDoesNotOverrideDomainsOwnBounds(t *testing.T) {
	d := &Domain{Name: "SCOPED", IDMin: 1000, IDMax: 1999}
	m := NewManager([]*Domain{d})

	m.SetGlobalIDRange(10000, 19999)

	min, max := d.EffectiveRange()
	assert.Equal(t, uint32(1000), min)
	assert.Equal(t, uint32(1999), max)
}

func TestByNameAndBySIDPrefixResolveSubdomains(t *testing.T) {
	sub := &Domain{Name: "CHILD", SID: "S-1-5-21-9-9-9"}
	parent := &Domain{Name: "PARENT", Subdomains: []*Domain{sub}}
	m := NewManager([]*Domain{parent})

	d, ok := m.ByName("CHILD")
	require.True(t, ok)
	assert.Equal(t, sub, d)

	d, ok = m.BySIDPrefix("S-1-5-21-9-9-9")
	require.True(t, ok)
	assert.Equal(t, sub, d)
}
