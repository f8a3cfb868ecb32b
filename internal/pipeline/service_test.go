package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nssresponder/responderd/internal/domain"
	"github.com/nssresponder/responderd/internal/provider"
	"github.com/nssresponder/responderd/internal/provider/inprocbus"
	"github.com/nssresponder/responderd/internal/sysdb"
)

func freshService(domainName string) *sysdb.Record {
	return &sysdb.Record{
		Class: sysdb.ClassService, Name: "http", Domain: domainName,
		Aliases: []string{"www"}, Port: 80, Proto: "tcp",
		CacheExpire: time.Now().Add(time.Hour),
	}
}

func TestGetServByNameFreshHitRenders(t *testing.T) {
	db := newFakeDB()
	db.services[dkey("EXAMPLE", "http")] = []*sysdb.Record{freshService("EXAMPLE")}
	dom := domain.NewDomain("EXAMPLE")

	p := newTestPipeline(t, db, inprocbus.New(nil, nil), []*domain.Domain{dom})

	entry, ok, err := p.GetServByName(context.Background(), "http", "tcp")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "http", entry.Name)
	assert.Equal(t, uint16(80), entry.Port)
	assert.Equal(t, []string{"www"}, entry.Aliases)
}

func TestGetServByNameMissReturnsNotFound(t *testing.T) {
	db := newFakeDB()
	dom := domain.NewDomain("EXAMPLE")

	p := newTestPipeline(t, db, inprocbus.New(nil, nil), []*domain.Domain{dom})

	_, ok, err := p.GetServByName(context.Background(), "nosuch", "tcp")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetServByPortFreshHitRenders(t *testing.T) {
	db := newFakeDB()
	db.byPort[dkey("EXAMPLE", portKey(80, "tcp"))] = []*sysdb.Record{freshService("EXAMPLE")}
	dom := domain.NewDomain("EXAMPLE")

	p := newTestPipeline(t, db, inprocbus.New(nil, nil), []*domain.Domain{dom})

	entry, ok, err := p.GetServByPort(context.Background(), 80, "tcp")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "http", entry.Name)
	assert.Equal(t, "tcp", entry.Proto)
}

func TestGetServByNameRefreshesThroughProviderOnMiss(t *testing.T) {
	db := newFakeDB()
	dom := domain.NewDomain("EXAMPLE")
	dom.SetProviderCapable(true)

	bus := inprocbus.New(func(ctx context.Context, req provider.AccountRequest) (provider.AccountResult, error) {
		db.services[dkey("EXAMPLE", "http")] = []*sysdb.Record{freshService("EXAMPLE")}
		return provider.AccountResult{}, nil
	}, nil)

	p := newTestPipeline(t, db, bus, []*domain.Domain{dom})

	entry, ok, err := p.GetServByName(context.Background(), "http", "tcp")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint16(80), entry.Port)
}
