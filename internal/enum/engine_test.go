package enum_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nssresponder/responderd/internal/domain"
	"github.com/nssresponder/responderd/internal/enum"
	"github.com/nssresponder/responderd/internal/provider"
	"github.com/nssresponder/responderd/internal/provider/inprocbus"
	"github.com/nssresponder/responderd/internal/sysdb"
)

type fakeDB struct {
	users    map[string][]*sysdb.Record
	groups   map[string][]*sysdb.Record
	services map[string][]*sysdb.Record
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users:    map[string][]*sysdb.Record{},
		groups:   map[string][]*sysdb.Record{},
		services: map[string][]*sysdb.Record{},
	}
}

func (f *fakeDB) GetPwNam(context.Context, string, string) ([]*sysdb.Record, error) { return nil, nil }
func (f *fakeDB) GetPwUID(context.Context, string, uint32) ([]*sysdb.Record, error) { return nil, nil }
func (f *fakeDB) GetGrNam(context.Context, string, string) ([]*sysdb.Record, error) { return nil, nil }
func (f *fakeDB) GetGrGID(context.Context, string, uint32) ([]*sysdb.Record, error) { return nil, nil }
func (f *fakeDB) Initgroups(context.Context, string, string) (*sysdb.Record, []*sysdb.Record, error) {
	return nil, nil, nil
}
func (f *fakeDB) EnumPwEnt(_ context.Context, domainName string) ([]*sysdb.Record, error) {
	return f.users[domainName], nil
}
func (f *fakeDB) EnumGrEnt(_ context.Context, domainName string) ([]*sysdb.Record, error) {
	return f.groups[domainName], nil
}
func (f *fakeDB) EnumServEnt(_ context.Context, domainName string) ([]*sysdb.Record, error) {
	return f.services[domainName], nil
}
func (f *fakeDB) GetServByName(context.Context, string, string, string) ([]*sysdb.Record, error) {
	return nil, nil
}
func (f *fakeDB) GetServByPort(context.Context, string, uint16, string) ([]*sysdb.Record, error) {
	return nil, nil
}
func (f *fakeDB) SearchUserByUID(context.Context, string, uint32) (*sysdb.Record, error) { return nil, nil }
func (f *fakeDB) SearchUserByName(context.Context, string, string) (*sysdb.Record, error) {
	return nil, nil
}
func (f *fakeDB) SearchGroupByGID(context.Context, string, uint32) (*sysdb.Record, error) {
	return nil, nil
}
func (f *fakeDB) SearchGroupByName(context.Context, string, string) (*sysdb.Record, error) {
	return nil, nil
}
func (f *fakeDB) SearchObjectBySID(context.Context, string) (*sysdb.Record, error) { return nil, nil }
func (f *fakeDB) StoreUser(context.Context, string, *sysdb.Record) error     { return nil }
func (f *fakeDB) StoreGroup(context.Context, string, *sysdb.Record) error    { return nil }
func (f *fakeDB) StoreService(context.Context, string, *sysdb.Record) error  { return nil }
func (f *fakeDB) BeginTransaction(context.Context) (sysdb.Transaction, error) { return fakeTx{}, nil }

type fakeTx struct{}

func (fakeTx) Commit(context.Context) error { return nil }
func (fakeTx) Cancel(context.Context) error { return nil }

func usersFor(domainName string, n int) []*sysdb.Record {
	out := make([]*sysdb.Record, n)
	for i := 0; i < n; i++ {
		out[i] = &sysdb.Record{Domain: domainName, Name: fmt.Sprintf("user%d", i), UID: uint32(1000 + i), GID: 1000}
	}
	return out
}

func servicesFor(domainName string, n int) []*sysdb.Record {
	out := make([]*sysdb.Record, n)
	for i := 0; i < n; i++ {
		out[i] = &sysdb.Record{Domain: domainName, Class: sysdb.ClassService, Name: fmt.Sprintf("svc%d", i), Port: uint16(1000 + i), Proto: "tcp"}
	}
	return out
}

func TestSetXXentRejectsWhenNoDomainEnumerable(t *testing.T) {
	db := newFakeDB()
	mgr := domain.NewManager([]*domain.Domain{domain.NewDomain("EXAMPLE")}) // Enumerate defaults false
	adapter := provider.NewAdapter(inprocbus.New(nil, nil))
	e := enum.New(enum.ClassPasswd, mgr, db, adapter, time.Minute)

	var cursor enum.Cursor
	_, err := e.SetXXent(context.Background(), &cursor)
	assert.Error(t, err)
}

func TestSetXXentThenGetXXentDrainsAllRecordsAcrossDomains(t *testing.T) {
	db := newFakeDB()
	db.users["EXAMPLE"] = usersFor("EXAMPLE", 3)
	db.users["OTHER"] = usersFor("OTHER", 2)

	d1 := domain.NewDomain("EXAMPLE")
	d1.Enumerate = true
	d2 := domain.NewDomain("OTHER")
	d2.Enumerate = true
	mgr := domain.NewManager([]*domain.Domain{d1, d2})

	handler := func(ctx context.Context, req provider.AccountRequest) (provider.AccountResult, error) {
		return provider.AccountResult{}, nil
	}
	adapter := provider.NewAdapter(inprocbus.New(handler, nil))
	e := enum.New(enum.ClassPasswd, mgr, db, adapter, time.Minute)

	var cursor enum.Cursor
	_, err := e.SetXXent(context.Background(), &cursor)
	require.NoError(t, err)

	first, err := e.GetXXent(context.Background(), &cursor, 2)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	rest, err := e.GetXXent(context.Background(), &cursor, 10)
	require.NoError(t, err)
	assert.Len(t, rest, 3)

	empty, err := e.GetXXent(context.Background(), &cursor, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSetXXentThenGetXXentDrainsServiceClassRecords(t *testing.T) {
	db := newFakeDB()
	db.services["EXAMPLE"] = servicesFor("EXAMPLE", 2)

	d1 := domain.NewDomain("EXAMPLE")
	d1.Enumerate = true
	mgr := domain.NewManager([]*domain.Domain{d1})

	handler := func(ctx context.Context, req provider.AccountRequest) (provider.AccountResult, error) {
		return provider.AccountResult{}, nil
	}
	adapter := provider.NewAdapter(inprocbus.New(handler, nil))
	e := enum.New(enum.ClassService, mgr, db, adapter, time.Minute)

	var cursor enum.Cursor
	_, err := e.SetXXent(context.Background(), &cursor)
	require.NoError(t, err)

	all, err := e.GetXXent(context.Background(), &cursor, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetXXentWithoutPriorSetXXentReturnsEmpty(t *testing.T) {
	db := newFakeDB()
	mgr := domain.NewManager([]*domain.Domain{domain.NewDomain("EXAMPLE")})
	adapter := provider.NewAdapter(inprocbus.New(nil, nil))
	e := enum.New(enum.ClassPasswd, mgr, db, adapter, time.Minute)

	var cursor enum.Cursor
	records, err := e.GetXXent(context.Background(), &cursor, 5)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestEndXXentResetsCursorWithoutRebuildingSnapshot(t *testing.T) {
	db := newFakeDB()
	db.users["EXAMPLE"] = usersFor("EXAMPLE", 2)
	d1 := domain.NewDomain("EXAMPLE")
	d1.Enumerate = true
	mgr := domain.NewManager([]*domain.Domain{d1})
	adapter := provider.NewAdapter(inprocbus.New(func(ctx context.Context, req provider.AccountRequest) (provider.AccountResult, error) {
		return provider.AccountResult{}, nil
	}, nil))
	e := enum.New(enum.ClassPasswd, mgr, db, adapter, time.Minute)

	var cursor enum.Cursor
	_, err := e.SetXXent(context.Background(), &cursor)
	require.NoError(t, err)

	_, err = e.GetXXent(context.Background(), &cursor, 1)
	require.NoError(t, err)

	e.EndXXent(&cursor)

	again, err := e.GetXXent(context.Background(), &cursor, 10)
	require.NoError(t, err)
	assert.Len(t, again, 2, "cursor reset by endXXent must re-read from the start of the still-live snapshot")
}

func TestGetXXentImplicitlyRebuildsExpiredSnapshot(t *testing.T) {
	db := newFakeDB()
	db.users["EXAMPLE"] = usersFor("EXAMPLE", 1)
	d1 := domain.NewDomain("EXAMPLE")
	d1.Enumerate = true
	mgr := domain.NewManager([]*domain.Domain{d1})
	adapter := provider.NewAdapter(inprocbus.New(func(ctx context.Context, req provider.AccountRequest) (provider.AccountResult, error) {
		return provider.AccountResult{}, nil
	}, nil))
	e := enum.New(enum.ClassPasswd, mgr, db, adapter, time.Millisecond)

	var cursor enum.Cursor
	_, err := e.SetXXent(context.Background(), &cursor)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	db.users["EXAMPLE"] = usersFor("EXAMPLE", 4)

	records, err := e.GetXXent(context.Background(), &cursor, 10)
	require.NoError(t, err)
	assert.Len(t, records, 4, "expired snapshot must be implicitly rebuilt against the latest persisted data")
}
