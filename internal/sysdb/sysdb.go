package sysdb

import "context"

// PersistentCache is the authoritative on-disk store contract of
// spec.md §6.4. >1 result from a name/id lookup is a corruption signal
// the pipeline treats as not-found (spec.md §4.6.1 step 4); this
// contract returns every matching row and lets the caller apply that
// policy, rather than collapsing the ambiguity itself.
type PersistentCache interface {
	GetPwNam(ctx context.Context, domain, name string) ([]*Record, error)
	GetPwUID(ctx context.Context, domain string, uid uint32) ([]*Record, error)
	GetGrNam(ctx context.Context, domain, name string) ([]*Record, error)
	GetGrGID(ctx context.Context, domain string, gid uint32) ([]*Record, error)
	Initgroups(ctx context.Context, domain, name string) (*Record, []*Record, error)

	// GetServByName and GetServByPort implement NSS_GETSERVBYNAME/
	// NSS_GETSERVBYPORT (recovered in §12). proto, when non-empty,
	// narrows the match to that protocol; empty matches any.
	GetServByName(ctx context.Context, domain, name, proto string) ([]*Record, error)
	GetServByPort(ctx context.Context, domain string, port uint16, proto string) ([]*Record, error)

	EnumPwEnt(ctx context.Context, domain string) ([]*Record, error)
	EnumGrEnt(ctx context.Context, domain string) ([]*Record, error)
	EnumServEnt(ctx context.Context, domain string) ([]*Record, error)

	SearchUserByUID(ctx context.Context, domain string, uid uint32) (*Record, error)
	SearchUserByName(ctx context.Context, domain, name string) (*Record, error)
	SearchGroupByGID(ctx context.Context, domain string, gid uint32) (*Record, error)
	SearchGroupByName(ctx context.Context, domain, name string) (*Record, error)
	SearchObjectBySID(ctx context.Context, sid string) (*Record, error)

	StoreUser(ctx context.Context, domain string, rec *Record) error
	StoreGroup(ctx context.Context, domain string, rec *Record) error
	StoreService(ctx context.Context, domain string, rec *Record) error

	BeginTransaction(ctx context.Context) (Transaction, error)
}

// Transaction brackets a batch of Store* calls so a failed provider
// refresh doesn't leave a partially-applied record set visible to
// concurrent lookups (spec.md §6.4's transaction_{start,commit,cancel}).
type Transaction interface {
	Commit(ctx context.Context) error
	Cancel(ctx context.Context) error
}
