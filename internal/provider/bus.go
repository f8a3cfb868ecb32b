// Package provider implements the async collaborator boundary of
// spec.md §4.8 and §6.2: request coalescing per (kind, key), and the
// push channel by which a provider reports completed initgroups
// refreshes without being asked.
package provider

import "context"

// RequestKind is the account_request kind enum of spec.md §6.2.
type RequestKind int

const (
	KindUser RequestKind = iota + 1
	KindGroup
	KindInitgroups
	KindNetgroup
	KindService
	KindSecID
	KindUserAndGroup
)

// AccountRequest is one account_request call (spec.md §6.2): a typed
// refresh for a name, numeric id, or SID key within a domain.
type AccountRequest struct {
	Domain    string
	Kind      RequestKind
	Key       string
	FastReply bool
}

// AccountResult is account_request's reply: a major/minor error pair
// plus an opaque message payload the caller (internal/pipeline) decodes
// into sysdb records — this package never looks inside Msg.
type AccountResult struct {
	MajorErr int
	MinorErr int
	Msg      []byte
}

// UpdateInitgr is the update_initgr push of spec.md §6.2: a successful
// initgroups refresh and the group set it produced.
type UpdateInitgr struct {
	Name   string
	Domain string
	Groups []uint32
}

// Bus is the transport-level contract a provider collaborator exposes.
// Two implementations exist: inprocbus (default, same-process channel,
// used in tests and single-binary deployments) and kafkabus (for a
// provider running as a separate service).
type Bus interface {
	AccountRequest(ctx context.Context, req AccountRequest) (AccountResult, error)
	DomainsRefresh(ctx context.Context, hintDomain string) error
	// Subscribe delivers update_initgr pushes until ctx is cancelled,
	// at which point the channel is closed.
	Subscribe(ctx context.Context) (<-chan UpdateInitgr, error)
}

// ErrBusDisconnected is returned by Adapter.Refresh/RefreshDomains,
// wrapping whatever error the Bus's AccountRequest/DomainsRefresh
// returned; per spec.md §4.8 this is always retryable.
type ErrBusDisconnected struct{ Err error }

func (e *ErrBusDisconnected) Error() string { return "provider: bus disconnected: " + e.Err.Error() }
func (e *ErrBusDisconnected) Unwrap() error { return e.Err }
