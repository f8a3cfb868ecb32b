package provider

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/openimsdk/tools/log"
)

// Adapter is Component H: it tracks in-flight refreshes per (kind, key)
// and guarantees the bus sees at most one outstanding account_request
// for a given key, fanning the single result out to every caller parked
// on it (spec.md §4.8). golang.org/x/sync/singleflight.Group is this
// package's parking map: each Do call is one parked request, and the
// group's own de-duplication hands the one result to every parked
// caller at once, in no particular order.
type Adapter struct {
	bus Bus
	sf  singleflight.Group

	domainSF singleflight.Group
}

// NewAdapter wraps a Bus with request coalescing.
func NewAdapter(bus Bus) *Adapter {
	return &Adapter{bus: bus}
}

func coalesceKey(req AccountRequest) string {
	return fmt.Sprintf("%s|%d|%s", req.Domain, req.Kind, req.Key)
}

// Refresh issues (or joins) a coalesced account_request. On bus failure
// it returns ErrBusDisconnected; the pipeline falls back to any prior
// cached record per spec.md §4.6.1 step 6.
func (a *Adapter) Refresh(ctx context.Context, req AccountRequest) (AccountResult, error) {
	key := coalesceKey(req)
	v, err, _ := a.sf.Do(key, func() (any, error) {
		res, err := a.bus.AccountRequest(ctx, req)
		if err != nil {
			log.ZWarn(ctx, "provider account_request failed", err, "domain", req.Domain, "kind", req.Kind, "key", req.Key)
			return AccountResult{}, &ErrBusDisconnected{Err: err}
		}
		return res, nil
	})
	if err != nil {
		return AccountResult{}, err
	}
	return v.(AccountResult), nil
}

// RefreshDomains coalesces domains_refresh calls sharing the same
// hint domain (spec.md §4.6.1 step 1's "request a domain-list refresh").
func (a *Adapter) RefreshDomains(ctx context.Context, hintDomain string) error {
	_, err, _ := a.domainSF.Do(hintDomain, func() (any, error) {
		if err := a.bus.DomainsRefresh(ctx, hintDomain); err != nil {
			return nil, &ErrBusDisconnected{Err: err}
		}
		return nil, nil
	})
	return err
}

// Subscribe passes through to the underlying bus; push delivery isn't
// coalesced, every subscriber sees every push.
func (a *Adapter) Subscribe(ctx context.Context) (<-chan UpdateInitgr, error) {
	return a.bus.Subscribe(ctx)
}
