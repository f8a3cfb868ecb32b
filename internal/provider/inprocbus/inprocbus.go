// Package inprocbus is the default provider.Bus implementation: a
// same-process handler function stands in for the provider
// collaborator, used for tests and single-binary deployments where the
// provider logic runs in-process rather than as a separate service.
package inprocbus

import (
	"context"
	"sync"

	"github.com/nssresponder/responderd/internal/provider"
)

// Handler answers one account_request; the domainsRefresh function
// passed to New answers one domains_refresh. Both are synchronous — inprocbus has no transport to
// be asynchronous over.
type Handler func(ctx context.Context, req provider.AccountRequest) (provider.AccountResult, error)

// Bus is an in-memory provider.Bus. Pushes are delivered to every
// channel returned by Subscribe, buffered so a slow subscriber can't
// block Push.
type Bus struct {
	handler        Handler
	domainsRefresh func(ctx context.Context, hint string) error

	mu   sync.Mutex
	subs []chan provider.UpdateInitgr
}

// New builds an in-process bus. handler and domainsRefresh may be nil,
// in which case calls return an error as if the provider never
// responded — useful for exercising the bus-disconnected path in tests.
func New(handler Handler, domainsRefresh func(ctx context.Context, hint string) error) *Bus {
	return &Bus{handler: handler, domainsRefresh: domainsRefresh}
}

func (b *Bus) AccountRequest(ctx context.Context, req provider.AccountRequest) (provider.AccountResult, error) {
	if b.handler == nil {
		return provider.AccountResult{}, errNoProvider
	}
	return b.handler(ctx, req)
}

func (b *Bus) DomainsRefresh(ctx context.Context, hintDomain string) error {
	if b.domainsRefresh == nil {
		return errNoProvider
	}
	return b.domainsRefresh(ctx, hintDomain)
}

func (b *Bus) Subscribe(ctx context.Context) (<-chan provider.UpdateInitgr, error) {
	ch := make(chan provider.UpdateInitgr, 16)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s == ch {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

// Push delivers an update_initgr notification to every live subscriber.
func (b *Bus) Push(update provider.UpdateInitgr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- update:
		default:
		}
	}
}

type errString string

func (e errString) Error() string { return string(e) }

const errNoProvider = errString("inprocbus: no provider handler configured")
