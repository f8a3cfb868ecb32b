package provider

import (
	"context"

	"github.com/openimsdk/tools/errs"
	"github.com/openimsdk/tools/log"
)

// InitgrHandler reacts to one update_initgr push, applying spec.md
// §4.6.4's coherence rule to the persistent and shared-memory caches.
type InitgrHandler func(ctx context.Context, update UpdateInitgr)

// ListenInitgrUpdates subscribes to bus and dispatches every push to
// handle until ctx is cancelled. Grounded on
// pkg/rpccache/subscriber.go's "range over a subscription channel,
// recover from panics in the delivery path, log and continue past
// malformed/unexpected messages" shape.
func ListenInitgrUpdates(ctx context.Context, bus Bus, handle InitgrHandler) error {
	ch, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.ZError(ctx, "initgr update listener panic", errs.ErrPanic(r))
			}
		}()
		for update := range ch {
			log.ZDebug(ctx, "initgr update received", "name", update.Name, "domain", update.Domain, "groups", update.Groups)
			handle(ctx, update)
		}
	}()
	return nil
}
