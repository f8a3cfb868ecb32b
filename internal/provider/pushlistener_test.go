package provider_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nssresponder/responderd/internal/provider"
	"github.com/nssresponder/responderd/internal/provider/inprocbus"
)

func TestListenInitgrUpdatesDispatchesToHandler(t *testing.T) {
	bus := inprocbus.New(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var received []provider.UpdateInitgr
	err := provider.ListenInitgrUpdates(ctx, bus, func(ctx context.Context, update provider.UpdateInitgr) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, update)
	})
	require.NoError(t, err)

	bus.Push(provider.UpdateInitgr{Name: "carol@EXAMPLE", Domain: "EXAMPLE", Groups: []uint32{1}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)
}
