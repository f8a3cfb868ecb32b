// Command responder is the name-service responder daemon's entry
// point: load configuration, wire the responder context, start the
// metrics endpoint and periodic sweeps, and serve until signalled to
// stop. The persistent-cache backend and transport framing are external
// collaborators this core only specifies the contract for (spec.md
// §1); see newPersistentCache below for the seam a concrete deployment
// plugs its backend into.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"

	"github.com/openimsdk/tools/log"

	"github.com/nssresponder/responderd/internal/config"
	"github.com/nssresponder/responderd/internal/responder"
	"github.com/nssresponder/responderd/internal/sysdb"
)

// newPersistentCache is the integration seam a concrete deployment
// wires its sysdb.PersistentCache implementation into. This core
// treats the persistent cache as an external collaborator (spec.md §1)
// and never constructs one itself; left unset, startup fails fast with
// a clear message instead of silently running against no backend.
var newPersistentCache func(cfg *config.Config) (sysdb.PersistentCache, error)

func main() {
	configPath := flag.String("config", "/etc/nssresponder/config.yaml", "path to the responder's configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath, "NSSRESPONDER")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if newPersistentCache == nil {
		return fmt.Errorf("no persistent cache backend wired: set newPersistentCache before calling run")
	}
	db, err := newPersistentCache(cfg)
	if err != nil {
		return fmt.Errorf("open persistent cache: %w", err)
	}

	r, err := responder.New(cfg, db, nil)
	if err != nil {
		return fmt.Errorf("build responder: %w", err)
	}
	defer r.Close()

	if err := r.ListenProviderUpdates(ctx); err != nil {
		return fmt.Errorf("subscribe to provider updates: %w", err)
	}

	go func() {
		if err := r.RunBus(ctx); err != nil {
			log.ZWarn(ctx, "provider bus exited", err)
		}
	}()

	if cfg.Metrics.Enable {
		go func() {
			if err := r.Metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				log.ZWarn(ctx, "metrics server exited", err, "addr", cfg.Metrics.Addr)
			}
		}()
	}

	c := cron.New()
	sweepSpec := fmt.Sprintf("@every %s", cfg.MemcacheSweep)
	if _, err := c.AddFunc(sweepSpec, func() { r.SweepMemcache(ctx) }); err != nil {
		return fmt.Errorf("schedule memcache sweep: %w", err)
	}
	c.Start()
	defer c.Stop()

	log.ZDebug(ctx, "responder started", "socket", cfg.SocketPath, "domains", len(cfg.Domains))

	<-ctx.Done()
	log.ZDebug(ctx, "responder shutting down")
	return nil
}
