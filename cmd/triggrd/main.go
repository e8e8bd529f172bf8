// Command triggrd runs the node: the chain ingester, the trigger router,
// the document store, and the HTTP/WebSocket gateway, in one process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/algorealm/triggr/cfg"
	"github.com/algorealm/triggr/chain"
	"github.com/algorealm/triggr/doc"
	"github.com/algorealm/triggr/hub"
	"github.com/algorealm/triggr/kv"
	triggrlog "github.com/algorealm/triggr/log"
	"github.com/algorealm/triggr/reg"
	"github.com/algorealm/triggr/srv"
	"github.com/algorealm/triggr/trig"
)

const usage = `usage: triggrd [-config=<path>]

Runs the node: chain ingester(s), trigger router, document store, and the
HTTP/WebSocket gateway, until SIGTERM.
`

var configFlag = flag.String("config", "", "path to the node's YAML config file")

// Exit codes, per spec §6: 0 clean shutdown, 1 configuration error, 2
// fatal storage error, 3 unrecoverable bind failure.
const (
	exitOK       = 0
	exitConfig   = 1
	exitStorage  = 2
	exitBindFail = 3
)

func main() {
	flag.Usage = func() { fmt.Print(usage) }
	flag.Parse()

	c, err := cfg.Load(*configFlag)
	if err != nil {
		log.Printf("config error: %v", err)
		os.Exit(exitConfig)
	}

	logger, err := triggrlog.NewZap(c.Log.Level, c.Log.File)
	if err != nil {
		log.Printf("logger init error: %v", err)
		os.Exit(exitConfig)
	}

	os.Exit(run(c, logger))
}

func run(c *cfg.Config, logger triggrlog.Logger) int {
	db, err := kv.Open(c.Store.Dir)
	if err != nil {
		logger.Crit("kv open failed", "cause", err)
		return exitStorage
	}
	defer db.Close()

	bus := hub.NewBus()
	docs := doc.New(db, &hub.ChangePublisher{Bus: bus})
	projects := reg.NewStore(db)
	cache := reg.NewCache()
	triggers := trig.NewStore(db)
	index := trig.NewIndex()

	allTriggers, err := listAllTriggers(projects, triggers)
	if err != nil {
		logger.Crit("loading triggers failed", "cause", err)
		return exitStorage
	}
	index.Rebuild(allTriggers, triggers, schemaLookup(projects, cache), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	intake := make(chan chain.DecodedEvent, 256)
	router, err := trig.NewRouter(index, triggers, docs, logger, intake, 8)
	if err != nil {
		logger.Crit("router init failed", "cause", err)
		return exitStorage
	}
	go router.Run()
	defer router.Stop()

	sched, err := gocron.NewScheduler()
	if err != nil {
		logger.Crit("scheduler init failed", "cause", err)
		return exitStorage
	}
	ingesters := startIngesters(ctx, c, projects, cache, intake, logger)
	registerHousekeeping(sched, index, projects, triggers, cache, ingesters, logger)
	sched.Start()
	defer sched.Shutdown()

	gw := &srv.Server{
		Projects:       projects,
		Cache:          cache,
		Docs:           docs,
		Triggers:       triggers,
		Index:          index,
		Bus:            bus,
		Log:            logger,
		RequestTimeout: c.Server.RequestTimeout,
		HubQueueDepth:  c.Hub.SubscriberQueue,
	}
	httpSrv := &http.Server{Addr: c.Server.Addr, Handler: gw.Routes()}

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errCh:
		logger.Crit("gateway bind failed", "addr", c.Server.Addr, "cause", err)
		cancel()
		return exitBindFail
	case <-sigCh:
		logger.Debug("received shutdown signal, draining")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown timed out", "cause", err)
	}
	return exitOK
}

func listAllTriggers(projects *reg.Store, triggers *trig.Store) ([]trig.Trigger, error) {
	var out []trig.Trigger
	ps, err := projects.ListAllProjects()
	if err != nil {
		return nil, err
	}
	for _, p := range ps {
		ts, err := triggers.List(p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ts...)
	}
	return out, nil
}

// schemaLookup resolves a project's schema for trig.Index.Rebuild,
// keyed by project id (triggers are already keyed by project id, not
// contract address).
func schemaLookup(projects *reg.Store, cache *reg.Cache) func(string) (reg.Schema, bool) {
	return func(projectID string) (reg.Schema, bool) {
		if s, ok := cache.Get(projectID); ok {
			return s, true
		}
		p, err := projects.GetProject(projectID)
		if err != nil {
			return reg.Schema{}, false
		}
		cache.Set(p.ID, p.Schema)
		return p.Schema, true
	}
}

// startIngesters launches one chain.Ingester per configured chain. Its
// lookup resolves a contract address to its owning project and schema by
// scanning the registry, and refreshes that project's entry in cache.
func startIngesters(ctx context.Context, c *cfg.Config, projects *reg.Store, cache *reg.Cache, intake chan chain.DecodedEvent, logger triggrlog.Logger) []*chain.Ingester {
	lookup := func(contractAddress string) (string, reg.Schema, bool) {
		ps, err := projects.ListAllProjects()
		if err != nil {
			return "", reg.Schema{}, false
		}
		for _, p := range ps {
			if p.ContractAddress == contractAddress {
				cache.Set(p.ID, p.Schema)
				return p.ID, p.Schema, true
			}
		}
		return "", reg.Schema{}, false
	}

	var ingesters []*chain.Ingester
	for _, cc := range c.Chains {
		in := &chain.Ingester{
			Endpoint:        cc.Endpoint,
			ContractAddress: cc.ContractAddress,
			Lookup:          lookup,
			Out:             intake,
			Log:             logger.With("chain", cc.Name),
		}
		go in.Run(ctx)
		ingesters = append(ingesters, in)
	}
	return ingesters
}

// registerHousekeeping wires the scheduled sweeps that supplement C6/C7's
// ad hoc error handling with periodic consistency checks (spec's
// gocron-backed housekeeping, see SPEC_FULL.md).
func registerHousekeeping(sched gocron.Scheduler, index *trig.Index, projects *reg.Store, triggers *trig.Store, cache *reg.Cache, ingesters []*chain.Ingester, logger triggrlog.Logger) {
	if _, err := sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			all, err := listAllTriggers(projects, triggers)
			if err != nil {
				logger.Error("trigger index sweep: list failed", "cause", err)
				return
			}
			index.Rebuild(all, triggers, schemaLookup(projects, cache), logger)
		}),
		gocron.WithName("trigger_index_rebuild_sweep"),
	); err != nil {
		logger.Error("registering trigger index sweep failed", "cause", err)
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			for _, in := range ingesters {
				if in.Stale(2 * time.Minute) {
					logger.Error("chain ingester stale, forcing resubscribe", "endpoint", in.Endpoint)
					in.ForceResubscribe()
				}
			}
		}),
		gocron.WithName("ingester_liveness_sweep"),
	); err != nil {
		logger.Error("registering ingester liveness sweep failed", "cause", err)
	}
}
