// Command server runs a standalone crustydb instance: it loads
// configuration, assembles the buffer pool and catalog manager, and
// serves the wire protocol over TCP until it receives a shutdown signal
// or a client-issued "\shutdown".
//
// Grounded on teacher cmd/server/main.go's flag.String-driven config path
// plus goroutine-per-listener startup and log.Fatalf on unrecoverable
// startup errors, adapted from the teacher's HTTP/gRPC dual listener to
// this project's single TCP wire listener.
package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/crustylabs/crustydb/internal/bufferpool"
	"github.com/crustylabs/crustydb/internal/catalog"
	"github.com/crustylabs/crustydb/internal/config"
	"github.com/crustylabs/crustydb/internal/container"
	"github.com/crustylabs/crustydb/internal/logging"
	"github.com/crustylabs/crustydb/internal/server"
)

var flagConfig = flag.String("config", "", "path to a YAML config file (defaults built in if empty)")

func main() {
	flag.Parse()

	cfg := config.Default()
	if *flagConfig != "" {
		loaded, err := config.Load(*flagConfig)
		if err != nil {
			logging.New(nil, "server").Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	log := logging.New(os.Stderr, "server")

	cc := container.NewCatalog()
	pool := bufferpool.New(cc, cfg.BufferPool.Capacity)
	mgr := catalog.NewManager(pool, cfg.StringPool.Capacity, cfg.PlanCache.Capacity)

	if cfg.Maintenance.StatsFile != "" {
		if err := mgr.Stats.LoadFromFile(cfg.Maintenance.StatsFile); err != nil {
			log.Printf("no prior stats loaded from %s: %v", cfg.Maintenance.StatsFile, err)
		}
	}

	srv := server.New(pool, mgr, cfg, log)
	if err := srv.StartMaintenance(); err != nil {
		log.Fatalf("start maintenance scheduler: %v", err)
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		log.Fatalf("listen on %s: %v", cfg.Listen, err)
	}
	log.Printf("listening on %s", cfg.Listen)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Printf("shutting down")
		srv.Shutdown(ln)
	}()

	if err := srv.Serve(ln); err != nil {
		log.Printf("serve error: %v", err)
	}

	srv.StopMaintenance()
	if cfg.Maintenance.StatsFile != "" {
		if err := mgr.Stats.SaveToFile(cfg.Maintenance.StatsFile); err != nil {
			log.Printf("persist stats on shutdown: %v", err)
		}
	}
	if err := pool.FlushAll(); err != nil {
		log.Printf("flush buffer pool on shutdown: %v", err)
	}
}
