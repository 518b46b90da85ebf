// convmemd serves the conversational memory engine over HTTP.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dialogkit/convmem/backuplog"
	"github.com/dialogkit/convmem/config"
	"github.com/dialogkit/convmem/httpapi"
	"github.com/dialogkit/convmem/memory"
	chromemstore "github.com/dialogkit/convmem/memory/store/chromem"
	"github.com/dialogkit/convmem/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		log.Fatalf("embedder init failed: %v", err)
	}

	store, err := chromemstore.NewPersistent(cfg.DataDir, embedder)
	if err != nil {
		log.Fatalf("vector store init failed: %v", err)
	}
	defer store.Close()

	m := metrics.New(cfg.MetricsNamespace)

	engineOpts := []memory.Option{
		memory.WithMetrics(m),
		memory.WithCountryPrefix(cfg.CountryPrefix),
		memory.WithTimeBudget(cfg.SearchTimeBudget),
		memory.WithAttemptTimeout(cfg.AttemptTimeout),
		memory.WithResultCacheSize(cfg.ResultCacheSize),
	}
	if cfg.BackupEnabled {
		backup, err := backuplog.Open(cfg.DataDir)
		if err != nil {
			log.Printf("[MAIN] backup log unavailable, continuing without: %v", err)
		} else {
			defer backup.Close()
			engineOpts = append(engineOpts, memory.WithBackupLog(backup))
		}
	}

	engine, err := memory.NewEngine(store, engineOpts...)
	if err != nil {
		log.Fatalf("engine init failed: %v", err)
	}

	srv := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: httpapi.New(engine).Router(),
	}

	go func() {
		log.Printf("[MAIN] listening on %s", cfg.BindAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("[MAIN] shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[MAIN] shutdown error: %v", err)
	}
}
