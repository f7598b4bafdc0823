// scrivend - the workspace assistant daemon
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrivenlab/scriven/app"
	"github.com/scrivenlab/scriven/pkg/config"
	"github.com/scrivenlab/scriven/server"
)

func main() {
	configPath := flag.String("config", "", "path to config YAML (default: $SCRIVEN_DATA_DIR/config.yaml)")
	addr := flag.String("addr", "", "listen address override")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[ERROR] load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("[ERROR] startup: %v", err)
	}
	defer a.Close()

	srv := server.New(cfg.Server, a.Controller, a.Store)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		log.Fatalf("[ERROR] server: %v", err)
	case <-ctx.Done():
		log.Printf("[Server] shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] shutdown: %v", err)
		}
	}
}
