package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xordi/modguard/internal/infrastructure/config"
	"github.com/xordi/modguard/internal/server"
)

func main() {
	port := flag.String("port", "", "Server port (overrides MODGUARD_PORT)")
	policyPath := flag.String("policy", "", "Capability policy YAML (overrides MODGUARD_POLICY_PATH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *policyPath != "" {
		cfg.Policy.Path = *policyPath
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Load configured modules before accepting traffic; failures are
	// retried lazily on first use.
	preloadCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	srv.Preload(preloadCtx)
	cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	}
}
