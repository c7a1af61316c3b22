package main

import (
	"context"
	"log"

	"docintel-backend/internal/bootstrap"
	"docintel-backend/internal/shared/config"
	"docintel-backend/internal/shared/server"
)

func main() {
	cfg := config.Load()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}

	evictCtx, stopEviction := context.WithCancel(context.Background())
	defer stopEviction()
	go app.OperationsService.RunEviction(evictCtx, cfg.EvictionInterval)

	addr := server.Addr(cfg.Port)
	log.Printf("Starting API server on %s", addr)

	if err := app.Router.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
