package main

import (
	"context"
	"log"

	"coverage-rag-be/internal/bootstrap"
	"coverage-rag-be/internal/config"
	"coverage-rag-be/internal/server"
	"coverage-rag-be/internal/tracer"
	"coverage-rag-be/pkg/database"
)

func main() {
	cfg := config.Load()

	shutdownTracer := tracer.InitTracer()
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Warning: tracer shutdown error: %v", err)
		}
	}()

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	container := bootstrap.NewContainer(db, cfg)

	if err := container.ConsumerService.Consume(context.Background()); err != nil {
		log.Fatalf("Failed to start event consumer: %v", err)
	}

	srv := server.New(cfg, container)
	if err := srv.Run(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
