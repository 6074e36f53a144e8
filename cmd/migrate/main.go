package main

import (
	"log"

	"coverage-rag-be/internal/config"
	"coverage-rag-be/internal/model"
	"coverage-rag-be/pkg/database"
)

// Applies the schema. Run once against a fresh database, safe to re-run.
func main() {
	cfg := config.Load()

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// pgvector must exist before the document_chunks embedding column
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		log.Fatalf("Failed to create vector extension: %v", err)
	}

	if err := db.AutoMigrate(
		&model.ChatSession{},
		&model.Exchange{},
		&model.DocumentChunk{},
	); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migration completed successfully")
}
