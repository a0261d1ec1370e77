// Seeds the vector store from a JSON file of candidate CV fragments.
//
// Usage: go run ./cmd/seed -file candidates.json
//
// The file holds an array of records:
//
//	[{"candidate_id": "...", "text": "...", "metadata": {"NAME": "...", ...}}]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"cv-search-be/internal/config"
	"cv-search-be/internal/repository/implementation"
	"cv-search-be/pkg/database"
	"cv-search-be/pkg/embedding"
	"cv-search-be/pkg/vectorstore"
	"cv-search-be/pkg/vectorstore/chromem"

	"github.com/google/uuid"
)

type seedRecord struct {
	CandidateID string                 `json:"candidate_id"`
	Text        string                 `json:"text"`
	Metadata    map[string]interface{} `json:"metadata"`
}

func main() {
	filePath := flag.String("file", "candidates.json", "path to the candidate fragments JSON file")
	batchSize := flag.Int("batch", 50, "number of fragments per upsert batch")
	flag.Parse()

	cfg := config.Load()

	raw, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatalf("Error: failed to read %s: %v", *filePath, err)
	}

	var records []seedRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		log.Fatalf("Error: failed to parse %s: %v", *filePath, err)
	}
	log.Printf("Loaded %d fragments from %s", len(records), *filePath)

	var embedder embedding.Provider
	if cfg.Ai.EmbeddingProvider == "ollama" {
		embedder = embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaEmbedModel)
	} else {
		embedder = embedding.NewGeminiProvider(cfg.Ai.GeminiAPIKey)
	}

	var store vectorstore.Store
	if cfg.Database.Connection != "" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			log.Fatalf("Error: failed to connect to database: %v", err)
		}
		store = implementation.NewCvVectorStore(implementation.NewCvEmbeddingRepository(db))
	} else {
		path := os.Getenv("CHROMEM_PATH")
		if path == "" {
			path = "./data/cv-index"
		}
		chromemStore, err := chromem.NewPersistentStore(path, "cv-fragments", true)
		if err != nil {
			log.Fatalf("Error: failed to open chromem store: %v", err)
		}
		store = chromemStore
	}

	ctx := context.Background()
	batch := make([]vectorstore.Document, 0, *batchSize)
	seeded := 0

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := store.Upsert(ctx, batch); err != nil {
			log.Fatalf("Error: upsert failed after %d fragments: %v", seeded, err)
		}
		seeded += len(batch)
		log.Printf("Seeded %d/%d fragments", seeded, len(records))
		batch = batch[:0]
	}

	for _, rec := range records {
		if rec.Text == "" {
			continue
		}
		res, err := embedder.Generate(rec.Text, "RETRIEVAL_DOCUMENT")
		if err != nil {
			log.Printf("Warn: embedding failed for candidate %s, skipping: %v", rec.CandidateID, err)
			continue
		}
		batch = append(batch, vectorstore.Document{
			ID:          uuid.NewString(),
			CandidateID: rec.CandidateID,
			Text:        rec.Text,
			Embedding:   res.Embedding.Values,
			Metadata:    rec.Metadata,
		})
		if len(batch) >= *batchSize {
			flush()
		}
	}
	flush()

	log.Printf("Done. %d fragments seeded.", seeded)
}
