package bootstrap

import (
	"log"
	"os"
	"time"

	"cv-search-be/internal/config"
	"cv-search-be/internal/controller"
	"cv-search-be/internal/handler"
	"cv-search-be/internal/pkg/logger"
	"cv-search-be/internal/repository/implementation"
	"cv-search-be/internal/service"
	"cv-search-be/pkg/embedding"
	"cv-search-be/pkg/llm"
	"cv-search-be/pkg/llm/mistral"
	"cv-search-be/pkg/llm/ollama"
	pkgnats "cv-search-be/pkg/nats"
	"cv-search-be/pkg/rag/memory"
	"cv-search-be/pkg/rag/pipeline"
	"cv-search-be/pkg/vectorstore"
	"cv-search-be/pkg/vectorstore/chromem"

	"gorm.io/gorm"
)

type Container struct {
	QueryController  controller.IQueryController
	HealthController controller.IHealthController

	AuditHandler *handler.AuditHandler
	Logger       logger.ILogger
	Publisher    *pkgnats.Publisher
	Subscriber   *pkgnats.Subscriber
}

// NewContainer wires the full dependency graph. db may be nil, in which case
// retrieval falls back to the embedded chromem store and memory to the
// in-process cache.
func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// Embedding provider
	var embeddingProvider embedding.Provider
	if cfg.Ai.EmbeddingProvider == "ollama" {
		embeddingProvider = embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaEmbedModel)
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.OllamaEmbedModel)
	} else {
		embeddingProvider = embedding.NewGeminiProvider(cfg.Ai.GeminiAPIKey)
		log.Printf("[INFO] Using Embedding Provider: GEMINI")
	}

	// LLM provider
	var llmProvider llm.Provider
	if cfg.Ai.LLMProvider == "mistral" {
		llmProvider = mistral.NewMistralProvider(cfg.Ai.MistralAPIKey, cfg.Ai.LLMModel)
	} else {
		llmProvider = ollama.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.LLMModel)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// Vector store: pgvector when a database is configured, embedded
	// chromem otherwise.
	var store vectorstore.Store
	vectorBackend := "chromem"
	if db != nil {
		cvRepo := implementation.NewCvEmbeddingRepository(db)
		store = implementation.NewCvVectorStore(cvRepo)
		vectorBackend = "pgvector"
	} else {
		path := os.Getenv("CHROMEM_PATH")
		if path == "" {
			path = "./data/cv-index"
		}
		chromemStore, err := chromem.NewPersistentStore(path, "cv-fragments", true)
		if err != nil {
			log.Fatalf("[FATAL] Failed to open chromem store: %v", err)
		}
		store = chromemStore
	}
	log.Printf("[INFO] Using Vector Backend: %s", vectorBackend)

	// Conversation memory
	var memoryStore memory.Store
	memoryBackend := "cache"
	if db != nil && cfg.Memory.Backend == "postgres" {
		memoryStore = implementation.NewMemoryRepository(db)
		memoryBackend = "postgres"
	} else {
		memoryStore = memory.NewCacheStore(time.Duration(cfg.Memory.TTLMinutes) * time.Minute)
	}
	memoryManager := memory.NewManager(memoryStore, llmProvider)

	// NATS audit events
	natsPub, err := pkgnats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := pkgnats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

	auditLogger := logger.NewIsolatedLogger("logs/audit.log")
	auditHandler := handler.NewAuditHandler(natsSub, auditLogger)
	if err := auditHandler.Start(); err != nil {
		log.Printf("[WARN] Failed to start audit consumer: %v", err)
	}

	// Query pipeline
	opts := []pipeline.Option{
		pipeline.WithMemory(memoryManager),
		pipeline.WithLogger(sysLogger),
	}
	if natsPub != nil {
		opts = append(opts, pipeline.WithPublisher(natsPub))
	}
	ragPipeline := pipeline.New(llmProvider, embeddingProvider, store, opts...)

	queryService := service.NewQueryService(ragPipeline, memoryManager, sysLogger)

	return &Container{
		QueryController:  controller.NewQueryController(queryService),
		HealthController: controller.NewHealthController(vectorBackend, memoryBackend),
		AuditHandler:     auditHandler,
		Logger:           sysLogger,
		Publisher:        natsPub,
		Subscriber:       natsSub,
	}
}
