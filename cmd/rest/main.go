package main

import (
	"context"
	"log"

	"cv-search-be/internal/bootstrap"
	"cv-search-be/internal/config"
	"cv-search-be/internal/server"
	"cv-search-be/internal/tracer"
	"cv-search-be/pkg/database"

	"gorm.io/gorm"
)

func main() {
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	cfg := config.Load()

	// The database is optional: without a DSN the service runs on the
	// embedded vector store and in-process memory.
	var gormDB *gorm.DB
	if cfg.Database.Connection != "" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		gormDB = db
	} else {
		log.Println("DB_CONNECTION_STRING not set, running without Postgres")
	}

	container := bootstrap.NewContainer(gormDB, cfg)
	defer func() {
		if container.Publisher != nil {
			container.Publisher.Close()
		}
		if container.Subscriber != nil {
			container.Subscriber.Close()
		}
		_ = container.Logger.Sync()
	}()

	srv := server.New(cfg, container)

	log.Fatal(srv.Run())
}
