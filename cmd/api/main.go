package main

import (
	"context"
	"log"
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"t3-curator/internal/db"
	"t3-curator/internal/export"
	"t3-curator/internal/gen"
	httpSrv "t3-curator/internal/http"
	"t3-curator/internal/migrations"
	"t3-curator/internal/scorer"
	"t3-curator/internal/storage"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	// Run embedded migrations (idempotent)
	migrations.Run()

	ctx := context.Background()
	dbase := db.MustOpen()
	store := db.NewStore(dbase)

	s3c, err := storage.New(ctx)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}
	llm, err := scorer.NewGemini(ctx, os.Getenv("GEMINI_API_KEY"), os.Getenv("LLM_MODEL"))
	if err != nil {
		logger.Fatal("scorer", zap.Error(err))
	}
	asq := asynq.NewClient(asynq.RedisClientOpt{Addr: os.Getenv("REDIS_ADDR")})

	generator := &gen.Generator{LLM: llm, Store: store, Log: logger}
	exporter := &export.Exporter{Source: store, Sink: s3c}

	srv := httpSrv.NewServer(dbase, asq, generator, exporter, s3c)
	logger.Info("api listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal("serve", zap.Error(err))
	}
}
