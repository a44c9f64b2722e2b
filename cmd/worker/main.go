package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"t3-curator/internal/db"
	"t3-curator/internal/qa"
	"t3-curator/internal/rubric"
	"t3-curator/internal/scorer"
	"t3-curator/internal/storage"
	"t3-curator/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx := context.Background()
	dbase := db.MustOpen()

	s3c, err := storage.New(ctx)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}
	llm, err := scorer.NewGemini(ctx, os.Getenv("GEMINI_API_KEY"), os.Getenv("LLM_MODEL"))
	if err != nil {
		logger.Fatal("scorer", zap.Error(err))
	}
	bulk := scorer.NewGeminiBatch(os.Getenv("GEMINI_API_KEY"), os.Getenv("LLM_MODEL"))

	def := rubric.MustLoad()
	runner := &qa.Runner{
		Store: db.NewStore(dbase),
		Eval: &qa.Evaluator{
			Scorer: llm,
			Rubric: def,
			Policy: def.UnifiedPolicy(),
			Model:  llm.Model(),
		},
		Bulk:   bulk,
		Report: s3c,
		Log:    logger,
	}
	if err := worker.Run(os.Getenv("REDIS_ADDR"), runner, logger); err != nil {
		logger.Fatal("worker", zap.Error(err))
	}
}
