package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"t3-curator/internal/qa"
)

// TaskEvaluateBatch carries an evaluation batch id as its payload.
const TaskEvaluateBatch = "evaluate_batch"

type Server struct {
	Runner *qa.Runner
	Log    *zap.Logger
}

func (s *Server) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskEvaluateBatch, s.handleEvaluateBatch)
	return mux
}

func (s *Server) handleEvaluateBatch(ctx context.Context, t *asynq.Task) error {
	batchID := string(t.Payload())
	s.Log.Info("evaluation batch dequeued", zap.String("batch_id", batchID))

	if err := s.Runner.Run(ctx, batchID); err != nil {
		// The runner already persisted the failed status; returning nil
		// keeps asynq from retrying a batch that pollers can see failed.
		s.Log.Error("evaluation batch failed", zap.String("batch_id", batchID), zap.Error(err))
	}
	return nil
}

func Run(addr string, runner *qa.Runner, logger *zap.Logger) error {
	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: addr}, asynq.Config{Concurrency: 5})
	w := &Server{Runner: runner, Log: logger}
	return srv.Run(w.mux())
}
