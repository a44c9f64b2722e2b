package qa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"t3-curator/internal/cases"
	"t3-curator/internal/db"
	"t3-curator/internal/rubric"
	"t3-curator/internal/scorer"
)

// BatchStore is the slice of persistence the runner needs. *db.Store
// satisfies it; tests use an in-memory fake.
type BatchStore interface {
	GetCase(ctx context.Context, id string) (*cases.Case, error)
	GetBatch(ctx context.Context, id string) (*db.EvaluationBatch, error)
	BatchCaseIDs(b *db.EvaluationBatch) ([]string, error)
	MarkBatchRunning(ctx context.Context, id string) error
	MarkBatchCompleted(ctx context.Context, id string) error
	MarkBatchFailed(ctx context.Context, id, msg string) error
	IncrementCompleted(ctx context.Context, id string, n int) error
	SetCompleted(ctx context.Context, id string, n int) error
	InsertEvaluation(ctx context.Context, e *db.Evaluation) error
	EvaluatedCaseIDs(ctx context.Context, batchID string) (map[string]bool, error)
	ListEvaluations(ctx context.Context, batchID string) ([]db.Evaluation, error)
}

// ReportSink receives the post-batch summary report. The S3 storage client
// satisfies it.
type ReportSink interface {
	PutJSON(ctx context.Context, v any) (string, error)
}

const (
	defaultSyncThreshold = 10
	defaultChunkSize     = 20
	defaultChunkPause    = 2 * time.Second
	defaultCaseDelay     = 250 * time.Millisecond
	defaultPollInterval  = 30 * time.Second
	defaultPollCeiling   = 24 * time.Hour
)

// Runner evaluates every case of a batch. Above SyncThreshold cases it
// submits bulk jobs in chunks of ChunkSize, strictly one chunk at a time;
// otherwise, and as a fallback when the provider rejects a bulk job for its
// token budget, it scores case by case.
type Runner struct {
	Store  BatchStore
	Eval   *Evaluator
	Bulk   scorer.BulkScorer // nil disables the bulk path entirely
	Report ReportSink        // nil disables the post-batch report
	Log    *zap.Logger

	SyncThreshold int
	ChunkSize     int
	ChunkPause    time.Duration
	CaseDelay     time.Duration
	PollInterval  time.Duration
	PollCeiling   time.Duration
}

func (r *Runner) syncThreshold() int {
	if r.SyncThreshold > 0 {
		return r.SyncThreshold
	}
	return defaultSyncThreshold
}

func (r *Runner) chunkSize() int {
	if r.ChunkSize > 0 {
		return r.ChunkSize
	}
	return defaultChunkSize
}

func (r *Runner) chunkPause() time.Duration {
	if r.ChunkPause > 0 {
		return r.ChunkPause
	}
	return defaultChunkPause
}

func (r *Runner) caseDelay() time.Duration {
	if r.CaseDelay > 0 {
		return r.CaseDelay
	}
	return defaultCaseDelay
}

func (r *Runner) pollInterval() time.Duration {
	if r.PollInterval > 0 {
		return r.PollInterval
	}
	return defaultPollInterval
}

func (r *Runner) pollCeiling() time.Duration {
	if r.PollCeiling > 0 {
		return r.PollCeiling
	}
	return defaultPollCeiling
}

func (r *Runner) logger() *zap.Logger {
	if r.Log != nil {
		return r.Log
	}
	return zap.NewNop()
}

// Run drives a batch to a terminal state. Per-case problems are logged and
// absorbed; only batch-level faults (bulk job failures other than token
// limit, poll ceiling, unreadable batch row) mark the batch failed.
func (r *Runner) Run(ctx context.Context, batchID string) error {
	log := r.logger().With(zap.String("batch_id", batchID))

	batch, err := r.Store.GetBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load batch %s: %w", batchID, err)
	}
	// Mark running before anything can fail the batch, so the state machine
	// only ever walks pending -> running -> {completed | failed}.
	if err := r.Store.MarkBatchRunning(ctx, batchID); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	ids, err := r.Store.BatchCaseIDs(batch)
	if err != nil {
		return r.fail(ctx, log, batchID, err)
	}

	// Resume support: skip cases already scored in this batch and pin the
	// counter to match, so a re-enqueued batch never double-scores.
	done, err := r.Store.EvaluatedCaseIDs(ctx, batchID)
	if err != nil {
		return r.fail(ctx, log, batchID, err)
	}
	pending := ids[:0:0]
	for _, id := range ids {
		if !done[id] {
			pending = append(pending, id)
		}
	}
	if len(done) > 0 {
		if err := r.Store.SetCompleted(ctx, batchID, len(ids)-len(pending)); err != nil {
			log.Warn("reset completed count", zap.Error(err))
		}
	}
	log.Info("batch starting",
		zap.Int("total", len(ids)),
		zap.Int("pending", len(pending)),
		zap.Bool("bulk", r.Bulk != nil && len(pending) > r.syncThreshold()))

	if r.Bulk != nil && len(pending) > r.syncThreshold() {
		err = r.runBulk(ctx, log, batchID, pending)
	} else {
		err = r.runSync(ctx, log, batchID, pending)
	}
	if err != nil {
		return r.fail(ctx, log, batchID, err)
	}

	if err := r.Store.MarkBatchCompleted(ctx, batchID); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	log.Info("batch completed")

	// Best-effort: a report failure must not revert the completed status.
	r.generateReport(ctx, log, batchID, ids)
	return nil
}

func (r *Runner) fail(ctx context.Context, log *zap.Logger, batchID string, cause error) error {
	log.Error("batch failed", zap.Error(cause))
	if err := r.Store.MarkBatchFailed(ctx, batchID, cause.Error()); err != nil {
		log.Error("mark failed", zap.Error(err))
	}
	return cause
}

// runSync scores cases one at a time with a politeness delay between calls.
func (r *Runner) runSync(ctx context.Context, log *zap.Logger, batchID string, ids []string) error {
	for i, id := range ids {
		if i > 0 {
			if err := sleepCtx(ctx, r.caseDelay()); err != nil {
				return err
			}
		}
		r.evaluateOne(ctx, log, batchID, id)
		r.bump(ctx, log, batchID, 1)
	}
	return nil
}

// evaluateOne is the per-case isolation boundary: any error here is logged
// and swallowed so the rest of the batch keeps going.
func (r *Runner) evaluateOne(ctx context.Context, log *zap.Logger, batchID, caseID string) {
	c, err := r.Store.GetCase(ctx, caseID)
	if err != nil {
		log.Warn("load case", zap.String("case_id", caseID), zap.Error(err))
		return
	}
	ev, err := r.Eval.Evaluate(ctx, c)
	if err != nil {
		log.Warn("evaluate case", zap.String("case_id", caseID), zap.Error(err))
		return
	}
	ev.BatchID = batchID
	if err := r.Store.InsertEvaluation(ctx, ev); err != nil {
		log.Warn("persist evaluation", zap.String("case_id", caseID), zap.Error(err))
	}
}

// bump advances the progress counter and persists it immediately, so a
// poller mid-flight sees monotonic progress rather than one jump at the end.
func (r *Runner) bump(ctx context.Context, log *zap.Logger, batchID string, n int) {
	if n == 0 {
		return
	}
	if err := r.Store.IncrementCompleted(ctx, batchID, n); err != nil {
		log.Warn("increment progress", zap.Error(err))
	}
}

// runBulk submits the pending cases as sequential bulk chunks. Chunks are
// never in flight concurrently: they share the provider's capacity budget.
func (r *Runner) runBulk(ctx context.Context, log *zap.Logger, batchID string, ids []string) error {
	size := r.chunkSize()
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		if start > 0 {
			if err := sleepCtx(ctx, r.chunkPause()); err != nil {
				return err
			}
		}
		leftover, err := r.runChunk(ctx, log, batchID, ids[start:end])
		if err != nil {
			return err
		}
		if leftover != nil {
			// Token-limit rejection: finish this chunk's unscored cases and
			// everything after it synchronously.
			log.Warn("bulk capacity exceeded, switching batch to sync",
				zap.Int("remaining", len(leftover)+len(ids[end:])))
			return r.runSync(ctx, log, batchID, append(leftover, ids[end:]...))
		}
	}
	return nil
}

// runChunk runs one bulk job. It returns the chunk's still-unscored case ids
// when the provider rejected the job for its token budget (the fallback
// signal), or an error for any other bulk failure, which is fatal for the
// batch.
func (r *Runner) runChunk(ctx context.Context, log *zap.Logger, batchID string, ids []string) ([]string, error) {
	reqs := make([]scorer.BulkRequest, 0, len(ids))
	byID := make(map[string]*cases.Case, len(ids))
	skipped := 0
	for _, id := range ids {
		c, err := r.Store.GetCase(ctx, id)
		if err != nil {
			log.Warn("load case", zap.String("case_id", id), zap.Error(err))
			skipped++
			continue
		}
		prompt, err := rubric.BuildPrompt(r.Eval.Rubric, c)
		if err != nil {
			log.Warn("build prompt", zap.String("case_id", id), zap.Error(err))
			skipped++
			continue
		}
		byID[id] = c
		reqs = append(reqs, scorer.BulkRequest{ID: id, Prompt: prompt})
	}
	r.bump(ctx, log, batchID, skipped)
	if len(reqs) == 0 {
		return nil, nil
	}

	jobID, err := r.Bulk.Submit(ctx, reqs)
	if err != nil {
		if errors.Is(err, scorer.ErrTokenLimit) {
			pending := make([]string, len(reqs))
			for i, req := range reqs {
				pending[i] = req.ID
			}
			return pending, nil
		}
		return nil, fmt.Errorf("bulk submit: %w", err)
	}
	log.Info("bulk job submitted", zap.String("job_id", jobID), zap.Int("requests", len(reqs)))

	status, err := r.awaitJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if status != scorer.JobCompleted {
		return nil, fmt.Errorf("bulk job %s ended %s", jobID, status)
	}
	results, err := r.Bulk.Results(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("bulk results: %w", err)
	}

	// Results are matched by correlation id, never by position: the provider
	// may reorder or drop entries.
	byResult := make(map[string]scorer.BulkResult, len(results))
	for _, res := range results {
		byResult[res.ID] = res
	}
	for _, req := range reqs {
		res, ok := byResult[req.ID]
		switch {
		case !ok:
			log.Warn("bulk result missing", zap.String("case_id", req.ID))
		case res.Err != "":
			log.Warn("bulk result errored", zap.String("case_id", req.ID), zap.String("cause", res.Err))
		default:
			ev := r.Eval.FromReply(byID[req.ID], res.Text)
			ev.BatchID = batchID
			if err := r.Store.InsertEvaluation(ctx, ev); err != nil {
				log.Warn("persist evaluation", zap.String("case_id", req.ID), zap.Error(err))
			}
		}
		r.bump(ctx, log, batchID, 1)
	}
	return nil, nil
}

// awaitJob polls until the job is terminal or the wall-clock ceiling is hit.
// A job still running past the ceiling is abandoned and fails the batch.
func (r *Runner) awaitJob(ctx context.Context, jobID string) (scorer.JobStatus, error) {
	deadline := time.Now().Add(r.pollCeiling())
	for {
		status, err := r.Bulk.Status(ctx, jobID)
		if err != nil {
			return "", fmt.Errorf("bulk poll: %w", err)
		}
		if status.Terminal() {
			return status, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("bulk job %s not terminal after %s, abandoning", jobID, r.pollCeiling())
		}
		if err := sleepCtx(ctx, r.pollInterval()); err != nil {
			return "", err
		}
	}
}

func (r *Runner) generateReport(ctx context.Context, log *zap.Logger, batchID string, ids []string) {
	if r.Report == nil {
		return
	}
	evs, err := r.Store.ListEvaluations(ctx, batchID)
	if err != nil {
		log.Warn("report: list evaluations", zap.Error(err))
		return
	}
	cs := make([]*cases.Case, 0, len(ids))
	for _, id := range ids {
		c, err := r.Store.GetCase(ctx, id)
		if err != nil {
			log.Warn("report: load case", zap.String("case_id", id), zap.Error(err))
			continue
		}
		cs = append(cs, c)
	}
	ref, err := r.Report.PutJSON(ctx, BuildReport(batchID, cs, evs))
	if err != nil {
		log.Warn("report: store", zap.Error(err))
		return
	}
	log.Info("batch report stored", zap.String("ref", ref))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
