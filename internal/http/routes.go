package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	m "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"

	"t3-curator/internal/cases"
	"t3-curator/internal/db"
	"t3-curator/internal/export"
	"t3-curator/internal/gen"
	"t3-curator/internal/schemas"
	"t3-curator/internal/storage"
	"t3-curator/internal/worker"
)

type Server struct {
	DB      *sqlx.DB
	Store   *db.Store
	Asynq   *asynq.Client
	Gen     *gen.Generator
	Export  *export.Exporter
	Storage *storage.Client
}

func NewServer(dbx *sqlx.DB, asq *asynq.Client, generator *gen.Generator, exporter *export.Exporter, store *storage.Client) *http.Server {
	s := &Server{
		DB:      dbx,
		Store:   db.NewStore(dbx),
		Asynq:   asq,
		Gen:     generator,
		Export:  exporter,
		Storage: store,
	}
	r := chi.NewRouter()
	r.Use(m.RequestID, m.RealIP, m.Logger, m.Recoverer)

	// Admin/API-token protected
	r.Group(func(r chi.Router) {
		r.Use(RequireAPIToken)
		r.Post("/cases", s.createCase)
		r.Get("/cases", s.listCases)
		r.Get("/cases/{id}", s.getCase)
		r.Post("/cases/{id}/verify", s.verifyCase)
		r.Post("/cases/generate", s.generateCases)
		r.Post("/batches", s.createBatch)
		r.Post("/export", s.exportDataset)
		r.Get("/reports", s.getReport)
	})

	// Polling surface: read-only, safe to hit often
	r.Get("/batches/{id}", s.getBatch)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbx.Ping(); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"status":"db error"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return &http.Server{Addr: ":8000", Handler: r}
}

type errResp struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) createCase(w http.ResponseWriter, r *http.Request) {
	var in schemas.CaseIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, 400, errResp{err.Error()})
		return
	}
	c, err := in.ToCase()
	if err != nil {
		writeJSON(w, 400, errResp{err.Error()})
		return
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	// InsertCase runs Validate; a broken invariant never reaches the table.
	if err := s.Store.InsertCase(r.Context(), c); err != nil {
		writeJSON(w, 400, errResp{err.Error()})
		return
	}
	writeJSON(w, 201, schemas.FromCase(c))
}

func (s *Server) getCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.Store.GetCase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeJSON(w, 404, errResp{"not found"})
			return
		}
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	writeJSON(w, 200, schemas.FromCase(c))
}

func (s *Server) listCases(w http.ResponseWriter, r *http.Request) {
	f := db.CaseFilter{
		Level:   cases.PearlLevel(r.URL.Query().Get("pearl_level")),
		Dataset: r.URL.Query().Get("dataset"),
	}
	switch r.URL.Query().Get("verified") {
	case "true":
		v := true
		f.Verified = &v
	case "false":
		v := false
		f.Verified = &v
	}
	cs, err := s.Store.ListCases(r.Context(), f)
	if err != nil {
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	out := make([]schemas.CaseOut, len(cs))
	for i, c := range cs {
		out[i] = schemas.FromCase(c)
	}
	writeJSON(w, 200, out)
}

func (s *Server) verifyCase(w http.ResponseWriter, r *http.Request) {
	var req schemas.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, 400, errResp{err.Error()})
		return
	}
	err := s.Store.SetCaseVerified(r.Context(), chi.URLParam(r, "id"), req.Validator)
	if errors.Is(err, db.ErrNotFound) {
		writeJSON(w, 404, errResp{"not found"})
		return
	}
	if err != nil {
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	writeJSON(w, 200, map[string]string{"status": "verified"})
}

func (s *Server) generateCases(w http.ResponseWriter, r *http.Request) {
	var req schemas.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, 400, errResp{err.Error()})
		return
	}
	created, skipped, err := s.Gen.Generate(r.Context(), req)
	if err != nil {
		writeJSON(w, 502, errResp{err.Error()})
		return
	}
	resp := schemas.GenerateResponse{Skipped: skipped}
	for _, c := range created {
		resp.Created = append(resp.Created, schemas.FromCase(c))
	}
	writeJSON(w, 200, resp)
}

// createBatch registers the batch and enqueues it; the response returns
// immediately with the batch id while the worker does the scoring.
func (s *Server) createBatch(w http.ResponseWriter, r *http.Request) {
	var req schemas.CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, 400, errResp{err.Error()})
		return
	}
	ids := req.CaseIDs
	if len(ids) == 0 {
		f := db.CaseFilter{
			Level:   cases.PearlLevel(req.PearlLevel),
			Dataset: req.Dataset,
		}
		if req.UnverifiedOnly {
			v := false
			f.Verified = &v
		}
		var err error
		ids, err = s.Store.ListCaseIDs(r.Context(), f)
		if err != nil {
			writeJSON(w, 500, errResp{err.Error()})
			return
		}
	}
	if len(ids) == 0 {
		writeJSON(w, 400, errResp{"no cases match"})
		return
	}

	batchID := uuid.NewString()
	if err := s.Store.CreateBatch(r.Context(), batchID, ids); err != nil {
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	task := asynq.NewTask(worker.TaskEvaluateBatch, []byte(batchID))
	if _, err := s.Asynq.Enqueue(task, asynq.MaxRetry(0)); err != nil {
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	writeJSON(w, 202, schemas.CreateBatchResponse{BatchID: batchID, TotalCount: len(ids)})
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, err := s.Store.GetBatch(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeJSON(w, 404, errResp{"not found"})
			return
		}
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	out := schemas.BatchOut{
		BatchID:        b.ID,
		Status:         b.Status,
		TotalCount:     b.TotalCount,
		CompletedCount: b.CompletedCount,
		Error:          b.Error,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
	if b.Status == db.BatchCompleted || b.Status == db.BatchFailed {
		evs, err := s.Store.ListEvaluations(r.Context(), id)
		if err != nil {
			writeJSON(w, 500, errResp{err.Error()})
			return
		}
		for _, ev := range evs {
			eo := schemas.EvaluationOut{
				ID:             ev.ID,
				CaseID:         ev.CaseID,
				TotalScore:     ev.TotalScore,
				OverallVerdict: ev.OverallVerdict,
				PriorityLevel:  ev.PriorityLevel,
				RubricVersion:  ev.RubricVersion,
				Model:          ev.Model,
				CreatedAt:      ev.CreatedAt,
			}
			_ = json.Unmarshal(ev.CategoryScores, &eo.CategoryScores)
			_ = json.Unmarshal(ev.CategoryNotes, &eo.CategoryNotes)
			out.Evaluations = append(out.Evaluations, eo)
		}
	}
	writeJSON(w, 200, out)
}

// getReport fetches a stored batch report or dataset export by its s3:// ref.
func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("ref")
	if ref == "" {
		writeJSON(w, 400, errResp{"ref query parameter is required"})
		return
	}
	doc, err := s.Storage.GetJSON(r.Context(), ref)
	if err != nil {
		writeJSON(w, 404, errResp{err.Error()})
		return
	}
	writeJSON(w, 200, doc)
}

func (s *Server) exportDataset(w http.ResponseWriter, r *http.Request) {
	var req schemas.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, 400, errResp{err.Error()})
		return
	}
	ref, count, err := s.Export.Export(r.Context(), req.Dataset)
	if err != nil {
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	writeJSON(w, 200, schemas.ExportResponse{Ref: ref, Count: count})
}
