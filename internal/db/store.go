package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"t3-curator/internal/cases"
)

var ErrNotFound = errors.New("not found")

// Store is the sqlx-backed persistence layer for cases, evaluations and
// evaluation batches.
type Store struct {
	DB *sqlx.DB
}

func NewStore(dbx *sqlx.DB) *Store { return &Store{DB: dbx} }

// --- cases ---

func toRow(c *cases.Case) (*CaseRow, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	vars, err := json.Marshal(c.Variables)
	if err != nil {
		return nil, err
	}
	row := &CaseRow{
		ID:              c.ID,
		PearlLevel:      string(c.Level()),
		Scenario:        c.Scenario,
		Claim:           c.Claim(),
		Label:           string(c.Label()),
		IsAmbiguous:     c.IsAmbiguous,
		Variables:       vars,
		TrapType:        c.TrapType,
		CausalStructure: c.CausalStructure,
		KeyInsight:      c.KeyInsight,
		GoldRationale:   c.GoldRationale,
		WiseRefusal:     c.WiseRefusal,
		Author:          c.Provenance.Author,
		Validator:       c.Provenance.Validator,
		Dataset:         c.Provenance.Dataset,
		SourceCaseID:    c.Provenance.SourceCaseID,
		Difficulty:      c.Provenance.Difficulty,
		LLMGenerated:    c.Provenance.LLMGenerated,
		Verified:        c.Provenance.Verified,
	}
	if c.Ambiguity != nil {
		row.HiddenQuestion = c.Ambiguity.HiddenQuestion
		answers, err := json.Marshal(map[string]string{
			"answer_if_true":  c.Ambiguity.AnswerIfTrue,
			"answer_if_false": c.Ambiguity.AnswerIfFalse,
		})
		if err != nil {
			return nil, err
		}
		row.ConditionalAnswers = answers
	}
	return row, nil
}

func fromRow(r *CaseRow) (*cases.Case, error) {
	c := &cases.Case{
		ID:              r.ID,
		Scenario:        r.Scenario,
		TrapType:        r.TrapType,
		CausalStructure: r.CausalStructure,
		KeyInsight:      r.KeyInsight,
		GoldRationale:   r.GoldRationale,
		WiseRefusal:     r.WiseRefusal,
		IsAmbiguous:     r.IsAmbiguous,
		Provenance: cases.Provenance{
			Author:       r.Author,
			Validator:    r.Validator,
			Dataset:      r.Dataset,
			SourceCaseID: r.SourceCaseID,
			Difficulty:   r.Difficulty,
			LLMGenerated: r.LLMGenerated,
			Verified:     r.Verified,
			CreatedAt:    r.CreatedAt,
			UpdatedAt:    r.UpdatedAt,
		},
	}
	if len(r.Variables) > 0 {
		if err := json.Unmarshal(r.Variables, &c.Variables); err != nil {
			return nil, fmt.Errorf("case %s variables: %w", r.ID, err)
		}
	}
	if r.IsAmbiguous {
		var answers map[string]string
		if len(r.ConditionalAnswers) > 0 {
			if err := json.Unmarshal(r.ConditionalAnswers, &answers); err != nil {
				return nil, fmt.Errorf("case %s conditional answers: %w", r.ID, err)
			}
		}
		c.Ambiguity = &cases.Ambiguity{
			HiddenQuestion: r.HiddenQuestion,
			AnswerIfTrue:   answers["answer_if_true"],
			AnswerIfFalse:  answers["answer_if_false"],
		}
	}
	switch cases.PearlLevel(r.PearlLevel) {
	case cases.L1:
		c.Assoc = &cases.Association{Claim: r.Claim, Label: cases.Label(r.Label)}
	case cases.L2:
		c.Interv = &cases.Intervention{Claim: r.Claim}
	case cases.L3:
		c.Counter = &cases.Counterfactual{Claim: r.Claim, Label: cases.Label(r.Label)}
	default:
		return nil, fmt.Errorf("case %s: unknown pearl level %q", r.ID, r.PearlLevel)
	}
	return c, nil
}

func (s *Store) InsertCase(ctx context.Context, c *cases.Case) error {
	row, err := toRow(c)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
		insert into cases(
			id, pearl_level, scenario, claim, label, is_ambiguous, variables,
			trap_type, causal_structure, key_insight, gold_rationale, wise_refusal,
			hidden_question, conditional_answers,
			author, validator, dataset, source_case_id, difficulty, llm_generated, verified
		) values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		row.ID, row.PearlLevel, row.Scenario, row.Claim, row.Label, row.IsAmbiguous, row.Variables,
		row.TrapType, row.CausalStructure, row.KeyInsight, row.GoldRationale, row.WiseRefusal,
		row.HiddenQuestion, row.ConditionalAnswers,
		row.Author, row.Validator, row.Dataset, row.SourceCaseID, row.Difficulty, row.LLMGenerated, row.Verified,
	)
	return err
}

func (s *Store) GetCase(ctx context.Context, id string) (*cases.Case, error) {
	var row CaseRow
	if err := s.DB.GetContext(ctx, &row, `select * from cases where id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fromRow(&row)
}

// CaseFilter narrows case listings; zero values mean "no constraint".
type CaseFilter struct {
	Level    cases.PearlLevel
	Dataset  string
	Verified *bool
}

func (f CaseFilter) where() (string, []any) {
	clause := `where 1=1`
	var args []any
	if f.Level != "" {
		args = append(args, string(f.Level))
		clause += fmt.Sprintf(" and pearl_level=$%d", len(args))
	}
	if f.Dataset != "" {
		args = append(args, f.Dataset)
		clause += fmt.Sprintf(" and dataset=$%d", len(args))
	}
	if f.Verified != nil {
		args = append(args, *f.Verified)
		clause += fmt.Sprintf(" and verified=$%d", len(args))
	}
	return clause, args
}

func (s *Store) ListCases(ctx context.Context, f CaseFilter) ([]*cases.Case, error) {
	clause, args := f.where()
	var rows []CaseRow
	if err := s.DB.SelectContext(ctx, &rows, `select * from cases `+clause+` order by created_at`, args...); err != nil {
		return nil, err
	}
	out := make([]*cases.Case, 0, len(rows))
	for i := range rows {
		c, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) ListCaseIDs(ctx context.Context, f CaseFilter) ([]string, error) {
	clause, args := f.where()
	var ids []string
	if err := s.DB.SelectContext(ctx, &ids, `select id from cases `+clause+` order by created_at`, args...); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) SetCaseVerified(ctx context.Context, id, validator string) error {
	res, err := s.DB.ExecContext(ctx,
		`update cases set verified=true, validator=$2, updated_at=now() where id=$1`, id, validator)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- evaluations ---

func (s *Store) InsertEvaluation(ctx context.Context, e *Evaluation) error {
	_, err := s.DB.ExecContext(ctx, `
		insert into evaluations(
			id, case_id, batch_id, category_scores, category_notes,
			total_score, overall_verdict, priority_level, rubric_version, model
		) values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.CaseID, e.BatchID, e.CategoryScores, e.CategoryNotes,
		e.TotalScore, e.OverallVerdict, e.PriorityLevel, e.RubricVersion, e.Model,
	)
	return err
}

func (s *Store) ListEvaluations(ctx context.Context, batchID string) ([]Evaluation, error) {
	var out []Evaluation
	err := s.DB.SelectContext(ctx, &out,
		`select * from evaluations where batch_id=$1 order by created_at`, batchID)
	return out, err
}

// EvaluatedCaseIDs returns the set of case ids already scored in a batch,
// used to make a re-enqueued batch resumable without double-scoring.
func (s *Store) EvaluatedCaseIDs(ctx context.Context, batchID string) (map[string]bool, error) {
	var ids []string
	if err := s.DB.SelectContext(ctx, &ids,
		`select case_id from evaluations where batch_id=$1`, batchID); err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// --- batches ---

func (s *Store) CreateBatch(ctx context.Context, id string, caseIDs []string) error {
	raw, err := json.Marshal(caseIDs)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx,
		`insert into evaluation_batches(id, status, total_count, completed_count, case_ids)
		 values($1,$2,$3,0,$4)`,
		id, BatchPending, len(caseIDs), raw)
	return err
}

func (s *Store) GetBatch(ctx context.Context, id string) (*EvaluationBatch, error) {
	var b EvaluationBatch
	if err := s.DB.GetContext(ctx, &b, `select * from evaluation_batches where id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) BatchCaseIDs(b *EvaluationBatch) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(b.CaseIDs, &ids); err != nil {
		return nil, fmt.Errorf("batch %s case ids: %w", b.ID, err)
	}
	return ids, nil
}

func (s *Store) MarkBatchRunning(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx,
		`update evaluation_batches set status=$2, updated_at=now() where id=$1`, id, BatchRunning)
	return err
}

func (s *Store) MarkBatchCompleted(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx,
		`update evaluation_batches set status=$2, updated_at=now() where id=$1`, id, BatchCompleted)
	return err
}

func (s *Store) MarkBatchFailed(ctx context.Context, id, msg string) error {
	_, err := s.DB.ExecContext(ctx,
		`update evaluation_batches set status=$2, error=$3, updated_at=now() where id=$1`, id, BatchFailed, msg)
	return err
}

// IncrementCompleted bumps the progress counter by n in a single statement,
// so pollers never read a torn value.
func (s *Store) IncrementCompleted(ctx context.Context, id string, n int) error {
	_, err := s.DB.ExecContext(ctx,
		`update evaluation_batches set completed_count=completed_count+$2, updated_at=now() where id=$1`, id, n)
	return err
}

// SetCompleted pins the counter to an absolute value; used when resuming a
// batch that already has evaluations persisted.
func (s *Store) SetCompleted(ctx context.Context, id string, n int) error {
	_, err := s.DB.ExecContext(ctx,
		`update evaluation_batches set completed_count=$2, updated_at=now() where id=$1`, id, n)
	return err
}
