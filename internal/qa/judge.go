// Package qa runs the rubric evaluation pipeline: single-case scoring and
// batch orchestration over the external scorer.
package qa

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"t3-curator/internal/cases"
	"t3-curator/internal/db"
	"t3-curator/internal/rubric"
	"t3-curator/internal/scorer"
)

// Evaluator scores one case end to end: rubric prompt, external scorer,
// payload normalization, total reconciliation, verdict policy.
type Evaluator struct {
	Scorer scorer.Scorer
	Rubric *rubric.Definition
	Policy rubric.Policy
	Model  string
}

// Evaluate produces an Evaluation for a case. A scorer transport error is a
// hard failure (no evaluation is produced; the caller decides what to do
// with the case). A reply that arrives but cannot be parsed is a soft
// failure: it scores zero categories and rejects by policy.
func (e *Evaluator) Evaluate(ctx context.Context, c *cases.Case) (*db.Evaluation, error) {
	prompt, err := rubric.BuildPrompt(e.Rubric, c)
	if err != nil {
		return nil, fmt.Errorf("build prompt for case %s: %w", c.ID, err)
	}
	text, err := e.Scorer.Score(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("score case %s: %w", c.ID, err)
	}
	return e.FromReply(c, text), nil
}

// FromReply turns raw scorer text into an Evaluation record. It never fails:
// garbage text degrades to an empty score map, a zero total and a REJECTED
// verdict.
func (e *Evaluator) FromReply(c *cases.Case, text string) *db.Evaluation {
	payload := rubric.ParseScorePayload(text)
	total := rubric.ReconcileTotal(payload.Scores, payload.ReportedTotal)
	decision := e.Policy.Decide(c.Level(), total)

	scores, _ := json.Marshal(payload.Scores)
	notes, _ := json.Marshal(payload.Notes)
	return &db.Evaluation{
		ID:             uuid.NewString(),
		CaseID:         c.ID,
		CategoryScores: scores,
		CategoryNotes:  notes,
		TotalScore:     total,
		OverallVerdict: string(decision.Verdict),
		PriorityLevel:  decision.Priority,
		RubricVersion:  e.Rubric.Version,
		Model:          e.Model,
	}
}
