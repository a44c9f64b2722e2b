// Package schemas holds the wire-level request/response shapes of the admin
// API, including the flat case form used both by the API and by legacy
// record ingestion.
package schemas

import (
	"fmt"
	"time"

	"t3-curator/internal/cases"
)

// CaseIn is the flat case shape accepted on the wire. It matches the legacy
// one-wide-record schema (claim vs counterfactual_claim, optional
// is_ambiguous) and converts into the tagged domain form.
type CaseIn struct {
	ID                  string          `json:"id,omitempty"`
	PearlLevel          string          `json:"pearl_level"`
	Scenario            string          `json:"scenario"`
	Claim               string          `json:"claim,omitempty"`
	CounterfactualClaim string          `json:"counterfactual_claim,omitempty"`
	Label               string          `json:"label"`
	IsAmbiguous         *bool           `json:"is_ambiguous,omitempty"`
	Variables           cases.Variables `json:"variables"`
	TrapType            string          `json:"trap_type"`
	CausalStructure     string          `json:"causal_structure,omitempty"`
	KeyInsight          string          `json:"key_insight,omitempty"`
	GoldRationale       string          `json:"gold_rationale,omitempty"`
	WiseRefusal         string          `json:"wise_refusal,omitempty"`
	HiddenQuestion      string          `json:"hidden_question,omitempty"`
	AnswerIfTrue        string          `json:"answer_if_true,omitempty"`
	AnswerIfFalse       string          `json:"answer_if_false,omitempty"`
	Author              string          `json:"author,omitempty"`
	Validator           string          `json:"validator,omitempty"`
	Dataset             string          `json:"dataset,omitempty"`
	SourceCaseID        string          `json:"source_case_id,omitempty"`
	Difficulty          string          `json:"difficulty,omitempty"`
}

// ToCase converts the flat form into the tagged domain case. A missing
// is_ambiguous is derived from the label and level (legacy records predate
// the flag); an explicit value that contradicts them is left for Validate to
// reject.
func (in *CaseIn) ToCase() (*cases.Case, error) {
	level := cases.PearlLevel(in.PearlLevel)
	label := cases.Label(in.Label)

	c := &cases.Case{
		ID:              in.ID,
		Scenario:        in.Scenario,
		Variables:       in.Variables,
		TrapType:        in.TrapType,
		CausalStructure: in.CausalStructure,
		KeyInsight:      in.KeyInsight,
		GoldRationale:   in.GoldRationale,
		WiseRefusal:     in.WiseRefusal,
		Provenance: cases.Provenance{
			Author:       in.Author,
			Validator:    in.Validator,
			Dataset:      in.Dataset,
			SourceCaseID: in.SourceCaseID,
			Difficulty:   in.Difficulty,
		},
	}
	if c.Variables.Context == nil {
		c.Variables.Context = cases.ContextSet{}
	}

	switch level {
	case cases.L1:
		c.Assoc = &cases.Association{Claim: in.Claim, Label: label}
	case cases.L2:
		c.Interv = &cases.Intervention{Claim: in.Claim}
	case cases.L3:
		claim := in.CounterfactualClaim
		if claim == "" {
			claim = in.Claim
		}
		c.Counter = &cases.Counterfactual{Claim: claim, Label: label}
	default:
		return nil, fmt.Errorf("unknown pearl level %q", in.PearlLevel)
	}

	if in.IsAmbiguous != nil {
		c.IsAmbiguous = *in.IsAmbiguous
	} else {
		c.IsAmbiguous = level == cases.L2 ||
			label == cases.LabelAmbiguous || label == cases.LabelConditional
	}
	if in.HiddenQuestion != "" || in.AnswerIfTrue != "" || in.AnswerIfFalse != "" {
		c.Ambiguity = &cases.Ambiguity{
			HiddenQuestion: in.HiddenQuestion,
			AnswerIfTrue:   in.AnswerIfTrue,
			AnswerIfFalse:  in.AnswerIfFalse,
		}
	}
	return c, nil
}

// CaseOut is the flat case shape returned on the wire.
type CaseOut struct {
	CaseIn
	Verified     bool      `json:"verified"`
	LLMGenerated bool      `json:"llm_generated"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func FromCase(c *cases.Case) CaseOut {
	ambiguous := c.IsAmbiguous
	out := CaseOut{
		CaseIn: CaseIn{
			ID:              c.ID,
			PearlLevel:      string(c.Level()),
			Scenario:        c.Scenario,
			Label:           string(c.Label()),
			IsAmbiguous:     &ambiguous,
			Variables:       c.Variables,
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
		},
		Verified:     c.Provenance.Verified,
		LLMGenerated: c.Provenance.LLMGenerated,
		CreatedAt:    c.Provenance.CreatedAt,
		UpdatedAt:    c.Provenance.UpdatedAt,
	}
	if c.Level() == cases.L3 {
		out.CounterfactualClaim = c.Claim()
	} else {
		out.Claim = c.Claim()
	}
	if c.Ambiguity != nil {
		out.HiddenQuestion = c.Ambiguity.HiddenQuestion
		out.AnswerIfTrue = c.Ambiguity.AnswerIfTrue
		out.AnswerIfFalse = c.Ambiguity.AnswerIfFalse
	}
	return out
}

type CreateBatchRequest struct {
	CaseIDs        []string `json:"case_ids,omitempty"`
	PearlLevel     string   `json:"pearl_level,omitempty"`
	Dataset        string   `json:"dataset,omitempty"`
	UnverifiedOnly bool     `json:"unverified_only,omitempty"`
}

type CreateBatchResponse struct {
	BatchID    string `json:"batch_id"`
	TotalCount int    `json:"total_count"`
}

type EvaluationOut struct {
	ID             string             `json:"id"`
	CaseID         string             `json:"case_id"`
	CategoryScores map[string]float64 `json:"category_scores"`
	CategoryNotes  map[string]string  `json:"category_notes"`
	TotalScore     float64            `json:"total_score"`
	OverallVerdict string             `json:"overall_verdict"`
	PriorityLevel  int                `json:"priority_level"`
	RubricVersion  string             `json:"rubric_version"`
	Model          string             `json:"model"`
	CreatedAt      time.Time          `json:"created_at"`
}

// BatchOut is the polling surface: always status + counters, evaluations
// only once the batch is terminal.
type BatchOut struct {
	BatchID        string          `json:"batch_id"`
	Status         string          `json:"status"`
	TotalCount     int             `json:"total_count"`
	CompletedCount int             `json:"completed_count"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Evaluations    []EvaluationOut `json:"evaluations,omitempty"`
}

type GenerateRequest struct {
	PearlLevel string `json:"pearl_level"`
	Domain     string `json:"domain,omitempty"`
	TrapType   string `json:"trap_type,omitempty"`
	Count      int    `json:"count,omitempty"`
	Author     string `json:"author,omitempty"`
	Dataset    string `json:"dataset,omitempty"`
}

type GenerateResponse struct {
	Created []CaseOut `json:"created"`
	Skipped int       `json:"skipped"`
}

type VerifyRequest struct {
	Validator string `json:"validator"`
}

type ExportRequest struct {
	Dataset string `json:"dataset,omitempty"`
}

type ExportResponse struct {
	Ref   string `json:"ref"`
	Count int    `json:"count"`
}
