// Package gen produces LLM-drafted candidate cases. Generated cases enter
// the pool unverified and unvalidated; the evaluation pipeline and a human
// validator decide their fate.
package gen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"t3-curator/internal/cases"
	"t3-curator/internal/schemas"
	"t3-curator/internal/scorer"
)

const maxPerRequest = 10

// CaseSink inserts validated cases; *db.Store satisfies it.
type CaseSink interface {
	InsertCase(ctx context.Context, c *cases.Case) error
}

type Generator struct {
	LLM   scorer.Scorer
	Store CaseSink
	Log   *zap.Logger
}

// Generate asks the LLM for candidate cases and persists the ones that pass
// validation. Invalid drafts are counted, not fatal: drafting is cheap and
// the pool only ever takes well-formed records.
func (g *Generator) Generate(ctx context.Context, req schemas.GenerateRequest) ([]*cases.Case, int, error) {
	level := cases.PearlLevel(req.PearlLevel)
	if level != cases.L1 && level != cases.L2 && level != cases.L3 {
		return nil, 0, fmt.Errorf("unknown pearl level %q", req.PearlLevel)
	}
	count := req.Count
	if count <= 0 {
		count = 3
	}
	if count > maxPerRequest {
		count = maxPerRequest
	}

	text, err := g.LLM.Score(ctx, buildGenerationPrompt(level, req.Domain, req.TrapType, count))
	if err != nil {
		return nil, 0, fmt.Errorf("generate cases: %w", err)
	}

	drafts := parseDrafts(text)
	created := make([]*cases.Case, 0, len(drafts))
	skipped := 0
	for i := range drafts {
		drafts[i].PearlLevel = string(level)
		drafts[i].Author = req.Author
		drafts[i].Dataset = req.Dataset
		c, err := drafts[i].ToCase()
		if err == nil {
			c.ID = uuid.NewString()
			c.Provenance.LLMGenerated = true
			err = g.Store.InsertCase(ctx, c)
		}
		if err != nil {
			skipped++
			if g.Log != nil {
				g.Log.Warn("dropping generated draft", zap.Int("index", i), zap.Error(err))
			}
			continue
		}
		created = append(created, c)
	}
	return created, skipped, nil
}

// parseDrafts pulls a JSON array of flat cases out of free-form model text.
// Anything unparseable yields an empty slice.
func parseDrafts(text string) []schemas.CaseIn {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end <= start {
		return nil
	}
	var drafts []schemas.CaseIn
	if err := json.Unmarshal([]byte(text[start:end+1]), &drafts); err != nil {
		return nil
	}
	return drafts
}

func buildGenerationPrompt(level cases.PearlLevel, domain, trapType string, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Draft %d candidate %s cases for a causal-reasoning benchmark.\n", count, level)
	if domain != "" {
		fmt.Fprintf(&b, "Domain: %s\n", domain)
	}
	if trapType != "" {
		fmt.Fprintf(&b, "Target trap code: %s\n", trapType)
	}
	switch level {
	case cases.L1:
		b.WriteString("Each case states an observed association and a claim; label YES, NO or AMBIGUOUS.\n")
	case cases.L2:
		b.WriteString("Each case is a deliberate intervention trap; label is always NO and the case must carry a hidden_question with answer_if_true/answer_if_false.\n")
	case cases.L3:
		b.WriteString("Each case states a counterfactual_claim; label VALID, INVALID or CONDITIONAL.\n")
	}
	b.WriteString(`Reply with only a JSON array. Each element:
{"scenario": ..., "claim": ..., "counterfactual_claim": ..., "label": ...,
 "variables": {"x": ..., "y": ..., "z": [...]}, "trap_type": ...,
 "causal_structure": ..., "key_insight": ..., "gold_rationale": ...,
 "wise_refusal": ..., "hidden_question": ..., "answer_if_true": ...,
 "answer_if_false": ..., "difficulty": "Easy"|"Medium"|"Hard"}
Omit fields that do not apply to the level. The z field is always an array.
`)
	return b.String()
}
