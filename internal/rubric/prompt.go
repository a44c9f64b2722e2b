package rubric

import (
	"fmt"
	"strings"

	"t3-curator/internal/cases"
)

// BuildPrompt renders the scoring instructions for one case. The prompt is
// self-contained: every case field the scorer needs is embedded, and the
// reply format pins the exact category keys for the case's level.
func BuildPrompt(def *Definition, c *cases.Case) (string, error) {
	level := c.Level()
	lr, err := def.Level(level)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are reviewing a candidate %s case for a causal-reasoning benchmark.\n", level)
	fmt.Fprintf(&b, "Level focus: %s\n\n", lr.Description)

	b.WriteString("CASE UNDER REVIEW\n")
	fmt.Fprintf(&b, "Scenario: %s\n", c.Scenario)
	claimField := "Claim"
	if level == cases.L3 {
		claimField = "Counterfactual claim"
	}
	fmt.Fprintf(&b, "%s: %s\n", claimField, c.Claim())
	fmt.Fprintf(&b, "Asserted label: %s\n", c.Label())
	fmt.Fprintf(&b, "Trap code: %s\n", c.TrapType)
	fmt.Fprintf(&b, "Exposure (X): %s\n", c.Variables.Exposure)
	fmt.Fprintf(&b, "Outcome (Y): %s\n", c.Variables.Outcome)
	fmt.Fprintf(&b, "Context (Z): %s\n", strings.Join(c.Variables.Context, "; "))
	if c.CausalStructure != "" {
		fmt.Fprintf(&b, "Causal structure: %s\n", c.CausalStructure)
	}
	if c.KeyInsight != "" {
		fmt.Fprintf(&b, "Key insight: %s\n", c.KeyInsight)
	}
	if c.GoldRationale != "" {
		fmt.Fprintf(&b, "Gold rationale: %s\n", c.GoldRationale)
	}
	if c.WiseRefusal != "" {
		fmt.Fprintf(&b, "Wise refusal: %s\n", c.WiseRefusal)
	}
	if c.IsAmbiguous && c.Ambiguity != nil {
		fmt.Fprintf(&b, "Hidden question: %s\n", c.Ambiguity.HiddenQuestion)
		fmt.Fprintf(&b, "Answer if true: %s\n", c.Ambiguity.AnswerIfTrue)
		fmt.Fprintf(&b, "Answer if false: %s\n", c.Ambiguity.AnswerIfFalse)
	}

	fmt.Fprintf(&b, "\nRUBRIC (%s, %.0f points total)\n", def.Version, def.PointTotal)
	keys := make([]string, 0, len(lr.Categories))
	for _, cat := range lr.Categories {
		keys = append(keys, cat.Key)
		fmt.Fprintf(&b, "- %s (0-%s pt): %s\n", cat.Key, trimPoints(cat.Points), cat.Guide)
	}

	b.WriteString("\nScore every category. Reply with only a JSON object, no prose, shaped exactly as:\n")
	fmt.Fprintf(&b, "{\"scores\": {%s}, \"notes\": {<same keys, one short justification each>}, \"total_score\": <number>}\n",
		exampleScoreKeys(keys))
	return b.String(), nil
}

func trimPoints(p float64) string {
	if p == float64(int(p)) {
		return fmt.Sprintf("%d", int(p))
	}
	return fmt.Sprintf("%g", p)
}

func exampleScoreKeys(keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%q: <number>", k)
	}
	return strings.Join(parts, ", ")
}
