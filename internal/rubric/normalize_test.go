package rubric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScorePayloadNeverFails(t *testing.T) {
	for _, text := range []string{
		"", "null", "[]", `"a string"`, "total nonsense", "{broken json",
		"{}", `{"scores": null}`, `{"scores": [1,2,3]}`,
	} {
		p := ParseScorePayload(text)
		require.NotNil(t, p.Scores, "input %q", text)
		require.NotNil(t, p.Notes, "input %q", text)
		assert.Empty(t, p.Scores, "input %q", text)
	}
}

func TestParseScorePayloadHappyPath(t *testing.T) {
	p := ParseScorePayload(`{
		"scores": {"clarity": 1, "trapConstruction": "1.5", "Rationale Quality": 2},
		"notes": {"clarity": "fine", "trapConstruction": 3, "dropped": null},
		"total_score": 4.5
	}`)
	assert.Equal(t, map[string]float64{
		"clarity":           1,
		"trap_construction": 1.5,
		"rationale_quality": 2,
	}, p.Scores)
	assert.Equal(t, map[string]string{
		"clarity":           "fine",
		"trap_construction": "3",
	}, p.Notes)
	require.NotNil(t, p.ReportedTotal)
	assert.Equal(t, 4.5, *p.ReportedTotal)
}

func TestParseScorePayloadTolerantOfFencesAndProse(t *testing.T) {
	p := ParseScorePayload("Sure! Here is my assessment:\n```json\n{\"scores\": {\"clarity\": 0.5}, \"total\": 0.5}\n```\nHope that helps.")
	assert.Equal(t, map[string]float64{"clarity": 0.5}, p.Scores)
	require.NotNil(t, p.ReportedTotal)
	assert.Equal(t, 0.5, *p.ReportedTotal)
}

func TestParseScorePayloadFlatFallback(t *testing.T) {
	p := ParseScorePayload(`{"clarity": 1, "label_justification": 2, "overall": 3, "model": "x"}`)
	assert.Equal(t, map[string]float64{"clarity": 1, "label_justification": 2}, p.Scores)
	require.NotNil(t, p.ReportedTotal)
	assert.Equal(t, 3.0, *p.ReportedTotal)
}

func TestNormalizeScoresDropsUncoercible(t *testing.T) {
	out := NormalizeScores(map[string]any{
		"ok":       2.0,
		"str":      "3.25",
		"padded":   " 1.5 ",
		"words":    "two",
		"nullish":  nil,
		"nested":   map[string]any{"x": 1},
		"boolean":  true,
		"Infinity": "Inf",
	})
	assert.Equal(t, map[string]float64{"ok": 2, "str": 3.25, "padded": 1.5}, out)
}

func TestSnakeCaseIdempotent(t *testing.T) {
	for in, want := range map[string]string{
		"clarity":            "clarity",
		"trapConstruction":   "trap_construction",
		"TrapConstruction":   "trap_construction",
		"already_snake_case": "already_snake_case",
		"Rationale Quality":  "rationale_quality",
		"kebab-case-key":     "kebab_case_key",
		"HTTPScore":          "http_score",
	} {
		got := SnakeCase(in)
		assert.Equal(t, want, got, "input %q", in)
		assert.Equal(t, got, SnakeCase(got), "not idempotent for %q", in)
	}
}
